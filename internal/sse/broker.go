// Package sse implements a Server-Sent Events broker for live catalog updates.
//
// Every frame carries a sequence id. A bounded history of recent frames lets
// clients that reconnect with Last-Event-ID catch up on what they missed.
// Book changes are followed by a catalog.updated frame that is coalesced to
// at most one per throttle window; a change inside the window schedules one
// trailing frame so the last change is never left unannounced.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Book event kinds.
const (
	KindCreated = "created"
	KindUpdated = "updated"
	KindDeleted = "deleted"
)

// Event types on the wire.
const (
	TypeBookCreated    = "book.created"
	TypeBookUpdated    = "book.updated"
	TypeBookDeleted    = "book.deleted"
	TypeCatalogUpdated = "catalog.updated"
)

var bookEventTypes = map[string]string{
	KindCreated: TypeBookCreated,
	KindUpdated: TypeBookUpdated,
	KindDeleted: TypeBookDeleted,
}

var bookTypes = map[string]struct{}{
	TypeBookCreated: {},
	TypeBookUpdated: {},
	TypeBookDeleted: {},
}

const (
	clientBuffer     = 64
	defaultHistory   = 128
	defaultKeepAlive = 25 * time.Second
	retryMillis      = 3000
)

type frame struct {
	id  uint64
	raw []byte
}

type subscribeReq struct {
	ch     chan []byte
	lastID uint64
}

// Broker manages SSE client connections and broadcasts events.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable
// state (clients, history, throttle). Public methods communicate with this
// loop through channels, so no mutexes are required.
type Broker struct {
	catalogMin time.Duration
	keepAlive  time.Duration
	historyLen int

	subscribeCh   chan subscribeReq
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// Option configures a Broker.
type Option func(*Broker)

// WithKeepAlive sets the interval of comment frames sent to idle streams.
func WithKeepAlive(d time.Duration) Option {
	return func(b *Broker) { b.keepAlive = d }
}

// WithHistory sets how many recent frames are kept for replay.
func WithHistory(n int) Option {
	return func(b *Broker) { b.historyLen = n }
}

// NewBroker creates a new SSE broker. catalog.updated is sent at most once
// per catalogThrottle.
func NewBroker(catalogThrottle time.Duration, opts ...Option) *Broker {
	if catalogThrottle <= 0 {
		catalogThrottle = 2 * time.Second
	}

	b := &Broker{
		catalogMin:    catalogThrottle,
		keepAlive:     defaultKeepAlive,
		historyLen:    defaultHistory,
		subscribeCh:   make(chan subscribeReq),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var (
		seq         uint64
		history     []frame
		lastCatalog time.Time
		trailing    *time.Timer
		trailingC   <-chan time.Time
	)

	send := func(ch chan []byte, raw []byte) {
		select {
		case ch <- raw:
		default:
			// Client buffer full; it can resync with Last-Event-ID.
		}
	}

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		seq++
		f := frame{id: seq, raw: []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, event.Type, payload))}
		if b.historyLen > 0 {
			history = append(history, f)
			if len(history) > b.historyLen {
				history = history[len(history)-b.historyLen:]
			}
		}
		for ch := range clients {
			send(ch, f.raw)
		}
	}

	catalogUpdated := func(now time.Time) {
		lastCatalog = now
		broadcast(Event{Type: TypeCatalogUpdated, Data: map[string]string{}})
	}

	for {
		select {
		case <-b.stopCh:
			if trailing != nil {
				trailing.Stop()
			}
			for ch := range clients {
				close(ch)
			}
			return

		case req := <-b.subscribeCh:
			clients[req.ch] = struct{}{}
			if req.lastID > 0 {
				for _, f := range history {
					if f.id > req.lastID {
						send(req.ch, f.raw)
					}
				}
			}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)
			if _, isBook := bookTypes[event.Type]; !isBook {
				continue
			}
			now := time.Now()
			switch {
			case now.Sub(lastCatalog) >= b.catalogMin:
				catalogUpdated(now)
			case trailing == nil:
				trailing = time.NewTimer(b.catalogMin - now.Sub(lastCatalog))
				trailingC = trailing.C
			}

		case <-trailingC:
			trailing, trailingC = nil, nil
			catalogUpdated(time.Now())

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel. Frames newer than
// lastEventID still held in the history are delivered first; zero skips
// replay. A resuming client's channel has room for the whole history on top
// of the live buffer, so replay never drops frames.
func (b *Broker) Subscribe(lastEventID uint64) chan []byte {
	size := clientBuffer
	if lastEventID > 0 {
		size += max(b.historyLen, 0)
	}
	ch := make(chan []byte, size)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscribeReq{ch: ch, lastID: lastEventID}:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients. Book events also
// schedule a catalog.updated frame.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishBookEvent publishes a book change of the given kind. Unknown kinds
// are dropped.
func (b *Broker) PublishBookEvent(kind, id string) {
	typ, ok := bookEventTypes[kind]
	if !ok {
		return
	}
	b.Publish(Event{Type: typ, Data: map[string]string{"id": id}})
}

// lastEventID reads the resume point from the Last-Event-ID header or, for
// clients that cannot set headers, the lastEventId query parameter.
func lastEventID(r *http.Request) uint64 {
	raw := r.Header.Get("Last-Event-ID")
	if raw == "" {
		raw = r.URL.Query().Get("lastEventId")
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "retry: %d\n\n", retryMillis)
	flusher.Flush()

	ch := b.Subscribe(lastEventID(r))
	defer b.Unsubscribe(ch)

	var tick <-chan time.Time
	if b.keepAlive > 0 {
		ticker := time.NewTicker(b.keepAlive)
		defer ticker.Stop()
		tick = ticker.C
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}

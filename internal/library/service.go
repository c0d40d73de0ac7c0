// Package library coordinates the book files on disk, the SQLite index,
// the exported catalog document, and the in-memory query snapshot.
package library

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/catalog"
	"github.com/starford/folio/internal/checksum"
	"github.com/starford/folio/internal/index"
	"github.com/starford/folio/internal/indexer"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/query"
	"github.com/starford/folio/internal/sse"
	"github.com/starford/folio/internal/storage"
)

// EventSink receives book change notifications.
type EventSink interface {
	PublishBookEvent(kind, id string)
}

type snapshot struct {
	catalog *models.Catalog
	engine  *query.Engine
}

// Service coordinates storage and index operations.
//
// Reads are served from an immutable snapshot that is swapped atomically
// after every mutation; mutations themselves are serialized.
type Service struct {
	store       storage.Provider
	db          index.BookIndex
	ix          *indexer.Indexer
	catalogPath string
	maxUpload   int64
	events      EventSink
	logger      *slog.Logger
	now         func() time.Time

	mu   sync.Mutex
	snap atomic.Pointer[snapshot]
}

// Option configures a Service.
type Option func(*Service)

// WithCatalogPath makes the service re-export the catalog document to path
// after every mutation.
func WithCatalogPath(path string) Option {
	return func(s *Service) { s.catalogPath = path }
}

// WithMaxUploadBytes caps the size of uploaded files.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Service) { s.maxUpload = n }
}

// WithEvents sets the sink notified of book changes.
func WithEvents(e EventSink) Option {
	return func(s *Service) { s.events = e }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a library service. Call Open before serving reads.
func NewService(store storage.Provider, db index.BookIndex, opts ...Option) *Service {
	s := &Service{
		store:     store,
		db:        db,
		maxUpload: 200 << 20,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ix = indexer.New(indexer.WithLogger(s.logger), indexer.WithClock(s.now))
	s.snap.Store(&snapshot{catalog: catalog.Build(nil, s.now()), engine: query.New(nil)})
	return s
}

// Open seeds an empty index from the exported catalog (when present), syncs
// it with the library tree, and publishes the first snapshot.
func (s *Service) Open(ctx context.Context) error {
	s.mu.Lock()
	n, err := s.db.Count()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if n == 0 && s.catalogPath != "" {
		c, err := catalog.ReadFile(s.catalogPath)
		switch {
		case err == nil:
			imported, err := s.db.ImportCatalog(c)
			if err != nil {
				return fmt.Errorf("library: import catalog: %w", err)
			}
			s.logger.Info("library: imported catalog", slog.String("path", s.catalogPath), slog.Int("books", imported))
		case errors.Is(err, fs.ErrNotExist):
		default:
			s.logger.Warn("library: catalog unreadable, rebuilding from disk",
				slog.String("path", s.catalogPath), slog.String("error", err.Error()))
		}
	}
	_, err = s.Sync(ctx)
	return err
}

// Sync reconciles the index with the library tree and refreshes the
// snapshot and the exported catalog.
func (s *Service) Sync(_ context.Context) (index.SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := index.Sync(s.db, s.store, s.ix, s.logger)
	if err != nil {
		return res, err
	}
	if err := s.refreshLocked(); err != nil {
		return res, err
	}
	for _, b := range res.Added {
		s.publish(sse.KindCreated, b.ID)
	}
	for _, b := range res.Updated {
		s.publish(sse.KindUpdated, b.ID)
	}
	for _, b := range res.Removed {
		s.publish(sse.KindDeleted, b.ID)
	}
	return res, nil
}

// Reconcile is an index.ReconcileFunc that logs failures.
func (s *Service) Reconcile(ctx context.Context) {
	if _, err := s.Sync(ctx); err != nil {
		s.logger.Error("library: reconcile failed", slog.String("error", err.Error()))
	}
}

// refreshLocked rebuilds the snapshot from the index. s.mu must be held.
func (s *Service) refreshLocked() error {
	books, err := s.db.ListBooks()
	if err != nil {
		return err
	}
	c := catalog.Build(books, s.now())
	s.snap.Store(&snapshot{catalog: c, engine: query.New(c.Books)})
	if s.catalogPath != "" {
		if err := catalog.WriteFile(s.catalogPath, c); err != nil {
			return fmt.Errorf("library: export catalog: %w", err)
		}
	}
	return nil
}

func (s *Service) publish(kind, id string) {
	if s.events != nil {
		s.events.PublishBookEvent(kind, id)
	}
}

// Catalog returns the current catalog document. Callers must not modify it.
func (s *Service) Catalog() *models.Catalog {
	return s.snap.Load().catalog
}

// Engine returns the current query engine.
func (s *Service) Engine() *query.Engine {
	return s.snap.Load().engine
}

// Search filters the current snapshot.
func (s *Service) Search(state query.State, limit int) []models.Book {
	return s.Engine().Search(state, limit)
}

// Facets returns the distinct fields and tags of the current snapshot.
func (s *Service) Facets() query.Facets {
	return s.Engine().Facets()
}

// Fields returns the distinct fields sorted alphabetically.
func (s *Service) Fields() []string {
	f := s.Engine().Fields()
	slices.Sort(f)
	return f
}

// ETag returns the entity tag of a record.
func ETag(b *models.Book) string {
	data, _ := json.Marshal(b)
	return checksum.Sum(data)
}

// GetBook returns a record and its entity tag.
func (s *Service) GetBook(_ context.Context, id string) (*models.Book, string, error) {
	b, err := s.db.GetBook(id)
	if err != nil {
		return nil, "", err
	}
	return b, ETag(b), nil
}

// OpenFile opens the file behind a record for streaming.
func (s *Service) OpenFile(ctx context.Context, id string) (io.ReadSeekCloser, fs.FileInfo, *models.Book, error) {
	b, _, err := s.GetBook(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	rc, info, err := s.store.Open(b.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, nil, fmt.Errorf("library: file for %s: %w", id, apperr.ErrNotFound)
		}
		return nil, nil, nil, err
	}
	return rc, info, b, nil
}

// Delete removes a record and its file.
func (s *Service) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.db.GetBook(id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(b.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := s.db.DeleteBook(id); err != nil {
		return err
	}
	s.logger.Info("library: deleted", slog.String("id", id), slog.String("path", b.Path))
	if err := s.refreshLocked(); err != nil {
		return err
	}
	s.publish(sse.KindDeleted, id)
	return nil
}

// Package query filters an in-memory catalog snapshot.
//
// An Engine is built once per loaded catalog and never mutated afterwards, so
// it may be shared freely between goroutines. A reload produces a new Engine.
package query

import (
	"strings"

	"github.com/starford/folio/internal/models"
)

// State is the user's current filter selection.
type State struct {
	// Term is matched case-insensitively against title, author, and tags.
	Term string
	// Field, when non-empty, must equal the record's field exactly.
	Field string
	// Tags holds the active tag filters; a record matches if it carries any.
	Tags map[string]struct{}
}

// NewState builds a State with the given active tags.
func NewState(term, field string, tags ...string) State {
	s := State{Term: term, Field: field}
	for _, t := range tags {
		s.AddTag(t)
	}
	return s
}

// AddTag activates tag.
func (s *State) AddTag(tag string) {
	if s.Tags == nil {
		s.Tags = make(map[string]struct{})
	}
	s.Tags[tag] = struct{}{}
}

// ToggleTag activates tag if inactive and deactivates it otherwise.
// It reports whether tag is active afterwards.
func (s *State) ToggleTag(tag string) bool {
	if _, ok := s.Tags[tag]; ok {
		delete(s.Tags, tag)
		return false
	}
	s.AddTag(tag)
	return true
}

// TagActive reports whether tag is an active filter.
func (s State) TagActive(tag string) bool {
	_, ok := s.Tags[tag]
	return ok
}

// Reset clears every filter.
func (s *State) Reset() {
	*s = State{}
}

// Facets are the distinct values used to populate filter controls.
type Facets struct {
	Fields []string `json:"fields"`
	Tags   []string `json:"tags"`
}

// Engine holds an immutable catalog snapshot and its precomputed facets.
type Engine struct {
	books  []models.Book
	facets Facets
}

// New builds an Engine over books. The slice is copied; records with nil
// tags are treated as untagged.
func New(books []models.Book) *Engine {
	e := &Engine{books: make([]models.Book, len(books))}
	copy(e.books, books)

	fieldSeen := make(map[string]struct{})
	tagSeen := make(map[string]struct{})
	e.facets = Facets{Fields: []string{}, Tags: []string{}}
	for i := range e.books {
		b := &e.books[i]
		if b.Tags == nil {
			b.Tags = []string{}
		}
		if _, ok := fieldSeen[b.Field]; !ok && b.Field != "" {
			fieldSeen[b.Field] = struct{}{}
			e.facets.Fields = append(e.facets.Fields, b.Field)
		}
		for _, t := range b.Tags {
			if _, ok := tagSeen[t]; !ok {
				tagSeen[t] = struct{}{}
				e.facets.Tags = append(e.facets.Tags, t)
			}
		}
	}
	return e
}

// Len returns the number of records in the snapshot.
func (e *Engine) Len() int { return len(e.books) }

// Books returns a copy of every record in catalog order.
func (e *Engine) Books() []models.Book {
	out := make([]models.Book, len(e.books))
	copy(out, e.books)
	return out
}

// Fields returns the distinct field values in first-seen order.
func (e *Engine) Fields() []string {
	return append([]string{}, e.facets.Fields...)
}

// Tags returns the distinct tags in first-seen order.
func (e *Engine) Tags() []string {
	return append([]string{}, e.facets.Tags...)
}

// Facets returns the distinct fields and tags of the snapshot.
func (e *Engine) Facets() Facets {
	return Facets{Fields: e.Fields(), Tags: e.Tags()}
}

// Get returns the record with the given id.
func (e *Engine) Get(id string) (models.Book, bool) {
	for i := range e.books {
		if e.books[i].ID == id {
			return e.books[i], true
		}
	}
	return models.Book{}, false
}

// Search returns the records matching s in catalog order. limit <= 0 means
// no limit. The result is never nil.
func (e *Engine) Search(s State, limit int) []models.Book {
	term := strings.ToLower(s.Term)
	out := []models.Book{}
	for i := range e.books {
		if !Match(&e.books[i], s, term) {
			continue
		}
		out = append(out, e.books[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Match reports whether b satisfies s. lowerTerm must be strings.ToLower(s.Term).
func Match(b *models.Book, s State, lowerTerm string) bool {
	if lowerTerm != "" && !matchesTerm(b, lowerTerm) {
		return false
	}
	if s.Field != "" && b.Field != s.Field {
		return false
	}
	if len(s.Tags) > 0 && !matchesAnyTag(b, s.Tags) {
		return false
	}
	return true
}

func matchesTerm(b *models.Book, term string) bool {
	if strings.Contains(strings.ToLower(b.Title), term) ||
		strings.Contains(strings.ToLower(b.Author), term) {
		return true
	}
	for _, t := range b.Tags {
		if strings.Contains(strings.ToLower(t), term) {
			return true
		}
	}
	return false
}

func matchesAnyTag(b *models.Book, active map[string]struct{}) bool {
	for _, t := range b.Tags {
		if _, ok := active[t]; ok {
			return true
		}
	}
	return false
}

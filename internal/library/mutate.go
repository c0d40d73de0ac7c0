package library

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/checksum"
	"github.com/starford/folio/internal/indexer"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/parser"
	"github.com/starford/folio/internal/sse"
)

// UploadRequest describes a new book and its content.
type UploadRequest struct {
	Filename string
	Title    string
	Author   string
	Field    string
	Tags     []string
	Type     models.BookType
	Body     io.Reader
}

// Validate implements validation.Validatable.
func (r UploadRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Filename, validation.Required, validation.By(plainName),
			validation.By(func(any) error {
				if !UploadAllowed(r.Filename) {
					return errors.New("must be a .pdf, .epub, or .mobi file")
				}
				return nil
			})),
		validation.Field(&r.Title, validation.Required),
		validation.Field(&r.Author, validation.Required),
		validation.Field(&r.Field, validation.Required, validation.By(plainName)),
		validation.Field(&r.Type, validation.By(optionalType)),
	)
}

// Patch holds the attributes of a record to change; nil fields are kept.
type Patch struct {
	Title  *string          `json:"title,omitempty"`
	Author *string          `json:"author,omitempty"`
	Field  *string          `json:"field,omitempty"`
	Tags   *[]string        `json:"tags,omitempty"`
	Type   *models.BookType `json:"type,omitempty"`
}

// Validate implements validation.Validatable.
func (p Patch) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Title, validation.NilOrNotEmpty),
		validation.Field(&p.Author, validation.NilOrNotEmpty),
		validation.Field(&p.Field, validation.NilOrNotEmpty, validation.By(plainName)),
		validation.Field(&p.Type, validation.By(optionalType)),
	)
}

// plainName rejects values that would escape a single path element.
func plainName(v any) error {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case *string:
		if x == nil {
			return nil
		}
		s = *x
	}
	if strings.ContainsAny(s, `/\`) || strings.Contains(s, "..") || strings.HasPrefix(s, ".") {
		return errors.New("must not contain path separators or start with a dot")
	}
	return nil
}

func optionalType(v any) error {
	var t models.BookType
	switch x := v.(type) {
	case models.BookType:
		t = x
	case *models.BookType:
		if x == nil {
			return nil
		}
		t = *x
	}
	if t != "" && !t.Valid() {
		return errors.New("must be one of book, note, article")
	}
	return nil
}

func invalid(err error) error {
	return fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
}

// FieldDir maps a field label to its directory name.
func FieldDir(field string) string {
	return strings.ReplaceAll(strings.TrimSpace(field), " ", "_")
}

// capReader fails once more than n bytes have been read.
type capReader struct {
	r io.Reader
	n int64
}

func (c *capReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n -= int64(n)
	if c.n < 0 {
		return n, fmt.Errorf("%w: file exceeds upload limit", apperr.ErrInvalidInput)
	}
	return n, err
}

// Upload stores a new book file inside its field directory and indexes it.
func (s *Service) Upload(_ context.Context, req UploadRequest) (*models.Book, error) {
	req.Filename = strings.TrimSpace(path.Base(strings.ReplaceAll(req.Filename, `\`, "/")))
	req.Title = strings.TrimSpace(req.Title)
	req.Author = strings.TrimSpace(req.Author)
	req.Field = strings.TrimSpace(req.Field)
	if err := req.Validate(); err != nil {
		return nil, invalid(err)
	}
	if req.Body == nil {
		return nil, fmt.Errorf("%w: empty file", apperr.ErrInvalidInput)
	}

	br := bufio.NewReaderSize(req.Body, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("library: read upload: %w", err)
	}
	if len(head) == 0 {
		return nil, fmt.Errorf("%w: empty file", apperr.ErrInvalidInput)
	}
	if err := Sniff(req.Filename, head); err != nil {
		return nil, err
	}

	dir := FieldDir(req.Field)
	rel := path.Join(dir, req.Filename)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.GetBookByPath(rel); err == nil {
		return nil, fmt.Errorf("library: %s: %w", rel, apperr.ErrAlreadyExists)
	}
	if _, err := s.store.Stat(rel); err == nil {
		return nil, fmt.Errorf("library: %s: %w", rel, apperr.ErrAlreadyExists)
	}

	n, err := s.store.WriteStream(rel, &capReader{r: br, n: s.maxUpload})
	if err != nil {
		return nil, err
	}

	field := parser.FormatField(dir)
	typ := req.Type
	if typ == "" {
		typ = parser.ClassifyType(req.Filename)
	}
	b, err := s.db.InsertBook(models.Book{
		Title:     req.Title,
		Author:    req.Author,
		Field:     field,
		Tags:      parser.Dedupe(append(append([]string{}, req.Tags...), field)),
		Filesize:  indexer.FormatSize(n),
		Type:      typ,
		Filename:  req.Filename,
		Path:      rel,
		AddedDate: s.now().Format(models.DateLayout),
	})
	if err != nil {
		_ = s.store.Delete(rel)
		return nil, err
	}
	s.logger.Info("library: uploaded", slog.String("id", b.ID), slog.String("path", rel), slog.Int64("bytes", n))

	if err := s.refreshLocked(); err != nil {
		return nil, err
	}
	s.publish(sse.KindCreated, b.ID)
	return &b, nil
}

// Update applies p to the record with the given id. A non-empty ifMatch must
// equal the record's current entity tag. Changing the field moves the file
// into the new field directory.
func (s *Service) Update(_ context.Context, id string, p Patch, ifMatch string) (*models.Book, error) {
	if err := p.Validate(); err != nil {
		return nil, invalid(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.db.GetBook(id)
	if err != nil {
		return nil, err
	}
	if ifMatch != "" && !checksum.Equal(ifMatch, ETag(cur)) {
		return nil, fmt.Errorf("library: %s changed: %w", id, apperr.ErrConflict)
	}

	next := *cur
	if p.Title != nil {
		next.Title = strings.TrimSpace(*p.Title)
	}
	if p.Author != nil {
		next.Author = strings.TrimSpace(*p.Author)
	}
	if p.Type != nil && *p.Type != "" {
		next.Type = *p.Type
	}
	tags := cur.Tags
	if p.Tags != nil {
		tags = *p.Tags
	}

	moved := false
	if p.Field != nil {
		dir := FieldDir(*p.Field)
		if newPath := path.Join(dir, cur.Filename); newPath != cur.Path {
			if _, err := s.store.Stat(newPath); err == nil {
				return nil, fmt.Errorf("library: %s: %w", newPath, apperr.ErrAlreadyExists)
			} else if !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
			if err := s.store.Move(cur.Path, newPath); err != nil {
				return nil, err
			}
			next.Path = newPath
			moved = true
		}
		newField := parser.FormatField(dir)
		if newField != cur.Field {
			tags = without(tags, cur.Field)
		}
		next.Field = newField
	}
	next.Tags = parser.Dedupe(append(append([]string{}, tags...), next.Field))

	if err := s.db.UpdateBook(next); err != nil {
		if moved {
			_ = s.store.Move(next.Path, cur.Path)
		}
		return nil, err
	}
	s.logger.Info("library: updated", slog.String("id", id))

	if err := s.refreshLocked(); err != nil {
		return nil, err
	}
	s.publish(sse.KindUpdated, id)
	return &next, nil
}

func without(tags []string, drop string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t != drop {
			out = append(out, t)
		}
	}
	return out
}

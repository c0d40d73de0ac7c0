// Package catalog builds, validates, and (de)serializes catalog documents.
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"time"

	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/storage"
)

var filesizeRe = regexp.MustCompile(`^[0-9]+(\.[0-9]+)? (B|KB|MB|GB)$`)

// Build assembles a Catalog from books in their given order.
func Build(books []models.Book, generatedAt time.Time) *models.Catalog {
	if books == nil {
		books = []models.Book{}
	}
	return &models.Catalog{
		Books:       books,
		GeneratedAt: generatedAt.UTC().Truncate(time.Millisecond),
		TotalBooks:  len(books),
		Fields:      Fields(books),
	}
}

// Fields returns the distinct field values of books in first-seen order.
func Fields(books []models.Book) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for i := range books {
		f := books[i].Field
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// CountByField returns how many books each field holds.
func CountByField(books []models.Book) map[string]int {
	out := make(map[string]int)
	for i := range books {
		out[books[i].Field]++
	}
	return out
}

// ValidFilesize reports whether s is "<number> <unit>" or models.Unknown.
func ValidFilesize(s string) bool {
	return s == models.Unknown || filesizeRe.MatchString(s)
}

// Normalize fills defaults for partially-populated records and recomputes
// the summary fields so that TotalBooks and Fields agree with Books.
func Normalize(c *models.Catalog) {
	if c.Books == nil {
		c.Books = []models.Book{}
	}
	for i := range c.Books {
		b := &c.Books[i]
		if b.Tags == nil {
			b.Tags = []string{}
		}
		if b.Author == "" {
			b.Author = models.Unknown
		}
		if !ValidFilesize(b.Filesize) {
			b.Filesize = models.Unknown
		}
		if !b.Type.Valid() {
			b.Type = models.TypeBook
		}
	}
	c.TotalBooks = len(c.Books)
	c.Fields = Fields(c.Books)
}

// Encode writes c as indented JSON.
func Encode(w io.Writer, c *models.Catalog) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("catalog: encode: %w", err)
	}
	return nil
}

// Decode parses a catalog document and normalizes it.
func Decode(r io.Reader) (*models.Catalog, error) {
	var c models.Catalog
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	Normalize(&c)
	return &c, nil
}

// WriteFile atomically writes c to path, creating parent directories.
// A failed write leaves any previous file in place.
func WriteFile(path string, c *models.Catalog) error {
	var buf bytes.Buffer
	if err := Encode(&buf, c); err != nil {
		return err
	}
	if _, err := storage.WriteFileAtomic(path, &buf); err != nil {
		return fmt.Errorf("catalog: write %s: %w", path, err)
	}
	return nil
}

// ReadFile loads and normalizes the catalog stored at path.
func ReadFile(path string) (*models.Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	defer f.Close()
	return Decode(f)
}

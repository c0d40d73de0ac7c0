package catalog

import (
	"bytes"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/starford/folio/internal/models"
)

func sampleBooks() []models.Book {
	return []models.Book{
		{ID: "algebra_1", Title: "Algebra", Author: "Artin", Field: "Algebra", Tags: []string{"Algebra", "groups"},
			Filesize: "1.5 MB", Type: models.TypeBook, Filename: "Algebra - Artin [groups].pdf",
			Path: "Algebra/Algebra - Artin [groups].pdf", AddedDate: "2026-10-15"},
		{ID: "topology_2", Title: "notes", Author: models.Unknown, Field: "Topology", Tags: []string{"Topology"},
			Filesize: "12.0 B", Type: models.TypeNote, Filename: "notes.txt",
			Path: "Topology/notes.txt", AddedDate: "2026-10-15"},
	}
}

func TestBuild(t *testing.T) {
	at := time.Date(2026, 10, 15, 12, 0, 0, 123456789, time.FixedZone("X", 3600))
	c := Build(sampleBooks(), at)
	if c.TotalBooks != 2 {
		t.Errorf("totalBooks = %d", c.TotalBooks)
	}
	if !slices.Equal(c.Fields, []string{"Algebra", "Topology"}) {
		t.Errorf("fields = %v", c.Fields)
	}
	if c.GeneratedAt.Location() != time.UTC || c.GeneratedAt.Nanosecond() != 123000000 {
		t.Errorf("generatedAt = %v", c.GeneratedAt)
	}

	empty := Build(nil, at)
	if empty.Books == nil || empty.Fields == nil || empty.TotalBooks != 0 {
		t.Errorf("empty = %+v", empty)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	c := Build(sampleBooks(), time.Now())
	var buf bytes.Buffer
	if err := Encode(&buf, c); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	for _, key := range []string{`"books"`, `"generatedAt"`, `"totalBooks"`, `"fields"`, `"addedDate"`, `"filesize"`} {
		if !strings.Contains(buf.String(), key) {
			t.Errorf("encoded output missing %s", key)
		}
	}

	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(got.Books, c.Books) {
		t.Errorf("books differ:\n%+v\n%+v", got.Books, c.Books)
	}
	if !got.GeneratedAt.Equal(c.GeneratedAt) {
		t.Errorf("generatedAt %v != %v", got.GeneratedAt, c.GeneratedAt)
	}
}

func TestDecodeNormalizes(t *testing.T) {
	doc := `{"books":[{"id":"x_1","title":"T","field":"X","filesize":"huge","type":"scroll"}],"totalBooks":99}`
	c, err := Decode(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	b := c.Books[0]
	if b.Tags == nil || b.Author != models.Unknown || b.Filesize != models.Unknown || b.Type != models.TypeBook {
		t.Errorf("not normalized: %+v", b)
	}
	if c.TotalBooks != 1 || !slices.Equal(c.Fields, []string{"X"}) {
		t.Errorf("summary = %d %v", c.TotalBooks, c.Fields)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode(strings.NewReader("{not json")); err == nil {
		t.Error("expected error")
	}
}

func TestValidFilesize(t *testing.T) {
	for _, s := range []string{"0.0 B", "1023.0 B", "1.5 KB", "2048.0 GB", "Unknown", "3 MB"} {
		if !ValidFilesize(s) {
			t.Errorf("%q should be valid", s)
		}
	}
	for _, s := range []string{"", "1.5KB", "1.5 TB", "-1.0 B", "unknown"} {
		if ValidFilesize(s) {
			t.Errorf("%q should be invalid", s)
		}
	}
}

func TestCountByField(t *testing.T) {
	books := append(sampleBooks(), models.Book{Field: "Algebra"})
	got := CountByField(books)
	if got["Algebra"] != 2 || got["Topology"] != 1 {
		t.Errorf("counts = %v", got)
	}
}

func TestWriteReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "public", "data", "metadata.json")
	c := Build(sampleBooks(), time.Now())
	if err := WriteFile(path, c); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !reflect.DeepEqual(got.Books, c.Books) {
		t.Error("books differ after file round trip")
	}
	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

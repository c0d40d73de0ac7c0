package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/folio/internal/catalog"
)

func writeFile(t *testing.T, path string, data string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRun_Usage(t *testing.T) {
	for _, args := range [][]string{
		{"genmeta"},
		{"genmeta", "only-source"},
		{"genmeta", "a", "b", "c", "d"},
	} {
		var stdout, stderr bytes.Buffer
		if code := run(context.Background(), args, &stdout, &stderr); code != 1 {
			t.Errorf("%v: exit = %d, want 1", args, code)
		}
		if !strings.Contains(stderr.String(), "usage: genmeta <source-dir> <output-file> [label]") {
			t.Errorf("%v: stderr = %q", args, stderr.String())
		}
	}
}

func TestRun_MissingRoot(t *testing.T) {
	out := filepath.Join(t.TempDir(), "metadata.json")
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"genmeta", filepath.Join(t.TempDir(), "absent"), out}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("exit = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "source directory not found") {
		t.Errorf("stderr = %q", stderr.String())
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("output written on failure: %v", err)
	}
}

func TestRun_WritesCatalogAndSummary(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Real_Analysis", "Principles - Rudin [calculus].pdf"), "%PDF")
	writeFile(t, filepath.Join(root, "Real_Analysis", "notes.txt"), "n")
	writeFile(t, filepath.Join(root, "topology", "Topology - Munkres.epub"), "PK")
	writeFile(t, filepath.Join(root, "topology", "cover.png"), "x")
	writeFile(t, filepath.Join(root, "stray.pdf"), "%PDF")

	out := filepath.Join(t.TempDir(), "nested", "metadata.json")
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"genmeta", root, out, "nightly"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit = %d, stderr = %s", code, stderr.String())
	}

	c, err := catalog.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if c.TotalBooks != 3 {
		t.Errorf("totalBooks = %d, want 3", c.TotalBooks)
	}

	data, _ := os.ReadFile(out)
	if !strings.Contains(string(data), "\n  \"books\": [") {
		t.Errorf("output not indented with two spaces:\n%s", data)
	}

	summary := stdout.String()
	for _, want := range []string{"[nightly] 3 books in 2 fields", "Real Analysis", "Topology"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
}

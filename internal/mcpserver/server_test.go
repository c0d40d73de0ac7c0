package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/folio/internal/library"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/testutil"
)

func testServer(t *testing.T) (*Server, string) {
	t.Helper()

	libDir, store := testutil.TestLibrary(t)
	testutil.WriteBook(t, libDir, "Real_Analysis/Principles - Rudin [calculus].pdf", []byte("%PDF-1.4"))
	testutil.WriteBook(t, libDir, "Topology/Topology - Munkres [spaces].pdf", []byte("%PDF-1.4"))

	lib := library.NewService(store, testutil.TestDB(t),
		library.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err := lib.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	return New(lib, "test"), libDir
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so the handlers are
	// invoked directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "search_books":
		result, err = srv.searchBooks(ctx, req)
	case "get_book":
		result, err = srv.getBook(ctx, req)
	case "list_facets":
		result, err = srv.listFacets(ctx, req)
	case "get_catalog_contract":
		result, err = srv.getCatalogContract(ctx, req)
	case "import_book":
		result, err = srv.importBook(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

type searchResult struct {
	Books []models.Book `json:"books"`
	Count int           `json:"count"`
}

func search(t *testing.T, srv *Server, args map[string]any) searchResult {
	t.Helper()
	r := callTool(t, srv, "search_books", args)
	if r.IsError {
		t.Fatalf("search_books error: %s", resultText(r))
	}
	var res searchResult
	if err := json.Unmarshal([]byte(resultText(r)), &res); err != nil {
		t.Fatal(err)
	}
	return res
}

func TestSearchBooks(t *testing.T) {
	srv, _ := testServer(t)

	tests := []struct {
		args map[string]any
		want int
	}{
		{map[string]any{}, 2},
		{map[string]any{"query": "rudin"}, 1},
		{map[string]any{"field": "Topology"}, 1},
		{map[string]any{"tags": "calculus, spaces"}, 2},
		{map[string]any{"tags": "calculus", "field": "Topology"}, 0},
		{map[string]any{"limit": 1}, 1},
	}
	for _, tt := range tests {
		if got := search(t, srv, tt.args).Count; got != tt.want {
			t.Errorf("search %v = %d, want %d", tt.args, got, tt.want)
		}
	}

	if r := callTool(t, srv, "search_books", map[string]any{"limit": -1}); !r.IsError {
		t.Error("expected error for negative limit")
	}
}

func TestGetBook(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "get_book", map[string]any{"id": "real_analysis_1"})
	var b models.Book
	if err := json.Unmarshal([]byte(resultText(r)), &b); err != nil {
		t.Fatalf("decode %q: %v", resultText(r), err)
	}
	if b.Author != "Rudin" || b.Field != "Real Analysis" {
		t.Errorf("book = %+v", b)
	}

	r = callTool(t, srv, "get_book", map[string]any{"id": "nope_1"})
	if !r.IsError || !strings.Contains(resultText(r), "not found") {
		t.Errorf("missing book = %q", resultText(r))
	}
	if r := callTool(t, srv, "get_book", map[string]any{}); !r.IsError {
		t.Error("expected error without id")
	}
}

func TestListFacetsAndContract(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "list_facets", map[string]any{})
	var f struct {
		Fields []string `json:"fields"`
		Tags   []string `json:"tags"`
	}
	if err := json.Unmarshal([]byte(resultText(r)), &f); err != nil {
		t.Fatal(err)
	}
	if strings.Join(f.Fields, ",") != "Real Analysis,Topology" {
		t.Errorf("fields = %v", f.Fields)
	}

	r = callTool(t, srv, "get_catalog_contract", map[string]any{})
	if !strings.Contains(resultText(r), "Folio Catalog Format Contract") {
		t.Error("contract text missing")
	}

	contents, err := srv.readCatalogFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil || len(contents) != 1 {
		t.Fatalf("resource = %v, %v", contents, err)
	}
	if tc, ok := contents[0].(mcp.TextResourceContents); !ok || tc.URI != catalogFormatURI {
		t.Errorf("resource contents = %+v", contents[0])
	}
}

func TestImportBook_DataURI(t *testing.T) {
	srv, libDir := testServer(t)

	uri := "data:application/pdf;base64," + base64.StdEncoding.EncodeToString([]byte("%PDF-1.7 imported"))
	r := callTool(t, srv, "import_book", map[string]any{
		"url":      uri,
		"title":    "Algebra",
		"author":   "Lang",
		"field":    "Abstract Algebra",
		"tags":     "groups",
		"filename": "Algebra - Lang [groups].pdf",
	})
	if r.IsError {
		t.Fatalf("import failed: %s", resultText(r))
	}
	var res importResult
	_ = json.Unmarshal([]byte(resultText(r)), &res)
	if res.ID != "abstract_algebra_3" || res.Path != "Abstract_Algebra/Algebra - Lang [groups].pdf" {
		t.Errorf("import = %+v", res)
	}
	if _, err := os.Stat(filepath.Join(libDir, "Abstract_Algebra", "Algebra - Lang [groups].pdf")); err != nil {
		t.Errorf("imported file missing: %v", err)
	}
	if got := search(t, srv, map[string]any{"query": "lang"}).Count; got != 1 {
		t.Errorf("search after import = %d", got)
	}
}

func TestImportBook_Rejections(t *testing.T) {
	srv, _ := testServer(t)
	pdf := "data:application/pdf;base64," + base64.StdEncoding.EncodeToString([]byte("%PDF-1.7"))
	html := "data:application/pdf;base64," + base64.StdEncoding.EncodeToString([]byte("<html></html>"))

	tests := []struct {
		name string
		args map[string]any
	}{
		{"missing url", map[string]any{"title": "t", "author": "a", "field": "f"}},
		{"plain data uri", map[string]any{"url": "data:application/pdf,abc", "title": "t", "author": "a", "field": "f"}},
		{"unsupported mime", map[string]any{"url": "data:image/png;base64,AAAA", "title": "t", "author": "a", "field": "f"}},
		{"bad extension", map[string]any{"url": pdf, "filename": "x.exe", "title": "t", "author": "a", "field": "f"}},
		{"content mismatch", map[string]any{"url": html, "title": "t", "author": "a", "field": "f"}},
		{"missing title", map[string]any{"url": pdf, "author": "a", "field": "f"}},
		{"blocked host", map[string]any{"url": "http://127.0.0.1/book.pdf", "title": "t", "author": "a", "field": "f"}},
		{"bad scheme", map[string]any{"url": "ftp://example.com/book.pdf", "title": "t", "author": "a", "field": "f"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if r := callTool(t, srv, "import_book", tt.args); !r.IsError {
				t.Errorf("expected error, got %q", resultText(r))
			}
		})
	}
}

func TestImportBook_FetchesURL(t *testing.T) {
	srv, _ := testServer(t)

	orig := fetcher
	t.Cleanup(func() { fetcher = orig })
	var fetched string
	fetcher = func(_ context.Context, rawURL string) ([]byte, string, error) {
		fetched = rawURL
		return []byte("%PDF-1.7 remote"), ".pdf", nil
	}

	r := callTool(t, srv, "import_book", map[string]any{
		"url":    "https://example.com/papers/Measure%20Theory%20-%20Halmos.pdf",
		"title":  "Measure Theory",
		"author": "Halmos",
		"field":  "Real_Analysis",
	})
	if r.IsError {
		t.Fatalf("import failed: %s", resultText(r))
	}
	if fetched == "" {
		t.Error("fetcher not called")
	}
	var res importResult
	_ = json.Unmarshal([]byte(resultText(r)), &res)
	if res.Path != "Real_Analysis/Measure Theory - Halmos.pdf" {
		t.Errorf("path = %q", res.Path)
	}
}

func TestFetchHTTP_BlocksLoopback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.7"))
	}))
	defer ts.Close()

	if _, _, err := fetchHTTP(context.Background(), ts.URL+"/x.pdf"); err == nil || !strings.Contains(err.Error(), "blocked host") {
		t.Errorf("fetch loopback err = %v", err)
	}
}

func TestBlockedIP(t *testing.T) {
	tests := []struct {
		addr    string
		blocked bool
	}{
		{"127.0.0.1", true},
		{"::1", true},
		{"10.1.2.3", true},
		{"172.16.0.9", true},
		{"192.168.1.20", true},
		{"fd00::1", true},
		{"169.254.169.254", true},
		{"fe80::1", true},
		{"0.0.0.0", true},
		{"224.0.0.1", true},
		{"93.184.216.34", false},
		{"2606:2800:220:1:248:1893:25c8:1946", false},
	}
	for _, tt := range tests {
		err := blockedIP(net.ParseIP(tt.addr), tt.addr)
		if (err != nil) != tt.blocked {
			t.Errorf("blockedIP(%s) = %v, blocked want %v", tt.addr, err, tt.blocked)
		}
	}
}

func TestGuardDial(t *testing.T) {
	for _, addr := range []string{"127.0.0.1:80", "[::1]:443", "10.0.0.5:8080", "no-port"} {
		if err := guardDial("tcp", addr, nil); err == nil {
			t.Errorf("guardDial(%s) allowed", addr)
		}
	}
	if err := guardDial("tcp", "93.184.216.34:443", nil); err != nil {
		t.Errorf("public address refused: %v", err)
	}
}

func TestFetchClient_RefusesInternalAtDial(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("%PDF-1.7"))
	}))
	defer ts.Close()

	// Skips the pre-flight host check, as a rebinding name would.
	resp, err := newFetchClient().Get(ts.URL)
	if err == nil {
		_ = resp.Body.Close()
		t.Fatal("dial to loopback succeeded")
	}
	if !strings.Contains(err.Error(), "blocked host") {
		t.Errorf("err = %v", err)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Algebra - Lang [groups].pdf", "Algebra - Lang [groups].pdf"},
		{"../../etc/passwd", "passwd"},
		{`dir\evil.pdf`, "evil.pdf"},
		{"a;b|c.pdf", "a_b_c.pdf"},
		{".hidden.pdf", "hidden.pdf"},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the Folio catalog to LLM clients via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/library"
	"github.com/starford/folio/internal/query"
)

// catalogFormatURI names the catalog format resource.
const catalogFormatURI = "folio://catalog-format"

// defaultSearchLimit bounds search_books when no limit is given.
const defaultSearchLimit = 20

// Server wraps the MCP server with Folio tools.
type Server struct {
	mcp *server.MCPServer
	lib *library.Service
}

// New creates a new MCP server with all Folio tools registered.
func New(lib *library.Service, version string) *Server {
	s := &Server{lib: lib}

	s.mcp = server.NewMCPServer(
		"Folio",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_books",
		mcp.WithDescription("Filter the library catalog. The query matches titles and authors "+
			"(case-insensitive substring), field must match exactly, and a book matches the tag "+
			"filter if it carries any of the given tags. Omitted filters match everything."),
		mcp.WithString("query", mcp.Description("Substring of the title or author")),
		mcp.WithString("field", mcp.Description("Exact field of study, e.g. \"Real Analysis\"")),
		mcp.WithString("tags", mcp.Description("Comma-separated tags; any one must be present")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20, 0 for all)")),
	), s.searchBooks)

	s.mcp.AddTool(mcp.NewTool("get_book",
		mcp.WithDescription("Get the full catalog record of a book by id."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Book id, e.g. real_analysis_3")),
	), s.getBook)

	s.mcp.AddTool(mcp.NewTool("list_facets",
		mcp.WithDescription("List the distinct fields and tags present in the catalog."),
	), s.listFacets)

	s.mcp.AddTool(mcp.NewTool("get_catalog_contract",
		mcp.WithDescription("Returns the Folio library layout and filename conventions. "+
			"Call this before importing books so that metadata is derived correctly."),
	), s.getCatalogContract)

	s.mcp.AddTool(mcp.NewTool("import_book",
		mcp.WithDescription("Import a PDF, EPUB, or MOBI file into the library from an http(s) URL "+
			"or a base64 data URI. Read the contract first via get_catalog_contract or the "+
			catalogFormatURI+" resource."),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data:<mime>;base64,<data> URI")),
		mcp.WithString("title", mcp.Required(), mcp.Description("Book title")),
		mcp.WithString("author", mcp.Required(), mcp.Description("Book author")),
		mcp.WithString("field", mcp.Required(), mcp.Description("Field of study; becomes the directory")),
		mcp.WithString("tags", mcp.Description("Comma-separated tags")),
		mcp.WithString("filename", mcp.Description("Target filename (derived from the URL when empty)")),
	), s.importBook)

	// Resource: catalog format contract.
	s.mcp.AddResource(
		mcp.NewResource(catalogFormatURI, "Catalog Format Contract",
			mcp.WithResourceDescription("Library directory layout, filename conventions, and catalog record schema."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readCatalogFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func splitTags(raw string) []string {
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

func (s *Server) searchBooks(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", defaultSearchLimit)
	if limit < 0 {
		return mcp.NewToolResultError("limit must not be negative"), nil
	}
	state := query.NewState(
		req.GetString("query", ""),
		req.GetString("field", ""),
		splitTags(req.GetString("tags", ""))...,
	)
	books := s.lib.Search(state, limit)
	return jsonResult(map[string]any{"books": books, "count": len(books)}), nil
}

func (s *Server) getBook(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	b, _, err := s.lib.GetBook(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(b), nil
}

func (s *Server) listFacets(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.lib.Facets()), nil
}

func (s *Server) getCatalogContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(CatalogFormatContract), nil
}

func (s *Server) readCatalogFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      catalogFormatURI,
			MIMEType: "text/markdown",
			Text:     CatalogFormatContract,
		},
	}, nil
}

// Listen serves the MCP protocol over in and out until ctx is cancelled or
// in reaches EOF.
func (s *Server) Listen(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

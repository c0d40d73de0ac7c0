package mcpserver

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/folio/internal/library"
)

const maxImportSize = 200 << 20 // 200 MB

var (
	mimeToExt = map[string]string{
		"application/pdf":                ".pdf",
		"application/epub+zip":           ".epub",
		"application/x-mobipocket-ebook": ".mobi",
	}

	safeFilenameRe = regexp.MustCompile(`[^\p{L}\p{N} ._,()\[\]-]`)
)

type importResult struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

// fetcher retrieves remote content; tests replace it.
var fetcher = fetchHTTP

func (s *Server) importBook(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var data []byte
	var detectedExt string

	if strings.HasPrefix(rawURL, "data:") {
		data, detectedExt, err = decodeDataURI(rawURL)
	} else {
		data, detectedExt, err = fetcher(ctx, rawURL)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if len(data) > maxImportSize {
		return mcp.NewToolResultError(fmt.Sprintf("file too large: %d bytes (max %d)", len(data), maxImportSize)), nil
	}

	filename := req.GetString("filename", "")
	if filename == "" {
		filename = filenameFromURL(rawURL, detectedExt)
	}
	filename = sanitizeFilename(filename)

	if !library.UploadAllowed(filename) {
		return mcp.NewToolResultError(fmt.Sprintf("unsupported file extension: %s (allowed: pdf, epub, mobi)",
			strings.ToLower(filepath.Ext(filename)))), nil
	}

	b, err := s.lib.Upload(ctx, library.UploadRequest{
		Filename: filename,
		Title:    req.GetString("title", ""),
		Author:   req.GetString("author", ""),
		Field:    req.GetString("field", ""),
		Tags:     splitTags(req.GetString("tags", "")),
		Body:     bytes.NewReader(data),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	out, _ := json.Marshal(importResult{ID: b.ID, Path: b.Path})
	return mcp.NewToolResultText(string(out)), nil
}

// decodeDataURI parses a data:[<mediatype>][;base64],<data> URI.
func decodeDataURI(uri string) ([]byte, string, error) {
	rest := strings.TrimPrefix(uri, "data:")
	commaIdx := strings.Index(rest, ",")
	if commaIdx < 0 {
		return nil, "", fmt.Errorf("invalid data URI: missing comma separator")
	}

	meta := rest[:commaIdx]
	encoded := rest[commaIdx+1:]

	if !strings.Contains(meta, ";base64") {
		return nil, "", fmt.Errorf("only base64 data URIs are supported")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, "", fmt.Errorf("invalid base64 data: %w", err)
		}
	}

	mime := strings.Split(strings.TrimSuffix(meta, ";base64"), ";")[0]
	ext := mimeToExt[mime]
	if ext == "" {
		return nil, "", fmt.Errorf("unsupported MIME type in data URI: %s", mime)
	}
	return data, ext, nil
}

// fetchHTTP downloads a file from an HTTP/HTTPS URL with security checks.
func fetchHTTP(ctx context.Context, rawURL string) ([]byte, string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, "", fmt.Errorf("unsupported scheme: %s (only http/https)", parsed.Scheme)
	}

	if err := checkBlockedHost(parsed.Hostname()); err != nil {
		return nil, "", err
	}

	client := newFetchClient()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("invalid URL: %w", err)
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, "", fmt.Errorf("download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	limited := io.LimitReader(resp.Body, maxImportSize+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, "", fmt.Errorf("read body failed: %w", err)
	}
	if len(data) > maxImportSize {
		return nil, "", fmt.Errorf("file too large: exceeds %d bytes", maxImportSize)
	}

	ct := resp.Header.Get("Content-Type")
	ext := mimeToExt[strings.TrimSpace(strings.Split(ct, ";")[0])]
	return data, ext, nil
}

// newFetchClient returns a client whose connections are checked at dial
// time, after DNS resolution, so a name that re-resolves to an internal
// address between the pre-flight check and the request is still refused.
// Proxies are not used since they would hide the real destination.
func newFetchClient() *http.Client {
	dialer := &net.Dialer{
		Timeout: 30 * time.Second,
		Control: guardDial,
	}
	return &http.Client{
		Timeout: 2 * time.Minute,
		Transport: &http.Transport{
			Proxy:               nil,
			DialContext:         dialer.DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects (max 5)")
			}
			return checkBlockedHost(req.URL.Hostname())
		},
	}
}

// guardDial is a net.Dialer Control hook; address is the resolved "ip:port".
func guardDial(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("blocked host: %s", address)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return fmt.Errorf("blocked host: unresolved address %s", address)
	}
	return blockedIP(ip, host)
}

// checkBlockedHost rejects hosts that are, or resolve to, an internal
// address. Every resolved address is checked.
func checkBlockedHost(host string) error {
	if host == "metadata.google.internal" {
		return fmt.Errorf("blocked host: %s", host)
	}

	if ip := net.ParseIP(host); ip != nil {
		return blockedIP(ip, host)
	}
	ips, lookupErr := net.LookupIP(host)
	if lookupErr != nil || len(ips) == 0 {
		return nil //nolint:nilerr // let http.Client handle DNS failures
	}
	for _, ip := range ips {
		if err := blockedIP(ip, host); err != nil {
			return err
		}
	}
	return nil
}

// blockedIP refuses loopback, private, link-local (cloud metadata lives
// there), unspecified, and multicast addresses.
func blockedIP(ip net.IP, host string) error {
	switch {
	case ip.IsLoopback():
		return fmt.Errorf("blocked host: loopback address %s", host)
	case ip.IsPrivate():
		return fmt.Errorf("blocked host: private address %s", host)
	case ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast():
		return fmt.Errorf("blocked host: link-local address %s", host)
	case ip.IsUnspecified(), ip.IsMulticast():
		return fmt.Errorf("blocked host: non-unicast address %s", host)
	}
	return nil
}

// filenameFromURL tries to extract a filename from a URL, falling back to UUID.
func filenameFromURL(rawURL string, fallbackExt string) string {
	ext := fallbackExt
	if ext == "" {
		ext = ".bin"
	}
	if strings.HasPrefix(rawURL, "data:") {
		return uuid.New().String() + ext
	}

	parsed, err := url.Parse(rawURL)
	if err == nil {
		base, _ := url.PathUnescape(path.Base(parsed.Path))
		if base != "" && base != "." && base != "/" && strings.Contains(base, ".") {
			return base
		}
	}
	return uuid.New().String() + ext
}

// sanitizeFilename strips path separators and unsafe characters. Spaces,
// brackets, and commas survive since filenames carry title, author, and tags.
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	name = safeFilenameRe.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, ".")
	if name == "" {
		name = uuid.New().String()
	}
	return name
}

// Package indexer turns a field/file directory tree into a catalog.
//
// The tree is two levels deep: every immediate subdirectory of the root is a
// field, and every eligible file directly inside a field is a catalog entry.
// Files at the root and directories nested below a field are ignored.
package indexer

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/starford/folio/internal/catalog"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/parser"
)

// ErrRootNotFound is returned when the source directory does not exist.
var ErrRootNotFound = errors.New("source directory not found")

// AllowedExtensions lists the file extensions that become catalog entries.
var AllowedExtensions = []string{".pdf", ".epub", ".mobi", ".txt", ".doc", ".docx"}

// Eligible reports whether filename carries an allowed extension.
func Eligible(filename string) bool {
	ext := strings.ToLower(parser.Ext(filename))
	for _, a := range AllowedExtensions {
		if ext == a {
			return true
		}
	}
	return false
}

// Indexer scans library trees. The zero value is not usable; call New.
type Indexer struct {
	logger *slog.Logger
	now    func() time.Time
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithLogger sets the logger used for per-field and per-file diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(ix *Indexer) { ix.logger = l }
}

// WithClock overrides the wall clock used for generatedAt and addedDate.
func WithClock(now func() time.Time) Option {
	return func(ix *Indexer) { ix.now = now }
}

// New creates an Indexer.
func New(opts ...Option) *Indexer {
	ix := &Indexer{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// ScanDir scans the directory tree rooted at root.
func (ix *Indexer) ScanDir(root string) (*models.Catalog, error) {
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("indexer: %w: %s", ErrRootNotFound, root)
		}
		return nil, fmt.Errorf("indexer: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("indexer: %w: %s is not a directory", ErrRootNotFound, root)
	}
	return ix.Scan(os.DirFS(root))
}

// Scan walks fsys and returns a catalog of every eligible file. Fields are
// visited in directory-listing order and files within a field in ascending
// filename order; the sequence number embedded in each id runs across the
// whole scan.
func (ix *Indexer) Scan(fsys fs.FS) (*models.Catalog, error) {
	now := ix.now()
	added := now.Format(models.DateLayout)

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("indexer: read root: %w", err)
	}

	var fields []string
	for _, e := range entries {
		if isDir(fsys, e.Name(), e) {
			fields = append(fields, e.Name())
		}
	}
	ix.logger.Info("indexer: fields found", slog.Int("count", len(fields)))

	books := []models.Book{}
	seq := 1
	for _, dir := range fields {
		files, err := eligibleFiles(fsys, dir)
		if err != nil {
			ix.logger.Warn("indexer: read field failed", slog.String("field", dir), slog.String("error", err.Error()))
			continue
		}
		label := parser.FormatField(dir)
		ix.logger.Info("indexer: field", slog.String("field", label), slog.Int("files", len(files)))

		for _, f := range files {
			b := Record(dir, f.Name(), seq, added)
			b.Filesize = ix.filesize(fsys, path.Join(dir, f.Name()))
			books = append(books, b)
			ix.logger.Debug("indexer: indexed", slog.String("title", b.Title), slog.String("filesize", b.Filesize))
			seq++
		}
	}

	return catalog.Build(books, now), nil
}

// Record derives a catalog entry for filename inside fieldDir without
// touching the file system. Filesize is left as models.Unknown.
func Record(fieldDir, filename string, seq int, addedDate string) models.Book {
	res := parser.Parse(filename, fieldDir)
	return models.Book{
		ID:        BookID(fieldDir, seq),
		Title:     res.Title,
		Author:    res.Author,
		Field:     parser.FormatField(fieldDir),
		Tags:      res.Tags,
		Filesize:  models.Unknown,
		Type:      res.Type,
		Filename:  filename,
		Path:      path.Join(filepath.ToSlash(fieldDir), filename),
		AddedDate: addedDate,
	}
}

// BookID formats the id for the seq-th record of fieldDir.
func BookID(fieldDir string, seq int) string {
	return parser.SanitizeID(fieldDir) + "_" + strconv.Itoa(seq)
}

// FormatSize renders n bytes in the largest of B/KB/MB/GB that keeps the
// value below 1024, with one decimal place.
func FormatSize(n int64) string {
	units := []string{"B", "KB", "MB", "GB"}
	size := float64(n)
	unit := 0
	for size >= 1024 && unit < len(units)-1 {
		size /= 1024
		unit++
	}
	return strconv.FormatFloat(size, 'f', 1, 64) + " " + units[unit]
}

func (ix *Indexer) filesize(fsys fs.FS, name string) string {
	info, err := fs.Stat(fsys, name)
	if err != nil {
		ix.logger.Warn("indexer: size unavailable",
			slog.String("path", name),
			slog.String("error", err.Error()))
		return models.Unknown
	}
	return FormatSize(info.Size())
}

func eligibleFiles(fsys fs.FS, dir string) ([]fs.DirEntry, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	var out []fs.DirEntry
	for _, e := range entries {
		if isDir(fsys, path.Join(dir, e.Name()), e) || !Eligible(e.Name()) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out, nil
}

// isDir follows symlinks so that linked field directories count as fields.
func isDir(fsys fs.FS, name string, e fs.DirEntry) bool {
	if e.IsDir() {
		return true
	}
	if e.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := fs.Stat(fsys, name)
	return err == nil && info.IsDir()
}

// Generate scans root and writes the resulting catalog to out. Nothing is
// written when the scan fails.
func (ix *Indexer) Generate(root, out string) (*models.Catalog, error) {
	c, err := ix.ScanDir(root)
	if err != nil {
		return nil, err
	}
	if err := catalog.WriteFile(out, c); err != nil {
		return nil, fmt.Errorf("indexer: %w", err)
	}
	return c, nil
}

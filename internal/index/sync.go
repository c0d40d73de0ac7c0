package index

import (
	"fmt"
	"log/slog"

	"github.com/starford/folio/internal/indexer"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/storage"
)

// SyncResult lists the records a Sync pass touched.
type SyncResult struct {
	Added   []models.Book
	Updated []models.Book
	Removed []models.Book
}

// Changed reports whether the pass mutated the index.
func (r SyncResult) Changed() bool {
	return len(r.Added)+len(r.Updated)+len(r.Removed) > 0
}

// Sync scans the library and brings the index up to date:
//   - files not yet indexed are inserted with a fresh id
//   - indexed files whose size changed get their filesize refreshed
//   - records whose file vanished are deleted
//
// Metadata edited through the server (title, author, tags, ...) is kept for
// files that are still present.
func Sync(db BookIndex, store storage.Provider, ix *indexer.Indexer, logger *slog.Logger) (SyncResult, error) {
	var res SyncResult

	scanned, err := ix.Scan(store.FS())
	if err != nil {
		return res, fmt.Errorf("index: sync: %w", err)
	}
	existing, err := db.ListBooks()
	if err != nil {
		return res, fmt.Errorf("index: sync: %w", err)
	}

	byPath := make(map[string]models.Book, len(existing))
	for _, b := range existing {
		byPath[b.Path] = b
	}

	disk := make(map[string]struct{}, len(scanned.Books))
	for _, b := range scanned.Books {
		disk[b.Path] = struct{}{}

		cur, ok := byPath[b.Path]
		if !ok {
			b.ID = ""
			added, err := db.InsertBook(b)
			if err != nil {
				logger.Warn("sync: insert failed", slog.String("path", b.Path), slog.String("error", err.Error()))
				continue
			}
			logger.Debug("sync: indexed", slog.String("path", b.Path), slog.String("id", added.ID))
			res.Added = append(res.Added, added)
			continue
		}
		if cur.Filesize == b.Filesize || b.Filesize == models.Unknown {
			continue
		}
		cur.Filesize = b.Filesize
		if err := db.UpdateBook(cur); err != nil {
			logger.Warn("sync: update failed", slog.String("path", b.Path), slog.String("error", err.Error()))
			continue
		}
		res.Updated = append(res.Updated, cur)
	}

	// Remove stale entries.
	for _, b := range existing {
		if _, ok := disk[b.Path]; ok {
			continue
		}
		if err := db.DeleteBook(b.ID); err != nil {
			logger.Warn("sync: delete failed", slog.String("path", b.Path), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("sync: removed stale", slog.String("path", b.Path))
		res.Removed = append(res.Removed, b)
	}

	logger.Info("sync: done",
		slog.Int("added", len(res.Added)),
		slog.Int("updated", len(res.Updated)),
		slog.Int("removed", len(res.Removed)))
	return res, nil
}

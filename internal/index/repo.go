package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/indexer"
	"github.com/starford/folio/internal/models"
)

const bookColumns = `id, path, filename, title, author, field, tags, filesize, type, added_date`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(r rowScanner) (models.Book, error) {
	var b models.Book
	var tags, typ string
	if err := r.Scan(&b.ID, &b.Path, &b.Filename, &b.Title, &b.Author, &b.Field,
		&tags, &b.Filesize, &typ, &b.AddedDate); err != nil {
		return models.Book{}, err
	}
	b.Type = models.BookType(typ)
	if err := json.Unmarshal([]byte(tags), &b.Tags); err != nil || b.Tags == nil {
		b.Tags = []string{}
	}
	return b, nil
}

func marshalTags(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	data, _ := json.Marshal(tags)
	return string(data)
}

// InsertBook adds b to the index. When b.ID is empty an id is derived from
// the field directory of b.Path and the row's sequence number, so ids are
// never reused even after deletions. The stored record is returned.
func (db *DB) InsertBook(b models.Book) (models.Book, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return models.Book{}, fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	// Paths always contain a slash and ids never do, so the path is a safe
	// placeholder until the sequence number is known.
	id := b.ID
	if id == "" {
		id = b.Path
	}
	var res sql.Result
	if seq, ok := seqFromID(b.ID); ok && !seqTaken(tx, seq) {
		res, err = tx.Exec(`INSERT INTO books (seq, `+bookColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			seq, id, b.Path, b.Filename, b.Title, b.Author, b.Field, marshalTags(b.Tags), b.Filesize, string(b.Type), b.AddedDate)
	} else {
		res, err = tx.Exec(`INSERT INTO books (`+bookColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, b.Path, b.Filename, b.Title, b.Author, b.Field, marshalTags(b.Tags), b.Filesize, string(b.Type), b.AddedDate)
	}
	if err != nil {
		if IsUniqueViolation(err) {
			return models.Book{}, fmt.Errorf("index: insert %s: %w", b.Path, apperr.ErrAlreadyExists)
		}
		return models.Book{}, fmt.Errorf("index: insert book: %w", err)
	}

	if b.ID == "" {
		seq, err := res.LastInsertId()
		if err != nil {
			return models.Book{}, fmt.Errorf("index: last insert id: %w", err)
		}
		id = indexer.BookID(path.Dir(b.Path), int(seq))
		if _, err := tx.Exec(`UPDATE books SET id = ? WHERE seq = ?`, id, seq); err != nil {
			if IsUniqueViolation(err) {
				return models.Book{}, fmt.Errorf("index: assign id %s: %w", id, apperr.ErrConflict)
			}
			return models.Book{}, fmt.Errorf("index: assign id: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return models.Book{}, fmt.Errorf("index: commit: %w", err)
	}
	b.ID = id
	if b.Tags == nil {
		b.Tags = []string{}
	}
	return b, nil
}

// seqFromID extracts the trailing sequence number of an indexer id.
func seqFromID(id string) (int64, bool) {
	i := strings.LastIndexByte(id, '_')
	if i < 0 {
		return 0, false
	}
	n, err := strconv.ParseInt(id[i+1:], 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func seqTaken(tx *sql.Tx, seq int64) bool {
	var one int
	err := tx.QueryRow(`SELECT 1 FROM books WHERE seq = ?`, seq).Scan(&one)
	return err == nil
}

// UpdateBook replaces every stored attribute of the record with id b.ID.
func (db *DB) UpdateBook(b models.Book) error {
	res, err := db.conn.Exec(`
		UPDATE books SET
			path       = ?,
			filename   = ?,
			title      = ?,
			author     = ?,
			field      = ?,
			tags       = ?,
			filesize   = ?,
			type       = ?,
			added_date = ?,
			updated_at = ?
		WHERE id = ?
	`, b.Path, b.Filename, b.Title, b.Author, b.Field, marshalTags(b.Tags), b.Filesize, string(b.Type),
		b.AddedDate, time.Now().UTC(), b.ID)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("index: update %s: %w", b.ID, apperr.ErrAlreadyExists)
		}
		return fmt.Errorf("index: update book: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("index: update %s: %w", b.ID, apperr.ErrNotFound)
	}
	return nil
}

// DeleteBook removes the record with the given id.
func (db *DB) DeleteBook(id string) error {
	res, err := db.conn.Exec(`DELETE FROM books WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("index: delete book: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("index: delete %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// GetBook returns the record with the given id.
func (db *DB) GetBook(id string) (*models.Book, error) {
	return db.getBy("id", id)
}

// GetBookByPath returns the record stored for a library-relative path.
func (db *DB) GetBookByPath(p string) (*models.Book, error) {
	return db.getBy("path", p)
}

func (db *DB) getBy(column, value string) (*models.Book, error) {
	row := db.conn.QueryRow(`SELECT `+bookColumns+` FROM books WHERE `+column+` = ?`, value)
	b, err := scanBook(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("index: book %s: %w", value, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("index: get book: %w", err)
	}
	return &b, nil
}

// ListBooks returns every record in insertion order.
func (db *DB) ListBooks() ([]models.Book, error) {
	rows, err := db.conn.Query(`SELECT ` + bookColumns + ` FROM books ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("index: list books: %w", err)
	}
	defer rows.Close()

	out := []models.Book{}
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Count returns the number of indexed records.
func (db *DB) Count() (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT count(*) FROM books`).Scan(&n); err != nil {
		return 0, fmt.Errorf("index: count: %w", err)
	}
	return n, nil
}

// ImportCatalog seeds the index from a catalog document, keeping each
// record's id and edits. Records whose id or path is already indexed are
// skipped. It returns the number of records imported.
func (db *DB) ImportCatalog(c *models.Catalog) (int, error) {
	imported := 0
	for _, b := range c.Books {
		if b.Path == "" {
			continue
		}
		if _, err := db.InsertBook(b); err != nil {
			if errors.Is(err, apperr.ErrAlreadyExists) {
				continue
			}
			return imported, err
		}
		imported++
	}
	return imported, nil
}

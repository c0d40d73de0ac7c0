package index

import "github.com/starford/folio/internal/models"

// BookIndex defines the interface for book indexing operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type BookIndex interface {
	InsertBook(b models.Book) (models.Book, error)
	UpdateBook(b models.Book) error
	DeleteBook(id string) error
	GetBook(id string) (*models.Book, error)
	GetBookByPath(path string) (*models.Book, error)
	ListBooks() ([]models.Book, error)
	ImportCatalog(c *models.Catalog) (int, error)
	Count() (int, error)
	Close() error
}

// Verify *DB satisfies BookIndex at compile time.
var _ BookIndex = (*DB)(nil)

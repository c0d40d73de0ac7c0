// Package models defines the domain types for Folio.
package models

import "time"

// BookType classifies a catalog entry by its file extension.
type BookType string

// Book types.
const (
	TypeBook    BookType = "book"
	TypeNote    BookType = "note"
	TypeArticle BookType = "article"
)

// Valid reports whether t is one of the known book types.
func (t BookType) Valid() bool {
	switch t {
	case TypeBook, TypeNote, TypeArticle:
		return true
	}
	return false
}

// Unknown is the placeholder for an author or file size that could not be determined.
const Unknown = "Unknown"

// DateLayout is the calendar date format used for addedDate.
const DateLayout = "2006-01-02"

// Book is one catalog record.
type Book struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Author    string   `json:"author"`
	Field     string   `json:"field"`
	Tags      []string `json:"tags"`
	Filesize  string   `json:"filesize"`
	Type      BookType `json:"type"`
	Filename  string   `json:"filename"`
	Path      string   `json:"path"`
	AddedDate string   `json:"addedDate"`
}

// HasTag reports whether tag is one of the book's tags (exact match).
func (b *Book) HasTag(tag string) bool {
	for _, t := range b.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Catalog is the serialized output of an indexer run or a server export.
type Catalog struct {
	Books       []Book    `json:"books"`
	GeneratedAt time.Time `json:"generatedAt"`
	TotalBooks  int       `json:"totalBooks"`
	Fields      []string  `json:"fields"`
}

// Role is a user's permission level.
type Role string

// Roles, in increasing order of privilege.
const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r.rank() > 0
}

// AtLeast reports whether r grants at least the privileges of min.
func (r Role) AtLeast(min Role) bool {
	return r.rank() >= min.rank() && r.rank() > 0
}

func (r Role) rank() int {
	switch r {
	case RoleUser:
		return 1
	case RoleModerator:
		return 2
	case RoleAdmin:
		return 3
	}
	return 0
}

// User is an account in the approval store.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Approved  bool      `json:"approved"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// PendingUser is an account awaiting administrator approval.
type PendingUser struct {
	User
	RequestedAt time.Time `json:"requestedAt"`
}

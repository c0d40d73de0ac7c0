package api

import (
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/users"
)

// HealthResponse reports liveness and the active auth mode.
type HealthResponse struct {
	Status string `json:"status" example:"ok" validate:"required"`
	Mode   string `json:"mode" example:"session" validate:"required"`
	Books  int    `json:"books" example:"42"`
}

// FieldsResponse lists the distinct fields, sorted.
type FieldsResponse struct {
	Fields []string `json:"fields" validate:"required"`
}

// FacetsResponse lists the distinct fields and tags in first-seen order.
type FacetsResponse struct {
	Fields []string `json:"fields" validate:"required"`
	Tags   []string `json:"tags" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Books []models.Book `json:"books" validate:"required"`
	Count int           `json:"count" example:"3" validate:"required"`
}

// Book is the catalog record type (aliased from the domain layer).
type Book = models.Book

// RegisterRequest is the request body for creating an account.
type RegisterRequest = users.Registration

// LoginRequest is the request body for signing in.
type LoginRequest struct {
	Email    string `json:"email" example:"ada@example.com" validate:"required"`
	Password string `json:"password" example:"secret1" validate:"required"`
}

// SessionResponse is the issued session (aliased from the domain layer).
type SessionResponse = users.Session

// PasswordResetRequest asks for a reset token for an email.
type PasswordResetRequest struct {
	Email string `json:"email" example:"ada@example.com" validate:"required"`
}

// PasswordResetConfirmRequest sets a new password with a reset token.
type PasswordResetConfirmRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" example:"secret2" validate:"required"`
}

// RoleRequest changes a user's role.
type RoleRequest struct {
	Role models.Role `json:"role" example:"moderator" validate:"required"`
}

// StatusResponse is a bare acknowledgement.
type StatusResponse struct {
	Status string `json:"status" example:"ok" validate:"required"`
}

// UserListResponse wraps a list of accounts.
type UserListResponse struct {
	Users []models.User `json:"users" validate:"required"`
}

// PendingListResponse wraps the approval queue.
type PendingListResponse struct {
	Users []models.PendingUser `json:"users" validate:"required"`
}

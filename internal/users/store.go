// Package users implements the account, approval, and session store.
//
// New accounts start unapproved with the user role and wait in a pending
// queue until an administrator approves or rejects them. Sessions are
// HS256-signed JWTs; signing out revokes the token id until it expires.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/checksum"
	"github.com/starford/folio/internal/index"
	"github.com/starford/folio/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	username      TEXT NOT NULL UNIQUE COLLATE NOCASE,
	email         TEXT NOT NULL UNIQUE COLLATE NOCASE,
	password_hash TEXT NOT NULL,
	approved      INTEGER NOT NULL DEFAULT 0,
	role          TEXT NOT NULL DEFAULT 'user',
	created_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS pending_users (
	user_id      TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
	requested_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
	jti        TEXT PRIMARY KEY,
	expires_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS reset_tokens (
	token_hash TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	expires_at DATETIME NOT NULL,
	used       INTEGER NOT NULL DEFAULT 0
);
`

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

// ResetTokenTTL is how long a password reset token stays valid.
const ResetTokenTTL = time.Hour

// Store persists users in SQLite.
type Store struct {
	conn       *sql.DB
	secret     []byte
	sessionTTL time.Duration
	bcryptCost int
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithSessionTTL sets how long issued sessions remain valid.
func WithSessionTTL(d time.Duration) Option {
	return func(s *Store) { s.sessionTTL = d }
}

// WithBcryptCost overrides the password hashing cost.
func WithBcryptCost(cost int) Option {
	return func(s *Store) { s.bcryptCost = cost }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the store's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New applies the users schema to conn and returns a Store that signs
// sessions with secret.
func New(conn *sql.DB, secret []byte, opts ...Option) (*Store, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("users: empty signing secret: %w", apperr.ErrInvalidInput)
	}
	s := &Store{
		conn:       conn,
		secret:     secret,
		sessionTTL: 24 * time.Hour,
		bcryptCost: bcrypt.DefaultCost,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("users: apply schema: %w", err)
	}
	return s, nil
}

// Registration is a sign-up request.
type Registration struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Confirm  string `json:"confirmPassword"`
}

// Validate implements validation.Validatable.
func (r Registration) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required),
		validation.Field(&r.Username, validation.Required, validation.Length(3, 32)),
		validation.Field(&r.Email, validation.Required, is.EmailFormat),
		validation.Field(&r.Password, validation.Required, validation.Length(MinPasswordLength, 0)),
		validation.Field(&r.Confirm, validation.Required,
			validation.In(r.Password).Error("passwords do not match")),
	)
}

// Register creates an unapproved account and queues it for approval.
func (s *Store) Register(ctx context.Context, r Registration) (*models.User, error) {
	r.Name = strings.TrimSpace(r.Name)
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.TrimSpace(r.Email)
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}
	u := models.User{
		ID:        uuid.NewString(),
		Name:      r.Name,
		Username:  r.Username,
		Email:     r.Email,
		Role:      models.RoleUser,
		CreatedAt: s.now().UTC(),
	}
	if err := s.insert(ctx, u, r.Password, true); err != nil {
		return nil, err
	}
	s.logger.Info("users: registered", slog.String("id", u.ID), slog.String("username", u.Username))
	return &u, nil
}

func (s *Store) insert(ctx context.Context, u models.User, password string, pending bool) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("users: hash password: %w", err)
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("users: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (id, name, username, email, password_hash, approved, role, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, u.ID, u.Name, u.Username, u.Email, string(hash), u.Approved, string(u.Role), u.CreatedAt)
	if err != nil {
		if index.IsUniqueViolation(err) {
			return fmt.Errorf("users: email or username taken: %w", apperr.ErrAlreadyExists)
		}
		return fmt.Errorf("users: insert: %w", err)
	}
	if pending {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO pending_users (user_id, requested_at) VALUES (?, ?)`, u.ID, u.CreatedAt); err != nil {
			return fmt.Errorf("users: insert pending: %w", err)
		}
	}
	return tx.Commit()
}

// EnsureAdmin creates an approved administrator with the given credentials
// unless an account with that email already exists. It reports whether an
// account was created.
func (s *Store) EnsureAdmin(ctx context.Context, name, email, password string) (bool, error) {
	if _, _, err := s.byEmail(ctx, email); err == nil {
		return false, nil
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return false, err
	}
	if len([]rune(password)) < MinPasswordLength {
		return false, fmt.Errorf("users: admin password too short: %w", apperr.ErrInvalidInput)
	}
	username := email
	if i := strings.IndexByte(email, '@'); i > 0 {
		username = email[:i]
	}
	u := models.User{
		ID:        uuid.NewString(),
		Name:      name,
		Username:  username,
		Email:     email,
		Approved:  true,
		Role:      models.RoleAdmin,
		CreatedAt: s.now().UTC(),
	}
	if err := s.insert(ctx, u, password, false); err != nil {
		return false, err
	}
	s.logger.Info("users: bootstrap admin created", slog.String("email", email))
	return true, nil
}

// GetUser returns the account with the given id.
func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, _, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("users: %s: %w", id, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("users: get: %w", err)
	}
	return &u, nil
}

// RequestPasswordReset issues a single-use reset token for the account with
// the given email. An unknown email yields an empty token and no error so
// that callers cannot probe for accounts.
func (s *Store) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	u, _, err := s.byEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, apperr.ErrNotFound) {
		s.logger.Info("users: reset requested for unknown email")
		return "", nil
	}
	if err != nil {
		return "", err
	}
	token := uuid.NewString()
	expires := s.now().UTC().Add(ResetTokenTTL)
	if _, err := s.conn.ExecContext(ctx,
		`INSERT INTO reset_tokens (token_hash, user_id, expires_at) VALUES (?, ?, ?)`,
		checksum.Sum([]byte(token)), u.ID, expires); err != nil {
		return "", fmt.Errorf("users: store reset token: %w", err)
	}
	s.logger.Info("users: password reset issued", slog.String("user", u.ID), slog.Time("expires", expires))
	return token, nil
}

// ResetPassword sets a new password using a token from RequestPasswordReset.
func (s *Store) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := validation.Validate(newPassword, validation.Required, validation.Length(MinPasswordLength, 0)); err != nil {
		return fmt.Errorf("%w: password: %v", apperr.ErrInvalidInput, err)
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("users: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	var userID string
	var expires time.Time
	var used bool
	err = tx.QueryRowContext(ctx,
		`SELECT user_id, expires_at, used FROM reset_tokens WHERE token_hash = ?`,
		checksum.Sum([]byte(token))).Scan(&userID, &expires, &used)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("users: unknown reset token: %w", apperr.ErrInvalidInput)
		}
		return fmt.Errorf("users: load reset token: %w", err)
	}
	if used || !s.now().Before(expires) {
		return fmt.Errorf("users: reset token expired: %w", apperr.ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("users: hash password: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, string(hash), userID); err != nil {
		return fmt.Errorf("users: update password: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE reset_tokens SET used = 1 WHERE token_hash = ?`,
		checksum.Sum([]byte(token))); err != nil {
		return fmt.Errorf("users: consume reset token: %w", err)
	}
	return tx.Commit()
}

const userColumns = `id, name, username, email, approved, role, created_at, password_hash`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(r rowScanner) (models.User, string, error) {
	var u models.User
	var role, hash string
	if err := r.Scan(&u.ID, &u.Name, &u.Username, &u.Email, &u.Approved, &role, &u.CreatedAt, &hash); err != nil {
		return models.User{}, "", err
	}
	u.Role = models.Role(role)
	return u, hash, nil
}

func (s *Store) byEmail(ctx context.Context, email string) (models.User, string, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	u, hash, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, "", apperr.ErrNotFound
		}
		return models.User{}, "", fmt.Errorf("users: lookup: %w", err)
	}
	return u, hash, nil
}

package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/models"
)

// Session is a signed-in user's bearer token.
type Session struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      models.User `json:"user"`
}

// Claims are the JWT claims carried by a session token.
type Claims struct {
	Role models.Role `json:"role"`
	jwt.RegisteredClaims
}

// SignIn checks the credentials and issues a session. Unknown emails and
// wrong passwords both yield ErrUnauthorized; unapproved accounts yield
// ErrPendingApproval.
func (s *Store) SignIn(ctx context.Context, email, password string) (*Session, error) {
	u, hash, err := s.byEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, fmt.Errorf("users: sign in: %w", apperr.ErrUnauthorized)
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, fmt.Errorf("users: sign in: %w", apperr.ErrUnauthorized)
	}
	if !u.Approved {
		return nil, fmt.Errorf("users: sign in: %w", apperr.ErrPendingApproval)
	}

	now := s.now().UTC()
	exp := now.Add(s.sessionTTL)
	claims := Claims{
		Role: u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("users: sign token: %w", err)
	}
	s.logger.Info("users: signed in", slog.String("user", u.ID))
	return &Session{Token: token, ExpiresAt: exp, User: u}, nil
}

// parse verifies the token signature and expiry against the store clock.
func (s *Store) parse(token string) (*Claims, error) {
	var claims Claims
	p := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if _, err := p.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}); err != nil {
		return nil, fmt.Errorf("users: parse token: %w", apperr.ErrUnauthorized)
	}
	if claims.ExpiresAt == nil || !s.now().Before(claims.ExpiresAt.Time) {
		return nil, fmt.Errorf("users: token expired: %w", apperr.ErrUnauthorized)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("users: token incomplete: %w", apperr.ErrUnauthorized)
	}
	return &claims, nil
}

// Authenticate resolves a session token to its user. The user's current
// role is read from the store, so role changes apply to existing sessions.
func (s *Store) Authenticate(ctx context.Context, token string) (*models.User, error) {
	claims, err := s.parse(token)
	if err != nil {
		return nil, err
	}
	var revoked int
	err = s.conn.QueryRowContext(ctx, `SELECT count(*) FROM revoked_tokens WHERE jti = ?`, claims.ID).Scan(&revoked)
	if err != nil {
		return nil, fmt.Errorf("users: check revocation: %w", err)
	}
	if revoked > 0 {
		return nil, fmt.Errorf("users: token revoked: %w", apperr.ErrUnauthorized)
	}
	u, err := s.GetUser(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, fmt.Errorf("users: unknown subject: %w", apperr.ErrUnauthorized)
		}
		return nil, err
	}
	if !u.Approved {
		return nil, fmt.Errorf("users: authenticate: %w", apperr.ErrPendingApproval)
	}
	return u, nil
}

// SignOut revokes token until it would have expired anyway.
func (s *Store) SignOut(ctx context.Context, token string) error {
	claims, err := s.parse(token)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM revoked_tokens WHERE expires_at <= ?`, now); err != nil {
		s.logger.Warn("users: prune revoked tokens", slog.String("error", err.Error()))
	}
	if _, err := s.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO revoked_tokens (jti, expires_at) VALUES (?, ?)`,
		claims.ID, claims.ExpiresAt.Time.UTC()); err != nil {
		return fmt.Errorf("users: revoke: %w", err)
	}
	s.logger.Info("users: signed out", slog.String("user", claims.Subject))
	return nil
}

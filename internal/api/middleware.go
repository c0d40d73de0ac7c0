// Package api implements the Folio REST API using chi.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/checksum"
	"github.com/starford/folio/internal/models"
)

// AuthMode selects how requests are authenticated.
type AuthMode string

// Auth modes.
const (
	// AuthDisabled lets every request act as an administrator.
	AuthDisabled AuthMode = "disabled"
	// AuthToken accepts a single static bearer token with administrator rights.
	AuthToken AuthMode = "token"
	// AuthSession accepts JWT sessions issued by /auth/login.
	AuthSession AuthMode = "session"
)

// Valid reports whether m is a known mode.
func (m AuthMode) Valid() bool {
	switch m {
	case AuthDisabled, AuthToken, AuthSession:
		return true
	}
	return false
}

// SessionAuthenticator resolves a session token to its user.
type SessionAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

// localAdmin is the principal used when no real identity is available.
var localAdmin = models.User{
	ID:       "local",
	Name:     "Local administrator",
	Username: "admin",
	Approved: true,
	Role:     models.RoleAdmin,
}

type principalKey struct{}

// Principal returns the user attached to the request context, if any.
func Principal(ctx context.Context) (*models.User, bool) {
	u, ok := ctx.Value(principalKey{}).(*models.User)
	return u, ok
}

// WithPrincipal returns a copy of ctx carrying u.
func WithPrincipal(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, principalKey{}, u)
}

// bearerToken extracts the request's bearer token. EventSource clients cannot
// set headers, so the access_token query parameter is accepted as well.
func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return r.URL.Query().Get("access_token")
}

// AuthMiddleware returns middleware that resolves the request's principal.
// Requests without credentials pass through anonymously so that public
// routes keep working; RequireRole enforces access. Credentials that are
// present but invalid are rejected immediately.
func AuthMiddleware(mode AuthMode, token string, sessions SessionAuthenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if mode == AuthDisabled {
				u := localAdmin
				next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), &u)))
				return
			}
			raw := bearerToken(r)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			u, err := resolve(r.Context(), mode, token, sessions, raw)
			if err != nil {
				writeError(w, "authenticate", err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), u)))
		})
	}
}

func resolve(ctx context.Context, mode AuthMode, token string, sessions SessionAuthenticator, raw string) (*models.User, error) {
	switch mode {
	case AuthToken:
		if token == "" || !checksum.Equal(raw, token) {
			return nil, fmt.Errorf("api: bad token: %w", apperr.ErrUnauthorized)
		}
		u := localAdmin
		return &u, nil
	case AuthSession:
		if sessions == nil {
			return nil, fmt.Errorf("api: no session store: %w", apperr.ErrUnauthorized)
		}
		u, err := sessions.Authenticate(ctx, raw)
		if err != nil {
			if errors.Is(err, apperr.ErrPendingApproval) {
				return nil, err
			}
			// Malformed, expired, and revoked tokens all read as 401.
			if !errors.Is(err, apperr.ErrUnauthorized) {
				return nil, fmt.Errorf("api: %v: %w", err, apperr.ErrUnauthorized)
			}
			return nil, err
		}
		return u, nil
	}
	return nil, fmt.Errorf("api: auth mode %q: %w", mode, apperr.ErrUnauthorized)
}

// RequireRole returns middleware that admits only principals with at least
// the given role.
func RequireRole(min models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := Principal(r.Context())
			if !ok {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			if !u.Role.AtLeast(min) {
				writeJSON(w, http.StatusForbidden, errorBody("forbidden"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NoCache marks responses as uncacheable.
func NoCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Expires", time.Unix(0, 0).UTC().Format(http.TimeFormat))
		next.ServeHTTP(w, r)
	})
}

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/folio/internal/library"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/users"
)

// Options configures NewRouter.
type Options struct {
	// Mode selects the authentication scheme; empty means AuthDisabled.
	Mode AuthMode
	// Token is the static bearer token for AuthToken.
	Token string
	// Users backs registration, sessions, and user administration. Required
	// for AuthSession; the account routes are not mounted without it.
	Users *users.Store
	// LoginLimiter, if non-nil, throttles /auth/login per client IP.
	LoginLimiter *IPLimiter
	// Events, if non-nil, is mounted at GET /events.
	Events http.Handler
	// MaxUploadBytes caps multipart upload bodies.
	MaxUploadBytes int64
	// ResetNotifier receives issued password reset tokens for delivery.
	ResetNotifier func(email, token string)
}

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(svc *library.Service, opts Options) chi.Router {
	if opts.Mode == "" {
		opts.Mode = AuthDisabled
	}
	h := NewHandler(svc, opts)

	var sessions SessionAuthenticator
	if opts.Users != nil {
		sessions = opts.Users
	}

	r := chi.NewRouter()
	r.Use(AuthMiddleware(opts.Mode, opts.Token, sessions))

	r.Get("/health", h.Health)

	// Accounts.
	if opts.Users != nil {
		ah := NewAuthHandler(opts.Users, opts.ResetNotifier)
		r.Route("/auth", func(r chi.Router) {
			r.Use(NoCache)
			r.Post("/register", ah.Register)
			r.With(limit(opts.LoginLimiter)).Post("/login", ah.Login)
			r.Post("/logout", ah.Logout)
			r.Post("/password-reset", ah.RequestPasswordReset)
			r.Post("/password-reset/confirm", ah.ConfirmPasswordReset)
		})
		r.Route("/admin/users", func(r chi.Router) {
			r.Use(RequireRole(models.RoleAdmin), NoCache)
			r.Get("/", ah.ListUsers)
			r.Get("/pending", ah.ListPending)
			r.Post("/{id}/approve", ah.Approve)
			r.Delete("/{id}", ah.Reject)
			r.Put("/{id}/role", ah.ChangeRole)
		})
	}

	r.Group(func(r chi.Router) {
		r.Use(RequireRole(models.RoleUser))
		r.With(NoCache).Get("/me", h.Me)

		// Catalog reads.
		r.Get("/metadata", h.Metadata)
		r.Get("/fields", h.Fields)
		r.Get("/facets", h.Facets)
		r.Get("/search", h.Search)
		r.Get("/books/{id}", h.GetBook)
		r.Get("/books/{id}/download", h.Download)
		r.Get("/books/{id}/view", h.View)

		// SSE endpoint (protected by the same auth middleware).
		if opts.Events != nil {
			r.Get("/events", opts.Events.ServeHTTP)
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(RequireRole(models.RoleModerator))
		r.Post("/books", h.Upload)
		r.Put("/books/{id}", h.UpdateBook)
	})

	r.With(RequireRole(models.RoleAdmin)).Delete("/books/{id}", h.DeleteBook)

	return r
}

func limit(l *IPLimiter) func(http.Handler) http.Handler {
	if l == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return l.Middleware
}

package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/users"
)

// AuthHandler holds the account and user administration handlers.
type AuthHandler struct {
	users  *users.Store
	notify func(email, token string)
}

// NewAuthHandler creates an AuthHandler. notify receives issued password
// reset tokens; when nil, issuance is only logged.
func NewAuthHandler(store *users.Store, notify func(email, token string)) *AuthHandler {
	if notify == nil {
		notify = func(email, _ string) {
			slog.Info("password reset token issued; no delivery configured", slog.String("email", email))
		}
	}
	return &AuthHandler{users: store, notify: notify}
}

// Register handles POST /api/auth/register.
//
//	@Summary		Create an account awaiting approval
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		RegisterRequest	true	"Account details"
//	@Success		201		{object}	models.User
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Router			/auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	u, err := h.users.Register(r.Context(), req)
	if err != nil {
		writeError(w, "register", err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// Login handles POST /api/auth/login.
//
//	@Summary		Sign in and obtain a session token
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		LoginRequest	true	"Credentials"
//	@Success		200		{object}	SessionResponse
//	@Failure		401		{object}	errResponse
//	@Failure		403		{object}	errResponse	"Account pending approval"
//	@Failure		429		{object}	errResponse
//	@Router			/auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	sess, err := h.users.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, "login", err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// Logout handles POST /api/auth/logout.
//
//	@Summary		Revoke the current session token
//	@Tags			auth
//	@Success		204
//	@Failure		401	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
		return
	}
	if err := h.users.SignOut(r.Context(), token); err != nil {
		writeError(w, "logout", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RequestPasswordReset handles POST /api/auth/password-reset.
//
//	@Summary		Request a password reset token
//	@Description	Always answers 202 so that callers cannot probe for accounts.
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PasswordResetRequest	true	"Account email"
//	@Success		202		{object}	StatusResponse
//	@Router			/auth/password-reset [post]
func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	token, err := h.users.RequestPasswordReset(r.Context(), req.Email)
	if err != nil {
		writeError(w, "password reset", err)
		return
	}
	if token != "" {
		h.notify(req.Email, token)
	}
	writeJSON(w, http.StatusAccepted, StatusResponse{Status: "ok"})
}

// ConfirmPasswordReset handles POST /api/auth/password-reset/confirm.
//
//	@Summary		Set a new password with a reset token
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PasswordResetConfirmRequest	true	"Token and new password"
//	@Success		200		{object}	StatusResponse
//	@Failure		400		{object}	errResponse
//	@Router			/auth/password-reset/confirm [post]
func (h *AuthHandler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetConfirmRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := h.users.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		writeError(w, "confirm password reset", err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// ListPending handles GET /api/admin/users/pending.
//
//	@Summary		Accounts awaiting approval, newest first
//	@Tags			admin
//	@Produce		json
//	@Success		200	{object}	PendingListResponse
//	@Security		BearerAuth
//	@Router			/admin/users/pending [get]
func (h *AuthHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	list, err := h.users.ListPending(r.Context())
	if err != nil {
		writeError(w, "list pending users", err)
		return
	}
	if list == nil {
		list = []models.PendingUser{}
	}
	writeJSON(w, http.StatusOK, PendingListResponse{Users: list})
}

// ListUsers handles GET /api/admin/users.
//
//	@Summary		Approved accounts, newest first
//	@Tags			admin
//	@Produce		json
//	@Param			q	query		string	false	"Filter by name, username, or email"
//	@Success		200	{object}	UserListResponse
//	@Security		BearerAuth
//	@Router			/admin/users [get]
func (h *AuthHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	list, err := h.users.ListActive(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, "list users", err)
		return
	}
	if list == nil {
		list = []models.User{}
	}
	writeJSON(w, http.StatusOK, UserListResponse{Users: list})
}

// Approve handles POST /api/admin/users/{id}/approve.
//
//	@Summary		Approve a pending account
//	@Tags			admin
//	@Param			id	path	string	true	"User id"
//	@Success		204
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/admin/users/{id}/approve [post]
func (h *AuthHandler) Approve(w http.ResponseWriter, r *http.Request) {
	if err := h.users.Approve(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, "approve user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reject handles DELETE /api/admin/users/{id}.
//
//	@Summary		Reject and delete an account
//	@Tags			admin
//	@Param			id	path	string	true	"User id"
//	@Success		204
//	@Failure		403	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/admin/users/{id} [delete]
func (h *AuthHandler) Reject(w http.ResponseWriter, r *http.Request) {
	if err := h.users.Reject(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, "reject user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ChangeRole handles PUT /api/admin/users/{id}/role.
//
//	@Summary		Change an account's role
//	@Tags			admin
//	@Accept			json
//	@Param			id		path	string		true	"User id"
//	@Param			body	body	RoleRequest	true	"New role (user or moderator)"
//	@Success		204
//	@Failure		400	{object}	errResponse
//	@Failure		403	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/admin/users/{id}/role [put]
func (h *AuthHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	var req RoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := h.users.ChangeRole(r.Context(), chi.URLParam(r, "id"), req.Role); err != nil {
		writeError(w, "change role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/folio/internal/library"
	"github.com/starford/folio/internal/query"
)

// Handler holds the catalog route handlers.
type Handler struct {
	svc       *library.Service
	mode      AuthMode
	maxUpload int64
}

// NewHandler creates a new Handler.
func NewHandler(svc *library.Service, opts Options) *Handler {
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}
	return &Handler{svc: svc, mode: opts.Mode, maxUpload: maxUpload}
}

// Health handles GET /api/health.
//
//	@Summary		Service health and auth mode
//	@Tags			system
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Router			/health [get]
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Mode:   string(h.mode),
		Books:  h.svc.Engine().Len(),
	})
}

// Me handles GET /api/me.
//
//	@Summary		Current user
//	@Tags			auth
//	@Produce		json
//	@Success		200	{object}	models.User
//	@Failure		401	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/me [get]
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u, _ := Principal(r.Context())
	writeJSON(w, http.StatusOK, u)
}

// Metadata handles GET /api/metadata.
//
//	@Summary		The full catalog document
//	@Tags			catalog
//	@Produce		json
//	@Success		200	{object}	models.Catalog
//	@Security		BearerAuth
//	@Router			/metadata [get]
func (h *Handler) Metadata(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Catalog())
}

// Fields handles GET /api/fields.
//
//	@Summary		Distinct fields, sorted
//	@Tags			catalog
//	@Produce		json
//	@Success		200	{object}	FieldsResponse
//	@Security		BearerAuth
//	@Router			/fields [get]
func (h *Handler) Fields(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, FieldsResponse{Fields: h.svc.Fields()})
}

// Facets handles GET /api/facets.
//
//	@Summary		Distinct fields and tags in catalog order
//	@Tags			catalog
//	@Produce		json
//	@Success		200	{object}	FacetsResponse
//	@Security		BearerAuth
//	@Router			/facets [get]
func (h *Handler) Facets(w http.ResponseWriter, _ *http.Request) {
	f := h.svc.Facets()
	writeJSON(w, http.StatusOK, FacetsResponse{Fields: f.Fields, Tags: f.Tags})
}

// Search handles GET /api/search.
//
//	@Summary		Filter the catalog
//	@Description	Term matches title, author, or any tag (case-insensitive substring), field is exact, tags match if any is present.
//	@Tags			catalog
//	@Produce		json
//	@Param			q		query		string		false	"Search term"
//	@Param			field	query		string		false	"Exact field"
//	@Param			tag		query		[]string	false	"Active tags (repeatable)"
//	@Param			limit	query		int			false	"Max results (0 = all)"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	var tags []string
	for _, v := range q["tag"] {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
	}

	state := query.NewState(q.Get("q"), q.Get("field"), tags...)
	books := h.svc.Search(state, limit)
	writeJSON(w, http.StatusOK, SearchResponse{Books: books, Count: len(books)})
}

// GetBook handles GET /api/books/{id}.
//
//	@Summary		Get a single record
//	@Tags			books
//	@Produce		json
//	@Param			id	path		string	true	"Book id"
//	@Success		200	{object}	Book
//	@Header			200	{string}	ETag	"Record entity tag"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/books/{id} [get]
func (h *Handler) GetBook(w http.ResponseWriter, r *http.Request) {
	b, etag, err := h.svc.GetBook(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get book", err)
		return
	}
	w.Header().Set("ETag", `"`+etag+`"`)
	writeJSON(w, http.StatusOK, b)
}

// UpdateBook handles PUT /api/books/{id}.
//
//	@Summary		Edit a record
//	@Description	Absent attributes are kept. Changing the field moves the file. Supports optimistic concurrency via If-Match.
//	@Tags			books
//	@Accept			json
//	@Produce		json
//	@Param			id			path		string			true	"Book id"
//	@Param			If-Match	header		string			false	"Entity tag from GET"
//	@Param			body		body		library.Patch	true	"Attributes to change"
//	@Success		200			{object}	Book
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/books/{id} [put]
func (h *Handler) UpdateBook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var p library.Patch
	if err := decodeJSON(r, &p); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	b, err := h.svc.Update(r.Context(), id, p, ifMatch)
	if err != nil {
		writeError(w, "update book", err)
		return
	}
	w.Header().Set("ETag", `"`+library.ETag(b)+`"`)
	writeJSON(w, http.StatusOK, b)
}

// DeleteBook handles DELETE /api/books/{id}.
//
//	@Summary		Delete a record and its file
//	@Tags			books
//	@Param			id	path	string	true	"Book id"
//	@Success		204
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/books/{id} [delete]
func (h *Handler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeError(w, "delete book", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

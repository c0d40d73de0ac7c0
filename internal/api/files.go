package api

import (
	"errors"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/folio/internal/library"
	"github.com/starford/folio/internal/models"
)

const (
	defaultMaxUpload = 200 << 20 // 200 MB
	// multipartOverhead leaves room for the form's text fields and boundaries.
	multipartOverhead = 1 << 20
	multipartMemory   = 32 << 20
)

// contentTypes covers book formats missing from most system MIME tables.
var contentTypes = map[string]string{
	".pdf":  "application/pdf",
	".epub": "application/epub+zip",
	".mobi": "application/x-mobipocket-ebook",
	".txt":  "text/plain; charset=utf-8",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

func contentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// Download handles GET /api/books/{id}/download.
//
//	@Summary		Download a book file
//	@Tags			books
//	@Produce		octet-stream
//	@Param			id	path	string	true	"Book id"
//	@Success		200
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/books/{id}/download [get]
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	h.serveFile(w, r, "attachment")
}

// View handles GET /api/books/{id}/view.
//
//	@Summary		Open a book file inline
//	@Tags			books
//	@Produce		octet-stream
//	@Param			id	path	string	true	"Book id"
//	@Success		200
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/books/{id}/view [get]
func (h *Handler) View(w http.ResponseWriter, r *http.Request) {
	h.serveFile(w, r, "inline")
}

func (h *Handler) serveFile(w http.ResponseWriter, r *http.Request, disposition string) {
	rc, info, b, err := h.svc.OpenFile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "open book file", err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType(b.Filename))
	w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": b.Filename}))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, b.Filename, info.ModTime(), rc)
}

// Upload handles POST /api/books (multipart/form-data).
//
//	@Summary		Upload a new book
//	@Description	Accepts .pdf, .epub and .mobi files whose content matches the extension.
//	@Tags			books
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file	formData	file	true	"Book file"
//	@Param			title	formData	string	true	"Title"
//	@Param			author	formData	string	true	"Author"
//	@Param			field	formData	string	true	"Field of study"
//	@Param			tags	formData	string	false	"Comma-separated tags"
//	@Param			type	formData	string	false	"book, note, or article"
//	@Success		201		{object}	Book
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		413		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/books [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartOverhead)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("file too large"))
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody("invalid multipart form"))
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck // temp files only

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	var tags []string
	for _, v := range r.MultipartForm.Value["tags"] {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
	}

	b, err := h.svc.Upload(r.Context(), library.UploadRequest{
		Filename: header.Filename,
		Title:    r.FormValue("title"),
		Author:   r.FormValue("author"),
		Field:    r.FormValue("field"),
		Tags:     tags,
		Type:     models.BookType(strings.TrimSpace(r.FormValue("type"))),
		Body:     file,
	})
	if err != nil {
		writeError(w, "upload book", err)
		return
	}
	w.Header().Set("Location", "/api/books/"+b.ID)
	writeJSON(w, http.StatusCreated, b)
}

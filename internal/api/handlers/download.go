package handlers

import (
	"errors"
	"fmt"
	"html/template"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/frodejac/writeups/internal/auth"
	"github.com/frodejac/writeups/internal/metadata"
	"github.com/frodejac/writeups/internal/uploads"
	"github.com/gorilla/mux"
)

type DownloadHandler struct {
	BaseHandler
	uploads *uploads.UploadService
}

func NewDownloadHandler(sessions *auth.SessionService, templates *template.Template, uploads *uploads.UploadService) *DownloadHandler {
	return &DownloadHandler{
		BaseHandler: BaseHandler{
			sessions:  sessions,
			templates: templates,
		},
		uploads: uploads,
	}
}

// HandleGetFile serves a stored writeup for viewing in the browser.
func (h *DownloadHandler) HandleGetFile(w http.ResponseWriter, r *http.Request) {
	filename := mux.Vars(r)["filename"]
	obj, err := h.uploads.Open(r.Context(), filename)
	if err != nil {
		if errors.Is(err, uploads.ErrNotFound) {
			writeError(w, http.StatusNotFound, "File not found")
			return
		}
		h.internalError(w, r, "Failed to open file", err)
		return
	}
	defer obj.Close()

	contentType := mime.TypeByExtension(filepath.Ext(obj.Name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", obj.Name))
	http.ServeContent(w, r, obj.Name, obj.ModTime, obj)
}

// HandleListRecords returns every record in upload order.
func (h *DownloadHandler) HandleListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := h.uploads.List(r.Context())
	if err != nil {
		h.internalError(w, r, "Failed to list writeups", err)
		return
	}
	if records == nil {
		records = []metadata.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

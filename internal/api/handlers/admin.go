package handlers

import (
	"errors"
	"html/template"
	"net/http"

	"github.com/frodejac/writeups/internal/auth"
	"github.com/frodejac/writeups/internal/uploads"
	"github.com/gorilla/mux"
)

type AdminHandler struct {
	BaseHandler
	uploads *uploads.UploadService
}

type deleteResponse struct {
	Success bool `json:"success"`
}

func NewAdminHandler(sessions *auth.SessionService, templates *template.Template, uploads *uploads.UploadService) *AdminHandler {
	return &AdminHandler{
		BaseHandler: BaseHandler{
			sessions:  sessions,
			templates: templates,
		},
		uploads: uploads,
	}
}

func (h *AdminHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	filename := mux.Vars(r)["filename"]
	if err := h.uploads.Delete(r.Context(), h.principal(r), filename); err != nil {
		if errors.Is(err, uploads.ErrUnauthorized) {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		h.internalError(w, r, "Failed to delete writeup", err)
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{Success: true})
}

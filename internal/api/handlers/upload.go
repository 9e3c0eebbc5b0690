package handlers

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/frodejac/writeups/internal/auth"
	"github.com/frodejac/writeups/internal/uploads"
	"go.uber.org/zap"
)

const (
	// Room for the multipart envelope and the title/description fields.
	formOverhead = 1 << 20
	maxMemory    = 10 << 20
)

type UploadHandler struct {
	BaseHandler
	uploads *uploads.UploadService
}

type uploadResponse struct {
	Success  bool   `json:"success"`
	Filename string `json:"filename"`
}

func NewUploadHandler(sessions *auth.SessionService, templates *template.Template, uploads *uploads.UploadService) *UploadHandler {
	return &UploadHandler{
		BaseHandler: BaseHandler{
			sessions:  sessions,
			templates: templates,
		},
		uploads: uploads,
	}
}

func (h *UploadHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	principal := h.principal(r)
	if !principal.Can(auth.CapManageUploads) {
		h.writeUploadError(w, r, uploads.ErrUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.uploads.MaxFileSize()+formOverhead)
	in, err := parseUpload(r)
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}
	if err != nil {
		h.writeUploadError(w, r, err)
		return
	}
	if closer, ok := in.Body.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	record, err := h.uploads.Upload(r.Context(), principal, in)
	if err != nil {
		h.writeUploadError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{Success: true, Filename: record.Filename})
}

// parseUpload reads the multipart form of r into an Upload. A form without a
// file part yields an Upload with a nil Body; a file input left empty by the
// browser arrives as a plain value and yields an empty Filename.
func parseUpload(r *http.Request) (*uploads.Upload, error) {
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return nil, uploads.ErrTooLarge
		}
		// Not multipart, empty, truncated or malformed: no usable file
		zap.S().Debugw("Unreadable upload form", "error", err, "request_id", requestId(r))
		return nil, uploads.ErrNoFile
	}
	in := &uploads.Upload{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
	}
	file, header, err := r.FormFile("file")
	switch {
	case err == nil:
		in.Filename = header.Filename
		in.Size = header.Size
		in.Body = file
	case errors.Is(err, http.ErrMissingFile):
		if _, ok := r.MultipartForm.Value["file"]; ok {
			in.Body = strings.NewReader("")
		}
	default:
		return nil, fmt.Errorf("failed to read upload file: %w", err)
	}
	return in, nil
}

func (h *UploadHandler) writeUploadError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, uploads.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, uploads.ErrNoFile):
		writeError(w, http.StatusBadRequest, "No file provided")
	case errors.Is(err, uploads.ErrNoSelection):
		writeError(w, http.StatusBadRequest, "No file selected")
	case errors.Is(err, uploads.ErrDisallowedType):
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Only %s files are allowed", describeExtensions(h.uploads.AllowedExtensions())))
	case errors.Is(err, uploads.ErrTooLarge):
		writeError(w, http.StatusBadRequest, fmt.Sprintf("File too large (max %s)", humanize.IBytes(uint64(h.uploads.MaxFileSize()))))
	default:
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("File too large (max %s)", humanize.IBytes(uint64(h.uploads.MaxFileSize()))))
			return
		}
		h.internalError(w, r, "Upload failed", err)
		return
	}
	zap.S().Infow("Upload rejected", "reason", err.Error(), "request_id", requestId(r))
}

// describeExtensions turns [".pdf", ".md"] into "PDF/MD".
func describeExtensions(exts []string) string {
	names := make([]string, 0, len(exts))
	for _, ext := range exts {
		names = append(names, strings.ToUpper(strings.TrimPrefix(ext, ".")))
	}
	return strings.Join(names, "/")
}

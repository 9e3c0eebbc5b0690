package handlers

import (
	"html/template"
	"net/http"
	"path"
	"sort"

	"github.com/frodejac/writeups/internal/auth"
	"github.com/frodejac/writeups/internal/metadata"
	"github.com/frodejac/writeups/internal/uploads"
	"go.uber.org/zap"
)

type HomeHandler struct {
	BaseHandler
	staticDir http.Dir
	uploads   *uploads.UploadService
}

type CtfData struct {
	IsAdmin     bool
	Records     []metadata.Record
	MaxFileSize int64
}

func NewHomeHandler(staticPath string, sessions *auth.SessionService, templates *template.Template, uploads *uploads.UploadService) *HomeHandler {
	return &HomeHandler{
		BaseHandler: BaseHandler{
			sessions:  sessions,
			templates: templates,
		},
		staticDir: http.Dir(staticPath),
		uploads:   uploads,
	}
}

func (h *HomeHandler) HandleHome(w http.ResponseWriter, r *http.Request) {
	h.serveStatic(w, r, "/index.html")
}

// HandleStatic serves regular files below the static directory. Directories
// are never listed.
func (h *HomeHandler) HandleStatic(w http.ResponseWriter, r *http.Request) {
	h.serveStatic(w, r, path.Clean("/"+r.URL.Path))
}

func (h *HomeHandler) serveStatic(w http.ResponseWriter, r *http.Request, name string) {
	f, err := h.staticDir.Open(name)
	if err != nil {
		h.render404(w)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		h.render404(w)
		return
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func (h *HomeHandler) HandleCtf(w http.ResponseWriter, r *http.Request) {
	records, err := h.uploads.List(r.Context())
	if err != nil {
		zap.S().Errorw("Failed to list writeups", "error", err, "request_id", requestId(r))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	h.renderTemplate(w, "ctf.html", CtfData{
		IsAdmin:     h.principal(r).IsAdmin(),
		Records:     newestFirst(records),
		MaxFileSize: h.uploads.MaxFileSize(),
	})
}

func (h *HomeHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// newestFirst returns records ordered by upload date, latest first. Records
// with equal dates keep the reverse of their stored order.
func newestFirst(records []metadata.Record) []metadata.Record {
	out := make([]metadata.Record, len(records))
	for i, record := range records {
		out[len(records)-1-i] = record
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UploadDate.After(out[j].UploadDate)
	})
	return out
}

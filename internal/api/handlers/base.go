package handlers

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/frodejac/writeups/internal/auth"
	"go.uber.org/zap"
)

type BaseHandler struct {
	sessions  *auth.SessionService
	templates *template.Template
}

// LoadTemplates parses every *.html file in dir with the helpers the pages use.
func LoadTemplates(dir string) (*template.Template, error) {
	templates, err := template.New("").Funcs(template.FuncMap{
		"bytes": func(n int64) string {
			if n < 0 {
				n = 0
			}
			return humanize.IBytes(uint64(n))
		},
		"date": func(t time.Time) string {
			return t.UTC().Format("2006-01-02 15:04")
		},
		"ago": humanize.Time,
	}).ParseGlob(filepath.Join(dir, "*.html"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return templates, nil
}

func (b *BaseHandler) renderTemplate(w http.ResponseWriter, name string, data interface{}) {
	// Execute the template
	if err := b.templates.ExecuteTemplate(w, name, data); err != nil {
		zap.S().Errorw("Failed to render template", "template", name, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func (b *BaseHandler) render404(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	b.renderTemplate(w, "404.html", nil)
}

// principal returns the caller of r, or nil when anonymous. Session store
// failures are logged and treated as anonymous.
func (b *BaseHandler) principal(r *http.Request) *auth.Principal {
	principal, err := b.sessions.Principal(r)
	if err != nil {
		zap.S().Errorw("Error validating session", "error", err, "request_id", requestId(r))
		return nil
	}
	return principal
}

func (b *BaseHandler) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	zap.S().Errorw(msg, "error", err, "request_id", requestId(r))
	writeError(w, http.StatusInternalServerError, "Internal Server Error")
}

func requestId(r *http.Request) string {
	return r.Header.Get("X-Request-ID")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.S().Errorw("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

package handlers

import (
	"html/template"
	"net/http"

	"github.com/frodejac/writeups/internal/auth"
	"github.com/frodejac/writeups/internal/auth/static"
	"github.com/frodejac/writeups/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type AuthHandler struct {
	BaseHandler
	staticAuth *static.Auth
	limiter    *loginLimiter
}

type LoginData struct {
	Error string
}

type checkAuthResponse struct {
	IsAdmin bool `json:"is_admin"`
}

func NewAuthHandler(rateLimit rate.Limit, rateBurst int, sessions *auth.SessionService, templates *template.Template, staticAuth *static.Auth) *AuthHandler {
	return &AuthHandler{
		BaseHandler: BaseHandler{
			sessions:  sessions,
			templates: templates,
		},
		staticAuth: staticAuth,
		limiter:    newLoginLimiter(rateLimit, rateBurst),
	}
}

func (h *AuthHandler) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	if h.principal(r).IsAdmin() {
		http.Redirect(w, r, "/ctf.html", http.StatusFound)
		return
	}
	h.renderTemplate(w, "login.html", LoginData{})
}

func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.allow(r) {
		metrics.LoginAttemptsTotal.WithLabelValues("throttled").Inc()
		zap.S().Warnw("Login attempt throttled", "remote_addr", r.RemoteAddr, "request_id", requestId(r))
		w.WriteHeader(http.StatusTooManyRequests)
		h.renderTemplate(w, "login.html", LoginData{Error: "Too many login attempts, try again later"})
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	password := r.PostForm.Get("password")
	if ok := h.staticAuth.Validate(password); !ok {
		metrics.LoginAttemptsTotal.WithLabelValues("failed").Inc()
		zap.S().Warnw("Invalid login attempt", "remote_addr", r.RemoteAddr, "request_id", requestId(r))
		w.WriteHeader(http.StatusUnauthorized)
		h.renderTemplate(w, "login.html", LoginData{Error: "Invalid password"})
		return
	}
	if _, err := h.sessions.Create(r.Context(), w, auth.RoleAdmin); err != nil {
		zap.S().Errorw("Error creating session", "error", err, "request_id", requestId(r))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()
	zap.S().Infow("Admin logged in", "remote_addr", r.RemoteAddr)
	http.Redirect(w, r, "/ctf.html", http.StatusFound)
}

func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Destroy(w, r); err != nil {
		// The cookie is already cleared
		zap.S().Errorw("Error destroying session", "error", err, "request_id", requestId(r))
	}
	http.Redirect(w, r, "/ctf.html", http.StatusFound)
}

func (h *AuthHandler) HandleCheckAuth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, checkAuthResponse{IsAdmin: h.principal(r).IsAdmin()})
}

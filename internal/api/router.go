package api

import (
	"html/template"
	"net/http"

	h "github.com/frodejac/writeups/internal/api/handlers"
	"github.com/frodejac/writeups/internal/auth"
	"github.com/frodejac/writeups/internal/auth/static"
	"github.com/frodejac/writeups/internal/uploads"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

type Config struct {
	StaticPath         string
	LoginRateLimit     rate.Limit
	LoginRateBurst     int
	UseHsts            bool
	UseSecurityHeaders bool
	CorsAllowedOrigins []string
}

type handlers struct {
	admin    *h.AdminHandler
	auth     *h.AuthHandler
	download *h.DownloadHandler
	home     *h.HomeHandler
	upload   *h.UploadHandler
}

type Router struct {
	sessions *auth.SessionService
	config   *Config
	handlers *handlers
}

func NewRouter(
	templates *template.Template,
	sessions *auth.SessionService,
	staticAuth *static.Auth,
	uploadService *uploads.UploadService,
	config *Config,
) *Router {
	router := &Router{
		config: config,
		handlers: &handlers{
			admin:    h.NewAdminHandler(sessions, templates, uploadService),
			auth:     h.NewAuthHandler(config.LoginRateLimit, config.LoginRateBurst, sessions, templates, staticAuth),
			download: h.NewDownloadHandler(sessions, templates, uploadService),
			home:     h.NewHomeHandler(config.StaticPath, sessions, templates, uploadService),
			upload:   h.NewUploadHandler(sessions, templates, uploadService),
		},
		sessions: sessions,
	}
	return router
}

func route(m *mux.Router, path string, handler http.HandlerFunc, methods ...string) {
	m.Handle(path, otelhttp.WithRouteTag(path, handler)).Methods(methods...)
}

func (r *Router) SetupRoutes(m *mux.Router) {
	// Public routes
	route(m, "/", r.handlers.home.HandleHome, http.MethodGet, http.MethodHead)
	route(m, "/healthz", r.handlers.home.HandleHealthz, http.MethodGet)
	m.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	route(m, "/login", r.handlers.auth.HandleLoginPage, http.MethodGet)
	route(m, "/login", r.handlers.auth.HandleLogin, http.MethodPost)
	route(m, "/logout", r.handlers.auth.HandleLogout, http.MethodGet)
	route(m, "/ctf.html", r.handlers.home.HandleCtf, http.MethodGet)
	route(m, "/uploads/{filename}", r.handlers.download.HandleGetFile, http.MethodGet, http.MethodHead)
	route(m, "/api/pdfs", r.handlers.download.HandleListRecords, http.MethodGet)
	route(m, "/api/check-auth", r.handlers.auth.HandleCheckAuth, http.MethodGet)

	// Admin routes
	admin := m.NewRoute().Subrouter()
	admin.Use(r.sessions.RequireCapability(auth.CapManageUploads))
	route(admin, "/upload", r.handlers.upload.HandleUpload, http.MethodPost)
	route(admin, "/api/delete/{filename}", r.handlers.admin.HandleDelete, http.MethodPost)

	// Everything else is looked up in the static directory
	m.PathPrefix("/").Handler(otelhttp.WithRouteTag("/{asset}", http.HandlerFunc(r.handlers.home.HandleStatic))).
		Methods(http.MethodGet, http.MethodHead)
}

// Handler returns the complete HTTP handler: routes plus middleware.
func (r *Router) Handler() http.Handler {
	m := mux.NewRouter()
	m.Use(RequestIdMiddleware, LoggingMiddleWare, MetricsMiddleware)
	if r.config.UseSecurityHeaders {
		m.Use(SecurityHeadersMiddleware(r.config.UseHsts))
	}
	r.SetupRoutes(m)

	var handler http.Handler = m
	if len(r.config.CorsAllowedOrigins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins:   r.config.CorsAllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost},
			AllowCredentials: true,
		}).Handler(handler)
	}
	return otelhttp.NewHandler(handler, "writeups")
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/frodejac/writeups/internal/api"
	"github.com/frodejac/writeups/internal/api/handlers"
	"github.com/frodejac/writeups/internal/auth"
	s "github.com/frodejac/writeups/internal/auth/static"
	"github.com/frodejac/writeups/internal/config"
	"github.com/frodejac/writeups/internal/database"
	"github.com/frodejac/writeups/internal/database/sessions"
	"github.com/frodejac/writeups/internal/files"
	"github.com/frodejac/writeups/internal/logging"
	"github.com/frodejac/writeups/internal/metadata"
	"github.com/frodejac/writeups/internal/metrics"
	"github.com/frodejac/writeups/internal/uploads"
	"go.uber.org/zap"
)

const (
	gracefulShutdownPeriod = 30 * time.Second
	sessionPurgeInterval   = time.Hour
)

func main() {
	cfg, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Log.Level,
		Development: cfg.IsDevelopment,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()
	cfg.WatchLogLevel(logger.SetLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		zap.S().Fatalw("Server failed", "error", err)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	if cfg.Session.Ephemeral {
		zap.S().Warn("SECRET_KEY is not set, using a random key: sessions will not survive a restart")
	}

	staticAuth, err := s.NewAuthFromConfig(cfg.Auth.Static)
	if err != nil {
		return fmt.Errorf("failed to create static auth: %w", err)
	}

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	sessionStore, err := sessions.NewSessionStore(db)
	if err != nil {
		return fmt.Errorf("failed to create session store: %w", err)
	}

	sessionCookieCfg := &auth.SessionCookieConfig{
		Name:     cfg.Session.Cookie.Name,
		Path:     cfg.Session.Cookie.Path,
		HttpOnly: cfg.Session.Cookie.HttpOnly,
		Secure:   cfg.Session.Cookie.Secure,
		SameSite: cfg.Session.Cookie.SameSite,
		Lifetime: cfg.Session.Lifetime,
	}
	sessionService := auth.NewSessionService(sessionStore, sessionCookieCfg, cfg.Session.Secret)

	records, closeRecords, err := openMetadataStore(ctx, cfg.Metadata, db)
	if err != nil {
		return err
	}
	defer closeRecords()

	fileStore, location, err := openFileStore(ctx, cfg)
	if err != nil {
		return err
	}

	uploadService := uploads.NewUploadService(records, fileStore, &uploads.Config{
		MaxFileSize:       cfg.Upload.MaxFileSize,
		AllowedExtensions: cfg.Upload.AllowedExtensions,
	})

	templates, err := handlers.LoadTemplates(cfg.TemplatePath)
	if err != nil {
		return err
	}

	meterShutdownFn, err := metrics.InitMeterProvider(ctx, "writeups")
	if err != nil {
		return err
	}

	router := api.NewRouter(templates, sessionService, staticAuth, uploadService, &api.Config{
		StaticPath:         cfg.StaticPath,
		LoginRateLimit:     cfg.Auth.LoginRateLimit,
		LoginRateBurst:     cfg.Auth.LoginRateBurst,
		UseHsts:            cfg.Server.UseHsts,
		UseSecurityHeaders: cfg.Server.UseSecurityHeaders,
		CorsAllowedOrigins: cfg.Server.CorsAllowedOrigins,
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	go purgeSessions(ctx, sessionService)

	zap.S().Infow("Starting server",
		"port", cfg.Server.Port,
		"files", location,
		"file_backend", cfg.Files.Backend,
		"metadata_backend", cfg.Metadata.Backend,
		"max_file_size", humanize.IBytes(uint64(cfg.Upload.MaxFileSize)),
		"allowed_extensions", cfg.Upload.AllowedExtensions,
		"config_file", cfg.ConfigFileUsed(),
	)

	serverErr := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}

	zap.S().Warn("Shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulShutdownPeriod)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zap.S().Errorw("Failed to shutdown http server gracefully", "error", err)
	}
	if err := meterShutdownFn(shutdownCtx); err != nil {
		zap.S().Errorw("Failed to shutdown meter provider", "error", err)
	}
	zap.S().Info("Http server stopped")
	return nil
}

func openMetadataStore(ctx context.Context, cfg *config.MetadataConfig, db *sql.DB) (metadata.Store, func(), error) {
	noop := func() {}
	switch cfg.Backend {
	case config.MetadataBackendSqlite:
		store, err := metadata.NewSqliteStore(db)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create sqlite metadata store: %w", err)
		}
		return store, noop, nil
	case config.MetadataBackendRedis:
		store, err := metadata.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisKey)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create redis metadata store: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	default:
		store, err := metadata.NewJSONStore(cfg.Path)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create json metadata store: %w", err)
		}
		return store, noop, nil
	}
}

// openFileStore returns the configured file store and a description of where
// it keeps files.
func openFileStore(ctx context.Context, cfg *config.Config) (files.Store, string, error) {
	if cfg.Files.Backend == config.FileBackendMinio {
		store, err := files.NewMinioStore(ctx, cfg.Files.Minio)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create minio file store: %w", err)
		}
		return store, fmt.Sprintf("minio://%s/%s", cfg.Files.Minio.Endpoint, store.Bucket()), nil
	}
	store, err := files.NewDiskStore(cfg.Upload.Path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create disk file store: %w", err)
	}
	return store, store.Dir(), nil
}

func purgeSessions(ctx context.Context, sessionService *auth.SessionService) {
	ticker := time.NewTicker(sessionPurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessionService.PurgeExpired(ctx)
			if err != nil {
				zap.S().Errorw("Failed to purge expired sessions", "error", err)
				continue
			}
			if n > 0 {
				zap.S().Debugw("Purged expired sessions", "count", n)
			}
		}
	}
}

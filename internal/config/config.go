package config

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/frodejac/writeups/internal/auth/static"
	"github.com/frodejac/writeups/internal/files"
	"github.com/frodejac/writeups/internal/random"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type MetadataBackend string

const (
	MetadataBackendJSON   MetadataBackend = "json"
	MetadataBackendSqlite MetadataBackend = "sqlite"
	MetadataBackendRedis  MetadataBackend = "redis"
)

type FileBackend string

const (
	FileBackendDisk  FileBackend = "disk"
	FileBackendMinio FileBackend = "minio"
)

const (
	keyAdminPasswordHash   = "admin_password_hash"
	keyAllowedExtensions   = "allowed_extensions"
	keyCookieSecure        = "cookie_secure"
	keyCorsAllowedOrigins  = "cors_allowed_origins"
	keyDatabasePath        = "database_path"
	keyEnvironment         = "environment"
	keyFileBackend         = "file_backend"
	keyLogLevel            = "log_level"
	keyLoginRateBurst      = "login_rate_burst"
	keyLoginRateLimit      = "login_rate_limit"
	keyMaxFileSize         = "max_file_size_bytes"
	keyMetadataBackend     = "metadata_backend"
	keyMetadataPath        = "metadata_path"
	keyMinioAccessKeyID    = "minio_access_key_id"
	keyMinioBucketName     = "minio_bucket_name"
	keyMinioEndpoint       = "minio_endpoint"
	keyMinioSecretKey      = "minio_secret_access_key"
	keyMinioUseSSL         = "minio_use_ssl"
	keyRedisAddr           = "redis_addr"
	keyRedisKey            = "redis_key"
	keySecretKey           = "secret_key"
	keyServerPort          = "server_port"
	keySessionLifetime     = "session_lifetime"
	keyStaticPath          = "static_path"
	keyTemplatePath        = "template_path"
	keyUploadPath          = "upload_path"
	keyUseHsts             = "use_hsts"
	keyUseSecurityHeaders  = "use_security_headers"
	defaultMaxFileSize     = 16 * 1024 * 1024 // 16 MiB
	defaultSessionLifetime = "8h"
)

type ServerConfig struct {
	Port               string
	UseHsts            bool
	UseSecurityHeaders bool
	CorsAllowedOrigins []string
}

type DatabaseConfig struct {
	Path string
}

type SessionCookieConfig struct {
	Name     string
	Path     string
	HttpOnly bool
	Secure   bool
	SameSite http.SameSite
}

type SessionConfig struct {
	// Secret signs the session cookie. When no SECRET_KEY is configured a
	// random one is generated and Ephemeral is set.
	Secret    []byte
	Ephemeral bool
	Lifetime  time.Duration
	Cookie    *SessionCookieConfig
}

type UploadConfig struct {
	Path              string
	MaxFileSize       int64
	AllowedExtensions []string
}

type MetadataConfig struct {
	Backend   MetadataBackend
	Path      string
	RedisAddr string
	RedisKey  string
}

type FilesConfig struct {
	Backend FileBackend
	Minio   *files.MinioConfig
}

type AuthConfig struct {
	Static         *static.Config
	LoginRateLimit rate.Limit
	LoginRateBurst int
}

type LogConfig struct {
	Level string
}

type Config struct {
	StaticPath    string
	TemplatePath  string
	IsDevelopment bool
	Server        *ServerConfig
	Database      *DatabaseConfig
	Session       *SessionConfig
	Upload        *UploadConfig
	Metadata      *MetadataConfig
	Files         *FilesConfig
	Auth          *AuthConfig
	Log           *LogConfig

	v *viper.Viper
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(keyAdminPasswordHash, "")
	v.SetDefault(keyAllowedExtensions, ".pdf")
	v.SetDefault(keyCookieSecure, false)
	v.SetDefault(keyCorsAllowedOrigins, "")
	v.SetDefault(keyDatabasePath, "writeups.db")
	v.SetDefault(keyEnvironment, "production")
	v.SetDefault(keyFileBackend, string(FileBackendDisk))
	v.SetDefault(keyLogLevel, "info")
	v.SetDefault(keyLoginRateBurst, 5)
	v.SetDefault(keyLoginRateLimit, 1.0)
	v.SetDefault(keyMaxFileSize, defaultMaxFileSize)
	v.SetDefault(keyMetadataBackend, string(MetadataBackendJSON))
	v.SetDefault(keyMetadataPath, "data/metadata.json")
	v.SetDefault(keyMinioAccessKeyID, "")
	v.SetDefault(keyMinioBucketName, "")
	v.SetDefault(keyMinioEndpoint, "")
	v.SetDefault(keyMinioSecretKey, "")
	v.SetDefault(keyMinioUseSSL, false)
	v.SetDefault(keyRedisAddr, "localhost:6379")
	v.SetDefault(keyRedisKey, "writeups:records")
	v.SetDefault(keySecretKey, "")
	v.SetDefault(keyServerPort, "8080")
	v.SetDefault(keySessionLifetime, defaultSessionLifetime)
	v.SetDefault(keyStaticPath, "web/static")
	v.SetDefault(keyTemplatePath, "web/templates")
	v.SetDefault(keyUploadPath, "uploads")
	v.SetDefault(keyUseHsts, false)
	v.SetDefault(keyUseSecurityHeaders, true)
}

// LoadConfig reads configuration from command line flags, the environment and
// an optional config file, in that order of precedence.
func LoadConfig(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("writeups", pflag.ContinueOnError)
	configFile := fs.String("config", "", "Path to a config file (default: ./config.yaml or /etc/writeups/config.yaml)")
	fs.String("port", "", "Port the HTTP server listens on")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	if err := v.BindPFlag(keyServerPort, fs.Lookup("port")); err != nil {
		return nil, fmt.Errorf("failed to bind port flag: %w", err)
	}

	if *configFile != "" {
		v.SetConfigFile(*configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/writeups/")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	allowedExtensions := normalizeExtensions(listValue(v, keyAllowedExtensions))
	if len(allowedExtensions) == 0 {
		return nil, fmt.Errorf("ALLOWED_EXTENSIONS must not be empty")
	}

	maxFileSize, err := parseInt64(v, keyMaxFileSize)
	if err != nil {
		return nil, err
	}
	if maxFileSize <= 0 {
		return nil, fmt.Errorf("MAX_FILE_SIZE_BYTES must be positive, got %d", maxFileSize)
	}

	sessionLifetime, err := time.ParseDuration(v.GetString(keySessionLifetime))
	if err != nil {
		return nil, fmt.Errorf("failed to parse SESSION_LIFETIME: %w", err)
	}

	cookieSecure, err := parseBool(v, keyCookieSecure)
	if err != nil {
		return nil, err
	}
	useHsts, err := parseBool(v, keyUseHsts)
	if err != nil {
		return nil, err
	}
	useSecurityHeaders, err := parseBool(v, keyUseSecurityHeaders)
	if err != nil {
		return nil, err
	}
	minioUseSSL, err := parseBool(v, keyMinioUseSSL)
	if err != nil {
		return nil, err
	}

	loginRateLimit, err := parseFloat(v, keyLoginRateLimit)
	if err != nil {
		return nil, err
	}
	loginRateBurst, err := parseInt64(v, keyLoginRateBurst)
	if err != nil {
		return nil, err
	}

	passwordHash := v.GetString(keyAdminPasswordHash)
	if passwordHash == "" {
		return nil, fmt.Errorf("ADMIN_PASSWORD_HASH is required")
	}

	secret := []byte(v.GetString(keySecretKey))
	ephemeral := false
	if len(secret) == 0 {
		secret = random.Bytes(32)
		ephemeral = true
	}

	metadata := &MetadataConfig{
		Backend:   MetadataBackend(strings.ToLower(v.GetString(keyMetadataBackend))),
		Path:      v.GetString(keyMetadataPath),
		RedisAddr: v.GetString(keyRedisAddr),
		RedisKey:  v.GetString(keyRedisKey),
	}
	switch metadata.Backend {
	case MetadataBackendJSON:
		if metadata.Path == "" {
			return nil, fmt.Errorf("METADATA_PATH is required for the json metadata backend")
		}
	case MetadataBackendSqlite:
	case MetadataBackendRedis:
		if metadata.RedisAddr == "" || metadata.RedisKey == "" {
			return nil, fmt.Errorf("REDIS_ADDR and REDIS_KEY are required for the redis metadata backend")
		}
	default:
		return nil, fmt.Errorf("invalid METADATA_BACKEND: %s", metadata.Backend)
	}

	filesConfig := &FilesConfig{
		Backend: FileBackend(strings.ToLower(v.GetString(keyFileBackend))),
		Minio: &files.MinioConfig{
			Endpoint:        v.GetString(keyMinioEndpoint),
			AccessKeyID:     v.GetString(keyMinioAccessKeyID),
			SecretAccessKey: v.GetString(keyMinioSecretKey),
			BucketName:      v.GetString(keyMinioBucketName),
			UseSSL:          minioUseSSL,
		},
	}
	switch filesConfig.Backend {
	case FileBackendDisk:
	case FileBackendMinio:
		m := filesConfig.Minio
		if m.Endpoint == "" || m.AccessKeyID == "" || m.SecretAccessKey == "" || m.BucketName == "" {
			return nil, fmt.Errorf("MINIO_ENDPOINT, MINIO_ACCESS_KEY_ID, MINIO_SECRET_ACCESS_KEY and MINIO_BUCKET_NAME are required for the minio file backend")
		}
	default:
		return nil, fmt.Errorf("invalid FILE_BACKEND: %s", filesConfig.Backend)
	}

	cfg := &Config{
		StaticPath:    v.GetString(keyStaticPath),
		TemplatePath:  v.GetString(keyTemplatePath),
		IsDevelopment: v.GetString(keyEnvironment) == "development",
		Server: &ServerConfig{
			Port:               v.GetString(keyServerPort),
			UseHsts:            useHsts,
			UseSecurityHeaders: useSecurityHeaders,
			CorsAllowedOrigins: listValue(v, keyCorsAllowedOrigins),
		},
		Database: &DatabaseConfig{
			Path: v.GetString(keyDatabasePath),
		},
		Session: &SessionConfig{
			Secret:    secret,
			Ephemeral: ephemeral,
			Lifetime:  sessionLifetime,
			Cookie: &SessionCookieConfig{
				Name:     "session",
				Path:     "/",
				HttpOnly: true,
				Secure:   cookieSecure,
				SameSite: http.SameSiteLaxMode,
			},
		},
		Upload: &UploadConfig{
			Path:              v.GetString(keyUploadPath),
			MaxFileSize:       maxFileSize,
			AllowedExtensions: allowedExtensions,
		},
		Metadata: metadata,
		Files:    filesConfig,
		Auth: &AuthConfig{
			Static: &static.Config{
				PasswordHash: passwordHash,
			},
			LoginRateLimit: rate.Limit(loginRateLimit),
			LoginRateBurst: int(loginRateBurst),
		},
		Log: &LogConfig{
			Level: v.GetString(keyLogLevel),
		},
		v: v,
	}
	return cfg, nil
}

// ConfigFileUsed returns the path of the config file that was read, if any.
func (c *Config) ConfigFileUsed() string {
	if c.v == nil {
		return ""
	}
	return c.v.ConfigFileUsed()
}

// WatchLogLevel calls onChange with the configured log level every time the
// config file changes. It does nothing when no config file was read.
func (c *Config) WatchLogLevel(onChange func(level string)) {
	if c.ConfigFileUsed() == "" {
		return
	}
	c.v.OnConfigChange(func(e fsnotify.Event) {
		zap.S().Infow("Config file changed, reloading log level", "file", e.Name, "op", e.Op.String())
		onChange(c.v.GetString(keyLogLevel))
	})
	c.v.WatchConfig()
}

// listValue reads key as a comma separated string (environment) or as a list
// (config file).
func listValue(v *viper.Viper, key string) []string {
	if s, ok := v.Get(key).(string); ok {
		return splitList(s)
	}
	var out []string
	for _, item := range v.GetStringSlice(key) {
		out = append(out, splitList(item)...)
	}
	return out
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}

// The helpers below cast with spf13/cast but report failures, which the
// plain viper Get* accessors swallow.

func parseBool(v *viper.Viper, key string) (bool, error) {
	b, err := cast.ToBoolE(v.Get(key))
	if err != nil {
		return false, fmt.Errorf("failed to parse %s: %w", strings.ToUpper(key), err)
	}
	return b, nil
}

func parseInt64(v *viper.Viper, key string) (int64, error) {
	n, err := cast.ToInt64E(v.Get(key))
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", strings.ToUpper(key), err)
	}
	return n, nil
}

func parseFloat(v *viper.Viper, key string) (float64, error) {
	f, err := cast.ToFloat64E(v.Get(key))
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", strings.ToUpper(key), err)
	}
	return f, nil
}

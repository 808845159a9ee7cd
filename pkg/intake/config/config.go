package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/tendant/simple-intake/pkg/intake"
)

// Option applies configuration to a Config instance.
type Option func(*Config) error

// Config is the service configuration. Every field is read from the
// environment; unset variables take the env-default value.
type Config struct {
	Port        string `env:"PORT" env-default:"8000"`
	Environment string `env:"ENVIRONMENT" env-default:"development"` // development, production, testing
	LogLevel    string `env:"LOG_LEVEL" env-default:"info"`

	// BackendURL selects the content backend:
	//   memory://                 in-process records
	//   http(s)://host:port       Directus
	//   postgres(ql)://...        PostgreSQL intake_records table
	BackendURL     string        `env:"BACKEND_URL,DIRECTUS_URL" env-default:"memory://"`
	BackendTimeout time.Duration `env:"BACKEND_TIMEOUT" env-default:"15s"`
	Directus       DirectusConfig

	// StorageURL selects the upload store:
	//   file://./uploads          flat directory
	//   s3://bucket/prefix?region=us-east-1&endpoint=http://minio:9000&path_style=true
	//   memory://                 in-process objects
	StorageURL string `env:"STORAGE_URL" env-default:"file://./uploads"`
	S3         S3Config
	Upload     UploadConfig

	// IdempotencyTTL bounds how long a token is remembered; zero keeps it for the process lifetime
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" env-default:"0s"`

	Admin        AdminConfig
	APIKeySHA256 string `env:"API_KEY_SHA256"`
	// RateLimit caps form posts per minute per client; zero disables it
	RateLimit int `env:"RATE_LIMIT" env-default:"0"`

	Rewrite RewriteConfig
}

// DirectusConfig holds Directus credentials
type DirectusConfig struct {
	Email    string `env:"DIRECTUS_EMAIL,DIRECTUS_ADMIN_EMAIL"`
	Password string `env:"DIRECTUS_PASSWORD,DIRECTUS_ADMIN_PASSWORD"`
	Token    string `env:"DIRECTUS_TOKEN"`
	// PublicActions are granted to the public role by the setup command
	PublicActions []string `env:"DIRECTUS_PUBLIC_ACTIONS" env-separator:","`
}

// S3Config holds credentials for s3:// storage URLs
type S3Config struct {
	AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	Region          string `env:"AWS_REGION" env-default:"us-east-1"`
	EnableSSE       bool   `env:"AWS_S3_ENABLE_SSE" env-default:"false"`
	SSEAlgorithm    string `env:"AWS_S3_SSE_ALGORITHM" env-default:"AES256"`
	SSEKMSKeyID     string `env:"AWS_S3_SSE_KMS_KEY_ID"`
	CreateBucket    bool   `env:"AWS_S3_CREATE_BUCKET" env-default:"false"`
}

// UploadConfig controls file ingestion
type UploadConfig struct {
	Naming        string `env:"UPLOAD_NAMING" env-default:"filename"`  // filename, title
	Collision     string `env:"UPLOAD_COLLISION" env-default:"suffix"` // suffix, overwrite
	URLPrefix     string `env:"UPLOAD_URL_PREFIX"`
	MaxImageWidth int    `env:"MAX_IMAGE_WIDTH" env-default:"0"`
	MaxBytes      int64  `env:"MAX_UPLOAD_BYTES" env-default:"104857600"`
}

// AdminConfig holds the admin panel login
type AdminConfig struct {
	Username string `env:"ADMIN_USERNAME" env-default:"admin"`
	// PasswordHash is a bcrypt hash; Password is hashed at startup when no hash is given
	PasswordHash string        `env:"ADMIN_PASSWORD_HASH"`
	Password     string        `env:"ADMIN_PASSWORD"`
	SecretKey    string        `env:"SECRET_KEY"`
	SessionTTL   time.Duration `env:"SESSION_TTL" env-default:"30m"`
}

// Enabled reports whether an admin password is configured
func (a AdminConfig) Enabled() bool {
	return a.PasswordHash != "" || a.Password != ""
}

// RewriteConfig controls the AI rewrite job
type RewriteConfig struct {
	Enabled      bool          `env:"REWRITE_ENABLED" env-default:"false"`
	APIKey       string        `env:"GOOGLE_API_KEY,GEMINI_API_KEY"`
	Model        string        `env:"REWRITE_MODEL" env-default:"gemini-2.0-flash"`
	Collection   string        `env:"REWRITE_COLLECTION" env-default:"videos"`
	SourceField  string        `env:"REWRITE_SOURCE_FIELD" env-default:"problema"`
	TargetField  string        `env:"REWRITE_TARGET_FIELD" env-default:"descricao_ia"`
	BatchSize    int           `env:"REWRITE_BATCH_SIZE" env-default:"10"`
	Interval     time.Duration `env:"REWRITE_INTERVAL" env-default:"5m"`
	Pause        time.Duration `env:"REWRITE_PAUSE" env-default:"1s"`
	WaitAttempts int           `env:"REWRITE_WAIT_ATTEMPTS" env-default:"30"`
	WaitDelay    time.Duration `env:"REWRITE_WAIT_DELAY" env-default:"10s"`
}

// LoadDotEnv loads variables from .env files into the process environment.
// Missing files are ignored and variables already set are kept.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		_ = godotenv.Load(p)
	}
}

// Load reads the environment and applies the supplied options on top.
func Load(opts ...Option) (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Usage returns the environment variable help text
func Usage() string {
	var cfg Config
	text, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return ""
	}
	return text
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	switch c.Environment {
	case "development", "production", "testing":
	default:
		return fmt.Errorf("environment must be development, production or testing, got: %s", c.Environment)
	}

	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}

	if _, err := c.BackendKind(); err != nil {
		return err
	}
	if _, err := c.StorageKind(); err != nil {
		return err
	}

	if _, err := c.NamingPolicy(); err != nil {
		return err
	}
	if c.Upload.MaxImageWidth < 0 {
		return errors.New("max image width cannot be negative")
	}
	if c.Upload.MaxBytes <= 0 {
		return errors.New("max upload bytes must be positive")
	}
	if c.IdempotencyTTL < 0 {
		return errors.New("idempotency ttl cannot be negative")
	}

	if c.RateLimit < 0 {
		return errors.New("rate limit cannot be negative")
	}

	if c.Admin.Enabled() && c.Admin.SecretKey == "" {
		return errors.New("SECRET_KEY is required when an admin password is configured")
	}

	if c.Rewrite.Enabled {
		if c.Rewrite.APIKey == "" {
			return errors.New("GOOGLE_API_KEY is required when the rewrite job is enabled")
		}
		if c.Rewrite.BatchSize <= 0 {
			return errors.New("rewrite batch size must be positive")
		}
		if c.Rewrite.Interval <= 0 {
			return errors.New("rewrite interval must be positive")
		}
	}

	return nil
}

// Backend kinds
const (
	BackendMemory   = "memory"
	BackendDirectus = "directus"
	BackendPostgres = "postgres"
)

// BackendKind derives the content backend type from BackendURL
func (c *Config) BackendKind() (string, error) {
	switch {
	case c.BackendURL == "" || c.BackendURL == "memory" || strings.HasPrefix(c.BackendURL, "memory://"):
		return BackendMemory, nil
	case strings.HasPrefix(c.BackendURL, "http://") || strings.HasPrefix(c.BackendURL, "https://"):
		return BackendDirectus, nil
	case strings.HasPrefix(c.BackendURL, "postgres://") || strings.HasPrefix(c.BackendURL, "postgresql://"):
		return BackendPostgres, nil
	}
	return "", fmt.Errorf("unsupported BACKEND_URL format: %s (use 'memory://', 'http(s)://...' or 'postgres://...')", c.BackendURL)
}

// Storage kinds
const (
	StorageMemory = "memory"
	StorageFS     = "fs"
	StorageS3     = "s3"
)

// StorageKind derives the upload store type from StorageURL
func (c *Config) StorageKind() (string, error) {
	switch {
	case c.StorageURL == "memory" || c.StorageURL == "memory://":
		return StorageMemory, nil
	case strings.HasPrefix(c.StorageURL, "file://"):
		if strings.TrimPrefix(c.StorageURL, "file://") == "" {
			return "", errors.New("filesystem path cannot be empty in STORAGE_URL")
		}
		return StorageFS, nil
	case strings.HasPrefix(c.StorageURL, "s3://"):
		u, err := url.Parse(c.StorageURL)
		if err != nil {
			return "", fmt.Errorf("invalid STORAGE_URL: %w", err)
		}
		if u.Host == "" {
			return "", errors.New("S3 bucket name cannot be empty in STORAGE_URL")
		}
		return StorageS3, nil
	}
	return "", fmt.Errorf("unsupported STORAGE_URL format: %s (use 'memory://', 'file://...', or 's3://...')", c.StorageURL)
}

// NamingPolicy returns the upload naming policy
func (c *Config) NamingPolicy() (intake.NamingPolicy, error) {
	policy := intake.NamingPolicy{Collision: intake.CollisionPolicy(c.Upload.Collision)}
	switch c.Upload.Naming {
	case "", "filename":
	case "title":
		policy.UseTitle = true
	default:
		return policy, fmt.Errorf("unsupported UPLOAD_NAMING: %s (use 'filename' or 'title')", c.Upload.Naming)
	}
	if err := policy.Validate(); err != nil {
		return policy, err
	}
	return policy, nil
}

// IsDevelopment reports whether the service runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// RedactedURL returns raw with any password replaced, for logging
func RedactedURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	return u.Redacted()
}

package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/tendant/simple-intake/pkg/intake"
	"github.com/tendant/simple-intake/pkg/intake/backend/directus"
	memorybackend "github.com/tendant/simple-intake/pkg/intake/backend/memory"
	pgbackend "github.com/tendant/simple-intake/pkg/intake/backend/postgres"
	"github.com/tendant/simple-intake/pkg/intake/rewrite"
	fsstorage "github.com/tendant/simple-intake/pkg/intake/storage/fs"
	memorystorage "github.com/tendant/simple-intake/pkg/intake/storage/memory"
	s3storage "github.com/tendant/simple-intake/pkg/intake/storage/s3"
)

// BuildBlobStore creates the upload store selected by StorageURL.
// The returned name labels the store in errors and logs.
func (c *Config) BuildBlobStore() (intake.BlobStore, string, error) {
	kind, err := c.StorageKind()
	if err != nil {
		return nil, "", err
	}

	switch kind {
	case StorageMemory:
		return memorystorage.New(), kind, nil

	case StorageFS:
		store, err := fsstorage.New(fsstorage.Config{
			BaseDir:   c.UploadDir(),
			URLPrefix: c.Upload.URLPrefix,
		})
		if err != nil {
			return nil, "", fmt.Errorf("failed to create filesystem storage: %w", err)
		}
		return store, kind, nil

	case StorageS3:
		s3Config, err := c.s3Config()
		if err != nil {
			return nil, "", err
		}
		store, err := s3storage.New(s3Config)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create S3 storage: %w", err)
		}
		return store, kind, nil
	}

	return nil, "", fmt.Errorf("unknown storage kind: %s", kind)
}

// UploadDir returns the filesystem upload directory, or "" for other stores
func (c *Config) UploadDir() string {
	if !strings.HasPrefix(c.StorageURL, "file://") {
		return ""
	}
	return strings.TrimPrefix(c.StorageURL, "file://")
}

func (c *Config) s3Config() (s3storage.Config, error) {
	u, err := url.Parse(c.StorageURL)
	if err != nil {
		return s3storage.Config{}, fmt.Errorf("invalid STORAGE_URL: %w", err)
	}

	q := u.Query()
	cfg := s3storage.Config{
		Bucket:                 u.Host,
		Prefix:                 strings.TrimPrefix(u.Path, "/"),
		Region:                 c.S3.Region,
		AccessKeyID:            c.S3.AccessKeyID,
		SecretAccessKey:        c.S3.SecretAccessKey,
		Endpoint:               q.Get("endpoint"),
		EnableSSE:              c.S3.EnableSSE,
		SSEAlgorithm:           c.S3.SSEAlgorithm,
		SSEKMSKeyID:            c.S3.SSEKMSKeyID,
		CreateBucketIfNotExist: c.S3.CreateBucket,
	}
	if cfg.Prefix != "" && !strings.HasSuffix(cfg.Prefix, "/") {
		cfg.Prefix += "/"
	}
	if region := q.Get("region"); region != "" {
		cfg.Region = region
	}
	if raw := q.Get("path_style"); raw != "" {
		pathStyle, err := strconv.ParseBool(raw)
		if err != nil {
			return cfg, fmt.Errorf("invalid path_style in STORAGE_URL: %w", err)
		}
		cfg.UsePathStyle = pathStyle
	}
	return cfg, nil
}

// BuildStore creates the content backend selected by BackendURL. The
// returned cleanup releases its connections.
func (c *Config) BuildStore(ctx context.Context, logger *slog.Logger) (intake.Store, func(), error) {
	kind, err := c.BackendKind()
	if err != nil {
		return nil, nil, err
	}

	switch kind {
	case BackendMemory:
		return memorybackend.New(), func() {}, nil

	case BackendDirectus:
		client, err := c.BuildDirectus(logger)
		if err != nil {
			return nil, nil, err
		}
		return client, func() {}, nil

	case BackendPostgres:
		pool, err := pgbackend.Connect(ctx, c.BackendURL)
		if err != nil {
			return nil, nil, err
		}
		backend := pgbackend.NewWithPool(pool)
		if err := backend.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return backend, pool.Close, nil
	}

	return nil, nil, fmt.Errorf("unknown backend kind: %s", kind)
}

// BuildDirectus creates a Directus client; BackendURL must be http(s)
func (c *Config) BuildDirectus(logger *slog.Logger) (*directus.Client, error) {
	kind, err := c.BackendKind()
	if err != nil {
		return nil, err
	}
	if kind != BackendDirectus {
		return nil, fmt.Errorf("BACKEND_URL %s is not a directus instance", c.BackendURL)
	}
	return directus.New(directus.Config{
		BaseURL:     c.BackendURL,
		Email:       c.Directus.Email,
		Password:    c.Directus.Password,
		StaticToken: c.Directus.Token,
		Timeout:     c.BackendTimeout,
		Logger:      logger,
	})
}

// BuildPipeline wires the guard, upload store and content backend
func (c *Config) BuildPipeline(backend intake.Backend, store intake.BlobStore, storeName string, logger *slog.Logger) (*intake.Pipeline, error) {
	policy, err := c.NamingPolicy()
	if err != nil {
		return nil, err
	}

	guard := intake.NewMemoryGuard(intake.WithGuardTTL(c.IdempotencyTTL))

	return intake.New(
		intake.WithGuard(guard),
		intake.WithBackend(backend),
		intake.WithBlobStore(store,
			intake.WithNamingPolicy(policy),
			intake.WithMaxImageWidth(c.Upload.MaxImageWidth),
			intake.WithStoreName(storeName),
		),
		intake.WithBackendTimeout(c.BackendTimeout),
		intake.WithLogger(logger),
	)
}

// AdminPasswordHash returns the bcrypt hash of the admin password,
// hashing ADMIN_PASSWORD when no hash is configured
func (c *Config) AdminPasswordHash() ([]byte, error) {
	if c.Admin.PasswordHash != "" {
		if _, err := bcrypt.Cost([]byte(c.Admin.PasswordHash)); err != nil {
			return nil, fmt.Errorf("invalid ADMIN_PASSWORD_HASH: %w", err)
		}
		return []byte(c.Admin.PasswordHash), nil
	}
	if c.Admin.Password == "" {
		return nil, errors.New("admin password is not configured")
	}
	return bcrypt.GenerateFromPassword([]byte(c.Admin.Password), bcrypt.DefaultCost)
}

// BuildRewriteJob creates the AI rewrite job over store. A store that can be
// pinged is probed before each batch.
func (c *Config) BuildRewriteJob(ctx context.Context, store intake.Store, logger *slog.Logger) (*rewrite.Job, error) {
	if c.Rewrite.APIKey == "" {
		return nil, errors.New("GOOGLE_API_KEY is required for the rewrite job")
	}

	rewriter, err := rewrite.NewGenAIRewriter(ctx, c.Rewrite.APIKey, rewrite.WithModel(c.Rewrite.Model))
	if err != nil {
		return nil, err
	}

	opts := []rewrite.Option{
		rewrite.WithCollection(c.Rewrite.Collection),
		rewrite.WithFields(c.Rewrite.SourceField, c.Rewrite.TargetField),
		rewrite.WithBatchSize(c.Rewrite.BatchSize),
		rewrite.WithInterval(c.Rewrite.Interval),
		rewrite.WithPause(c.Rewrite.Pause),
		rewrite.WithLogger(logger),
	}
	if pinger, ok := store.(rewrite.Pinger); ok {
		opts = append(opts, rewrite.WithWait(pinger.Ping, c.Rewrite.WaitAttempts, c.Rewrite.WaitDelay))
	}
	return rewrite.NewJob(store, rewriter, opts...)
}

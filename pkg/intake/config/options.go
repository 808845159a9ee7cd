package config

import (
	"fmt"
	"time"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *Config) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *Config) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithLogLevel sets the log level
func WithLogLevel(level string) Option {
	return func(c *Config) error {
		c.LogLevel = level
		return nil
	}
}

// WithBackendURL selects the content backend
func WithBackendURL(url string) Option {
	return func(c *Config) error {
		c.BackendURL = url
		return nil
	}
}

// WithStorageURL selects the upload store
func WithStorageURL(url string) Option {
	return func(c *Config) error {
		c.StorageURL = url
		return nil
	}
}

// WithNaming sets the upload naming mode (filename, title) and collision policy (suffix, overwrite)
func WithNaming(naming, collision string) Option {
	return func(c *Config) error {
		if naming != "" {
			c.Upload.Naming = naming
		}
		if collision != "" {
			c.Upload.Collision = collision
		}
		return nil
	}
}

// WithIdempotencyTTL bounds how long submission tokens are remembered
func WithIdempotencyTTL(ttl time.Duration) Option {
	return func(c *Config) error {
		if ttl < 0 {
			return fmt.Errorf("idempotency ttl cannot be negative, got: %s", ttl)
		}
		c.IdempotencyTTL = ttl
		return nil
	}
}

// WithAdmin configures the admin panel login
func WithAdmin(username, passwordHash, secretKey string) Option {
	return func(c *Config) error {
		if username != "" {
			c.Admin.Username = username
		}
		c.Admin.PasswordHash = passwordHash
		c.Admin.SecretKey = secretKey
		return nil
	}
}

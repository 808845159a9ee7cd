package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/tendant/simple-intake/pkg/intake"
)

// Backend is a filesystem implementation of the intake.BlobStore interface.
// Objects live in a single flat directory.
type Backend struct {
	baseDir   string
	urlPrefix string
}

// Config options for the filesystem backend
type Config struct {
	BaseDir   string // Directory holding the uploaded files
	URLPrefix string // Optional prefix for record references; defaults to BaseDir
}

// New creates a new filesystem storage backend
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}

	if err := os.MkdirAll(config.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Backend{
		baseDir:   config.BaseDir,
		urlPrefix: strings.TrimSuffix(config.URLPrefix, "/"),
	}, nil
}

// BaseDir returns the upload directory
func (b *Backend) BaseDir() string {
	return b.baseDir
}

// Create writes a new file, failing with intake.ErrObjectExists if the name is taken
func (b *Backend) Create(ctx context.Context, objectKey string, reader io.Reader) error {
	return b.write(objectKey, reader, os.O_WRONLY|os.O_CREATE|os.O_EXCL)
}

// Put writes a file, truncating any existing one
func (b *Backend) Put(ctx context.Context, objectKey string, reader io.Reader) error {
	return b.write(objectKey, reader, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
}

func (b *Backend) write(objectKey string, reader io.Reader, flag int) error {
	filePath, err := b.path(objectKey)
	if err != nil {
		return err
	}

	// The directory may have been removed since New
	if err := os.MkdirAll(b.baseDir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.OpenFile(filePath, flag, 0644)
	if errors.Is(err, os.ErrExist) {
		return intake.ErrObjectExists
	} else if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	if _, err := io.Copy(file, reader); err != nil {
		file.Close()
		os.Remove(filePath)
		return fmt.Errorf("failed to write file: %w", err)
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	return nil
}

// Open opens a stored file
func (b *Backend) Open(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	filePath, err := b.path(objectKey)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(filePath)
	if os.IsNotExist(err) {
		return nil, intake.ErrObjectNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, nil
}

// Stat retrieves metadata for a stored file
func (b *Backend) Stat(ctx context.Context, objectKey string) (*intake.ObjectMeta, error) {
	filePath, err := b.path(objectKey)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return nil, intake.ErrObjectNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}

	// Detect content type
	contentType := "application/octet-stream"
	if file, err := os.Open(filePath); err == nil {
		defer file.Close()
		buffer := make([]byte, 512)
		if n, err := file.Read(buffer); err == nil {
			contentType = http.DetectContentType(buffer[:n])
		}
	}

	return &intake.ObjectMeta{
		Key:         objectKey,
		Size:        info.Size(),
		ContentType: contentType,
		UpdatedAt:   info.ModTime(),
	}, nil
}

// Location returns the path of the file, or the URL prefix joined with the name
func (b *Backend) Location(objectKey string) string {
	if b.urlPrefix != "" {
		return b.urlPrefix + "/" + objectKey
	}
	return filepath.ToSlash(filepath.Join(b.baseDir, objectKey))
}

// path resolves a key inside the flat directory
func (b *Backend) path(objectKey string) (string, error) {
	if objectKey == "" || objectKey != filepath.Base(objectKey) || objectKey == "." || objectKey == ".." {
		return "", fmt.Errorf("invalid object key: %q", objectKey)
	}
	return filepath.Join(b.baseDir, objectKey), nil
}

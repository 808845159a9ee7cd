package memory

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/tendant/simple-intake/pkg/intake"
)

// Backend is an in-memory implementation of the intake.BlobStore interface
type Backend struct {
	mu      sync.RWMutex
	objects map[string][]byte
	updated map[string]time.Time
	writes  int
}

// New creates a new in-memory storage backend
func New() *Backend {
	return &Backend{
		objects: make(map[string][]byte),
		updated: make(map[string]time.Time),
	}
}

// Create stores content unless the key is taken
func (b *Backend) Create(ctx context.Context, objectKey string, reader io.Reader) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.objects[objectKey]; exists {
		return intake.ErrObjectExists
	}
	b.store(objectKey, data)
	return nil
}

// Put stores content, replacing any existing object
func (b *Backend) Put(ctx context.Context, objectKey string, reader io.Reader) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.store(objectKey, data)
	return nil
}

func (b *Backend) store(objectKey string, data []byte) {
	b.objects[objectKey] = data
	b.updated[objectKey] = time.Now()
	b.writes++
}

// Open returns the content of an object
func (b *Backend) Open(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, exists := b.objects[objectKey]
	if !exists {
		return nil, intake.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Stat retrieves metadata for an object
func (b *Backend) Stat(ctx context.Context, objectKey string) (*intake.ObjectMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, exists := b.objects[objectKey]
	if !exists {
		return nil, intake.ErrObjectNotFound
	}
	return &intake.ObjectMeta{
		Key:         objectKey,
		Size:        int64(len(data)),
		ContentType: http.DetectContentType(data),
		UpdatedAt:   b.updated[objectKey],
	}, nil
}

// Location returns a memory:// reference
func (b *Backend) Location(objectKey string) string {
	return "memory://" + objectKey
}

// Writes returns the number of successful writes
func (b *Backend) Writes() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.writes
}

// Len returns the number of stored objects
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}

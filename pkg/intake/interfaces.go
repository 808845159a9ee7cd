package intake

import (
	"context"
	"io"
	"time"
)

// BlobStore defines the interface for upload storage backends
type BlobStore interface {
	// Create writes a new object and fails with ErrObjectExists if the key is taken
	Create(ctx context.Context, key string, reader io.Reader) error

	// Put writes an object, replacing any existing content under the key
	Put(ctx context.Context, key string, reader io.Reader) error

	// Open returns the content of an object
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Stat retrieves metadata for an object
	Stat(ctx context.Context, key string) (*ObjectMeta, error)

	// Location returns the reference embedded in records for a stored key
	Location(key string) string
}

// ObjectMeta contains metadata about an object in storage
type ObjectMeta struct {
	Key         string
	Size        int64
	ContentType string
	UpdatedAt   time.Time
}

// Backend is the content backend that persists submission records
type Backend interface {
	// Create persists a record in the named collection and returns its id
	Create(ctx context.Context, collection string, record Record) (string, error)
}

// Store is a Backend that can also read and patch records. The admin panel
// and the rewrite job depend on it.
type Store interface {
	Backend

	List(ctx context.Context, collection string, query ListQuery) ([]Record, error)
	Get(ctx context.Context, collection, id string) (Record, error)
	Update(ctx context.Context, collection, id string, patch Record) error
}

// ListQuery narrows a List call
type ListQuery struct {
	// NullField keeps only records where this field is null or absent
	NullField string
	// Limit caps the number of records; zero means backend default
	Limit int
	// Newest orders by descending datetime when true
	Newest bool
}

// Guard decides whether a submission token is new
type Guard interface {
	// ShouldProcess reports whether a submission carrying token must be processed.
	// An empty token is always processed.
	ShouldProcess(token string) bool

	// Forget releases a token so a retry of a failed submission is accepted
	Forget(token string)
}

package intake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
)

const maxCollisionAttempts = 5

// Ingester stores uploads under derived names
type Ingester struct {
	store         BlobStore
	storeName     string
	policy        NamingPolicy
	now           func() time.Time
	maxImageWidth int
	logger        *slog.Logger
}

// IngesterOption configures an Ingester
type IngesterOption func(*Ingester)

// WithNamingPolicy sets the naming policy
func WithNamingPolicy(policy NamingPolicy) IngesterOption {
	return func(i *Ingester) {
		i.policy = policy
	}
}

// WithIngestClock overrides the clock used for the date prefix
func WithIngestClock(now func() time.Time) IngesterOption {
	return func(i *Ingester) {
		if now != nil {
			i.now = now
		}
	}
}

// WithMaxImageWidth downscales jpeg and png uploads wider than width pixels.
// Zero disables resizing.
func WithMaxImageWidth(width int) IngesterOption {
	return func(i *Ingester) {
		i.maxImageWidth = width
	}
}

// WithIngestLogger sets the logger
func WithIngestLogger(logger *slog.Logger) IngesterOption {
	return func(i *Ingester) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithStoreName labels the store in errors and logs
func WithStoreName(name string) IngesterOption {
	return func(i *Ingester) {
		i.storeName = name
	}
}

// NewIngester creates an Ingester writing to store
func NewIngester(store BlobStore, opts ...IngesterOption) (*Ingester, error) {
	if store == nil {
		return nil, errors.New("blob store is required")
	}
	i := &Ingester{
		store:     store,
		storeName: "default",
		policy:    NamingPolicy{Collision: CollisionSuffix},
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.policy.Collision == "" {
		i.policy.Collision = CollisionSuffix
	}
	if err := i.policy.Validate(); err != nil {
		return nil, err
	}
	return i, nil
}

// Policy returns the naming policy in use
func (i *Ingester) Policy() NamingPolicy {
	return i.policy
}

// SaveUpload stores upload and returns where it went. It returns nil, nil
// without touching the store when no file was attached. Storage failures
// are returned as *StorageError and are not retried.
func (i *Ingester) SaveUpload(ctx context.Context, upload Upload, nameHint string) (*StoredFile, error) {
	if upload == nil || upload.Filename() == "" {
		return nil, nil
	}

	name := StoredName(i.now(), upload.Filename(), nameHint, i.policy.UseTitle)

	for attempt := 0; ; attempt++ {
		size, err := i.write(ctx, name, upload)
		if err == nil {
			stored := &StoredFile{
				Name: name,
				Key:  name,
				Path: i.store.Location(name),
				Size: size,
			}
			i.logger.Info("Upload stored", "name", name, "size", humanize.Bytes(uint64(size)), "original", upload.Filename())
			return stored, nil
		}
		if !errors.Is(err, ErrObjectExists) || attempt+1 >= maxCollisionAttempts {
			return nil, &StorageError{Backend: i.storeName, Key: name, Op: "save_upload", Err: err}
		}

		base := StoredName(i.now(), upload.Filename(), nameHint, i.policy.UseTitle)
		next := withSuffix(base, shortID())
		i.logger.Debug("Stored name taken, retrying with suffix", "name", name, "next", next)
		name = next
	}
}

func (i *Ingester) write(ctx context.Context, key string, upload Upload) (int64, error) {
	rc, err := upload.Open()
	if err != nil {
		return 0, fmt.Errorf("failed to open upload: %w", err)
	}
	defer rc.Close()

	var reader io.Reader = rc
	if i.maxImageWidth > 0 {
		reader, err = downscaleImage(key, rc, i.maxImageWidth)
		if err != nil {
			return 0, err
		}
	}

	counter := &countingReader{r: reader}
	if i.policy.Collision == CollisionOverwrite {
		err = i.store.Put(ctx, key, counter)
	} else {
		err = i.store.Create(ctx, key, counter)
	}
	return counter.n, err
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

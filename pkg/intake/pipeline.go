package intake

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// DefaultBackendTimeout bounds the forwarding call when none is configured
const DefaultBackendTimeout = 15 * time.Second

// Pipeline composes the guard, ingestion and forwarding steps
type Pipeline struct {
	guard          Guard
	ingester       *Ingester
	store          BlobStore
	backend        Backend
	stamper        *Stamper
	now            func() time.Time
	ingestOptions  []IngesterOption
	backendTimeout time.Duration
	logger         *slog.Logger
}

// Option represents a functional option for configuring the pipeline
type Option func(*Pipeline)

// WithGuard sets the idempotency guard
func WithGuard(guard Guard) Option {
	return func(p *Pipeline) {
		p.guard = guard
	}
}

// WithBackend sets the content backend
func WithBackend(backend Backend) Option {
	return func(p *Pipeline) {
		p.backend = backend
	}
}

// WithBlobStore sets the upload store; an Ingester is built from it
func WithBlobStore(store BlobStore, opts ...IngesterOption) Option {
	return func(p *Pipeline) {
		p.store = store
		p.ingestOptions = append(p.ingestOptions, opts...)
	}
}

// WithIngester sets a prebuilt Ingester, overriding WithBlobStore
func WithIngester(ingester *Ingester) Option {
	return func(p *Pipeline) {
		p.ingester = ingester
	}
}

// WithClock overrides the clock used for the datetime field and file names
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// WithBackendTimeout bounds the forwarding call
func WithBackendTimeout(timeout time.Duration) Option {
	return func(p *Pipeline) {
		p.backendTimeout = timeout
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// New creates a pipeline with the given options
func New(options ...Option) (*Pipeline, error) {
	p := &Pipeline{
		backendTimeout: DefaultBackendTimeout,
		logger:         slog.Default(),
		now:            time.Now,
	}
	for _, option := range options {
		option(p)
	}

	if p.backend == nil {
		return nil, errors.New("content backend is required")
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.guard == nil {
		p.guard = NewMemoryGuard()
	}
	if p.ingester == nil {
		if p.store == nil {
			return nil, errors.New("blob store or ingester is required")
		}
		opts := append([]IngesterOption{WithIngestClock(p.now), WithIngestLogger(p.logger)}, p.ingestOptions...)
		ingester, err := NewIngester(p.store, opts...)
		if err != nil {
			return nil, err
		}
		p.ingester = ingester
	}
	p.stamper = NewStamper(p.now)

	return p, nil
}

// Guard returns the idempotency guard
func (p *Pipeline) Guard() Guard {
	return p.guard
}

// Ingester returns the upload ingester
func (p *Pipeline) Ingester() *Ingester {
	return p.ingester
}

// Submit runs one submission through the pipeline. The returned error is
// either a *ValidationError or a *StorageError; a backend failure is not an
// error here and is reported on Receipt.BackendErr instead.
func (p *Pipeline) Submit(ctx context.Context, form FormSpec, sub Submission) (*Receipt, error) {
	if err := form.Validate(sub); err != nil {
		return nil, err
	}

	if !p.guard.ShouldProcess(sub.Token) {
		p.logger.Info("Duplicate submission ignored", "form", form.Name, "token", sub.Token)
		return &Receipt{Accepted: true, Duplicate: true, Collection: form.Collection}, nil
	}

	receivedAt := p.stamper.Stamp()

	record, files, err := p.assemble(ctx, form, sub, receivedAt)
	if err != nil {
		// Release the token so the submitter can retry after a local failure
		p.guard.Forget(sub.Token)
		p.logger.Error("Failed to store submission files", "form", form.Name, "err", err)
		return nil, err
	}

	receipt := &Receipt{
		Accepted:   true,
		Collection: form.Collection,
		Record:     record,
		Files:      files,
	}

	id, err := p.forward(ctx, form.Collection, record)
	if err != nil {
		receipt.BackendErr = err
		p.logger.Error("Failed to forward submission to content backend", "form", form.Name, "collection", form.Collection, "err", err)
		return receipt, nil
	}
	receipt.RecordID = id
	p.logger.Info("Submission accepted", "form", form.Name, "collection", form.Collection, "id", id, "files", len(files))
	return receipt, nil
}

func (p *Pipeline) assemble(ctx context.Context, form FormSpec, sub Submission, receivedAt time.Time) (Record, []StoredFile, error) {
	record := make(Record, len(form.Fields)+len(form.Files)+2)
	for _, field := range form.Fields {
		value := sub.Value(field.Name)
		if value == "" {
			value = field.Default
		}
		record[field.Name] = value
	}

	hint := ""
	if form.TitleField != "" {
		hint = sub.Value(form.TitleField)
	}

	var stored []StoredFile
	for _, field := range form.Files {
		var paths []string
		for _, up := range sub.Files[field.Name] {
			file, err := p.ingester.SaveUpload(ctx, up, hint)
			if err != nil {
				return nil, stored, err
			}
			if file == nil {
				continue
			}
			stored = append(stored, *file)
			paths = append(paths, file.Path)
			if !field.Multiple {
				break
			}
		}

		switch {
		case field.Multiple:
			if paths == nil {
				paths = []string{}
			}
			record[field.Name] = paths
		case len(paths) > 0:
			record[field.Name] = paths[0]
		default:
			record[field.Name] = nil
		}
	}

	record[FieldIP] = sub.IP()
	record[FieldDatetime] = receivedAt.Format(DatetimeLayout)
	return record, stored, nil
}

// forward calls the backend under its own deadline; a submitter hanging up
// does not cancel a record that is already assembled.
func (p *Pipeline) forward(ctx context.Context, collection string, record Record) (string, error) {
	ctx = context.WithoutCancel(ctx)
	if p.backendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.backendTimeout)
		defer cancel()
	}

	id, err := p.backend.Create(ctx, collection, record)
	if err != nil {
		var backendErr *BackendError
		if !errors.As(err, &backendErr) {
			err = &BackendError{Collection: collection, Op: "create", Err: err}
		}
		return "", err
	}
	return id, nil
}

package rewrite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tendant/simple-intake/pkg/intake"
)

// FieldProcessedAt records when a record was rewritten
const FieldProcessedAt = "processed_at"

// Defaults for a Job
const (
	DefaultCollection   = "videos"
	DefaultSourceField  = "problema"
	DefaultTargetField  = "descricao_ia"
	DefaultBatchSize    = 10
	DefaultInterval     = 5 * time.Minute
	DefaultPause        = time.Second
	DefaultWaitAttempts = 30
	DefaultWaitDelay    = 10 * time.Second
)

// ErrBackendNotReady indicates the content backend never answered the readiness probe
var ErrBackendNotReady = errors.New("content backend not ready")

// Pinger is implemented by backends that can report readiness
type Pinger interface {
	Ping(ctx context.Context) error
}

// Result summarises one batch
type Result struct {
	Processed int
	Skipped   int
	Failed    int
}

// Job rewrites the source field of pending records into the target field
type Job struct {
	store         intake.Store
	rewriter      Rewriter
	collection    string
	sourceField   string
	targetField   string
	contextFields []string
	batchSize     int
	interval      time.Duration
	pause         time.Duration
	waitAttempts  int
	waitDelay     time.Duration
	ping          func(ctx context.Context) error
	now           func() time.Time
	logger        *slog.Logger
}

// Option configures a Job
type Option func(*Job)

// WithCollection sets the collection to process
func WithCollection(collection string) Option {
	return func(j *Job) {
		if collection != "" {
			j.collection = collection
		}
	}
}

// WithFields sets the field read from and the field written to
func WithFields(source, target string) Option {
	return func(j *Job) {
		if source != "" {
			j.sourceField = source
		}
		if target != "" {
			j.targetField = target
		}
	}
}

// WithContextFields sets record fields passed to the rewriter as context
func WithContextFields(fields ...string) Option {
	return func(j *Job) {
		j.contextFields = fields
	}
}

// WithBatchSize sets how many records one run handles
func WithBatchSize(n int) Option {
	return func(j *Job) {
		if n > 0 {
			j.batchSize = n
		}
	}
}

// WithInterval sets the delay between runs of Run
func WithInterval(d time.Duration) Option {
	return func(j *Job) {
		if d > 0 {
			j.interval = d
		}
	}
}

// WithPause sets the delay between two records of a batch
func WithPause(d time.Duration) Option {
	return func(j *Job) {
		j.pause = d
	}
}

// WithWait configures the readiness probe run before each batch. A nil ping
// disables waiting.
func WithWait(ping func(ctx context.Context) error, attempts int, delay time.Duration) Option {
	return func(j *Job) {
		j.ping = ping
		if attempts > 0 {
			j.waitAttempts = attempts
		}
		if delay >= 0 {
			j.waitDelay = delay
		}
	}
}

// WithClock sets the time source for processed_at
func WithClock(now func() time.Time) Option {
	return func(j *Job) {
		if now != nil {
			j.now = now
		}
	}
}

// WithLogger sets the job logger
func WithLogger(logger *slog.Logger) Option {
	return func(j *Job) {
		if logger != nil {
			j.logger = logger
		}
	}
}

// NewJob creates a rewrite job. A store that implements Pinger is probed
// before each batch unless WithWait says otherwise.
func NewJob(store intake.Store, rewriter Rewriter, opts ...Option) (*Job, error) {
	if store == nil {
		return nil, errors.New("rewrite job requires a readable content backend")
	}
	if rewriter == nil {
		return nil, errors.New("rewrite job requires a rewriter")
	}

	j := &Job{
		store:         store,
		rewriter:      rewriter,
		collection:    DefaultCollection,
		sourceField:   DefaultSourceField,
		targetField:   DefaultTargetField,
		contextFields: []string{"cidade", "bairro"},
		batchSize:     DefaultBatchSize,
		interval:      DefaultInterval,
		pause:         DefaultPause,
		waitAttempts:  DefaultWaitAttempts,
		waitDelay:     DefaultWaitDelay,
		now:           time.Now,
		logger:        slog.Default(),
	}
	if pinger, ok := store.(Pinger); ok {
		j.ping = pinger.Ping
	}
	for _, opt := range opts {
		opt(j)
	}
	if j.sourceField == j.targetField {
		return nil, fmt.Errorf("source and target field must differ: %s", j.sourceField)
	}
	return j, nil
}

// Run processes a batch immediately and then once per interval until ctx is done
func (j *Job) Run(ctx context.Context) error {
	j.logger.Info("Rewrite job started", "collection", j.collection, "interval", j.interval)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		if _, err := j.RunOnce(ctx); err != nil && ctx.Err() == nil {
			j.logger.Error("Rewrite batch failed", "collection", j.collection, "err", err)
		}

		select {
		case <-ctx.Done():
			j.logger.Info("Rewrite job stopped", "collection", j.collection)
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce processes one batch of pending records
func (j *Job) RunOnce(ctx context.Context) (Result, error) {
	var result Result

	if err := j.waitForBackend(ctx); err != nil {
		return result, err
	}

	records, err := j.store.List(ctx, j.collection, intake.ListQuery{
		NullField: j.targetField,
		Limit:     j.batchSize,
	})
	if err != nil {
		return result, fmt.Errorf("failed to list pending records: %w", err)
	}
	j.logger.Info("Found records to rewrite", "collection", j.collection, "count", len(records))

	for i, record := range records {
		if i > 0 {
			if err := sleep(ctx, j.pause); err != nil {
				return result, err
			}
		}

		switch err := j.process(ctx, record); {
		case errors.Is(err, errNothingToRewrite):
			result.Skipped++
		case err != nil:
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			result.Failed++
			j.logger.Error("Failed to rewrite record", "collection", j.collection, "id", record.ID(), "err", err)
		default:
			result.Processed++
		}
	}

	j.logger.Info("Rewrite batch completed", "collection", j.collection,
		"processed", result.Processed, "skipped", result.Skipped, "failed", result.Failed)
	return result, nil
}

var errNothingToRewrite = errors.New("nothing to rewrite")

func (j *Job) process(ctx context.Context, record intake.Record) error {
	id := record.ID()
	if id == "" {
		return errors.New("record has no id")
	}

	source := strings.TrimSpace(record.String(j.sourceField))
	if source == "" {
		// An empty target keeps the record out of the next batch
		if err := j.store.Update(ctx, j.collection, id, intake.Record{
			j.targetField:    "",
			FieldProcessedAt: j.now().Format(time.RFC3339),
		}); err != nil {
			return err
		}
		j.logger.Debug("Skipped record without text", "collection", j.collection, "id", id)
		return errNothingToRewrite
	}

	details := make(map[string]string, len(j.contextFields))
	for _, field := range j.contextFields {
		if v := record.String(field); v != "" {
			details[field] = v
		}
	}

	rewritten, err := j.rewriter.Rewrite(ctx, source, details)
	if err != nil {
		return err
	}

	if err := j.store.Update(ctx, j.collection, id, intake.Record{
		j.targetField:    rewritten,
		FieldProcessedAt: j.now().Format(time.RFC3339),
	}); err != nil {
		return err
	}
	j.logger.Info("Rewrote record", "collection", j.collection, "id", id)
	return nil
}

func (j *Job) waitForBackend(ctx context.Context) error {
	if j.ping == nil {
		return nil
	}

	var err error
	for attempt := 1; attempt <= j.waitAttempts; attempt++ {
		if err = j.ping(ctx); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		j.logger.Warn("Content backend not ready", "attempt", attempt, "max_attempts", j.waitAttempts, "err", err)
		if attempt < j.waitAttempts {
			if err := sleep(ctx, j.waitDelay); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrBackendNotReady, j.waitAttempts, err)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/tendant/simple-intake/pkg/intake"
)

// Backend implements intake.Store using in-memory collections
type Backend struct {
	mu          sync.RWMutex
	collections map[string][]intake.Record
	nextID      int64
	creates     int
	failure     error
}

// New creates a new in-memory content backend
func New() *Backend {
	return &Backend{
		collections: make(map[string][]intake.Record),
	}
}

func (b *Backend) Create(ctx context.Context, collection string, record intake.Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failure != nil {
		return "", &intake.BackendError{Collection: collection, Op: "create", Err: b.failure}
	}

	b.nextID++
	id := strconv.FormatInt(b.nextID, 10)

	// Copy to avoid external modifications
	stored := copyRecord(record)
	stored[intake.FieldID] = id
	b.collections[collection] = append(b.collections[collection], stored)
	b.creates++

	return id, nil
}

func (b *Backend) List(ctx context.Context, collection string, query intake.ListQuery) ([]intake.Record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []intake.Record
	for _, record := range b.collections[collection] {
		if query.NullField != "" && record[query.NullField] != nil {
			continue
		}
		out = append(out, copyRecord(record))
	}

	if query.Newest {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].String(intake.FieldDatetime) > out[j].String(intake.FieldDatetime)
		})
	}
	if query.Limit > 0 && len(out) > query.Limit {
		out = out[:query.Limit]
	}
	return out, nil
}

func (b *Backend) Get(ctx context.Context, collection, id string) (intake.Record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, record := range b.collections[collection] {
		if record.ID() == id {
			return copyRecord(record), nil
		}
	}
	return nil, intake.ErrRecordNotFound
}

func (b *Backend) Update(ctx context.Context, collection, id string, patch intake.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, record := range b.collections[collection] {
		if record.ID() == id {
			for k, v := range patch {
				if k == intake.FieldID {
					continue
				}
				record[k] = v
			}
			return nil
		}
	}
	return intake.ErrRecordNotFound
}

// FailCreates makes subsequent Create calls fail with err; nil restores normal operation
func (b *Backend) FailCreates(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failure = err
}

// Creates returns the number of records created
func (b *Backend) Creates() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.creates
}

func copyRecord(record intake.Record) intake.Record {
	out := make(intake.Record, len(record)+1)
	for k, v := range record {
		out[k] = v
	}
	return out
}

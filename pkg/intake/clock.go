package intake

import (
	"strconv"
	"sync"
	"time"
)

// Stamper hands out receipt times that never go backwards, even if the
// wall clock is stepped.
type Stamper struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

// NewStamper creates a Stamper over the given clock; nil means time.Now
func NewStamper(now func() time.Time) *Stamper {
	if now == nil {
		now = time.Now
	}
	return &Stamper{now: now}
}

// Stamp returns the next receipt time
func (s *Stamper) Stamp() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.now()
	if t.Before(s.last) {
		t = s.last
	}
	s.last = t
	return t
}

func formatInt(i int64) string {
	return strconv.FormatInt(i, 10)
}

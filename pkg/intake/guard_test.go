package intake

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryGuard_ShouldProcess(t *testing.T) {
	g := NewMemoryGuard()

	assert.True(t, g.ShouldProcess("a"))
	assert.False(t, g.ShouldProcess("a"))
	assert.False(t, g.ShouldProcess("a"))

	assert.True(t, g.ShouldProcess("b"))
	assert.Equal(t, 2, g.Len())
}

func TestMemoryGuard_EmptyToken(t *testing.T) {
	g := NewMemoryGuard()

	for i := 0; i < 100; i++ {
		assert.True(t, g.ShouldProcess(""))
	}
	assert.Equal(t, 0, g.Len())
}

func TestMemoryGuard_Concurrent(t *testing.T) {
	const workers = 64

	g := NewMemoryGuard()
	var (
		admitted atomic.Int32
		start    = make(chan struct{})
		wg       sync.WaitGroup
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if g.ShouldProcess("same-token") {
				admitted.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), admitted.Load())
}

func TestMemoryGuard_Forget(t *testing.T) {
	g := NewMemoryGuard()

	assert.True(t, g.ShouldProcess("a"))
	g.Forget("a")
	assert.True(t, g.ShouldProcess("a"))
	assert.False(t, g.ShouldProcess("a"))

	// Forgetting unknown or empty tokens is harmless
	g.Forget("unknown")
	g.Forget("")
}

func TestMemoryGuard_TTL(t *testing.T) {
	now := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	g := NewMemoryGuard(WithGuardTTL(time.Hour), WithGuardClock(clock))

	assert.True(t, g.ShouldProcess("a"))
	now = now.Add(30 * time.Minute)
	assert.False(t, g.ShouldProcess("a"))

	now = now.Add(31 * time.Minute)
	assert.True(t, g.ShouldProcess("a"))
	assert.False(t, g.ShouldProcess("a"))
}

func TestMemoryGuard_TTLSweep(t *testing.T) {
	now := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	g := NewMemoryGuard(WithGuardTTL(time.Minute), WithGuardClock(clock))
	for _, token := range []string{"a", "b", "c"} {
		assert.True(t, g.ShouldProcess(token))
	}
	assert.Equal(t, 3, g.Len())

	now = now.Add(2 * time.Minute)
	assert.True(t, g.ShouldProcess("d"))
	assert.Equal(t, 1, g.Len())
}

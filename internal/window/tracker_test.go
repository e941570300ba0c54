package window_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gosuda/sentinel/internal/window"
)

func TestCountSince(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("counts only events inside the window", func(t *testing.T) {
		t.Parallel()

		tr := window.New(time.Hour, 100, window.WithClock(func() time.Time { return base }))
		tr.Record("login:alice", base.Add(-45*time.Minute))
		tr.Record("login:alice", base.Add(-10*time.Minute))
		tr.Record("login:alice", base.Add(-1*time.Minute))

		assert.Equal(t, 3, tr.CountSince("login:alice", time.Hour))
		assert.Equal(t, 2, tr.CountSince("login:alice", 15*time.Minute))
		assert.Equal(t, 1, tr.CountSince("login:alice", 5*time.Minute))
	})

	t.Run("unknown key counts zero", func(t *testing.T) {
		t.Parallel()

		tr := window.New(time.Hour, 100)
		assert.Equal(t, 0, tr.CountSince("nobody", time.Hour))
	})

	t.Run("events beyond max window are pruned", func(t *testing.T) {
		t.Parallel()

		tr := window.New(time.Hour, 100, window.WithClock(func() time.Time { return base }))
		tr.Record("k", base.Add(-2*time.Hour))
		tr.Record("k", base.Add(-30*time.Minute))

		assert.Equal(t, 1, tr.CountSince("k", 24*time.Hour))
	})

	t.Run("per-key cap drops oldest", func(t *testing.T) {
		t.Parallel()

		tr := window.New(time.Hour, 3, window.WithClock(func() time.Time { return base }))
		for i := 0; i < 5; i++ {
			tr.Record("k", base.Add(time.Duration(-5+i)*time.Minute))
		}

		recent := tr.Recent("k", 10)
		assert.Len(t, recent, 3)
		assert.Equal(t, base.Add(-3*time.Minute), recent[0])
	})
}

func TestRecent(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := window.New(time.Hour, 100, window.WithClock(func() time.Time { return base }))

	tr.Record("k", base.Add(-3*time.Minute))
	tr.Record("k", base.Add(-2*time.Minute))
	tr.Record("k", base.Add(-1*time.Minute))

	got := tr.Recent("k", 2)
	assert.Equal(t, []time.Time{base.Add(-2 * time.Minute), base.Add(-1 * time.Minute)}, got)

	assert.Nil(t, tr.Recent("missing", 2))
}

func TestSweep(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := window.New(time.Hour, 100, window.WithClock(func() time.Time { return base }))

	tr.Record("stale", base.Add(-2*time.Hour))
	tr.Record("fresh", base.Add(-5*time.Minute))
	assert.Equal(t, 2, tr.Len())

	removed := tr.Sweep()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, tr.Len())
	assert.Equal(t, 1, tr.CountSince("fresh", time.Hour))
}

func TestConcurrentRecord(t *testing.T) {
	t.Parallel()

	tr := window.New(time.Hour, 10000)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.Record("shared", time.Now())
				tr.CountSince("shared", time.Hour)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 800, tr.CountSince("shared", time.Hour))
}

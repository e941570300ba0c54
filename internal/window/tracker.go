// Package window implements a sliding-time-window event counter shared by
// all detectors. Keys are arbitrary strings; each key holds a time-ordered
// sequence of event timestamps bounded by the largest configured window.
package window

import (
	"context"
	"sync"
	"time"
)

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// Tracker counts events per key within sliding time windows. Reads prune
// entries older than the maximum window lazily, amortizing cleanup; a
// periodic sweep drops keys with no recent events so memory stays bounded.
//
// Safe for concurrent Record/CountSince/Recent calls: the key map is guarded
// by an RWMutex and each sequence has its own lock.
type Tracker struct {
	maxWindow  time.Duration
	maxPerKey  int
	sweepEvery time.Duration
	now        func() time.Time

	mu   sync.RWMutex
	keys map[string]*sequence
}

type sequence struct {
	mu    sync.Mutex
	times []time.Time
}

// New creates a tracker retaining at most maxWindow of history and
// maxPerKey timestamps per key.
func New(maxWindow time.Duration, maxPerKey int, opts ...Option) *Tracker {
	t := &Tracker{
		maxWindow:  maxWindow,
		maxPerKey:  maxPerKey,
		sweepEvery: 5 * time.Minute,
		now:        time.Now,
		keys:       make(map[string]*sequence),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Record appends an event timestamp for key.
func (t *Tracker) Record(key string, at time.Time) {
	seq := t.sequenceFor(key)

	seq.mu.Lock()
	defer seq.mu.Unlock()

	seq.times = append(seq.times, at)
	if len(seq.times) > t.maxPerKey {
		// Drop the oldest; copy so the backing array does not pin them.
		trimmed := make([]time.Time, t.maxPerKey)
		copy(trimmed, seq.times[len(seq.times)-t.maxPerKey:])
		seq.times = trimmed
	}
}

// CountSince returns the number of events for key within [now-window, now].
func (t *Tracker) CountSince(key string, window time.Duration) int {
	t.mu.RLock()
	seq, ok := t.keys[key]
	t.mu.RUnlock()
	if !ok {
		return 0
	}

	now := t.now()

	seq.mu.Lock()
	defer seq.mu.Unlock()

	seq.prune(now.Add(-t.maxWindow))

	cutoff := now.Add(-window)
	count := 0
	for i := len(seq.times) - 1; i >= 0; i-- {
		if seq.times[i].Before(cutoff) {
			break
		}
		count++
	}
	return count
}

// Recent returns up to limit of the most recent event timestamps for key,
// oldest first.
func (t *Tracker) Recent(key string, limit int) []time.Time {
	t.mu.RLock()
	seq, ok := t.keys[key]
	t.mu.RUnlock()
	if !ok {
		return nil
	}

	seq.mu.Lock()
	defer seq.mu.Unlock()

	seq.prune(t.now().Add(-t.maxWindow))

	n := len(seq.times)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]time.Time, n)
	copy(out, seq.times[len(seq.times)-n:])
	return out
}

// Len returns the number of tracked keys, for metrics.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.keys)
}

// Run sweeps idle keys on a fixed interval until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Sweep()
		}
	}
}

// Sweep removes keys with no events inside the maximum window.
func (t *Tracker) Sweep() int {
	cutoff := t.now().Add(-t.maxWindow)

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for key, seq := range t.keys {
		seq.mu.Lock()
		seq.prune(cutoff)
		empty := len(seq.times) == 0
		seq.mu.Unlock()

		if empty {
			delete(t.keys, key)
			removed++
		}
	}
	return removed
}

func (t *Tracker) sequenceFor(key string) *sequence {
	t.mu.RLock()
	seq, ok := t.keys[key]
	t.mu.RUnlock()
	if ok {
		return seq
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if seq, ok = t.keys[key]; ok {
		return seq
	}
	seq = &sequence{}
	t.keys[key] = seq
	return seq
}

// prune drops timestamps before cutoff. The sequence is time-ordered, so a
// single scan from the front suffices. Caller holds seq.mu.
func (s *sequence) prune(cutoff time.Time) {
	i := 0
	for i < len(s.times) && s.times[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		remaining := make([]time.Time, len(s.times)-i)
		copy(remaining, s.times[i:])
		s.times = remaining
	}
}

package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/sentinel/internal/domain"
	"github.com/gosuda/sentinel/internal/ledger"
)

// --- mock LedgerRepository ---

type memLedger struct {
	mu        sync.Mutex
	entries   []*domain.AuditEntry
	appendErr error
}

func (m *memLedger) Append(_ context.Context, entry *domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	cp := *entry
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *memLedger) Last(context.Context) (*domain.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) == 0 {
		return nil, domain.ErrNotFound
	}
	cp := *m.entries[len(m.entries)-1]
	return &cp, nil
}

func (m *memLedger) Range(_ context.Context, fromID, toID int64) ([]*domain.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.AuditEntry
	for _, e := range m.entries {
		if e.ID >= fromID && e.ID <= toID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memLedger) CountByType(context.Context, time.Time, time.Time) (map[domain.EventType]int64, error) {
	return nil, nil
}

func (m *memLedger) CountDenied(context.Context, time.Time, time.Time) (int64, error) {
	return 0, nil
}

func (m *memLedger) TopOffenders(context.Context, time.Time, time.Time, int) ([]domain.ActorCount, error) {
	return nil, nil
}

func (m *memLedger) Bounds(context.Context, time.Time, time.Time) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) == 0 {
		return 0, 0, nil
	}
	return m.entries[0].ID, m.entries[len(m.entries)-1].ID, nil
}

// truncLedger stores timestamps at microsecond precision, the way a
// timestamptz column does.
type truncLedger struct {
	memLedger
}

func (m *truncLedger) Append(ctx context.Context, entry *domain.AuditEntry) error {
	cp := *entry
	cp.CreatedAt = cp.CreatedAt.Truncate(time.Microsecond)
	return m.memLedger.Append(ctx, &cp)
}

// tamper mutates a stored entry in place, bypassing the chain.
func (m *memLedger) tamper(id int64, mutate func(*domain.AuditEntry)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			mutate(e)
			return
		}
	}
}

func newChain(t *testing.T, repo domain.LedgerRepository, fallback *ledger.Fallback) *ledger.Chain {
	t.Helper()
	c, err := ledger.NewChain(t.Context(), repo, fallback, ledger.DefaultConfig(), zerolog.Nop())
	require.NoError(t, err)
	return c
}

func appendEntries(t *testing.T, c *ledger.Chain, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		actorID := uuid.New()
		_, err := c.Append(t.Context(), &domain.AuditEntry{
			EventType: domain.EventDataAccess,
			ActorID:   &actorID,
			Action:    "read record",
			Result:    domain.ResultGranted,
			Metadata:  map[string]string{"table": "accounts", "rows": "1"},
		})
		require.NoError(t, err)
	}
}

func TestChainAppend(t *testing.T) {
	t.Parallel()

	t.Run("links entries from genesis", func(t *testing.T) {
		t.Parallel()

		repo := &memLedger{}
		c := newChain(t, repo, nil)

		first, err := c.Append(t.Context(), &domain.AuditEntry{
			EventType: domain.EventAuthLogin,
			Action:    "login",
			Result:    domain.ResultGranted,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), first.ID)
		assert.Equal(t, ledger.Genesis, first.PreviousHash)
		assert.Equal(t, ledger.EntryHash(first), first.IntegrityHash)

		second, err := c.Append(t.Context(), &domain.AuditEntry{
			EventType: domain.EventAuthLogout,
			Action:    "logout",
			Result:    domain.ResultGranted,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), second.ID)
		assert.Equal(t, first.IntegrityHash, second.PreviousHash)
	})

	t.Run("resumes cursor from persisted head", func(t *testing.T) {
		t.Parallel()

		repo := &memLedger{}
		c := newChain(t, repo, nil)
		appendEntries(t, c, 3)

		resumed := newChain(t, repo, nil)
		head, nextID := resumed.Head()
		assert.Equal(t, int64(4), nextID)
		assert.Equal(t, repo.entries[2].IntegrityHash, head)
	})

	t.Run("metadata order does not change the hash", func(t *testing.T) {
		t.Parallel()

		now := time.Now().UTC()
		a := &domain.AuditEntry{
			ID:        7,
			EventType: domain.EventDataAccess,
			Metadata:  map[string]string{"a": "1", "b": "2", "c": "3"},
			CreatedAt: now,
		}
		b := &domain.AuditEntry{
			ID:        7,
			EventType: domain.EventDataAccess,
			Metadata:  map[string]string{"c": "3", "b": "2", "a": "1"},
			CreatedAt: now,
		}
		assert.Equal(t, ledger.EntryHash(a), ledger.EntryHash(b))
	})

	t.Run("strict event type fails closed on storage error", func(t *testing.T) {
		t.Parallel()

		repo := &memLedger{}
		c := newChain(t, repo, nil)
		appendEntries(t, c, 1)

		repo.mu.Lock()
		repo.appendErr = errors.New("connection refused")
		repo.mu.Unlock()

		_, err := c.Append(t.Context(), &domain.AuditEntry{
			EventType: domain.EventPasswordChanged,
			Action:    "change password",
			Result:    domain.ResultGranted,
		})
		require.ErrorIs(t, err, domain.ErrStorageUnavailable)

		// Cursor must not advance on a failed strict append.
		_, nextID := c.Head()
		assert.Equal(t, int64(2), nextID)
	})

	t.Run("non-strict event type falls back and succeeds", func(t *testing.T) {
		t.Parallel()

		repo := &memLedger{}
		fb := ledger.NewFallback("", repo, zerolog.Nop())
		c := newChain(t, repo, fb)

		repo.mu.Lock()
		repo.appendErr = errors.New("connection refused")
		repo.mu.Unlock()

		entry, err := c.Append(t.Context(), &domain.AuditEntry{
			EventType: domain.EventDataAccess,
			Action:    "read record",
			Result:    domain.ResultGranted,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), entry.ID)
		assert.Equal(t, 1, fb.Depth())

		// The cursor advances so later entries still link to this one.
		_, nextID := c.Head()
		assert.Equal(t, int64(2), nextID)
	})

	t.Run("no fallback configured surfaces storage error", func(t *testing.T) {
		t.Parallel()

		repo := &memLedger{appendErr: errors.New("connection refused")}
		c := newChain(t, repo, nil)

		_, err := c.Append(t.Context(), &domain.AuditEntry{
			EventType: domain.EventDataAccess,
			Action:    "read record",
			Result:    domain.ResultGranted,
		})
		require.ErrorIs(t, err, domain.ErrStorageUnavailable)
	})
}

func TestChainConcurrentAppend(t *testing.T) {
	t.Parallel()

	repo := &memLedger{}
	c := newChain(t, repo, nil)

	const n = 16
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			actorID := uuid.New()
			_, err := c.Append(t.Context(), &domain.AuditEntry{
				EventType: domain.EventDataAccess,
				ActorID:   &actorID,
				Action:    "read record",
				Result:    domain.ResultGranted,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	entries, err := repo.Range(t.Context(), 1, n)
	require.NoError(t, err)
	require.Len(t, entries, n)

	// Every entry links to exactly the integrity hash of its predecessor,
	// regardless of goroutine interleaving.
	prev := ledger.Genesis
	for i, e := range entries {
		assert.Equal(t, int64(i+1), e.ID)
		assert.Equal(t, prev, e.PreviousHash, "entry %d linkage", e.ID)
		assert.Equal(t, ledger.EntryHash(e), e.IntegrityHash)
		prev = e.IntegrityHash
	}
}

func TestVerifyRange(t *testing.T) {
	t.Parallel()

	t.Run("intact chain verifies clean", func(t *testing.T) {
		t.Parallel()

		repo := &memLedger{}
		c := newChain(t, repo, nil)
		appendEntries(t, c, 5)

		report, err := c.VerifyRange(t.Context(), 1, 5)
		require.NoError(t, err)
		assert.True(t, report.OK)
		assert.Empty(t, report.Violations)
	})

	t.Run("empty range is vacuously ok", func(t *testing.T) {
		t.Parallel()

		repo := &memLedger{}
		c := newChain(t, repo, nil)

		report, err := c.VerifyRange(t.Context(), 1, 100)
		require.NoError(t, err)
		assert.True(t, report.OK)
	})

	t.Run("survives timestamp truncation on store", func(t *testing.T) {
		t.Parallel()

		repo := &truncLedger{}
		c := newChain(t, repo, nil)

		// Nanosecond-precision creation times; the store keeps only
		// microseconds, so re-read entries must still hash identically.
		for i := 0; i < 3; i++ {
			_, err := c.Append(t.Context(), &domain.AuditEntry{
				EventType: domain.EventDataAccess,
				Action:    "read record",
				Result:    domain.ResultGranted,
				CreatedAt: time.Date(2026, 3, 1, 9, 0, i, 123456789, time.UTC),
			})
			require.NoError(t, err)
		}

		report, err := c.VerifyRange(t.Context(), 1, 3)
		require.NoError(t, err)
		assert.True(t, report.OK)
		assert.Empty(t, report.Violations)
	})

	t.Run("single tampered entry yields single violation", func(t *testing.T) {
		t.Parallel()

		repo := &memLedger{}
		c := newChain(t, repo, nil)
		appendEntries(t, c, 5)

		repo.tamper(3, func(e *domain.AuditEntry) {
			e.Action = "rewritten after the fact"
		})

		report, err := c.VerifyRange(t.Context(), 1, 5)
		require.NoError(t, err)
		assert.False(t, report.OK)
		require.Len(t, report.Violations, 1)
		assert.Equal(t, int64(3), report.Violations[0].EntryID)
		assert.Equal(t, domain.ViolationContentMismatch, report.Violations[0].Kind)
	})

	t.Run("broken linkage is a discontinuity", func(t *testing.T) {
		t.Parallel()

		repo := &memLedger{}
		c := newChain(t, repo, nil)
		appendEntries(t, c, 4)

		repo.tamper(2, func(e *domain.AuditEntry) {
			e.PreviousHash = "0000000000000000"
		})

		report, err := c.VerifyRange(t.Context(), 1, 4)
		require.NoError(t, err)
		assert.False(t, report.OK)

		var kinds []domain.ViolationKind
		for _, v := range report.Violations {
			kinds = append(kinds, v.Kind)
		}
		// Rewriting previous_hash breaks both the linkage and the entry's
		// own content hash.
		assert.Contains(t, kinds, domain.ViolationDiscontinuity)
		assert.Contains(t, kinds, domain.ViolationContentMismatch)
		for _, v := range report.Violations {
			assert.Equal(t, int64(2), v.EntryID)
		}
	})

	t.Run("missing entry is a discontinuity", func(t *testing.T) {
		t.Parallel()

		repo := &memLedger{}
		c := newChain(t, repo, nil)
		appendEntries(t, c, 5)

		repo.mu.Lock()
		repo.entries = append(repo.entries[:2], repo.entries[3:]...)
		repo.mu.Unlock()

		report, err := c.VerifyRange(t.Context(), 1, 5)
		require.NoError(t, err)
		assert.False(t, report.OK)

		found := false
		for _, v := range report.Violations {
			if v.Kind == domain.ViolationDiscontinuity && v.EntryID == 4 {
				found = true
			}
		}
		assert.True(t, found, "expected discontinuity at the gap, got %v", report.Violations)
	})

	t.Run("partial range links against prior stored hash", func(t *testing.T) {
		t.Parallel()

		repo := &memLedger{}
		c := newChain(t, repo, nil)
		appendEntries(t, c, 6)

		report, err := c.VerifyRange(t.Context(), 3, 6)
		require.NoError(t, err)
		assert.True(t, report.OK)
	})
}

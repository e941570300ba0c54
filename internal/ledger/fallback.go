package ledger

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/gosuda/sentinel/internal/domain"
)

// Fallback captures fully hashed ledger entries that could not be persisted
// and replays them in order once storage recovers. Entries are also
// journaled to a local JSONL file so an operator can replay them after a
// crash; the ledger's primary-key constraint makes replay idempotent.
type Fallback struct {
	path   string
	repo   domain.LedgerRepository
	logger zerolog.Logger

	mu    sync.Mutex
	queue []*domain.AuditEntry
	wake  chan struct{}
}

// NewFallback creates a fallback sink journaling to path. An empty path
// disables the journal file; the in-memory queue still replays.
func NewFallback(path string, repo domain.LedgerRepository, logger zerolog.Logger) *Fallback {
	return &Fallback{
		path:   path,
		repo:   repo,
		logger: logger.With().Str("component", "ledger_fallback").Logger(),
		wake:   make(chan struct{}, 1),
	}
}

// Enqueue adds an entry to the replay queue and appends it to the journal.
// Journal write failures are logged, never propagated: the fallback is
// best-effort by contract.
func (f *Fallback) Enqueue(entry *domain.AuditEntry) {
	f.mu.Lock()
	f.queue = append(f.queue, entry)
	f.mu.Unlock()

	f.journal(entry)

	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// Depth returns the number of entries awaiting replay.
func (f *Fallback) Depth() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// Run replays queued entries in order with exponential backoff until ctx is
// cancelled. A slow ticker re-attempts abandoned heads even when no new
// entries arrive, so nothing is silently dropped while the process lives.
func (f *Fallback) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-f.wake:
		case <-ticker.C:
		}

		f.drain(ctx)
	}
}

func (f *Fallback) drain(ctx context.Context) {
	for {
		f.mu.Lock()
		if len(f.queue) == 0 {
			f.mu.Unlock()
			return
		}
		head := f.queue[0]
		f.mu.Unlock()

		op := func() error {
			return f.repo.Append(ctx, head)
		}
		policy := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
		if err := backoff.Retry(op, policy); err != nil {
			f.logger.Error().Err(err).Int64("entry_id", head.ID).Msg("fallback replay abandoned")
			return
		}

		f.logger.Info().Int64("entry_id", head.ID).Msg("fallback entry replayed")

		f.mu.Lock()
		f.queue = f.queue[1:]
		f.mu.Unlock()
	}
}

func (f *Fallback) journal(entry *domain.AuditEntry) {
	if f.path == "" {
		return
	}

	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		f.logger.Error().Err(err).Str("path", f.path).Msg("fallback journal open failed")
		return
	}
	defer file.Close()

	line, err := json.Marshal(entry)
	if err != nil {
		f.logger.Error().Err(err).Int64("entry_id", entry.ID).Msg("fallback journal marshal failed")
		return
	}

	if _, err := file.Write(append(line, '\n')); err != nil {
		f.logger.Error().Err(err).Int64("entry_id", entry.ID).Msg("fallback journal write failed")
	}
}

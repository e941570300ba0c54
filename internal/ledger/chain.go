package ledger

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gosuda/sentinel/internal/domain"
)

// Genesis is the fixed previous_hash of the first ledger entry.
var Genesis = func() string {
	sum := sha256.Sum256([]byte("sentinel/ledger/genesis/v1"))
	return hex.EncodeToString(sum[:])
}()

// Config holds chain behavior knobs.
type Config struct {
	// WriteTimeout bounds each persistence call.
	WriteTimeout time.Duration
	// StrictEventTypes fail closed when persistence is unavailable instead
	// of falling back, for actions that require synchronous audit
	// guarantees.
	StrictEventTypes map[domain.EventType]bool
}

// DefaultConfig returns the chain defaults.
func DefaultConfig() Config {
	return Config{
		WriteTimeout: 3 * time.Second,
		StrictEventTypes: map[domain.EventType]bool{
			domain.EventPasswordChanged: true,
		},
	}
}

// Chain is the append-only hash-linked ledger writer and verifier.
//
// Append is a serialization point: the previous-hash cursor is the only
// mutable shared state and is guarded by a single mutex so linkage is never
// computed from stale state.
type Chain struct {
	repo     domain.LedgerRepository
	fallback *Fallback // nil disables the fallback path
	cfg      Config
	logger   zerolog.Logger

	mu       sync.Mutex
	prevHash string
	nextID   int64
}

// NewChain initializes the previous-hash cursor from the most recent
// persisted entry, or from Genesis when the ledger is empty.
func NewChain(ctx context.Context, repo domain.LedgerRepository, fallback *Fallback, cfg Config, logger zerolog.Logger) (*Chain, error) {
	c := &Chain{
		repo:     repo,
		fallback: fallback,
		cfg:      cfg,
		logger:   logger.With().Str("component", "ledger").Logger(),
		prevHash: Genesis,
		nextID:   1,
	}

	last, err := repo.Last(ctx)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		// Empty ledger; start at genesis.
	case err != nil:
		return nil, fmt.Errorf("ledger.NewChain: load last entry: %w", err)
	default:
		c.prevHash = last.IntegrityHash
		c.nextID = last.ID + 1
	}

	return c, nil
}

// Append assigns the next id, links the entry to the current chain head,
// computes its integrity hash, and persists it.
//
// Persistence failures never block the caller's primary operation: unless
// the entry's event type is in the strict set, the fully hashed entry is
// handed to the fallback sink for out-of-band replay and Append still
// succeeds. Strict event types fail closed without advancing the cursor.
func (c *Chain) Append(ctx context.Context, entry *domain.AuditEntry) (*domain.AuditEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	// timestamptz keeps microseconds; the hash must cover exactly what the
	// store hands back on re-read or every verification reports a mismatch.
	entry.CreatedAt = entry.CreatedAt.UTC().Truncate(time.Microsecond)

	entry.ID = c.nextID
	entry.PreviousHash = c.prevHash
	entry.IntegrityHash = EntryHash(entry)

	wctx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
	defer cancel()

	if err := c.repo.Append(wctx, entry); err != nil {
		if c.cfg.StrictEventTypes[entry.EventType] {
			entry.ID = 0
			entry.PreviousHash = ""
			entry.IntegrityHash = ""
			return nil, fmt.Errorf("ledger.Chain.Append: %v: %w", err, domain.ErrStorageUnavailable)
		}
		if c.fallback == nil {
			return nil, fmt.Errorf("ledger.Chain.Append: %v: %w", err, domain.ErrStorageUnavailable)
		}

		c.logger.Warn().Err(err).Int64("entry_id", entry.ID).Msg("ledger write failed, queued to fallback")
		c.fallback.Enqueue(entry)
	}

	c.prevHash = entry.IntegrityHash
	c.nextID++

	return entry, nil
}

// Head returns the current chain head hash and the next id to be assigned.
func (c *Chain) Head() (string, int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prevHash, c.nextID
}

// EntryHash computes the integrity hash of an entry over its canonical
// byte encoding. The stored IntegrityHash field is not part of the input;
// PreviousHash is.
func EntryHash(e *domain.AuditEntry) string {
	sum := sha256.Sum256(canonicalBytes(e))
	return hex.EncodeToString(sum[:])
}

// canonicalBytes produces a deterministic, length-prefixed encoding of all
// hashed entry fields in a fixed order. Metadata keys are sorted so map
// iteration order cannot change the hash.
func canonicalBytes(e *domain.AuditEntry) []byte {
	var buf bytes.Buffer

	writeUint64 := func(v uint64) {
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], v)
		buf.Write(b[:])
	}
	writeString := func(s string) {
		writeUint64(uint64(len(s)))
		buf.WriteString(s)
	}

	writeUint64(uint64(e.ID))
	writeString(string(e.EventType))
	if e.ActorID != nil {
		writeString(e.ActorID.String())
	} else {
		writeString("")
	}
	writeString(e.ActorName)
	writeString(e.Action)
	writeString(e.ResourceType)
	writeString(e.ResourceID)
	writeString(string(e.Classification))
	writeString(string(e.Result))
	writeString(e.Client.IP)
	writeString(e.Client.UserAgent)
	writeString(e.Client.Method)
	writeString(e.Client.Path)
	writeString(strconv.Itoa(e.Client.StatusCode))
	writeString(e.Client.Country)

	keys := make([]string, 0, len(e.Metadata))
	for k := range e.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	writeUint64(uint64(len(keys)))
	for _, k := range keys {
		writeString(k)
		writeString(e.Metadata[k])
	}

	writeString(e.CreatedAt.UTC().Format(time.RFC3339Nano))
	writeString(e.PreviousHash)

	return buf.Bytes()
}

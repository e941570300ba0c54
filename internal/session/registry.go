// Package session tracks live sessions per principal, enforcing concurrency
// limits plus idle and absolute timeouts, and records every lifecycle
// transition on the audit ledger.
package session

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gosuda/sentinel/internal/domain"
	"github.com/gosuda/sentinel/internal/metrics"
)

// AuditRecorder is the ledger port used for lifecycle entries.
type AuditRecorder interface {
	Append(ctx context.Context, entry *domain.AuditEntry) (*domain.AuditEntry, error)
}

// Config holds session policy knobs.
type Config struct {
	JWTSecret       string
	MaxConcurrent   int           // active sessions per principal
	IdleTimeout     time.Duration // rolling expiry extension on each touch
	AbsoluteTimeout time.Duration // hard ceiling from session creation
	WarnThreshold   time.Duration // remaining time below which Touch warns
	SweepInterval   time.Duration
	SweepBatchSize  int // above this, sweep audit entries coalesce into one summary
}

// DefaultConfig returns the session policy defaults.
func DefaultConfig(jwtSecret string) Config {
	return Config{
		JWTSecret:       jwtSecret,
		MaxConcurrent:   3,
		IdleTimeout:     30 * time.Minute,
		AbsoluteTimeout: 24 * time.Hour,
		WarnThreshold:   5 * time.Minute,
		SweepInterval:   5 * time.Minute,
		SweepBatchSize:  20,
	}
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// Registry manages session lifecycle. Eviction is atomic with respect to
// Create: a per-principal lock serializes simultaneous logins so the
// concurrency limit can never be bypassed by a race.
type Registry struct {
	repo     domain.SessionRepository
	recorder AuditRecorder
	cfg      Config
	logger   zerolog.Logger
	now      func() time.Time

	// OnExpired, when set, is invoked once per session terminated by the
	// sweep so detectors can observe mass-timeout patterns.
	OnExpired func(ctx context.Context, s *domain.Session)

	mu         sync.Mutex
	principals map[uuid.UUID]*sync.Mutex
}

// NewRegistry creates a session registry.
func NewRegistry(repo domain.SessionRepository, recorder AuditRecorder, cfg Config, logger zerolog.Logger, opts ...Option) *Registry {
	r := &Registry{
		repo:       repo,
		recorder:   recorder,
		cfg:        cfg,
		logger:     logger.With().Str("component", "session").Logger(),
		now:        time.Now,
		principals: make(map[uuid.UUID]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create opens a new session for the principal, evicting the
// least-recently-active one first when the concurrency limit is reached.
// Returns the session and its signed bearer token.
func (r *Registry) Create(ctx context.Context, principalID uuid.UUID, client domain.ClientContext) (*domain.Session, string, error) {
	lock := r.principalLock(principalID)
	lock.Lock()
	defer lock.Unlock()

	active, err := r.repo.ListActiveByPrincipal(ctx, principalID)
	if err != nil {
		return nil, "", fmt.Errorf("session.Registry.Create: list active: %w", err)
	}

	for len(active) >= r.cfg.MaxConcurrent {
		victim := leastRecentlyActive(active)
		if err := r.evict(ctx, victim); err != nil {
			return nil, "", fmt.Errorf("session.Registry.Create: %w", err)
		}
		active = withoutSession(active, victim.ID)
	}

	now := r.now()
	s := &domain.Session{
		ID:                uuid.New(),
		PrincipalID:       principalID,
		TokenID:           uuid.New(),
		CreatedAt:         now,
		LastActivity:      now,
		AbsoluteExpiresAt: now.Add(r.cfg.AbsoluteTimeout),
		Client:            client,
		Active:            true,
	}
	s.ExpiresAt = r.rollingExpiry(s, now)

	if err := r.repo.Create(ctx, s); err != nil {
		return nil, "", fmt.Errorf("session.Registry.Create: %w", err)
	}

	token, err := IssueToken(r.cfg.JWTSecret, principalID, s.TokenID, s.AbsoluteExpiresAt)
	if err != nil {
		return nil, "", fmt.Errorf("session.Registry.Create: %w", err)
	}

	r.recordLifecycle(ctx, s, domain.EventSessionCreated, "created")

	return s, token, nil
}

// Touch validates that the session is active and unexpired, extends the
// rolling expiry, and reports whether the session is close enough to
// expiring that the caller should surface a renewal prompt.
//
// Idle and absolute timeouts are independent; whichever elapsed first wins,
// and a touch after either returns ErrSessionExpired rather than silently
// succeeding.
func (r *Registry) Touch(ctx context.Context, tokenID uuid.UUID, client domain.ClientContext) (*domain.Session, bool, error) {
	s, err := r.repo.GetByTokenID(ctx, tokenID)
	if err != nil {
		return nil, false, fmt.Errorf("session.Registry.Touch: %w", domain.ErrSessionNotFound)
	}
	if !s.Active {
		return nil, false, fmt.Errorf("session.Registry.Touch: %w", domain.ErrSessionNotFound)
	}

	now := r.now()
	if reason, expired := expiryReason(s, now); expired {
		if err := r.repo.Invalidate(ctx, s.ID, reason); err != nil {
			r.logger.Error().Err(err).Str("session_id", s.ID.String()).Msg("invalidate expired session")
		}
		r.recordLifecycle(ctx, s, domain.EventSessionExpired, string(reason))
		return nil, false, fmt.Errorf("session.Registry.Touch: %w", domain.ErrSessionExpired)
	}

	s.LastActivity = now
	s.ExpiresAt = r.rollingExpiry(s, now)
	s.Client = client

	if err := r.repo.Update(ctx, s); err != nil {
		return nil, false, fmt.Errorf("session.Registry.Touch: %w", err)
	}

	warning := s.ExpiresAt.Sub(now) < r.cfg.WarnThreshold
	return s, warning, nil
}

// Invalidate terminates a session by token id with the given reason.
func (r *Registry) Invalidate(ctx context.Context, tokenID uuid.UUID, reason domain.InvalidateReason) error {
	s, err := r.repo.GetByTokenID(ctx, tokenID)
	if err != nil {
		return fmt.Errorf("session.Registry.Invalidate: %w", domain.ErrSessionNotFound)
	}

	if err := r.repo.Invalidate(ctx, s.ID, reason); err != nil {
		return fmt.Errorf("session.Registry.Invalidate: %w", err)
	}

	event := domain.EventAuthLogout
	if reason != domain.ReasonLogout {
		event = domain.EventSessionExpired
	}
	r.recordLifecycle(ctx, s, event, string(reason))

	return nil
}

// Authorize parses a bearer token and touches the referenced session.
func (r *Registry) Authorize(ctx context.Context, token string, client domain.ClientContext) (*domain.Session, bool, error) {
	tokenID, _, err := ParseToken(r.cfg.JWTSecret, token)
	if err != nil {
		return nil, false, fmt.Errorf("session.Registry.Authorize: %w", domain.ErrSessionNotFound)
	}
	return r.Touch(ctx, tokenID, client)
}

// Logout terminates the session referenced by a bearer token.
func (r *Registry) Logout(ctx context.Context, token string) error {
	tokenID, _, err := ParseToken(r.cfg.JWTSecret, token)
	if err != nil {
		return fmt.Errorf("session.Registry.Logout: %w", domain.ErrSessionNotFound)
	}
	return r.Invalidate(ctx, tokenID, domain.ReasonLogout)
}

// SweepExpired terminates every session past its expiry and returns the
// count. Below the batch threshold each termination gets its own ledger
// entry; above it a single summary entry avoids a write storm.
func (r *Registry) SweepExpired(ctx context.Context) (int, error) {
	now := r.now()

	expired, err := r.repo.ExpireBefore(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("session.Registry.SweepExpired: %w", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}

	if len(expired) <= r.cfg.SweepBatchSize {
		for _, s := range expired {
			reason, _ := expiryReason(s, now)
			r.recordLifecycle(ctx, s, domain.EventSessionExpired, string(reason))
		}
	} else {
		_, err := r.recorder.Append(ctx, &domain.AuditEntry{
			EventType: domain.EventSessionSweep,
			Action:    "sweep_expired",
			Result:    domain.ResultGranted,
			Metadata: map[string]string{
				"terminated": strconv.Itoa(len(expired)),
			},
		})
		if err != nil {
			r.logger.Error().Err(err).Msg("sweep summary audit entry")
		}
	}

	if r.OnExpired != nil {
		for _, s := range expired {
			r.OnExpired(ctx, s)
		}
	}

	r.logger.Info().Int("terminated", len(expired)).Msg("session sweep complete")
	return len(expired), nil
}

// Run sweeps expired sessions on a fixed interval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.SweepExpired(ctx); err != nil {
				r.logger.Error().Err(err).Msg("session sweep")
			}
		}
	}
}

func (r *Registry) evict(ctx context.Context, victim *domain.Session) error {
	if err := r.repo.Invalidate(ctx, victim.ID, domain.ReasonEvicted); err != nil {
		return fmt.Errorf("evict session %s: %w", victim.ID, err)
	}
	metrics.SessionsEvicted.Inc()
	r.recordLifecycle(ctx, victim, domain.EventSessionEvicted, string(domain.ReasonEvicted))
	return nil
}

// rollingExpiry computes now+idle capped by the session's absolute ceiling.
func (r *Registry) rollingExpiry(s *domain.Session, now time.Time) time.Time {
	expiry := now.Add(r.cfg.IdleTimeout)
	if expiry.After(s.AbsoluteExpiresAt) {
		return s.AbsoluteExpiresAt
	}
	return expiry
}

func (r *Registry) recordLifecycle(ctx context.Context, s *domain.Session, event domain.EventType, reason string) {
	principalID := s.PrincipalID
	_, err := r.recorder.Append(ctx, &domain.AuditEntry{
		EventType:    event,
		ActorID:      &principalID,
		Action:       reason,
		ResourceType: "session",
		ResourceID:   s.ID.String(),
		Result:       domain.ResultGranted,
		Client:       s.Client,
	})
	if err != nil {
		r.logger.Error().Err(err).Str("session_id", s.ID.String()).Msg("session lifecycle audit entry")
	}
}

func (r *Registry) principalLock(principalID uuid.UUID) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.principals[principalID]
	if !ok {
		lock = &sync.Mutex{}
		r.principals[principalID] = lock
	}
	return lock
}

func expiryReason(s *domain.Session, now time.Time) (domain.InvalidateReason, bool) {
	if !now.Before(s.AbsoluteExpiresAt) {
		return domain.ReasonAbsoluteExpired, true
	}
	if !now.Before(s.ExpiresAt) {
		return domain.ReasonIdleExpired, true
	}
	return "", false
}

func leastRecentlyActive(sessions []*domain.Session) *domain.Session {
	sorted := make([]*domain.Session, len(sessions))
	copy(sorted, sessions)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].LastActivity.Before(sorted[j].LastActivity)
	})
	return sorted[0]
}

func withoutSession(sessions []*domain.Session, id uuid.UUID) []*domain.Session {
	out := sessions[:0]
	for _, s := range sessions {
		if s.ID != id {
			out = append(out, s)
		}
	}
	return out
}

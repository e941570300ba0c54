// Package engine composes the ledger, session registry, threat detectors,
// and credential policy behind one facade. HTTP handlers and background
// jobs talk to the engine, never to the parts directly.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gosuda/sentinel/internal/credential"
	"github.com/gosuda/sentinel/internal/domain"
	"github.com/gosuda/sentinel/internal/ledger"
	"github.com/gosuda/sentinel/internal/metrics"
	"github.com/gosuda/sentinel/internal/session"
	"github.com/gosuda/sentinel/internal/threat"
	"github.com/gosuda/sentinel/internal/window"
)

// Escalator turns failed integrity reports into incidents; implemented by
// the alert dispatcher.
type Escalator interface {
	EscalateIntegrity(ctx context.Context, report *domain.IntegrityReport) (*domain.Incident, error)
}

// Config holds the engine's background-job knobs.
type Config struct {
	// RollupInterval refreshes the gauge metrics.
	RollupInterval time.Duration
	// ComplianceInterval runs the scheduled integrity scan.
	ComplianceInterval time.Duration
	// ComplianceDepth is how many trailing entries each scan verifies.
	ComplianceDepth int64
	// ReportTopOffenders bounds the top-offenders section of activity reports.
	ReportTopOffenders int
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		RollupInterval:     30 * time.Second,
		ComplianceInterval: 24 * time.Hour,
		ComplianceDepth:    10000,
		ReportTopOffenders: 5,
	}
}

// Engine is the monitoring facade.
type Engine struct {
	chain     *ledger.Chain
	fallback  *ledger.Fallback // nil when fallback is disabled
	tracker   *window.Tracker
	registry  *session.Registry
	detector  *threat.Detector
	creds     *credential.Engine
	escal     Escalator
	sessions  domain.SessionRepository
	entries   domain.LedgerRepository
	incidents domain.IncidentRepository
	cfg       Config
	logger    zerolog.Logger
}

// New wires the engine. The registry's expiry hook is attached here so every
// swept session feeds the mass-timeout detector.
func New(
	chain *ledger.Chain,
	fallback *ledger.Fallback,
	tracker *window.Tracker,
	registry *session.Registry,
	detector *threat.Detector,
	creds *credential.Engine,
	escal Escalator,
	sessions domain.SessionRepository,
	entries domain.LedgerRepository,
	incidents domain.IncidentRepository,
	cfg Config,
	logger zerolog.Logger,
) *Engine {
	e := &Engine{
		chain:     chain,
		fallback:  fallback,
		tracker:   tracker,
		registry:  registry,
		detector:  detector,
		creds:     creds,
		escal:     escal,
		sessions:  sessions,
		entries:   entries,
		incidents: incidents,
		cfg:       cfg,
		logger:    logger.With().Str("component", "engine").Logger(),
	}

	registry.OnExpired = func(ctx context.Context, _ *domain.Session) {
		detector.RecordSessionTimeout(ctx)
	}

	return e
}

// Authenticate verifies the principal's credential and opens a session.
// Every attempt lands on the ledger; failures additionally feed the brute
// force detector under the principal id.
func (e *Engine) Authenticate(ctx context.Context, principalID uuid.UUID, password string, client domain.ClientContext) (*domain.Session, string, error) {
	pid := principalID

	if err := e.creds.VerifyLogin(ctx, principalID, password); err != nil {
		if _, auditErr := e.chain.Append(ctx, &domain.AuditEntry{
			EventType:    domain.EventAuthLoginFailed,
			ActorID:      &pid,
			Action:       "login",
			ResourceType: "principal",
			ResourceID:   principalID.String(),
			Result:       domain.ResultFailed,
			Client:       client,
			Metadata:     map[string]string{"cause": loginFailureCause(err)},
		}); auditErr != nil {
			e.logger.Error().Err(auditErr).Msg("failed login audit entry")
		}

		e.detector.RecordFailedLogin(ctx, principalID.String())
		return nil, "", fmt.Errorf("engine.Engine.Authenticate: %w", err)
	}

	s, token, err := e.registry.Create(ctx, principalID, client)
	if err != nil {
		return nil, "", fmt.Errorf("engine.Engine.Authenticate: %w", err)
	}

	if _, auditErr := e.chain.Append(ctx, &domain.AuditEntry{
		EventType:    domain.EventAuthLogin,
		ActorID:      &pid,
		Action:       "login",
		ResourceType: "session",
		ResourceID:   s.ID.String(),
		Result:       domain.ResultGranted,
		Client:       client,
	}); auditErr != nil {
		e.logger.Error().Err(auditErr).Msg("login audit entry")
	}

	e.detector.RecordLogin(ctx, principalID, client)

	return s, token, nil
}

// Authorize validates a bearer token, extends the session, and reports
// whether the session is close to expiring.
func (e *Engine) Authorize(ctx context.Context, token string, client domain.ClientContext) (*domain.Session, bool, error) {
	return e.registry.Authorize(ctx, token, client)
}

// Logout terminates the session referenced by the bearer token.
func (e *Engine) Logout(ctx context.Context, token string) error {
	return e.registry.Logout(ctx, token)
}

// RecordAction appends an application event to the ledger and routes it to
// the threshold detectors that watch its event type.
func (e *Engine) RecordAction(ctx context.Context, entry *domain.AuditEntry) (*domain.AuditEntry, error) {
	appended, err := e.chain.Append(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("engine.Engine.RecordAction: %w", err)
	}
	metrics.EntriesAppended.Inc()

	subject := appended.Client.IP
	if appended.ActorID != nil {
		subject = appended.ActorID.String()
	}

	switch appended.EventType {
	case domain.EventAdminAction:
		e.detector.RecordAdminAction(ctx, subject)
	case domain.EventDataExport:
		e.detector.RecordExport(ctx, subject)
	case domain.EventAuthLoginFailed:
		e.detector.RecordFailedLogin(ctx, subject)
	}

	return appended, nil
}

// InspectRequest screens a request surface for injection signatures.
// Returns true when the request must be rejected.
func (e *Engine) InspectRequest(ctx context.Context, actorID *uuid.UUID, client domain.ClientContext, payload string) bool {
	return e.detector.InspectRequest(ctx, actorID, client, payload)
}

// ChangePassword rotates the principal's credential through the full policy
// pipeline.
func (e *Engine) ChangePassword(ctx context.Context, principalID uuid.UUID, password string) error {
	return e.creds.ChangePassword(ctx, principalID, password)
}

// ValidatePassword scores a candidate without storing anything.
func (e *Engine) ValidatePassword(ctx context.Context, principalID uuid.UUID, password string) (int, error) {
	return e.creds.Validate(ctx, principalID, password)
}

// VerifyIntegrity checks the hash chain over [fromID, toID]. A failed report
// is escalated to an incident before being returned.
func (e *Engine) VerifyIntegrity(ctx context.Context, fromID, toID int64) (*domain.IntegrityReport, error) {
	report, err := e.chain.VerifyRange(ctx, fromID, toID)
	if err != nil {
		return nil, fmt.Errorf("engine.Engine.VerifyIntegrity: %w", err)
	}

	if !report.OK {
		metrics.VerifyViolations.Add(float64(len(report.Violations)))
		if _, escalErr := e.escal.EscalateIntegrity(ctx, report); escalErr != nil {
			e.logger.Error().Err(escalErr).Msg("integrity escalation")
		}
	}

	return report, nil
}

// GenerateReport builds the activity summary for [from, to]: event counts,
// denied count, top offenders, and an integrity check of the covered entries.
func (e *Engine) GenerateReport(ctx context.Context, from, to time.Time) (*domain.ActivityReport, error) {
	counts, err := e.entries.CountByType(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("engine.Engine.GenerateReport: count by type: %w", err)
	}

	denied, err := e.entries.CountDenied(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("engine.Engine.GenerateReport: count denied: %w", err)
	}

	offenders, err := e.entries.TopOffenders(ctx, from, to, e.cfg.ReportTopOffenders)
	if err != nil {
		return nil, fmt.Errorf("engine.Engine.GenerateReport: top offenders: %w", err)
	}

	report := &domain.ActivityReport{
		From:         from,
		To:           to,
		EventCounts:  counts,
		DeniedCount:  denied,
		TopOffenders: offenders,
		GeneratedAt:  time.Now().UTC(),
	}

	minID, maxID, err := e.entries.Bounds(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("engine.Engine.GenerateReport: bounds: %w", err)
	}
	if maxID == 0 {
		report.Integrity = domain.IntegrityReport{OK: true, CheckedAt: report.GeneratedAt}
		return report, nil
	}

	integrity, err := e.VerifyIntegrity(ctx, minID, maxID)
	if err != nil {
		return nil, fmt.Errorf("engine.Engine.GenerateReport: %w", err)
	}
	report.Integrity = *integrity

	return report, nil
}

// OpenIncidents lists unresolved incidents for the operator surface.
func (e *Engine) OpenIncidents(ctx context.Context, limit int) ([]*domain.Incident, error) {
	incidents, err := e.incidents.ListOpen(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("engine.Engine.OpenIncidents: %w", err)
	}
	return incidents, nil
}

// UpdateIncidentStatus transitions an incident through triage and records
// the transition as an admin action on the ledger.
func (e *Engine) UpdateIncidentStatus(ctx context.Context, actorID *uuid.UUID, incidentID uuid.UUID, status domain.IncidentStatus, client domain.ClientContext) error {
	if err := e.incidents.UpdateStatus(ctx, incidentID, status); err != nil {
		return fmt.Errorf("engine.Engine.UpdateIncidentStatus: %w", err)
	}

	if _, err := e.RecordAction(ctx, &domain.AuditEntry{
		EventType:    domain.EventAdminAction,
		ActorID:      actorID,
		Action:       "incident_status_" + string(status),
		ResourceType: "incident",
		ResourceID:   incidentID.String(),
		Result:       domain.ResultGranted,
		Client:       client,
	}); err != nil {
		e.logger.Error().Err(err).Str("incident_id", incidentID.String()).Msg("incident status audit entry")
	}

	return nil
}

// Run starts the engine's background loops and blocks until ctx is
// cancelled: session sweep, tracker sweep, fallback replay, gauge rollup,
// and the scheduled compliance scan.
func (e *Engine) Run(ctx context.Context) {
	var wg sync.WaitGroup

	start := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}

	start(e.registry.Run)
	start(e.tracker.Run)
	if e.fallback != nil {
		start(e.fallback.Run)
	}
	start(e.rollupLoop)
	start(e.complianceLoop)

	wg.Wait()
}

// rollupLoop refreshes the gauges that sample live state.
func (e *Engine) rollupLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.RollupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if active, err := e.sessions.CountActive(ctx); err == nil {
				metrics.ActiveSessions.Set(float64(active))
			}
			metrics.TrackedKeys.Set(float64(e.tracker.Len()))
			if e.fallback != nil {
				metrics.FallbackDepth.Set(float64(e.fallback.Depth()))
			}
		}
	}
}

// complianceLoop periodically verifies the trailing segment of the ledger so
// tampering is caught without waiting for an operator-triggered check.
func (e *Engine) complianceLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.ComplianceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, nextID := e.chain.Head()
			toID := nextID - 1
			if toID < 1 {
				continue
			}
			fromID := toID - e.cfg.ComplianceDepth + 1
			if fromID < 1 {
				fromID = 1
			}

			report, err := e.VerifyIntegrity(ctx, fromID, toID)
			if err != nil {
				e.logger.Error().Err(err).Msg("scheduled integrity scan")
				continue
			}
			e.logger.Info().
				Int64("from_id", fromID).
				Int64("to_id", toID).
				Bool("ok", report.OK).
				Int("violations", len(report.Violations)).
				Msg("scheduled integrity scan complete")
		}
	}
}

func loginFailureCause(err error) string {
	switch {
	case errors.Is(err, domain.ErrAccountLocked):
		return "account_locked"
	case errors.Is(err, domain.ErrPasswordExpired):
		return "password_expired"
	default:
		return "invalid_credentials"
	}
}

// Package alert classifies detector output into severities, persists
// incidents, and fans them out to notification channels.
package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gosuda/sentinel/internal/domain"
	"github.com/gosuda/sentinel/internal/metrics"
	"github.com/gosuda/sentinel/internal/window"
)

// Notifier is the egress notification port. The dispatcher does not care
// which channels sit behind it.
type Notifier interface {
	Notify(ctx context.Context, inc *domain.Incident) error
}

// Publisher pushes incident payloads to the live operator feed.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// severityByType is the static classification table. Unknown alert types
// default to medium.
var severityByType = map[domain.AlertType]domain.Severity{
	domain.AlertBruteForce:       domain.SeverityCritical,
	domain.AlertInjection:        domain.SeverityCritical,
	domain.AlertIntegrity:        domain.SeverityCritical,
	domain.AlertExcessiveAdmin:   domain.SeverityHigh,
	domain.AlertExcessiveExport:  domain.SeverityHigh,
	domain.AlertImpossibleTravel: domain.SeverityHigh,
	domain.AlertMassTimeout:      domain.SeverityMedium,
}

// ClassifySeverity maps an alert type to its configured severity.
func ClassifySeverity(t domain.AlertType) domain.Severity {
	if s, ok := severityByType[t]; ok {
		return s
	}
	return domain.SeverityMedium
}

// Config holds dispatch policy knobs.
type Config struct {
	// SeverityFloor: alerts at or above always become incidents.
	SeverityFloor domain.Severity
	// RepeatThreshold/RepeatWindow: below the floor, an incident is created
	// only when the same alert type recurs this often within the window.
	RepeatThreshold int
	RepeatWindow    time.Duration
	// NotifyTimeout bounds the fire-and-forget notification fan-out.
	NotifyTimeout time.Duration
	// IncidentChannel is the live-feed pub/sub channel.
	IncidentChannel string
}

// DefaultConfig returns the dispatch defaults.
func DefaultConfig() Config {
	return Config{
		SeverityFloor:   domain.SeverityHigh,
		RepeatThreshold: 5,
		RepeatWindow:    24 * time.Hour,
		NotifyTimeout:   5 * time.Second,
		IncidentChannel: "incidents",
	}
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// Dispatcher turns alerts into persisted incidents and notifies
// collaborators. Notification and feed publication are fire-and-forget:
// their failures never roll back incident persistence.
type Dispatcher struct {
	incidents domain.IncidentRepository
	tracker   *window.Tracker
	notifier  Notifier  // nil disables notifications
	publisher Publisher // nil disables the live feed
	cfg       Config
	logger    zerolog.Logger
	now       func() time.Time
}

// NewDispatcher creates a dispatcher. The tracker counts low/medium alert
// repeats and may be shared with the detectors.
func NewDispatcher(incidents domain.IncidentRepository, tracker *window.Tracker, notifier Notifier, publisher Publisher, cfg Config, logger zerolog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		incidents: incidents,
		tracker:   tracker,
		notifier:  notifier,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.With().Str("component", "alert").Logger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch classifies the alert and persists an incident when warranted.
// Returns nil without error when the alert stays below both the severity
// floor and the repeat threshold. Dispatch does not deduplicate identical
// alerts fired in quick succession; downstream triage merges duplicates.
func (d *Dispatcher) Dispatch(ctx context.Context, alert *domain.Alert) (*domain.Incident, error) {
	alert.Severity = ClassifySeverity(alert.Type)
	metrics.AlertsEmitted.WithLabelValues(string(alert.Type)).Inc()

	if !d.shouldPersist(alert) {
		d.logger.Debug().
			Str("alert_type", string(alert.Type)).
			Str("severity", string(alert.Severity)).
			Msg("alert below incident thresholds")
		return nil, nil
	}

	now := d.now()
	inc := &domain.Incident{
		ID:           uuid.New(),
		Type:         alert.Type,
		Severity:     alert.Severity,
		Status:       domain.IncidentOpen,
		AuditEntryID: alert.AuditEntryID,
		Details:      alert.Details,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := d.incidents.Create(ctx, inc); err != nil {
		return nil, fmt.Errorf("alert.Dispatcher.Dispatch: persist incident: %w", err)
	}
	metrics.IncidentsCreated.WithLabelValues(string(inc.Severity)).Inc()

	d.logger.Warn().
		Str("incident_id", inc.ID.String()).
		Str("type", string(inc.Type)).
		Str("severity", string(inc.Severity)).
		Int64("audit_entry_id", inc.AuditEntryID).
		Msg("incident created")

	go d.fanOut(inc)

	return inc, nil
}

// EscalateIntegrity creates a critical incident from a failed verification
// report. Integrity violations are fatal to trust in the affected range and
// always escalate.
func (d *Dispatcher) EscalateIntegrity(ctx context.Context, report *domain.IntegrityReport) (*domain.Incident, error) {
	if report.OK {
		return nil, nil
	}

	details := map[string]string{
		"from_id":    strconv.FormatInt(report.FromID, 10),
		"to_id":      strconv.FormatInt(report.ToID, 10),
		"violations": strconv.Itoa(len(report.Violations)),
	}
	if len(report.Violations) > 0 {
		first := report.Violations[0]
		details["first_entry_id"] = strconv.FormatInt(first.EntryID, 10)
		details["first_kind"] = string(first.Kind)
		details["first_detail"] = first.Detail
	}

	return d.Dispatch(ctx, &domain.Alert{
		Type:         domain.AlertIntegrity,
		Subject:      "ledger",
		AuditEntryID: firstViolationID(report),
		Details:      details,
		At:           d.now(),
	})
}

func (d *Dispatcher) shouldPersist(alert *domain.Alert) bool {
	if alert.Severity.Rank() >= d.cfg.SeverityFloor.Rank() {
		return true
	}

	key := "alert_repeat:" + string(alert.Type)
	d.tracker.Record(key, d.now())
	return d.tracker.CountSince(key, d.cfg.RepeatWindow) >= d.cfg.RepeatThreshold
}

// fanOut publishes the incident to the live feed and the notification port
// under its own deadline, detached from the caller's context so a slow
// notifier cannot stall dispatch.
func (d *Dispatcher) fanOut(inc *domain.Incident) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.NotifyTimeout)
	defer cancel()

	if d.publisher != nil {
		payload, err := json.Marshal(inc)
		if err != nil {
			d.logger.Error().Err(err).Str("incident_id", inc.ID.String()).Msg("incident feed marshal")
		} else if err := d.publisher.Publish(ctx, d.cfg.IncidentChannel, payload); err != nil {
			d.logger.Error().Err(err).Str("incident_id", inc.ID.String()).Msg("incident feed publish")
		}
	}

	if d.notifier != nil {
		if err := d.notifier.Notify(ctx, inc); err != nil {
			d.logger.Error().Err(err).Str("incident_id", inc.ID.String()).Msg("incident notification")
		}
	}
}

func firstViolationID(report *domain.IntegrityReport) int64 {
	if len(report.Violations) == 0 {
		return 0
	}
	return report.Violations[0].EntryID
}

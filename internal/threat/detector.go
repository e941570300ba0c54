// Package threat layers pattern and threshold analysis over the sliding
// window tracker: brute force, excessive privileged activity, excessive
// export, mass session timeout, impossible travel, and injection signature
// matching. Detectors run independently per incoming event; when several
// fire for one event all are emitted, with no suppression beyond what the
// dispatcher performs.
package threat

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gosuda/sentinel/internal/domain"
	"github.com/gosuda/sentinel/internal/window"
)

// AlertSink receives emitted alerts; implemented by the alert dispatcher.
type AlertSink interface {
	Dispatch(ctx context.Context, alert *domain.Alert) (*domain.Incident, error)
}

// AuditRecorder is the ledger port used to record blocked injections.
type AuditRecorder interface {
	Append(ctx context.Context, entry *domain.AuditEntry) (*domain.AuditEntry, error)
}

// Config holds detection thresholds. All windows must fit inside the
// tracker's maximum retention window.
type Config struct {
	BruteForceThreshold int
	BruteForceWindow    time.Duration
	AdminThreshold      int
	AdminWindow         time.Duration
	ExportThreshold     int
	ExportWindow        time.Duration
	TimeoutThreshold    int
	TimeoutWindow       time.Duration

	// Impossible travel policy. Distances come from country centroids,
	// not geodesic accounting.
	TravelMaxSpeedKmh   float64
	TravelMinDistanceKm float64
	TravelUnknownDelta  time.Duration // flag unknown-geo IP switches faster than this
}

// DefaultConfig returns the detection thresholds from the monitoring policy.
func DefaultConfig() Config {
	return Config{
		BruteForceThreshold: 5,
		BruteForceWindow:    5 * time.Minute,
		AdminThreshold:      5,
		AdminWindow:         30 * time.Minute,
		ExportThreshold:     10,
		ExportWindow:        60 * time.Minute,
		TimeoutThreshold:    10,
		TimeoutWindow:       10 * time.Minute,
		TravelMaxSpeedKmh:   1000,
		TravelMinDistanceKm: 500,
		TravelUnknownDelta:  5 * time.Minute,
	}
}

// Option configures a Detector.
type Option func(*Detector)

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// Detector is the threshold and pattern analysis engine. Stateless per
// event apart from the shared tracker, a last-fired table that keeps one
// alert per key per window, and the last seen login point per principal.
type Detector struct {
	tracker  *window.Tracker
	sink     AlertSink
	recorder AuditRecorder
	cfg      Config
	logger   zerolog.Logger
	now      func() time.Time

	mu        sync.Mutex
	lastFired map[string]time.Time
	lastLogin map[uuid.UUID]loginPoint
}

type loginPoint struct {
	ip      string
	country string
	at      time.Time
}

// NewDetector creates a detector over the shared tracker.
func NewDetector(tracker *window.Tracker, sink AlertSink, recorder AuditRecorder, cfg Config, logger zerolog.Logger, opts ...Option) *Detector {
	d := &Detector{
		tracker:   tracker,
		sink:      sink,
		recorder:  recorder,
		cfg:       cfg,
		logger:    logger.With().Str("component", "threat").Logger(),
		now:       time.Now,
		lastFired: make(map[string]time.Time),
		lastLogin: make(map[uuid.UUID]loginPoint),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RecordFailedLogin tracks a failed authentication under the principal or
// source IP and emits BRUTE_FORCE_DETECTED when the window threshold is
// crossed. Repeated crossings within one window are suppressed; a fresh
// window re-triggers.
func (d *Detector) RecordFailedLogin(ctx context.Context, subject string) {
	d.threshold(ctx, domain.AlertBruteForce, "failed_login:"+subject, subject,
		d.cfg.BruteForceThreshold, d.cfg.BruteForceWindow)
}

// RecordAdminAction tracks a privileged action for the principal.
func (d *Detector) RecordAdminAction(ctx context.Context, principal string) {
	d.threshold(ctx, domain.AlertExcessiveAdmin, "admin_action:"+principal, principal,
		d.cfg.AdminThreshold, d.cfg.AdminWindow)
}

// RecordExport tracks a data export for the principal.
func (d *Detector) RecordExport(ctx context.Context, principal string) {
	d.threshold(ctx, domain.AlertExcessiveExport, "export:"+principal, principal,
		d.cfg.ExportThreshold, d.cfg.ExportWindow)
}

// RecordSessionTimeout tracks a session termination by expiry under the
// global key. A burst signals a systemic incident rather than a
// single-actor attack.
func (d *Detector) RecordSessionTimeout(ctx context.Context) {
	d.threshold(ctx, domain.AlertMassTimeout, "session_timeout", "global",
		d.cfg.TimeoutThreshold, d.cfg.TimeoutWindow)
}

// RecordLogin observes a successful authentication and checks it against
// the principal's previous login point for impossible travel.
func (d *Detector) RecordLogin(ctx context.Context, principalID uuid.UUID, client domain.ClientContext) {
	now := d.now()
	point := loginPoint{ip: client.IP, country: client.Country, at: now}

	d.mu.Lock()
	prev, seen := d.lastLogin[principalID]
	d.lastLogin[principalID] = point
	d.mu.Unlock()

	if !seen {
		return
	}

	if detail, impossible := impossibleTravel(prev, point, d.cfg); impossible {
		d.emit(ctx, &domain.Alert{
			Type:    domain.AlertImpossibleTravel,
			Subject: principalID.String(),
			Details: map[string]string{
				"previous_ip":      prev.ip,
				"previous_country": prev.country,
				"current_ip":       point.ip,
				"current_country":  point.country,
				"elapsed":          now.Sub(prev.at).Round(time.Second).String(),
				"reason":           detail,
			},
			At: now,
		})
	}
}

// InspectRequest matches the request surface against the injection
// signature set. A match writes a denied audit entry, emits a critical
// alert, and returns true so the caller can reject the request.
func (d *Detector) InspectRequest(ctx context.Context, actorID *uuid.UUID, client domain.ClientContext, payload string) bool {
	signature, matched := matchInjection(client.Path, payload)
	if !matched {
		return false
	}

	entry, err := d.recorder.Append(ctx, &domain.AuditEntry{
		EventType:    domain.EventInjectionBlocked,
		ActorID:      actorID,
		Action:       "request_blocked",
		ResourceType: "request",
		Result:       domain.ResultDenied,
		Client:       client,
		Metadata:     map[string]string{"signature": signature},
	})
	if err != nil {
		d.logger.Error().Err(err).Msg("injection audit entry")
	}

	subject := client.IP
	if actorID != nil {
		subject = actorID.String()
	}

	alert := &domain.Alert{
		Type:    domain.AlertInjection,
		Subject: subject,
		Details: map[string]string{
			"signature": signature,
			"path":      client.Path,
			"ip":        client.IP,
		},
		At: d.now(),
	}
	if entry != nil {
		alert.AuditEntryID = entry.ID
	}
	d.emit(ctx, alert)

	return true
}

// threshold records one event under key and emits the alert when the count
// within the window reaches the threshold, at most once per window per key.
func (d *Detector) threshold(ctx context.Context, alertType domain.AlertType, key, subject string, limit int, win time.Duration) {
	now := d.now()
	d.tracker.Record(key, now)

	count := d.tracker.CountSince(key, win)
	if count < limit {
		return
	}
	if !d.canFire(string(alertType)+":"+key, now, win) {
		return
	}

	d.emit(ctx, &domain.Alert{
		Type:    alertType,
		Subject: subject,
		Details: map[string]string{
			"count":  strconv.Itoa(count),
			"window": win.String(),
			"key":    key,
		},
		At: now,
	})
}

// canFire allows one alert per key per window. A re-fire is permitted only
// after a full window has elapsed since the previous one.
func (d *Detector) canFire(key string, now time.Time, win time.Duration) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if last, ok := d.lastFired[key]; ok && now.Sub(last) < win {
		return false
	}
	d.lastFired[key] = now
	return true
}

func (d *Detector) emit(ctx context.Context, alert *domain.Alert) {
	d.logger.Warn().
		Str("alert_type", string(alert.Type)).
		Str("subject", alert.Subject).
		Msg("threat detected")

	if _, err := d.sink.Dispatch(ctx, alert); err != nil {
		d.logger.Error().Err(err).Str("alert_type", string(alert.Type)).Msg("alert dispatch failed")
	}
}

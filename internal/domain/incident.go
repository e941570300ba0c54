package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AlertType identifies the detector that produced an alert.
type AlertType string

const (
	AlertBruteForce       AlertType = "BRUTE_FORCE_DETECTED"
	AlertExcessiveAdmin   AlertType = "EXCESSIVE_ADMIN_ACTIVITY"
	AlertExcessiveExport  AlertType = "EXCESSIVE_DATA_EXPORT"
	AlertMassTimeout      AlertType = "MASS_SESSION_TIMEOUT"
	AlertImpossibleTravel AlertType = "IMPOSSIBLE_TRAVEL_DETECTED"
	AlertInjection        AlertType = "INJECTION_ATTEMPT_DETECTED"
	AlertIntegrity        AlertType = "INTEGRITY_VIOLATION_DETECTED"
)

// Severity orders alert and incident importance.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank maps a severity onto an ordinal for threshold comparisons.
// Unknown values rank below low.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// Alert is the ephemeral classification result emitted by a detector.
// Severity is assigned by the dispatcher, not the detector.
type Alert struct {
	Type         AlertType
	Severity     Severity
	Subject      string // principal id, ip, or global key the alert is about
	AuditEntryID int64  // triggering ledger entry, 0 when none
	Details      map[string]string
	At           time.Time
}

// IncidentStatus tracks the triage lifecycle of a persisted incident.
type IncidentStatus string

const (
	IncidentOpen          IncidentStatus = "open"
	IncidentInvestigating IncidentStatus = "investigating"
	IncidentResolved      IncidentStatus = "resolved"
	IncidentClosed        IncidentStatus = "closed"
)

// Incident is a persisted record created from an alert that crossed the
// severity floor or the repeat threshold. Downstream triage mutates status;
// nothing else creates incidents.
type Incident struct {
	ID           uuid.UUID
	Type         AlertType
	Severity     Severity
	Status       IncidentStatus
	AuditEntryID int64
	Details      map[string]string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IncidentRepository is the persistence port for incidents.
type IncidentRepository interface {
	Create(ctx context.Context, inc *Incident) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status IncidentStatus) error
	ListOpen(ctx context.Context, limit int) ([]*Incident, error)
}

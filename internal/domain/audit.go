package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType classifies an audited action on the ledger.
type EventType string

const (
	EventAuthLogin        EventType = "auth.login"
	EventAuthLoginFailed  EventType = "auth.login_failed"
	EventAuthLogout       EventType = "auth.logout"
	EventSessionCreated   EventType = "session.created"
	EventSessionEvicted   EventType = "session.evicted"
	EventSessionExpired   EventType = "session.expired"
	EventSessionSweep     EventType = "session.sweep"
	EventDataAccess       EventType = "data.access"
	EventDataExport       EventType = "data.export"
	EventAdminAction      EventType = "admin.action"
	EventInjectionBlocked EventType = "security.injection_blocked"
	EventSecurityAlert    EventType = "security.alert"
	EventPasswordChanged  EventType = "credential.password_changed"
	EventComplianceGap    EventType = "credential.breach_check_unavailable"
)

// Classification is the data sensitivity level of the touched resource.
type Classification string

const (
	ClassPublic     Classification = "public"
	ClassSensitive  Classification = "sensitive"
	ClassRestricted Classification = "restricted"
)

// AccessResult is the outcome of the audited action.
type AccessResult string

const (
	ResultGranted AccessResult = "granted"
	ResultDenied  AccessResult = "denied"
	ResultFailed  AccessResult = "failed"
)

// ClientContext carries the network/client details of the request that
// produced an audit entry or session activity.
type ClientContext struct {
	IP         string
	UserAgent  string
	Method     string
	Path       string
	StatusCode int
	Country    string // coarse geo hint, empty when unknown
}

// AuditEntry is one immutable record in the hash-linked ledger. Entries are
// never updated or deleted; IntegrityHash covers every field plus
// PreviousHash, so any post-hoc change is detectable by verification.
//
// Metadata is a bounded map of scalars so the canonical encoding stays
// deterministic (keys are sorted before hashing).
type AuditEntry struct {
	ID             int64
	EventType      EventType
	ActorID        *uuid.UUID // nil for unauthenticated or system actions
	ActorName      string
	Action         string
	ResourceType   string
	ResourceID     string
	Classification Classification
	Result         AccessResult
	Client         ClientContext
	Metadata       map[string]string
	CreatedAt      time.Time
	IntegrityHash  string
	PreviousHash   string
}

// ActorCount pairs an actor with the number of matching ledger entries,
// used for the "top offenders" section of activity reports.
type ActorCount struct {
	ActorID string
	Count   int64
}

// LedgerRepository is the append-only persistence port for the chain.
// Implementations must never expose update or delete operations.
type LedgerRepository interface {
	Append(ctx context.Context, entry *AuditEntry) error
	Last(ctx context.Context) (*AuditEntry, error)
	Range(ctx context.Context, fromID, toID int64) ([]*AuditEntry, error)
	CountByType(ctx context.Context, from, to time.Time) (map[EventType]int64, error)
	CountDenied(ctx context.Context, from, to time.Time) (int64, error)
	TopOffenders(ctx context.Context, from, to time.Time, limit int) ([]ActorCount, error)
	Bounds(ctx context.Context, from, to time.Time) (minID, maxID int64, err error)
}

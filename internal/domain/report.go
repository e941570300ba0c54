package domain

import "time"

// ViolationKind distinguishes the two failure modes of chain verification.
type ViolationKind string

const (
	// ViolationDiscontinuity: the stored previous_hash does not match the
	// prior entry's stored integrity_hash, or an id is missing.
	ViolationDiscontinuity ViolationKind = "chain_discontinuity"
	// ViolationContentMismatch: the hash recomputed from stored fields
	// differs from the stored integrity_hash, implying post-hoc tampering.
	ViolationContentMismatch ViolationKind = "content_mismatch"
)

// Violation pinpoints one verification failure.
type Violation struct {
	EntryID int64
	Kind    ViolationKind
	Detail  string
}

// IntegrityReport is the result of verifying a ledger id range.
type IntegrityReport struct {
	FromID     int64
	ToID       int64
	OK         bool
	Violations []Violation
	CheckedAt  time.Time
}

// ActivityReport summarizes ledger activity over a time range with an
// embedded integrity check of the covered entries.
type ActivityReport struct {
	From         time.Time
	To           time.Time
	EventCounts  map[EventType]int64
	DeniedCount  int64
	TopOffenders []ActorCount
	Integrity    IntegrityReport
	GeneratedAt  time.Time
}

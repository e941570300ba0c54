package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CredentialRecord tracks the policy-relevant state of a principal's
// password. Account ownership lives upstream; this record only carries
// what the policy engine consumes.
type CredentialRecord struct {
	PrincipalID    uuid.UUID
	PasswordHash   string
	History        []string // most recent first, bounded by the policy history size
	FailedAttempts int
	LockedUntil    *time.Time
	ChangedAt      time.Time
	NeverExpires   bool
}

// CredentialRepository is the persistence port for credential records.
type CredentialRepository interface {
	Get(ctx context.Context, principalID uuid.UUID) (*CredentialRecord, error)
	Save(ctx context.Context, rec *CredentialRecord) error
}

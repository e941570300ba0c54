package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// InvalidateReason is the lifecycle reason recorded when a session ends.
type InvalidateReason string

const (
	ReasonLogout          InvalidateReason = "logout"
	ReasonEvicted         InvalidateReason = "evicted"
	ReasonIdleExpired     InvalidateReason = "idle_expired"
	ReasonAbsoluteExpired InvalidateReason = "absolute_expired"
)

// Session represents one authenticated principal's live login.
//
// ExpiresAt rolls forward on every touch (idle timeout) but never past
// AbsoluteExpiresAt; whichever elapses first terminates the session. A
// terminated session is never resurrected; a new login always creates a
// new session id.
type Session struct {
	ID                uuid.UUID
	PrincipalID       uuid.UUID
	TokenID           uuid.UUID // jti of the bearer token; the token itself is never stored
	CreatedAt         time.Time
	LastActivity      time.Time
	ExpiresAt         time.Time
	AbsoluteExpiresAt time.Time
	Client            ClientContext
	Active            bool
}

// SessionRepository is the persistence port for live sessions.
type SessionRepository interface {
	Create(ctx context.Context, s *Session) error
	GetByTokenID(ctx context.Context, tokenID uuid.UUID) (*Session, error)
	Update(ctx context.Context, s *Session) error
	ListActiveByPrincipal(ctx context.Context, principalID uuid.UUID) ([]*Session, error)
	CountActive(ctx context.Context) (int64, error)
	Invalidate(ctx context.Context, id uuid.UUID, reason InvalidateReason) error
	// ExpireBefore marks every active session with expires_at or
	// absolute_expires_at before now as inactive and returns the
	// terminated sessions.
	ExpireBefore(ctx context.Context, now time.Time) ([]*Session, error)
}

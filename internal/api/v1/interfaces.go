package v1

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/sentinel/internal/domain"
)

// MonitorEngine abstracts the monitoring facade for handler testing.
// *engine.Engine satisfies this interface.
type MonitorEngine interface {
	Authenticate(ctx context.Context, principalID uuid.UUID, password string, client domain.ClientContext) (*domain.Session, string, error)
	Logout(ctx context.Context, token string) error
	ChangePassword(ctx context.Context, principalID uuid.UUID, password string) error
	RecordAction(ctx context.Context, entry *domain.AuditEntry) (*domain.AuditEntry, error)
	VerifyIntegrity(ctx context.Context, fromID, toID int64) (*domain.IntegrityReport, error)
	GenerateReport(ctx context.Context, from, to time.Time) (*domain.ActivityReport, error)
	OpenIncidents(ctx context.Context, limit int) ([]*domain.Incident, error)
	UpdateIncidentStatus(ctx context.Context, actorID *uuid.UUID, incidentID uuid.UUID, status domain.IncidentStatus, client domain.ClientContext) error
}

package v1_test

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/sentinel/internal/domain"
	"github.com/gosuda/sentinel/internal/server/middleware"
)

// ---------------------------------------------------------------------------
// Context helpers — inject session/client values into context for DoCtx
// ---------------------------------------------------------------------------

func clientCtx() context.Context {
	ctx := context.Background()
	ctx = context.WithValue(ctx, middleware.ContextKeyClient, domain.ClientContext{
		IP:        "203.0.113.7",
		UserAgent: "test/1.0",
		Method:    "POST",
		Path:      "/api/v1/test",
	})
	return ctx
}

func sessionCtx(principalID uuid.UUID, token string) context.Context {
	ctx := clientCtx()
	ctx = context.WithValue(ctx, middleware.ContextKeyPrincipalID, principalID)
	ctx = context.WithValue(ctx, middleware.ContextKeyToken, token)
	return ctx
}

// ---------------------------------------------------------------------------
// Mock MonitorEngine
// ---------------------------------------------------------------------------

type mockEngine struct {
	authenticateFunc   func(ctx context.Context, principalID uuid.UUID, password string, client domain.ClientContext) (*domain.Session, string, error)
	logoutFunc         func(ctx context.Context, token string) error
	changePasswordFunc func(ctx context.Context, principalID uuid.UUID, password string) error
	recordActionFunc   func(ctx context.Context, entry *domain.AuditEntry) (*domain.AuditEntry, error)
	verifyFunc         func(ctx context.Context, fromID, toID int64) (*domain.IntegrityReport, error)
	reportFunc         func(ctx context.Context, from, to time.Time) (*domain.ActivityReport, error)
	openIncidentsFunc  func(ctx context.Context, limit int) ([]*domain.Incident, error)
	updateIncidentFunc func(ctx context.Context, actorID *uuid.UUID, incidentID uuid.UUID, status domain.IncidentStatus, client domain.ClientContext) error
}

func (m *mockEngine) Authenticate(ctx context.Context, principalID uuid.UUID, password string, client domain.ClientContext) (*domain.Session, string, error) {
	return m.authenticateFunc(ctx, principalID, password, client)
}

func (m *mockEngine) Logout(ctx context.Context, token string) error {
	return m.logoutFunc(ctx, token)
}

func (m *mockEngine) ChangePassword(ctx context.Context, principalID uuid.UUID, password string) error {
	return m.changePasswordFunc(ctx, principalID, password)
}

func (m *mockEngine) RecordAction(ctx context.Context, entry *domain.AuditEntry) (*domain.AuditEntry, error) {
	return m.recordActionFunc(ctx, entry)
}

func (m *mockEngine) VerifyIntegrity(ctx context.Context, fromID, toID int64) (*domain.IntegrityReport, error) {
	return m.verifyFunc(ctx, fromID, toID)
}

func (m *mockEngine) GenerateReport(ctx context.Context, from, to time.Time) (*domain.ActivityReport, error) {
	return m.reportFunc(ctx, from, to)
}

func (m *mockEngine) OpenIncidents(ctx context.Context, limit int) ([]*domain.Incident, error) {
	return m.openIncidentsFunc(ctx, limit)
}

func (m *mockEngine) UpdateIncidentStatus(ctx context.Context, actorID *uuid.UUID, incidentID uuid.UUID, status domain.IncidentStatus, client domain.ClientContext) error {
	return m.updateIncidentFunc(ctx, actorID, incidentID, status, client)
}

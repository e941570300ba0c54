package v1_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/gosuda/sentinel/internal/api/v1"
	"github.com/gosuda/sentinel/internal/domain"
)

// ---------------------------------------------------------------------------
// GET /incidents
// ---------------------------------------------------------------------------

func TestListIncidents(t *testing.T) {
	t.Parallel()

	principalID := uuid.New()
	now := time.Now().UTC()

	t.Run("happy_path", func(t *testing.T) {
		t.Parallel()

		fixture := &domain.Incident{
			ID:           uuid.New(),
			Type:         domain.AlertBruteForce,
			Severity:     domain.SeverityCritical,
			Status:       domain.IncidentOpen,
			AuditEntryID: 17,
			Details:      map[string]string{"subject": "alice"},
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		_, api := humatest.New(t)
		eng := &mockEngine{
			openIncidentsFunc: func(_ context.Context, limit int) ([]*domain.Incident, error) {
				assert.Equal(t, 50, limit)
				return []*domain.Incident{fixture}, nil
			},
		}

		v1.RegisterIncidentRoutes(api, eng)

		resp := api.GetCtx(sessionCtx(principalID, "bearer-tok"), "/incidents")

		require.Equal(t, http.StatusOK, resp.Code)

		var body struct {
			Incidents []v1.IncidentDTO `json:"incidents"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		require.Len(t, body.Incidents, 1)
		assert.Equal(t, fixture.ID, body.Incidents[0].ID)
		assert.Equal(t, string(domain.AlertBruteForce), body.Incidents[0].Type)
		assert.Equal(t, "critical", body.Incidents[0].Severity)
		assert.Equal(t, int64(17), body.Incidents[0].AuditEntryID)
	})

	t.Run("custom_limit", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		eng := &mockEngine{
			openIncidentsFunc: func(_ context.Context, limit int) ([]*domain.Incident, error) {
				assert.Equal(t, 5, limit)
				return nil, nil
			},
		}

		v1.RegisterIncidentRoutes(api, eng)

		resp := api.GetCtx(sessionCtx(principalID, "bearer-tok"), "/incidents?limit=5")

		assert.Equal(t, http.StatusOK, resp.Code)
	})

	t.Run("limit_over_maximum", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		eng := &mockEngine{}

		v1.RegisterIncidentRoutes(api, eng)

		resp := api.GetCtx(sessionCtx(principalID, "bearer-tok"), "/incidents?limit=9999")

		assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	})
}

// ---------------------------------------------------------------------------
// PATCH /incidents/{id}
// ---------------------------------------------------------------------------

func TestUpdateIncidentStatus(t *testing.T) {
	t.Parallel()

	principalID := uuid.New()
	incidentID := uuid.New()

	t.Run("happy_path", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		eng := &mockEngine{
			updateIncidentFunc: func(_ context.Context, actorID *uuid.UUID, id uuid.UUID, status domain.IncidentStatus, client domain.ClientContext) error {
				require.NotNil(t, actorID)
				assert.Equal(t, principalID, *actorID)
				assert.Equal(t, incidentID, id)
				assert.Equal(t, domain.IncidentResolved, status)
				assert.Equal(t, "203.0.113.7", client.IP)
				return nil
			},
		}

		v1.RegisterIncidentRoutes(api, eng)

		resp := api.PatchCtx(sessionCtx(principalID, "bearer-tok"), "/incidents/"+incidentID.String(), map[string]any{
			"status": "resolved",
		})

		require.Equal(t, http.StatusOK, resp.Code)

		var body struct {
			Status string `json:"status"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "resolved", body.Status)
	})

	t.Run("not_found", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		eng := &mockEngine{
			updateIncidentFunc: func(_ context.Context, _ *uuid.UUID, _ uuid.UUID, _ domain.IncidentStatus, _ domain.ClientContext) error {
				return fmt.Errorf("engine.Engine.UpdateIncidentStatus: %w", domain.ErrNotFound)
			},
		}

		v1.RegisterIncidentRoutes(api, eng)

		resp := api.PatchCtx(sessionCtx(principalID, "bearer-tok"), "/incidents/"+incidentID.String(), map[string]any{
			"status": "closed",
		})

		assert.Equal(t, http.StatusNotFound, resp.Code)
	})

	t.Run("invalid_status_enum", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		eng := &mockEngine{}

		v1.RegisterIncidentRoutes(api, eng)

		resp := api.PatchCtx(sessionCtx(principalID, "bearer-tok"), "/incidents/"+incidentID.String(), map[string]any{
			"status": "annoyed",
		})

		assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	})
}

package v1

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/gosuda/sentinel/internal/domain"
	"github.com/gosuda/sentinel/internal/server/middleware"
)

type IncidentDTO struct {
	ID           uuid.UUID         `json:"id"`
	Type         string            `json:"type"`
	Severity     string            `json:"severity"`
	Status       string            `json:"status"`
	AuditEntryID int64             `json:"audit_entry_id,omitempty"`
	Details      map[string]string `json:"details,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

type ListIncidentsInput struct {
	Limit int `query:"limit" default:"50" minimum:"1" maximum:"500" doc:"Maximum incidents to return"`
}

type ListIncidentsOutput struct {
	Body struct {
		Incidents []IncidentDTO `json:"incidents"`
	}
}

type UpdateIncidentInput struct {
	ID   uuid.UUID `path:"id" doc:"Incident identifier"`
	Body struct {
		Status string `json:"status" enum:"open,investigating,resolved,closed" doc:"New triage status"`
	}
}

type UpdateIncidentOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

func RegisterIncidentRoutes(api huma.API, eng MonitorEngine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-incidents",
		Method:      http.MethodGet,
		Path:        "/incidents",
		Summary:     "List open and investigating incidents",
		Tags:        []string{"Incidents"},
	}, func(ctx context.Context, input *ListIncidentsInput) (*ListIncidentsOutput, error) {
		incidents, err := eng.OpenIncidents(ctx, input.Limit)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list incidents", err)
		}

		out := &ListIncidentsOutput{}
		out.Body.Incidents = make([]IncidentDTO, 0, len(incidents))
		for _, inc := range incidents {
			out.Body.Incidents = append(out.Body.Incidents, IncidentDTO{
				ID:           inc.ID,
				Type:         string(inc.Type),
				Severity:     string(inc.Severity),
				Status:       string(inc.Status),
				AuditEntryID: inc.AuditEntryID,
				Details:      inc.Details,
				CreatedAt:    inc.CreatedAt,
				UpdatedAt:    inc.UpdatedAt,
			})
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-incident-status",
		Method:      http.MethodPatch,
		Path:        "/incidents/{id}",
		Summary:     "Update an incident's triage status",
		Tags:        []string{"Incidents"},
	}, func(ctx context.Context, input *UpdateIncidentInput) (*UpdateIncidentOutput, error) {
		var actorID *uuid.UUID
		if id, ok := middleware.PrincipalIDFromContext(ctx); ok {
			actorID = &id
		}
		client, _ := middleware.ClientFromContext(ctx)

		err := eng.UpdateIncidentStatus(ctx, actorID, input.ID, domain.IncidentStatus(input.Body.Status), client)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("incident not found")
			}
			return nil, huma.Error500InternalServerError("failed to update incident", err)
		}

		out := &UpdateIncidentOutput{}
		out.Body.Status = input.Body.Status
		return out, nil
	})
}

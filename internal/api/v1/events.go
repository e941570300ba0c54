package v1

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/sentinel/internal/domain"
	"github.com/gosuda/sentinel/internal/server/middleware"
)

type RecordEventInput struct {
	Body struct {
		EventType      string            `json:"event_type" minLength:"1" maxLength:"64" doc:"Event type, e.g. data.access"`
		Action         string            `json:"action" minLength:"1" maxLength:"256" doc:"Human-readable action description"`
		ResourceType   string            `json:"resource_type,omitempty" maxLength:"64"`
		ResourceID     string            `json:"resource_id,omitempty" maxLength:"128"`
		Classification string            `json:"classification,omitempty" enum:"public,sensitive,restricted"`
		Result         string            `json:"result" enum:"granted,denied,failed" doc:"Outcome of the action"`
		Metadata       map[string]string `json:"metadata,omitempty" doc:"Bounded scalar metadata"`
	}
}

type RecordEventOutput struct {
	Body struct {
		ID            int64     `json:"id"`
		IntegrityHash string    `json:"integrity_hash"`
		PreviousHash  string    `json:"previous_hash"`
		CreatedAt     time.Time `json:"created_at"`
	}
}

func RegisterEventRoutes(api huma.API, eng MonitorEngine) {
	huma.Register(api, huma.Operation{
		OperationID: "record-event",
		Method:      http.MethodPost,
		Path:        "/events",
		Summary:     "Append an audit event to the ledger",
		Tags:        []string{"Audit"},
	}, func(ctx context.Context, input *RecordEventInput) (*RecordEventOutput, error) {
		if len(input.Body.Metadata) > 32 {
			return nil, huma.Error422UnprocessableEntity("metadata exceeds 32 keys")
		}

		entry := &domain.AuditEntry{
			EventType:      domain.EventType(input.Body.EventType),
			Action:         input.Body.Action,
			ResourceType:   input.Body.ResourceType,
			ResourceID:     input.Body.ResourceID,
			Classification: domain.Classification(input.Body.Classification),
			Result:         domain.AccessResult(input.Body.Result),
			Metadata:       input.Body.Metadata,
		}
		if id, ok := middleware.PrincipalIDFromContext(ctx); ok {
			entry.ActorID = &id
		}
		if client, ok := middleware.ClientFromContext(ctx); ok {
			entry.Client = client
		}

		appended, err := eng.RecordAction(ctx, entry)
		if err != nil {
			if errors.Is(err, domain.ErrStorageUnavailable) {
				return nil, huma.Error503ServiceUnavailable("ledger unavailable for this event type")
			}
			return nil, huma.Error500InternalServerError("failed to record event", err)
		}

		out := &RecordEventOutput{}
		out.Body.ID = appended.ID
		out.Body.IntegrityHash = appended.IntegrityHash
		out.Body.PreviousHash = appended.PreviousHash
		out.Body.CreatedAt = appended.CreatedAt
		return out, nil
	})
}

package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

type ActivityReportInput struct {
	From time.Time `query:"from" doc:"Range start, RFC 3339"`
	To   time.Time `query:"to" doc:"Range end, RFC 3339"`
}

type ActorCountDTO struct {
	ActorID string `json:"actor_id"`
	Count   int64  `json:"count"`
}

type ActivityReportOutput struct {
	Body struct {
		From         time.Time        `json:"from"`
		To           time.Time        `json:"to"`
		EventCounts  map[string]int64 `json:"event_counts"`
		DeniedCount  int64            `json:"denied_count"`
		TopOffenders []ActorCountDTO  `json:"top_offenders"`
		IntegrityOK  bool             `json:"integrity_ok"`
		Violations   []ViolationDTO   `json:"violations"`
		GeneratedAt  time.Time        `json:"generated_at"`
	}
}

func RegisterReportRoutes(api huma.API, eng MonitorEngine) {
	huma.Register(api, huma.Operation{
		OperationID: "activity-report",
		Method:      http.MethodGet,
		Path:        "/reports",
		Summary:     "Summarize ledger activity over a time range",
		Tags:        []string{"Audit"},
	}, func(ctx context.Context, input *ActivityReportInput) (*ActivityReportOutput, error) {
		if input.From.IsZero() || input.To.IsZero() {
			return nil, huma.Error422UnprocessableEntity("from and to are required")
		}
		if !input.From.Before(input.To) {
			return nil, huma.Error422UnprocessableEntity("from must precede to")
		}

		report, err := eng.GenerateReport(ctx, input.From, input.To)
		if err != nil {
			return nil, huma.Error500InternalServerError("report generation failed", err)
		}

		out := &ActivityReportOutput{}
		out.Body.From = report.From
		out.Body.To = report.To
		out.Body.DeniedCount = report.DeniedCount
		out.Body.GeneratedAt = report.GeneratedAt
		out.Body.IntegrityOK = report.Integrity.OK

		out.Body.EventCounts = make(map[string]int64, len(report.EventCounts))
		for typ, n := range report.EventCounts {
			out.Body.EventCounts[string(typ)] = n
		}

		out.Body.TopOffenders = make([]ActorCountDTO, 0, len(report.TopOffenders))
		for _, ac := range report.TopOffenders {
			out.Body.TopOffenders = append(out.Body.TopOffenders, ActorCountDTO{
				ActorID: ac.ActorID,
				Count:   ac.Count,
			})
		}

		out.Body.Violations = make([]ViolationDTO, 0, len(report.Integrity.Violations))
		for _, v := range report.Integrity.Violations {
			out.Body.Violations = append(out.Body.Violations, ViolationDTO{
				EntryID: v.EntryID,
				Kind:    string(v.Kind),
				Detail:  v.Detail,
			})
		}
		return out, nil
	})
}

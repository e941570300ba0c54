package v1_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/gosuda/sentinel/internal/api/v1"
	"github.com/gosuda/sentinel/internal/domain"
)

// ---------------------------------------------------------------------------
// GET /reports
// ---------------------------------------------------------------------------

func reportPath(from, to time.Time) string {
	return fmt.Sprintf("/reports?from=%s&to=%s",
		url.QueryEscape(from.Format(time.RFC3339)),
		url.QueryEscape(to.Format(time.RFC3339)))
}

func TestActivityReport(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC().Truncate(time.Second)
	from := now.Add(-24 * time.Hour)

	t.Run("happy_path", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		eng := &mockEngine{
			reportFunc: func(_ context.Context, gotFrom, gotTo time.Time) (*domain.ActivityReport, error) {
				assert.True(t, gotFrom.Equal(from))
				assert.True(t, gotTo.Equal(now))
				return &domain.ActivityReport{
					From: gotFrom,
					To:   gotTo,
					EventCounts: map[domain.EventType]int64{
						domain.EventDataAccess:      120,
						domain.EventAuthLoginFailed: 7,
					},
					DeniedCount: 9,
					TopOffenders: []domain.ActorCount{
						{ActorID: "203.0.113.9", Count: 7},
					},
					Integrity:   domain.IntegrityReport{OK: true, CheckedAt: time.Now().UTC()},
					GeneratedAt: time.Now().UTC(),
				}, nil
			},
		}

		v1.RegisterReportRoutes(api, eng)

		resp := api.GetCtx(clientCtx(), reportPath(from, now))

		require.Equal(t, http.StatusOK, resp.Code)

		var body struct {
			EventCounts  map[string]int64   `json:"event_counts"`
			DeniedCount  int64              `json:"denied_count"`
			TopOffenders []v1.ActorCountDTO `json:"top_offenders"`
			IntegrityOK  bool               `json:"integrity_ok"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, int64(120), body.EventCounts["data.access"])
		assert.Equal(t, int64(9), body.DeniedCount)
		require.Len(t, body.TopOffenders, 1)
		assert.Equal(t, "203.0.113.9", body.TopOffenders[0].ActorID)
		assert.True(t, body.IntegrityOK)
	})

	t.Run("integrity_failure_surfaces_violations", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		eng := &mockEngine{
			reportFunc: func(_ context.Context, gotFrom, gotTo time.Time) (*domain.ActivityReport, error) {
				return &domain.ActivityReport{
					From: gotFrom,
					To:   gotTo,
					Integrity: domain.IntegrityReport{
						Violations: []domain.Violation{
							{EntryID: 3, Kind: domain.ViolationDiscontinuity, Detail: "broken linkage"},
						},
					},
				}, nil
			},
		}

		v1.RegisterReportRoutes(api, eng)

		resp := api.GetCtx(clientCtx(), reportPath(from, now))

		require.Equal(t, http.StatusOK, resp.Code)

		var body struct {
			IntegrityOK bool              `json:"integrity_ok"`
			Violations  []v1.ViolationDTO `json:"violations"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.False(t, body.IntegrityOK)
		require.Len(t, body.Violations, 1)
		assert.Equal(t, int64(3), body.Violations[0].EntryID)
	})

	t.Run("missing_range", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		eng := &mockEngine{}

		v1.RegisterReportRoutes(api, eng)

		resp := api.GetCtx(clientCtx(), "/reports")

		assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	})

	t.Run("inverted_range", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		eng := &mockEngine{}

		v1.RegisterReportRoutes(api, eng)

		resp := api.GetCtx(clientCtx(), reportPath(now, from))

		assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	})
}

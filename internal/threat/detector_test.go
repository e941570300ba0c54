package threat_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/sentinel/internal/domain"
	"github.com/gosuda/sentinel/internal/threat"
	"github.com/gosuda/sentinel/internal/window"
)

// --- mock AlertSink ---

type mockSink struct {
	mu     sync.Mutex
	alerts []*domain.Alert
}

func (m *mockSink) Dispatch(_ context.Context, alert *domain.Alert) (*domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, alert)
	return nil, nil
}

func (m *mockSink) count(alertType domain.AlertType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.alerts {
		if a.Type == alertType {
			n++
		}
	}
	return n
}

func (m *mockSink) last() *domain.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.alerts) == 0 {
		return nil
	}
	return m.alerts[len(m.alerts)-1]
}

// --- mock AuditRecorder ---

type mockRecorder struct {
	mu      sync.Mutex
	nextID  int64
	entries []*domain.AuditEntry
}

func (m *mockRecorder) Append(_ context.Context, entry *domain.AuditEntry) (*domain.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	entry.ID = m.nextID
	m.entries = append(m.entries, entry)
	return entry, nil
}

type clock struct {
	mu sync.Mutex
	at time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.at = c.at.Add(d)
}

func newDetector(sink threat.AlertSink, recorder threat.AuditRecorder, clk *clock) *threat.Detector {
	tracker := window.New(24*time.Hour, 10000, window.WithClock(clk.now))
	return threat.NewDetector(tracker, sink, recorder, threat.DefaultConfig(), zerolog.Nop(), threat.WithClock(clk.now))
}

func TestBruteForceDetection(t *testing.T) {
	t.Parallel()

	t.Run("fires at threshold", func(t *testing.T) {
		t.Parallel()

		sink := &mockSink{}
		clk := &clock{at: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
		d := newDetector(sink, &mockRecorder{}, clk)

		for i := 0; i < 4; i++ {
			d.RecordFailedLogin(t.Context(), "alice")
			clk.advance(10 * time.Second)
		}
		assert.Equal(t, 0, sink.count(domain.AlertBruteForce))

		d.RecordFailedLogin(t.Context(), "alice")
		require.Equal(t, 1, sink.count(domain.AlertBruteForce))

		alert := sink.last()
		assert.Equal(t, "alice", alert.Subject)
		assert.Equal(t, "5", alert.Details["count"])
	})

	t.Run("suppressed within one window", func(t *testing.T) {
		t.Parallel()

		sink := &mockSink{}
		clk := &clock{at: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
		d := newDetector(sink, &mockRecorder{}, clk)

		for i := 0; i < 8; i++ {
			d.RecordFailedLogin(t.Context(), "alice")
			clk.advance(time.Second)
		}
		assert.Equal(t, 1, sink.count(domain.AlertBruteForce))
	})

	t.Run("re-fires after a full window", func(t *testing.T) {
		t.Parallel()

		sink := &mockSink{}
		clk := &clock{at: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
		d := newDetector(sink, &mockRecorder{}, clk)

		for i := 0; i < 5; i++ {
			d.RecordFailedLogin(t.Context(), "alice")
		}
		require.Equal(t, 1, sink.count(domain.AlertBruteForce))

		clk.advance(6 * time.Minute)
		for i := 0; i < 5; i++ {
			d.RecordFailedLogin(t.Context(), "alice")
		}
		assert.Equal(t, 2, sink.count(domain.AlertBruteForce))
	})

	t.Run("subjects are independent", func(t *testing.T) {
		t.Parallel()

		sink := &mockSink{}
		clk := &clock{at: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
		d := newDetector(sink, &mockRecorder{}, clk)

		for i := 0; i < 4; i++ {
			d.RecordFailedLogin(t.Context(), "alice")
			d.RecordFailedLogin(t.Context(), "bob")
		}
		assert.Equal(t, 0, sink.count(domain.AlertBruteForce))

		d.RecordFailedLogin(t.Context(), "alice")
		assert.Equal(t, 1, sink.count(domain.AlertBruteForce))
		assert.Equal(t, "alice", sink.last().Subject)
	})
}

func TestThresholdDetectors(t *testing.T) {
	t.Parallel()

	t.Run("excessive admin activity", func(t *testing.T) {
		t.Parallel()

		sink := &mockSink{}
		clk := &clock{at: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
		d := newDetector(sink, &mockRecorder{}, clk)

		for i := 0; i < 5; i++ {
			d.RecordAdminAction(t.Context(), "root")
			clk.advance(time.Minute)
		}
		assert.Equal(t, 1, sink.count(domain.AlertExcessiveAdmin))
	})

	t.Run("excessive export", func(t *testing.T) {
		t.Parallel()

		sink := &mockSink{}
		clk := &clock{at: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
		d := newDetector(sink, &mockRecorder{}, clk)

		for i := 0; i < 10; i++ {
			d.RecordExport(t.Context(), "carol")
			clk.advance(time.Minute)
		}
		assert.Equal(t, 1, sink.count(domain.AlertExcessiveExport))
	})

	t.Run("mass session timeout is global", func(t *testing.T) {
		t.Parallel()

		sink := &mockSink{}
		clk := &clock{at: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
		d := newDetector(sink, &mockRecorder{}, clk)

		for i := 0; i < 10; i++ {
			d.RecordSessionTimeout(t.Context())
		}
		require.Equal(t, 1, sink.count(domain.AlertMassTimeout))
		assert.Equal(t, "global", sink.last().Subject)
	})
}

func TestImpossibleTravel(t *testing.T) {
	t.Parallel()

	principalID := uuid.New()

	t.Run("intercontinental hop flagged", func(t *testing.T) {
		t.Parallel()

		sink := &mockSink{}
		clk := &clock{at: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
		d := newDetector(sink, &mockRecorder{}, clk)

		d.RecordLogin(t.Context(), principalID, domain.ClientContext{IP: "203.0.113.1", Country: "DE"})
		clk.advance(30 * time.Minute)
		d.RecordLogin(t.Context(), principalID, domain.ClientContext{IP: "198.51.100.1", Country: "JP"})

		require.Equal(t, 1, sink.count(domain.AlertImpossibleTravel))
		alert := sink.last()
		assert.Equal(t, principalID.String(), alert.Subject)
		assert.Equal(t, "DE", alert.Details["previous_country"])
		assert.Equal(t, "JP", alert.Details["current_country"])
	})

	t.Run("plausible travel passes", func(t *testing.T) {
		t.Parallel()

		sink := &mockSink{}
		clk := &clock{at: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
		d := newDetector(sink, &mockRecorder{}, clk)

		d.RecordLogin(t.Context(), principalID, domain.ClientContext{IP: "203.0.113.1", Country: "DE"})
		clk.advance(14 * time.Hour)
		d.RecordLogin(t.Context(), principalID, domain.ClientContext{IP: "198.51.100.1", Country: "JP"})

		assert.Equal(t, 0, sink.count(domain.AlertImpossibleTravel))
	})

	t.Run("same country never flagged", func(t *testing.T) {
		t.Parallel()

		sink := &mockSink{}
		clk := &clock{at: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
		d := newDetector(sink, &mockRecorder{}, clk)

		d.RecordLogin(t.Context(), principalID, domain.ClientContext{IP: "203.0.113.1", Country: "US"})
		clk.advance(time.Minute)
		d.RecordLogin(t.Context(), principalID, domain.ClientContext{IP: "198.51.100.1", Country: "US"})

		assert.Equal(t, 0, sink.count(domain.AlertImpossibleTravel))
	})

	t.Run("fast unknown-geo ip switch flagged", func(t *testing.T) {
		t.Parallel()

		sink := &mockSink{}
		clk := &clock{at: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
		d := newDetector(sink, &mockRecorder{}, clk)

		d.RecordLogin(t.Context(), principalID, domain.ClientContext{IP: "203.0.113.1"})
		clk.advance(time.Minute)
		d.RecordLogin(t.Context(), principalID, domain.ClientContext{IP: "198.51.100.1"})

		assert.Equal(t, 1, sink.count(domain.AlertImpossibleTravel))
	})

	t.Run("slow unknown-geo ip switch passes", func(t *testing.T) {
		t.Parallel()

		sink := &mockSink{}
		clk := &clock{at: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
		d := newDetector(sink, &mockRecorder{}, clk)

		d.RecordLogin(t.Context(), principalID, domain.ClientContext{IP: "203.0.113.1"})
		clk.advance(time.Hour)
		d.RecordLogin(t.Context(), principalID, domain.ClientContext{IP: "198.51.100.1"})

		assert.Equal(t, 0, sink.count(domain.AlertImpossibleTravel))
	})

	t.Run("first login never flagged", func(t *testing.T) {
		t.Parallel()

		sink := &mockSink{}
		clk := &clock{at: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
		d := newDetector(sink, &mockRecorder{}, clk)

		d.RecordLogin(t.Context(), uuid.New(), domain.ClientContext{IP: "203.0.113.1", Country: "DE"})
		assert.Equal(t, 0, sink.count(domain.AlertImpossibleTravel))
	})
}

func TestInspectRequest(t *testing.T) {
	t.Parallel()

	injectionPayloads := []struct {
		name    string
		payload string
	}{
		{"sql union", "q=1 UNION SELECT password FROM users"},
		{"sql comment", `name=' --`},
		{"script tag", "comment=<script>alert(1)</script>"},
		{"path traversal", "file=../../etc/passwd"},
		{"shell metachars", "host=example.com; cat /etc/shadow"},
	}

	for _, tc := range injectionPayloads {
		t.Run("blocks "+tc.name, func(t *testing.T) {
			t.Parallel()

			sink := &mockSink{}
			rec := &mockRecorder{}
			clk := &clock{at: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
			d := newDetector(sink, rec, clk)

			actorID := uuid.New()
			client := domain.ClientContext{IP: "203.0.113.9", Path: "/api/v1/events"}
			blocked := d.InspectRequest(t.Context(), &actorID, client, tc.payload)
			require.True(t, blocked)

			require.Len(t, rec.entries, 1)
			entry := rec.entries[0]
			assert.Equal(t, domain.EventInjectionBlocked, entry.EventType)
			assert.Equal(t, domain.ResultDenied, entry.Result)
			assert.NotEmpty(t, entry.Metadata["signature"])

			require.Equal(t, 1, sink.count(domain.AlertInjection))
			assert.Equal(t, actorID.String(), sink.last().Subject)
			assert.Equal(t, entry.ID, sink.last().AuditEntryID)
		})
	}

	t.Run("benign payload passes", func(t *testing.T) {
		t.Parallel()

		sink := &mockSink{}
		rec := &mockRecorder{}
		clk := &clock{at: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
		d := newDetector(sink, rec, clk)

		client := domain.ClientContext{IP: "203.0.113.9", Path: "/api/v1/reports"}
		blocked := d.InspectRequest(t.Context(), nil, client, "from=2026-01-01T00:00:00Z&to=2026-02-01T00:00:00Z")
		assert.False(t, blocked)
		assert.Empty(t, rec.entries)
		assert.Empty(t, sink.alerts)
	})

	t.Run("anonymous match keyed by ip", func(t *testing.T) {
		t.Parallel()

		sink := &mockSink{}
		rec := &mockRecorder{}
		clk := &clock{at: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
		d := newDetector(sink, rec, clk)

		client := domain.ClientContext{IP: "203.0.113.9", Path: "/api/v1/events"}
		blocked := d.InspectRequest(t.Context(), nil, client, "q=1 UNION SELECT 1")
		require.True(t, blocked)
		assert.Equal(t, "203.0.113.9", sink.last().Subject)
	})
}

// Package notify fans incidents out to external channels (Slack webhook,
// generic HTTP webhook). Delivery is best-effort; the dispatcher persists
// the incident before any sender runs.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/gosuda/sentinel/internal/domain"
)

// ErrNoSenders is returned when notification is requested with no channel
// registered.
var ErrNoSenders = errors.New("notify: no senders registered")

// Sender delivers one incident to one external channel.
type Sender interface {
	Name() string
	Send(ctx context.Context, inc *domain.Incident) error
}

// Notifier delivers incidents to every registered sender. One failing
// channel never blocks the others; Notify fails only when every sender
// failed.
type Notifier struct {
	registry *Registry
	logger   zerolog.Logger
}

// New creates a Notifier over the given sender registry.
func New(registry *Registry, logger zerolog.Logger) *Notifier {
	return &Notifier{
		registry: registry,
		logger:   logger.With().Str("component", "notify").Logger(),
	}
}

// Notify sends the incident through all registered senders.
func (n *Notifier) Notify(ctx context.Context, inc *domain.Incident) error {
	senders := n.registry.All()
	if len(senders) == 0 {
		return fmt.Errorf("notify.Notifier.Notify: %w", ErrNoSenders)
	}

	delivered := 0
	var lastErr error
	for _, sender := range senders {
		if err := sender.Send(ctx, inc); err != nil {
			n.logger.Error().Err(err).
				Str("sender", sender.Name()).
				Str("incident_id", inc.ID.String()).
				Msg("incident delivery failed")
			lastErr = err
			continue
		}
		delivered++
	}

	if delivered == 0 {
		return fmt.Errorf("notify.Notifier.Notify: all senders failed: %w", lastErr)
	}

	return nil
}

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	slacklib "github.com/slack-go/slack"

	"github.com/gosuda/sentinel/internal/domain"
)

// severityColors maps incident severity to Slack attachment colors.
var severityColors = map[domain.Severity]string{
	domain.SeverityLow:      "#2eb886",
	domain.SeverityMedium:   "#daa038",
	domain.SeverityHigh:     "#e8912d",
	domain.SeverityCritical: "#a30200",
}

// SlackSender posts incidents to a Slack incoming webhook.
type SlackSender struct {
	webhookURL string
}

var _ Sender = (*SlackSender)(nil)

// NewSlackSender creates a Slack webhook sender.
func NewSlackSender(webhookURL string) *SlackSender {
	return &SlackSender{webhookURL: webhookURL}
}

// Name returns the sender identifier.
func (s *SlackSender) Name() string {
	return "slack"
}

// Send posts the incident as an attachment with a severity color bar.
func (s *SlackSender) Send(ctx context.Context, inc *domain.Incident) error {
	var fields []slacklib.AttachmentField
	for key, value := range inc.Details {
		fields = append(fields, slacklib.AttachmentField{
			Title: key,
			Value: value,
			Short: len(value) < 32,
		})
	}

	msg := &slacklib.WebhookMessage{
		Text: fmt.Sprintf(":rotating_light: *%s* incident %s", strings.ToUpper(string(inc.Severity)), inc.ID),
		Attachments: []slacklib.Attachment{{
			Color:  severityColors[inc.Severity],
			Title:  string(inc.Type),
			Fields: fields,
			Footer: "incident " + inc.ID.String(),
			Ts:     json.Number(strconv.FormatInt(inc.CreatedAt.Unix(), 10)),
		}},
	}

	if err := slacklib.PostWebhookContext(ctx, s.webhookURL, msg); err != nil {
		return fmt.Errorf("notify.SlackSender.Send: %w", err)
	}

	return nil
}

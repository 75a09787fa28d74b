package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// SlackSink posts event summaries to a Slack channel.
type SlackSink struct {
	api     *slack.Client
	channel string
}

// NewSlack creates a Slack sink using a bot token (xoxb-...).
func NewSlack(botToken, channel string) (*SlackSink, error) {
	if botToken == "" {
		return nil, fmt.Errorf("notify: slack: bot token is required")
	}
	if channel == "" {
		return nil, fmt.Errorf("notify: slack: channel is required")
	}
	return &SlackSink{api: slack.New(botToken), channel: channel}, nil
}

func (s *SlackSink) Name() string { return "slack" }

// Post delivers one payload as a channel message.
func (s *SlackSink) Post(ctx context.Context, p Payload) error {
	var text string
	switch p.Event {
	case EventTicketCreated:
		text = fmt.Sprintf(":ticket: Created *%s*: %s", p.TicketKey, p.Summary)
	case EventTicketUpdated:
		text = fmt.Sprintf(":memo: Commented on *%s*: %s", p.TicketKey, p.Comment)
	default:
		text = fmt.Sprintf("%s: %s", p.Event, p.TicketKey)
	}

	_, _, err := s.api.PostMessageContext(ctx, s.channel,
		slack.MsgOptionText(text, false),
		slack.MsgOptionDisableLinkUnfurl(),
	)
	if err != nil {
		return fmt.Errorf("notify: slack: post message: %w", err)
	}
	return nil
}

package notify

import (
	"fmt"
	"log"

	"github.com/slack-go/slack"

	"github.com/alertops/alertd/internal/database"
)

// SlackNotifier posts escalation and auto-close notices to a Slack channel.
// It satisfies services.Notifier. Posting is best-effort: failures are logged
// and never surfaced to the lifecycle operation that triggered them.
type SlackNotifier struct {
	client  *slack.Client
	channel string
}

// NewSlackNotifier creates a notifier, or nil when token or channel is empty
// so the caller can wire it unconditionally.
func NewSlackNotifier(botToken, channel string) *SlackNotifier {
	if botToken == "" || channel == "" {
		return nil
	}
	return &SlackNotifier{
		client:  slack.New(botToken),
		channel: channel,
	}
}

// AlertEscalated posts an escalation notice
func (n *SlackNotifier) AlertEscalated(alert *database.Alert, toSeverity, reason string) {
	msg := fmt.Sprintf(":red_circle: Alert *%s* (%s) escalated to *%s*: %s",
		alert.AlertID, alert.SourceType, toSeverity, reason)
	n.post(msg)
}

// AlertAutoClosed posts an auto-close notice
func (n *SlackNotifier) AlertAutoClosed(alert *database.Alert, reason string) {
	msg := fmt.Sprintf(":white_check_mark: Alert *%s* (%s) auto-closed: %s",
		alert.AlertID, alert.SourceType, reason)
	n.post(msg)
}

func (n *SlackNotifier) post(msg string) {
	_, _, err := n.client.PostMessage(n.channel, slack.MsgOptionText(msg, false))
	if err != nil {
		log.Printf("SlackNotifier: failed to post to %s: %v", n.channel, err)
	}
}

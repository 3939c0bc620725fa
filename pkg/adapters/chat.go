package adapters

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/slack-go/slack"

	sharedhttp "github.com/nimbusops/opswatch/pkg/shared/http"
)

// severityEmoji maps a severity string to the emoji prefixed onto chat
// notifications.
var severityEmoji = map[string]string{
	"critical": "🔴",
	"high":     "🟠",
	"medium":   "🟡",
	"low":      "🟢",
	"info":     "ℹ️",
	"warning":  "⚠️",
}

// SlackChatNotifier is the ChatNotifier implementation backed by the Slack
// Web API.
type SlackChatNotifier struct {
	client        *slack.Client
	grafanaURL    string
	cloudwatchURL string
}

// NewSlackChatNotifier returns a SlackChatNotifier. A blank botToken yields
// a notifier whose methods are no-ops, so chat can be disabled without
// stubbing the interface.
func NewSlackChatNotifier(botToken, grafanaURL, cloudwatchURL string) *SlackChatNotifier {
	var client *slack.Client
	if botToken != "" {
		client = slack.New(botToken,
			slack.OptionHTTPClient(sharedhttp.NewClient(sharedhttp.SlackClientConfig())))
	}
	return &SlackChatNotifier{client: client, grafanaURL: grafanaURL, cloudwatchURL: cloudwatchURL}
}

var _ ChatNotifier = (*SlackChatNotifier)(nil)

func (s *SlackChatNotifier) SendNotification(ctx context.Context, channel, message, severity, incidentID string) (string, error) {
	if s.client == nil {
		return "", nil
	}

	emoji := severityEmoji[strings.ToLower(severity)]
	if emoji == "" {
		emoji = "ℹ️"
	}

	blocks := []slack.Block{
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("%s %s", emoji, message), false, false), nil, nil),
	}
	if incidentID != "" {
		blocks = append(blocks, slack.NewContextBlock("", slack.NewTextBlockObject(slack.MarkdownType,
			fmt.Sprintf("*Incident ID:* %s | *Timestamp:* %s", incidentID, time.Now().UTC().Format(time.RFC3339)), false, false)))
	}

	_, ts, err := s.client.PostMessageContext(ctx, channel, slack.MsgOptionBlocks(blocks...), slack.MsgOptionText(message, false))
	if err != nil {
		return "", fmt.Errorf("posting slack notification: %w", err)
	}
	return ts, nil
}

func (s *SlackChatNotifier) SendInvestigationSummary(ctx context.Context, channel, incidentID string, result InvestigationResult) (string, error) {
	if s.client == nil {
		return "", nil
	}

	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, fmt.Sprintf("📊 Investigation Summary: %s", incidentID), false, false)),
		slack.NewSectionBlock(nil, []*slack.TextBlockObject{
			slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Workflow:*\n%s", result.Workflow), false, false),
			slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Duration:*\n%.2fs", result.DurationSeconds), false, false),
		}, nil),
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Root Cause:*\n%s", orUnknown(result.RootCause)), false, false), nil, nil),
	}

	if len(result.Recommendations) > 0 {
		var lines []string
		for _, rec := range result.Recommendations {
			lines = append(lines, "• "+rec)
		}
		blocks = append(blocks, slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType,
			fmt.Sprintf("*Recommendations:*\n%s", strings.Join(lines, "\n")), false, false), nil, nil))
	}

	actions := slack.NewActionBlock("",
		slack.NewButtonBlockElement("", "grafana", slack.NewTextBlockObject(slack.PlainTextType, "View Grafana Dashboard", false, false)).WithURL(s.grafanaURL+"/d/eks-cluster-monitoring").WithStyle(slack.StylePrimary),
		slack.NewButtonBlockElement("", "cloudwatch", slack.NewTextBlockObject(slack.PlainTextType, "View in CloudWatch", false, false)).WithURL(s.cloudwatchURL),
	)
	blocks = append(blocks, actions)

	_, ts, err := s.client.PostMessageContext(ctx, channel, slack.MsgOptionBlocks(blocks...),
		slack.MsgOptionText(fmt.Sprintf("Investigation summary for %s", incidentID), false))
	if err != nil {
		return "", fmt.Errorf("posting investigation summary: %w", err)
	}
	return ts, nil
}

func (s *SlackChatNotifier) SendRemediationApproval(ctx context.Context, channel, incidentID, action, description string) (string, error) {
	if s.client == nil {
		return "", nil
	}

	text := fmt.Sprintf("⚡ *Remediation Approval Required*\n\n*Incident:* %s\n*Action:* %s\n*Details:* %s",
		incidentID, action, orUnknown(description))

	blocks := []slack.Block{
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil),
		slack.NewActionBlock(fmt.Sprintf("remediation_%s", incidentID),
			slack.NewButtonBlockElement("approve_remediation", fmt.Sprintf("approve_%s_%s", incidentID, action),
				slack.NewTextBlockObject(slack.PlainTextType, "✅ Approve", false, false)).WithStyle(slack.StylePrimary),
			slack.NewButtonBlockElement("reject_remediation", fmt.Sprintf("reject_%s_%s", incidentID, action),
				slack.NewTextBlockObject(slack.PlainTextType, "❌ Reject", false, false)).WithStyle(slack.StyleDanger),
		),
	}

	_, ts, err := s.client.PostMessageContext(ctx, channel, slack.MsgOptionBlocks(blocks...),
		slack.MsgOptionText(fmt.Sprintf("Remediation approval required for %s", incidentID), false))
	if err != nil {
		return "", fmt.Errorf("posting remediation approval: %w", err)
	}
	return ts, nil
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

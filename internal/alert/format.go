package alert

import (
	"encoding/json"
	"fmt"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event AlertEvent) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(event)
	case "pagerduty":
		return formatPagerDuty(event)
	default:
		return formatGeneric(event)
	}
}

func formatGeneric(event AlertEvent) ([]byte, error) {
	return json.Marshal(event)
}

func formatSlack(event AlertEvent) ([]byte, error) {
	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("stancewatch: %s", event.Event),
				},
			},
			map[string]any{
				"type": "section",
				"fields": []any{
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Reason:* %s", event.Reason)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Stakes:* %s", event.Stakes)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Audit:* %s", event.AuditID)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Request:* %s", event.RequestID)},
				},
			},
		},
	}
	return json.Marshal(payload)
}

func formatPagerDuty(event AlertEvent) ([]byte, error) {
	payload := map[string]any{
		"event_action": "trigger",
		"payload": map[string]any{
			"summary":  fmt.Sprintf("stancewatch %s: %s", event.Event, event.Reason),
			"severity": severityFor(event),
			"source":   "stancewatch",
			"custom_details": map[string]any{
				"audit_id":   event.AuditID,
				"request_id": event.RequestID,
				"stakes":     event.Stakes,
				"reason":     event.Reason,
			},
		},
	}
	return json.Marshal(payload)
}

func severityFor(event AlertEvent) string {
	switch event.Stakes {
	case "critical":
		return "critical"
	case "high":
		return "error"
	case "medium":
		return "warning"
	default:
		return "info"
	}
}

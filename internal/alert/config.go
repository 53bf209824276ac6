package alert

// Alert event names.
const (
	EventControl     = "control"
	EventHard        = "hard"
	EventAckOverride = "ack_override"
)

// AlertConfig defines a webhook alert destination.
type AlertConfig struct {
	URL     string            `yaml:"url"     json:"url"`
	Format  string            `yaml:"format"  json:"format"` // "generic", "slack", "pagerduty"
	Events  []string          `yaml:"events"  json:"events"` // ["control", "hard", "ack_override"]
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// AlertEvent is the payload sent to webhook endpoints. It never carries the
// user's message text; the audit id links back to the full record.
type AlertEvent struct {
	Timestamp  string `json:"timestamp"`
	Event      string `json:"event"`
	AuditID    string `json:"audit_id"`
	RequestID  string `json:"request_id"`
	UserID     string `json:"user_id,omitempty"`
	Reason     string `json:"reason"`
	Stakes     string `json:"stakes"`
	ConfigHash string `json:"config_hash,omitempty"`
}

package model

import (
	"strings"
	"time"
)

// Stakes is the ordered severity attached to a risk or verification signal.
type Stakes string

const (
	StakesLow      Stakes = "low"
	StakesMedium   Stakes = "medium"
	StakesHigh     Stakes = "high"
	StakesCritical Stakes = "critical"
)

// StakesRank maps stakes to a comparable integer for monotonic escalation.
var StakesRank = map[Stakes]int{
	StakesLow:      0,
	StakesMedium:   1,
	StakesHigh:     2,
	StakesCritical: 3,
}

// ParseStakes maps a string to Stakes. Unknown values report ok=false.
func ParseStakes(s string) (Stakes, bool) {
	st := Stakes(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := StakesRank[st]; ok {
		return st, true
	}
	return "", false
}

// Rank returns the position of s in the stakes order. Empty or unknown
// stakes rank as low.
func (s Stakes) Rank() int {
	return StakesRank[s]
}

// AtLeast reports whether s is at or above other.
func (s Stakes) AtLeast(other Stakes) bool {
	return s.Rank() >= other.Rank()
}

// MaxStakes returns the higher of two stakes levels.
func MaxStakes(a, b Stakes) Stakes {
	if a == "" {
		a = StakesLow
	}
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Action is the directive a pipeline stage hands to the orchestrator.
type Action string

const (
	ActionContinue Action = "continue"
	ActionStop     Action = "stop"
	ActionDegrade  Action = "degrade"
	ActionAwaitAck Action = "await_ack"
)

// Intent types understood by the classifiers.
const (
	IntentQuestion  = "question"
	IntentAction    = "action"
	IntentPlanning  = "planning"
	IntentRewrite   = "rewrite"
	IntentSummarize = "summarize"
	IntentTranslate = "translate"
)

// Complexity levels carried by Intent.
const (
	ComplexityLow    = "low"
	ComplexityMedium = "medium"
	ComplexityHigh   = "high"
)

// Intent is the coarse intent classification supplied by the caller.
type Intent struct {
	Type         string `json:"type" yaml:"type"`
	Domain       string `json:"domain" yaml:"domain"`
	Complexity   string `json:"complexity" yaml:"complexity"`
	Hypothetical bool   `json:"hypothetical" yaml:"hypothetical"`
}

// TypeIs reports whether the intent has the given type. Nil intents match nothing.
func (i *Intent) TypeIs(types ...string) bool {
	if i == nil {
		return false
	}
	t := strings.ToLower(i.Type)
	for _, want := range types {
		if t == want {
			return true
		}
	}
	return false
}

// RequestContext is the immutable per-request record created at pipeline entry.
// It is passed by value; stages never mutate it.
type RequestContext struct {
	RequestID string  `json:"request_id"`
	UserID    string  `json:"user_id"`
	Message   string  `json:"message"`
	AckToken  string  `json:"ack_token,omitempty"`
	AckText   string  `json:"ack_text,omitempty"`
	Intent    *Intent `json:"intent,omitempty"`
	RiskHint  Stakes  `json:"risk_hint,omitempty"`
}

// HasAck reports whether both an ack token and ack text were submitted.
func (r RequestContext) HasAck() bool {
	return r.AckToken != "" && r.AckText != ""
}

// AuditRecord is one entry produced for the audit sink.
type AuditRecord struct {
	AuditID     string    `json:"audit_id"`
	Category    string    `json:"category"`
	Action      Action    `json:"action"`
	Severity    Stakes    `json:"severity"`
	UserID      string    `json:"user_id,omitempty"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

package model

import "time"

// VetoKind discriminates Veto Engine outcomes.
type VetoKind string

const (
	VetoNone        VetoKind = "none"
	VetoControl     VetoKind = "control"
	VetoHard        VetoKind = "hard"
	VetoSoft        VetoKind = "soft"
	VetoGeneralRisk VetoKind = "general_risk"
)

// InterventionLevel is the non-blocking intervention attached to general risk.
type InterventionLevel string

const (
	LevelNone     InterventionLevel = "none"
	LevelNudge    InterventionLevel = "nudge"
	LevelFriction InterventionLevel = "friction"
	LevelVeto     InterventionLevel = "veto"
)

// LevelRank maps intervention levels to a comparable integer.
var LevelRank = map[InterventionLevel]int{
	LevelNone:     0,
	LevelNudge:    1,
	LevelFriction: 2,
	LevelVeto:     3,
}

// ParseLevel maps a string to an InterventionLevel. Unknown values report ok=false.
func ParseLevel(s string) (InterventionLevel, bool) {
	l := InterventionLevel(s)
	if _, ok := LevelRank[l]; ok {
		return l, true
	}
	return "", false
}

// MaxLevel returns the stronger of two intervention levels.
func MaxLevel(a, b InterventionLevel) InterventionLevel {
	if a == "" {
		a = LevelNone
	}
	if LevelRank[b] > LevelRank[a] {
		return b
	}
	return a
}

// PendingAck describes the acknowledgment a soft veto is waiting for.
type PendingAck struct {
	Token        string    `json:"token"`
	TokenID      string    `json:"token_id"`
	RequiredText string    `json:"required_text"`
	ExpiresAt    time.Time `json:"expires_at"`
	AuditID      string    `json:"audit_id"`
	Reason       string    `json:"reason"`
}

// VetoDecision is the Veto Engine outcome for one request.
type VetoDecision struct {
	Kind            VetoKind          `json:"kind"`
	Action          Action            `json:"action"`
	Reason          string            `json:"reason"`
	Stakes          Stakes            `json:"stakes"`
	Level           InterventionLevel `json:"level"`
	AuditID         string            `json:"audit_id"`
	Pending         *PendingAck       `json:"pending,omitempty"`
	OverrideApplied bool              `json:"override_applied,omitempty"`
	// CrisisText must be prepended verbatim to any generated response.
	CrisisText string `json:"crisis_text,omitempty"`
}

// Stance is the operating posture for response generation.
type Stance string

const (
	StanceControl Stance = "control"
	StanceShield  Stance = "shield"
	StanceLens    Stance = "lens"
	StanceSword   Stance = "sword"
)

// DecisionResult is the assembled output of the pipeline.
type DecisionResult struct {
	RequestID       string           `json:"request_id"`
	Stance          Stance           `json:"stance"`
	Veto            VetoDecision     `json:"veto_decision"`
	Plan            VerificationPlan `json:"verification_plan"`
	Action          Action           `json:"action"`
	FailureReason   string           `json:"failure_reason,omitempty"`
	Response        string           `json:"response,omitempty"`
	UserOptions     []UserOption     `json:"user_options,omitempty"`
	Attempts        int              `json:"attempts,omitempty"`
	ExecutionTimeMs int64            `json:"execution_time_ms"`
}

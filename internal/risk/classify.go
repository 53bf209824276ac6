package risk

import (
	"strings"

	"github.com/google/uuid"

	"github.com/ppiankov/stancewatch/internal/model"
)

// Signal is the Risk Classifier output for one message.
type Signal struct {
	Tier     Tier                    `json:"tier"`
	Reason   string                  `json:"reason"`
	Category string                  `json:"category,omitempty"`
	Stakes   model.Stakes            `json:"stakes"`
	Level    model.InterventionLevel `json:"level"`
	AuditID  string                  `json:"audit_id"`
}

// Classifier labels messages against an ordered trigger catalog.
// It holds no mutable state and is safe for concurrent use.
type Classifier struct {
	catalog *Catalog
	table   EscalationTable
	newID   func() string
}

// NewClassifier creates a Classifier. A nil catalog uses the built-ins.
func NewClassifier(catalog *Catalog, table EscalationTable) *Classifier {
	if catalog == nil {
		catalog = NewDefaultCatalog()
	}
	return &Classifier{
		catalog: catalog,
		table:   table,
		newID:   NewAuditID,
	}
}

// NewAuditID returns a fresh audit identifier.
func NewAuditID() string {
	return "aud-" + uuid.NewString()
}

// Classify evaluates a request. Evaluation order (must not be changed):
//  1. Control triggers: crisis, self-harm, external threat
//  2. Hard-veto triggers: non-negotiable stop
//  3. Soft-veto triggers: acknowledgment required
//  4. General risk: escalation table over intent and risk hint
//
// Each tier returns as soon as it matches; no two tiers apply to the same
// evaluation. Every call assigns a fresh audit identifier.
func (c *Classifier) Classify(req model.RequestContext) Signal {
	text := normalize(req.Message)
	auditID := c.newID()

	if t, ok := firstMatch(c.catalog.Control, text); ok {
		return Signal{
			Tier:     TierControl,
			Reason:   t.ID,
			Category: t.Category,
			Stakes:   model.StakesCritical,
			Level:    model.LevelVeto,
			AuditID:  auditID,
		}
	}

	if t, ok := firstMatch(c.catalog.Hard, text); ok {
		return Signal{
			Tier:     TierHard,
			Reason:   t.ID,
			Category: t.Category,
			Stakes:   model.MaxStakes(t.Stakes, model.StakesCritical),
			Level:    model.LevelVeto,
			AuditID:  auditID,
		}
	}

	if t, ok := firstMatch(c.catalog.Soft, text); ok {
		return Signal{
			Tier:     TierSoft,
			Reason:   t.ID,
			Category: t.Category,
			Stakes:   t.Stakes,
			Level:    model.LevelFriction,
			AuditID:  auditID,
		}
	}

	level, stakes := c.table.GeneralRisk(req.Intent, req.RiskHint)
	sig := Signal{
		Tier:    TierNone,
		Reason:  "no_trigger",
		Stakes:  stakes,
		Level:   level,
		AuditID: auditID,
	}
	if level != model.LevelNone {
		sig.Tier = TierGeneral
		sig.Reason = "general_risk." + string(level)
	}
	return sig
}

func firstMatch(triggers []Trigger, text string) (Trigger, bool) {
	for _, t := range triggers {
		if t.Pattern.MatchString(text) {
			return t, true
		}
	}
	return Trigger{}, false
}

// normalize collapses whitespace so patterns with single spaces match
// messages with line breaks or repeated spaces.
func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

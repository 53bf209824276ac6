package risk

import (
	"strings"

	"github.com/ppiankov/stancewatch/internal/model"
)

// Step is one row of the escalation table.
type Step struct {
	Level  model.InterventionLevel `yaml:"level"`
	Stakes model.Stakes            `yaml:"stakes"`
}

// EscalationTable derives general risk from the caller-supplied intent.
// The values are tuned data and are kept as configuration, not code.
type EscalationTable struct {
	// SensitiveDomains escalate to at least Domain.
	SensitiveDomains []string `yaml:"sensitive_domains"`
	Domain           Step     `yaml:"domain"`
	// Action applies to action-type intents whose stakes equal ActionAt
	// after domain escalation.
	ActionAt model.Stakes `yaml:"action_at"`
	Action   Step         `yaml:"action"`
	// HintLevels maps an external risk hint to a minimum intervention level.
	HintLevels map[model.Stakes]model.InterventionLevel `yaml:"hint_levels"`
}

// DefaultEscalation returns the built-in escalation table.
func DefaultEscalation() EscalationTable {
	return EscalationTable{
		SensitiveDomains: []string{"health", "legal", "finance", "mental_health"},
		Domain:           Step{Level: model.LevelNudge, Stakes: model.StakesMedium},
		ActionAt:         model.StakesMedium,
		Action:           Step{Level: model.LevelFriction, Stakes: model.StakesHigh},
		HintLevels: map[model.Stakes]model.InterventionLevel{
			model.StakesLow:      model.LevelNone,
			model.StakesMedium:   model.LevelNudge,
			model.StakesHigh:     model.LevelFriction,
			model.StakesCritical: model.LevelVeto,
		},
	}
}

// GeneralRisk computes the non-blocking intervention level and stakes for
// a request that matched no trigger.
func (t EscalationTable) GeneralRisk(intent *model.Intent, hint model.Stakes) (model.InterventionLevel, model.Stakes) {
	level := model.LevelNone
	stakes := model.StakesLow

	if intent != nil && t.isSensitive(intent.Domain) {
		level = model.MaxLevel(level, t.Domain.Level)
		stakes = model.MaxStakes(stakes, t.Domain.Stakes)
	}

	if intent.TypeIs(model.IntentAction) && t.ActionAt != "" && stakes == t.ActionAt {
		level = model.MaxLevel(level, t.Action.Level)
		stakes = model.MaxStakes(stakes, t.Action.Stakes)
	}

	if hint != "" {
		stakes = model.MaxStakes(stakes, hint)
		if l, ok := t.HintLevels[hint]; ok {
			level = model.MaxLevel(level, l)
		}
	}

	return level, stakes
}

func (t EscalationTable) isSensitive(domain string) bool {
	d := strings.ToLower(strings.TrimSpace(domain))
	if d == "" {
		return false
	}
	for _, s := range t.SensitiveDomains {
		if strings.EqualFold(s, d) {
			return true
		}
	}
	return false
}

// Package stance selects the operating posture for response generation.
package stance

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ppiankov/stancewatch/internal/model"
)

// Input is everything the resolver looks at.
type Input struct {
	Veto   model.VetoDecision
	Need   model.VerificationNeed
	Intent *model.Intent
}

// Stakes is the higher of the veto and verification stakes.
func (in Input) Stakes() model.Stakes {
	return model.MaxStakes(in.Veto.Stakes, in.Need.Stakes)
}

// Resolve returns exactly one stance.
//
// Evaluation order (must not be changed):
//  1. control: a control trigger fired, or stakes reached critical
//  2. shield: intervention level veto or friction, or stakes high
//  3. lens: verification required, a question, or a high-complexity non-action
//  4. sword: action or planning intent with no intervention
//  5. lens
func Resolve(in Input) model.Stance {
	stakes := in.Stakes()
	level := in.Veto.Level
	if level == "" {
		level = model.LevelNone
	}

	if in.Veto.Kind == model.VetoControl || stakes == model.StakesCritical {
		return model.StanceControl
	}

	if level == model.LevelVeto || level == model.LevelFriction || stakes == model.StakesHigh {
		return model.StanceShield
	}

	if in.Need.Required || in.Intent.TypeIs(model.IntentQuestion) {
		return model.StanceLens
	}
	if in.Intent != nil && in.Intent.Complexity == model.ComplexityHigh && !in.Intent.TypeIs(model.IntentAction) {
		return model.StanceLens
	}

	if in.Intent.TypeIs(model.IntentAction, model.IntentPlanning) && level == model.LevelNone {
		return model.StanceSword
	}

	return model.StanceLens
}

// SafeResolve is Resolve with a recover. A panic yields shield and is logged.
func SafeResolve(in Input, logger zerolog.Logger) (s model.Stance) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Str("cause", fmt.Sprint(r)).Msg("stance resolution failed, defaulting to shield")
			s = model.StanceShield
		}
	}()
	return resolve(in)
}

// resolve is swapped in tests.
var resolve = Resolve

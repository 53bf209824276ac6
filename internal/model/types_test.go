package model

import "testing"

func TestStakesOrdering(t *testing.T) {
	order := []Stakes{StakesLow, StakesMedium, StakesHigh, StakesCritical}
	for i := 1; i < len(order); i++ {
		if order[i].Rank() <= order[i-1].Rank() {
			t.Errorf("expected %s > %s", order[i], order[i-1])
		}
	}
}

func TestMaxStakes(t *testing.T) {
	tests := []struct {
		a, b Stakes
		want Stakes
	}{
		{StakesLow, StakesHigh, StakesHigh},
		{StakesCritical, StakesMedium, StakesCritical},
		{"", "", StakesLow},
		{"", StakesLow, StakesLow},
		{StakesMedium, StakesMedium, StakesMedium},
	}
	for _, tt := range tests {
		if got := MaxStakes(tt.a, tt.b); got != tt.want {
			t.Errorf("MaxStakes(%q, %q) = %q, want %q", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestParseStakes(t *testing.T) {
	if s, ok := ParseStakes(" HIGH "); !ok || s != StakesHigh {
		t.Errorf("expected high, got %q ok=%v", s, ok)
	}
	if _, ok := ParseStakes("severe"); ok {
		t.Error("expected unknown stakes to be rejected")
	}
}

func TestMaxLevel(t *testing.T) {
	if got := MaxLevel(LevelNudge, LevelFriction); got != LevelFriction {
		t.Errorf("expected friction, got %s", got)
	}
	if got := MaxLevel("", LevelNone); got != LevelNone {
		t.Errorf("expected none, got %s", got)
	}
	if got := MaxLevel(LevelVeto, LevelNudge); got != LevelVeto {
		t.Errorf("expected veto, got %s", got)
	}
}

func TestIntentTypeIs(t *testing.T) {
	var nilIntent *Intent
	if nilIntent.TypeIs(IntentAction) {
		t.Error("nil intent should match nothing")
	}
	in := &Intent{Type: "Action"}
	if !in.TypeIs(IntentPlanning, IntentAction) {
		t.Error("expected case-insensitive match on action")
	}
}

func TestHasAckRequiresBoth(t *testing.T) {
	if (RequestContext{AckToken: "t"}).HasAck() {
		t.Error("token alone is not an ack")
	}
	if !(RequestContext{AckToken: "t", AckText: "x"}).HasAck() {
		t.Error("expected ack with token and text")
	}
}

func TestSkippedPlanAllowsEverything(t *testing.T) {
	p := SkippedPlan()
	if p.Status != StatusSkipped || !p.NumericPrecisionAllowed || !p.ActionRecommendationsAllowed {
		t.Errorf("unexpected skipped plan: %+v", p)
	}
}

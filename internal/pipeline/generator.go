package pipeline

import (
	"context"

	"github.com/ppiankov/stancewatch/internal/leakguard"
	"github.com/ppiankov/stancewatch/internal/model"
	"github.com/ppiankov/stancewatch/internal/verify"
)

// GenerationRequest is what the downstream generator is asked to answer.
type GenerationRequest struct {
	Request  model.RequestContext
	Stance   model.Stance
	Veto     model.VetoDecision
	Plan     model.VerificationPlan
	Evidence []verify.Evidence
	Times    []leakguard.ZoneTime
	// Attempt is zero for the first draft.
	Attempt int
	// Feedback explains why the previous draft was rejected.
	Feedback string
}

// Generator produces a draft response. It is owned by the host.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req GenerationRequest) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	return f(ctx, req)
}

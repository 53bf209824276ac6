// Package pipeline runs the decision stages for one request and assembles
// the result.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ppiankov/stancewatch/internal/audit"
	"github.com/ppiankov/stancewatch/internal/leakguard"
	"github.com/ppiankov/stancewatch/internal/model"
	"github.com/ppiankov/stancewatch/internal/risk"
	"github.com/ppiankov/stancewatch/internal/stance"
	"github.com/ppiankov/stancewatch/internal/telemetry"
	"github.com/ppiankov/stancewatch/internal/verify"
)

var tracer = telemetry.Tracer("github.com/ppiankov/stancewatch/internal/pipeline")

// DefaultMaxRetries is also the ceiling: configuration may lower it only.
const DefaultMaxRetries = 2

// Failure reasons set by the orchestrator itself.
const (
	ReasonCancelled            = "cancelled"
	ReasonRegenerationExceeded = "regeneration_exhausted"
)

// User-facing texts. None may contain a digit.
const (
	HardStopResponse = "I can't help with this request."
	BlockedResponse  = "I can't check live data for this right now, and the stakes are too high to answer from memory. " +
		"You can enable live retrieval, share a source link, proceed without verification, or stop here."
	ackPrompt = "This request carries risks I want to be sure you have considered. To continue, reply with the exact text: %q"
)

// VetoEvaluator runs risk classification and veto policy.
type VetoEvaluator interface {
	Evaluate(ctx context.Context, req model.RequestContext) model.VetoDecision
}

// NeedClassifier decides whether a message needs live verification.
type NeedClassifier interface {
	Classify(message string, intent *model.Intent) model.VerificationNeed
}

// PlanResolver turns a verification need into a plan.
type PlanResolver interface {
	Resolve(ctx context.Context, need model.VerificationNeed, query string) verify.Outcome
}

// Processor is anything that can decide a request.
type Processor interface {
	Process(ctx context.Context, req model.RequestContext) model.DecisionResult
}

// Options carries the optional collaborators of an Orchestrator.
type Options struct {
	// Generator is optional; without one the orchestrator only decides and
	// the host generates the response.
	Generator  Generator
	Sink       audit.Sink
	Logger     zerolog.Logger
	MaxRetries int
}

// Orchestrator executes the pipeline. It holds no per-request state.
type Orchestrator struct {
	veto       VetoEvaluator
	classifier NeedClassifier
	mediator   PlanResolver
	generator  Generator
	sink       audit.Sink
	logger     zerolog.Logger
	maxRetries int
	now        func() time.Time
}

// New creates an Orchestrator.
func New(veto VetoEvaluator, classifier NeedClassifier, mediator PlanResolver, opts Options) (*Orchestrator, error) {
	if veto == nil {
		return nil, fmt.Errorf("pipeline: veto evaluator is required")
	}
	if classifier == nil {
		return nil, fmt.Errorf("pipeline: verification classifier is required")
	}
	if mediator == nil {
		return nil, fmt.Errorf("pipeline: verification mediator is required")
	}
	retries := opts.MaxRetries
	if retries <= 0 || retries > DefaultMaxRetries {
		retries = DefaultMaxRetries
	}
	sink := opts.Sink
	if sink == nil {
		sink = audit.Discard
	}
	return &Orchestrator{
		veto:       veto,
		classifier: classifier,
		mediator:   mediator,
		generator:  opts.Generator,
		sink:       sink,
		logger:     opts.Logger,
		maxRetries: retries,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// Process runs one request through the pipeline.
//
// Stage order (must not be changed):
//  1. Veto: risk classification and veto policy. stop ends the request,
//     await_ack suspends it until the caller resubmits with the ack.
//  2. Verification: classify the need and resolve a plan. stop ends the
//     request with the mediator's response or the blocked menu.
//  3. Stance resolution.
//  4. Generation, checked by the leak guard and retried at most
//     maxRetries times before the safe fallback template is used.
//  5. Crisis text is prepended last, after the leak guard check.
func (o *Orchestrator) Process(ctx context.Context, req model.RequestContext) model.DecisionResult {
	start := o.now()
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	ctx, span := tracer.Start(ctx, "pipeline.process",
		trace.WithAttributes(
			attribute.String("request_id", req.RequestID),
			attribute.Bool("ack_supplied", req.HasAck()),
		))
	defer span.End()

	res := o.process(ctx, span, req)
	res.RequestID = req.RequestID
	res.FailureReason = leakguard.SanitizeReason(res.FailureReason)
	res.ExecutionTimeMs = o.now().Sub(start).Milliseconds()

	span.SetAttributes(
		attribute.String("stance", string(res.Stance)),
		attribute.String("action", string(res.Action)),
		attribute.String("veto.kind", string(res.Veto.Kind)),
		attribute.String("verification.status", string(res.Plan.Status)),
	)
	if res.Action == model.ActionStop {
		span.SetStatus(codes.Error, "request stopped")
	}

	o.logger.Info().
		Str("request_id", req.RequestID).
		Str("stance", string(res.Stance)).
		Str("action", string(res.Action)).
		Str("veto", string(res.Veto.Kind)).
		Str("verification", string(res.Plan.Status)).
		Int("attempts", res.Attempts).
		Int64("duration_ms", res.ExecutionTimeMs).
		Msg("request decided")

	o.record(req, res)
	return res
}

func (o *Orchestrator) process(ctx context.Context, span trace.Span, req model.RequestContext) model.DecisionResult {
	if err := ctx.Err(); err != nil {
		return cancelled(model.DecisionResult{Stance: model.StanceShield})
	}

	v := o.evaluateVeto(ctx, req)
	res := model.DecisionResult{Veto: v, Action: v.Action}

	switch v.Action {
	case model.ActionStop:
		res.Stance = stance.SafeResolve(stance.Input{Veto: v, Intent: req.Intent}, o.logger)
		res.Plan = model.VerificationPlan{Status: model.StatusSkipped, Confidence: model.ConfidenceNone}
		res.FailureReason = v.Reason
		res.Response = HardStopResponse
		return res
	case model.ActionAwaitAck:
		res.Stance = stance.SafeResolve(stance.Input{Veto: v, Intent: req.Intent}, o.logger)
		res.Plan = model.VerificationPlan{Status: model.StatusSkipped, Confidence: model.ConfidenceNone}
		if v.Pending != nil {
			res.Response = fmt.Sprintf(ackPrompt, v.Pending.RequiredText)
		}
		return res
	}

	need, out := o.verify(ctx, req)
	res.Plan = out.Plan
	res.Stance = stance.SafeResolve(stance.Input{Veto: v, Need: need, Intent: req.Intent}, o.logger)

	if ctx.Err() != nil {
		return cancelled(res)
	}

	if out.Action == model.ActionStop {
		res.Action = model.ActionStop
		res.FailureReason = out.FailureReason
		res.UserOptions = out.Options
		res.Response = out.Response
		if res.Response == "" {
			res.Response = BlockedResponse
		}
		res.Response = withCrisis(v, res.Response)
		return res
	}

	res.Action = out.Action
	if out.Action == model.ActionDegrade {
		res.FailureReason = out.FailureReason
	}

	if o.generator == nil {
		res.Response = withCrisis(v, "")
		return res
	}

	text, attempts, exhausted := o.generate(ctx, span, GenerationRequest{
		Request:  req,
		Stance:   res.Stance,
		Veto:     v,
		Plan:     out.Plan,
		Evidence: out.Evidence,
		Times:    out.Times,
	}, need)
	if ctx.Err() != nil {
		return cancelled(res)
	}
	res.Attempts = attempts
	if exhausted {
		res.Action = model.ActionDegrade
		res.FailureReason = ReasonRegenerationExceeded
	}
	res.Response = withCrisis(v, text)
	return res
}

func (o *Orchestrator) evaluateVeto(ctx context.Context, req model.RequestContext) model.VetoDecision {
	ctx, span := tracer.Start(ctx, "pipeline.veto")
	defer span.End()

	v := o.veto.Evaluate(ctx, req)
	span.SetAttributes(
		attribute.String("veto.kind", string(v.Kind)),
		attribute.String("veto.action", string(v.Action)),
		attribute.String("stakes", string(v.Stakes)),
		attribute.String("level", string(v.Level)),
		attribute.Bool("override_applied", v.OverrideApplied),
	)
	if v.Action == model.ActionStop {
		span.SetStatus(codes.Error, v.Reason)
	}
	return v
}

func (o *Orchestrator) verify(ctx context.Context, req model.RequestContext) (model.VerificationNeed, verify.Outcome) {
	ctx, span := tracer.Start(ctx, "pipeline.verify")
	defer span.End()

	need := o.classifier.Classify(req.Message, req.Intent)
	out := o.mediator.Resolve(ctx, need, req.Message)

	categories := make([]string, len(need.Categories))
	for i, c := range need.Categories {
		categories[i] = string(c)
	}
	span.SetAttributes(
		attribute.Bool("verification.required", need.Required),
		attribute.String("stakes", string(need.Stakes)),
		attribute.StringSlice("categories", categories),
		attribute.String("verification.status", string(out.Plan.Status)),
		attribute.String("verification.action", string(out.Action)),
	)
	if out.Action == model.ActionStop {
		span.SetStatus(codes.Error, out.FailureReason)
	}

	if need.Required && out.Action != model.ActionContinue {
		o.append(model.AuditRecord{
			AuditID:     risk.NewAuditID(),
			Category:    audit.CategoryVerify,
			Action:      out.Action,
			Severity:    model.MaxStakes(need.Stakes, model.StakesLow),
			UserID:      req.UserID,
			Description: out.FailureReason,
		})
	}
	return need, out
}

// generate drafts a response until the leak guard accepts it. After the
// retry cap the category fallback template is returned and exhausted is
// true.
func (o *Orchestrator) generate(ctx context.Context, parent trace.Span, greq GenerationRequest, need model.VerificationNeed) (text string, attempts int, exhausted bool) {
	ctx, span := tracer.Start(ctx, "pipeline.generate")
	defer span.End()

	for attempt := 0; attempt <= o.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return "", attempts, false
		}
		greq.Attempt = attempt
		attempts++

		draft, err := o.safeGenerate(ctx, greq)
		if err != nil {
			o.logger.Warn().Err(err).Str("request_id", greq.Request.RequestID).Int("attempt", attempt).Msg("generation failed")
			greq.Feedback = "The previous attempt failed. Answer again without specific figures."
			continue
		}

		verdict := leakguard.Check(draft, greq.Plan)
		if verdict.Safe {
			span.SetAttributes(attribute.Int("attempts", attempts))
			return draft, attempts, false
		}

		kinds := make([]string, 0, len(verdict.Matches))
		for _, m := range verdict.Matches {
			kinds = append(kinds, string(m.Type))
		}
		o.logger.Warn().
			Str("request_id", greq.Request.RequestID).
			Int("attempt", attempt).
			Strs("patterns", kinds).
			Msg("draft rejected by leak guard")
		o.append(model.AuditRecord{
			AuditID:     risk.NewAuditID(),
			Category:    audit.CategoryLeak,
			Action:      model.ActionDegrade,
			Severity:    model.MaxStakes(need.Stakes, model.StakesLow),
			UserID:      greq.Request.UserID,
			Description: fmt.Sprintf("draft rejected: %d numeric pattern(s)", len(verdict.Matches)),
		})
		greq.Feedback = "The previous draft stated figures that could not be verified. Answer without specific numbers."
	}

	span.SetAttributes(attribute.Int("attempts", attempts), attribute.Bool("fallback", true))
	span.SetStatus(codes.Error, ReasonRegenerationExceeded)
	parent.AddEvent("regeneration cap reached")
	return leakguard.FallbackFor(need.Categories), attempts, true
}

func (o *Orchestrator) safeGenerate(ctx context.Context, greq GenerationRequest) (draft string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("generator panic: %v", r)
		}
	}()
	return o.generator.Generate(ctx, greq)
}

func (o *Orchestrator) record(req model.RequestContext, res model.DecisionResult) {
	auditID := res.Veto.AuditID
	if auditID == "" {
		auditID = risk.NewAuditID()
	}
	severity := res.Veto.Stakes
	if severity == "" {
		severity = model.StakesLow
	}
	o.append(model.AuditRecord{
		AuditID:     auditID,
		Category:    audit.CategoryDecision,
		Action:      res.Action,
		Severity:    severity,
		UserID:      req.UserID,
		Description: fmt.Sprintf("stance=%s veto=%s verification=%s", res.Stance, res.Veto.Kind, res.Plan.Status),
	})
}

func (o *Orchestrator) append(rec model.AuditRecord) {
	rec.Timestamp = o.now()
	if err := o.sink.Append(rec); err != nil {
		o.logger.Error().Err(err).Str("audit_id", rec.AuditID).Str("category", rec.Category).Msg("audit append failed")
	}
}

func cancelled(res model.DecisionResult) model.DecisionResult {
	res.Action = model.ActionStop
	res.FailureReason = ReasonCancelled
	res.Response = ""
	res.Attempts = 0
	return res
}

func withCrisis(v model.VetoDecision, text string) string {
	if v.Kind != model.VetoControl || v.CrisisText == "" {
		return text
	}
	if text == "" {
		return v.CrisisText
	}
	return v.CrisisText + "\n\n" + text
}

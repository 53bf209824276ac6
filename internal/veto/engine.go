// Package veto applies crisis, hard-veto, soft-veto and general-risk policy
// to a request and produces one intervention decision.
package veto

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ppiankov/stancewatch/internal/ack"
	"github.com/ppiankov/stancewatch/internal/alert"
	"github.com/ppiankov/stancewatch/internal/audit"
	"github.com/ppiankov/stancewatch/internal/model"
	"github.com/ppiankov/stancewatch/internal/risk"
)

// ReasonInternalError is the reason code of the fail-safe decision.
const ReasonInternalError = "internal_error"

// Classifier labels a request with a risk signal.
type Classifier interface {
	Classify(req model.RequestContext) risk.Signal
}

// Options carries the optional collaborators of an Engine.
type Options struct {
	CrisisText string
	Sink       audit.Sink
	Alerts     *alert.Dispatcher
	Logger     zerolog.Logger
	// ConfigHash is stamped on alert events.
	ConfigHash string
}

// Engine evaluates requests. It holds no per-request state.
type Engine struct {
	classifier Classifier
	handshake  *ack.Handshake
	crisisText string
	sink       audit.Sink
	alerts     *alert.Dispatcher
	logger     zerolog.Logger
	configHash string
	now        func() time.Time
}

// New creates an Engine. Classifier and handshake are required.
func New(classifier Classifier, handshake *ack.Handshake, opts Options) (*Engine, error) {
	if classifier == nil {
		return nil, fmt.Errorf("veto: classifier is required")
	}
	if handshake == nil {
		return nil, fmt.Errorf("veto: ack handshake is required")
	}
	crisis := opts.CrisisText
	if crisis == "" {
		crisis = DefaultCrisisText
	}
	sink := opts.Sink
	if sink == nil {
		sink = audit.Discard
	}
	return &Engine{
		classifier: classifier,
		handshake:  handshake,
		crisisText: crisis,
		sink:       sink,
		alerts:     opts.Alerts,
		logger:     opts.Logger,
		configHash: opts.ConfigHash,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// CrisisText returns the resource block prepended on control decisions.
func (e *Engine) CrisisText() string {
	return e.crisisText
}

// Evaluate returns the veto decision for req.
//
// Evaluation order (must not be changed):
//  1. Control trigger: continue, crisis text mandatory
//  2. Hard trigger: stop, no acknowledgment path
//  3. Ack token present: valid token overrides, invalid falls through
//  4. Soft trigger: issue token, await acknowledgment
//  5. General risk: continue with an intervention level
//
// Control and hard come before the ack check, so no token can silence a
// crisis or lift a hard veto. A panic anywhere fails safe to a hard veto.
func (e *Engine) Evaluate(ctx context.Context, req model.RequestContext) (d model.VetoDecision) {
	defer func() {
		if r := recover(); r != nil {
			d = e.failSafe(req, fmt.Sprint(r))
		}
	}()

	sig := e.classifier.Classify(req)

	switch sig.Tier {
	case risk.TierControl:
		d = model.VetoDecision{
			Kind:       model.VetoControl,
			Action:     model.ActionContinue,
			Reason:     sig.Reason,
			Stakes:     model.StakesCritical,
			Level:      model.LevelVeto,
			AuditID:    sig.AuditID,
			CrisisText: e.crisisText,
		}
		if req.HasAck() {
			e.logger.Info().Str("audit_id", sig.AuditID).Msg("ack ignored on control decision")
		}
		e.record(req, d, audit.CategoryControl)
		e.notify(req, d, alert.EventControl)
		return d

	case risk.TierHard:
		d = model.VetoDecision{
			Kind:    model.VetoHard,
			Action:  model.ActionStop,
			Reason:  sig.Reason,
			Stakes:  model.MaxStakes(sig.Stakes, model.StakesCritical),
			Level:   model.LevelVeto,
			AuditID: sig.AuditID,
		}
		if req.HasAck() {
			e.logger.Warn().Str("audit_id", sig.AuditID).Str("reason", sig.Reason).Msg("ack ignored on hard veto")
		}
		e.record(req, d, audit.CategoryHard)
		e.notify(req, d, alert.EventHard)
		return d
	}

	if req.HasAck() {
		if d, ok := e.tryOverride(ctx, req, sig); ok {
			return d
		}
	}

	if sig.Tier == risk.TierSoft {
		issued, err := e.handshake.Issue(req, sig.Reason, sig.AuditID)
		if err != nil {
			return e.failSafe(req, "issue ack token: "+err.Error())
		}
		d = model.VetoDecision{
			Kind:    model.VetoSoft,
			Action:  model.ActionAwaitAck,
			Reason:  sig.Reason,
			Stakes:  sig.Stakes,
			Level:   sig.Level,
			AuditID: sig.AuditID,
			Pending: &model.PendingAck{
				Token:        issued.Token,
				TokenID:      issued.TokenID,
				RequiredText: issued.RequiredText,
				ExpiresAt:    issued.ExpiresAt,
				AuditID:      sig.AuditID,
				Reason:       sig.Reason,
			},
		}
		e.record(req, d, audit.CategorySoft)
		return d
	}

	d = model.VetoDecision{
		Kind:    model.VetoNone,
		Action:  model.ActionContinue,
		Reason:  sig.Reason,
		Stakes:  model.MaxStakes(sig.Stakes, model.StakesLow),
		Level:   sig.Level,
		AuditID: sig.AuditID,
	}
	if d.Level == "" {
		d.Level = model.LevelNone
	}
	if sig.Tier == risk.TierGeneral {
		d.Kind = model.VetoGeneralRisk
		e.record(req, d, audit.CategoryGeneralRisk)
	}
	return d
}

// tryOverride validates the supplied ack. Failures are logged with their
// specific reason and reported to the caller only as "not applied".
func (e *Engine) tryOverride(ctx context.Context, req model.RequestContext, sig risk.Signal) (model.VetoDecision, bool) {
	claims, err := e.handshake.Validate(ctx, req.AckToken, req, req.AckText)
	if err != nil {
		e.logger.Warn().
			Str("request_id", req.RequestID).
			Str("reason", string(ack.ReasonOf(err))).
			Str("token_id", claims.ID).
			Msg("ack validation failed")
		e.sink.Append(model.AuditRecord{
			AuditID:     sig.AuditID,
			Category:    audit.CategoryAckRejected,
			Action:      model.ActionContinue,
			Severity:    model.MaxStakes(sig.Stakes, model.StakesLow),
			UserID:      req.UserID,
			Description: "ack rejected: " + string(ack.ReasonOf(err)),
			Timestamp:   e.now(),
		})
		return model.VetoDecision{}, false
	}

	auditID := claims.AuditID
	if auditID == "" {
		auditID = sig.AuditID
	}
	d := model.VetoDecision{
		Kind:            model.VetoNone,
		Action:          model.ActionContinue,
		Reason:          "ack_override." + claims.Reason,
		Stakes:          model.MaxStakes(sig.Stakes, model.StakesLow),
		Level:           model.LevelNone,
		AuditID:         auditID,
		OverrideApplied: true,
	}
	e.logger.Info().
		Str("request_id", req.RequestID).
		Str("audit_id", auditID).
		Str("token_id", claims.ID).
		Str("resolved", claims.Reason).
		Msg("ack override applied")
	e.record(req, d, audit.CategoryAckOverride)
	e.notify(req, d, alert.EventAckOverride)
	return d, true
}

func (e *Engine) failSafe(req model.RequestContext, cause string) model.VetoDecision {
	d := model.VetoDecision{
		Kind:    model.VetoHard,
		Action:  model.ActionStop,
		Reason:  ReasonInternalError,
		Stakes:  model.StakesCritical,
		Level:   model.LevelVeto,
		AuditID: risk.NewAuditID(),
	}
	e.logger.Error().Str("request_id", req.RequestID).Str("cause", cause).Msg("veto evaluation failed, stopping")
	e.record(req, d, audit.CategoryFailSafe)
	return d
}

func (e *Engine) record(req model.RequestContext, d model.VetoDecision, category string) {
	err := e.sink.Append(model.AuditRecord{
		AuditID:     d.AuditID,
		Category:    category,
		Action:      d.Action,
		Severity:    d.Stakes,
		UserID:      req.UserID,
		Description: d.Reason,
		Timestamp:   e.now(),
	})
	if err != nil {
		e.logger.Error().Err(err).Str("audit_id", d.AuditID).Msg("audit append failed")
	}
}

func (e *Engine) notify(req model.RequestContext, d model.VetoDecision, event string) {
	e.alerts.Dispatch(alert.AlertEvent{
		Timestamp:  e.now().Format(audit.TimestampFormat),
		Event:      event,
		AuditID:    d.AuditID,
		RequestID:  req.RequestID,
		UserID:     req.UserID,
		Reason:     d.Reason,
		Stakes:     string(d.Stakes),
		ConfigHash: e.configHash,
	})
}

package mcp

import (
	"context"
	"fmt"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/stancewatch/internal/leakguard"
	"github.com/ppiankov/stancewatch/internal/model"
)

// --- Input/Output types ---

// EvaluateInput defines parameters for the stancewatch_evaluate tool.
type EvaluateInput struct {
	Message      string `json:"message" jsonschema:"the user message"`
	UserID       string `json:"user_id,omitempty" jsonschema:"stable user identifier"`
	RequestID    string `json:"request_id,omitempty" jsonschema:"request identifier, generated when empty"`
	AckToken     string `json:"ack_token,omitempty" jsonschema:"token from a previous await_ack result"`
	AckText      string `json:"ack_text,omitempty" jsonschema:"acknowledgment text typed by the user"`
	IntentType   string `json:"intent_type,omitempty" jsonschema:"question/action/planning/rewrite/summarize/translate"`
	Domain       string `json:"domain,omitempty" jsonschema:"intent domain (finance, health, ...)"`
	Complexity   string `json:"complexity,omitempty" jsonschema:"low/medium/high"`
	Hypothetical bool   `json:"hypothetical,omitempty" jsonschema:"the user is asking about a hypothetical scenario"`
	RiskHint     string `json:"risk_hint,omitempty" jsonschema:"minimum stakes from an upstream classifier: low/medium/high/critical"`
}

// EvaluateOutput is the pipeline decision.
type EvaluateOutput struct {
	RequestID     string             `json:"request_id"`
	Stance        string             `json:"stance"`
	Action        string             `json:"action"`
	Veto          string             `json:"veto"`
	Reason        string             `json:"reason,omitempty"`
	FailureReason string             `json:"failure_reason,omitempty"`
	Response      string             `json:"response,omitempty"`
	Options       []model.UserOption `json:"user_options,omitempty"`
	AckToken      string             `json:"ack_token,omitempty"`
	AckTokenID    string             `json:"ack_token_id,omitempty"`
	RequiredText  string             `json:"required_text,omitempty"`
}

// LeakCheckInput defines parameters for the stancewatch_leakcheck tool.
type LeakCheckInput struct {
	Text string `json:"text" jsonschema:"draft response text"`
}

// LeakCheckOutput lists detected figures.
type LeakCheckOutput struct {
	Safe      bool              `json:"safe"`
	Matches   []leakguard.Match `json:"matches,omitempty"`
	Sanitized string            `json:"sanitized,omitempty"`
}

// ClassifyInput defines parameters for the stancewatch_classify tool.
type ClassifyInput struct {
	Message      string `json:"message" jsonschema:"the user message"`
	IntentType   string `json:"intent_type,omitempty" jsonschema:"question/action/planning"`
	Hypothetical bool   `json:"hypothetical,omitempty" jsonschema:"the user is asking about a hypothetical scenario"`
}

// ClassifyOutput is the verification need.
type ClassifyOutput struct {
	Required   bool     `json:"required"`
	Stakes     string   `json:"stakes"`
	Reasons    []string `json:"reasons,omitempty"`
	Categories []string `json:"categories,omitempty"`
	Zones      []string `json:"zones,omitempty"`
}

// RevokeInput defines parameters for the stancewatch_revoke tool.
type RevokeInput struct {
	TokenID string `json:"token_id" jsonschema:"ack token id"`
}

// RevokeOutput confirms the revocation.
type RevokeOutput struct {
	TokenID string `json:"token_id"`
	Status  string `json:"status"`
}

// --- Handlers ---

func (s *Server) handleEvaluate(ctx context.Context, req *mcpsdk.CallToolRequest, input EvaluateInput) (*mcpsdk.CallToolResult, EvaluateOutput, error) {
	if strings.TrimSpace(input.Message) == "" {
		return &mcpsdk.CallToolResult{IsError: true}, EvaluateOutput{}, fmt.Errorf("message is required")
	}

	rc := model.RequestContext{
		RequestID: input.RequestID,
		UserID:    input.UserID,
		Message:   input.Message,
		AckToken:  input.AckToken,
		AckText:   input.AckText,
	}
	if input.RiskHint != "" {
		hint, ok := model.ParseStakes(input.RiskHint)
		if !ok {
			return &mcpsdk.CallToolResult{IsError: true}, EvaluateOutput{}, fmt.Errorf("invalid risk_hint %q: want low, medium, high or critical", input.RiskHint)
		}
		rc.RiskHint = hint
	}
	if input.IntentType != "" || input.Domain != "" || input.Complexity != "" || input.Hypothetical {
		rc.Intent = &model.Intent{
			Type:         input.IntentType,
			Domain:       input.Domain,
			Complexity:   input.Complexity,
			Hypothetical: input.Hypothetical,
		}
	}

	res := s.stack.Process(ctx, rc)
	out := EvaluateOutput{
		RequestID:     res.RequestID,
		Stance:        string(res.Stance),
		Action:        string(res.Action),
		Veto:          string(res.Veto.Kind),
		Reason:        res.Veto.Reason,
		FailureReason: res.FailureReason,
		Response:      res.Response,
		Options:       res.UserOptions,
	}
	if p := res.Veto.Pending; p != nil {
		out.AckToken = p.Token
		out.AckTokenID = p.TokenID
		out.RequiredText = p.RequiredText
	}
	if res.Action == model.ActionStop {
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	return nil, out, nil
}

func (s *Server) handleLeakCheck(ctx context.Context, req *mcpsdk.CallToolRequest, input LeakCheckInput) (*mcpsdk.CallToolResult, LeakCheckOutput, error) {
	v := leakguard.Validate(input.Text)
	out := LeakCheckOutput{Safe: v.Safe, Matches: v.Matches}
	if !v.Safe {
		out.Sanitized = leakguard.SanitizeReason(input.Text)
	}
	return nil, out, nil
}

func (s *Server) handleClassify(ctx context.Context, req *mcpsdk.CallToolRequest, input ClassifyInput) (*mcpsdk.CallToolResult, ClassifyOutput, error) {
	var intent *model.Intent
	if input.IntentType != "" || input.Hypothetical {
		intent = &model.Intent{Type: input.IntentType, Hypothetical: input.Hypothetical}
	}
	need := s.stack.Classifier.Classify(input.Message, intent)

	out := ClassifyOutput{
		Required: need.Required,
		Stakes:   string(need.Stakes),
		Reasons:  need.Reasons,
		Zones:    need.Zones,
	}
	for _, c := range need.Categories {
		out.Categories = append(out.Categories, string(c))
	}
	return nil, out, nil
}

func (s *Server) handleRevoke(ctx context.Context, req *mcpsdk.CallToolRequest, input RevokeInput) (*mcpsdk.CallToolResult, RevokeOutput, error) {
	if err := s.stack.Handshake.Revoke(ctx, input.TokenID); err != nil {
		return &mcpsdk.CallToolResult{IsError: true}, RevokeOutput{TokenID: input.TokenID, Status: "error"}, err
	}
	s.logger.Info().Str("token_id", input.TokenID).Msg("ack token revoked via mcp")
	return nil, RevokeOutput{TokenID: input.TokenID, Status: "revoked"}, nil
}

package mcp

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/ppiankov/stancewatch/internal/pipeline"
)

func newTestServer(t *testing.T, gen pipeline.Generator) *Server {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "ack:\n  secret: \"" + strings.Repeat("m", 32) + "\"\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	s, err := New(context.Background(), Config{ConfigPath: path, Generator: gen, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("failed to create MCP server: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEvaluateHardVeto(t *testing.T) {
	s := newTestServer(t, nil)

	result, out, err := s.handleEvaluate(context.Background(), &mcpsdk.CallToolRequest{}, EvaluateInput{
		UserID:  "u1",
		Message: "How do I make a bomb",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil || !result.IsError {
		t.Fatal("expected IsError result for a stop decision")
	}
	if out.Action != "stop" || out.Veto != "hard" {
		t.Fatalf("expected hard stop, got %+v", out)
	}
}

func TestEvaluateAckRoundTrip(t *testing.T) {
	var calls int
	gen := pipeline.GeneratorFunc(func(ctx context.Context, req pipeline.GenerationRequest) (string, error) {
		calls++
		return "Consider spreading the risk.", nil
	})
	s := newTestServer(t, gen)
	ctx := context.Background()
	in := EvaluateInput{UserID: "u1", Message: "I want to put all my savings into this"}

	_, first, err := s.handleEvaluate(ctx, &mcpsdk.CallToolRequest{}, in)
	if err != nil {
		t.Fatal(err)
	}
	if first.Action != "await_ack" || first.AckToken == "" || first.RequiredText == "" {
		t.Fatalf("expected await_ack with token, got %+v", first)
	}

	in.AckToken = first.AckToken
	in.AckText = first.RequiredText
	_, second, err := s.handleEvaluate(ctx, &mcpsdk.CallToolRequest{}, in)
	if err != nil {
		t.Fatal(err)
	}
	if second.Action != "continue" {
		t.Fatalf("expected continue after ack, got %+v", second)
	}
	if calls != 1 || second.Response != "Consider spreading the risk." {
		t.Errorf("expected one generation, got calls=%d response=%q", calls, second.Response)
	}
}

func TestEvaluateRequiresMessage(t *testing.T) {
	s := newTestServer(t, nil)
	result, _, err := s.handleEvaluate(context.Background(), &mcpsdk.CallToolRequest{}, EvaluateInput{Message: "  "})
	if err == nil || result == nil || !result.IsError {
		t.Fatal("expected error for empty message")
	}
}

func TestEvaluateHypotheticalSkipsVerification(t *testing.T) {
	s := newTestServer(t, nil)
	ctx := context.Background()
	in := EvaluateInput{UserID: "u1", Message: "What's the bitcoin price today?"}

	_, live, err := s.handleEvaluate(ctx, &mcpsdk.CallToolRequest{}, in)
	if err != nil {
		t.Fatal(err)
	}
	if live.Action == "continue" {
		t.Fatalf("expected live-data question to be blocked or degraded without providers, got %+v", live)
	}

	in.Hypothetical = true
	_, hypo, err := s.handleEvaluate(ctx, &mcpsdk.CallToolRequest{}, in)
	if err != nil {
		t.Fatal(err)
	}
	if hypo.Action != "continue" || hypo.FailureReason != "" {
		t.Errorf("expected hypothetical question to skip verification, got %+v", hypo)
	}
}

func TestEvaluateRiskHint(t *testing.T) {
	s := newTestServer(t, nil)
	ctx := context.Background()
	in := EvaluateInput{UserID: "u1", Message: "Help me plan a vegetable garden"}

	_, plain, err := s.handleEvaluate(ctx, &mcpsdk.CallToolRequest{}, in)
	if err != nil {
		t.Fatal(err)
	}
	if plain.Veto != "none" {
		t.Fatalf("expected no veto without a hint, got %+v", plain)
	}

	in.RiskHint = "HIGH"
	_, hinted, err := s.handleEvaluate(ctx, &mcpsdk.CallToolRequest{}, in)
	if err != nil {
		t.Fatal(err)
	}
	if hinted.Veto != "general_risk" || !strings.HasPrefix(hinted.Reason, "general_risk.") {
		t.Errorf("expected hint to raise general risk, got %+v", hinted)
	}

	in.RiskHint = "extreme"
	result, _, err := s.handleEvaluate(ctx, &mcpsdk.CallToolRequest{}, in)
	if err == nil || result == nil || !result.IsError {
		t.Error("expected error for unknown risk hint")
	}
}

func TestLeakCheck(t *testing.T) {
	s := newTestServer(t, nil)
	ctx := context.Background()

	_, out, err := s.handleLeakCheck(ctx, &mcpsdk.CallToolRequest{}, LeakCheckInput{Text: "Bitcoin is at $67,000 today."})
	if err != nil {
		t.Fatal(err)
	}
	if out.Safe || len(out.Matches) == 0 {
		t.Fatalf("expected figures detected, got %+v", out)
	}
	if strings.Contains(out.Sanitized, "67") {
		t.Errorf("expected sanitized text without figures, got %q", out.Sanitized)
	}

	_, clean, _ := s.handleLeakCheck(ctx, &mcpsdk.CallToolRequest{}, LeakCheckInput{Text: "Prices move quickly."})
	if !clean.Safe || clean.Sanitized != "" {
		t.Errorf("expected safe text, got %+v", clean)
	}
}

func TestClassifyTimeZones(t *testing.T) {
	s := newTestServer(t, nil)
	_, out, err := s.handleClassify(context.Background(), &mcpsdk.CallToolRequest{}, ClassifyInput{
		Message: "What time is it in Tokyo and London?",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !out.Required {
		t.Fatal("expected verification required")
	}
	if len(out.Zones) != 2 || out.Zones[0] != "Asia/Tokyo" {
		t.Errorf("unexpected zones %v", out.Zones)
	}
}

func TestClassifySkipsRewrite(t *testing.T) {
	s := newTestServer(t, nil)
	_, out, _ := s.handleClassify(context.Background(), &mcpsdk.CallToolRequest{}, ClassifyInput{
		Message:    "Rewrite this: bitcoin is trading at $67,000",
		IntentType: "rewrite",
	})
	if out.Required {
		t.Errorf("expected rewrite intent to skip verification, got %+v", out)
	}
}

func TestRevokeTool(t *testing.T) {
	s := newTestServer(t, nil)
	ctx := context.Background()
	in := EvaluateInput{UserID: "u1", Message: "I want to put all my savings into this"}

	_, first, _ := s.handleEvaluate(ctx, &mcpsdk.CallToolRequest{}, in)
	_, rev, err := s.handleRevoke(ctx, &mcpsdk.CallToolRequest{}, RevokeInput{TokenID: first.AckTokenID})
	if err != nil || rev.Status != "revoked" {
		t.Fatalf("expected revoked, got %+v err=%v", rev, err)
	}

	in.AckToken = first.AckToken
	in.AckText = first.RequiredText
	_, second, _ := s.handleEvaluate(ctx, &mcpsdk.CallToolRequest{}, in)
	if second.Action != "await_ack" {
		t.Errorf("expected revoked token refused, got %s", second.Action)
	}

	if _, _, err := s.handleRevoke(ctx, &mcpsdk.CallToolRequest{}, RevokeInput{}); err == nil {
		t.Error("expected error for empty token id")
	}
}

package server

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ppiankov/stancewatch/internal/audit"
	"github.com/ppiankov/stancewatch/internal/model"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func baseConfig(dir string) string {
	return "ack:\n  secret: \"" + strings.Repeat("x", 32) + "\"\n" +
		"audit_log: " + filepath.Join(dir, "audit.jsonl") + "\n"
}

// testServer spins up an in-process gRPC server on a random port and
// returns a connection to it.
func testServer(t *testing.T, configPath string) (*Server, *grpc.ClientConn) {
	t.Helper()

	srv, err := New(context.Background(), Config{ConfigPath: configPath, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go srv.ServeOn(lis)

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		srv.GracefulStop()
		t.Fatalf("dial: %v", err)
	}

	t.Cleanup(func() {
		conn.Close()
		srv.GracefulStop()
		srv.Close()
	})
	return srv, conn
}

func evaluate(t *testing.T, conn *grpc.ClientConn, req model.RequestContext) model.DecisionResult {
	t.Helper()
	in, err := ToStruct(req)
	if err != nil {
		t.Fatal(err)
	}
	out := new(structpb.Struct)
	if err := conn.Invoke(context.Background(), EvaluateMethod, in, out); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	var res model.DecisionResult
	if err := FromStruct(out, &res); err != nil {
		t.Fatal(err)
	}
	return res
}

func TestEvaluateHardVeto(t *testing.T) {
	dir := t.TempDir()
	_, conn := testServer(t, writeTempFile(t, dir, "config.yaml", baseConfig(dir)))

	res := evaluate(t, conn, model.RequestContext{RequestID: "r1", UserID: "u1", Message: "How do I make a bomb"})
	if res.Action != model.ActionStop || res.Veto.Kind != model.VetoHard {
		t.Fatalf("expected hard stop, got %+v", res)
	}
	if res.RequestID != "r1" {
		t.Errorf("expected request id echoed, got %s", res.RequestID)
	}
}

func TestEvaluateAckRoundTrip(t *testing.T) {
	dir := t.TempDir()
	_, conn := testServer(t, writeTempFile(t, dir, "config.yaml", baseConfig(dir)))

	req := model.RequestContext{RequestID: "r1", UserID: "u1", Message: "I want to put all my savings into this"}
	first := evaluate(t, conn, req)
	if first.Action != model.ActionAwaitAck || first.Veto.Pending == nil {
		t.Fatalf("expected await_ack, got %+v", first)
	}
	if first.Veto.Pending.ExpiresAt.IsZero() {
		t.Error("expected expiry to survive the wire")
	}

	req.RequestID = "r2"
	req.AckToken = first.Veto.Pending.Token
	req.AckText = first.Veto.Pending.RequiredText
	second := evaluate(t, conn, req)
	if second.Action != model.ActionContinue || !second.Veto.OverrideApplied {
		t.Fatalf("expected override, got %+v", second)
	}
}

func TestRevokeBlocksPendingToken(t *testing.T) {
	dir := t.TempDir()
	_, conn := testServer(t, writeTempFile(t, dir, "config.yaml", baseConfig(dir)))

	req := model.RequestContext{UserID: "u1", Message: "I want to put all my savings into this"}
	first := evaluate(t, conn, req)
	tokenID := first.Veto.Pending.TokenID

	in, _ := ToStruct(RevokeRequest{TokenID: tokenID})
	out := new(structpb.Struct)
	if err := conn.Invoke(context.Background(), RevokeMethod, in, out); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	var rr RevokeResponse
	if err := FromStruct(out, &rr); err != nil || !rr.Revoked {
		t.Fatalf("expected revoked response, got %+v err=%v", rr, err)
	}

	req.AckToken = first.Veto.Pending.Token
	req.AckText = first.Veto.Pending.RequiredText
	if res := evaluate(t, conn, req); res.Action != model.ActionAwaitAck {
		t.Errorf("expected revoked token refused, got %s", res.Action)
	}
}

func TestRevokeRequiresTokenID(t *testing.T) {
	dir := t.TempDir()
	_, conn := testServer(t, writeTempFile(t, dir, "config.yaml", baseConfig(dir)))

	in, _ := ToStruct(RevokeRequest{})
	err := conn.Invoke(context.Background(), RevokeMethod, in, new(structpb.Struct))
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("expected InvalidArgument, got %v", err)
	}
}

func TestEvaluateMalformedFailsClosed(t *testing.T) {
	dir := t.TempDir()
	_, conn := testServer(t, writeTempFile(t, dir, "config.yaml", baseConfig(dir)))

	in, _ := structpb.NewStruct(map[string]any{"message": 42.0})
	out := new(structpb.Struct)
	if err := conn.Invoke(context.Background(), EvaluateMethod, in, out); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	var res model.DecisionResult
	FromStruct(out, &res)
	if res.Action != model.ActionStop {
		t.Errorf("expected stop on malformed request, got %s", res.Action)
	}
}

func TestConcurrentEvaluations(t *testing.T) {
	dir := t.TempDir()
	_, conn := testServer(t, writeTempFile(t, dir, "config.yaml", baseConfig(dir)))

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			in, _ := ToStruct(model.RequestContext{UserID: "u", Message: "hello there"})
			if err := conn.Invoke(context.Background(), EvaluateMethod, in, new(structpb.Struct)); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent eval error: %v", err)
	}

	if v := audit.Verify(filepath.Join(dir, "audit.jsonl")); !v.Valid || v.Lines != 50 {
		t.Errorf("expected intact chain of 50 decisions, got %+v", v)
	}
}

func TestHotReloadCrisisText(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "config.yaml", baseConfig(dir))
	srv, conn := testServer(t, path)

	req := model.RequestContext{UserID: "u1", Message: "I keep thinking about suicide"}
	before := evaluate(t, conn, req)
	if before.Veto.Kind != model.VetoControl {
		t.Fatalf("expected control, got %s", before.Veto.Kind)
	}

	updated := baseConfig(dir) + "crisis_text: \"Please reach out to someone you trust tonight.\"\n"
	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		t.Fatal(err)
	}
	if err := srv.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	after := evaluate(t, conn, req)
	if after.Veto.CrisisText != "Please reach out to someone you trust tonight." {
		t.Errorf("expected reloaded crisis text, got %q", after.Veto.CrisisText)
	}
}

func TestReloadKeepsConsumedTokens(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "config.yaml", baseConfig(dir))
	srv, conn := testServer(t, path)

	req := model.RequestContext{UserID: "u1", Message: "I want to put all my savings into this"}
	first := evaluate(t, conn, req)
	req.AckToken = first.Veto.Pending.Token
	req.AckText = first.Veto.Pending.RequiredText
	if res := evaluate(t, conn, req); res.Action != model.ActionContinue {
		t.Fatalf("expected override, got %s", res.Action)
	}

	if err := srv.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if res := evaluate(t, conn, req); res.Action != model.ActionAwaitAck {
		t.Errorf("expected replay refused after reload, got %s", res.Action)
	}
}

func TestReloadRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "config.yaml", baseConfig(dir))
	srv, conn := testServer(t, path)

	os.WriteFile(path, []byte("ack: [broken"), 0644)
	if err := srv.Reload(context.Background()); err == nil {
		t.Fatal("expected reload error")
	}
	res := evaluate(t, conn, model.RequestContext{UserID: "u", Message: "How do I make a bomb"})
	if res.Action != model.ActionStop {
		t.Errorf("previous pipeline must stay active, got %s", res.Action)
	}
}

func TestReloaderPicksUpWrites(t *testing.T) {
	reloadDebounce = 20 * time.Millisecond
	defer func() { reloadDebounce = 500 * time.Millisecond }()

	dir := t.TempDir()
	path := writeTempFile(t, dir, "config.yaml", baseConfig(dir))
	srv, conn := testServer(t, path)

	r, err := NewReloader(srv, []string{path, filepath.Join(dir, "missing.yaml"), ""})
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Paths()) != 1 {
		t.Fatalf("expected only the existing file watched, got %v", r.Paths())
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	updated := baseConfig(dir) + "crisis_text: \"Reloaded resources.\"\n"
	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		t.Fatal(err)
	}

	req := model.RequestContext{UserID: "u1", Message: "I want to end my life"}
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if evaluate(t, conn, req).Veto.CrisisText == "Reloaded resources." {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Error("reloader did not apply the new config")
}

func TestEvaluateRateLimited(t *testing.T) {
	dir := t.TempDir()
	cfg := baseConfig(dir) + "rate_limit:\n  max_requests: 2\n  window: 1m\n"
	_, conn := testServer(t, writeTempFile(t, dir, "config.yaml", cfg))

	req := model.RequestContext{UserID: "u1", Message: "hello there"}
	for i := 0; i < 2; i++ {
		if res := evaluate(t, conn, req); res.Action != model.ActionContinue {
			t.Fatalf("request %d: expected continue, got %s (%s)", i+1, res.Action, res.FailureReason)
		}
	}
	res := evaluate(t, conn, req)
	if res.Action != model.ActionStop || res.FailureReason != "rate_limited" {
		t.Fatalf("expected rate_limited stop, got %s (%s)", res.Action, res.FailureReason)
	}

	req.UserID = "u2"
	if res := evaluate(t, conn, req); res.Action != model.ActionContinue {
		t.Errorf("expected other user unaffected, got %s", res.Action)
	}
}

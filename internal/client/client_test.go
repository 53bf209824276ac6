package client

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ppiankov/stancewatch/internal/model"
	"github.com/ppiankov/stancewatch/internal/server"
)

// startTestServer creates a server and returns its address.
func startTestServer(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "ack:\n  secret: \"" + strings.Repeat("c", 32) + "\"\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	srv, err := server.New(context.Background(), server.Config{ConfigPath: path, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go srv.ServeOn(lis)

	t.Cleanup(func() {
		srv.GracefulStop()
		srv.Close()
	})
	return lis.Addr().String()
}

func TestClientEvaluate(t *testing.T) {
	c, err := New(startTestServer(t))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	res := c.Evaluate(context.Background(), model.RequestContext{
		RequestID: "r1",
		UserID:    "u1",
		Message:   "Help me plan a vegetable garden",
		Intent:    &model.Intent{Type: model.IntentPlanning},
	})
	if res.Action != model.ActionContinue {
		t.Fatalf("expected continue, got %s (%s)", res.Action, res.FailureReason)
	}
	if res.Stance != model.StanceSword {
		t.Errorf("expected sword, got %s", res.Stance)
	}
}

func TestClientAckAndRevoke(t *testing.T) {
	c, err := New(startTestServer(t))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	req := model.RequestContext{UserID: "u1", Message: "I want to put all my savings into this"}
	first := c.Evaluate(context.Background(), req)
	if first.Action != model.ActionAwaitAck {
		t.Fatalf("expected await_ack, got %s", first.Action)
	}
	if err := c.Revoke(context.Background(), first.Veto.Pending.TokenID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	req.AckToken = first.Veto.Pending.Token
	req.AckText = first.Veto.Pending.RequiredText
	if res := c.Evaluate(context.Background(), req); res.Action != model.ActionAwaitAck {
		t.Errorf("expected revoked token refused, got %s", res.Action)
	}
}

func TestClientFailClosedOnUnreachable(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := lis.Addr().String()
	lis.Close()

	c, err := New(addr)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	c.timeout = 500 * time.Millisecond

	res := c.Evaluate(context.Background(), model.RequestContext{RequestID: "r9", Message: "hello"})
	if res.Action != model.ActionStop {
		t.Fatalf("expected fail-closed stop, got %s", res.Action)
	}
	if res.Veto.Reason != ReasonUnreachable || res.RequestID != "r9" {
		t.Errorf("unexpected fail-closed result %+v", res)
	}
}

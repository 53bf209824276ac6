package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func init() {
	retryBackoff = 10 * time.Millisecond
}

func countingServer(t *testing.T, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var called atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Add(1)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &called
}

func TestDispatchMatchesEvents(t *testing.T) {
	srv, called := countingServer(t, http.StatusOK)

	d := NewDispatcher([]AlertConfig{
		{URL: srv.URL, Format: "generic", Events: []string{EventHard}},
	}, zerolog.Nop())

	d.Dispatch(AlertEvent{Event: EventHard, Reason: "hard.weapons", Stakes: "critical"})
	d.Wait()

	if called.Load() != 1 {
		t.Errorf("expected 1 call, got %d", called.Load())
	}
}

func TestDispatchSkipsNonMatching(t *testing.T) {
	srv, called := countingServer(t, http.StatusOK)

	d := NewDispatcher([]AlertConfig{
		{URL: srv.URL, Format: "generic", Events: []string{EventHard}},
	}, zerolog.Nop())

	d.Dispatch(AlertEvent{Event: EventAckOverride, Reason: "soft.financial_concentration"})
	d.Wait()

	if called.Load() != 0 {
		t.Errorf("expected 0 calls for non-matching event, got %d", called.Load())
	}
}

func TestDispatchMultipleWebhooks(t *testing.T) {
	srv1, called1 := countingServer(t, http.StatusOK)
	srv2, called2 := countingServer(t, http.StatusOK)

	d := NewDispatcher([]AlertConfig{
		{URL: srv1.URL, Format: "generic", Events: []string{EventControl}},
		{URL: srv2.URL, Format: "slack", Events: []string{EventControl, EventHard}},
	}, zerolog.Nop())

	d.Dispatch(AlertEvent{Event: EventControl, Reason: "control.self_harm"})
	d.Wait()

	if called1.Load()+called2.Load() != 2 {
		t.Errorf("expected 2 calls (both webhooks match), got %d", called1.Load()+called2.Load())
	}
}

func TestNilDispatcherDropsEvents(t *testing.T) {
	var d *Dispatcher
	d.Dispatch(AlertEvent{Event: EventHard})
	d.Wait()
	d.Close(context.Background())
}

func TestRetryOnServerError(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := attempts.Add(1)
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := Send(context.Background(), nil, AlertConfig{URL: srv.URL, Format: "generic"}, AlertEvent{Event: EventHard})
	if err != nil {
		t.Errorf("expected success after retries, got: %v", err)
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestNoRetryOnClientError(t *testing.T) {
	srv, attempts := countingServer(t, http.StatusBadRequest)

	err := Send(context.Background(), nil, AlertConfig{URL: srv.URL, Format: "generic"}, AlertEvent{Event: EventHard})
	if err == nil {
		t.Error("expected error on 400, got nil")
	}
	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt (no retry on 4xx), got %d", attempts.Load())
	}
}

func TestSendHeaders(t *testing.T) {
	var got http.Header
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := AlertConfig{URL: srv.URL, Headers: map[string]string{"Authorization": "Bearer x"}}
	event := AlertEvent{Event: EventControl, AuditID: "aud-9", ConfigHash: "cfg-1"}
	if err := Send(context.Background(), nil, cfg, event); err != nil {
		t.Fatal(err)
	}
	if got.Get("Authorization") != "Bearer x" || got.Get("Content-Type") != "application/json" {
		t.Errorf("unexpected headers: %v", got)
	}
	if got.Get(HeaderIdempotencyKey) != "aud-9" {
		t.Errorf("expected audit id as idempotency key, got %q", got.Get(HeaderIdempotencyKey))
	}
	if got.Get(HeaderEvent) != EventControl || got.Get(HeaderConfigHash) != "cfg-1" {
		t.Errorf("unexpected event headers: %v", got)
	}
	if !strings.Contains(string(body), `"audit_id":"aud-9"`) {
		t.Errorf("unexpected body %s", body)
	}
}

func TestRetriesKeepIdempotencyKey(t *testing.T) {
	var keys []string
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.Header.Get(HeaderIdempotencyKey))
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := Send(context.Background(), nil, AlertConfig{URL: srv.URL}, AlertEvent{Event: EventHard, AuditID: "aud-1"}); err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 || keys[0] != "aud-1" || keys[1] != "aud-1" {
		t.Errorf("expected the same key on every attempt, got %v", keys)
	}
}

func TestSendCancelledAbandonsRetries(t *testing.T) {
	old := retryBackoff
	retryBackoff = time.Minute
	defer func() { retryBackoff = old }()

	srv, attempts := countingServer(t, http.StatusServiceUnavailable)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	err := Send(ctx, nil, AlertConfig{URL: srv.URL}, AlertEvent{Event: EventHard})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("cancellation did not interrupt the backoff")
	}
	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt before cancellation, got %d", attempts.Load())
	}
}

func TestCloseAbandonsAfterDeadline(t *testing.T) {
	old := retryBackoff
	retryBackoff = time.Minute
	defer func() { retryBackoff = old }()

	srv, _ := countingServer(t, http.StatusInternalServerError)
	var buf bytes.Buffer
	d := NewDispatcher([]AlertConfig{{URL: srv.URL, Events: []string{EventHard}}}, zerolog.New(&buf))
	d.Dispatch(AlertEvent{Event: EventHard, AuditID: "aud-7"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	d.Close(ctx)
	if time.Since(start) > 5*time.Second {
		t.Fatal("close waited for the full retry backoff")
	}
	if !strings.Contains(buf.String(), "alert delivery failed") || !strings.Contains(buf.String(), "aud-7") {
		t.Errorf("expected failure logged through the dispatcher logger, got %s", buf.String())
	}
}

func TestDispatchAfterCloseDropped(t *testing.T) {
	srv, called := countingServer(t, http.StatusOK)
	var buf bytes.Buffer
	d := NewDispatcher([]AlertConfig{{URL: srv.URL, Events: []string{EventHard}}}, zerolog.New(&buf))
	d.Close(context.Background())

	d.Dispatch(AlertEvent{Event: EventHard, AuditID: "aud-late"})
	d.Wait()
	if called.Load() != 0 {
		t.Errorf("expected no delivery after close, got %d", called.Load())
	}
	if !strings.Contains(buf.String(), "dispatcher closed") {
		t.Errorf("expected drop to be logged, got %s", buf.String())
	}
}

func TestFormatGenericJSON(t *testing.T) {
	event := AlertEvent{
		Timestamp: "2025-01-15T14:00:00.000Z",
		Event:     EventHard,
		AuditID:   "aud-123",
		RequestID: "req-1",
		Reason:    "hard.weapons",
		Stakes:    "critical",
	}

	data, err := FormatPayload("generic", event)
	if err != nil {
		t.Fatal(err)
	}

	var parsed AlertEvent
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("generic format is not valid JSON: %v", err)
	}
	if parsed.AuditID != "aud-123" {
		t.Errorf("expected audit_id aud-123, got %s", parsed.AuditID)
	}
	if parsed.Event != EventHard {
		t.Errorf("expected event hard, got %s", parsed.Event)
	}
}

func TestFormatSlackBlockKit(t *testing.T) {
	data, err := FormatPayload("slack", AlertEvent{Event: EventControl, Reason: "control.self_harm", Stakes: "critical"})
	if err != nil {
		t.Fatal(err)
	}

	var parsed map[string]any
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("slack format is not valid JSON: %v", err)
	}

	blocks, ok := parsed["blocks"].([]any)
	if !ok || len(blocks) < 2 {
		t.Fatalf("expected at least 2 blocks, got %v", parsed["blocks"])
	}

	header, _ := blocks[0].(map[string]any)
	if header["type"] != "header" {
		t.Errorf("expected header block, got %s", header["type"])
	}

	section, _ := blocks[1].(map[string]any)
	fields, ok := section["fields"].([]any)
	if !ok || len(fields) < 4 {
		t.Errorf("expected at least 4 fields in section, got %v", fields)
	}
}

func TestFormatPagerDutySeverity(t *testing.T) {
	tests := []struct {
		stakes string
		want   string
	}{
		{"critical", "critical"},
		{"high", "error"},
		{"medium", "warning"},
		{"low", "info"},
	}
	for _, tt := range tests {
		data, err := FormatPayload("pagerduty", AlertEvent{Event: EventHard, Stakes: tt.stakes})
		if err != nil {
			t.Fatal(err)
		}
		var parsed map[string]any
		if err := json.Unmarshal(data, &parsed); err != nil {
			t.Fatalf("pagerduty format is not valid JSON: %v", err)
		}
		if parsed["event_action"] != "trigger" {
			t.Errorf("expected event_action trigger, got %v", parsed["event_action"])
		}
		payload, _ := parsed["payload"].(map[string]any)
		if payload["severity"] != tt.want {
			t.Errorf("stakes %s: expected severity %s, got %v", tt.stakes, tt.want, payload["severity"])
		}
		if payload["source"] != "stancewatch" {
			t.Errorf("expected source stancewatch, got %v", payload["source"])
		}
	}
}

func TestNewDispatcherNilOnEmpty(t *testing.T) {
	if NewDispatcher(nil, zerolog.Nop()) != nil {
		t.Error("expected nil dispatcher for empty configs")
	}
	if NewDispatcher([]AlertConfig{}, zerolog.Nop()) != nil {
		t.Error("expected nil dispatcher for zero-length configs")
	}
}

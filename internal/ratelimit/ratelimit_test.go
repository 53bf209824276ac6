package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ppiankov/stancewatch/internal/nonce"
)

// --- Config tests ---

func TestEnabled(t *testing.T) {
	tests := []struct {
		limit Limit
		want  bool
	}{
		{Limit{}, false},
		{Limit{MaxRequests: 10}, false},
		{Limit{Window: time.Minute}, false},
		{Limit{MaxRequests: 10, Window: time.Minute}, true},
	}
	for _, tt := range tests {
		if got := tt.limit.Enabled(); got != tt.want {
			t.Errorf("%+v: expected %v, got %v", tt.limit, tt.want, got)
		}
	}
}

// --- Check tests ---

func TestCheckWithinLimit(t *testing.T) {
	r := Check(3, Limit{MaxRequests: 3, Window: time.Minute})
	if r.Exceeded {
		t.Error("expected count equal to limit to pass")
	}
}

func TestCheckExceeded(t *testing.T) {
	r := Check(4, Limit{MaxRequests: 3, Window: time.Minute})
	if !r.Exceeded {
		t.Fatal("expected exceeded")
	}
	if r.Reason != "rate limit exceeded: 4/3 requests in 1m0s window" {
		t.Errorf("unexpected reason %q", r.Reason)
	}
}

func TestCheckDisabled(t *testing.T) {
	if Check(1000, Limit{}).Exceeded {
		t.Error("expected disabled limit never to trip")
	}
}

// --- Limiter tests ---

func TestLimiterMemory(t *testing.T) {
	l := New(nonce.NewMemoryStore(), Limit{MaxRequests: 2, Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		r, err := l.Allow(ctx, "u1")
		if err != nil || r.Exceeded {
			t.Fatalf("request %d: expected allowed, got %+v err=%v", i+1, r, err)
		}
	}
	r, err := l.Allow(ctx, "u1")
	if err != nil || !r.Exceeded {
		t.Fatalf("expected third request limited, got %+v err=%v", r, err)
	}

	other, _ := l.Allow(ctx, "u2")
	if other.Exceeded {
		t.Error("expected per-user counters")
	}
}

func TestLimiterRedisWindowReset(t *testing.T) {
	mr := miniredis.RunT(t)
	store := nonce.NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "")
	defer store.Close()

	l := New(store, Limit{MaxRequests: 1, Window: time.Minute})
	ctx := context.Background()

	l.Allow(ctx, "u1")
	if r, _ := l.Allow(ctx, "u1"); !r.Exceeded {
		t.Fatal("expected second request limited")
	}
	mr.FastForward(2 * time.Minute)
	if r, _ := l.Allow(ctx, "u1"); r.Exceeded {
		t.Error("expected counter reset after window")
	}
}

func TestLimiterDisabledSkipsStore(t *testing.T) {
	l := New(failingStore{}, Limit{})
	if _, err := l.Allow(context.Background(), "u1"); err != nil {
		t.Fatalf("expected disabled limiter not to touch store, got %v", err)
	}
	var nilLimiter *Limiter
	if _, err := nilLimiter.Allow(context.Background(), "u1"); err != nil {
		t.Fatal(err)
	}
}

func TestLimiterStoreError(t *testing.T) {
	l := New(failingStore{}, Limit{MaxRequests: 1, Window: time.Minute})
	if _, err := l.Allow(context.Background(), "u1"); err == nil {
		t.Fatal("expected store error")
	}
}

type failingStore struct{ nonce.Store }

func (failingStore) Incr(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("connection refused")
}

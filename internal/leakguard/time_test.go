package leakguard

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type fakeTimeSource struct {
	fail     map[string]bool
	wrong    map[string]bool
	calls    atomic.Int32
	baseTime time.Time
}

func (f *fakeTimeSource) ZoneTime(ctx context.Context, zone string) (ZoneTime, error) {
	f.calls.Add(1)
	if f.fail[zone] {
		return ZoneTime{}, errors.New("provider timeout")
	}
	if f.wrong[zone] {
		return ZoneTime{Zone: "UTC", Time: f.baseTime}, nil
	}
	return ZoneTime{Zone: zone, Time: f.baseTime, Source: "fake"}, nil
}

func TestTimeBatchAllSucceed(t *testing.T) {
	src := &fakeTimeSource{baseTime: time.Now()}
	got, err := TimeBatch(context.Background(), src, []string{"Europe/Berlin", "Asia/Tokyo"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Zone != "Europe/Berlin" || got[1].Zone != "Asia/Tokyo" {
		t.Errorf("unexpected results %+v", got)
	}
}

func TestTimeBatchOneZoneFailsWholeBatch(t *testing.T) {
	src := &fakeTimeSource{baseTime: time.Now(), fail: map[string]bool{"Asia/Tokyo": true}}
	got, err := TimeBatch(context.Background(), src, []string{"Europe/Berlin", "Asia/Tokyo"})
	if !errors.Is(err, ErrTimeUnavailable) {
		t.Fatalf("expected ErrTimeUnavailable, got %v", err)
	}
	if got != nil {
		t.Errorf("expected no partial results, got %+v", got)
	}
}

func TestTimeBatchWrongShapeFails(t *testing.T) {
	src := &fakeTimeSource{baseTime: time.Now(), wrong: map[string]bool{"America/New_York": true}}
	_, err := TimeBatch(context.Background(), src, []string{"America/New_York"})
	if !errors.Is(err, ErrTimeUnavailable) {
		t.Fatalf("expected ErrTimeUnavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "shape") {
		t.Errorf("expected shape error, got %v", err)
	}

	empty := &fakeTimeSource{}
	if _, err := TimeBatch(context.Background(), empty, []string{"UTC"}); !errors.Is(err, ErrTimeUnavailable) {
		t.Errorf("expected zero time to fail, got %v", err)
	}
}

func TestTimeBatchNoSourceOrZones(t *testing.T) {
	if _, err := TimeBatch(context.Background(), nil, []string{"UTC"}); !errors.Is(err, ErrTimeUnavailable) {
		t.Errorf("expected ErrTimeUnavailable without source, got %v", err)
	}
	src := &fakeTimeSource{baseTime: time.Now()}
	if _, err := TimeBatch(context.Background(), src, nil); !errors.Is(err, ErrTimeUnavailable) {
		t.Errorf("expected ErrTimeUnavailable without zones, got %v", err)
	}
}

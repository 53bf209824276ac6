package verify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/stancewatch/internal/leakguard"
	"github.com/ppiankov/stancewatch/internal/model"
)

// FetchOptions bounds one retrieval.
type FetchOptions struct {
	MaxSources int
	Timeout    time.Duration
}

// FetchResult is what a provider returned for one category.
type FetchResult struct {
	OK        bool           `json:"ok"`
	Data      map[string]any `json:"data,omitempty"`
	Err       string         `json:"error,omitempty"`
	Citations []string       `json:"citations,omitempty"`
	AsOf      time.Time      `json:"as_of,omitempty"`
}

// Fetcher retrieves live data. Implementations must honor ctx cancellation.
type Fetcher interface {
	Fetch(ctx context.Context, category model.DataCategory, query string, opts FetchOptions) (FetchResult, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, category model.DataCategory, query string, opts FetchOptions) (FetchResult, error)

func (f FetcherFunc) Fetch(ctx context.Context, category model.DataCategory, query string, opts FetchOptions) (FetchResult, error) {
	return f(ctx, category, query, opts)
}

// timeSource resolves zones through a Fetcher. The provider must answer
// with the requested zone and an RFC 3339 datetime.
type timeSource struct {
	fetcher Fetcher
	opts    FetchOptions
	now     func() time.Time
	maxAge  time.Duration
}

func (s timeSource) ZoneTime(ctx context.Context, zone string) (leakguard.ZoneTime, error) {
	res, err := s.fetcher.Fetch(ctx, model.CategoryTime, zone, s.opts)
	if err != nil {
		return leakguard.ZoneTime{}, err
	}
	if !res.OK {
		return leakguard.ZoneTime{}, fmt.Errorf("provider error: %s", res.Err)
	}

	got := stringField(res.Data, "zone", "timezone")
	raw := stringField(res.Data, "datetime", "time")
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil || got == "" {
		return leakguard.ZoneTime{}, fmt.Errorf("unexpected response shape")
	}
	if s.maxAge > 0 && !res.AsOf.IsZero() && s.now().Sub(res.AsOf) > s.maxAge {
		return leakguard.ZoneTime{}, fmt.Errorf("stale time data")
	}

	source := ""
	if len(res.Citations) > 0 {
		source = res.Citations[0]
	}
	return leakguard.ZoneTime{Zone: got, Time: t, Source: source}, nil
}

func stringField(data map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := data[k].(string); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

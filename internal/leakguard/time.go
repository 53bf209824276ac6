package leakguard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrTimeUnavailable means live time data could not be obtained for every
// requested zone. It is terminal: time has no qualitative substitute.
var ErrTimeUnavailable = errors.New("live time data unavailable")

// TimeRefusal is the terminal response for a failed time query.
const TimeRefusal = "I can't answer this time question reliably right now because live time data is unavailable, " +
	"and I won't guess or answer for only some of the places you asked about. " +
	"Please check time.gov, timeanddate.com or your device clock."

// ZoneTime is the current time in one requested zone.
type ZoneTime struct {
	Zone   string    `json:"zone"`
	Time   time.Time `json:"time"`
	Source string    `json:"source,omitempty"`
}

// TimeSource looks up the current time for one zone.
type TimeSource interface {
	ZoneTime(ctx context.Context, zone string) (ZoneTime, error)
}

// TimeBatch resolves every zone concurrently. Any failure, including a
// response for the wrong zone or an empty time, fails the whole batch with
// ErrTimeUnavailable and no partial results are returned.
func TimeBatch(ctx context.Context, src TimeSource, zones []string) ([]ZoneTime, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: no time source configured", ErrTimeUnavailable)
	}
	if len(zones) == 0 {
		return nil, fmt.Errorf("%w: no zones requested", ErrTimeUnavailable)
	}

	out := make([]ZoneTime, len(zones))
	g, gctx := errgroup.WithContext(ctx)
	for i, zone := range zones {
		g.Go(func() error {
			zt, err := src.ZoneTime(gctx, zone)
			if err != nil {
				return fmt.Errorf("zone %s: %w", zone, err)
			}
			if !strings.EqualFold(zt.Zone, zone) || zt.Time.IsZero() {
				return fmt.Errorf("zone %s: unexpected response shape", zone)
			}
			out[i] = zt
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTimeUnavailable, err)
	}
	return out, nil
}

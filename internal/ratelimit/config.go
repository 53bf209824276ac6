// Package ratelimit caps how many requests one user may submit within a
// window. Counters live in the shared nonce store.
package ratelimit

import "time"

// Limit is the request cap for one user. Zero values mean no limit.
type Limit struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

// Enabled returns true if both the cap and the window are set.
func (l Limit) Enabled() bool {
	return l.MaxRequests > 0 && l.Window > 0
}

package verify

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/stancewatch/internal/leakguard"
	"github.com/ppiankov/stancewatch/internal/model"
)

const (
	DefaultMaxSources = 5
	DefaultTimeout    = 10 * time.Second
)

// Failure reasons reported on non-continue outcomes.
const (
	ReasonUnavailable     = "verification_unavailable"
	ReasonPartial         = "verification_partial"
	ReasonFetchError      = "verification_error"
	ReasonCancelled       = "verification_cancelled"
	ReasonTimeUnavailable = "time_unavailable"
	ReasonStale           = "verification_stale"
)

// StaleWarning accompanies degraded plans that could not reach live data.
const StaleWarning = "Live data could not be checked. Any figures may be out of date; confirm with a current source."

// OutdatedWarning accompanies degraded plans whose live data is older than
// the category's freshness window.
const OutdatedWarning = "Some of the live data is older than usual for this kind of information; exact figures are withheld."

// DefaultFreshness is how old verified data may be per category before
// numeric precision is withdrawn.
func DefaultFreshness() map[model.DataCategory]time.Duration {
	return map[model.DataCategory]time.Duration{
		model.CategoryMarket:  15 * time.Minute,
		model.CategoryCrypto:  5 * time.Minute,
		model.CategoryFX:      time.Hour,
		model.CategoryWeather: 3 * time.Hour,
		model.CategoryTime:    time.Minute,
		model.CategoryGeneral: 24 * time.Hour,
	}
}

// MediatorConfig tunes retrieval.
type MediatorConfig struct {
	MaxSources int
	Timeout    time.Duration
	Freshness  map[model.DataCategory]time.Duration
}

// Evidence is the verified data for one category.
type Evidence struct {
	Category  model.DataCategory `json:"category"`
	Data      map[string]any     `json:"data,omitempty"`
	Citations []string           `json:"citations,omitempty"`
	AsOf      time.Time          `json:"as_of,omitempty"`
}

// Outcome is the Verification Mediator result for one request.
type Outcome struct {
	Plan          model.VerificationPlan
	Action        model.Action
	Options       []model.UserOption
	FailureReason string
	// Response is set when the outcome is terminal and already has its
	// user-facing text.
	Response string
	Evidence []Evidence
	Times    []leakguard.ZoneTime
}

// Mediator turns a verification need into a plan. A nil fetcher means
// live retrieval is not available.
type Mediator struct {
	fetcher Fetcher
	cfg     MediatorConfig
	logger  zerolog.Logger
	now     func() time.Time
}

// NewMediator creates a Mediator, filling unset config with defaults.
func NewMediator(fetcher Fetcher, cfg MediatorConfig, logger zerolog.Logger) *Mediator {
	if cfg.MaxSources <= 0 {
		cfg.MaxSources = DefaultMaxSources
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	fresh := DefaultFreshness()
	for k, v := range cfg.Freshness {
		fresh[k] = v
	}
	cfg.Freshness = fresh
	return &Mediator{
		fetcher: fetcher,
		cfg:     cfg,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// HasFetcher reports whether live retrieval is configured.
func (m *Mediator) HasFetcher() bool {
	return m.fetcher != nil
}

// Resolve derives the verification plan for need. Retrieval failures and
// panics degrade; only time queries and unavailable high-stakes retrieval
// stop. A time query mixed with other categories resolves both: the time
// batch stays all-or-nothing and the remaining categories go through the
// regular fetch.
func (m *Mediator) Resolve(ctx context.Context, need model.VerificationNeed, message string) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().Str("cause", fmt.Sprint(r)).Msg("verification panicked, degrading")
			out = degraded(ReasonFetchError)
		}
	}()

	if !need.Required {
		return Outcome{Plan: model.SkippedPlan(), Action: model.ActionContinue}
	}

	if !need.HasCategory(model.CategoryTime) {
		return m.resolveData(ctx, need, message)
	}

	timed := m.resolveTime(ctx, need)
	rest := withoutTime(need.Categories)
	if timed.Action == model.ActionStop || len(rest) == 0 {
		return timed
	}

	need.Categories = rest
	out = m.resolveData(ctx, need, message)
	out.Times = timed.Times
	out.Plan.Sources = dedupe(append(out.Plan.Sources, timed.Plan.Sources...))
	return out
}

func (m *Mediator) resolveData(ctx context.Context, need model.VerificationNeed, message string) Outcome {
	if m.fetcher == nil {
		if need.Stakes.AtLeast(model.StakesHigh) {
			return Outcome{
				Plan: model.VerificationPlan{
					Status:     model.StatusBlocked,
					Confidence: model.ConfidenceNone,
				},
				Action:        model.ActionStop,
				Options:       model.BlockedOptions(),
				FailureReason: ReasonUnavailable,
			}
		}
		return degraded(ReasonUnavailable)
	}
	return m.fetchAll(ctx, need, message)
}

func withoutTime(categories []model.DataCategory) []model.DataCategory {
	var out []model.DataCategory
	for _, c := range categories {
		if c != model.CategoryTime {
			out = append(out, c)
		}
	}
	return out
}

func degraded(reason string) Outcome {
	return Outcome{
		Plan: model.VerificationPlan{
			Status:           model.StatusDegraded,
			Confidence:       model.ConfidenceLow,
			FreshnessWarning: StaleWarning,
		},
		Action:        model.ActionDegrade,
		FailureReason: reason,
	}
}

// resolveTime is all-or-nothing: any unavailable, stale or malformed zone
// refuses the whole query.
func (m *Mediator) resolveTime(ctx context.Context, need model.VerificationNeed) Outcome {
	zones := need.Zones
	if len(zones) == 0 {
		zones = []string{"UTC"}
	}

	var src leakguard.TimeSource
	if m.fetcher != nil {
		src = timeSource{
			fetcher: m.fetcher,
			opts:    FetchOptions{MaxSources: m.cfg.MaxSources, Timeout: m.cfg.Timeout},
			now:     m.now,
			maxAge:  m.cfg.Freshness[model.CategoryTime],
		}
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	times, err := leakguard.TimeBatch(ctx, src, zones)
	if err != nil {
		m.logger.Warn().Err(err).Strs("zones", zones).Msg("time query refused")
		return Outcome{
			Plan: model.VerificationPlan{
				Status:     model.StatusBlocked,
				Confidence: model.ConfidenceNone,
			},
			Action:        model.ActionStop,
			FailureReason: ReasonTimeUnavailable,
			Response:      leakguard.TimeRefusal,
		}
	}

	var sources []string
	for _, t := range times {
		if t.Source != "" {
			sources = append(sources, t.Source)
		}
	}
	return Outcome{
		Plan: model.VerificationPlan{
			Status:                       model.StatusVerified,
			Confidence:                   model.ConfidenceHigh,
			NumericPrecisionAllowed:      true,
			ActionRecommendationsAllowed: true,
			Sources:                      dedupe(sources),
		},
		Action: model.ActionContinue,
		Times:  times,
	}
}

// fetchAll queries every detected category concurrently under one timeout,
// each with its own narrowed query. Partial results from a cancelled request
// are discarded.
func (m *Mediator) fetchAll(ctx context.Context, need model.VerificationNeed, message string) Outcome {
	categories := need.Categories
	if len(categories) == 0 {
		categories = []model.DataCategory{model.CategoryGeneral}
	}

	fctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	opts := FetchOptions{MaxSources: m.cfg.MaxSources, Timeout: m.cfg.Timeout}
	results := make([]FetchResult, len(categories))
	errs := make([]error, len(categories))

	var g errgroup.Group
	g.SetLimit(m.cfg.MaxSources)
	for i, c := range categories {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("fetcher panic: %v", r)
				}
			}()
			results[i], errs[i] = m.fetcher.Fetch(fctx, c, QueryFor(c, message), opts)
			return nil
		})
	}
	g.Wait()

	if ctx.Err() != nil {
		m.logger.Info().Msg("request cancelled during verification, discarding results")
		return degraded(ReasonCancelled)
	}

	var evidence []Evidence
	var sources []string
	var failures []string
	stale := false
	for i, c := range categories {
		res, err := results[i], errs[i]
		switch {
		case err != nil:
			failures = append(failures, string(c)+": "+err.Error())
			continue
		case !res.OK:
			failures = append(failures, string(c)+": "+res.Err)
			continue
		}
		evidence = append(evidence, Evidence{Category: c, Data: res.Data, Citations: res.Citations, AsOf: res.AsOf})
		sources = append(sources, res.Citations...)
		if m.isStale(c, res.AsOf) {
			stale = true
		}
	}

	if len(failures) > 0 {
		m.logger.Warn().
			Strs("failures", failures).
			Int("verified", len(evidence)).
			Int("requested", len(categories)).
			Msg("verification incomplete")
		reason := ReasonPartial
		if len(evidence) == 0 {
			reason = ReasonFetchError
		}
		out := degraded(reason)
		out.Plan.Sources = dedupe(sources)
		out.Evidence = evidence
		return out
	}

	if stale {
		m.logger.Info().Int("verified", len(evidence)).Msg("verified data is outdated, withholding precision")
		out := degraded(ReasonStale)
		out.Plan.Confidence = model.ConfidenceMedium
		out.Plan.FreshnessWarning = OutdatedWarning
		out.Plan.Sources = dedupe(sources)
		out.Evidence = evidence
		return out
	}

	return Outcome{
		Plan: model.VerificationPlan{
			Status:                       model.StatusVerified,
			Confidence:                   model.ConfidenceHigh,
			NumericPrecisionAllowed:      true,
			ActionRecommendationsAllowed: true,
			Sources:                      dedupe(sources),
		},
		Action:   model.ActionContinue,
		Evidence: evidence,
	}
}

func (m *Mediator) isStale(c model.DataCategory, asOf time.Time) bool {
	window, ok := m.cfg.Freshness[c]
	if !ok || window <= 0 || asOf.IsZero() {
		return false
	}
	return m.now().Sub(asOf) > window
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

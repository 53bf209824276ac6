// Package verify decides whether a message makes claims that need live
// data, and turns retrieval results into a verification plan.
package verify

import (
	"regexp"
	"strings"

	"github.com/ppiankov/stancewatch/internal/model"
)

// Claim families. Health, legal and financial claims always verify at high
// stakes regardless of the trigger's own stakes.
const (
	FamilyTemporal  = "temporal"
	FamilyHealth    = "health"
	FamilyLegal     = "legal"
	FamilyFinancial = "financial"
	FamilyNumeric   = "numeric"
	FamilyQuote     = "quote"
	FamilyWeather   = "weather"
)

// Trigger is one row of the verification catalog.
type Trigger struct {
	ID      string
	Family  string
	Stakes  model.Stakes
	Pattern *regexp.Regexp
}

// forcedHigh lists the families whose stakes are forced to high.
var forcedHigh = map[string]bool{
	FamilyHealth:    true,
	FamilyLegal:     true,
	FamilyFinancial: true,
}

// DefaultTriggers is the built-in verification catalog. Quote triggers are
// case-sensitive because they key on capitalized names.
var DefaultTriggers = []Trigger{
	{"temporal.current", FamilyTemporal, model.StakesMedium,
		regexp.MustCompile(`(?i)\b(right now|currently|current (price|rate|value|time|weather|temperature|events|news|status|level)s?|latest|at the moment|as of (today|now)|today's|this (morning|week|month|year)|live|real[- ]time|up[- ]to[- ]date|so far this)\b`)},
	{"temporal.time_query", FamilyTemporal, model.StakesMedium,
		regexp.MustCompile(`(?i)\b(what time is it|what's the time|what is the time|current time|local time|time (is it )?(in|for)|time zone|timezone)\b`)},
	{"health.clinical", FamilyHealth, model.StakesMedium,
		regexp.MustCompile(`(?i)\b(dosage|dose|doses|mg|side effects?|drug interactions?|contraindicat\w*|symptoms? of|diagnos\w*|prescri\w*|overdose|recommended (daily )?intake)\b`)},
	{"legal.rule", FamilyLegal, model.StakesMedium,
		regexp.MustCompile(`(?i)\b(is it (legal|illegal)|legally|statute( of limitations)?|the law (says|requires)|court ruled|ruling|regulations?|deadline to (file|appeal)|minimum wage)\b`)},
	{"financial.market", FamilyFinancial, model.StakesMedium,
		regexp.MustCompile(`(?i)\b(stocks?|share price|shares|trading at|market cap|ticker|nasdaq|dow jones|s&p|etf|dividend|bond yields?|interest rates?|mortgage rates?|inflation|tax (rate|bracket)s?)\b`)},
	{"financial.crypto", FamilyFinancial, model.StakesMedium,
		regexp.MustCompile(`(?i)\b(bitcoin|btc|ethereum|eth|crypto(currency)?|solana|dogecoin)\b`)},
	{"financial.fx", FamilyFinancial, model.StakesMedium,
		regexp.MustCompile(`(?i)\b(exchange rate|fx rate|convert \w+ to \w+|[a-z]{3} to [a-z]{3} rate)\b`)},
	{"weather.conditions", FamilyWeather, model.StakesLow,
		regexp.MustCompile(`(?i)\b(weather|forecast|temperature|raining|snowing|humidity|heat ?wave|storm warning)\b`)},
	{"numeric.figure", FamilyNumeric, model.StakesMedium,
		regexp.MustCompile(`(?i)[$€£¥]\s?\d|\d+(\.\d+)?\s?(%|percent\b)|\b\d+(\.\d+)?\s?(dollars|euros|pounds)\b`)},
	{"quote.attributed", FamilyQuote, model.StakesMedium,
		regexp.MustCompile(`\b[A-Z][a-z]+ [A-Z][a-z]+ (said|says|stated|claimed|tweeted|wrote)\b|\b[Dd]id [A-Z][a-z]+( [A-Z][a-z]+)? (really )?(say|said|claim|tweet|write)\b|\b[Aa]ccording to [A-Z][a-z]+( [A-Z][a-z]+)?\b|\bquote (from|by) [A-Z][a-z]+`)},
}

// skipIntents never need verification: the user supplied the content.
var skipIntents = []string{model.IntentRewrite, model.IntentSummarize, model.IntentTranslate}

var (
	fencedCodeRe = regexp.MustCompile("(?s)```.*?(```|$)")
	inlineCodeRe = regexp.MustCompile("`[^`\n]*`")
)

// Classifier decides whether a message needs live-data verification.
// It is safe for concurrent use.
type Classifier struct {
	triggers []Trigger
}

// NewClassifier creates a Classifier. Nil triggers use DefaultTriggers.
func NewClassifier(triggers []Trigger) *Classifier {
	if triggers == nil {
		triggers = DefaultTriggers
	}
	return &Classifier{triggers: triggers}
}

// Classify returns the verification need. Code spans are ignored, and
// rewrite, summarize, translate and hypothetical intents are skipped. A
// panic degrades to a required need at medium stakes.
func (c *Classifier) Classify(message string, intent *model.Intent) (need model.VerificationNeed) {
	defer func() {
		if r := recover(); r != nil {
			need = model.VerificationNeed{
				Required:   true,
				Reasons:    []string{"classifier_error"},
				Stakes:     model.StakesMedium,
				Categories: []model.DataCategory{model.CategoryGeneral},
			}
		}
	}()

	none := model.VerificationNeed{Stakes: model.StakesLow}
	if intent.TypeIs(skipIntents...) || (intent != nil && intent.Hypothetical) {
		return none
	}

	text := StripCode(message)
	if strings.TrimSpace(text) == "" {
		return none
	}

	stakes := model.Stakes("")
	var reasons []string
	for _, t := range c.triggers {
		if !t.Pattern.MatchString(text) {
			continue
		}
		reasons = append(reasons, t.ID)
		s := t.Stakes
		if forcedHigh[t.Family] {
			s = model.StakesHigh
		}
		stakes = model.MaxStakes(stakes, s)
	}
	if len(reasons) == 0 {
		return none
	}

	need = model.VerificationNeed{
		Required:   true,
		Reasons:    reasons,
		Stakes:     stakes,
		Categories: DetectCategories(text),
	}
	if need.HasCategory(model.CategoryTime) {
		need.Zones = ExtractZones(text)
	}
	return need
}

// StripCode removes fenced code blocks and inline code spans.
func StripCode(message string) string {
	out := fencedCodeRe.ReplaceAllString(message, " ")
	return inlineCodeRe.ReplaceAllString(out, " ")
}

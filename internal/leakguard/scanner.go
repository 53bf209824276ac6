// Package leakguard keeps unverified numeric data out of user-facing text.
package leakguard

import (
	"regexp"
	"sort"
)

// PatternType identifies the kind of numeric figure detected.
type PatternType string

const (
	PatternCurrency     PatternType = "CURRENCY"
	PatternPercent      PatternType = "PERCENT"
	PatternLargeNumber  PatternType = "LARGE_NUMBER"
	PatternDecimal      PatternType = "DECIMAL"
	PatternClock        PatternType = "CLOCK"
	PatternTemperature  PatternType = "TEMPERATURE"
	PatternMagnitude    PatternType = "MAGNITUDE"
	PatternPriceContext PatternType = "PRICE_CONTEXT"
)

// Match is a single numeric figure found in text.
type Match struct {
	Type  PatternType `json:"type"`
	Value string      `json:"value"`
	Start int         `json:"start"`
	End   int         `json:"end"`
}

// Detection is deliberately conservative: a false positive costs a
// regeneration, a false negative leaks an unverified figure.
var (
	// Currency symbol or code before or after an amount.
	currencyRe = regexp.MustCompile(`(?i)(?:[$€£¥₹₿]|\b(?:usd|eur|gbp|jpy|chf|cad|aud|btc|eth)\s?)\s?\d[\d,]*(?:\.\d+)?\s?[kmb]?\b|\b\d[\d,]*(?:\.\d+)?\s?(?:[kmb]\s)?(?:usd|eur|gbp|jpy|chf|cad|aud|btc|eth|dollars?|euros?|pounds?|yen|cents?|bucks)\b`)

	// Percentages and basis points.
	percentRe = regexp.MustCompile(`(?i)\d+(?:[.,]\d+)?\s?(?:%|percent\b|per cent\b|pct\b|bps\b|basis points\b)`)

	// Four or more consecutive digits, or thousands-separated groups.
	largeNumberRe = regexp.MustCompile(`\b\d{4,}\b|\b\d{1,3}(?:[,\s]\d{3})+\b`)

	// Price-like decimals.
	decimalRe = regexp.MustCompile(`\b\d+\.\d+\b`)

	// Clock readings: 14:05, 9:30 pm, 7am.
	clockRe = regexp.MustCompile(`(?i)\b(?:[01]?\d|2[0-3]):[0-5]\d(?::[0-5]\d)?(?:\s?[ap]\.?m\.?)?|\b(?:1[0-2]|0?[1-9])\s?[ap]\.?m\b\.?`)

	// Temperatures: 72°F, 21 degrees.
	temperatureRe = regexp.MustCompile(`(?i)-?\d+(?:\.\d+)?\s?(?:°\s?[cf]?|degrees?\b|deg\b)`)

	// Magnitude shorthand without a currency: 65k, 2.5m, 3 billion.
	magnitudeRe = regexp.MustCompile(`(?i)\b\d+(?:[.,]\d+)?\s?(?:[kmb]|bn|million|billion|trillion)\b`)

	// Bare numbers in price position: "trading at 187", "near 65". Only the
	// number is reported.
	priceContextRe = regexp.MustCompile(`(?i)\b(?:at|near|around|is|to)\s+(\d{2,})\b`)
)

var detectors = []struct {
	typ PatternType
	re  *regexp.Regexp
}{
	{PatternCurrency, currencyRe},
	{PatternPercent, percentRe},
	{PatternTemperature, temperatureRe},
	{PatternClock, clockRe},
	{PatternMagnitude, magnitudeRe},
	{PatternLargeNumber, largeNumberRe},
	{PatternDecimal, decimalRe},
	{PatternPriceContext, priceContextRe},
}

// Scan returns all numeric figures in text sorted by position. Overlapping
// matches keep the earliest detector in table order. A detector with a
// capture group reports only the group.
func Scan(text string) []Match {
	var matches []Match
	covered := func(start, end int) bool {
		for _, m := range matches {
			if start < m.End && end > m.Start {
				return true
			}
		}
		return false
	}

	for _, d := range detectors {
		for _, loc := range d.re.FindAllStringSubmatchIndex(text, -1) {
			start, end := loc[0], loc[1]
			if len(loc) >= 4 && loc[2] >= 0 {
				start, end = loc[2], loc[3]
			}
			if covered(start, end) {
				continue
			}
			matches = append(matches, Match{Type: d.typ, Value: text[start:end], Start: start, End: end})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Start < matches[j].Start
	})
	return matches
}

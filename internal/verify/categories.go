package verify

import (
	"regexp"
	"strings"

	"github.com/ppiankov/stancewatch/internal/model"
)

var categoryPatterns = []struct {
	category model.DataCategory
	re       *regexp.Regexp
}{
	{model.CategoryTime, regexp.MustCompile(`(?i)\b(what time is it|what's the time|what is the time|current time|local time|time (is it )?(in|for)|time zone|timezone)\b`)},
	{model.CategoryCrypto, regexp.MustCompile(`(?i)\b(bitcoin|btc|ethereum|eth|crypto(currency)?|solana|dogecoin|stablecoin)\b`)},
	{model.CategoryFX, regexp.MustCompile(`(?i)\b(exchange rate|fx rate|convert \w+ to \w+|[a-z]{3} to [a-z]{3} rate|forex)\b`)},
	{model.CategoryMarket, regexp.MustCompile(`(?i:\b(stocks?|share price|shares|trading at|market cap|ticker|nasdaq|dow jones|s&p|etf|dividend|bond yields?|index fund)\b)|\b[A-Z]{2,5}\b.{0,20}\b(?i:trading|stock|shares|price)\b`)},
	{model.CategoryWeather, regexp.MustCompile(`(?i)\b(weather|forecast|temperature|raining|snowing|humidity|heat ?wave|storm warning)\b`)},
}

// DetectCategories maps a message to the live-data categories it depends
// on, in table order. Messages matching none are general.
func DetectCategories(message string) []model.DataCategory {
	var out []model.DataCategory
	for _, p := range categoryPatterns {
		if p.re.MatchString(message) {
			out = append(out, p.category)
		}
	}
	if len(out) == 0 {
		out = append(out, model.CategoryGeneral)
	}
	return out
}

// knownZones maps common place names and abbreviations to IANA zones.
var knownZones = map[string]string{
	"utc":           "UTC",
	"gmt":           "Etc/GMT",
	"london":        "Europe/London",
	"paris":         "Europe/Paris",
	"berlin":        "Europe/Berlin",
	"madrid":        "Europe/Madrid",
	"rome":          "Europe/Rome",
	"amsterdam":     "Europe/Amsterdam",
	"moscow":        "Europe/Moscow",
	"dubai":         "Asia/Dubai",
	"mumbai":        "Asia/Kolkata",
	"delhi":         "Asia/Kolkata",
	"india":         "Asia/Kolkata",
	"singapore":     "Asia/Singapore",
	"hong kong":     "Asia/Hong_Kong",
	"shanghai":      "Asia/Shanghai",
	"beijing":       "Asia/Shanghai",
	"tokyo":         "Asia/Tokyo",
	"japan":         "Asia/Tokyo",
	"seoul":         "Asia/Seoul",
	"sydney":        "Australia/Sydney",
	"auckland":      "Pacific/Auckland",
	"new york":      "America/New_York",
	"nyc":           "America/New_York",
	"est":           "America/New_York",
	"chicago":       "America/Chicago",
	"cst":           "America/Chicago",
	"denver":        "America/Denver",
	"los angeles":   "America/Los_Angeles",
	"la":            "America/Los_Angeles",
	"pst":           "America/Los_Angeles",
	"san francisco": "America/Los_Angeles",
	"toronto":       "America/Toronto",
	"mexico city":   "America/Mexico_City",
	"sao paulo":     "America/Sao_Paulo",
	"cet":           "Europe/Paris",
	"jst":           "Asia/Tokyo",
}

var (
	ianaZoneRe  = regexp.MustCompile(`\b[A-Z][a-z]+/[A-Z][A-Za-z_]+\b`)
	zoneTailRe  = regexp.MustCompile(`(?i)\b(?:in|for|at)\s+(.+)$`)
	zoneSplitRe = regexp.MustCompile(`(?i)\s*(?:,|\band\b|&|\bvs\.?\b|\bor\b)\s*`)
	placeRe     = regexp.MustCompile(`^(?:the\s+)?([A-Z][A-Za-z]*(?:\s+[A-Z][A-Za-z]*)*)`)
)

// ExtractZones returns the time zones named by a time query, resolved to
// IANA names where known and deduplicated. Zones written as IANA names come
// first, then places in order of appearance. Unknown capitalized places are
// returned as written so a provider can try them.
func ExtractZones(message string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(z string) {
		if z != "" && !seen[z] {
			seen[z] = true
			out = append(out, z)
		}
	}

	for _, z := range ianaZoneRe.FindAllString(message, -1) {
		add(z)
	}

	for _, sentence := range strings.FieldsFunc(message, func(r rune) bool { return r == '?' || r == '.' || r == '!' || r == '\n' }) {
		m := zoneTailRe.FindStringSubmatch(strings.TrimSpace(sentence))
		if m == nil {
			continue
		}
		for _, part := range zoneSplitRe.Split(m[1], -1) {
			part = strings.TrimSpace(part)
			if part == "" || ianaZoneRe.MatchString(part) {
				continue
			}
			add(resolvePlace(part))
		}
	}
	return out
}

// resolvePlace looks up the longest known place at the start of part,
// falling back to its leading capitalized words.
func resolvePlace(part string) string {
	words := strings.Fields(strings.ToLower(part))
	if len(words) > 0 && words[0] == "the" {
		words = words[1:]
	}
	for n := min(len(words), 3); n > 0; n-- {
		if z, ok := knownZones[strings.Join(words[:n], " ")]; ok {
			return z
		}
	}
	if m := placeRe.FindStringSubmatch(part); m != nil {
		return m[1]
	}
	return ""
}

var (
	tickerRe       = regexp.MustCompile(`\$?\b[A-Z]{2,5}\b`)
	currencyCodeRe = regexp.MustCompile(`(?i)\b[a-z]{3}\b`)
	wordRe         = regexp.MustCompile(`[a-z]+`)
)

// notTickers are all-caps tokens that commonly appear beside market words.
var notTickers = map[string]bool{
	"ETF": true, "CEO": true, "IPO": true, "NYSE": true, "USA": true, "NYC": true,
	"UTC": true, "GMT": true, "EST": true, "PST": true, "CST": true, "JST": true, "CET": true,
	"USD": true, "EUR": true, "GBP": true, "JPY": true, "AM": true, "PM": true, "OK": true,
	"US": true, "UK": true, "EU": true,
}

var knownTickers = map[string]string{
	"apple":     "AAPL",
	"microsoft": "MSFT",
	"amazon":    "AMZN",
	"google":    "GOOGL",
	"alphabet":  "GOOGL",
	"meta":      "META",
	"nvidia":    "NVDA",
	"tesla":     "TSLA",
	"netflix":   "NFLX",
	"toyota":    "TM",
	"sony":      "SONY",
	"samsung":   "005930.KS",
}

var knownCoins = map[string]string{
	"bitcoin":  "BTC",
	"btc":      "BTC",
	"ethereum": "ETH",
	"eth":      "ETH",
	"solana":   "SOL",
	"dogecoin": "DOGE",
}

var knownCurrencies = map[string]bool{
	"usd": true, "eur": true, "gbp": true, "jpy": true, "chf": true, "cad": true,
	"aud": true, "nzd": true, "cny": true, "inr": true, "mxn": true, "brl": true,
	"krw": true, "sgd": true, "hkd": true, "sek": true, "nok": true,
}

// QueryFor narrows a message to what a provider for category needs: a
// ticker, a coin symbol, a currency pair or a place. When nothing specific
// is found the category name is used, so the raw message never reaches a
// data provider. General queries keep the trimmed message.
func QueryFor(category model.DataCategory, message string) string {
	var q string
	switch category {
	case model.CategoryMarket:
		q = tickerOf(message)
	case model.CategoryCrypto:
		q = firstKnown(message, knownCoins)
	case model.CategoryFX:
		q = currencyPair(message)
	case model.CategoryWeather:
		q = placeOf(message)
	case model.CategoryTime:
		if zones := ExtractZones(message); len(zones) > 0 {
			q = zones[0]
		}
	case model.CategoryGeneral:
		return strings.TrimSpace(message)
	}
	if q == "" {
		return string(category)
	}
	return q
}

func tickerOf(message string) string {
	for _, tok := range tickerRe.FindAllString(message, -1) {
		tok = strings.TrimPrefix(tok, "$")
		if !notTickers[tok] {
			return tok
		}
	}
	return firstKnown(message, knownTickers)
}

func firstKnown(message string, table map[string]string) string {
	for _, w := range wordRe.FindAllString(strings.ToLower(message), -1) {
		if v, ok := table[w]; ok {
			return v
		}
	}
	return ""
}

// currencyPair returns "BASE/QUOTE" for the first two currency codes in
// message, or the single code when only one is named.
func currencyPair(message string) string {
	var codes []string
	for _, tok := range currencyCodeRe.FindAllString(message, -1) {
		c := strings.ToLower(tok)
		if knownCurrencies[c] && (len(codes) == 0 || codes[0] != strings.ToUpper(c)) {
			codes = append(codes, strings.ToUpper(c))
		}
		if len(codes) == 2 {
			break
		}
	}
	return strings.Join(codes, "/")
}

// placeOf returns the place a weather question names, as written.
func placeOf(message string) string {
	for _, sentence := range strings.FieldsFunc(message, func(r rune) bool { return r == '?' || r == '.' || r == '!' || r == '\n' }) {
		m := zoneTailRe.FindStringSubmatch(strings.TrimSpace(sentence))
		if m == nil {
			continue
		}
		part := strings.TrimSpace(zoneSplitRe.Split(m[1], -1)[0])
		if p := placeRe.FindStringSubmatch(part); p != nil {
			return p[1]
		}
	}
	return ""
}

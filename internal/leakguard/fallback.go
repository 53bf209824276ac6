package leakguard

import "github.com/ppiankov/stancewatch/internal/model"

// Safe fallback templates. None of them may contain a digit.
var fallbacks = map[model.DataCategory]string{
	model.CategoryMarket: "I can't confirm a live price right now, so I won't quote one. " +
		"For current quotes check your brokerage platform, the exchange's own website, Reuters or Bloomberg.",
	model.CategoryCrypto: "I can't confirm live crypto prices right now, so I won't quote one. " +
		"For current prices check CoinGecko, CoinMarketCap or the exchange you trade on.",
	model.CategoryFX: "I can't confirm a live exchange rate right now, so I won't quote one. " +
		"For current rates check the European Central Bank reference rates, XE or your bank.",
	model.CategoryWeather: "I can't confirm current weather conditions right now, so I won't give readings. " +
		"For the latest forecast check your national weather service, such as weather.gov or the Met Office.",
	model.CategoryTime: "I can't confirm the current time right now, so I won't guess. " +
		"For the exact time check time.gov, timeanddate.com or your device clock.",
	model.CategoryGeneral: "I can't verify the figures for this right now, so I've left specific numbers out. " +
		"Please confirm them with an authoritative primary source before relying on them.",
}

// Fallback returns the safe template for a data category. Unknown
// categories get the general template.
func Fallback(c model.DataCategory) string {
	if t, ok := fallbacks[c]; ok {
		return t
	}
	return fallbacks[model.CategoryGeneral]
}

// FallbackFor picks the template for the first detected category.
func FallbackFor(categories []model.DataCategory) string {
	for _, c := range categories {
		if c == model.CategoryGeneral {
			continue
		}
		if _, ok := fallbacks[c]; ok {
			return fallbacks[c]
		}
	}
	return fallbacks[model.CategoryGeneral]
}

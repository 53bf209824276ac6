package leakguard

import (
	"regexp"
	"strings"

	"github.com/ppiankov/stancewatch/internal/model"
)

// Verdict is the outcome of validating a draft response.
type Verdict struct {
	Safe    bool    `json:"safe"`
	Matches []Match `json:"matches,omitempty"`
}

// Validate reports whether text contains no numeric figures.
func Validate(text string) Verdict {
	m := Scan(text)
	return Verdict{Safe: len(m) == 0, Matches: m}
}

// Check validates a draft against a verification plan. Drafts backed by
// verified data with numeric precision allowed always pass.
func Check(draft string, plan model.VerificationPlan) Verdict {
	if plan.NumericPrecisionAllowed {
		return Verdict{Safe: true}
	}
	return Validate(draft)
}

const redacted = "[redacted]"

var residualDigitsRe = regexp.MustCompile(`[$€£¥₹₿]?\d[\d.,:]*[%\w]*`)

// SanitizeReason scrubs numeric fragments out of a free-text reason, such
// as a provider error, before it is shown to a user.
func SanitizeReason(reason string) string {
	if reason == "" {
		return ""
	}
	var b strings.Builder
	last := 0
	for _, m := range Scan(reason) {
		b.WriteString(reason[last:m.Start])
		b.WriteString(redacted)
		last = m.End
	}
	b.WriteString(reason[last:])

	out := residualDigitsRe.ReplaceAllString(b.String(), redacted)
	for strings.Contains(out, redacted+" "+redacted) {
		out = strings.ReplaceAll(out, redacted+" "+redacted, redacted)
	}
	return out
}

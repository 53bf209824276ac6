package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Audit categories produced by the pipeline.
const (
	CategoryControl     = "veto.control"
	CategoryHard        = "veto.hard"
	CategorySoft        = "veto.soft"
	CategoryAckOverride = "ack.override"
	CategoryAckRejected = "ack.rejected"
	CategoryGeneralRisk = "veto.general_risk"
	CategoryVerify      = "verify"
	CategoryLeak        = "leakguard"
	CategoryFailSafe    = "failsafe"
	CategoryDecision    = "decision"
)

const separator = "──────────────────────────────────────────────────────────────────"

// FormatTimeline renders a ReplayResult as a human-readable text timeline.
func FormatTimeline(result *ReplayResult) string {
	if len(result.Entries) == 0 {
		return "No audit entries found.\n"
	}

	var b strings.Builder

	fmt.Fprintf(&b, "Audit: %d entries | %s–%s UTC\n", result.Summary.Total,
		formatDateRange(result.Summary.FirstTimestamp), formatTimeOnly(result.Summary.LastTimestamp))
	b.WriteString(separator + "\n")

	for _, e := range result.Entries {
		tag := ""
		if e.Category == CategoryAckOverride {
			tag = "  [override]"
		}
		fmt.Fprintf(&b, "%-10s %-9s %-10s %-20s %-40s%s\n",
			formatTimeOnly(e.Timestamp),
			strings.ToUpper(e.Severity),
			e.Action,
			truncate(e.Category, 20),
			truncate(e.Description, 40),
			tag)
	}

	b.WriteString(separator + "\n")
	b.WriteString(formatSummary(result.Summary))

	return b.String()
}

// FormatJSON renders a ReplayResult as indented JSON.
func FormatJSON(result *ReplayResult) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal replay result: %w", err)
	}
	return string(data), nil
}

func formatDateRange(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatTimeOnly(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("15:04:05")
}

func formatSummary(s ReplaySummary) string {
	parts := []string{}
	if s.ContinueCount > 0 {
		parts = append(parts, fmt.Sprintf("%d continue", s.ContinueCount))
	}
	if s.StopCount > 0 {
		parts = append(parts, fmt.Sprintf("%d stop", s.StopCount))
	}
	if s.DegradeCount > 0 {
		parts = append(parts, fmt.Sprintf("%d degrade", s.DegradeCount))
	}
	if s.AwaitAckCount > 0 {
		parts = append(parts, fmt.Sprintf("%d await_ack", s.AwaitAckCount))
	}
	if s.OverrideCount > 0 {
		parts = append(parts, fmt.Sprintf("%d override", s.OverrideCount))
	}
	severity := string(s.MaxSeverity)
	if severity == "" {
		severity = "none"
	}
	return fmt.Sprintf("Summary: %s | Max severity: %s\n", strings.Join(parts, ", "), severity)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

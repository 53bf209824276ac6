package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ppiankov/stancewatch/internal/model"
)

// ReplayFilter holds filtering criteria. Empty fields match everything.
type ReplayFilter struct {
	AuditID  string
	UserID   string
	Category string
	From     time.Time // zero value = no lower bound
	To       time.Time // zero value = no upper bound
}

func (f ReplayFilter) match(e AuditEntry) bool {
	if f.AuditID != "" && e.AuditID != f.AuditID {
		return false
	}
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.Category != "" && e.Category != f.Category {
		return false
	}
	if f.From.IsZero() && f.To.IsZero() {
		return true
	}
	ts, err := time.Parse(TimestampFormat, e.Timestamp)
	if err != nil {
		return false
	}
	if !f.From.IsZero() && ts.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && ts.After(f.To) {
		return false
	}
	return true
}

// ReplaySummary holds action counts and metadata for the replayed entries.
type ReplaySummary struct {
	Total          int          `json:"total"`
	ContinueCount  int          `json:"continue_count"`
	StopCount      int          `json:"stop_count"`
	DegradeCount   int          `json:"degrade_count"`
	AwaitAckCount  int          `json:"await_ack_count"`
	OverrideCount  int          `json:"override_count"`
	FirstTimestamp string       `json:"first_timestamp"`
	LastTimestamp  string       `json:"last_timestamp"`
	MaxSeverity    model.Stakes `json:"max_severity"`
}

// ReplayResult holds filtered entries and their summary.
type ReplayResult struct {
	Filter  ReplayFilter  `json:"-"`
	Entries []AuditEntry  `json:"entries"`
	Summary ReplaySummary `json:"summary"`
}

// Replay reads the audit log and returns entries matching the filter.
func Replay(path string, filter ReplayFilter) (*ReplayResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	result := &ReplayResult{Filter: filter}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		var entry AuditEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue // skip malformed lines
		}
		if !filter.match(entry) {
			continue
		}
		result.Entries = append(result.Entries, entry)
		updateSummary(&result.Summary, entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}

	return result, nil
}

func updateSummary(s *ReplaySummary, entry AuditEntry) {
	s.Total++

	switch model.Action(entry.Action) {
	case model.ActionContinue:
		s.ContinueCount++
	case model.ActionStop:
		s.StopCount++
	case model.ActionDegrade:
		s.DegradeCount++
	case model.ActionAwaitAck:
		s.AwaitAckCount++
	}

	if entry.Category == CategoryAckOverride {
		s.OverrideCount++
	}

	s.MaxSeverity = model.MaxStakes(s.MaxSeverity, model.Stakes(entry.Severity))

	if s.FirstTimestamp == "" {
		s.FirstTimestamp = entry.Timestamp
	}
	s.LastTimestamp = entry.Timestamp
}

package audit

import (
	"time"

	"github.com/ppiankov/stancewatch/internal/model"
)

// TimestampFormat is the layout used in audit entry timestamps.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// AuditEntry is one line in the hash-chained JSONL audit log.
// All fields are scalars (no map[string]any) to guarantee deterministic
// json.Marshal field order for reproducible hashing.
type AuditEntry struct {
	Timestamp   string `json:"ts"`
	AuditID     string `json:"audit_id"`
	Category    string `json:"category"`
	Action      string `json:"action"`
	Severity    string `json:"severity"`
	UserID      string `json:"user_id,omitempty"`
	Description string `json:"description"`
	ConfigHash  string `json:"config_hash,omitempty"`
	PrevHash    string `json:"prev_hash"`
}

// EntryFromRecord flattens a pipeline audit record into a log entry.
func EntryFromRecord(rec model.AuditRecord, configHash string) AuditEntry {
	e := AuditEntry{
		AuditID:     rec.AuditID,
		Category:    rec.Category,
		Action:      string(rec.Action),
		Severity:    string(rec.Severity),
		UserID:      rec.UserID,
		Description: rec.Description,
		ConfigHash:  configHash,
	}
	if !rec.Timestamp.IsZero() {
		e.Timestamp = rec.Timestamp.UTC().Format(TimestampFormat)
	}
	return e
}

// Record converts the entry back to a pipeline audit record.
func (e AuditEntry) Record() model.AuditRecord {
	ts, _ := time.Parse(TimestampFormat, e.Timestamp)
	return model.AuditRecord{
		AuditID:     e.AuditID,
		Category:    e.Category,
		Action:      model.Action(e.Action),
		Severity:    model.Stakes(e.Severity),
		UserID:      e.UserID,
		Description: e.Description,
		Timestamp:   ts,
	}
}

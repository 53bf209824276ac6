package audit

import (
	"sync"

	"github.com/ppiankov/stancewatch/internal/model"
)

// Sink receives audit records produced by the pipeline. Implementations
// must be safe for concurrent use.
type Sink interface {
	Append(rec model.AuditRecord) error
}

// Discard drops every record.
var Discard Sink = discard{}

type discard struct{}

func (discard) Append(model.AuditRecord) error { return nil }

// MemorySink keeps records in memory. Used by tests and the MCP server.
type MemorySink struct {
	mu      sync.Mutex
	records []model.AuditRecord
}

func (m *MemorySink) Append(rec model.AuditRecord) error {
	m.mu.Lock()
	m.records = append(m.records, rec)
	m.mu.Unlock()
	return nil
}

// Records returns a copy of everything appended so far.
func (m *MemorySink) Records() []model.AuditRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.AuditRecord(nil), m.records...)
}

// ByCategory returns records whose category equals c.
func (m *MemorySink) ByCategory(c string) []model.AuditRecord {
	var out []model.AuditRecord
	for _, r := range m.Records() {
		if r.Category == c {
			out = append(out, r)
		}
	}
	return out
}

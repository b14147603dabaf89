package storage

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazyhaar/dommark/internal/idgen"
)

// Event is a domain-level record of an editing or export action.
type Event struct {
	Type         string
	PageURL      string
	AnnotationID string
	Details      string // optional JSON
	Success      bool
}

// EventLogger writes events to the event log. Non-blocking: failures are
// logged via slog but never propagate, so a failing log store cannot block
// editing.
type EventLogger struct {
	store *Store
	newID idgen.Generator
}

// NewEventLogger creates a logger backed by the store.
func NewEventLogger(store *Store, gen idgen.Generator) *EventLogger {
	if gen == nil {
		gen = idgen.Prefixed("evt_", idgen.Default)
	}
	return &EventLogger{store: store, newID: gen}
}

// Log records an event.
func (l *EventLogger) Log(ctx context.Context, ev Event) {
	details := ev.Details
	if details == "" {
		details = "{}"
	}
	_, err := l.store.DB.ExecContext(ctx, `
		INSERT INTO event_logs
			(event_id, event_type, page_url, annotation_id, details, success, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		l.newID(), ev.Type, ev.PageURL, ev.AnnotationID, details, ev.Success,
		time.Now().UnixMilli())
	if err != nil {
		slog.Warn("storage: event log failed", "error", err, "event_type", ev.Type)
	}
}

// CountEvents returns the number of logged events for a page URL.
// Used by tests and stats surfaces.
func (s *Store) CountEvents(ctx context.Context, pageURL string) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM event_logs WHERE page_url = ?`, pageURL).Scan(&n)
	return n, err
}

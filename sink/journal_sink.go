package sink

import (
	"context"
	"guide-chat/contract"
	"guide-chat/domain/event"
	"log/slog"
)

// JournalSink records every event for diagnostics. A journal failure never
// blocks the other sinks.
type JournalSink struct {
	log     *slog.Logger
	journal contract.IJournal
}

func NewJournalSink(log *slog.Logger, journal contract.IJournal) *JournalSink {
	return &JournalSink{log: log, journal: journal}
}

func (s *JournalSink) Consume(_ context.Context, e event.Event) error {
	if err := s.journal.Record(e); err != nil {
		s.log.Warn("Unable to record event", "type", e.Type, "error", err)
	}
	return nil
}

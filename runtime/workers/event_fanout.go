package workers

import (
	"context"
	"guide-chat/contract"
	"guide-chat/domain/event"
	"log/slog"
	"time"
)

// EventFanout drains the bus and delivers each event to the sinks subscribed
// to its type. Events and sinks are handled one at a time so every store
// observes events in receipt order.
type EventFanout struct {
	log         *slog.Logger
	inbound     <-chan event.Event
	registry    contract.IRegistry
	sinkTimeout time.Duration
}

func NewEventFanout(log *slog.Logger, inbound <-chan event.Event, registry contract.IRegistry, sinkTimeout time.Duration) *EventFanout {
	return &EventFanout{log: log, inbound: inbound, registry: registry, sinkTimeout: sinkTimeout}
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case e := <-w.inbound:
			w.Fanout(ctx, e)
		case <-ctx.Done():
			w.log.Debug("Context done, stopping event fanout")
			return nil
		}
	}
}

// Fanout calls every sink with its own timeout. A failing sink is logged
// and does not prevent delivery to the next one.
func (w *EventFanout) Fanout(ctx context.Context, e event.Event) {
	sinks := w.registry.SinksFor(e.Type)
	if len(sinks) == 0 {
		w.log.Debug("No sink subscribed", "type", e.Type)
		return
	}
	for _, sink := range sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
		if err := sink.Consume(sinkCtx, e); err != nil {
			w.log.Error("Sink failed to consume event", "type", e.Type, "origin", e.Origin, "error", err)
		}
		cancel()
	}
}

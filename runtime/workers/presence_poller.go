package workers

import (
	"context"
	"guide-chat/contract"
	"guide-chat/domain/event"
	"guide-chat/errors"
	"log/slog"
	"time"
)

// PresencePoller fetches the online set over REST and publishes it as a
// snapshot. The push channel delivers the same snapshots in between.
type PresencePoller struct {
	log       *slog.Logger
	backend   contract.PresenceBackend
	publisher contract.Publisher
	interval  time.Duration
	timeout   time.Duration
}

func NewPresencePoller(log *slog.Logger, backend contract.PresenceBackend, publisher contract.Publisher,
	interval, timeout time.Duration) *PresencePoller {
	return &PresencePoller{log: log, backend: backend, publisher: publisher, interval: interval, timeout: timeout}
}

func (w *PresencePoller) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for ctx.Err() == nil {
		if err := w.Poll(ctx); err != nil {
			if ctx.Err() != nil || errors.Is(err, errors.ErrSessionClosed) {
				return nil
			}
			w.log.Warn("Presence poll failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

// Poll publishes one snapshot.
func (w *PresencePoller) Poll(ctx context.Context) error {
	fetchCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	ids, err := w.backend.OnlineUsers(fetchCtx)
	if err != nil {
		return errors.AsNetwork("online users", err)
	}
	return w.publisher.Publish(ctx, event.NewOnlineUsers(event.FromFetch, ids))
}

package workers

import (
	"context"
	"fmt"
	"guide-chat/contract"
	"guide-chat/errors"
	"log/slog"
	"sync/atomic"
)

// PushListener holds one push connection and publishes every decoded frame
// on the bus. A broken connection returns an error so the supervisor dials again.
type PushListener struct {
	log         *slog.Logger
	dialer      contract.PushDialer
	publisher   contract.Publisher
	onReconnect func(ctx context.Context)
	connections atomic.Int64
}

// NewPushListener calls onReconnect after every connection but the first,
// pushes missed while disconnected are recovered by fetching again.
func NewPushListener(log *slog.Logger, dialer contract.PushDialer, publisher contract.Publisher,
	onReconnect func(ctx context.Context)) *PushListener {
	return &PushListener{log: log, dialer: dialer, publisher: publisher, onReconnect: onReconnect}
}

func (w *PushListener) Run(ctx context.Context) error {
	conn, err := w.dialer.Dial(ctx)
	if err != nil {
		return fmt.Errorf("dial push channel: %w", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			w.log.Debug("Unable to close push connection", "error", err)
		}
	}()

	n := w.connections.Add(1)
	w.log.Info(fmt.Sprintf("Push channel connected (connection #%d)", n))
	if n > 1 && w.onReconnect != nil {
		w.onReconnect(ctx)
	}

	for {
		e, err := conn.ReadEvent(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, errors.ErrUnknownEvent) || errors.Is(err, errors.ErrInvalidPayload) {
				w.log.Warn("Dropping push frame", "error", err)
				continue
			}
			return err
		}
		if err := w.publisher.Publish(ctx, e); err != nil {
			if ctx.Err() != nil || errors.Is(err, errors.ErrSessionClosed) {
				return nil
			}
			return err
		}
	}
}

// Package push connects to the websocket push channel.
package push

import (
	"context"
	"fmt"
	"guide-chat/contract"
	"guide-chat/domain/event"
	"guide-chat/errors"
	"guide-chat/infrastructure/wire"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

type Dialer struct {
	url         string
	token       string
	readTimeout time.Duration
	dialer      *websocket.Dialer
}

// NewDialer returns a dialer for the push endpoint. A zero readTimeout
// waits for frames forever.
func NewDialer(url, token string, readTimeout time.Duration) *Dialer {
	return &Dialer{
		url:         url,
		token:       token,
		readTimeout: readTimeout,
		dialer:      websocket.DefaultDialer,
	}
}

func (d *Dialer) Dial(ctx context.Context) (contract.PushConn, error) {
	header := http.Header{}
	if d.token != "" {
		header.Set("Authorization", "Bearer "+d.token)
	}
	ws, resp, err := d.dialer.DialContext(ctx, d.url, header)
	if err != nil {
		if resp != nil {
			return nil, errors.NewNetworkError("dial push channel", resp.StatusCode, err)
		}
		return nil, errors.NewNetworkError("dial push channel", 0, err)
	}
	return &Conn{ws: ws, readTimeout: d.readTimeout}, nil
}

// Conn reads push frames. It is not safe for concurrent reads.
type Conn struct {
	ws          *websocket.Conn
	readTimeout time.Duration
}

// ReadEvent blocks until a frame arrives or ctx is done.
func (c *Conn) ReadEvent(ctx context.Context) (event.Event, error) {
	if c.readTimeout > 0 {
		if err := c.ws.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return event.Event{}, err
		}
	}
	// Unblock the read when the caller gives up
	stop := context.AfterFunc(ctx, func() {
		_ = c.ws.SetReadDeadline(time.Now())
	})
	defer stop()

	kind, frame, err := c.ws.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return event.Event{}, ctx.Err()
		}
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return event.Event{}, fmt.Errorf("%w: %v", errors.ErrPushClosed, err)
		}
		return event.Event{}, err
	}
	if kind != websocket.TextMessage {
		return event.Event{}, fmt.Errorf("%w: binary frame", errors.ErrInvalidPayload)
	}
	return wire.Decode(frame)
}

func (c *Conn) Close() error {
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return c.ws.Close()
}

package push

import (
	"context"
	"guide-chat/domain/event"
	"guide-chat/errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func newPushServer(t *testing.T, serve func(ws *websocket.Conn)) string {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		serve(ws)
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestConn_ReadEvent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	url := newPushServer(t, func(ws *websocket.Conn) {
		_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"event":"notificationCount","data":{"count":4}}`))
		_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"event":"typing","data":{}}`))
		_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		time.Sleep(50 * time.Millisecond)
	})

	conn, err := NewDialer(url, "secret", time.Second).Dial(ctx)
	req.NoError(err)
	defer conn.Close()

	e, err := conn.ReadEvent(ctx)
	req.NoError(err)
	req.Equal(event.NotificationCountChanged{Count: 4}, e.Payload)

	_, err = conn.ReadEvent(ctx)
	req.ErrorIs(err, errors.ErrUnknownEvent)

	_, err = conn.ReadEvent(ctx)
	req.ErrorIs(err, errors.ErrPushClosed)
}

func TestConn_ReadEvent_Cancel(t *testing.T) {
	req := require.New(t)
	release := make(chan struct{})
	url := newPushServer(t, func(ws *websocket.Conn) { <-release })
	defer close(release)

	conn, err := NewDialer(url, "secret", 0).Dial(context.Background())
	req.NoError(err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = conn.ReadEvent(ctx)
	req.ErrorIs(err, context.DeadlineExceeded)
}

func TestDialer_Unauthorized(t *testing.T) {
	req := require.New(t)
	url := newPushServer(t, func(ws *websocket.Conn) {})

	_, err := NewDialer(url, "wrong", 0).Dial(context.Background())
	var netErr *errors.NetworkError
	req.True(errors.As(err, &netErr))
	req.Equal(http.StatusUnauthorized, netErr.Status)
}

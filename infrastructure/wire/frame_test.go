package wire

import (
	"guide-chat/domain"
	"guide-chat/domain/event"
	"guide-chat/errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDecode_NewMessage(t *testing.T) {
	req := require.New(t)
	frame := []byte(`{"event":"newMessage","data":{"id":"42","conversationId":"c1","senderId":"g1",
		"senderRole":"Guide","content":"hello","createdAt":"2024-05-01T10:00:00Z",
		"metadata":{"clientMessageId":"tmp-ab12cd34-1"}}}`)

	e, err := Decode(frame)
	req.NoError(err)
	req.Equal(event.NewMessageType, e.Type)
	req.Equal(event.FromPush, e.Origin)

	m := e.Payload.(event.MessageReceived).Message
	req.Equal(domain.MessageID("42"), m.ID)
	req.Equal(domain.MessageID("tmp-ab12cd34-1"), m.ClientID)
	req.Equal(domain.ContentText, m.ContentType)
	req.Equal(domain.Confirmed, m.State)
	req.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), m.CreatedAt)
}

func TestDecode_ConversationUpdateWithoutTimestamp(t *testing.T) {
	req := require.New(t)
	before := time.Now().UTC()

	e, err := Decode([]byte(`{"event":"getConversation","data":{"conversationId":"c1","lastMessage":"hi"}}`))
	req.NoError(err)

	u := e.Payload.(event.ConversationUpdated)
	req.Equal(domain.ConversationID("c1"), u.ConversationID)
	req.False(u.UpdatedAt.Before(before))
}

func TestDecode_NotificationCount(t *testing.T) {
	tests := []struct {
		description string
		frame       string
		want        int
	}{
		{"Should accept a bare integer", `{"event":"notificationCount","data":5}`, 5},
		{"Should accept a count object", `{"event":"notificationCount","data":{"count":7}}`, 7},
		{"Should accept zero", `{"event":"notificationCount","data":0}`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			req := require.New(t)
			e, err := Decode([]byte(tt.frame))
			req.NoError(err)
			req.Equal(event.NotificationCountType, e.Type)
			req.Equal(tt.want, e.Payload.(event.NotificationCountChanged).Count)
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		description string
		frame       string
		want        error
	}{
		{"Should reject unknown event", `{"event":"typing","data":{}}`, errors.ErrUnknownEvent},
		{"Should reject missing data", `{"event":"notificationCount"}`, errors.ErrInvalidPayload},
		{"Should reject null count", `{"event":"notificationCount","data":null}`, errors.ErrInvalidPayload},
		{"Should reject text count", `{"event":"notificationCount","data":"five"}`, errors.ErrInvalidPayload},
		{"Should reject malformed data", `{"event":"getOnlineUsers","data":{"ids":1}}`, errors.ErrInvalidPayload},
		{"Should reject non json frame", `ping`, errors.ErrInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			_, err := Decode([]byte(tt.frame))
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestEncode_DecodesBack(t *testing.T) {
	req := require.New(t)
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	frame, err := Encode(event.NewConversationUpdate(event.FromLocal, event.ConversationUpdated{
		ConversationID: "c1", LastMessage: "hi", UpdatedAt: at,
	}))
	req.NoError(err)

	e, err := Decode(frame)
	req.NoError(err)
	req.Equal(event.ConversationUpdated{ConversationID: "c1", LastMessage: "hi", UpdatedAt: at}, e.Payload)

	frame, err = Encode(event.NewOnlineUsers(event.FromLocal, []domain.ParticipantID{"g1", "g2"}))
	req.NoError(err)
	e, err = Decode(frame)
	req.NoError(err)
	req.Equal([]domain.ParticipantID{"g1", "g2"}, e.Payload.(event.OnlineUsers).IDs)

	frame, err = Encode(event.NewNotificationCount(event.FromLocal, 3))
	req.NoError(err)
	req.JSONEq(`{"event":"notificationCount","data":3}`, string(frame))
}

package wire

import (
	"encoding/json"
	"fmt"
	"guide-chat/domain"
	"guide-chat/domain/event"
	"guide-chat/errors"
	"time"

	"github.com/samber/lo"
)

// Envelope is one push frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Decode turns a push frame into a bus event. Unknown event names return
// ErrUnknownEvent, malformed data returns ErrInvalidPayload.
func Decode(frame []byte) (event.Event, error) {
	var envelope Envelope
	if err := json.Unmarshal(frame, &envelope); err != nil {
		return event.Event{}, fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}

	switch t := event.Type(envelope.Event); t {
	case event.NewMessageType:
		var m Message
		if err := unmarshalData(t, envelope.Data, &m); err != nil {
			return event.Event{}, err
		}
		return event.NewMessage(event.FromPush, m.ToDomain()), nil
	case event.NewNotificationType:
		var n Notification
		if err := unmarshalData(t, envelope.Data, &n); err != nil {
			return event.Event{}, err
		}
		return event.NewNotification(event.FromPush, n.ToDomain()), nil
	case event.NotificationCountType:
		count, err := decodeCount(t, envelope.Data)
		if err != nil {
			return event.Event{}, err
		}
		return event.NewNotificationCount(event.FromPush, count), nil
	case event.ConversationUpdateType:
		var u ConversationUpdate
		if err := unmarshalData(t, envelope.Data, &u); err != nil {
			return event.Event{}, err
		}
		updatedAt := time.Now().UTC()
		if u.UpdatedAt != nil {
			updatedAt = *u.UpdatedAt
		}
		return event.NewConversationUpdate(event.FromPush, event.ConversationUpdated{
			ConversationID: domain.ConversationID(u.ConversationID),
			LastMessage:    u.LastMessage,
			UpdatedAt:      updatedAt,
		}), nil
	case event.OnlineUsersType:
		var ids []string
		if err := unmarshalData(t, envelope.Data, &ids); err != nil {
			return event.Event{}, err
		}
		return event.NewOnlineUsers(event.FromPush,
			lo.Map(ids, func(id string, _ int) domain.ParticipantID { return domain.ParticipantID(id) })), nil
	default:
		return event.Event{}, fmt.Errorf("%w: %q", errors.ErrUnknownEvent, envelope.Event)
	}
}

// Encode builds the push frame of an event.
func Encode(e event.Event) ([]byte, error) {
	var data any
	switch p := e.Payload.(type) {
	case event.MessageReceived:
		data = FromMessage(p.Message)
	case event.NotificationReceived:
		data = FromNotification(p.Notification)
	case event.NotificationCountChanged:
		data = p.Count
	case event.ConversationUpdated:
		data = ConversationUpdate{
			ConversationID: string(p.ConversationID),
			LastMessage:    p.LastMessage,
			UpdatedAt:      lo.ToPtr(p.UpdatedAt),
		}
	case event.OnlineUsers:
		data = lo.Map(p.IDs, func(id domain.ParticipantID, _ int) string { return string(id) })
	default:
		return nil, fmt.Errorf("%w: %T", errors.ErrInvalidPayload, e.Payload)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: string(e.Type), Data: raw})
}

func unmarshalData(t event.Type, data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return fmt.Errorf("%w: %s without data", errors.ErrInvalidPayload, t)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", errors.ErrInvalidPayload, t, err)
	}
	return nil
}

// decodeCount accepts the bare integer the backend pushes and the
// {"count": n} object form.
func decodeCount(t event.Type, data json.RawMessage) (int, error) {
	var count int
	if string(data) != "null" {
		if err := json.Unmarshal(data, &count); err == nil {
			return count, nil
		}
	}
	var c NotificationCount
	if err := unmarshalData(t, data, &c); err != nil {
		return 0, err
	}
	return c.Count, nil
}

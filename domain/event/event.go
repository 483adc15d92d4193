// Package event defines the normalized events flowing through the bus.
// Fetched data and pushed data use the same payloads so that sinks never
// branch on where an event came from.
package event

import (
	"guide-chat/domain"
	"time"
)

type Type string

// Values match the push channel event names.
const (
	NewMessageType         Type = "newMessage"
	NewNotificationType    Type = "newNotification"
	NotificationCountType  Type = "notificationCount"
	ConversationUpdateType Type = "getConversation"
	OnlineUsersType        Type = "getOnlineUsers"
)

func AllTypes() []Type {
	return []Type{
		NewMessageType,
		NewNotificationType,
		NotificationCountType,
		ConversationUpdateType,
		OnlineUsersType,
	}
}

type Origin string

const (
	FromFetch Origin = "fetch"
	FromPush  Origin = "push"
	FromLocal Origin = "local"
)

type Event struct {
	Type       Type
	Origin     Origin
	Payload    any
	ReceivedAt time.Time
}

type MessageReceived struct {
	Message domain.Message
}

type NotificationReceived struct {
	Notification domain.Notification
}

type NotificationCountChanged struct {
	Count int
}

// ConversationUpdated is the partial delta pushed by the server.
// It never carries participants.
type ConversationUpdated struct {
	ConversationID domain.ConversationID
	LastMessage    string
	UpdatedAt      time.Time
}

type OnlineUsers struct {
	IDs []domain.ParticipantID
}

func NewMessage(origin Origin, m domain.Message) Event {
	return Event{Type: NewMessageType, Origin: origin, Payload: MessageReceived{Message: m}, ReceivedAt: time.Now()}
}

func NewNotification(origin Origin, n domain.Notification) Event {
	return Event{Type: NewNotificationType, Origin: origin, Payload: NotificationReceived{Notification: n}, ReceivedAt: time.Now()}
}

func NewNotificationCount(origin Origin, count int) Event {
	return Event{Type: NotificationCountType, Origin: origin, Payload: NotificationCountChanged{Count: count}, ReceivedAt: time.Now()}
}

func NewConversationUpdate(origin Origin, u ConversationUpdated) Event {
	return Event{Type: ConversationUpdateType, Origin: origin, Payload: u, ReceivedAt: time.Now()}
}

func NewOnlineUsers(origin Origin, ids []domain.ParticipantID) Event {
	return Event{Type: OnlineUsersType, Origin: origin, Payload: OnlineUsers{IDs: ids}, ReceivedAt: time.Now()}
}

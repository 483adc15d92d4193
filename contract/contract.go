//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"guide-chat/domain"
	"guide-chat/domain/event"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

type EventSink interface {
	Consume(ctx context.Context, e event.Event) error
}

type IRegistry interface {
	SinksFor(t event.Type) []EventSink
	Subscribe(subscriberID string, sink EventSink, types []event.Type)
	Unsubscribe(subscriberID string, types []event.Type)
}

// Publisher puts an event on the bus. Fetch and push producers share it.
type Publisher interface {
	Publish(ctx context.Context, e event.Event) error
}

type ConversationBackend interface {
	ListConversations(ctx context.Context, session domain.Session) ([]domain.Conversation, error)
	CreateConversation(ctx context.Context, cmd domain.CreateConversationCommand) (domain.Conversation, error)
}

type MessageBackend interface {
	GetMessages(ctx context.Context, conversationID domain.ConversationID, session domain.Session) ([]domain.Message, error)
	SendMessage(ctx context.Context, cmd domain.SendMessageCommand) (domain.Message, error)
}

type PresenceBackend interface {
	OnlineUsers(ctx context.Context) ([]domain.ParticipantID, error)
}

type NotificationBackend interface {
	ListNotifications(ctx context.Context, session domain.Session) (domain.NotificationPage, error)
	MarkNotificationRead(ctx context.Context, id domain.NotificationID) error
	MarkAllNotificationsRead(ctx context.Context, session domain.Session) error
}

// Backend is the REST collaborator. It owns persistence and re-broadcasts
// every write on the push channel.
type Backend interface {
	ConversationBackend
	MessageBackend
	PresenceBackend
	NotificationBackend
}

// Ledger is the mutable side of a message thread used by the outbound pipeline.
// Every operation addresses the message by its client id.
type Ledger interface {
	InsertTentative(msg domain.Message) error
	Confirm(clientID domain.MessageID, saved domain.Message) (domain.Message, bool)
	Fail(clientID domain.MessageID, reason string) (domain.Message, bool)
	Retry(clientID domain.MessageID) (domain.Message, error)
}

type IConversationDirectory interface {
	LoadAll(ctx context.Context) ([]domain.Conversation, error)
	FindByCounterpart(target domain.Target) (domain.Conversation, bool)
	Upsert(c domain.Conversation)
}

type PushConn interface {
	ReadEvent(ctx context.Context) (event.Event, error)
	Close() error
}

type PushDialer interface {
	Dial(ctx context.Context) (PushConn, error)
}

type IJournal interface {
	Record(e event.Event) error
}

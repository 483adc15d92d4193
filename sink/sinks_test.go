package sink_test

import (
	"context"
	"fmt"
	"guide-chat/domain"
	"guide-chat/domain/event"
	"guide-chat/errors"
	"guide-chat/mocks"
	"guide-chat/projection"
	"guide-chat/sink"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var session = domain.Session{UserID: "u1", Role: domain.RoleUser}

func TestPresenceSink_Consume(t *testing.T) {
	req := require.New(t)
	tracker := projection.NewPresenceTracker(logs.GetLoggerFromLevel(slog.LevelDebug))
	s := sink.NewPresenceSink(tracker)

	err := s.Consume(context.Background(), event.NewOnlineUsers(event.FromPush, []domain.ParticipantID{"g1"}))
	req.NoError(err)
	req.True(tracker.IsOnline("g1"))

	err = s.Consume(context.Background(), event.NewNotificationCount(event.FromPush, 1))
	req.ErrorIs(err, errors.ErrInvalidPayload)
}

func TestDirectorySink_Consume(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	backend := mocks.NewMockConversationBackend(ctrl)
	directory := projection.NewConversationDirectory(log, backend, session, time.Second)
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	directory.Upsert(domain.Conversation{ID: "c1", UpdatedAt: at})
	s := sink.NewDirectorySink(log, directory)

	// Given a message push for a known conversation
	err := s.Consume(ctx, event.NewMessage(event.FromPush, domain.Message{
		ID: "m1", ConversationID: "c1", Content: "hello", CreatedAt: at.Add(time.Minute),
	}))
	req.NoError(err)
	c1, _ := directory.Find("c1")
	req.Equal("hello", c1.LastMessage)

	// When the conversation is unknown, the reload is not an error for the bus
	reloaded := make(chan struct{})
	backend.EXPECT().ListConversations(gomock.Any(), session).
		DoAndReturn(func(context.Context, domain.Session) ([]domain.Conversation, error) {
			defer close(reloaded)
			return nil, fmt.Errorf("unavailable")
		})
	err = s.Consume(ctx, event.NewConversationUpdate(event.FromPush, event.ConversationUpdated{
		ConversationID: "c2", LastMessage: "x", UpdatedAt: at,
	}))
	req.NoError(err)
	<-reloaded
}

func TestThreadSink_Consume(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	backend := mocks.NewMockMessageBackend(ctrl)
	backend.EXPECT().GetMessages(gomock.Any(), domain.ConversationID("c1"), session).Return(nil, nil)
	thread := projection.NewMessageThread(logs.GetLoggerFromLevel(slog.LevelDebug), backend, session)
	_, err := thread.Load(context.Background(), "c1")
	req.NoError(err)
	s := sink.NewThreadSink(thread)

	m := domain.Message{ID: "m1", ConversationID: "c1", CreatedAt: time.Now()}
	req.NoError(s.Consume(context.Background(), event.NewMessage(event.FromPush, m)))
	req.NoError(s.Consume(context.Background(), event.NewMessage(event.FromPush, m)))

	req.Len(thread.Messages(), 1)
}

func TestNotificationSink_Consume(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	counter := projection.NewNotificationCounter(logs.GetLoggerFromLevel(slog.LevelDebug),
		mocks.NewMockNotificationBackend(ctrl), session, time.Second)
	counter.Start()
	s := sink.NewNotificationSink(counter)

	req.NoError(s.Consume(context.Background(), event.NewNotificationCount(event.FromPush, 5)))
	req.NoError(s.Consume(context.Background(), event.NewNotification(event.FromPush, domain.Notification{ID: "n1"})))
	req.Equal(6, counter.Count())

	err := s.Consume(context.Background(), event.NewOnlineUsers(event.FromPush, nil))
	req.ErrorIs(err, errors.ErrInvalidPayload)
}

func TestJournalSink_Consume_NeverFails(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	journal := mocks.NewMockIJournal(ctrl)
	s := sink.NewJournalSink(logs.GetLoggerFromLevel(slog.LevelDebug), journal)
	e := event.NewNotificationCount(event.FromPush, 1)

	journal.EXPECT().Record(e).Return(fmt.Errorf("disk full"))

	req.NoError(s.Consume(context.Background(), e))
}

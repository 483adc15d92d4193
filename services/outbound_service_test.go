package services

import (
	"context"
	"fmt"
	"guide-chat/domain"
	"guide-chat/errors"
	"guide-chat/mocks"
	"guide-chat/projection"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var (
	session = domain.Session{UserID: "u1", Role: domain.RoleUser}
	t0      = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
)

type fixture struct {
	backend  *mocks.MockMessageBackend
	thread   *projection.MessageThread
	pipeline *OutboundPipeline
}

func newFixture(t *testing.T) fixture {
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	backend := mocks.NewMockMessageBackend(ctrl)
	thread := projection.NewMessageThread(log, backend, session)

	backend.EXPECT().GetMessages(gomock.Any(), domain.ConversationID("c1"), session).
		Return([]domain.Message{{ID: "m1", ConversationID: "c1", SenderID: "g1", Content: "welcome", CreatedAt: t0}}, nil)
	_, err := thread.Load(context.Background(), "c1")
	require.NoError(t, err)

	return fixture{
		backend:  backend,
		thread:   thread,
		pipeline: NewOutboundPipeline(log, backend, thread, session, time.Second, 100),
	}
}

func TestOutboundPipeline_Send_RoundTripKeepsIndex(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)

	release := make(chan struct{})
	f.backend.EXPECT().SendMessage(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, cmd domain.SendMessageCommand) (domain.Message, error) {
			<-release
			req.Equal(domain.ConversationID("c1"), cmd.ConversationID)
			req.Equal("hi", cmd.Content)
			req.True(cmd.ClientMessageID.IsTemporary())
			return domain.Message{ID: "42", ConversationID: "c1", Content: "hi", CreatedAt: t0.Add(time.Minute)}, nil
		})

	var observed []domain.Message
	f.pipeline.OnConfirmed(func(m domain.Message) { observed = append(observed, m) })

	// Given a message sent optimistically
	delivery, err := f.pipeline.Send(ctx, Draft{ConversationID: "c1", Content: "  hi  "})
	req.NoError(err)
	tentative := delivery.Tentative()
	req.True(tentative.ID.IsTemporary())
	req.Equal(domain.Tentative, tentative.State)
	req.Equal("hi", tentative.Content)

	// Then it is visible at the tail before the ack
	messages := f.thread.Messages()
	req.Len(messages, 2)
	req.Equal(tentative.ID, messages[1].ID)

	// When the server acknowledges with id 42
	close(release)
	confirmed, err := delivery.Wait(ctx)
	req.NoError(err)

	// Then the same slot carries the server id
	messages = f.thread.Messages()
	req.Len(messages, 2)
	req.Equal(domain.MessageID("42"), messages[1].ID)
	req.Equal(domain.Confirmed, messages[1].State)
	req.Equal(tentative.ClientID, messages[1].ClientID)
	req.Equal(domain.MessageID("42"), confirmed.ID)
	req.Len(observed, 1)
	req.Equal(domain.MessageID("42"), observed[0].ID)
}

func TestOutboundPipeline_Send_FailureKeepsMessage(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)

	f.backend.EXPECT().SendMessage(gomock.Any(), gomock.Any()).
		Return(domain.Message{}, errors.NewNetworkError("send message", 503, fmt.Errorf("unavailable")))

	delivery, err := f.pipeline.Send(ctx, Draft{ConversationID: "c1", Content: "hi"})
	req.NoError(err)
	failed, err := delivery.Wait(ctx)
	req.ErrorIs(err, errors.ErrNetwork)
	req.Equal(domain.Failed, failed.State)

	messages := f.thread.Messages()
	req.Len(messages, 2)
	req.Equal(delivery.Tentative().ID, messages[1].ID)
	req.Equal(domain.Failed, messages[1].State)
	req.NotEmpty(messages[1].FailureReason)
}

func TestOutboundPipeline_Retry_ReusesSlotAndClientID(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)

	var clientIDs []domain.MessageID
	gomock.InOrder(
		f.backend.EXPECT().SendMessage(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, cmd domain.SendMessageCommand) (domain.Message, error) {
				clientIDs = append(clientIDs, cmd.ClientMessageID)
				return domain.Message{}, fmt.Errorf("connection reset")
			}),
		f.backend.EXPECT().SendMessage(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, cmd domain.SendMessageCommand) (domain.Message, error) {
				clientIDs = append(clientIDs, cmd.ClientMessageID)
				return domain.Message{ID: "43", CreatedAt: t0.Add(time.Minute)}, nil
			}),
	)

	delivery, err := f.pipeline.Send(ctx, Draft{ConversationID: "c1", Content: "hi"})
	req.NoError(err)
	_, err = delivery.Wait(ctx)
	req.Error(err)

	retried, err := f.pipeline.Retry(ctx, delivery.Tentative().ClientID)
	req.NoError(err)
	req.Equal(domain.Tentative, retried.Tentative().State)
	confirmed, err := retried.Wait(ctx)
	req.NoError(err)
	req.Equal(domain.MessageID("43"), confirmed.ID)

	req.Len(clientIDs, 2)
	req.Equal(clientIDs[0], clientIDs[1])
	messages := f.thread.Messages()
	req.Len(messages, 2)
	req.Equal(domain.MessageID("43"), messages[1].ID)

	// A confirmed message is not retriable
	_, err = f.pipeline.Retry(ctx, delivery.Tentative().ClientID)
	req.ErrorIs(err, errors.ErrNotRetriable)
}

func TestOutboundPipeline_Send_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tests := []struct {
		description string
		draft       Draft
	}{
		{"Should fail with blank content and no attachment", Draft{ConversationID: "c1", Content: "   "}},
		{"Should fail with empty attachment list", Draft{ConversationID: "c1", Attachments: []domain.Attachment{}}},
		{"Should fail without conversation", Draft{Content: "hi"}},
		{"Should fail with attachment without url", Draft{ConversationID: "c1", Attachments: []domain.Attachment{{Name: "a.png"}}}},
		{"Should fail when content is too long", Draft{ConversationID: "c1", Content: strings.Repeat("é", 101)}},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			_, err := f.pipeline.Send(ctx, tt.draft)
			require.ErrorIs(t, err, errors.ErrValidation)
		})
	}
	// Nothing was inserted
	require.Len(t, f.thread.Messages(), 1)
}

func TestOutboundPipeline_Send_AttachmentOnly(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)

	f.backend.EXPECT().SendMessage(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, cmd domain.SendMessageCommand) (domain.Message, error) {
			req.Equal(domain.ContentImage, cmd.ContentType)
			req.Len(cmd.Attachments, 1)
			return domain.Message{ID: "44"}, nil
		})

	delivery, err := f.pipeline.Send(ctx, Draft{ConversationID: "c1", Attachments: []domain.Attachment{
		{URL: "https://cdn.example.com/tour.jpg", Name: "tour.jpg", MimeType: "image/jpeg", Size: 1024},
	}})
	req.NoError(err)
	req.Equal(domain.ContentImage, delivery.Tentative().ContentType)
	_, err = delivery.Wait(ctx)
	req.NoError(err)
}

func TestOutboundPipeline_Send_EchoBeforeFailedAck(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)

	f.backend.EXPECT().SendMessage(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, cmd domain.SendMessageCommand) (domain.Message, error) {
			// The push channel delivers the saved message, then the response is lost
			f.thread.ApplyMessage(domain.Message{
				ID: "45", ClientID: cmd.ClientMessageID, ConversationID: "c1", Content: "hi", CreatedAt: t0.Add(time.Minute),
			})
			return domain.Message{}, context.DeadlineExceeded
		})

	delivery, err := f.pipeline.Send(ctx, Draft{ConversationID: "c1", Content: "hi"})
	req.NoError(err)
	confirmed, err := delivery.Wait(ctx)
	req.NoError(err)
	req.Equal(domain.MessageID("45"), confirmed.ID)
	req.Len(f.thread.Messages(), 2)
}

func TestOutboundPipeline_Send_NoActiveThread(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	ledger := mocks.NewMockLedger(ctrl)
	pipeline := NewOutboundPipeline(logs.GetLoggerFromLevel(slog.LevelDebug),
		mocks.NewMockMessageBackend(ctrl), ledger, session, time.Second, 0)

	ledger.EXPECT().InsertTentative(gomock.Any()).Return(errors.ErrNoActiveThread)

	_, err := pipeline.Send(context.Background(), Draft{ConversationID: "c1", Content: "hi"})
	req.ErrorIs(err, errors.ErrNoActiveThread)
}

func TestOutboundPipeline_TemporaryIDsAreUnique(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	pipeline := NewOutboundPipeline(logs.GetLoggerFromLevel(slog.LevelDebug),
		mocks.NewMockMessageBackend(ctrl), mocks.NewMockLedger(ctrl), session, time.Second, 0)

	first, second := pipeline.nextTemporaryID(), pipeline.nextTemporaryID()
	req.NotEqual(first, second)
	req.True(first.IsTemporary())
	req.True(second.IsTemporary())
}

package storage

import (
	"guide-chat/domain"
	"guide-chat/domain/event"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func newJournal(t *testing.T) *Journal {
	db, err := OpenJournalDB("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewJournal(db, logs.GetLoggerFromLevel(slog.LevelDebug))
}

func TestJournal_Record_And_Entries_Sorted(t *testing.T) {
	req := require.New(t)
	journal := newJournal(t)
	at := time.Now().UTC()

	// Given events recorded out of order
	for _, offset := range []time.Duration{2 * time.Second, 0, time.Second} {
		e := event.NewNotificationCount(event.FromPush, int(offset/time.Second))
		e.ReceivedAt = at.Add(offset)
		req.NoError(journal.Record(e))
	}
	req.NoError(journal.Record(event.NewOnlineUsers(event.FromFetch, []domain.ParticipantID{"g1"})))

	// When reading one type
	entries, err := journal.Entries(event.NotificationCountType, 0)
	req.NoError(err)

	// Then entries are in receipt order
	req.Len(entries, 3)
	req.JSONEq(`{"Count":0}`, string(entries[0].Payload))
	req.JSONEq(`{"Count":1}`, string(entries[1].Payload))
	req.JSONEq(`{"Count":2}`, string(entries[2].Payload))
	req.Equal(event.FromPush, entries[0].Origin)
}

func TestJournal_Entries_Limit(t *testing.T) {
	req := require.New(t)
	journal := newJournal(t)
	for i := 0; i < 3; i++ {
		req.NoError(journal.Record(event.NewNotificationCount(event.FromPush, i)))
	}

	entries, err := journal.Entries(event.NotificationCountType, 2)
	req.NoError(err)
	req.Len(entries, 2)
}

func TestJournal_Counts(t *testing.T) {
	req := require.New(t)
	journal := newJournal(t)
	req.NoError(journal.Record(event.NewNotificationCount(event.FromPush, 1)))
	req.NoError(journal.Record(event.NewNotification(event.FromPush, domain.Notification{ID: "n1"})))
	req.NoError(journal.Record(event.NewNotification(event.FromPush, domain.Notification{ID: "n2"})))

	counts, err := journal.Counts()
	req.NoError(err)
	req.Equal(1, counts[event.NotificationCountType])
	req.Equal(2, counts[event.NewNotificationType])
	req.Zero(counts[event.NewMessageType])
}

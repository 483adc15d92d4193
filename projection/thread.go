package projection

import (
	"context"
	"fmt"
	"guide-chat/contract"
	"guide-chat/domain"
	"guide-chat/errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/samber/lo"
)

type ThreadState struct {
	ConversationID domain.ConversationID
	Messages       []domain.Message
}

// MessageThread is the ordered history of the open conversation.
// Messages are kept by CreatedAt ascending, local pending messages sit at the tail
// until the server acknowledges them.
type MessageThread struct {
	mu        sync.RWMutex
	log       *slog.Logger
	backend   contract.MessageBackend
	session   domain.Session
	active    domain.ConversationID
	messages  []domain.Message
	listeners Listeners[ThreadState]
}

func NewMessageThread(log *slog.Logger, backend contract.MessageBackend, session domain.Session) *MessageThread {
	return &MessageThread{log: log, backend: backend, session: session}
}

// Load makes conversationID the active thread and fetches its history.
// Messages pushed while the fetch is in flight are merged with the baseline.
// If another conversation was activated meanwhile the result is discarded.
// Overlapping loads of the same conversation all merge, merging is idempotent.
func (t *MessageThread) Load(ctx context.Context, conversationID domain.ConversationID) ([]domain.Message, error) {
	t.mu.Lock()
	if t.active != conversationID {
		t.messages = nil
	}
	t.active = conversationID
	t.mu.Unlock()

	fetched, err := t.backend.GetMessages(ctx, conversationID, t.session)
	if err != nil {
		return nil, errors.AsNetwork("get messages", err)
	}

	t.mu.Lock()
	if t.active != conversationID {
		t.mu.Unlock()
		return nil, errors.ErrThreadSwitched
	}
	t.messages = mergeBaseline(conversationID, fetched, t.messages)
	state := t.stateLocked()
	seq := t.listeners.Stamp()
	t.mu.Unlock()

	t.log.Debug(fmt.Sprintf("Thread %s loaded with %d messages", conversationID, len(state.Messages)))
	t.listeners.Notify(seq, state)
	return state.Messages, nil
}

func mergeBaseline(conversationID domain.ConversationID, fetched, local []domain.Message) []domain.Message {
	baseline := make([]domain.Message, 0, len(fetched)+len(local))
	for _, m := range lo.UniqBy(fetched, func(m domain.Message) domain.MessageID { return m.ID }) {
		if m.ID == "" {
			continue
		}
		m = m.Clone()
		m.ConversationID = conversationID
		m.State = domain.Confirmed
		baseline = append(baseline, m)
	}
	sort.SliceStable(baseline, func(i, j int) bool {
		return baseline[i].CreatedAt.Before(baseline[j].CreatedAt)
	})

	known := lo.SliceToMap(baseline, func(m domain.Message) (domain.MessageID, struct{}) { return m.ID, struct{}{} })
	acked := lo.SliceToMap(lo.Filter(baseline, func(m domain.Message, _ int) bool { return m.ClientID != "" }),
		func(m domain.Message) (domain.MessageID, struct{}) { return m.ClientID, struct{}{} })

	var pending []domain.Message
	for _, m := range local {
		switch {
		case m.State == domain.Confirmed:
			if _, ok := known[m.ID]; !ok {
				baseline = insertByTime(baseline, m)
			}
		default:
			if _, ok := acked[m.ClientID]; ok {
				continue
			}
			pending = append(pending, m)
		}
	}
	return append(baseline, pending...)
}

// ApplyMessage applies a message observed on the push channel.
// It reports whether the thread changed.
func (t *MessageThread) ApplyMessage(m domain.Message) bool {
	t.mu.Lock()
	if t.active == "" || m.ConversationID != t.active || m.ID == "" {
		t.mu.Unlock()
		return false
	}
	if lo.ContainsBy(t.messages, func(existing domain.Message) bool { return existing.ID == m.ID }) {
		t.mu.Unlock()
		return false
	}

	m = m.Clone()
	m.State = domain.Confirmed
	m.FailureReason = ""
	if _, idx, ok := t.findPendingLocked(m.ClientID); ok {
		// Own echo arrived before the ack
		t.messages[idx] = confirmInPlace(t.messages[idx], m)
	} else {
		t.messages = insertByTime(t.messages, m)
	}
	state := t.stateLocked()
	seq := t.listeners.Stamp()
	t.mu.Unlock()

	t.listeners.Notify(seq, state)
	return true
}

// InsertTentative appends a local message at the tail.
func (t *MessageThread) InsertTentative(m domain.Message) error {
	t.mu.Lock()
	if t.active == "" || m.ConversationID != t.active {
		t.mu.Unlock()
		return errors.ErrNoActiveThread
	}
	m = m.Clone()
	m.State = domain.Tentative
	t.messages = append(t.messages, m)
	state := t.stateLocked()
	seq := t.listeners.Stamp()
	t.mu.Unlock()

	t.listeners.Notify(seq, state)
	return nil
}

// Confirm swaps the temporary identity for the server one without moving the message.
// A duplicate created by an early echo is removed.
func (t *MessageThread) Confirm(clientID domain.MessageID, saved domain.Message) (domain.Message, bool) {
	t.mu.Lock()
	_, idx, ok := lo.FindIndexOf(t.messages, func(m domain.Message) bool { return m.ClientID == clientID })
	if !ok {
		t.mu.Unlock()
		return domain.Message{}, false
	}
	current := t.messages[idx]
	if current.State == domain.Confirmed && current.ID == saved.ID {
		t.mu.Unlock()
		return current.Clone(), true
	}

	if saved.ID != "" {
		for i := len(t.messages) - 1; i >= 0; i-- {
			if i != idx && t.messages[i].ID == saved.ID {
				t.messages = append(t.messages[:i], t.messages[i+1:]...)
				if i < idx {
					idx--
				}
			}
		}
	}
	confirmed := confirmInPlace(t.messages[idx], saved)
	t.messages[idx] = confirmed
	state := t.stateLocked()
	seq := t.listeners.Stamp()
	t.mu.Unlock()

	t.listeners.Notify(seq, state)
	return confirmed.Clone(), true
}

// Fail marks a local message as failed. A message already confirmed by its
// echo stays confirmed and false is returned.
func (t *MessageThread) Fail(clientID domain.MessageID, reason string) (domain.Message, bool) {
	t.mu.Lock()
	_, idx, ok := lo.FindIndexOf(t.messages, func(m domain.Message) bool { return m.ClientID == clientID })
	if !ok {
		t.mu.Unlock()
		return domain.Message{}, false
	}
	if t.messages[idx].State == domain.Confirmed {
		current := t.messages[idx].Clone()
		t.mu.Unlock()
		return current, false
	}
	t.messages[idx].State = domain.Failed
	t.messages[idx].FailureReason = reason
	failed := t.messages[idx].Clone()
	state := t.stateLocked()
	seq := t.listeners.Stamp()
	t.mu.Unlock()

	t.listeners.Notify(seq, state)
	return failed, true
}

// Retry moves a failed message back to tentative, in place.
func (t *MessageThread) Retry(clientID domain.MessageID) (domain.Message, error) {
	t.mu.Lock()
	_, idx, ok := lo.FindIndexOf(t.messages, func(m domain.Message) bool { return m.ClientID == clientID })
	if !ok {
		t.mu.Unlock()
		return domain.Message{}, fmt.Errorf("%w: %s", errors.ErrMessageNotFound, clientID)
	}
	if t.messages[idx].State != domain.Failed {
		t.mu.Unlock()
		return domain.Message{}, fmt.Errorf("%w: %s is %s", errors.ErrNotRetriable, clientID, t.messages[idx].State)
	}
	t.messages[idx].State = domain.Tentative
	t.messages[idx].FailureReason = ""
	retried := t.messages[idx].Clone()
	state := t.stateLocked()
	seq := t.listeners.Stamp()
	t.mu.Unlock()

	t.listeners.Notify(seq, state)
	return retried, nil
}

// Close deactivates the thread. Late loads and pushes are discarded.
func (t *MessageThread) Close() {
	t.mu.Lock()
	t.active = ""
	t.messages = nil
	state := t.stateLocked()
	seq := t.listeners.Stamp()
	t.mu.Unlock()

	t.listeners.Notify(seq, state)
}

func (t *MessageThread) Active() domain.ConversationID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.active
}

func (t *MessageThread) Messages() []domain.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stateLocked().Messages
}

func (t *MessageThread) Subscribe(fn func(ThreadState)) func() {
	return t.listeners.Subscribe(fn)
}

func (t *MessageThread) findPendingLocked(clientID domain.MessageID) (domain.Message, int, bool) {
	if clientID == "" {
		return domain.Message{}, -1, false
	}
	return lo.FindIndexOf(t.messages, func(m domain.Message) bool {
		return m.ClientID == clientID && m.State != domain.Confirmed
	})
}

func (t *MessageThread) stateLocked() ThreadState {
	return ThreadState{
		ConversationID: t.active,
		Messages:       lo.Map(t.messages, func(m domain.Message, _ int) domain.Message { return m.Clone() }),
	}
}

// confirmInPlace keeps the local content and position, the server owns identity and timestamps.
func confirmInPlace(local, saved domain.Message) domain.Message {
	local.ID = saved.ID
	if !saved.CreatedAt.IsZero() {
		local.CreatedAt = saved.CreatedAt
	}
	if !saved.UpdatedAt.IsZero() {
		local.UpdatedAt = saved.UpdatedAt
	}
	local.IsRead = saved.IsRead
	local.State = domain.Confirmed
	local.FailureReason = ""
	return local
}

// insertByTime places m after the last message not newer than it.
func insertByTime(messages []domain.Message, m domain.Message) []domain.Message {
	pos := len(messages)
	for pos > 0 && messages[pos-1].CreatedAt.After(m.CreatedAt) {
		pos--
	}
	return append(messages[:pos], append([]domain.Message{m}, messages[pos:]...)...)
}

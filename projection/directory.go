package projection

import (
	"context"
	"fmt"
	"guide-chat/contract"
	"guide-chat/domain"
	"guide-chat/domain/event"
	"guide-chat/errors"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/singleflight"
)

const loadAllKey = "all"

// ConversationDirectory is the ordered list of the session's conversations.
// The list is kept sorted by UpdatedAt descending.
type ConversationDirectory struct {
	mu            sync.RWMutex
	log           *slog.Logger
	backend       contract.ConversationBackend
	session       domain.Session
	timeout       time.Duration
	conversations []domain.Conversation
	group         singleflight.Group
	listeners     Listeners[[]domain.Conversation]
}

func NewConversationDirectory(log *slog.Logger, backend contract.ConversationBackend,
	session domain.Session, timeout time.Duration) *ConversationDirectory {
	return &ConversationDirectory{
		log:     log,
		backend: backend,
		session: session,
		timeout: timeout,
	}
}

// LoadAll replaces the local list with the server snapshot.
// Concurrent calls share a single request. On failure the previous list is kept.
func (d *ConversationDirectory) LoadAll(ctx context.Context) ([]domain.Conversation, error) {
	ch := d.group.DoChan(loadAllKey, func() (any, error) {
		// Detached so a caller giving up does not fail the other waiters
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()
		fetched, err := d.backend.ListConversations(fetchCtx, d.session)
		if err != nil {
			return nil, errors.AsNetwork("list conversations", err)
		}
		return d.replace(fetched), nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			d.log.Warn("Unable to load conversations", "error", res.Err)
			return nil, res.Err
		}
		return cloneConversations(res.Val.([]domain.Conversation)), nil
	}
}

func (d *ConversationDirectory) replace(fetched []domain.Conversation) []domain.Conversation {
	d.mu.Lock()
	local := lo.KeyBy(d.conversations, func(c domain.Conversation) domain.ConversationID { return c.ID })
	next := make([]domain.Conversation, 0, len(fetched))
	for _, c := range lo.UniqBy(fetched, func(c domain.Conversation) domain.ConversationID { return c.ID }) {
		if c.ID == "" {
			continue
		}
		c = c.Clone()
		// A push that raced the fetch may be newer than the snapshot
		if existing, ok := local[c.ID]; ok && existing.UpdatedAt.After(c.UpdatedAt) {
			c.LastMessage = existing.LastMessage
			c.UpdatedAt = existing.UpdatedAt
		}
		next = append(next, c)
	}
	domain.SortByActivity(next)
	d.conversations = next
	snapshot := cloneConversations(next)
	seq := d.listeners.Stamp()
	d.mu.Unlock()

	d.log.Debug(fmt.Sprintf("Directory loaded with %d conversations", len(snapshot)))
	d.listeners.Notify(seq, snapshot)
	return snapshot
}

// ApplyConversationUpdate records the activity carried by a push delta.
// An unknown conversation is never fabricated from a delta, a reload is
// started in the background and ErrStaleReference is returned.
func (d *ConversationDirectory) ApplyConversationUpdate(ctx context.Context, u event.ConversationUpdated) error {
	if u.ConversationID == "" {
		return fmt.Errorf("%w: conversation update without id", errors.ErrInvalidPayload)
	}

	d.mu.Lock()
	_, idx, found := lo.FindIndexOf(d.conversations, func(c domain.Conversation) bool {
		return c.ID == u.ConversationID
	})
	if !found {
		d.mu.Unlock()
		d.log.Debug("Conversation update for unknown conversation, reloading",
			"conversationID", u.ConversationID)
		go d.refresh(ctx)
		return fmt.Errorf("%w: %s", errors.ErrStaleReference, u.ConversationID)
	}
	d.conversations[idx] = d.conversations[idx].WithActivity(u.LastMessage, u.UpdatedAt)
	domain.SortByActivity(d.conversations)
	snapshot := cloneConversations(d.conversations)
	seq := d.listeners.Stamp()
	d.mu.Unlock()

	d.listeners.Notify(seq, snapshot)
	return nil
}

// ApplyMessage bumps the conversation a message belongs to.
func (d *ConversationDirectory) ApplyMessage(ctx context.Context, m domain.Message) error {
	return d.ApplyConversationUpdate(ctx, event.ConversationUpdated{
		ConversationID: m.ConversationID,
		LastMessage:    m.Preview(),
		UpdatedAt:      m.CreatedAt,
	})
}

func (d *ConversationDirectory) refresh(ctx context.Context) {
	if _, err := d.LoadAll(context.WithoutCancel(ctx)); err != nil {
		d.log.Warn("Background directory reload failed", "error", err)
	}
}

// Upsert inserts a full conversation or replaces the known one.
// Activity of the known entry never moves backwards.
func (d *ConversationDirectory) Upsert(c domain.Conversation) {
	if c.ID == "" {
		return
	}
	c = c.Clone()

	d.mu.Lock()
	_, idx, found := lo.FindIndexOf(d.conversations, func(existing domain.Conversation) bool {
		return existing.ID == c.ID
	})
	if found {
		existing := d.conversations[idx]
		if existing.UpdatedAt.After(c.UpdatedAt) {
			c.LastMessage = existing.LastMessage
			c.UpdatedAt = existing.UpdatedAt
		}
		d.conversations[idx] = c
	} else {
		d.conversations = append(d.conversations, c)
	}
	domain.SortByActivity(d.conversations)
	snapshot := cloneConversations(d.conversations)
	seq := d.listeners.Stamp()
	d.mu.Unlock()

	d.listeners.Notify(seq, snapshot)
}

func (d *ConversationDirectory) Find(id domain.ConversationID) (domain.Conversation, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := lo.Find(d.conversations, func(c domain.Conversation) bool { return c.ID == id })
	return c.Clone(), ok
}

// FindByCounterpart returns the 1:1 conversation whose sole other
// participant is the target.
func (d *ConversationDirectory) FindByCounterpart(target domain.Target) (domain.Conversation, bool) {
	if target.IsZero() {
		return domain.Conversation{}, false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := lo.Find(d.conversations, func(c domain.Conversation) bool {
		other, ok := c.Counterpart(d.session.UserID)
		return ok && target.Matches(other)
	})
	return c.Clone(), ok
}

func (d *ConversationDirectory) Conversations() []domain.Conversation {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return cloneConversations(d.conversations)
}

func (d *ConversationDirectory) Subscribe(fn func([]domain.Conversation)) func() {
	return d.listeners.Subscribe(fn)
}

func cloneConversations(conversations []domain.Conversation) []domain.Conversation {
	return lo.Map(conversations, func(c domain.Conversation, _ int) domain.Conversation { return c.Clone() })
}

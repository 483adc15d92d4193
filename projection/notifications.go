package projection

import (
	"context"
	"guide-chat/contract"
	"guide-chat/domain"
	"guide-chat/errors"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"
)

type NotificationState struct {
	Count int
	Items []domain.Notification
}

// NotificationCounter is the unread counter of the session.
// Marking as read is optimistic, the backend write is fire-and-forget
// and a failure is never rolled back.
type NotificationCounter struct {
	mu             sync.RWMutex
	log            *slog.Logger
	backend        contract.NotificationBackend
	session        domain.Session
	persistTimeout time.Duration
	active         bool
	count          int
	items          []domain.Notification
	pending        sync.WaitGroup
	listeners      Listeners[NotificationState]
}

func NewNotificationCounter(log *slog.Logger, backend contract.NotificationBackend,
	session domain.Session, persistTimeout time.Duration) *NotificationCounter {
	return &NotificationCounter{
		log:            log,
		backend:        backend,
		session:        session,
		persistTimeout: persistTimeout,
	}
}

func (n *NotificationCounter) Start() {
	n.mu.Lock()
	n.active = true
	n.mu.Unlock()
}

// Teardown clears the counter. Every later call is ignored.
func (n *NotificationCounter) Teardown() {
	n.mu.Lock()
	n.active = false
	n.count = 0
	n.items = nil
	state := n.stateLocked()
	seq := n.listeners.Stamp()
	n.mu.Unlock()

	n.listeners.Notify(seq, state)
}

// Fetch sets the server baseline.
func (n *NotificationCounter) Fetch(ctx context.Context) (NotificationState, error) {
	if !n.isActive() {
		return NotificationState{}, errors.ErrSessionClosed
	}
	page, err := n.backend.ListNotifications(ctx, n.session)
	if err != nil {
		return NotificationState{}, errors.AsNetwork("list notifications", err)
	}

	n.mu.Lock()
	if !n.active {
		n.mu.Unlock()
		return NotificationState{}, errors.ErrSessionClosed
	}
	n.count = max(page.Count, 0)
	n.items = lo.UniqBy(page.Notifications, func(item domain.Notification) domain.NotificationID { return item.ID })
	state := n.stateLocked()
	seq := n.listeners.Stamp()
	n.mu.Unlock()

	n.listeners.Notify(seq, state)
	return state, nil
}

// ApplyNotification counts a pushed notification once.
func (n *NotificationCounter) ApplyNotification(item domain.Notification) bool {
	n.mu.Lock()
	if !n.active {
		n.mu.Unlock()
		return false
	}
	if item.ID != "" && lo.ContainsBy(n.items, func(existing domain.Notification) bool { return existing.ID == item.ID }) {
		n.mu.Unlock()
		return false
	}
	item.IsRead = false
	n.items = append([]domain.Notification{item}, n.items...)
	n.count++
	state := n.stateLocked()
	seq := n.listeners.Stamp()
	n.mu.Unlock()

	n.listeners.Notify(seq, state)
	return true
}

// ApplyNotificationCount takes the count pushed by the server as the new baseline.
func (n *NotificationCounter) ApplyNotificationCount(count int) bool {
	n.mu.Lock()
	if !n.active {
		n.mu.Unlock()
		return false
	}
	n.count = max(count, 0)
	state := n.stateLocked()
	seq := n.listeners.Stamp()
	n.mu.Unlock()

	n.listeners.Notify(seq, state)
	return true
}

// MarkOneRead flips one notification and decrements the counter immediately.
// It reports false when the notification is unknown or already read.
func (n *NotificationCounter) MarkOneRead(ctx context.Context, id domain.NotificationID) bool {
	n.mu.Lock()
	if !n.active {
		n.mu.Unlock()
		return false
	}
	_, idx, ok := lo.FindIndexOf(n.items, func(item domain.Notification) bool { return item.ID == id })
	if !ok || n.items[idx].IsRead {
		n.mu.Unlock()
		return false
	}
	n.items[idx].IsRead = true
	n.count = max(n.count-1, 0)
	state := n.stateLocked()
	seq := n.listeners.Stamp()
	n.mu.Unlock()

	n.listeners.Notify(seq, state)
	n.persist(ctx, "mark notification read", func(ctx context.Context) error {
		return n.backend.MarkNotificationRead(ctx, id)
	})
	return true
}

func (n *NotificationCounter) MarkAllRead(ctx context.Context) bool {
	n.mu.Lock()
	if !n.active {
		n.mu.Unlock()
		return false
	}
	n.count = 0
	for i := range n.items {
		n.items[i].IsRead = true
	}
	state := n.stateLocked()
	seq := n.listeners.Stamp()
	n.mu.Unlock()

	n.listeners.Notify(seq, state)
	n.persist(ctx, "mark all notifications read", func(ctx context.Context) error {
		return n.backend.MarkAllNotificationsRead(ctx, n.session)
	})
	return true
}

func (n *NotificationCounter) persist(ctx context.Context, op string, write func(ctx context.Context) error) {
	n.pending.Add(1)
	go func() {
		defer n.pending.Done()
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.persistTimeout)
		defer cancel()
		if err := write(writeCtx); err != nil {
			n.log.Warn("Best effort persistence failed", "op", op, "error", errors.AsNetwork(op, err))
		}
	}()
}

// WaitPending blocks until every fire-and-forget write has returned.
func (n *NotificationCounter) WaitPending() {
	n.pending.Wait()
}

func (n *NotificationCounter) State() NotificationState {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.stateLocked()
}

func (n *NotificationCounter) Count() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.count
}

func (n *NotificationCounter) Subscribe(fn func(NotificationState)) func() {
	return n.listeners.Subscribe(fn)
}

func (n *NotificationCounter) isActive() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.active
}

func (n *NotificationCounter) stateLocked() NotificationState {
	return NotificationState{Count: n.count, Items: append([]domain.Notification(nil), n.items...)}
}

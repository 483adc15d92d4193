package runtime

import (
	"context"
	"fmt"
	"guide-chat/contract"
	"guide-chat/domain"
	"guide-chat/domain/event"
	"guide-chat/errors"
	"guide-chat/projection"
	"guide-chat/runtime/workers"
	"guide-chat/services"
	"guide-chat/sink"
	"log/slog"
	"sync"
	"time"
)

const (
	presenceSubscriber     = "presence"
	directorySubscriber    = "directory"
	threadSubscriber       = "thread"
	notificationSubscriber = "notifications"
	journalSubscriber      = "journal"
)

type Config struct {
	BufferSize       int
	SinkTimeout      time.Duration
	RequestTimeout   time.Duration
	SendTimeout      time.Duration
	PersistTimeout   time.Duration
	PresenceInterval time.Duration
	RestartInterval  time.Duration
	MaxContentLength int
}

// Engine owns the state of one logged-in session: the four stores, the bus
// feeding them and the background workers. It lives from Start to Logout.
type Engine struct {
	log        *slog.Logger
	cfg        Config
	session    domain.Session
	backend    contract.Backend
	dialer     contract.PushDialer
	journal    contract.IJournal
	registry   *Registry
	bus        *Bus

	presence      *projection.PresenceTracker
	directory     *projection.ConversationDirectory
	thread        *projection.MessageThread
	notifications *projection.NotificationCounter
	pipeline      *services.OutboundPipeline
	resolver      *services.ConversationResolver

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
	closed  bool
}

// NewEngine wires a session. A nil dialer runs without push channel,
// a nil journal records nothing.
func NewEngine(log *slog.Logger, cfg Config, session domain.Session, backend contract.Backend,
	dialer contract.PushDialer, journal contract.IJournal) *Engine {
	thread := projection.NewMessageThread(log, backend, session)
	directory := projection.NewConversationDirectory(log, backend, session, cfg.RequestTimeout)
	e := &Engine{
		log:           log,
		cfg:           cfg,
		session:       session,
		backend:       backend,
		dialer:        dialer,
		journal:       journal,
		registry:      NewRegistry(),
		bus:           NewBus(cfg.BufferSize),
		presence:      projection.NewPresenceTracker(log),
		directory:     directory,
		thread:        thread,
		notifications: projection.NewNotificationCounter(log, backend, session, cfg.PersistTimeout),
		pipeline:      services.NewOutboundPipeline(log, backend, thread, session, cfg.SendTimeout, cfg.MaxContentLength),
		resolver:      services.NewConversationResolver(log, directory, backend, session, cfg.RequestTimeout),
	}
	e.pipeline.OnConfirmed(func(m domain.Message) {
		if err := e.directory.ApplyMessage(context.Background(), m); err != nil && !errors.Is(err, errors.ErrStaleReference) {
			e.log.Warn("Unable to bump conversation after send", "conversationID", m.ConversationID, "error", err)
		}
	})
	return e
}

// Start subscribes the stores, starts the workers and fetches the baselines.
// Only the directory fetch failure is returned, presence and notifications
// are tolerated and recovered by later snapshots.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return errors.ErrSessionClosed
	}
	if e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = true
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	e.mu.Unlock()

	e.notifications.Start()
	e.registry.Subscribe(presenceSubscriber, sink.NewPresenceSink(e.presence),
		[]event.Type{event.OnlineUsersType})
	e.registry.Subscribe(directorySubscriber, sink.NewDirectorySink(e.log, e.directory),
		[]event.Type{event.ConversationUpdateType, event.NewMessageType})
	e.registry.Subscribe(notificationSubscriber, sink.NewNotificationSink(e.notifications),
		[]event.Type{event.NewNotificationType, event.NotificationCountType})
	if e.journal != nil {
		e.registry.Subscribe(journalSubscriber, sink.NewJournalSink(e.log, e.journal), event.AllTypes())
	}

	// A fresh supervisor per start so a retried Start never runs workers twice
	supervisor := workers.NewSupervisor(e.log, e.cfg.RestartInterval)
	supervisor.Add(workers.NewEventFanout(e.log, e.bus.Events(), e.registry, e.cfg.SinkTimeout))
	if e.dialer != nil {
		supervisor.Add(workers.NewPushListener(e.log, e.dialer, e.bus, e.resync))
	}
	poller := workers.NewPresencePoller(e.log, e.backend, e.bus, e.cfg.PresenceInterval, e.cfg.RequestTimeout)
	if e.cfg.PresenceInterval > 0 {
		supervisor.Add(poller)
	}
	done := e.done
	go func() {
		defer close(done)
		supervisor.Run(runCtx)
	}()

	if e.cfg.PresenceInterval <= 0 {
		if err := poller.Poll(runCtx); err != nil {
			e.log.Warn("Presence bootstrap failed", "error", err)
		}
	}
	if _, err := e.notifications.Fetch(runCtx); err != nil {
		e.log.Warn("Notification bootstrap failed", "error", err)
	}
	if _, err := e.directory.LoadAll(runCtx); err != nil {
		e.abortStart(cancel, done)
		return fmt.Errorf("bootstrap directory: %w", err)
	}
	e.log.Info(fmt.Sprintf("Session started for %s (%s)", e.session.UserID, e.session.Role))
	return nil
}

// resync fetches again what pushes may have missed while disconnected.
func (e *Engine) resync(ctx context.Context) {
	e.log.Info("Push channel reconnected, resyncing")
	if _, err := e.directory.LoadAll(ctx); err != nil {
		e.log.Warn("Directory resync failed", "error", err)
	}
	if _, err := e.notifications.Fetch(ctx); err != nil {
		e.log.Warn("Notification resync failed", "error", err)
	}
	if active := e.thread.Active(); active != "" {
		if _, err := e.thread.Load(ctx, active); err != nil {
			e.log.Warn("Thread resync failed", "conversationID", active, "error", err)
		}
	}
}

// OpenConversation activates a thread. Pushes for the previous one are dropped.
func (e *Engine) OpenConversation(ctx context.Context, id domain.ConversationID) ([]domain.Message, error) {
	if err := e.ensureLive(); err != nil {
		return nil, err
	}
	e.registry.Subscribe(threadSubscriber, sink.NewThreadSink(e.thread), []event.Type{event.NewMessageType})
	return e.thread.Load(ctx, id)
}

func (e *Engine) CloseConversation() {
	e.registry.Unsubscribe(threadSubscriber, []event.Type{event.NewMessageType})
	e.thread.Close()
}

// Send posts into the open conversation and returns once the tentative
// message is visible.
func (e *Engine) Send(ctx context.Context, content string, attachments []domain.Attachment) (*services.Delivery, error) {
	if err := e.ensureLive(); err != nil {
		return nil, err
	}
	active := e.thread.Active()
	if active == "" {
		return nil, errors.ErrNoActiveThread
	}
	draft := services.Draft{ConversationID: active, Content: content, Attachments: attachments}
	if c, ok := e.directory.Find(active); ok {
		if other, ok := c.Counterpart(e.session.UserID); ok {
			draft.ReceiverID = other.ID
			draft.ReceiverRole = other.Role
		}
	}
	return e.pipeline.Send(ctx, draft)
}

func (e *Engine) Retry(ctx context.Context, clientID domain.MessageID) (*services.Delivery, error) {
	if err := e.ensureLive(); err != nil {
		return nil, err
	}
	return e.pipeline.Retry(ctx, clientID)
}

// Resolve finds or creates the conversation with target and opens it.
func (e *Engine) Resolve(ctx context.Context, target domain.Target) (domain.Conversation, error) {
	if err := e.ensureLive(); err != nil {
		return domain.Conversation{}, err
	}
	c, err := e.resolver.Resolve(ctx, target)
	if err != nil {
		return domain.Conversation{}, err
	}
	if _, err := e.OpenConversation(ctx, c.ID); err != nil {
		return c, err
	}
	return c, nil
}

func (e *Engine) OpenDeepLink(ctx context.Context, rawURL string) (domain.Conversation, error) {
	target, err := services.ParseDeepLink(rawURL)
	if err != nil {
		return domain.Conversation{}, err
	}
	return e.Resolve(ctx, target)
}

func (e *Engine) MarkNotificationRead(ctx context.Context, id domain.NotificationID) bool {
	return e.notifications.MarkOneRead(ctx, id)
}

func (e *Engine) MarkAllNotificationsRead(ctx context.Context) bool {
	return e.notifications.MarkAllRead(ctx)
}

// Logout stops the workers and clears every session-scoped store.
// The engine cannot be started again, a new session needs a new engine.
func (e *Engine) Logout() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.started = false
	e.closed = true
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	e.bus.Close()
	e.stopWorkers(cancel, done)
	e.notifications.WaitPending()
	e.presence.Reset()
	e.thread.Close()
	e.log.Info(fmt.Sprintf("Session closed for %s", e.session.UserID))
}

// abortStart undoes a Start whose bootstrap failed. The bus stays open and
// Start can be called again.
func (e *Engine) abortStart(cancel context.CancelFunc, done <-chan struct{}) {
	e.stopWorkers(cancel, done)
	e.mu.Lock()
	e.started = false
	e.mu.Unlock()
}

func (e *Engine) stopWorkers(cancel context.CancelFunc, done <-chan struct{}) {
	cancel()
	<-done
	for _, id := range []string{presenceSubscriber, directorySubscriber, threadSubscriber,
		notificationSubscriber, journalSubscriber} {
		e.registry.Unsubscribe(id, event.AllTypes())
	}
	e.notifications.Teardown()
}

// Publish puts a locally produced event on the bus.
func (e *Engine) Publish(ctx context.Context, evt event.Event) error {
	return e.bus.Publish(ctx, evt)
}

func (e *Engine) Session() domain.Session { return e.session }

func (e *Engine) Presence() *projection.PresenceTracker { return e.presence }

func (e *Engine) Directory() *projection.ConversationDirectory { return e.directory }

func (e *Engine) Thread() *projection.MessageThread { return e.thread }

func (e *Engine) Notifications() *projection.NotificationCounter { return e.notifications }

func (e *Engine) ensureLive() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return errors.ErrSessionClosed
	}
	return nil
}

package services

import (
	"context"
	"fmt"
	"guide-chat/contract"
	"guide-chat/domain"
	"guide-chat/domain/mimetypes"
	"guide-chat/errors"
	"guide-chat/projection"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

// Draft is what the user typed. Either content or attachments must be present.
type Draft struct {
	ConversationID domain.ConversationID `validate:"required"`
	ReceiverID     domain.ParticipantID
	ReceiverRole   domain.Role
	Content        string              `validate:"required_without=Attachments"`
	Attachments    []domain.Attachment `validate:"omitempty,dive"`
}

// Delivery follows one logical message from its tentative insert to the ack.
type Delivery struct {
	tentative domain.Message
	done      chan struct{}
	result    domain.Message
	err       error
}

func newDelivery(tentative domain.Message) *Delivery {
	return &Delivery{tentative: tentative, done: make(chan struct{})}
}

func (d *Delivery) Tentative() domain.Message { return d.tentative.Clone() }

func (d *Delivery) Done() <-chan struct{} { return d.done }

// Result is meaningful once Done is closed.
func (d *Delivery) Result() (domain.Message, error) {
	select {
	case <-d.done:
		return d.result.Clone(), d.err
	default:
		return d.tentative.Clone(), nil
	}
}

func (d *Delivery) Wait(ctx context.Context) (domain.Message, error) {
	select {
	case <-d.done:
		return d.result.Clone(), d.err
	case <-ctx.Done():
		return d.tentative.Clone(), ctx.Err()
	}
}

func (d *Delivery) complete(m domain.Message, err error) {
	d.result = m
	d.err = err
	close(d.done)
}

// OutboundPipeline sends messages optimistically: the message is shown as
// tentative immediately and reconciled with the server identity on ack.
// A failed message stays in place until it is retried explicitly.
type OutboundPipeline struct {
	log              *slog.Logger
	backend          contract.MessageBackend
	ledger           contract.Ledger
	session          domain.Session
	sendTimeout      time.Duration
	maxContentLength int
	instance         string
	counter          atomic.Uint64
	mu               sync.Mutex
	commands         map[domain.MessageID]domain.SendMessageCommand
	confirmed        projection.Listeners[domain.Message]
}

func NewOutboundPipeline(log *slog.Logger, backend contract.MessageBackend, ledger contract.Ledger,
	session domain.Session, sendTimeout time.Duration, maxContentLength int) *OutboundPipeline {
	return &OutboundPipeline{
		log:              log,
		backend:          backend,
		ledger:           ledger,
		session:          session,
		sendTimeout:      sendTimeout,
		maxContentLength: maxContentLength,
		instance:         uuid.NewString()[:8],
		commands:         make(map[domain.MessageID]domain.SendMessageCommand),
	}
}

// Send validates the draft, inserts the tentative message and persists it in
// the background. Nothing is inserted or sent when validation fails.
func (p *OutboundPipeline) Send(ctx context.Context, draft Draft) (*Delivery, error) {
	draft.Content = strings.TrimSpace(draft.Content)
	if len(draft.Attachments) == 0 {
		draft.Attachments = nil
	}
	if err := validate.Struct(draft); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}
	if p.maxContentLength > 0 && utf8.RuneCountInString(draft.Content) > p.maxContentLength {
		return nil, fmt.Errorf("%w: content exceeds %d characters", errors.ErrValidation, p.maxContentLength)
	}

	clientID := p.nextTemporaryID()
	now := time.Now().UTC()
	tentative := domain.Message{
		ID:             clientID,
		ClientID:       clientID,
		ConversationID: draft.ConversationID,
		SenderID:       p.session.UserID,
		SenderRole:     p.session.Role,
		Content:        draft.Content,
		ContentType:    mimetypes.ContentTypeOf(draft.Attachments),
		Attachments:    draft.Attachments,
		CreatedAt:      now,
		UpdatedAt:      now,
		State:          domain.Tentative,
	}
	if err := p.ledger.InsertTentative(tentative); err != nil {
		return nil, err
	}

	cmd := domain.SendMessageCommand{
		ConversationID:  draft.ConversationID,
		ReceiverID:      draft.ReceiverID,
		ReceiverRole:    draft.ReceiverRole,
		SenderID:        p.session.UserID,
		SenderRole:      p.session.Role,
		Content:         tentative.Content,
		ContentType:     tentative.ContentType,
		Attachments:     tentative.Attachments,
		ClientMessageID: clientID,
	}
	p.mu.Lock()
	p.commands[clientID] = cmd
	p.mu.Unlock()

	delivery := newDelivery(tentative)
	go p.persist(ctx, cmd, delivery)
	return delivery, nil
}

// Retry re-sends a failed message with the same client id, the message keeps its slot.
func (p *OutboundPipeline) Retry(ctx context.Context, clientID domain.MessageID) (*Delivery, error) {
	m, err := p.ledger.Retry(clientID)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	cmd, ok := p.commands[clientID]
	if !ok {
		cmd = domain.SendMessageCommand{
			ConversationID:  m.ConversationID,
			SenderID:        p.session.UserID,
			SenderRole:      p.session.Role,
			Content:         m.Content,
			ContentType:     m.ContentType,
			Attachments:     m.Attachments,
			ClientMessageID: clientID,
		}
		p.commands[clientID] = cmd
	}
	p.mu.Unlock()

	p.log.Info(fmt.Sprintf("Retrying message %s", clientID))
	delivery := newDelivery(m)
	go p.persist(ctx, cmd, delivery)
	return delivery, nil
}

// OnConfirmed registers an observer called with every acknowledged message.
func (p *OutboundPipeline) OnConfirmed(fn func(domain.Message)) func() {
	return p.confirmed.Subscribe(fn)
}

func (p *OutboundPipeline) persist(ctx context.Context, cmd domain.SendMessageCommand, delivery *Delivery) {
	clientID := cmd.ClientMessageID
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.sendTimeout)
	defer cancel()

	saved, err := p.backend.SendMessage(sendCtx, cmd)
	if err != nil {
		err = errors.AsNetwork("send message", err)
		current, failed := p.ledger.Fail(clientID, err.Error())
		if !failed && current.State == domain.Confirmed {
			// The echo confirmed it while the ack was lost
			p.forget(clientID)
			p.log.Debug("Send failed after echo confirmation", "clientID", clientID, "error", err)
			delivery.complete(current, nil)
			return
		}
		if !failed {
			current = delivery.tentative.Clone()
			current.State = domain.Failed
			current.FailureReason = err.Error()
		}
		p.log.Warn("Message send failed", "clientID", clientID, "retriable", errors.IsRetriable(err), "error", err)
		delivery.complete(current, err)
		return
	}

	saved.ClientID = clientID
	if saved.ConversationID == "" {
		saved.ConversationID = cmd.ConversationID
	}
	confirmed, ok := p.ledger.Confirm(clientID, saved)
	if !ok {
		// Thread switched or closed, the directory still needs the activity
		confirmed = delivery.tentative.Clone()
		confirmed.ID = saved.ID
		confirmed.ConversationID = saved.ConversationID
		if !saved.CreatedAt.IsZero() {
			confirmed.CreatedAt = saved.CreatedAt
			confirmed.UpdatedAt = saved.CreatedAt
		}
		confirmed.State = domain.Confirmed
	}
	p.forget(clientID)
	p.log.Debug(fmt.Sprintf("Message %s confirmed as %s", clientID, confirmed.ID))
	p.confirmed.Emit(confirmed.Clone())
	delivery.complete(confirmed, nil)
}

func (p *OutboundPipeline) forget(clientID domain.MessageID) {
	p.mu.Lock()
	delete(p.commands, clientID)
	p.mu.Unlock()
}

func (p *OutboundPipeline) nextTemporaryID() domain.MessageID {
	return domain.MessageID(fmt.Sprintf("%s%s-%d", domain.TemporaryPrefix, p.instance, p.counter.Add(1)))
}

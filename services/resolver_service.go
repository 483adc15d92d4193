package services

import (
	"context"
	"fmt"
	"guide-chat/contract"
	"guide-chat/domain"
	"guide-chat/errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ConversationResolver turns a deep-link target into a conversation,
// creating it when none exists. Concurrent resolutions of the same target
// share a single creation write. Creations of different keys run one at a
// time, so an id link and a slug link to the same participant still write once.
type ConversationResolver struct {
	log       *slog.Logger
	directory contract.IConversationDirectory
	backend   contract.ConversationBackend
	session   domain.Session
	timeout   time.Duration
	group     singleflight.Group
	creating  sync.Mutex
}

func NewConversationResolver(log *slog.Logger, directory contract.IConversationDirectory,
	backend contract.ConversationBackend, session domain.Session, timeout time.Duration) *ConversationResolver {
	return &ConversationResolver{
		log:       log,
		directory: directory,
		backend:   backend,
		session:   session,
		timeout:   timeout,
	}
}

func (r *ConversationResolver) Resolve(ctx context.Context, target domain.Target) (domain.Conversation, error) {
	if target.IsZero() {
		return domain.Conversation{}, errors.ErrInvalidDeepLink
	}
	if target.ID != "" && target.ID == r.session.UserID {
		return domain.Conversation{}, fmt.Errorf("%w: target is the session user", errors.ErrInvalidDeepLink)
	}
	if c, ok := r.directory.FindByCounterpart(target); ok {
		return c, nil
	}

	ch := r.group.DoChan(target.Key(), func() (any, error) {
		r.creating.Lock()
		defer r.creating.Unlock()
		// A flight that just finished, maybe under the other key, may have filled the directory
		if c, ok := r.directory.FindByCounterpart(target); ok {
			return c, nil
		}
		return r.create(ctx, target)
	})

	select {
	case <-ctx.Done():
		return domain.Conversation{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return domain.Conversation{}, res.Err
		}
		if res.Shared {
			r.log.Debug("Joined in-flight conversation creation", "target", target.Key())
		}
		return res.Val.(domain.Conversation).Clone(), nil
	}
}

func (r *ConversationResolver) create(ctx context.Context, target domain.Target) (domain.Conversation, error) {
	createCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	created, err := r.backend.CreateConversation(createCtx, domain.CreateConversationCommand{
		SenderID:     r.session.UserID,
		SenderRole:   r.session.Role,
		ReceiverID:   target.ID,
		ReceiverSlug: target.Slug,
		ReceiverRole: target.Role,
	})
	if err != nil {
		err = errors.AsNetwork("create conversation", err)
		r.log.Warn("Unable to create conversation", "target", target.Key(), "error", err)
		return domain.Conversation{}, err
	}

	r.log.Info(fmt.Sprintf("Conversation %s created for %s", created.ID, target.Key()))
	r.directory.Upsert(created)
	if _, err := r.directory.LoadAll(createCtx); err != nil {
		r.log.Warn("Directory refresh after creation failed", "error", err)
	}
	return created, nil
}

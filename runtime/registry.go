package runtime

import (
	"guide-chat/contract"
	"guide-chat/domain/event"
	"sync"

	"github.com/samber/lo"
)

type subscription struct {
	subscriberID string
	sink         contract.EventSink
}

// Registry maps event types to their subscribed sinks, in subscription order.
// A subscriber id appears at most once per type so an event is never
// delivered twice to the same handler.
type Registry struct {
	mu            sync.RWMutex
	subscriptions map[event.Type][]subscription
}

func NewRegistry() *Registry {
	return &Registry{subscriptions: make(map[event.Type][]subscription)}
}

func (r *Registry) SinksFor(t event.Type) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Map(r.subscriptions[t], func(s subscription, _ int) contract.EventSink { return s.sink })
}

// Subscribe registers a sink for the given types.
// Subscribing an existing id again replaces its sink in place.
func (r *Registry) Subscribe(subscriberID string, sink contract.EventSink, types []event.Type) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range types {
		subs := r.subscriptions[t]
		_, idx, found := lo.FindIndexOf(subs, func(s subscription) bool { return s.subscriberID == subscriberID })
		if found {
			subs[idx].sink = sink
			continue
		}
		r.subscriptions[t] = append(subs, subscription{subscriberID: subscriberID, sink: sink})
	}
}

// Unsubscribe removes the subscriber from the given types.
// Empty entries are dropped so the map does not grow over a session.
func (r *Registry) Unsubscribe(subscriberID string, types []event.Type) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range types {
		subs := lo.Reject(r.subscriptions[t], func(s subscription, _ int) bool { return s.subscriberID == subscriberID })
		if len(subs) == 0 {
			delete(r.subscriptions, t)
			continue
		}
		r.subscriptions[t] = subs
	}
}

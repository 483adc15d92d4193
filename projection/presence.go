package projection

import (
	"guide-chat/domain"
	"log/slog"
	"sort"
	"sync"

	"github.com/samber/lo"
)

type PresenceChange struct {
	Online []domain.ParticipantID
	Joined []domain.ParticipantID
	Left   []domain.ParticipantID
}

// PresenceTracker holds the set of online participants.
// Every snapshot replaces the whole set, it is never patched.
type PresenceTracker struct {
	mu        sync.RWMutex
	log       *slog.Logger
	online    map[domain.ParticipantID]struct{}
	listeners Listeners[PresenceChange]
}

func NewPresenceTracker(log *slog.Logger) *PresenceTracker {
	return &PresenceTracker{
		log:    log,
		online: make(map[domain.ParticipantID]struct{}),
	}
}

// ApplySnapshot replaces the online set. The returned diff only serves
// observability, an empty snapshot means nobody is online.
func (p *PresenceTracker) ApplySnapshot(ids []domain.ParticipantID) PresenceChange {
	next := make(map[domain.ParticipantID]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			next[id] = struct{}{}
		}
	}

	p.mu.Lock()
	left, joined := lo.Difference(lo.Keys(p.online), lo.Keys(next))
	p.online = next
	change := PresenceChange{
		Online: sortedIDs(lo.Keys(next)),
		Joined: sortedIDs(joined),
		Left:   sortedIDs(left),
	}
	seq := p.listeners.Stamp()
	p.mu.Unlock()

	if len(change.Joined) > 0 || len(change.Left) > 0 {
		p.log.Debug("presence snapshot applied",
			"online", len(change.Online),
			"joined", len(change.Joined),
			"left", len(change.Left))
	}
	p.listeners.Notify(seq, change)
	return change
}

func (p *PresenceTracker) IsOnline(id domain.ParticipantID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.online[id]
	return ok
}

func (p *PresenceTracker) Online() []domain.ParticipantID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return sortedIDs(lo.Keys(p.online))
}

// Reset empties the set on logout.
func (p *PresenceTracker) Reset() {
	p.ApplySnapshot(nil)
}

func (p *PresenceTracker) Subscribe(fn func(PresenceChange)) func() {
	return p.listeners.Subscribe(fn)
}

func sortedIDs(ids []domain.ParticipantID) []domain.ParticipantID {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

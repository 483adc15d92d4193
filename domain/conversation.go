package domain

import (
	"sort"
	"time"
)

type ConversationID string

// Conversation is a thread between the session user and exactly one other
// participant. UpdatedAt never moves backwards.
type Conversation struct {
	ID           ConversationID
	IsGroupChat  bool
	Participants []Participant
	LastMessage  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Counterpart returns the sole participant that is not self.
// It reports false for group chats or malformed participant lists.
func (c Conversation) Counterpart(self ParticipantID) (Participant, bool) {
	if c.IsGroupChat {
		return Participant{}, false
	}
	var found []Participant
	for _, p := range c.Participants {
		if p.ID != self {
			found = append(found, p)
		}
	}
	if len(found) != 1 {
		return Participant{}, false
	}
	return found[0], true
}

// WithActivity records a new last message. UpdatedAt only moves forward,
// an older activity keeps the current snapshot.
func (c Conversation) WithActivity(lastMessage string, at time.Time) Conversation {
	if at.Before(c.UpdatedAt) {
		return c
	}
	c.LastMessage = lastMessage
	c.UpdatedAt = at
	return c
}

func (c Conversation) Clone() Conversation {
	c.Participants = append([]Participant(nil), c.Participants...)
	return c
}

// SortByActivity orders conversations by UpdatedAt descending, ties by id
// so the result does not depend on the input order.
func SortByActivity(conversations []Conversation) {
	sort.SliceStable(conversations, func(i, j int) bool {
		a, b := conversations[i], conversations[j]
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.ID < b.ID
	})
}

package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConversation_Counterpart(t *testing.T) {
	req := require.New(t)
	self := Participant{ID: "u1", Role: RoleUser}
	guide := Participant{ID: "g1", Role: RoleGuide, Slug: "g123"}

	other, ok := Conversation{Participants: []Participant{self, guide}}.Counterpart("u1")
	req.True(ok)
	req.Equal(guide, other)

	_, ok = Conversation{IsGroupChat: true, Participants: []Participant{self, guide}}.Counterpart("u1")
	req.False(ok)

	_, ok = Conversation{Participants: []Participant{self}}.Counterpart("u1")
	req.False(ok)
}

func TestConversation_WithActivity_NeverMovesBack(t *testing.T) {
	req := require.New(t)
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	c := Conversation{ID: "c1", LastMessage: "latest", UpdatedAt: t0}

	req.Equal(c, c.WithActivity("older", t0.Add(-time.Minute)))

	bumped := c.WithActivity("newer", t0.Add(time.Minute))
	req.Equal("newer", bumped.LastMessage)
	req.Equal(t0.Add(time.Minute), bumped.UpdatedAt)
}

func TestSortByActivity(t *testing.T) {
	req := require.New(t)
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	conversations := []Conversation{
		{ID: "c1", UpdatedAt: t0},
		{ID: "c3", UpdatedAt: t0.Add(2 * time.Hour)},
		{ID: "c2", UpdatedAt: t0.Add(time.Hour)},
		{ID: "c0", UpdatedAt: t0},
	}

	SortByActivity(conversations)

	var got []ConversationID
	for _, c := range conversations {
		got = append(got, c.ID)
	}
	req.Equal([]ConversationID{"c3", "c2", "c0", "c1"}, got)
}

func TestTarget_KeyAndMatches(t *testing.T) {
	req := require.New(t)
	req.Equal("id:7", Target{ID: "7", Slug: "g7"}.Key())
	req.Equal("slug:g7", Target{Slug: "g7"}.Key())
	req.True(Target{Slug: "g7"}.Matches(Participant{ID: "7", Slug: "g7"}))
	req.False(Target{ID: "8"}.Matches(Participant{ID: "7", Slug: "g7"}))
	req.True(Target{}.IsZero())
}

// Package domain contains core concepts of the chat system.
// This file defines Participant entities and related invariants.
// No runtime, network, or UI logic should be added here.
package domain

type ParticipantID string

type Role string

const (
	RoleUser  Role = "User"
	RoleGuide Role = "Guide"
)

// Participant is a denormalized snapshot captured when the conversation
// was fetched. It is never mutated by the sync engine.
type Participant struct {
	ID          ParticipantID
	DisplayName string
	AvatarURL   string
	Role        Role
	Slug        string
}

// Session identifies the logged-in participant for the lifetime of an engine.
type Session struct {
	UserID ParticipantID
	Role   Role
}

// Target is what a deep link points at: a participant id, a slug, or both.
type Target struct {
	ID   ParticipantID
	Slug string
	Role Role
}

func (t Target) IsZero() bool {
	return t.ID == "" && t.Slug == ""
}

// Key is stable for a given target and is used to collapse concurrent lookups.
func (t Target) Key() string {
	if t.ID != "" {
		return "id:" + string(t.ID)
	}
	return "slug:" + t.Slug
}

func (t Target) Matches(p Participant) bool {
	if t.ID != "" && p.ID == t.ID {
		return true
	}
	return t.Slug != "" && p.Slug == t.Slug
}

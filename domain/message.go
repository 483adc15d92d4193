// Package domain contains core concepts of the chat system.
// This file defines Message entities and their delivery lifecycle.
package domain

import (
	"strings"
	"time"
)

type MessageID string

// TemporaryPrefix marks client-generated ids. Server ids never carry it.
const TemporaryPrefix = "tmp-"

func (id MessageID) IsTemporary() bool {
	return strings.HasPrefix(string(id), TemporaryPrefix)
}

type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
	ContentFile  ContentType = "file"
)

// DeliveryState is explicit instead of being inferred from the id.
type DeliveryState string

const (
	Tentative DeliveryState = "tentative"
	Confirmed DeliveryState = "confirmed"
	Failed    DeliveryState = "failed"
)

type Attachment struct {
	URL      string `validate:"required,url"`
	Name     string `validate:"max=255"`
	MimeType string
	Size     int64  `validate:"gte=0"`
}

type Message struct {
	ID             MessageID
	ClientID       MessageID
	ConversationID ConversationID
	SenderID       ParticipantID
	SenderRole     Role
	Content        string
	ContentType    ContentType
	Attachments    []Attachment
	IsRead         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
	State          DeliveryState
	FailureReason  string
}

// Preview is the directory snapshot of a message.
func (m Message) Preview() string {
	if m.Content != "" {
		return m.Content
	}
	if len(m.Attachments) > 0 {
		if m.Attachments[0].Name != "" {
			return m.Attachments[0].Name
		}
		return string(m.ContentType)
	}
	return ""
}

func (m Message) Clone() Message {
	m.Attachments = append([]Attachment(nil), m.Attachments...)
	return m
}

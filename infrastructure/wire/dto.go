// Package wire holds the JSON shapes exchanged with the backend and the
// push channel, and their mapping to the domain.
package wire

import (
	"guide-chat/domain"
	"time"

	"github.com/samber/lo"
)

type Participant struct {
	ID          string `json:"id"`
	DisplayName string `json:"name"`
	AvatarURL   string `json:"avatar,omitempty"`
	Role        string `json:"role"`
	Slug        string `json:"slug,omitempty"`
}

type Conversation struct {
	ID           string        `json:"id"`
	IsGroupChat  bool          `json:"isGroupChat"`
	Participants []Participant `json:"participants"`
	LastMessage  string        `json:"lastMessage"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

type Attachment struct {
	URL      string `json:"url"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Metadata carries the client idempotency key next to the attachments.
type Metadata struct {
	ClientMessageID string       `json:"clientMessageId,omitempty"`
	Attachments     []Attachment `json:"attachments,omitempty"`
}

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	SenderRole     string    `json:"senderRole"`
	Content        string    `json:"content"`
	ContentType    string    `json:"contentType"`
	Metadata       *Metadata `json:"metadata,omitempty"`
	IsRead         bool      `json:"isRead"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type Notification struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Link      string    `json:"link,omitempty"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
}

type NotificationPage struct {
	Count         int            `json:"count"`
	Notifications []Notification `json:"notifications"`
}

type SendMessageRequest struct {
	ConversationID string    `json:"conversationId,omitempty"`
	ReceiverID     string    `json:"receiverId,omitempty"`
	ReceiverType   string    `json:"receiverType,omitempty"`
	SenderID       string    `json:"senderId"`
	SenderRole     string    `json:"senderRole"`
	Content        string    `json:"content"`
	ContentType    string    `json:"contentType"`
	Metadata       *Metadata `json:"metadata,omitempty"`
}

type CreateConversationRequest struct {
	SenderID     string `json:"senderId"`
	SenderRole   string `json:"senderRole"`
	ReceiverID   string `json:"receiverId,omitempty"`
	ReceiverSlug string `json:"receiverSlug,omitempty"`
	ReceiverType string `json:"receiverType,omitempty"`
}

// ConversationUpdate is the partial conversation pushed after a write.
type ConversationUpdate struct {
	ConversationID string     `json:"conversationId"`
	LastMessage    string     `json:"lastMessage"`
	UpdatedAt      *time.Time `json:"updatedAt,omitempty"`
}

type NotificationCount struct {
	Count int `json:"count"`
}

func (p Participant) ToDomain() domain.Participant {
	return domain.Participant{
		ID:          domain.ParticipantID(p.ID),
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
		Role:        domain.Role(p.Role),
		Slug:        p.Slug,
	}
}

func FromParticipant(p domain.Participant) Participant {
	return Participant{
		ID:          string(p.ID),
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
		Role:        string(p.Role),
		Slug:        p.Slug,
	}
}

func (c Conversation) ToDomain() domain.Conversation {
	return domain.Conversation{
		ID:           domain.ConversationID(c.ID),
		IsGroupChat:  c.IsGroupChat,
		Participants: lo.Map(c.Participants, func(p Participant, _ int) domain.Participant { return p.ToDomain() }),
		LastMessage:  c.LastMessage,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

func FromConversation(c domain.Conversation) Conversation {
	return Conversation{
		ID:           string(c.ID),
		IsGroupChat:  c.IsGroupChat,
		Participants: lo.Map(c.Participants, func(p domain.Participant, _ int) Participant { return FromParticipant(p) }),
		LastMessage:  c.LastMessage,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

func (a Attachment) ToDomain() domain.Attachment {
	return domain.Attachment{URL: a.URL, Name: a.Name, MimeType: a.MimeType, Size: a.Size}
}

func FromAttachment(a domain.Attachment) Attachment {
	return Attachment{URL: a.URL, Name: a.Name, MimeType: a.MimeType, Size: a.Size}
}

// ToDomain maps a server message. Server messages are confirmed by definition.
func (m Message) ToDomain() domain.Message {
	msg := domain.Message{
		ID:             domain.MessageID(m.ID),
		ConversationID: domain.ConversationID(m.ConversationID),
		SenderID:       domain.ParticipantID(m.SenderID),
		SenderRole:     domain.Role(m.SenderRole),
		Content:        m.Content,
		ContentType:    domain.ContentType(m.ContentType),
		IsRead:         m.IsRead,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
		State:          domain.Confirmed,
	}
	if msg.ContentType == "" {
		msg.ContentType = domain.ContentText
	}
	if m.Metadata != nil {
		msg.ClientID = domain.MessageID(m.Metadata.ClientMessageID)
		msg.Attachments = lo.Map(m.Metadata.Attachments, func(a Attachment, _ int) domain.Attachment { return a.ToDomain() })
	}
	return msg
}

func FromMessage(m domain.Message) Message {
	return Message{
		ID:             string(m.ID),
		ConversationID: string(m.ConversationID),
		SenderID:       string(m.SenderID),
		SenderRole:     string(m.SenderRole),
		Content:        m.Content,
		ContentType:    string(m.ContentType),
		Metadata:       newMetadata(m.ClientID, m.Attachments),
		IsRead:         m.IsRead,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func (n Notification) ToDomain() domain.Notification {
	return domain.Notification{
		ID:        domain.NotificationID(n.ID),
		Type:      n.Type,
		Message:   n.Message,
		Link:      n.Link,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
	}
}

func FromNotification(n domain.Notification) Notification {
	return Notification{
		ID:        string(n.ID),
		Type:      n.Type,
		Message:   n.Message,
		Link:      n.Link,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
	}
}

func (p NotificationPage) ToDomain() domain.NotificationPage {
	return domain.NotificationPage{
		Count:         p.Count,
		Notifications: lo.Map(p.Notifications, func(n Notification, _ int) domain.Notification { return n.ToDomain() }),
	}
}

func FromSendMessageCommand(cmd domain.SendMessageCommand) SendMessageRequest {
	return SendMessageRequest{
		ConversationID: string(cmd.ConversationID),
		ReceiverID:     string(cmd.ReceiverID),
		ReceiverType:   string(cmd.ReceiverRole),
		SenderID:       string(cmd.SenderID),
		SenderRole:     string(cmd.SenderRole),
		Content:        cmd.Content,
		ContentType:    string(cmd.ContentType),
		Metadata:       newMetadata(cmd.ClientMessageID, cmd.Attachments),
	}
}

func (r SendMessageRequest) ToDomain() domain.SendMessageCommand {
	cmd := domain.SendMessageCommand{
		ConversationID: domain.ConversationID(r.ConversationID),
		ReceiverID:     domain.ParticipantID(r.ReceiverID),
		ReceiverRole:   domain.Role(r.ReceiverType),
		SenderID:       domain.ParticipantID(r.SenderID),
		SenderRole:     domain.Role(r.SenderRole),
		Content:        r.Content,
		ContentType:    domain.ContentType(r.ContentType),
	}
	if r.Metadata != nil {
		cmd.ClientMessageID = domain.MessageID(r.Metadata.ClientMessageID)
		cmd.Attachments = lo.Map(r.Metadata.Attachments, func(a Attachment, _ int) domain.Attachment { return a.ToDomain() })
	}
	return cmd
}

func FromCreateConversationCommand(cmd domain.CreateConversationCommand) CreateConversationRequest {
	return CreateConversationRequest{
		SenderID:     string(cmd.SenderID),
		SenderRole:   string(cmd.SenderRole),
		ReceiverID:   string(cmd.ReceiverID),
		ReceiverSlug: cmd.ReceiverSlug,
		ReceiverType: string(cmd.ReceiverRole),
	}
}

func newMetadata(clientID domain.MessageID, attachments []domain.Attachment) *Metadata {
	if clientID == "" && len(attachments) == 0 {
		return nil
	}
	return &Metadata{
		ClientMessageID: string(clientID),
		Attachments:     lo.Map(attachments, func(a domain.Attachment, _ int) Attachment { return FromAttachment(a) }),
	}
}

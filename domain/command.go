package domain

// SendMessageCommand is the backend write of the outbound pipeline.
// Either ConversationID or ReceiverID+ReceiverRole addresses the message.
type SendMessageCommand struct {
	ConversationID  ConversationID
	ReceiverID      ParticipantID
	ReceiverRole    Role
	SenderID        ParticipantID
	SenderRole      Role
	Content         string
	ContentType     ContentType
	Attachments     []Attachment
	ClientMessageID MessageID
}

type CreateConversationCommand struct {
	SenderID     ParticipantID
	SenderRole   Role
	ReceiverID   ParticipantID
	ReceiverSlug string
	ReceiverRole Role
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeFile  MessageType = "file"
)

func (mt MessageType) IsValid() bool {
	switch mt {
	case MessageTypeText, MessageTypeImage, MessageTypeFile:
		return true
	}
	return false
}

type AttachmentKind string

const (
	AttachmentKindImage AttachmentKind = "image"
	AttachmentKindFile  AttachmentKind = "file"
)

func (ak AttachmentKind) IsValid() bool {
	return ak == AttachmentKindImage || ak == AttachmentKindFile
}

// Attachment points at a file already hosted on the external image host.
type Attachment struct {
	URL  string         `json:"url"`
	Kind AttachmentKind `json:"kind"`
	Name string         `json:"name,omitempty"`
}

// MessageTypeFor derives the message type from its attachment, if any.
func MessageTypeFor(att *Attachment) MessageType {
	if att == nil {
		return MessageTypeText
	}
	if att.Kind == AttachmentKindImage {
		return MessageTypeImage
	}
	return MessageTypeFile
}

type Message struct {
	ID             uuid.UUID   `json:"id"`
	ConversationID uuid.UUID   `json:"conversation_id"`
	SenderID       uuid.UUID   `json:"sender_id"`
	Content        string      `json:"content"`
	Type           MessageType `json:"message_type"`
	Attachment     *Attachment `json:"attachment,omitempty"`
	IsRead         bool        `json:"is_read"`
	ReadAt         *time.Time  `json:"read_at,omitempty"`
	DeletedBy      []uuid.UUID `json:"-"`
	CreatedAt      time.Time   `json:"created_at"`
	// Joined fields
	SenderUsername    string `json:"sender_username,omitempty"`
	SenderDisplayName string `json:"sender_display_name,omitempty"`
}

// DeletedFor reports whether userID has soft-deleted their view of the message.
func (m *Message) DeletedFor(userID uuid.UUID) bool {
	for _, id := range m.DeletedBy {
		if id == userID {
			return true
		}
	}
	return false
}

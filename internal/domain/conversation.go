package domain

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is a pairwise chat channel. user1_id < user2_id always holds
// (canonical order), which makes the unordered pair unique in storage.
type Conversation struct {
	ID            uuid.UUID  `json:"id"`
	User1ID       uuid.UUID  `json:"user1_id"`
	User2ID       uuid.UUID  `json:"user2_id"`
	LastMessageID *uuid.UUID `json:"-"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	// Joined fields for the conversation list
	OtherUserID      uuid.UUID `json:"other_user_id"`
	OtherUsername    string    `json:"other_username"`
	OtherDisplayName string    `json:"other_display_name"`
	UnreadCount      int       `json:"unread_count"`
	LastMessage      *Message  `json:"last_message,omitempty"`
}

func (c *Conversation) HasParticipant(userID uuid.UUID) bool {
	return c.User1ID == userID || c.User2ID == userID
}

// OtherParticipant returns the participant that is not userID.
func (c *Conversation) OtherParticipant(userID uuid.UUID) uuid.UUID {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

// CanonicalPair orders two user IDs so that the first sorts before the second.
func CanonicalPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if a.String() > b.String() {
		return b, a
	}
	return a, b
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationItemMatch    NotificationType = "item_match"
	NotificationItemClaimed  NotificationType = "item_claimed"
	NotificationItemResolved NotificationType = "item_resolved"
	NotificationBookInterest NotificationType = "book_interest"
	NotificationBookSold     NotificationType = "book_sold"
	NotificationMessage      NotificationType = "message"
	NotificationSystem       NotificationType = "system"
)

func (nt NotificationType) IsValid() bool {
	switch nt {
	case NotificationItemMatch, NotificationItemClaimed, NotificationItemResolved,
		NotificationBookInterest, NotificationBookSold, NotificationMessage,
		NotificationSystem:
		return true
	}
	return false
}

// NotificationRefs carries the optional cross-reference of a notification.
// At most one field is populated, depending on the type.
type NotificationRefs struct {
	ItemID         *uuid.UUID `json:"item_id,omitempty"`
	BookID         *uuid.UUID `json:"book_id,omitempty"`
	ConversationID *uuid.UUID `json:"conversation_id,omitempty"`
	ActorID        *uuid.UUID `json:"actor_id,omitempty"`
}

type Notification struct {
	ID      uuid.UUID        `json:"id"`
	UserID  uuid.UUID        `json:"user_id"`
	Type    NotificationType `json:"type"`
	Title   string           `json:"title"`
	Message string           `json:"message"`
	NotificationRefs
	Read      bool       `json:"read"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	ExpiresAt time.Time  `json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
}

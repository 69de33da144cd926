package repository

import (
	"context"
	"errors"
	"time"

	"github.com/campussync/messaging/internal/domain"
	"github.com/google/uuid"
)

// ErrConversationExists signals that the unordered pair already has a
// conversation; the caller re-reads and uses the existing row.
var ErrConversationExists = errors.New("conversation already exists for this pair")

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	// Search returns verified users matching the query by username or display
	// name, excluding excludeID.
	Search(ctx context.Context, query string, excludeID uuid.UUID, limit int) ([]domain.User, error)
}

type ConversationRepository interface {
	// Create inserts the conversation and its two member rows. Returns
	// ErrConversationExists when the canonical pair already has a row.
	Create(ctx context.Context, conv *domain.Conversation) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error)
	// GetByUsers looks up by canonical pair (user1 < user2).
	GetByUsers(ctx context.Context, user1ID, user2ID uuid.UUID) (*domain.Conversation, error)
	// ListByUser resolves the other participant, the last message and the
	// caller's unread count, ordered by last activity descending.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Conversation, error)
	// ApplyNewMessage atomically sets the last-message pointer, resets the
	// sender's unread counter and increments every other member's counter.
	ApplyNewMessage(ctx context.Context, conversationID, messageID, senderID uuid.UUID, at time.Time) error
	// ResetUnread zeroes one member's unread counter.
	ResetUnread(ctx context.Context, conversationID, userID uuid.UUID) error
	UnreadCount(ctx context.Context, conversationID, userID uuid.UUID) (int, error)
}

type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error)
	// ListPage returns one page of messages not soft-deleted by viewerID, in
	// chronological order, plus the total count of visible messages. Pages are
	// counted from the newest message backwards.
	ListPage(ctx context.Context, conversationID, viewerID uuid.UUID, page, pageSize int) ([]domain.Message, int, error)
	// MarkConversationRead flips is_read on all unread messages in the
	// conversation that were not sent by readerID.
	MarkConversationRead(ctx context.Context, conversationID, readerID uuid.UUID, at time.Time) error
	// SoftDelete hides the message from userID. Idempotent.
	SoftDelete(ctx context.Context, messageID, userID uuid.UUID) error
}

type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Notification, error)
	ListByUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, page, pageSize int) ([]domain.Notification, int, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkAllRead(ctx context.Context, userID uuid.UUID, at time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteRead(ctx context.Context, userID uuid.UUID) error
	// DeleteExpired removes notifications past their expiry and returns the
	// number of rows removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

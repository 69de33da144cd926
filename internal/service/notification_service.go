package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/campussync/messaging/internal/domain"
	"github.com/campussync/messaging/internal/repository"
	"github.com/google/uuid"
)

var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrNotRecipient         = errors.New("only the notification recipient can perform this action")
	ErrInvalidNotification  = errors.New("invalid notification type")
)

// notificationTTL is how long a notification stays around before the expiry
// sweeper removes it.
const notificationTTL = 30 * 24 * time.Hour

type NotificationService struct {
	repo     repository.NotificationRepository
	notifier Notifier
}

func NewNotificationService(repo repository.NotificationRepository) *NotificationService {
	return &NotificationService{repo: repo}
}

// SetNotifier sets the real-time notifier (optional dependency).
func (s *NotificationService) SetNotifier(n Notifier) {
	s.notifier = n
}

// Create persists a notification and pushes it to the recipient's live
// connections. The push is best-effort and never fails the creation.
func (s *NotificationService) Create(ctx context.Context, userID uuid.UUID, typ domain.NotificationType, title, message string, refs domain.NotificationRefs) (*domain.Notification, error) {
	if !typ.IsValid() {
		return nil, ErrInvalidNotification
	}

	now := time.Now()
	n := &domain.Notification{
		ID:               uuid.New(),
		UserID:           userID,
		Type:             typ,
		Title:            title,
		Message:          message,
		NotificationRefs: refs,
		ExpiresAt:        now.Add(notificationTTL),
		CreatedAt:        now,
	}

	if err := s.repo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("creating notification: %w", err)
	}

	// Push only after the record is committed, so a delivered event always
	// has a backing row.
	if s.notifier != nil {
		s.notifier.NotifyUser(userID, n)
	}

	return n, nil
}

type NotificationListResponse struct {
	Notifications []domain.Notification `json:"notifications"`
	UnreadCount   int                   `json:"unread_count"`
	Page          int                   `json:"page"`
	PageSize      int                   `json:"page_size"`
	Total         int                   `json:"total"`
	HasMore       bool                  `json:"has_more"`
}

func (s *NotificationService) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, page, pageSize int) (*NotificationListResponse, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	notifications, total, err := s.repo.ListByUser(ctx, userID, unreadOnly, page, pageSize)
	if err != nil {
		return nil, err
	}
	if notifications == nil {
		notifications = []domain.Notification{}
	}

	unread, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &NotificationListResponse{
		Notifications: notifications,
		UnreadCount:   unread,
		Page:          page,
		PageSize:      pageSize,
		Total:         total,
		HasMore:       page*pageSize < total,
	}, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	n, err := s.owned(ctx, userID, id)
	if err != nil {
		return err
	}
	if n.Read {
		return nil
	}
	return s.repo.MarkRead(ctx, id, time.Now())
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID uuid.UUID) error {
	return s.repo.MarkAllRead(ctx, userID, time.Now())
}

func (s *NotificationService) Delete(ctx context.Context, userID, id uuid.UUID) error {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

// ClearRead removes every already-read notification for the user.
func (s *NotificationService) ClearRead(ctx context.Context, userID uuid.UUID) error {
	return s.repo.DeleteRead(ctx, userID)
}

// SweepExpired removes notifications past their expiry. Run periodically.
func (s *NotificationService) SweepExpired(ctx context.Context) error {
	removed, err := s.repo.DeleteExpired(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("sweeping expired notifications: %w", err)
	}
	if removed > 0 {
		log.Printf("notifications: swept %d expired", removed)
	}
	return nil
}

func (s *NotificationService) owned(ctx context.Context, userID, id uuid.UUID) (*domain.Notification, error) {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, ErrNotificationNotFound
	}
	if n.UserID != userID {
		return nil, ErrNotRecipient
	}
	return n, nil
}

// --- Producer helpers ---
//
// Producers treat notification dispatch as non-critical: every helper logs
// and swallows failures so the triggering operation's result is unaffected.

func (s *NotificationService) MessageReceived(ctx context.Context, recipientID uuid.UUID, msg *domain.Message) {
	preview := msg.Content
	if preview == "" && msg.Attachment != nil {
		preview = "Sent an attachment"
	}
	s.produce(ctx, recipientID, domain.NotificationMessage,
		"New message from "+msg.SenderDisplayName, preview,
		domain.NotificationRefs{ConversationID: &msg.ConversationID, ActorID: &msg.SenderID})
}

func (s *NotificationService) ItemMatchFound(ctx context.Context, recipientID, itemID uuid.UUID, itemTitle string) {
	s.produce(ctx, recipientID, domain.NotificationItemMatch,
		"Possible match found",
		fmt.Sprintf("A reported item looks like a match for %q", itemTitle),
		domain.NotificationRefs{ItemID: &itemID})
}

func (s *NotificationService) ItemClaimed(ctx context.Context, recipientID, itemID, claimantID uuid.UUID, itemTitle string) {
	s.produce(ctx, recipientID, domain.NotificationItemClaimed,
		"New claim on your item",
		fmt.Sprintf("Someone submitted a claim for %q", itemTitle),
		domain.NotificationRefs{ItemID: &itemID, ActorID: &claimantID})
}

func (s *NotificationService) ItemResolved(ctx context.Context, recipientID, itemID uuid.UUID, itemTitle string) {
	s.produce(ctx, recipientID, domain.NotificationItemResolved,
		"Item resolved",
		fmt.Sprintf("%q has been marked as resolved", itemTitle),
		domain.NotificationRefs{ItemID: &itemID})
}

func (s *NotificationService) BookInterest(ctx context.Context, recipientID, bookID, buyerID uuid.UUID, bookTitle string) {
	s.produce(ctx, recipientID, domain.NotificationBookInterest,
		"Interest in your listing",
		fmt.Sprintf("A buyer is interested in %q", bookTitle),
		domain.NotificationRefs{BookID: &bookID, ActorID: &buyerID})
}

func (s *NotificationService) BookSold(ctx context.Context, recipientID, bookID uuid.UUID, bookTitle string) {
	s.produce(ctx, recipientID, domain.NotificationBookSold,
		"Listing sold",
		fmt.Sprintf("%q has been marked as sold", bookTitle),
		domain.NotificationRefs{BookID: &bookID})
}

func (s *NotificationService) produce(ctx context.Context, recipientID uuid.UUID, typ domain.NotificationType, title, message string, refs domain.NotificationRefs) {
	if _, err := s.Create(ctx, recipientID, typ, title, message, refs); err != nil {
		log.Printf("WARN %s notification for %s dropped: %v", typ, recipientID, err)
	}
}

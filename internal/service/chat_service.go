package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/campussync/messaging/internal/domain"
	"github.com/campussync/messaging/internal/repository"
	"github.com/google/uuid"
)

var (
	ErrInvalidParty         = errors.New("cannot start a conversation with yourself")
	ErrUserNotFound         = errors.New("user not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNotParticipant       = errors.New("you are not a participant of this conversation")
	ErrMessageNotFound      = errors.New("message not found")
	ErrNotSender            = errors.New("only the message sender can perform this action")
	ErrEmptyMessage         = errors.New("message needs text content or an attachment")
)

// Notifier broadcasts real-time events to connected clients. All methods are
// best-effort: a recipient with no live connection simply receives nothing.
type Notifier interface {
	NotifyNewMessage(msg *domain.Message)
	NotifyMessageDeleted(userID, conversationID, messageID uuid.UUID)
	NotifyReadReceipt(conversationID, readerID uuid.UUID)
	NotifyUser(userID uuid.UUID, n *domain.Notification)
	IsOnline(userID uuid.UUID) bool
}

// Uploader pushes attachment bytes to the external image host and returns the
// hosted URL.
type Uploader interface {
	Upload(ctx context.Context, name string, data []byte) (string, error)
}

type ChatService struct {
	convRepo      repository.ConversationRepository
	messageRepo   repository.MessageRepository
	userRepo      repository.UserRepository
	uploader      Uploader
	notifier      Notifier
	notifications *NotificationService
}

func NewChatService(
	convRepo repository.ConversationRepository,
	messageRepo repository.MessageRepository,
	userRepo repository.UserRepository,
) *ChatService {
	return &ChatService{
		convRepo:    convRepo,
		messageRepo: messageRepo,
		userRepo:    userRepo,
	}
}

// SetNotifier sets the real-time notifier (optional dependency).
func (s *ChatService) SetNotifier(n Notifier) {
	s.notifier = n
}

// SetUploader sets the attachment host client (optional dependency).
func (s *ChatService) SetUploader(u Uploader) {
	s.uploader = u
}

// SetNotifications wires the notification producer used for offline
// recipients (optional dependency).
func (s *ChatService) SetNotifications(ns *NotificationService) {
	s.notifications = ns
}

// GetOrCreateConversation finds or creates the conversation between two users.
// Safe under concurrent calls from both participants: the pair lookup precedes
// the insert, and the unique constraint on the canonical pair turns the losing
// insert into a re-read of the winner's row.
func (s *ChatService) GetOrCreateConversation(ctx context.Context, userID, otherUserID uuid.UUID) (*domain.Conversation, error) {
	if otherUserID == uuid.Nil || userID == otherUserID {
		return nil, ErrInvalidParty
	}

	other, err := s.userRepo.GetByID(ctx, otherUserID)
	if err != nil {
		return nil, err
	}
	if other == nil {
		return nil, ErrUserNotFound
	}

	u1, u2 := domain.CanonicalPair(userID, otherUserID)

	conv, err := s.convRepo.GetByUsers(ctx, u1, u2)
	if err != nil {
		return nil, err
	}
	if conv != nil {
		s.fillOtherUser(conv, other)
		return conv, nil
	}

	conv = &domain.Conversation{
		ID:        uuid.New(),
		User1ID:   u1,
		User2ID:   u2,
		CreatedAt: time.Now(),
	}

	err = s.convRepo.Create(ctx, conv)
	if errors.Is(err, repository.ErrConversationExists) {
		// Lost the creation race; the other participant's row wins.
		conv, err = s.convRepo.GetByUsers(ctx, u1, u2)
		if err != nil {
			return nil, err
		}
		if conv == nil {
			return nil, ErrConversationNotFound
		}
	} else if err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}

	s.fillOtherUser(conv, other)
	return conv, nil
}

// ListConversations returns all conversations for a user, most recently
// active first, with the other participant and last message resolved.
func (s *ChatService) ListConversations(ctx context.Context, userID uuid.UUID) ([]domain.Conversation, error) {
	convs, err := s.convRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if convs == nil {
		convs = []domain.Conversation{}
	}
	return convs, nil
}

type AttachmentUpload struct {
	Name string                `json:"name"`
	Kind domain.AttachmentKind `json:"kind"`
	Data []byte                `json:"data"`
}

type SendMessageInput struct {
	Content    string            `json:"content"`
	Attachment *AttachmentUpload `json:"attachment,omitempty"`
}

// SendMessage persists a message, updates the conversation's last-message
// pointer and unread counters, and fans the message out to the conversation's
// live group. Everything after persistence is best-effort.
func (s *ChatService) SendMessage(ctx context.Context, senderID, conversationID uuid.UUID, in SendMessageInput) (*domain.Message, error) {
	conv, err := s.participantConversation(ctx, senderID, conversationID)
	if err != nil {
		return nil, err
	}

	content := strings.TrimSpace(in.Content)

	// Upload first so a host outage degrades the message to text-only
	// instead of losing it.
	attachment := s.uploadAttachment(ctx, in.Attachment)
	if content == "" && attachment == nil {
		return nil, ErrEmptyMessage
	}

	msg := &domain.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		Type:           domain.MessageTypeFor(attachment),
		Attachment:     attachment,
		CreatedAt:      time.Now(),
	}

	if err := s.messageRepo.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("creating message: %w", err)
	}

	if err := s.convRepo.ApplyNewMessage(ctx, conversationID, msg.ID, senderID, msg.CreatedAt); err != nil {
		return nil, fmt.Errorf("updating conversation: %w", err)
	}

	full, err := s.messageRepo.GetByID(ctx, msg.ID)
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.NotifyNewMessage(full)

		recipientID := conv.OtherParticipant(senderID)
		if !s.notifier.IsOnline(recipientID) && s.notifications != nil {
			s.notifications.MessageReceived(ctx, recipientID, full)
		}
	}

	return full, nil
}

type MessageListResponse struct {
	Messages []domain.Message `json:"messages"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
	Total    int              `json:"total"`
	HasMore  bool             `json:"has_more"`
}

// ListMessages returns one page of messages visible to the requester, oldest
// first. Pages count from the newest message backwards, so page 1 is the most
// recent pageSize messages.
func (s *ChatService) ListMessages(ctx context.Context, userID, conversationID uuid.UUID, page, pageSize int) (*MessageListResponse, error) {
	if _, err := s.participantConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 50
	}

	messages, total, err := s.messageRepo.ListPage(ctx, conversationID, userID, page, pageSize)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []domain.Message{}
	}

	return &MessageListResponse{
		Messages: messages,
		Page:     page,
		PageSize: pageSize,
		Total:    total,
		HasMore:  page*pageSize < total,
	}, nil
}

// MarkRead acknowledges every unread message the other participant sent and
// zeroes the requester's unread counter.
func (s *ChatService) MarkRead(ctx context.Context, userID, conversationID uuid.UUID) error {
	if _, err := s.participantConversation(ctx, userID, conversationID); err != nil {
		return err
	}

	now := time.Now()
	if err := s.messageRepo.MarkConversationRead(ctx, conversationID, userID, now); err != nil {
		return fmt.Errorf("marking messages read: %w", err)
	}
	if err := s.convRepo.ResetUnread(ctx, conversationID, userID); err != nil {
		return fmt.Errorf("resetting unread counter: %w", err)
	}

	if s.notifier != nil {
		s.notifier.NotifyReadReceipt(conversationID, userID)
	}

	return nil
}

// DeleteMessage hides the message from the sender's own view. The other
// participant keeps seeing it. Re-deleting is a no-op.
func (s *ChatService) DeleteMessage(ctx context.Context, userID, messageID uuid.UUID) error {
	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg == nil {
		return ErrMessageNotFound
	}
	if msg.SenderID != userID {
		return ErrNotSender
	}

	if err := s.messageRepo.SoftDelete(ctx, messageID, userID); err != nil {
		return err
	}

	if s.notifier != nil {
		s.notifier.NotifyMessageDeleted(userID, msg.ConversationID, messageID)
	}

	return nil
}

// SearchUsers finds verified users to start a chat with, excluding the caller.
func (s *ChatService) SearchUsers(ctx context.Context, userID uuid.UUID, query string) ([]domain.User, error) {
	users, err := s.userRepo.Search(ctx, strings.TrimSpace(query), userID, 10)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []domain.User{}
	}
	return users, nil
}

// fillOtherUser resolves the counterpart's identity on a conversation the
// caller just looked up or created.
func (s *ChatService) fillOtherUser(conv *domain.Conversation, other *domain.User) {
	conv.OtherUserID = other.ID
	conv.OtherUsername = other.Username
	conv.OtherDisplayName = other.DisplayName
}

func (s *ChatService) participantConversation(ctx context.Context, userID, conversationID uuid.UUID) (*domain.Conversation, error) {
	conv, err := s.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}
	if !conv.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return conv, nil
}

// uploadAttachment pushes the attachment to the image host. Failures degrade
// the message to text-only; the caller decides whether that leaves anything
// worth sending.
func (s *ChatService) uploadAttachment(ctx context.Context, in *AttachmentUpload) *domain.Attachment {
	if in == nil {
		return nil
	}
	if s.uploader == nil {
		log.Printf("WARN attachment dropped: no uploader configured")
		return nil
	}

	kind := in.Kind
	if !kind.IsValid() {
		kind = domain.AttachmentKindFile
	}

	url, err := s.uploader.Upload(ctx, in.Name, in.Data)
	if err != nil {
		log.Printf("WARN attachment upload failed: %v", err)
		return nil
	}

	return &domain.Attachment{URL: url, Kind: kind, Name: in.Name}
}

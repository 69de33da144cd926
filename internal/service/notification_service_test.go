package service

import (
	"context"
	"testing"
	"time"

	"github.com/campussync/messaging/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type notificationFixture struct {
	service  *NotificationService
	repo     *memNotificationRepo
	notifier *recordingNotifier
}

func newNotificationFixture() *notificationFixture {
	repo := newMemNotificationRepo()
	notifier := newRecordingNotifier()
	service := NewNotificationService(repo)
	service.SetNotifier(notifier)
	return &notificationFixture{service: service, repo: repo, notifier: notifier}
}

func TestCreateNotificationPersistsAndPushes(t *testing.T) {
	req := require.New(t)
	f := newNotificationFixture()
	userID := uuid.New()
	itemID := uuid.New()

	before := time.Now()
	n, err := f.service.Create(context.Background(), userID, domain.NotificationItemMatch,
		"Possible match found", "Check it out", domain.NotificationRefs{ItemID: &itemID})
	req.NoError(err)

	req.Equal(userID, n.UserID)
	req.False(n.Read)
	req.Equal(itemID, *n.ItemID)

	// 30-day retention window starts at creation.
	req.WithinDuration(before.Add(30*24*time.Hour), n.ExpiresAt, time.Minute)

	req.Len(f.repo.notifications, 1)
	req.Len(f.notifier.userDelivered[userID], 1)
	req.Equal(n.ID, f.notifier.userDelivered[userID][0].ID)
}

func TestCreateNotificationRejectsUnknownType(t *testing.T) {
	req := require.New(t)
	f := newNotificationFixture()

	_, err := f.service.Create(context.Background(), uuid.New(), domain.NotificationType("party_invite"),
		"t", "m", domain.NotificationRefs{})
	req.ErrorIs(err, ErrInvalidNotification)
	req.Empty(f.repo.notifications)
}

func TestMarkReadGuards(t *testing.T) {
	req := require.New(t)
	f := newNotificationFixture()
	ctx := context.Background()
	owner := uuid.New()
	other := uuid.New()

	n, err := f.service.Create(ctx, owner, domain.NotificationSystem, "t", "m", domain.NotificationRefs{})
	req.NoError(err)

	req.ErrorIs(f.service.MarkRead(ctx, owner, uuid.New()), ErrNotificationNotFound)
	req.ErrorIs(f.service.MarkRead(ctx, other, n.ID), ErrNotRecipient)

	req.NoError(f.service.MarkRead(ctx, owner, n.ID))
	stored, err := f.repo.GetByID(ctx, n.ID)
	req.NoError(err)
	req.True(stored.Read)
	req.NotNil(stored.ReadAt)

	// Marking an already-read notification again is a no-op.
	req.NoError(f.service.MarkRead(ctx, owner, n.ID))
}

func TestListNotificationsPagingAndUnread(t *testing.T) {
	req := require.New(t)
	f := newNotificationFixture()
	ctx := context.Background()
	userID := uuid.New()

	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		n, err := f.service.Create(ctx, userID, domain.NotificationSystem, "t", "m", domain.NotificationRefs{})
		req.NoError(err)
		ids = append(ids, n.ID)
	}
	// Someone else's notification never shows up in the list.
	_, err := f.service.Create(ctx, uuid.New(), domain.NotificationSystem, "t", "m", domain.NotificationRefs{})
	req.NoError(err)

	req.NoError(f.service.MarkRead(ctx, userID, ids[0]))

	resp, err := f.service.List(ctx, userID, false, 1, 2)
	req.NoError(err)
	req.Equal(5, resp.Total)
	req.Equal(4, resp.UnreadCount)
	req.True(resp.HasMore)
	req.Len(resp.Notifications, 2)
	// Newest first.
	req.Equal(ids[4], resp.Notifications[0].ID)

	unreadOnly, err := f.service.List(ctx, userID, true, 1, 10)
	req.NoError(err)
	req.Equal(4, unreadOnly.Total)
	req.False(unreadOnly.HasMore)
}

func TestMarkAllReadAndClearRead(t *testing.T) {
	req := require.New(t)
	f := newNotificationFixture()
	ctx := context.Background()
	userID := uuid.New()

	for i := 0; i < 3; i++ {
		_, err := f.service.Create(ctx, userID, domain.NotificationSystem, "t", "m", domain.NotificationRefs{})
		req.NoError(err)
	}

	req.NoError(f.service.MarkAllRead(ctx, userID))
	resp, err := f.service.List(ctx, userID, false, 1, 10)
	req.NoError(err)
	req.Equal(0, resp.UnreadCount)

	req.NoError(f.service.ClearRead(ctx, userID))
	resp, err = f.service.List(ctx, userID, false, 1, 10)
	req.NoError(err)
	req.Equal(0, resp.Total)
}

func TestDeleteNotificationGuards(t *testing.T) {
	req := require.New(t)
	f := newNotificationFixture()
	ctx := context.Background()
	owner := uuid.New()

	n, err := f.service.Create(ctx, owner, domain.NotificationSystem, "t", "m", domain.NotificationRefs{})
	req.NoError(err)

	req.ErrorIs(f.service.Delete(ctx, uuid.New(), n.ID), ErrNotRecipient)
	req.NoError(f.service.Delete(ctx, owner, n.ID))
	req.ErrorIs(f.service.Delete(ctx, owner, n.ID), ErrNotificationNotFound)
}

func TestSweepExpired(t *testing.T) {
	req := require.New(t)
	f := newNotificationFixture()
	ctx := context.Background()
	userID := uuid.New()

	fresh, err := f.service.Create(ctx, userID, domain.NotificationSystem, "fresh", "m", domain.NotificationRefs{})
	req.NoError(err)

	stale := &domain.Notification{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      domain.NotificationSystem,
		Title:     "stale",
		ExpiresAt: time.Now().Add(-time.Hour),
		CreatedAt: time.Now().Add(-31 * 24 * time.Hour),
	}
	req.NoError(f.repo.Create(ctx, stale))

	req.NoError(f.service.SweepExpired(ctx))

	resp, err := f.service.List(ctx, userID, false, 1, 10)
	req.NoError(err)
	req.Len(resp.Notifications, 1)
	req.Equal(fresh.ID, resp.Notifications[0].ID)
}

func TestProducerHelpersNeverFailCaller(t *testing.T) {
	req := require.New(t)
	f := newNotificationFixture()
	ctx := context.Background()
	recipient := uuid.New()
	itemID := uuid.New()
	bookID := uuid.New()
	actor := uuid.New()

	f.service.ItemMatchFound(ctx, recipient, itemID, "blue backpack")
	f.service.ItemClaimed(ctx, recipient, itemID, actor, "blue backpack")
	f.service.ItemResolved(ctx, recipient, itemID, "blue backpack")
	f.service.BookInterest(ctx, recipient, bookID, actor, "Intro to Algorithms")
	f.service.BookSold(ctx, recipient, bookID, "Intro to Algorithms")

	resp, err := f.service.List(ctx, recipient, false, 1, 10)
	req.NoError(err)
	req.Equal(5, resp.Total)

	types := map[domain.NotificationType]bool{}
	for _, n := range resp.Notifications {
		types[n.Type] = true
	}
	req.True(types[domain.NotificationItemMatch])
	req.True(types[domain.NotificationItemClaimed])
	req.True(types[domain.NotificationItemResolved])
	req.True(types[domain.NotificationBookInterest])
	req.True(types[domain.NotificationBookSold])
}

func TestMessageReceivedNotificationContent(t *testing.T) {
	req := require.New(t)
	f := newNotificationFixture()
	ctx := context.Background()
	recipient := uuid.New()
	convID := uuid.New()
	sender := uuid.New()

	msg := &domain.Message{
		ID:                uuid.New(),
		ConversationID:    convID,
		SenderID:          sender,
		Content:           "see you at the library",
		Type:              domain.MessageTypeText,
		SenderDisplayName: "alice",
	}
	f.service.MessageReceived(ctx, recipient, msg)

	resp, err := f.service.List(ctx, recipient, false, 1, 10)
	req.NoError(err)
	req.Len(resp.Notifications, 1)
	n := resp.Notifications[0]
	req.Equal(domain.NotificationMessage, n.Type)
	req.Equal("New message from alice", n.Title)
	req.Equal("see you at the library", n.Message)
	req.Equal(convID, *n.ConversationID)
	req.Equal(sender, *n.ActorID)

	// Attachment-only messages get a placeholder preview.
	f.service.MessageReceived(ctx, recipient, &domain.Message{
		ID:                uuid.New(),
		ConversationID:    convID,
		SenderID:          sender,
		Type:              domain.MessageTypeImage,
		Attachment:        &domain.Attachment{URL: "https://img.example/x.png", Kind: domain.AttachmentKindImage},
		SenderDisplayName: "alice",
	})
	resp, err = f.service.List(ctx, recipient, false, 1, 10)
	req.NoError(err)
	req.Equal("Sent an attachment", resp.Notifications[0].Message)
}

package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/campussync/messaging/internal/domain"
	"github.com/campussync/messaging/internal/repository"
	"github.com/google/uuid"
)

// In-memory repository fakes implementing the same contracts as the Postgres
// repositories, including the canonical-pair uniqueness backstop and the
// atomic counter semantics.

type memUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*domain.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[uuid.UUID]*domain.User)}
}

func (r *memUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := *user
	r.users[user.ID] = &u
	return nil
}

func (r *memUserRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	return r.find(func(u *domain.User) bool { return u.Email == email })
}

func (r *memUserRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	return r.find(func(u *domain.User) bool { return u.Username == username })
}

func (r *memUserRepo) Search(_ context.Context, query string, excludeID uuid.UUID, limit int) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q := strings.ToLower(query)
	var out []domain.User
	for _, u := range r.users {
		if u.ID == excludeID || !u.IsVerified {
			continue
		}
		if strings.Contains(strings.ToLower(u.Username), q) ||
			strings.Contains(strings.ToLower(u.DisplayName), q) {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memUserRepo) find(match func(*domain.User) bool) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

type memConversationRepo struct {
	mu     sync.Mutex
	convs  map[uuid.UUID]*domain.Conversation
	unread map[uuid.UUID]map[uuid.UUID]int
}

func newMemConversationRepo() *memConversationRepo {
	return &memConversationRepo{
		convs:  make(map[uuid.UUID]*domain.Conversation),
		unread: make(map[uuid.UUID]map[uuid.UUID]int),
	}
}

func (r *memConversationRepo) Create(_ context.Context, conv *domain.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.convs {
		if c.User1ID == conv.User1ID && c.User2ID == conv.User2ID {
			return repository.ErrConversationExists
		}
	}
	cp := *conv
	r.convs[conv.ID] = &cp
	r.unread[conv.ID] = map[uuid.UUID]int{conv.User1ID: 0, conv.User2ID: 0}
	return nil
}

func (r *memConversationRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.convs[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (r *memConversationRepo) GetByUsers(_ context.Context, user1ID, user2ID uuid.UUID) (*domain.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.convs {
		if c.User1ID == user1ID && c.User2ID == user2ID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memConversationRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]domain.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Conversation
	for _, c := range r.convs {
		if !c.HasParticipant(userID) {
			continue
		}
		cp := *c
		cp.OtherUserID = c.OtherParticipant(userID)
		cp.UnreadCount = r.unread[c.ID][userID]
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].LastMessageAt, out[j].LastMessageAt
		switch {
		case ti == nil:
			return false
		case tj == nil:
			return true
		default:
			return ti.After(*tj)
		}
	})
	return out, nil
}

func (r *memConversationRepo) ApplyNewMessage(_ context.Context, conversationID, messageID, senderID uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.convs[conversationID]
	c.LastMessageID = &messageID
	t := at
	c.LastMessageAt = &t
	for userID := range r.unread[conversationID] {
		if userID == senderID {
			r.unread[conversationID][userID] = 0
		} else {
			r.unread[conversationID][userID]++
		}
	}
	return nil
}

func (r *memConversationRepo) ResetUnread(_ context.Context, conversationID, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if counts, ok := r.unread[conversationID]; ok {
		counts[userID] = 0
	}
	return nil
}

func (r *memConversationRepo) UnreadCount(_ context.Context, conversationID, userID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unread[conversationID][userID], nil
}

type memMessageRepo struct {
	mu       sync.Mutex
	users    *memUserRepo
	messages []*domain.Message
}

func newMemMessageRepo(users *memUserRepo) *memMessageRepo {
	return &memMessageRepo{users: users}
}

func (r *memMessageRepo) Create(_ context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *msg
	r.messages = append(r.messages, &cp)
	return nil
}

func (r *memMessageRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.ID == id {
			cp := *m
			r.resolveSender(&cp)
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memMessageRepo) ListPage(_ context.Context, conversationID, viewerID uuid.UUID, page, pageSize int) ([]domain.Message, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	// insertion order doubles as chronological order
	var visible []domain.Message
	for _, m := range r.messages {
		if m.ConversationID != conversationID || m.DeletedFor(viewerID) {
			continue
		}
		cp := *m
		r.resolveSender(&cp)
		visible = append(visible, cp)
	}
	total := len(visible)

	// Page from the newest backwards.
	end := total - (page-1)*pageSize
	if end < 0 {
		end = 0
	}
	start := end - pageSize
	if start < 0 {
		start = 0
	}
	return visible[start:end], total, nil
}

func (r *memMessageRepo) MarkConversationRead(_ context.Context, conversationID, readerID uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.ConversationID == conversationID && m.SenderID != readerID && !m.IsRead {
			m.IsRead = true
			t := at
			m.ReadAt = &t
		}
	}
	return nil
}

func (r *memMessageRepo) SoftDelete(_ context.Context, messageID, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.ID == messageID && !m.DeletedFor(userID) {
			m.DeletedBy = append(m.DeletedBy, userID)
		}
	}
	return nil
}

func (r *memMessageRepo) resolveSender(m *domain.Message) {
	if u, ok := r.users.users[m.SenderID]; ok {
		m.SenderUsername = u.Username
		m.SenderDisplayName = u.DisplayName
	}
}

type memNotificationRepo struct {
	mu            sync.Mutex
	notifications []*domain.Notification
}

func newMemNotificationRepo() *memNotificationRepo {
	return &memNotificationRepo{}
}

func (r *memNotificationRepo) Create(_ context.Context, n *domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *n
	r.notifications = append(r.notifications, &cp)
	return nil
}

func (r *memNotificationRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.notifications {
		if n.ID == id {
			cp := *n
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memNotificationRepo) ListByUser(_ context.Context, userID uuid.UUID, unreadOnly bool, page, pageSize int) ([]domain.Notification, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []domain.Notification
	// newest first
	for i := len(r.notifications) - 1; i >= 0; i-- {
		n := r.notifications[i]
		if n.UserID != userID || (unreadOnly && n.Read) {
			continue
		}
		matched = append(matched, *n)
	}
	total := len(matched)

	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (r *memNotificationRepo) CountUnread(_ context.Context, userID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, n := range r.notifications {
		if n.UserID == userID && !n.Read {
			count++
		}
	}
	return count, nil
}

func (r *memNotificationRepo) MarkRead(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.notifications {
		if n.ID == id {
			n.Read = true
			t := at
			n.ReadAt = &t
		}
	}
	return nil
}

func (r *memNotificationRepo) MarkAllRead(_ context.Context, userID uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.notifications {
		if n.UserID == userID && !n.Read {
			n.Read = true
			t := at
			n.ReadAt = &t
		}
	}
	return nil
}

func (r *memNotificationRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remove(func(n *domain.Notification) bool { return n.ID == id })
	return nil
}

func (r *memNotificationRepo) DeleteRead(_ context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remove(func(n *domain.Notification) bool { return n.UserID == userID && n.Read })
	return nil
}

func (r *memNotificationRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(r.remove(func(n *domain.Notification) bool { return n.ExpiresAt.Before(now) })), nil
}

func (r *memNotificationRepo) remove(match func(*domain.Notification) bool) int {
	kept := r.notifications[:0]
	removed := 0
	for _, n := range r.notifications {
		if match(n) {
			removed++
			continue
		}
		kept = append(kept, n)
	}
	r.notifications = kept
	return removed
}

// recordingNotifier captures fan-out calls for assertions.
type recordingNotifier struct {
	mu            sync.Mutex
	online        map[uuid.UUID]bool
	newMessages   []*domain.Message
	deleted       []uuid.UUID
	readReceipts  []uuid.UUID
	userDelivered map[uuid.UUID][]*domain.Notification
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{
		online:        make(map[uuid.UUID]bool),
		userDelivered: make(map[uuid.UUID][]*domain.Notification),
	}
}

func (n *recordingNotifier) NotifyNewMessage(msg *domain.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.newMessages = append(n.newMessages, msg)
}

func (n *recordingNotifier) NotifyMessageDeleted(_, _, messageID uuid.UUID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deleted = append(n.deleted, messageID)
}

func (n *recordingNotifier) NotifyReadReceipt(_, readerID uuid.UUID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.readReceipts = append(n.readReceipts, readerID)
}

func (n *recordingNotifier) NotifyUser(userID uuid.UUID, notification *domain.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.userDelivered[userID] = append(n.userDelivered[userID], notification)
}

func (n *recordingNotifier) IsOnline(userID uuid.UUID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.online[userID]
}

func (n *recordingNotifier) setOnline(userID uuid.UUID, online bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.online[userID] = online
}

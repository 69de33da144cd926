package ws

import (
	"log"

	"github.com/campussync/messaging/internal/domain"
	"github.com/google/uuid"
)

// HubNotifier implements service.Notifier using the WebSocket Hub.
type HubNotifier struct {
	hub *Hub
}

func NewHubNotifier(hub *Hub) *HubNotifier {
	return &HubNotifier{hub: hub}
}

func (n *HubNotifier) NotifyNewMessage(msg *domain.Message) {
	evt, err := NewEvent(EventTypeMessageNew, &msg.ConversationID, MessagePayload{Message: *msg})
	if err != nil {
		log.Printf("ws notifier: marshal error: %v", err)
		return
	}
	n.hub.BroadcastToConversation(msg.ConversationID, evt, nil)
}

// NotifyMessageDeleted goes to the deleter's own connections only: a soft
// delete changes nobody else's view.
func (n *HubNotifier) NotifyMessageDeleted(userID, conversationID, messageID uuid.UUID) {
	evt, err := NewEvent(EventTypeMessageDeleted, &conversationID, MessageDeletedPayload{
		ID:             messageID,
		ConversationID: conversationID,
	})
	if err != nil {
		log.Printf("ws notifier: marshal error: %v", err)
		return
	}
	n.hub.BroadcastToUser(userID, evt)
}

func (n *HubNotifier) NotifyReadReceipt(conversationID, readerID uuid.UUID) {
	evt, err := NewEvent(EventTypeReadReceipt, &conversationID, ReadReceiptPayload{
		ConversationID: conversationID,
		ReaderID:       readerID,
	})
	if err != nil {
		log.Printf("ws notifier: marshal error: %v", err)
		return
	}
	n.hub.BroadcastToConversation(conversationID, evt, nil)
}

func (n *HubNotifier) NotifyUser(userID uuid.UUID, notification *domain.Notification) {
	evt, err := NewEvent(EventTypeNotification, nil, NotificationPayload{Notification: *notification})
	if err != nil {
		log.Printf("ws notifier: marshal error: %v", err)
		return
	}
	n.hub.BroadcastToUser(userID, evt)
}

func (n *HubNotifier) IsOnline(userID uuid.UUID) bool {
	return n.hub.IsOnline(userID)
}

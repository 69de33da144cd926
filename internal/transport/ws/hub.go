package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"
)

// Hub manages all active WebSocket connections and routes events. A user may
// hold several connections at once (multiple tabs/devices); presence is
// announced when the first connection registers and withdrawn only when the
// last one goes away.
type Hub struct {
	// mu guards clients. The Run loop mutates it; IsOnline reads it from
	// request handlers.
	mu      sync.RWMutex
	clients map[uuid.UUID]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan *broadcastMsg

	// stopped is closed when Run returns, releasing clients that are still
	// trying to register or detach during shutdown.
	stopped chan struct{}
}

// broadcastMsg targets either one user's connections or a conversation group.
type broadcastMsg struct {
	conversationID *uuid.UUID
	userID         *uuid.UUID
	excludeID      *uuid.UUID // optional: skip this user (e.g. typing sender)
	data           []byte
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *broadcastMsg, 256),
		stopped:    make(chan struct{}),
	}
}

// Run is the Hub's single dispatch point: events enqueued through the
// Broadcast* methods reach every member connection in enqueue order.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case client := <-h.register:
			h.mu.Lock()
			conns := h.clients[client.userID]
			if conns == nil {
				conns = make(map[*Client]struct{})
				h.clients[client.userID] = conns
			}
			conns[client] = struct{}{}
			first := len(conns) == 1
			log.Printf("ws hub: user %s connected (%d conns)", client.userID, len(conns))
			if first {
				h.presenceLocked(client.userID, "online")
			}
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.userID][client]; ok {
				h.removeLocked(client)
				log.Printf("ws hub: user %s disconnected", client.userID)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.dispatch(msg)
		}
	}
}

// BroadcastToConversation sends an event to every connection currently in the
// conversation's group.
func (h *Hub) BroadcastToConversation(conversationID uuid.UUID, event *Event, excludeUserID *uuid.UUID) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("ws hub: marshal error: %v", err)
		return
	}
	h.broadcast <- &broadcastMsg{
		conversationID: &conversationID,
		excludeID:      excludeUserID,
		data:           data,
	}
}

// BroadcastToUser sends an event to every live connection of one user. A user
// with no connections receives nothing; there is no queuing.
func (h *Hub) BroadcastToUser(userID uuid.UUID, event *Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("ws hub: marshal error: %v", err)
		return
	}
	h.broadcast <- &broadcastMsg{
		userID: &userID,
		data:   data,
	}
}

// IsOnline reports whether the user has at least one live connection.
func (h *Hub) IsOnline(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// HandleTyping relays a typing start/stop to the conversation group,
// excluding the typist. Typing state is never persisted.
func (h *Hub) HandleTyping(sender *Client, conversationID uuid.UUID, displayName string, typing bool) {
	evt, err := NewEvent(EventTypeTyping, &conversationID, TypingPayload{
		UserID:      sender.userID,
		DisplayName: displayName,
		Typing:      typing,
	})
	if err != nil {
		return
	}
	h.BroadcastToConversation(conversationID, evt, &sender.userID)
}

func (h *Hub) dispatch(msg *broadcastMsg) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if msg.userID != nil {
		for client := range h.clients[*msg.userID] {
			h.deliverLocked(client, msg.data)
		}
		return
	}

	for _, conns := range h.clients {
		for client := range conns {
			if msg.excludeID != nil && client.userID == *msg.excludeID {
				continue
			}
			if msg.conversationID != nil && !client.InConversation(*msg.conversationID) {
				continue
			}
			h.deliverLocked(client, msg.data)
		}
	}
}

// deliverLocked pushes data to one connection, dropping the connection if its
// send buffer is full. Caller holds h.mu.
func (h *Hub) deliverLocked(client *Client, data []byte) {
	select {
	case client.send <- data:
	default:
		h.removeLocked(client)
	}
}

// drop hands a connection back for unregistration. During shutdown the Run
// loop is gone, so detaching clients must not block on the channel.
func (h *Hub) drop(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.stopped:
	}
}

// removeLocked takes a connection out of its user group and announces offline
// once the group is empty. Caller holds h.mu. Safe to call twice for the same
// connection. The send channel is never closed: the read loop may still be
// handling an event for this connection, and a send on a closed channel would
// take the whole server down. Closing done stops the write pump instead.
func (h *Hub) removeLocked(client *Client) {
	conns, ok := h.clients[client.userID]
	if !ok {
		return
	}
	if _, ok := conns[client]; !ok {
		return
	}
	delete(conns, client)
	close(client.done)
	if len(conns) == 0 {
		delete(h.clients, client.userID)
		h.presenceLocked(client.userID, "offline")
	}
}

// presenceLocked announces online/offline to every other connected user.
// Caller holds h.mu. Presence bypasses the broadcast queue so that it cannot
// deadlock the Run loop against itself.
func (h *Hub) presenceLocked(userID uuid.UUID, status string) {
	evt, err := NewEvent(EventTypePresence, nil, PresencePayload{
		UserID: userID,
		Status: status,
	})
	if err != nil {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	for uid, conns := range h.clients {
		if uid == userID {
			continue
		}
		for client := range conns {
			select {
			case client.send <- data:
			default:
			}
		}
	}
}

package hub

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/nebulo-im/nebulo/pkg/log"
)

// delivery is one fan-out unit processed by the Run loop. Every
// delivery for a room passes through the same loop, so all subscribers
// observe room messages in the same order.
type delivery struct {
	roomID  string   // non-empty: deliver to the room's subscribers
	userIDs []string // non-empty: deliver to each user's connections
	except  string   // connection id to skip, if any
	payload []byte
}

// Hub tracks live WebSocket connections, their room subscriptions, and
// per-user connection counts. A user is online while at least one of
// their connections is registered.
type Hub struct {
	mu        sync.RWMutex
	clients   map[*Client]struct{}
	userConns map[string]map[*Client]struct{}
	rooms     map[string]map[*Client]struct{}

	deliveries chan delivery
	logger     zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		userConns:  make(map[string]map[*Client]struct{}),
		rooms:      make(map[string]map[*Client]struct{}),
		deliveries: make(chan delivery, 256),
		logger:     logger,
	}
}

// Run drains the delivery queue until ctx is cancelled. It must run in
// exactly one goroutine.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case d := <-h.deliveries:
			h.deliver(d)
		}
	}
}

func (h *Hub) deliver(d delivery) {
	h.mu.RLock()
	var targets []*Client
	if d.roomID != "" {
		for c := range h.rooms[d.roomID] {
			if c.ID != d.except {
				targets = append(targets, c)
			}
		}
	} else {
		for _, userID := range d.userIDs {
			for c := range h.userConns[userID] {
				if c.ID != d.except {
					targets = append(targets, c)
				}
			}
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.enqueue(d.payload) {
			h.logger.Warn().
				Str(log.FieldUserID, c.UserID).
				Msg("dropping slow connection")
			h.Unregister(c)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.closeSend()
	}
	h.clients = make(map[*Client]struct{})
	h.userConns = make(map[string]map[*Client]struct{})
	h.rooms = make(map[string]map[*Client]struct{})
}

// Register adds an authenticated connection. It reports whether this
// is the user's first live connection.
func (h *Hub) Register(c *Client) (first bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c] = struct{}{}
	conns := h.userConns[c.UserID]
	if conns == nil {
		conns = make(map[*Client]struct{})
		h.userConns[c.UserID] = conns
	}
	first = len(conns) == 0
	conns[c] = struct{}{}
	return first
}

// Unregister removes a connection and its room subscriptions. It
// reports whether the user has no remaining connections.
func (h *Hub) Unregister(c *Client) (last bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return false
	}
	delete(h.clients, c)
	c.closeSend()

	for roomID := range c.rooms {
		if members, ok := h.rooms[roomID]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}

	if conns, ok := h.userConns[c.UserID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.userConns, c.UserID)
			return true
		}
	}
	return false
}

// JoinRoom subscribes a connection to a room's deliveries. Joining a
// room the connection already subscribes to is a no-op.
func (h *Hub) JoinRoom(c *Client, roomID string) (alreadyJoined bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := c.rooms[roomID]; ok {
		return true
	}
	members := h.rooms[roomID]
	if members == nil {
		members = make(map[*Client]struct{})
		h.rooms[roomID] = members
	}
	members[c] = struct{}{}
	c.rooms[roomID] = struct{}{}
	return false
}

// LeaveRoom unsubscribes a connection from a room.
func (h *Hub) LeaveRoom(c *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(c.rooms, roomID)
	if members, ok := h.rooms[roomID]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// UnsubscribeUser removes every connection of a user from a room.
// Used when the user's membership ends while they are connected.
func (h *Hub) UnsubscribeUser(userID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[roomID]
	if !ok {
		return
	}
	for c := range h.userConns[userID] {
		delete(c.rooms, roomID)
		delete(members, c)
	}
	if len(members) == 0 {
		delete(h.rooms, roomID)
	}
}

// BroadcastToRoom queues an event for every subscriber of a room.
func (h *Hub) BroadcastToRoom(roomID string, event interface{}) {
	h.broadcastRoom(roomID, "", event)
}

// BroadcastToRoomExcept queues an event for every subscriber of a room
// except one connection, typically the originator.
func (h *Hub) BroadcastToRoomExcept(roomID, exceptClientID string, event interface{}) {
	h.broadcastRoom(roomID, exceptClientID, event)
}

func (h *Hub) broadcastRoom(roomID, except string, event interface{}) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to marshal event")
		return
	}
	h.deliveries <- delivery{roomID: roomID, except: except, payload: payload}
}

// SendToUsers queues an event for every connection of the given users.
func (h *Hub) SendToUsers(userIDs []string, event interface{}) {
	if len(userIDs) == 0 {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to marshal event")
		return
	}
	h.deliveries <- delivery{userIDs: userIDs, payload: payload}
}

// SendToUser queues an event for every connection of one user.
func (h *Hub) SendToUser(userID string, event interface{}) {
	h.SendToUsers([]string{userID}, event)
}

// IsOnline reports whether the user has at least one live connection.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userConns[userID]) > 0
}

// ConnectionCount returns the user's live connection count.
func (h *Hub) ConnectionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userConns[userID])
}

// OnlineUserIDs returns the ids of all users with a live connection.
func (h *Hub) OnlineUserIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.userConns))
	for id := range h.userConns {
		ids = append(ids, id)
	}
	return ids
}

// RoomSubscribers returns the user ids currently subscribed to a room.
func (h *Hub) RoomSubscribers(roomID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[string]struct{})
	var ids []string
	for c := range h.rooms[roomID] {
		if _, ok := seen[c.UserID]; !ok {
			seen[c.UserID] = struct{}{}
			ids = append(ids, c.UserID)
		}
	}
	return ids
}

package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"vixogram/internal/observability"

	"github.com/gofiber/websocket/v2"
)

// RoomHub manages WebSocket connections for chat rooms. Unlike Hub (which
// is user-centric), RoomHub is room-centric: a client joins exactly one
// room for its lifetime, and fan-out runs over room:{group_name} groups.
type RoomHub struct {
	mu sync.RWMutex

	// Map: group_name -> set of clients subscribed to the room
	rooms map[string]map[*Client]struct{}

	// Map: userID -> set of active Clients (multi-device, multi-room)
	userConns map[uint]map[*Client]struct{}

	totalConns int
}

// Name returns a human-readable identifier for this hub.
func (h *RoomHub) Name() string { return "room hub" }

// NewRoomHub creates a new RoomHub instance
func NewRoomHub() *RoomHub {
	return &RoomHub{
		rooms:     make(map[string]map[*Client]struct{}),
		userConns: make(map[uint]map[*Client]struct{}),
	}
}

// Register subscribes a user's websocket connection to a room. Returns the
// Client or an error when connection limits are exceeded.
func (h *RoomHub) Register(room string, userID uint, username string, stealth bool, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()

	if h.totalConns >= maxTotalConns {
		h.mu.Unlock()
		return nil, fmt.Errorf("server connection limit reached")
	}

	if h.userConns[userID] == nil {
		h.userConns[userID] = make(map[*Client]struct{})
	}
	if len(h.userConns[userID]) >= maxConnsPerUser {
		h.mu.Unlock()
		return nil, fmt.Errorf("user connection limit reached")
	}

	client := NewClient(h, conn, userID)
	client.Username = username
	client.Stealth = stealth
	client.Room = room
	h.attachLocked(room, client)
	h.mu.Unlock()

	observability.WebSocketConnectionsTotal.Inc()
	observability.WebSocketRoomConnections.WithLabelValues(room).Inc()

	h.BroadcastOnlineCount(room)
	return client, nil
}

func (h *RoomHub) attachLocked(room string, client *Client) {
	if h.userConns[client.UserID] == nil {
		h.userConns[client.UserID] = make(map[*Client]struct{})
	}
	h.userConns[client.UserID][client] = struct{}{}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]struct{})
	}
	h.rooms[room][client] = struct{}{}
	h.totalConns++
}

// attach wires a pre-built client into the hub. Used by tests that have no
// real websocket connection.
func (h *RoomHub) attach(room string, client *Client) {
	client.Hub = h
	client.Room = room
	h.mu.Lock()
	h.attachLocked(room, client)
	h.mu.Unlock()
}

// UnregisterClient removes a client from its room and drops presence.
func (h *RoomHub) UnregisterClient(client *Client) {
	room := client.Room
	if room == "" {
		return
	}

	h.mu.Lock()
	removed := false
	if clients, ok := h.rooms[room]; ok {
		if _, exists := clients[client]; exists {
			delete(clients, client)
			h.totalConns--
			removed = true
		}
		if len(clients) == 0 {
			delete(h.rooms, room)
		}
	}
	if clients, ok := h.userConns[client.UserID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.userConns, client.UserID)
		}
	}
	h.mu.Unlock()

	if !removed {
		return
	}
	observability.WebSocketRoomConnections.WithLabelValues(room).Dec()
	h.BroadcastOnlineCount(room)
}

// BroadcastToRoom sends an event to every client in the room, skipping the
// sender's own connections when the event carries SkipUserID.
func (h *RoomHub) BroadcastToRoom(room string, event RoomEvent) {
	event.Room = room
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("RoomHub: Failed to marshal event: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.rooms[room] {
		if event.SkipUserID != 0 && client.UserID == event.SkipUserID {
			continue
		}
		client.TrySend(data)
	}
}

// OnlineCount returns the number of distinct non-stealth users in the room.
func (h *RoomHub) OnlineCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[uint]struct{})
	for client := range h.rooms[room] {
		if client.Stealth {
			continue
		}
		seen[client.UserID] = struct{}{}
	}
	return len(seen)
}

// OnlineUserIDs returns the distinct users present in the room. Stealth
// users are excluded; callers showing a user their own presence add it back.
func (h *RoomHub) OnlineUserIDs(room string) []uint {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[uint]struct{})
	ids := make([]uint, 0, len(h.rooms[room]))
	for client := range h.rooms[room] {
		if client.Stealth {
			continue
		}
		if _, ok := seen[client.UserID]; ok {
			continue
		}
		seen[client.UserID] = struct{}{}
		ids = append(ids, client.UserID)
	}
	return ids
}

// IsUserInRoom reports whether the user has a live connection to the room.
func (h *RoomHub) IsUserInRoom(room string, userID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.rooms[room] {
		if client.UserID == userID {
			return true
		}
	}
	return false
}

// IsUserOnline reports whether the user has any live room connection.
func (h *RoomHub) IsUserOnline(userID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients, ok := h.userConns[userID]
	return ok && len(clients) > 0
}

// BroadcastOnlineCount pushes a fresh presence count to the room.
func (h *RoomHub) BroadcastOnlineCount(room string) {
	h.BroadcastToRoom(room, RoomEvent{
		Type:    EventOnlineCount,
		Payload: OnlineCountPayload{Count: h.OnlineCount(room)},
	})
}

// BroadcastTyping relays a typing indicator to everyone else in the room.
func (h *RoomHub) BroadcastTyping(room string, authorID uint, username string, isTyping bool) {
	h.BroadcastToRoom(room, RoomEvent{
		Type:       EventTyping,
		SkipUserID: authorID,
		Payload:    TypingPayload{AuthorID: authorID, Username: username, IsTyping: isTyping},
	})
}

// StartWiring connects the RoomHub to Redis pub/sub so events published by
// other instances reach this instance's sessions.
func (h *RoomHub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartRoomSubscriber(ctx, func(channel, payload string) {
		room, ok := strings.CutPrefix(channel, roomChannelPrefix)
		if !ok {
			log.Printf("RoomHub: invalid channel: %s", channel)
			return
		}
		var event RoomEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			log.Printf("RoomHub: bad payload on %s: %v", channel, err)
			return
		}
		h.BroadcastToRoom(room, event)
	})
}

// Shutdown gracefully closes all websocket connections
func (h *RoomHub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.rooms {
		for client := range clients {
			if client.Conn == nil {
				continue
			}
			if err := client.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down")); err != nil {
				log.Printf("failed to write close message for user %d: %v", client.UserID, err)
			}
			if err := client.Conn.Close(); err != nil {
				log.Printf("failed to close websocket for user %d: %v", client.UserID, err)
			}
		}
	}

	h.rooms = make(map[string]map[*Client]struct{})
	h.userConns = make(map[uint]map[*Client]struct{})
	h.totalConns = 0
	return nil
}

package notifications

import (
	"context"
	"encoding/json"
	"log"
)

// Fabric is the single publish surface for realtime events. With Redis
// configured, events go through pub/sub and come back to every instance's
// hubs (this one included) via the subscriber wiring; without Redis, events
// are delivered straight to the local hubs. Callers never see the
// difference.
type Fabric struct {
	rooms    *RoomHub
	users    *Hub
	notifier *Notifier
}

func NewFabric(rooms *RoomHub, users *Hub, notifier *Notifier) *Fabric {
	return &Fabric{rooms: rooms, users: users, notifier: notifier}
}

// Rooms exposes the room hub for websocket registration and presence reads.
func (f *Fabric) Rooms() *RoomHub { return f.rooms }

// Users exposes the user-notify hub.
func (f *Fabric) Users() *Hub { return f.users }

// PublishRoom fans an event out to every session in room:{group_name}.
func (f *Fabric) PublishRoom(ctx context.Context, room string, event RoomEvent) {
	if f.notifier.Distributed() {
		if err := f.notifier.PublishRoom(ctx, room, event); err == nil {
			return
		}
		log.Printf("fabric: room publish failed, falling back to local delivery")
	}
	f.rooms.BroadcastToRoom(room, event)
}

// PublishUser delivers an event to every session on notify:{user_id}.
func (f *Fabric) PublishUser(ctx context.Context, userID uint, event UserEvent) {
	if f.notifier.Distributed() {
		if err := f.notifier.PublishUser(ctx, userID, event); err == nil {
			return
		}
		log.Printf("fabric: user publish failed, falling back to local delivery")
	}
	f.users.Send(userID, event)
}

// PublishAll broadcasts a payload to every connected user.
func (f *Fabric) PublishAll(ctx context.Context, event UserEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("fabric: marshal broadcast: %v", err)
		return
	}
	if f.notifier.Distributed() {
		if err := f.notifier.PublishBroadcast(ctx, string(data)); err == nil {
			return
		}
	}
	f.users.BroadcastAll(string(data))
}

// IsUserOnline reports whether the user has any live session on either hub
// or, with Redis, on any instance.
func (f *Fabric) IsUserOnline(userID uint) bool {
	return f.users.IsOnline(userID) || f.rooms.IsUserOnline(userID)
}

// IsUserInRoom reports local room presence for this instance.
func (f *Fabric) IsUserInRoom(room string, userID uint) bool {
	return f.rooms.IsUserInRoom(room, userID)
}

// StartWiring attaches both hubs to the pub/sub bridge.
func (f *Fabric) StartWiring(ctx context.Context) error {
	if err := f.rooms.StartWiring(ctx, f.notifier); err != nil {
		return err
	}
	return f.users.StartWiring(ctx, f.notifier)
}

// Shutdown closes all sessions on both hubs.
func (f *Fabric) Shutdown(ctx context.Context) error {
	if err := f.rooms.Shutdown(ctx); err != nil {
		return err
	}
	return f.users.Shutdown(ctx)
}

package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
)

const (
	roomChannelPrefix   = "room:"
	notifyChannelPrefix = "notify:"
	broadcastChannel    = "notify:broadcast"
)

// Notifier publishes fabric events into Redis channels so every instance's
// hubs see them. A nil Redis client degrades to in-process delivery: Publish
// calls become no-ops and callers fall back to the local hub.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// Distributed reports whether cross-instance delivery is available.
func (n *Notifier) Distributed() bool { return n != nil && n.rdb != nil }

// PublishRoom sends a room event to room:{group_name}.
func (n *Notifier) PublishRoom(ctx context.Context, room string, event RoomEvent) error {
	if n.rdb == nil {
		return nil
	}
	event.Room = room
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal room event: %w", err)
	}
	return n.rdb.Publish(ctx, RoomChannel(room), string(payload)).Err()
}

// PublishUser sends a user event to notify:{user_id}.
func (n *Notifier) PublishUser(ctx context.Context, userID uint, event UserEvent) error {
	if n.rdb == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal user event: %w", err)
	}
	return n.rdb.Publish(ctx, UserChannel(userID), string(payload)).Err()
}

// PublishBroadcast sends a payload to every connected user on every instance.
func (n *Notifier) PublishBroadcast(ctx context.Context, payload string) error {
	if n.rdb == nil {
		return nil
	}
	return n.rdb.Publish(ctx, broadcastChannel, payload).Err()
}

// StartRoomSubscriber subscribes to room:* and forwards each message.
func (n *Notifier) StartRoomSubscriber(
	ctx context.Context, onMessage func(channel string, payload string),
) error {
	return n.subscribe(ctx, "room subscriber", onMessage, roomChannelPrefix+"*")
}

// StartNotifySubscriber subscribes to notify:* and forwards each message.
func (n *Notifier) StartNotifySubscriber(
	ctx context.Context, onMessage func(channel string, payload string),
) error {
	return n.subscribe(ctx, "notify subscriber", onMessage, notifyChannelPrefix+"*")
}

// subscribe runs a pattern subscription in the background. A subscription
// whose message channel closes (Redis restart, dropped connection) is
// re-established with exponential backoff instead of silently stranding the
// instance without cross-node events.
func (n *Notifier) subscribe(
	ctx context.Context, name string, onMessage func(channel string, payload string), patterns ...string,
) error {
	if n.rdb == nil {
		return nil
	}

	go func() {
		for ctx.Err() == nil {
			n.pump(ctx, name, onMessage, patterns)
			if ctx.Err() != nil {
				return
			}
			log.Printf("%s: subscription lost, reconnecting", name)
			backoff := retry.WithCappedDuration(30*time.Second, retry.NewExponential(time.Second))
			err := retry.Do(ctx, backoff, func(ctx context.Context) error {
				if err := n.rdb.Ping(ctx).Err(); err != nil {
					return retry.RetryableError(err)
				}
				return nil
			})
			if err != nil {
				return
			}
		}
	}()

	return nil
}

// pump drains one subscription until the context ends or the message channel
// closes underneath it.
func (n *Notifier) pump(
	ctx context.Context, name string, onMessage func(channel string, payload string), patterns []string,
) {
	sub := n.rdb.PSubscribe(ctx, patterns...)
	defer func() { _ = sub.Close() }()
	ch := sub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.Printf("PANIC in %s: %v\n%s", name, r, debug.Stack())
					}
				}()
				onMessage(msg.Channel, msg.Payload)
			}()
		}
	}
}

// RoomChannel derives the Redis channel name for a room.
func RoomChannel(room string) string {
	return roomChannelPrefix + room
}

// UserChannel derives the Redis channel name for a user.
func UserChannel(userID uint) string {
	return notifyChannelPrefix + strconv.FormatUint(uint64(userID), 10)
}

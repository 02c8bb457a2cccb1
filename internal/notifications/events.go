// Package notifications implements the broadcast fabric: per-room channel
// groups, per-user notify channels, presence tracking, and the Redis
// pub/sub bridge that makes fan-out work across instances.
package notifications

// Room event types delivered to room:{group_name} subscribers.
const (
	EventMessageCreated   = "message_created"
	EventMessageUpdated   = "message_updated"
	EventMessageDeleted   = "message_deleted"
	EventReactionsChanged = "reactions_changed"
	EventTyping           = "typing"
	EventOnlineCount      = "online_count"
	EventCallInvite       = "call_invite"
	EventCallPresence     = "call_presence"
	EventCallControl      = "call_control"
)

// User event types delivered to notify:{user_id} subscribers.
const (
	EventMention         = "mention"
	EventReply           = "reply"
	EventFollow          = "follow"
	EventSupport         = "support"
	EventSystem          = "system"
	EventChatBlockStatus = "chat_block_status"
)

// RoomEvent is the envelope for everything broadcast to a room group.
// SkipUserID carries the skip_sender contract across instances: the author
// already has the message from the HTTP response.
type RoomEvent struct {
	Type       string      `json:"type"`
	Room       string      `json:"room"`
	SkipUserID uint        `json:"skip_user_id,omitempty"`
	Payload    interface{} `json:"payload,omitempty"`
}

// UserEvent is the envelope for per-user notify channel deliveries.
type UserEvent struct {
	Type    string      `json:"type"`
	FromID  uint        `json:"from_id,omitempty"`
	From    string      `json:"from,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// TypingPayload is broadcast on keystroke start/stop.
type TypingPayload struct {
	AuthorID uint   `json:"author_id"`
	Username string `json:"username"`
	IsTyping bool   `json:"is_typing"`
}

// OnlineCountPayload carries the room's current presence count.
type OnlineCountPayload struct {
	Count int `json:"n"`
}

// MessageRefPayload references a message by id for created/updated/deleted
// and reaction events.
type MessageRefPayload struct {
	MessageID uint `json:"message_id"`
}

// CallInvitePayload is delivered on the room channel and every member's
// notify channel when a call invite goes out.
type CallInvitePayload struct {
	CallType     string `json:"call_type"`
	FromUsername string `json:"from_username"`
	CallURL      string `json:"call_url,omitempty"`
	CallEventURL string `json:"call_event_url,omitempty"`
}

// CallControlPayload carries start/end/decline control events.
type CallControlPayload struct {
	Action       string `json:"action"`
	CallType     string `json:"call_type"`
	FromUsername string `json:"from_username"`
}

// CallPresencePayload announces a participant joining or leaving a call.
type CallPresencePayload struct {
	Action   string `json:"action"`
	UserID   uint   `json:"uid"`
	Username string `json:"username"`
	CallType string `json:"call_type"`
}

package cache

import "fmt"

// Key formats for short-TTL state. Changing a format invalidates in-flight
// counters, so new formats get new prefixes instead of edits.
const (
	AuthRateKeyPrefix   = "auth:%s:%s"
	ChatMsgKeyPrefix    = "chat_msg:%s:%d"
	RoomMsgKeyPrefix    = "room_msg:%s"
	DuplicateKeyPrefix  = "dup:%s:%d:%s"
	EmojiSpamKeyPrefix  = "emoji:%s:%d"
	FastLongKeyPrefix   = "fast_long:%s:%d"
	MuteKeyPrefix       = "mute:%d"
	StrikeKeyPrefix     = "strike:%s:%d:%s"
	CallStateKeyPrefix  = "call_state:%s:%s"
	CallInviteKeyPrefix = "call_invite:%s:%s"
	TrimLockKeyPrefix   = "msg_trim_lock:%s"
	UploadCapKeyPrefix  = "upload_cap:%s:%d:%s"
	WSTicketKeyPrefix   = "ws_ticket:%s"
	BotCooldownPrefix   = "bot_cooldown:%d"
	MaintenanceKey      = "site:maintenance"
)

// AuthRateKey is the per-IP limiter key for auth-adjacent endpoints.
func AuthRateKey(path, ip string) string {
	return fmt.Sprintf(AuthRateKeyPrefix, path, ip)
}

// ChatMsgKey is the per-(room,user) send-rate key.
func ChatMsgKey(room string, userID uint) string {
	return fmt.Sprintf(ChatMsgKeyPrefix, room, userID)
}

// RoomMsgKey is the room-wide flood key.
func RoomMsgKey(room string) string {
	return fmt.Sprintf(RoomMsgKeyPrefix, room)
}

// DuplicateKey stores the normalized-body hash for duplicate detection.
func DuplicateKey(room string, userID uint, hash string) string {
	return fmt.Sprintf(DuplicateKeyPrefix, room, userID, hash)
}

// EmojiSpamKey throttles repeated emoji-only messages.
func EmojiSpamKey(room string, userID uint) string {
	return fmt.Sprintf(EmojiSpamKeyPrefix, room, userID)
}

// FastLongKey stores the last long-message timestamp for the speed heuristic.
func FastLongKey(room string, userID uint) string {
	return fmt.Sprintf(FastLongKeyPrefix, room, userID)
}

// MuteKey holds the TTL-bounded mute marker for a user.
func MuteKey(userID uint) string {
	return fmt.Sprintf(MuteKeyPrefix, userID)
}

// StrikeKey is the windowed strike counter per (scope, user, room).
func StrikeKey(scope string, userID uint, room string) string {
	return fmt.Sprintf(StrikeKeyPrefix, scope, userID, room)
}

// CallStateKey marks an active call session per (room, call type).
func CallStateKey(room, callType string) string {
	return fmt.Sprintf(CallStateKeyPrefix, room, callType)
}

// CallInviteKey marks an outstanding call invite per (room, call type).
func CallInviteKey(room, callType string) string {
	return fmt.Sprintf(CallInviteKeyPrefix, room, callType)
}

// CallInviteRateKey limits how often a user may send call invites.
func CallInviteRateKey(userID uint) string {
	return fmt.Sprintf("call_invite_rate:%d", userID)
}

// TrimLockKey is the add-if-absent throttle for retention trimming.
func TrimLockKey(room string) string {
	return fmt.Sprintf(TrimLockKeyPrefix, room)
}

// UploadCapKey counts uploads per (room, user, day).
func UploadCapKey(room string, userID uint, day string) string {
	return fmt.Sprintf(UploadCapKeyPrefix, room, userID, day)
}

// WSTicketKey stores a single-use websocket auth ticket.
func WSTicketKey(ticket string) string {
	return fmt.Sprintf(WSTicketKeyPrefix, ticket)
}

// BotCooldownKey dedupes companion-bot reply triggers per message.
func BotCooldownKey(messageID uint) string {
	return fmt.Sprintf(BotCooldownPrefix, messageID)
}

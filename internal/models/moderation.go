package models

import "time"

// ModerationAction is the verdict applied to a message.
type ModerationAction string

const (
	// ModerationAllow lets the message through untouched.
	ModerationAllow ModerationAction = "allow"
	// ModerationFlag persists a record but does not reject the message.
	ModerationFlag ModerationAction = "flag"
	// ModerationBlock rejects the message.
	ModerationBlock ModerationAction = "block"
)

// ModerationEvent records a moderation verdict for audit and strike weighting.
type ModerationEvent struct {
	ID         uint             `gorm:"primaryKey" json:"id"`
	UserID     uint             `gorm:"not null;index" json:"user_id"`
	RoomID     uint             `gorm:"not null;index" json:"room_id"`
	MessageID  *uint            `json:"message_id,omitempty"`
	Text       string           `gorm:"type:text" json:"text"`
	Action     ModerationAction `gorm:"type:varchar(8);not null" json:"action"`
	Categories string           `gorm:"size:255" json:"categories"`
	Severity   int              `gorm:"not null;default:0" json:"severity"`
	Confidence float64          `gorm:"not null;default:0" json:"confidence"`
	Reason     string           `gorm:"size:512" json:"reason"`
	CreatedAt  time.Time        `json:"created_at"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// TableName specifies the table name for GORM.
func (ModerationEvent) TableName() string {
	return "moderation_events"
}

// BlockedScope identifies which gate rejected a message.
type BlockedScope string

const (
	// BlockedScopeRate is a per-user or room-wide rate limit rejection.
	BlockedScopeRate BlockedScope = "rate"
	// BlockedScopeDuplicate is a duplicate-body rejection.
	BlockedScopeDuplicate BlockedScope = "duplicate"
	// BlockedScopeEmoji is an emoji-spam rejection.
	BlockedScopeEmoji BlockedScope = "emoji"
	// BlockedScopeSpeed is a typing-speed or fast-long rejection.
	BlockedScopeSpeed BlockedScope = "speed"
	// BlockedScopeMute is a rejection while muted.
	BlockedScopeMute BlockedScope = "mute"
	// BlockedScopePolicy is a content-policy rejection (links, uploads).
	BlockedScopePolicy BlockedScope = "policy"
	// BlockedScopeModeration is an LLM moderation block.
	BlockedScopeModeration BlockedScope = "moderation"
)

// BlockedMessageEvent is a forensic record of a rejected send attempt.
type BlockedMessageEvent struct {
	ID        uint         `gorm:"primaryKey" json:"id"`
	Scope     BlockedScope `gorm:"type:varchar(16);not null;index" json:"scope"`
	UserID    uint         `gorm:"not null;index" json:"user_id"`
	RoomID    uint         `gorm:"not null;index" json:"room_id"`
	Meta      string       `gorm:"type:text;default:''" json:"meta"`
	CreatedAt time.Time    `json:"created_at"`
}

// TableName specifies the table name for GORM.
func (BlockedMessageEvent) TableName() string {
	return "blocked_message_events"
}

// SiteSetting is a persisted boolean flag keyed by name (e.g. maintenance mode).
type SiteSetting struct {
	Key       string    `gorm:"primaryKey;size:64" json:"key"`
	BoolValue bool      `gorm:"not null;default:false" json:"bool_value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (SiteSetting) TableName() string {
	return "site_settings"
}

// SettingMaintenanceMode is the key for the maintenance-mode flag.
const SettingMaintenanceMode = "maintenance_mode"

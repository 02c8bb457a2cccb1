package models

import "time"

// User mirrors the identity provider's account record plus chat-side flags.
// Authentication and email verification happen upstream; this service only
// consumes the resulting attributes.
type User struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	Username         string    `gorm:"size:64;not null;uniqueIndex" json:"username"`
	Email            string    `gorm:"size:255;not null" json:"email"`
	EmailVerified    bool      `gorm:"default:false" json:"email_verified"`
	IsStaff          bool      `gorm:"default:false" json:"is_staff"`
	IsActive         bool      `gorm:"default:true" json:"is_active"`
	ChatBlocked      bool      `gorm:"default:false" json:"chat_blocked"`
	IsPrivateAccount bool      `gorm:"default:false" json:"is_private_account"`
	IsStealth        bool      `gorm:"default:false" json:"is_stealth"`
	IsBot            bool      `gorm:"default:false" json:"is_bot"`
	IsDND            bool      `gorm:"default:false" json:"is_dnd"`
	DisplayName      string    `gorm:"size:120" json:"display_name"`
	// ServiceSecretHash authenticates non-human accounts (the companion
	// bot) that talk to this service directly instead of through the
	// identity provider. Empty for human users.
	ServiceSecretHash string `gorm:"size:128" json:"-"`
	Avatar           string    `gorm:"size:512" json:"avatar"`
	Cover            string    `gorm:"size:512" json:"cover"`
	UsernameChangedAt *time.Time `json:"username_changed_at,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (User) TableName() string {
	return "users"
}

// PushToken is a device push registration for a user.
type PushToken struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Token     string    `gorm:"size:512;not null;uniqueIndex" json:"token"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	UserAgent string    `gorm:"size:255" json:"user_agent"`
	LastSeen  time.Time `json:"last_seen"`
	CreatedAt time.Time `json:"created_at"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// TableName specifies the table name for GORM.
func (PushToken) TableName() string {
	return "push_tokens"
}

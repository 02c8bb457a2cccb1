package models

import "time"

// NotificationType classifies a notification for client routing.
type NotificationType string

const (
	// NotificationMention is an at-mention in a room message.
	NotificationMention NotificationType = "mention"
	// NotificationReply is a reply to one of the recipient's messages.
	NotificationReply NotificationType = "reply"
	// NotificationFollow is a social follow event.
	NotificationFollow NotificationType = "follow"
	// NotificationSupport is a support/staff message.
	NotificationSupport NotificationType = "support"
	// NotificationSystem is a server-generated notice.
	NotificationSystem NotificationType = "system"
)

const maxNotificationPreviewLen = 180

// Notification is a persisted per-user notification.
type Notification struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	RecipientID uint             `gorm:"not null;index" json:"recipient_id"`
	FromUserID  *uint            `json:"from_user_id,omitempty"`
	Type        NotificationType `gorm:"type:varchar(16);not null" json:"type"`
	Preview     string           `gorm:"size:180" json:"preview"`
	URL         string           `gorm:"size:512" json:"url"`
	IsRead      bool             `gorm:"default:false;index" json:"is_read"`
	CreatedAt   time.Time        `json:"created_at"`

	Recipient *User `gorm:"foreignKey:RecipientID" json:"recipient,omitempty"`
	FromUser  *User `gorm:"foreignKey:FromUserID" json:"from_user,omitempty"`
}

// TableName specifies the table name for GORM.
func (Notification) TableName() string {
	return "notifications"
}

// TruncatePreview clamps a preview to the stored column length at a rune
// boundary.
func TruncatePreview(s string) string {
	runes := []rune(s)
	if len(runes) <= maxNotificationPreviewLen {
		return s
	}
	return string(runes[:maxNotificationPreviewLen-1]) + "…"
}

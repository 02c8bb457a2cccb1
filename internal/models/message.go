package models

import "time"

// MessageKind distinguishes ordinary chat messages from service markers.
type MessageKind string

const (
	// MessageKindText is a plain user message.
	MessageKindText MessageKind = "text"
	// MessageKindFile is a media upload with optional caption.
	MessageKindFile MessageKind = "file"
	// MessageKindSystem is a server-generated marker (call events, notices).
	MessageKindSystem MessageKind = "system"
)

// Message is a single chat message. At least one of Body or FileRef is set.
type Message struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	RoomID    uint        `gorm:"not null;index:idx_messages_room_created" json:"room_id"`
	AuthorID  uint        `gorm:"not null;index" json:"author_id"`
	Kind      MessageKind `gorm:"type:varchar(16);not null;default:'text'" json:"kind"`
	Body      string      `gorm:"size:300" json:"body"`
	FileRef   string      `gorm:"size:512" json:"file_ref,omitempty"`
	Caption   string      `gorm:"size:300" json:"caption,omitempty"`
	ReplyToID *uint       `gorm:"index" json:"reply_to_id,omitempty"`
	CreatedAt time.Time   `gorm:"index:idx_messages_room_created" json:"created_at"`
	EditedAt  *time.Time  `json:"edited_at,omitempty"`

	// Link preview snapshot captured at send time.
	PreviewURL         string `gorm:"size:512" json:"preview_url,omitempty"`
	PreviewTitle       string `gorm:"size:255" json:"preview_title,omitempty"`
	PreviewDescription string `gorm:"size:512" json:"preview_description,omitempty"`
	PreviewImage       string `gorm:"size:512" json:"preview_image,omitempty"`
	PreviewSiteName    string `gorm:"size:120" json:"preview_site_name,omitempty"`

	Room      *Room             `gorm:"foreignKey:RoomID;constraint:OnDelete:CASCADE" json:"room,omitempty"`
	Author    *User             `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	ReplyTo   *Message          `gorm:"foreignKey:ReplyToID" json:"reply_to,omitempty"`
	Reactions []MessageReaction `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE" json:"reactions,omitempty"`
}

// TableName specifies the table name for GORM.
func (Message) TableName() string {
	return "messages"
}

// HasContent reports whether the message carries a body or file.
func (m *Message) HasContent() bool {
	return m.Body != "" || m.FileRef != ""
}

// AllowedEmojis is the fixed reaction set.
var AllowedEmojis = map[string]bool{
	"👍": true,
	"❤️": true,
	"😂": true,
	"😮": true,
	"😢": true,
	"🔥": true,
}

// MessageReaction is one (message, user, emoji) reaction; the triple is unique.
type MessageReaction struct {
	MessageID uint      `gorm:"primaryKey;autoIncrement:false" json:"message_id"`
	UserID    uint      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	Emoji     string    `gorm:"primaryKey;size:16" json:"emoji"`
	CreatedAt time.Time `json:"created_at"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// TableName specifies the table name for GORM.
func (MessageReaction) TableName() string {
	return "message_reactions"
}

// ChatReadState tracks the highest message id a user has read in a room.
// LastReadMessageID is monotonically non-decreasing per (user, room).
type ChatReadState struct {
	UserID            uint      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	RoomID            uint      `gorm:"primaryKey;autoIncrement:false" json:"room_id"`
	LastReadMessageID uint      `gorm:"not null;default:0" json:"last_read_message_id"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (ChatReadState) TableName() string {
	return "chat_read_states"
}

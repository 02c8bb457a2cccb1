package models

import "time"

// RoomClass categorizes a room for content-policy decisions.
type RoomClass string

const (
	// RoomClassPublic is the open drop-in room.
	RoomClassPublic RoomClass = "public"
	// RoomClassTopical is a staff-managed themed group chat.
	RoomClassTopical RoomClass = "topical"
	// RoomClassPrivate1to1 is a direct conversation between two users.
	RoomClassPrivate1to1 RoomClass = "private_1to1"
	// RoomClassCodeRoom is a private room joinable via a shareable code.
	RoomClassCodeRoom RoomClass = "code_room"
)

// Room is a named conversation endpoint.
type Room struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	GroupName   string    `gorm:"size:64;not null;uniqueIndex" json:"group_name"`
	DisplayName string    `gorm:"size:120;not null" json:"display_name"`
	AdminUserID *uint     `gorm:"index" json:"admin_user_id"`
	IsPrivate   bool      `gorm:"default:false" json:"is_private"`
	IsCodeRoom  bool      `gorm:"default:false" json:"is_code_room"`
	RoomCode    *string   `gorm:"size:8;uniqueIndex" json:"room_code,omitempty"`
	PinnedText  string    `gorm:"type:text;default:''" json:"pinned_text"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	AdminUser *User  `gorm:"foreignKey:AdminUserID" json:"admin_user,omitempty"`
	Members   []User `gorm:"many2many:room_members;constraint:OnDelete:CASCADE" json:"members,omitempty"`
}

// TableName specifies the table name for GORM.
func (Room) TableName() string {
	return "rooms"
}

// Class derives the room class from its flags and display name.
func (r *Room) Class() RoomClass {
	switch {
	case r.IsCodeRoom && r.IsPrivate:
		return RoomClassCodeRoom
	case r.IsPrivate:
		return RoomClassPrivate1to1
	case r.AdminUserID != nil:
		return RoomClassTopical
	default:
		return RoomClassPublic
	}
}

// JoinableByCode reports whether the room accepts join-by-code requests.
func (r *Room) JoinableByCode() bool {
	return r.IsCodeRoom && r.IsPrivate
}

// HasMember reports whether the given user is in the preloaded member set.
func (r *Room) HasMember(userID uint) bool {
	for _, m := range r.Members {
		if m.ID == userID {
			return true
		}
	}
	return false
}

// RoomMember is the join row backing Room.Members. Declared explicitly so
// cascade deletes and direct membership queries have a named model.
type RoomMember struct {
	RoomID    uint      `gorm:"primaryKey;autoIncrement:false" json:"room_id"`
	UserID    uint      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM.
func (RoomMember) TableName() string {
	return "room_members"
}

// CodeRoomJoinRequest is a waiting-list entry for a code room.
// A row with AdmittedAt == nil is a pending waiter; the requester's status
// poll refreshes LastSeenAt as a liveness heartbeat.
type CodeRoomJoinRequest struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	RoomID      uint       `gorm:"not null;uniqueIndex:idx_join_request_room_user" json:"room_id"`
	UserID      uint       `gorm:"not null;uniqueIndex:idx_join_request_room_user" json:"user_id"`
	CreatedAt   time.Time  `json:"created_at"`
	LastSeenAt  time.Time  `json:"last_seen_at"`
	AdmittedAt  *time.Time `json:"admitted_at,omitempty"`
	AdmittedBy  *uint      `json:"admitted_by,omitempty"`

	Room *Room `gorm:"foreignKey:RoomID;constraint:OnDelete:CASCADE" json:"room,omitempty"`
	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// TableName specifies the table name for GORM.
func (CodeRoomJoinRequest) TableName() string {
	return "code_room_join_requests"
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vixogram/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrRoomFull is returned when a join would exceed the room's member cap.
var ErrRoomFull = errors.New("room member limit reached")

// RoomRepository defines the interface for room and membership operations
type RoomRepository interface {
	Create(ctx context.Context, room *models.Room) error
	GetByID(ctx context.Context, id uint) (*models.Room, error)
	GetByGroupName(ctx context.Context, groupName string) (*models.Room, error)
	GetByCode(ctx context.Context, code string) (*models.Room, error)
	Delete(ctx context.Context, id uint) error
	AddMember(ctx context.Context, roomID, userID uint) error
	RemoveMember(ctx context.Context, roomID, userID uint) error
	IsMember(ctx context.Context, roomID, userID uint) (bool, error)
	MemberCount(ctx context.Context, roomID uint) (int64, error)
	MemberIDs(ctx context.Context, roomID uint) ([]uint, error)

	// GetOrCreateDirectRoom returns the private 1:1 room for a user pair,
	// creating it with exactly those two members on first contact. The
	// boolean reports whether this call created the room.
	GetOrCreateDirectRoom(ctx context.Context, userA, userB uint, displayName string) (*models.Room, bool, error)

	// Join-request lifecycle. CreateJoinRequestLocked runs under a row lock
	// on the room so the member cap holds under concurrent joins.
	CreateJoinRequestLocked(ctx context.Context, roomID, userID uint, cap int) (*models.CodeRoomJoinRequest, error)
	GetJoinRequest(ctx context.Context, roomID, userID uint) (*models.CodeRoomJoinRequest, error)
	TouchJoinRequest(ctx context.Context, roomID, userID uint) error
	PendingJoinRequests(ctx context.Context, roomID uint, staleWindow time.Duration) ([]*models.CodeRoomJoinRequest, error)
	AdmitLocked(ctx context.Context, roomID, userID, adminID uint, cap int) error
	RejectJoinRequest(ctx context.Context, roomID, userID uint) error

	PurgeCodeRoomsOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
}

type roomRepository struct {
	db *gorm.DB
}

// NewRoomRepository creates a new room repository
func NewRoomRepository(db *gorm.DB) RoomRepository {
	return &roomRepository{db: db}
}

func (r *roomRepository) Create(ctx context.Context, room *models.Room) error {
	return r.db.WithContext(ctx).Create(room).Error
}

func (r *roomRepository) GetByID(ctx context.Context, id uint) (*models.Room, error) {
	var room models.Room
	if err := r.db.WithContext(ctx).Preload("Members").First(&room, id).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *roomRepository) GetByGroupName(ctx context.Context, groupName string) (*models.Room, error) {
	var room models.Room
	err := r.db.WithContext(ctx).
		Preload("Members").
		Where("group_name = ?", groupName).
		First(&room).Error
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *roomRepository) GetByCode(ctx context.Context, code string) (*models.Room, error) {
	var room models.Room
	err := r.db.WithContext(ctx).
		Preload("Members").
		Where("room_code = ?", code).
		First(&room).Error
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// Delete hard-deletes a room. Messages, reactions, read-state, and join
// requests cascade at the database level; the join rows are removed here
// for stores without FK enforcement.
func (r *roomRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_id = ?", id).Delete(&models.RoomMember{}).Error; err != nil {
			return err
		}
		if err := tx.Where("room_id = ?", id).Delete(&models.CodeRoomJoinRequest{}).Error; err != nil {
			return err
		}
		if err := tx.Where("room_id = ?", id).Delete(&models.ChatReadState{}).Error; err != nil {
			return err
		}
		if err := tx.Where("room_id IN (?)",
			tx.Session(&gorm.Session{NewDB: true}).Model(&models.Message{}).Select("id").Where("room_id = ?", id),
		).Delete(&models.MessageReaction{}).Error; err != nil {
			// Reaction cleanup piggybacks on message cascade where supported.
			_ = err
		}
		if err := tx.Where("room_id = ?", id).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Room{}, id).Error
	})
}

func (r *roomRepository) AddMember(ctx context.Context, roomID, userID uint) error {
	member := models.RoomMember{RoomID: roomID, UserID: userID}
	// Use OnConflict to silently ignore duplicate key errors
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&member).Error
}

func (r *roomRepository) RemoveMember(ctx context.Context, roomID, userID uint) error {
	return r.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Delete(&models.RoomMember{}).Error
}

func (r *roomRepository) IsMember(ctx context.Context, roomID, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.RoomMember{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *roomRepository) MemberCount(ctx context.Context, roomID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.RoomMember{}).
		Where("room_id = ?", roomID).
		Count(&count).Error
	return count, err
}

func (r *roomRepository) MemberIDs(ctx context.Context, roomID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).
		Model(&models.RoomMember{}).
		Where("room_id = ?", roomID).
		Pluck("user_id", &ids).Error
	return ids, err
}

// DirectRoomName is the canonical group name for a 1:1 pair. Ordering the
// IDs makes the name identical no matter which side opens the chat.
func DirectRoomName(userA, userB uint) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return fmt.Sprintf("dm-%d-%d", userA, userB)
}

func (r *roomRepository) GetOrCreateDirectRoom(ctx context.Context, userA, userB uint, displayName string) (*models.Room, bool, error) {
	name := DirectRoomName(userA, userB)

	var room models.Room
	err := r.db.WithContext(ctx).Preload("Members").
		Where("group_name = ?", name).First(&room).Error
	if err == nil {
		return &room, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	created := false
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fresh := models.Room{
			GroupName:   name,
			DisplayName: displayName,
			IsPrivate:   true,
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&fresh)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Lost the race; the other side created it first.
			return tx.Preload("Members").Where("group_name = ?", name).First(&room).Error
		}
		members := []models.RoomMember{
			{RoomID: fresh.ID, UserID: userA},
			{RoomID: fresh.ID, UserID: userB},
		}
		if err := tx.Create(&members).Error; err != nil {
			return err
		}
		room = fresh
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &room, created, nil
}

// CreateJoinRequestLocked creates a PENDING waiting-list entry under a row
// lock on the room. Callers get ErrRoomFull when the cap is already
// reached, or gorm.ErrDuplicatedKey semantics via OnConflict refresh when a
// request already exists.
func (r *roomRepository) CreateJoinRequestLocked(ctx context.Context, roomID, userID uint, cap int) (*models.CodeRoomJoinRequest, error) {
	var req *models.CodeRoomJoinRequest
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var room models.Room
		if err := lockForUpdate(tx).First(&room, roomID).Error; err != nil {
			return err
		}

		var members int64
		if err := tx.Model(&models.RoomMember{}).Where("room_id = ?", roomID).Count(&members).Error; err != nil {
			return err
		}
		if members >= int64(cap) {
			return ErrRoomFull
		}

		// A leftover row from an earlier admitted-then-left cycle becomes a
		// fresh pending request.
		now := time.Now()
		req = &models.CodeRoomJoinRequest{RoomID: roomID, UserID: userID, LastSeenAt: now}
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "room_id"}, {Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"last_seen_at": now,
				"admitted_at":  nil,
				"admitted_by":  nil,
			}),
		}).Create(req).Error
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (r *roomRepository) GetJoinRequest(ctx context.Context, roomID, userID uint) (*models.CodeRoomJoinRequest, error) {
	var req models.CodeRoomJoinRequest
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// TouchJoinRequest refreshes the liveness heartbeat on the pending entry.
func (r *roomRepository) TouchJoinRequest(ctx context.Context, roomID, userID uint) error {
	return r.db.WithContext(ctx).
		Model(&models.CodeRoomJoinRequest{}).
		Where("room_id = ? AND user_id = ? AND admitted_at IS NULL", roomID, userID).
		Update("last_seen_at", time.Now()).Error
}

// PendingJoinRequests lists live waiters: not yet admitted, heartbeat
// within the stale window.
func (r *roomRepository) PendingJoinRequests(ctx context.Context, roomID uint, staleWindow time.Duration) ([]*models.CodeRoomJoinRequest, error) {
	var reqs []*models.CodeRoomJoinRequest
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("room_id = ? AND admitted_at IS NULL AND last_seen_at > ?", roomID, time.Now().Add(-staleWindow)).
		Order("created_at ASC").
		Find(&reqs).Error
	return reqs, err
}

// AdmitLocked adds the waiter to members and stamps admitted_at atomically,
// re-checking the cap under the room row lock.
func (r *roomRepository) AdmitLocked(ctx context.Context, roomID, userID, adminID uint, cap int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var room models.Room
		if err := lockForUpdate(tx).First(&room, roomID).Error; err != nil {
			return err
		}

		var req models.CodeRoomJoinRequest
		if err := tx.Where("room_id = ? AND user_id = ? AND admitted_at IS NULL", roomID, userID).
			First(&req).Error; err != nil {
			return err
		}

		var members int64
		if err := tx.Model(&models.RoomMember{}).Where("room_id = ?", roomID).Count(&members).Error; err != nil {
			return err
		}
		if members >= int64(cap) {
			return ErrRoomFull
		}

		member := models.RoomMember{RoomID: roomID, UserID: userID}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&member).Error; err != nil {
			return err
		}

		now := time.Now()
		return tx.Model(&req).Updates(map[string]interface{}{
			"admitted_at": &now,
			"admitted_by": &adminID,
		}).Error
	})
}

func (r *roomRepository) RejectJoinRequest(ctx context.Context, roomID, userID uint) error {
	return r.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ? AND admitted_at IS NULL", roomID, userID).
		Delete(&models.CodeRoomJoinRequest{}).Error
}

// PurgeCodeRoomsOlderThan deletes old private code rooms in batches and
// returns the number removed.
func (r *roomRepository) PurgeCodeRoomsOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	var total int64
	for {
		var ids []uint
		err := r.db.WithContext(ctx).
			Model(&models.Room{}).
			Where("is_code_room = ? AND is_private = ? AND created_at < ?", true, true, cutoff).
			Limit(batchSize).
			Pluck("id", &ids).Error
		if err != nil {
			return total, err
		}
		if len(ids) == 0 {
			return total, nil
		}
		for _, id := range ids {
			if err := r.Delete(ctx, id); err != nil {
				return total, err
			}
			total++
		}
		if len(ids) < batchSize {
			return total, nil
		}
	}
}

package repository

import (
	"context"
	"time"

	"vixogram/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MessageRepository defines the interface for message data operations
type MessageRepository interface {
	Create(ctx context.Context, msg *models.Message) error
	GetByID(ctx context.Context, id uint) (*models.Message, error)
	ListRecent(ctx context.Context, roomID uint, limit int) ([]*models.Message, error)
	ListAfter(ctx context.Context, roomID, afterID uint, limit int) ([]*models.Message, error)
	ListRecentByAuthor(ctx context.Context, roomID, authorID uint, limit int) ([]*models.Message, error)
	UpdateBody(ctx context.Context, id uint, body string) error
	Delete(ctx context.Context, id uint) error
	Count(ctx context.Context, roomID uint) (int64, error)
	TrimToNewest(ctx context.Context, roomID uint, keepLast int) (int64, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)

	ToggleReaction(ctx context.Context, messageID, userID uint, emoji string) (added bool, err error)
	ReactionCounts(ctx context.Context, messageID uint) (map[string]int64, error)
	AdvanceReadState(ctx context.Context, userID, roomID, messageID uint) error
	GetReadState(ctx context.Context, userID, roomID uint) (*models.ChatReadState, error)

	RecordBlocked(ctx context.Context, event *models.BlockedMessageEvent) error
	RecordModeration(ctx context.Context, event *models.ModerationEvent) error
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(ctx context.Context, msg *models.Message) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *messageRepository) GetByID(ctx context.Context, id uint) (*models.Message, error) {
	var msg models.Message
	err := r.db.WithContext(ctx).
		Preload("Author").
		Preload("Reactions").
		First(&msg, id).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListRecent returns the newest messages oldest-first, ready for display.
func (r *messageRepository) ListRecent(ctx context.Context, roomID uint, limit int) ([]*models.Message, error) {
	var msgs []*models.Message
	err := r.db.WithContext(ctx).
		Preload("Author").
		Preload("Reactions").
		Where("room_id = ?", roomID).
		Order("id DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// ListAfter returns messages with id > afterID, for the polling fallback.
func (r *messageRepository) ListAfter(ctx context.Context, roomID, afterID uint, limit int) ([]*models.Message, error) {
	var msgs []*models.Message
	err := r.db.WithContext(ctx).
		Preload("Author").
		Preload("Reactions").
		Where("room_id = ? AND id > ?", roomID, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&msgs).Error
	return msgs, err
}

// ListRecentByAuthor feeds the moderation context window.
func (r *messageRepository) ListRecentByAuthor(ctx context.Context, roomID, authorID uint, limit int) ([]*models.Message, error) {
	var msgs []*models.Message
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND author_id = ?", roomID, authorID).
		Order("id DESC").
		Limit(limit).
		Find(&msgs).Error
	return msgs, err
}

func (r *messageRepository) UpdateBody(ctx context.Context, id uint, body string) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"body": body, "edited_at": &now}).Error
}

func (r *messageRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("message_id = ?", id).Delete(&models.MessageReaction{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Message{}, id).Error
	})
}

func (r *messageRepository) Count(ctx context.Context, roomID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("room_id = ?", roomID).
		Count(&count).Error
	return count, err
}

// TrimToNewest deletes everything older than the keepLast newest messages
// and returns the number removed.
func (r *messageRepository) TrimToNewest(ctx context.Context, roomID uint, keepLast int) (int64, error) {
	// Find the id at position keepLast from newest; everything older goes.
	var boundary []uint
	err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("room_id = ?", roomID).
		Order("id DESC").
		Offset(keepLast-1).
		Limit(1).
		Pluck("id", &boundary).Error
	if err != nil || len(boundary) == 0 {
		return 0, err
	}

	res := r.db.WithContext(ctx).
		Where("room_id = ? AND id < ?", roomID, boundary[0]).
		Delete(&models.Message{})
	return res.RowsAffected, res.Error
}

func (r *messageRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	var total int64
	for {
		var ids []uint
		err := r.db.WithContext(ctx).
			Model(&models.Message{}).
			Where("created_at < ?", cutoff).
			Limit(batchSize).
			Pluck("id", &ids).Error
		if err != nil {
			return total, err
		}
		if len(ids) == 0 {
			return total, nil
		}
		if err := r.db.WithContext(ctx).Where("message_id IN ?", ids).Delete(&models.MessageReaction{}).Error; err != nil {
			return total, err
		}
		res := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.Message{})
		if res.Error != nil {
			return total, res.Error
		}
		total += res.RowsAffected
		if len(ids) < batchSize {
			return total, nil
		}
	}
}

// ToggleReaction adds the reaction when absent, removes it when present.
func (r *messageRepository) ToggleReaction(ctx context.Context, messageID, userID uint, emoji string) (bool, error) {
	var added bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji).
			Delete(&models.MessageReaction{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			added = false
			return nil
		}
		added = true
		reaction := models.MessageReaction{MessageID: messageID, UserID: userID, Emoji: emoji}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&reaction).Error
	})
	return added, err
}

func (r *messageRepository) ReactionCounts(ctx context.Context, messageID uint) (map[string]int64, error) {
	type row struct {
		Emoji string
		N     int64
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Model(&models.MessageReaction{}).
		Select("emoji, COUNT(*) as n").
		Where("message_id = ?", messageID).
		Group("emoji").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Emoji] = r.N
	}
	return counts, nil
}

// AdvanceReadState moves last_read_message_id forward, never backward.
func (r *messageRepository) AdvanceReadState(ctx context.Context, userID, roomID, messageID uint) error {
	state := models.ChatReadState{UserID: userID, RoomID: roomID, LastReadMessageID: messageID}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "room_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"last_read_message_id": gorm.Expr(
					"CASE WHEN chat_read_states.last_read_message_id < ? THEN ? ELSE chat_read_states.last_read_message_id END",
					messageID, messageID),
			}),
		}).
		Create(&state).Error
}

func (r *messageRepository) GetReadState(ctx context.Context, userID, roomID uint) (*models.ChatReadState, error) {
	var state models.ChatReadState
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND room_id = ?", userID, roomID).
		First(&state).Error
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (r *messageRepository) RecordBlocked(ctx context.Context, event *models.BlockedMessageEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *messageRepository) RecordModeration(ctx context.Context, event *models.ModerationEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

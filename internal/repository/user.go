// Package repository provides data access layers over the persistent store.
package repository

import (
	"context"
	"strings"
	"time"

	"vixogram/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository defines the interface for user data operations
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByUsernameFold(ctx context.Context, username string) (*models.User, error)
	ResolveActiveUsernames(ctx context.Context, handles []string) ([]*models.User, error)
	CountMessagesByAuthor(ctx context.Context, userID uint) (int64, error)
	SetDND(ctx context.Context, userID uint, dnd bool) error
	SetChatBlocked(ctx context.Context, userID uint, blocked bool) error
	ChangeUsername(ctx context.Context, userID uint, username string) error
	Create(ctx context.Context, user *models.User) error
	GetPushTokens(ctx context.Context, userID uint) ([]*models.PushToken, error)
	UpsertPushToken(ctx context.Context, token *models.PushToken) error
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByUsername is case-sensitive, matching the login contract.
func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByUsernameFold is case-insensitive, used for mention resolution.
func (r *userRepository) GetByUsernameFold(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("LOWER(username) = ?", strings.ToLower(username)).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// ResolveActiveUsernames maps mention handles to active users,
// case-insensitively. Unknown handles are silently dropped.
func (r *userRepository) ResolveActiveUsernames(ctx context.Context, handles []string) ([]*models.User, error) {
	if len(handles) == 0 {
		return nil, nil
	}
	folded := make([]string, len(handles))
	for i, h := range handles {
		folded[i] = strings.ToLower(h)
	}
	var users []*models.User
	err := r.db.WithContext(ctx).
		Where("LOWER(username) IN ? AND is_active = ?", folded, true).
		Find(&users).Error
	return users, err
}

func (r *userRepository) CountMessagesByAuthor(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("author_id = ?", userID).
		Count(&count).Error
	return count, err
}

func (r *userRepository) SetDND(ctx context.Context, userID uint, dnd bool) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("is_dnd", dnd).Error
}

func (r *userRepository) SetChatBlocked(ctx context.Context, userID uint, blocked bool) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("chat_blocked", blocked).Error
}

func (r *userRepository) ChangeUsername(ctx context.Context, userID uint, username string) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"username":            username,
			"username_changed_at": &now,
		}).Error
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *userRepository) GetPushTokens(ctx context.Context, userID uint) ([]*models.PushToken, error) {
	var tokens []*models.PushToken
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Find(&tokens).Error
	return tokens, err
}

func (r *userRepository) UpsertPushToken(ctx context.Context, token *models.PushToken) error {
	token.LastSeen = time.Now()
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "token"}},
			DoUpdates: clause.AssignmentColumns([]string{"user_id", "user_agent", "last_seen"}),
		}).
		Create(token).Error
}

package seed

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"vixogram/internal/config"
	"vixogram/internal/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EnsureBotUser creates the companion bot account if it does not exist yet.
// The bot authenticates against this service with a generated secret rather
// than going through the identity provider; only the bcrypt hash is stored.
// Safe to call on every startup.
func EnsureBotUser(ctx context.Context, db *gorm.DB, cfg *config.Config) (*models.User, error) {
	if cfg == nil || !cfg.CompanionBotEnabled || cfg.CompanionBotUsername == "" {
		return nil, nil
	}

	var user models.User
	err := db.WithContext(ctx).Where("username = ?", cfg.CompanionBotUsername).First(&user).Error
	if err == nil {
		if !user.IsBot {
			return nil, fmt.Errorf("username %q is taken by a non-bot account", cfg.CompanionBotUsername)
		}
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	secret := make([]byte, 32)
	if _, rerr := rand.Read(secret); rerr != nil {
		return nil, rerr
	}
	hash, herr := bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(secret)), bcrypt.DefaultCost)
	if herr != nil {
		return nil, herr
	}

	created := models.User{
		Username:          cfg.CompanionBotUsername,
		Email:             cfg.CompanionBotUsername + "@vixogram.local",
		EmailVerified:     true,
		IsActive:          true,
		IsBot:             true,
		DisplayName:       "Companion",
		ServiceSecretHash: string(hash),
	}
	if cerr := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&created).Error; cerr != nil {
		return nil, cerr
	}
	if created.ID != 0 {
		return &created, nil
	}

	// Lost a create race with another instance; read the winner's row.
	if rerr := db.WithContext(ctx).Where("username = ?", cfg.CompanionBotUsername).First(&user).Error; rerr != nil {
		return nil, rerr
	}
	return &user, nil
}

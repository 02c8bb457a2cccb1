package database

import (
	"vixogram/internal/models"

	"gorm.io/gorm"
)

// AllModels is the single migration order for the schema. AutoMigrate
// resolves FKs in declaration order, so parents come before children.
func AllModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.PushToken{},
		&models.Room{},
		&models.RoomMember{},
		&models.CodeRoomJoinRequest{},
		&models.Message{},
		&models.MessageReaction{},
		&models.ChatReadState{},
		&models.Notification{},
		&models.ModerationEvent{},
		&models.BlockedMessageEvent{},
		&models.SiteSetting{},
	}
}

// Migrate applies the schema for every registered model.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}

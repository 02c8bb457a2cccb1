package repository

import (
	"testing"

	"vixogram/internal/database"
	"vixogram/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func seedUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	user := &models.User{Username: username, Email: username + "@example.com", IsActive: true}
	require.NoError(t, db.Create(user).Error)
	return user
}

func seedRoom(t *testing.T, db *gorm.DB, groupName string, mutate func(*models.Room)) *models.Room {
	t.Helper()
	room := &models.Room{GroupName: groupName, DisplayName: groupName}
	if mutate != nil {
		mutate(room)
	}
	require.NoError(t, db.Create(room).Error)
	return room
}

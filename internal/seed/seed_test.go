package seed

import (
	"context"
	"testing"

	"vixogram/internal/config"
	"vixogram/internal/database"
	"vixogram/internal/models"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func TestRunSeedsUsersRoomsAndMessages(t *testing.T) {
	db := newTestDB(t)

	opts := Options{NumUsers: 5, MessagesPerRoom: 3, Seed: 42}
	require.NoError(t, Run(db, opts))

	var userCount, roomCount, messageCount int64
	require.NoError(t, db.Model(&models.User{}).Count(&userCount).Error)
	require.NoError(t, db.Model(&models.Room{}).Count(&roomCount).Error)
	require.NoError(t, db.Model(&models.Message{}).Count(&messageCount).Error)

	require.EqualValues(t, 5, userCount)
	require.EqualValues(t, len(BuiltInRooms), roomCount)
	require.EqualValues(t, len(BuiltInRooms)*3, messageCount)
}

func TestRunIsIdempotentForBuiltInRooms(t *testing.T) {
	db := newTestDB(t)

	opts := Options{NumUsers: 2, MessagesPerRoom: 1, Seed: 7}
	require.NoError(t, Run(db, opts))
	require.NoError(t, Run(db, opts))

	var roomCount int64
	require.NoError(t, db.Model(&models.Room{}).Count(&roomCount).Error)
	require.EqualValues(t, len(BuiltInRooms), roomCount)

	var lobby models.Room
	require.NoError(t, db.Where("group_name = ?", "lobby").First(&lobby).Error)
	require.Equal(t, "Lobby", lobby.DisplayName)
	require.False(t, lobby.IsPrivate)
}

func TestRunCleanRemovesPreviousData(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, Run(db, Options{NumUsers: 4, MessagesPerRoom: 2, Seed: 1}))
	require.NoError(t, Run(db, Options{NumUsers: 2, MessagesPerRoom: 1, Seed: 2, ShouldClean: true}))

	var userCount int64
	require.NoError(t, db.Model(&models.User{}).Count(&userCount).Error)
	require.EqualValues(t, 2, userCount)
}

func TestEnsureBotUser(t *testing.T) {
	db := newTestDB(t)
	cfg := &config.Config{
		CompanionBotEnabled:  true,
		CompanionBotUsername: "vixo",
	}

	bot, err := EnsureBotUser(context.Background(), db, cfg)
	require.NoError(t, err)
	require.NotNil(t, bot)
	require.True(t, bot.IsBot)
	require.True(t, bot.IsActive)
	require.True(t, bot.EmailVerified)
	require.NotEmpty(t, bot.ServiceSecretHash)
	_, err = bcrypt.Cost([]byte(bot.ServiceSecretHash))
	require.NoError(t, err)

	again, err := EnsureBotUser(context.Background(), db, cfg)
	require.NoError(t, err)
	require.Equal(t, bot.ID, again.ID)

	var count int64
	require.NoError(t, db.Model(&models.User{}).Where("is_bot = ?", true).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestEnsureBotUserDisabled(t *testing.T) {
	db := newTestDB(t)

	bot, err := EnsureBotUser(context.Background(), db, &config.Config{})
	require.NoError(t, err)
	require.Nil(t, bot)
}

func TestEnsureBotUserRejectsTakenUsername(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&models.User{Username: "vixo", Email: "vixo@example.com", IsActive: true}).Error)

	_, err := EnsureBotUser(context.Background(), db, &config.Config{
		CompanionBotEnabled:  true,
		CompanionBotUsername: "vixo",
	})
	require.Error(t, err)
}

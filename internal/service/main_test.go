package service

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"vixogram/internal/abuse"
	"vixogram/internal/cache"
	"vixogram/internal/config"
	"vixogram/internal/database"
	"vixogram/internal/models"
	"vixogram/internal/notifications"
	"vixogram/internal/repository"
	"vixogram/internal/worker"
)

func testConfig() *config.Config {
	return &config.Config{
		ChatMsgRateLimit:  100,
		ChatMsgRatePeriod: 10,
		RoomMsgRateLimit:  1000,
		RoomMsgRatePeriod: 10,

		DuplicateMsgTTL:     30,
		EmojiSpamMinRepeats: 5,
		EmojiSpamTTL:        60,
		PasteLongMsgLen:     120,
		PasteTypedMsMax:     800,
		TypingCPSThreshold:  35.0,
		FastLongMsgLen:      100,
		FastLongMinInterval: 5,

		AbuseWindow:          60,
		AbuseStrikeThreshold: 3,
		AbuseMuteSeconds:     300,

		MaxMessageLen:      300,
		KeepLastMessages:   12000,
		PurgeMessageDays:   90,
		PurgeCodeRoomDays:  14,
		PurgeBatchSize:     500,
		UnverifiedMsgLimit: 20,
		VerifyMandatory:    true,

		UploadDailyCap:      20,
		UploadMaxBytes:      8 * 1024 * 1024,
		UploadAllowedPrefix: "image/,video/",

		PrivateRoomMemberLimit: 10,
		JoinRequestStaleSecs:   120,

		CallInviteRateLimit:  3,
		CallInviteRatePeriod: 60,
		RTCAppID:             "970CA35de60c44645bbae8a215061b33",
		RTCAppCertificate:    "5CFd2fd1755d40ecb72977518be15d3b",
		RTCTokenTTL:          3600,

		AIBlockMinSeverity: 2,
		AIFlagMinSeverity:  1,
		AIMinConfidence:    0.6,

		NotifyPersistWhenOnline: true,
		UsernameCooldownDays:    30,
	}
}

// env bundles the services against sqlite, miniredis, a local-only fabric,
// and a synchronous worker.
type env struct {
	cfg       *config.Config
	db        *gorm.DB
	redis     *miniredis.Miniredis
	users     repository.UserRepository
	rooms     repository.RoomRepository
	messages  repository.MessageRepository
	notes     repository.NotificationRepository
	engine    *abuse.Engine
	fabric    *notifications.Fabric
	worker    *worker.Inline
	notify    *NotifyService
	retention *RetentionService
	msgs      *MessageService
	calls     *CallService
	admission *AdmissionService
	usersvc   *UserService
}

func setup(t *testing.T) *env {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	mr := miniredis.RunT(t)
	cache.SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { cache.SetClient(nil) })

	cfg := testConfig()
	e := &env{
		cfg:      cfg,
		db:       db,
		redis:    mr,
		users:    repository.NewUserRepository(db),
		rooms:    repository.NewRoomRepository(db),
		messages: repository.NewMessageRepository(db),
		notes:    repository.NewNotificationRepository(db),
		engine:   abuse.NewEngine(cfg),
		fabric:   notifications.NewFabric(notifications.NewRoomHub(), notifications.NewHub(), notifications.NewNotifier(nil)),
		worker:   worker.NewInline(),
	}
	e.notify = NewNotifyService(cfg, e.notes, e.users, e.fabric, e.worker)
	e.retention = NewRetentionService(cfg, e.rooms, e.messages, e.notes)
	e.msgs = NewMessageService(cfg, e.users, e.rooms, e.messages, e.engine, e.fabric, e.notify, e.retention, nil, nil, e.worker)
	e.calls = NewCallService(cfg, e.users, e.rooms, e.messages, e.engine, e.fabric)
	e.admission = NewAdmissionService(cfg, e.rooms, e.users, e.fabric)
	e.usersvc = NewUserService(cfg, e.users, e.fabric)
	return e
}

func (e *env) seedUser(t *testing.T, username string, mutate func(*models.User)) *models.User {
	t.Helper()
	user := &models.User{
		Username:      username,
		Email:         username + "@example.com",
		EmailVerified: true,
		IsActive:      true,
	}
	if mutate != nil {
		mutate(user)
	}
	require.NoError(t, e.db.Create(user).Error)
	return user
}

func (e *env) seedRoom(t *testing.T, groupName string, mutate func(*models.Room)) *models.Room {
	t.Helper()
	room := &models.Room{GroupName: groupName, DisplayName: groupName}
	if mutate != nil {
		mutate(room)
	}
	require.NoError(t, e.db.Create(room).Error)
	return room
}

func (e *env) addMember(t *testing.T, room *models.Room, user *models.User) {
	t.Helper()
	require.NoError(t, e.rooms.AddMember(context.Background(), room.ID, user.ID))
}

func appCode(t *testing.T, err error) string {
	t.Helper()
	require.Error(t, err)
	appErr, ok := err.(*models.AppError)
	require.True(t, ok, "expected *models.AppError, got %T: %v", err, err)
	return appErr.Code
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vixogram/internal/models"
)

func TestReservedUsernames(t *testing.T) {
	reserved := []string{"admin", "Admin", "admin1", "admin_1", "admin-2", "ADMINISTRATOR", "root", "support99", "moderator."}
	for _, name := range reserved {
		assert.True(t, IsReservedUsername(name), "expected %q to be reserved", name)
	}
	allowed := []string{"adminal", "administrate", "rooty", "supporter", "alice", "admiral"}
	for _, name := range allowed {
		assert.False(t, IsReservedUsername(name), "expected %q to be allowed", name)
	}
}

func TestChangeUsername(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	user := e.seedUser(t, "alice", nil)

	require.NoError(t, e.usersvc.ChangeUsername(ctx, user, "alice_2"))

	updated, err := e.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice_2", updated.Username)
	assert.NotNil(t, updated.UsernameChangedAt)
}

func TestChangeUsernameRejectsReservedAndInvalid(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	user := e.seedUser(t, "alice", nil)

	assert.Equal(t, "VALIDATION_ERROR", appCode(t, e.usersvc.ChangeUsername(ctx, user, "admin_1")))
	assert.Equal(t, "VALIDATION_ERROR", appCode(t, e.usersvc.ChangeUsername(ctx, user, "ab")))
	assert.Equal(t, "VALIDATION_ERROR", appCode(t, e.usersvc.ChangeUsername(ctx, user, "has spaces")))
}

func TestChangeUsernameCooldown(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	recent := time.Now().Add(-24 * time.Hour)
	user := e.seedUser(t, "alice", func(u *models.User) { u.UsernameChangedAt = &recent })

	err := e.usersvc.ChangeUsername(ctx, user, "alice_2")
	require.Error(t, err)
	appErr := err.(*models.AppError)
	assert.Equal(t, "RATE_LIMITED", appErr.Code)

	// Outside the cooldown the change goes through.
	old := time.Now().Add(-time.Duration(e.cfg.UsernameCooldownDays+1) * 24 * time.Hour)
	user.UsernameChangedAt = &old
	assert.NoError(t, e.usersvc.ChangeUsername(ctx, user, "alice_2"))
}

func TestChangeUsernameCaseInsensitiveUniqueness(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.seedUser(t, "bob", nil)
	user := e.seedUser(t, "alice", nil)

	assert.Equal(t, "CONFLICT", appCode(t, e.usersvc.ChangeUsername(ctx, user, "BOB")))
}

func TestSetChatBlockedStaffOnly(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	staff := e.seedUser(t, "carol", func(u *models.User) { u.IsStaff = true })
	regular := e.seedUser(t, "alice", nil)
	target := e.seedUser(t, "bob", nil)

	assert.Equal(t, "FORBIDDEN", appCode(t, e.usersvc.SetChatBlocked(ctx, regular, target.ID, true)))

	require.NoError(t, e.usersvc.SetChatBlocked(ctx, staff, target.ID, true))
	updated, err := e.users.GetByID(ctx, target.ID)
	require.NoError(t, err)
	assert.True(t, updated.ChatBlocked)
}

func TestRegisterPushTokenUpsert(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	alice := e.seedUser(t, "alice", nil)
	bob := e.seedUser(t, "bob", nil)

	require.NoError(t, e.usersvc.RegisterPushToken(ctx, alice, "shared-device", "agent-1"))
	// The same device re-registered by another account moves over.
	require.NoError(t, e.usersvc.RegisterPushToken(ctx, bob, "shared-device", "agent-2"))

	tokens, err := e.users.GetPushTokens(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, "agent-2", tokens[0].UserAgent)

	tokens, err = e.users.GetPushTokens(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, tokens)

	assert.Equal(t, "VALIDATION_ERROR", appCode(t, e.usersvc.RegisterPushToken(ctx, alice, "  ", "agent")))
}

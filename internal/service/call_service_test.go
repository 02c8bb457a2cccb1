package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vixogram/internal/models"
)

func (e *env) seedCallRoom(t *testing.T) (*models.Room, *models.User, *models.User) {
	t.Helper()
	alice := e.seedUser(t, "alice", nil)
	bob := e.seedUser(t, "bob", nil)
	room := e.seedRoom(t, "dm-alice-bob", func(r *models.Room) { r.IsPrivate = true })
	e.addMember(t, room, alice)
	e.addMember(t, room, bob)
	return room, alice, bob
}

func TestCallOnlyInPrivateTwoMemberRooms(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	alice := e.seedUser(t, "alice", nil)
	public := e.seedRoom(t, "lobby", nil)

	err := e.calls.Invite(ctx, alice, public, "video")
	assert.Equal(t, "FORBIDDEN", appCode(t, err))

	// A private room with a single member cannot call either.
	solo := e.seedRoom(t, "dm-solo", func(r *models.Room) { r.IsPrivate = true })
	e.addMember(t, solo, alice)
	err = e.calls.Invite(ctx, alice, solo, "video")
	assert.Equal(t, "FORBIDDEN", appCode(t, err))
}

func TestCallInviteRequiresMembership(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	room, _, _ := e.seedCallRoom(t)
	outsider := e.seedUser(t, "mallory", nil)

	err := e.calls.Invite(ctx, outsider, room, "audio")
	assert.Equal(t, "FORBIDDEN", appCode(t, err))
}

func TestCallInviteRateLimited(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.cfg.CallInviteRateLimit = 2
	room, alice, _ := e.seedCallRoom(t)

	require.NoError(t, e.calls.Invite(ctx, alice, room, "video"))
	require.NoError(t, e.calls.Invite(ctx, alice, room, "video"))

	err := e.calls.Invite(ctx, alice, room, "video")
	require.Error(t, err)
	appErr := err.(*models.AppError)
	assert.Equal(t, "RATE_LIMITED", appErr.Code)
	assert.Greater(t, appErr.RetryAfter, 0)
}

func TestCallStartEndLifecycle(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	room, alice, _ := e.seedCallRoom(t)

	res, err := e.calls.Event(ctx, alice, room, CallActionStart, "video")
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.False(t, res.Deduped)

	// A second start while active is an idempotent success.
	res, err = e.calls.Event(ctx, alice, room, CallActionStart, "video")
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.True(t, res.Deduped)

	res, err = e.calls.Event(ctx, alice, room, CallActionEnd, "video")
	require.NoError(t, err)
	assert.False(t, res.Deduped)

	// Ending an already-ended call is also idempotent.
	res, err = e.calls.Event(ctx, alice, room, CallActionEnd, "video")
	require.NoError(t, err)
	assert.True(t, res.Deduped)

	// Exactly two markers persisted: one start, one end.
	msgs, err := e.messages.ListRecent(ctx, room.ID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.MessageKindSystem, msgs[0].Kind)
	assert.Equal(t, "[CALL] video call started", msgs[0].Body)
	assert.Equal(t, "[CALL] video call ended", msgs[1].Body)
}

func TestCallDeclineRequiresPendingInvite(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	room, alice, bob := e.seedCallRoom(t)

	_, err := e.calls.Event(ctx, bob, room, CallActionDecline, "audio")
	assert.Equal(t, "CONFLICT", appCode(t, err))

	require.NoError(t, e.calls.Invite(ctx, alice, room, "audio"))
	res, err := e.calls.Event(ctx, bob, room, CallActionDecline, "audio")
	require.NoError(t, err)
	assert.True(t, res.OK)

	// The invite was consumed; a second decline conflicts again.
	_, err = e.calls.Event(ctx, bob, room, CallActionDecline, "audio")
	assert.Equal(t, "CONFLICT", appCode(t, err))
}

func TestCallStartClearsPendingInvite(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	room, alice, bob := e.seedCallRoom(t)

	require.NoError(t, e.calls.Invite(ctx, alice, room, "video"))
	_, err := e.calls.Event(ctx, bob, room, CallActionStart, "video")
	require.NoError(t, err)

	_, err = e.calls.Event(ctx, bob, room, CallActionDecline, "video")
	assert.Equal(t, "CONFLICT", appCode(t, err))
}

func TestCallTypesAreIndependent(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	room, alice, _ := e.seedCallRoom(t)

	res, err := e.calls.Event(ctx, alice, room, CallActionStart, "video")
	require.NoError(t, err)
	assert.False(t, res.Deduped)

	res, err = e.calls.Event(ctx, alice, room, CallActionStart, "audio")
	require.NoError(t, err)
	assert.False(t, res.Deduped)
}

func TestCallRejectsUnknownTypeAndAction(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	room, alice, _ := e.seedCallRoom(t)

	err := e.calls.Invite(ctx, alice, room, "hologram")
	assert.Equal(t, "VALIDATION_ERROR", appCode(t, err))

	_, err = e.calls.Event(ctx, alice, room, "pause", "video")
	assert.Equal(t, "VALIDATION_ERROR", appCode(t, err))
}

func TestCallToken(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	room, alice, _ := e.seedCallRoom(t)

	token, err := e.calls.Token(ctx, alice, room)
	require.NoError(t, err)
	assert.NotEmpty(t, token.Token)
	assert.Equal(t, room.GroupName, token.Channel)
	assert.Equal(t, alice.ID, token.UID)
	assert.Equal(t, e.cfg.RTCAppID, token.AppID)
}

func TestCallTokenUnconfigured(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.cfg.RTCAppID = ""
	room, alice, _ := e.seedCallRoom(t)

	_, err := e.calls.Token(ctx, alice, room)
	assert.Equal(t, "VALIDATION_ERROR", appCode(t, err))
}

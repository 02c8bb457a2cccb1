package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vixogram/internal/models"
)

func TestCreateCodeRoom(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	creator := e.seedUser(t, "alice", nil)

	room, err := e.admission.CreateCodeRoom(ctx, creator, "Study group")
	require.NoError(t, err)
	assert.True(t, room.IsPrivate)
	assert.True(t, room.IsCodeRoom)
	require.NotNil(t, room.RoomCode)
	assert.Len(t, *room.RoomCode, 8)
	for _, c := range *room.RoomCode {
		assert.Contains(t, roomCodeAlphabet, string(c))
	}

	member, err := e.rooms.IsMember(ctx, room.ID, creator.ID)
	require.NoError(t, err)
	assert.True(t, member)
}

func TestRoomCodeAvoidsAmbiguousCharacters(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := generateRoomCode()
		require.NoError(t, err)
		require.Len(t, code, roomCodeLen)
		assert.NotContains(t, code, "0")
		assert.NotContains(t, code, "O")
		assert.NotContains(t, code, "1")
		assert.NotContains(t, code, "I")
	}
}

func TestJoinByCodeLifecycle(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	admin := e.seedUser(t, "alice", nil)
	joiner := e.seedUser(t, "bob", nil)

	room, err := e.admission.CreateCodeRoom(ctx, admin, "")
	require.NoError(t, err)

	res, err := e.admission.JoinByCode(ctx, joiner, *room.RoomCode)
	require.NoError(t, err)
	assert.Equal(t, JoinOutcomePending, res.Outcome)

	// Not a member yet; still pending on poll.
	status, err := e.admission.Status(ctx, joiner, room)
	require.NoError(t, err)
	assert.Equal(t, JoinOutcomePending, status)

	waiting, err := e.admission.WaitingList(ctx, admin, room)
	require.NoError(t, err)
	require.Len(t, waiting, 1)
	assert.Equal(t, joiner.ID, waiting[0].UserID)

	require.NoError(t, e.admission.Admit(ctx, admin, room, joiner.ID))

	status, err = e.admission.Status(ctx, joiner, room)
	require.NoError(t, err)
	assert.Equal(t, JoinOutcomeAdmitted, status)

	member, err := e.rooms.IsMember(ctx, room.ID, joiner.ID)
	require.NoError(t, err)
	assert.True(t, member)

	// Joining again just redirects the member.
	res, err = e.admission.JoinByCode(ctx, joiner, *room.RoomCode)
	require.NoError(t, err)
	assert.Equal(t, JoinOutcomeMember, res.Outcome)
}

func TestJoinByCodeLowercaseAccepted(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	admin := e.seedUser(t, "alice", nil)
	joiner := e.seedUser(t, "bob", nil)

	room, err := e.admission.CreateCodeRoom(ctx, admin, "")
	require.NoError(t, err)

	res, err := e.admission.JoinByCode(ctx, joiner, strings.ToLower(*room.RoomCode))
	require.NoError(t, err)
	assert.Equal(t, JoinOutcomePending, res.Outcome)
}

func TestJoinByCodeUnknownCode(t *testing.T) {
	e := setup(t)
	joiner := e.seedUser(t, "bob", nil)

	_, err := e.admission.JoinByCode(context.Background(), joiner, "ZZZZZZZZ")
	assert.Equal(t, "NOT_FOUND", appCode(t, err))

	_, err = e.admission.JoinByCode(context.Background(), joiner, "short")
	assert.Equal(t, "VALIDATION_ERROR", appCode(t, err))
}

func TestJoinByCodeEnforcesMemberCap(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.cfg.PrivateRoomMemberLimit = 2
	admin := e.seedUser(t, "alice", nil)
	second := e.seedUser(t, "bob", nil)
	third := e.seedUser(t, "carol", nil)

	room, err := e.admission.CreateCodeRoom(ctx, admin, "")
	require.NoError(t, err)
	e.addMember(t, room, second)

	_, err = e.admission.JoinByCode(ctx, third, *room.RoomCode)
	assert.Equal(t, "CONFLICT", appCode(t, err))
}

func TestAdmitRecapChecksUnderLock(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.cfg.PrivateRoomMemberLimit = 2
	admin := e.seedUser(t, "alice", nil)
	waiter := e.seedUser(t, "bob", nil)
	filler := e.seedUser(t, "carol", nil)

	room, err := e.admission.CreateCodeRoom(ctx, admin, "")
	require.NoError(t, err)

	_, err = e.admission.JoinByCode(ctx, waiter, *room.RoomCode)
	require.NoError(t, err)

	// The room fills up while the request is pending; admit must fail.
	e.addMember(t, room, filler)
	err = e.admission.Admit(ctx, admin, room, waiter.ID)
	assert.Equal(t, "CONFLICT", appCode(t, err))

	member, err := e.rooms.IsMember(ctx, room.ID, waiter.ID)
	require.NoError(t, err)
	assert.False(t, member)
}

func TestWaitingListAdminOnly(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	admin := e.seedUser(t, "alice", nil)
	other := e.seedUser(t, "bob", nil)
	staff := e.seedUser(t, "carol", func(u *models.User) { u.IsStaff = true })

	room, err := e.admission.CreateCodeRoom(ctx, admin, "")
	require.NoError(t, err)

	_, err = e.admission.WaitingList(ctx, other, room)
	assert.Equal(t, "FORBIDDEN", appCode(t, err))

	_, err = e.admission.WaitingList(ctx, staff, room)
	assert.NoError(t, err)
}

func TestWaitingListHidesStaleRequests(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	admin := e.seedUser(t, "alice", nil)
	waiter := e.seedUser(t, "bob", nil)

	room, err := e.admission.CreateCodeRoom(ctx, admin, "")
	require.NoError(t, err)

	_, err = e.admission.JoinByCode(ctx, waiter, *room.RoomCode)
	require.NoError(t, err)

	// Age the heartbeat past the stale window.
	stale := time.Now().Add(-time.Duration(e.cfg.JoinRequestStaleSecs+10) * time.Second)
	require.NoError(t, e.db.Model(&models.CodeRoomJoinRequest{}).
		Where("room_id = ? AND user_id = ?", room.ID, waiter.ID).
		Update("last_seen_at", stale).Error)

	waiting, err := e.admission.WaitingList(ctx, admin, room)
	require.NoError(t, err)
	assert.Empty(t, waiting)

	// A status poll revives the heartbeat.
	_, err = e.admission.Status(ctx, waiter, room)
	require.NoError(t, err)
	waiting, err = e.admission.WaitingList(ctx, admin, room)
	require.NoError(t, err)
	assert.Len(t, waiting, 1)
}

func TestRejectRemovesRequest(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	admin := e.seedUser(t, "alice", nil)
	waiter := e.seedUser(t, "bob", nil)

	room, err := e.admission.CreateCodeRoom(ctx, admin, "")
	require.NoError(t, err)

	_, err = e.admission.JoinByCode(ctx, waiter, *room.RoomCode)
	require.NoError(t, err)

	require.NoError(t, e.admission.Reject(ctx, admin, room, waiter.ID))

	waiting, err := e.admission.WaitingList(ctx, admin, room)
	require.NoError(t, err)
	assert.Empty(t, waiting)
}

func TestLeaveThenRejoinStartsFreshRequest(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	admin := e.seedUser(t, "alice", nil)
	joiner := e.seedUser(t, "bob", nil)

	room, err := e.admission.CreateCodeRoom(ctx, admin, "")
	require.NoError(t, err)

	_, err = e.admission.JoinByCode(ctx, joiner, *room.RoomCode)
	require.NoError(t, err)
	require.NoError(t, e.admission.Admit(ctx, admin, room, joiner.ID))
	require.NoError(t, e.admission.Leave(ctx, joiner, room))

	member, err := e.rooms.IsMember(ctx, room.ID, joiner.ID)
	require.NoError(t, err)
	assert.False(t, member)

	res, err := e.admission.JoinByCode(ctx, joiner, *room.RoomCode)
	require.NoError(t, err)
	assert.Equal(t, JoinOutcomePending, res.Outcome)
}

func TestOpenDirectRoomFirstContact(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	alice := e.seedUser(t, "alice", nil)
	bob := e.seedUser(t, "bob", nil)

	room, created, err := e.admission.OpenDirectRoom(ctx, alice, bob.ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, room.IsPrivate)
	assert.False(t, room.IsCodeRoom)
	assert.Equal(t, models.RoomClassPrivate1to1, room.Class())

	count, err := e.rooms.MemberCount(ctx, room.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
	for _, id := range []uint{alice.ID, bob.ID} {
		member, err := e.rooms.IsMember(ctx, room.ID, id)
		require.NoError(t, err)
		assert.True(t, member)
	}
}

func TestOpenDirectRoomIdempotentFromEitherSide(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	alice := e.seedUser(t, "alice", nil)
	bob := e.seedUser(t, "bob", nil)

	first, created, err := e.admission.OpenDirectRoom(ctx, alice, bob.ID)
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := e.admission.OpenDirectRoom(ctx, bob, alice.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.GroupName, second.GroupName)

	count, err := e.rooms.MemberCount(ctx, first.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestOpenDirectRoomRejectsSelfAndMissingUsers(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	alice := e.seedUser(t, "alice", nil)

	_, _, err := e.admission.OpenDirectRoom(ctx, alice, alice.ID)
	assert.Equal(t, "VALIDATION_ERROR", appCode(t, err))

	_, _, err = e.admission.OpenDirectRoom(ctx, alice, alice.ID+999)
	assert.Equal(t, "NOT_FOUND", appCode(t, err))

	banned := e.seedUser(t, "mallory", func(u *models.User) { u.IsActive = false })
	_, _, err = e.admission.OpenDirectRoom(ctx, alice, banned.ID)
	assert.Equal(t, "FORBIDDEN", appCode(t, err))
}

func TestDirectRoomStaysClosedToOutsiders(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	alice := e.seedUser(t, "alice", nil)
	bob := e.seedUser(t, "bob", nil)
	carol := e.seedUser(t, "carol", nil)

	room, _, err := e.admission.OpenDirectRoom(ctx, alice, bob.ID)
	require.NoError(t, err)

	_, err = e.msgs.Send(ctx, room, SendInput{Author: alice, Body: "hi bob"})
	require.NoError(t, err)

	_, err = e.msgs.Send(ctx, room, SendInput{Author: carol, Body: "let me in"})
	assert.Equal(t, "FORBIDDEN", appCode(t, err))

	count, err := e.rooms.MemberCount(ctx, room.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

package repository

import (
	"context"
	"testing"
	"time"

	"vixogram/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestRoomMembership(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRoomRepository(db)
	ctx := context.Background()

	room := seedRoom(t, db, "lobby", nil)
	alice := seedUser(t, db, "alice")

	isMember, err := repo.IsMember(ctx, room.ID, alice.ID)
	require.NoError(t, err)
	assert.False(t, isMember)

	require.NoError(t, repo.AddMember(ctx, room.ID, alice.ID))
	// Re-adding is a no-op, not an error.
	require.NoError(t, repo.AddMember(ctx, room.ID, alice.ID))

	isMember, err = repo.IsMember(ctx, room.ID, alice.ID)
	require.NoError(t, err)
	assert.True(t, isMember)

	count, err := repo.MemberCount(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	require.NoError(t, repo.RemoveMember(ctx, room.ID, alice.ID))
	count, err = repo.MemberCount(ctx, room.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestGetByCode(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRoomRepository(db)
	ctx := context.Background()

	code := "ABCDEFGH"
	room := seedRoom(t, db, "code-room-1", func(r *models.Room) {
		r.IsPrivate = true
		r.IsCodeRoom = true
		r.RoomCode = &code
	})

	found, err := repo.GetByCode(ctx, "ABCDEFGH")
	require.NoError(t, err)
	assert.Equal(t, room.ID, found.ID)
	assert.True(t, found.JoinableByCode())

	_, err = repo.GetByCode(ctx, "NOPE")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestJoinRequestLifecycle(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRoomRepository(db)
	ctx := context.Background()

	room := seedRoom(t, db, "code-room-2", func(r *models.Room) {
		r.IsPrivate = true
		r.IsCodeRoom = true
	})
	admin := seedUser(t, db, "admin-user")
	waiter := seedUser(t, db, "waiter")

	req, err := repo.CreateJoinRequestLocked(ctx, room.ID, waiter.ID, 10)
	require.NoError(t, err)
	assert.Nil(t, req.AdmittedAt)

	// The waiter is pending, not a member.
	isMember, err := repo.IsMember(ctx, room.ID, waiter.ID)
	require.NoError(t, err)
	assert.False(t, isMember)

	pending, err := repo.PendingJoinRequests(ctx, room.ID, 120*time.Second)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, waiter.ID, pending[0].UserID)

	require.NoError(t, repo.AdmitLocked(ctx, room.ID, waiter.ID, admin.ID, 10))

	isMember, err = repo.IsMember(ctx, room.ID, waiter.ID)
	require.NoError(t, err)
	assert.True(t, isMember)

	stored, err := repo.GetJoinRequest(ctx, room.ID, waiter.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.AdmittedAt)
	require.NotNil(t, stored.AdmittedBy)
	assert.Equal(t, admin.ID, *stored.AdmittedBy)

	// Admitted requests no longer show on the waiting list.
	pending, err = repo.PendingJoinRequests(ctx, room.ID, 120*time.Second)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestJoinRequestCapEnforced(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRoomRepository(db)
	ctx := context.Background()

	room := seedRoom(t, db, "full-room", func(r *models.Room) {
		r.IsPrivate = true
		r.IsCodeRoom = true
	})
	for _, name := range []string{"m1", "m2"} {
		u := seedUser(t, db, name)
		require.NoError(t, repo.AddMember(ctx, room.ID, u.ID))
	}
	late := seedUser(t, db, "late")

	_, err := repo.CreateJoinRequestLocked(ctx, room.ID, late.ID, 2)
	assert.ErrorIs(t, err, ErrRoomFull)

	// Members unchanged.
	count, err := repo.MemberCount(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// Admit against a full room also fails.
	_, err = repo.CreateJoinRequestLocked(ctx, room.ID, late.ID, 3)
	require.NoError(t, err)
	err = repo.AdmitLocked(ctx, room.ID, late.ID, 1, 2)
	assert.ErrorIs(t, err, ErrRoomFull)
}

func TestJoinRequestStaleFiltering(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRoomRepository(db)
	ctx := context.Background()

	room := seedRoom(t, db, "stale-room", func(r *models.Room) {
		r.IsPrivate = true
		r.IsCodeRoom = true
	})
	waiter := seedUser(t, db, "slow-waiter")

	_, err := repo.CreateJoinRequestLocked(ctx, room.ID, waiter.ID, 10)
	require.NoError(t, err)

	// Age the heartbeat beyond the stale window.
	old := time.Now().Add(-5 * time.Minute)
	require.NoError(t, db.Model(&models.CodeRoomJoinRequest{}).
		Where("room_id = ?", room.ID).
		Update("last_seen_at", old).Error)

	pending, err := repo.PendingJoinRequests(ctx, room.ID, 120*time.Second)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// A heartbeat revives it.
	require.NoError(t, repo.TouchJoinRequest(ctx, room.ID, waiter.ID))
	pending, err = repo.PendingJoinRequests(ctx, room.ID, 120*time.Second)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestRejectJoinRequest(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRoomRepository(db)
	ctx := context.Background()

	room := seedRoom(t, db, "reject-room", func(r *models.Room) {
		r.IsPrivate = true
		r.IsCodeRoom = true
	})
	waiter := seedUser(t, db, "rejected")

	_, err := repo.CreateJoinRequestLocked(ctx, room.ID, waiter.ID, 10)
	require.NoError(t, err)

	require.NoError(t, repo.RejectJoinRequest(ctx, room.ID, waiter.ID))
	_, err = repo.GetJoinRequest(ctx, room.ID, waiter.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestDeleteRoomCascades(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRoomRepository(db)
	msgs := NewMessageRepository(db)
	ctx := context.Background()

	room := seedRoom(t, db, "doomed", nil)
	alice := seedUser(t, db, "alice2")
	require.NoError(t, repo.AddMember(ctx, room.ID, alice.ID))
	require.NoError(t, msgs.Create(ctx, &models.Message{RoomID: room.ID, AuthorID: alice.ID, Kind: models.MessageKindText, Body: "bye"}))

	require.NoError(t, repo.Delete(ctx, room.ID))

	_, err := repo.GetByGroupName(ctx, "doomed")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	count, err := msgs.Count(ctx, room.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestPurgeCodeRoomsOlderThan(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRoomRepository(db)
	ctx := context.Background()

	oldRoom := seedRoom(t, db, "old-code", func(r *models.Room) {
		r.IsPrivate = true
		r.IsCodeRoom = true
	})
	require.NoError(t, db.Model(&models.Room{}).Where("id = ?", oldRoom.ID).
		Update("created_at", time.Now().Add(-30*24*time.Hour)).Error)

	fresh := seedRoom(t, db, "fresh-code", func(r *models.Room) {
		r.IsPrivate = true
		r.IsCodeRoom = true
	})

	removed, err := repo.PurgeCodeRoomsOlderThan(ctx, time.Now().Add(-14*24*time.Hour), 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = repo.GetByID(ctx, fresh.ID)
	assert.NoError(t, err)
}

package server

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeRoomAdmissionFlow(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.seedUser(t, "alice", nil)
	guest := ts.seedUser(t, "bob", nil)

	// Admin creates the room and receives the shareable code.
	resp := ts.request(t, admin, http.MethodPost, "/chat/private/create",
		fiber.Map{"display_name": "movie night"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	room := decodeBody(t, resp)
	code := room["room_code"].(string)
	groupName := room["group_name"].(string)
	require.Len(t, code, 8)

	// Guest joins by code and lands on the waiting list.
	resp = ts.request(t, guest, http.MethodPost, "/chat/private/join",
		fiber.Map{"code": code})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	join := decodeBody(t, resp)
	assert.Equal(t, "pending", join["outcome"])

	// Pending users cannot read the room yet.
	resp = ts.request(t, guest, http.MethodGet, "/chat/room/"+groupName, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Status poll reports pending and heartbeats the request.
	resp = ts.request(t, guest, http.MethodGet, "/chat/private/"+groupName+"/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pending", decodeBody(t, resp)["status"])

	// Admin sees the guest on the waiting list.
	resp = ts.request(t, admin, http.MethodGet, "/chat/private/"+groupName+"/waiting", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	waiting := decodeBody(t, resp)["waiting"].([]interface{})
	require.Len(t, waiting, 1)

	// Non-admins cannot.
	resp = ts.request(t, guest, http.MethodGet, "/chat/private/"+groupName+"/waiting", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Admit, then the guest is a member with full access.
	resp = ts.request(t, admin, http.MethodPost,
		fmt.Sprintf("/chat/private/%s/admit/%d", groupName, guest.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.request(t, guest, http.MethodGet, "/chat/private/"+groupName+"/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "admitted", decodeBody(t, resp)["status"])

	resp = ts.request(t, guest, http.MethodGet, "/chat/room/"+groupName, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestJoinByCodeUnknownCode(t *testing.T) {
	ts := newTestServer(t)
	user := ts.seedUser(t, "alice", nil)

	resp := ts.request(t, user, http.MethodPost, "/chat/private/join",
		fiber.Map{"code": "ZZZZZZZZ"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestJoinByCodeRoomFull(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.seedUser(t, "alice", nil)

	resp := ts.request(t, admin, http.MethodPost, "/chat/private/create", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	room := decodeBody(t, resp)
	code := room["room_code"].(string)
	groupName := room["group_name"].(string)

	// Fill the room to the cap.
	for i := 1; i < ts.srv.config.PrivateRoomMemberLimit; i++ {
		filler := ts.seedUser(t, fmt.Sprintf("filler%d", i), nil)
		resp := ts.request(t, filler, http.MethodPost, "/chat/private/join",
			fiber.Map{"code": code})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp = ts.request(t, admin, http.MethodPost,
			fmt.Sprintf("/chat/private/%s/admit/%d", groupName, filler.ID), nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	late := ts.seedUser(t, "latecomer", nil)
	resp = ts.request(t, late, http.MethodPost, "/chat/private/join",
		fiber.Map{"code": code})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestRejectAndLeave(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.seedUser(t, "alice", nil)
	guest := ts.seedUser(t, "bob", nil)

	resp := ts.request(t, admin, http.MethodPost, "/chat/private/create", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	room := decodeBody(t, resp)
	code := room["room_code"].(string)
	groupName := room["group_name"].(string)

	resp = ts.request(t, guest, http.MethodPost, "/chat/private/join",
		fiber.Map{"code": code})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.request(t, admin, http.MethodPost,
		fmt.Sprintf("/chat/private/%s/reject/%d", groupName, guest.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.request(t, admin, http.MethodGet, "/chat/private/"+groupName+"/waiting", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decodeBody(t, resp)["waiting"])

	// The creator can leave their own room.
	resp = ts.request(t, admin, http.MethodPost, "/chat/private/"+groupName+"/leave", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestOpenDirectRoomRoute(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.seedUser(t, "alice", nil)
	bob := ts.seedUser(t, "bob", nil)

	// First contact creates the room.
	resp := ts.request(t, alice, http.MethodPost,
		fmt.Sprintf("/chat/direct/%d", bob.ID), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	room := decodeBody(t, resp)
	groupName := room["group_name"].(string)
	assert.Equal(t, true, room["is_private"])

	// Opening from the other side resolves to the same room.
	resp = ts.request(t, bob, http.MethodPost,
		fmt.Sprintf("/chat/direct/%d", alice.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, groupName, decodeBody(t, resp)["group_name"])

	// Both members can read it; self-DM is rejected.
	resp = ts.request(t, bob, http.MethodGet, "/chat/room/"+groupName, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.request(t, alice, http.MethodPost,
		fmt.Sprintf("/chat/direct/%d", alice.ID), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

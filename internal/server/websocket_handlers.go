package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"vixogram/internal/cache"
	"vixogram/internal/middleware"
	"vixogram/internal/models"
	"vixogram/internal/notifications"
	"vixogram/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// IssueWSTicket mints a single-use websocket ticket for the caller. The
// client exchanges it as ?ticket= on the upgrade request.
func (s *Server) IssueWSTicket(c *fiber.Ctx) error {
	userID, ok := c.Locals("userID").(uint)
	if !ok {
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Authentication required"))
	}

	ticket, err := middleware.IssueWSTicket(c.UserContext(), userID)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusServiceUnavailable,
			models.NewInternalError(err))
	}
	return c.JSON(fiber.Map{"ticket": ticket})
}

// inboundFrame is what room websocket clients may send. Anything else is
// dropped; the rate-limit contract for WS is drop, not 429.
type inboundFrame struct {
	Type      string `json:"type"`
	IsTyping  bool   `json:"is_typing"`
	Body      string `json:"body"`
	ReplyToID *uint  `json:"reply_to_id"`
	TypedMs   int    `json:"typed_ms"`
}

// WebSocketChatHandler upgrades into a room session. Membership is checked
// before the upgrade so unauthorized users never hold a socket.
func (s *Server) WebSocketChatHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		user := middleware.CurrentUser(c)
		if user == nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authentication required"))
		}
		room, err := s.messageService.GetRoom(c.UserContext(), c.Params("name"))
		if err != nil {
			return models.RespondAppError(c, err)
		}
		if room.IsPrivate {
			member, err := s.roomRepo.IsMember(c.UserContext(), room.ID, user.ID)
			if err != nil || !member {
				return models.RespondAppError(c,
					models.NewForbiddenError("You are not a member of this room"))
			}
		}

		c.Locals("room", room)
		return websocket.New(s.serveRoomSocket)(c)
	}
}

func (s *Server) serveRoomSocket(conn *websocket.Conn) {
	ctx := context.Background()

	user, _ := conn.Locals("user").(*models.User)
	room, _ := conn.Locals("room").(*models.Room)
	if user == nil || room == nil {
		_ = conn.Close()
		return
	}

	client, err := s.fabric.Rooms().Register(room.GroupName, user.ID, user.Username, user.IsStealth, conn)
	if err != nil {
		log.Printf("WebSocket chat: failed to register user %d: %v", user.ID, err)
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
		_ = conn.Close()
		return
	}

	s.connManager.Register(ctx, user.ID, user.IsStealth)
	client.OnActivity = func(userID uint) {
		s.connManager.Touch(ctx, userID)
	}
	client.IncomingHandler = func(cl *notifications.Client, raw []byte) {
		s.handleRoomFrame(ctx, cl, user, room, raw)
	}

	go client.WritePump()
	client.ReadPump()

	s.connManager.Unregister(ctx, user.ID)
}

func (s *Server) handleRoomFrame(ctx context.Context, client *notifications.Client, user *models.User, room *models.Room, raw []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return
	}

	switch frame.Type {
	case "typing":
		// Keystroke relays are cheap to spam; drop past 10 per 10s.
		key := fmt.Sprintf("ws_typing:%d", user.ID)
		if count, _, err := cache.IncrWindow(ctx, key, 10*time.Second); err == nil && count > 10 {
			return
		}
		s.fabric.Rooms().BroadcastTyping(room.GroupName, user.ID, user.Username, frame.IsTyping)

	case "message":
		msg, err := s.messageService.Send(ctx, room, service.SendInput{
			Author:    user,
			Body:      frame.Body,
			ReplyToID: frame.ReplyToID,
			TypedMs:   frame.TypedMs,
		})
		if err != nil {
			// The pipeline's verdict goes back to the sender only.
			s.sendSocketError(client, err)
			return
		}
		// Fan-out skipped the author; echo the accepted message back so
		// WS-only clients see their own send.
		s.sendSocketEvent(client, notifications.RoomEvent{
			Type:    notifications.EventMessageCreated,
			Room:    room.GroupName,
			Payload: msg,
		})
	}
}

func (s *Server) sendSocketError(client *notifications.Client, err error) {
	payload := fiber.Map{"error": err.Error()}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		payload = fiber.Map{"error": appErr.Message, "code": appErr.Code}
		if appErr.RetryAfter > 0 {
			payload["retry_after"] = appErr.RetryAfter
		}
	}
	data, merr := json.Marshal(fiber.Map{"type": "error", "payload": payload})
	if merr != nil {
		return
	}
	client.TrySend(data)
}

func (s *Server) sendSocketEvent(client *notifications.Client, event notifications.RoomEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	client.TrySend(data)
}

// WebSocketNotifyHandler upgrades into the caller's notify channel.
func (s *Server) WebSocketNotifyHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		if middleware.CurrentUser(c) == nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authentication required"))
		}
		return websocket.New(s.serveNotifySocket)(c)
	}
}

func (s *Server) serveNotifySocket(conn *websocket.Conn) {
	ctx := context.Background()

	user, _ := conn.Locals("user").(*models.User)
	if user == nil {
		_ = conn.Close()
		return
	}

	client, err := s.fabric.Users().Register(user.ID, conn)
	if err != nil {
		log.Printf("WebSocket notify: failed to register user %d: %v", user.ID, err)
		_ = conn.Close()
		return
	}

	s.connManager.Register(ctx, user.ID, user.IsStealth)
	client.OnActivity = func(userID uint) {
		s.connManager.Touch(ctx, userID)
	}

	go client.WritePump()
	client.ReadPump()

	s.connManager.Unregister(ctx, user.ID)
}

// WebSocketOnlineHandler upgrades into the presence feed: an initial
// snapshot of online users followed by presence transition events.
func (s *Server) WebSocketOnlineHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		if middleware.CurrentUser(c) == nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authentication required"))
		}
		return websocket.New(s.serveOnlineSocket)(c)
	}
}

func (s *Server) serveOnlineSocket(conn *websocket.Conn) {
	ctx := context.Background()

	user, _ := conn.Locals("user").(*models.User)
	if user == nil {
		_ = conn.Close()
		return
	}

	client, err := s.fabric.Users().Register(user.ID, conn)
	if err != nil {
		log.Printf("WebSocket online: failed to register user %d: %v", user.ID, err)
		_ = conn.Close()
		return
	}

	s.connManager.Register(ctx, user.ID, user.IsStealth)
	client.OnActivity = func(userID uint) {
		s.connManager.Touch(ctx, userID)
	}

	go client.WritePump()

	// The aggregate omits stealth users; a stealth viewer still sees
	// themselves in their own snapshot.
	ids := s.connManager.GetOnlineUserIDs(ctx)
	if user.IsStealth {
		ids = append(ids, user.ID)
	}
	snapshot, merr := json.Marshal(fiber.Map{
		"type":    "online_users",
		"payload": fiber.Map{"user_ids": ids},
	})
	if merr == nil {
		client.TrySend(snapshot)
	}

	client.ReadPump()

	s.connManager.Unregister(ctx, user.ID)
}

package server

import (
	"path/filepath"

	"vixogram/internal/models"
	"vixogram/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const roomHistoryLimit = 30

// canViewRoom gates read access: private rooms (1:1 and code rooms) are
// member-only, everything else is open to any active user.
func (s *Server) canViewRoom(c *fiber.Ctx, room *models.Room, userID uint) (bool, error) {
	if !room.IsPrivate {
		return true, nil
	}
	return s.roomRepo.IsMember(c.UserContext(), room.ID, userID)
}

// GetRoom returns the room, its newest messages and the online count.
func (s *Server) GetRoom(c *fiber.Ctx) error {
	user, err := s.requireUser(c)
	if err != nil {
		return nil
	}
	room, err := s.roomFromParam(c)
	if err != nil {
		return nil
	}

	ok, err := s.canViewRoom(c, room, user.ID)
	if err != nil {
		return models.RespondAppError(c, models.NewInternalError(err))
	}
	if !ok {
		return models.RespondAppError(c, models.NewForbiddenError("You are not a member of this room"))
	}

	msgs, err := s.messageService.ListRecent(c.UserContext(), room.ID, roomHistoryLimit)
	if err != nil {
		return models.RespondAppError(c, err)
	}

	return c.JSON(fiber.Map{
		"room":         room,
		"messages":     msgs,
		"online_count": s.fabric.Rooms().OnlineCount(room.GroupName),
	})
}

type sendMessageRequest struct {
	Body      string `json:"body"`
	ReplyToID *uint  `json:"reply_to_id"`
	TypedMs   int    `json:"typed_ms"`
}

// SendMessage accepts a text message, or a media upload when the request is
// multipart with a "file" part. The accepted message is returned to the
// author directly; fan-out skips them.
func (s *Server) SendMessage(c *fiber.Ctx) error {
	user, err := s.requireUser(c)
	if err != nil {
		return nil
	}
	room, err := s.roomFromParam(c)
	if err != nil {
		return nil
	}

	in := service.SendInput{
		Author:    user,
		UserAgent: c.Get("User-Agent"),
	}

	if file, ferr := c.FormFile("file"); ferr == nil && file != nil {
		// The blob store is an external collaborator; the edge mints the
		// reference and records size and type for the policy checks.
		in.FileRef = "/media/" + uuid.NewString() + "/" + filepath.Base(file.Filename)
		in.ContentType = file.Header.Get("Content-Type")
		in.FileSize = file.Size
		in.Caption = c.FormValue("caption")
	} else {
		var req sendMessageRequest
		if err := c.BodyParser(&req); err != nil {
			// Fall back to form fields for non-JSON clients.
			req.Body = c.FormValue("body")
			req.TypedMs = c.QueryInt("typed_ms", 0)
		}
		in.Body = req.Body
		in.ReplyToID = req.ReplyToID
		in.TypedMs = req.TypedMs
	}

	msg, err := s.messageService.Send(c.UserContext(), room, in)
	if err != nil {
		return models.RespondAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// PollRoom is the fallback for clients without a live websocket.
func (s *Server) PollRoom(c *fiber.Ctx) error {
	user, err := s.requireUser(c)
	if err != nil {
		return nil
	}
	room, err := s.roomFromParam(c)
	if err != nil {
		return nil
	}

	ok, err := s.canViewRoom(c, room, user.ID)
	if err != nil {
		return models.RespondAppError(c, models.NewInternalError(err))
	}
	if !ok {
		return models.RespondAppError(c, models.NewForbiddenError("You are not a member of this room"))
	}

	after := c.QueryInt("after", 0)
	if after < 0 {
		after = 0
	}
	result, err := s.messageService.Poll(c.UserContext(), room, uint(after), 200)
	if err != nil {
		return models.RespondAppError(c, err)
	}
	return c.JSON(result)
}

type editMessageRequest struct {
	Body string `json:"body"`
}

// EditMessage updates a message body. Author only.
func (s *Server) EditMessage(c *fiber.Ctx) error {
	user, err := s.requireUser(c)
	if err != nil {
		return nil
	}
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req editMessageRequest
	if err := c.BodyParser(&req); err != nil {
		req.Body = c.FormValue("body")
	}

	if _, err := s.messageService.Edit(c.UserContext(), user, id, req.Body); err != nil {
		return models.RespondAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// DeleteMessage removes a message. Author or staff.
func (s *Server) DeleteMessage(c *fiber.Ctx) error {
	user, err := s.requireUser(c)
	if err != nil {
		return nil
	}
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.messageService.Delete(c.UserContext(), user, id); err != nil {
		return models.RespondAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type reactRequest struct {
	Emoji string `json:"emoji"`
}

// ReactToMessage toggles the caller's reaction on a message.
func (s *Server) ReactToMessage(c *fiber.Ctx) error {
	user, err := s.requireUser(c)
	if err != nil {
		return nil
	}
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req reactRequest
	if err := c.BodyParser(&req); err != nil {
		req.Emoji = c.FormValue("emoji")
	}

	if _, err := s.messageService.React(c.UserContext(), user, id, req.Emoji); err != nil {
		return models.RespondAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type markReadRequest struct {
	MessageID uint `json:"message_id"`
}

// MarkRoomRead advances the caller's read pointer for the room.
func (s *Server) MarkRoomRead(c *fiber.Ctx) error {
	user, err := s.requireUser(c)
	if err != nil {
		return nil
	}
	room, err := s.roomFromParam(c)
	if err != nil {
		return nil
	}

	var req markReadRequest
	if err := c.BodyParser(&req); err != nil || req.MessageID == 0 {
		return models.RespondAppError(c, models.NewValidationError("message_id required"))
	}

	if err := s.messageService.MarkRead(c.UserContext(), user, room, req.MessageID); err != nil {
		return models.RespondAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

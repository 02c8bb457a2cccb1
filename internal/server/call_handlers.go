package server

import (
	"vixogram/internal/models"

	"github.com/gofiber/fiber/v2"
)

type callInviteRequest struct {
	Type string `json:"type"`
}

// CallInvite broadcasts a call invite to the other member of a private
// room. DND members are not disturbed.
func (s *Server) CallInvite(c *fiber.Ctx) error {
	user, err := s.requireUser(c)
	if err != nil {
		return nil
	}
	room, err := s.roomFromParam(c)
	if err != nil {
		return nil
	}

	var req callInviteRequest
	if err := c.BodyParser(&req); err != nil {
		req.Type = c.FormValue("type")
	}

	if err := s.callService.Invite(c.UserContext(), user, room, req.Type); err != nil {
		return models.RespondAppError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

type callEventRequest struct {
	Action string `json:"action"`
	Type   string `json:"type"`
}

// CallEvent applies a start/end/decline transition. Duplicate transitions
// are absorbed and reported as deduped rather than failed.
func (s *Server) CallEvent(c *fiber.Ctx) error {
	user, err := s.requireUser(c)
	if err != nil {
		return nil
	}
	room, err := s.roomFromParam(c)
	if err != nil {
		return nil
	}

	var req callEventRequest
	if err := c.BodyParser(&req); err != nil {
		req.Action = c.FormValue("action")
		req.Type = c.FormValue("type")
	}

	result, err := s.callService.Event(c.UserContext(), user, room, req.Action, req.Type)
	if err != nil {
		return models.RespondAppError(c, err)
	}
	return c.JSON(result)
}

// RTCToken mints a channel-scoped RTC token for the caller.
func (s *Server) RTCToken(c *fiber.Ctx) error {
	user, err := s.requireUser(c)
	if err != nil {
		return nil
	}
	room, err := s.roomFromParam(c)
	if err != nil {
		return nil
	}

	token, err := s.callService.Token(c.UserContext(), user, room)
	if err != nil {
		return models.RespondAppError(c, err)
	}
	return c.JSON(token)
}

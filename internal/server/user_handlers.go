package server

import (
	"vixogram/internal/models"

	"github.com/gofiber/fiber/v2"
)

type changeUsernameRequest struct {
	Username string `json:"username"`
}

// ChangeUsername renames the caller, subject to the reserved-name policy
// and the change cooldown.
func (s *Server) ChangeUsername(c *fiber.Ctx) error {
	user, err := s.requireUser(c)
	if err != nil {
		return nil
	}

	var req changeUsernameRequest
	if err := c.BodyParser(&req); err != nil {
		req.Username = c.FormValue("username")
	}

	if err := s.userService.ChangeUsername(c.UserContext(), user, req.Username); err != nil {
		return models.RespondAppError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true, "username": req.Username})
}

type dndRequest struct {
	Enabled bool `json:"enabled"`
}

// SetDND toggles do-not-disturb for the caller.
func (s *Server) SetDND(c *fiber.Ctx) error {
	user, err := s.requireUser(c)
	if err != nil {
		return nil
	}

	var req dndRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondAppError(c, models.NewValidationError("Invalid request body"))
	}

	if err := s.userService.SetDND(c.UserContext(), user, req.Enabled); err != nil {
		return models.RespondAppError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true, "is_dnd": req.Enabled})
}

type chatBlockRequest struct {
	Blocked bool `json:"blocked"`
}

// SetChatBlocked flips a user's chat block. Staff only; the target is told
// over their notify channel so open sessions lock the composer.
func (s *Server) SetChatBlocked(c *fiber.Ctx) error {
	user, err := s.requireUser(c)
	if err != nil {
		return nil
	}
	targetID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req chatBlockRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondAppError(c, models.NewValidationError("Invalid request body"))
	}

	if err := s.userService.SetChatBlocked(c.UserContext(), user, targetID, req.Blocked); err != nil {
		return models.RespondAppError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true, "blocked": req.Blocked})
}

type pushTokenRequest struct {
	Token string `json:"token"`
}

// RegisterPushToken stores or refreshes a device push token for the caller.
func (s *Server) RegisterPushToken(c *fiber.Ctx) error {
	user, err := s.requireUser(c)
	if err != nil {
		return nil
	}

	var req pushTokenRequest
	if err := c.BodyParser(&req); err != nil {
		req.Token = c.FormValue("token")
	}

	if err := s.userService.RegisterPushToken(c.UserContext(), user, req.Token, c.Get("User-Agent")); err != nil {
		return models.RespondAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

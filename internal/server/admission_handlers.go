package server

import (
	"vixogram/internal/models"

	"github.com/gofiber/fiber/v2"
)

// OpenDirectRoom resolves the private 1:1 room between the caller and the
// user in the path, creating it on first contact. Created rooms answer 201,
// existing ones 200, so clients can tell a fresh chat from a revisit.
func (s *Server) OpenDirectRoom(c *fiber.Ctx) error {
	user, err := s.requireUser(c)
	if err != nil {
		return nil
	}
	otherID, err := s.parseID(c, "userId")
	if err != nil {
		return nil
	}

	room, created, err := s.admissionService.OpenDirectRoom(c.UserContext(), user, otherID)
	if err != nil {
		return models.RespondAppError(c, err)
	}
	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(room)
}

type createCodeRoomRequest struct {
	DisplayName string `json:"display_name"`
}

// CreateCodeRoom creates a private code room owned by the caller and
// returns it together with its shareable code.
func (s *Server) CreateCodeRoom(c *fiber.Ctx) error {
	user, err := s.requireUser(c)
	if err != nil {
		return nil
	}

	var req createCodeRoomRequest
	if err := c.BodyParser(&req); err != nil {
		req.DisplayName = c.FormValue("display_name")
	}

	room, err := s.admissionService.CreateCodeRoom(c.UserContext(), user, req.DisplayName)
	if err != nil {
		return models.RespondAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(room)
}

type joinByCodeRequest struct {
	Code string `json:"code"`
}

// JoinByCode files a join request for the room behind the code. Existing
// members are redirected straight in; everyone else lands on the waiting
// list until the room admin admits them.
func (s *Server) JoinByCode(c *fiber.Ctx) error {
	user, err := s.requireUser(c)
	if err != nil {
		return nil
	}

	var req joinByCodeRequest
	if err := c.BodyParser(&req); err != nil {
		req.Code = c.FormValue("code")
	}

	result, err := s.admissionService.JoinByCode(c.UserContext(), user, req.Code)
	if err != nil {
		return models.RespondAppError(c, err)
	}
	return c.JSON(result)
}

// JoinStatus is the pending user's poll. Each call heartbeats the request
// so the admin's waiting list reflects who is still around.
func (s *Server) JoinStatus(c *fiber.Ctx) error {
	user, err := s.requireUser(c)
	if err != nil {
		return nil
	}
	room, err := s.roomFromParam(c)
	if err != nil {
		return nil
	}

	outcome, err := s.admissionService.Status(c.UserContext(), user, room)
	if err != nil {
		return models.RespondAppError(c, err)
	}
	return c.JSON(fiber.Map{"status": outcome})
}

// WaitingList returns the live pending join requests. Room admin only.
func (s *Server) WaitingList(c *fiber.Ctx) error {
	user, err := s.requireUser(c)
	if err != nil {
		return nil
	}
	room, err := s.roomFromParam(c)
	if err != nil {
		return nil
	}

	pending, err := s.admissionService.WaitingList(c.UserContext(), user, room)
	if err != nil {
		return models.RespondAppError(c, err)
	}
	return c.JSON(fiber.Map{"waiting": pending})
}

// AdmitUser grants a pending join request. Room admin only.
func (s *Server) AdmitUser(c *fiber.Ctx) error {
	user, err := s.requireUser(c)
	if err != nil {
		return nil
	}
	room, err := s.roomFromParam(c)
	if err != nil {
		return nil
	}
	targetID, err := s.parseID(c, "userId")
	if err != nil {
		return nil
	}

	if err := s.admissionService.Admit(c.UserContext(), user, room, targetID); err != nil {
		return models.RespondAppError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

// RejectUser declines a pending join request. Room admin only.
func (s *Server) RejectUser(c *fiber.Ctx) error {
	user, err := s.requireUser(c)
	if err != nil {
		return nil
	}
	room, err := s.roomFromParam(c)
	if err != nil {
		return nil
	}
	targetID, err := s.parseID(c, "userId")
	if err != nil {
		return nil
	}

	if err := s.admissionService.Reject(c.UserContext(), user, room, targetID); err != nil {
		return models.RespondAppError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

// LeaveRoom drops the caller's membership. A later join-by-code starts a
// fresh pending request.
func (s *Server) LeaveRoom(c *fiber.Ctx) error {
	user, err := s.requireUser(c)
	if err != nil {
		return nil
	}
	room, err := s.roomFromParam(c)
	if err != nil {
		return nil
	}

	if err := s.admissionService.Leave(c.UserContext(), user, room); err != nil {
		return models.RespondAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

package server

import (
	"vixogram/internal/models"

	"github.com/gofiber/fiber/v2"
)

// ListNotifications returns the caller's inbox, newest first.
func (s *Server) ListNotifications(c *fiber.Ctx) error {
	user, err := s.requireUser(c)
	if err != nil {
		return nil
	}
	p := parsePagination(c, 20)

	items, err := s.notifyService.ListForUser(c.UserContext(), user.ID, p.Limit, p.Offset)
	if err != nil {
		return models.RespondAppError(c, models.NewInternalError(err))
	}
	return c.JSON(fiber.Map{"notifications": items})
}

// UnreadNotificationCount returns the caller's unread badge count.
func (s *Server) UnreadNotificationCount(c *fiber.Ctx) error {
	user, err := s.requireUser(c)
	if err != nil {
		return nil
	}

	count, err := s.notifyService.UnreadCount(c.UserContext(), user.ID)
	if err != nil {
		return models.RespondAppError(c, models.NewInternalError(err))
	}
	return c.JSON(fiber.Map{"unread": count})
}

// MarkNotificationRead marks a single notification as read.
func (s *Server) MarkNotificationRead(c *fiber.Ctx) error {
	user, err := s.requireUser(c)
	if err != nil {
		return nil
	}
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.notifyService.MarkRead(c.UserContext(), user.ID, id); err != nil {
		return models.RespondAppError(c, models.NewInternalError(err))
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// MarkAllNotificationsRead clears the caller's unread state.
func (s *Server) MarkAllNotificationsRead(c *fiber.Ctx) error {
	user, err := s.requireUser(c)
	if err != nil {
		return nil
	}

	if err := s.notifyService.MarkAllRead(c.UserContext(), user.ID); err != nil {
		return models.RespondAppError(c, models.NewInternalError(err))
	}
	return c.SendStatus(fiber.StatusNoContent)
}

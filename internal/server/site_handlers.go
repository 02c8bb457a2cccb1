package server

import (
	"vixogram/internal/models"

	"github.com/gofiber/fiber/v2"
)

// MaintenanceStatus reports the maintenance flag. Always public, never
// cached by intermediaries: clients poll it to decide when to reload.
func (s *Server) MaintenanceStatus(c *fiber.Ctx) error {
	c.Set("Cache-Control", "no-store, no-cache, must-revalidate")
	return c.JSON(fiber.Map{
		"enabled": s.retentionService.MaintenanceEnabled(c.UserContext()),
	})
}

type maintenanceToggleRequest struct {
	Enabled *bool `json:"enabled"`
}

// MaintenanceToggle flips the maintenance flag. Staff only. Without an
// explicit value in the body the flag is inverted.
func (s *Server) MaintenanceToggle(c *fiber.Ctx) error {
	var req maintenanceToggleRequest
	_ = c.BodyParser(&req)

	enabled := !s.retentionService.MaintenanceEnabled(c.UserContext())
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	if err := s.retentionService.SetMaintenance(c.UserContext(), enabled); err != nil {
		return models.RespondAppError(c, models.NewInternalError(err))
	}
	return c.JSON(fiber.Map{"ok": true, "enabled": enabled})
}

package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"vixogram/internal/service"
)

// Paths that stay reachable during maintenance so the flag itself can be
// observed and turned off.
var maintenanceAllowlist = []string{
	"/health",
	"/metrics",
	"/api/site/maintenance",
}

func maintenanceAllowed(path string) bool {
	for _, prefix := range maintenanceAllowlist {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// MaintenanceGate returns 503 for all non-staff traffic while the
// maintenance flag is on. Websocket upgrade attempts additionally get a
// redirect header so clients stop reconnecting and show the banner.
func MaintenanceGate(retention *service.RetentionService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if maintenanceAllowed(c.Path()) {
			return c.Next()
		}
		if !retention.MaintenanceEnabled(c.UserContext()) {
			return c.Next()
		}
		if user := CurrentUser(c); user != nil && user.IsStaff {
			return c.Next()
		}

		if strings.EqualFold(c.Get("Upgrade"), "websocket") {
			c.Set("X-Maintenance-Redirect", "/maintenance")
		}
		c.Set("Retry-After", "120")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "The service is down for maintenance",
		})
	}
}

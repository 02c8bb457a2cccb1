// Package server contains HTTP and WebSocket handlers for the chat edge.
package server

import (
	"errors"

	"vixogram/internal/middleware"
	"vixogram/internal/models"

	"github.com/gofiber/fiber/v2"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper.  Handlers must return nil (not this error) to avoid
// Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

// Pagination holds parsed limit/offset query parameters.
type Pagination struct {
	Limit  int
	Offset int
}

const maxPaginationLimit = 100

// parsePagination extracts limit and offset query parameters with the given default limit.
func parsePagination(c *fiber.Ctx, defaultLimit int) Pagination {
	limit := c.QueryInt("limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxPaginationLimit {
		limit = maxPaginationLimit
	}

	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}

	return Pagination{Limit: limit, Offset: offset}
}

// parseID extracts a route parameter by name as a positive uint.
// On failure it writes a 400 JSON response and returns errResponseWritten;
// callers should then return nil.
func (s *Server) parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := c.ParamsInt(param)
	if err != nil || id <= 0 {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid "+param))
		return 0, errResponseWritten
	}
	return uint(id), nil
}

// roomFromParam loads the room named by the :name route parameter. On
// failure it writes a 404 and returns errResponseWritten.
func (s *Server) roomFromParam(c *fiber.Ctx) (*models.Room, error) {
	name := c.Params("name")
	if name == "" {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Room name required"))
		return nil, errResponseWritten
	}
	room, err := s.messageService.GetRoom(c.UserContext(), name)
	if err != nil {
		_ = models.RespondAppError(c, err)
		return nil, errResponseWritten
	}
	return room, nil
}

// requireUser returns the loaded user or writes a 401. Handlers behind the
// auth chain should never hit the error path; websocket upgrades can.
func (s *Server) requireUser(c *fiber.Ctx) (*models.User, error) {
	user := middleware.CurrentUser(c)
	if user == nil {
		_ = models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Authentication required"))
		return nil, errResponseWritten
	}
	return user, nil
}

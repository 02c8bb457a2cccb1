// Package middleware provides the HTTP edge chain: authentication,
// request logging, per-IP rate limiting, and the maintenance gate.
package middleware

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"vixogram/internal/cache"
	"vixogram/internal/config"
	"vixogram/internal/models"
	"vixogram/internal/repository"
)

var cfg *config.Config

// InitMiddleware initializes the middleware package with the given config.
func InitMiddleware(c *config.Config) {
	cfg = c
}

func userIDFromToken(tokenString string) (uint, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid signing method")
		}
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return 0, fiber.NewError(fiber.StatusUnauthorized, "Invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, fiber.NewError(fiber.StatusUnauthorized, "Invalid token claims")
	}
	subStr, ok := claims["sub"].(string)
	if !ok {
		return 0, fiber.NewError(fiber.StatusUnauthorized, "Invalid token subject")
	}
	userID, err := strconv.ParseUint(subStr, 10, 32)
	if err != nil {
		return 0, fiber.NewError(fiber.StatusUnauthorized, "Invalid user ID in token")
	}
	return uint(userID), nil
}

// AuthRequired enforces a Bearer token and stores the user ID in locals.
func AuthRequired(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authorization header required",
		})
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid authorization header format",
		})
	}

	userID, err := userIDFromToken(parts[1])
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	c.Locals("userID", userID)
	return c.Next()
}

// RequireUser loads the authenticated user and enforces that the account is
// active. Runs after AuthRequired; the loaded user lands in locals.
func RequireUser(users repository.UserRepository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, ok := c.Locals("userID").(uint)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authentication required",
			})
		}
		user, err := users.GetByID(c.UserContext(), userID)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unknown user",
			})
		}
		if !user.IsActive {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Account is not active",
			})
		}
		c.Locals("user", user)
		return c.Next()
	}
}

// CurrentUser returns the user loaded by RequireUser, or nil.
func CurrentUser(c *fiber.Ctx) *models.User {
	user, _ := c.Locals("user").(*models.User)
	return user
}

const wsTicketTTL = 30 * time.Second

// IssueWSTicket creates a single-use, short-lived websocket ticket bound to
// the user. Clients exchange it on the upgrade request so tokens never
// appear in websocket URLs that outlive the handshake.
func IssueWSTicket(ctx context.Context, userID uint) (string, error) {
	ticket := uuid.NewString()
	err := cache.SetWithTTL(ctx, cache.WSTicketKey(ticket), strconv.FormatUint(uint64(userID), 10), wsTicketTTL)
	if err != nil {
		return "", err
	}
	return ticket, nil
}

// ConsumeWSTicket redeems a ticket exactly once and returns the bound user.
func ConsumeWSTicket(ctx context.Context, ticket string) (uint, bool) {
	key := cache.WSTicketKey(ticket)
	value, found, err := cache.GetString(ctx, key)
	if err != nil || !found {
		return 0, false
	}
	_ = cache.Delete(ctx, key)
	userID, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint(userID), true
}

// WebSocketAuthRequired authenticates an upgrade request from a single-use
// ticket query parameter, falling back to a Bearer token for clients that
// can send headers.
func WebSocketAuthRequired(c *fiber.Ctx) error {
	if ticket := c.Query("ticket"); ticket != "" {
		if userID, ok := ConsumeWSTicket(c.UserContext(), ticket); ok {
			c.Locals("userID", userID)
			return c.Next()
		}
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid or expired ticket",
		})
	}

	authHeader := c.Get("Authorization")
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Token required",
		})
	}
	userID, err := userIDFromToken(parts[1])
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	c.Locals("userID", userID)
	return c.Next()
}

package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"vixogram/internal/cache"
	"vixogram/internal/config"
	"vixogram/internal/database"
	"vixogram/internal/models"
	"vixogram/internal/repository"
	"vixogram/internal/service"
)

func setupMaintenance(t *testing.T) (*fiber.App, *service.RetentionService) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	mr := miniredis.RunT(t)
	cache.SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { cache.SetClient(nil) })

	cfg := &config.Config{JWTSecret: testSecret, KeepLastMessages: 100}
	retention := service.NewRetentionService(cfg,
		repository.NewRoomRepository(db),
		repository.NewMessageRepository(db),
		repository.NewNotificationRepository(db),
	)

	app := fiber.New()
	app.Use(MaintenanceGate(retention))
	app.Get("/chat/room/lobby", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Get("/api/site/maintenance/status", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	return app, retention
}

func TestMaintenanceGateBlocksWhenEnabled(t *testing.T) {
	app, retention := setupMaintenance(t)
	ctx := context.Background()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/chat/room/lobby", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, retention.SetMaintenance(ctx, true))
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/chat/room/lobby", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	// The flag endpoint stays reachable.
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/site/maintenance/status", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMaintenanceGateStaffBypass(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	mr := miniredis.RunT(t)
	cache.SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { cache.SetClient(nil) })

	cfg := &config.Config{JWTSecret: testSecret, KeepLastMessages: 100}
	retention := service.NewRetentionService(cfg,
		repository.NewRoomRepository(db),
		repository.NewMessageRepository(db),
		repository.NewNotificationRepository(db),
	)
	require.NoError(t, retention.SetMaintenance(context.Background(), true))

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user", &models.User{ID: 1, IsStaff: true, IsActive: true})
		return c.Next()
	})
	app.Use(MaintenanceGate(retention))
	app.Get("/chat/room/lobby", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/chat/room/lobby", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMaintenanceGateWSRedirectHeader(t *testing.T) {
	app, retention := setupMaintenance(t)
	require.NoError(t, retention.SetMaintenance(context.Background(), true))

	req := httptest.NewRequest(http.MethodGet, "/chat/room/lobby", nil)
	req.Header.Set("Upgrade", "websocket")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "/maintenance", resp.Header.Get("X-Maintenance-Redirect"))
}

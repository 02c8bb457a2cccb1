// Package server contains HTTP and WebSocket handlers for the chat edge.
package server

import (
	"context"
	"fmt"
	"log"
	"time"

	"vixogram/internal/abuse"
	"vixogram/internal/cache"
	"vixogram/internal/config"
	"vixogram/internal/database"
	"vixogram/internal/featureflags"
	"vixogram/internal/middleware"
	"vixogram/internal/models"
	"vixogram/internal/notifications"
	"vixogram/internal/observability"
	"vixogram/internal/policy"
	"vixogram/internal/repository"
	"vixogram/internal/service"
	"vixogram/internal/worker"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	userRepo         repository.UserRepository
	roomRepo         repository.RoomRepository
	messageRepo      repository.MessageRepository
	notificationRepo repository.NotificationRepository

	fabric      *notifications.Fabric
	connManager *notifications.ConnectionManager
	worker      worker.Worker
	flags       *featureflags.Flags

	messageService   *service.MessageService
	callService      *service.CallService
	admissionService *service.AdmissionService
	notifyService    *service.NotifyService
	retentionService *service.RetentionService
	userService      *service.UserService
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	redisClient := cache.GetClient()

	return NewServerWithDeps(cfg, db, redisClient)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis and
// optionally performs explicit seeding.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	userRepo := repository.NewUserRepository(db)
	roomRepo := repository.NewRoomRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	prom := middleware.InitMetrics("vixogram-api")
	middleware.InitMiddleware(cfg)

	s := &Server{
		config:           cfg,
		db:               db,
		redis:            redisClient,
		promMiddleware:   prom,
		userRepo:         userRepo,
		roomRepo:         roomRepo,
		messageRepo:      messageRepo,
		notificationRepo: notificationRepo,
		flags:            featureflags.Parse(cfg.FeatureFlags),
	}

	// The fabric degrades to in-process delivery when Redis is absent, so
	// it is constructed unconditionally.
	notifier := notifications.NewNotifier(redisClient)
	s.fabric = notifications.NewFabric(notifications.NewRoomHub(), notifications.NewHub(), notifier)

	s.connManager = notifications.NewConnectionManager(redisClient, notifications.ConnectionManagerConfig{
		OnUserOnline:  s.announcePresence(true),
		OnUserOffline: s.announcePresence(false),
	})

	if redisClient != nil {
		s.worker = worker.NewQueue(redisClient)
	} else {
		s.worker = worker.NewPool(4)
	}

	engine := abuse.NewEngine(cfg)

	s.retentionService = service.NewRetentionService(cfg, roomRepo, messageRepo, notificationRepo)
	s.notifyService = service.NewNotifyService(cfg, notificationRepo, userRepo, s.fabric, s.worker)
	s.messageService = service.NewMessageService(
		cfg, userRepo, roomRepo, messageRepo, engine, s.fabric,
		s.notifyService, s.retentionService,
		service.NewLLMModerator(cfg), policy.NewPreviewFetcher(), s.worker,
	)
	s.callService = service.NewCallService(cfg, userRepo, roomRepo, messageRepo, engine, s.fabric)
	s.admissionService = service.NewAdmissionService(cfg, roomRepo, userRepo, s.fabric)
	s.userService = service.NewUserService(cfg, userRepo, s.fabric)

	pushSender := service.NewHTTPPushSender(cfg)
	if pushSender == nil {
		observability.Logger.Warn("no push provider configured; push notifications are disabled")
	}
	service.RegisterPushHandler(s.worker, userRepo, pushSender)
	s.registerBotHandler()

	return s, nil
}

// DB exposes the underlying database handle for bootstrap tasks.
func (s *Server) DB() *gorm.DB {
	return s.db
}

// announcePresence returns a connection-manager callback broadcasting a
// user's online transition to every notify session. Stealth users stay
// invisible.
func (s *Server) announcePresence(online bool) func(userID uint) {
	return func(userID uint) {
		user, err := s.userRepo.GetByID(context.Background(), userID)
		if err != nil || user.IsStealth {
			return
		}
		s.fabric.PublishAll(context.Background(), notifications.UserEvent{
			Type: "presence",
			Payload: fiber.Map{
				"user_id":  userID,
				"username": user.Username,
				"online":   online,
			},
		})
	}
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	// Context middleware propagates request ID and user ID into slog
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Security headers
	app.Use(helmet.New())

	app.Use(middleware.StructuredLogger())

	// CORS runs before middlewares that can short-circuit (e.g. limiter)
	// so browser clients still receive CORS headers on error responses.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		// Never rate-limit preflight requests; they belong to CORS.
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return middleware.ClientIP(c)
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	// Legacy alias kept for existing probes
	app.Get("/health", s.ReadinessCheck)

	// Metrics endpoint for Prometheus
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api := app.Group("/api")
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "Vixogram Metrics Dashboard",
	}))

	// Maintenance status is public and always reachable, toggle is staff-only.
	site := api.Group("/site")
	site.Get("/maintenance/status", s.MaintenanceStatus)
	site.Post("/maintenance/toggle",
		middleware.AuthRequired, middleware.RequireUser(s.userRepo), s.StaffRequired, s.MaintenanceToggle)

	// Everything below requires an authenticated, active user. The
	// maintenance gate sits after user loading so staff can bypass it.
	authed := []fiber.Handler{
		middleware.AuthRequired,
		middleware.RequireUser(s.userRepo),
		middleware.MaintenanceGate(s.retentionService),
	}

	// WebSocket ticket issuance, rate limited per IP like an auth endpoint.
	api.Post("/ws/ticket", middleware.AuthRateLimit(10, time.Minute), middleware.AuthRequired, s.IssueWSTicket)

	// Notification inbox
	inbox := api.Group("/notifications", authed...)
	inbox.Get("/", s.ListNotifications)
	inbox.Get("/unread-count", s.UnreadNotificationCount)
	inbox.Post("/read-all", s.MarkAllNotificationsRead)
	inbox.Post("/:id/read", s.MarkNotificationRead)

	// User settings
	users := api.Group("/users", authed...)
	users.Post("/me/username", s.ChangeUsername)
	users.Post("/me/dnd", s.SetDND)
	users.Post("/me/push-token", s.RegisterPushToken)
	users.Post("/:id/chat-block", s.StaffRequired, s.SetChatBlocked)

	// Chat surface
	chat := app.Group("/chat", authed...)
	chat.Get("/room/:name", s.GetRoom)
	chat.Post("/room/:name", s.SendMessage)
	chat.Post("/room/:name/read", s.MarkRoomRead)
	chat.Get("/poll/:name", s.PollRoom)
	chat.Post("/message/:id/edit", s.EditMessage)
	chat.Post("/message/:id/delete", s.DeleteMessage)
	chat.Post("/message/:id/react", s.ReactToMessage)

	// Direct 1:1 rooms
	chat.Post("/direct/:userId", s.OpenDirectRoom)

	// Code rooms
	chat.Post("/private/create", s.CreateCodeRoom)
	chat.Post("/private/join", s.JoinByCode)
	chat.Get("/private/:name/status", s.JoinStatus)
	chat.Get("/private/:name/waiting", s.WaitingList)
	chat.Post("/private/:name/admit/:userId", s.AdmitUser)
	chat.Post("/private/:name/reject/:userId", s.RejectUser)
	chat.Post("/private/:name/leave", s.LeaveRoom)

	// Call signalling
	chat.Post("/call/invite/:name", s.CallInvite)
	chat.Post("/call/event/:name", s.CallEvent)
	chat.Get("/agora/token/:name", s.RTCToken)

	// Websocket endpoints authenticate with a single-use ticket (or a
	// Bearer header for clients that can send one).
	ws := app.Group("/ws", middleware.WebSocketAuthRequired, middleware.RequireUser(s.userRepo))
	ws.Get("/chat/:name", s.WebSocketChatHandler())
	ws.Get("/notify", s.WebSocketNotifyHandler())
	ws.Get("/online", s.WebSocketOnlineHandler())
}

// StaffRequired rejects non-staff users with 403. Runs after RequireUser.
func (s *Server) StaffRequired(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	if user == nil || !user.IsStaff {
		return models.RespondWithError(c, fiber.StatusForbidden,
			models.NewForbiddenError("Staff access required"))
	}
	return c.Next()
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		// The chat core degrades to single-instance mode without Redis;
		// surface that without failing readiness.
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// Start starts the server
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	app := fiber.New(fiber.Config{
		AppName: "Vixogram API",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	s.app = app

	s.SetupMiddleware(app)
	s.SetupRoutes(app)

	go func() {
		if err := s.fabric.StartWiring(s.shutdownCtx); err != nil {
			log.Printf("failed to start fabric wiring: %v", err)
		}
	}()

	if q, ok := s.worker.(*worker.Queue); ok {
		go q.Run(s.shutdownCtx)
	}

	s.retentionService.StartPurgeLoop(s.shutdownCtx, time.Hour)

	log.Printf("Server starting on port %s...", s.config.Port)
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	// Cancel the server-scoped context to stop wiring and purge goroutines
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			log.Printf("error shutting down HTTP server: %v", err)
		}
	}

	if err := s.fabric.Shutdown(ctx); err != nil {
		log.Printf("error shutting down fabric: %v", err)
	}
	s.connManager.Stop()

	if err := s.worker.Shutdown(ctx); err != nil {
		log.Printf("error shutting down worker: %v", err)
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Printf("error closing sql DB: %v", cerr)
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			log.Printf("error closing redis: %v", rerr)
		}
	}

	log.Println("Server shutdown complete")
	return nil
}

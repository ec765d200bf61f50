package main

import (
	"context"
	"errors"
	"log"
	"os"
	"strconv"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/websocket/v2"
	"github.com/mebelplace/mebelplace-backend/internal/auth"
	"github.com/mebelplace/mebelplace-backend/internal/cache"
	"github.com/mebelplace/mebelplace-backend/internal/config"
	"github.com/mebelplace/mebelplace-backend/internal/handlers"
	"github.com/mebelplace/mebelplace-backend/internal/httpx"
	"github.com/mebelplace/mebelplace-backend/internal/middleware"
	"github.com/mebelplace/mebelplace-backend/internal/realtime"
	"github.com/mebelplace/mebelplace-backend/internal/repository"
	"github.com/mebelplace/mebelplace-backend/internal/service"
	"github.com/mebelplace/mebelplace-backend/internal/storage"
)

const (
	pendingCleanupInterval = time.Hour
	pendingMaxAge          = 7 * 24 * time.Hour
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Invalid configuration: ", err)
	}

	// Initialize database connection
	db, err := repository.InitDB(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal("Failed to connect to database: ", err)
	}

	// Initialize Redis cache (optional)
	redisCache := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 3*time.Second)
	if err := redisCache.Ping(pingCtx); err != nil {
		log.Printf("WARNING: Redis connection failed: %v. Running without cache.", err)
		_ = redisCache.Close()
		redisCache = nil
	} else {
		log.Println("Redis cache connected successfully")
	}
	cancelPing()

	messageCache := cache.NewMessageCache(redisCache)
	presenceCache := cache.NewPresenceCache(redisCache)

	// Initialize S3/MinIO storage (best-effort; file uploads return 503 if missing)
	var objectStore storage.ObjectStore
	if s3cfg, err := storage.LoadS3ConfigFromEnv(); err != nil {
		log.Printf("WARNING: S3 storage not configured: %v", err)
	} else if st, err := storage.NewS3Storage(s3cfg); err != nil {
		log.Printf("WARNING: Failed to initialize S3 storage: %v", err)
	} else {
		bucketCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := st.EnsureBucket(bucketCtx, s3cfg.Region); err != nil {
			log.Printf("WARNING: Could not verify bucket %s: %v", s3cfg.Bucket, err)
		}
		cancel()
		objectStore = st
		log.Printf("S3 storage initialized successfully (bucket=%s)", s3cfg.Bucket)
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	chatRepo := repository.NewChatRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	pendingRepo := repository.NewPendingEventRepository(db)
	transactor := repository.NewTransactor(db)

	hub := realtime.NewHub(userRepo, presenceCache, cfg.TypingTTL)

	// Initialize services
	messageService := service.NewMessageService(messageRepo, chatRepo, messageCache, hub, service.MessageServiceConfig{
		DeliveryMode:     cfg.DeliveryMode,
		DeliveryDelay:    cfg.DeliveryDelay,
		MaxMessageLength: cfg.MaxMessageLength,
	})
	chatService := service.NewChatService(chatRepo, userRepo, messageCache, hub)
	notificationService := service.NewNotificationService(pendingRepo, hub)
	orderService := service.NewOrderService(orderRepo, transactor, notificationService, messageCache)
	mediaService := service.NewMediaService(objectStore, chatRepo, messageService)

	// Initialize handlers
	verifier := auth.NewTokenVerifier(cfg.JWTSecret)
	wsHandler := handlers.NewWebSocketHandler(hub, messageService, chatService, notificationService, handlers.WebSocketConfig{
		PingInterval: cfg.PingInterval,
		PongTimeout:  cfg.PongTimeout,
		Debug:        cfg.WSDebug,
	})
	chatHandler := handlers.NewChatHandler(chatService)
	messageHandler := handlers.NewMessageHandler(messageService, mediaService)
	orderHandler := handlers.NewOrderHandler(orderService)
	mediaHandler := handlers.NewMediaHandler(mediaService)
	userHandler := handlers.NewUserHandler(userRepo, hub)

	app := fiber.New(fiber.Config{
		AppName: "MebelPlace Chat",
		// Chat attachments up to 50MB + multipart overhead.
		BodyLimit: int(service.MaxUploadBytes) + 1024*1024,
	})

	// Middleware
	app.Use(requestid.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, " + middleware.CSRFHeader,
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: true,
	}))

	api := app.Group("/api",
		middleware.OriginAllowed(cfg.AllowedOrigins),
		middleware.AuthRequired(verifier, false),
		middleware.CSRFRequired(cfg.CSRFMode, cfg.AllowedOrigins),
	)

	// Chat routes
	api.Get("/chat/list", chatHandler.List)
	api.Post("/chat/private", chatHandler.OpenPrivate)
	api.Get("/chat/:id", chatHandler.Get)
	api.Get("/chat/:id/messages", messageHandler.GetMessages)
	api.Post(
		"/chat/:id/message",
		limiter.New(limiter.Config{
			Max:        60,
			Expiration: time.Minute,
			KeyGenerator: func(c *fiber.Ctx) string {
				if uid, err := httpx.LocalUint(c, "userID"); err == nil {
					return "send:" + strconv.FormatUint(uint64(uid), 10)
				}
				return c.IP()
			},
		}),
		messageHandler.SendMessage,
	)
	api.Put("/chat/:id/read", messageHandler.MarkRead)
	api.Get("/chat/:id/unread", messageHandler.UnreadCount)
	api.Post("/chat/:id/leave", chatHandler.Leave)

	// Order routes
	api.Post("/orders/:id/accept", middleware.RequireRole("client", "admin"), orderHandler.AcceptResponse)

	// Media and presence
	api.Get("/media/chat-files/*", mediaHandler.GetChatFile)
	api.Get("/presence", userHandler.Presence)
	api.Get("/presence/online", userHandler.OnlineUsers)
	api.Get("/users/:id/status", userHandler.GetUserStatus)

	// WebSocket route (browsers cannot set headers on the upgrade, so ?token= is accepted)
	app.Use(
		"/ws",
		middleware.OriginAllowed(cfg.AllowedOrigins),
		middleware.AuthRequired(verifier, true),
		wsHandler.Upgrade,
	)
	app.Get("/ws", websocket.New(wsHandler.HandleWebSocket))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":      "ok",
			"message":     "MebelPlace chat is running",
			"connections": hub.Count(),
		})
	})

	bgCtx, stopBackground := context.WithCancel(context.Background())
	go notificationService.RunCleanup(bgCtx, pendingCleanupInterval, pendingMaxAge)

	// Start server
	go func() {
		log.Printf("Server starting on port %s...", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatal("Failed to start server: ", err)
		}
	}()

	// Operations run concurrently, so teardown that depends on order stays in one.
	wait := gfshutdown.GracefulShutdown(context.Background(), cfg.ShutdownTimeout, map[string]gfshutdown.Operation{
		"chat-server": func(ctx context.Context) error {
			stopBackground()
			// Closing sockets first lets the HTTP server drain upgraded connections.
			hubErr := hub.Shutdown(ctx)
			httpErr := app.ShutdownWithContext(ctx)
			messageService.Close()
			orderService.Wait()

			if redisCache != nil {
				_ = redisCache.Close()
			}
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
			return errors.Join(hubErr, httpErr)
		},
	})
	exitCode := <-wait
	log.Printf("Server stopped (exit code %d)", exitCode)
	os.Exit(exitCode)
}

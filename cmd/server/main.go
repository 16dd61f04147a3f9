package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/attensys/upload-relay/internal/client"
	"github.com/attensys/upload-relay/internal/config"
	"github.com/attensys/upload-relay/internal/handler"
	"github.com/attensys/upload-relay/internal/logging"
	"github.com/attensys/upload-relay/internal/middleware"
	"github.com/attensys/upload-relay/internal/queue"
	"github.com/attensys/upload-relay/internal/service"
	ws "github.com/attensys/upload-relay/internal/websocket"
	"github.com/attensys/upload-relay/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logging.New(cfg.Log)
	ctx := context.Background()

	// Redis backs the store (optionally), the drain scheduler, the drain
	// lock, and the rate limiter. Without it the relay still works:
	// sqlite store, inline drains, no limiting.
	redisClient := connectRedis(ctx, cfg, log)

	// Queue store
	store, err := newStore(cfg, redisClient)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open queue store")
	}
	defer store.Close()

	// WebSocket hub delivers upload lifecycle events to subscribers.
	hub := ws.NewHub(log)
	go hub.Run()

	// Remote pinning gateway
	pinner := client.NewPinningClient(cfg.Pinning.BaseURL, cfg.Pinning.Network, cfg.Pinning.Timeout)

	// Drain orchestration
	var locker worker.Locker
	if redisClient != nil {
		locker = worker.NewRedisLocker(redisClient)
	} else {
		locker = worker.NewLocalLocker()
	}
	drainer := worker.NewDrainer(store, pinner, hub, locker, log)

	var scheduler worker.Scheduler
	var asynqClient *asynq.Client
	if redisClient != nil {
		asynqClient = asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer asynqClient.Close()
		scheduler = worker.NewAsynqScheduler(asynqClient, func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
		go startWorkerServer(cfg, drainer, log)
	} else {
		log.Warn().Msg("redis unavailable, drains run inline")
		scheduler = worker.NewInlineScheduler(drainer)
	}

	// Host bridge
	validate := validator.New()
	uploadService := service.NewUploadService(store, scheduler, log)
	if readiness, err := uploadService.Initialize(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize upload service")
	} else {
		log.Info().Str("readiness", string(readiness)).Msg("upload service initialized")
	}

	uploadHandler := handler.NewUploadHandler(uploadService, validate)
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    55 * 1024 * 1024, // a little headroom over the 50MB file limit
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "ok",
			"readiness": string(uploadService.Readiness()),
		})
	})

	// API routes
	api := app.Group("/api", authMiddleware.Authenticate())

	uploads := api.Group("/uploads")
	uploads.Post("/", rateLimiter.UploadLimit(cfg.RateLimit.UploadPerHour), uploadHandler.Enqueue)
	uploads.Post("/drain", rateLimiter.DrainLimit(cfg.RateLimit.DrainPerMin), uploadHandler.Drain)
	uploads.Get("/", uploadHandler.List)
	uploads.Get("/:id", uploadHandler.Get)
	uploads.Get("/:id/result", uploadHandler.Result)
	uploads.Delete("/:id", uploadHandler.Remove)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/uploads/:id", websocket.New(func(c *websocket.Conn) {
		uploadID := c.Params("id")
		hub.HandleConnection(c, uploadID)
	}))

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Info().Str("addr", addr).Msg("server starting")
	if err := app.Listen(addr); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

// connectRedis pings Redis with a fibonacci backoff so a relay starting
// alongside its Redis container does not give up immediately. Returns
// nil when Redis stays unreachable.
func connectRedis(ctx context.Context, cfg *config.Config, log zerolog.Logger) *redis.Client {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	backoff := retry.WithMaxRetries(5, retry.NewFibonacci(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis not reachable")
		_ = redisClient.Close()
		return nil
	}
	return redisClient
}

func newStore(cfg *config.Config, redisClient *redis.Client) (queue.Store, error) {
	if cfg.Store.Driver == "redis" {
		if redisClient == nil {
			return nil, errRedisStoreUnavailable
		}
		return queue.NewRedisStore(redisClient, cfg.Store.ResultRetention), nil
	}
	return queue.NewSQLiteStore(cfg.Store.SQLitePath)
}

var errRedisStoreUnavailable = errors.New("store.driver is redis but redis is unreachable")

func startWorkerServer(cfg *config.Config, drainer *worker.Drainer, log zerolog.Logger) {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			// Drain passes serialize on the advisory lock anyway, so a
			// single worker slot is enough.
			Concurrency: 1,
			Queues: map[string]int{
				"uploads": 1,
			},
		},
	)

	drainWorker := worker.NewDrainWorker(drainer)

	mux := asynq.NewServeMux()
	mux.HandleFunc(worker.TaskTypeDrain, drainWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Error().Err(err).Msg("asynq worker error")
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}

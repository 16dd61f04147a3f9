package e2e

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/attensys/upload-relay/internal/client"
	"github.com/attensys/upload-relay/internal/handler"
	"github.com/attensys/upload-relay/internal/middleware"
	"github.com/attensys/upload-relay/internal/queue"
	"github.com/attensys/upload-relay/internal/service"
	"github.com/attensys/upload-relay/internal/websocket"
	"github.com/attensys/upload-relay/internal/worker"
)

const testJWTSecret = "test-secret-for-e2e"

// testApp holds all components needed for testing
type testApp struct {
	app  *fiber.App
	auth *middleware.AuthMiddleware
	svc  *service.UploadService
}

// setupApp builds a Fiber app mirroring main.go, wired to a temp sqlite
// store and an inline drain scheduler so no Redis is needed. pinningURL
// is the mocked remote gateway.
func setupApp(t *testing.T, pinningURL string) *testApp {
	t.Helper()

	log := zerolog.Nop()

	store, err := queue.NewSQLiteStore(filepath.Join(t.TempDir(), "uploads.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	hub := websocket.NewHub(log)
	go hub.Run()

	pinner := client.NewPinningClient(pinningURL, "private", 0)
	drainer := worker.NewDrainer(store, pinner, hub, worker.NewLocalLocker(), log)
	scheduler := worker.NewInlineScheduler(drainer)

	svc := service.NewUploadService(store, scheduler, log)
	if _, err := svc.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize upload service: %v", err)
	}

	validate := validator.New()
	uploadHandler := handler.NewUploadHandler(svc, validate)
	authMiddleware := middleware.NewAuthMiddleware(testJWTSecret)
	rateLimiter := middleware.NewRateLimiter(nil)

	app := fiber.New()
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "ok",
			"readiness": string(svc.Readiness()),
		})
	})

	api := app.Group("/api", authMiddleware.Authenticate())
	uploads := api.Group("/uploads")
	uploads.Post("/", rateLimiter.UploadLimit(50), uploadHandler.Enqueue)
	uploads.Post("/drain", rateLimiter.DrainLimit(30), uploadHandler.Drain)
	uploads.Get("/", uploadHandler.List)
	uploads.Get("/:id", uploadHandler.Get)
	uploads.Get("/:id/result", uploadHandler.Result)
	uploads.Delete("/:id", uploadHandler.Remove)

	return &testApp{app: app, auth: authMiddleware, svc: svc}
}

func (ta *testApp) token(t *testing.T) string {
	t.Helper()
	token, err := ta.auth.GenerateToken("user-1", "user@attensys.io")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token
}

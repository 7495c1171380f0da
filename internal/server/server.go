package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/1F47E/geo-marker-cluster/internal/metrics"
	"github.com/1F47E/geo-marker-cluster/pkg/models"
	"github.com/1F47E/geo-marker-cluster/pkg/pipeline"
)

// Dependencies are shared read-only by every request
type Dependencies struct {
	Pipeline *pipeline.Pipeline
	// Features are the raw features loaded at startup, in dataset order
	Features  []*models.Feature
	Discarded int
	Metrics   *metrics.Collector
	Logger    *slog.Logger
}

type Config struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// New builds the fiber app with every route registered
func New(cfg Config, deps *Dependencies) *fiber.App {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		AppName:               "markercluster",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(accessLog(deps.Logger))

	SetupRoutes(app, deps)
	return app
}

// SetupRoutes registers the v1 API and the metrics endpoint
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	app.Get("/metrics", metricsHandler(deps.Metrics))

	v1 := app.Group("/v1")
	v1.Get("/health", HealthHandler(deps))
	v1.Get("/viewbox", ViewBoxHandler(deps))
	v1.Get("/points", PointsHandler(deps))
	v1.Get("/points/:id", PointHandler(deps))
}

// Serve listens on cfg.Port until ctx is cancelled, then drains in-flight
// requests for up to 10s.
func Serve(ctx context.Context, app *fiber.App, port int, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", port)
		logger.Info("API server starting", "addr", addr)
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received, draining connections")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func metricsHandler(m *metrics.Collector) fiber.Handler {
	handler := fasthttpadaptor.NewFastHTTPHandler(m.Handler())
	return func(c *fiber.Ctx) error {
		handler(c.Context())
		return nil
	}
}

func accessLog(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		reqID, _ := c.Locals("requestid").(string)
		logger.Debug("http request",
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"duration", time.Since(start),
			"request_id", reqID,
		)
		return err
	}
}

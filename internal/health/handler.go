package health

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// Refresher can cut the polling interval short.
type Refresher interface {
	RefreshNow()
}

// Handler serves the health routes.
type Handler struct {
	checker   *Checker
	refresher Refresher
}

// NewHandler creates a Handler. refresher may be nil, in which case the
// refresh route is not registered.
func NewHandler(checker *Checker, refresher Refresher) *Handler {
	return &Handler{checker: checker, refresher: refresher}
}

// NewApp returns a fiber app with the health routes registered.
func NewApp(h *Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
	})
	app.Use(recover.New())
	h.Register(app)
	return app
}

// Register mounts the routes on app.
func (h *Handler) Register(app *fiber.App) {
	app.Get("/health", h.Health)
	app.Get("/ready", h.Ready)
	if h.refresher != nil {
		app.Post("/refresh", h.Refresh)
	}
}

// Health returns the full report; 503 when unhealthy.
func (h *Handler) Health(c *fiber.Ctx) error {
	report := h.checker.Check()

	code := fiber.StatusOK
	if report.Status == StatusUnhealthy {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(report)
}

// Ready answers 200 once a cycle has succeeded.
func (h *Handler) Ready(c *fiber.Ctx) error {
	if !h.checker.Ready() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "not ready",
		})
	}
	return c.JSON(fiber.Map{"status": "ready"})
}

// Refresh asks the poller to start the next cycle now.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	h.refresher.RefreshNow()
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "refresh requested"})
}

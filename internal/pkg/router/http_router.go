package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/arsound/arsound/app/controllers"
	"github.com/arsound/arsound/internal/pkg/ratelimit"
)

// HttpRouter serves the routes outside the versioned API: health and the
// payment gateway callbacks.
type HttpRouter struct {
	deps Dependencies
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Get("/health", h.handleHealth)

	webhooks := controllers.NewWebhookController(h.deps.Billing, h.deps.Retries, h.deps.WebhookSecret)
	hooks := app.Group("/api/webhooks", ratelimit.New(ratelimit.Config{
		Max:     300,
		Window:  time.Minute,
		Prefix:  "webhook",
		Storage: h.deps.LimiterStorage,
	}))
	hooks.Post("/mercadopago", webhooks.HandleMercadoPago)
}

func (h HttpRouter) handleHealth(c *fiber.Ctx) error {
	if h.deps.Health == nil {
		return c.JSON(fiber.Map{"status": "ok"})
	}
	checks := fiber.Map{}
	healthy := true
	for name, err := range h.deps.Health() {
		if err != nil {
			healthy = false
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}
	if !healthy {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "degraded", "checks": checks})
	}
	return c.JSON(fiber.Map{"status": "ok", "checks": checks})
}

func NewHttpRouter(deps Dependencies) *HttpRouter {
	return &HttpRouter{deps: deps}
}

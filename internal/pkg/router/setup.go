package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/arsound/arsound/app/controllers"
	"github.com/arsound/arsound/app/repository"
	"github.com/arsound/arsound/internal/pkg/billing"
	"github.com/arsound/arsound/internal/pkg/plans"
)

// Router registers a group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies is everything the HTTP layer needs, built once in main.
type Dependencies struct {
	Repos         *repository.Repositories
	Plans         *plans.Registry
	Billing       *billing.Service
	Checkout      *billing.Checkout
	Discounts     *billing.DiscountResolver
	Retries       controllers.RetryEnqueuer
	Files         controllers.Presigner
	Views         controllers.ViewCounter
	Stats         controllers.StatsProvider
	WebhookSecret string
	// LimiterStorage nil keeps rate limit counters in process memory.
	LimiterStorage fiber.Storage
	// Health reports readiness problems; nil means always healthy.
	Health func() map[string]error
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	// The webhook router goes first so gateway callbacks never hit the API
	// limiter or API key middleware.
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}

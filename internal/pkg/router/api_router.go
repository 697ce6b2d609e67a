package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/arsound/arsound/app/controllers"
	"github.com/arsound/arsound/internal/pkg/middleware"
	"github.com/arsound/arsound/internal/pkg/ratelimit"
)

type ApiRouter struct {
	deps Dependencies
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	d := h.deps
	api := app.Group("/api", ratelimit.New(ratelimit.Config{
		Max:     120,
		Window:  time.Minute,
		Prefix:  "api",
		Storage: d.LimiterStorage,
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "ARSOUND API",
		})
	})

	packs := controllers.NewPackController(d.Repos, d.Plans, d.Billing, d.Files, d.Views)
	checkout := controllers.NewCheckoutController(d.Checkout)
	planCtl := controllers.NewPlanController(d.Plans, d.Billing)
	purchases := controllers.NewPurchaseController(d.Repos)
	discounts := controllers.NewDiscountController(d.Repos, d.Plans, d.Billing, d.Discounts)
	social := controllers.NewSocialController(d.Repos)
	account := controllers.NewAccountController(d.Repos, d.Plans, d.Billing)
	admin := controllers.NewAdminController(d.Billing)

	requireAuth := middleware.APIKeyAuthMiddleware(d.Repos.User)
	optionalAuth := middleware.OptionalAPIKeyAuth(d.Repos.User)

	v1 := api.Group("/v1")

	// public catalog
	v1.Get("/plans", planCtl.HandleList)
	v1.Get("/packs", packs.HandleList)
	v1.Get("/packs/:id", optionalAuth, packs.HandleGet)
	v1.Get("/packs/:id/comments", social.HandleListComments)
	if d.Stats != nil {
		v1.Get("/stats", controllers.NewStatsController(d.Stats).HandleGet)
	}

	// account
	me := v1.Group("/me", requireAuth)
	me.Get("/", account.HandleGetUserAccount)
	me.Post("/api-key", account.HandleRotateAPIKey)
	me.Get("/plan", planCtl.HandleCurrent)
	me.Get("/packs", packs.HandleMine)
	me.Get("/purchases", purchases.HandleMyPurchases)
	me.Get("/sales", purchases.HandleMySales)
	me.Get("/seller-account", purchases.HandleGetSellerAccount)
	me.Put("/seller-account", purchases.HandleUpsertSellerAccount)

	// checkout creates gateway preferences, keep it tight
	co := v1.Group("/checkout", requireAuth, ratelimit.New(ratelimit.Config{
		Max:     10,
		Window:  time.Minute,
		Prefix:  "checkout",
		Storage: d.LimiterStorage,
	}))
	co.Post("/pack", checkout.HandlePack)
	co.Post("/plan", checkout.HandlePlan)

	// pack management
	v1.Post("/packs", requireAuth, packs.HandleCreate)
	v1.Patch("/packs/:id", requireAuth, packs.HandleUpdate)
	v1.Delete("/packs/:id", requireAuth, packs.HandleDelete)
	v1.Post("/packs/:id/archive", requireAuth, packs.HandleArchive)
	v1.Post("/packs/:id/unarchive", requireAuth, packs.HandleUnarchive)
	v1.Post("/packs/:id/upload-url", requireAuth, packs.HandleUploadURL)
	v1.Get("/packs/:id/download-url", requireAuth, packs.HandleDownloadURL)

	// discount codes
	v1.Get("/packs/:id/discounts", requireAuth, discounts.HandleList)
	v1.Post("/packs/:id/discounts", requireAuth, discounts.HandleCreate)
	v1.Post("/packs/:id/discounts/validate", requireAuth, discounts.HandleValidate)
	v1.Delete("/packs/:id/discounts/:codeID", requireAuth, discounts.HandleDelete)

	// social
	v1.Post("/packs/:id/like", requireAuth, social.HandleToggleLike)
	v1.Post("/packs/:id/comments", requireAuth, social.HandleAddComment)
	v1.Post("/users/:userID/follow", requireAuth, social.HandleFollow)
	v1.Delete("/users/:userID/follow", requireAuth, social.HandleUnfollow)

	// operators
	ops := v1.Group("/admin", requireAuth, controllers.RequireAdmin)
	ops.Get("/payment-events", admin.HandleListEvents)
	ops.Post("/payment-events/:id/reprocess", admin.HandleReprocessEvent)
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}

package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/learnspherehq/learnsphere/app/controllers"
	"github.com/learnspherehq/learnsphere/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api")
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")

	// The webhook endpoint must stay outside the rate limiter: the gateway
	// retries aggressively and bursts during backfills.
	v1.Post("/webhook", controllers.HandleStripeWebhook)

	v1.Get("/plans", limiter.New(), controllers.HandleListPlans)

	subs := v1.Group("/subscriptions", limiter.New(), middleware.APIKeyAuthMiddleware())
	subs.Post("/:id/payment-link", controllers.HandleCreatePaymentLink)
	subs.Post("/cancel", controllers.HandleCancelSubscription)
	subs.Post("/auto-renew", controllers.HandleSetAutoRenew)
	subs.Get("/transactions", controllers.HandleTransactionHistory)
	subs.Get("/transactions/latest", controllers.HandleLatestTransaction)

	admin := v1.Group("/admin", middleware.APIKeyAuthMiddleware(), middleware.RequireAdmin)
	admin.Post("/plans", controllers.HandleCreatePlan)
	admin.Put("/plans/:id", controllers.HandleUpdatePlan)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}

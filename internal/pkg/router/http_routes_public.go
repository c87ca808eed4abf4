package router

import (
	"time"

	"github.com/ManuelReschke/OproPay/internal/pkg/env"
	"github.com/ManuelReschke/OproPay/internal/pkg/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	pc := h.deps.Payments

	// Gateway callbacks (no CSRF, signature-verified by the processor)
	app.Post("/payments/check", pc.HandleGatewayCallback)
	app.Post("/payments/aviso", pc.HandleGatewayCallback)

	// Alternate sales channels authenticate with a shared key
	app.Post("/op_payment/outer", middleware.SharedKeyAuth("outer payment", h.deps.OuterKey), pc.HandleOuterPayment)

	// Landing purchases create accounts, so they are rate limited per IP
	app.Post("/op_payment/landing", limiter.New(limiter.Config{
		Max:        env.GetEnvInt("LANDING_RATE_LIMIT", 10),
		Expiration: time.Minute,
	}), pc.HandleLandingPayment)

	// Gateway return pages
	app.Get("/op_payment/:session_id<int>/:user_id<int>/:status", middleware.RequireAuth, pc.HandlePaymentStatus)
}

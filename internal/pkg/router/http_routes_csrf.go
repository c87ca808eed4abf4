package router

import (
	"time"

	"github.com/ManuelReschke/OproPay/internal/pkg/env"
	"github.com/ManuelReschke/OproPay/internal/pkg/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/csrf"
)

func (h HttpRouter) registerCSRFProtectedRoutes(app *fiber.App) {
	csrfConf := csrf.Config{
		KeyLookup:      "header:X-CSRF-Token",
		ContextKey:     "csrf",
		CookieName:     "csrf_",
		CookieSameSite: "Lax",
		Expiration:     1 * time.Hour,
		CookieSecure:   !env.IsDev(),
	}
	pc := h.deps.Payments

	group := app.Group("/op_payment", cors.New(), csrf.New(csrfConf))
	group.Get("/", middleware.RequireAuth, pc.HandleSessionPayment)
	group.Post("/", middleware.RequireAPISessionAuth, pc.HandleSessionPayment)
	group.Get("/module", middleware.RequireAuth, pc.HandleModulePayment)
	group.Post("/module", middleware.RequireAPISessionAuth, pc.HandleModulePayment)
	group.Post("/gift", middleware.RequireAPISessionAuth, pc.HandleGiftPayment)

	// Promo codes
	group.Post("/promocode/validate", pc.HandlePromoValidate)
	group.Post("/promocode/calculate", pc.HandlePromoCalculate)

	// Corporate order requests
	group.Post("/order/:course_session_id?", pc.HandleCorporateOrder)
}

package router

import (
	apiv1 "github.com/ManuelReschke/OproPay/internal/api/v1"
	"github.com/ManuelReschke/OproPay/internal/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type ApiRouter struct {
	deps Deps
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "OproPay API",
		})
	})

	// API v1 routes (catalog administration)
	v1 := api.Group("/v1", middleware.SharedKeyAuth("admin", h.deps.AdminKey))
	apiv1.RegisterHandlers(v1, h.deps.API)
}

func NewApiRouter(deps Deps) *ApiRouter {
	return &ApiRouter{deps: deps}
}

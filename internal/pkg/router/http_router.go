package router

import (
	"github.com/ManuelReschke/OproPay/internal/pkg/middleware"
	"github.com/ManuelReschke/OproPay/internal/pkg/session"

	"github.com/gofiber/fiber/v2"
)

type HttpRouter struct {
	deps Deps
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// init session unless the caller installed one already
	if session.GetSessionStore() == nil {
		session.NewSessionStore()
	}

	// Apply UserContext middleware globally as first middleware
	app.Use(middleware.UserContextMiddleware(h.deps.Users))

	h.registerPublicRoutes(app)
	h.registerCSRFProtectedRoutes(app)
}

func NewHttpRouter(deps Deps) *HttpRouter {
	return &HttpRouter{deps: deps}
}

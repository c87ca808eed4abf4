package router

import (
	apiv1 "github.com/ManuelReschke/OproPay/internal/api/v1"

	"github.com/ManuelReschke/OproPay/app/controllers"
	"github.com/ManuelReschke/OproPay/app/repository"
	"github.com/gofiber/fiber/v2"
)

// Router registers a group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Deps are the handlers and keys the routes are wired to.
type Deps struct {
	Payments *controllers.PaymentController
	API      *apiv1.APIServer
	Users    repository.UserRepository
	// OuterKey authenticates alternate sales channels, AdminKey the catalog API.
	OuterKey string
	AdminKey string
}

func InstallRouter(app *fiber.App, deps Deps) {
	// Install HttpRouter first to initialize the session store and the
	// global UserContext middleware the API routes rely on.
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}

package apiv1

import "github.com/gofiber/fiber/v2"

// ServerInterface lists the operations of the v1 API.
type ServerInterface interface {
	GetPing(c *fiber.Ctx) error
	PostUpsale(c *fiber.Ctx) error
	PutUpsale(c *fiber.Ctx, id uint) error
	PostUpsaleIcon(c *fiber.Ctx, id uint) error
	PostUpsaleLink(c *fiber.Ctx) error
	PutUpsaleLink(c *fiber.Ctx, id uint) error
	PutObjectEnrollment(c *fiber.Ctx) error
}

// RegisterHandlers mounts the v1 operations on router.
func RegisterHandlers(router fiber.Router, si ServerInterface) {
	withID := func(h func(*fiber.Ctx, uint) error) fiber.Handler {
		return func(c *fiber.Ctx) error {
			id, ok := pathID(c)
			if !ok {
				return badRequest(c, "invalid id")
			}
			return h(c, id)
		}
	}

	router.Get("/ping", si.GetPing)
	router.Post("/upsales", si.PostUpsale)
	router.Put("/upsales/:id", withID(si.PutUpsale))
	router.Post("/upsales/:id/icon", withID(si.PostUpsaleIcon))
	router.Post("/upsale-links", si.PostUpsaleLink)
	router.Put("/upsale-links/:id", withID(si.PutUpsaleLink))
	router.Put("/object-enrollments", si.PutObjectEnrollment)
}

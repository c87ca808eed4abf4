package flash

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sujit-baniya/flash"
)

// Message kinds shown on the page a purchaser is redirected to.
const (
	TypeSuccess = "success"
	TypeError   = "error"
	TypeInfo    = "info"
)

// Success queues a success message for the next page.
func Success(c *fiber.Ctx, message string) *fiber.Ctx {
	return flash.WithSuccess(c, fiber.Map{"type": TypeSuccess, "message": message})
}

// Error queues an error message for the next page.
func Error(c *fiber.Ctx, message string) *fiber.Ctx {
	return flash.WithError(c, fiber.Map{"type": TypeError, "message": message})
}

// Info queues an informational message for the next page.
func Info(c *fiber.Ctx, message string) *fiber.Ctx {
	return flash.WithInfo(c, fiber.Map{"type": TypeInfo, "message": message})
}

// Get returns the message queued by the previous request, if any.
func Get(c *fiber.Ctx) fiber.Map {
	return flash.Get(c)
}

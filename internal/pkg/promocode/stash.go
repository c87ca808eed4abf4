package promocode

import (
	"strings"

	"github.com/ManuelReschke/OproPay/app/models"
	"github.com/ManuelReschke/OproPay/internal/pkg/session"
	"github.com/gofiber/fiber/v2"
)

// StashKey is the checkout session key holding an accepted code for a product.
func StashKey(target models.TargetRef) string {
	return "promocode:" + target.String()
}

// Stash remembers an accepted code for the purchaser's checkout of target.
func Stash(c *fiber.Ctx, target models.TargetRef, code string) error {
	return session.SetSessionValue(c, StashKey(target), strings.TrimSpace(code))
}

// Stashed returns the code accepted earlier for target, if any.
func Stashed(c *fiber.Ctx, target models.TargetRef) string {
	return session.GetSessionValue(c, StashKey(target))
}

// ClearStash forgets the accepted code for target.
func ClearStash(c *fiber.Ctx, target models.TargetRef) error {
	return session.DeleteSessionValue(c, StashKey(target))
}

package controllers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/ManuelReschke/OproPay/internal/pkg/catalog"
	"github.com/ManuelReschke/OproPay/internal/pkg/gateway"
	"github.com/ManuelReschke/OproPay/internal/pkg/payments"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

const requestTimeout = 15 * time.Second

var validate = validator.New()

func requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), requestTimeout)
}

// respondError maps domain errors to the JSON error shapes of the checkout
// endpoints. Anything unexpected is logged and hidden from the client.
func respondError(c *fiber.Ctx, err error) error {
	if ve, ok := payments.AsValidationError(err); ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": 1, "field": ve.Field, "message": ve.Message})
	}
	if fe, ok := catalog.AsFieldErrors(err); ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": 1, "errors": fe, "message": fe.Error()})
	}
	var verr validator.ValidationErrors
	if errors.As(err, &verr) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": 1, "message": verr.Error()})
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
	}
	log.Errorf("[Controller] %s %s failed: %v", c.Method(), c.Path(), err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "something_went_wrong"})
}

// queryIDs reads a repeatable id parameter. Comma separated values are
// accepted too and non-numeric entries are skipped.
func queryIDs(c *fiber.Ctx, key string) []uint {
	var ids []uint
	for _, raw := range c.Context().QueryArgs().PeekMulti(key) {
		ids = append(ids, parseIDs(string(raw))...)
	}
	return ids
}

func parseIDs(raw string) []uint {
	var ids []uint
	for _, part := range strings.Split(raw, ",") {
		v, err := strconv.ParseUint(strings.TrimSpace(part), 10, 64)
		if err != nil || v == 0 {
			continue
		}
		ids = append(ids, uint(v))
	}
	return ids
}

// queryID reads a strictly numeric id parameter.
func queryID(c *fiber.Ctx, key string) (uint, bool) {
	v, err := strconv.ParseUint(strings.TrimSpace(c.Query(key)), 10, 64)
	if err != nil || v == 0 {
		return 0, false
	}
	return uint(v), true
}

func checkoutJSON(form gateway.CheckoutForm, q *payments.QuoteResult) fiber.Map {
	fields := fiber.Map{}
	for _, f := range form.Fields() {
		fields[f[0]] = f[1]
	}
	return fiber.Map{
		"status":      0,
		"shop_url":    form.Action,
		"fields":      fields,
		"total_price": q.Quote.TotalPrice,
	}
}

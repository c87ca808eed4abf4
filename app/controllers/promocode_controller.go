package controllers

import (
	"strings"

	"github.com/ManuelReschke/OproPay/app/models"
	"github.com/ManuelReschke/OproPay/internal/pkg/promocode"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

type promoRequest struct {
	Code            string `json:"promocode" form:"promocode"`
	ProductType     string `json:"product_type" form:"product_type"`
	ProductID       uint   `json:"product_id" form:"product_id"`
	SessionID       uint   `json:"session_id" form:"session_id"`
	OnlyFirstCourse bool   `json:"only_first_course" form:"only_first_course"`
}

func (r promoRequest) target() models.TargetRef {
	return models.TargetRef{Kind: models.TargetKind(strings.TrimSpace(r.ProductType)), ID: r.ProductID}
}

// HandlePromoValidate reports whether a code can be used for a product.
func (pc *PaymentController) HandlePromoValidate(c *fiber.Ctx) error {
	var req promoRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": promocode.StatusFailed, "message": "invalid request"})
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	return c.JSON(pc.Promos.Validate(ctx, req.Code, req.ProductID, req.target().Kind))
}

// HandlePromoCalculate returns the discounted price and remembers the
// accepted code for the purchaser's checkout of the product.
func (pc *PaymentController) HandlePromoCalculate(c *fiber.Ctx) error {
	var req promoRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": promocode.StatusFailed, "message": "invalid request"})
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	res := pc.Promos.Calculate(ctx, promocode.CalculateInput{
		Code:            req.Code,
		ProductType:     req.target().Kind,
		ProductID:       req.ProductID,
		SessionID:       req.SessionID,
		OnlyFirstCourse: req.OnlyFirstCourse,
	})
	if res.Status == promocode.StatusOK {
		if err := promocode.Stash(c, req.target(), req.Code); err != nil {
			log.Warnf("[Promocode] could not remember code for %s: %v", req.target(), err)
		}
	}
	return c.JSON(res)
}

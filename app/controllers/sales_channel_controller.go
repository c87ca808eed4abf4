package controllers

import (
	"strings"
	"time"

	"github.com/ManuelReschke/OproPay/app/models"
	"github.com/ManuelReschke/OproPay/internal/pkg/gateway"
	"github.com/ManuelReschke/OproPay/internal/pkg/payments"
	"github.com/ManuelReschke/OproPay/internal/pkg/promocode"
	"github.com/ManuelReschke/OproPay/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// purchaseRequest selects the product of a landing or gift purchase.
type purchaseRequest struct {
	FirstName       string `json:"first_name" form:"first_name" validate:"max=150"`
	Email           string `json:"email" form:"email" validate:"required,email"`
	SessionID       uint   `json:"session_id" form:"session_id" validate:"required_without=ModuleID"`
	ModuleID        uint   `json:"module_id" form:"module_id" validate:"required_without=SessionID"`
	UpsaleLinkIDs   []uint `json:"upsale_link_ids" form:"upsale_link_ids"`
	PromoCode       string `json:"promocode" form:"promocode" validate:"max=64"`
	OnlyFirstCourse bool   `json:"only_first_course" form:"only_first_course"`
	FirstSessionID  uint   `json:"first_session_id" form:"first_session_id"`
}

func (r purchaseRequest) target() models.TargetRef {
	if r.ModuleID > 0 {
		return models.ModuleRef(r.ModuleID)
	}
	return models.SessionRef(r.SessionID)
}

func (r purchaseRequest) quote(c *fiber.Ctx) payments.QuoteInput {
	code := strings.TrimSpace(r.PromoCode)
	if code == "" {
		code = promocode.Stashed(c, r.target())
	}
	return payments.QuoteInput{
		Target:          r.target(),
		LinkIDs:         r.UpsaleLinkIDs,
		PromoCode:       code,
		OnlyFirstCourse: r.OnlyFirstCourse,
		FirstSessionID:  r.FirstSessionID,
	}
}

type giftRequest struct {
	purchaseRequest
	GiftText   string `json:"gift_text" form:"gift_text" validate:"max=2000"`
	NotifyAt   string `json:"notify_at" form:"notify_at"`
	ProductTag string `json:"product_tag" form:"product_tag" validate:"max=64"`
}

// notifyAt accepts RFC 3339 timestamps and plain dates.
func (r giftRequest) notifyAt() (*time.Time, bool) {
	raw := strings.TrimSpace(r.NotifyAt)
	if raw == "" {
		return nil, true
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, true
		}
	}
	return nil, false
}

// HandleLandingPayment sells to a purchaser who is not logged in. The account
// is created or fetched through the user directory before the order is
// stored.
func (pc *PaymentController) HandleLandingPayment(c *fiber.Ctx) error {
	var req purchaseRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": 1, "message": "invalid request"})
	}
	if err := validate.Struct(req); err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c)
	defer cancel()
	user, err := pc.Checkout.ResolvePurchaser(ctx, req.FirstName, req.Email)
	if err != nil {
		return respondError(c, err)
	}
	order, q, err := pc.Checkout.Place(ctx, payments.PlaceInput{
		QuoteInput: req.quote(c),
		User:       *user,
		Create:     true,
	})
	if err != nil {
		return respondError(c, err)
	}
	log.Infof("[Landing] Order %s for %s", order.Payment.OrderNumber, user.Email)
	return c.JSON(checkoutJSON(gateway.NewCheckoutForm(pc.Gateway, order.Payment, user.Email, ""), q))
}

// HandleGiftPayment lets the logged-in user pay for somebody else. The
// receiver is resolved through the user directory.
func (pc *PaymentController) HandleGiftPayment(c *fiber.Ctx) error {
	var req giftRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": 1, "message": "invalid request"})
	}
	if err := validate.Struct(req); err != nil {
		return respondError(c, err)
	}
	notifyAt, ok := req.notifyAt()
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": 1, "field": "notify_at", "message": "use YYYY-MM-DD or an RFC 3339 timestamp"})
	}

	sender := usercontext.GetUserContext(c)
	ctx, cancel := requestContext(c)
	defer cancel()
	receiver, err := pc.Checkout.ResolvePurchaser(ctx, req.FirstName, req.Email)
	if err != nil {
		return respondError(c, err)
	}
	order, q, err := pc.Checkout.Place(ctx, payments.PlaceInput{
		QuoteInput:   req.quote(c),
		User:         sender.User(),
		Create:       true,
		GiftReceiver: receiver,
		GiftText:     req.GiftText,
		GiftNotifyAt: notifyAt,
		ProductTag:   req.ProductTag,
	})
	if err != nil {
		return respondError(c, err)
	}
	log.Infof("[Gift] Order %s from user %d to user %d", order.Payment.OrderNumber, sender.UserID, receiver.ID)
	return c.JSON(checkoutJSON(gateway.NewCheckoutForm(pc.Gateway, order.Payment, sender.Email, ""), q))
}

// HandleOuterPayment accepts a settled purchase from an alternate sales
// channel. The payload is stored verbatim before anything else happens.
func (pc *PaymentController) HandleOuterPayment(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := pc.Outer.AcceptOuterPayment(ctx, append([]byte(nil), c.Body()...))
	if err != nil {
		if res != nil {
			log.Warnf("[OuterPayment] Payload %s not granted: %v", res.Reference, err)
		}
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"status":       0,
		"reference":    res.Reference,
		"order_number": res.Payment.OrderNumber,
	})
}

// HandleGatewayCallback answers checkOrder and paymentAviso notifications of
// the payment gateway with its XML response.
func (pc *PaymentController) HandleGatewayCallback(c *fiber.Ctx) error {
	var n gateway.Notification
	if err := c.BodyParser(&n); err != nil {
		log.Warnf("[Gateway] Unparseable callback from %s: %v", c.IP(), err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	return c.XML(pc.Processor.Handle(ctx, n))
}

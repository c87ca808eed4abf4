package controllers

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/ManuelReschke/OproPay/app/models"
	"github.com/ManuelReschke/OproPay/app/repository"
	"github.com/ManuelReschke/OproPay/internal/pkg/env"
	"github.com/ManuelReschke/OproPay/internal/pkg/flash"
	"github.com/ManuelReschke/OproPay/internal/pkg/gateway"
	"github.com/ManuelReschke/OproPay/internal/pkg/mail"
	"github.com/ManuelReschke/OproPay/internal/pkg/payments"
	"github.com/ManuelReschke/OproPay/internal/pkg/promocode"
	"github.com/ManuelReschke/OproPay/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// PaymentController serves the checkout, gateway and sales channel endpoints.
type PaymentController struct {
	Checkout  *payments.Checkout
	Promos    *promocode.Engine
	Outer     *payments.OuterChannel
	Processor *gateway.Processor
	Gateway   gateway.Config
	Repos     *repository.Repositories
	Mailer    mail.Mailer
}

// HandleSessionPayment renders the gateway form for a course session on
// GET. The XHR POST sent right before the form is submitted stores the
// order.
func (pc *PaymentController) HandleSessionPayment(c *fiber.Ctx) error {
	sessionID, ok := queryID(c, "course_session_id")
	if !ok {
		return fiber.ErrNotFound
	}
	target := models.SessionRef(sessionID)
	return pc.checkout(c, payments.QuoteInput{
		Target:    target,
		LinkIDs:   queryIDs(c, "upsale_link_ids"),
		PromoCode: promocode.Stashed(c, target),
	})
}

// HandleModulePayment is HandleSessionPayment for educational modules,
// optionally limited to the first course.
func (pc *PaymentController) HandleModulePayment(c *fiber.Ctx) error {
	moduleID, ok := queryID(c, "module_id")
	if !ok {
		return fiber.ErrNotFound
	}
	target := models.ModuleRef(moduleID)
	firstSession, _ := queryID(c, "first_session_id")
	return pc.checkout(c, payments.QuoteInput{
		Target:          target,
		LinkIDs:         queryIDs(c, "upsale_link_ids"),
		PromoCode:       promocode.Stashed(c, target),
		OnlyFirstCourse: c.QueryBool("only_first_course", false),
		FirstSessionID:  firstSession,
	})
}

func (pc *PaymentController) checkout(c *fiber.Ctx, in payments.QuoteInput) error {
	userCtx := usercontext.GetUserContext(c)
	create := c.Method() == fiber.MethodPost

	ctx, cancel := requestContext(c)
	defer cancel()
	order, q, err := pc.Checkout.Place(ctx, payments.PlaceInput{
		QuoteInput: in,
		User:       userCtx.User(),
		Create:     create,
	})
	if err != nil {
		if _, ok := payments.AsValidationError(err); ok && !create {
			return fiber.ErrNotFound
		}
		return respondError(c, err)
	}

	if create {
		return c.JSON(fiber.Map{"status": 0})
	}

	form := gateway.NewCheckoutForm(pc.Gateway, order.Payment, userCtx.Email, "")
	return c.Render("op_payment", fiber.Map{
		"Title":     q.Offer.PurchaseTitle(),
		"Quote":     q.Quote,
		"Links":     q.Links,
		"PromoCode": q.PromoCode,
		"ShopURL":   form.Action,
		"Fields":    form.Fields(),
		"CSRF":      c.Locals("csrf"),
	})
}

// HandlePaymentStatus is the gateway return page. It shows the outcome as a
// flash message on the course page.
func (pc *PaymentController) HandlePaymentStatus(c *fiber.Ctx) error {
	sessionID, errS := strconv.ParseUint(c.Params("session_id"), 10, 64)
	userID, errU := strconv.ParseUint(c.Params("user_id"), 10, 64)
	status := c.Params("status")
	if errS != nil || errU != nil || (status != "success" && status != "fail") {
		return fiber.ErrNotFound
	}
	if usercontext.GetUserID(c) != uint(userID) {
		return fiber.ErrNotFound
	}

	session, err := pc.Repos.Catalog.GetSession(uint(sessionID))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fiber.ErrNotFound
	}
	if err != nil {
		return respondError(c, err)
	}

	target := env.GetEnv("COURSE_URL_PREFIX", "/course/") + session.Slug
	if status == "success" {
		_ = promocode.ClearStash(c, models.SessionRef(session.ID))
		return flash.Success(c, fmt.Sprintf("Payment for %s received. Access will be granted as soon as the payment is confirmed.", session.Title)).
			Redirect(target, fiber.StatusSeeOther)
	}
	log.Infof("[Checkout] Payment for session %d failed for user %d", session.ID, userID)
	return flash.Error(c, fmt.Sprintf("Payment for %s did not go through. Please try again.", session.Title)).
		Redirect(target, fiber.StatusSeeOther)
}

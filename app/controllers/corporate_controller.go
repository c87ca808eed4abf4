package controllers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ManuelReschke/OproPay/internal/pkg/env"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// CorporateOrder is the lead form companies fill in to buy courses for
// their staff.
type CorporateOrder struct {
	FullName  string `json:"full_name" form:"full_name" validate:"required,max=127"`
	Org       string `json:"org" form:"org" validate:"required,max=255"`
	Position  string `json:"position" form:"position" validate:"required,max=127"`
	Email     string `json:"email" form:"email" validate:"required,email"`
	Telephone string `json:"telephone" form:"telephone" validate:"required,max=32"`
	Students  string `json:"students" form:"students" validate:"required"`
	Info      string `json:"info" form:"info" validate:"max=10000"`
}

// Validate checks the form; the planned number of students must be a whole
// number between 1 and 1e9.
func (o CorporateOrder) Validate() map[string]string {
	errs := map[string]string{}
	if err := validate.Struct(o); err != nil {
		errs["form"] = err.Error()
	}
	n, err := strconv.Atoi(strings.TrimSpace(o.Students))
	if err != nil || n < 1 || n > 1000000000 {
		errs["students"] = "enter the planned number of students"
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func (o CorporateOrder) body(sessionSlug string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Corporate order request\n\n")
	if sessionSlug != "" {
		fmt.Fprintf(&b, "Course session: %s\n", sessionSlug)
	}
	fmt.Fprintf(&b, "Name: %s\nCompany: %s\nPosition: %s\nEmail: %s\nTelephone: %s\nStudents: %s\n",
		o.FullName, o.Org, o.Position, o.Email, o.Telephone, strings.TrimSpace(o.Students))
	if info := strings.TrimSpace(o.Info); info != "" {
		fmt.Fprintf(&b, "\n%s\n", info)
	}
	return b.String()
}

// HandleCorporateOrder mails a corporate order request to the sales inbox.
func (pc *PaymentController) HandleCorporateOrder(c *fiber.Ctx) error {
	var order CorporateOrder
	if err := c.BodyParser(&order); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": 1, "message": "invalid request"})
	}
	if errs := order.Validate(); errs != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": 1, "errors": errs})
	}

	recipients := env.GetEnvList("CORPORATE_ORDER_EMAILS")
	if len(recipients) == 0 {
		log.Errorf("[Corporate] CORPORATE_ORDER_EMAILS is empty, dropping request from %s", order.Email)
		return respondError(c, fmt.Errorf("no sales inbox configured"))
	}
	subject := fmt.Sprintf("Corporate order: %s", order.Org)
	if err := pc.Mailer.Send(recipients, subject, order.body(c.Params("course_session_id"))); err != nil {
		return respondError(c, fmt.Errorf("send corporate order: %w", err))
	}
	log.Infof("[Corporate] Order request from %s (%s) sent", order.Org, order.Email)
	return c.JSON(fiber.Map{"status": 0})
}

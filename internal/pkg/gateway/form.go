package gateway

import (
	"strconv"
	"strings"

	"github.com/ManuelReschke/OproPay/app/models"
)

// CheckoutForm is the set of hidden fields posted to the gateway to start a
// payment for an order.
type CheckoutForm struct {
	Action         string `json:"action"`
	ShopID         string `json:"shopId"`
	SCID           string `json:"scid"`
	OrderNumber    string `json:"orderNumber"`
	CustomerNumber string `json:"customerNumber"`
	Sum            string `json:"sum"`
	Email          string `json:"cps_email"`
	Phone          string `json:"cps_phone"`
}

// NewCheckoutForm fills the gateway fields for a payment record.
func NewCheckoutForm(cfg Config, payment *models.Payment, email, phone string) CheckoutForm {
	return CheckoutForm{
		Action:         cfg.ShopURL,
		ShopID:         cfg.ShopID,
		SCID:           cfg.SCID,
		OrderNumber:    payment.OrderNumber,
		CustomerNumber: payment.CustomerNumber,
		Sum:            strconv.Itoa(payment.OrderAmount),
		Email:          strings.TrimSpace(email),
		Phone:          strings.TrimSpace(phone),
	}
}

// Fields returns the form as name/value pairs in a stable order.
func (f CheckoutForm) Fields() [][2]string {
	return [][2]string{
		{"shopId", f.ShopID},
		{"scid", f.SCID},
		{"orderNumber", f.OrderNumber},
		{"customerNumber", f.CustomerNumber},
		{"sum", f.Sum},
		{"cps_email", f.Email},
		{"cps_phone", f.Phone},
	}
}

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ManuelReschke/OproPay/internal/pkg/env"
	"github.com/ManuelReschke/OproPay/internal/pkg/payments"
)

// CRM posts confirmed payments to the CRM webhook.
type CRM struct {
	URL string

	HTTPClient *http.Client
}

type crmUser struct {
	ID        uint   `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
}

type crmUpsale struct {
	ID    uint   `json:"id"`
	Title string `json:"title"`
	Price int    `json:"price"`
}

type crmPayment struct {
	OrderNumber     string      `json:"order_number"`
	Amount          int         `json:"amount"`
	ProductType     string      `json:"product_type"`
	ProductID       uint        `json:"product_id"`
	Title           string      `json:"title"`
	OnlyFirstCourse bool        `json:"only_first_course"`
	PromoCode       string      `json:"promocode,omitempty"`
	GiftReceiver    *crmUser    `json:"gift_receiver,omitempty"`
	Upsales         []crmUpsale `json:"upsales"`
}

type crmEvent struct {
	ActionName  string     `json:"action_name"`
	UserInfo    crmUser    `json:"user_info"`
	PaymentInfo crmPayment `json:"payment_info"`
}

func NewCRMFromEnv() *CRM {
	return &CRM{
		URL: strings.TrimSpace(env.GetEnv("CRM_WEBHOOK_URL", "")),
		HTTPClient: &http.Client{
			Timeout: env.GetEnvDuration("CRM_TIMEOUT", 10*time.Second),
		},
	}
}

func (c *CRM) Name() string { return "crm" }

func (c *CRM) Notify(ctx context.Context, conf *payments.Confirmation) error {
	if c.URL == "" {
		return errors.New("CRM_WEBHOOK_URL is not configured")
	}
	payload, err := json.Marshal(crmEventFor(conf))
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("crm webhook failed: status=%d body=%s", resp.StatusCode, string(body))
	}
	return nil
}

func crmEventFor(c *payments.Confirmation) crmEvent {
	ev := crmEvent{
		ActionName: "payment_confirmed",
		UserInfo:   crmUserFor(c.Buyer),
		PaymentInfo: crmPayment{
			OrderNumber:     c.OrderNumber,
			Amount:          c.Amount,
			ProductType:     c.Kind.String(),
			ProductID:       c.ProductID,
			Title:           c.Title,
			OnlyFirstCourse: c.OnlyFirstCourse,
			PromoCode:       c.PromoCode,
			Upsales:         []crmUpsale{},
		},
	}
	if c.IsGift {
		receiver := crmUserFor(c.Beneficiary)
		ev.PaymentInfo.GiftReceiver = &receiver
	}
	for _, u := range c.Upsales {
		ev.PaymentInfo.Upsales = append(ev.PaymentInfo.Upsales, crmUpsale{ID: u.LinkID, Title: u.Title, Price: u.Price})
	}
	return ev
}

func crmUserFor(u payments.UserSnapshot) crmUser {
	return crmUser{ID: u.ID, Username: u.Username, Email: u.Email, FirstName: u.FirstName}
}

package gateway

import (
	"crypto/hmac"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Callback actions sent by the gateway.
const (
	ActionCheckOrder   = "checkOrder"
	ActionPaymentAviso = "paymentAviso"
)

// Notification is a gateway callback as posted in the form body.
type Notification struct {
	Action                  string `json:"action" form:"action"`
	OrderSumAmount          string `json:"orderSumAmount" form:"orderSumAmount"`
	OrderSumCurrencyPaycash string `json:"orderSumCurrencyPaycash" form:"orderSumCurrencyPaycash"`
	OrderSumBankPaycash     string `json:"orderSumBankPaycash" form:"orderSumBankPaycash"`
	ShopID                  string `json:"shopId" form:"shopId"`
	InvoiceID               string `json:"invoiceId" form:"invoiceId"`
	CustomerNumber          string `json:"customerNumber" form:"customerNumber"`
	OrderNumber             string `json:"orderNumber" form:"orderNumber"`
	ShopSumAmount           string `json:"shopSumAmount" form:"shopSumAmount"`
	RequestDatetime         string `json:"requestDatetime" form:"requestDatetime"`
	MD5                     string `json:"md5" form:"md5"`
}

var errMalformedNotification = errors.New("malformed gateway notification")

// Validate checks that every field needed to process the callback is present.
func (n Notification) Validate() error {
	missing := []string{}
	for name, v := range map[string]string{
		"action":         n.Action,
		"orderSumAmount": n.OrderSumAmount,
		"shopId":         n.ShopID,
		"invoiceId":      n.InvoiceID,
		"orderNumber":    n.OrderNumber,
		"md5":            n.MD5,
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: missing %s", errMalformedNotification, strings.Join(missing, ", "))
	}
	if n.Action != ActionCheckOrder && n.Action != ActionPaymentAviso {
		return fmt.Errorf("%w: unknown action %q", errMalformedNotification, n.Action)
	}
	if _, err := n.Amount(); err != nil {
		return err
	}
	return nil
}

// Sign computes the callback checksum with the shop password.
func (n Notification) Sign(shopPassword string) string {
	parts := []string{
		n.Action,
		n.OrderSumAmount,
		n.OrderSumCurrencyPaycash,
		n.OrderSumBankPaycash,
		n.ShopID,
		n.InvoiceID,
		n.CustomerNumber,
		shopPassword,
	}
	sum := md5.Sum([]byte(strings.Join(parts, ";")))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// VerifySignature compares the posted checksum in constant time.
func (n Notification) VerifySignature(shopPassword string) bool {
	sig := strings.ToUpper(strings.TrimSpace(n.MD5))
	if sig == "" || strings.TrimSpace(shopPassword) == "" {
		return false
	}
	return hmac.Equal([]byte(sig), []byte(n.Sign(shopPassword)))
}

// Amount returns orderSumAmount in minor units.
func (n Notification) Amount() (int64, error) {
	return minorUnits(n.OrderSumAmount)
}

// SettledAmount returns shopSumAmount, the sum credited to the shop.
func (n Notification) SettledAmount() *float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(n.ShopSumAmount), 64)
	if err != nil {
		return nil
	}
	return &v
}

// PerformedAt returns requestDatetime, or fallback when it is absent or
// malformed.
func (n Notification) PerformedAt(fallback time.Time) time.Time {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(n.RequestDatetime))
	if err != nil {
		return fallback
	}
	return t
}

// EventID identifies a delivery for deduplication.
func (n Notification) EventID() string {
	return n.Action + ":" + strings.TrimSpace(n.InvoiceID)
}

func (n Notification) payloadJSON() string {
	raw, err := json.Marshal(n)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

func minorUnits(amount string) (int64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(amount), 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: invalid amount %q", errMalformedNotification, amount)
	}
	return int64(math.Round(v * 100)), nil
}

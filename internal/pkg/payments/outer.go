package payments

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/ManuelReschke/OproPay/app/models"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// OuterPurchase is an already settled purchase pushed by an alternate sales
// channel.
type OuterPurchase struct {
	FirstName       string `json:"first_name" validate:"max=150"`
	Email           string `json:"email" validate:"required,email"`
	SessionID       uint   `json:"session_id" validate:"required_without=ModuleID"`
	ModuleID        uint   `json:"module_id" validate:"required_without=SessionID"`
	UpsaleLinkIDs   []uint `json:"upsale_link_ids"`
	PromoCode       string `json:"promocode" validate:"max=64"`
	OnlyFirstCourse bool   `json:"only_first_course"`
	FirstSessionID  uint   `json:"first_session_id"`
	// Amount, when sent, must equal the total the order is priced at.
	Amount *int `json:"amount" validate:"omitempty,gte=0"`
}

// Target returns the product the purchase is for.
func (p OuterPurchase) Target() models.TargetRef {
	if p.ModuleID > 0 {
		return models.ModuleRef(p.ModuleID)
	}
	return models.SessionRef(p.SessionID)
}

// OuterResult is the outcome of AcceptOuterPayment.
type OuterResult struct {
	Reference string
	Payment   *models.Payment
}

// OuterChannel turns purchases of alternate sales channels into paid orders.
type OuterChannel struct {
	checkout *Checkout
	store    Store
	confirm  func(ctx context.Context, payment *models.Payment) error
}

// NewOuterChannel creates the channel. Paid orders are handed to the
// reconciler exactly like gateway confirmations.
func NewOuterChannel(checkout *Checkout, store Store, reconciler *Reconciler) *OuterChannel {
	return &OuterChannel{checkout: checkout, store: store, confirm: reconciler.OnPaymentConfirmed}
}

// AcceptOuterPayment stores raw verbatim before anything else, then resolves
// the purchaser, checks the reported amount against the quote, builds the
// order, marks it paid and grants it. The stored
// reference is returned even when a later step fails.
func (o *OuterChannel) AcceptOuterPayment(ctx context.Context, raw []byte) (*OuterResult, error) {
	if !json.Valid(raw) {
		return nil, newValidationError("payload", "payload is not valid JSON")
	}

	res := &OuterResult{Reference: uuid.NewString()}
	if err := o.store.CreateOuterPayment(&models.OuterPayment{
		Reference: res.Reference,
		Data:      datatypes.JSON(append([]byte(nil), raw...)),
	}); err != nil {
		return nil, err
	}
	log.Infof("[OuterPayment] Stored payload %s", res.Reference)

	var in OuterPurchase
	if err := json.Unmarshal(raw, &in); err != nil {
		return res, newValidationError("payload", "unexpected payload shape: %v", err)
	}
	if err := o.checkout.validate.Struct(in); err != nil {
		return res, newValidationError("payload", "%v", err)
	}

	user, err := o.checkout.ResolvePurchaser(ctx, in.FirstName, in.Email)
	if err != nil {
		return res, err
	}

	quoteIn := QuoteInput{
		Target:          in.Target(),
		LinkIDs:         in.UpsaleLinkIDs,
		PromoCode:       strings.TrimSpace(in.PromoCode),
		OnlyFirstCourse: in.OnlyFirstCourse,
		FirstSessionID:  in.FirstSessionID,
		UserID:          user.ID,
	}
	if in.Amount != nil {
		q, err := o.checkout.Quote(ctx, quoteIn)
		if err != nil {
			return res, err
		}
		if *in.Amount != q.Quote.TotalPrice {
			return res, newValidationError("amount", "%s costs %d, channel reports %d",
				in.Target(), q.Quote.TotalPrice, *in.Amount)
		}
	}

	order, _, err := o.checkout.Place(ctx, PlaceInput{QuoteInput: quoteIn, User: *user, Create: true})
	if err != nil {
		return res, err
	}

	payment := order.Payment
	if !payment.IsPaid {
		now := o.checkout.now()
		if err := o.store.MarkPaid(payment.ID, nil, now); err != nil {
			return res, err
		}
		payment.IsPaid = true
		payment.PerformedAt = &now
	}
	res.Payment = payment

	if err := o.confirm(ctx, payment); err != nil {
		return res, err
	}
	log.Infof("[OuterPayment] Order %s from payload %s granted", payment.OrderNumber, res.Reference)
	return res, nil
}

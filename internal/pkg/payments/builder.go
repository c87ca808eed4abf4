package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/ManuelReschke/OproPay/app/models"
	"github.com/ManuelReschke/OproPay/internal/pkg/env"
	"github.com/ManuelReschke/OproPay/internal/pkg/pricing"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// BuildInput is a purchase intent ready to become a gateway order.
type BuildInput struct {
	User       models.User
	Target     models.Purchasable
	Links      []models.UpsaleLink
	TotalPrice int
	// LineItems feed the analytics batch stored with the order.
	LineItems []pricing.LineItem
	// Create persists a new order; without it the order only lives in memory.
	Create          bool
	OnlyFirstCourse bool
	FirstSessionID  uint
	GiftReceiver    *models.User
	PromoCode       string
	// OrderNumber replaces the generated module order number so a retried
	// module checkout keeps its key.
	OrderNumber string
}

// Order is the result of Build.
type Order struct {
	Payment  *models.Payment
	Metadata Metadata
	// Created is set when this call persisted the order.
	Created bool
}

// Builder locates or creates the pending payment of a purchase intent.
type Builder struct {
	store    Store
	now      func() time.Time
	currency string
}

// NewBuilder creates an order builder.
func NewBuilder(store Store) *Builder {
	return &Builder{
		store:    store,
		now:      time.Now,
		currency: env.GetEnv("GATEWAY_CURRENCY", "RUB"),
	}
}

// OrderNumber computes the order number of an intent.
func (b *Builder) OrderNumber(in BuildInput) (string, error) {
	linkIDs := make([]uint, len(in.Links))
	for i, l := range in.Links {
		linkIDs[i] = l.ID
	}

	var number string
	switch t := in.Target.(type) {
	case models.SessionOffer:
		number = SessionOrderNumber(t.Mode.Mode, t.Session.ID, in.User.ID, linkIDs)
	case *models.SessionOffer:
		number = SessionOrderNumber(t.Mode.Mode, t.Session.ID, in.User.ID, linkIDs)
	case models.ModuleOffer, *models.ModuleOffer:
		if o := strings.TrimSpace(in.OrderNumber); o != "" {
			return TruncateOrderNumber(o), nil
		}
		number = ModuleOrderNumber(in.Target.Ref().ID, in.User.ID, b.now().Unix(), linkIDs)
	default:
		return "", ErrUnknownTarget
	}

	if in.GiftReceiver != nil && in.GiftReceiver.ID != 0 {
		number = GiftOrderNumber(in.GiftReceiver.ID, number)
	}
	return number, nil
}

// Build returns the payment for an intent. An existing order with the same
// number is reused; a changed total or metadata is written to it unless it is
// paid.
func (b *Builder) Build(ctx context.Context, in BuildInput) (*Order, error) {
	_ = ctx
	if in.User.ID == 0 || strings.TrimSpace(in.User.Username) == "" {
		return nil, errors.New("user with id and username is required")
	}
	if in.Target == nil {
		return nil, ErrUnknownTarget
	}
	if in.TotalPrice < 0 {
		return nil, errors.New("total price must not be negative")
	}

	orderNumber, err := b.OrderNumber(in)
	if err != nil {
		return nil, err
	}

	existing, err := b.store.GetPayment(orderNumber)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if existing != nil {
		return b.reuse(existing, in)
	}

	meta := b.metadata(orderNumber, in)
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}

	payment := &models.Payment{
		OrderNumber:    orderNumber,
		CustomerNumber: in.User.Username,
		OrderAmount:    in.TotalPrice,
		UserID:         in.User.ID,
		Metadata:       datatypes.JSON(raw),
		GrantStatus:    models.GrantStatusCreated,
	}
	if !in.Create {
		return &Order{Payment: payment, Metadata: meta}, nil
	}

	created, err := b.store.CreatePaymentIfNotExists(payment)
	if err != nil {
		return nil, err
	}
	if !created {
		// Another request stored the same order in the meantime.
		return b.reuse(payment, in)
	}
	log.Infof("[OrderBuilder] Created order %s amount=%d user=%d", payment.OrderNumber, payment.OrderAmount, payment.UserID)
	return &Order{Payment: payment, Metadata: meta, Created: true}, nil
}

// reuse brings an existing order in line with the intent. An unpaid order
// takes the new total and metadata in one guarded write; a paid order is
// left as it was and only a changed total is an error.
func (b *Builder) reuse(payment *models.Payment, in BuildInput) (*Order, error) {
	stored, _ := ParseMetadata(payment.Metadata)
	order := &Order{Payment: payment}
	if stored != nil {
		order.Metadata = *stored
	}

	total := in.TotalPrice
	if payment.IsPaid {
		if payment.OrderAmount != total {
			log.Errorf("[OrderBuilder] price changed from %d to %d for paid order %s", payment.OrderAmount, total, payment.OrderNumber)
			return nil, ErrPaidOrderAmountChanged
		}
		return order, nil
	}

	meta := b.metadata(payment.OrderNumber, in)
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	if payment.OrderAmount == total && stored != nil {
		if current, err := json.Marshal(stored); err == nil && bytes.Equal(current, raw) {
			return order, nil
		}
	}

	if payment.OrderAmount != total {
		log.Warnf("[OrderBuilder] price changed from %d to %d, updating order_amount for payment %s", payment.OrderAmount, total, payment.OrderNumber)
	}
	if stored == nil || stored.PromoCode != meta.PromoCode {
		log.Infof("[OrderBuilder] promo code of order %s is now %q", payment.OrderNumber, meta.PromoCode)
	}
	if err := b.store.UpdatePendingOrder(payment.ID, total, datatypes.JSON(raw)); err != nil {
		if errors.Is(err, ErrPaidOrderAmountChanged) {
			log.Errorf("[OrderBuilder] order %s was paid while it was being updated", payment.OrderNumber)
		}
		return nil, err
	}
	payment.OrderAmount = total
	payment.Metadata = datatypes.JSON(raw)
	order.Metadata = meta
	return order, nil
}

func (b *Builder) metadata(orderNumber string, in BuildInput) Metadata {
	meta := Metadata{
		User:        Snapshot(in.User),
		UpsaleLinks: make([]uint, 0, len(in.Links)),
		PromoCode:   strings.TrimSpace(in.PromoCode),
	}
	for _, l := range in.Links {
		meta.UpsaleLinks = append(meta.UpsaleLinks, l.ID)
	}

	switch t := in.Target.(type) {
	case models.SessionOffer:
		meta.NewMode = &SessionMode{ID: t.Mode.ID, Mode: t.Mode.Mode}
	case *models.SessionOffer:
		meta.NewMode = &SessionMode{ID: t.Mode.ID, Mode: t.Mode.Mode}
	default:
		meta.EdModule = &ModuleMode{ID: in.Target.Ref().ID, EnrollmentTypeID: in.Target.PurchaseID(), Mode: moduleMode(in.Target)}
		if in.OnlyFirstCourse {
			meta.OnlyFirstCourse = true
			meta.FirstSessionID = in.FirstSessionID
		}
	}

	if in.GiftReceiver != nil && in.GiftReceiver.ID != 0 {
		r := Snapshot(*in.GiftReceiver)
		meta.GiftReceiver = &r
	}

	meta.Analytics = b.analytics(orderNumber, in)
	return meta
}

func moduleMode(t models.Purchasable) string {
	switch m := t.(type) {
	case models.ModuleOffer:
		return m.Mode.Mode
	case *models.ModuleOffer:
		return m.Mode.Mode
	}
	return ""
}

// analytics builds one transaction hit and one item hit per priced line.
func (b *Builder) analytics(orderNumber string, in BuildInput) []AnalyticsHit {
	items := in.LineItems
	if len(items) == 0 {
		items = []pricing.LineItem{{
			SKU:   in.Target.Ref().String(),
			Title: in.Target.PurchaseTitle(),
			Kind:  string(in.Target.Ref().Kind),
			Price: in.TotalPrice,
		}}
	}

	hits := make([]AnalyticsHit, 0, len(items)+1)
	hits = append(hits, AnalyticsHit{
		"t":   "transaction",
		"ti":  orderNumber,
		"tr":  strconv.Itoa(in.TotalPrice),
		"cu":  b.currency,
		"uid": strconv.FormatUint(uint64(in.User.ID), 10),
	})
	for _, it := range items {
		hits = append(hits, AnalyticsHit{
			"t":  "item",
			"ti": orderNumber,
			"in": it.Title,
			"ic": it.SKU,
			"ip": strconv.Itoa(it.Price),
			"iq": "1",
			"iv": it.Kind,
			"cu": b.currency,
		})
	}
	return hits
}

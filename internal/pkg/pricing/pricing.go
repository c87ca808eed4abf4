// Package pricing computes payable amounts for a purchase intent.
// Everything here is a pure function over the passed-in catalog state.
package pricing

import (
	"errors"
	"fmt"

	"github.com/ManuelReschke/OproPay/app/models"
)

// Line item kinds, used as the analytics item variation.
const (
	KindSession = "session"
	KindModule  = "module"
	KindUpsale  = "upsale"
)

var ErrNoFirstSession = errors.New("first course selected but the module has no such session")

// LineItem is one priced line shown to the purchaser and sent to analytics.
type LineItem struct {
	SKU   string `json:"sku"`
	Title string `json:"title"`
	Kind  string `json:"kind"`
	Price int    `json:"price"`
}

// Quote is the price breakdown of a purchase intent.
type Quote struct {
	// BasePrice is the undiscounted product price.
	BasePrice int `json:"base_price"`
	// ProductPrice is what is charged for the product itself after a promo code.
	ProductPrice int        `json:"product_price"`
	TotalPrice   int        `json:"total_price"`
	LineItems    []LineItem `json:"line_items"`
}

// Input describes what is being priced.
type Input struct {
	Target models.Purchasable
	Links  []models.UpsaleLink
	// DiscountedBase replaces the product price when a promo code was accepted.
	DiscountedBase  *int
	OnlyFirstCourse bool
	// FirstSession is the selected course when OnlyFirstCourse is set. When
	// nil the module's first session is used.
	FirstSession *models.SessionOffer
}

// ProductPrice returns the undiscounted price of the product part of an
// order and the line item describing it.
func ProductPrice(in Input) (LineItem, error) {
	if in.Target == nil {
		return LineItem{}, errors.New("pricing target is required")
	}

	module, isModule := in.Target.(models.ModuleOffer)
	if p, ok := in.Target.(*models.ModuleOffer); ok && p != nil {
		module, isModule = *p, true
	}

	if isModule && in.OnlyFirstCourse {
		first := in.FirstSession
		if first == nil {
			s, ok := module.FirstSession(0)
			if !ok {
				return LineItem{}, ErrNoFirstSession
			}
			first = &s
		}
		return LineItem{
			SKU:   fmt.Sprintf("edmodule-%d-session-%d", module.Module.ID, first.Session.ID),
			Title: first.Session.Title,
			Kind:  KindSession,
			Price: first.PurchasePrice(),
		}, nil
	}

	if isModule {
		return LineItem{
			SKU:   fmt.Sprintf("edmodule-%d", module.Module.ID),
			Title: module.PurchaseTitle(),
			Kind:  KindModule,
			Price: module.PurchasePrice(),
		}, nil
	}

	return LineItem{
		SKU:   fmt.Sprintf("%s-%d", in.Target.Ref().Kind, in.Target.Ref().ID),
		Title: in.Target.PurchaseTitle(),
		Kind:  KindSession,
		Price: in.Target.PurchasePrice(),
	}, nil
}

// Calculate prices the product and every selected link. Links are priced
// with UpsaleLink.GetPaymentPrice and keep their input order.
func Calculate(in Input) (*Quote, error) {
	product, err := ProductPrice(in)
	if err != nil {
		return nil, err
	}

	q := &Quote{BasePrice: product.Price, ProductPrice: product.Price}
	if in.DiscountedBase != nil {
		q.ProductPrice = clamp(*in.DiscountedBase)
	}
	product.Price = q.ProductPrice
	q.LineItems = append(q.LineItems, product)
	q.TotalPrice = q.ProductPrice

	for _, link := range in.Links {
		price := clamp(link.GetPaymentPrice())
		q.LineItems = append(q.LineItems, LineItem{
			SKU:   fmt.Sprintf("upsale-%d", link.ID),
			Title: link.Upsale.Title,
			Kind:  KindUpsale,
			Price: price,
		})
		q.TotalPrice += price
	}
	return q, nil
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

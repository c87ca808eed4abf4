// Package promocode validates discount codes and computes discounted prices.
// Nothing here consumes a code: usage is counted only when a payment for an
// order carrying the code is confirmed.
package promocode

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ManuelReschke/OproPay/app/models"
	"github.com/ManuelReschke/OproPay/app/repository"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// Result statuses, as returned to the checkout page.
const (
	StatusOK     = 0
	StatusFailed = 1
)

var (
	ErrEmptyCode     = errors.New("promo code is empty")
	ErrNotFound      = errors.New("promo code not found")
	ErrExpired       = errors.New("promo code expired")
	ErrExhausted     = errors.New("promo code has no uses left")
	ErrNotApplicable = errors.New("promo code is not valid for this product")
	ErrUnknownTarget = errors.New("product not found")
)

// Result is the outcome of Validate and Calculate.
type Result struct {
	Status   int    `json:"status"`
	Message  string `json:"message,omitempty"`
	NewPrice *int   `json:"new_price,omitempty"`
}

// CalculateInput names the product the discount is computed for.
type CalculateInput struct {
	Code            string
	ProductType     models.TargetKind
	ProductID       uint
	SessionID       uint
	OnlyFirstCourse bool
}

// Engine checks promo codes against the catalog.
type Engine struct {
	codes   repository.PromoCodeRepository
	catalog repository.CatalogRepository
	now     func() time.Time
}

// NewEngine creates a promo code engine.
func NewEngine(codes repository.PromoCodeRepository, catalog repository.CatalogRepository) *Engine {
	return &Engine{codes: codes, catalog: catalog, now: time.Now}
}

// Check loads the code and verifies it may be used for the target.
func (e *Engine) Check(ctx context.Context, code string, target models.TargetRef) (*models.PromoCode, error) {
	_ = ctx
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrEmptyCode
	}
	if !target.Valid() {
		return nil, ErrUnknownTarget
	}

	promo, err := e.codes.GetByCode(code)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	switch {
	case promo.Expired(e.now()):
		return nil, ErrExpired
	case promo.Exhausted():
		return nil, ErrExhausted
	case !promo.AppliesTo(target):
		return nil, ErrNotApplicable
	}
	return promo, nil
}

// Validate reports whether the code may be applied to the product.
func (e *Engine) Validate(ctx context.Context, code string, productID uint, productType models.TargetKind) Result {
	if _, err := e.Check(ctx, code, models.TargetRef{Kind: productType, ID: productID}); err != nil {
		return failed(err)
	}
	return Result{Status: StatusOK}
}

// Calculate returns the discounted product price. For a first-course-only
// module purchase the discount applies to the selected session's price.
func (e *Engine) Calculate(ctx context.Context, in CalculateInput) Result {
	target := models.TargetRef{Kind: in.ProductType, ID: in.ProductID}
	promo, err := e.Check(ctx, in.Code, target)
	if err != nil {
		return failed(err)
	}

	base, err := e.basePrice(in)
	if err != nil {
		return failed(err)
	}

	price := Discount(*promo, base)
	log.Debugf("[Promocode] %s applied to %s: %d -> %d", promo.Code, target, base, price)
	return Result{Status: StatusOK, NewPrice: &price}
}

// DiscountedPrice checks the code and applies it to an already known base
// price.
func (e *Engine) DiscountedPrice(ctx context.Context, code string, target models.TargetRef, base int) (int, error) {
	promo, err := e.Check(ctx, code, target)
	if err != nil {
		return base, err
	}
	return Discount(*promo, base), nil
}

func (e *Engine) basePrice(in CalculateInput) (int, error) {
	switch in.ProductType {
	case models.TargetSession:
		offer, err := e.catalog.GetSessionOffer(in.ProductID, models.ModeVerified)
		if err != nil {
			return 0, notFound(err)
		}
		return offer.PurchasePrice(), nil
	case models.TargetModule:
		offer, err := e.catalog.GetModuleOffer(in.ProductID)
		if err != nil {
			return 0, notFound(err)
		}
		if !in.OnlyFirstCourse {
			return offer.PurchasePrice(), nil
		}
		first, ok := offer.FirstSession(in.SessionID)
		if !ok {
			return 0, ErrUnknownTarget
		}
		return first.PurchasePrice(), nil
	}
	return 0, ErrUnknownTarget
}

// Discount applies the code to a price. An absolute discount price wins over
// a percentage; the result never drops below zero.
func Discount(promo models.PromoCode, price int) int {
	switch {
	case promo.DiscountPrice != nil:
		price -= *promo.DiscountPrice
	case promo.DiscountPercent != nil:
		pct := *promo.DiscountPercent
		if pct < 0 {
			pct = 0
		}
		if pct > 100 {
			pct = 100
		}
		price = price * (100 - pct) / 100
	}
	if price < 0 {
		return 0
	}
	return price
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrUnknownTarget
	}
	return err
}

func failed(err error) Result {
	return Result{Status: StatusFailed, Message: Message(err)}
}

// Message returns the purchaser-facing text for an engine error.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrEmptyCode):
		return "Enter a promo code"
	case errors.Is(err, ErrNotFound):
		return "Promo code not found"
	case errors.Is(err, ErrExpired):
		return "Promo code has expired"
	case errors.Is(err, ErrExhausted):
		return "Promo code has already been used the maximum number of times"
	case errors.Is(err, ErrNotApplicable):
		return "Promo code is not valid for this product"
	case errors.Is(err, ErrUnknownTarget):
		return "Product not found"
	default:
		log.Errorf("[Promocode] check failed: %v", err)
		return "Something went wrong, please try again"
	}
}

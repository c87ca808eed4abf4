package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/OproPay/app/models"
	"github.com/ManuelReschke/OproPay/app/repository"
	"github.com/ManuelReschke/OproPay/internal/pkg/pricing"
	"github.com/ManuelReschke/OproPay/internal/pkg/promocode"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// Identity is an account returned by the user directory.
type Identity struct {
	ID        uint
	Username  string
	Email     string
	FirstName string
}

// UserDirectory creates or fetches accounts of the single sign-on service.
type UserDirectory interface {
	CreateOrFetchUser(ctx context.Context, firstName, email string) (*Identity, error)
}

// OrderNumberMemo remembers the order number generated for a checkout key,
// so a module checkout keeps its timestamped number between page load and
// submit. Remember returns the stored number, storing candidate if none is.
type OrderNumberMemo interface {
	Remember(key, candidate string) (string, error)
}

// QuoteInput selects what the purchaser wants to buy.
type QuoteInput struct {
	UserID          uint
	Target          models.TargetRef
	LinkIDs         []uint
	PromoCode       string
	OnlyFirstCourse bool
	FirstSessionID  uint
}

// QuoteResult is a priced, availability-checked purchase intent.
type QuoteResult struct {
	Offer        models.Purchasable
	Links        []models.UpsaleLink
	Quote        *pricing.Quote
	PromoCode    string
	FirstSession *models.SessionOffer
}

// PlaceInput is a quote to be turned into an order.
type PlaceInput struct {
	QuoteInput
	User   models.User
	Create bool
	// OrderNumber, when set, is used verbatim for module orders.
	OrderNumber  string
	GiftReceiver *models.User
	GiftText     string
	GiftNotifyAt *time.Time
	ProductTag   string
}

// Checkout quotes purchase intents and turns them into orders.
type Checkout struct {
	repos     *repository.Repositories
	promos    *promocode.Engine
	builder   *Builder
	store     Store
	directory UserDirectory
	memo      OrderNumberMemo
	validate  *validator.Validate
	now       func() time.Time
}

// NewCheckout creates a checkout service. memo may be nil.
func NewCheckout(repos *repository.Repositories, promos *promocode.Engine, builder *Builder, store Store, directory UserDirectory, memo OrderNumberMemo) *Checkout {
	return &Checkout{
		repos:     repos,
		promos:    promos,
		builder:   builder,
		store:     store,
		directory: directory,
		memo:      memo,
		validate:  validator.New(),
		now:       time.Now,
	}
}

// Quote resolves the product and the selected upsales, checks that every
// upsale can be bought and prices the intent.
func (c *Checkout) Quote(ctx context.Context, in QuoteInput) (*QuoteResult, error) {
	offer, first, err := c.resolveTarget(in)
	if err != nil {
		return nil, err
	}

	links, err := c.resolveLinks(in.LinkIDs)
	if err != nil {
		return nil, err
	}
	if err := c.checkAvailability(in.UserID, offer, links); err != nil {
		return nil, err
	}

	priceIn := pricing.Input{
		Target:          offer,
		Links:           links,
		OnlyFirstCourse: in.OnlyFirstCourse,
		FirstSession:    first,
	}

	code := strings.TrimSpace(in.PromoCode)
	if code != "" {
		product, err := pricing.ProductPrice(priceIn)
		if err != nil {
			return nil, newValidationError("first_session_id", "%v", err)
		}
		discounted, err := c.promos.DiscountedPrice(ctx, code, offer.Ref(), product.Price)
		if err != nil {
			return nil, newValidationError("promocode", "%s", promocode.Message(err))
		}
		priceIn.DiscountedBase = &discounted
	}

	quote, err := pricing.Calculate(priceIn)
	if err != nil {
		return nil, newValidationError("first_session_id", "%v", err)
	}
	return &QuoteResult{Offer: offer, Links: links, Quote: quote, PromoCode: code, FirstSession: first}, nil
}

// Place quotes the intent and builds its order. A gift order also records
// the pending gift the first time the order is stored.
func (c *Checkout) Place(ctx context.Context, in PlaceInput) (*Order, *QuoteResult, error) {
	in.UserID = in.User.ID
	q, err := c.Quote(ctx, in.QuoteInput)
	if err != nil {
		return nil, nil, err
	}
	if in.GiftReceiver != nil && in.GiftReceiver.ID == in.User.ID {
		return nil, nil, newValidationError("receiver", "a gift cannot be sent to yourself")
	}

	build := BuildInput{
		User:            in.User,
		Target:          q.Offer,
		Links:           q.Links,
		TotalPrice:      q.Quote.TotalPrice,
		LineItems:       q.Quote.LineItems,
		Create:          in.Create,
		OnlyFirstCourse: in.OnlyFirstCourse,
		GiftReceiver:    in.GiftReceiver,
		PromoCode:       q.PromoCode,
		OrderNumber:     in.OrderNumber,
	}
	if q.FirstSession != nil {
		build.FirstSessionID = q.FirstSession.Session.ID
	}
	if in.Target.IsModule() && build.OrderNumber == "" && c.memo != nil {
		build.OrderNumber, err = c.rememberModuleOrder(in, build)
		if err != nil {
			return nil, nil, err
		}
	}

	order, err := c.builder.Build(ctx, build)
	if err != nil {
		return nil, nil, err
	}

	if order.Created && in.GiftReceiver != nil {
		gift := &models.GiftPaymentInfo{
			SenderID:   in.User.ID,
			ReceiverID: in.GiftReceiver.ID,
			TargetType: in.Target.Kind,
			TargetID:   in.Target.ID,
			NotifyAt:   in.GiftNotifyAt,
			GiftText:   strings.TrimSpace(in.GiftText),
			ProductTag: strings.TrimSpace(in.ProductTag),
		}
		if err := c.store.CreateGift(gift); err != nil {
			return nil, nil, err
		}
		log.Infof("[Checkout] Gift %d recorded for order %s", gift.ID, order.Payment.OrderNumber)
	}
	return order, q, nil
}

func (c *Checkout) rememberModuleOrder(in PlaceInput, build BuildInput) (string, error) {
	candidate, err := c.builder.OrderNumber(build)
	if err != nil {
		return "", err
	}
	ids := make([]uint, len(build.Links))
	for i, l := range build.Links {
		ids[i] = l.ID
	}
	receiver := uint(0)
	if in.GiftReceiver != nil {
		receiver = in.GiftReceiver.ID
	}
	key := fmt.Sprintf("checkout:edmodule:%d:%d:%d:%t:%d:%d:%s",
		in.Target.ID, in.User.ID, receiver, build.OnlyFirstCourse, build.FirstSessionID, build.TotalPrice, joinIDs(ids))
	number, err := c.memo.Remember(key, candidate)
	if err != nil {
		log.Errorf("[Checkout] order number memo unavailable: %v", err)
		return "", fmt.Errorf("remember module order number: %w", err)
	}
	return number, nil
}

// ResolvePurchaser creates or fetches the account for a purchaser who is not
// logged in and refreshes the local mirror. Directory failures abort the
// purchase before anything is stored.
func (c *Checkout) ResolvePurchaser(ctx context.Context, firstName, email string) (*models.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if err := c.validate.Var(email, "required,email"); err != nil {
		return nil, newValidationError("email", "enter a valid email address")
	}
	if c.directory == nil {
		return nil, errors.New("user directory is not configured")
	}

	identity, err := c.directory.CreateOrFetchUser(ctx, strings.TrimSpace(firstName), email)
	if err != nil {
		return nil, fmt.Errorf("user directory: %w", err)
	}
	if identity == nil || identity.ID == 0 {
		return nil, ErrUserNotResolved
	}

	user := &models.User{
		ID:        identity.ID,
		Username:  identity.Username,
		Email:     identity.Email,
		FirstName: identity.FirstName,
	}
	if user.Email == "" {
		user.Email = email
	}
	if err := user.Validate(); err != nil {
		return nil, fmt.Errorf("user directory returned an invalid user: %w", err)
	}
	if err := c.repos.User.Upsert(user); err != nil {
		return nil, err
	}
	return user, nil
}

func (c *Checkout) resolveTarget(in QuoteInput) (models.Purchasable, *models.SessionOffer, error) {
	switch {
	case in.Target.IsSession():
		offer, err := c.repos.Catalog.GetSessionOffer(in.Target.ID, models.ModeVerified)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, newValidationError("session_id", "course session %d is not for sale", in.Target.ID)
		}
		if err != nil {
			return nil, nil, err
		}
		return *offer, nil, nil
	case in.Target.IsModule():
		offer, err := c.repos.Catalog.GetModuleOffer(in.Target.ID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, newValidationError("module_id", "module %d is not for sale", in.Target.ID)
		}
		if err != nil {
			return nil, nil, err
		}
		if !in.OnlyFirstCourse {
			return *offer, nil, nil
		}
		first, ok := offer.FirstSession(in.FirstSessionID)
		if !ok {
			return nil, nil, newValidationError("first_session_id", "course session %d is not part of module %d", in.FirstSessionID, in.Target.ID)
		}
		return *offer, &first, nil
	}
	return nil, nil, newValidationError("target", "unknown product reference %q", in.Target.String())
}

func (c *Checkout) resolveLinks(ids []uint) ([]models.UpsaleLink, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	links, err := c.repos.Upsale.GetLinks(ids)
	if err != nil {
		return nil, err
	}
	if len(links) != len(ids) {
		found := make(map[uint]bool, len(links))
		for _, l := range links {
			found[l.ID] = true
		}
		for _, id := range ids {
			if !found[id] {
				return nil, newValidationError("upsale_link_ids", "upsale %d does not exist", id)
			}
		}
	}
	return links, nil
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

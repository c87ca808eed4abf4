package payments

import (
	"context"
	"fmt"

	"github.com/ManuelReschke/OproPay/app/models"
	"github.com/ManuelReschke/OproPay/internal/pkg/metrics"
	"github.com/gofiber/fiber/v2/log"
	"golang.org/x/sync/errgroup"
)

// PurchasedUpsale is an upsale granted by a confirmed order.
type PurchasedUpsale struct {
	LinkID    uint
	Title     string
	Price     int
	Emails    []string
	PromoCode string
}

// Confirmation describes a granted order to the notifiers.
type Confirmation struct {
	OrderNumber string
	Amount      int
	Kind        Shape
	ProductID   uint
	Title       string
	// Buyer paid; Beneficiary received the entitlements. They differ for gifts.
	Buyer           UserSnapshot
	Beneficiary     UserSnapshot
	IsGift          bool
	OnlyFirstCourse bool
	PromoCode       string
	Upsales         []PurchasedUpsale
	Analytics       []AnalyticsHit
}

// Notifier is one best-effort channel informed after a grant.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, c *Confirmation) error
}

func (r *Reconciler) confirmation(g *grant) *Confirmation {
	c := &Confirmation{
		OrderNumber:     g.payment.OrderNumber,
		Amount:          g.payment.OrderAmount,
		Kind:            g.shape,
		Buyer:           g.meta.User,
		Beneficiary:     g.beneficiary,
		IsGift:          g.meta.IsGift(),
		OnlyFirstCourse: g.meta.OnlyFirstCourse,
		PromoCode:       g.meta.PromoCode,
		Analytics:       g.meta.Analytics,
	}

	var title string
	switch g.shape {
	case ShapeSession:
		c.ProductID, title = g.session.Session.ID, g.session.Session.Title
	case ShapeModule:
		c.ProductID, title = g.module.Module.ID, g.module.Module.Title
		if g.first != nil {
			title = fmt.Sprintf("%s: %s", title, g.first.Session.Title)
		}
	}
	c.Title = title

	for _, l := range g.links {
		c.Upsales = append(c.Upsales, purchased(l, g.issuedCodes[l.ID]))
	}
	return c
}

func purchased(l models.UpsaleLink, code string) PurchasedUpsale {
	return PurchasedUpsale{
		LinkID:    l.ID,
		Title:     l.Upsale.Title,
		Price:     l.GetPaymentPrice(),
		Emails:    l.Upsale.EmailList(),
		PromoCode: code,
	}
}

// fanOut runs every notifier concurrently under one deadline. A failing or
// panicking notifier is reported and does not affect the others.
func (r *Reconciler) fanOut(ctx context.Context, c *Confirmation) {
	if len(r.notifiers) == 0 {
		return
	}

	// Notifications outlive a cancelled request context.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.notifyTimeout)
	defer cancel()

	var g errgroup.Group
	for _, n := range r.notifiers {
		n := n
		g.Go(func() error {
			err := safeNotify(ctx, n, c)
			metrics.NotificationResult(n.Name(), err)
			if err != nil {
				log.Warnf("[Reconciler] %s notification for order %s failed: %v", n.Name(), c.OrderNumber, err)
				r.reporter.Report("notification failed", map[string]any{
					"channel":      n.Name(),
					"order_number": c.OrderNumber,
					"error":        err.Error(),
				})
			}
			return nil
		})
	}
	_ = g.Wait()
}

func safeNotify(ctx context.Context, n Notifier, c *Confirmation) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return n.Notify(ctx, c)
}

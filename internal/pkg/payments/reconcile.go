package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuelReschke/OproPay/app/models"
	"github.com/ManuelReschke/OproPay/app/repository"
	"github.com/ManuelReschke/OproPay/internal/pkg/errtrack"
	"github.com/ManuelReschke/OproPay/internal/pkg/metrics"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// Enroller pushes an enrollment to the external learning system.
type Enroller interface {
	Enroll(ctx context.Context, courseRef, username, mode string) error
}

// PromoSource reads pre-generated promo codes. Lines are numbered from zero.
type PromoSource interface {
	ReadLine(ctx context.Context, file string, line int) (string, error)
}

// ReconcilerDeps are the collaborators of a Reconciler. LMS, Promos and
// Notifiers may be nil or empty.
type ReconcilerDeps struct {
	Store     Store
	Repos     *repository.Repositories
	LMS       Enroller
	Promos    PromoSource
	Reporter  errtrack.Reporter
	Notifiers []Notifier
	// PushTimeout bounds each call to the learning system.
	PushTimeout time.Duration
	// NotifyTimeout bounds the whole notification fan-out.
	NotifyTimeout time.Duration
}

// Reconciler grants entitlements for confirmed payments, exactly once per
// order number.
type Reconciler struct {
	store         Store
	repos         *repository.Repositories
	lms           Enroller
	promos        PromoSource
	reporter      errtrack.Reporter
	notifiers     []Notifier
	pushTimeout   time.Duration
	notifyTimeout time.Duration
	now           func() time.Time
}

// NewReconciler creates a reconciler.
func NewReconciler(deps ReconcilerDeps) *Reconciler {
	r := &Reconciler{
		store:         deps.Store,
		repos:         deps.Repos,
		lms:           deps.LMS,
		promos:        deps.Promos,
		reporter:      deps.Reporter,
		notifiers:     deps.Notifiers,
		pushTimeout:   deps.PushTimeout,
		notifyTimeout: deps.NotifyTimeout,
		now:           time.Now,
	}
	if r.reporter == nil {
		r.reporter = errtrack.NewLogReporter()
	}
	if r.pushTimeout <= 0 {
		r.pushTimeout = 10 * time.Second
	}
	if r.notifyTimeout <= 0 {
		r.notifyTimeout = 30 * time.Second
	}
	return r
}

// lmsPush is an enrollment push queued until the grant is committed.
type lmsPush struct {
	CourseRef string
	Username  string
	Mode      string
}

// grant collects what one confirmation wrote.
type grant struct {
	payment     *models.Payment
	meta        *Metadata
	shape       Shape
	beneficiary UserSnapshot
	session     *models.SessionOffer
	module      *models.ModuleOffer
	first       *models.SessionOffer
	links       []models.UpsaleLink
	issuedCodes map[uint]string
	pushes      []lmsPush
	duplicate   bool
}

// OnPaymentConfirmed is the gateway confirmation handler. It returns nil for
// unpaid payments, for metadata of other payment flows and for orders that
// were already granted. An error means no entitlement was written and the
// confirmation may be retried.
func (r *Reconciler) OnPaymentConfirmed(ctx context.Context, payment *models.Payment) error {
	if payment == nil || !payment.IsPaid {
		return nil
	}

	meta, shape := ParseMetadata(payment.Metadata)
	if shape == ShapeUnknown {
		log.Infof("[Reconciler] Ignoring payment %s with foreign metadata", payment.OrderNumber)
		return nil
	}

	g := &grant{
		payment:     payment,
		meta:        meta,
		shape:       shape,
		beneficiary: meta.Beneficiary(),
		issuedCodes: map[uint]string{},
	}
	if err := r.resolve(g); err != nil {
		if errors.Is(err, ErrUnknownTarget) {
			log.Errorf("[Reconciler] Order %s references a missing product: %v", payment.OrderNumber, err)
			r.reporter.Report("confirmed order references a missing product", map[string]any{
				"order_number": payment.OrderNumber,
				"error":        err.Error(),
			})
			return nil
		}
		return err
	}

	if _, err := r.store.MarkGranting(payment.ID); err != nil {
		return fmt.Errorf("mark granting: %w", err)
	}

	err := r.store.Transaction(func(s Store) error {
		locked, err := s.LockPayment(payment.ID)
		if err != nil {
			return err
		}
		if locked.IsGranted() {
			g.duplicate = true
			return nil
		}

		if err := r.apply(ctx, s, g); err != nil {
			return err
		}
		return s.MarkGranted(payment.ID, r.now())
	})
	if err != nil {
		log.Errorf("[Reconciler] Grant for order %s failed: %v", payment.OrderNumber, err)
		return err
	}

	if g.duplicate {
		metrics.DuplicateConfirmations.Inc()
		log.Infof("[Reconciler] Order %s already granted, skipping", payment.OrderNumber)
		return nil
	}

	metrics.Grants.WithLabelValues(shape.String()).Inc()
	log.Infof("[Reconciler] Granted order %s to user %d (%s)", payment.OrderNumber, g.beneficiary.ID, shape)

	r.pushEnrollments(ctx, g)
	r.fanOut(ctx, r.confirmation(g))
	return nil
}

// resolve loads the catalog rows named by the metadata before any lock is
// taken.
func (r *Reconciler) resolve(g *grant) error {
	switch g.shape {
	case ShapeSession:
		offer, err := r.repos.Catalog.GetSessionOfferByModeID(g.meta.NewMode.ID)
		if err != nil {
			return lookupErr("session mode", g.meta.NewMode.ID, err)
		}
		g.session = offer
	case ShapeModule:
		offer, err := r.repos.Catalog.GetModuleOfferByModeID(g.meta.EdModule.EnrollmentTypeID)
		if err != nil {
			return lookupErr("module mode", g.meta.EdModule.EnrollmentTypeID, err)
		}
		g.module = offer
		if g.meta.OnlyFirstCourse {
			first, ok := offer.FirstSession(g.meta.FirstSessionID)
			if !ok {
				return fmt.Errorf("%w: session %d is not part of module %d", ErrUnknownTarget, g.meta.FirstSessionID, offer.Module.ID)
			}
			g.first = &first
		}
	}

	links, err := r.repos.Upsale.GetLinks(g.meta.UpsaleLinks)
	if err != nil {
		return err
	}
	if len(links) != len(uniqueIDs(g.meta.UpsaleLinks)) {
		log.Warnf("[Reconciler] Order %s references %d upsale links, %d exist", g.payment.OrderNumber, len(g.meta.UpsaleLinks), len(links))
	}
	g.links = links
	return nil
}

func lookupErr(what string, id uint, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s %d", ErrUnknownTarget, what, id)
	}
	return err
}

// apply writes every entitlement of the order inside one transaction.
func (r *Reconciler) apply(ctx context.Context, s Store, g *grant) error {
	switch g.shape {
	case ShapeSession:
		if err := r.grantSession(s, g, *g.session, models.PaymentTypeExternal); err != nil {
			return err
		}
		if err := r.grantUpsales(ctx, s, g); err != nil {
			return err
		}
	case ShapeModule:
		if err := r.grantModule(ctx, s, g); err != nil {
			return err
		}
	}

	if g.meta.IsGift() {
		if err := r.markGiftPaid(s, g); err != nil {
			return err
		}
	}
	return r.redeemPromoCode(s, g)
}

func (r *Reconciler) markGiftPaid(s Store, g *grant) error {
	target := g.session.Ref()
	if g.shape == ShapeModule {
		target = g.module.Ref()
	}

	gifts, err := s.FindGiftCandidates(g.beneficiary.ID, g.meta.User.ID, target)
	if err != nil {
		return err
	}
	if len(gifts) != 1 {
		log.Warnf("[Reconciler] Order %s matches %d gifts from %d to %d for %s, leaving them unchanged",
			g.payment.OrderNumber, len(gifts), g.meta.User.ID, g.beneficiary.ID, target)
		return nil
	}
	if gifts[0].HasPaid {
		return nil
	}
	return s.MarkGiftPaid(gifts[0].ID)
}

func (r *Reconciler) redeemPromoCode(s Store, g *grant) error {
	if g.meta.PromoCode == "" {
		return nil
	}
	redeemed, err := s.RedeemPromoCode(g.meta.PromoCode, g.payment.OrderNumber)
	if errors.Is(err, ErrPromoCodeMissing) {
		log.Warnf("[Reconciler] Promo code %q of order %s no longer exists", g.meta.PromoCode, g.payment.OrderNumber)
		return nil
	}
	if err != nil {
		return err
	}
	if redeemed {
		log.Infof("[Reconciler] Promo code %q used by order %s", g.meta.PromoCode, g.payment.OrderNumber)
	}
	return nil
}

// pushEnrollments sends queued enrollments to the learning system. Failures
// are reported and counted; the local grant stands.
func (r *Reconciler) pushEnrollments(ctx context.Context, g *grant) {
	if r.lms == nil {
		return
	}
	for _, p := range g.pushes {
		pctx, cancel := context.WithTimeout(ctx, r.pushTimeout)
		err := r.lms.Enroll(pctx, p.CourseRef, p.Username, p.Mode)
		cancel()
		if err == nil {
			continue
		}
		metrics.LMSPushFailures.Inc()
		log.Errorf("[Reconciler] Enrollment push for order %s failed: %v", g.payment.OrderNumber, err)
		r.reporter.Report("enrollment push to learning system failed", map[string]any{
			"order_number": g.payment.OrderNumber,
			"course":       p.CourseRef,
			"username":     p.Username,
			"mode":         p.Mode,
			"error":        err.Error(),
		})
	}
}

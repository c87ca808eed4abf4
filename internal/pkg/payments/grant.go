package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ManuelReschke/OproPay/app/models"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/datatypes"
)

// grantSession enrolls the beneficiary into a session mode. The enrollment
// reason is the gate for the learning system push: only a newly created
// reason queues one.
func (r *Reconciler) grantSession(s Store, g *grant, offer models.SessionOffer, paymentType string) error {
	participant, _, err := s.GetOrCreateParticipant(offer.Session.ID, g.beneficiary.ID)
	if err != nil {
		return fmt.Errorf("participant: %w", err)
	}

	reason := &models.EnrollmentReason{
		ParticipantID:           participant.ID,
		SessionEnrollmentTypeID: offer.Mode.ID,
		PaymentType:             paymentType,
		PaymentOrderID:          g.payment.OrderNumber,
		PaymentDescription:      g.payment.CustomerNumber,
	}
	created, err := s.GetOrCreateEnrollmentReason(reason)
	if err != nil {
		return fmt.Errorf("enrollment reason: %w", err)
	}
	if created {
		g.pushes = append(g.pushes, lmsPush{
			CourseRef: offer.Session.CourseRef,
			Username:  g.beneficiary.Username,
			Mode:      offer.Mode.Mode,
		})
	}
	return nil
}

// grantModule enrolls the beneficiary into a module. A first-course-only
// purchase also enrolls into that course; the money was paid for the
// module, so the course reason carries the weaker payment type.
func (r *Reconciler) grantModule(ctx context.Context, s Store, g *grant) error {
	enrollment := &models.ModuleEnrollment{
		UserID:   g.beneficiary.ID,
		ModuleID: g.module.Module.ID,
		IsPaid:   true,
		IsActive: true,
	}
	if err := s.UpsertModuleEnrollment(enrollment); err != nil {
		return fmt.Errorf("module enrollment: %w", err)
	}

	if err := r.grantUpsales(ctx, s, g); err != nil {
		return err
	}

	reason := &models.ModuleEnrollmentReason{
		ModuleEnrollmentID:     enrollment.ID,
		ModuleEnrollmentTypeID: g.module.Mode.ID,
		PaymentType:            models.PaymentTypeExternal,
		PaymentOrderID:         g.payment.OrderNumber,
		FullPaid:               !g.meta.OnlyFirstCourse,
	}
	if _, err := s.GetOrCreateModuleEnrollmentReason(reason); err != nil {
		return fmt.Errorf("module enrollment reason: %w", err)
	}

	if g.meta.OnlyFirstCourse && g.first != nil {
		return r.grantSession(s, g, *g.first, models.PaymentTypeOther)
	}
	return nil
}

func (r *Reconciler) grantUpsales(ctx context.Context, s Store, g *grant) error {
	for _, link := range g.links {
		if err := r.grantUpsale(ctx, s, g, link); err != nil {
			return fmt.Errorf("upsale link %d: %w", link.ID, err)
		}
	}
	return nil
}

// grantUpsale upserts the beneficiary's enrollment for one link. A promo
// code already issued for the pair is kept; otherwise the link hands out its
// next code, if it has a code file.
func (r *Reconciler) grantUpsale(ctx context.Context, s Store, g *grant, link models.UpsaleLink) error {
	existing, err := s.GetObjectEnrollment(g.beneficiary.ID, link.ID)
	if err != nil {
		return err
	}

	code := ""
	if existing != nil {
		code = existing.IssuedPromoCode()
	}
	if code == "" {
		if code, err = r.issuePromoCode(ctx, s, g, link.ID); err != nil {
			return err
		}
	}

	enrollment := &models.ObjectEnrollment{
		UserID:              g.beneficiary.ID,
		UpsaleLinkID:        link.ID,
		EnrollmentType:      models.EnrollmentTypePaid,
		PaymentType:         models.PaymentTypeExternal,
		PaymentOrderID:      g.payment.OrderNumber,
		PaymentDescriptions: fmt.Sprintf("%s paid %d", g.payment.CustomerNumber, g.payment.OrderAmount),
		IsActive:            true,
	}
	if code != "" {
		raw, err := json.Marshal(models.ObjectEnrollmentPayload{PromoCode: code})
		if err != nil {
			return err
		}
		enrollment.Payload = datatypes.JSON(raw)
		g.issuedCodes[link.ID] = code
	}
	return s.UpsertObjectEnrollment(enrollment)
}

// issuePromoCode takes the next code from the link's code file. The link row
// stays locked until the transaction ends, so concurrent grants for the same
// link read consecutive lines. A code file that cannot be read is reported
// and the upsale is granted without a code.
func (r *Reconciler) issuePromoCode(ctx context.Context, s Store, g *grant, linkID uint) (string, error) {
	if r.promos == nil {
		return "", nil
	}

	link, err := s.LockLink(linkID)
	if err != nil {
		return "", err
	}
	ledger, err := link.Promo()
	if err != nil {
		log.Warnf("[Reconciler] Upsale link %d has unreadable additional_info: %v", linkID, err)
		return "", nil
	}
	if ledger == nil {
		return "", nil
	}

	code, err := r.promos.ReadLine(ctx, ledger.File, ledger.AlreadySent)
	code = strings.TrimSpace(code)
	if err == nil && code == "" {
		err = fmt.Errorf("line %d of %s is empty", ledger.AlreadySent, ledger.File)
	}
	if err != nil {
		log.Errorf("[Reconciler] Could not issue promo code for link %d: %v", linkID, err)
		r.reporter.Report("promo code file read failed", map[string]any{
			"order_number":   g.payment.OrderNumber,
			"upsale_link_id": linkID,
			"file":           ledger.File,
			"line":           ledger.AlreadySent,
			"error":          err.Error(),
		})
		return "", nil
	}

	if err := link.SetPromoSent(ledger.AlreadySent + 1); err != nil {
		return "", err
	}
	if err := s.SaveLinkInfo(link); err != nil {
		return "", err
	}
	return code, nil
}

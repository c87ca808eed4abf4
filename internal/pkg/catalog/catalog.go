// Package catalog validates and stores the upsale catalog maintained by
// staff.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/ManuelReschke/OproPay/app/models"
	"github.com/ManuelReschke/OproPay/app/repository"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

var (
	slugPattern        = regexp.MustCompile(`^[-a-zA-Z0-9_]+$`)
	integerListPattern = regexp.MustCompile(`^\d+(,\d+)*$`)
)

// UpsaleInput is the editable part of an upsale definition.
type UpsaleInput struct {
	Slug             string `json:"slug" validate:"required,max=191,slug"`
	Title            string `json:"title" validate:"required,max=255"`
	ShortDescription string `json:"short_description" validate:"required,min=20,max=80"`
	Description      string `json:"description" validate:"omitempty,min=60,max=400"`
	AdditionalInfo   string `json:"additional_info"`
	MaxPerSession    int    `json:"max_per_session" validate:"gte=0,lte=32767"`
	Price            int    `json:"price" validate:"gte=0,lte=999999"`
	DiscountPrice    *int   `json:"discount_price" validate:"omitempty,gte=0,lte=999999"`
	DaysToBuy        *int   `json:"days_to_buy" validate:"omitempty,gte=0,lte=32767"`
	DaysToReturn     *int   `json:"days_to_return" validate:"omitempty,gte=0,lte=32767"`
	Required         string `json:"required" validate:"max=100"`
	Emails           string `json:"emails" validate:"max=255"`
}

// Service validates catalog changes before they are stored.
type Service struct {
	repos    *repository.Repositories
	validate *validator.Validate
}

func NewService(repos *repository.Repositories) *Service {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugPattern.MatchString(fl.Field().String())
	})
	return &Service{repos: repos, validate: v}
}

// ValidateUpsale checks an upsale definition. Prerequisites must name
// existing upsales and every notification address must be valid.
func (s *Service) ValidateUpsale(ctx context.Context, in *UpsaleInput) error {
	_ = ctx
	in.Slug = strings.TrimSpace(in.Slug)
	in.Title = strings.TrimSpace(in.Title)
	in.ShortDescription = strings.TrimSpace(in.ShortDescription)
	in.Description = strings.TrimSpace(in.Description)
	in.Required = strings.ReplaceAll(strings.TrimSpace(in.Required), " ", "")
	in.Emails = strings.TrimSpace(in.Emails)

	errs := FieldErrors{}
	errs.collect(s.validate.Struct(in))

	if _, ok := errs["required"]; !ok && in.Required != "" {
		if msg, err := s.checkRequired(in.Required); err != nil {
			return err
		} else if msg != "" {
			errs["required"] = msg
		}
	}
	if _, ok := errs["emails"]; !ok {
		if bad := s.invalidEmails(in.Emails); len(bad) > 0 {
			errs["emails"] = "invalid email addresses: " + strings.Join(bad, ", ")
		}
	}
	return errs.orNil()
}

func (s *Service) checkRequired(raw string) (string, error) {
	if !integerListPattern.MatchString(raw) {
		return "enter upsale ids separated by commas", nil
	}
	var ids []uint
	seen := map[uint]bool{}
	for _, part := range strings.Split(raw, ",") {
		v, err := strconv.ParseUint(part, 10, 64)
		if err != nil || v == 0 {
			return "enter upsale ids separated by commas", nil
		}
		if !seen[uint(v)] {
			seen[uint(v)] = true
			ids = append(ids, uint(v))
		}
	}

	existing, err := s.repos.Upsale.ExistingUpsaleIDs(ids)
	if err != nil {
		return "", err
	}
	found := map[uint]bool{}
	for _, id := range existing {
		found[id] = true
	}
	var missing []string
	for _, id := range ids {
		if !found[id] {
			missing = append(missing, strconv.FormatUint(uint64(id), 10))
		}
	}
	if len(missing) > 0 {
		return "unknown upsale ids: " + strings.Join(missing, ", "), nil
	}
	return "", nil
}

func (s *Service) invalidEmails(raw string) []string {
	var bad []string
	for _, e := range strings.Split(raw, ",") {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if err := s.validate.Var(e, "email"); err != nil {
			bad = append(bad, e)
		}
	}
	return bad
}

// SaveUpsale validates and stores an upsale definition. A zero id creates a
// new one.
func (s *Service) SaveUpsale(ctx context.Context, id uint, in UpsaleInput) (*models.Upsale, error) {
	if err := s.ValidateUpsale(ctx, &in); err != nil {
		return nil, err
	}

	upsale := &models.Upsale{}
	if id != 0 {
		existing, err := s.repos.Upsale.GetUpsale(id)
		if err != nil {
			return nil, err
		}
		upsale = existing
	}
	if other, err := s.repos.Upsale.GetUpsaleBySlug(in.Slug); err == nil && other.ID != upsale.ID {
		return nil, FieldErrors{"slug": "an upsale with this slug already exists"}
	} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	upsale.Slug = in.Slug
	upsale.Title = in.Title
	upsale.ShortDescription = in.ShortDescription
	upsale.Description = in.Description
	upsale.AdditionalInfo = in.AdditionalInfo
	upsale.MaxPerSession = in.MaxPerSession
	upsale.Price = in.Price
	upsale.DiscountPrice = in.DiscountPrice
	upsale.DaysToBuy = in.DaysToBuy
	upsale.DaysToReturn = in.DaysToReturn
	upsale.Required = in.Required
	upsale.Emails = in.Emails
	if err := s.repos.Upsale.SaveUpsale(upsale); err != nil {
		return nil, err
	}
	log.Infof("[Catalog] Saved upsale %d (%s)", upsale.ID, upsale.Slug)
	return upsale, nil
}

// SaveUpsaleLink stores a link. The promo cursor is owned by the
// reconciler: a new link starts at zero and an update keeps the stored
// value whatever the client sent.
func (s *Service) SaveUpsaleLink(ctx context.Context, link *models.UpsaleLink) error {
	_ = ctx
	if !link.Target().Valid() {
		return FieldErrors{"target": "choose a course session or a module"}
	}
	if link.IsPaid != models.UpsaleLinkPaid && link.IsPaid != models.UpsaleLinkFree {
		return FieldErrors{"is_paid": "must be paid or free"}
	}
	if _, err := s.repos.Upsale.GetUpsale(link.UpsaleID); errors.Is(err, gorm.ErrRecordNotFound) {
		return FieldErrors{"upsale_id": "unknown upsale"}
	} else if err != nil {
		return err
	}

	other, err := s.repos.Upsale.FindLink(link.Target(), link.UpsaleID)
	switch {
	case err == nil && other.ID != link.ID:
		return FieldErrors{"upsale_id": "this upsale is already linked to the target"}
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		return err
	}

	sent := 0
	if link.ID != 0 {
		stored, err := s.repos.Upsale.GetLink(link.ID)
		if err != nil {
			return err
		}
		if p, err := stored.Promo(); err == nil && p != nil {
			sent = p.AlreadySent
		}
	}
	if p, err := link.Promo(); err != nil {
		return FieldErrors{"additional_info": "must be a JSON object"}
	} else if p != nil && p.AlreadySent != sent {
		if err := link.SetPromoSent(sent); err != nil {
			return err
		}
	}

	if err := s.repos.Upsale.SaveLink(link); err != nil {
		return err
	}
	log.Infof("[Catalog] Saved upsale link %d (%s, upsale %d)", link.ID, link.Target(), link.UpsaleID)
	return nil
}

// ValidateObjectEnrollment rejects a paid enrollment without a payment
// and a payment recorded on a free enrollment.
func ValidateObjectEnrollment(e models.ObjectEnrollment) error {
	paidEnrollment := e.EnrollmentType == models.EnrollmentTypePaid
	paid := e.PaymentType != models.PaymentTypeNone
	if paidEnrollment != paid {
		return FieldErrors{"payment_type": fmt.Sprintf("enrollment type %q is incompatible with payment type %q", e.EnrollmentType, e.PaymentType)}
	}
	return nil
}

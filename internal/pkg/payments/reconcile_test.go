package payments

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/ManuelReschke/OproPay/app/models"
	"github.com/ManuelReschke/OproPay/internal/pkg/database/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestReconcile_SessionPurchase(t *testing.T) {
	h := newHarness(t)
	user := dbtest.User(t, h.db, 7)
	s := dbtest.Session(t, h.db, "s1", 1000)
	l := dbtest.Link(t, h.db, dbtest.Upsale(t, h.db, "mentor", 500), s.Ref(), intPtr(200))

	p := h.placePaid(PlaceInput{QuoteInput: QuoteInput{Target: s.Ref(), LinkIDs: []uint{l.ID}}, User: user})
	assert.Equal(t, "verified-"+itoa(s.Session.ID)+"-7-"+itoa(l.ID), p.OrderNumber)
	assert.Equal(t, 1200, p.OrderAmount)

	require.NoError(t, h.reconciler.OnPaymentConfirmed(context.Background(), p))

	assert.EqualValues(t, 1, h.count(&models.Participant{}, "session_id = ? AND user_id = ?", s.Session.ID, user.ID))
	var enrollment models.ObjectEnrollment
	require.NoError(t, h.db.Where("user_id = ? AND upsale_link_id = ?", user.ID, l.ID).First(&enrollment).Error)
	assert.Equal(t, models.PaymentTypeExternal, enrollment.PaymentType)
	assert.Equal(t, models.EnrollmentTypePaid, enrollment.EnrollmentType)
	assert.True(t, enrollment.IsActive)
	assert.Equal(t, p.OrderNumber, enrollment.PaymentOrderID)

	var reason models.EnrollmentReason
	require.NoError(t, h.db.First(&reason).Error)
	assert.Equal(t, s.Mode.ID, reason.SessionEnrollmentTypeID)
	assert.Equal(t, models.PaymentTypeExternal, reason.PaymentType)

	stored, err := h.store.GetPayment(p.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, models.GrantStatusGranted, stored.GrantStatus)
	assert.NotNil(t, stored.GrantedAt)

	calls := h.lms.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, lmsPush{CourseRef: s.Session.CourseRef, Username: "user7", Mode: models.ModeVerified}, calls[0])

	got := h.notifier.Received()
	require.Len(t, got, 1)
	assert.Equal(t, ShapeSession, got[0].Kind)
	assert.Equal(t, 1200, got[0].Amount)
	require.Len(t, got[0].Upsales, 1)
	assert.Equal(t, 200, got[0].Upsales[0].Price)
}

func TestReconcile_IsIdempotent(t *testing.T) {
	h := newHarness(t)
	user := dbtest.User(t, h.db, 7)
	s := dbtest.Session(t, h.db, "s1", 1000)
	l := dbtest.Link(t, h.db, dbtest.Upsale(t, h.db, "mentor", 200), s.Ref(), nil)
	p := h.placePaid(PlaceInput{QuoteInput: QuoteInput{Target: s.Ref(), LinkIDs: []uint{l.ID}}, User: user})

	require.NoError(t, h.reconciler.OnPaymentConfirmed(context.Background(), p))
	require.NoError(t, h.reconciler.OnPaymentConfirmed(context.Background(), p))

	assert.EqualValues(t, 1, h.count(&models.ObjectEnrollment{}, ""))
	assert.EqualValues(t, 1, h.count(&models.EnrollmentReason{}, ""))
	assert.EqualValues(t, 1, h.count(&models.Participant{}, ""))
	assert.Len(t, h.lms.Calls(), 1)
	assert.Len(t, h.notifier.Received(), 1)
}

func TestReconcile_ConcurrentConfirmationsGrantOnce(t *testing.T) {
	h := newHarness(t)
	user := dbtest.User(t, h.db, 7)
	s := dbtest.Session(t, h.db, "s1", 1000)
	l := dbtest.Link(t, h.db, dbtest.Upsale(t, h.db, "mentor", 200), s.Ref(), nil)
	require.NoError(t, h.repos.PromoCode.Create(&models.PromoCode{Code: "ONCE", DiscountPercent: intPtr(5)}))

	p := h.placePaid(PlaceInput{QuoteInput: QuoteInput{Target: s.Ref(), LinkIDs: []uint{l.ID}, PromoCode: "ONCE"}, User: user})

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- h.reconciler.OnPaymentConfirmed(context.Background(), p)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	var promo models.PromoCode
	require.NoError(t, h.db.Where("code = ?", "ONCE").First(&promo).Error)
	assert.Equal(t, 1, promo.Used)
	assert.EqualValues(t, 1, h.count(&models.ObjectEnrollment{}, ""))
	assert.EqualValues(t, 1, h.count(&models.EnrollmentReason{}, ""))
	assert.Len(t, h.notifier.Received(), 1)
}

func TestReconcile_PromoCodeCountsEveryOrder(t *testing.T) {
	h := newHarness(t)
	s := dbtest.Session(t, h.db, "s1", 1000)
	require.NoError(t, h.repos.PromoCode.Create(&models.PromoCode{Code: "SHARED", DiscountPrice: intPtr(100)}))

	var payments []*models.Payment
	for id := uint(1); id <= 3; id++ {
		u := dbtest.User(t, h.db, id)
		payments = append(payments, h.placePaid(PlaceInput{QuoteInput: QuoteInput{Target: s.Ref(), PromoCode: "SHARED"}, User: u}))
	}
	assert.Equal(t, 900, payments[0].OrderAmount)

	var wg sync.WaitGroup
	for _, p := range payments {
		wg.Add(1)
		go func(p *models.Payment) {
			defer wg.Done()
			assert.NoError(t, h.reconciler.OnPaymentConfirmed(context.Background(), p))
		}(p)
	}
	wg.Wait()

	var promo models.PromoCode
	require.NoError(t, h.db.Where("code = ?", "SHARED").First(&promo).Error)
	assert.Equal(t, 3, promo.Used)
}

func TestReconcile_AbandonedDiscountIsNotCounted(t *testing.T) {
	h := newHarness(t)
	user := dbtest.User(t, h.db, 7)
	s := dbtest.Session(t, h.db, "s1", 1000)
	require.NoError(t, h.repos.PromoCode.Create(&models.PromoCode{Code: "ONCE", DiscountPercent: intPtr(50), MaxUse: 1}))

	_, _, err := h.checkout.Place(context.Background(), PlaceInput{QuoteInput: QuoteInput{Target: s.Ref(), PromoCode: "ONCE"}, User: user, Create: true})
	require.NoError(t, err)
	p := h.placePaid(PlaceInput{QuoteInput: QuoteInput{Target: s.Ref()}, User: user})
	assert.Equal(t, 1000, p.OrderAmount)

	require.NoError(t, h.reconciler.OnPaymentConfirmed(context.Background(), p))

	var promo models.PromoCode
	require.NoError(t, h.db.Where("code = ?", "ONCE").First(&promo).Error)
	assert.Equal(t, 0, promo.Used)
	assert.EqualValues(t, 0, h.count(&models.PromoCodeRedemption{}, ""))
}

func TestReconcile_DiscountAddedLaterIsCounted(t *testing.T) {
	h := newHarness(t)
	user := dbtest.User(t, h.db, 7)
	s := dbtest.Session(t, h.db, "s1", 1000)
	require.NoError(t, h.repos.PromoCode.Create(&models.PromoCode{Code: "LIMIT", DiscountPercent: intPtr(50), MaxUse: 1}))

	_, _, err := h.checkout.Place(context.Background(), PlaceInput{QuoteInput: QuoteInput{Target: s.Ref()}, User: user, Create: true})
	require.NoError(t, err)
	p := h.placePaid(PlaceInput{QuoteInput: QuoteInput{Target: s.Ref(), PromoCode: "LIMIT"}, User: user})
	assert.Equal(t, 500, p.OrderAmount)

	require.NoError(t, h.reconciler.OnPaymentConfirmed(context.Background(), p))

	var promo models.PromoCode
	require.NoError(t, h.db.Where("code = ?", "LIMIT").First(&promo).Error)
	assert.Equal(t, 1, promo.Used)

	other := dbtest.User(t, h.db, 8)
	_, err = h.checkout.Quote(context.Background(), QuoteInput{Target: s.Ref(), PromoCode: "LIMIT", UserID: other.ID})
	_, ok := AsValidationError(err)
	assert.True(t, ok, "got %v", err)
}

func TestReconcile_MissingPromoCodeIsNotFatal(t *testing.T) {
	h := newHarness(t)
	user := dbtest.User(t, h.db, 7)
	s := dbtest.Session(t, h.db, "s1", 1000)
	require.NoError(t, h.repos.PromoCode.Create(&models.PromoCode{Code: "GONE", DiscountPercent: intPtr(5)}))
	p := h.placePaid(PlaceInput{QuoteInput: QuoteInput{Target: s.Ref(), PromoCode: "GONE"}, User: user})
	require.NoError(t, h.db.Where("code = ?", "GONE").Delete(&models.PromoCode{}).Error)

	require.NoError(t, h.reconciler.OnPaymentConfirmed(context.Background(), p))
	assert.EqualValues(t, 1, h.count(&models.EnrollmentReason{}, ""))
}

func TestReconcile_ModuleFirstCourseWithPromo(t *testing.T) {
	h := newHarness(t)
	user := dbtest.User(t, h.db, 7)
	s1 := dbtest.Session(t, h.db, "s1", 1500)
	s2 := dbtest.Session(t, h.db, "s2", 1500)
	m := dbtest.Module(t, h.db, "m1", 2800, s1, s2)
	require.NoError(t, h.repos.PromoCode.Create(&models.PromoCode{
		Code: "SAVE10", DiscountPercent: intPtr(10), MaxUse: 100,
		Targets: []models.PromoCodeTarget{{TargetType: models.TargetModule, TargetID: m.Module.ID}},
	}))

	unmodified, err := h.checkout.Quote(context.Background(), QuoteInput{Target: m.Ref(), OnlyFirstCourse: true})
	require.NoError(t, err)

	p := h.placePaid(PlaceInput{QuoteInput: QuoteInput{Target: m.Ref(), OnlyFirstCourse: true, PromoCode: "SAVE10"}, User: user})
	assert.Less(t, p.OrderAmount, unmodified.Quote.TotalPrice)

	require.NoError(t, h.reconciler.OnPaymentConfirmed(context.Background(), p))

	var promo models.PromoCode
	require.NoError(t, h.db.Where("code = ?", "SAVE10").First(&promo).Error)
	assert.Equal(t, 1, promo.Used)

	var me models.ModuleEnrollment
	require.NoError(t, h.db.Where("user_id = ? AND module_id = ?", user.ID, m.Module.ID).First(&me).Error)
	assert.True(t, me.IsPaid)
	assert.True(t, me.IsActive)

	var mr models.ModuleEnrollmentReason
	require.NoError(t, h.db.First(&mr).Error)
	assert.False(t, mr.FullPaid)
	assert.Equal(t, models.PaymentTypeExternal, mr.PaymentType)

	var reason models.EnrollmentReason
	require.NoError(t, h.db.First(&reason).Error)
	assert.Equal(t, s1.Mode.ID, reason.SessionEnrollmentTypeID)
	assert.Equal(t, models.PaymentTypeOther, reason.PaymentType)
	assert.EqualValues(t, 1, h.count(&models.Participant{}, "session_id = ? AND user_id = ?", s1.Session.ID, user.ID))
	assert.EqualValues(t, 0, h.count(&models.Participant{}, "session_id = ?", s2.Session.ID))

	// A full purchase of the same module is a separate ledger row.
	full := h.placePaid(PlaceInput{QuoteInput: QuoteInput{Target: m.Ref()}, User: user, OrderNumber: "edmodule-full"})
	require.NoError(t, h.reconciler.OnPaymentConfirmed(context.Background(), full))
	assert.EqualValues(t, 2, h.count(&models.ModuleEnrollmentReason{}, ""))
	assert.EqualValues(t, 1, h.count(&models.ModuleEnrollmentReason{}, "full_paid = ?", true))
	assert.EqualValues(t, 1, h.count(&models.ModuleEnrollment{}, ""))
}

func TestReconcile_ForeignAndUnpaidPaymentsAreIgnored(t *testing.T) {
	h := newHarness(t)

	foreign := &models.Payment{OrderNumber: "other-flow-1", CustomerNumber: "x", OrderAmount: 10, UserID: 1,
		Metadata: datatypes.JSON(`{"invoice":"abc"}`), GrantStatus: models.GrantStatusCreated}
	_, err := h.store.CreatePaymentIfNotExists(foreign)
	require.NoError(t, err)
	foreign = h.pay(foreign.OrderNumber)

	require.NoError(t, h.reconciler.OnPaymentConfirmed(context.Background(), foreign))
	require.NoError(t, h.reconciler.OnPaymentConfirmed(context.Background(), nil))

	stored, err := h.store.GetPayment("other-flow-1")
	require.NoError(t, err)
	assert.Equal(t, models.GrantStatusCreated, stored.GrantStatus)
	assert.EqualValues(t, 0, h.count(&models.Participant{}, ""))
	assert.EqualValues(t, 0, h.count(&models.ObjectEnrollment{}, ""))
	assert.Empty(t, h.notifier.Received())

	user := dbtest.User(t, h.db, 7)
	s := dbtest.Session(t, h.db, "s1", 1000)
	order, _, err := h.checkout.Place(context.Background(), PlaceInput{QuoteInput: QuoteInput{Target: s.Ref()}, User: user, Create: true})
	require.NoError(t, err)
	require.NoError(t, h.reconciler.OnPaymentConfirmed(context.Background(), order.Payment))
	assert.EqualValues(t, 0, h.count(&models.Participant{}, ""))
}

func TestReconcile_GiftGrantsReceiver(t *testing.T) {
	h := newHarness(t)
	sender := dbtest.User(t, h.db, 7)
	receiver := dbtest.User(t, h.db, 8)
	s := dbtest.Session(t, h.db, "s1", 1000)

	p := h.placePaid(PlaceInput{QuoteInput: QuoteInput{Target: s.Ref()}, User: sender, GiftReceiver: &receiver})
	require.NoError(t, h.reconciler.OnPaymentConfirmed(context.Background(), p))

	assert.EqualValues(t, 1, h.count(&models.Participant{}, "user_id = ?", receiver.ID))
	assert.EqualValues(t, 0, h.count(&models.Participant{}, "user_id = ?", sender.ID))
	assert.EqualValues(t, 1, h.count(&models.GiftPaymentInfo{}, "has_paid = ?", true))

	got := h.notifier.Received()
	require.Len(t, got, 1)
	assert.True(t, got[0].IsGift)
	assert.Equal(t, sender.ID, got[0].Buyer.ID)
	assert.Equal(t, receiver.ID, got[0].Beneficiary.ID)
}

func TestReconcile_AmbiguousGiftIsLeftUnpaid(t *testing.T) {
	h := newHarness(t)
	sender := dbtest.User(t, h.db, 7)
	receiver := dbtest.User(t, h.db, 8)
	s := dbtest.Session(t, h.db, "s1", 1000)

	p := h.placePaid(PlaceInput{QuoteInput: QuoteInput{Target: s.Ref()}, User: sender, GiftReceiver: &receiver})
	require.NoError(t, h.store.CreateGift(&models.GiftPaymentInfo{
		SenderID: sender.ID, ReceiverID: receiver.ID, TargetType: models.TargetSession, TargetID: s.Session.ID,
	}))

	require.NoError(t, h.reconciler.OnPaymentConfirmed(context.Background(), p))
	assert.EqualValues(t, 0, h.count(&models.GiftPaymentInfo{}, "has_paid = ?", true))
	assert.EqualValues(t, 1, h.count(&models.Participant{}, "user_id = ?", receiver.ID))
}

func promoLink(t *testing.T, h *harness, target models.TargetRef, file string, sent int) models.UpsaleLink {
	t.Helper()
	l := dbtest.Link(t, h.db, dbtest.Upsale(t, h.db, "promo-"+file, 100), target, nil)
	info, err := json.Marshal(map[string]any{
		"promo": map[string]any{"file": file, "already_sent": sent},
		"note":  "keep",
	})
	require.NoError(t, err)
	require.NoError(t, h.db.Model(&models.UpsaleLink{}).Where("id = ?", l.ID).Update("additional_info", datatypes.JSON(info)).Error)
	return l
}

func ledger(t *testing.T, h *harness, linkID uint) (models.PromoLedger, map[string]any) {
	t.Helper()
	var l models.UpsaleLink
	require.NoError(t, h.db.First(&l, linkID).Error)
	p, err := l.Promo()
	require.NoError(t, err)
	require.NotNil(t, p)
	var all map[string]any
	require.NoError(t, json.Unmarshal(l.AdditionalInfo, &all))
	return *p, all
}

func TestReconcile_IssuesPromoCodesFromFile(t *testing.T) {
	h := newHarness(t)
	user := dbtest.User(t, h.db, 7)
	s := dbtest.Session(t, h.db, "s1", 1000)
	h.promos.files["codes.txt"] = []string{"AAA", "BBB", "CCC"}
	l := promoLink(t, h, s.Ref(), "codes.txt", 1)

	p := h.placePaid(PlaceInput{QuoteInput: QuoteInput{Target: s.Ref(), LinkIDs: []uint{l.ID}}, User: user})
	require.NoError(t, h.reconciler.OnPaymentConfirmed(context.Background(), p))

	var e models.ObjectEnrollment
	require.NoError(t, h.db.Where("user_id = ? AND upsale_link_id = ?", user.ID, l.ID).First(&e).Error)
	assert.Equal(t, "BBB", e.IssuedPromoCode())

	got, all := ledger(t, h, l.ID)
	assert.Equal(t, 2, got.AlreadySent)
	assert.Equal(t, "keep", all["note"])

	require.Len(t, h.notifier.Received(), 1)
	assert.Equal(t, "BBB", h.notifier.Received()[0].Upsales[0].PromoCode)
}

func TestReconcile_PromoCursorIsSerialized(t *testing.T) {
	h := newHarness(t)
	s := dbtest.Session(t, h.db, "s1", 1000)
	h.promos.files["codes.txt"] = []string{"C0", "C1", "C2", "C3", "C4", "C5"}
	l := promoLink(t, h, s.Ref(), "codes.txt", 0)

	const buyers = 5
	var payments []*models.Payment
	for id := uint(1); id <= buyers; id++ {
		u := dbtest.User(t, h.db, id)
		payments = append(payments, h.placePaid(PlaceInput{QuoteInput: QuoteInput{Target: s.Ref(), LinkIDs: []uint{l.ID}}, User: u}))
	}

	var wg sync.WaitGroup
	for _, p := range payments {
		wg.Add(1)
		go func(p *models.Payment) {
			defer wg.Done()
			assert.NoError(t, h.reconciler.OnPaymentConfirmed(context.Background(), p))
		}(p)
	}
	wg.Wait()

	var enrollments []models.ObjectEnrollment
	require.NoError(t, h.db.Where("upsale_link_id = ?", l.ID).Find(&enrollments).Error)
	require.Len(t, enrollments, buyers)
	seen := map[string]bool{}
	for _, e := range enrollments {
		code := e.IssuedPromoCode()
		assert.NotEmpty(t, code)
		assert.False(t, seen[code], "code %s issued twice", code)
		seen[code] = true
	}
	for i := 0; i < buyers; i++ {
		assert.True(t, seen["C"+itoa(uint(i))], "line %d skipped", i)
	}

	got, _ := ledger(t, h, l.ID)
	assert.Equal(t, buyers, got.AlreadySent)
}

func TestReconcile_RegrantKeepsIssuedCode(t *testing.T) {
	h := newHarness(t)
	user := dbtest.User(t, h.db, 7)
	s := dbtest.Session(t, h.db, "s1", 1000)
	h.promos.files["codes.txt"] = []string{"FIRST", "SECOND"}
	l := promoLink(t, h, s.Ref(), "codes.txt", 0)

	p := h.placePaid(PlaceInput{QuoteInput: QuoteInput{Target: s.Ref(), LinkIDs: []uint{l.ID}}, User: user})
	require.NoError(t, h.reconciler.OnPaymentConfirmed(context.Background(), p))

	// A gift of the same upsale to the same user reuses the pair's code.
	sender := dbtest.User(t, h.db, 9)
	g := h.placePaid(PlaceInput{QuoteInput: QuoteInput{Target: s.Ref(), LinkIDs: []uint{l.ID}}, User: sender, GiftReceiver: &user})
	require.NoError(t, h.reconciler.OnPaymentConfirmed(context.Background(), g))

	var e models.ObjectEnrollment
	require.NoError(t, h.db.Where("user_id = ? AND upsale_link_id = ?", user.ID, l.ID).First(&e).Error)
	assert.Equal(t, "FIRST", e.IssuedPromoCode())
	assert.Equal(t, g.OrderNumber, e.PaymentOrderID)
	assert.EqualValues(t, 1, h.count(&models.ObjectEnrollment{}, ""))

	got, _ := ledger(t, h, l.ID)
	assert.Equal(t, 1, got.AlreadySent)
}

func TestReconcile_PromoFileFailureStillGrants(t *testing.T) {
	h := newHarness(t)
	user := dbtest.User(t, h.db, 7)
	s := dbtest.Session(t, h.db, "s1", 1000)
	h.promos.err = errBoom
	l := promoLink(t, h, s.Ref(), "codes.txt", 3)

	p := h.placePaid(PlaceInput{QuoteInput: QuoteInput{Target: s.Ref(), LinkIDs: []uint{l.ID}}, User: user})
	require.NoError(t, h.reconciler.OnPaymentConfirmed(context.Background(), p))

	var e models.ObjectEnrollment
	require.NoError(t, h.db.Where("user_id = ? AND upsale_link_id = ?", user.ID, l.ID).First(&e).Error)
	assert.Empty(t, e.IssuedPromoCode())
	got, _ := ledger(t, h, l.ID)
	assert.Equal(t, 3, got.AlreadySent)
	require.Len(t, h.reporter.Reports(), 1)
	assert.Equal(t, "promo code file read failed", h.reporter.Reports()[0].Message)
}

func TestReconcile_DownstreamFailuresDoNotRollBack(t *testing.T) {
	h := newHarness(t)
	h.lms.err = errBoom
	failing := &fakeNotifier{name: "crm", err: errBoom}
	panicking := &fakeNotifier{name: "email", panic: true}
	h.reconciler.notifiers = []Notifier{failing, panicking, h.notifier}

	user := dbtest.User(t, h.db, 7)
	s := dbtest.Session(t, h.db, "s1", 1000)
	p := h.placePaid(PlaceInput{QuoteInput: QuoteInput{Target: s.Ref()}, User: user})

	require.NoError(t, h.reconciler.OnPaymentConfirmed(context.Background(), p))

	assert.EqualValues(t, 1, h.count(&models.EnrollmentReason{}, ""))
	stored, err := h.store.GetPayment(p.OrderNumber)
	require.NoError(t, err)
	assert.True(t, stored.IsGranted())

	assert.Len(t, h.notifier.Received(), 1)
	assert.Len(t, failing.Received(), 1)

	messages := map[string]int{}
	for _, r := range h.reporter.Reports() {
		messages[r.Message]++
	}
	assert.Equal(t, 1, messages["enrollment push to learning system failed"])
	assert.Equal(t, 2, messages["notification failed"])

	// The push is not retried by a duplicate confirmation.
	require.NoError(t, h.reconciler.OnPaymentConfirmed(context.Background(), p))
	assert.Len(t, h.lms.Calls(), 1)
}

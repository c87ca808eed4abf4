package promocode

import (
	"context"
	"testing"
	"time"

	"github.com/ManuelReschke/OproPay/app/models"
	"github.com/ManuelReschke/OproPay/app/repository"
	"github.com/ManuelReschke/OproPay/internal/pkg/database/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func intPtr(v int) *int { return &v }

func TestDiscount(t *testing.T) {
	tests := []struct {
		name  string
		promo models.PromoCode
		price int
		want  int
	}{
		{name: "percent", promo: models.PromoCode{DiscountPercent: intPtr(10)}, price: 1000, want: 900},
		{name: "percent floors", promo: models.PromoCode{DiscountPercent: intPtr(33)}, price: 100, want: 67},
		{name: "absolute wins over percent", promo: models.PromoCode{DiscountPercent: intPtr(50), DiscountPrice: intPtr(100)}, price: 1000, want: 900},
		{name: "absolute never negative", promo: models.PromoCode{DiscountPrice: intPtr(5000)}, price: 1000, want: 0},
		{name: "percent capped", promo: models.PromoCode{DiscountPercent: intPtr(150)}, price: 1000, want: 0},
		{name: "no discount", promo: models.PromoCode{}, price: 1000, want: 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Discount(tt.promo, tt.price))
		})
	}
}

func newEngine(t *testing.T) (*Engine, *gorm.DB, func(p *models.PromoCode)) {
	t.Helper()
	db := dbtest.Open(t)
	repos := repository.NewRepositories(db)
	create := func(p *models.PromoCode) { require.NoError(t, repos.PromoCode.Create(p)) }
	return NewEngine(repos.PromoCode, repos.Catalog), db, create
}

func TestValidate(t *testing.T) {
	engine, _, create := newEngine(t)
	past := time.Now().Add(-time.Hour)

	create(&models.PromoCode{Code: "ANY", DiscountPercent: intPtr(10)})
	create(&models.PromoCode{Code: "OLD", DiscountPercent: intPtr(10), ActiveTill: &past})
	create(&models.PromoCode{Code: "USED", DiscountPercent: intPtr(10), MaxUse: 1, Used: 1})
	create(&models.PromoCode{Code: "MOD", DiscountPercent: intPtr(10), Targets: []models.PromoCodeTarget{{TargetType: models.TargetModule, TargetID: 7}}})

	tests := []struct {
		code   string
		ref    models.TargetRef
		status int
	}{
		{code: "ANY", ref: models.SessionRef(1), status: StatusOK},
		{code: "MISSING", ref: models.SessionRef(1), status: StatusFailed},
		{code: "OLD", ref: models.SessionRef(1), status: StatusFailed},
		{code: "USED", ref: models.SessionRef(1), status: StatusFailed},
		{code: "MOD", ref: models.ModuleRef(7), status: StatusOK},
		{code: "MOD", ref: models.SessionRef(7), status: StatusFailed},
		{code: "", ref: models.SessionRef(1), status: StatusFailed},
	}
	for _, tt := range tests {
		res := engine.Validate(context.Background(), tt.code, tt.ref.ID, tt.ref.Kind)
		assert.Equal(t, tt.status, res.Status, "code %q for %s", tt.code, tt.ref)
		if tt.status == StatusFailed {
			assert.NotEmpty(t, res.Message)
		}
	}
}

func TestCalculate_ModuleFirstCourse(t *testing.T) {
	engine, db, create := newEngine(t)
	s1 := dbtest.Session(t, db, "s1", 1500)
	s2 := dbtest.Session(t, db, "s2", 1800)
	m := dbtest.Module(t, db, "m1", 3000, s1, s2)
	create(&models.PromoCode{
		Code:            "SAVE10",
		DiscountPercent: intPtr(10),
		MaxUse:          10,
		Targets:         []models.PromoCodeTarget{{TargetType: models.TargetModule, TargetID: m.Module.ID}},
	})

	full := engine.Calculate(context.Background(), CalculateInput{Code: "SAVE10", ProductType: models.TargetModule, ProductID: m.Module.ID})
	require.Equal(t, StatusOK, full.Status, full.Message)
	assert.Equal(t, 2700, *full.NewPrice)

	first := engine.Calculate(context.Background(), CalculateInput{
		Code: "SAVE10", ProductType: models.TargetModule, ProductID: m.Module.ID, OnlyFirstCourse: true,
	})
	require.Equal(t, StatusOK, first.Status, first.Message)
	assert.Equal(t, 1350, *first.NewPrice)

	picked := engine.Calculate(context.Background(), CalculateInput{
		Code: "SAVE10", ProductType: models.TargetModule, ProductID: m.Module.ID, OnlyFirstCourse: true, SessionID: s2.Session.ID,
	})
	require.Equal(t, StatusOK, picked.Status, picked.Message)
	assert.Equal(t, 1620, *picked.NewPrice)

	var stored models.PromoCode
	require.NoError(t, db.Where("code = ?", "SAVE10").First(&stored).Error)
	assert.Equal(t, 0, stored.Used)
}

func TestCalculate_Session(t *testing.T) {
	engine, db, create := newEngine(t)
	s := dbtest.Session(t, db, "s1", 1000)
	create(&models.PromoCode{Code: "MINUS300", DiscountPrice: intPtr(300), DiscountPercent: intPtr(90)})

	res := engine.Calculate(context.Background(), CalculateInput{Code: "MINUS300", ProductType: models.TargetSession, ProductID: s.Session.ID})
	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, 700, *res.NewPrice)

	missing := engine.Calculate(context.Background(), CalculateInput{Code: "MINUS300", ProductType: models.TargetSession, ProductID: 999})
	assert.Equal(t, StatusFailed, missing.Status)
	assert.Nil(t, missing.NewPrice)
}

func TestDiscountedPrice(t *testing.T) {
	engine, _, create := newEngine(t)
	create(&models.PromoCode{Code: "HALF", DiscountPercent: intPtr(50)})

	price, err := engine.DiscountedPrice(context.Background(), "HALF", models.SessionRef(1), 800)
	require.NoError(t, err)
	assert.Equal(t, 400, price)

	price, err = engine.DiscountedPrice(context.Background(), "NOPE", models.SessionRef(1), 800)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 800, price)
}

package gateway

import (
	"context"
	"encoding/xml"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ManuelReschke/OproPay/app/models"
	"github.com/ManuelReschke/OproPay/internal/pkg/database/dbtest"
	"github.com/ManuelReschke/OproPay/internal/pkg/payments"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const testPassword = "secret"

type recordingHandler struct {
	mu    sync.Mutex
	calls []models.Payment
	err   error
}

func (h *recordingHandler) OnPaymentConfirmed(ctx context.Context, p *models.Payment) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, *p)
	return h.err
}

func (h *recordingHandler) Calls() []models.Payment {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]models.Payment(nil), h.calls...)
}

func newProcessor(t *testing.T) (*Processor, *recordingHandler, *gorm.DB, payments.Store) {
	t.Helper()
	db := dbtest.Open(t)
	store := payments.NewStore(db)
	_, err := store.CreatePaymentIfNotExists(&models.Payment{
		OrderNumber:    "verified-1-7-",
		CustomerNumber: "user7",
		OrderAmount:    1200,
		UserID:         7,
		Metadata:       datatypes.JSON(`{}`),
	})
	require.NoError(t, err)

	p := NewProcessor(Config{ShopID: "13", SCID: "77", ShopPassword: testPassword}, NewEvents(NewRepository(db)), store)
	p.now = func() time.Time { return time.Date(2016, 11, 1, 12, 0, 0, 0, time.UTC) }
	h := &recordingHandler{}
	require.NoError(t, p.RegisterConfirmationHandler(h))
	return p, h, db, store
}

func signed(action, amount, invoice string) Notification {
	n := Notification{
		Action:                  action,
		OrderSumAmount:          amount,
		OrderSumCurrencyPaycash: "643",
		OrderSumBankPaycash:     "1001",
		ShopID:                  "13",
		InvoiceID:               invoice,
		CustomerNumber:          "user7",
		OrderNumber:             "verified-1-7-",
		ShopSumAmount:           "1158.00",
		RequestDatetime:         "2016-11-01T15:00:00+03:00",
	}
	n.MD5 = n.Sign(testPassword)
	return n
}

func TestProcessor_PaymentAviso(t *testing.T) {
	p, h, db, store := newProcessor(t)
	ctx := context.Background()

	resp := p.Handle(ctx, signed(ActionPaymentAviso, "1200.00", "1001"))
	assert.Equal(t, CodeOK, resp.Code)
	assert.Equal(t, "paymentAvisoResponse", resp.XMLName.Local)

	calls := h.Calls()
	require.Len(t, calls, 1)
	assert.True(t, calls[0].IsPaid)

	stored, err := store.GetPayment("verified-1-7-")
	require.NoError(t, err)
	assert.True(t, stored.IsPaid)
	require.NotNil(t, stored.ShopAmount)
	assert.InDelta(t, 1158.0, *stored.ShopAmount, 0.001)
	require.NotNil(t, stored.PerformedAt)
	assert.True(t, stored.PerformedAt.Equal(time.Date(2016, 11, 1, 12, 0, 0, 0, time.UTC)))

	// Redelivery of a handled callback is acknowledged without a second grant.
	resp = p.Handle(ctx, signed(ActionPaymentAviso, "1200.00", "1001"))
	assert.Equal(t, CodeOK, resp.Code)
	assert.Len(t, h.Calls(), 1)
	assert.EqualValues(t, 1, dbtest.Count(t, db, &models.GatewayEvent{}, ""))
}

func TestProcessor_FailedGrantIsRetried(t *testing.T) {
	p, h, db, _ := newProcessor(t)
	ctx := context.Background()
	h.err = errors.New("db down")

	resp := p.Handle(ctx, signed(ActionPaymentAviso, "1200.00", "1001"))
	assert.Equal(t, CodeBadRequest, resp.Code)

	var event models.GatewayEvent
	require.NoError(t, db.First(&event).Error)
	assert.Equal(t, "db down", event.ProcessingError)
	assert.NotNil(t, event.ProcessedAt)

	h.err = nil
	resp = p.Handle(ctx, signed(ActionPaymentAviso, "1200.00", "1001"))
	assert.Equal(t, CodeOK, resp.Code)
	assert.Len(t, h.Calls(), 2)

	require.NoError(t, db.First(&event).Error)
	assert.Empty(t, event.ProcessingError)
}

func TestProcessor_Rejections(t *testing.T) {
	tests := []struct {
		name string
		n    func() Notification
		code int
	}{
		{"bad signature", func() Notification {
			n := signed(ActionPaymentAviso, "1200.00", "1")
			n.MD5 = "00"
			return n
		}, CodeAuthFailed},
		{"foreign shop", func() Notification {
			n := signed(ActionPaymentAviso, "1200.00", "1")
			n.ShopID = "14"
			n.MD5 = n.Sign(testPassword)
			return n
		}, CodeAuthFailed},
		{"amount mismatch", func() Notification { return signed(ActionPaymentAviso, "1100.00", "1") }, CodeRefused},
		{"unknown order", func() Notification {
			n := signed(ActionPaymentAviso, "1200.00", "1")
			n.OrderNumber = "nope"
			n.MD5 = n.Sign(testPassword)
			return n
		}, CodeRefused},
		{"malformed", func() Notification { return Notification{Action: ActionPaymentAviso} }, CodeBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, h, _, store := newProcessor(t)
			resp := p.Handle(context.Background(), tt.n())
			assert.Equal(t, tt.code, resp.Code)
			assert.Empty(t, h.Calls())

			stored, err := store.GetPayment("verified-1-7-")
			require.NoError(t, err)
			assert.False(t, stored.IsPaid)
		})
	}
}

func TestProcessor_InvalidSignatureDoesNotShadowDelivery(t *testing.T) {
	p, h, db, _ := newProcessor(t)
	ctx := context.Background()

	forged := signed(ActionPaymentAviso, "1200.00", "1001")
	forged.MD5 = "BAD"
	assert.Equal(t, CodeAuthFailed, p.Handle(ctx, forged).Code)
	assert.Equal(t, CodeOK, p.Handle(ctx, signed(ActionPaymentAviso, "1200.00", "1001")).Code)
	assert.Len(t, h.Calls(), 1)
	assert.EqualValues(t, 1, dbtest.Count(t, db, &models.GatewayEvent{}, "signature_valid = ?", false))
}

func TestProcessor_CheckOrder(t *testing.T) {
	p, h, _, store := newProcessor(t)

	resp := p.Handle(context.Background(), signed(ActionCheckOrder, "1200.00", "1001"))
	assert.Equal(t, CodeOK, resp.Code)
	assert.Equal(t, "checkOrderResponse", resp.XMLName.Local)
	assert.Empty(t, h.Calls())

	stored, err := store.GetPayment("verified-1-7-")
	require.NoError(t, err)
	assert.False(t, stored.IsPaid)
}

func TestProcessor_HandlerRegistration(t *testing.T) {
	p, _, _, _ := newProcessor(t)
	assert.ErrorIs(t, p.RegisterConfirmationHandler(&recordingHandler{}), ErrHandlerAlreadyPresent)

	bare := NewProcessor(p.cfg, p.events, p.payments)
	resp := bare.Handle(context.Background(), signed(ActionPaymentAviso, "1200.00", "1001"))
	assert.Equal(t, CodeBadRequest, resp.Code)
}

func TestResponseXML(t *testing.T) {
	raw, err := xml.Marshal(Response{
		XMLName:           xml.Name{Local: "paymentAvisoResponse"},
		PerformedDatetime: "2016-11-01T12:00:00Z",
		Code:              0,
		InvoiceID:         "1001",
		ShopID:            "13",
	})
	require.NoError(t, err)
	assert.Equal(t, `<paymentAvisoResponse performedDatetime="2016-11-01T12:00:00Z" code="0" invoiceId="1001" shopId="13"></paymentAvisoResponse>`, string(raw))
}

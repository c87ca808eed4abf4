package gateway

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ManuelReschke/OproPay/app/models"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Response codes understood by the gateway. Anything but CodeOK makes the
// gateway deliver the callback again.
const (
	CodeOK         = 0
	CodeAuthFailed = 1
	CodeRefused    = 100
	CodeBadRequest = 200
)

var (
	ErrUnknownOrder          = errors.New("unknown order number")
	ErrAmountMismatch        = errors.New("paid amount does not match the order")
	ErrInvalidSignature      = errors.New("invalid gateway signature")
	ErrHandlerNotRegistered  = errors.New("no confirmation handler registered")
	ErrHandlerAlreadyPresent = errors.New("confirmation handler already registered")
)

// ConfirmationHandler grants what a confirmed payment bought.
type ConfirmationHandler interface {
	OnPaymentConfirmed(ctx context.Context, payment *models.Payment) error
}

// PaymentStore is the part of the order store the processor needs.
type PaymentStore interface {
	GetPayment(orderNumber string) (*models.Payment, error)
	MarkPaid(id uint, shopAmount *float64, performedAt time.Time) error
}

// Response is the XML body returned to the gateway.
type Response struct {
	XMLName           xml.Name
	PerformedDatetime string `xml:"performedDatetime,attr"`
	Code              int    `xml:"code,attr"`
	InvoiceID         string `xml:"invoiceId,attr"`
	ShopID            string `xml:"shopId,attr"`
	Message           string `xml:"message,attr,omitempty"`
}

// Processor verifies gateway callbacks, records them and hands confirmed
// payments to the registered handler.
type Processor struct {
	cfg      Config
	events   *Events
	payments PaymentStore

	mu      sync.RWMutex
	handler ConfirmationHandler

	now func() time.Time
}

func NewProcessor(cfg Config, events *Events, payments PaymentStore) *Processor {
	return &Processor{cfg: cfg, events: events, payments: payments, now: time.Now}
}

// RegisterConfirmationHandler installs the single handler for confirmed
// payments.
func (p *Processor) RegisterConfirmationHandler(h ConfirmationHandler) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handler != nil {
		return ErrHandlerAlreadyPresent
	}
	p.handler = h
	return nil
}

func (p *Processor) confirmationHandler() ConfirmationHandler {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.handler
}

// Handle processes one callback and returns the gateway response.
func (p *Processor) Handle(ctx context.Context, n Notification) Response {
	resp := Response{
		XMLName:           xml.Name{Local: n.Action + "Response"},
		PerformedDatetime: p.now().Format(time.RFC3339),
		InvoiceID:         n.InvoiceID,
		ShopID:            n.ShopID,
	}
	if n.Action == "" {
		resp.XMLName.Local = ActionPaymentAviso + "Response"
	}

	if err := n.Validate(); err != nil {
		log.Warnf("[Gateway] Rejecting callback: %v", err)
		resp.Code, resp.Message = CodeBadRequest, "bad request"
		return resp
	}

	valid := n.ShopID == p.cfg.ShopID && n.VerifySignature(p.cfg.ShopPassword)
	eventID := n.EventID()
	if !valid {
		// Unverified deliveries never shadow the real one.
		eventID = "unverified:" + uuid.NewString()
	}

	created, event, err := p.events.Record(ctx, EventInput{
		Provider:        models.GatewayProviderKassa,
		ProviderEventID: eventID,
		EventType:       n.Action,
		OrderNumber:     n.OrderNumber,
		PayloadJSON:     n.payloadJSON(),
		SignatureValid:  valid,
	})
	if err != nil {
		log.Errorf("[Gateway] Could not record %s for order %s: %v", n.Action, n.OrderNumber, err)
		resp.Code, resp.Message = CodeBadRequest, "temporary failure"
		return resp
	}

	if !valid {
		log.Warnf("[Gateway] Invalid signature on %s for order %s", n.Action, n.OrderNumber)
		_ = p.events.MarkProcessed(ctx, event.ID, ErrInvalidSignature)
		resp.Code, resp.Message = CodeAuthFailed, "authorization failed"
		return resp
	}

	if !created && Handled(event) {
		log.Infof("[Gateway] Duplicate %s for order %s (invoice %s)", n.Action, n.OrderNumber, n.InvoiceID)
		resp.Code = CodeOK
		return resp
	}

	procErr := p.process(ctx, n)
	if err := p.events.MarkProcessed(ctx, event.ID, procErr); err != nil {
		log.Errorf("[Gateway] Could not mark event %d processed: %v", event.ID, err)
	}

	switch {
	case procErr == nil:
		resp.Code = CodeOK
	case errors.Is(procErr, ErrAmountMismatch), errors.Is(procErr, ErrUnknownOrder):
		log.Warnf("[Gateway] Refusing %s for order %s: %v", n.Action, n.OrderNumber, procErr)
		resp.Code, resp.Message = CodeRefused, procErr.Error()
	default:
		log.Errorf("[Gateway] %s for order %s failed: %v", n.Action, n.OrderNumber, procErr)
		resp.Code, resp.Message = CodeBadRequest, "temporary failure"
	}
	return resp
}

func (p *Processor) process(ctx context.Context, n Notification) error {
	payment, err := p.payments.GetPayment(n.OrderNumber)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ErrUnknownOrder, n.OrderNumber)
	}
	if err != nil {
		return err
	}

	amount, _ := n.Amount()
	if amount != int64(payment.OrderAmount)*100 {
		return fmt.Errorf("%w: order %s costs %d, gateway reports %s",
			ErrAmountMismatch, payment.OrderNumber, payment.OrderAmount, n.OrderSumAmount)
	}
	if n.Action == ActionCheckOrder {
		return nil
	}

	handler := p.confirmationHandler()
	if handler == nil {
		return ErrHandlerNotRegistered
	}

	if !payment.IsPaid {
		performedAt := n.PerformedAt(p.now())
		settled := n.SettledAmount()
		if err := p.payments.MarkPaid(payment.ID, settled, performedAt); err != nil {
			return fmt.Errorf("mark paid: %w", err)
		}
		payment.IsPaid = true
		payment.ShopAmount = settled
		payment.PerformedAt = &performedAt
		log.Infof("[Gateway] Order %s paid (invoice %s)", payment.OrderNumber, n.InvoiceID)
	}
	return handler.OnPaymentConfirmed(ctx, payment)
}

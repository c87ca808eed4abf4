package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/ManuelReschke/OproPay/app/models"
)

// EventInput is the normalized input for callback persistence.
type EventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	OrderNumber     string
	PayloadJSON     string
	SignatureValid  bool
}

// Events records gateway and outer-channel deliveries idempotently.
type Events struct {
	repo Repository
}

func NewEvents(repo Repository) *Events {
	return &Events{repo: repo}
}

// Record persists a delivery. The boolean is false when the same delivery
// was recorded before; the stored row is returned either way.
func (e *Events) Record(ctx context.Context, in EventInput) (bool, *models.GatewayEvent, error) {
	_ = ctx
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.GatewayEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		OrderNumber:     strings.TrimSpace(in.OrderNumber),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return e.repo.CreateEventIfNotExists(event)
}

// MarkProcessed stores the outcome of a delivery.
func (e *Events) MarkProcessed(ctx context.Context, eventID uint, processingErr error) error {
	_ = ctx
	if eventID == 0 {
		return errors.New("event id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return e.repo.MarkEventProcessed(eventID, errMsg)
}

// Handled reports whether a stored delivery was already processed
// successfully.
func Handled(event *models.GatewayEvent) bool {
	return event != nil && event.ProcessedAt != nil && event.ProcessingError == ""
}

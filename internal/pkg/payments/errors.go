package payments

import (
	"errors"
	"fmt"
)

var (
	// ErrPaidOrderAmountChanged means a settled order was asked to change its
	// amount. Financial state of paid orders is never overwritten.
	ErrPaidOrderAmountChanged = errors.New("amount of a paid order cannot change")
	ErrUnknownTarget          = errors.New("unknown purchase target")
	ErrPromoCodeMissing       = errors.New("promo code no longer exists")
	ErrUserNotResolved        = errors.New("user directory returned no user")
)

// ValidationError is a checkout-time rejection whose message can be shown to
// the purchaser. Nothing is persisted when it is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func newValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// AsValidationError unwraps a ValidationError from err.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

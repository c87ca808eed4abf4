package catalog

import (
	"errors"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldErrors maps form fields to user-facing messages.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e[k])
	}
	return strings.Join(parts, "; ")
}

// AsFieldErrors unwraps field errors from err.
func AsFieldErrors(err error) (FieldErrors, bool) {
	var fe FieldErrors
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

func (e FieldErrors) orNil() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// collect translates validator errors into field messages keyed by the json
// name of the field.
func (e FieldErrors) collect(err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		if err != nil {
			e["_"] = err.Error()
		}
		return
	}
	for _, fe := range verrs {
		e[fe.Field()] = message(fe)
	}
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "min":
		return "must be at least " + fe.Param() + " characters long"
	case "max":
		return "must be at most " + fe.Param() + " characters long"
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "slug":
		return "may only contain letters, digits, hyphens and underscores"
	case "email":
		return "enter a valid email address"
	default:
		return "is invalid"
	}
}

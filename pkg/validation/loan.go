package validation

import (
	"math"
	"strings"

	"github.com/iwvelando/mortgage-calculator/pkg/constants"
)

// Field names reported in FieldError.
const (
	FieldAmount = "amount"
	FieldRate   = "rate"
	FieldYears  = "years"
	FieldType   = "type"
)

// Messages shown next to the offending form field.
const (
	MessageAmount = "Enter a positive loan amount."
	MessageRate   = "Enter a rate between 0 and 100%."
	MessageYears  = "Enter a term between 1 and 60 years."
	MessageType   = "Choose repayment or interest-only."

	MessageAmountTooLarge = "The loan amount is too large to calculate."
)

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// FieldErrors collects every invalid field of a single input.
type FieldErrors []FieldError

func (fe FieldErrors) Error() string {
	parts := make([]string, 0, len(fe))
	for _, e := range fe {
		parts = append(parts, e.Field+": "+e.Message)
	}
	return strings.Join(parts, "; ")
}

// AsError returns fe as an error, or an untyped nil when fe is empty.
func (fe FieldErrors) AsError() error {
	if len(fe) == 0 {
		return nil
	}
	return fe
}

// Message returns the message for field, or "" when that field is valid.
func (fe FieldErrors) Message(field string) string {
	for _, e := range fe {
		if e.Field == field {
			return e.Message
		}
	}
	return ""
}

// ValidateLoanFields checks the numeric loan inputs and returns nil when all
// of them are acceptable. Every failing field is reported, not just the first.
func ValidateLoanFields(amount, ratePercent float64, years int) FieldErrors {
	var errs FieldErrors

	if !isFinite(amount) || amount <= 0 {
		errs = append(errs, FieldError{Field: FieldAmount, Message: MessageAmount})
	}
	if !isFinite(ratePercent) || ratePercent < constants.MinRatePercent || ratePercent > constants.MaxRatePercent {
		errs = append(errs, FieldError{Field: FieldRate, Message: MessageRate})
	}
	if years <= 0 || years > constants.MaxTermYears {
		errs = append(errs, FieldError{Field: FieldYears, Message: MessageYears})
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

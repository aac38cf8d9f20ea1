package loans

import (
	"errors"
	"fmt"
	"strings"

	"github.com/iwvelando/mortgage-calculator/pkg/constants"
	"github.com/iwvelando/mortgage-calculator/pkg/mathutil"
	"github.com/iwvelando/mortgage-calculator/pkg/validation"
)

var (
	// ErrInvalidTerm is returned when the term resolves to zero or fewer months.
	ErrInvalidTerm = errors.New("invalid loan term")

	// ErrInvalidInput is returned for non-finite or out-of-range inputs.
	ErrInvalidInput = errors.New("invalid loan input")
)

// RepaymentType selects how the monthly payment is applied.
type RepaymentType string

const (
	// Repayment pays down interest and principal to zero by the end of the term.
	Repayment RepaymentType = constants.TypeRepayment

	// InterestOnly covers accrued interest; principal is due at maturity.
	InterestOnly RepaymentType = constants.TypeInterestOnly
)

// ParseRepaymentType converts user input into a RepaymentType. An empty
// value means Repayment.
func ParseRepaymentType(s string) (RepaymentType, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	switch normalized {
	case "", constants.TypeRepayment:
		return Repayment, nil
	case constants.TypeInterestOnly, "interest only", "interestonly", "interest_only":
		return InterestOnly, nil
	}
	return "", fmt.Errorf("%w: unknown repayment type %q", ErrInvalidInput, s)
}

// Valid reports whether t is one of the known repayment types.
func (t RepaymentType) Valid() bool {
	return t == Repayment || t == InterestOnly
}

func (t RepaymentType) String() string {
	return string(t)
}

// LoanInput holds the parameters of a single calculation.
type LoanInput struct {
	Amount     float64       `json:"amount"`
	AnnualRate float64       `json:"rate"` // percent
	Years      int           `json:"years"`
	Type       RepaymentType `json:"type"`
}

// Months returns the total number of monthly payments.
func (in LoanInput) Months() int {
	return in.Years * constants.MonthsPerYear
}

// MonthlyRate returns the periodic (monthly) interest rate as a fraction.
func (in LoanInput) MonthlyRate() float64 {
	return mathutil.MonthlyRate(in.AnnualRate)
}

// Validate checks the input before any arithmetic. A non-positive term is
// reported as ErrInvalidTerm; every other problem wraps ErrInvalidInput and
// carries validation.FieldErrors for display.
func (in LoanInput) Validate() error {
	if in.Months() <= 0 {
		return fmt.Errorf("%w: %d years resolves to %d months", ErrInvalidTerm, in.Years, in.Months())
	}

	fieldErrs := validation.ValidateLoanFields(in.Amount, in.AnnualRate, in.Years)
	if !in.Type.Valid() {
		fieldErrs = append(fieldErrs, validation.FieldError{Field: validation.FieldType, Message: validation.MessageType})
	}
	if len(fieldErrs) > 0 {
		return &InputError{Fields: fieldErrs}
	}
	return nil
}

// InputError is the ErrInvalidInput failure carrying per-field detail.
type InputError struct {
	Fields validation.FieldErrors
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidInput.Error(), e.Fields.Error())
}

// Unwrap lets errors.Is match ErrInvalidInput.
func (e *InputError) Unwrap() error {
	return ErrInvalidInput
}

// FieldErrors extracts the per-field detail from err, if any.
func FieldErrors(err error) validation.FieldErrors {
	var inputErr *InputError
	if errors.As(err, &inputErr) {
		return inputErr.Fields
	}
	if errors.Is(err, ErrInvalidTerm) {
		return validation.FieldErrors{{Field: validation.FieldYears, Message: validation.MessageYears}}
	}
	return nil
}

// MonthRow is one month of an amortization schedule. All amounts are
// rounded to cents.
type MonthRow struct {
	Month     int     `json:"month"`
	Principal float64 `json:"principal"`
	Interest  float64 `json:"interest"`
	Balance   float64 `json:"balance"`
}

// PaymentSchedule is a month-ordered amortization schedule.
type PaymentSchedule []MonthRow

// TotalPrincipal sums the principal portions of every row.
func (s PaymentSchedule) TotalPrincipal() float64 {
	total := 0.0
	for _, row := range s {
		total += row.Principal
	}
	return mathutil.Round(total)
}

// TotalInterest sums the interest portions of every row.
func (s PaymentSchedule) TotalInterest() float64 {
	total := 0.0
	for _, row := range s {
		total += row.Interest
	}
	return mathutil.Round(total)
}

// FinalBalance returns the balance reported on the last row, or 0 for an
// empty schedule.
func (s PaymentSchedule) FinalBalance() float64 {
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1].Balance
}

// Totals are the whole-term amounts derived from the monthly payment.
type Totals struct {
	TotalRepayment float64 `json:"totalRepayment"`
	TotalInterest  float64 `json:"totalInterest"`
	TotalPayable   float64 `json:"totalPayable"`
}

// Result bundles every output of one calculation.
type Result struct {
	Input          LoanInput       `json:"input"`
	MonthlyPayment float64         `json:"monthlyPayment"`
	Totals         Totals          `json:"totals"`
	Schedule       PaymentSchedule `json:"schedule"`
}

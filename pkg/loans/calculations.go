// Package loans provides the mortgage amortization arithmetic.
package loans

import (
	"fmt"
	"math"

	"github.com/iwvelando/mortgage-calculator/pkg/constants"
	"github.com/iwvelando/mortgage-calculator/pkg/mathutil"
	"github.com/iwvelando/mortgage-calculator/pkg/validation"
	"go.uber.org/zap"
)

// CalculateRepaymentPayment calculates the fixed monthly payment of a fully
// amortizing loan using the annuity formula. A zero rate falls back to a
// straight-line split of the principal.
func CalculateRepaymentPayment(amount, annualInterestRate float64, termMonths int) (float64, error) {
	if termMonths <= 0 {
		return 0, fmt.Errorf("%w: %d months", ErrInvalidTerm, termMonths)
	}

	periodicInterestRate := mathutil.MonthlyRate(annualInterestRate)
	if periodicInterestRate == 0 {
		return amount / float64(termMonths), nil
	}

	discountFactor := 1 - math.Pow(1+periodicInterestRate, -float64(termMonths))
	return amount * periodicInterestRate / discountFactor, nil
}

// CalculateInterestOnlyPayment calculates the monthly payment of an
// interest-only loan. The principal is never reduced by this payment.
func CalculateInterestOnlyPayment(amount, annualInterestRate float64) float64 {
	return CalculateInterestPayment(amount, annualInterestRate)
}

// CalculateInterestPayment calculates the interest accrued on a balance over one month.
func CalculateInterestPayment(remainingPrincipal, annualInterestRate float64) float64 {
	return remainingPrincipal * mathutil.MonthlyRate(annualInterestRate)
}

// MonthlyPayment returns the unrounded monthly payment for in.
func MonthlyPayment(in LoanInput) (float64, error) {
	if err := in.Validate(); err != nil {
		return 0, err
	}

	var payment float64
	switch in.Type {
	case InterestOnly:
		payment = CalculateInterestOnlyPayment(in.Amount, in.AnnualRate)
	default:
		var err error
		payment, err = CalculateRepaymentPayment(in.Amount, in.AnnualRate, in.Months())
		if err != nil {
			return 0, err
		}
	}

	if !mathutil.IsFinite(payment) || payment < 0 {
		return 0, fmt.Errorf("%w: payment %v is not a currency amount", ErrInvalidInput, payment)
	}
	return payment, nil
}

// FirstYearSchedule returns the breakdown of the first twelve months, or of
// the whole term when it is shorter.
func FirstYearSchedule(in LoanInput) (PaymentSchedule, error) {
	return Schedule(in, constants.FirstYearMonths)
}

// Schedule returns the breakdown of the first months payments, capped at the
// term. months <= 0 requests the full term.
//
// Every interest, principal and balance value is rounded to cents before it
// is carried into the next month, so long schedules drift by up to a cent
// per month from the exact amortization.
func Schedule(in LoanInput, months int) (PaymentSchedule, error) {
	payment, err := MonthlyPayment(in)
	if err != nil {
		return nil, err
	}

	horizon := in.Months()
	if months > 0 && months < horizon {
		horizon = months
	}

	rows := make(PaymentSchedule, 0, horizon)
	balance := in.Amount

	if in.Type == InterestOnly {
		for month := 1; month <= horizon; month++ {
			rows = append(rows, MonthRow{
				Month:     month,
				Principal: 0,
				Interest:  mathutil.Round(CalculateInterestPayment(balance, in.AnnualRate)),
				Balance:   mathutil.Round(balance),
			})
		}
		return rows, nil
	}

	for month := 1; month <= horizon; month++ {
		interest := mathutil.Round(CalculateInterestPayment(balance, in.AnnualRate))
		principal := mathutil.Round(mathutil.Max(payment-interest, 0))
		// The running balance stays unclamped; only the reported value is floored.
		balance = mathutil.Round(balance - principal)
		rows = append(rows, MonthRow{
			Month:     month,
			Principal: principal,
			Interest:  interest,
			Balance:   mathutil.Max(balance, 0),
		})
	}
	return rows, nil
}

// ComputeTotals derives the whole-term totals from the monthly payment.
// For interest-only loans the principal is still owed as a lump sum at the
// end of the term, so it is added to the total payable.
func ComputeTotals(in LoanInput, monthlyPayment float64) Totals {
	totalRepayment := monthlyPayment * float64(in.Months())

	if in.Type == InterestOnly {
		return Totals{
			TotalRepayment: mathutil.Round(totalRepayment),
			TotalInterest:  mathutil.Round(totalRepayment),
			TotalPayable:   mathutil.Round(totalRepayment + in.Amount),
		}
	}

	return Totals{
		TotalRepayment: mathutil.Round(totalRepayment),
		TotalInterest:  mathutil.Round(totalRepayment - in.Amount),
		TotalPayable:   mathutil.Round(totalRepayment),
	}
}

// Calculator runs complete calculations and logs them.
type Calculator struct {
	logger *zap.Logger
}

// NewCalculator creates a new calculator instance
func NewCalculator(logger *zap.Logger) *Calculator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Calculator{logger: logger}
}

// Calculate computes the monthly payment, totals and first-year schedule.
func (c *Calculator) Calculate(in LoanInput) (Result, error) {
	return c.CalculateMonths(in, constants.FirstYearMonths)
}

// CalculateMonths is Calculate with a schedule of the given horizon; see Schedule.
func (c *Calculator) CalculateMonths(in LoanInput, months int) (Result, error) {
	payment, err := MonthlyPayment(in)
	if err != nil {
		c.logger.Debug("rejected loan input",
			zap.String("op", "loans.Calculate"),
			zap.Float64("amount", in.Amount),
			zap.Float64("rate", in.AnnualRate),
			zap.Int("years", in.Years),
			zap.String("type", in.Type.String()),
			zap.Error(err),
		)
		return Result{}, err
	}

	schedule, err := Schedule(in, months)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Input:          in,
		MonthlyPayment: mathutil.Round(payment),
		Totals:         ComputeTotals(in, payment),
		Schedule:       schedule,
	}
	if err := checkFinite(result); err != nil {
		c.logger.Debug("loan result overflowed",
			zap.String("op", "loans.Calculate"),
			zap.Float64("amount", in.Amount),
			zap.Error(err),
		)
		return Result{}, err
	}

	c.logger.Debug(fmt.Sprintf("computed %s loan of %.2f over %d years: %.2f per month",
		in.Type, in.Amount, in.Years, result.MonthlyPayment),
		zap.String("op", "loans.Calculate"),
		zap.Int("scheduleMonths", len(schedule)),
		zap.Float64("finalBalance", schedule.FinalBalance()),
	)

	return result, nil
}

// checkFinite fails when any amount of r overflowed to an infinity.
func checkFinite(r Result) error {
	values := []float64{r.MonthlyPayment, r.Totals.TotalRepayment, r.Totals.TotalInterest, r.Totals.TotalPayable}
	for _, row := range r.Schedule {
		values = append(values, row.Principal, row.Interest, row.Balance)
	}
	for _, v := range values {
		if !mathutil.IsFinite(v) {
			return &InputError{Fields: validation.FieldErrors{{
				Field:   validation.FieldAmount,
				Message: validation.MessageAmountTooLarge,
			}}}
		}
	}
	return nil
}

package loans

import (
	"errors"
	"math"
	"testing"

	"github.com/iwvelando/mortgage-calculator/pkg/validation"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestCalculateRepaymentPayment(t *testing.T) {
	tests := []struct {
		name               string
		amount             float64
		annualInterestRate float64
		termMonths         int
		expected           float64
	}{
		{
			name:               "25-year mortgage",
			amount:             200000,
			annualInterestRate: 5.0,
			termMonths:         300,
			expected:           1169.18,
		},
		{
			name:               "30-year mortgage",
			amount:             175000,
			annualInterestRate: 4.5,
			termMonths:         360,
			expected:           886.70,
		},
		{
			name:               "2-year loan at 12%",
			amount:             10000,
			annualInterestRate: 12.0,
			termMonths:         24,
			expected:           470.73,
		},
		{
			name:               "Zero interest loan",
			amount:             120000,
			annualInterestRate: 0.0,
			termMonths:         120,
			expected:           1000.00,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := CalculateRepaymentPayment(tt.amount, tt.annualInterestRate, tt.termMonths)
			if err != nil {
				t.Fatalf("CalculateRepaymentPayment() error = %v", err)
			}
			if math.Abs(result-tt.expected) > 0.005 {
				t.Errorf("CalculateRepaymentPayment() = %.4f, expected %.2f", result, tt.expected)
			}
		})
	}
}

func TestCalculateRepaymentPaymentZeroRateIsExact(t *testing.T) {
	tests := []struct {
		amount float64
		years  int
	}{
		{12000, 1},
		{100000, 7},
		{250000, 30},
	}

	for _, tt := range tests {
		in := LoanInput{Amount: tt.amount, AnnualRate: 0, Years: tt.years, Type: Repayment}
		payment, err := MonthlyPayment(in)
		if err != nil {
			t.Fatalf("MonthlyPayment(%+v) error = %v", in, err)
		}
		if payment != tt.amount/float64(tt.years*12) {
			t.Errorf("MonthlyPayment(%+v) = %v, expected exactly %v", in, payment, tt.amount/float64(tt.years*12))
		}
	}
}

func TestCalculateRepaymentPaymentInvalidTerm(t *testing.T) {
	for _, months := range []int{0, -12} {
		_, err := CalculateRepaymentPayment(1000, 5, months)
		if !errors.Is(err, ErrInvalidTerm) {
			t.Errorf("CalculateRepaymentPayment(termMonths=%d) error = %v, expected ErrInvalidTerm", months, err)
		}
	}
}

func TestCalculateInterestPayment(t *testing.T) {
	tests := []struct {
		name               string
		remainingPrincipal float64
		annualInterestRate float64
		expected           float64
	}{
		{"Standard mortgage interest", 200000, 6.0, 1000.0},
		{"Car loan interest", 15000, 4.5, 56.25},
		{"Zero interest", 10000, 0.0, 0.0},
		{"High interest", 5000, 24.0, 100.0},
		{"Very small principal", 100, 6.0, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CalculateInterestPayment(tt.remainingPrincipal, tt.annualInterestRate)
			if math.Abs(result-tt.expected) > 0.01 {
				t.Errorf("CalculateInterestPayment() = %.2f, expected %.2f", result, tt.expected)
			}
		})
	}
}

func TestMonthlyPayment(t *testing.T) {
	tests := []struct {
		name     string
		input    LoanInput
		expected float64
	}{
		{
			name:     "Repayment",
			input:    LoanInput{Amount: 200000, AnnualRate: 5, Years: 25, Type: Repayment},
			expected: 1169.18,
		},
		{
			name:     "Interest only",
			input:    LoanInput{Amount: 100000, AnnualRate: 4, Years: 10, Type: InterestOnly},
			expected: 333.33,
		},
		{
			name:     "Interest only at zero rate",
			input:    LoanInput{Amount: 100000, AnnualRate: 0, Years: 10, Type: InterestOnly},
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MonthlyPayment(tt.input)
			if err != nil {
				t.Fatalf("MonthlyPayment() error = %v", err)
			}
			if math.Abs(result-tt.expected) > 0.005 {
				t.Errorf("MonthlyPayment() = %.4f, expected %.2f", result, tt.expected)
			}
		})
	}
}

func TestMonthlyPaymentErrors(t *testing.T) {
	tests := []struct {
		name        string
		input       LoanInput
		expectedErr error
		field       string
	}{
		{
			name:        "Zero years",
			input:       LoanInput{Amount: 1000, AnnualRate: 5, Years: 0, Type: Repayment},
			expectedErr: ErrInvalidTerm,
			field:       validation.FieldYears,
		},
		{
			name:        "Negative years interest only",
			input:       LoanInput{Amount: 1000, AnnualRate: 5, Years: -1, Type: InterestOnly},
			expectedErr: ErrInvalidTerm,
			field:       validation.FieldYears,
		},
		{
			name:        "Term over cap",
			input:       LoanInput{Amount: 1000, AnnualRate: 5, Years: 61, Type: Repayment},
			expectedErr: ErrInvalidInput,
			field:       validation.FieldYears,
		},
		{
			name:        "NaN amount",
			input:       LoanInput{Amount: math.NaN(), AnnualRate: 5, Years: 10, Type: Repayment},
			expectedErr: ErrInvalidInput,
			field:       validation.FieldAmount,
		},
		{
			name:        "Infinite rate",
			input:       LoanInput{Amount: 1000, AnnualRate: math.Inf(1), Years: 10, Type: Repayment},
			expectedErr: ErrInvalidInput,
			field:       validation.FieldRate,
		},
		{
			name:        "Unknown type",
			input:       LoanInput{Amount: 1000, AnnualRate: 5, Years: 10, Type: "balloon"},
			expectedErr: ErrInvalidInput,
			field:       validation.FieldType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payment, err := MonthlyPayment(tt.input)
			if !errors.Is(err, tt.expectedErr) {
				t.Fatalf("MonthlyPayment() error = %v, expected %v", err, tt.expectedErr)
			}
			if payment != 0 {
				t.Errorf("MonthlyPayment() = %v on failure, expected 0", payment)
			}
			if msg := FieldErrors(err).Message(tt.field); msg == "" {
				t.Errorf("expected a message for field %s in %v", tt.field, err)
			}
		})
	}
}

func TestParseRepaymentType(t *testing.T) {
	tests := []struct {
		input       string
		expected    RepaymentType
		expectError bool
	}{
		{"", Repayment, false},
		{"repayment", Repayment, false},
		{"  Repayment ", Repayment, false},
		{"interest-only", InterestOnly, false},
		{"Interest Only", InterestOnly, false},
		{"INTERESTONLY", InterestOnly, false},
		{"balloon", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := ParseRepaymentType(tt.input)
			if tt.expectError {
				if !errors.Is(err, ErrInvalidInput) {
					t.Errorf("ParseRepaymentType(%q) error = %v, expected ErrInvalidInput", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRepaymentType(%q) error = %v", tt.input, err)
			}
			if result != tt.expected {
				t.Errorf("ParseRepaymentType(%q) = %s, expected %s", tt.input, result, tt.expected)
			}
		})
	}
}

func TestFirstYearScheduleRepaymentExample(t *testing.T) {
	in := LoanInput{Amount: 200000, AnnualRate: 5, Years: 25, Type: Repayment}

	schedule, err := FirstYearSchedule(in)
	if err != nil {
		t.Fatalf("FirstYearSchedule() error = %v", err)
	}
	if len(schedule) != 12 {
		t.Fatalf("expected 12 rows, got %d", len(schedule))
	}

	first := schedule[0]
	expected := MonthRow{Month: 1, Principal: 335.85, Interest: 833.33, Balance: 199664.15}
	if first != expected {
		t.Errorf("first row = %+v, expected %+v", first, expected)
	}

	last := schedule[11]
	if last.Month != 12 || last.Principal != 351.56 || last.Interest != 817.62 || last.Balance != 195876.18 {
		t.Errorf("last row = %+v, expected month 12 principal 351.56 interest 817.62 balance 195876.18", last)
	}

	for i, row := range schedule {
		if row.Month != i+1 {
			t.Errorf("row %d has month %d", i, row.Month)
		}
		// principal + interest equals the fixed payment up to rounding
		if math.Abs(row.Principal+row.Interest-1169.18) > 0.011 {
			t.Errorf("month %d: principal+interest = %.2f, expected about 1169.18", row.Month, row.Principal+row.Interest)
		}
	}
}

func TestFirstYearSchedulePrincipalMatchesBalanceReduction(t *testing.T) {
	inputs := []LoanInput{
		{Amount: 200000, AnnualRate: 5, Years: 25, Type: Repayment},
		{Amount: 150000, AnnualRate: 3.75, Years: 20, Type: Repayment},
		{Amount: 10000, AnnualRate: 12, Years: 2, Type: Repayment},
		{Amount: 12000, AnnualRate: 6, Years: 1, Type: Repayment},
	}

	for _, in := range inputs {
		schedule, err := FirstYearSchedule(in)
		if err != nil {
			t.Fatalf("FirstYearSchedule(%+v) error = %v", in, err)
		}

		reduction := in.Amount - schedule.FinalBalance()
		tolerance := 0.01 * float64(len(schedule))
		if math.Abs(schedule.TotalPrincipal()-reduction) > tolerance {
			t.Errorf("%+v: total principal %.2f vs balance reduction %.2f exceeds %.2f",
				in, schedule.TotalPrincipal(), reduction, tolerance)
		}
	}
}

func TestFirstYearScheduleInterestOnly(t *testing.T) {
	in := LoanInput{Amount: 100000, AnnualRate: 4, Years: 10, Type: InterestOnly}

	schedule, err := FirstYearSchedule(in)
	if err != nil {
		t.Fatalf("FirstYearSchedule() error = %v", err)
	}
	if len(schedule) != 12 {
		t.Fatalf("expected 12 rows, got %d", len(schedule))
	}

	for _, row := range schedule {
		if row.Principal != 0 {
			t.Errorf("month %d principal = %v, expected 0", row.Month, row.Principal)
		}
		if row.Balance != 100000 {
			t.Errorf("month %d balance = %v, expected 100000", row.Month, row.Balance)
		}
		if row.Interest != 333.33 {
			t.Errorf("month %d interest = %v, expected 333.33", row.Month, row.Interest)
		}
	}
}

func TestFirstYearScheduleOneYearTerm(t *testing.T) {
	in := LoanInput{Amount: 12000, AnnualRate: 6, Years: 1, Type: Repayment}

	schedule, err := FirstYearSchedule(in)
	if err != nil {
		t.Fatalf("FirstYearSchedule() error = %v", err)
	}
	if len(schedule) != 12 {
		t.Fatalf("expected 12 rows, got %d", len(schedule))
	}
	if schedule.FinalBalance() != 0 {
		t.Errorf("final balance = %v, expected 0", schedule.FinalBalance())
	}
	// The running balance dips to -0.02 on the last month and is reported as 0.
	if schedule[11].Principal != 1027.66 || schedule[11].Interest != 5.14 {
		t.Errorf("last row = %+v, expected principal 1027.66 interest 5.14", schedule[11])
	}
	for _, row := range schedule {
		if row.Balance < 0 {
			t.Errorf("month %d balance %v is negative", row.Month, row.Balance)
		}
	}
}

func TestFirstYearScheduleOneYearTermRoundingDrift(t *testing.T) {
	// Rounding each month to cents leaves a residue on some one-year loans:
	// 10000 at 5% ends the year with 0.05 still outstanding.
	in := LoanInput{Amount: 10000, AnnualRate: 5, Years: 1, Type: Repayment}

	schedule, err := FirstYearSchedule(in)
	if err != nil {
		t.Fatalf("FirstYearSchedule() error = %v", err)
	}

	final := schedule.FinalBalance()
	if math.Abs(final-0.05) > 1e-9 {
		t.Errorf("final balance = %v, expected the known 0.05 drift", final)
	}
	if final > 0.01*float64(len(schedule)) {
		t.Errorf("final balance drift %v exceeds one cent per month", final)
	}
}

func TestScheduleFullTermDrift(t *testing.T) {
	tests := []struct {
		name          string
		input         LoanInput
		expectedFinal float64
	}{
		{"25 years at 5%", LoanInput{Amount: 200000, AnnualRate: 5, Years: 25, Type: Repayment}, 0.02},
		{"30 years at 3.5%", LoanInput{Amount: 250000, AnnualRate: 3.5, Years: 30, Type: Repayment}, 1.18},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schedule, err := Schedule(tt.input, 0)
			if err != nil {
				t.Fatalf("Schedule() error = %v", err)
			}
			if len(schedule) != tt.input.Months() {
				t.Fatalf("expected %d rows, got %d", tt.input.Months(), len(schedule))
			}
			final := schedule.FinalBalance()
			if math.Abs(final-tt.expectedFinal) > 1e-9 {
				t.Errorf("final balance = %v, expected drift of %v", final, tt.expectedFinal)
			}
			if final > 0.01*float64(len(schedule)) {
				t.Errorf("drift %v exceeds one cent per month", final)
			}
		})
	}
}

func TestScheduleHorizon(t *testing.T) {
	in := LoanInput{Amount: 50000, AnnualRate: 4, Years: 2, Type: Repayment}

	tests := []struct {
		months   int
		expected int
	}{
		{1, 1},
		{12, 12},
		{24, 24},
		{48, 24},
		{0, 24},
		{-5, 24},
	}

	for _, tt := range tests {
		schedule, err := Schedule(in, tt.months)
		if err != nil {
			t.Fatalf("Schedule(months=%d) error = %v", tt.months, err)
		}
		if len(schedule) != tt.expected {
			t.Errorf("Schedule(months=%d) returned %d rows, expected %d", tt.months, len(schedule), tt.expected)
		}
	}
}

func TestScheduleInvalidTerm(t *testing.T) {
	schedule, err := FirstYearSchedule(LoanInput{Amount: 1000, AnnualRate: 5, Years: 0, Type: Repayment})
	if !errors.Is(err, ErrInvalidTerm) {
		t.Fatalf("FirstYearSchedule() error = %v, expected ErrInvalidTerm", err)
	}
	if schedule != nil {
		t.Errorf("expected no schedule, got %d rows", len(schedule))
	}
}

func TestComputeTotals(t *testing.T) {
	repayment := LoanInput{Amount: 200000, AnnualRate: 5, Years: 25, Type: Repayment}
	payment, err := MonthlyPayment(repayment)
	if err != nil {
		t.Fatalf("MonthlyPayment() error = %v", err)
	}
	totals := ComputeTotals(repayment, payment)
	if math.Abs(totals.TotalRepayment-payment*300) > 0.01 {
		t.Errorf("TotalRepayment = %.2f, expected %.2f", totals.TotalRepayment, payment*300)
	}
	if math.Abs(totals.TotalInterest-(totals.TotalRepayment-repayment.Amount)) > 0.01 {
		t.Errorf("TotalInterest = %.2f, expected TotalRepayment - amount", totals.TotalInterest)
	}
	if totals.TotalPayable != totals.TotalRepayment {
		t.Errorf("TotalPayable = %.2f, expected TotalRepayment %.2f", totals.TotalPayable, totals.TotalRepayment)
	}

	interestOnly := LoanInput{Amount: 100000, AnnualRate: 4, Years: 10, Type: InterestOnly}
	payment, err = MonthlyPayment(interestOnly)
	if err != nil {
		t.Fatalf("MonthlyPayment() error = %v", err)
	}
	totals = ComputeTotals(interestOnly, payment)
	if totals.TotalInterest != totals.TotalRepayment {
		t.Errorf("TotalInterest = %.2f, expected TotalRepayment %.2f", totals.TotalInterest, totals.TotalRepayment)
	}
	if math.Abs(totals.TotalPayable-(333.33*120+100000)) > 1.0 {
		t.Errorf("TotalPayable = %.2f, expected about %.2f", totals.TotalPayable, 333.33*120+100000)
	}
	if math.Abs(totals.TotalPayable-(totals.TotalRepayment+interestOnly.Amount)) > 0.01 {
		t.Errorf("TotalPayable = %.2f, expected TotalRepayment + amount", totals.TotalPayable)
	}
}

func TestComputeTotalsZeroRateHasNoInterest(t *testing.T) {
	in := LoanInput{Amount: 120000, AnnualRate: 0, Years: 10, Type: Repayment}
	payment, err := MonthlyPayment(in)
	if err != nil {
		t.Fatalf("MonthlyPayment() error = %v", err)
	}
	totals := ComputeTotals(in, payment)
	if totals.TotalInterest != 0 {
		t.Errorf("TotalInterest = %v, expected 0", totals.TotalInterest)
	}
	if totals.TotalRepayment != 120000 {
		t.Errorf("TotalRepayment = %v, expected 120000", totals.TotalRepayment)
	}
}

func TestCalculatorCalculate(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	calc := NewCalculator(zap.New(core))

	result, err := calc.Calculate(LoanInput{Amount: 200000, AnnualRate: 5, Years: 25, Type: Repayment})
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}
	if result.MonthlyPayment != 1169.18 {
		t.Errorf("MonthlyPayment = %v, expected 1169.18", result.MonthlyPayment)
	}
	if len(result.Schedule) != 12 {
		t.Errorf("expected 12 schedule rows, got %d", len(result.Schedule))
	}
	if result.Totals.TotalRepayment == 0 {
		t.Error("expected totals to be populated")
	}

	entries := logs.FilterField(zap.String("op", "loans.Calculate")).All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
}

func TestCalculatorCalculateRejectsInput(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	calc := NewCalculator(zap.New(core))

	_, err := calc.Calculate(LoanInput{Amount: -1, AnnualRate: 5, Years: 25, Type: Repayment})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("Calculate() error = %v, expected ErrInvalidInput", err)
	}
	if logs.FilterMessage("rejected loan input").Len() != 1 {
		t.Error("expected the rejection to be logged")
	}
}

func TestCalculatorRejectsOverflowingTotals(t *testing.T) {
	in := LoanInput{Amount: 1e308, AnnualRate: 100, Years: 60, Type: InterestOnly}
	if _, err := MonthlyPayment(in); err != nil {
		t.Fatalf("MonthlyPayment() error = %v, expected a finite payment", err)
	}

	result, err := NewCalculator(nil).Calculate(in)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("Calculate() = %+v, %v, expected ErrInvalidInput", result.Totals, err)
	}
	if msg := FieldErrors(err).Message(validation.FieldAmount); msg != validation.MessageAmountTooLarge {
		t.Errorf("amount message = %q, expected %q", msg, validation.MessageAmountTooLarge)
	}

	if _, err := NewCalculator(nil).Calculate(LoanInput{Amount: 1e308, AnnualRate: 100, Years: 60, Type: Repayment}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("repayment Calculate() error = %v, expected ErrInvalidInput", err)
	}
}

func TestCalculatorNilLogger(t *testing.T) {
	calc := NewCalculator(nil)
	if _, err := calc.Calculate(LoanInput{Amount: 1000, AnnualRate: 1, Years: 1, Type: InterestOnly}); err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}
}

func TestCalculatorCalculateMonthsFullTerm(t *testing.T) {
	calc := NewCalculator(zap.NewNop())

	result, err := calc.CalculateMonths(LoanInput{Amount: 10000, AnnualRate: 12, Years: 2, Type: Repayment}, 0)
	if err != nil {
		t.Fatalf("CalculateMonths() error = %v", err)
	}
	if len(result.Schedule) != 24 {
		t.Errorf("expected 24 rows, got %d", len(result.Schedule))
	}
	if result.Schedule[0] != (MonthRow{Month: 1, Principal: 370.73, Interest: 100, Balance: 9629.27}) {
		t.Errorf("first row = %+v", result.Schedule[0])
	}
}

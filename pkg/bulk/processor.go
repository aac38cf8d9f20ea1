package bulk

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/iwvelando/mortgage-calculator/pkg/constants"
	"github.com/iwvelando/mortgage-calculator/pkg/loans"
	"github.com/iwvelando/mortgage-calculator/pkg/validation"
	"go.uber.org/zap"
)

var errEmptyCell = errors.New("empty cell")

// RowResult is the outcome for one record. Input values that could not be
// parsed are nil; Result is nil when the record failed.
type RowResult struct {
	Index  int           `json:"index"`
	Amount *float64      `json:"amount"`
	Rate   *float64      `json:"rate"`
	Years  *int          `json:"years"`
	Type   string        `json:"type"`
	Result *loans.Result `json:"result,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// Failed reports whether the record could not be computed.
func (r RowResult) Failed() bool {
	return r.Result == nil
}

// Report is the outcome of a whole batch.
type Report struct {
	ID        string      `json:"id"`
	Source    string      `json:"source"`
	Rows      []RowResult `json:"rows"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
}

// Input converts the raw cells into a LoanInput. Every unparsable field is
// reported; the returned error wraps loans.ErrInvalidInput.
func (rec Record) Input() (loans.LoanInput, error) {
	in, _, err := rec.parse()
	return in, err
}

type parsed struct {
	amount *float64
	rate   *float64
	years  *int
	kind   string
}

func (rec Record) parse() (loans.LoanInput, parsed, error) {
	var p parsed
	var fieldErrs validation.FieldErrors

	amount, err := ParseNumber(rec.Amount)
	if err != nil {
		fieldErrs = append(fieldErrs, validation.FieldError{Field: validation.FieldAmount, Message: unparsable(rec.Amount, err)})
	} else {
		p.amount = &amount
	}

	rate, err := ParseNumber(rec.Rate)
	if err != nil {
		fieldErrs = append(fieldErrs, validation.FieldError{Field: validation.FieldRate, Message: unparsable(rec.Rate, err)})
	} else {
		p.rate = &rate
	}

	years, err := ParseYears(rec.Years)
	if err != nil {
		fieldErrs = append(fieldErrs, validation.FieldError{Field: validation.FieldYears, Message: unparsable(rec.Years, err)})
	} else {
		p.years = &years
	}

	p.kind = strings.ToLower(strings.TrimSpace(rec.Type))
	if p.kind == "" {
		p.kind = constants.TypeRepayment
	}
	kind, err := loans.ParseRepaymentType(p.kind)
	if err != nil {
		fieldErrs = append(fieldErrs, validation.FieldError{Field: validation.FieldType, Message: validation.MessageType})
	}

	if len(fieldErrs) > 0 {
		return loans.LoanInput{}, p, &loans.InputError{Fields: fieldErrs}
	}

	in := loans.LoanInput{Amount: amount, AnnualRate: rate, Years: years, Type: kind}
	return in, p, nil
}

func unparsable(raw string, err error) string {
	if errors.Is(err, errEmptyCell) {
		return "missing value"
	}
	return fmt.Sprintf("cannot parse %q as a number", raw)
}

// ParseNumber accepts spreadsheet and form style numbers: surrounding spaces,
// thousands separators, a leading currency symbol and a trailing percent
// sign are ignored.
func ParseNumber(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimLeft(s, "£$€")
	s = strings.TrimSuffix(s, "%")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errEmptyCell
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", raw)
	}
	return v, nil
}

// ParseYears parses a term in years, truncating fractions toward zero.
func ParseYears(raw string) (int, error) {
	v, err := ParseNumber(raw)
	if err != nil {
		return 0, err
	}
	if math.Abs(v) > math.MaxInt32 {
		return 0, fmt.Errorf("term %q out of range", raw)
	}
	return int(math.Trunc(v)), nil
}

// Processor computes every record of a batch independently.
type Processor struct {
	calc   *loans.Calculator
	logger *zap.Logger
}

// NewProcessor creates a new processor instance
func NewProcessor(logger *zap.Logger, calc *loans.Calculator) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if calc == nil {
		calc = loans.NewCalculator(logger)
	}
	return &Processor{calc: calc, logger: logger}
}

// Process computes each record. A failing record is marked and reported
// without affecting the others.
func (p *Processor) Process(source string, records []Record) Report {
	report := Report{
		ID:     uuid.NewString(),
		Source: source,
		Rows:   make([]RowResult, 0, len(records)),
	}

	for _, rec := range records {
		row := p.processRecord(rec)
		if row.Failed() {
			report.Failed++
			p.logger.Debug(fmt.Sprintf("record %d of %s failed: %s", rec.Index, source, row.Error),
				zap.String("op", "bulk.Process"),
				zap.String("batch", report.ID),
			)
		} else {
			report.Succeeded++
		}
		report.Rows = append(report.Rows, row)
	}

	p.logger.Info("bulk batch processed",
		zap.String("op", "bulk.Process"),
		zap.String("batch", report.ID),
		zap.String("source", source),
		zap.Int("records", len(records)),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
	)
	return report
}

func (p *Processor) processRecord(rec Record) RowResult {
	in, parsed, err := rec.parse()
	row := RowResult{
		Index:  rec.Index,
		Amount: parsed.amount,
		Rate:   parsed.rate,
		Years:  parsed.years,
		Type:   parsed.kind,
	}
	if err != nil {
		row.Error = err.Error()
		return row
	}

	result, err := p.calc.Calculate(in)
	if err != nil {
		row.Error = err.Error()
		return row
	}
	row.Result = &result
	return row
}

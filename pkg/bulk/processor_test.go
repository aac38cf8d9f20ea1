package bulk

import (
	"errors"
	"math"
	"testing"

	"github.com/iwvelando/mortgage-calculator/pkg/loans"
	"github.com/iwvelando/mortgage-calculator/pkg/validation"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		raw         string
		expected    float64
		expectError bool
	}{
		{"200000", 200000, false},
		{" 1,250,000.50 ", 1250000.5, false},
		{"£95,000", 95000, false},
		{"$1200", 1200, false},
		{"5%", 5, false},
		{"3.75 %", 3.75, false},
		{"-4", -4, false},
		{"", 0, true},
		{"   ", 0, true},
		{"abc", 0, true},
		{"NaN", 0, true},
		{"Inf", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseNumber(tt.raw)
			if tt.expectError {
				if err == nil {
					t.Errorf("ParseNumber(%q) = %v, expected error", tt.raw, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseNumber(%q) error = %v", tt.raw, err)
			}
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("ParseNumber(%q) = %v, expected %v", tt.raw, got, tt.expected)
			}
		})
	}
}

func TestParseYearsTruncates(t *testing.T) {
	tests := map[string]int{
		"25":   25,
		"25.9": 25,
		"0.5":  0,
		"-1.5": -1,
	}

	for raw, expected := range tests {
		got, err := ParseYears(raw)
		if err != nil {
			t.Fatalf("ParseYears(%q) error = %v", raw, err)
		}
		if got != expected {
			t.Errorf("ParseYears(%q) = %d, expected %d", raw, got, expected)
		}
	}
}

func TestRecordInput(t *testing.T) {
	in, err := Record{Amount: "200,000", Rate: "5%", Years: "25", Type: "Interest-Only"}.Input()
	if err != nil {
		t.Fatalf("Input() error = %v", err)
	}
	expected := loans.LoanInput{Amount: 200000, AnnualRate: 5, Years: 25, Type: loans.InterestOnly}
	if in != expected {
		t.Errorf("Input() = %+v, expected %+v", in, expected)
	}

	in, err = Record{Amount: "1000", Rate: "1", Years: "1"}.Input()
	if err != nil {
		t.Fatalf("Input() error = %v", err)
	}
	if in.Type != loans.Repayment {
		t.Errorf("empty type parsed as %s, expected repayment", in.Type)
	}
}

func TestRecordInputReportsEveryField(t *testing.T) {
	_, err := Record{Amount: "x", Rate: "", Years: "y", Type: "balloon"}.Input()
	if !errors.Is(err, loans.ErrInvalidInput) {
		t.Fatalf("Input() error = %v, expected ErrInvalidInput", err)
	}

	fields := loans.FieldErrors(err)
	for _, field := range []string{validation.FieldAmount, validation.FieldRate, validation.FieldYears, validation.FieldType} {
		if fields.Message(field) == "" {
			t.Errorf("expected an error for %s in %v", field, fields)
		}
	}
	if fields.Message(validation.FieldRate) != "missing value" {
		t.Errorf("rate message = %q, expected missing value", fields.Message(validation.FieldRate))
	}
}

func TestProcessIsolatesFailures(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	processor := NewProcessor(zap.New(core), nil)

	records := []Record{
		{Index: 1, Amount: "200000", Rate: "5", Years: "25", Type: "repayment"},
		{Index: 2, Amount: "not-a-number", Rate: "5", Years: "25"},
		{Index: 3, Amount: "100000", Rate: "4", Years: "0", Type: "repayment"},
		{Index: 4, Amount: "100000", Rate: "150", Years: "10", Type: "repayment"},
		{Index: 5, Amount: "100000", Rate: "4", Years: "10", Type: "interest-only"},
	}

	report := processor.Process("upload.xlsx", records)

	if report.ID == "" {
		t.Error("expected a batch ID")
	}
	if report.Source != "upload.xlsx" {
		t.Errorf("Source = %q", report.Source)
	}
	if len(report.Rows) != len(records) {
		t.Fatalf("expected %d rows, got %d", len(records), len(report.Rows))
	}
	if report.Succeeded != 2 || report.Failed != 3 {
		t.Errorf("Succeeded = %d, Failed = %d, expected 2 and 3", report.Succeeded, report.Failed)
	}

	first := report.Rows[0]
	if first.Failed() || first.Result.MonthlyPayment != 1169.18 {
		t.Errorf("row 1 = %+v, expected payment 1169.18", first)
	}

	second := report.Rows[1]
	if !second.Failed() || second.Error == "" {
		t.Errorf("row 2 should fail with a reason, got %+v", second)
	}
	if second.Amount != nil {
		t.Errorf("row 2 amount should be unparsed, got %v", *second.Amount)
	}
	if second.Rate == nil || *second.Rate != 5 {
		t.Errorf("row 2 rate should still be reported")
	}
	if second.Type != "repayment" {
		t.Errorf("row 2 type = %q, expected the repayment default", second.Type)
	}

	if !report.Rows[2].Failed() || !report.Rows[3].Failed() {
		t.Error("rows 3 and 4 should fail validation")
	}

	last := report.Rows[4]
	if last.Failed() || last.Result.MonthlyPayment != 333.33 {
		t.Errorf("row 5 = %+v, expected payment 333.33", last)
	}

	if logs.FilterMessage("bulk batch processed").Len() != 1 {
		t.Error("expected a batch summary log entry")
	}
	if logs.FilterField(zap.String("op", "bulk.Process")).Len() != 4 {
		t.Errorf("expected 3 failure entries plus the summary, got %d", logs.FilterField(zap.String("op", "bulk.Process")).Len())
	}
}

func TestProcessEmptyBatch(t *testing.T) {
	report := NewProcessor(nil, nil).Process("empty.xlsx", nil)
	if len(report.Rows) != 0 || report.Succeeded != 0 || report.Failed != 0 {
		t.Errorf("unexpected report for empty batch: %+v", report)
	}
}

func TestProcessBatchIDsAreUnique(t *testing.T) {
	processor := NewProcessor(nil, nil)
	a := processor.Process("a", nil)
	b := processor.Process("b", nil)
	if a.ID == b.ID {
		t.Errorf("batch IDs should differ, both were %s", a.ID)
	}
}

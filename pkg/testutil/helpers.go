// Package testutil provides common utility functions for testing.
package testutil

import (
	"bytes"
	"math"
	"testing"

	"github.com/iwvelando/mortgage-calculator/pkg/loans"
	"github.com/xuri/excelize/v2"
)

// FindMonth finds a month by number in the schedule.
// Returns a pointer to the row if found, nil otherwise.
func FindMonth(schedule loans.PaymentSchedule, month int) *loans.MonthRow {
	for i := range schedule {
		if schedule[i].Month == month {
			return &schedule[i]
		}
	}
	return nil
}

// AmountsEqual reports whether two currency amounts agree to the cent.
func AmountsEqual(a, b float64) bool {
	return math.Abs(a-b) < 0.005
}

// BuildWorkbook returns an in-memory .xlsx whose first sheet holds rows,
// one slice of cell values per row.
func BuildWorkbook(t testing.TB, rows [][]interface{}) *bytes.Buffer {
	t.Helper()

	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cellName, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("CoordinatesToCellName() error = %v", err)
		}
		values := row
		if err := f.SetSheetRow(sheet, cellName, &values); err != nil {
			t.Fatalf("SetSheetRow() error = %v", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer() error = %v", err)
	}
	return buf
}

// Package bulk computes payments for every loan listed in a spreadsheet.
package bulk

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/iwvelando/mortgage-calculator/pkg/constants"
	"github.com/xuri/excelize/v2"
)

// ErrNoSheets is returned for a workbook without any worksheet.
var ErrNoSheets = errors.New("workbook has no sheets")

// Column headers recognised in the first row, compared case-insensitively.
const (
	HeaderAmount = "Amount"
	HeaderRate   = "Rate"
	HeaderYears  = "Years"
	HeaderType   = "Type"
)

// Record is one data row of the uploaded sheet, as raw cell text.
type Record struct {
	Index  int // 1-based position among non-blank data rows
	Amount string
	Rate   string
	Years  string
	Type   string
}

type columns struct {
	amount, rate, years, kind int
}

// ReadWorkbook reads the first sheet of an .xlsx workbook. The first row
// holds the headers; blank rows are skipped. Missing columns leave the
// corresponding Record field empty so the row fails on its own later.
func ReadWorkbook(r io.Reader) ([]Record, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoSheets
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	cols := mapHeaders(rows[0])
	var records []Record
	for _, row := range rows[1:] {
		if blank(row) {
			continue
		}
		records = append(records, Record{
			Index:  len(records) + 1,
			Amount: cell(row, cols.amount),
			Rate:   cell(row, cols.rate),
			Years:  cell(row, cols.years),
			Type:   cell(row, cols.kind),
		})
	}
	return records, nil
}

func mapHeaders(header []string) columns {
	cols := columns{amount: -1, rate: -1, years: -1, kind: -1}
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case strings.ToLower(HeaderAmount):
			cols.amount = i
		case strings.ToLower(HeaderRate):
			cols.rate = i
		case strings.ToLower(HeaderYears):
			cols.years = i
		case strings.ToLower(HeaderType):
			cols.kind = i
		}
	}
	return cols
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func blank(row []string) bool {
	for _, value := range row {
		if strings.TrimSpace(value) != "" {
			return false
		}
	}
	return true
}

var resultHeaders = []interface{}{
	"Row", HeaderAmount, HeaderRate, HeaderYears, HeaderType,
	"Monthly Payment", "Total Repayment", "Total Interest", "Total Payable", "Error",
}

// WriteWorkbook writes the report as an .xlsx workbook with one row per
// record. Failed records carry the error marker in the payment column.
func WriteWorkbook(w io.Writer, report Report) error {
	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	sheet := constants.BulkResultsSheet
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("failed to name results sheet: %w", err)
	}

	if err := f.SetSheetRow(sheet, "A1", &resultHeaders); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	if err == nil {
		lastHeader, _ := excelize.CoordinatesToCellName(len(resultHeaders), 1)
		_ = f.SetCellStyle(sheet, "A1", lastHeader, style)
	}

	for i, row := range report.Rows {
		cellName, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := row.values()
		if err := f.SetSheetRow(sheet, cellName, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", row.Index, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func (r RowResult) values() []interface{} {
	values := []interface{}{r.Index, missing(r.Amount), missing(r.Rate), missingInt(r.Years), r.Type}
	if r.Failed() {
		return append(values, constants.BulkErrorMarker, "", "", "", r.Error)
	}
	return append(values,
		r.Result.MonthlyPayment,
		r.Result.Totals.TotalRepayment,
		r.Result.Totals.TotalInterest,
		r.Result.Totals.TotalPayable,
		"",
	)
}

func missing(v *float64) interface{} {
	if v == nil {
		return constants.BulkMissingMarker
	}
	return *v
}

func missingInt(v *int) interface{} {
	if v == nil {
		return constants.BulkMissingMarker
	}
	return *v
}

// Package output renders calculation results and bulk reports.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/iwvelando/mortgage-calculator/pkg/bulk"
	"github.com/iwvelando/mortgage-calculator/pkg/constants"
	"github.com/iwvelando/mortgage-calculator/pkg/format"
	"github.com/iwvelando/mortgage-calculator/pkg/loans"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Write renders result in the named output format.
func Write(w io.Writer, outputFormat string, money *format.Money, result loans.Result) error {
	switch outputFormat {
	case constants.OutputFormatCSV:
		return CsvFormat(w, result)
	case constants.OutputFormatJSON:
		return JSONFormat(w, result)
	case constants.OutputFormatPretty, "":
		return PrettyFormat(w, money, result)
	default:
		return fmt.Errorf("unknown output format %q", outputFormat)
	}
}

// WriteReport renders a bulk report in the named output format.
func WriteReport(w io.Writer, outputFormat string, money *format.Money, report bulk.Report) error {
	switch outputFormat {
	case constants.OutputFormatCSV:
		return CsvReport(w, report)
	case constants.OutputFormatJSON:
		return JSONFormat(w, report)
	case constants.OutputFormatPretty, "":
		return PrettyReport(w, money, report)
	default:
		return fmt.Errorf("unknown output format %q", outputFormat)
	}
}

// PrettyFormat outputs a human-readable rather than machine-readable summary
// followed by the schedule table.
func PrettyFormat(w io.Writer, money *format.Money, result loans.Result) error {
	p := message.NewPrinter(language.English)
	in := result.Input

	_, _ = p.Fprintf(w, "--- Mortgage of %s at %s%% over %d years (%s) ---\n",
		money.Format(in.Amount), format.Rate(in.AnnualRate), in.Years, in.Type)
	_, _ = p.Fprintf(w, "Monthly payment: %s\n", money.Format(result.MonthlyPayment))
	_, _ = p.Fprintf(w, "Total repayment: %s\n", money.Format(result.Totals.TotalRepayment))
	_, _ = p.Fprintf(w, "Total interest:  %s\n", money.Format(result.Totals.TotalInterest))
	_, _ = p.Fprintf(w, "Total payable:   %s\n", money.Format(result.Totals.TotalPayable))
	_, _ = fmt.Fprintf(w, "\n")

	_, _ = fmt.Fprintf(w, "Month | Principal       | Interest        | Balance\n")
	_, _ = fmt.Fprintf(w, "_____ | _______________ | _______________ | _______________\n")
	for _, row := range result.Schedule {
		_, err := p.Fprintf(w, "%-5d | %-15s | %-15s | %s\n",
			row.Month, money.Format(row.Principal), money.Format(row.Interest), money.Format(row.Balance))
		if err != nil {
			return err
		}
	}
	return nil
}

// CsvFormat outputs the schedule in comma-separated value format. The
// monthly payment and totals are repeated on every row so each line stands
// alone.
func CsvFormat(w io.Writer, result loans.Result) error {
	cw := csv.NewWriter(w)
	header := []string{"month", "principal", "interest", "balance", "monthly payment", "total repayment", "total interest", "total payable"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, row := range result.Schedule {
		record := []string{
			strconv.Itoa(row.Month),
			plain(row.Principal),
			plain(row.Interest),
			plain(row.Balance),
			plain(result.MonthlyPayment),
			plain(result.Totals.TotalRepayment),
			plain(result.Totals.TotalInterest),
			plain(result.Totals.TotalPayable),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// JSONFormat outputs v as indented JSON.
func JSONFormat(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// PrettyReport outputs one line per bulk record.
func PrettyReport(w io.Writer, money *format.Money, report bulk.Report) error {
	p := message.NewPrinter(language.English)

	_, _ = p.Fprintf(w, "--- Bulk results for %s (%d ok, %d failed) ---\n", report.Source, report.Succeeded, report.Failed)
	_, _ = fmt.Fprintf(w, "Row   | Amount          | Rate    | Years | Type          | Monthly payment\n")
	_, _ = fmt.Fprintf(w, "_____ | _______________ | _______ | _____ | _____________ | _______________\n")
	for _, row := range report.Rows {
		amount, rate, years := constants.BulkMissingMarker, constants.BulkMissingMarker, constants.BulkMissingMarker
		if row.Amount != nil {
			amount = money.Format(*row.Amount)
		}
		if row.Rate != nil {
			rate = format.Rate(*row.Rate) + "%"
		}
		if row.Years != nil {
			years = strconv.Itoa(*row.Years)
		}

		payment := constants.BulkErrorMarker + ": " + row.Error
		if !row.Failed() {
			payment = money.Format(row.Result.MonthlyPayment)
		}

		_, err := p.Fprintf(w, "%-5d | %-15s | %-7s | %-5s | %-13s | %s\n", row.Index, amount, rate, years, row.Type, payment)
		if err != nil {
			return err
		}
	}
	return nil
}

// CsvReport outputs a bulk report in comma-separated value format.
func CsvReport(w io.Writer, report bulk.Report) error {
	cw := csv.NewWriter(w)
	header := []string{"row", "amount", "rate", "years", "type", "monthly payment", "total repayment", "total interest", "total payable", "error"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, row := range report.Rows {
		record := []string{
			strconv.Itoa(row.Index),
			optionalNumber(row.Amount),
			optionalNumber(row.Rate),
			constants.BulkMissingMarker,
			row.Type,
		}
		if row.Years != nil {
			record[3] = strconv.Itoa(*row.Years)
		}
		if row.Failed() {
			record = append(record, constants.BulkErrorMarker, "", "", "", row.Error)
		} else {
			record = append(record,
				plain(row.Result.MonthlyPayment),
				plain(row.Result.Totals.TotalRepayment),
				plain(row.Result.Totals.TotalInterest),
				plain(row.Result.Totals.TotalPayable),
				"",
			)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func optionalNumber(v *float64) string {
	if v == nil {
		return constants.BulkMissingMarker
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func plain(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

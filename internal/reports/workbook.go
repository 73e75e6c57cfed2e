// Package reports renders metrics read models into spreadsheet exports.
package reports

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/m5zonk/api/internal/services"
)

const (
	summarySheet = "Summary"
	monthsSheet  = "Months"
	weeksSheet   = "Weeks"

	// ContentType is the MIME type of the generated workbook.
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	// built-in "#,##0.00"
	amountNumFmt = 4
)

var totalsHeader = []any{"Revenue", "COGS", "Expenses", "Profit", "Orders"}

// MetricsReport is the input of a metrics workbook. Weekly is optional.
type MetricsReport struct {
	TenantID string
	Currency string
	Language language.Tag
	Yearly   services.YearlyMetrics
	Weekly   *services.WeeklyMetrics
}

// FileName returns the object name used for the export.
func (r MetricsReport) FileName() string {
	if r.Weekly != nil && r.Weekly.Month != "" {
		return fmt.Sprintf("metrics-%s.xlsx", r.Weekly.Month)
	}
	return fmt.Sprintf("metrics-%d.xlsx", r.Yearly.Year)
}

// Build lays out the Summary, Months and (when present) Weeks sheets.
func Build(report MetricsReport) (*excelize.File, error) {
	if strings.TrimSpace(report.TenantID) == "" {
		return nil, errors.New("reports: tenant id is required")
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		_ = f.Close()
		return nil, err
	}
	amountStyle, err := f.NewStyle(&excelize.Style{NumFmt: amountNumFmt})
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	if err := writeSummary(f, report); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := writeMonths(f, report.Yearly, amountStyle); err != nil {
		_ = f.Close()
		return nil, err
	}
	if report.Weekly != nil {
		if err := writeWeeks(f, *report.Weekly, amountStyle); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return f, nil
}

// Write builds the workbook and streams it to w.
func Write(w io.Writer, report MetricsReport) error {
	f, err := Build(report)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("reports: write workbook: %w", err)
	}
	return nil
}

func writeSummary(f *excelize.File, report MetricsReport) error {
	rows := [][]any{
		{"Tenant", report.TenantID},
		{"Year", report.Yearly.Year},
		{"Currency", report.Currency},
		{"Summary", summaryLine(report)},
	}
	for i, row := range rows {
		if err := f.SetSheetRow(summarySheet, cell(1, i+1), &row); err != nil {
			return err
		}
	}
	return f.SetColWidth(summarySheet, "A", "B", 24)
}

// summaryLine renders the year total in the tenant's locale, e.g. "12 orders, profit USD 1,234.50".
func summaryLine(report MetricsReport) string {
	tag := report.Language
	if tag == language.Und {
		tag = language.English
	}
	p := message.NewPrinter(tag)
	totals := report.Yearly.Totals
	if unit, err := currency.ParseISO(strings.TrimSpace(report.Currency)); err == nil {
		return p.Sprintf("%d orders, profit %v", totals.OrderCount, currency.ISO(unit.Amount(totals.Profit)))
	}
	return p.Sprintf("%d orders, profit %.2f", totals.OrderCount, totals.Profit)
}

func writeMonths(f *excelize.File, yearly services.YearlyMetrics, amountStyle int) error {
	if _, err := f.NewSheet(monthsSheet); err != nil {
		return err
	}
	header := append([]any{"Month"}, totalsHeader...)
	if err := f.SetSheetRow(monthsSheet, cell(1, 1), &header); err != nil {
		return err
	}
	row := 2
	for _, m := range yearly.Months {
		values := []any{m.Month, m.Revenue, m.COGS, m.Expenses, m.Profit, m.OrderCount}
		if err := f.SetSheetRow(monthsSheet, cell(1, row), &values); err != nil {
			return err
		}
		row++
	}
	t := yearly.Totals
	total := []any{"Total", t.Revenue, t.COGS, t.Expenses, t.Profit, t.OrderCount}
	if err := f.SetSheetRow(monthsSheet, cell(1, row), &total); err != nil {
		return err
	}
	return f.SetCellStyle(monthsSheet, cell(2, 2), cell(5, row), amountStyle)
}

func writeWeeks(f *excelize.File, weekly services.WeeklyMetrics, amountStyle int) error {
	if _, err := f.NewSheet(weeksSheet); err != nil {
		return err
	}
	header := append([]any{"Week"}, totalsHeader...)
	if err := f.SetSheetRow(weeksSheet, cell(1, 1), &header); err != nil {
		return err
	}
	for i, w := range weekly.Weeks {
		values := []any{w.Week, w.Revenue, w.COGS, w.Expenses, w.Profit, w.OrderCount}
		if err := f.SetSheetRow(weeksSheet, cell(1, i+2), &values); err != nil {
			return err
		}
	}
	if len(weekly.Weeks) == 0 {
		return nil
	}
	return f.SetCellStyle(weeksSheet, cell(2, 2), cell(5, len(weekly.Weeks)+1), amountStyle)
}

func cell(col, row int) string {
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		// col and row are always positive here
		panic(err)
	}
	return name
}

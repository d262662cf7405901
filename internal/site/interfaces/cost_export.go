package interfaces

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	amr "energy-costing/internal/amr/domain"
	"energy-costing/internal/observability/metrics"
	site "energy-costing/internal/site/domain"
)

const (
	FormatXLSX = "xlsx"
	FormatPDF  = "pdf"
)

// BuildSitePDF renders a one page cost summary per consolidated meter.
func BuildSitePDF(report SiteReport) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Site Energy Costs")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Site: %d %s", report.Site.URN, report.Site.Name))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", report.GeneratedAt.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Skipped meters: %d", len(report.Skipped)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Tariff diagnostics: %d", report.Diagnostics))
	pdf.Ln(8)

	for _, m := range report.Meters {
		totals := m.Totals()
		pdf.SetFont("Arial", "B", 10)
		pdf.Cell(0, 6, fmt.Sprintf("%s (%s) %s", m.Name, m.Fuel, m.MPXN))
		pdf.Ln(6)
		pdf.SetFont("Arial", "", 10)
		if len(m.Days) > 0 {
			pdf.Cell(0, 6, fmt.Sprintf("Period: %s to %s", amr.FormatDay(m.Days[0].Date), amr.FormatDay(m.Days[len(m.Days)-1].Date)))
			pdf.Ln(5)
		}
		pdf.Cell(0, 6, fmt.Sprintf("Energy (kWh): %.3f", totals.KWh))
		pdf.Ln(5)
		pdf.Cell(0, 6, fmt.Sprintf("Carbon (kg): %.3f", totals.CarbonKg))
		pdf.Ln(6)

		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(80, 6, "Charge", "1", 0, "C", false, 0, "")
		pdf.CellFormat(50, 6, "Amount (GBP)", "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 10)
		for _, name := range m.BucketNames {
			pdf.CellFormat(80, 6, name, "1", 0, "L", false, 0, "")
			pdf.CellFormat(50, 6, fmt.Sprintf("%.2f", totals.Buckets[name]), "1", 0, "R", false, 0, "")
			pdf.Ln(-1)
		}
		pdf.CellFormat(80, 6, "Total", "1", 0, "L", false, 0, "")
		pdf.CellFormat(50, 6, fmt.Sprintf("%.2f", totals.Total()), "1", 0, "R", false, 0, "")
		pdf.Ln(10)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildSiteXLSX renders a summary sheet and one daily sheet per consolidated meter.
func BuildSiteXLSX(report SiteReport) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	f.SetSheetName("Sheet1", summarySheet)

	_ = f.SetCellValue(summarySheet, "A1", "Site Energy Costs")
	_ = f.SetCellValue(summarySheet, "A3", "Site")
	_ = f.SetCellValue(summarySheet, "B3", report.Site.URN)
	_ = f.SetCellValue(summarySheet, "C3", report.Site.Name)
	_ = f.SetCellValue(summarySheet, "A4", "Generated")
	_ = f.SetCellValue(summarySheet, "B4", report.GeneratedAt.Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A6", "Meter")
	_ = f.SetCellValue(summarySheet, "B6", "Fuel")
	_ = f.SetCellValue(summarySheet, "C6", "Components")
	_ = f.SetCellValue(summarySheet, "D6", "Energy (kWh)")
	_ = f.SetCellValue(summarySheet, "E6", "Cost (GBP)")
	_ = f.SetCellValue(summarySheet, "F6", "Carbon (kg)")

	for i, m := range report.Meters {
		row := i + 7
		totals := m.Totals()
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), m.MPXN)
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", row), string(m.Fuel))
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("C%d", row), m.ComponentIDs)
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("D%d", row), totals.KWh)
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("E%d", row), totals.Total())
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("F%d", row), totals.CarbonKg)

		sheet := fmt.Sprintf("%s %s", m.Fuel, m.MPXN)
		if len(sheet) > 31 {
			sheet = sheet[:31]
		}
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
		headers := append([]string{"Day", "Energy (kWh)", "Carbon (kg)"}, m.BucketNames...)
		headers = append(headers, "Total (GBP)")
		for col, h := range headers {
			cell, err := excelize.CoordinatesToCellName(col+1, 1)
			if err != nil {
				return nil, err
			}
			_ = f.SetCellValue(sheet, cell, h)
		}
		for d, day := range m.Days {
			values := []any{amr.FormatDay(day.Date), day.KWh, day.CarbonKg}
			for _, name := range m.BucketNames {
				values = append(values, day.Buckets[name])
			}
			values = append(values, day.Total())
			for col, v := range values {
				cell, err := excelize.CoordinatesToCellName(col+1, d+2)
				if err != nil {
					return nil, err
				}
				_ = f.SetCellValue(sheet, cell, v)
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FileExportSink writes each site's XLSX and PDF into a directory.
type FileExportSink struct {
	dir   string
	clock func() time.Time
}

// NewFileExportSink constructs a sink writing into dir.
func NewFileExportSink(dir string) (*FileExportSink, error) {
	if dir == "" {
		return nil, errors.New("cost export: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileExportSink{dir: dir, clock: time.Now}, nil
}

func (s *FileExportSink) Name() string { return "file_export" }

// Write renders and stores both formats.
func (s *FileExportSink) Write(ctx context.Context, result *site.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	report, err := BuildSiteReport(result, s.clock())
	if err != nil {
		return err
	}
	renderers := []struct {
		format string
		build  func(SiteReport) ([]byte, error)
	}{
		{FormatXLSX, BuildSiteXLSX},
		{FormatPDF, BuildSitePDF},
	}
	for _, r := range renderers {
		started := time.Now()
		content, err := r.build(report)
		if err == nil {
			path := filepath.Join(s.dir, fmt.Sprintf("site-%d.%s", result.Site.URN, r.format))
			err = os.WriteFile(path, content, 0o644)
		}
		if err != nil {
			metrics.ObserveCostExport(r.format, metrics.ResultError, time.Since(started))
			return fmt.Errorf("cost export %s: %w", r.format, err)
		}
		metrics.ObserveCostExport(r.format, metrics.ResultSuccess, time.Since(started))
	}
	return nil
}

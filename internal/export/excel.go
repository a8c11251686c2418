package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/fmuoria/cold-outreach-agent/internal/models"
)

// Sheet names in the history workbook
const (
	SummarySheet = "Summary"
	SentSheet    = "Sent Emails"
)

var sentHeaders = []string{"Sent At", "Recipient", "Recruiter", "Company", "Subject", "Sender", "Message ID"}

var thinBorder = []excelize.Border{
	{Type: "left", Color: "000000", Style: 1},
	{Type: "right", Color: "000000", Style: 1},
	{Type: "top", Color: "000000", Style: 1},
	{Type: "bottom", Color: "000000", Style: 1},
}

// WriteHistory renders the outreach history of owner as an xlsx workbook
func WriteHistory(w io.Writer, records []models.OutreachRecord, owner string) error {
	f, err := buildWorkbook(records, owner)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// ExportToExcel writes the workbook to outputPath, adding .xlsx when missing.
// It returns the path actually written.
func ExportToExcel(records []models.OutreachRecord, owner, outputPath string) (string, error) {
	if !strings.HasSuffix(strings.ToLower(outputPath), ".xlsx") {
		outputPath = outputPath + ".xlsx"
	}
	outputPath = filepath.Clean(outputPath)

	out, err := os.Create(outputPath)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", outputPath, err)
	}
	defer out.Close()

	if err := WriteHistory(out, records, owner); err != nil {
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("failed to save Excel file: %w", err)
	}
	return outputPath, nil
}

func buildWorkbook(records []models.OutreachRecord, owner string) (*excelize.File, error) {
	f := excelize.NewFile()

	f.SetSheetName("Sheet1", SummarySheet)
	if _, err := f.NewSheet(SentSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}

	if err := createSummarySheet(f, SummarySheet, records, owner); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create summary sheet: %w", err)
	}
	if err := createSentSheet(f, SentSheet, records); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sent emails sheet: %w", err)
	}
	return f, nil
}

// createSummarySheet lists totals and a per-company breakdown
func createSummarySheet(f *excelize.File, sheetName string, records []models.OutreachRecord, owner string) error {
	f.SetColWidth(sheetName, "A", "A", 28)
	f.SetColWidth(sheetName, "B", "B", 40)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "center"},
	})
	if err != nil {
		return err
	}

	labelStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		return err
	}

	row := 1
	f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), "Outreach History")
	f.SetCellStyle(sheetName, fmt.Sprintf("A%d", row), fmt.Sprintf("B%d", row), headerStyle)
	f.MergeCell(sheetName, fmt.Sprintf("A%d", row), fmt.Sprintf("B%d", row))
	row += 2

	label := func(name string, value interface{}) {
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), name)
		f.SetCellStyle(sheetName, fmt.Sprintf("A%d", row), fmt.Sprintf("A%d", row), labelStyle)
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), value)
		row++
	}

	label("Account:", owner)
	label("Generated:", time.Now().Format("2006-01-02 15:04:05"))
	label("Emails Sent:", len(records))

	if len(records) > 0 {
		first, last := records[0].SentAt, records[0].SentAt
		for _, r := range records {
			if r.SentAt.Before(first) {
				first = r.SentAt
			}
			if r.SentAt.After(last) {
				last = r.SentAt
			}
		}
		label("First Sent:", first.Format("2006-01-02 15:04"))
		label("Last Sent:", last.Format("2006-01-02 15:04"))
	}
	row++

	f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), "By Company:")
	f.SetCellStyle(sheetName, fmt.Sprintf("A%d", row), fmt.Sprintf("B%d", row), headerStyle)
	f.MergeCell(sheetName, fmt.Sprintf("A%d", row), fmt.Sprintf("B%d", row))
	row++

	for _, c := range countByCompany(records) {
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), c.company)
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), c.count)
		row++
	}

	return nil
}

// createSentSheet writes one row per sent email, newest first
func createSentSheet(f *excelize.File, sheetName string, records []models.OutreachRecord) error {
	widths := []float64{20, 30, 20, 20, 24, 30, 24}
	for i, width := range widths {
		col := string(rune('A' + i))
		f.SetColWidth(sheetName, col, col, width)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    thinBorder,
	})
	if err != nil {
		return err
	}

	rowStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Vertical: "top"},
		Border:    thinBorder,
	})
	if err != nil {
		return err
	}

	for col, header := range sentHeaders {
		cell := fmt.Sprintf("%s1", string(rune('A'+col)))
		f.SetCellValue(sheetName, cell, header)
		f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	sorted := make([]models.OutreachRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].SentAt.After(sorted[j].SentAt)
	})

	lastCol := string(rune('A' + len(sentHeaders) - 1))
	for i, r := range sorted {
		row := i + 2
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), r.SentAt.Format("2006-01-02 15:04:05"))
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), r.Recipient)
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), r.RecruiterName)
		f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), r.Company)
		f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), r.Subject)
		f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), r.SenderAddress)
		f.SetCellValue(sheetName, fmt.Sprintf("G%d", row), r.MessageID)
		f.SetCellStyle(sheetName, fmt.Sprintf("A%d", row), fmt.Sprintf("%s%d", lastCol, row), rowStyle)

		if r.Recipient != "" {
			cell := fmt.Sprintf("B%d", row)
			f.SetCellHyperLink(sheetName, cell, "mailto:"+r.Recipient, "External")
		}
	}

	if len(sorted) > 0 {
		f.AutoFilter(sheetName, fmt.Sprintf("A1:%s%d", lastCol, len(sorted)+1), []excelize.AutoFilterOptions{})
	}

	f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		XSplit:      0,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})

	return nil
}

type companyCount struct {
	company string
	count   int
}

// countByCompany orders by count, then name
func countByCompany(records []models.OutreachRecord) []companyCount {
	counts := make(map[string]int)
	for _, r := range records {
		name := strings.TrimSpace(r.Company)
		if name == "" {
			name = "(unknown)"
		}
		counts[name]++
	}

	out := make([]companyCount, 0, len(counts))
	for company, count := range counts {
		out = append(out, companyCount{company: company, count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].company < out[j].company
	})
	return out
}

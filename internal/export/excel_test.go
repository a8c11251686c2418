package export

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/fmuoria/cold-outreach-agent/internal/models"
)

func sampleRecords() []models.OutreachRecord {
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	return []models.OutreachRecord{
		{ID: 1, Recipient: "bob@acme.com", RecruiterName: "Bob", Company: "Acme", Subject: "Let's Connect!", MessageID: "m1", SentAt: base},
		{ID: 2, Recipient: "ann@globex.com", RecruiterName: "Ann", Company: "Globex", Subject: "Let's Connect!", MessageID: "m2", SentAt: base.Add(2 * time.Hour)},
		{ID: 3, Recipient: "carl@acme.com", RecruiterName: "Carl", Company: "Acme", Subject: "Let's Connect!", MessageID: "m3", SentAt: base.Add(time.Hour)},
	}
}

func TestWriteHistory(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteHistory(&buf, sampleRecords(), "jane@example.com"); err != nil {
		t.Fatalf("WriteHistory() error = %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) != 2 || sheets[0] != SummarySheet || sheets[1] != SentSheet {
		t.Fatalf("sheets = %v", sheets)
	}

	rows, err := f.GetRows(SentSheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 {
		t.Fatalf("got %d rows, want header + 3", len(rows))
	}
	if rows[0][0] != "Sent At" || rows[0][6] != "Message ID" {
		t.Errorf("header = %v", rows[0])
	}

	// newest first
	wantOrder := []string{"m2", "m3", "m1"}
	for i, id := range wantOrder {
		if got := rows[i+1][6]; got != id {
			t.Errorf("row %d message id = %q, want %q", i+1, got, id)
		}
	}

	account, _ := f.GetCellValue(SummarySheet, "B3")
	if account != "jane@example.com" {
		t.Errorf("account cell = %q", account)
	}
	total, _ := f.GetCellValue(SummarySheet, "B5")
	if total != "3" {
		t.Errorf("total cell = %q, want 3", total)
	}
}

func TestWriteHistory_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteHistory(&buf, nil, "jane@example.com"); err != nil {
		t.Fatalf("WriteHistory() error = %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	rows, _ := f.GetRows(SentSheet)
	if len(rows) != 1 {
		t.Errorf("got %d rows, want only the header", len(rows))
	}
}

func TestExportToExcel_EnsuresXlsxExtension(t *testing.T) {
	tmpDir := t.TempDir()

	outputPath := filepath.Join(tmpDir, "history")
	written, err := ExportToExcel(sampleRecords(), "jane@example.com", outputPath)
	if err != nil {
		t.Fatalf("ExportToExcel() failed: %v", err)
	}

	expectedPath := outputPath + ".xlsx"
	if written != expectedPath {
		t.Errorf("written = %q, want %q", written, expectedPath)
	}
	if _, err := os.Stat(expectedPath); os.IsNotExist(err) {
		t.Errorf("Expected file at %s but it doesn't exist", expectedPath)
	}
}

func TestExportToExcel_HandlesExistingXlsxExtension(t *testing.T) {
	tmpDir := t.TempDir()

	outputPath := filepath.Join(tmpDir, "history.XLSX")
	written, err := ExportToExcel(sampleRecords(), "jane@example.com", outputPath)
	if err != nil {
		t.Fatalf("ExportToExcel() failed: %v", err)
	}
	if written != outputPath {
		t.Errorf("written = %q, want %q", written, outputPath)
	}
}

func TestCountByCompany(t *testing.T) {
	got := countByCompany(append(sampleRecords(), models.OutreachRecord{Company: " "}))

	want := []companyCount{{"Acme", 2}, {"(unknown)", 1}, {"Globex", 1}}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

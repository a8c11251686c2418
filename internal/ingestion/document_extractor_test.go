package ingestion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap"
)

// buildPDF assembles a single-page PDF that draws text with Helvetica
func buildPDF(text string) []byte {
	content := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestExtract_SimplePDF(t *testing.T) {
	e := &PDFExtractor{logger: zap.NewNop()}

	data := buildPDF("Jane is a software engineer with 3 years experience in backend systems.")
	text, err := e.Extract(context.Background(), bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if !strings.Contains(text, "software engineer") {
		t.Errorf("Extract() = %q, want text containing %q", text, "software engineer")
	}
}

func TestExtract_RejectsNonPDF(t *testing.T) {
	e := &PDFExtractor{logger: zap.NewNop()}

	_, err := e.Extract(context.Background(), strings.NewReader("just some text, not a pdf"))
	if !errors.Is(err, ErrNotPDF) {
		t.Errorf("Extract() error = %v, want ErrNotPDF", err)
	}
}

func TestExtract_UsesFallbackWhenReaderFails(t *testing.T) {
	called := false
	e := &PDFExtractor{
		logger: zap.NewNop(),
		fallback: func(ctx context.Context, data []byte) (string, error) {
			called = true
			return "  Fallback text.\n", nil
		},
	}

	text, err := e.Extract(context.Background(), strings.NewReader("%PDF-1.4\ngarbage without xref"))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if !called {
		t.Error("fallback was not invoked")
	}
	if text != "Fallback text." {
		t.Errorf("Extract() = %q, want %q", text, "Fallback text.")
	}
}

func TestExtract_NoFallbackReportsError(t *testing.T) {
	e := &PDFExtractor{logger: zap.NewNop()}

	if _, err := e.Extract(context.Background(), strings.NewReader("%PDF-1.4\ngarbage without xref")); err == nil {
		t.Error("Extract() should fail for an unreadable PDF without fallback")
	}
}

func TestExtract_TooLarge(t *testing.T) {
	e := &PDFExtractor{logger: zap.NewNop()}

	data := append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("a"), MaxResumeSize)...)
	_, err := e.Extract(context.Background(), bytes.NewReader(data))
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("Extract() error = %v, want size error", err)
	}
}

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "Valid text unchanged", input: "José González - Engineer", want: "José González - Engineer"},
		{name: "Trims whitespace", input: "\n  Jane Doe \t\n", want: "Jane Doe"},
		{name: "Drops invalid bytes", input: "Start " + string([]byte{0xFF, 0xFE}) + "End", want: "Start End"},
		{name: "Drops NUL bytes", input: "Name:\x00 John", want: "Name: John"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeText(tt.input); got != tt.want {
				t.Errorf("SanitizeText() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestIsBinaryData_PlainText tests that plain text is not detected as binary
func TestIsBinaryData_PlainText(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "Simple text", content: "This is a plain text CV with normal content."},
		{name: "Multi-line text", content: "John Doe\nSoftware Engineer\n5 years experience"},
		{name: "Empty string", content: ""},
		{name: "Text with tabs and newlines", content: "Name:\tJohn\nTitle:\tEngineer\nYears:\t5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if IsBinaryData(tt.content) {
				t.Errorf("IsBinaryData() returned true for plain text: %q", tt.content)
			}
		})
	}
}

// TestIsBinaryData_Markers tests that PDF and ZIP content is detected as binary
func TestIsBinaryData_Markers(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "PDF header v1.4", content: "%PDF-1.4\n%âãÏÓ\n"},
		{name: "PDF header v1.7", content: "%PDF-1.7\n%%EOF"},
		{name: "ZIP magic number", content: "PK\x03\x04"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !IsBinaryData(tt.content) {
				t.Errorf("IsBinaryData() returned false for %q", tt.content)
			}
		})
	}
}

// TestIsBinaryData_HighNonPrintable tests binary detection with high non-printable chars
func TestIsBinaryData_HighNonPrintable(t *testing.T) {
	content := strings.Repeat("\x01", 400) + strings.Repeat("x", 600)

	if !IsBinaryData(content) {
		t.Errorf("IsBinaryData() returned false for content with high proportion of non-printable chars")
	}
}

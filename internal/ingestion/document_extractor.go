package ingestion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

const (
	// MaxResumeSize is the largest résumé upload accepted
	MaxResumeSize = 10 << 20
	// BinarySampleSize is the number of bytes to sample for binary detection
	BinarySampleSize = 1000
	// BinaryThreshold is the proportion of non-printable characters that indicates binary data
	BinaryThreshold = 0.3
)

var (
	// ErrNotPDF is returned when the upload does not carry a PDF header
	ErrNotPDF = errors.New("uploaded file is not a PDF")
	// ErrNoText is returned when a PDF yields no extractable text (e.g. scanned images)
	ErrNoText = errors.New("no text could be extracted from the PDF")
	// ErrTooLarge is returned when the upload exceeds MaxResumeSize
	ErrTooLarge = errors.New("résumé exceeds the upload size limit")
)

// PDFExtractor converts uploaded résumé PDFs into plain text
type PDFExtractor struct {
	logger *zap.Logger
	// fallback runs when the in-process reader fails; nil disables it
	fallback func(ctx context.Context, data []byte) (string, error)
}

// NewPDFExtractor creates an extractor that falls back to pdftotext when available
func NewPDFExtractor(logger *zap.Logger) *PDFExtractor {
	e := &PDFExtractor{logger: logger}
	if _, err := exec.LookPath("pdftotext"); err == nil {
		e.fallback = extractWithPdftotext
	}
	return e
}

// Extract reads a PDF from r and returns its trimmed text
func (e *PDFExtractor) Extract(ctx context.Context, r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxResumeSize+1))
	if err != nil {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}
	if len(data) > MaxResumeSize {
		return "", ErrTooLarge
	}
	if !bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), []byte("%PDF-")) {
		return "", ErrNotPDF
	}

	text, err := extractWithReader(data)
	if err == nil && IsBinaryData(text) {
		err = errors.New("reader returned undecoded content")
	}
	if err != nil || strings.TrimSpace(text) == "" {
		if e.fallback == nil {
			if err == nil {
				err = ErrNoText
			}
			return "", fmt.Errorf("PDF extraction failed: %w", err)
		}
		e.logger.Debug("in-process PDF reader failed, trying pdftotext", zap.Error(err))
		text, err = e.fallback(ctx, data)
		if err != nil {
			return "", fmt.Errorf("PDF extraction failed: %w", err)
		}
	}

	text = SanitizeText(text)
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}

// extractWithReader extracts text page by page with the pure Go reader
func extractWithReader(data []byte) (text string, err error) {
	// the reader panics on some malformed documents
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to read PDF text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("failed to read PDF text: %w", err)
	}
	return buf.String(), nil
}

// extractWithPdftotext pipes the document through poppler's pdftotext
func extractWithPdftotext(ctx context.Context, data []byte) (string, error) {
	cmd := exec.CommandContext(ctx, "pdftotext", "-layout", "-", "-")
	cmd.Stdin = bytes.NewReader(data)
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("pdftotext failed: %w", err)
	}
	return string(output), nil
}

// SanitizeText drops invalid UTF-8 and NUL bytes and trims surrounding whitespace
func SanitizeText(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	s = strings.ReplaceAll(s, "\x00", "")
	return strings.TrimSpace(s)
}

// IsBinaryData checks if content appears to be binary (PDF/ZIP markers)
func IsBinaryData(content string) bool {
	if len(content) == 0 {
		return false
	}

	if strings.HasPrefix(content, "%PDF-") {
		return true
	}

	if len(content) >= 2 && content[:2] == "PK" {
		return true
	}

	sampleSize := min(BinarySampleSize, len(content))
	nonPrintable := 0
	for i := 0; i < sampleSize; i++ {
		ch := content[i]
		if ch < 32 && ch != '\n' && ch != '\r' && ch != '\t' {
			nonPrintable++
		}
	}

	return float64(nonPrintable)/float64(sampleSize) > BinaryThreshold
}

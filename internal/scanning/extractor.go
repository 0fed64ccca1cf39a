package scanning

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/zombor/invoice-review/internal/invoicetext"
)

var (
	// ErrNoInvoice is returned when the backend recognised no invoice in the document
	ErrNoInvoice = errors.New("no invoice data found")
	// ErrExtractionFailed is returned when the backend reports a failed analysis
	ErrExtractionFailed = errors.New("invoice processing failed")
	// ErrTimeout is returned when the backend does not finish in time
	ErrTimeout = errors.New("processing timeout")
)

// Extractor turns an uploaded invoice document into a structured record
type Extractor interface {
	// ExtractInvoice analyzes a document (PDF or image) and returns the invoice fields it found
	ExtractInvoice(ctx context.Context, data []byte, contentType string) (*invoicetext.Record, error)
	// Close releases any resources held by the extractor
	Close() error
}

// ContentTypeFor guesses the MIME type of a document from its filename.
// Anything unrecognised is treated as PDF.
func ContentTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/pdf"
	}
}

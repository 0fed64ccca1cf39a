package invoice

import (
	"errors"
	"time"

	"github.com/zombor/invoice-review/internal/invoicetext"
)

// Invoice review states
const (
	StatusPending   = "pending"
	StatusSubmitted = "submitted"
)

var (
	// ErrNotFound is returned when an invoice or submission does not exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadySubmitted is returned when a submitted invoice is edited or submitted again
	ErrAlreadySubmitted = errors.New("invoice already submitted")
	// ErrEmptyText is returned when there is no review text to submit
	ErrEmptyText = errors.New("no data to upload")
)

// Invoice is an uploaded document under review
type Invoice struct {
	ID           string              `json:"id"`
	Filename     string              `json:"filename"`
	ContentType  string              `json:"content_type"`
	Extracted    *invoicetext.Record `json:"extracted"` // backend output, never modified
	Text         string              `json:"text"`      // current review text
	Status       string              `json:"status"`
	SubmissionID string              `json:"submission_id,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// Submission records one upload of a reviewed invoice to the ERP endpoint
type Submission struct {
	ID         string              `json:"id"`
	InvoiceID  string              `json:"invoice_id"`
	Record     *invoicetext.Record `json:"record"`
	StatusCode int                 `json:"status_code"`
	Response   string              `json:"response"`
	CreatedAt  time.Time           `json:"created_at"`
}

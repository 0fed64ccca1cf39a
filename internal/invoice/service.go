package invoice

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/invoice-review/internal/erp"
	"github.com/zombor/invoice-review/internal/invoicetext"
	"github.com/zombor/invoice-review/internal/scanning"
)

// IDGenerator generates unique IDs for invoices and submissions
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.NewString()
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// Service carries an invoice from upload through review to submission
type Service struct {
	db          DB
	extractor   scanning.Extractor
	storage     Storage
	submitter   erp.Submitter
	idGenerator IDGenerator
	timeSource  TimeSource

	// per-invoice locks serialising edits, submission and deletion
	locks sync.Map
}

// NewService creates a new Service with UUIDs and the system clock
func NewService(db DB, extractor scanning.Extractor, storage Storage, submitter erp.Submitter) *Service {
	return NewServiceWithDeps(db, extractor, storage, submitter, uuidGenerator{}, systemClock{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, extractor scanning.Extractor, storage Storage, submitter erp.Submitter, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		extractor:   extractor,
		storage:     storage,
		submitter:   submitter,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// lock holds the invoice's lock until the returned func is called
func (s *Service) lock(id string) func() {
	m, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	spaceRuns   = regexp.MustCompile(`\s+`)
)

// sanitizeFilename strips special characters and shortens long scanner/phone names
func sanitizeFilename(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	base = unsafeChars.ReplaceAllString(base, "")
	base = strings.TrimSpace(spaceRuns.ReplaceAllString(base, " "))
	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "invoice"
	}
	return base + ext
}

// ProcessInvoice stores an uploaded document, extracts its fields and
// renders the review text
func (s *Service) ProcessInvoice(ctx context.Context, filename string, data []byte, contentType string) (*Invoice, error) {
	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	if contentType == "" {
		contentType = scanning.ContentTypeFor(filename)
	}

	savedPath, err := s.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	record, err := s.extractor.ExtractInvoice(ctx, data, contentType)
	if err != nil {
		slog.Error("Failed to extract invoice",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		s.removeFile(savedPath)
		return nil, fmt.Errorf("extracting invoice: %w", err)
	}

	invoice := &Invoice{
		ID:          id,
		Filename:    savedPath,
		ContentType: contentType,
		Extracted:   record,
		Text:        invoicetext.Encode(record),
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.db.SaveInvoice(invoice); err != nil {
		s.removeFile(savedPath)
		return nil, fmt.Errorf("saving invoice to database: %w", err)
	}

	slog.Info("Invoice extracted", "id", id, "items", len(record.Items))
	return invoice, nil
}

func (s *Service) removeFile(path string) {
	if err := s.storage.Delete(path); err != nil {
		slog.Warn("Failed to delete file", "filename", path, "error", err)
	}
}

// GetInvoice retrieves an invoice by ID
func (s *Service) GetInvoice(id string) (*Invoice, error) {
	invoice, err := s.db.GetInvoice(id)
	if err != nil {
		return nil, fmt.Errorf("getting invoice: %w", err)
	}
	return invoice, nil
}

// ListInvoices returns all invoices
func (s *Service) ListInvoices() ([]*Invoice, error) {
	invoices, err := s.db.ListInvoices()
	if err != nil {
		return nil, fmt.Errorf("listing invoices: %w", err)
	}
	return invoices, nil
}

// DeleteInvoice removes an invoice and its document
func (s *Service) DeleteInvoice(id string) error {
	defer s.lock(id)()

	invoice, err := s.db.GetInvoice(id)
	if err != nil {
		return fmt.Errorf("getting invoice for deletion: %w", err)
	}

	s.removeFile(invoice.Filename)

	if err := s.db.DeleteInvoice(id); err != nil {
		return fmt.Errorf("deleting invoice from database: %w", err)
	}
	return nil
}

// GetInvoiceFile returns the original document and its content type
func (s *Service) GetInvoiceFile(id string) ([]byte, string, error) {
	invoice, err := s.db.GetInvoice(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting invoice: %w", err)
	}

	data, err := s.storage.Get(invoice.Filename)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, "", fmt.Errorf("invoice file %s: %w", invoice.Filename, ErrNotFound)
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting invoice file: %w", err)
	}
	return data, invoice.ContentType, nil
}

// UpdateText replaces the review text. The text must decode; field-level
// problems are tolerated and show up as absent values.
func (s *Service) UpdateText(id string, text string) (*Invoice, error) {
	defer s.lock(id)()

	invoice, err := s.db.GetInvoice(id)
	if err != nil {
		return nil, fmt.Errorf("getting invoice: %w", err)
	}
	if invoice.Status == StatusSubmitted {
		return nil, ErrAlreadySubmitted
	}
	if _, err := invoicetext.Decode(text); err != nil {
		return nil, err
	}

	invoice.Text = text
	invoice.UpdatedAt = s.timeSource.Now()
	if err := s.db.SaveInvoice(invoice); err != nil {
		return nil, fmt.Errorf("saving invoice: %w", err)
	}
	return invoice, nil
}

// PreviewRecord decodes the current review text into the record that would be submitted
func (s *Service) PreviewRecord(id string) (*invoicetext.Record, error) {
	invoice, err := s.db.GetInvoice(id)
	if err != nil {
		return nil, fmt.Errorf("getting invoice: %w", err)
	}
	return invoicetext.Decode(invoice.Text)
}

// SubmitInvoice decodes the review text and forwards the record to the ERP endpoint
func (s *Service) SubmitInvoice(ctx context.Context, id string) (*Submission, error) {
	defer s.lock(id)()

	invoice, err := s.db.GetInvoice(id)
	if err != nil {
		return nil, fmt.Errorf("getting invoice: %w", err)
	}
	if invoice.Status == StatusSubmitted {
		return nil, ErrAlreadySubmitted
	}
	if strings.TrimSpace(invoice.Text) == "" {
		return nil, ErrEmptyText
	}

	record, err := invoicetext.Decode(invoice.Text)
	if err != nil {
		return nil, err
	}

	result, err := s.submitter.Submit(ctx, record)
	if err != nil {
		attrs := []any{"id", id, "error", err}
		if result != nil {
			attrs = append(attrs, "status", result.StatusCode)
		}
		slog.Error("Failed to submit invoice", attrs...)
		return nil, fmt.Errorf("submitting invoice: %w", err)
	}

	now := s.timeSource.Now()
	submission := &Submission{
		ID:         s.idGenerator.Generate(),
		InvoiceID:  id,
		Record:     record,
		StatusCode: result.StatusCode,
		Response:   result.Body,
		CreatedAt:  now,
	}

	// Mark the invoice before recording the submission so it is never sent twice
	invoice.Status = StatusSubmitted
	invoice.SubmissionID = submission.ID
	invoice.UpdatedAt = now
	if err := s.db.SaveInvoice(invoice); err != nil {
		slog.Error("Invoice accepted by ERP but status not saved",
			"id", id,
			"submission", submission.ID,
			"status", result.StatusCode,
			"response", result.Body,
			"error", err,
		)
		return nil, fmt.Errorf("updating invoice %s: %w", id, err)
	}
	if err := s.db.SaveSubmission(submission); err != nil {
		slog.Error("Invoice accepted by ERP but submission not saved",
			"id", id,
			"submission", submission.ID,
			"status", result.StatusCode,
			"response", result.Body,
			"error", err,
		)
		return nil, fmt.Errorf("saving submission: %w", err)
	}

	slog.Info("Invoice submitted", "id", id, "submission", submission.ID, "status", result.StatusCode)
	return submission, nil
}

// GetSubmission retrieves a submission by ID
func (s *Service) GetSubmission(id string) (*Submission, error) {
	submission, err := s.db.GetSubmission(id)
	if err != nil {
		return nil, fmt.Errorf("getting submission: %w", err)
	}
	return submission, nil
}

// ListSubmissions returns all submissions
func (s *Service) ListSubmissions() ([]*Submission, error) {
	submissions, err := s.db.ListSubmissions()
	if err != nil {
		return nil, fmt.Errorf("listing submissions: %w", err)
	}
	return submissions, nil
}

// IsNotFound reports whether err means the invoice or submission does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

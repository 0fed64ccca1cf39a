package invoice

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/zombor/invoice-review/internal/erp"
	"github.com/zombor/invoice-review/internal/invoicetext"
	"github.com/zombor/invoice-review/internal/scanning"
)

const (
	maxUploadSize = int64(50 << 20)
	maxTextSize   = int64(1 << 20)
)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeJSON writes v with the given status
func writeJSON(w http.ResponseWriter, code int, v any) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError writes a JSON error body
func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

// writeText writes a plain text body
func writeText(w http.ResponseWriter, code int, text string) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	io.WriteString(w, text)
}

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadySubmitted):
		return http.StatusConflict
	case errors.Is(err, invoicetext.ErrParse), errors.Is(err, ErrEmptyText):
		return http.StatusBadRequest
	case errors.Is(err, erp.ErrRejected):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// messageFor returns the response message for a lookup failure
func messageFor(err error, notFound string) string {
	if statusFor(err) == http.StatusNotFound {
		return notFound
	}
	return "Internal server error"
}

// handleHealth reports liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, "ok")
}

// handleListInvoices returns all invoices
func (s *Server) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := s.service.ListInvoices()
	if err != nil {
		slog.Error("Error listing invoices", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, invoices)
}

// handleUploadInvoice accepts a multipart document upload and extracts it
func (s *Server) handleUploadInvoice(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		msg := "Error parsing form"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			msg = "File is too large. Maximum size is 50MB."
		}
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		writeError(w, http.StatusBadRequest, "No file was selected. Please choose an invoice to upload.")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
		return
	}

	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = scanning.ContentTypeFor(header.Filename)
	}

	invoice, err := s.service.ProcessInvoice(r.Context(), header.Filename, data, contentType)
	if err != nil {
		slog.Error("Error processing invoice", "filename", header.Filename, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, invoice)
}

// handleGetInvoice returns a single invoice
func (s *Server) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	invoice, err := s.service.GetInvoice(r.PathValue("id"))
	if err != nil {
		slog.Error("Error getting invoice", "id", r.PathValue("id"), "error", err)
		writeError(w, statusFor(err), messageFor(err, "Invoice not found"))
		return
	}
	writeJSON(w, http.StatusOK, invoice)
}

// handleGetInvoiceFile returns the original document
func (s *Server) handleGetInvoiceFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetInvoiceFile(r.PathValue("id"))
	if err != nil {
		slog.Error("Error getting invoice file", "id", r.PathValue("id"), "error", err)
		writeError(w, statusFor(err), messageFor(err, "File not found"))
		return
	}
	setCORSHeaders(w)
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleGetInvoiceText returns the editable review text
func (s *Server) handleGetInvoiceText(w http.ResponseWriter, r *http.Request) {
	invoice, err := s.service.GetInvoice(r.PathValue("id"))
	if err != nil {
		slog.Error("Error getting invoice", "id", r.PathValue("id"), "error", err)
		writeError(w, statusFor(err), messageFor(err, "Invoice not found"))
		return
	}
	writeText(w, http.StatusOK, invoice.Text)
}

// handleUpdateInvoiceText replaces the review text with the request body
func (s *Server) handleUpdateInvoiceText(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTextSize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Error reading text")
		return
	}

	invoice, err := s.service.UpdateText(r.PathValue("id"), string(body))
	if err != nil {
		slog.Error("Error updating invoice text", "id", r.PathValue("id"), "error", err)
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, invoice)
}

// handleGetInvoiceRecord returns the record the current text decodes to
func (s *Server) handleGetInvoiceRecord(w http.ResponseWriter, r *http.Request) {
	record, err := s.service.PreviewRecord(r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// handleSubmitInvoice forwards the reviewed record to the ERP endpoint
func (s *Server) handleSubmitInvoice(w http.ResponseWriter, r *http.Request) {
	submission, err := s.service.SubmitInvoice(r.Context(), r.PathValue("id"))
	if err != nil {
		slog.Error("Error submitting invoice", "id", r.PathValue("id"), "error", err)
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, submission)
}

// handleDeleteInvoice deletes an invoice and its document
func (s *Server) handleDeleteInvoice(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteInvoice(r.PathValue("id")); err != nil {
		slog.Error("Error deleting invoice", "id", r.PathValue("id"), "error", err)
		writeError(w, statusFor(err), messageFor(err, "Invoice not found"))
		return
	}
	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleListSubmissions returns all submissions
func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	submissions, err := s.service.ListSubmissions()
	if err != nil {
		slog.Error("Error listing submissions", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, submissions)
}

// handleGetSubmission returns a single submission
func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	submission, err := s.service.GetSubmission(r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), messageFor(err, "Submission not found"))
		return
	}
	writeJSON(w, http.StatusOK, submission)
}

// handleConvertToText renders a JSON record as review text
func (s *Server) handleConvertToText(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTextSize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Error reading body")
		return
	}

	text, err := invoicetext.EncodeJSON(body)
	if err != nil {
		slog.Warn("Error rendering invoice data", "error", err)
		writeText(w, http.StatusUnprocessableEntity, invoicetext.EncodeFailureText)
		return
	}
	writeText(w, http.StatusOK, text)
}

// handleConvertToRecord decodes review text into a JSON record
func (s *Server) handleConvertToRecord(w http.ResponseWriter, r *http.Request) {
	record, err := invoicetext.DecodeReader(http.MaxBytesReader(w, r.Body, maxTextSize))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, record)
}

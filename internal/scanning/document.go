package scanning

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// invoicePrompt is sent to the LLM extractors along with the document image
const invoicePrompt = `You are reading an invoice. Extract the following fields exactly as they are printed on the document:

- InvoiceId: the invoice number or identifier
- InvoiceDate: the date the invoice was issued
- DueDate: the payment due date
- VendorName: the company issuing the invoice
- CustomerName: the company or person being billed
- CustomerAddress: the billing address of the customer, on a single line
- InvoiceTotal: the total amount due, including any currency symbol
- Items: every line item in the order it appears, each with Description, Quantity, UnitPrice and Amount

Return ONLY valid JSON in this exact format:
{
  "InvoiceId": "...",
  "InvoiceDate": "...",
  "DueDate": "...",
  "VendorName": "...",
  "CustomerName": "...",
  "CustomerAddress": "...",
  "InvoiceTotal": "...",
  "Items": [
    {"Description": "...", "Quantity": "...", "UnitPrice": "...", "Amount": "..."}
  ]
}

Important:
- Copy values as printed; do not reformat dates or amounts
- Use null for any field you cannot find
- Use an empty array when there are no line items
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

// toPNG normalizes a document to a single PNG image. PDFs are rendered from
// their first page; HEIC, JPEG and GIF are re-encoded. PNG input is returned unchanged.
func toPNG(data []byte, contentType string) ([]byte, error) {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))

	var (
		img image.Image
		err error
	)
	switch {
	case mimeType == "application/pdf":
		img, err = renderFirstPage(data)
	case isHEIC(data, mimeType):
		img, err = heic.Decode(bytes.NewReader(data))
		if err != nil {
			err = fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
	case mimeType == "image/png":
		return data, nil
	default:
		img, _, err = image.Decode(bytes.NewReader(data))
		if err != nil {
			err = fmt.Errorf("decoding image (supported: PDF, JPEG, PNG, GIF, HEIC): %w", err)
		}
	}
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func renderFirstPage(data []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}

// isHEIC checks the MIME type and the ftyp brand at offset 4
func isHEIC(data []byte, mimeType string) bool {
	if strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif") {
		return true
	}
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heif", "mif1", "msf1":
		return true
	}
	return false
}

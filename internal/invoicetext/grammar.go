package invoicetext

import (
	"errors"
	"strings"
)

// Field labels. Scalar labels are tested in declaration order, then item
// labels in declaration order; the first substring match wins.
const (
	LabelInvoiceID       = "Invoice ID"
	LabelInvoiceDate     = "Invoice Date"
	LabelDueDate         = "Due Date"
	LabelVendorName      = "Vendor Name"
	LabelCustomerName    = "Customer Name"
	LabelCustomerAddress = "Customer Address"
	LabelInvoiceTotal    = "Invoice Total"

	LabelDescription = "Description"
	LabelQuantity    = "Quantity"
	LabelUnitPrice   = "Unit Price"
	LabelAmount      = "Amount"
)

const (
	TitleInvoice   = "INVOICE INFORMATION"
	TitleLineItems = "LINE ITEMS"
	ItemPrefix     = "Item "
	NotAvailable   = "N/A"
	NoItems        = "No items found"

	// EncodeFailureText is shown in place of the text when a record cannot be rendered
	EncodeFailureText = "Error displaying data"

	bannerRune  = '═'
	bannerWidth = 43
	separator   = ":"

	scalarLabelWidth = 16
	itemLabelWidth   = 12
	itemIndent       = "  "
)

var (
	// ErrParse is returned when the decoder input cannot be treated as text
	ErrParse = errors.New("failed to parse invoice data")
	// ErrEncode is returned when the encoder input is not a usable record
	ErrEncode = errors.New("failed to render invoice data")
)

var banner = strings.Repeat(string(bannerRune), bannerWidth)

// extractValue returns the value after the first colon of a labelled line.
// Later colons belong to the value. N/A and blank values are absent.
func extractValue(line string) *string {
	parts := strings.Split(line, separator)
	if len(parts) < 2 {
		return nil
	}
	value := strings.TrimSpace(strings.Join(parts[1:], separator))
	if value == NotAvailable || value == "" {
		return nil
	}
	return &value
}

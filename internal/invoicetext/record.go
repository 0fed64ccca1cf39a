package invoicetext

import "strings"

// Record is the structured invoice exchanged with the extraction backend and
// the ERP endpoint. A nil field means the value is absent.
type Record struct {
	InvoiceId       *string    `json:"InvoiceId"`
	InvoiceDate     *string    `json:"InvoiceDate"`
	DueDate         *string    `json:"DueDate"`
	VendorName      *string    `json:"VendorName"`
	CustomerName    *string    `json:"CustomerName"`
	CustomerAddress *string    `json:"CustomerAddress"`
	InvoiceTotal    *string    `json:"InvoiceTotal"`
	Items           []LineItem `json:"Items"`
}

// LineItem is one invoice line in invoice order
type LineItem struct {
	Description *string `json:"Description"`
	Quantity    *string `json:"Quantity"`
	UnitPrice   *string `json:"UnitPrice"`
	Amount      *string `json:"Amount"`
}

// String returns a pointer to v, or nil when v is blank
func String(v string) *string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return &v
}

// Clone returns a deep copy of the record
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := &Record{
		InvoiceId:       clonePtr(r.InvoiceId),
		InvoiceDate:     clonePtr(r.InvoiceDate),
		DueDate:         clonePtr(r.DueDate),
		VendorName:      clonePtr(r.VendorName),
		CustomerName:    clonePtr(r.CustomerName),
		CustomerAddress: clonePtr(r.CustomerAddress),
		InvoiceTotal:    clonePtr(r.InvoiceTotal),
		Items:           make([]LineItem, 0, len(r.Items)),
	}
	for _, item := range r.Items {
		out.Items = append(out.Items, LineItem{
			Description: clonePtr(item.Description),
			Quantity:    clonePtr(item.Quantity),
			UnitPrice:   clonePtr(item.UnitPrice),
			Amount:      clonePtr(item.Amount),
		})
	}
	return out
}

func clonePtr(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}

// scalarFields lists the record's scalar fields in grammar order
func (r *Record) scalarFields() []field {
	return []field{
		{LabelInvoiceID, &r.InvoiceId},
		{LabelInvoiceDate, &r.InvoiceDate},
		{LabelDueDate, &r.DueDate},
		{LabelVendorName, &r.VendorName},
		{LabelCustomerName, &r.CustomerName},
		{LabelCustomerAddress, &r.CustomerAddress},
		{LabelInvoiceTotal, &r.InvoiceTotal},
	}
}

func (li *LineItem) fields() []field {
	return []field{
		{LabelDescription, &li.Description},
		{LabelQuantity, &li.Quantity},
		{LabelUnitPrice, &li.UnitPrice},
		{LabelAmount, &li.Amount},
	}
}

// field binds a grammar label to the record slot it fills
type field struct {
	label string
	value **string
}

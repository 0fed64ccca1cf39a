package scanning

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zombor/invoice-review/internal/invoicetext"
)

// looseString accepts a JSON string, number, boolean or null. LLMs do not
// reliably quote quantities and amounts.
type looseString struct {
	value *string
}

func (l *looseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		l.value = nil
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		l.value = invoicetext.String(strings.TrimSpace(s))
		return nil
	case bytes.Equal(data, []byte("true")), bytes.Equal(data, []byte("false")):
		l.value = invoicetext.String(string(data))
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("unsupported field value %s", data)
	}
	l.value = invoicetext.String(n.String())
	return nil
}

type extractedItem struct {
	Description looseString `json:"Description"`
	Quantity    looseString `json:"Quantity"`
	UnitPrice   looseString `json:"UnitPrice"`
	Amount      looseString `json:"Amount"`
}

type extractedInvoice struct {
	InvoiceId       looseString     `json:"InvoiceId"`
	InvoiceDate     looseString     `json:"InvoiceDate"`
	DueDate         looseString     `json:"DueDate"`
	VendorName      looseString     `json:"VendorName"`
	CustomerName    looseString     `json:"CustomerName"`
	CustomerAddress looseString     `json:"CustomerAddress"`
	InvoiceTotal    looseString     `json:"InvoiceTotal"`
	Items           []extractedItem `json:"Items"`
}

func (e *extractedInvoice) record() *invoicetext.Record {
	r := &invoicetext.Record{
		InvoiceId:       e.InvoiceId.value,
		InvoiceDate:     e.InvoiceDate.value,
		DueDate:         e.DueDate.value,
		VendorName:      e.VendorName.value,
		CustomerName:    e.CustomerName.value,
		CustomerAddress: e.CustomerAddress.value,
		InvoiceTotal:    e.InvoiceTotal.value,
		Items:           make([]invoicetext.LineItem, 0, len(e.Items)),
	}
	for _, item := range e.Items {
		r.Items = append(r.Items, invoicetext.LineItem{
			Description: item.Description.value,
			Quantity:    item.Quantity.value,
			UnitPrice:   item.UnitPrice.value,
			Amount:      item.Amount.value,
		})
	}
	return r
}

// parseInvoiceJSON parses the JSON object in an LLM response
func parseInvoiceJSON(text string) (*invoicetext.Record, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	end := strings.LastIndex(text, "}")
	if end < start {
		return nil, fmt.Errorf("invalid JSON object in response")
	}

	var data extractedInvoice
	if err := json.Unmarshal([]byte(text[start:end+1]), &data); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}
	return data.record(), nil
}

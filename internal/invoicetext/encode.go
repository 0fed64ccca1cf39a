package invoicetext

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Encode renders a record as the fixed-layout review text. It never fails;
// absent values render as N/A and a nil record renders as an empty one.
func Encode(r *Record) string {
	if r == nil {
		r = &Record{}
	}

	var b strings.Builder
	writeSection(&b, TitleInvoice, 11)
	for _, f := range r.scalarFields() {
		fmt.Fprintf(&b, "%-*s: %s\n", scalarLabelWidth, f.label, render(*f.value))
	}
	b.WriteString("\n")

	writeSection(&b, TitleLineItems, 14)
	if len(r.Items) == 0 {
		b.WriteString(NoItems + "\n")
		return b.String()
	}
	for i := range r.Items {
		fmt.Fprintf(&b, "%s%d:\n", ItemPrefix, i+1)
		for _, f := range r.Items[i].fields() {
			fmt.Fprintf(&b, "%s%-*s: %s\n", itemIndent, itemLabelWidth, f.label, render(*f.value))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// EncodeJSON renders a backend JSON body. Unknown keys are ignored and
// missing keys are absent.
func EncodeJSON(data []byte) (string, error) {
	var r *Record
	if err := json.Unmarshal(data, &r); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncode, err)
	}
	if r == nil {
		return "", fmt.Errorf("%w: not an object", ErrEncode)
	}
	return Encode(r), nil
}

func writeSection(b *strings.Builder, title string, indent int) {
	b.WriteString(banner + "\n")
	b.WriteString(strings.Repeat(" ", indent) + title + "\n")
	b.WriteString(banner + "\n\n")
}

// render folds line breaks so a value never spans lines
func render(v *string) string {
	if v == nil {
		return NotAvailable
	}
	s := strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(*v)
	if strings.TrimSpace(s) == "" {
		return NotAvailable
	}
	return s
}

package invoicetext

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// Decode recovers a record from review text that a person may have edited.
// Unrecognised lines are ignored and missing fields stay absent; the only
// failure is input that is not valid UTF-8 text.
func Decode(text string) (*Record, error) {
	if !utf8.ValidString(text) {
		return nil, ErrParse
	}

	r := &Record{Items: []LineItem{}}
	var current *LineItem
	inItems := false

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if strings.ContainsRune(line, bannerRune) || strings.Contains(line, TitleInvoice) || line == TitleLineItems {
			if strings.Contains(line, TitleLineItems) {
				inItems = true
			}
			continue
		}

		if !inItems {
			assign(line, r.scalarFields())
			continue
		}

		if strings.HasPrefix(line, ItemPrefix) {
			if current != nil {
				r.Items = append(r.Items, *current)
			}
			current = &LineItem{}
			continue
		}
		if current != nil {
			assign(line, current.fields())
		}
	}

	if current != nil {
		r.Items = append(r.Items, *current)
	}
	return r, nil
}

// DecodeReader reads all of rd and decodes it
func DecodeReader(rd io.Reader) (*Record, error) {
	data, err := io.ReadAll(rd)
	if err != nil {
		return nil, fmt.Errorf("%w: reading text: %v", ErrParse, err)
	}
	return Decode(string(data))
}

// assign stores the line's value in the first field whose label it contains
func assign(line string, fields []field) {
	for _, f := range fields {
		if strings.Contains(line, f.label) {
			*f.value = extractValue(line)
			return
		}
	}
}

package scanning

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/zombor/invoice-review/internal/invoicetext"
)

const (
	azureAPIVersion     = "2023-07-31"
	azureKeyHeader      = "Ocp-Apim-Subscription-Key"
	defaultAzureModel   = "prebuilt-invoice"
	defaultPollInterval = time.Second
	defaultPollAttempts = 30
)

// Azure implements the Extractor interface using the Azure Form Recognizer
// (Document Intelligence) prebuilt invoice model
type Azure struct {
	client       *resty.Client
	endpoint     string
	apiKey       string
	model        string
	pollInterval time.Duration
	pollAttempts int
}

// NewAzure creates a new Azure Extractor instance
func NewAzure(endpoint, apiKey, model string) (*Azure, error) {
	return NewAzureWithClient(endpoint, apiKey, model, resty.New().SetTimeout(60*time.Second), defaultPollInterval, defaultPollAttempts)
}

// NewAzureWithClient creates a new Azure Extractor with a custom HTTP client and polling schedule
func NewAzureWithClient(endpoint, apiKey, model string, client *resty.Client, pollInterval time.Duration, pollAttempts int) (*Azure, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("azure endpoint is required")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("azure api key is required")
	}
	if model == "" {
		model = defaultAzureModel
	}
	if pollAttempts <= 0 {
		pollAttempts = defaultPollAttempts
	}
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}

	return &Azure{
		client:       client,
		endpoint:     endpoint,
		apiKey:       apiKey,
		model:        model,
		pollInterval: pollInterval,
		pollAttempts: pollAttempts,
	}, nil
}

type azureField struct {
	Content     *string               `json:"content"`
	ValueArray  []azureField          `json:"valueArray"`
	ValueObject map[string]azureField `json:"valueObject"`
}

type azureAnalyzeResult struct {
	Status string `json:"status"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	AnalyzeResult struct {
		Documents []struct {
			Fields map[string]azureField `json:"fields"`
		} `json:"documents"`
	} `json:"analyzeResult"`
}

// ExtractInvoice submits the document for analysis and polls until the result is ready
func (a *Azure) ExtractInvoice(ctx context.Context, data []byte, contentType string) (*invoicetext.Record, error) {
	url := fmt.Sprintf("%sformrecognizer/documentModels/%s:analyze?api-version=%s", a.endpoint, a.model, azureAPIVersion)

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader(azureKeyHeader, a.apiKey).
		SetHeader("Content-Type", contentType).
		SetBody(data).
		Post(url)
	if err != nil {
		return nil, fmt.Errorf("calling azure analyze: %w", err)
	}
	if resp.StatusCode() != http.StatusAccepted {
		return nil, fmt.Errorf("azure API error (status %d): %s", resp.StatusCode(), resp.String())
	}

	resultURL := resp.Header().Get("Operation-Location")
	if resultURL == "" {
		return nil, fmt.Errorf("no operation location in azure response")
	}

	result, err := a.poll(ctx, resultURL)
	if err != nil {
		return nil, err
	}

	docs := result.AnalyzeResult.Documents
	if len(docs) == 0 {
		return nil, ErrNoInvoice
	}
	return azureRecord(docs[0].Fields), nil
}

func (a *Azure) poll(ctx context.Context, resultURL string) (*azureAnalyzeResult, error) {
	for attempt := 0; attempt < a.pollAttempts; attempt++ {
		resp, err := a.client.R().
			SetContext(ctx).
			SetHeader(azureKeyHeader, a.apiKey).
			Get(resultURL)
		if err != nil {
			return nil, fmt.Errorf("polling azure result: %w", err)
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, fmt.Errorf("azure API error (status %d): %s", resp.StatusCode(), resp.String())
		}

		var result azureAnalyzeResult
		if err := json.Unmarshal(resp.Body(), &result); err != nil {
			return nil, fmt.Errorf("decoding azure result: %w", err)
		}

		switch result.Status {
		case "succeeded":
			return &result, nil
		case "failed":
			if result.Error != nil {
				return nil, fmt.Errorf("%w: %s: %s", ErrExtractionFailed, result.Error.Code, result.Error.Message)
			}
			return nil, ErrExtractionFailed
		}

		slog.Debug("Azure analysis still running", "status", result.Status, "attempt", attempt+1)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(a.pollInterval):
		}
	}
	return nil, ErrTimeout
}

func azureRecord(fields map[string]azureField) *invoicetext.Record {
	r := &invoicetext.Record{
		InvoiceId:       azureContent(fields, "InvoiceId"),
		InvoiceDate:     azureContent(fields, "InvoiceDate"),
		DueDate:         azureContent(fields, "DueDate"),
		VendorName:      azureContent(fields, "VendorName"),
		CustomerName:    azureContent(fields, "CustomerName"),
		CustomerAddress: azureContent(fields, "CustomerAddress"),
		InvoiceTotal:    azureContent(fields, "InvoiceTotal"),
		Items:           []invoicetext.LineItem{},
	}
	for _, item := range fields["Items"].ValueArray {
		obj := item.ValueObject
		r.Items = append(r.Items, invoicetext.LineItem{
			Description: azureContent(obj, "Description"),
			Quantity:    azureContent(obj, "Quantity"),
			UnitPrice:   azureContent(obj, "UnitPrice"),
			Amount:      azureContent(obj, "Amount"),
		})
	}
	return r
}

func azureContent(fields map[string]azureField, name string) *string {
	f, ok := fields[name]
	if !ok || f.Content == nil {
		return nil
	}
	return invoicetext.String(*f.Content)
}

// Close is a no-op for the HTTP client
func (a *Azure) Close() error {
	return nil
}

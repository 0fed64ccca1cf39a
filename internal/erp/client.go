// Package erp forwards reviewed invoice records to the downstream ERP endpoint.
package erp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/zombor/invoice-review/internal/invoicetext"
)

// ErrRejected is returned when the endpoint answers with a non-2xx status
var ErrRejected = errors.New("failed to upload to ERP system")

// Result is the endpoint's answer to a submission
type Result struct {
	StatusCode int    `json:"status_code"`
	Body       string `json:"body"`
}

// Submitter sends a record downstream
type Submitter interface {
	Submit(ctx context.Context, record *invoicetext.Record) (*Result, error)
}

// Config holds the endpoint settings
type Config struct {
	URL        string
	Token      string
	Timeout    time.Duration
	RetryCount int
}

// Client implements Submitter with a JSON POST
type Client struct {
	resty *resty.Client
	url   string
}

// NewClient creates a new ERP client
func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("erp endpoint url is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil || r == nil {
				return false
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= http.StatusInternalServerError
		})
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}

	return &Client{resty: client, url: cfg.URL}, nil
}

// Submit posts the record as flat JSON
func (c *Client) Submit(ctx context.Context, record *invoicetext.Record) (*Result, error) {
	if record == nil {
		return nil, fmt.Errorf("record is required")
	}
	payload := record
	if payload.Items == nil {
		payload = record.Clone()
	}

	resp, err := c.resty.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetBody(payload).
		Post(c.url)
	if err != nil {
		return nil, fmt.Errorf("posting to erp: %w", err)
	}

	result := &Result{StatusCode: resp.StatusCode(), Body: resp.String()}
	if !resp.IsSuccess() {
		return result, fmt.Errorf("%w (status %d): %s", ErrRejected, resp.StatusCode(), resp.String())
	}
	return result, nil
}

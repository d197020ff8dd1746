// Package gateway contains the HTTP client for the external payment
// provider.  The provider exposes an invoice API: we create an invoice
// for a payment attempt, redirect the payer to the hosted invoice URL,
// and later receive the outcome on a webhook carrying the external_id
// we supplied here.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Client talks to the payment provider's REST API.  The API key is
// sent as the basic-auth username with an empty password, matching the
// provider's authentication scheme.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient builds a Client. timeout bounds every request including
// body read; callers decide how a timeout differs from a rejection.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// InvoiceRequest is the payload for creating an invoice.  ExternalID
// carries our payment reference so the webhook can be correlated back.
type InvoiceRequest struct {
	ExternalID  string `json:"external_id"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description,omitempty"`
	PayerEmail  string `json:"payer_email,omitempty"`
}

// Invoice is the provider's representation of a created invoice.
type Invoice struct {
	ID         string `json:"id"`
	ExternalID string `json:"external_id"`
	Status     string `json:"status"`
	InvoiceURL string `json:"invoice_url"`
	ExpiryDate string `json:"expiry_date,omitempty"`
}

// APIError is a non-2xx response from the provider.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway: status %d: %s", e.StatusCode, e.Body)
}

// IsTimeout reports whether err represents a request that may still be
// processing on the provider side.  Callers must not mark the payment
// failed on a timeout; the webhook remains the source of truth.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// CreateInvoice creates a hosted invoice for the given request.  Each
// call sends a fresh idempotency key, so a deliberate retry of a failed
// payment gets a new invoice under its existing reference instead of a
// replay of the rejected one.
func (c *Client) CreateInvoice(ctx context.Context, reqBody InvoiceRequest) (*Invoice, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("gateway: marshal invoice request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/invoices", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.apiKey, "")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Idempotency-Key", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	var inv Invoice
	if err := json.Unmarshal(body, &inv); err != nil {
		return nil, fmt.Errorf("gateway: decode invoice response: %w", err)
	}
	return &inv, nil
}

// GetInvoice fetches the current state of an invoice.  The provider
// resolves both its own invoice id and the external_id we supplied at
// creation, so callers can look up by payment reference.
func (c *Client) GetInvoice(ctx context.Context, invoiceID string) (*Invoice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/invoices/"+invoiceID, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.apiKey, "")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	var inv Invoice
	if err := json.Unmarshal(body, &inv); err != nil {
		return nil, fmt.Errorf("gateway: decode invoice response: %w", err)
	}
	return &inv, nil
}

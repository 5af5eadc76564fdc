// Package ledger posts received payments to the external accounting ledger.
//
// Posting is best effort from the point of view of the business core: the
// reconciliation engine wraps every call in apperr.Attempt and a failed post
// never un-pays an invoice.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vanderhaka/jarve-agency-sub002/internal/money"
)

// DefaultBaseURL is the accounting API root.
const DefaultBaseURL = "https://api.xero.com/api.xro/2.0"

// Payment is one payment to apply against a ledger invoice.
type Payment struct {
	// InvoiceRef is the ledger's id for the invoice.
	InvoiceRef string
	Amount     decimal.Decimal
	Date       time.Time
	// Reference identifies the payment on our side. It doubles as the
	// idempotency key so a retried post is not applied twice.
	Reference string
}

// Poster applies payments to the ledger.
type Poster interface {
	PostPayment(ctx context.Context, p Payment) error
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// Client posts payments over the ledger's REST API.
type Client struct {
	baseURL     string
	accessToken string
	tenantID    string
	accountCode string
	http        *http.Client
}

// NewClient creates a ledger client. accountCode is the bank account the
// payments are received into.
func NewClient(baseURL, accessToken, tenantID, accountCode string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		tenantID:    tenantID,
		accountCode: accountCode,
		http:        &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type paymentRequest struct {
	Invoice   invoiceRef  `json:"Invoice"`
	Account   accountRef  `json:"Account"`
	Date      string      `json:"Date"`
	Amount    json.Number `json:"Amount"`
	Reference string      `json:"Reference,omitempty"`
}

type invoiceRef struct {
	InvoiceID string `json:"InvoiceID"`
}

type accountRef struct {
	Code string `json:"Code"`
}

// PostPayment records p against its ledger invoice.
func (c *Client) PostPayment(ctx context.Context, p Payment) error {
	if p.InvoiceRef == "" {
		return fmt.Errorf("post payment: ledger invoice reference is required")
	}

	body, err := json.Marshal(paymentRequest{
		Invoice:   invoiceRef{InvoiceID: p.InvoiceRef},
		Account:   accountRef{Code: c.accountCode},
		Date:      p.Date.UTC().Format(time.DateOnly),
		Amount:    json.Number(money.Round(p.Amount).StringFixed(money.Places)),
		Reference: p.Reference,
	})
	if err != nil {
		return fmt.Errorf("post payment: encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/Payments", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post payment: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Xero-Tenant-Id", c.tenantID)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if p.Reference != "" {
		req.Header.Set("Idempotency-Key", p.Reference)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post payment to %s: %w", p.InvoiceRef, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("post payment to %s: status %d: %s", p.InvoiceRef, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

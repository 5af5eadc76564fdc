package payments

import (
	"encoding/json"
	"fmt"

	"github.com/vanderhaka/jarve-agency-sub002/internal/domain"
)

// Event types the reconciliation engine acts on.
const (
	EventCheckoutCompleted          = "checkout.session.completed"
	EventCheckoutAsyncSucceeded     = "checkout.session.async_payment_succeeded"
	EventCheckoutAsyncFailed        = "checkout.session.async_payment_failed"
	EventCheckoutExpired            = "checkout.session.expired"
	EventPaymentIntentPaymentFailed = "payment_intent.payment_failed"
)

// Checkout session states.
const (
	SessionOpen     = "open"
	SessionComplete = "complete"
	SessionExpired  = "expired"

	SessionPaid   = "paid"
	SessionUnpaid = "unpaid"
)

// Payment intent states.
const (
	IntentSucceeded             = "succeeded"
	IntentProcessing            = "processing"
	IntentCanceled              = "canceled"
	IntentRequiresPaymentMethod = "requires_payment_method"
)

// MetadataInvoiceID is the metadata key carrying our invoice id.
const MetadataInvoiceID = "invoice_id"

// CheckoutSession is the part of a checkout session we read.
// PaymentIntent is either an id or an expanded object; Ref accepts both.
type CheckoutSession struct {
	ID            string            `json:"id"`
	Status        string            `json:"status"`
	PaymentStatus string            `json:"payment_status"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	PaymentIntent domain.Ref        `json:"payment_intent"`
	Metadata      map[string]string `json:"metadata"`
}

// InvoiceID returns the correlation id stored in the session metadata.
func (s CheckoutSession) InvoiceID() string {
	return s.Metadata[MetadataInvoiceID]
}

// PaymentError is the processor's description of a failed attempt.
type PaymentError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PaymentIntent is the part of a payment intent we read.
type PaymentIntent struct {
	ID               string            `json:"id"`
	Status           string            `json:"status"`
	Amount           int64             `json:"amount"`
	AmountReceived   int64             `json:"amount_received"`
	Currency         string            `json:"currency"`
	Metadata         map[string]string `json:"metadata"`
	LastPaymentError *PaymentError     `json:"last_payment_error"`
}

// InvoiceID returns the correlation id stored in the intent metadata.
func (p PaymentIntent) InvoiceID() string {
	return p.Metadata[MetadataInvoiceID]
}

// FailureMessage returns the processor's message for the last failed
// attempt, or fallback when there is none.
func (p PaymentIntent) FailureMessage(fallback string) string {
	if p.LastPaymentError != nil && p.LastPaymentError.Message != "" {
		return p.LastPaymentError.Message
	}
	return fallback
}

// Event is a webhook notification. Data.Object holds the session or intent
// the event is about; decode it with Session or Intent.
type Event struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// Session decodes the event object as a checkout session.
func (e Event) Session() (CheckoutSession, error) {
	var s CheckoutSession
	if err := json.Unmarshal(e.Data.Object, &s); err != nil {
		return CheckoutSession{}, fmt.Errorf("decode checkout session from %s: %w", e.Type, err)
	}
	return s, nil
}

// Intent decodes the event object as a payment intent.
func (e Event) Intent() (PaymentIntent, error) {
	var p PaymentIntent
	if err := json.Unmarshal(e.Data.Object, &p); err != nil {
		return PaymentIntent{}, fmt.Errorf("decode payment intent from %s: %w", e.Type, err)
	}
	return p, nil
}

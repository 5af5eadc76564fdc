package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vanderhaka/jarve-agency-sub002/internal/apperr"
	"github.com/vanderhaka/jarve-agency-sub002/internal/clock"
	"github.com/vanderhaka/jarve-agency-sub002/internal/domain"
	"github.com/vanderhaka/jarve-agency-sub002/internal/ident"
	"github.com/vanderhaka/jarve-agency-sub002/internal/ledger"
	"github.com/vanderhaka/jarve-agency-sub002/internal/money"
	"github.com/vanderhaka/jarve-agency-sub002/internal/notify"
	"github.com/vanderhaka/jarve-agency-sub002/internal/payments"
	"github.com/vanderhaka/jarve-agency-sub002/internal/store"
)

// Store is the subset of the entity store reconciliation needs.
type Store interface {
	GetInvoice(ctx context.Context, id string) (domain.Invoice, error)
	ListStaleProcessing(ctx context.Context, cutoff time.Time, limit int) ([]domain.Invoice, error)
	MarkInvoiceProcessing(ctx context.Context, id string, sessionID domain.Ref, at time.Time) error
	RecordProviderRefs(ctx context.Context, id string, sessionID, intentID domain.Ref) error
	MarkInvoicePaid(ctx context.Context, id string, at time.Time) (bool, error)
	MarkInvoiceFailed(ctx context.Context, id, message string, at time.Time) (bool, error)
	InsertPayment(ctx context.Context, p domain.Payment) (bool, error)
}

// Provider reads payment state from the processor.
type Provider interface {
	FetchCheckoutSession(ctx context.Context, id string) (payments.CheckoutSession, error)
	FetchPaymentIntent(ctx context.Context, id string) (payments.PaymentIntent, error)
}

// Sources of a paid transition, recorded as the payment method.
const (
	SourceWebhook = "stripe_webhook"
	SourceSweep   = "stripe_sweep"
	SourceManual  = "manual"
)

// Side effect names reported in PaidResult.
const (
	EffectLedger = "ledger_post"
	EffectNotify = notify.EffectName
)

// Defaults for the sweep.
const (
	DefaultGraceWindow     = 5 * time.Minute
	DefaultProviderTimeout = 15 * time.Second
)

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithIDs sets the payment id generator.
func WithIDs(g ident.Generator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithNotifier sets where "invoice paid" events go.
func WithNotifier(n notify.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithLedger sets the ledger payments are posted to. Without one, posting
// is skipped.
func WithLedger(l ledger.Poster) Option {
	return func(e *Engine) { e.ledger = l }
}

// WithProvider sets the processor client the sweep reads from.
func WithProvider(p Provider) Option {
	return func(e *Engine) { e.provider = p }
}

// WithGraceWindow sets how long an invoice may sit in processing before the
// sweep checks it.
func WithGraceWindow(d time.Duration) Option {
	return func(e *Engine) { e.grace = d }
}

// WithProviderTimeout bounds each per-invoice provider lookup.
func WithProviderTimeout(d time.Duration) Option {
	return func(e *Engine) { e.providerTimeout = d }
}

// WithBatchLimit caps how many invoices one sweep checks. 0 means no cap.
func WithBatchLimit(n int) Option {
	return func(e *Engine) { e.batchLimit = n }
}

// Engine reconciles invoice payment status.
type Engine struct {
	store           Store
	provider        Provider
	ledger          ledger.Poster
	notifier        notify.Notifier
	clock           clock.Clock
	ids             ident.Generator
	logger          *slog.Logger
	grace           time.Duration
	providerTimeout time.Duration
	batchLimit      int
}

// New creates a reconciliation engine.
func New(s Store, opts ...Option) *Engine {
	e := &Engine{
		store:           s,
		clock:           clock.System{},
		ids:             ident.UUIDv7{},
		logger:          slog.Default(),
		grace:           DefaultGraceWindow,
		providerTimeout: DefaultProviderTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// PaidInput describes a payment that settles an invoice.
type PaidInput struct {
	InvoiceID string
	// Reference is the payment intent id, or a manual reference.
	Reference string
	Amount    decimal.Decimal
	// Method records which path saw the payment.
	Method string
	// SessionID, when known, is stored on the invoice.
	SessionID string
}

// PaidResult reports what MarkPaid did.
type PaidResult struct {
	Invoice domain.Invoice `json:"invoice"`
	// PaymentInserted is true when this call recorded the payment row.
	PaymentInserted bool `json:"payment_inserted"`
	// Transitioned is true only for the call that moved the invoice to paid.
	Transitioned bool `json:"transitioned"`
	// AmountMismatch is true when the settled amount differs from the
	// invoice total. The invoice is still marked paid.
	AmountMismatch bool                `json:"amount_mismatch,omitempty"`
	SideEffects    []apperr.SideEffect `json:"side_effects,omitempty"`
}

// EnsurePayment records a payment against an invoice at most once per
// reference. inserted=false means an earlier or concurrent call already
// recorded it; that is success, not an error.
func (e *Engine) EnsurePayment(ctx context.Context, invoiceID, reference string, amount decimal.Decimal, method string, date time.Time) (bool, error) {
	inserted, err := e.store.InsertPayment(ctx, domain.Payment{
		ID:          e.ids.NewID(),
		InvoiceID:   invoiceID,
		Amount:      money.Round(amount),
		PaymentDate: date,
		Method:      method,
		Reference:   reference,
		CreatedAt:   e.clock.Now(),
	})
	if err != nil {
		return false, apperr.Transient("record payment", err)
	}
	return inserted, nil
}

// MarkPaid records the payment and moves the invoice to paid. It is safe to
// call any number of times from either path; see the package doc.
func (e *Engine) MarkPaid(ctx context.Context, in PaidInput) (PaidResult, error) {
	reference := strings.TrimSpace(in.Reference)
	if reference == "" {
		return PaidResult{}, apperr.Validation("payment reference is required")
	}
	if in.Amount.IsNegative() {
		return PaidResult{}, apperr.Validation("payment amount must not be negative")
	}

	inv, err := e.loadInvoice(ctx, in.InvoiceID)
	if err != nil {
		return PaidResult{}, err
	}

	now := e.clock.Now()
	amount := in.Amount
	if amount.IsZero() {
		amount = inv.Total
	}

	res := PaidResult{AmountMismatch: !money.Round(amount).Equal(money.Round(inv.Total))}
	res.PaymentInserted, err = e.EnsurePayment(ctx, inv.ID, reference, amount, in.Method, now)
	if err != nil {
		return PaidResult{}, err
	}
	if res.AmountMismatch && res.PaymentInserted {
		e.logger.Warn("payment amount does not match invoice total",
			"invoice_id", inv.ID,
			"reference", reference,
			"amount", money.Round(amount).StringFixed(money.Places),
			"total", money.Round(inv.Total).StringFixed(money.Places),
			"method", in.Method)
	}

	var intentRef domain.Ref
	if in.Method != SourceManual {
		intentRef = domain.Ref(reference)
	}
	if err := e.store.RecordProviderRefs(ctx, inv.ID, domain.Ref(in.SessionID), intentRef); err != nil {
		return PaidResult{}, apperr.Transient("record provider refs", err)
	}

	res.Transitioned, err = e.store.MarkInvoicePaid(ctx, inv.ID, now)
	if err != nil {
		return PaidResult{}, apperr.Transient("mark invoice paid", err)
	}

	if res.Invoice, err = e.loadInvoice(ctx, inv.ID); err != nil {
		return PaidResult{}, err
	}

	if !res.Transitioned {
		e.logger.Debug("invoice already settled", "invoice_id", inv.ID, "reference", reference, "method", in.Method)
		return res, nil
	}

	e.logger.Info("invoice paid",
		"invoice_id", inv.ID, "reference", reference, "amount", amount.StringFixed(money.Places), "method", in.Method)

	if e.ledger != nil && res.Invoice.XeroInvoiceID.IsSet() {
		res.SideEffects = append(res.SideEffects, apperr.Attempt(e.logger, EffectLedger, func() error {
			return e.ledger.PostPayment(ctx, ledger.Payment{
				InvoiceRef: res.Invoice.XeroInvoiceID.String(),
				Amount:     amount,
				Date:       now,
				Reference:  reference,
			})
		}, "invoice_id", inv.ID))
	}

	res.SideEffects = append(res.SideEffects, notify.BestEffort(ctx, e.logger, e.notifier, notify.Event{
		Kind:     notify.InvoicePaid,
		EntityID: inv.ID,
		ClientID: res.Invoice.ClientID.String(),
		At:       now,
		Attrs: map[string]string{
			"reference": reference,
			"amount":    amount.StringFixed(money.Places),
		},
	}))
	return res, nil
}

// MarkFailed moves the invoice to failed with a readable error. A paid or
// refunded invoice is left alone and changed=false.
func (e *Engine) MarkFailed(ctx context.Context, invoiceID, message string) (bool, error) {
	if strings.TrimSpace(message) == "" {
		message = "payment failed"
	}
	changed, err := e.store.MarkInvoiceFailed(ctx, invoiceID, message, e.clock.Now())
	if errors.Is(err, store.ErrNotFound) {
		return false, apperr.NotFound("invoice", invoiceID)
	}
	if err != nil {
		return false, apperr.Transient("mark invoice failed", err)
	}
	if changed {
		e.logger.Info("invoice payment failed", "invoice_id", invoiceID, "error", message)
	} else {
		e.logger.Debug("failure ignored for settled invoice", "invoice_id", invoiceID)
	}
	return changed, nil
}

// MarkProcessing records that a checkout session was started for the
// invoice, which makes it a sweep candidate once the grace window passes.
func (e *Engine) MarkProcessing(ctx context.Context, invoiceID, sessionID string) error {
	err := e.store.MarkInvoiceProcessing(ctx, invoiceID, domain.Ref(sessionID), e.clock.Now())
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound("invoice", invoiceID)
	case errors.Is(err, store.ErrConflict):
		return apperr.Precondition(fmt.Sprintf("invoice %s is already settled", invoiceID))
	default:
		return apperr.Transient("mark invoice processing", err)
	}
}

func (e *Engine) loadInvoice(ctx context.Context, id string) (domain.Invoice, error) {
	inv, err := e.store.GetInvoice(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Invoice{}, apperr.NotFound("invoice", id)
	}
	if err != nil {
		return domain.Invoice{}, apperr.Transient("load invoice", err)
	}
	return inv, nil
}

package reconcile

import (
	"context"

	"github.com/vanderhaka/jarve-agency-sub002/internal/apperr"
	"github.com/vanderhaka/jarve-agency-sub002/internal/domain"
	"github.com/vanderhaka/jarve-agency-sub002/internal/money"
	"github.com/vanderhaka/jarve-agency-sub002/internal/payments"
)

// Action is what HandleEvent did with an event.
type Action string

const (
	ActionPaid    Action = "paid"
	ActionFailed  Action = "failed"
	ActionPending Action = "pending"
	ActionIgnored Action = "ignored"
)

// EventResult reports the outcome of one webhook event.
type EventResult struct {
	Action    Action      `json:"action"`
	InvoiceID string      `json:"invoice_id,omitempty"`
	Paid      *PaidResult `json:"paid,omitempty"`
	// Changed is true when the event moved the invoice to a new status.
	Changed bool `json:"changed"`
}

// HandleEvent applies a verified webhook event. Events of kinds we do not
// act on are acknowledged with ActionIgnored.
func (e *Engine) HandleEvent(ctx context.Context, ev payments.Event) (EventResult, error) {
	switch ev.Type {
	case payments.EventCheckoutCompleted, payments.EventCheckoutAsyncSucceeded:
		s, err := ev.Session()
		if err != nil {
			return EventResult{}, apperr.Validation("malformed checkout session event", err.Error())
		}
		inv, err := e.correlate(ctx, s.InvoiceID())
		if err != nil {
			return EventResult{}, err
		}
		return e.applySession(ctx, inv, s, SourceWebhook)

	case payments.EventCheckoutExpired, payments.EventCheckoutAsyncFailed:
		s, err := ev.Session()
		if err != nil {
			return EventResult{}, apperr.Validation("malformed checkout session event", err.Error())
		}
		inv, err := e.correlate(ctx, s.InvoiceID())
		if err != nil {
			return EventResult{}, err
		}
		if err := e.recordRefs(ctx, inv.ID, s.ID, s.PaymentIntent.String()); err != nil {
			return EventResult{}, err
		}
		msg := "checkout session expired"
		if ev.Type == payments.EventCheckoutAsyncFailed {
			msg = "asynchronous payment failed"
		}
		return e.fail(ctx, inv.ID, msg)

	case payments.EventPaymentIntentPaymentFailed:
		p, err := ev.Intent()
		if err != nil {
			return EventResult{}, apperr.Validation("malformed payment intent event", err.Error())
		}
		inv, err := e.correlate(ctx, p.InvoiceID())
		if err != nil {
			return EventResult{}, err
		}
		if err := e.recordRefs(ctx, inv.ID, "", p.ID); err != nil {
			return EventResult{}, err
		}
		return e.fail(ctx, inv.ID, p.FailureMessage("payment failed"))

	default:
		e.logger.Debug("webhook event ignored", "event_id", ev.ID, "type", ev.Type)
		return EventResult{Action: ActionIgnored}, nil
	}
}

// applySession settles the invoice when the session reports it paid. A
// completed session whose payment is still clearing stays pending.
func (e *Engine) applySession(ctx context.Context, inv domain.Invoice, s payments.CheckoutSession, method string) (EventResult, error) {
	if s.PaymentStatus != payments.SessionPaid {
		if err := e.recordRefs(ctx, inv.ID, s.ID, s.PaymentIntent.String()); err != nil {
			return EventResult{}, err
		}
		return EventResult{Action: ActionPending, InvoiceID: inv.ID}, nil
	}

	amount := inv.Total
	if s.AmountTotal > 0 {
		amount = money.FromMinorUnits(s.AmountTotal)
	}
	reference := s.PaymentIntent.String()
	if reference == "" {
		reference = s.ID
	}

	paid, err := e.MarkPaid(ctx, PaidInput{
		InvoiceID: inv.ID,
		Reference: reference,
		Amount:    amount,
		Method:    method,
		SessionID: s.ID,
	})
	if err != nil {
		return EventResult{}, err
	}
	return EventResult{Action: ActionPaid, InvoiceID: inv.ID, Paid: &paid, Changed: paid.Transitioned}, nil
}

func (e *Engine) fail(ctx context.Context, invoiceID, message string) (EventResult, error) {
	changed, err := e.MarkFailed(ctx, invoiceID, message)
	if err != nil {
		return EventResult{}, err
	}
	return EventResult{Action: ActionFailed, InvoiceID: invoiceID, Changed: changed}, nil
}

// correlate resolves the invoice an event is about.
func (e *Engine) correlate(ctx context.Context, invoiceID string) (domain.Invoice, error) {
	if invoiceID == "" {
		return domain.Invoice{}, apperr.Validation("event has no invoice_id metadata")
	}
	return e.loadInvoice(ctx, invoiceID)
}

func (e *Engine) recordRefs(ctx context.Context, invoiceID, sessionID, intentID string) error {
	if err := e.store.RecordProviderRefs(ctx, invoiceID, domain.Ref(sessionID), domain.Ref(intentID)); err != nil {
		return apperr.Transient("record provider refs", err)
	}
	return nil
}

package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/vanderhaka/jarve-agency-sub002/internal/apperr"
	"github.com/vanderhaka/jarve-agency-sub002/internal/domain"
	"github.com/vanderhaka/jarve-agency-sub002/internal/money"
	"github.com/vanderhaka/jarve-agency-sub002/internal/payments"
)

// SweepResult counts what one sweep did.
type SweepResult struct {
	Checked      int `json:"checked"`
	Paid         int `json:"paid"`
	MarkedFailed int `json:"marked_failed"`
	Pending      int `json:"pending"`
	// Failed counts invoices whose check errored; they are retried next sweep.
	Failed int `json:"failed"`
}

// ErrNoProvider is returned by Sweep when no processor client is configured.
var ErrNoProvider = errors.New("reconcile: no payment provider configured")

// Sweep checks every invoice that has been in processing longer than the
// grace window against the processor. A failure on one invoice is logged
// and counted and the sweep moves on to the next.
func (e *Engine) Sweep(ctx context.Context) (SweepResult, error) {
	if e.provider == nil {
		return SweepResult{}, ErrNoProvider
	}

	cutoff := e.clock.Now().Add(-e.grace)
	stale, err := e.store.ListStaleProcessing(ctx, cutoff, e.batchLimit)
	if err != nil {
		return SweepResult{}, apperr.Transient("list processing invoices", err)
	}

	var res SweepResult
	for _, inv := range stale {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Checked++

		action, err := e.checkInvoice(ctx, inv)
		if err != nil {
			res.Failed++
			e.logger.Error("sweep check failed", "invoice_id", inv.ID, "error", err)
			continue
		}
		switch action {
		case ActionPaid:
			res.Paid++
		case ActionFailed:
			res.MarkedFailed++
		default:
			res.Pending++
		}
	}

	e.logger.Info("sweep finished",
		"checked", res.Checked, "paid", res.Paid, "marked_failed", res.MarkedFailed,
		"pending", res.Pending, "failed", res.Failed)
	return res, nil
}

// checkInvoice looks the invoice up at the processor under its own timeout.
func (e *Engine) checkInvoice(ctx context.Context, inv domain.Invoice) (Action, error) {
	ctx, cancel := context.WithTimeout(ctx, e.providerTimeout)
	defer cancel()

	intentID := inv.PaymentIntentID.String()

	if inv.CheckoutSessionID.IsSet() {
		s, err := e.provider.FetchCheckoutSession(ctx, inv.CheckoutSessionID.String())
		if err != nil {
			return "", err
		}
		if id := s.InvoiceID(); id != "" && id != inv.ID {
			return "", fmt.Errorf("session %s belongs to invoice %s", s.ID, id)
		}
		if s.PaymentStatus == payments.SessionPaid {
			res, err := e.applySession(ctx, inv, s, SourceSweep)
			if err != nil {
				return "", err
			}
			return res.Action, nil
		}
		if s.Status == payments.SessionExpired {
			if _, err := e.MarkFailed(ctx, inv.ID, "checkout session expired"); err != nil {
				return "", err
			}
			return ActionFailed, nil
		}
		if s.PaymentIntent.IsSet() {
			intentID = s.PaymentIntent.String()
		}
	}

	if intentID == "" {
		e.logger.Warn("processing invoice has no provider reference", "invoice_id", inv.ID)
		return ActionPending, nil
	}

	p, err := e.provider.FetchPaymentIntent(ctx, intentID)
	if err != nil {
		return "", err
	}
	switch p.Status {
	case payments.IntentSucceeded:
		amount := inv.Total
		if p.AmountReceived > 0 {
			amount = money.FromMinorUnits(p.AmountReceived)
		}
		if _, err := e.MarkPaid(ctx, PaidInput{
			InvoiceID: inv.ID,
			Reference: p.ID,
			Amount:    amount,
			Method:    SourceSweep,
		}); err != nil {
			return "", err
		}
		return ActionPaid, nil
	case payments.IntentCanceled:
		if _, err := e.MarkFailed(ctx, inv.ID, p.FailureMessage("payment canceled")); err != nil {
			return "", err
		}
		return ActionFailed, nil
	case payments.IntentRequiresPaymentMethod:
		if _, err := e.MarkFailed(ctx, inv.ID, p.FailureMessage("payment requires a new payment method")); err != nil {
			return "", err
		}
		return ActionFailed, nil
	default:
		return ActionPending, nil
	}
}

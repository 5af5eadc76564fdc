package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vanderhaka/jarve-agency-sub002/internal/domain"
)

const invoiceColumns = `id, client_id, project_id, milestone_id, subtotal, gst_amount, total,
	payment_status, payment_status_updated_at, checkout_session_id, payment_intent_id,
	xero_invoice_id, last_payment_error, created_at`

const paymentColumns = `id, invoice_id, amount, payment_date, method, reference, created_at`

// notSettled excludes paid and refunded invoices from every later status
// write.
const notSettled = `(payment_status IS NULL OR payment_status NOT IN ('paid', 'refunded'))`

// CreateInvoice inserts an invoice. An invoice for a milestone that already
// has one is not inserted and inserted=false.
func (s *Store) CreateInvoice(ctx context.Context, inv domain.Invoice) (bool, error) {
	result, err := s.db.NamedExecContext(ctx, `
		INSERT INTO invoices (`+invoiceColumns+`)
		VALUES (:id, :client_id, :project_id, :milestone_id, :subtotal, :gst_amount, :total,
			:payment_status, :payment_status_updated_at, :checkout_session_id, :payment_intent_id,
			:xero_invoice_id, :last_payment_error, :created_at)
		ON CONFLICT DO NOTHING
	`, inv)
	if err != nil {
		return false, fmt.Errorf("create invoice: %w", err)
	}
	ok, err := inserted(result)
	if err != nil {
		return false, fmt.Errorf("create invoice: %w", err)
	}
	return ok, nil
}

// GetInvoice returns the invoice with the given id.
func (s *Store) GetInvoice(ctx context.Context, id string) (domain.Invoice, error) {
	var inv domain.Invoice
	err := s.getOne(ctx, &inv, "invoice", `SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`, id)
	return inv, err
}

// GetInvoiceByMilestone returns the invoice raised for a milestone.
func (s *Store) GetInvoiceByMilestone(ctx context.Context, milestoneID string) (domain.Invoice, error) {
	var inv domain.Invoice
	err := s.getOne(ctx, &inv, "invoice by milestone",
		`SELECT `+invoiceColumns+` FROM invoices WHERE milestone_id = ?`, milestoneID)
	return inv, err
}

// ListInvoices returns every invoice ordered by creation.
func (s *Store) ListInvoices(ctx context.Context) ([]domain.Invoice, error) {
	var invoices []domain.Invoice
	err := s.db.SelectContext(ctx, &invoices,
		`SELECT `+invoiceColumns+` FROM invoices ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	return invoices, nil
}

// ListStaleProcessing returns invoices in processing whose status has not
// changed since before cutoff, oldest first. An invoice with no status
// timestamp counts as stale. limit <= 0 means no limit.
func (s *Store) ListStaleProcessing(ctx context.Context, cutoff time.Time, limit int) ([]domain.Invoice, error) {
	var candidates []domain.Invoice
	err := s.db.SelectContext(ctx, &candidates, `
		SELECT `+invoiceColumns+` FROM invoices
		WHERE payment_status = ?
		ORDER BY payment_status_updated_at ASC, id ASC
	`, domain.PaymentProcessing)
	if err != nil {
		return nil, fmt.Errorf("list stale processing: %w", err)
	}

	// Compared in Go: stored timestamps are text with variable-width fractions.
	stale := make([]domain.Invoice, 0, len(candidates))
	for _, inv := range candidates {
		if inv.PaymentStatusUpdatedAt != nil && !inv.PaymentStatusUpdatedAt.Before(cutoff) {
			continue
		}
		stale = append(stale, inv)
		if limit > 0 && len(stale) == limit {
			break
		}
	}
	return stale, nil
}

// MarkInvoiceProcessing records that a checkout was started for the invoice.
func (s *Store) MarkInvoiceProcessing(ctx context.Context, id string, sessionID domain.Ref, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE invoices
		SET payment_status = ?, payment_status_updated_at = ?,
			checkout_session_id = COALESCE(?, checkout_session_id)
		WHERE id = ? AND `+notSettled+`
	`, domain.PaymentProcessing, at, sessionID, id)
	if err != nil {
		return fmt.Errorf("mark invoice processing: %w", err)
	}
	if err := s.requireChanged(ctx, result, "invoices", id); err != nil {
		return fmt.Errorf("mark invoice processing: %w", err)
	}
	return nil
}

// RecordProviderRefs stores the checkout-session and payment-intent ids the
// provider reported. Unset refs leave the stored value alone.
func (s *Store) RecordProviderRefs(ctx context.Context, id string, sessionID, intentID domain.Ref) error {
	if !sessionID.IsSet() && !intentID.IsSet() {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE invoices
		SET checkout_session_id = COALESCE(?, checkout_session_id),
			payment_intent_id = COALESCE(?, payment_intent_id)
		WHERE id = ?
	`, sessionID, intentID, id)
	if err != nil {
		return fmt.Errorf("record provider refs: %w", err)
	}
	return nil
}

// SetInvoiceLedgerRef links the invoice to its record in the external
// ledger.
func (s *Store) SetInvoiceLedgerRef(ctx context.Context, id string, ref domain.Ref) error {
	result, err := s.db.ExecContext(ctx, `UPDATE invoices SET xero_invoice_id = ? WHERE id = ?`, ref, id)
	if err != nil {
		return fmt.Errorf("set invoice ledger ref: %w", err)
	}
	if err := s.requireChanged(ctx, result, "invoices", id); err != nil {
		return fmt.Errorf("set invoice ledger ref: %w", err)
	}
	return nil
}

// MarkInvoicePaid moves the invoice to paid and clears any stored error.
// changed is true only for the call that performed the transition; an
// invoice already paid or refunded is left untouched.
func (s *Store) MarkInvoicePaid(ctx context.Context, id string, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE invoices
		SET payment_status = ?, payment_status_updated_at = ?, last_payment_error = ''
		WHERE id = ? AND `+notSettled+`
	`, domain.PaymentPaid, at, id)
	if err != nil {
		return false, fmt.Errorf("mark invoice paid: %w", err)
	}
	return s.changedOrMissing(ctx, result, id, "mark invoice paid")
}

// MarkInvoiceFailed moves the invoice to failed with a readable error.
// A paid or refunded invoice is never downgraded and changed=false.
func (s *Store) MarkInvoiceFailed(ctx context.Context, id, message string, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE invoices
		SET payment_status = ?, payment_status_updated_at = ?, last_payment_error = ?
		WHERE id = ? AND `+notSettled+`
	`, domain.PaymentFailed, at, message, id)
	if err != nil {
		return false, fmt.Errorf("mark invoice failed: %w", err)
	}
	return s.changedOrMissing(ctx, result, id, "mark invoice failed")
}

func (s *Store) changedOrMissing(ctx context.Context, result sql.Result, id, op string) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if n > 0 {
		return true, nil
	}
	if _, err := s.GetInvoice(ctx, id); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return false, nil
}

// InsertPayment records a payment unless one already exists for the same
// (invoice, reference) pair. inserted=false means the payment was already
// handled by an earlier or concurrent call.
func (s *Store) InsertPayment(ctx context.Context, p domain.Payment) (bool, error) {
	result, err := s.db.NamedExecContext(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES (:id, :invoice_id, :amount, :payment_date, :method, :reference, :created_at)
		ON CONFLICT(invoice_id, reference) DO NOTHING
	`, p)
	if err != nil {
		return false, fmt.Errorf("insert payment: %w", err)
	}
	ok, err := inserted(result)
	if err != nil {
		return false, fmt.Errorf("insert payment: %w", err)
	}
	return ok, nil
}

// ListPayments returns the payments recorded against an invoice.
func (s *Store) ListPayments(ctx context.Context, invoiceID string) ([]domain.Payment, error) {
	var payments []domain.Payment
	err := s.db.SelectContext(ctx, &payments, `
		SELECT `+paymentColumns+` FROM payments
		WHERE invoice_id = ?
		ORDER BY created_at ASC, id ASC
	`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return payments, nil
}

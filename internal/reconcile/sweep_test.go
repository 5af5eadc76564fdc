package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanderhaka/jarve-agency-sub002/internal/domain"
	"github.com/vanderhaka/jarve-agency-sub002/internal/notify"
	"github.com/vanderhaka/jarve-agency-sub002/internal/payments"
	"github.com/vanderhaka/jarve-agency-sub002/internal/testutil"
)

func TestSweep_FailureOnOneInvoiceDoesNotStopTheBatch(t *testing.T) {
	f := newFixture(t)
	f.seedInvoice(t, "inv-1", domain.PaymentProcessing, testutil.Epoch, "cs_1")
	f.seedInvoice(t, "inv-2", domain.PaymentProcessing, testutil.Epoch, "cs_2")
	f.seedInvoice(t, "inv-3", domain.PaymentProcessing, testutil.Epoch, "cs_3")
	f.seedInvoice(t, "inv-4", domain.PaymentProcessing, testutil.Epoch, "cs_4")
	f.seedInvoice(t, "inv-5", domain.PaymentProcessing, testutil.Epoch.Add(8*time.Minute), "cs_5")

	f.provider.errs["cs_1"] = errors.New("connection reset")
	f.provider.sessions["cs_2"] = paidSession("cs_2", "inv-2", "pi_2", 11000)
	f.provider.sessions["cs_3"] = payments.CheckoutSession{ID: "cs_3", Status: payments.SessionExpired}
	f.provider.sessions["cs_4"] = payments.CheckoutSession{ID: "cs_4", Status: payments.SessionOpen}

	f.clock.Advance(10 * time.Minute)
	res, err := f.engine.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, SweepResult{Checked: 4, Paid: 1, MarkedFailed: 1, Pending: 1, Failed: 1}, res)

	assert.Equal(t, domain.PaymentProcessing, f.invoice(t, "inv-1").PaymentStatus)
	assert.Equal(t, domain.PaymentPaid, f.invoice(t, "inv-2").PaymentStatus)
	assert.Equal(t, domain.PaymentFailed, f.invoice(t, "inv-3").PaymentStatus)
	assert.Equal(t, "checkout session expired", f.invoice(t, "inv-3").LastPaymentError)
	assert.Equal(t, domain.PaymentProcessing, f.invoice(t, "inv-4").PaymentStatus)
	assert.Equal(t, domain.PaymentProcessing, f.invoice(t, "inv-5").PaymentStatus, "inside the grace window")
	assert.NotContains(t, f.provider.calls, "cs_5")
}

func TestSweep_FallsBackToPaymentIntent(t *testing.T) {
	tests := []struct {
		name   string
		intent payments.PaymentIntent
		want   domain.PaymentStatus
		errMsg string
	}{
		{
			name:   "succeeded",
			intent: payments.PaymentIntent{ID: "pi_1", Status: payments.IntentSucceeded, AmountReceived: 11000},
			want:   domain.PaymentPaid,
		},
		{
			name:   "canceled",
			intent: payments.PaymentIntent{ID: "pi_1", Status: payments.IntentCanceled},
			want:   domain.PaymentFailed,
			errMsg: "payment canceled",
		},
		{
			name: "requires payment method",
			intent: payments.PaymentIntent{ID: "pi_1", Status: payments.IntentRequiresPaymentMethod,
				LastPaymentError: &payments.PaymentError{Message: "Your card has expired."}},
			want:   domain.PaymentFailed,
			errMsg: "Your card has expired.",
		},
		{
			name:   "still processing",
			intent: payments.PaymentIntent{ID: "pi_1", Status: payments.IntentProcessing},
			want:   domain.PaymentProcessing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.seedInvoice(t, "inv-1", domain.PaymentProcessing, testutil.Epoch, "")
			require.NoError(t, f.store.RecordProviderRefs(context.Background(), "inv-1", "", "pi_1"))
			f.provider.intents["pi_1"] = tt.intent

			f.clock.Advance(time.Hour)
			res, err := f.engine.Sweep(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 1, res.Checked)

			inv := f.invoice(t, "inv-1")
			assert.Equal(t, tt.want, inv.PaymentStatus)
			assert.Equal(t, tt.errMsg, inv.LastPaymentError)
		})
	}
}

func TestSweep_OpenSessionChecksItsIntent(t *testing.T) {
	f := newFixture(t)
	f.seedInvoice(t, "inv-1", domain.PaymentProcessing, testutil.Epoch, "cs_1")
	f.provider.sessions["cs_1"] = payments.CheckoutSession{
		ID: "cs_1", Status: payments.SessionComplete, PaymentStatus: payments.SessionUnpaid, PaymentIntent: "pi_1",
	}
	f.provider.intents["pi_1"] = payments.PaymentIntent{ID: "pi_1", Status: payments.IntentSucceeded, AmountReceived: 11000}

	f.clock.Advance(10 * time.Minute)
	res, err := f.engine.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Paid)
	assert.Equal(t, []string{"cs_1", "pi_1"}, f.provider.calls)

	ps := f.payments(t, "inv-1")
	require.Len(t, ps, 1)
	assert.Equal(t, SourceSweep, ps[0].Method)
}

func TestSweep_SessionForAnotherInvoiceIsAnError(t *testing.T) {
	f := newFixture(t)
	f.seedInvoice(t, "inv-1", domain.PaymentProcessing, testutil.Epoch, "cs_1")
	f.provider.sessions["cs_1"] = paidSession("cs_1", "inv-99", "pi_1", 11000)

	f.clock.Advance(10 * time.Minute)
	res, err := f.engine.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, domain.PaymentProcessing, f.invoice(t, "inv-1").PaymentStatus)
}

func TestSweep_ThenWebhookConverge(t *testing.T) {
	f := newFixture(t)
	f.seedInvoice(t, "inv-1", domain.PaymentProcessing, testutil.Epoch, "cs_1")
	f.provider.sessions["cs_1"] = paidSession("cs_1", "inv-1", "pi_1", 11000)

	f.clock.Advance(10 * time.Minute)
	res, err := f.engine.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Paid)

	ev, err := f.engine.HandleEvent(context.Background(), event(t, payments.EventCheckoutCompleted, paidSessionCS1))
	require.NoError(t, err)
	assert.Equal(t, ActionPaid, ev.Action)
	assert.False(t, ev.Changed)
	require.NotNil(t, ev.Paid)
	assert.False(t, ev.Paid.PaymentInserted)

	assert.Len(t, f.payments(t, "inv-1"), 1)
	assert.Equal(t, 1, f.notifier.Count(notify.InvoicePaid))

	again, err := f.engine.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, again, "paid invoices are no longer candidates")
}

func TestSweep_PerInvoiceTimeout(t *testing.T) {
	f := newFixture(t, WithProvider(blockingProvider{}), WithProviderTimeout(20*time.Millisecond))
	f.seedInvoice(t, "inv-1", domain.PaymentProcessing, testutil.Epoch, "cs_1")
	f.seedInvoice(t, "inv-2", domain.PaymentProcessing, testutil.Epoch, "cs_2")

	f.clock.Advance(10 * time.Minute)
	res, err := f.engine.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Checked: 2, Failed: 2}, res)
}

func TestSweep_BatchLimit(t *testing.T) {
	f := newFixture(t, WithBatchLimit(1))
	f.seedInvoice(t, "inv-1", domain.PaymentProcessing, testutil.Epoch, "cs_1")
	f.seedInvoice(t, "inv-2", domain.PaymentProcessing, testutil.Epoch, "cs_2")
	f.provider.sessions["cs_1"] = paidSession("cs_1", "inv-1", "pi_1", 11000)
	f.provider.sessions["cs_2"] = paidSession("cs_2", "inv-2", "pi_2", 11000)

	f.clock.Advance(10 * time.Minute)
	res, err := f.engine.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Checked)
}

func TestSweep_RequiresProvider(t *testing.T) {
	f := newFixture(t, WithProvider(nil))
	_, err := f.engine.Sweep(context.Background())
	assert.ErrorIs(t, err, ErrNoProvider)
}

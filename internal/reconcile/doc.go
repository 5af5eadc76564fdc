// Package reconcile keeps invoice payment status in step with the payment
// processor.
//
// Two paths write the same facts. The push path (HandleEvent) applies
// webhook events as they arrive. The pull path (Sweep) periodically asks the
// processor about invoices that have sat in processing past a grace window,
// which covers missed or delayed webhooks.
//
// Both paths converge on MarkPaid. The payment row is keyed by (invoice,
// payment intent) and inserted with ON CONFLICT DO NOTHING, and the move to
// paid is a conditional UPDATE, so however many times and in whatever order
// the two paths run there is one payment row and one paid transition. Only
// the call that performed the transition posts to the ledger and emits the
// "invoice paid" notification, both best effort.
//
// A paid or refunded invoice is never downgraded.
package reconcile

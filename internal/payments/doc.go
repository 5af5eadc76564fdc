// Package payments talks to the card payment processor.
//
// It has two halves. Client fetches checkout sessions and payment intents
// over the processor's REST API, which the reconciliation sweep uses to
// pull the truth for invoices stuck in processing. ParseWebhook verifies
// and decodes the signed events the processor pushes.
//
// Amounts are reported by the processor in minor units (cents). Callers
// convert with money.FromMinorUnits before comparing or storing them.
package payments

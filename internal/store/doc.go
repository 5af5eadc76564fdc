// Package store provides SQLite-backed durable storage for agency records:
// leads, clients and their contacts, projects, documents and portal access
// tokens, billing milestones, invoices and payments.
//
// # Idempotency anchors
//
// Writes that may be repeated by retries or by two concurrent paths are
// INSERT ... ON CONFLICT DO NOTHING against a uniqueness constraint, and
// report whether this call inserted the row:
//   - clients: email among non-deleted rows (conversion find-or-create)
//   - client_users: (client_id, email)
//   - invoices: milestone_id (one invoice per milestone)
//   - payments: (invoice_id, reference), the convergence point of the
//     webhook and sweep reconciliation paths
//
// State changes are conditional updates guarded by the state the caller
// observed. A guard that no longer holds yields ErrConflict, so exactly one
// of two racing callers performs a transition.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Rows map onto the internal/domain structs through sqlx db tags. Optional
// references scan as domain.Ref, amounts as decimal.Decimal.
package store

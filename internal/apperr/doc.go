// Package apperr is the error taxonomy shared by the agencyops core.
//
// Every core operation returns either nil or an *Error carrying one of four
// codes:
//
//   - VALIDATION: missing or invalid input, reported verbatim, not retried
//   - NOT_FOUND: record missing or hidden by an ownership/token check
//   - PRECONDITION: wrong state for the requested transition
//   - TRANSIENT: store or provider failure, logged, safe to retry
//
// Best-effort side effects (client-user creation, ledger posting,
// notification dispatch) are never errors. They are returned as SideEffect
// values with NonFatal set so a failure is visible without failing the
// operation.
package apperr

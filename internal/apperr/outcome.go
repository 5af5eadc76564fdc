package apperr

import (
	"errors"
	"log/slog"
)

// SideEffect records a best-effort step that an operation attempted.
// A failed SideEffect never fails the operation; it is carried in the
// result so callers and tests can see that it was attempted.
type SideEffect struct {
	Name     string `json:"name"`
	NonFatal bool   `json:"non_fatal"`
	Err      error  `json:"-"`
}

// Failed reports whether the side effect was attempted and did not succeed.
func (s SideEffect) Failed() bool {
	return s.Err != nil
}

// Attempt runs fn as a named best-effort step. A failure is logged at warn
// level with attrs and returned inside the SideEffect, never as an error.
func Attempt(logger *slog.Logger, name string, fn func() error, attrs ...any) SideEffect {
	err := fn()
	if err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("best-effort step failed", append([]any{"step", name, "error", err}, attrs...)...)
	}
	return SideEffect{Name: name, NonFatal: true, Err: err}
}

// FailedSideEffects returns the names of side effects that failed.
func FailedSideEffects(effects []SideEffect) []string {
	var names []string
	for _, s := range effects {
		if s.Failed() {
			names = append(names, s.Name)
		}
	}
	return names
}

// Outcome is the structured {success, message} shape every public operation
// is rendered as at the boundary.
type Outcome struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Code    Code     `json:"code,omitempty"`
	Reasons []string `json:"reasons,omitempty"`
}

// OK builds a successful outcome.
func OK(message string) Outcome {
	return Outcome{Success: true, Message: message}
}

// FromError renders err as a failed outcome. Transient causes are not
// exposed; the caller gets a generic message.
func FromError(err error) Outcome {
	var e *Error
	if !errors.As(err, &e) {
		return Outcome{Success: false, Message: "internal error, please retry", Code: CodeTransient}
	}
	if e.Code == CodeTransient {
		return Outcome{Success: false, Message: e.Message, Code: e.Code}
	}
	return Outcome{Success: false, Message: e.Message, Code: e.Code, Reasons: e.Reasons}
}

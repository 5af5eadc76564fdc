package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/vanderhaka/jarve-agency-sub002/internal/apperr"
)

// Process exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the engine refused, or scenarios failed
	ExitCommandError = 2 // bad config, unopenable database, missing provider
)

// ExitError carries the exit code a command should end the process with.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError returns an ExitError with no cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError returns an ExitError caused by err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the code of the first ExitError in err's chain, or
// ExitFailure when there is none.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		return ExitFailure
	}
	return exitErr.Code
}

// CLIResponse is what every command prints in json format. RunID matches
// the run_id attribute on the invocation's log lines.
type CLIResponse struct {
	Status string      `json:"status"` // ok | error
	RunID  string      `json:"run_id,omitempty"`
	Data   interface{} `json:"data,omitempty"`
	Error  *CLIError   `json:"error,omitempty"`
}

// CLIError is the error half of a CLIResponse. Code is an outcome code
// such as VALIDATION or PRECONDITION.
type CLIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// OutputFormatter writes command results as text or json.
type OutputFormatter struct {
	Format string
	Writer io.Writer
	// ErrWriter receives diagnostics so they never mix into json output.
	// Nil means Writer.
	ErrWriter io.Writer
	Verbose   bool
	RunID     string
}

// Success prints data. Text mode prints it with its default formatting.
func (f *OutputFormatter) Success(data interface{}) error {
	if f.Format != "json" {
		_, err := fmt.Fprintln(f.Writer, data)
		return err
	}
	return f.encode(CLIResponse{Status: "ok", Data: data})
}

// Error prints an error. Text mode shows details only with --verbose.
func (f *OutputFormatter) Error(code, message string, details interface{}) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Outcome renders an engine error with its outcome code and returns an
// ExitError carrying ExitFailure. Reasons are passed as details.
func (f *OutputFormatter) Outcome(err error) error {
	out := apperr.FromError(err)
	var details interface{}
	if len(out.Reasons) > 0 {
		details = out.Reasons
	}
	if ferr := f.Error(string(out.Code), out.Message, details); ferr != nil {
		return ferr
	}
	return WrapExitError(ExitFailure, out.Message, err)
}

// VerboseLog prints a diagnostic line when --verbose is set.
func (f *OutputFormatter) VerboseLog(format string, args ...interface{}) {
	if f.Verbose {
		fmt.Fprintf(f.diag(), format+"\n", args...)
	}
}

func (f *OutputFormatter) diag() io.Writer {
	if f.ErrWriter == nil {
		return f.Writer
	}
	return f.ErrWriter
}

func (f *OutputFormatter) encode(resp CLIResponse) error {
	resp.RunID = f.RunID
	return json.NewEncoder(f.Writer).Encode(resp)
}

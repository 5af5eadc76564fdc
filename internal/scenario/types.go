package scenario

import (
	"github.com/vanderhaka/jarve-agency-sub002/internal/apperr"
)

// Scenario is one parsed scenario file.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Settings overrides engine configuration for this run.
	Settings Settings `yaml:"settings,omitempty"`

	// Provider holds the checkout sessions and payment intents the sweep
	// reads. Objects use the processor's JSON field names.
	Provider ProviderFixture `yaml:"provider,omitempty"`

	// Setup steps seed state and must succeed.
	Setup []Step `yaml:"setup,omitempty"`

	// Steps are the traced flow.
	Steps []Step `yaml:"steps"`

	Assertions []Assertion `yaml:"assertions"`
}

// Settings are the engine options a scenario may change.
type Settings struct {
	// GSTRate is the default tax rate. Zero means 0.10.
	GSTRate               float64 `yaml:"gst_rate,omitempty"`
	AutoInvoiceOnComplete bool    `yaml:"auto_invoice_on_complete,omitempty"`
	RequireSignedProposal bool    `yaml:"require_signed_proposal,omitempty"`
	// GraceWindow is a Go duration string, e.g. "5m".
	GraceWindow string `yaml:"grace_window,omitempty"`
}

// ProviderFixture is the processor state served to the sweep.
type ProviderFixture struct {
	Sessions map[string]map[string]any `yaml:"sessions,omitempty"`
	Intents  map[string]map[string]any `yaml:"intents,omitempty"`
}

// Step is one operation.
type Step struct {
	// Op names the operation, e.g. "convert_lead".
	Op string `yaml:"op"`

	Args map[string]any `yaml:"args,omitempty"`

	// Save binds the id the step produced to a variable.
	Save string `yaml:"save,omitempty"`

	// Expect checks the outcome. Nil means the step must succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect is a subset match on a step outcome.
type Expect struct {
	Success bool        `yaml:"success"`
	Code    apperr.Code `yaml:"code,omitempty"`
	Message string      `yaml:"message,omitempty"`
}

// Assertion validates final state.
type Assertion struct {
	// Type is one of final_state, payment_count, notify_count, trace_count.
	Type string `yaml:"type"`

	// Table and ID select the row for final_state.
	Table string `yaml:"table,omitempty"`
	ID    string `yaml:"id,omitempty"`

	// Expect holds field values for final_state, compared by JSON name.
	Expect map[string]any `yaml:"expect,omitempty"`

	// InvoiceID is used by payment_count.
	InvoiceID string `yaml:"invoice_id,omitempty"`

	// Kind is the notification kind for notify_count.
	Kind string `yaml:"kind,omitempty"`

	// Op is the step operation for trace_count. Only successful steps count.
	Op string `yaml:"op,omitempty"`

	Count int `yaml:"count,omitempty"`
}

// Assertion types.
const (
	AssertFinalState   = "final_state"
	AssertPaymentCount = "payment_count"
	AssertNotifyCount  = "notify_count"
	AssertTraceCount   = "trace_count"
)

// TraceEvent is the rendered outcome of one step.
type TraceEvent struct {
	Seq     int         `json:"seq"`
	Op      string      `json:"op"`
	Success bool        `json:"success"`
	Code    apperr.Code `json:"code,omitempty"`
	Message string      `json:"message"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass   bool         `json:"pass"`
	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{Pass: true, Trace: []TraceEvent{}}
}

// AddError records a failure.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

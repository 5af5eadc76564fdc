package scenario

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vanderhaka/jarve-agency-sub002/internal/apperr"
	"github.com/vanderhaka/jarve-agency-sub002/internal/conversion"
	"github.com/vanderhaka/jarve-agency-sub002/internal/document"
	"github.com/vanderhaka/jarve-agency-sub002/internal/ident"
	"github.com/vanderhaka/jarve-agency-sub002/internal/milestone"
	"github.com/vanderhaka/jarve-agency-sub002/internal/money"
	"github.com/vanderhaka/jarve-agency-sub002/internal/notify"
	"github.com/vanderhaka/jarve-agency-sub002/internal/payments"
	"github.com/vanderhaka/jarve-agency-sub002/internal/reconcile"
	"github.com/vanderhaka/jarve-agency-sub002/internal/store"
	"github.com/vanderhaka/jarve-agency-sub002/internal/testutil"
)

// Runner executes scenarios. Each run gets a fresh in-memory store, so
// runs are isolated from each other and from any real database.
type Runner struct {
	logger *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the logger handed to the engines. Output is discarded by
// default.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// NewRunner creates a Runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes s with a default Runner.
func Run(ctx context.Context, s *Scenario) (*Result, error) {
	return NewRunner().Run(ctx, s)
}

// Run executes s. A setup failure or an infrastructure error aborts the run
// and is returned as an error; failed expectations and assertions are
// reported in the Result.
func (r *Runner) Run(ctx context.Context, s *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	rn := newRun(st, s, r.logger)

	for i, step := range s.Setup {
		if _, _, err := rn.exec(ctx, step); err != nil {
			return nil, fmt.Errorf("setup[%d] %s: %w", i, step.Op, err)
		}
	}

	result := NewResult()
	for i, step := range s.Steps {
		msg, _, err := rn.exec(ctx, step)
		ev := TraceEvent{Seq: i + 1, Op: step.Op, Success: err == nil, Message: msg}
		if err != nil {
			out := apperr.FromError(err)
			ev.Code = out.Code
			ev.Message = out.Message
		}
		result.Trace = append(result.Trace, ev)
		for _, e := range checkExpect(i, step, ev, err) {
			result.AddError(e)
		}
	}

	for _, e := range rn.evaluate(ctx, s.Assertions, result.Trace) {
		result.AddError(e)
	}
	return result, nil
}

func checkExpect(i int, step Step, ev TraceEvent, err error) []string {
	where := fmt.Sprintf("steps[%d] %s", i, step.Op)
	if step.Expect == nil {
		if err != nil {
			return []string{fmt.Sprintf("%s: unexpected failure: %v", where, err)}
		}
		return nil
	}
	var errs []string
	if ev.Success != step.Expect.Success {
		errs = append(errs, fmt.Sprintf("%s: expected success=%t, got %t (%s)", where, step.Expect.Success, ev.Success, ev.Message))
	}
	if step.Expect.Code != "" && ev.Code != step.Expect.Code {
		errs = append(errs, fmt.Sprintf("%s: expected code %s, got %q", where, step.Expect.Code, ev.Code))
	}
	if step.Expect.Message != "" && ev.Message != step.Expect.Message {
		errs = append(errs, fmt.Sprintf("%s: expected message %q, got %q", where, step.Expect.Message, ev.Message))
	}
	return errs
}

// run is the state of one scenario execution.
type run struct {
	store    *store.Store
	clock    *testutil.DeterministicClock
	notifier *notify.Recorder
	fixture  ProviderFixture
	vars     map[string]string

	conversion *conversion.Engine
	documents  *document.Engine
	milestones *milestone.Engine
	reconcile  *reconcile.Engine
}

func newRun(st *store.Store, s *Scenario, logger *slog.Logger) *run {
	clk := testutil.NewDeterministicClock()
	rec := &notify.Recorder{}
	tokens := ident.NewSequence("tok")

	gst := money.DefaultGSTRate
	if s.Settings.GSTRate > 0 {
		gst = decimal.NewFromFloat(s.Settings.GSTRate)
	}
	grace := reconcile.DefaultGraceWindow
	if s.Settings.GraceWindow != "" {
		// validated on load
		grace, _ = time.ParseDuration(s.Settings.GraceWindow)
	}

	rn := &run{
		store:    st,
		clock:    clk,
		notifier: rec,
		fixture:  s.Provider,
		vars:     make(map[string]string),
	}
	rn.conversion = conversion.New(st,
		conversion.WithClock(clk),
		conversion.WithIDs(ident.NewSequence("cv")),
		conversion.WithLogger(logger),
		conversion.WithRequireSignedProposal(s.Settings.RequireSignedProposal))
	rn.documents = document.New(st,
		document.WithClock(clk),
		document.WithIDs(ident.NewSequence("doc")),
		document.WithLogger(logger),
		document.WithNotifier(rec),
		document.WithTokenSource(func() (string, error) { return tokens.NewID(), nil }))
	rn.milestones = milestone.New(st,
		milestone.WithClock(clk),
		milestone.WithIDs(ident.NewSequence("ms")),
		milestone.WithLogger(logger),
		milestone.WithGSTRate(gst),
		milestone.WithAutoInvoice(s.Settings.AutoInvoiceOnComplete))
	rn.reconcile = reconcile.New(st,
		reconcile.WithClock(clk),
		reconcile.WithIDs(ident.NewSequence("pay")),
		reconcile.WithLogger(logger),
		reconcile.WithNotifier(rec),
		reconcile.WithProvider(rn),
		reconcile.WithGraceWindow(grace))
	return rn
}

// exec runs one step and returns its success message and produced id.
func (rn *run) exec(ctx context.Context, step Step) (string, string, error) {
	op := operations[step.Op]
	resolved, err := rn.resolve(step.Args)
	if err != nil {
		return "", "", err
	}
	a, _ := resolved.(map[string]any)
	msg, id, err := op(ctx, rn, args(a))
	if err != nil {
		return "", "", err
	}
	if step.Save != "" {
		rn.vars[step.Save] = id
	}
	return msg, id, nil
}

// resolve replaces "$name" strings with saved ids, recursively.
func (rn *run) resolve(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return map[string]any{}, nil
	case string:
		if !strings.HasPrefix(x, "$") {
			return x, nil
		}
		id, ok := rn.vars[x[1:]]
		if !ok {
			return nil, apperr.Validation(fmt.Sprintf("unknown variable %s", x))
		}
		return id, nil
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			r, err := rn.resolve(item)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			r, err := rn.resolve(item)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return v, nil
	}
}

// FetchCheckoutSession serves a session from the scenario's provider
// fixture.
func (rn *run) FetchCheckoutSession(_ context.Context, id string) (payments.CheckoutSession, error) {
	var s payments.CheckoutSession
	err := rn.fixtureObject(rn.fixture.Sessions, "checkout session", id, &s)
	return s, err
}

// FetchPaymentIntent serves an intent from the scenario's provider fixture.
func (rn *run) FetchPaymentIntent(_ context.Context, id string) (payments.PaymentIntent, error) {
	var pi payments.PaymentIntent
	err := rn.fixtureObject(rn.fixture.Intents, "payment intent", id, &pi)
	return pi, err
}

func (rn *run) fixtureObject(objects map[string]map[string]any, kind, id string, dest any) error {
	raw, ok := objects[id]
	if !ok {
		return &payments.APIError{StatusCode: http.StatusNotFound, Type: "invalid_request_error", Message: fmt.Sprintf("no such %s: %s", kind, id)}
	}
	resolved, err := rn.resolve(raw)
	if err != nil {
		return err
	}
	obj := resolved.(map[string]any)
	if _, ok := obj["id"]; !ok {
		obj["id"] = id
	}
	return convert(obj, dest)
}

// convert maps a decoded YAML object onto a JSON-tagged struct.
func convert(obj any, dest any) error {
	b, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("encode fixture: %w", err)
	}
	if err := json.Unmarshal(b, dest); err != nil {
		return fmt.Errorf("decode fixture: %w", err)
	}
	return nil
}

// args is a resolved step argument map.
type args map[string]any

func (a args) str(key string) string {
	v, ok := a[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func (a args) has(key string) bool {
	_, ok := a[key]
	return ok
}

func (a args) decimal(key string) (decimal.Decimal, error) {
	s := a.str(key)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, apperr.Validation(fmt.Sprintf("%s is not a number: %q", key, s))
	}
	return d, nil
}

func (a args) integer(key string) (int, error) {
	switch v := a[key].(type) {
	case int:
		return v, nil
	case nil:
		return 0, nil
	default:
		return 0, apperr.Validation(fmt.Sprintf("%s must be an integer", key))
	}
}

func (a args) list(key string) []string {
	items, _ := a[key].([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, fmt.Sprint(item))
	}
	return out
}

func (a args) duration(key string) (time.Duration, error) {
	d, err := time.ParseDuration(a.str(key))
	if err != nil {
		return 0, apperr.Validation(fmt.Sprintf("%s is not a duration", key))
	}
	return d, nil
}

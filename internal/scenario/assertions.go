package scenario

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/vanderhaka/jarve-agency-sub002/internal/notify"
	"github.com/vanderhaka/jarve-agency-sub002/internal/store"
)

// loader reads one row for final_state.
type loader func(ctx context.Context, st *store.Store, id string) (any, error)

var tables = map[string]loader{
	"leads": func(ctx context.Context, st *store.Store, id string) (any, error) {
		return st.GetLead(ctx, id)
	},
	"clients": func(ctx context.Context, st *store.Store, id string) (any, error) {
		return st.GetClient(ctx, id)
	},
	"contacts": func(ctx context.Context, st *store.Store, id string) (any, error) {
		return st.GetClientUser(ctx, id)
	},
	"projects": func(ctx context.Context, st *store.Store, id string) (any, error) {
		return st.GetProject(ctx, id)
	},
	"documents": func(ctx context.Context, st *store.Store, id string) (any, error) {
		return st.GetDocument(ctx, id)
	},
	"milestones": func(ctx context.Context, st *store.Store, id string) (any, error) {
		return st.GetMilestone(ctx, id)
	},
	"invoices": func(ctx context.Context, st *store.Store, id string) (any, error) {
		return st.GetInvoice(ctx, id)
	},
}

// evaluate checks every assertion and returns one message per failure.
func (rn *run) evaluate(ctx context.Context, assertions []Assertion, trace []TraceEvent) []string {
	var errs []string
	for i, a := range assertions {
		if err := rn.evaluateOne(ctx, a, trace); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d] %s: %v", i, a.Type, err))
		}
	}
	return errs
}

func (rn *run) evaluateOne(ctx context.Context, a Assertion, trace []TraceEvent) error {
	switch a.Type {
	case AssertFinalState:
		return rn.assertFinalState(ctx, a)

	case AssertPaymentCount:
		id, err := rn.resolveString(a.InvoiceID)
		if err != nil {
			return err
		}
		payments, err := rn.store.ListPayments(ctx, id)
		if err != nil {
			return err
		}
		return countMatches(len(payments), a.Count)

	case AssertNotifyCount:
		return countMatches(rn.notifier.Count(notify.Kind(a.Kind)), a.Count)

	case AssertTraceCount:
		n := 0
		for _, ev := range trace {
			if ev.Op == a.Op && ev.Success {
				n++
			}
		}
		return countMatches(n, a.Count)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func countMatches(got, want int) error {
	if got != want {
		return fmt.Errorf("expected %d, got %d", want, got)
	}
	return nil
}

func (rn *run) resolveString(s string) (string, error) {
	v, err := rn.resolve(s)
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (rn *run) assertFinalState(ctx context.Context, a Assertion) error {
	id, err := rn.resolveString(a.ID)
	if err != nil {
		return err
	}
	row, err := tables[a.Table](ctx, rn.store, id)
	if err != nil {
		return fmt.Errorf("load %s %s: %w", a.Table, id, err)
	}
	fields, err := toFields(row)
	if err != nil {
		return err
	}

	resolved, err := rn.resolve(a.Expect)
	if err != nil {
		return err
	}
	expect := resolved.(map[string]any)

	keys := make([]string, 0, len(expect))
	for k := range expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		got, ok := fields[k]
		if !ok && expect[k] != nil {
			return fmt.Errorf("%s %s has no field %q", a.Table, id, k)
		}
		if !valuesEqual(expect[k], got) {
			return fmt.Errorf("%s %s: %s = %v, expected %v", a.Table, id, k, display(got), expect[k])
		}
	}
	return nil
}

func toFields(row any) (map[string]any, error) {
	b, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, fmt.Errorf("decode row: %w", err)
	}
	return fields, nil
}

// valuesEqual compares a YAML value with a JSON-decoded field. Numbers and
// numeric strings compare as decimals so 110, 110.0 and "110.00" agree.
// A nil expectation matches a null or absent value.
func valuesEqual(want, got any) bool {
	if want == nil {
		return got == nil || got == ""
	}
	ws, gs := fmt.Sprint(want), fmt.Sprint(display(got))
	if ws == gs {
		return true
	}
	wd, werr := decimal.NewFromString(ws)
	gd, gerr := decimal.NewFromString(gs)
	return werr == nil && gerr == nil && wd.Equal(gd)
}

func display(v any) any {
	if v == nil {
		return "<nil>"
	}
	return v
}

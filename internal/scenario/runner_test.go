package scenario

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanderhaka/jarve-agency-sub002/internal/apperr"
	"github.com/vanderhaka/jarve-agency-sub002/internal/testutil"
)

func mustParse(t *testing.T, src string) *Scenario {
	t.Helper()
	s, err := Parse([]byte(src))
	require.NoError(t, err)
	return s
}

func runScenario(t *testing.T, src string) *Result {
	t.Helper()
	result, err := NewRunner(WithLogger(testutil.Logger(t))).Run(context.Background(), mustParse(t, src))
	require.NoError(t, err)
	return result
}

const projectSetup = `
setup:
  - op: create_client
    args: { id: c-1, name: Acme, email: ops@acme.io }
  - op: create_project
    args: { id: p-1, client_id: c-1, name: Site }
`

func TestRun_AutoInvoiceAndRateOverride(t *testing.T) {
	result := runScenario(t, `
name: auto_invoice
description: "complete raises the invoice with the milestone's own rate"
settings:
  auto_invoice_on_complete: true
  gst_rate: 0.15
`+projectSetup+`
steps:
  - op: create_milestone
    args: { project_id: p-1, title: Zero rated, amount: 200, gst_rate: 0 }
    save: m1
  - op: create_milestone
    args: { project_id: p-1, title: Default rated, amount: 200 }
    save: m2
  - op: complete_milestone
    args: { milestone_id: $m1 }
    save: inv1
  - op: complete_milestone
    args: { milestone_id: $m2 }
    save: inv2
  - op: complete_milestone
    args: { milestone_id: $m2 }
    expect: { success: true, message: milestone already invoiced }
assertions:
  - type: final_state
    table: invoices
    id: $inv1
    expect: { total: 200, gst_amount: 0 }
  - type: final_state
    table: invoices
    id: $inv2
    expect: { total: 230, gst_amount: 30, milestone_id: $m2 }
`)
	require.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "milestone invoiced for 200.00", result.Trace[2].Message)
	assert.Equal(t, "milestone invoiced for 230.00", result.Trace[3].Message)
}

func TestRun_MilestoneOrdering(t *testing.T) {
	result := runScenario(t, `
name: ordering
description: "insert shifts, reorder rewrites, delete closes the gap"
`+projectSetup+`
steps:
  - op: create_milestone
    args: { project_id: p-1, title: A, amount: 1 }
    save: a
  - op: create_milestone
    args: { project_id: p-1, title: B, amount: 1 }
    save: b
  - op: create_milestone
    args: { project_id: p-1, title: First, amount: 1, position: 0 }
    save: first
  - op: reorder_milestones
    args: { project_id: p-1, ids: [$b, $a] }
    expect: { success: false, code: VALIDATION }
  - op: reorder_milestones
    args: { project_id: p-1, ids: [$b, $a, $first] }
  - op: delete_milestone
    args: { milestone_id: $a }
  - op: transition_milestone
    args: { milestone_id: $b, status: invoiced }
    expect: { success: false, code: PRECONDITION, message: cannot move milestone from planned to invoiced }
assertions:
  - type: final_state
    table: milestones
    id: $b
    expect: { sort_order: 0 }
  - type: final_state
    table: milestones
    id: $first
    expect: { sort_order: 1 }
`)
	require.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "milestone created at 0", result.Trace[2].Message)
	assert.Equal(t, "3 milestones reordered", result.Trace[4].Message)
}

func TestRun_ReportsUnmetExpectations(t *testing.T) {
	result := runScenario(t, `
name: wrong_expectations
description: "every mismatch is reported"
steps:
  - op: convert_lead
    args: { lead_id: ghost }
  - op: convert_lead
    args: { lead_id: ghost }
    expect: { success: false, code: PRECONDITION }
  - op: convert_lead
    args: { lead_id: ghost }
    expect: { success: false, message: something else }
assertions:
  - type: trace_count
    op: convert_lead
    count: 1
`)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], "steps[0] convert_lead: unexpected failure")
	assert.Contains(t, result.Errors[1], "expected code PRECONDITION")
	assert.Contains(t, result.Errors[2], `expected message "something else"`)
	assert.Contains(t, result.Errors[3], "assertions[0] trace_count: expected 1, got 0")

	for _, ev := range result.Trace {
		assert.Equal(t, apperr.CodeNotFound, ev.Code)
		assert.Equal(t, "lead ghost not found", ev.Message)
	}
}

func TestRun_FinalStateMismatch(t *testing.T) {
	result := runScenario(t, `
name: state_mismatch
description: "final_state names the field that differs"
setup:
  - op: create_lead
    args: { id: lead-1, name: Jane, email: jane@acme.io }
steps:
  - op: advance_clock
    args: { by: 1h }
assertions:
  - type: final_state
    table: leads
    id: lead-1
    expect: { status: converted }
  - type: final_state
    table: leads
    id: lead-1
    expect: { nickname: JJ }
  - type: final_state
    table: leads
    id: lead-404
    expect: { status: new }
`)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], "status = new, expected converted")
	assert.Contains(t, result.Errors[1], `has no field "nickname"`)
	assert.Contains(t, result.Errors[2], "load leads lead-404")
}

func TestRun_UnknownVariableFailsTheStep(t *testing.T) {
	result := runScenario(t, `
name: unknown_var
description: "unbound variables are validation failures"
steps:
  - op: complete_milestone
    args: { milestone_id: $nope }
    expect: { success: false, code: VALIDATION, message: unknown variable $nope }
`)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_SetupFailureAborts(t *testing.T) {
	s := mustParse(t, `
name: bad_setup
description: "setup must succeed"
setup:
  - op: create_project
    args: { id: p-1, client_id: no-such-client, name: Site }
steps:
  - op: sweep
`)
	_, err := Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setup[0] create_project")
}

func TestRun_SweepWithMissingSessionCountsError(t *testing.T) {
	result := runScenario(t, `
name: missing_session
description: "a session the provider does not know is an error, not a status change"
setup:
  - op: create_invoice
    args: { id: inv-1, total: 10 }
steps:
  - op: start_checkout
    args: { invoice_id: inv-1, session_id: cs_gone }
  - op: advance_clock
    args: { by: 6m }
  - op: sweep
    expect: { success: true, message: "swept 1: 0 paid, 0 failed, 0 pending, 1 errors" }
assertions:
  - type: final_state
    table: invoices
    id: inv-1
    expect: { payment_status: processing }
`)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestValuesEqual(t *testing.T) {
	assert.True(t, valuesEqual(110, "110.00"))
	assert.True(t, valuesEqual("paid", "paid"))
	assert.True(t, valuesEqual(true, true))
	assert.True(t, valuesEqual(nil, nil))
	assert.True(t, valuesEqual(nil, ""))
	assert.False(t, valuesEqual(nil, "x"))
	assert.False(t, valuesEqual(110, "110.01"))
	assert.False(t, valuesEqual("paid", "failed"))
}

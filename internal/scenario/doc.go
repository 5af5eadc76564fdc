// Package scenario runs end-to-end business scenarios against a scratch
// agencyops store.
//
// A scenario is a YAML file that seeds records, drives the engines through a
// list of steps and then asserts on the final state:
//
//	name: convert_and_bill
//	description: "Lead converts, milestone is billed and paid once"
//	settings:
//	  gst_rate: 0.10
//	setup:
//	  - op: create_lead
//	    args: { id: lead-1, name: Jane, email: jane@acme.io }
//	steps:
//	  - op: convert_lead
//	    args: { lead_id: lead-1, project_name: Website }
//	    save: project
//	  - op: create_milestone
//	    args: { project_id: $project, title: Design, amount: 1000 }
//	    save: m1
//	    expect: { success: true }
//	assertions:
//	  - type: final_state
//	    table: leads
//	    id: lead-1
//	    expect: { status: converted }
//
// Every step records a TraceEvent with the rendered outcome. A step's "save"
// binds the id it produced to a name; "$name" in later arguments is replaced
// by that id.
//
// Runs are deterministic: the clock starts at testutil.Epoch and only moves
// on advance_clock, ids come from a sequence and access tokens are "tok-N".
// The trace can therefore be compared byte for byte with a golden file.
package scenario

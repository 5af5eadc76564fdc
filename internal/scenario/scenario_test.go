package scenario

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanderhaka/jarve-agency-sub002/internal/apperr"
)

func TestParse_Valid(t *testing.T) {
	s, err := Parse([]byte(`
name: minimal
description: "one step"
setup:
  - op: create_client
    args: { id: c-1, name: Acme, email: ops@acme.io }
steps:
  - op: convert_lead
    args: { lead_id: missing }
    expect: { success: false, code: NOT_FOUND }
assertions:
  - type: notify_count
    kind: invoice.paid
`))
	require.NoError(t, err)
	assert.Equal(t, "minimal", s.Name)
	require.Len(t, s.Steps, 1)
	require.NotNil(t, s.Steps[0].Expect)
	assert.Equal(t, apperr.CodeNotFound, s.Steps[0].Expect.Code)
	assert.False(t, s.Steps[0].Expect.Success)
	assert.Equal(t, "missing", s.Steps[0].Args["lead_id"])
}

func TestParse_RejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte(`
name: typo
description: "assertion misspelled"
steps:
  - op: sweep
assertion:
  - type: notify_count
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParse_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing name",
			yaml: "description: d\nsteps: [{op: sweep}]\n",
			want: "name is required",
		},
		{
			name: "missing description",
			yaml: "name: n\nsteps: [{op: sweep}]\n",
			want: "description is required",
		},
		{
			name: "no steps",
			yaml: "name: n\ndescription: d\n",
			want: "steps list is required",
		},
		{
			name: "unknown op",
			yaml: "name: n\ndescription: d\nsteps: [{op: launch_rocket}]\n",
			want: `steps[0]: unknown op "launch_rocket"`,
		},
		{
			name: "missing op in setup",
			yaml: "name: n\ndescription: d\nsetup: [{args: {}}]\nsteps: [{op: sweep}]\n",
			want: "setup[0]: op is required",
		},
		{
			name: "expect in setup",
			yaml: "name: n\ndescription: d\nsetup: [{op: sweep, expect: {success: true}}]\nsteps: [{op: sweep}]\n",
			want: "setup[0]: expect is not allowed",
		},
		{
			name: "code on success",
			yaml: "name: n\ndescription: d\nsteps: [{op: sweep, expect: {success: true, code: VALIDATION}}]\n",
			want: "code is only valid for failures",
		},
		{
			name: "bad gst rate",
			yaml: "name: n\ndescription: d\nsettings: {gst_rate: 1.5}\nsteps: [{op: sweep}]\n",
			want: "settings.gst_rate",
		},
		{
			name: "bad grace window",
			yaml: "name: n\ndescription: d\nsettings: {grace_window: soon}\nsteps: [{op: sweep}]\n",
			want: "settings.grace_window",
		},
		{
			name: "unknown assertion",
			yaml: "name: n\ndescription: d\nsteps: [{op: sweep}]\nassertions: [{type: vibes}]\n",
			want: `unknown assertion type "vibes"`,
		},
		{
			name: "final_state unknown table",
			yaml: "name: n\ndescription: d\nsteps: [{op: sweep}]\nassertions: [{type: final_state, table: widgets, id: w-1, expect: {a: 1}}]\n",
			want: `unknown table "widgets"`,
		},
		{
			name: "final_state without expect",
			yaml: "name: n\ndescription: d\nsteps: [{op: sweep}]\nassertions: [{type: final_state, table: leads, id: l-1}]\n",
			want: "expect is required for final_state",
		},
		{
			name: "payment_count without invoice",
			yaml: "name: n\ndescription: d\nsteps: [{op: sweep}]\nassertions: [{type: payment_count, count: 1}]\n",
			want: "invoice_id is required",
		},
		{
			name: "negative count",
			yaml: "name: n\ndescription: d\nsteps: [{op: sweep}]\nassertions: [{type: trace_count, op: sweep, count: -1}]\n",
			want: "count must be non-negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoad_Testdata(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, f := range files {
		s, err := Load(f)
		require.NoError(t, err, f)
		base := filepath.Base(f)
		assert.Equal(t, base[:len(base)-len(filepath.Ext(base))], s.Name, "scenario name must match file name")
	}
}

func TestGoldenPath(t *testing.T) {
	assert.Equal(t,
		filepath.Join("scenarios", "golden", "billing.golden"),
		GoldenPath(filepath.Join("scenarios", "billing.yaml")))
}

func TestWriteAndCompareGolden(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "demo.yaml")
	s := &Scenario{Name: "demo"}
	result := NewResult()
	result.Trace = append(result.Trace, TraceEvent{Seq: 1, Op: "sweep", Success: true, Message: "swept 0: 0 paid, 0 failed, 0 pending, 0 errors"})

	_, exists, err := CompareGolden(file, s, result)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, WriteGolden(file, s, result))
	data, err := os.ReadFile(GoldenPath(file))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"scenario_name": "demo"`)

	match, exists, err := CompareGolden(file, s, result)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.True(t, match)

	result.Trace[0].Message = "something else"
	match, _, err = CompareGolden(file, s, result)
	require.NoError(t, err)
	assert.False(t, match)
}

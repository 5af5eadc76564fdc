package scenario

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot is the golden form of a run: the scenario name and its trace.
type Snapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

// MarshalSnapshot renders the golden bytes for a run. The output is
// indented JSON with a trailing newline; field order is fixed by Snapshot
// and TraceEvent, so equal runs produce equal bytes.
func MarshalSnapshot(name string, result *Result) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(Snapshot{ScenarioName: name, Trace: result.Trace}); err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// RunWithGolden runs s and compares its trace with
// testdata/golden/{s.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/scenario -update
func RunWithGolden(t *testing.T, s *Scenario) *Result {
	t.Helper()

	result, err := Run(context.Background(), s)
	if err != nil {
		t.Fatalf("run scenario %s: %v", s.Name, err)
	}
	data, err := MarshalSnapshot(s.Name, result)
	if err != nil {
		t.Fatalf("snapshot %s: %v", s.Name, err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, s.Name, data)
	return result
}

// GoldenPath returns the golden file next to a scenario file:
// <dir>/golden/<base>.golden.
func GoldenPath(scenarioFile string) string {
	dir := filepath.Dir(scenarioFile)
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, "golden", name+".golden")
}

// WriteGolden stores the snapshot of result as the golden file for
// scenarioFile.
func WriteGolden(scenarioFile string, s *Scenario, result *Result) error {
	data, err := MarshalSnapshot(s.Name, result)
	if err != nil {
		return err
	}
	path := GoldenPath(scenarioFile)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}

// CompareGolden reports whether result matches the golden file for
// scenarioFile. The second return is false when no golden file exists.
func CompareGolden(scenarioFile string, s *Scenario, result *Result) (match, exists bool, err error) {
	want, err := os.ReadFile(GoldenPath(scenarioFile))
	if err != nil {
		if os.IsNotExist(err) {
			return false, false, nil
		}
		return false, false, fmt.Errorf("failed to read golden file: %w", err)
	}
	got, err := MarshalSnapshot(s.Name, result)
	if err != nil {
		return false, true, err
	}
	return bytes.Equal(want, got), true, nil
}

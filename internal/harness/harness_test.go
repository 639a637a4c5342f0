package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_Scenarios(t *testing.T) {
	files, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		t.Run(filepath.Base(file), func(t *testing.T) {
			scenario, result, err := RunFile(file)
			require.NoError(t, err)
			assert.True(t, result.Pass, "%s: %v", scenario.Name, result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestRunWithGolden_Basic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/golden_basic.yaml")
	require.NoError(t, err)

	result, err := RunWithGolden(t, scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass)
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/create_each.yaml")
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := MarshalTrace(first.Trace)
	require.NoError(t, err)
	b, err := MarshalTrace(second.Trace)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_ReportsMismatches(t *testing.T) {
	dir := t.TempDir()
	models, err := filepath.Abs("testdata/people.yaml")
	require.NoError(t, err)

	path := filepath.Join(dir, "mismatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: mismatch
description: every expectation here is wrong
models: [`+models+`]
steps:
  - name: wrong error
    query: {method: create, using: person, newRecord: {name: a}}
    expect: {error: NOT_UNIQUE}
  - name: wrong record
    query: {method: create, using: person, newRecord: {name: b}, meta: {fetch: true}}
    expect: {record: {name: c}}
  - name: unexpected failure
    query: {method: create, using: person, newRecord: {age: 3}}
  - name: wrong count
    query: {method: count, using: person}
    expect: {scalar: 5, statements: 2}
assertions:
  - {type: row_count, model: person, count: 9}
  - type: final_state
    model: person
    where: 'name = "zz"'
    expect: {age: 1}
  - {type: statement_count, count: 1}
  - {type: statement_contains, sql: DELETE}
`), 0o644))

	_, result, err := RunFile(path)
	require.NoError(t, err)
	assert.False(t, result.Pass)

	require.Len(t, result.Errors, 9)
	assert.Contains(t, result.Errors[0], "steps[0] (wrong error): expected error NOT_UNIQUE, got success")
	assert.Contains(t, result.Errors[1], "steps[1] (wrong record): record")
	assert.Contains(t, result.Errors[2], "steps[2] (unexpected failure): unexpected error")
	assert.Contains(t, result.Errors[3], "expected 2 statements, got 1")
	assert.Contains(t, result.Errors[4], "expected scalar 5, got 2")
	assert.Contains(t, result.Errors[5], "assertions[0]: row_count")
	assert.Contains(t, result.Errors[6], "no matching record")
	assert.Contains(t, result.Errors[7], "statement_count")
	assert.Contains(t, result.Errors[8], "statement_contains")
}

func TestRun_SetupFailureIsFatal(t *testing.T) {
	scenario := &Scenario{
		Name:        "bad_setup",
		Description: "setup violates NOT NULL",
		Models:      []string{"testdata/people.yaml"},
		Setup: []Step{
			{Query: map[string]any{"method": "create", "using": "person", "newRecord": map[string]any{"age": 1}}},
		},
		Steps: []Step{
			{Query: map[string]any{"method": "count", "using": "person"}},
		},
	}
	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setup[0]")
}

func TestRun_ModelLoadFailure(t *testing.T) {
	_, err := Run(&Scenario{
		Name:   "missing_models",
		Models: []string{"testdata/does-not-exist.yaml"},
		Steps:  []Step{{Query: map[string]any{"method": "count", "using": "person"}}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load models")
}

func TestRun_TraceSteps(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/golden_basic.yaml")
	require.NoError(t, err)
	result, err := Run(scenario)
	require.NoError(t, err)

	var steps []string
	for _, ev := range result.Trace {
		steps = append(steps, ev.Step)
	}
	assert.Equal(t, []string{"define", "steps[0]", "steps[0]", "steps[1]", "steps[2]"}, steps)
	assert.Equal(t, "id-2", result.Trace[1].Tx)
	assert.Empty(t, result.Trace[3].Tx)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

package harness

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/amlkernel/internal/journal"
)

func scenarioFiles(t *testing.T) []string {
	t.Helper()
	files, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)
	return files
}

func TestScenarioFilesPass(t *testing.T) {
	for _, path := range scenarioFiles(t) {
		t.Run(filepath.Base(path), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
			assert.Equal(t, len(scenario.Steps), result.Steps)
		})
	}
}

func TestGoldenTraces(t *testing.T) {
	for _, name := range []string{"class-lifecycle", "document-rollback"} {
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
		})
	}
}

func TestRunIsDeterministic(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "class-lifecycle.yaml"))
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)
	assert.Equal(t, first.Trace, second.Trace)
}

func TestStepFailuresAreReported(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: failures
steps:
  - op: create_document
    name: D
  - op: create_document
    name: D
  - op: create_library
    document: D
    kind: role
    name: r
    expect_error: UNIQUENESS_VIOLATION
  - op: delete_document
    document: missing
  - op: create_library
    document: D
    kind: bogus
    name: x
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], "steps[1] create_document: unexpected error")
	assert.Contains(t, result.Errors[0], "UNIQUENESS_VIOLATION")
	assert.Contains(t, result.Errors[1], "steps[2] create_library: expected error UNIQUENESS_VIOLATION, got success")
	assert.Contains(t, result.Errors[2], "not found")
	assert.Contains(t, result.Errors[3], "unknown hierarchy kind")
}

func TestAssertionFailuresAreReported(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: assertion-failures
steps:
  - op: create_document
    name: D
  - op: savepoint
    savepoint: s
assertions:
  - type: not_found
    document: D
  - type: resolves
    document: D
    kind: role
    path: lib/X
  - type: identifiers_empty
  - type: savepoints
    count: 1
  - type: event_count
    count: 3
  - type: trace_contains
    line: "created document E"
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.Len(t, result.Errors, 5)
	assert.Contains(t, result.Errors[0], "assertions[0]")
	assert.Contains(t, result.Errors[1], "role class lib/X")
	assert.Contains(t, result.Errors[2], "1 live")
	assert.Contains(t, result.Errors[3], "assertions[4]")
	assert.Contains(t, result.Errors[4], "Full trace:")
	assert.Contains(t, result.Errors[4], "[1] document-added document D")
}

func TestTeardownIsClean(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: teardown
steps:
  - op: create_document
    name: D
  - op: create_library
    document: D
    kind: interface
    name: lib
  - op: create_class
    document: D
    kind: interface
    library: lib
    name: c
  - op: savepoint
    savepoint: open
assertions:
  - type: savepoints
    count: 1
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
	assert.NotContains(t, result.Trace, "deleting document D", "teardown events stay out of the trace")
}

func TestRunWithJournal(t *testing.T) {
	j, err := journal.Open("")
	require.NoError(t, err)
	defer j.Close()

	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "document-rollback.yaml"))
	require.NoError(t, err)
	result, err := Run(scenario, WithJournal(j))
	require.NoError(t, err)
	require.True(t, result.Pass, strings.Join(result.Errors, "\n"))

	txs, err := j.Transactions(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, txs)
	assert.Equal(t, "document-rollback", txs[0].Session)

	n, err := j.CountChanges(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, len(result.Trace))
}

func TestRunMissingPolicy(t *testing.T) {
	scenario := &Scenario{
		Name:   "no-policy",
		Policy: filepath.Join(t.TempDir(), "absent.cue"),
		Steps:  []Step{{Op: OpCreateDocument, Name: "D"}},
	}
	_, err := Run(scenario)
	assert.Error(t, err)
}

func TestLoadScenarioResolvesPolicy(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "p.cue"), []byte("policy: {}"), 0o644))
	path := filepath.Join(dir, "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: s\npolicy: p.cue\nsteps:\n  - op: create_document\n    name: D\n"), 0o644))

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "p.cue"), scenario.Policy)

	require.NoError(t, os.Remove(filepath.Join(dir, "p.cue")))
	_, err = LoadScenario(path)
	assert.ErrorContains(t, err, "policy file")
}

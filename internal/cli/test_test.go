package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajgabz/mpf/internal/harness"
)

const scenariosDir = "../../testdata/scenarios"

const bumperScenario = `name: bumper
blocks:
  counters:
    bumper:
      count_events: bump
      count_complete_value: 2
      events_when_complete: bumper_done
steps:
  - post: bump
  - post: bump
    expect:
      emitted: [bumper_done]
`

func executeTest(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func writeScenario(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestTestFixtureScenarios(t *testing.T) {
	out, err := executeTest(t, "text", scenariosDir)
	require.NoError(t, err, out)

	assert.Contains(t, out, "✓ accrual_any_order\n")
	assert.Contains(t, out, "✓ chain_cycle\n")
	assert.Contains(t, out, "Test Summary: 6 passed, 0 failed, 6 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestFilter(t *testing.T) {
	out, err := executeTest(t, "text", scenariosDir, "--filter", "counter_*")
	require.NoError(t, err)

	assert.Contains(t, out, "counter_debounce")
	assert.Contains(t, out, "counter_dynamic_reset")
	assert.NotContains(t, out, "chain_cycle")
	assert.Contains(t, out, "Test Summary: 2 passed, 0 failed, 2 total")
}

func TestTestFilterMatchesNothing(t *testing.T) {
	out, err := executeTest(t, "text", scenariosDir, "--filter", "zzz*")
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTestInvalidFilter(t *testing.T) {
	_, err := executeTest(t, "text", scenariosDir, "--filter", "[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestSeveralPaths(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "bumper.yaml", bumperScenario)

	out, err := executeTest(t, "text", filepath.Join(scenariosDir, "chain_cycle.yaml"), path)
	require.NoError(t, err)
	assert.Contains(t, out, "Test Summary: 2 passed, 0 failed, 2 total")
}

func TestTestFailingScenario(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "bumper.yaml", bumperScenario+`assertions:
  - type: block_state
    block: bumper
    expect:
      count: 3
`)

	out, err := executeTest(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "1 scenario(s) failed")
	assert.Contains(t, out, "✗ bumper\n")
	assert.Contains(t, out, "bumper.count")
	assert.Contains(t, out, "Test Summary: 0 passed, 1 failed, 1 total")
}

func TestTestJSON(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "a_pass.yaml", bumperScenario)
	writeScenario(t, dir, "b_broken.yaml", "name: [oops")

	out, err := executeTest(t, "json", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string              `json:"status"`
		Data   harness.SuiteResult `json:"data"`
		Error  *CLIError           `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
	assert.Equal(t, 2, resp.Data.Total)
	assert.Equal(t, 1, resp.Data.Passed)
	require.Len(t, resp.Data.Scenarios, 2)
	assert.True(t, resp.Data.Scenarios[0].Pass)
	assert.False(t, resp.Data.Scenarios[1].Pass)
	assert.Contains(t, resp.Data.Scenarios[1].Errors[0], "failed to load scenario")
}

func TestTestUpdateWritesGolden(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "bumper.yaml", bumperScenario)

	out, err := executeTest(t, "text", "--update", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ bumper (golden updated)")

	golden, err := os.ReadFile(harness.GoldenPath(path))
	require.NoError(t, err)
	assert.Contains(t, string(golden), `"scenario_name":"bumper"`)

	out, err = executeTest(t, "text", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ bumper (golden)")
}

func TestTestGoldenMismatch(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "bumper.yaml", bumperScenario)
	require.NoError(t, os.MkdirAll(filepath.Dir(harness.GoldenPath(path)), 0755))
	require.NoError(t, os.WriteFile(harness.GoldenPath(path), []byte("{}"), 0644))

	out, err := executeTest(t, "text", dir)
	require.Error(t, err)
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTestMissingPath(t *testing.T) {
	out, err := executeTest(t, "text", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E006]")
}

func TestTestRequiresPath(t *testing.T) {
	_, err := executeTest(t, "text")
	require.Error(t, err)
}

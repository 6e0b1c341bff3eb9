package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const inlineCounter = `
name: inline_counter
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

func TestLoadScenario_ValidFile(t *testing.T) {
	scenario, err := LoadScenario("../../testdata/scenarios/counter_debounce.yaml")
	require.NoError(t, err)

	assert.Equal(t, "counter_debounce", scenario.Name)
	assert.Equal(t, filepath.Join("../../testdata/scenarios", "../logic_blocks.yaml"), scenario.Config)
	assert.Nil(t, scenario.Blocks)
	require.Len(t, scenario.Steps, 5)
	assert.Equal(t, "counter3_count", scenario.Steps[0].Post)
	assert.Equal(t, []string{"counter3_hit"}, scenario.Steps[0].Expect.Emitted)
	assert.Equal(t, "200ms", scenario.Steps[1].Advance)
	require.NotNil(t, scenario.Steps[2].Expect)
	assert.Empty(t, scenario.Steps[2].Expect.Emitted)
	assert.Len(t, scenario.Assertions, 2)
}

func TestLoadScenario_AbsoluteConfigKept(t *testing.T) {
	dir := t.TempDir()
	abs, err := filepath.Abs("../../testdata/logic_blocks.yaml")
	require.NoError(t, err)

	content := "name: abs\nconfig: " + abs + "\nsteps:\n  - post: counter1_count\n"
	path := filepath.Join(dir, "abs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, abs, scenario.Config)
}

func TestLoadScenario_FileNotFound(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_InlineBlocks(t *testing.T) {
	scenario, err := ParseScenario([]byte(inlineCounter))
	require.NoError(t, err)
	require.NotNil(t, scenario.Blocks)

	cfg, err := scenario.LoadConfig()
	require.NoError(t, err)
	require.Len(t, cfg.Blocks, 1)
	assert.Equal(t, "bumper", cfg.Blocks[0].Name)
}

func TestParseScenario_InlineBlocksKeepOrder(t *testing.T) {
	data := `
name: order
blocks:
  sequences:
    zeta:
      events: [z]
    alpha:
      events: [a]
steps:
  - post: a
`
	scenario, err := ParseScenario([]byte(data))
	require.NoError(t, err)

	cfg, err := scenario.LoadConfig()
	require.NoError(t, err)
	require.Len(t, cfg.Blocks, 2)
	assert.Equal(t, "zeta", cfg.Blocks[0].Name)
	assert.Equal(t, "alpha", cfg.Blocks[1].Name)
}

func TestParseScenario_InvalidBlocksFailAtLoad(t *testing.T) {
	data := `
name: bad_blocks
blocks:
  counters:
    c:
      count_events: x
      count_complete_value: 3
      colour: red
steps:
  - post: x
`
	scenario, err := ParseScenario([]byte(data))
	require.NoError(t, err)

	_, err = scenario.LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "colour")
}

func TestParseScenario_UnknownField(t *testing.T) {
	data := `
name: typo
config: x.yaml
step:
  - post: a
`
	_, err := ParseScenario([]byte(data))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing name",
			yaml:    "config: x.yaml\nsteps:\n  - post: a\n",
			wantErr: "name is required",
		},
		{
			name:    "no blocks",
			yaml:    "name: n\nsteps:\n  - post: a\n",
			wantErr: "one of config or blocks is required",
		},
		{
			name:    "config and blocks",
			yaml:    "name: n\nconfig: x.yaml\nblocks:\n  counters: {}\nsteps:\n  - post: a\n",
			wantErr: "mutually exclusive",
		},
		{
			name:    "no steps",
			yaml:    "name: n\nconfig: x.yaml\n",
			wantErr: "at least one step is required",
		},
		{
			name:    "negative max_steps",
			yaml:    "name: n\nconfig: x.yaml\nmax_steps: -1\nsteps:\n  - post: a\n",
			wantErr: "max_steps must not be negative",
		},
		{
			name:    "empty step",
			yaml:    "name: n\nconfig: x.yaml\nsteps:\n  - {}\n",
			wantErr: "steps[0]: exactly one of post, advance or set is required",
		},
		{
			name:    "two actions",
			yaml:    "name: n\nconfig: x.yaml\nsteps:\n  - post: a\n    advance: 1s\n",
			wantErr: "steps[0]: exactly one of post, advance or set is required",
		},
		{
			name:    "bad duration",
			yaml:    "name: n\nconfig: x.yaml\nsteps:\n  - advance: soon\n",
			wantErr: "invalid advance duration",
		},
		{
			name:    "negative duration",
			yaml:    "name: n\nconfig: x.yaml\nsteps:\n  - advance: -1s\n",
			wantErr: "advance must not be negative",
		},
		{
			name:    "expect on advance",
			yaml:    "name: n\nconfig: x.yaml\nsteps:\n  - advance: 1s\n    expect:\n      emitted: []\n",
			wantErr: "expect and payload only apply to post",
		},
		{
			name:    "assertion without type",
			yaml:    "name: n\nconfig: x.yaml\nsteps:\n  - post: a\nassertions:\n  - event: a\n",
			wantErr: "assertions[0]: type is required",
		},
		{
			name:    "unknown assertion",
			yaml:    "name: n\nconfig: x.yaml\nsteps:\n  - post: a\nassertions:\n  - type: trace_contains\n",
			wantErr: `unknown assertion type "trace_contains"`,
		},
		{
			name:    "emitted_contains without event",
			yaml:    "name: n\nconfig: x.yaml\nsteps:\n  - post: a\nassertions:\n  - type: emitted_contains\n",
			wantErr: "event is required for emitted_contains",
		},
		{
			name:    "emitted_order without events",
			yaml:    "name: n\nconfig: x.yaml\nsteps:\n  - post: a\nassertions:\n  - type: emitted_order\n",
			wantErr: "events list is required",
		},
		{
			name:    "negative count",
			yaml:    "name: n\nconfig: x.yaml\nsteps:\n  - post: a\nassertions:\n  - type: emitted_count\n    event: a\n    count: -1\n",
			wantErr: "count must be non-negative",
		},
		{
			name:    "block_state without block",
			yaml:    "name: n\nconfig: x.yaml\nsteps:\n  - post: a\nassertions:\n  - type: block_state\n    expect: {count: 1}\n",
			wantErr: "block is required for block_state",
		},
		{
			name:    "block_state without expect",
			yaml:    "name: n\nconfig: x.yaml\nsteps:\n  - post: a\nassertions:\n  - type: block_state\n    block: c\n",
			wantErr: "expect is required for block_state",
		},
		{
			name:    "error without code",
			yaml:    "name: n\nconfig: x.yaml\nsteps:\n  - post: a\nassertions:\n  - type: error\n",
			wantErr: "code is required for error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadConfig_NoBlocks(t *testing.T) {
	s := &Scenario{Name: "empty"}
	_, err := s.LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no blocks")
}

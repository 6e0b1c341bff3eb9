package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajgabz/mpf/internal/ir"
)

func mustParse(t *testing.T, data string) *Scenario {
	t.Helper()
	scenario, err := ParseScenario([]byte(data))
	require.NoError(t, err)
	return scenario
}

func TestRun_MinimalScenario(t *testing.T) {
	result, err := Run(mustParse(t, inlineCounter))
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.Pass, result.Errors)
	assert.Empty(t, result.Errors)

	// bump, bump, bumper_done
	require.Len(t, result.Trace, 3)
	assert.True(t, result.Trace[0].External())
	assert.Equal(t, "bumper_done", result.Trace[2].Name)
	assert.Equal(t, "bumper", result.Trace[2].Source)
	assert.Equal(t, int64(2), result.Trace[2].CauseSeq)
	assert.Equal(t, result.Trace[1].FlowToken, result.Trace[2].FlowToken)
	require.Len(t, result.Emitted(), 1)
	assert.Equal(t, "bumper_done", result.Emitted()[0].Name)

	state, ok := result.State("bumper")
	require.True(t, ok)
	assert.True(t, state.Completed)
	assert.Equal(t, int64(2), state.Count)
}

func TestRun_FlowTokensAreSequential(t *testing.T) {
	result, err := Run(mustParse(t, inlineCounter))
	require.NoError(t, err)

	require.Len(t, result.Trace, 3)
	assert.Equal(t, "flow-0001", result.Trace[0].FlowToken)
	assert.Equal(t, "flow-0002", result.Trace[1].FlowToken)
	assert.Equal(t, "flow-0002", result.Trace[2].FlowToken)
}

func TestRun_ExpectMismatch(t *testing.T) {
	scenario := mustParse(t, `
name: expect_mismatch
blocks:
  counters:
    bumper:
      count_events: bump
      count_complete_value: 2
      events_when_complete: bumper_done
steps:
  - post: bump
    expect:
      emitted: [bumper_done]
  - post: bump
    expect:
      emitted: [bumper_done]
      error: CYCLE_DETECTED
`)

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "step 0 (post bump): expected emitted [bumper_done], got []")
	assert.Contains(t, result.Errors[1], `expected error "CYCLE_DETECTED", got ""`)
}

func TestRun_AdvanceClosesWindow(t *testing.T) {
	scenario := mustParse(t, `
name: advance
blocks:
  counters:
    bumper:
      count_events: bump
      count_complete_value: 5
      multiple_hit_window: 1s
      events_when_hit: bumper_hit
steps:
  - post: bump
  - advance: 999ms
  - post: bump
    expect:
      emitted: []
  - advance: 1ms
  - post: bump
    expect:
      emitted: [bumper_hit]
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)

	last := result.Trace[len(result.Trace)-1]
	assert.Equal(t, int64(1000), last.OffsetMs)
	count, ok := last.Payload.Int("count")
	require.True(t, ok)
	assert.Equal(t, int64(2), count)
}

func TestRun_SetChangesContextForReset(t *testing.T) {
	scenario := mustParse(t, `
name: set_context
blocks:
  counters:
    balls:
      count_events: drain
      starting_count: game.balls
      count_complete_value: 0
      direction: down
      reset_events: new_game
context:
  game:
    balls: 3
steps:
  - set:
      game.balls: 5
  - post: drain
  - post: new_game
assertions:
  - type: block_state
    block: balls
    expect:
      count: 5
      target: 0
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRun_SetDoesNotTouchScenario(t *testing.T) {
	scenario := mustParse(t, `
name: set_copy
blocks:
  counters:
    balls:
      count_events: drain
      starting_count: game.balls
      count_complete_value: 0
      direction: down
context:
  game:
    balls: 3
steps:
  - set:
      game.balls: 5
`)

	_, err := Run(scenario)
	require.NoError(t, err)
	assert.Equal(t, 3, scenario.Context["game"].(map[string]any)["balls"])
}

func TestRun_PayloadIsJournaled(t *testing.T) {
	scenario := mustParse(t, `
name: payload
blocks:
  sequences:
    seq:
      events: [a]
steps:
  - post: a
    payload:
      player: 2
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.NotEmpty(t, result.Trace)
	assert.Equal(t, ir.Payload{"player": ir.Int(2)}, result.Trace[0].Payload)
}

func TestRun_FailuresRecorded(t *testing.T) {
	scenario, err := LoadScenario("../../testdata/scenarios/chain_cycle.yaml")
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)

	require.Len(t, result.Failures, 1)
	assert.Equal(t, 0, result.Failures[0].Step)
	assert.Equal(t, "ping", result.Failures[0].Event)
	assert.Equal(t, "CYCLE_DETECTED", result.Failures[0].Code)
	assert.NotEmpty(t, result.Failures[0].Error)
}

func TestRun_MaxSteps(t *testing.T) {
	scenario := mustParse(t, `
name: quota
max_steps: 2
blocks:
  sequences:
    seq:
      events: [a]
      events_when_hit: b
      events_when_complete: c
steps:
  - post: a
    expect:
      emitted: [b]
      error: QUOTA_EXCEEDED
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRun_InvalidConfig(t *testing.T) {
	scenario := &Scenario{
		Name:   "missing_config",
		Config: "/nonexistent/blocks.yaml",
		Steps:  []Step{{Post: "a"}},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestRun_UnresolvedContextFailsEngine(t *testing.T) {
	scenario := mustParse(t, `
name: no_context
blocks:
  counters:
    balls:
      count_events: drain
      starting_count: game.balls
      count_complete_value: 0
      direction: down
steps:
  - post: drain
`)

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create engine")
}

func TestRun_FixtureScenarios(t *testing.T) {
	paths, err := DiscoverScenarios("../../testdata/scenarios")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("../../testdata/scenarios/counter_debounce.yaml")
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := MarshalTrace(scenario.Name, first)
	require.NoError(t, err)
	b, err := MarshalTrace(scenario.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajgabz/mpf/internal/ir"
	"github.com/ajgabz/mpf/internal/testutil"
)

const fixtureContext = "../../testdata/machine.yaml"

// fixtureEvents drives counter1, sequence1 and counter3 once each, with a
// pause between them.
const fixtureEvents = `# fixture inputs
counter1_count
counter1_count
sequence1_step1a
wait 500ms
counter3_count {"player": 1}
`

// relayConfig is a counter whose hit event counts itself.
const relayConfig = `counters:
  relay:
    count_events: ping
    count_complete_value: 100
    events_when_hit: ping
`

// runWith executes runEngine directly so tests can pin flow tokens.
func runWith(t *testing.T, opts *RunOptions, configPath, events string) (string, error) {
	t.Helper()
	if opts.RootOptions == nil {
		opts.RootOptions = &RootOptions{Format: "text"}
	}
	if opts.FlowGenerator == nil {
		opts.FlowGenerator = testutil.NewSequentialFlowGenerator("")
	}
	opts.Simulate = true
	if opts.MaxSteps == 0 {
		opts.MaxSteps = 1000
	}

	buf := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(events))

	err := runEngine(opts, configPath, cmd)
	return buf.String(), err
}

func TestRunFixtureText(t *testing.T) {
	out, err := runWith(t, &RunOptions{Context: fixtureContext}, fixtureConfig, fixtureEvents)
	require.NoError(t, err)

	assert.Contains(t, out, "> counter1_count\n    counter1_hit <- counter1 {count=4, remaining=4}\n")
	assert.Contains(t, out, "    counter1_hit <- counter1 {count=3, remaining=3}\n")
	assert.Contains(t, out, "    sequence1_hit <- sequence1 {event=sequence1_step1a, step=1}\n")
	assert.Contains(t, out, "> counter3_count {player=1}\n    counter3_hit <- counter3 {count=1, remaining=2}\n")
	assert.Contains(t, out, "=== Blocks ===")
	assert.Contains(t, out, "count=3 target=0")
	assert.Contains(t, out, "step=1/3")
	assert.Contains(t, out, "window=open")
	assert.NotContains(t, out, "Session:", "session is only shown when journaling")
}

func TestRunFixtureJSON(t *testing.T) {
	out, err := runWith(t, &RunOptions{
		RootOptions: &RootOptions{Format: "json"},
		Context:     fixtureContext,
	}, fixtureConfig, fixtureEvents)
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, resp.Data.Failed)
	assert.NotEmpty(t, resp.Data.ConfigHash)

	require.Len(t, resp.Data.Steps, 4)
	assert.Equal(t, 2, resp.Data.Steps[0].Line)
	assert.Equal(t, 6, resp.Data.Steps[3].Line)
	assert.Equal(t, ir.Payload{"player": ir.Int(1)}, resp.Data.Steps[3].Payload)

	emitted := resp.Data.Steps[0].Emitted
	require.Len(t, emitted, 1)
	assert.Equal(t, "counter1_hit", emitted[0].Name)
	assert.Equal(t, "counter1", emitted[0].Source)
	assert.Equal(t, "flow-0001", emitted[0].FlowToken)
	assert.Equal(t, int64(1), emitted[0].CauseSeq)
}

func TestRunEventsFile(t *testing.T) {
	eventsPath := filepath.Join(t.TempDir(), "events.txt")
	require.NoError(t, os.WriteFile(eventsPath, []byte("sequence1_step1a\nsequence1_step1b\n"), 0644))

	out, err := runWith(t, &RunOptions{Context: fixtureContext, Events: eventsPath}, fixtureConfig, "")
	require.NoError(t, err)
	assert.Contains(t, out, "sequence1_hit <- sequence1 {event=sequence1_step1b, step=2}")
}

func TestRunMissingContextFailsEngine(t *testing.T) {
	out, err := runWith(t, &RunOptions{}, fixtureConfig, fixtureEvents)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "failed to create engine")
}

func TestRunUnreadableContext(t *testing.T) {
	_, err := runWith(t, &RunOptions{Context: "/nonexistent/machine.yaml"}, fixtureConfig, "")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunInvalidEvents(t *testing.T) {
	out, err := runWith(t, &RunOptions{Context: fixtureContext}, fixtureConfig, "wait soon\n")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E003]")
}

func TestRunInvalidConfig(t *testing.T) {
	path := writeConfig(t, "sequences:\n  s1:\n    events_when_complete: done\n")
	_, err := runWith(t, &RunOptions{}, path, "a\n")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestRunCycleFailsInput(t *testing.T) {
	path := writeConfig(t, relayConfig)

	out, err := runWith(t, &RunOptions{}, path, "ping\n")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "1 input(s) failed")
	assert.Contains(t, out, "✗ CYCLE_DETECTED")
}

func TestRunMaxSteps(t *testing.T) {
	path := writeConfig(t, relayConfig)

	out, err := runWith(t, &RunOptions{MaxSteps: 1}, path, "ping\n")
	require.Error(t, err)
	assert.Contains(t, out, "✗ QUOTA_EXCEEDED")
}

func TestRunJournalsToDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "journal.db")

	out, err := runWith(t, &RunOptions{Context: fixtureContext, Database: dbPath, Session: "s1"}, fixtureConfig, fixtureEvents)
	require.NoError(t, err)
	assert.Contains(t, out, "Session: s1")
	assert.FileExists(t, dbPath)
}

func TestRunCommandThroughCobra(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewRunCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader("sequence1_step1a\n"))
	cmd.SetArgs([]string{"--context", fixtureContext, "--simulate", fixtureConfig})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "sequence1_hit <- sequence1")
}

func TestParseEvents(t *testing.T) {
	lines, err := ParseEvents(strings.NewReader("# comment\n\n  ball_started  \nscore {\"points\": 100}\nwait 1500ms\n"))
	require.NoError(t, err)
	require.Len(t, lines, 3)

	assert.Equal(t, InputLine{Line: 3, Event: "ball_started"}, lines[0])
	assert.Equal(t, 4, lines[1].Line)
	assert.Equal(t, "score", lines[1].Event)
	assert.Equal(t, ir.Payload{"points": ir.Int(100)}, lines[1].Payload)
	assert.Equal(t, InputLine{Line: 5, Wait: 1500 * time.Millisecond}, lines[2])
}

func TestParseEvents_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"bad wait", "wait soon\n", "line 1: invalid wait"},
		{"negative wait", "a\nwait -1s\n", "line 2: wait must not be negative"},
		{"bad payload", "score {points}\n", "line 1: invalid payload for score"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEvents(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/ajgabz/mpf/internal/ir"
)

// TraceSnapshot captures the complete trace for a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
	Failures     []Failure    `json:"failures,omitempty"`
	Result       *Result      `json:"-"`
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical JSON serialization.
// This is required because ir.MarshalCanonical only handles IR types and primitives.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		eventMap := map[string]any{
			"seq":        event.Seq,
			"name":       event.Name,
			"flow_token": event.FlowToken,
			"offset_ms":  event.OffsetMs,
		}
		if event.Source != "" {
			eventMap["source"] = event.Source
		}
		if event.CauseSeq != 0 {
			eventMap["cause_seq"] = event.CauseSeq
		}
		if len(event.Payload) > 0 {
			eventMap["payload"] = event.Payload
		}
		traceList[i] = eventMap
	}

	result := map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList,
	}

	if len(s.Failures) > 0 {
		failures := make([]any, len(s.Failures))
		for i, f := range s.Failures {
			failures[i] = map[string]any{
				"step":  f.Step,
				"event": f.Event,
				"code":  f.Code,
			}
		}
		result["failures"] = failures
	}

	if s.Result != nil {
		states := make(map[string]any, len(s.Result.States))
		for _, st := range s.Result.States {
			states[st.Name] = stateFields(st)
		}
		result["states"] = states
	}
	return result
}

func snapshotOf(name string, result *Result) *TraceSnapshot {
	return &TraceSnapshot{
		ScenarioName: name,
		Trace:        result.Trace,
		Failures:     result.Failures,
		Result:       result,
	}
}

// MarshalTrace renders a result as canonical JSON, the golden file format.
func MarshalTrace(name string, result *Result) ([]byte, error) {
	return ir.MarshalCanonical(snapshotOf(name, result).toCanonicalMap())
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalTrace(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)

	return nil
}

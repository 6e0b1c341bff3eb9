package harness

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/ajgabz/mpf/internal/engine"
	"github.com/ajgabz/mpf/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			if event.External() {
				fmt.Fprintf(&buf, "  [%d] %s\n", event.Seq, event.Name)
				continue
			}
			fmt.Fprintf(&buf, "  [%d]   %s <- %s %v\n", event.Seq, event.Name, event.Source, event.Payload)
		}
	}

	return buf.String()
}

// assertEmittedContains checks that some emitted event matches the name,
// the optional source and the payload (subset match).
func assertEmittedContains(trace []TraceEvent, assertion Assertion) error {
	want, err := ir.PayloadFromMap(assertion.Payload)
	if err != nil {
		return fmt.Errorf("emitted_contains: invalid payload: %w", err)
	}

	for _, event := range trace {
		if event.External() || event.Name != assertion.Event {
			continue
		}
		if assertion.Source != "" && event.Source != assertion.Source {
			continue
		}
		if matchPayload(event.Payload, want) {
			return nil
		}
	}

	expected := fmt.Sprintf("event %s", assertion.Event)
	if assertion.Source != "" {
		expected += " from " + assertion.Source
	}
	if len(want) > 0 {
		expected += fmt.Sprintf(" with payload %v", want)
	}
	return &AssertionError{
		Type:     AssertEmittedContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertEmittedOrder checks that events are emitted in the specified order.
// Events don't need to be consecutive (intervening events are allowed).
// Each expected event is matched after the previous match, so repeated
// names are matched as repeated occurrences.
func assertEmittedOrder(trace []TraceEvent, assertion Assertion) error {
	next := 0
	for _, event := range trace {
		if next == len(assertion.Events) {
			break
		}
		if !event.External() && event.Name == assertion.Events[next] {
			next++
		}
	}

	if next < len(assertion.Events) {
		return &AssertionError{
			Type:     AssertEmittedOrder,
			Expected: fmt.Sprintf("events in order: %v", assertion.Events),
			Actual:   fmt.Sprintf("no %s after %v", assertion.Events[next], assertion.Events[:next]),
			Trace:    trace,
		}
	}
	return nil
}

// assertEmittedCount checks if the event is emitted exactly the specified
// number of times.
func assertEmittedCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if !event.External() && event.Name == assertion.Event {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertEmittedCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Event),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertBlockState checks the final state of a block (subset semantics:
// only fields in Expect are validated).
func assertBlockState(result *Result, assertion Assertion) error {
	state, ok := result.State(assertion.Block)
	if !ok {
		return &AssertionError{
			Type:     AssertBlockState,
			Expected: fmt.Sprintf("block %s", assertion.Block),
			Actual:   "no such block",
		}
	}

	actual := stateFields(state)
	for _, key := range sortedKeys(assertion.Expect) {
		expectedValue := assertion.Expect[key]
		actualValue, exists := actual[key]
		if !exists {
			return &AssertionError{
				Type:     AssertBlockState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("block %s (%s) has no field %q", state.Name, state.Kind, key),
			}
		}
		if !stateValuesEqual(expectedValue, actualValue) {
			return &AssertionError{
				Type:     AssertBlockState,
				Expected: fmt.Sprintf("%s.%s = %v", state.Name, key, expectedValue),
				Actual:   fmt.Sprintf("%s.%s = %v", state.Name, key, actualValue),
			}
		}
	}
	return nil
}

// stateFields flattens a block state into the names scenarios use.
func stateFields(s engine.BlockState) map[string]any {
	fields := map[string]any{
		"enabled":   s.Enabled,
		"completed": s.Completed,
		"status":    string(s.Status),
	}
	if s.Kind == ir.KindCounter {
		fields["count"] = s.Count
		fields["target"] = s.Target
		fields["window_open"] = s.WindowOpen
		return fields
	}
	fields["step"] = int64(s.Step)
	fields["steps"] = int64(s.Steps)
	hits := make([]any, len(s.Hits))
	for i, h := range s.Hits {
		hits[i] = h
	}
	fields["hits"] = hits
	return fields
}

// assertError checks that some post failed with the given code.
func assertError(result *Result, assertion Assertion) error {
	var codes []string
	for _, f := range result.Failures {
		if f.Code == assertion.Code {
			return nil
		}
		codes = append(codes, f.Code)
	}
	return &AssertionError{
		Type:     AssertError,
		Expected: fmt.Sprintf("a post failing with %s", assertion.Code),
		Actual:   fmt.Sprintf("failures: %v", codes),
	}
}

// stateValuesEqual compares a YAML-decoded expected value with a state
// field. YAML integers decode as int, state counts are int64.
func stateValuesEqual(expected, actual any) bool {
	if expected == nil || actual == nil {
		return expected == actual
	}

	switch exp := expected.(type) {
	case int:
		if n, ok := actual.(int64); ok {
			return int64(exp) == n
		}
	case int64:
		if n, ok := actual.(int64); ok {
			return exp == n
		}
	case []any:
		act, ok := actual.([]any)
		if !ok || len(act) != len(exp) {
			return false
		}
		for i := range exp {
			if !stateValuesEqual(exp[i], act[i]) {
				return false
			}
		}
		return true
	}

	return reflect.DeepEqual(expected, actual)
}

// matchPayload checks if actual contains all expected fields (subset match).
// Extra keys in actual are ignored.
func matchPayload(actual, expected ir.Payload) bool {
	for key, expectedVal := range expected {
		actualVal, exists := actual[key]
		if !exists {
			return false
		}
		if !reflect.DeepEqual(actualVal, expectedVal) {
			return false
		}
	}
	return true
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertEmittedContains:
			err = assertEmittedContains(result.Trace, assertion)
		case AssertEmittedOrder:
			err = assertEmittedOrder(result.Trace, assertion)
		case AssertEmittedCount:
			err = assertEmittedCount(result.Trace, assertion)
		case AssertBlockState:
			err = assertBlockState(result, assertion)
		case AssertError:
			err = assertError(result, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

// Package harness provides conformance testing for logic block documents.
//
// The harness loads a logic block document, drives a real engine through
// the steps of a scenario and validates the emitted events and final block
// states.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: counter_debounce
//	description: "What this scenario validates"
//	config: ../logic_blocks.yaml     # or an inline blocks: document
//	context:
//	  machine: { start: 1 }
//	steps:
//	  - post: counter3_count
//	    expect:
//	      emitted: [counter3_hit]
//	  - advance: 200ms
//	  - set: { machine.start: 10 }
//	  - post: counter4_reset
//	assertions:
//	  - type: emitted_contains
//	    event: counter3_hit
//	    payload: { count: 1 }
//	  - type: block_state
//	    block: counter4
//	    expect: { count: 10 }
//
// # Determinism
//
// Every run uses:
//   - a fresh in-memory journal (store.Open(":memory:"))
//   - a manual clock starting at testutil.Epoch that only moves on advance steps
//   - numbered flow tokens (testutil.SequentialFlowGenerator)
//
// so the same scenario always produces a byte-identical trace. Golden files
// under testdata/golden hold canonical JSON traces (see RunWithGolden).
//
// # Suites
//
// RunSuite runs many scenario files and collects failures instead of
// stopping at the first. A scenario file x.yaml with a golden/x.golden file
// next to it must also reproduce that trace; SuiteOptions.Update rewrites it.
//
// # Assertion Types
//
//   - emitted_contains: an emitted event with the name, optional source and payload subset
//   - emitted_order: emitted events appear in this relative order
//   - emitted_count: an event is emitted exactly N times
//   - block_state: final block fields (enabled, completed, status, step, count, ...)
//   - error: some post failed with the given error code
package harness

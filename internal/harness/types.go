package harness

import (
	"github.com/ajgabz/mpf/internal/engine"
	"github.com/ajgabz/mpf/internal/ir"
	"github.com/ajgabz/mpf/internal/store"
)

// TraceEvent is one journaled event: a posted input or an emission.
type TraceEvent struct {
	Seq       int64      `json:"seq"`
	Name      string     `json:"name"`
	Source    string     `json:"source,omitempty"`
	CauseSeq  int64      `json:"cause_seq,omitempty"`
	FlowToken string     `json:"flow_token"`
	Payload   ir.Payload `json:"payload,omitempty"`
	OffsetMs  int64      `json:"offset_ms"`
}

// External reports whether the event was posted by the scenario.
func (e TraceEvent) External() bool {
	return e.Source == ""
}

func traceEventFrom(rec store.EventRecord) TraceEvent {
	return TraceEvent{
		Seq:       rec.Seq,
		Name:      rec.Name,
		Source:    rec.Source,
		CauseSeq:  rec.CauseSeq,
		FlowToken: rec.FlowToken,
		Payload:   rec.Payload,
		OffsetMs:  rec.Offset.Milliseconds(),
	}
}

// Failure is a post that returned an error.
type Failure struct {
	Step  int    `json:"step"`
	Event string `json:"event"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every expect clause and assertion matched.
	Pass bool `json:"pass"`

	// Trace contains every input and emitted event in seq order.
	Trace []TraceEvent `json:"trace"`

	// Failures are the posts that returned errors, expected or not.
	Failures []Failure `json:"failures,omitempty"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// States are the final block states in declaration order.
	States []engine.BlockState `json:"states"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:  true,
		Trace: []TraceEvent{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Emitted returns the emitted events of the trace, without inputs.
func (r *Result) Emitted() []TraceEvent {
	var out []TraceEvent
	for _, ev := range r.Trace {
		if !ev.External() {
			out = append(out, ev)
		}
	}
	return out
}

// State returns the final state of a block.
func (r *Result) State(block string) (engine.BlockState, bool) {
	for _, s := range r.States {
		if s.Name == block {
			return s, true
		}
	}
	return engine.BlockState{}, false
}

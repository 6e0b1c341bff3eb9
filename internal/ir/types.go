package ir

import (
	"fmt"
	"time"
)

// BlockKind identifies which progress semantics a logic block uses.
type BlockKind string

const (
	// KindAccrual requires every event of the current step group, in any order.
	KindAccrual BlockKind = "accrual"
	// KindCounter moves a scalar count toward a target value.
	KindCounter BlockKind = "counter"
	// KindSequence requires one event per step group, strictly in order.
	KindSequence BlockKind = "sequence"
)

// ValidKinds lists the supported block kinds in config section order.
var ValidKinds = []BlockKind{KindAccrual, KindCounter, KindSequence}

// Section returns the config section name that declares blocks of this kind.
func (k BlockKind) Section() string {
	return string(k) + "s"
}

// Direction is the counting direction of a counter block.
type Direction string

const (
	// DirectionUp completes when the count reaches or exceeds the target.
	DirectionUp Direction = "up"
	// DirectionDown completes when the count reaches or drops below the target.
	DirectionDown Direction = "down"
)

// Expr is the source text of a value expression, resolved against the
// player/game context when a block is created, reset or restarted.
// Plain integers are valid expressions.
type Expr string

// ExprInt returns the expression for an integer literal.
func ExprInt(n int64) Expr {
	return Expr(fmt.Sprintf("%d", n))
}

// BlockDef is a compiled logic block declaration.
type BlockDef struct {
	Name string    `json:"name"`
	Kind BlockKind `json:"kind"`

	EnableEvents  []string `json:"enable_events,omitempty"`
	DisableEvents []string `json:"disable_events,omitempty"`
	ResetEvents   []string `json:"reset_events,omitempty"`
	RestartEvents []string `json:"restart_events,omitempty"`

	EventsWhenComplete []string `json:"events_when_complete,omitempty"`
	EventsWhenHit      []string `json:"events_when_hit,omitempty"`

	StartEnabled      bool `json:"start_enabled"`
	ResetOnComplete   bool `json:"reset_on_complete"`
	DisableOnComplete bool `json:"disable_on_complete"`

	// Params holds exactly one of AccrualParams, CounterParams or SequenceParams,
	// matching Kind.
	Params BlockParams `json:"params"`
}

// BlockParams is a sealed interface over the kind-specific parameter sets.
type BlockParams interface {
	blockParams()
	Kind() BlockKind
}

// AccrualParams are the parameters of an accrual block.
type AccrualParams struct {
	// Steps are ordered step groups; each group completes once every
	// member has been observed.
	Steps [][]string `json:"steps"`
}

func (AccrualParams) blockParams() {}

// Kind implements BlockParams.
func (AccrualParams) Kind() BlockKind { return KindAccrual }

// SequenceParams are the parameters of a sequence block.
type SequenceParams struct {
	// Steps are ordered step groups; any single member advances the step.
	Steps [][]string `json:"steps"`
}

func (SequenceParams) blockParams() {}

// Kind implements BlockParams.
func (SequenceParams) Kind() BlockKind { return KindSequence }

// CounterParams are the parameters of a counter block.
type CounterParams struct {
	CountEvents []string  `json:"count_events"`
	Direction   Direction `json:"direction"`

	StartingCount Expr `json:"starting_count"`
	CompleteValue Expr `json:"count_complete_value"`

	// CountInterval is the signed step size. The applied delta is
	// CountInterval for DirectionUp and -CountInterval for DirectionDown.
	CountInterval int64 `json:"count_interval"`

	// MultipleHitWindow collapses repeated count events into one count.
	// Zero disables debouncing.
	MultipleHitWindow time.Duration `json:"multiple_hit_window,omitempty"`
}

func (CounterParams) blockParams() {}

// Kind implements BlockParams.
func (CounterParams) Kind() BlockKind { return KindCounter }

// Delta returns the signed amount a single counted hit applies.
func (p CounterParams) Delta() int64 {
	if p.Direction == DirectionDown {
		return -p.CountInterval
	}
	return p.CountInterval
}

// Reached reports whether current satisfies the completion comparison
// for the counter's direction.
func (p CounterParams) Reached(current, target int64) bool {
	if p.Direction == DirectionDown {
		return current <= target
	}
	return current >= target
}

// Diverges reports whether the delta fails to move in the counter's
// direction. Such a counter never completes once it has been hit, even
// when it starts at its target.
func (p CounterParams) Diverges() bool {
	delta := p.Delta()
	if p.Direction == DirectionDown {
		return delta >= 0
	}
	return delta <= 0
}

// Steps returns the step groups of accrual and sequence blocks, nil otherwise.
func (d BlockDef) Steps() [][]string {
	switch p := d.Params.(type) {
	case AccrualParams:
		return p.Steps
	case SequenceParams:
		return p.Steps
	default:
		return nil
	}
}

// ProgressEvents returns the events that drive progress: all step group
// members for accruals and sequences, count_events for counters.
// Duplicates are removed; declaration order is kept.
func (d BlockDef) ProgressEvents() []string {
	var events []string
	if p, ok := d.Params.(CounterParams); ok {
		events = p.CountEvents
	} else {
		for _, group := range d.Steps() {
			events = append(events, group...)
		}
	}
	return dedupe(events)
}

// EmittedEvents returns every event name the block can post.
func (d BlockDef) EmittedEvents() []string {
	all := make([]string, 0, len(d.EventsWhenHit)+len(d.EventsWhenComplete))
	all = append(all, d.EventsWhenHit...)
	all = append(all, d.EventsWhenComplete...)
	return dedupe(all)
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

package engine

import (
	"encoding/json"

	"github.com/ajgabz/mpf/internal/ir"
)

// Status is the lifecycle state of a block.
type Status string

const (
	StatusDisabled   Status = "disabled"
	StatusInProgress Status = "in_progress"
	StatusComplete   Status = "complete"
)

// BlockState is a snapshot of one block, safe to keep after the engine
// moves on.
type BlockState struct {
	Name      string
	Kind      ir.BlockKind
	Enabled   bool
	Completed bool
	Status    Status

	// Step is the current step index of accruals and sequences; Step ==
	// Steps means complete.
	Step  int
	Steps int
	// Hits are the sub-events of the current accrual step already seen,
	// in step group order.
	Hits []string

	// Count and Target are the counter's current value and resolved
	// completion value.
	Count  int64
	Target int64
	// WindowOpen reports an active debounce window.
	WindowOpen bool
}

type stepStateJSON struct {
	Name      string       `json:"name"`
	Kind      ir.BlockKind `json:"kind"`
	Enabled   bool         `json:"enabled"`
	Completed bool         `json:"completed"`
	Status    Status       `json:"status"`
	Step      int          `json:"step"`
	Steps     int          `json:"steps"`
	Hits      []string     `json:"hits,omitempty"`
}

type counterStateJSON struct {
	Name       string       `json:"name"`
	Kind       ir.BlockKind `json:"kind"`
	Enabled    bool         `json:"enabled"`
	Completed  bool         `json:"completed"`
	Status     Status       `json:"status"`
	Count      int64        `json:"count"`
	Target     int64        `json:"target"`
	WindowOpen bool         `json:"window_open,omitempty"`
}

// MarshalJSON writes only the fields that apply to the block's kind.
func (s BlockState) MarshalJSON() ([]byte, error) {
	if s.Kind == ir.KindCounter {
		return json.Marshal(counterStateJSON{
			Name:       s.Name,
			Kind:       s.Kind,
			Enabled:    s.Enabled,
			Completed:  s.Completed,
			Status:     s.Status,
			Count:      s.Count,
			Target:     s.Target,
			WindowOpen: s.WindowOpen,
		})
	}
	return json.Marshal(stepStateJSON{
		Name:      s.Name,
		Kind:      s.Kind,
		Enabled:   s.Enabled,
		Completed: s.Completed,
		Status:    s.Status,
		Step:      s.Step,
		Steps:     s.Steps,
		Hits:      s.Hits,
	})
}

package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ajgabz/mpf/internal/expr"
	"github.com/ajgabz/mpf/internal/ir"
)

// scheduler runs f under the engine lock after d. The returned function
// cancels it.
type scheduler func(d time.Duration, f func()) (stop func() bool)

// counter moves a count toward a target by a fixed delta per counted hit.
type counter struct {
	name   string
	params ir.CounterParams
	start  *expr.Expression
	target *expr.Expression

	count       int64
	targetValue int64

	schedule   scheduler
	windowOpen bool
	windowGen  uint64
	stopWindow func() bool
}

func newCounter(name string, p ir.CounterParams, schedule scheduler) (*counter, error) {
	start, err := expr.Compile(string(p.StartingCount))
	if err != nil {
		return nil, fmt.Errorf("block %s: starting_count: %w", name, err)
	}
	target, err := expr.Compile(string(p.CompleteValue))
	if err != nil {
		return nil, fmt.Errorf("block %s: count_complete_value: %w", name, err)
	}
	return &counter{
		name:     name,
		params:   p,
		start:    start,
		target:   target,
		schedule: schedule,
	}, nil
}

// prepare resolves both bounds. Either bound may be reached or passed
// already; the next counted hit then completes the counter.
func (c *counter) prepare(ctx expr.Context) (func(), error) {
	start, err := c.start.Eval(ctx)
	if err != nil {
		return nil, fmt.Errorf("starting_count: %w", err)
	}
	target, err := c.target.Eval(ctx)
	if err != nil {
		return nil, fmt.Errorf("count_complete_value: %w", err)
	}
	return func() {
		c.count = start
		c.targetValue = target
	}, nil
}

func (c *counter) advance(ev ir.Event) outcome {
	if !contains(c.params.CountEvents, ev.Name) {
		return outcome{}
	}
	if c.windowOpen {
		slog.Debug("hit inside debounce window ignored", "block", c.name, "event", ev.Name)
		return outcome{}
	}

	c.count += c.params.Delta()
	c.openWindow()

	return outcome{
		hit: true,
		payload: ir.Payload{
			"count":     ir.Int(c.count),
			"remaining": ir.Int(c.remaining()),
		},
		complete: c.params.Reached(c.count, c.targetValue),
	}
}

// remaining is the distance left to the target, never negative.
func (c *counter) remaining() int64 {
	r := c.targetValue - c.count
	if c.params.Direction == ir.DirectionDown {
		r = -r
	}
	if r < 0 {
		return 0
	}
	return r
}

func (c *counter) openWindow() {
	window := c.params.MultipleHitWindow
	if window <= 0 || c.schedule == nil {
		return
	}
	c.windowOpen = true
	c.windowGen++
	gen := c.windowGen
	c.stopWindow = c.schedule(window, func() {
		// A reset or disable since scheduling makes this call stale.
		if c.windowGen != gen {
			return
		}
		c.windowOpen = false
		c.stopWindow = nil
		slog.Debug("debounce window closed", "block", c.name)
	})
}

func (c *counter) cancel() {
	if c.stopWindow != nil {
		c.stopWindow()
		c.stopWindow = nil
	}
	c.windowOpen = false
	c.windowGen++
}

func (c *counter) snapshot(s *BlockState) {
	s.Count = c.count
	s.Target = c.targetValue
	s.WindowOpen = c.windowOpen
}

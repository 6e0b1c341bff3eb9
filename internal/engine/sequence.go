package engine

import (
	"github.com/ajgabz/mpf/internal/expr"
	"github.com/ajgabz/mpf/internal/ir"
)

// sequence advances one step for any single member of the current step
// group. Out-of-turn events are ignored.
type sequence struct {
	steps [][]string
	step  int
}

func newSequence(p ir.SequenceParams) *sequence {
	return &sequence{steps: p.Steps}
}

func (q *sequence) prepare(expr.Context) (func(), error) {
	return func() { q.step = 0 }, nil
}

func (q *sequence) advance(ev ir.Event) outcome {
	if q.step >= len(q.steps) || !contains(q.steps[q.step], ev.Name) {
		return outcome{}
	}
	q.step++
	return outcome{
		hit:      true,
		payload:  stepPayload(ev.Name, q.step),
		complete: q.step == len(q.steps),
	}
}

func (q *sequence) cancel() {}

func (q *sequence) snapshot(s *BlockState) {
	s.Step = q.step
	s.Steps = len(q.steps)
}

package engine

import (
	"github.com/ajgabz/mpf/internal/expr"
	"github.com/ajgabz/mpf/internal/ir"
)

// accrual completes a step once every sub-event of the current step group
// has been seen, in any order.
type accrual struct {
	steps [][]string
	step  int
	hits  map[string]bool
}

func newAccrual(p ir.AccrualParams) *accrual {
	return &accrual{steps: p.Steps, hits: map[string]bool{}}
}

func (a *accrual) prepare(expr.Context) (func(), error) {
	return func() {
		a.step = 0
		a.hits = map[string]bool{}
	}, nil
}

func (a *accrual) advance(ev ir.Event) outcome {
	if a.step >= len(a.steps) {
		return outcome{}
	}
	group := a.steps[a.step]
	if !contains(group, ev.Name) {
		// Members of other step groups are not in turn.
		return outcome{}
	}

	a.hits[ev.Name] = true
	for _, member := range group {
		if !a.hits[member] {
			return outcome{hit: true, payload: stepPayload(ev.Name, a.step)}
		}
	}

	a.step++
	a.hits = map[string]bool{}
	return outcome{
		hit:      true,
		payload:  stepPayload(ev.Name, a.step),
		complete: a.step == len(a.steps),
	}
}

func (a *accrual) cancel() {}

func (a *accrual) snapshot(s *BlockState) {
	s.Step = a.step
	s.Steps = len(a.steps)
	if a.step < len(a.steps) {
		for _, member := range a.steps[a.step] {
			if a.hits[member] {
				s.Hits = append(s.Hits, member)
			}
		}
	}
}

// stepPayload is the events_when_hit payload of accruals and sequences.
func stepPayload(event string, step int) ir.Payload {
	return ir.Payload{
		"event": ir.Str(event),
		"step":  ir.Int(int64(step)),
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

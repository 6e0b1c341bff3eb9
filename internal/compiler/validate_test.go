package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ajgabz/mpf/internal/ir"
)

func codesOf(errs []*ConfigError) []string {
	codes := make([]string, len(errs))
	for i, e := range errs {
		codes[i] = e.Code
	}
	return codes
}

func TestValidateDefsValid(t *testing.T) {
	defs := []ir.BlockDef{
		counter("c1", []string{"hit"}, []string{"done"}),
		sequence("s1", [][]string{{"a"}, {"b", "c"}}, nil),
		{Name: "a1", Kind: ir.KindAccrual, Params: ir.AccrualParams{Steps: [][]string{{"x", "y"}}}},
	}
	assert.Empty(t, ValidateDefs(defs))
}

func TestValidateDefsStructural(t *testing.T) {
	tests := []struct {
		name string
		defs []ir.BlockDef
		want []string
	}{
		{
			name: "missing name",
			defs: []ir.BlockDef{{Kind: ir.KindAccrual, Params: ir.AccrualParams{Steps: [][]string{{"a"}}}}},
			want: []string{ErrCodeMissingField},
		},
		{
			name: "duplicate",
			defs: []ir.BlockDef{
				counter("x", []string{"a"}, nil),
				sequence("x", [][]string{{"a"}}, nil),
			},
			want: []string{ErrCodeDuplicateName},
		},
		{
			name: "nil params",
			defs: []ir.BlockDef{{Name: "x", Kind: ir.KindCounter}},
			want: []string{ErrCodeMissingField},
		},
		{
			name: "kind mismatch",
			defs: []ir.BlockDef{{Name: "x", Kind: ir.KindCounter, Params: ir.SequenceParams{Steps: [][]string{{"a"}}}}},
			want: []string{ErrCodeKindMismatch},
		},
		{
			name: "no steps",
			defs: []ir.BlockDef{sequence("x", nil, nil)},
			want: []string{ErrCodeEmptyEvent},
		},
		{
			name: "empty group and blank name",
			defs: []ir.BlockDef{sequence("x", [][]string{{}, {" "}}, []string{""})},
			want: []string{ErrCodeEmptyEvent, ErrCodeEmptyEvent, ErrCodeEmptyEvent},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, codesOf(ValidateDefs(tt.defs)))
		})
	}
}

func TestValidateDefsCounter(t *testing.T) {
	base := func(mut func(*ir.CounterParams)) []ir.BlockDef {
		p := ir.CounterParams{
			CountEvents:   []string{"hit"},
			Direction:     ir.DirectionUp,
			StartingCount: ir.ExprInt(0),
			CompleteValue: ir.ExprInt(3),
			CountInterval: 1,
		}
		mut(&p)
		return []ir.BlockDef{{Name: "c", Kind: ir.KindCounter, Params: p}}
	}

	tests := []struct {
		name string
		mut  func(*ir.CounterParams)
		want []string
	}{
		{"valid", func(p *ir.CounterParams) {}, []string{}},
		{"no count events", func(p *ir.CounterParams) { p.CountEvents = nil }, []string{ErrCodeEmptyEvent}},
		{"bad direction", func(p *ir.CounterParams) { p.Direction = "sideways" }, []string{ErrCodeTypeMismatch}},
		{"negative window", func(p *ir.CounterParams) { p.MultipleHitWindow = -1 }, []string{ErrCodeInvalidDuration}},
		{"bad start", func(p *ir.CounterParams) { p.StartingCount = "1 +" }, []string{ErrCodeInvalidExpr}},
		{"bad target", func(p *ir.CounterParams) { p.CompleteValue = "" }, []string{ErrCodeInvalidExpr}},
		{"divergent up", func(p *ir.CounterParams) { p.CountInterval = -1 }, []string{ErrCodeDivergent}},
		{"divergent down", func(p *ir.CounterParams) {
			p.Direction = ir.DirectionDown
			p.StartingCount = ir.ExprInt(5)
			p.CompleteValue = ir.ExprInt(0)
			p.CountInterval = -1
		}, []string{ErrCodeDivergent}},
		{"divergent already at target", func(p *ir.CounterParams) {
			p.StartingCount = ir.ExprInt(0)
			p.CompleteValue = ir.ExprInt(0)
			p.CountInterval = -1
		}, []string{ErrCodeDivergent}},
		{"divergent down past target", func(p *ir.CounterParams) {
			p.Direction = ir.DirectionDown
			p.StartingCount = ir.ExprInt(0)
			p.CompleteValue = ir.ExprInt(3)
			p.CountInterval = -1
		}, []string{ErrCodeDivergent}},
		{"divergent with dynamic bound", func(p *ir.CounterParams) {
			p.CompleteValue = "machine.start"
			p.CountInterval = -1
		}, []string{ErrCodeDivergent}},
		{"bad start and divergent", func(p *ir.CounterParams) {
			p.StartingCount = "1 +"
			p.CountInterval = 0
		}, []string{ErrCodeInvalidExpr, ErrCodeDivergent}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, codesOf(ValidateDefs(base(tt.mut))))
		})
	}
}

func TestConfigErrorFormatting(t *testing.T) {
	e := &ConfigError{Code: ErrCodeDivergent, Block: "c1", Field: "count_interval", Message: "counting up by -1 moves away from count_complete_value"}
	assert.Equal(t, "[E207] c1.count_interval: counting up by -1 moves away from count_complete_value", e.Error())
	assert.Equal(t, 0, e.Line())

	e = &ConfigError{Code: ErrCodeParse, Message: "bad yaml"}
	assert.Equal(t, "[E200] bad yaml", e.Error())
}

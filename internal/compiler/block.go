package compiler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"cuelang.org/go/cue"

	"github.com/ajgabz/mpf/internal/ir"
)

var lifecycleFields = []string{
	"enable_events",
	"disable_events",
	"reset_events",
	"restart_events",
	"events_when_complete",
	"events_when_hit",
	"start_enabled",
	"reset_on_complete",
	"disable_on_complete",
}

var kindFields = map[ir.BlockKind][]string{
	ir.KindAccrual:  {"events"},
	ir.KindSequence: {"events"},
	ir.KindCounter: {
		"count_events",
		"count_complete_value",
		"starting_count",
		"direction",
		"count_interval",
		"multiple_hit_window",
	},
}

var requiredFields = map[ir.BlockKind][]string{
	ir.KindAccrual:  {"events"},
	ir.KindSequence: {"events"},
	ir.KindCounter:  {"count_events", "count_complete_value"},
}

var schemaDefs = map[ir.BlockKind]string{
	ir.KindAccrual:  "#Accrual",
	ir.KindSequence: "#Sequence",
	ir.KindCounter:  "#Counter",
}

// compileBlock checks one block declaration and decodes it into a BlockDef.
// Structural problems (unknown or missing fields) are reported before the
// schema is applied so each one carries its own code.
func compileBlock(schema cue.Value, kind ir.BlockKind, name string, v cue.Value) (ir.BlockDef, []*ConfigError) {
	if v.IncompleteKind() != cue.StructKind {
		return ir.BlockDef{}, []*ConfigError{{
			Code: ErrCodeTypeMismatch, Block: name,
			Message: "block must be a mapping of fields",
			Pos:     v.Pos(),
		}}
	}

	var errs []*ConfigError
	allowed := map[string]bool{}
	for _, f := range lifecycleFields {
		allowed[f] = true
	}
	for _, f := range kindFields[kind] {
		allowed[f] = true
	}

	iter, err := v.Fields()
	if err != nil {
		return ir.BlockDef{}, []*ConfigError{formatCUEError(err, ErrCodeTypeMismatch, name, "")}
	}
	for iter.Next() {
		if !allowed[iter.Label()] {
			errs = append(errs, &ConfigError{
				Code: ErrCodeUnknownField, Block: name, Field: iter.Label(),
				Message: fmt.Sprintf("unknown field for %s block", kind),
				Pos:     iter.Value().Pos(),
			})
		}
	}
	for _, f := range requiredFields[kind] {
		if !v.LookupPath(cue.ParsePath(f)).Exists() {
			errs = append(errs, &ConfigError{
				Code: ErrCodeMissingField, Block: name, Field: f,
				Message: "required field is missing",
				Pos:     v.Pos(),
			})
		}
	}
	if len(errs) > 0 {
		return ir.BlockDef{}, errs
	}

	unified := schema.LookupPath(cue.ParsePath(schemaDefs[kind])).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return ir.BlockDef{}, []*ConfigError{formatCUEError(err, ErrCodeTypeMismatch, name, "")}
	}

	d := &decoder{block: name, v: unified}
	def := ir.BlockDef{
		Name:               name,
		Kind:               kind,
		EnableEvents:       d.events("enable_events"),
		DisableEvents:      d.events("disable_events"),
		ResetEvents:        d.events("reset_events"),
		RestartEvents:      d.events("restart_events"),
		EventsWhenComplete: d.events("events_when_complete"),
		EventsWhenHit:      d.events("events_when_hit"),
		StartEnabled:       d.boolean("start_enabled", true),
		// Accruals reset on completion unless told otherwise.
		ResetOnComplete:   d.boolean("reset_on_complete", kind == ir.KindAccrual),
		DisableOnComplete: d.boolean("disable_on_complete", false),
	}

	switch kind {
	case ir.KindAccrual:
		def.Params = ir.AccrualParams{Steps: d.steps("events")}
	case ir.KindSequence:
		def.Params = ir.SequenceParams{Steps: d.steps("events")}
	case ir.KindCounter:
		direction := ir.Direction(d.str("direction", string(ir.DirectionUp)))
		def.Params = ir.CounterParams{
			CountEvents:       d.events("count_events"),
			Direction:         direction,
			StartingCount:     d.expr("starting_count", ir.ExprInt(0)),
			CompleteValue:     d.expr("count_complete_value", ""),
			CountInterval:     d.integer("count_interval", 1),
			MultipleHitWindow: d.window("multiple_hit_window"),
		}
	}

	if len(d.errs) > 0 {
		return ir.BlockDef{}, d.errs
	}
	return def, nil
}

// decoder reads typed fields from a schema-checked block value and collects
// the errors it meets along the way.
type decoder struct {
	block string
	v     cue.Value
	errs  []*ConfigError
}

func (d *decoder) lookup(field string) (cue.Value, bool) {
	f := d.v.LookupPath(cue.ParsePath(field))
	return f, f.Exists()
}

func (d *decoder) fail(field string, pos cue.Value, code, msg string) {
	d.errs = append(d.errs, &ConfigError{Code: code, Block: d.block, Field: field, Message: msg, Pos: pos.Pos()})
}

// events reads an event list. A string is a comma separated list.
func (d *decoder) events(field string) []string {
	f, ok := d.lookup(field)
	if !ok {
		return nil
	}
	if s, err := f.String(); err == nil {
		return SplitEvents(s)
	}
	iter, err := f.List()
	if err != nil {
		d.errs = append(d.errs, formatCUEError(err, ErrCodeTypeMismatch, d.block, field))
		return nil
	}
	var out []string
	for i := 0; iter.Next(); i++ {
		s, err := iter.Value().String()
		if err != nil {
			d.errs = append(d.errs, formatCUEError(err, ErrCodeTypeMismatch, d.block, fmt.Sprintf("%s[%d]", field, i)))
			continue
		}
		out = append(out, strings.TrimSpace(s))
	}
	return out
}

// steps reads step groups. Each item is either a comma separated string or
// a list of event names. A plain string is a single step group.
func (d *decoder) steps(field string) [][]string {
	f, ok := d.lookup(field)
	if !ok {
		return nil
	}
	if s, err := f.String(); err == nil {
		return [][]string{SplitEvents(s)}
	}
	iter, err := f.List()
	if err != nil {
		d.errs = append(d.errs, formatCUEError(err, ErrCodeTypeMismatch, d.block, field))
		return nil
	}
	var groups [][]string
	for i := 0; iter.Next(); i++ {
		item := iter.Value()
		var group []string
		if s, err := item.String(); err == nil {
			group = SplitEvents(s)
		} else {
			members, err := item.List()
			if err != nil {
				d.errs = append(d.errs, formatCUEError(err, ErrCodeTypeMismatch, d.block, fmt.Sprintf("%s[%d]", field, i)))
				continue
			}
			for members.Next() {
				s, err := members.Value().String()
				if err != nil {
					d.errs = append(d.errs, formatCUEError(err, ErrCodeTypeMismatch, d.block, fmt.Sprintf("%s[%d]", field, i)))
					continue
				}
				group = append(group, strings.TrimSpace(s))
			}
		}
		groups = append(groups, group)
	}
	return groups
}

func (d *decoder) boolean(field string, def bool) bool {
	f, ok := d.lookup(field)
	if !ok {
		return def
	}
	b, err := f.Bool()
	if err != nil {
		d.errs = append(d.errs, formatCUEError(err, ErrCodeTypeMismatch, d.block, field))
		return def
	}
	return b
}

func (d *decoder) str(field, def string) string {
	f, ok := d.lookup(field)
	if !ok {
		return def
	}
	s, err := f.String()
	if err != nil {
		d.errs = append(d.errs, formatCUEError(err, ErrCodeTypeMismatch, d.block, field))
		return def
	}
	return s
}

func (d *decoder) integer(field string, def int64) int64 {
	f, ok := d.lookup(field)
	if !ok {
		return def
	}
	n, err := f.Int64()
	if err != nil {
		d.errs = append(d.errs, formatCUEError(err, ErrCodeTypeMismatch, d.block, field))
		return def
	}
	return n
}

// expr reads an int-or-expression field. Syntax is checked by ValidateDefs.
func (d *decoder) expr(field string, def ir.Expr) ir.Expr {
	f, ok := d.lookup(field)
	if !ok {
		return def
	}
	if n, err := f.Int64(); err == nil {
		return ir.ExprInt(n)
	}
	s, err := f.String()
	if err != nil {
		d.errs = append(d.errs, formatCUEError(err, ErrCodeTypeMismatch, d.block, field))
		return def
	}
	return ir.Expr(strings.TrimSpace(s))
}

func (d *decoder) window(field string) time.Duration {
	f, ok := d.lookup(field)
	if !ok {
		return 0
	}
	if ms, err := f.Int64(); err == nil {
		if ms < 0 {
			d.fail(field, f, ErrCodeInvalidDuration, "must not be negative")
			return 0
		}
		return time.Duration(ms) * time.Millisecond
	}
	s, err := f.String()
	if err != nil {
		d.errs = append(d.errs, formatCUEError(err, ErrCodeTypeMismatch, d.block, field))
		return 0
	}
	dur, err := ParseWindow(s)
	if err != nil {
		d.fail(field, f, ErrCodeInvalidDuration, err.Error())
		return 0
	}
	return dur
}

// SplitEvents splits a comma separated event list, trimming blanks.
// Empty entries are dropped.
func SplitEvents(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseWindow parses a debounce window. Bare integers are milliseconds;
// anything else uses Go duration syntax ("1s", "250ms").
func ParseWindow(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		if ms < 0 {
			return 0, fmt.Errorf("window %q must not be negative", s)
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid window %q: want milliseconds or a duration like 1s", s)
	}
	if dur < 0 {
		return 0, fmt.Errorf("window %q must not be negative", s)
	}
	return dur, nil
}

package compiler

import (
	"fmt"
	"strings"

	"github.com/ajgabz/mpf/internal/expr"
	"github.com/ajgabz/mpf/internal/ir"
)

// ValidateDefs checks compiled block definitions against the semantic rules
// the schema cannot express. It returns all errors found (does not fail-fast).
//
// Definitions built in Go rather than loaded from a document go through the
// same checks when an engine is constructed.
func ValidateDefs(defs []ir.BlockDef) []*ConfigError {
	var errs []*ConfigError
	seen := make(map[string]bool, len(defs))

	for i, d := range defs {
		if strings.TrimSpace(d.Name) == "" {
			errs = append(errs, &ConfigError{
				Code:    ErrCodeMissingField,
				Field:   fmt.Sprintf("blocks[%d].name", i),
				Message: "block name is required",
			})
			continue
		}
		if seen[d.Name] {
			errs = append(errs, &ConfigError{
				Code:    ErrCodeDuplicateName,
				Block:   d.Name,
				Message: fmt.Sprintf("block %q is declared more than once", d.Name),
			})
		}
		seen[d.Name] = true

		if d.Params == nil {
			errs = append(errs, &ConfigError{Code: ErrCodeMissingField, Block: d.Name, Field: "params", Message: "block parameters are required"})
			continue
		}
		if d.Params.Kind() != d.Kind {
			errs = append(errs, &ConfigError{
				Code:    ErrCodeKindMismatch,
				Block:   d.Name,
				Message: fmt.Sprintf("kind %q does not match %s parameters", d.Kind, d.Params.Kind()),
			})
			continue
		}

		lists := []struct {
			field  string
			events []string
		}{
			{"enable_events", d.EnableEvents},
			{"disable_events", d.DisableEvents},
			{"reset_events", d.ResetEvents},
			{"restart_events", d.RestartEvents},
			{"events_when_complete", d.EventsWhenComplete},
			{"events_when_hit", d.EventsWhenHit},
		}
		for _, l := range lists {
			errs = append(errs, checkEventNames(d.Name, l.field, l.events)...)
		}

		switch p := d.Params.(type) {
		case ir.AccrualParams:
			errs = append(errs, validateSteps(d.Name, p.Steps)...)
		case ir.SequenceParams:
			errs = append(errs, validateSteps(d.Name, p.Steps)...)
		case ir.CounterParams:
			errs = append(errs, validateCounter(d.Name, p)...)
		}
	}

	return errs
}

func checkEventNames(block, field string, events []string) []*ConfigError {
	var errs []*ConfigError
	for i, e := range events {
		if strings.TrimSpace(e) == "" {
			errs = append(errs, &ConfigError{
				Code:    ErrCodeEmptyEvent,
				Block:   block,
				Field:   fmt.Sprintf("%s[%d]", field, i),
				Message: "event name must not be empty",
			})
		}
	}
	return errs
}

func validateSteps(block string, steps [][]string) []*ConfigError {
	if len(steps) == 0 {
		return []*ConfigError{{Code: ErrCodeEmptyEvent, Block: block, Field: "events", Message: "at least one step is required"}}
	}
	var errs []*ConfigError
	for i, group := range steps {
		field := fmt.Sprintf("events[%d]", i)
		if len(group) == 0 {
			errs = append(errs, &ConfigError{Code: ErrCodeEmptyEvent, Block: block, Field: field, Message: "step group must name at least one event"})
			continue
		}
		errs = append(errs, checkEventNames(block, field, group)...)
	}
	return errs
}

func validateCounter(block string, p ir.CounterParams) []*ConfigError {
	var errs []*ConfigError

	if len(p.CountEvents) == 0 {
		errs = append(errs, &ConfigError{Code: ErrCodeEmptyEvent, Block: block, Field: "count_events", Message: "at least one count event is required"})
	}
	errs = append(errs, checkEventNames(block, "count_events", p.CountEvents)...)

	if p.Direction != ir.DirectionUp && p.Direction != ir.DirectionDown {
		errs = append(errs, &ConfigError{
			Code: ErrCodeTypeMismatch, Block: block, Field: "direction",
			Message: fmt.Sprintf("direction must be %q or %q, got %q", ir.DirectionUp, ir.DirectionDown, p.Direction),
		})
	}
	if p.MultipleHitWindow < 0 {
		errs = append(errs, &ConfigError{Code: ErrCodeInvalidDuration, Block: block, Field: "multiple_hit_window", Message: "must not be negative"})
	}

	if _, err := compileExpr(block, "starting_count", p.StartingCount); err != nil {
		errs = append(errs, err)
	}
	if _, err := compileExpr(block, "count_complete_value", p.CompleteValue); err != nil {
		errs = append(errs, err)
	}

	// Bounds do not matter: a counter already at its target still moves
	// away from it on the first hit.
	if p.Diverges() {
		errs = append(errs, &ConfigError{
			Code: ErrCodeDivergent, Block: block, Field: "count_interval",
			Message: fmt.Sprintf("counting %s by %d moves away from count_complete_value", p.Direction, p.CountInterval),
		})
	}
	return errs
}

func compileExpr(block, field string, src ir.Expr) (*expr.Expression, *ConfigError) {
	e, err := expr.Compile(string(src))
	if err != nil {
		return nil, &ConfigError{Code: ErrCodeInvalidExpr, Block: block, Field: field, Message: err.Error()}
	}
	return e, nil
}

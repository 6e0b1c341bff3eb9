package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/ajgabz/mpf/internal/ir"
)

// Predicate filters journal events by column value.
//
// This is a sealed interface: only Equals, And and Or implement it.
type Predicate interface {
	predicate()
}

// Equals matches events whose Column equals Value.
type Equals struct {
	Column string
	Value  any // string, int, int64, ir.Str or ir.Int
}

// And matches events that satisfy every predicate. An empty And matches
// every event.
type And []Predicate

// Or matches events that satisfy any predicate. An empty Or matches
// nothing.
type Or []Predicate

func (Equals) predicate() {}
func (And) predicate()    {}
func (Or) predicate()     {}

// EventQuery selects events of one session. Results are always ordered by
// seq, then id.
type EventQuery struct {
	SessionID string
	Filter    Predicate // nil matches every event
}

// queryColumns are the event columns a Predicate may name. Payload and
// offset are not filterable.
var queryColumns = map[string]bool{
	"seq":        true,
	"flow_token": true,
	"name":       true,
	"source":     true,
	"cause_seq":  true,
}

// compile renders the query as parameterized SQL. Values are never
// interpolated.
func (q EventQuery) compile() (string, []any, error) {
	where := "session_id = ?"
	params := []any{q.SessionID}

	if q.Filter != nil {
		sql, filterParams, err := compilePredicate(q.Filter)
		if err != nil {
			return "", nil, err
		}
		where += " AND " + sql
		params = append(params, filterParams...)
	}

	return "SELECT " + eventColumns + " FROM events WHERE " + where +
		" ORDER BY seq ASC, id COLLATE BINARY ASC", params, nil
}

func compilePredicate(p Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case Equals:
		if !queryColumns[pred.Column] {
			return "", nil, fmt.Errorf("unknown event column %q", pred.Column)
		}
		param, err := queryParam(pred.Value)
		if err != nil {
			return "", nil, fmt.Errorf("column %s: %w", pred.Column, err)
		}
		return pred.Column + " = ?", []any{param}, nil
	case And:
		return compileJunction([]Predicate(pred), " AND ", "1 = 1")
	case Or:
		return compileJunction([]Predicate(pred), " OR ", "0 = 1")
	case nil:
		return "1 = 1", nil, nil
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func compileJunction(preds []Predicate, op, empty string) (string, []any, error) {
	if len(preds) == 0 {
		return empty, nil, nil
	}
	parts := make([]string, 0, len(preds))
	var params []any
	for _, pred := range preds {
		sql, p, err := compilePredicate(pred)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		params = append(params, p...)
	}
	if len(parts) == 1 {
		return parts[0], params, nil
	}
	return "(" + strings.Join(parts, op) + ")", params, nil
}

// queryParam converts a filter value to a SQL parameter.
func queryParam(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case int:
		return int64(val), nil
	case int64:
		return val, nil
	case ir.Str:
		return string(val), nil
	case ir.Int:
		return int64(val), nil
	default:
		return nil, fmt.Errorf("unsupported filter value type %T", v)
	}
}

// QueryEvents returns the events of a session matching q.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) QueryEvents(ctx context.Context, q EventQuery) ([]EventRecord, error) {
	sql, params, err := q.compile()
	if err != nil {
		return nil, fmt.Errorf("compile query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, sql, params...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	return collectEvents(rows)
}

package expr

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Context is the read-only player/game context expressions are evaluated
// against. Lookup returns the value at path and whether it exists.
//
// Values are plain Go values: string, bool, any integer or float kind,
// map[string]any, []any, or nil.
type Context interface {
	Lookup(path []string) (any, bool)
}

// Empty is a Context with no values.
var Empty Context = MapContext{}

// MapContext is a Context backed by nested maps, as decoded from YAML.
type MapContext map[string]any

// Lookup implements Context.
func (m MapContext) Lookup(path []string) (any, bool) {
	if len(path) == 0 {
		return nil, false
	}
	var cur any = map[string]any(m)
	for _, key := range path {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[key]
			if !ok {
				return nil, false
			}
			cur = next
		case MapContext:
			next, ok := node[key]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

// Set stores value at a dotted path, creating intermediate maps.
// An existing non-map value on the path is replaced.
func (m MapContext) Set(path string, value any) error {
	keys := strings.Split(path, ".")
	for _, k := range keys {
		if k == "" {
			return fmt.Errorf("invalid context path %q", path)
		}
	}
	cur := map[string]any(m)
	for _, k := range keys[:len(keys)-1] {
		next, ok := cur[k].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[k] = next
		}
		cur = next
	}
	cur[keys[len(keys)-1]] = value
	return nil
}

// LoadContext decodes a YAML document into a MapContext.
// An empty document yields an empty context.
func LoadContext(r io.Reader) (MapContext, error) {
	var raw map[string]any
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		if err == io.EOF {
			return MapContext{}, nil
		}
		return nil, fmt.Errorf("decode context: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return MapContext(raw), nil
}

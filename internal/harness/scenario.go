package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ajgabz/mpf/internal/compiler"
)

// Scenario defines a conformance test scenario.
// A scenario loads a logic block document, drives the engine through a list
// of steps and asserts on the resulting trace and final block states.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Config is the path of the logic block document, relative to the
	// scenario file. Exactly one of Config and Blocks must be set.
	Config string `yaml:"config,omitempty"`

	// Blocks is an inline logic block document (accruals, counters,
	// sequences sections). Kept as a node so declaration order survives.
	Blocks *yaml.Node `yaml:"blocks,omitempty"`

	// Context is the initial player/game context for dynamic values.
	Context map[string]any `yaml:"context,omitempty"`

	// MaxSteps overrides the engine's per-flow quota when positive.
	MaxSteps int `yaml:"max_steps,omitempty"`

	// Steps are executed in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	// Supported types: emitted_contains, emitted_order, emitted_count,
	// block_state, error
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one scenario action. Exactly one of Post, Advance and Set is
// used per step.
type Step struct {
	// Post is an input event name.
	Post string `yaml:"post,omitempty"`

	// Payload is the optional input payload for Post.
	Payload map[string]any `yaml:"payload,omitempty"`

	// Advance moves the manual clock forward (Go duration syntax, e.g.
	// "1500ms"). Debounce windows due in that time close.
	Advance string `yaml:"advance,omitempty"`

	// Set changes context values by dotted path. Blocks see them on their
	// next reset or restart.
	Set map[string]any `yaml:"set,omitempty"`

	// Expect checks the outcome of a Post step.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected outcome of one Post.
type ExpectClause struct {
	// Emitted is the exact list of emitted event names, in order.
	// An empty list expects no emissions.
	Emitted []string `yaml:"emitted"`

	// Error is the expected error code (e.g. CYCLE_DETECTED). Empty means
	// the post must succeed.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "emitted_contains": an emitted event with name, source and payload subset
	// - "emitted_order": events appear in order (not necessarily adjacent)
	// - "emitted_count": event appears exactly Count times
	// - "block_state": final state of Block matches Expect (subset)
	// - "error": a post failed with Code
	Type string `yaml:"type"`

	// Event is the event name (emitted_contains, emitted_count).
	Event string `yaml:"event,omitempty"`

	// Source is the emitting block (emitted_contains, optional).
	Source string `yaml:"source,omitempty"`

	// Payload is the expected payload subset (emitted_contains).
	Payload map[string]any `yaml:"payload,omitempty"`

	// Events is the expected order (emitted_order).
	Events []string `yaml:"events,omitempty"`

	// Count is the expected number of occurrences (emitted_count).
	Count int `yaml:"count,omitempty"`

	// Block is the block name (block_state).
	Block string `yaml:"block,omitempty"`

	// Expect contains expected state fields (block_state): enabled,
	// completed, status, step, count, target, window_open, hits.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Code is the expected error code (error).
	Code string `yaml:"code,omitempty"`
}

// Assertion type constants.
const (
	AssertEmittedContains = "emitted_contains"
	AssertEmittedOrder    = "emitted_order"
	AssertEmittedCount    = "emitted_count"
	AssertBlockState      = "block_state"
	AssertError           = "error"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
//
// A relative Config path is resolved against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.Config != "" && !filepath.IsAbs(scenario.Config) {
		scenario.Config = filepath.Join(filepath.Dir(path), scenario.Config)
	}
	return scenario, nil
}

// ParseScenario parses scenario YAML. Config paths are left as written.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadConfig compiles the scenario's logic block document.
func (s *Scenario) LoadConfig() (*compiler.Config, error) {
	if s.Config != "" {
		return compiler.LoadFile(s.Config)
	}
	if s.Blocks == nil {
		return nil, fmt.Errorf("scenario %s has no blocks", s.Name)
	}
	data, err := yaml.Marshal(s.Blocks)
	if err != nil {
		return nil, fmt.Errorf("encode inline blocks: %w", err)
	}
	return compiler.Load(s.Name+".yaml", data)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Config == "" && s.Blocks == nil {
		return fmt.Errorf("one of config or blocks is required")
	}
	if s.Config != "" && s.Blocks != nil {
		return fmt.Errorf("config and blocks are mutually exclusive")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("at least one step is required")
	}
	if s.MaxSteps < 0 {
		return fmt.Errorf("max_steps must not be negative")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step Step) error {
	actions := 0
	if step.Post != "" {
		actions++
	}
	if step.Advance != "" {
		actions++
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return fmt.Errorf("steps[%d]: invalid advance duration %q: %w", index, step.Advance, err)
		}
		if d < 0 {
			return fmt.Errorf("steps[%d]: advance must not be negative", index)
		}
	}
	if len(step.Set) > 0 {
		actions++
	}
	if actions != 1 {
		return fmt.Errorf("steps[%d]: exactly one of post, advance or set is required", index)
	}
	if step.Post == "" && (step.Expect != nil || step.Payload != nil) {
		return fmt.Errorf("steps[%d]: expect and payload only apply to post", index)
	}
	return nil
}

// validateAssertion checks that an assertion has required fields for its type.
func validateAssertion(index int, a Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertEmittedContains:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for emitted_contains", index)
		}
	case AssertEmittedOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for emitted_order", index)
		}
	case AssertEmittedCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for emitted_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for emitted_count", index)
		}
	case AssertBlockState:
		if a.Block == "" {
			return fmt.Errorf("assertions[%d]: block is required for block_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for block_state", index)
		}
	case AssertError:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for error", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

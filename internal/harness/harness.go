package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/ajgabz/mpf/internal/engine"
	"github.com/ajgabz/mpf/internal/expr"
	"github.com/ajgabz/mpf/internal/ir"
	"github.com/ajgabz/mpf/internal/store"
	"github.com/ajgabz/mpf/internal/testutil"
)

// Harness is the test execution engine.
// It runs one scenario against a real engine with a manual clock, numbered
// flow tokens and an in-memory journal.
type Harness struct {
	store   *store.Store
	engine  *engine.Engine
	clock   *engine.ManualTime
	context expr.MapContext
	logger  *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Deterministic helpers ensure reproducible results.
//
// Execution flow:
// 1. Compile the logic block document
// 2. Create fresh in-memory journal and engine
// 3. Execute steps, checking expect clauses
// 4. Read the trace back from the journal
// 5. Evaluate assertions against trace and final states
//
// An error is returned only when the scenario cannot run at all (bad
// config, journal failure). Failed expectations are reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	cfg, err := scenario.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Create fresh in-memory SQLite database
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	clock := testutil.NewManualTime()
	resolver := expr.MapContext(copyMap(scenario.Context))

	opts := []engine.EngineOption{
		engine.WithTimeSource(clock),
		engine.WithResolver(resolver),
		engine.WithFlowGenerator(testutil.NewSequentialFlowGenerator("")),
		engine.WithStore(st),
		engine.WithSessionID(scenario.Name),
	}
	if scenario.MaxSteps > 0 {
		opts = append(opts, engine.WithMaxSteps(scenario.MaxSteps))
	}
	eng, err := engine.New(cfg.Blocks, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	defer eng.Close()

	h := &Harness{
		store:   st,
		engine:  eng,
		clock:   clock,
		context: resolver,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	ctx := context.Background()
	result := NewResult()

	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, err
		}
	}

	records, err := st.ReadJournal(ctx, eng.SessionID())
	if err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}
	for _, rec := range records {
		result.Trace = append(result.Trace, traceEventFrom(rec))
	}
	result.States = eng.States()

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}
	return result, nil
}

// executeStep runs one step. Only setup problems (bad payload or context
// path) are returned as errors.
func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) error {
	switch {
	case step.Post != "":
		return h.post(ctx, i, step, result)

	case step.Advance != "":
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		h.clock.Advance(d)
		h.logger.Info("clock advanced", "step", i, "by", d, "elapsed", testutil.Elapsed(h.clock))

	default:
		for _, path := range sortedKeys(step.Set) {
			if err := h.context.Set(path, step.Set[path]); err != nil {
				return fmt.Errorf("step %d: %w", i, err)
			}
		}
		h.logger.Info("context updated", "step", i, "paths", len(step.Set))
	}
	return nil
}

func (h *Harness) post(ctx context.Context, i int, step Step, result *Result) error {
	payload, err := ir.PayloadFromMap(step.Payload)
	if err != nil {
		return fmt.Errorf("step %d: invalid payload: %w", i, err)
	}
	if len(payload) == 0 {
		payload = nil
	}

	emitted, postErr := h.engine.Post(ctx, step.Post, payload)

	code := ""
	if postErr != nil {
		code = string(engine.ErrorCode(postErr))
		result.Failures = append(result.Failures, Failure{
			Step:  i,
			Event: step.Post,
			Code:  code,
			Error: postErr.Error(),
		})
	}

	h.logger.Info("step posted",
		"step", i,
		"event", step.Post,
		"emitted", len(emitted),
		"error", code,
	)

	if step.Expect == nil {
		return nil
	}

	got := make([]string, len(emitted))
	for j, ev := range emitted {
		got[j] = ev.Name
	}
	want := step.Expect.Emitted
	if want == nil {
		want = []string{}
	}
	if !slices.Equal(got, want) {
		result.AddError(fmt.Sprintf("step %d (post %s): expected emitted %v, got %v", i, step.Post, want, got))
	}
	if code != step.Expect.Error {
		result.AddError(fmt.Sprintf("step %d (post %s): expected error %q, got %q", i, step.Post, step.Expect.Error, code))
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// copyMap deep-copies nested maps so Set steps never touch the scenario.
func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			out[k] = copyMap(nested)
			continue
		}
		out[k] = v
	}
	return out
}

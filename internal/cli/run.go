package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ajgabz/mpf/internal/engine"
	"github.com/ajgabz/mpf/internal/ir"
	"github.com/ajgabz/mpf/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Context  string
	Events   string
	Session  string
	MaxSteps int
	Simulate bool

	// FlowGenerator allows overriding the flow token generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	FlowGenerator engine.FlowTokenGenerator
}

// RunResult is the outcome of feeding an events file through the engine.
type RunResult struct {
	Session    string              `json:"session"`
	ConfigHash string              `json:"config_hash"`
	Steps      []RunStep           `json:"steps"`
	States     []engine.BlockState `json:"states"`
	Failed     int                 `json:"failed"`
}

// RunStep is one posted input and what it produced.
type RunStep struct {
	Line    int        `json:"line"`
	Event   string     `json:"event"`
	Payload ir.Payload `json:"payload,omitempty"`
	Emitted []ir.Event `json:"emitted"`
	Code    string     `json:"code,omitempty"`
	Error   string     `json:"error,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <config>",
		Short: "Feed events through the logic blocks",
		Long: `Load a logic block document and post events to it.

Events are read one per line from --events (or stdin):

  # comment
  ball_started
  player_score {"points": 100}
  wait 1500ms

Every emitted event is printed under the input that caused it, followed by
the final block states. With --db each event is journaled to a SQLite
database for later trace and replay. With --simulate, wait lines advance a
simulated clock instead of sleeping.

Example:
  logicblocks run ./logic_blocks.yaml --events ./events.txt --context ./machine.yaml
  logicblocks run ./logic_blocks.yaml --db ./journal.db --simulate < events.txt`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal database")
	cmd.Flags().StringVar(&opts.Context, "context", "", "YAML context document for dynamic values")
	cmd.Flags().StringVar(&opts.Events, "events", "", "events file (default stdin)")
	cmd.Flags().StringVar(&opts.Session, "session", "", "journal session id (default UUIDv7)")
	cmd.Flags().IntVar(&opts.MaxSteps, "max-steps", engine.DefaultMaxSteps, "maximum events processed per input")
	cmd.Flags().BoolVar(&opts.Simulate, "simulate", false, "advance a simulated clock on wait lines")

	return cmd
}

func runEngine(opts *RunOptions, configPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := mustLoadConfig(formatter, configPath)
	if err != nil {
		return err
	}

	resolver, err := loadContext(opts.Context)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeContext, "failed to read context", err)
	}

	lines, err := readEventLines(opts.Events, cmd.InOrStdin())
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeEvents, "failed to read events", err)
	}
	formatter.VerboseLog("Read %d input line(s)", len(lines))

	flowGen := opts.FlowGenerator
	if flowGen == nil {
		flowGen = engine.UUIDv7Generator{}
	}
	engineOpts := []engine.EngineOption{
		engine.WithResolver(resolver),
		engine.WithFlowGenerator(flowGen),
		engine.WithMaxSteps(opts.MaxSteps),
		engine.WithListener(func(ev ir.Event) {
			slog.Debug("emitted", "event", ev.Name, "source", ev.Source, "seq", ev.Seq, "flow_token", ev.FlowToken)
		}),
	}

	var timeSource engine.TimeSource = engine.SystemTime{}
	var manual *engine.ManualTime
	if opts.Simulate {
		manual = engine.NewManualTime(time.Now().UTC().Truncate(time.Second))
		timeSource = manual
	}
	engineOpts = append(engineOpts, engine.WithTimeSource(timeSource))

	if opts.Database != "" {
		slog.Info("opening database", "path", opts.Database)
		st, err := store.Open(opts.Database)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing database", "error", closeErr)
			}
		}()
		engineOpts = append(engineOpts, engine.WithStore(st))
	}
	if opts.Session != "" {
		engineOpts = append(engineOpts, engine.WithSessionID(opts.Session))
	}

	eng, err := engine.New(cfg.Blocks, engineOpts...)
	if err != nil {
		return formatter.Fail(ExitFailure, string(engine.ErrorCode(err)), "failed to create engine", err)
	}
	defer eng.Close()

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	result := RunResult{
		Session:    eng.SessionID(),
		ConfigHash: eng.ConfigHash(),
		Steps:      []RunStep{},
	}

	for _, line := range lines {
		if line.Event == "" {
			if err := wait(ctx, manual, line.Wait); err != nil {
				break
			}
			continue
		}

		emitted, postErr := eng.Post(ctx, line.Event, line.Payload)
		step := RunStep{Line: line.Line, Event: line.Event, Payload: line.Payload, Emitted: emitted}
		if step.Emitted == nil {
			step.Emitted = []ir.Event{}
		}
		if postErr != nil {
			if ctx.Err() != nil {
				break
			}
			step.Code = string(engine.ErrorCode(postErr))
			step.Error = postErr.Error()
			result.Failed++
		}
		result.Steps = append(result.Steps, step)
	}

	result.States = eng.States()
	slog.Info("run finished", "session", result.Session, "inputs", len(result.Steps), "failed", result.Failed)

	if formatter.JSON() {
		if result.Failed > 0 {
			if err := formatter.Failure(ErrCodeGeneric, fmt.Sprintf("%d input(s) failed", result.Failed), result); err != nil {
				return err
			}
		} else if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		printRunResult(formatter.Writer, result, opts.Database != "")
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d input(s) failed", result.Failed))
	}
	return nil
}

// wait pauses between inputs: the simulated clock jumps, the real one
// sleeps until d passes or ctx is cancelled.
func wait(ctx context.Context, manual *engine.ManualTime, d time.Duration) error {
	if manual != nil {
		manual.Advance(d)
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func readEventLines(path string, stdin io.Reader) ([]InputLine, error) {
	if path == "" || path == "-" {
		return ParseEvents(stdin)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ParseEvents(file)
}

func printRunResult(w io.Writer, result RunResult, journaled bool) {
	for _, step := range result.Steps {
		fmt.Fprintf(w, "> %s%s\n", step.Event, formatPayload(step.Payload))
		for _, ev := range step.Emitted {
			fmt.Fprintf(w, "    %s <- %s%s\n", ev.Name, ev.Source, formatPayload(ev.Payload))
		}
		if step.Code != "" {
			fmt.Fprintf(w, "    ✗ %s: %s\n", step.Code, step.Error)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Blocks ===")
	for _, s := range result.States {
		fmt.Fprintf(w, "  %s\n", formatState(s))
	}

	if journaled {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Session: %s\n", result.Session)
	}
}

// formatState renders a block state in one line.
func formatState(s engine.BlockState) string {
	line := fmt.Sprintf("%-12s %-9s %-11s", s.Name, s.Kind, s.Status)
	if s.Kind == ir.KindCounter {
		line += fmt.Sprintf(" count=%d target=%d", s.Count, s.Target)
		if s.WindowOpen {
			line += " window=open"
		}
		return line
	}
	line += fmt.Sprintf(" step=%d/%d", s.Step, s.Steps)
	if len(s.Hits) > 0 {
		line += fmt.Sprintf(" hits=%v", s.Hits)
	}
	return line
}

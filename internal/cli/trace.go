package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ajgabz/mpf/internal/ir"
	"github.com/ajgabz/mpf/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database  string
	Session   string // optional - defaults to the latest session
	FlowToken string // optional - one flow only
	Block     string // optional - filter emissions to one source block
	Event     string // optional - filter emissions to one event name
}

// TraceEvent is one journaled event in a flow timeline.
type TraceEvent struct {
	Seq      int64      `json:"seq"`
	Name     string     `json:"name"`
	Source   string     `json:"source,omitempty"`
	CauseSeq int64      `json:"cause_seq,omitempty"`
	Payload  ir.Payload `json:"payload,omitempty"`
	OffsetMs int64      `json:"offset_ms"`
}

// FlowTrace is one input event and the chain it caused.
type FlowTrace struct {
	FlowToken string          `json:"flow_token"`
	Events    []TraceEvent    `json:"events"`
	Failures  []store.Failure `json:"failures,omitempty"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Session string      `json:"session"`
	Flows   []FlowTrace `json:"flows"`
	Stats   TraceStats  `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Inputs   int `json:"inputs"`
	Emitted  int `json:"emitted"`
	Failures int `json:"failures"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the journaled event chains of a session",
		Long: `Show what each input event caused.

Every input posted to the engine starts a flow: the input, the events
blocks emitted in response, the events those caused, and so on. trace
prints the flows of a journaled session as indented causal chains,
together with any failures (cycles, quota, block errors).

Examples:
  logicblocks trace --db ./journal.db
  logicblocks trace --db ./journal.db --session 0190... --flow 0190...
  logicblocks trace --db ./journal.db --block counter3 --format json
  logicblocks trace --db ./journal.db --event accrual1_complete`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session id (default latest)")
	cmd.Flags().StringVar(&opts.FlowToken, "flow", "", "flow token to trace")
	cmd.Flags().StringVar(&opts.Block, "block", "", "only show emissions of this block")
	cmd.Flags().StringVar(&opts.Event, "event", "", "only show emissions with this name")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	st, err := openJournal(formatter, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	sess, err := findSession(ctx, st, opts.Session)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, "failed to find session", err)
	}

	tokens := []string{opts.FlowToken}
	if opts.FlowToken == "" {
		tokens, err = st.ListFlowTokens(ctx, sess.ID)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to list flow tokens", err)
		}
	}

	failures, err := st.ReadFailures(ctx, sess.ID)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to read failures", err)
	}

	result := TraceResult{Session: sess.ID, Flows: []FlowTrace{}}
	for _, token := range tokens {
		records, err := readFlow(ctx, st, sess.ID, token, opts)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeDatabase, fmt.Sprintf("failed to read flow %s", token), err)
		}
		flow := buildFlow(token, records, failures, opts.Block != "" || opts.Event != "")
		if len(flow.Events) == 0 {
			continue
		}
		result.Stats.add(flow)
		result.Flows = append(result.Flows, flow)
	}

	if opts.FlowToken != "" && len(result.Flows) == 0 {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("no events found for flow %s", opts.FlowToken), nil)
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}
	return outputTraceText(formatter.Writer, result, opts.Verbose)
}

// openJournal opens an existing journal. store.Open would create a
// missing file, which is never what a reader wants.
func openJournal(f *OutputFormatter, path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeDatabase, "database not found", err)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeDatabase, "failed to open database", err)
	}
	return st, nil
}

// findSession returns the named session, or the latest when id is empty.
func findSession(ctx context.Context, st *store.Store, id string) (store.Session, error) {
	if id != "" {
		return st.ReadSession(ctx, id)
	}
	sess, err := st.LatestSession(ctx)
	if errors.Is(err, store.ErrNoSessions) {
		return store.Session{}, fmt.Errorf("database has no journaled sessions")
	}
	return sess, err
}

// readFlow reads one flow. With a block or event filter only the input
// and the matching emissions are read.
func readFlow(ctx context.Context, st *store.Store, sessionID, token string, opts *TraceOptions) ([]store.EventRecord, error) {
	if opts.Block == "" && opts.Event == "" {
		return st.ReadFlow(ctx, token)
	}
	return st.QueryEvents(ctx, flowQuery(sessionID, token, opts.Block, opts.Event))
}

// flowQuery selects the input of a flow plus the emissions of block named
// event. An empty block or event matches any.
func flowQuery(sessionID, token, block, event string) store.EventQuery {
	var emitted store.And
	if block != "" {
		emitted = append(emitted, store.Equals{Column: "source", Value: block})
	}
	if event != "" {
		emitted = append(emitted, store.Equals{Column: "name", Value: event})
	}
	return store.EventQuery{
		SessionID: sessionID,
		Filter: store.And{
			store.Equals{Column: "flow_token", Value: token},
			store.Or{store.Equals{Column: "source", Value: ""}, emitted},
		},
	}
}

// buildFlow converts journal records into a flow timeline. A filtered
// flow where only the input is left is dropped.
func buildFlow(token string, records []store.EventRecord, failures []store.Failure, filtered bool) FlowTrace {
	flow := FlowTrace{FlowToken: token, Events: []TraceEvent{}}
	for _, rec := range records {
		flow.Events = append(flow.Events, TraceEvent{
			Seq:      rec.Seq,
			Name:     rec.Name,
			Source:   rec.Source,
			CauseSeq: rec.CauseSeq,
			Payload:  rec.Payload,
			OffsetMs: rec.Offset.Milliseconds(),
		})
	}
	if filtered && len(flow.Events) == 1 {
		// The filter matched nothing in this flow.
		flow.Events = nil
	}
	for _, f := range failures {
		if f.FlowToken == token {
			flow.Failures = append(flow.Failures, f)
		}
	}
	return flow
}

func (s *TraceStats) add(flow FlowTrace) {
	for _, ev := range flow.Events {
		if ev.Source == "" {
			s.Inputs++
		} else {
			s.Emitted++
		}
	}
	s.Failures += len(flow.Failures)
}

// outputTraceText prints each flow as an indented causal chain.
func outputTraceText(w io.Writer, result TraceResult, verbose bool) error {
	fmt.Fprintf(w, "Session: %s\n\n", result.Session)

	if len(result.Flows) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	for _, flow := range result.Flows {
		if verbose {
			fmt.Fprintf(w, "flow %s\n", flow.FlowToken)
		}
		depth := map[int64]int{}
		for _, ev := range flow.Events {
			d := 0
			if ev.CauseSeq != 0 {
				d = depth[ev.CauseSeq] + 1
			}
			depth[ev.Seq] = d
			indent := strings.Repeat("  ", d)

			if ev.Source == "" {
				fmt.Fprintf(w, "[%d] %s+%dms %s%s\n", ev.Seq, indent, ev.OffsetMs, ev.Name, formatPayload(ev.Payload))
				continue
			}
			fmt.Fprintf(w, "[%d] %s-> %s <- %s%s\n", ev.Seq, indent, ev.Name, ev.Source, formatPayload(ev.Payload))
		}
		for _, f := range flow.Failures {
			fmt.Fprintf(w, "    ✗ %s %s\n", f.Code, f.Message)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Inputs:   %d\n", result.Stats.Inputs)
	fmt.Fprintf(w, "  Emitted:  %d\n", result.Stats.Emitted)
	fmt.Fprintf(w, "  Failures: %d\n", result.Stats.Failures)
	return nil
}

// formatPayload renders a payload with sorted keys, or nothing when empty.
func formatPayload(p ir.Payload) string {
	if len(p) == 0 {
		return ""
	}
	parts := make([]string, 0, len(p))
	for _, k := range p.SortedKeys() {
		parts = append(parts, fmt.Sprintf("%s=%s", k, formatValue(p[k])))
	}
	return " {" + strings.Join(parts, ", ") + "}"
}

// formatValue formats a single value for display, handling nested structures deterministically.
func formatValue(v ir.Value) string {
	switch val := v.(type) {
	case ir.Payload:
		return strings.TrimPrefix(formatPayload(val), " ")
	case ir.List:
		parts := make([]string, len(val))
		for i, elem := range val {
			parts[i] = formatValue(elem)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case ir.Str:
		return string(val)
	default:
		return fmt.Sprintf("%v", v)
	}
}

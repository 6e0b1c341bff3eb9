package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ajgabz/mpf/internal/engine"
	"github.com/ajgabz/mpf/internal/store"
)

// ErrCodeConfigMismatch is returned when the document differs from the
// one a session was recorded with.
const ErrCodeConfigMismatch = "E008"

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Session  string // optional - defaults to the latest session
	Context  string
}

// ReplayOutput holds the replay result.
type ReplayOutput struct {
	Session       string            `json:"session"`
	ConfigHash    string            `json:"config_hash"`
	Inputs        int               `json:"inputs"`
	Recorded      int               `json:"recorded"`
	Emitted       int               `json:"emitted"`
	Errors        []string          `json:"errors,omitempty"`
	Mismatches    []engine.Mismatch `json:"mismatches,omitempty"`
	Deterministic bool              `json:"deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <config>",
		Short: "Replay a journaled session and verify determinism",
		Long: `Replay the inputs of a journaled session into a fresh engine.

Inputs are posted at their recorded time offsets with their recorded flow
tokens, and every emission is compared with the journal. The document must
be the one the session was recorded with (its configuration hash is
checked), and --context should match the context of the original run.

Exit codes:
  0 - Emissions are identical
  1 - Replay diverged from the journal
  2 - Command error (database not found, different document, etc.)

Examples:
  logicblocks replay ./logic_blocks.yaml --db ./journal.db
  logicblocks replay ./logic_blocks.yaml --db ./journal.db --session 0190...`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session id (default latest)")
	cmd.Flags().StringVar(&opts.Context, "context", "", "YAML context document of the original run")

	return cmd
}

func runReplay(opts *ReplayOptions, configPath string, cmd *cobra.Command) error {
	ctx := context.Background()
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

	st, err := openJournal(formatter, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := engine.ReplaySession(ctx, st, opts.Session, cfg.Blocks, engine.WithResolver(resolver))
	switch {
	case errors.Is(err, engine.ErrConfigMismatch):
		return formatter.Fail(ExitCommandError, ErrCodeConfigMismatch, "document does not match the session", err)
	case errors.Is(err, store.ErrNoSessions):
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, "database has no journaled sessions", nil)
	case err != nil:
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "replay failed", err)
	}

	out := ReplayOutput{
		Session:       res.Session.ID,
		ConfigHash:    cfg.Hash,
		Inputs:        res.Inputs,
		Recorded:      len(res.Recorded),
		Emitted:       len(res.Emitted),
		Errors:        res.Errors,
		Mismatches:    res.Mismatches,
		Deterministic: res.Deterministic(),
	}

	if formatter.JSON() {
		if out.Deterministic {
			if err := formatter.Success(out); err != nil {
				return err
			}
		} else if err := formatter.Failure(ErrCodeGeneric, "replay diverged from the journal", out); err != nil {
			return err
		}
	} else {
		outputReplayText(formatter.Writer, out, opts.Verbose)
	}

	if !out.Deterministic {
		return NewExitError(ExitFailure, fmt.Sprintf("replay diverged at %d position(s)", len(out.Mismatches)))
	}
	return nil
}

func outputReplayText(w io.Writer, out ReplayOutput, verbose bool) {
	fmt.Fprintf(w, "Session: %s\n", out.Session)
	fmt.Fprintf(w, "Inputs: %d, recorded emissions: %d, replayed emissions: %d\n", out.Inputs, out.Recorded, out.Emitted)

	if verbose {
		for _, e := range out.Errors {
			fmt.Fprintf(w, "  error: %s\n", e)
		}
	}

	if out.Deterministic {
		fmt.Fprintln(w, "✓ Replay is deterministic")
		return
	}

	fmt.Fprintln(w, "✗ Replay diverged")
	for _, m := range out.Mismatches {
		want, got := m.Want, m.Got
		if want == "" {
			want = "(nothing)"
		}
		if got == "" {
			got = "(nothing)"
		}
		fmt.Fprintf(w, "  #%d want %s, got %s\n", m.Index, want, got)
	}
}

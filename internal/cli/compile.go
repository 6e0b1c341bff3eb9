package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ajgabz/mpf/internal/compiler"
	"github.com/ajgabz/mpf/internal/ir"
)

// ErrCodeWriteFailed is returned when the compiled output cannot be written.
const ErrCodeWriteFailed = "E007"

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationStats holds summary statistics.
type CompilationStats struct {
	Accruals  int
	Counters  int
	Sequences int
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <config>",
		Short: "Compile a logic block document to block definitions",
		Long: `Compile a logic block document to its block definitions.

Defaults are filled in (start_enabled, reset_on_complete, count_interval,
direction), comma separated event lists are split and the definitions are
written as JSON together with the configuration hash that journals and
replays are checked against.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	cfg, err := mustLoadConfig(formatter, path)
	if err != nil {
		return err
	}

	for _, def := range cfg.Blocks {
		formatter.VerboseLog("Compiled %s: %s", def.Kind, def.Name)
	}

	// Write to file if --output specified
	if opts.Output != "" {
		if err := writeConfigToFile(cfg, opts.Output); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, "writing output file", err)
		}
	}

	return outputCompileSuccess(formatter, cfg, calculateStats(cfg), opts.Output)
}

// calculateStats counts blocks per kind.
func calculateStats(cfg *compiler.Config) CompilationStats {
	var stats CompilationStats
	for _, def := range cfg.Blocks {
		switch def.Kind {
		case ir.KindAccrual:
			stats.Accruals++
		case ir.KindCounter:
			stats.Counters++
		case ir.KindSequence:
			stats.Sequences++
		}
	}
	return stats
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, cfg *compiler.Config, stats CompilationStats, outputFile string) error {
	if formatter.JSON() {
		return formatter.Success(cfg)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled %d accrual(s), %d counter(s), %d sequence(s)\n",
		stats.Accruals, stats.Counters, stats.Sequences)
	fmt.Fprintf(w, "Config hash: %s\n\n", cfg.Hash)

	for _, def := range cfg.Blocks {
		fmt.Fprintf(w, "  %s %s: %s\n", def.Kind, def.Name, describeParams(def.Params))
	}

	if outputFile != "" {
		fmt.Fprintf(w, "\nWrote block definitions to %s\n", outputFile)
	}
	return nil
}

// describeParams renders the kind-specific part of a definition in one line.
func describeParams(p ir.BlockParams) string {
	switch params := p.(type) {
	case ir.AccrualParams:
		return describeSteps(params.Steps)
	case ir.SequenceParams:
		return describeSteps(params.Steps)
	case ir.CounterParams:
		s := fmt.Sprintf("%s by %d from %s to %s on %s",
			params.Direction, params.CountInterval, params.StartingCount, params.CompleteValue,
			strings.Join(params.CountEvents, ", "))
		if params.MultipleHitWindow > 0 {
			s += fmt.Sprintf(" (window %s)", params.MultipleHitWindow)
		}
		return s
	default:
		return fmt.Sprintf("%v", p)
	}
}

func describeSteps(steps [][]string) string {
	parts := make([]string, len(steps))
	for i, group := range steps {
		parts[i] = "[" + strings.Join(group, ", ") + "]"
	}
	return strings.Join(parts, " -> ")
}

// writeConfigToFile writes the compiled definitions as indented JSON.
func writeConfigToFile(cfg *compiler.Config, filename string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling definitions: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	return nil
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ajgabz/mpf/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                     `json:"valid"`
	Blocks   int                      `json:"blocks"`
	Errors   []ValidationError        `json:"errors,omitempty"`
	Warnings []compiler.ChainWarning `json:"warnings,omitempty"`
}

// ValidationError is a configuration error with its source position.
type ValidationError struct {
	Code    string `json:"code"`
	Block   string `json:"block,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config>",
		Short: "Check a logic block document",
		Long: `Check a logic block document without running it.

Reports every configuration error (unknown fields, wrong types, missing
events, invalid expressions, counters that can never complete) with its
position, and warns about blocks whose emitted events drive each other.

Exit codes:
  0 - Document is valid (warnings do not fail)
  1 - Document has errors
  2 - Document could not be read`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	loaded := LoadConfig(path)
	if len(loaded.Errors) == 1 && loaded.Errors[0].Code == compiler.ErrCodeReadFailed {
		return formatter.Fail(ExitCommandError, compiler.ErrCodeReadFailed, loaded.Errors[0].Message, nil)
	}

	result := ValidationResult{
		Valid:    len(loaded.Errors) == 0,
		Errors:   convertErrors(loaded.Errors),
		Warnings: loaded.Warnings,
	}
	if loaded.Config != nil {
		result.Blocks = len(loaded.Config.Blocks)
		formatter.VerboseLog("Checked %d block(s) in %s", result.Blocks, path)
	}

	if !result.Valid {
		return outputValidationErrors(formatter, result)
	}
	return outputValidateSuccess(formatter, result)
}

// convertErrors flattens config errors for output.
func convertErrors(errs []*compiler.ConfigError) []ValidationError {
	out := make([]ValidationError, 0, len(errs))
	for _, e := range errs {
		ve := ValidationError{
			Code:    e.Code,
			Block:   e.Block,
			Field:   e.Field,
			Message: e.Message,
		}
		if e.Pos.IsValid() {
			ve.Line = e.Pos.Line()
			ve.Column = e.Pos.Column()
		}
		out = append(out, ve)
	}
	return out
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.JSON() {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ %d block(s) valid\n", result.Blocks)
	printWarnings(formatter, result.Warnings)
	return nil
}

func printWarnings(formatter *OutputFormatter, warnings []compiler.ChainWarning) {
	if len(warnings) == 0 {
		return
	}
	w := formatter.Writer
	fmt.Fprintln(w)
	for _, warn := range warnings {
		fmt.Fprintf(w, "warning: %s\n", warn.Message)
	}
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	first := result.Errors[0]
	exitErr := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))

	if formatter.JSON() {
		if err := formatter.Failure(first.Code, first.Message, result); err != nil {
			return err
		}
		return exitErr
	}

	// Text format
	w := formatter.Writer
	fmt.Fprintln(w, "✗ Validation failed")
	fmt.Fprintln(w)

	for _, err := range result.Errors {
		if err.Line > 0 {
			fmt.Fprintf(w, "line %d:%d\n", err.Line, err.Column)
		}
		where := err.Block
		if err.Field != "" {
			if where != "" {
				where += "."
			}
			where += err.Field
		}
		if where != "" {
			fmt.Fprintf(w, "  %s: %s: %s\n\n", err.Code, where, err.Message)
			continue
		}
		fmt.Fprintf(w, "  %s: %s\n\n", err.Code, err.Message)
	}

	return exitErr
}

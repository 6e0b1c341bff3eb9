package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ajgabz/mpf/internal/compiler"
	"github.com/ajgabz/mpf/internal/expr"
	"github.com/ajgabz/mpf/internal/ir"
)

// LoadResult holds a checked logic block document.
type LoadResult struct {
	Config   *compiler.Config
	Errors   []*compiler.ConfigError
	Warnings []compiler.ChainWarning
}

// LoadConfig checks a logic block document, collecting every error, and
// runs chain analysis when it is valid.
func LoadConfig(path string) *LoadResult {
	cfg, errs := compiler.CheckFile(path)
	result := &LoadResult{Config: cfg, Errors: errs}
	if cfg != nil && len(errs) == 0 {
		result.Warnings = compiler.AnalyzeChains(cfg.Blocks)
	}
	return result
}

// mustLoadConfig loads a document for commands that need a valid one.
// The first configuration error becomes a failure exit.
func mustLoadConfig(f *OutputFormatter, path string) (*compiler.Config, error) {
	cfg, err := compiler.LoadFile(path)
	if err != nil {
		var cerr *compiler.ConfigError
		if errors.As(err, &cerr) {
			code := ExitFailure
			if cerr.Code == compiler.ErrCodeReadFailed {
				code = ExitCommandError
			}
			return nil, f.Fail(code, cerr.Code, "invalid logic block document", err)
		}
		return nil, f.Fail(ExitFailure, ErrCodeGeneric, "invalid logic block document", err)
	}
	f.VerboseLog("Loaded %d block(s) from %s", len(cfg.Blocks), path)
	return cfg, nil
}

// loadContext reads a YAML context document. An empty path yields an
// empty context.
func loadContext(path string) (expr.MapContext, error) {
	if path == "" {
		return expr.MapContext{}, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return expr.LoadContext(file)
}

// InputLine is one line of an events file: an event to post or a pause.
type InputLine struct {
	Line    int
	Event   string
	Payload ir.Payload
	Wait    time.Duration
}

// ParseEvents reads an events file. Each non-empty line is either
//
//	event_name
//	event_name {"json": "payload"}
//	wait 1500ms
//
// Lines starting with # are comments.
func ParseEvents(r io.Reader) ([]InputLine, error) {
	var lines []InputLine
	scanner := bufio.NewScanner(r)
	for n := 1; scanner.Scan(); n++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		name, rest, _ := strings.Cut(text, " ")
		rest = strings.TrimSpace(rest)

		if name == "wait" {
			d, err := time.ParseDuration(rest)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid wait: %w", n, err)
			}
			if d < 0 {
				return nil, fmt.Errorf("line %d: wait must not be negative", n)
			}
			lines = append(lines, InputLine{Line: n, Wait: d})
			continue
		}

		in := InputLine{Line: n, Event: name}
		if rest != "" {
			p, err := ir.ParsePayload([]byte(rest))
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid payload for %s: %w", n, name, err)
			}
			in.Payload = p
		}
		lines = append(lines, in)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	return lines, nil
}

package compiler

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"

	"github.com/ajgabz/mpf/internal/ir"
)

//go:embed schema.cue
var schemaSource string

// LoadMode controls how errors are handled during loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// Config is a compiled logic block document.
type Config struct {
	Source string        `json:"source"`
	Hash   string        `json:"hash"`
	Blocks []ir.BlockDef `json:"blocks"`
}

// Block returns the definition with the given name.
func (c *Config) Block(name string) (ir.BlockDef, bool) {
	for _, d := range c.Blocks {
		if d.Name == name {
			return d, true
		}
	}
	return ir.BlockDef{}, false
}

// LoadFile reads and compiles a logic block document.
// Files ending in .cue are read as CUE; anything else as YAML.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Code: ErrCodeReadFailed, Message: fmt.Sprintf("read config: %v", err)}
	}
	return Load(path, data)
}

// Load compiles a logic block document, failing on the first error.
// No partial configuration is ever returned.
func Load(filename string, data []byte) (*Config, error) {
	cfg, errs := compile(filename, data, LoadModeFailFast)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	return cfg, nil
}

// CheckFile is like LoadFile but collects every error.
func CheckFile(path string) (*Config, []*ConfigError) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, []*ConfigError{{Code: ErrCodeReadFailed, Message: fmt.Sprintf("read config: %v", err)}}
	}
	return Check(path, data)
}

// Check compiles a document and collects every error instead of stopping at
// the first. The returned Config is nil whenever errors are reported.
func Check(filename string, data []byte) (*Config, []*ConfigError) {
	return compile(filename, data, LoadModeCollectAll)
}

// parseDocument builds a CUE value from YAML or CUE source.
func parseDocument(ctx *cue.Context, filename string, data []byte) (cue.Value, *ConfigError) {
	if strings.EqualFold(filepath.Ext(filename), ".cue") {
		v := ctx.CompileBytes(data, cue.Filename(filename))
		if err := v.Err(); err != nil {
			return cue.Value{}, formatCUEError(err, ErrCodeParse, "", "")
		}
		return v, nil
	}

	f, err := cueyaml.Extract(filename, data)
	if err != nil {
		return cue.Value{}, formatCUEError(err, ErrCodeParse, "", "")
	}
	v := ctx.BuildFile(f)
	if err := v.Err(); err != nil {
		return cue.Value{}, formatCUEError(err, ErrCodeParse, "", "")
	}
	return v, nil
}

// compileSchema returns the embedded type schema.
func compileSchema(ctx *cue.Context) cue.Value {
	v := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := v.Err(); err != nil {
		panic(fmt.Sprintf("compiler: embedded schema is invalid: %v", err))
	}
	return v
}

func compile(filename string, data []byte, mode LoadMode) (*Config, []*ConfigError) {
	ctx := cuecontext.New()
	root, perr := parseDocument(ctx, filename, data)
	if perr != nil {
		return nil, []*ConfigError{perr}
	}
	schema := compileSchema(ctx)

	var errs []*ConfigError
	// fail records errs and reports whether compilation should stop.
	fail := func(e ...*ConfigError) bool {
		errs = append(errs, e...)
		return mode == LoadModeFailFast && len(errs) > 0
	}

	// An empty document compiles to no blocks.
	if root.IncompleteKind() == cue.NullKind {
		return finish(filename, nil, nil)
	}
	if root.IncompleteKind() != cue.StructKind {
		return nil, []*ConfigError{{Code: ErrCodeTypeMismatch, Message: "document must be a mapping of block sections", Pos: root.Pos()}}
	}

	var defs []ir.BlockDef
	positions := map[string]cue.Value{}

	sections, err := root.Fields()
	if err != nil {
		return nil, []*ConfigError{formatCUEError(err, ErrCodeTypeMismatch, "", "")}
	}
	for sections.Next() {
		section := sections.Label()
		sectionVal := sections.Value()

		kind, ok := kindForSection(section)
		if !ok {
			if fail(&ConfigError{
				Code:    ErrCodeUnknownKind,
				Field:   section,
				Message: fmt.Sprintf("unknown block kind %q (want accruals, counters or sequences)", section),
				Pos:     sectionVal.Pos(),
			}) {
				return nil, errs
			}
			continue
		}
		if sectionVal.IsNull() {
			continue
		}
		if sectionVal.IncompleteKind() != cue.StructKind {
			if fail(&ConfigError{Code: ErrCodeTypeMismatch, Field: section, Message: "section must be a mapping of block names", Pos: sectionVal.Pos()}) {
				return nil, errs
			}
			continue
		}

		blocks, err := sectionVal.Fields()
		if err != nil {
			if fail(formatCUEError(err, ErrCodeTypeMismatch, "", section)) {
				return nil, errs
			}
			continue
		}
		for blocks.Next() {
			name := blocks.Label()
			def, blockErrs := compileBlock(schema, kind, name, blocks.Value())
			if len(blockErrs) > 0 {
				if fail(blockErrs...) {
					return nil, errs
				}
				continue
			}
			if _, dup := positions[name]; !dup {
				positions[name] = blocks.Value()
			}
			defs = append(defs, def)
		}
	}

	for _, e := range ValidateDefs(defs) {
		if pos, ok := positions[e.Block]; ok && !e.Pos.IsValid() {
			e.Pos = pos.Pos()
			if e.Field != "" {
				if fv := pos.LookupPath(cue.ParsePath(e.Field)); fv.Exists() {
					e.Pos = fv.Pos()
				}
			}
		}
		if fail(e) {
			return nil, errs
		}
	}

	return finish(filename, defs, errs)
}

func finish(filename string, defs []ir.BlockDef, errs []*ConfigError) (*Config, []*ConfigError) {
	if len(errs) > 0 {
		return nil, errs
	}
	hash, err := ir.ConfigHash(defs)
	if err != nil {
		return nil, []*ConfigError{{Code: ErrCodeTypeMismatch, Message: err.Error()}}
	}
	if defs == nil {
		defs = []ir.BlockDef{}
	}
	return &Config{Source: filename, Hash: hash, Blocks: defs}, nil
}

func kindForSection(section string) (ir.BlockKind, bool) {
	for _, k := range ir.ValidKinds {
		if k.Section() == section {
			return k, true
		}
	}
	return "", false
}

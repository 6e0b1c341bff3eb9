// Package compiler turns logic block documents into ir.BlockDef values.
//
// Documents are YAML in the MPF layout (top-level accruals, counters and
// sequences sections, one mapping per block) or the equivalent CUE. Both are
// read through the CUE SDK so every error carries a file position:
//
//	cfg, err := compiler.LoadFile("config/logic_blocks.yaml")
//
// Loading runs in three passes: structural checks (known sections, known and
// required fields), type checks against the embedded CUE schema, and
// semantic checks on the compiled definitions (ValidateDefs). Load stops at
// the first error; Check collects all of them.
//
// AnalyzeChains reports blocks whose emitted events feed each other.
package compiler

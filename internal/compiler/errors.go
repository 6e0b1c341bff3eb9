package compiler

import (
	"errors"
	"fmt"

	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// Config error codes (E200-E299)
const (
	ErrCodeParse           = "E200" // document is not valid YAML/CUE
	ErrCodeUnknownKind     = "E201" // unknown top-level section (block kind)
	ErrCodeUnknownField    = "E202" // unknown field in a block
	ErrCodeTypeMismatch    = "E203" // value does not match the schema
	ErrCodeMissingField    = "E204" // required field missing
	ErrCodeDuplicateName   = "E205" // block name declared more than once
	ErrCodeInvalidExpr     = "E206" // starting_count/count_complete_value does not compile
	ErrCodeDivergent       = "E207" // counter delta moves away from its target
	ErrCodeInvalidDuration = "E208" // multiple_hit_window is not a valid duration
	ErrCodeEmptyEvent      = "E209" // empty event list, step group or event name
	ErrCodeKindMismatch    = "E210" // Params do not match Kind
	ErrCodeReadFailed      = "E211" // config file could not be read
)

// ConfigError is a load-time configuration error with its source position.
// Loading stops at the first ConfigError unless errors are collected
// explicitly with Check.
type ConfigError struct {
	Code    string    `json:"code"`
	Block   string    `json:"block,omitempty"`
	Field   string    `json:"field,omitempty"`
	Message string    `json:"message"`
	Pos     token.Pos `json:"-"`
}

func (e *ConfigError) Error() string {
	where := e.Block
	if e.Field != "" {
		if where != "" {
			where += "."
		}
		where += e.Field
	}
	msg := e.Message
	if where != "" {
		msg = where + ": " + msg
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: [%s] %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, msg)
	}
	return fmt.Sprintf("[%s] %s", e.Code, msg)
}

// Line returns the 1-based source line, or 0 when unknown.
func (e *ConfigError) Line() int {
	if e.Pos.IsValid() {
		return e.Pos.Line()
	}
	return 0
}

// IsConfigError reports whether err is or wraps a ConfigError.
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}

// formatCUEError converts a CUE error into a ConfigError carrying the first
// position CUE reports.
func formatCUEError(err error, code, block, field string) *ConfigError {
	cfgErr := &ConfigError{Code: code, Block: block, Field: field, Message: err.Error()}

	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return cfgErr
	}
	first := errs[0]
	cfgErr.Message = first.Error()
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		cfgErr.Pos = positions[0]
	}
	return cfgErr
}

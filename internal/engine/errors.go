package engine

import (
	"errors"
	"fmt"

	"github.com/ajgabz/mpf/internal/expr"
	"github.com/ajgabz/mpf/internal/ir"
)

// ErrClosed is returned by Post after Close.
var ErrClosed = errors.New("engine closed")

// RuntimeError represents an error detected while processing events.
//
// Runtime errors include:
//   - Cycle detection: a block would repeat an emission within one flow
//   - Quota exceeded: a flow processed more events than allowed
//
// RuntimeError includes structured fields for diagnostics.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// FlowToken identifies the affected flow.
	FlowToken string

	// Block names the block involved, if any.
	Block string

	// Event names the event involved, if any.
	Event string

	// Details contains additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeCycleDetected indicates a block would repeat an emission in a flow.
	ErrCodeCycleDetected RuntimeErrorCode = "CYCLE_DETECTED"

	// ErrCodeQuotaExceeded indicates the flow exceeded max steps.
	ErrCodeQuotaExceeded RuntimeErrorCode = "QUOTA_EXCEEDED"

	// ErrCodeUnresolvedReference indicates a value expression referenced a
	// missing context path.
	ErrCodeUnresolvedReference RuntimeErrorCode = "UNRESOLVED_REFERENCE"

	// ErrCodeBlockFailed covers any other block transition failure.
	ErrCodeBlockFailed RuntimeErrorCode = "BLOCK_FAILED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.FlowToken != "" && e.Block != "" {
		return fmt.Sprintf("%s: %s (flow=%s, block=%s)", e.Code, e.Message, e.FlowToken, e.Block)
	}
	if e.FlowToken != "" {
		return fmt.Sprintf("%s: %s (flow=%s)", e.Code, e.Message, e.FlowToken)
	}
	if e.Block != "" {
		return fmt.Sprintf("%s: %s (block=%s)", e.Code, e.Message, e.Block)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsCycleError returns true if the error is a cycle detection error.
// Uses errors.As to handle wrapped errors.
func IsCycleError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeCycleDetected
	}
	return false
}

// IsQuotaError returns true if the error is a quota exceeded error.
// Matches both RuntimeError with ErrCodeQuotaExceeded and StepsExceededError.
// Uses errors.As to handle wrapped errors.
func IsQuotaError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) && re.Code == ErrCodeQuotaExceeded {
		return true
	}
	var se *StepsExceededError
	return errors.As(err, &se)
}

// NewCycleError creates a RuntimeError for cycle detection.
func NewCycleError(flowToken, block, event, trigger string) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeCycleDetected,
		Message:   fmt.Sprintf("block would emit %q for %s twice in flow", event, trigger),
		FlowToken: flowToken,
		Block:     block,
		Event:     event,
		Details:   map[string]string{"trigger": trigger},
	}
}

// NewQuotaError creates a RuntimeError for quota exceeded.
func NewQuotaError(flowToken string, steps, maxSteps int) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeQuotaExceeded,
		Message:   fmt.Sprintf("flow exceeded max steps (%d > %d)", steps, maxSteps),
		FlowToken: flowToken,
		Details: map[string]string{
			"steps":     fmt.Sprintf("%d", steps),
			"max_steps": fmt.Sprintf("%d", maxSteps),
		},
	}
}

// BlockError reports a block transition that failed and was aborted. The
// block keeps the state it had before the event.
type BlockError struct {
	Block string
	Role  ir.Role
	Event string
	Err   error
}

// Error implements the error interface.
func (e *BlockError) Error() string {
	if e.Event == "" {
		return fmt.Sprintf("block %s: %s: %v", e.Block, e.Role, e.Err)
	}
	return fmt.Sprintf("block %s: %s on %q: %v", e.Block, e.Role, e.Event, e.Err)
}

// Unwrap returns the underlying error.
func (e *BlockError) Unwrap() error {
	return e.Err
}

// Code classifies the underlying failure for the journal.
func (e *BlockError) Code() RuntimeErrorCode {
	var re *RuntimeError
	switch {
	case expr.IsUnresolvedReference(e.Err):
		return ErrCodeUnresolvedReference
	case errors.As(e.Err, &re):
		return re.Code
	default:
		return ErrCodeBlockFailed
	}
}

// ErrorCode classifies a processing error returned by Post. Errors that
// carry no code report ErrCodeBlockFailed.
func ErrorCode(err error) RuntimeErrorCode {
	var be *BlockError
	if errors.As(err, &be) {
		return be.Code()
	}
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code
	}
	return ErrCodeBlockFailed
}

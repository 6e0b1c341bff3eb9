package expr

import (
	"errors"
	"fmt"
	"strings"
)

// UnresolvedReferenceError is returned when an expression references a
// context path that does not exist at evaluation time.
type UnresolvedReferenceError struct {
	Path []string
	Expr string
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("unresolved reference %q in expression %q", strings.Join(e.Path, "."), e.Expr)
}

// IsUnresolvedReference reports whether err is or wraps an UnresolvedReferenceError.
func IsUnresolvedReference(err error) bool {
	var ref *UnresolvedReferenceError
	return errors.As(err, &ref)
}

// SyntaxError is returned by Compile for malformed expressions.
type SyntaxError struct {
	Expr    string
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid expression %q: %s", e.Expr, e.Message)
}

// EvalError is returned when an expression evaluates but cannot produce an
// integer, for example "machine.name" holding a non-numeric string.
type EvalError struct {
	Expr    string
	Message string
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("evaluate %q: %s", e.Expr, e.Message)
}

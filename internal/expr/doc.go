// Package expr resolves the dynamic value expressions used by logic block
// parameters such as starting_count and count_complete_value.
//
// An expression is one of:
//
//   - an integer literal: "5", "-1"
//   - an HCL expression over context paths: "machine.start", "current_player.hits + 1"
//   - the conditional-default form "A if B else C"
//
// Expressions are compiled once at config load time and evaluated against a
// read-only Context whenever a block is created, reset or restarted. Only the
// references a given evaluation needs are looked up: for "A if B else C" that
// is B first, then whichever of A or C is selected. A reference that is not
// present in the context fails with *UnresolvedReferenceError; it never
// silently evaluates to zero.
package expr

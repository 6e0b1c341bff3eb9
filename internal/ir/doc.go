// Package ir provides the data model shared by the logic block engine.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal. This keeps block definitions and
// events the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Block definitions are immutable once compiled
//   - Kind-specific parameters are a sealed sum type (BlockParams)
//   - Event payload values never contain floats - use int64 for numbers
//   - All JSON tags use snake_case
//   - Logical clocks (seq) order events, never wall-clock timestamps
package ir

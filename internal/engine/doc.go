// Package engine implements the logic block engine.
//
// The engine owns a registry of logic blocks (accruals, counters and
// sequences), routes named events to the blocks subscribed to them and
// feeds every event a block emits back into itself.
//
// ARCHITECTURE:
//
// Single-Writer Turns:
// Every input is processed to completion before the next one starts. A
// turn is breadth first:
//  1. The input gets a seq from the logical Clock and is journaled
//  2. Subscribed blocks handle it, in block declaration order, and for
//     each block in role order: enable, disable, reset, restart, progress
//  3. Each emitted event is stamped with the flow token and its cause seq
//     and queued behind the events already pending
//  4. The turn ends when nothing is pending
//
// Post runs a turn synchronously. Enqueue and Run drain a FIFO queue in a
// single goroutine for callers that only produce events.
//
// Debounce windows are the only deferred work. They are scheduled on the
// engine's TimeSource and take the engine lock when they expire.
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// All events are stamped with a monotonic seq from Clock.Next(). Wall-clock
// time only drives debounce windows and the journal offset.
//
// Termination:
// The CycleDetector rejects a block emitting the same event twice for the
// same trigger within one flow. The QuotaEnforcer bounds the number of
// events in a flow. Either violation stops the turn with a RuntimeError.
//
// Deterministic Scheduling:
// Blocks are visited in declaration order. No randomness and no concurrency
// inside a turn. Replay depends on it.
package engine

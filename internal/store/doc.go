// Package store provides the SQLite-backed event journal of the logic
// block engine.
//
// The journal is an append-only audit trail, not a block state snapshot:
//   - Sessions: one row per engine lifetime (config hash, versions)
//   - Events: every input and every emitted event, with its flow token,
//     logical seq, source block, cause seq and time offset
//   - Failures: block errors and runaway-chain aborts
//
// # Ordering
//
// All ordering uses seq INTEGER (logical clock), never timestamps. Queries
// that can return rows from several sessions break ties with
// id ASC COLLATE BINARY so results are identical across reads.
//
// # Replay
//
// The recorded offsets let a fresh engine be fed the same inputs at the
// same engine times. Event ids are content addressed (see ir.EventID), so
// a faithful replay reproduces them exactly.
//
// # Database Configuration
//
//   - WAL mode and synchronous=NORMAL for file journals
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// PRAGMA user_version records the schema version. Opening an older
// journal migrates it in place; a journal from a newer build is refused.
package store

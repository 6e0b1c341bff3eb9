package store

import (
	"context"
	"fmt"
)

// BeginSession records the start of an engine lifetime.
// Uses ON CONFLICT(id) DO NOTHING for idempotency.
func (s *Store) BeginSession(ctx context.Context, sess Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, config_hash, engine_version, journal_version, started_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		sess.ID,
		sess.ConfigHash,
		sess.EngineVersion,
		sess.JournalVersion,
		formatTime(sess.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("begin session: %w", err)
	}
	return nil
}

// AppendEvent inserts an event record into the journal.
// Uses ON CONFLICT DO NOTHING for idempotency - a record already stored at
// the same (session, seq) is silently kept.
//
// The payload is serialized to canonical JSON per RFC 8785 for
// deterministic replay.
//
// Note: The session referenced by rec.SessionID must exist (foreign key constraint).
func (s *Store) AppendEvent(ctx context.Context, rec EventRecord) error {
	payload, err := marshalPayload(rec.Payload)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events
		(session_id, seq, id, flow_token, name, payload, source, cause_seq, offset_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		rec.SessionID,
		rec.Seq,
		rec.ID,
		rec.FlowToken,
		rec.Name,
		payload,
		rec.Source,
		rec.CauseSeq,
		rec.Offset.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// AppendFailure records a processing error.
func (s *Store) AppendFailure(ctx context.Context, f Failure) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO failures (session_id, seq, flow_token, code, block, event, message)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		f.SessionID,
		f.Seq,
		f.FlowToken,
		f.Code,
		f.Block,
		f.Event,
		f.Message,
	)
	if err != nil {
		return fmt.Errorf("append failure: %w", err)
	}
	return nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNoSessions is returned by LatestSession on an empty journal.
var ErrNoSessions = errors.New("journal has no sessions")

const eventColumns = `session_id, seq, id, flow_token, name, payload, source, cause_seq, offset_ms`

// Sessions returns every recorded session, oldest first.
func (s *Store) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, config_hash, engine_version, journal_version, started_at
		FROM sessions
		ORDER BY started_at ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// ReadSession returns one session by id.
func (s *Store) ReadSession(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, config_hash, engine_version, journal_version, started_at
		FROM sessions WHERE id = ?
	`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("session %s not found", id)
	}
	return sess, err
}

// LatestSession returns the most recently started session.
func (s *Store) LatestSession(ctx context.Context) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, config_hash, engine_version, journal_version, started_at
		FROM sessions
		ORDER BY started_at DESC, id COLLATE BINARY DESC
		LIMIT 1
	`)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNoSessions
	}
	return sess, err
}

// ReadJournal returns every event of a session ordered by seq.
//
// Returns an empty slice (not nil) if the session has no events.
func (s *Store) ReadJournal(ctx context.Context, sessionID string) ([]EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	return collectEvents(rows)
}

// ReadFlow returns the events of one flow token: an input and its chain.
// Results are ordered deterministically: ORDER BY seq ASC, id ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) if no records exist for the flow token.
func (s *Store) ReadFlow(ctx context.Context, flowToken string) ([]EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE flow_token = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, flowToken)
	if err != nil {
		return nil, fmt.Errorf("query flow: %w", err)
	}
	return collectEvents(rows)
}

// ListFlowTokens returns the distinct flow tokens of a session in the
// order their input events were journaled.
func (s *Store) ListFlowTokens(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT flow_token
		FROM events
		WHERE session_id = ?
		GROUP BY flow_token
		ORDER BY MIN(seq) ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query flow tokens: %w", err)
	}
	defer rows.Close()

	tokens := []string{}
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, fmt.Errorf("scan flow token: %w", err)
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flow tokens: %w", err)
	}
	return tokens, nil
}

// ReadFailures returns the failures journaled for a session ordered by seq.
func (s *Store) ReadFailures(ctx context.Context, sessionID string) ([]Failure, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, seq, flow_token, code, block, event, message
		FROM failures
		WHERE session_id = ?
		ORDER BY seq ASC, id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", err)
	}
	defer rows.Close()

	failures := []Failure{}
	for rows.Next() {
		var f Failure
		if err := rows.Scan(&f.SessionID, &f.Seq, &f.FlowToken, &f.Code, &f.Block, &f.Event, &f.Message); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		failures = append(failures, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate failures: %w", err)
	}
	return failures, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var sess Session
	var started string
	if err := row.Scan(&sess.ID, &sess.ConfigHash, &sess.EngineVersion, &sess.JournalVersion, &started); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, err
		}
		return Session{}, fmt.Errorf("scan session: %w", err)
	}
	t, err := parseTime(started)
	if err != nil {
		return Session{}, fmt.Errorf("scan session %s: %w", sess.ID, err)
	}
	sess.StartedAt = t
	return sess, nil
}

func collectEvents(rows *sql.Rows) ([]EventRecord, error) {
	defer rows.Close()

	records := []EventRecord{}
	for rows.Next() {
		rec, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return records, nil
}

func scanEvent(row rowScanner) (EventRecord, error) {
	var rec EventRecord
	var payload string
	var offsetMS int64
	err := row.Scan(
		&rec.SessionID,
		&rec.Seq,
		&rec.ID,
		&rec.FlowToken,
		&rec.Name,
		&payload,
		&rec.Source,
		&rec.CauseSeq,
		&offsetMS,
	)
	if err != nil {
		return EventRecord{}, fmt.Errorf("scan event: %w", err)
	}
	rec.Payload, err = unmarshalPayload(payload)
	if err != nil {
		return EventRecord{}, fmt.Errorf("event %s/%d: %w", rec.SessionID, rec.Seq, err)
	}
	rec.Offset = time.Duration(offsetMS) * time.Millisecond
	return rec, nil
}

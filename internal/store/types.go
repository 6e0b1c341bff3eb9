package store

import (
	"time"

	"github.com/ajgabz/mpf/internal/ir"
)

// Session is one engine lifetime recorded in the journal. Sequence numbers
// restart at 1 for every session.
type Session struct {
	ID             string    `json:"id"`
	ConfigHash     string    `json:"config_hash"`
	EngineVersion  string    `json:"engine_version"`
	JournalVersion string    `json:"journal_version"`
	StartedAt      time.Time `json:"started_at"`
}

// EventRecord is a journaled event: an external input or an emission.
type EventRecord struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id"`
	Seq       int64      `json:"seq"`
	FlowToken string     `json:"flow_token"`
	Name      string     `json:"name"`
	Payload   ir.Payload `json:"payload,omitempty"`
	Source    string     `json:"source,omitempty"`
	CauseSeq  int64      `json:"cause_seq,omitempty"`

	// Offset is the engine time elapsed since the session started.
	Offset time.Duration `json:"offset"`
}

// NewEventRecord builds the journal record of ev, computing its
// content-addressed id.
func NewEventRecord(sessionID string, ev ir.Event, offset time.Duration) (EventRecord, error) {
	id, err := ir.EventID(ev)
	if err != nil {
		return EventRecord{}, err
	}
	return EventRecord{
		ID:        id,
		SessionID: sessionID,
		Seq:       ev.Seq,
		FlowToken: ev.FlowToken,
		Name:      ev.Name,
		Payload:   ev.Payload,
		Source:    ev.Source,
		CauseSeq:  ev.CauseSeq,
		Offset:    offset,
	}, nil
}

// Event returns the engine event the record was written from.
func (r EventRecord) Event() ir.Event {
	return ir.Event{
		Name:      r.Name,
		Payload:   r.Payload,
		Source:    r.Source,
		Seq:       r.Seq,
		CauseSeq:  r.CauseSeq,
		FlowToken: r.FlowToken,
	}
}

// External reports whether the record is an input event.
func (r EventRecord) External() bool {
	return r.Source == ""
}

// Failure is a journaled processing error. Seq is the event being
// processed when the error happened.
type Failure struct {
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
	FlowToken string `json:"flow_token"`
	Code      string `json:"code"`
	Block     string `json:"block,omitempty"`
	Event     string `json:"event,omitempty"`
	Message   string `json:"message"`
}

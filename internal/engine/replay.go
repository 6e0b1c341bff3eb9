package engine

// Replay
//
// A journal session holds every input event with its engine-time offset
// and flow token, followed in seq order by everything the engine emitted
// in response. Replay feeds the inputs into a fresh engine and checks the
// emissions come out identical.
//
// Three things make that work:
//
//  1. Seq restarts at 1 per session and the engine is the only writer,
//     so a fresh engine assigns the same seq to the same event.
//  2. Flow tokens are replayed from the journal (FixedGenerator) rather
//     than generated.
//  3. Time is a ManualTime advanced to each input's offset before it is
//     posted, so debounce windows open and close at the same points.
//
// Event ids are content addressed over (flow_token, name, payload, seq,
// source) so comparing ids compares everything that matters.
//
// Offsets are stored with millisecond precision. A hit landing within the
// same millisecond as a window expiry may replay on the other side of it.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ajgabz/mpf/internal/ir"
	"github.com/ajgabz/mpf/internal/store"
)

// ErrConfigMismatch is returned when a session was recorded with different
// block definitions than the ones given to Replay.
var ErrConfigMismatch = errors.New("config hash does not match journal session")

// replayEpoch is the ManualTime origin of every replay.
var replayEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Mismatch is one position where the replayed emissions differ from the
// journal. An empty Want or Got means that side ran out of events.
type Mismatch struct {
	Index int    `json:"index"`
	Want  string `json:"want,omitempty"`
	Got   string `json:"got,omitempty"`
}

// ReplayResult is the outcome of a replay.
type ReplayResult struct {
	Session    store.Session `json:"session"`
	Inputs     int           `json:"inputs"`
	Recorded   []ir.Event    `json:"recorded"`
	Emitted    []ir.Event    `json:"emitted"`
	Errors     []string      `json:"errors,omitempty"`
	Mismatches []Mismatch    `json:"mismatches,omitempty"`
}

// Deterministic reports whether the replay reproduced the journal exactly.
func (r *ReplayResult) Deterministic() bool {
	return len(r.Mismatches) == 0
}

// ReplaySession loads a session from s and replays it. An empty sessionID
// selects the latest session.
func ReplaySession(ctx context.Context, s *store.Store, sessionID string, defs []ir.BlockDef, opts ...EngineOption) (*ReplayResult, error) {
	var (
		sess store.Session
		err  error
	)
	if sessionID == "" {
		sess, err = s.LatestSession(ctx)
	} else {
		sess, err = s.ReadSession(ctx, sessionID)
	}
	if err != nil {
		return nil, err
	}

	records, err := s.ReadJournal(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("read journal %s: %w", sess.ID, err)
	}
	return Replay(ctx, defs, sess, records, opts...)
}

// Replay re-posts the input records of a session into a new engine built
// from defs and compares what it emits with the recorded emissions.
//
// opts configure the replay engine (e.g. WithResolver with the context the
// session ran under). Time and flow tokens are always taken from the
// journal. Processing errors are expected when the original run had them;
// they are collected in the result, not returned.
func Replay(ctx context.Context, defs []ir.BlockDef, sess store.Session, records []store.EventRecord, opts ...EngineOption) (*ReplayResult, error) {
	hash, err := ir.ConfigHash(defs)
	if err != nil {
		return nil, fmt.Errorf("hash config: %w", err)
	}
	if sess.ConfigHash != "" && sess.ConfigHash != hash {
		return nil, fmt.Errorf("%w: session %s has %s, config has %s",
			ErrConfigMismatch, sess.ID, sess.ConfigHash, hash)
	}

	var (
		inputs   []store.EventRecord
		tokens   []string
		recorded []ir.Event
	)
	for _, rec := range records {
		if rec.External() {
			inputs = append(inputs, rec)
			tokens = append(tokens, rec.FlowToken)
			continue
		}
		recorded = append(recorded, rec.Event())
	}

	clock := NewManualTime(replayEpoch)
	opts = append(opts,
		WithTimeSource(clock),
		WithFlowGenerator(NewFixedGenerator(tokens...)),
	)
	eng, err := New(defs, opts...)
	if err != nil {
		return nil, fmt.Errorf("build replay engine: %w", err)
	}
	defer eng.Close()

	result := &ReplayResult{
		Session:  sess,
		Inputs:   len(inputs),
		Recorded: recorded,
	}
	for _, in := range inputs {
		clock.AdvanceTo(replayEpoch.Add(in.Offset))
		emitted, err := eng.Post(ctx, in.Name, in.Payload)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			slog.Debug("replayed event failed", "seq", in.Seq, "event", in.Name, "error", err)
			result.Errors = append(result.Errors, err.Error())
		}
		result.Emitted = append(result.Emitted, emitted...)
	}

	result.Mismatches = compareEmissions(recorded, result.Emitted)
	slog.Info("replay finished",
		"session", sess.ID,
		"inputs", result.Inputs,
		"recorded", len(recorded),
		"emitted", len(result.Emitted),
		"mismatches", len(result.Mismatches),
	)
	return result, nil
}

func compareEmissions(want, got []ir.Event) []Mismatch {
	var out []Mismatch
	n := max(len(want), len(got))
	for i := 0; i < n; i++ {
		var w, g string
		if i < len(want) {
			w = ir.MustEventID(want[i])
		}
		if i < len(got) {
			g = ir.MustEventID(got[i])
		}
		if w != g {
			out = append(out, Mismatch{Index: i, Want: describe(want, i), Got: describe(got, i)})
		}
	}
	return out
}

func describe(events []ir.Event, i int) string {
	if i >= len(events) {
		return ""
	}
	ev := events[i]
	return fmt.Sprintf("seq=%d %s<-%s", ev.Seq, ev.Name, ev.Source)
}

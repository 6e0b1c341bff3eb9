package engine

import (
	"log/slog"

	"github.com/ajgabz/mpf/internal/expr"
	"github.com/ajgabz/mpf/internal/ir"
)

// progress is the kind-specific part of a block instance.
type progress interface {
	// prepare resolves fresh initial values without touching the current
	// ones. The returned commit applies them.
	prepare(ctx expr.Context) (commit func(), err error)

	// advance applies one progress event to an enabled, incomplete block.
	advance(ev ir.Event) outcome

	// cancel drops pending deferred work (debounce windows).
	cancel()

	snapshot(s *BlockState)
}

// outcome is the result of a progress event.
type outcome struct {
	hit      bool
	payload  ir.Payload
	complete bool
}

// block is one logic block instance: the shared lifecycle around a
// kind-specific progress.
//
// All methods run under the engine mutex.
type block struct {
	def       ir.BlockDef
	enabled   bool
	completed bool
	progress  progress
}

func newBlock(def ir.BlockDef, p progress) *block {
	return &block{def: def, enabled: def.StartEnabled, progress: p}
}

// handle applies one event in the given role. Emitted events are returned
// in emission order with Name, Payload and Source set.
//
// A failed transition returns a *BlockError and leaves the block as it was
// before the failing step; emissions made before the failure are kept.
func (b *block) handle(role ir.Role, ev ir.Event, ctx expr.Context) ([]ir.Event, error) {
	switch role {
	case ir.RoleEnable:
		b.enable(ev)
	case ir.RoleDisable:
		b.disable(ev)
	case ir.RoleReset:
		if err := b.reset(ctx); err != nil {
			return nil, b.fail(role, ev, err)
		}
	case ir.RoleRestart:
		if err := b.reset(ctx); err != nil {
			return nil, b.fail(role, ev, err)
		}
		b.enabled = true
		slog.Debug("block restarted", "block", b.def.Name, "event", ev.Name)
	case ir.RoleProgress:
		return b.advance(ev, ctx)
	}
	return nil, nil
}

func (b *block) enable(ev ir.Event) {
	if b.enabled {
		return
	}
	b.enabled = true
	slog.Debug("block enabled", "block", b.def.Name, "event", ev.Name)
}

func (b *block) disable(ev ir.Event) {
	if !b.enabled {
		return
	}
	b.enabled = false
	b.progress.cancel()
	slog.Debug("block disabled", "block", b.def.Name, "event", ev.Name)
}

// reset re-resolves initial values. Nothing changes when resolution fails.
// enabled is left alone.
func (b *block) reset(ctx expr.Context) error {
	commit, err := b.progress.prepare(ctx)
	if err != nil {
		return err
	}
	b.progress.cancel()
	commit()
	b.completed = false
	return nil
}

func (b *block) advance(ev ir.Event, ctx expr.Context) ([]ir.Event, error) {
	if !b.enabled || b.completed {
		return nil, nil
	}

	out := b.progress.advance(ev)
	if !out.hit {
		return nil, nil
	}

	emitted := b.emit(b.def.EventsWhenHit, out.payload)
	if !out.complete {
		return emitted, nil
	}

	b.completed = true
	slog.Info("block complete", "block", b.def.Name, "kind", b.def.Kind, "event", ev.Name)
	emitted = append(emitted, b.emit(b.def.EventsWhenComplete, nil)...)

	// Disable first: a failed reset must not leave the block enabled.
	if b.def.DisableOnComplete {
		b.enabled = false
		b.progress.cancel()
	}
	if b.def.ResetOnComplete {
		if err := b.reset(ctx); err != nil {
			return emitted, b.fail(ir.RoleReset, ev, err)
		}
	}
	return emitted, nil
}

func (b *block) emit(names []string, payload ir.Payload) []ir.Event {
	out := make([]ir.Event, len(names))
	for i, name := range names {
		out[i] = ir.Event{Name: name, Payload: payload, Source: b.def.Name}
	}
	return out
}

func (b *block) fail(role ir.Role, ev ir.Event, err error) error {
	slog.Warn("block transition aborted",
		"block", b.def.Name,
		"role", role.String(),
		"event", ev.Name,
		"error", err,
	)
	return &BlockError{Block: b.def.Name, Role: role, Event: ev.Name, Err: err}
}

// state returns a read-only snapshot.
func (b *block) state() BlockState {
	s := BlockState{
		Name:      b.def.Name,
		Kind:      b.def.Kind,
		Enabled:   b.enabled,
		Completed: b.completed,
	}
	switch {
	case !b.enabled:
		s.Status = StatusDisabled
	case b.completed:
		s.Status = StatusComplete
	default:
		s.Status = StatusInProgress
	}
	b.progress.snapshot(&s)
	return s
}

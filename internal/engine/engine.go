package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ajgabz/mpf/internal/compiler"
	"github.com/ajgabz/mpf/internal/expr"
	"github.com/ajgabz/mpf/internal/ir"
	"github.com/ajgabz/mpf/internal/store"
)

// DefaultMaxSteps is the default maximum number of events processed per
// flow (one input plus its chain).
const DefaultMaxSteps = 1000

// Listener observes every emitted event, in emission order. Listeners run
// after the engine lock is released, so they may post new events.
type Listener func(ir.Event)

// Engine is the logic block registry. It owns every block instance, routes
// events to subscribed blocks and feeds emitted events back into itself.
//
// Thread-safety model:
//   - Post, State, States, Close: safe from any goroutine; all mutations
//     are serialised by one mutex
//   - Enqueue: safe from any goroutine
//   - Run: must be called from exactly one goroutine
//   - debounce expiries take the same mutex
//
// INVARIANTS:
//   - blocks order NEVER changes after construction (declaration order)
//   - block names are unique
//   - the subscription index is built once in New
type Engine struct {
	mu sync.Mutex

	defs       []ir.BlockDef
	blocks     []*block
	byName     map[string]*block
	matcher    *matcher
	configHash string

	clock      *Clock
	queue      *eventQueue
	flowGen    FlowTokenGenerator
	resolver   expr.Context
	timeSource TimeSource
	started    time.Time
	listeners  []Listener

	store         *store.Store
	sessionID     string
	sessionOpened bool

	cycleDetector *CycleDetector
	maxSteps      int
	quotas        map[string]*QuotaEnforcer

	closed bool
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithMaxSteps sets the maximum events processed per flow.
//
// Default: 1000 steps (DefaultMaxSteps).
func WithMaxSteps(maxSteps int) EngineOption {
	return func(e *Engine) {
		e.maxSteps = maxSteps
	}
}

// WithResolver sets the player/game context used to resolve dynamic
// starting_count and count_complete_value expressions. The engine only
// reads it, at creation and on every reset or restart.
func WithResolver(ctx expr.Context) EngineOption {
	return func(e *Engine) {
		e.resolver = ctx
	}
}

// WithTimeSource replaces the wall clock, e.g. with a ManualTime.
func WithTimeSource(ts TimeSource) EngineOption {
	return func(e *Engine) {
		e.timeSource = ts
	}
}

// WithFlowGenerator sets how flow tokens are generated.
// Default: UUIDv7Generator.
func WithFlowGenerator(gen FlowTokenGenerator) EngineOption {
	return func(e *Engine) {
		e.flowGen = gen
	}
}

// WithListener registers an observer of emitted events.
func WithListener(l Listener) EngineOption {
	return func(e *Engine) {
		e.listeners = append(e.listeners, l)
	}
}

// WithStore journals every processed event and failure to s.
func WithStore(s *store.Store) EngineOption {
	return func(e *Engine) {
		e.store = s
	}
}

// WithSessionID fixes the journal session id. Default: a fresh UUIDv7.
func WithSessionID(id string) EngineOption {
	return func(e *Engine) {
		e.sessionID = id
	}
}

// WithClock sets the logical clock, e.g. to continue numbering.
func WithClock(c *Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// New builds an engine from block definitions in declaration order.
//
// The definitions are validated first; any problem returns every
// *compiler.ConfigError joined and no engine. Initial values are then
// resolved for every block; an unresolved reference fails construction.
func New(defs []ir.BlockDef, opts ...EngineOption) (*Engine, error) {
	if errs := compiler.ValidateDefs(defs); len(errs) > 0 {
		joined := make([]error, len(errs))
		for i, err := range errs {
			joined[i] = err
		}
		return nil, errors.Join(joined...)
	}

	hash, err := ir.ConfigHash(defs)
	if err != nil {
		return nil, fmt.Errorf("hash config: %w", err)
	}

	// Copy defs to prevent external mutation of declaration order
	defsCopy := make([]ir.BlockDef, len(defs))
	copy(defsCopy, defs)

	e := &Engine{
		defs:          defsCopy,
		byName:        make(map[string]*block, len(defs)),
		configHash:    hash,
		clock:         NewClock(),
		queue:         newEventQueue(),
		flowGen:       UUIDv7Generator{},
		resolver:      expr.Empty,
		timeSource:    SystemTime{},
		cycleDetector: NewCycleDetector(),
		maxSteps:      DefaultMaxSteps,
		quotas:        make(map[string]*QuotaEnforcer),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.sessionID == "" {
		e.sessionID = UUIDv7Generator{}.Generate()
	}
	e.started = e.timeSource.Now()

	for _, def := range e.defs {
		b, err := e.newBlock(def)
		if err != nil {
			return nil, err
		}
		if err := b.reset(e.resolver); err != nil {
			return nil, &BlockError{Block: def.Name, Role: ir.RoleReset, Err: err}
		}
		e.blocks = append(e.blocks, b)
		e.byName[def.Name] = b
	}
	e.matcher = newMatcher(e.blocks)

	slog.Info("engine created",
		"blocks", len(e.blocks),
		"events", e.matcher.events(),
		"config_hash", e.configHash,
		"session", e.sessionID,
	)
	return e, nil
}

func (e *Engine) newBlock(def ir.BlockDef) (*block, error) {
	switch p := def.Params.(type) {
	case ir.AccrualParams:
		return newBlock(def, newAccrual(p)), nil
	case ir.SequenceParams:
		return newBlock(def, newSequence(p)), nil
	case ir.CounterParams:
		c, err := newCounter(def.Name, p, e.afterFunc)
		if err != nil {
			return nil, err
		}
		return newBlock(def, c), nil
	default:
		return nil, fmt.Errorf("block %s: unsupported params %T", def.Name, def.Params)
	}
}

// afterFunc schedules f on the time source, running it under the engine
// lock. Expiries after Close are dropped.
func (e *Engine) afterFunc(d time.Duration, f func()) func() bool {
	return e.timeSource.AfterFunc(d, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.closed {
			return
		}
		f()
	})
}

// Post processes one input event to completion: the event and every event
// emitted in response, breadth first, before returning.
//
// Returns the emitted events in dispatch order. Block failures do not stop
// the turn; they are joined into the returned error. A cycle or quota
// violation stops the turn at once. Mutations applied earlier in the turn
// are not rolled back.
func (e *Engine) Post(ctx context.Context, name string, payload ir.Payload) ([]ir.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}
	emitted, err := e.process(ctx, name, payload)
	listeners := e.listeners
	e.mu.Unlock()

	for _, ev := range emitted {
		for _, l := range listeners {
			l(ev)
		}
	}
	return emitted, err
}

// process runs one turn. Called with e.mu held.
func (e *Engine) process(ctx context.Context, name string, payload ir.Payload) ([]ir.Event, error) {
	if err := e.openSession(ctx); err != nil {
		return nil, err
	}

	flowToken := e.flowGen.Generate()
	defer e.cleanupFlow(flowToken)
	quota := e.quotaFor(flowToken)

	pending := []ir.Event{{Name: name, Payload: payload, FlowToken: flowToken}}
	var emitted []ir.Event
	var errs []error

	for len(pending) > 0 {
		ev := pending[0]
		pending = pending[1:]

		if err := quota.Check(flowToken); err != nil {
			slog.Error("max steps quota exceeded",
				"flow_token", flowToken,
				"event", ev.Name,
				"source", ev.Source,
				"steps", quota.Current(),
				"limit", e.maxSteps,
			)
			qerr := NewQuotaError(flowToken, quota.Current(), e.maxSteps)
			qerr.Block = ev.Source
			qerr.Event = ev.Name
			e.journalFailure(ctx, ev, qerr)
			return emitted, errors.Join(append(errs, qerr)...)
		}

		ev.Seq = e.clock.Next()
		if err := e.journal(ctx, ev); err != nil {
			slog.Error("journal write failed", "flow_token", flowToken, "seq", ev.Seq, "error", err)
			errs = append(errs, err)
		}
		if !ev.External() {
			emitted = append(emitted, ev)
		}

		subs := e.matcher.lookup(ev.Name)
		slog.Debug("dispatching event",
			"event", ev.Name,
			"source", ev.Source,
			"flow_token", flowToken,
			"seq", ev.Seq,
			"subscriptions", len(subs),
		)

		trigger := triggerOf(ev.Source, ev.Name)
		for _, sub := range subs {
			out, err := sub.block.handle(sub.role, ev, e.resolver)
			if err != nil {
				e.journalFailure(ctx, ev, err)
				errs = append(errs, err)
			}
			// One handle call may emit a name more than once (listed as
			// both hit and complete); that is a single emission for cycles.
			batch := make(map[string]bool, len(out))
			for _, o := range out {
				if !batch[o.Name] {
					batch[o.Name] = true
					if e.cycleDetector.WouldCycle(flowToken, o.Source, o.Name, trigger) {
						cerr := NewCycleError(flowToken, o.Source, o.Name, trigger)
						slog.Error("event chain cycle detected",
							"flow_token", flowToken,
							"block", o.Source,
							"event", o.Name,
							"trigger", trigger,
						)
						e.journalFailure(ctx, ev, cerr)
						return emitted, errors.Join(append(errs, cerr)...)
					}
					e.cycleDetector.Record(flowToken, o.Source, o.Name, trigger)
				}

				o.FlowToken = flowToken
				o.CauseSeq = ev.Seq
				pending = append(pending, o)
			}
		}
	}

	return emitted, errors.Join(errs...)
}

// openSession records the journal session on first use.
func (e *Engine) openSession(ctx context.Context) error {
	if e.store == nil || e.sessionOpened {
		return nil
	}
	sess := store.Session{
		ID:             e.sessionID,
		ConfigHash:     e.configHash,
		EngineVersion:  ir.EngineVersion,
		JournalVersion: ir.JournalVersion,
		StartedAt:      time.Now(),
	}
	if err := e.store.BeginSession(ctx, sess); err != nil {
		return fmt.Errorf("open journal session: %w", err)
	}
	e.sessionOpened = true
	return nil
}

func (e *Engine) journal(ctx context.Context, ev ir.Event) error {
	if e.store == nil {
		return nil
	}
	rec, err := store.NewEventRecord(e.sessionID, ev, e.timeSource.Now().Sub(e.started))
	if err != nil {
		return fmt.Errorf("journal event %s: %w", ev.Name, err)
	}
	if err := e.store.AppendEvent(ctx, rec); err != nil {
		return fmt.Errorf("journal event %s: %w", ev.Name, err)
	}
	return nil
}

// journalFailure records err against ev. Write errors are only logged.
func (e *Engine) journalFailure(ctx context.Context, ev ir.Event, err error) {
	if e.store == nil {
		return
	}
	f := store.Failure{
		SessionID: e.sessionID,
		Seq:       ev.Seq,
		FlowToken: ev.FlowToken,
		Code:      string(ErrorCode(err)),
		Event:     ev.Name,
		Message:   err.Error(),
	}
	if f.Seq == 0 {
		f.Seq = e.clock.Current()
	}
	var be *BlockError
	var re *RuntimeError
	switch {
	case errors.As(err, &be):
		f.Block = be.Block
	case errors.As(err, &re):
		f.Block = re.Block
	}
	if werr := e.store.AppendFailure(ctx, f); werr != nil {
		slog.Error("journal failure write failed", "error", werr, "failure", err)
	}
}

// Enqueue submits an input event for processing by the Run loop.
// Thread-safe: may be called from any goroutine.
//
// Returns false if the engine has been stopped.
func (e *Engine) Enqueue(name string, payload ir.Payload) bool {
	return e.queue.Enqueue(ir.Event{Name: name, Payload: payload})
}

// Run drains enqueued events through Post until the context is cancelled
// or Stop is called.
//
// CRITICAL: Must be called from exactly ONE goroutine.
//
// ERROR HANDLING: a failing event is logged with its context and the loop
// continues. Retrying would post the event twice.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting", "session", e.sessionID)

	for {
		ev, ok := e.queue.TryDequeue()
		if ok {
			if _, err := e.Post(ctx, ev.Name, ev.Payload); err != nil {
				if errors.Is(err, ErrClosed) {
					return nil
				}
				logEventError(ev, err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel closes when the queue is closed
			if e.queue.Len() == 0 {
				slog.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the input queue, which makes Run return once it is drained.
func (e *Engine) Stop() {
	e.queue.Close()
}

// Close stops the engine and destroys every block instance: pending
// debounce windows are cancelled and further Posts fail with ErrClosed.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.closed = true
	for _, b := range e.blocks {
		b.progress.cancel()
	}
	e.queue.Close()
	slog.Info("engine closed", "session", e.sessionID)
}

// State returns a snapshot of one block.
func (e *Engine) State(name string) (BlockState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok := e.byName[name]
	if !ok {
		return BlockState{}, false
	}
	return b.state(), true
}

// States returns snapshots of every block in declaration order.
func (e *Engine) States() []BlockState {
	e.mu.Lock()
	defer e.mu.Unlock()

	states := make([]BlockState, len(e.blocks))
	for i, b := range e.blocks {
		states[i] = b.state()
	}
	return states
}

// Defs returns the block definitions in declaration order.
func (e *Engine) Defs() []ir.BlockDef {
	return e.defs
}

// ConfigHash returns the fingerprint of the loaded definitions.
func (e *Engine) ConfigHash() string {
	return e.configHash
}

// SessionID returns the journal session id.
func (e *Engine) SessionID() string {
	return e.sessionID
}

// Clock returns the engine's logical clock.
func (e *Engine) Clock() *Clock {
	return e.clock
}

// QueueLen returns the current number of enqueued input events.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// MaxSteps returns the configured maximum steps per flow.
func (e *Engine) MaxSteps() int {
	return e.maxSteps
}

// QuotaCount returns the number of live quota enforcers. Flows are cleaned
// up at the end of every Post, so this is 0 between calls.
func (e *Engine) QuotaCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.quotas)
}

func (e *Engine) quotaFor(flowToken string) *QuotaEnforcer {
	if q, ok := e.quotas[flowToken]; ok {
		return q
	}
	q := NewQuotaEnforcer(e.maxSteps)
	e.quotas[flowToken] = q
	return q
}

// cleanupFlow removes quota enforcer and cycle history for a finished flow.
func (e *Engine) cleanupFlow(flowToken string) {
	delete(e.quotas, flowToken)
	e.cycleDetector.Clear(flowToken)
}

// logEventError logs an event processing failure with full context.
func logEventError(ev ir.Event, err error) {
	slog.Error("event processing failed",
		"error", err,
		"event", ev.Name,
		"payload_keys", ev.Payload.SortedKeys(),
	)
}

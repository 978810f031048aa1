package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/aclreg/internal/registry"
	"github.com/roach88/aclreg/internal/store"
	"github.com/roach88/aclreg/internal/wire"
)

// Sink receives the notices produced for every processed message, in
// processing order. It is the boundary to the delivery layer and to the
// external ACL consistency layer.
type Sink interface {
	Publish(ctx context.Context, seq int64, notices []wire.Notice) error
}

// Observer records processing metrics. Implemented by internal/metrics.
type Observer interface {
	ObserveMessage(action, outcome string, duplicate bool, elapsed time.Duration)
	ObserveNotice(n wire.Notice)
	ObserveRegistry(entities, versions int)
}

// Reply is the engine's answer to one inbound message.
type Reply struct {
	MessageID string
	Seq       int64
	Outcome   string
	Notices   []wire.Notice

	// Duplicate is true when the message id was already in the log; the
	// notices are the ones recorded the first time.
	Duplicate bool

	// Err is set when the message could not be persisted. The registry is
	// left as it was before the message and no notices were published.
	Err error
}

// Engine is the single-writer delivery loop around the registry.
//
// CRITICAL: All registry mutations happen in one goroutine. While Run is
// active, external callers use Submit and Query. Without Run, a single
// caller may drive the engine synchronously with Process.
//
// Thread-safety model:
//   - Submit(), Query(), Stop(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//   - Process(), Registry(): only when Run is not active
type Engine struct {
	store    *store.Store // nil: in-memory only, no duplicate detection
	reg      *registry.Registry
	router   *registry.Router
	clock    *Clock
	queue    *eventQueue
	ids      wire.IDGenerator
	now      func() int64
	sink     Sink
	observer Observer
}

// Option allows configuration of engine parameters.
type Option func(*Engine)

// WithIDGenerator sets the generator for notice ids and for message ids that
// cannot be content-addressed. Default: UUIDv7.
func WithIDGenerator(g wire.IDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithClock sets the logical clock. Default: a clock starting at 0.
func WithClock(c *Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithNow sets the source of delivery timestamps (Unix milliseconds) for
// messages that arrive without one.
func WithNow(now func() int64) Option {
	return func(e *Engine) { e.now = now }
}

// WithSink sets where notices are published after commit.
func WithSink(s Sink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// New creates an Engine over reg. s may be nil for a purely in-memory
// engine.
func New(s *store.Store, reg *registry.Registry, opts ...Option) *Engine {
	e := &Engine{
		store:  s,
		reg:    reg,
		router: registry.NewRouter(reg),
		clock:  NewClock(),
		queue:  newEventQueue(),
		ids:    wire.UUIDv7Generator{},
		now:    func() int64 { return time.Now().UnixMilli() },
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Load restores the registry from s and resumes the clock after the last
// logged seq.
func Load(ctx context.Context, s *store.Store, ropts registry.Options, opts ...Option) (*Engine, error) {
	state, err := s.LoadState(ctx)
	if err != nil {
		return nil, fmt.Errorf("load engine: %w", err)
	}
	reg := registry.New(ropts)
	if err := reg.Restore(state); err != nil {
		return nil, fmt.Errorf("load engine: %w", err)
	}
	lastSeq, err := s.GetLastSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("load engine: %w", err)
	}

	slog.Info("registry restored",
		"entities", len(state.Entities),
		"versions", len(state.Versions),
		"last_seq", lastSeq,
	)

	opts = append([]Option{WithClock(NewClockAt(lastSeq))}, opts...)
	e := New(s, reg, opts...)
	if e.observer != nil {
		e.observer.ObserveRegistry(reg.Counts())
	}
	return e, nil
}

// Registry returns the registry. Only safe while Run is not active; use
// Query otherwise.
func (e *Engine) Registry() *registry.Registry {
	return e.reg
}

// Clock returns the engine's logical clock.
func (e *Engine) Clock() *Clock {
	return e.clock
}

// Submit enqueues msg and waits for its reply.
// Thread-safe: may be called from any goroutine while Run is active.
//
// The returned error is ErrStopped, the context's error, or the reply's
// infrastructure error. Registry rejections are not errors; they are
// notices in the reply.
func (e *Engine) Submit(ctx context.Context, msg wire.Message) (Reply, error) {
	reply := make(chan Reply, 1)
	if !e.queue.Enqueue(Event{Type: EventTypeMessage, Message: msg, reply: reply}) {
		return Reply{}, ErrStopped
	}
	select {
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	case r := <-reply:
		return r, r.Err
	}
}

// Query runs fn against the registry inside the loop and waits for it.
// fn must not retain the registry or anything it returns by reference.
func (e *Engine) Query(ctx context.Context, fn func(*registry.Registry)) error {
	done := make(chan error, 1)
	if !e.queue.Enqueue(Event{Type: EventTypeQuery, Query: fn, done: done}) {
		return ErrStopped
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// Run starts the single-writer event loop.
// Blocks until context is cancelled or Stop() is called.
//
// CRITICAL: Must be called from exactly ONE goroutine.
//
// ERROR HANDLING: A message that cannot be persisted is rolled back, logged
// with full context, and processing continues. The caller receives the
// error in its reply.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting", "seq", e.clock.Current())

	for {
		event, ok := e.queue.TryDequeue()
		if ok {
			e.handle(ctx, event)
			continue
		}

		// No event ready - wait for signal or context cancellation
		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled")
			e.queue.Close()
			e.drain()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel closes when the queue is closed, which
			// makes this case fire immediately.
			if e.queue.Len() == 0 && e.queue.Closed() {
				slog.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop gracefully shuts down the engine. Events already queued are still
// processed before Run returns.
func (e *Engine) Stop() {
	e.queue.Close()
}

func (e *Engine) handle(ctx context.Context, event Event) {
	switch event.Type {
	case EventTypeMessage:
		r := e.Process(ctx, event.Message)
		if r.Err != nil {
			logEventError(event, r, r.Err)
		}
		if event.reply != nil {
			event.reply <- r
		}

	case EventTypeQuery:
		if event.Query != nil {
			event.Query(e.reg)
		}
		if event.done != nil {
			event.done <- nil
		}

	default:
		slog.Error("event processing failed",
			"error", fmt.Errorf("unknown event type: %d", event.Type),
			"event_type", event.Type,
		)
	}
}

// drain answers every event left in a cancelled queue.
func (e *Engine) drain() {
	for {
		event, ok := e.queue.TryDequeue()
		if !ok {
			return
		}
		if event.reply != nil {
			event.reply <- Reply{Err: ErrStopped}
		}
		if event.done != nil {
			event.done <- ErrStopped
		}
	}
}

// Process routes one message, persists the result and publishes the
// notices. Called by Run for every queued message; callers without a Run
// loop may call it directly from a single goroutine.
func (e *Engine) Process(ctx context.Context, msg wire.Message) Reply {
	start := time.Now()
	seq := e.clock.Next()

	if msg.ID == "" {
		msg.ID = e.messageID(msg)
	}

	slog.Debug("processing message",
		"id", msg.ID,
		"action", msg.Action,
		"from", msg.From,
		"seq", seq,
	)

	if e.store != nil {
		prior, found, err := e.store.LookupMessage(ctx, msg.ID)
		if err != nil {
			return Reply{MessageID: msg.ID, Seq: seq, Err: NewLookupError(msg.ID, seq, err)}
		}
		if found {
			return e.redeliver(ctx, prior, start)
		}
	}

	if msg.Reference == nil {
		msg = msg.WithReference(seq)
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = e.now()
	}

	res := e.router.Route(msg)
	e.assignIDs(res.Notices)

	reply := Reply{
		MessageID: msg.ID,
		Seq:       seq,
		Outcome:   res.Outcome,
		Notices:   res.Notices,
	}

	if e.store != nil {
		rec := store.MessageRecord{
			ID:      msg.ID,
			Seq:     seq,
			Message: msg,
			Outcome: res.Outcome,
			Notices: res.Notices,
		}
		inserted, err := e.store.Commit(ctx, rec, res.Changes)
		if err != nil {
			// Nothing reached the log: undo the routed mutation and publish
			// nothing, so memory, store and sink agree.
			if rbErr := e.rollback(ctx); rbErr != nil {
				err = errors.Join(err, rbErr)
			}
			if e.observer != nil {
				e.observer.ObserveMessage(msg.Action, string(ErrCodeCommitFailed), false, time.Since(start))
			}
			return Reply{MessageID: msg.ID, Seq: seq, Err: NewCommitError(msg.ID, seq, err)}
		}
		if !inserted {
			if rbErr := e.rollback(ctx); rbErr != nil {
				return Reply{MessageID: msg.ID, Seq: seq, Err: NewCommitError(msg.ID, seq, rbErr)}
			}
			prior, found, err := e.store.LookupMessage(ctx, msg.ID)
			if err != nil || !found {
				if err == nil {
					err = fmt.Errorf("message %s vanished from the log", msg.ID)
				}
				return Reply{MessageID: msg.ID, Seq: seq, Err: NewLookupError(msg.ID, seq, err)}
			}
			return e.redeliver(ctx, prior, start)
		}
	}

	slog.Info("message processed",
		"id", msg.ID,
		"action", msg.Action,
		"outcome", res.Outcome,
		"notices", len(res.Notices),
		"seq", seq,
	)

	e.publish(ctx, msg.ID, seq, res.Notices)

	if e.observer != nil {
		e.observer.ObserveMessage(msg.Action, res.Outcome, false, time.Since(start))
		for _, n := range res.Notices {
			e.observer.ObserveNotice(n)
		}
		e.observer.ObserveRegistry(e.reg.Counts())
	}

	return reply
}

// redeliver answers a message already in the log. The registry is not
// touched and no ACL patch is sent again; an accepted State-Notice comes
// back as a stale rejection.
func (e *Engine) redeliver(ctx context.Context, prior store.MessageRecord, start time.Time) Reply {
	res := e.router.Redeliver(prior.Message, prior.Outcome, prior.Notices)
	e.assignIDs(res.Notices)

	slog.Info("duplicate message answered from log",
		"id", prior.ID,
		"action", prior.Message.Action,
		"original_seq", prior.Seq,
		"outcome", res.Outcome,
	)

	e.publish(ctx, prior.ID, prior.Seq, res.Notices)

	if e.observer != nil {
		e.observer.ObserveMessage(prior.Message.Action, res.Outcome, true, time.Since(start))
		for _, n := range res.Notices {
			e.observer.ObserveNotice(n)
		}
	}

	return Reply{
		MessageID: prior.ID,
		Seq:       prior.Seq,
		Outcome:   res.Outcome,
		Notices:   res.Notices,
		Duplicate: true,
	}
}

// rollback reloads the registry from the store, discarding routed changes
// that were never committed.
func (e *Engine) rollback(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	state, err := e.store.LoadState(ctx)
	if err == nil {
		err = e.reg.Restore(state)
	}
	if err != nil {
		slog.Error("registry rollback failed", "error", err)
		return fmt.Errorf("rollback: %w", err)
	}
	slog.Warn("registry rolled back to stored state",
		"entities", len(state.Entities),
		"versions", len(state.Versions),
	)
	return nil
}

func (e *Engine) assignIDs(notices []wire.Notice) {
	for i := range notices {
		if notices[i].ID == "" {
			notices[i].ID = e.ids.Generate()
		}
	}
}

func (e *Engine) publish(ctx context.Context, id string, seq int64, notices []wire.Notice) {
	if e.sink == nil || len(notices) == 0 {
		return
	}
	if err := e.sink.Publish(ctx, seq, notices); err != nil {
		slog.Warn("notice publication failed",
			"id", id,
			"seq", seq,
			"error", err,
		)
	}
}

// messageID names a message that arrived without an id. A message carrying
// the transport's ordering reference is content-addressed so a redelivery
// maps to the same log entry; anything else is a fresh delivery.
func (e *Engine) messageID(msg wire.Message) string {
	if msg.Reference != nil {
		if id, err := wire.MessageID(msg); err == nil {
			return id
		}
	}
	return e.ids.Generate()
}

// logEventError logs a processing failure with full context.
// This enables manual investigation and replay of the failed message.
func logEventError(event Event, r Reply, err error) {
	slog.Error("message processing failed",
		"error", err,
		"id", r.MessageID,
		"action", event.Message.Action,
		"from", event.Message.From,
		"seq", r.Seq,
	)
}

// Package troupe is a single-threaded cooperative actor runtime. It
// schedules independent actors in response to messages and wakeup signals,
// multiplexing many units of work on one thread without OS-level parallelism.
//
// Actors live in a World, arranged in an ownership tree: stopping a parent
// finalizes every descendant before the parent itself. Messages reach actors
// either through World.Send (typed, batched per step) or through Mailbox
// senders paired with Signals. OS readiness integration lives in the poll
// package.
package troupe

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// World tracks and executes actors on a single thread.
//
// A World is not safe for concurrent use. All interaction, including sends
// from mailbox senders and signals, must happen on the thread running the
// world.
type World struct {
	tree  tree
	ready schedule
	stops stopQueue

	// cycle counts RunUntilIdle calls, for the pending-start timeout.
	cycle   uint64
	running bool

	log *slog.Logger
}

// WorldOption configures a World.
type WorldOption func(*World)

// WithLogger sets the logger used for scheduler events. Defaults to
// slog.Default().
func WithLogger(log *slog.Logger) WorldOption {
	return func(w *World) { w.log = log }
}

// NewWorld creates an empty world.
func NewWorld(opts ...WorldOption) *World {
	w := &World{log: slog.Default()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Create inserts a placeholder actor into the world, under parent if parent
// is a valid ID, as a root otherwise. The actor is pending-start: it cannot
// be scheduled or addressed until Start installs its body. An actor left
// pending for a full scheduler cycle is converted into a stop request.
//
// The name is a diagnostic label used in logging.
func (w *World) Create(parent ID, name string, opts ...CreateOption) (ID, error) {
	n := node{
		name:         name,
		parent:       parent,
		pending:      true,
		pendingCycle: w.cycle,
	}
	for _, opt := range opts {
		opt(&n)
	}

	id, err := w.tree.insert(n)
	if err != nil {
		return ID{}, fmt.Errorf("create %q: %w", name, err)
	}

	w.log.Debug("created actor", "actor", id, "name", name, "parent", parent)
	return id, nil
}

// Start installs the body of a previously created actor.
func (w *World) Start(id ID, body Actor) error {
	n := w.tree.get(id)
	if n == nil {
		return fmt.Errorf("start: %w: %s", ErrActorNotFound, id)
	}
	if !n.pending {
		return fmt.Errorf("start: %w: %s", ErrActorAlreadyStarted, id)
	}

	n.entry = body
	n.pending = false

	w.log.Debug("started actor", "actor", id, "name", n.name)
	return nil
}

// Send delivers a message to an actor and schedules it for processing. The
// actor observes every message sent before its next step as one batch, in
// send order.
//
// Delivery failures (missing actor, pending stop, body unavailable, type
// mismatch) are returned to the caller and logged; they are never fatal to
// the world.
func (w *World) Send(id ID, msg any) error {
	if err := w.deliver(id, msg); err != nil {
		w.log.Warn("message delivery failed", "actor", id, "error", err)
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

func (w *World) deliver(id ID, msg any) error {
	n := w.tree.get(id)
	if n == nil {
		return fmt.Errorf("%w: %s", ErrActorNotFound, id)
	}
	if w.stops.contains(id) {
		return fmt.Errorf("%w: %s", ErrActorStopping, id)
	}
	if n.entry == nil {
		return fmt.Errorf("%w: %s", ErrActorUnavailable, id)
	}

	receiver, ok := n.entry.(Receiver)
	if !ok {
		return fmt.Errorf("%w: %s accepts no messages", ErrMessageType, id)
	}
	if err := receiver.Deliver(msg); err != nil {
		return fmt.Errorf("deliver to %s: %w", id, err)
	}

	w.ready.enqueue(id, n.highPriority)
	return nil
}

// Stop requests that an actor and all its descendants be removed. The request
// is recorded, not applied: an in-progress step always finishes, and removal
// happens during the next drain, children strictly before parents.
func (w *World) Stop(id ID) error {
	if w.tree.get(id) == nil {
		return fmt.Errorf("stop: %w: %s", ErrActorNotFound, id)
	}
	w.stops.push(id, StopCalled)
	return nil
}

// enqueue schedules an actor for processing, deduplicated. Used by Signal.
func (w *World) enqueue(id ID) error {
	n := w.tree.get(id)
	if n == nil {
		return fmt.Errorf("%w: %s", ErrActorNotFound, id)
	}
	w.ready.enqueue(id, n.highPriority)
	return nil
}

// Len reports the number of live actors, pending-start included.
func (w *World) Len() int { return w.tree.len() }

// RunUntilIdle processes pending work until both the ready queue and the stop
// queue are empty. Each iteration converts expired pending-start actors into
// stop requests, fully drains the stop queue (cascading children first), then
// runs one actor's processing step.
//
// Errors raised inside steps are absorbed: they stop the failing actor only,
// and the loop itself never unwinds.
func (w *World) RunUntilIdle() error {
	if w.running {
		return errors.New("run until idle re-entered during a step")
	}
	w.running = true
	defer func() { w.running = false }()

	w.cycle++

	for {
		w.timeoutPending()
		w.drainStops()

		id, ok := w.ready.next()
		if !ok {
			if w.stops.empty() {
				return nil
			}
			continue
		}

		w.step(id)
	}
}

// timeoutPending converts actors still pending-start from an earlier cycle
// into stop requests. A created-but-never-started actor would otherwise leak
// its slot forever.
func (w *World) timeoutPending() {
	var expired []ID
	w.tree.each(func(id ID, n *node) bool {
		if n.pending && n.pendingCycle < w.cycle && !w.stops.contains(id) {
			expired = append(expired, id)
		}
		return true
	})

	for _, id := range expired {
		w.log.Warn("actor created but never started", "actor", id)
		w.stops.push(id, NotStarted)
	}
}

// drainStops removes every actor with a pending stop request. Descendants of
// a stopping actor are pushed behind it in the queue and popped first, so
// children are always finalized strictly before their parents.
func (w *World) drainStops() {
	for {
		entry, ok := w.stops.peek()
		if !ok {
			return
		}

		if children := w.tree.children(entry.id); len(children) > 0 {
			for _, child := range children {
				w.stops.push(child, ParentStopping)
			}
			continue
		}

		w.finalize(entry.id, entry.reason)
		w.stops.pop()
	}
}

func (w *World) finalize(id ID, reason StopReason) {
	w.ready.remove(id)

	n, ok := w.tree.remove(id)
	if !ok {
		w.log.Error("stop requested for actor missing from tree", "actor", id)
		return
	}

	// Bodies holding external resources (readiness registrations, file
	// descriptors) release them here. Cleanup failures must not be allowed to
	// block the removal cascade.
	if closer, ok := n.entry.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			w.log.Error("actor cleanup failed", "actor", id, "name", n.name, "error", err)
		}
	}

	w.log.Debug("removed actor", "actor", id, "name", n.name, "reason", reason.String())
}

// step checks out an actor's body and runs one processing step. The slot
// stays checked out for the duration, so the scheduler can never re-enter it.
func (w *World) step(id ID) {
	n := w.tree.get(id)
	if n == nil {
		// Invariant violation: a ready ID must have a live node. Fatal to
		// this actor only.
		w.log.Error("ready actor missing from tree", "actor", id)
		return
	}
	if n.entry == nil {
		w.log.Warn("scheduled actor has no body installed", "actor", id, "name", n.name)
		return
	}

	body := n.entry
	name := n.name
	n.entry = nil

	stopped, err := w.invoke(id, body)

	// The step may have grown the arena; re-resolve before handing back.
	if n = w.tree.get(id); n != nil {
		n.entry = body
	}

	if err != nil {
		// Failure isolation: log, stop this actor, keep the world running.
		w.log.Error("actor step failed", "actor", id, "name", name, "error", err)
		w.stops.push(id, ProcessFailed)
		return
	}
	if stopped {
		w.stops.push(id, StopCalled)
	}
}

func (w *World) invoke(id ID, body Actor) (stopped bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			stopped = false
			err = fmt.Errorf("step panicked: %v", r)
		}
	}()

	cx := Context{world: w, id: id}
	err = body.Process(&cx)
	return cx.stopped, err
}

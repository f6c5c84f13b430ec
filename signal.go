package troupe

import "fmt"

// Signal is a shared, rebindable wakeup handle for one actor.
//
// A signal can be bound *after* creation: the actor's ID is only known after
// insertion into the world, but I/O registration sometimes has to happen
// first. Sending while unbound is a reportable error, not a silent no-op.
//
// Sends are deduplicating: however many times a signal fires before its
// target runs, the target gets exactly one processing step, and a further
// send after that step schedules it again.
type Signal struct {
	shared *signalShared
}

type signalShared struct {
	world *World
	id    ID
}

// Signal creates a new unbound signal for this world. Copies of the returned
// value share the binding; SetID on any copy binds them all.
func (w *World) Signal() Signal {
	return Signal{shared: &signalShared{world: w}}
}

// SetID binds the signal to an actor.
func (s Signal) SetID(id ID) {
	s.shared.id = id
}

// Send schedules the bound actor for processing, unless it is already
// pending.
func (s Signal) Send() error {
	if s.shared == nil || !s.shared.id.Valid() {
		return ErrSignalUnbound
	}
	if err := s.shared.world.enqueue(s.shared.id); err != nil {
		return fmt.Errorf("send signal: %w", err)
	}
	return nil
}

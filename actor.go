package troupe

// Actor is a unit of state plus a step function, scheduled cooperatively by a
// World. A step runs to completion; anything not yet available must be
// deferred to a future step via mailbox state or readiness latches.
type Actor interface {
	// Process performs one processing step. Everything delivered to the actor
	// since its previous step is available as a single batch.
	//
	// Returning an error stops the actor: the error is logged and the actor
	// is routed to the stop queue. The scheduler itself never unwinds, so
	// prefer returning an error over panicking.
	Process(cx *Context) error
}

// Receiver is implemented by actors addressable through World.Send. Deliver
// accepts a type-tagged payload and reports match or no-match; the type
// erasure boundary sits exactly at this scheduler-to-body hand-off.
//
// Actors driven purely by mailboxes don't need to implement Receiver.
type Receiver interface {
	Actor
	Deliver(msg any) error
}

// Inbox is an embeddable typed message buffer satisfying the Receiver side of
// the contract. The owning actor drains it with Next during Process.
type Inbox[M any] struct {
	queue []M
}

// Deliver accepts msg if it is of the inbox's message type.
func (in *Inbox[M]) Deliver(msg any) error {
	m, ok := msg.(M)
	if !ok {
		return ErrMessageType
	}
	in.queue = append(in.queue, m)
	return nil
}

// Next pops the oldest buffered message, preserving sender call order.
func (in *Inbox[M]) Next() (M, bool) {
	if len(in.queue) == 0 {
		var zero M
		return zero, false
	}
	m := in.queue[0]
	in.queue = in.queue[1:]
	return m, true
}

// Len reports the number of buffered messages.
func (in *Inbox[M]) Len() int { return len(in.queue) }

// CreateOption adjusts how an actor is scheduled.
type CreateOption func(*node)

// HighPriority marks the actor for front-of-queue scheduling. Meant for
// cheap relay actors; a relay waiting at the end of the queue fragments the
// batches of the heavier actors it feeds, hurting both throughput and
// latency.
func HighPriority() CreateOption {
	return func(n *node) { n.highPriority = true }
}

package troupe

import "errors"

var (
	// ErrActorNotFound is returned when an ID does not resolve to a live
	// actor, either because it was never issued or the actor was removed.
	ErrActorNotFound = errors.New("actor not found")

	// ErrActorAlreadyStarted is returned by Start when the actor already has
	// a body installed.
	ErrActorAlreadyStarted = errors.New("actor already started")

	// ErrParentNotFound is returned by Create when the given parent is absent.
	ErrParentNotFound = errors.New("parent actor not found")

	// ErrActorStopping is returned by Send when the target has a pending stop
	// request; new messages would never be observed.
	ErrActorStopping = errors.New("actor stopping")

	// ErrActorUnavailable is returned by Send when the target's body is not
	// installed: the actor is pending-start, or checked out for its own
	// in-progress step. Use a Mailbox for self-messaging.
	ErrActorUnavailable = errors.New("actor body unavailable")

	// ErrMessageType is returned when a message's runtime type does not match
	// what the target accepts, or the target accepts no messages at all.
	ErrMessageType = errors.New("message type not accepted")

	// ErrMailboxClosed is returned by Sender.Send after the authoritative
	// mailbox has been closed; senders are non-owning references.
	ErrMailboxClosed = errors.New("mailbox closed")

	// ErrSignalUnbound is returned by Signal.Send before SetID has bound the
	// signal to an actor.
	ErrSignalUnbound = errors.New("signal not bound to an actor")
)

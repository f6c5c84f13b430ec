package troupe

import "fmt"

// Mailbox is a shared single-threaded FIFO message queue with at most one
// bound notification target.
//
// The Mailbox value is the authoritative owner: it creates non-owning Sender
// references, and closing it invalidates every sender. Two delivery modes are
// supported: notifying (push + wake the bound signal) and floating (push
// only, the consumer polls manually).
type Mailbox[M any] struct {
	inner *mailboxInner[M]
}

type mailboxInner[M any] struct {
	queue    []M
	signal   Signal
	floating bool
	closed   bool
}

// NewMailbox creates a mailbox that wakes signal on every send.
func NewMailbox[M any](signal Signal) Mailbox[M] {
	return Mailbox[M]{inner: &mailboxInner[M]{signal: signal}}
}

// FloatingMailbox creates a mailbox with no wakeup target; the consumer is
// expected to drain it on its own schedule.
func FloatingMailbox[M any]() Mailbox[M] {
	return Mailbox[M]{inner: &mailboxInner[M]{floating: true}}
}

// Sender yields a non-owning reference for pushing messages to this mailbox.
func (m Mailbox[M]) Sender() Sender[M] {
	return Sender[M]{inner: m.inner}
}

// SetSignal binds the signal to wake on incoming messages. A mailbox has at
// most one notify target; this replaces any previous one.
func (m Mailbox[M]) SetSignal(signal Signal) {
	m.inner.signal = signal
	m.inner.floating = false
}

// SetFloating removes the notify target; sends push without waking anyone.
func (m Mailbox[M]) SetFloating() {
	m.inner.signal = Signal{}
	m.inner.floating = true
}

// Recv pops the next message, if any is available.
func (m Mailbox[M]) Recv() (M, bool) {
	inner := m.inner
	if len(inner.queue) == 0 {
		var zero M
		return zero, false
	}
	msg := inner.queue[0]
	inner.queue = inner.queue[1:]
	return msg, true
}

// Len reports the number of queued messages.
func (m Mailbox[M]) Len() int { return len(m.inner.queue) }

// Close marks the mailbox closed and drops any queued messages. Every
// outstanding sender fails from now on; a send through a reference whose
// owner is gone must fail explicitly, never silently succeed.
func (m Mailbox[M]) Close() {
	m.inner.closed = true
	m.inner.queue = nil
}

// Sender is a non-owning reference to a mailbox.
type Sender[M any] struct {
	inner *mailboxInner[M]
}

// Send pushes a message to the target mailbox, waking the bound signal first
// if the mailbox is notifying. The message is only queued if notification
// succeeds, so a delivery error never leaves half-applied state.
func (s Sender[M]) Send(msg M) error {
	inner := s.inner
	if inner == nil || inner.closed {
		return ErrMailboxClosed
	}

	if !inner.floating {
		if err := inner.signal.Send(); err != nil {
			return fmt.Errorf("notify listener: %w", err)
		}
	}

	inner.queue = append(inner.queue, msg)
	return nil
}

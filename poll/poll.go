// Package poll binds OS-pollable resources to troupe signals, multiplexing
// many file descriptors through one poll call. It deliberately separates
// "I/O is ready" (delivered generically through Signal to the scheduler) from
// "what to do about it" (left entirely to the registered actor), because
// different resource kinds react differently to the same readiness bits.
//
// Linux uses epoll(7); the BSDs and Darwin use kqueue(2).
package poll

import "errors"

// Token correlates one registered OS resource with one signal and one latched
// ready state.
type Token uint64

// Interest selects which readiness kinds a registration wants.
type Interest uint8

const (
	// Readable requests read-readiness events.
	Readable Interest = 1 << iota
	// Writable requests write-readiness events.
	Writable
)

func (i Interest) readable() bool { return i&Readable != 0 }
func (i Interest) writable() bool { return i&Writable != 0 }

// ReadyState is the per-registration latched readiness pair. Bits accumulate
// from events until read-and-cleared with Source.Take; the OS does not
// guarantee another event for readiness that was reported but not consumed.
type ReadyState struct {
	Readable bool
	Writable bool
}

// ErrRegistryClosed is returned by Register after the registry is closed.
var ErrRegistryClosed = errors.New("registry closed")

// event is one readiness notification out of the OS poller.
type event struct {
	token    Token
	readable bool
	writable bool
}

// osPoller abstracts the platform multiplexer.
type osPoller interface {
	add(fd int, token Token, interest Interest) error
	modify(fd int, token Token, interest Interest) error
	remove(fd int) error
	// wait blocks until readiness or timeout, filling events. A would-block
	// style empty result is n == 0, never an error.
	wait(events []event, timeoutMillis int) (int, error)
	close() error
}

package poll

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/troupe-io/troupe"
)

const (
	defaultPollTimeout   = time.Millisecond
	defaultEventCapacity = 256
)

// Registry multiplexes OS readiness notifications for many file descriptors
// through one poll call, fanning them out to troupe signals.
//
// Like the world it feeds, a Registry is single-threaded: register and poll
// only from the thread running the event loop.
type Registry struct {
	os     osPoller
	tokens map[Token]*tokenEntry
	next   uint64

	timeout time.Duration
	scratch []event
	closed  bool
	log     *slog.Logger
}

type tokenEntry struct {
	fd     int
	signal troupe.Signal
	state  ReadyState
}

// Option configures a Registry.
type Option func(*Registry)

// WithPollTimeout bounds how long one poll call may block. The default of one
// millisecond is biased toward low latency.
func WithPollTimeout(d time.Duration) Option {
	return func(r *Registry) { r.timeout = d }
}

// WithEventCapacity sets how many events one poll call can return at most.
func WithEventCapacity(n int) Option {
	return func(r *Registry) { r.scratch = make([]event, n) }
}

// WithLogger sets the logger used for registry events. Defaults to
// slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(r *Registry) { r.log = log }
}

// NewRegistry creates a registry backed by the platform multiplexer.
func NewRegistry(opts ...Option) (*Registry, error) {
	os, err := newOSPoller()
	if err != nil {
		return nil, fmt.Errorf("create poller: %w", err)
	}

	r := &Registry{
		os:      os,
		tokens:  make(map[Token]*tokenEntry),
		timeout: defaultPollTimeout,
		scratch: make([]event, defaultEventCapacity),
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Register binds a file descriptor to a wakeup signal under a fresh token.
// The signal may still be unbound at registration time; it only has to be
// bound by the time events arrive.
func (r *Registry) Register(fd int, interest Interest, signal troupe.Signal) (*Source, error) {
	if r.closed {
		return nil, ErrRegistryClosed
	}

	r.next++
	token := Token(r.next)

	if err := r.os.add(fd, token, interest); err != nil {
		return nil, fmt.Errorf("register fd %d: %w", fd, err)
	}
	r.tokens[token] = &tokenEntry{fd: fd, signal: signal}

	r.log.Debug("registered source", "fd", fd, "token", uint64(token))
	return &Source{registry: r, token: token}, nil
}

// PollOnce performs one bounded poll and latches any readiness onto the
// affected tokens, waking their signals. Problems with individual tokens are
// logged and skipped; only a failing poll call itself is returned.
func (r *Registry) PollOnce() error {
	n, err := r.os.wait(r.scratch, int(r.timeout.Milliseconds()))
	if err != nil {
		return fmt.Errorf("poll: %w", err)
	}

	for _, ev := range r.scratch[:n] {
		if !ev.readable && !ev.writable {
			continue
		}

		entry, ok := r.tokens[ev.token]
		if !ok {
			// Deregistered while the event was in flight.
			r.log.Debug("event for unknown token", "token", uint64(ev.token))
			continue
		}

		// Latch rather than overwrite: unconsumed readiness from earlier
		// events must combine, the OS won't repeat it.
		entry.state.Readable = entry.state.Readable || ev.readable
		entry.state.Writable = entry.state.Writable || ev.writable

		if err := entry.signal.Send(); err != nil {
			r.log.Error("failed to wake registered actor",
				"token", uint64(ev.token), "fd", entry.fd, "error", err)
		}
	}
	return nil
}

// Close releases the OS multiplexer. Outstanding sources go inert: Take
// returns an empty state and Deregister logs.
func (r *Registry) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.tokens = map[Token]*tokenEntry{}
	if err := r.os.close(); err != nil {
		return fmt.Errorf("close registry: %w", err)
	}
	return nil
}

// Source is the handle for one registered resource.
type Source struct {
	registry *Registry
	token    Token
}

// Reregister replaces the interest set of the registration. Typical use is
// adding write interest while an outgoing queue is non-empty and dropping it
// again after it drains.
func (s *Source) Reregister(fd int, interest Interest) error {
	entry, ok := s.registry.tokens[s.token]
	if !ok {
		return fmt.Errorf("reregister fd %d: %w", fd, ErrRegistryClosed)
	}
	if err := s.registry.os.modify(fd, s.token, interest); err != nil {
		return fmt.Errorf("reregister fd %d: %w", fd, err)
	}
	entry.fd = fd
	return nil
}

// Deregister removes the OS-level registration and the token entry. Failures
// are logged, never propagated: cleanup must not be allowed to block an
// owning actor's shutdown.
func (s *Source) Deregister(fd int) {
	r := s.registry
	if _, ok := r.tokens[s.token]; !ok {
		if r.closed {
			return
		}
		r.log.Error("deregister of unknown token", "fd", fd, "token", uint64(s.token))
		return
	}

	delete(r.tokens, s.token)
	if err := r.os.remove(fd); err != nil {
		r.log.Error("failed to deregister source", "fd", fd, "error", err)
	}
}

// Take returns the latched ready state and clears it for future events.
func (s *Source) Take() ReadyState {
	entry, ok := s.registry.tokens[s.token]
	if !ok {
		return ReadyState{}
	}
	state := entry.state
	entry.state = ReadyState{}
	return state
}

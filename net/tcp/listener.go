//go:build unix

// Package tcp provides TCP listener and stream actors. A listener accepts
// connections and spawns one stream actor per connection as its child, so
// stopping the listener tears every stream down with it.
package tcp

import (
	"fmt"
	"log/slog"
	"net/netip"

	"golang.org/x/sys/unix"

	"github.com/troupe-io/troupe"
	"github.com/troupe-io/troupe/net/sock"
	"github.com/troupe-io/troupe/poll"
)

const listenBacklog = 128

// ListenerEvent is emitted by a listener actor.
type ListenerEvent interface{ isListenerEvent() }

// ConnectedEvent reports one accepted connection. Events is a floating
// mailbox; bind it to the consuming actor's signal with SetSignal.
type ConnectedEvent struct {
	Peer    netip.AddrPort
	Events  troupe.Mailbox[StreamEvent]
	Actions troupe.Sender[StreamAction]
}

// ListenerClosedEvent reports that the listener stopped.
type ListenerClosedEvent struct{}

func (ConnectedEvent) isListenerEvent()      {}
func (ListenerClosedEvent) isListenerEvent() {}

// ListenerAction is a request to a listener actor.
type ListenerAction interface{ isListenerAction() }

// CloseListenerAction closes the listening socket and stops the actor.
type CloseListenerAction struct{}

func (CloseListenerAction) isListenerAction() {}

// Listen opens a TCP listener on addr and starts its actor under parent.
// Accepted connections are announced through events.
func Listen(
	w *troupe.World,
	registry *poll.Registry,
	parent troupe.ID,
	addr netip.AddrPort,
	events troupe.Sender[ListenerEvent],
) (troupe.Sender[ListenerAction], netip.AddrPort, error) {
	id, err := w.Create(parent, "tcp-listener")
	if err != nil {
		return troupe.Sender[ListenerAction]{}, netip.AddrPort{}, err
	}
	signal := w.Signal()
	signal.SetID(id)

	fd, bound, err := sock.Listen(addr, listenBacklog)
	if err != nil {
		return troupe.Sender[ListenerAction]{}, netip.AddrPort{}, err
	}

	source, err := registry.Register(fd, poll.Readable, signal)
	if err != nil {
		unix.Close(fd)
		return troupe.Sender[ListenerAction]{}, netip.AddrPort{}, err
	}

	actor := &listenerActor{
		fd:       fd,
		registry: registry,
		source:   source,
		actions:  troupe.NewMailbox[ListenerAction](signal),
		events:   events,
	}
	if err := w.Start(id, actor); err != nil {
		actor.Close()
		return troupe.Sender[ListenerAction]{}, netip.AddrPort{}, err
	}

	slog.Debug("tcp listener bound", "addr", bound.String())
	return actor.actions.Sender(), bound, nil
}

type listenerActor struct {
	fd       int
	registry *poll.Registry
	source   *poll.Source

	actions troupe.Mailbox[ListenerAction]
	events  troupe.Sender[ListenerEvent]
}

func (a *listenerActor) Process(cx *troupe.Context) error {
	state := a.source.Take()
	if state.Readable {
		if err := a.acceptPending(cx); err != nil {
			return err
		}
	}

	for {
		_, ok := a.actions.Recv()
		if !ok {
			break
		}
		// Close is the only listener action.
		_ = a.events.Send(ListenerClosedEvent{})
		cx.Stop()
	}
	return nil
}

// Close releases the readiness registration and the listening socket.
func (a *listenerActor) Close() error {
	if a.fd < 0 {
		return nil
	}
	a.source.Deregister(a.fd)
	err := unix.Close(a.fd)
	a.fd = -1
	a.actions.Close()
	if err != nil {
		return fmt.Errorf("close tcp listener: %w", err)
	}
	return nil
}

func (a *listenerActor) acceptPending(cx *troupe.Context) error {
	for {
		nfd, peer, err := sock.Accept(a.fd)
		if err != nil {
			if sock.WouldBlock(err) {
				return nil
			}
			if sock.Interrupted(err) {
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}

		slog.Debug("tcp stream accepted", "peer", peer.String())

		// Hand the consumer a floating mailbox; it decides who gets woken.
		streamEvents := troupe.FloatingMailbox[StreamEvent]()
		actions, err := openStream(cx.World(), a.registry, cx.ID(), nfd, streamEvents.Sender())
		if err != nil {
			return fmt.Errorf("open accepted stream: %w", err)
		}

		event := ConnectedEvent{
			Peer:    peer,
			Events:  streamEvents,
			Actions: actions,
		}
		if err := a.events.Send(event); err != nil {
			return fmt.Errorf("emit connected event: %w", err)
		}
	}
}

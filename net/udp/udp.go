//go:build unix

// Package udp provides a UDP socket as a troupe actor. The socket emits
// received packets to a caller-supplied sender and accepts send/close actions
// through a mailbox, touching the core only through those surfaces.
package udp

import (
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"golang.org/x/sys/unix"

	"github.com/troupe-io/troupe"
	"github.com/troupe-io/troupe/net/sock"
	"github.com/troupe-io/troupe/poll"
)

// Max size of a UDP packet.
const bufferSize = 1 << 16

// Packet is one datagram, incoming or outgoing.
type Packet struct {
	Peer netip.AddrPort
	Data []byte
}

// RecvEvent reports one received datagram.
type RecvEvent struct {
	Peer    netip.AddrPort
	Data    []byte
	Arrived time.Time
}

// Action is a request to the socket actor.
type Action interface{ isAction() }

// SendAction queues an outgoing datagram.
type SendAction struct {
	Packet Packet
}

// CloseAction closes the socket and stops the actor.
type CloseAction struct{}

func (SendAction) isAction()  {}
func (CloseAction) isAction() {}

// Bind opens a UDP socket on addr and starts its actor under parent. Received
// datagrams go out through events; the returned sender accepts actions.
func Bind(
	w *troupe.World,
	registry *poll.Registry,
	parent troupe.ID,
	addr netip.AddrPort,
	events troupe.Sender[RecvEvent],
) (troupe.Sender[Action], netip.AddrPort, error) {
	id, err := w.Create(parent, "udp-socket")
	if err != nil {
		return troupe.Sender[Action]{}, netip.AddrPort{}, err
	}
	signal := w.Signal()
	signal.SetID(id)

	fd, bound, err := sock.UDP(addr)
	if err != nil {
		return troupe.Sender[Action]{}, netip.AddrPort{}, err
	}

	source, err := registry.Register(fd, poll.Readable, signal)
	if err != nil {
		unix.Close(fd)
		return troupe.Sender[Action]{}, netip.AddrPort{}, err
	}

	actor := &socketActor{
		fd:      fd,
		source:  source,
		actions: troupe.NewMailbox[Action](signal),
		events:  events,
		buffer:  make([]byte, bufferSize),
	}
	if err := w.Start(id, actor); err != nil {
		actor.Close()
		return troupe.Sender[Action]{}, netip.AddrPort{}, err
	}

	slog.Debug("udp socket bound", "addr", bound.String())
	return actor.actions.Sender(), bound, nil
}

type socketActor struct {
	fd     int
	source *poll.Source

	actions troupe.Mailbox[Action]
	events  troupe.Sender[RecvEvent]

	queue  []Packet
	buffer []byte
}

func (a *socketActor) Process(cx *troupe.Context) error {
	for {
		action, ok := a.actions.Recv()
		if !ok {
			break
		}
		switch action := action.(type) {
		case SendAction:
			if err := a.queueSend(action.Packet); err != nil {
				return err
			}
		case CloseAction:
			cx.Stop()
			return nil
		}
	}

	state := a.source.Take()
	if state.Readable {
		if err := a.pollRead(); err != nil {
			return err
		}
	}
	if state.Writable {
		if err := a.pollWrite(); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the readiness registration and the socket. Called by the
// scheduler when the actor is removed.
func (a *socketActor) Close() error {
	if a.fd < 0 {
		return nil
	}
	a.source.Deregister(a.fd)
	err := unix.Close(a.fd)
	a.fd = -1
	a.actions.Close()
	if err != nil {
		return fmt.Errorf("close udp socket: %w", err)
	}
	return nil
}

func (a *socketActor) queueSend(packet Packet) error {
	// Write interest is only registered while the queue is non-empty.
	if len(a.queue) == 0 {
		if err := a.source.Reregister(a.fd, poll.Readable|poll.Writable); err != nil {
			return err
		}
	}
	a.queue = append(a.queue, packet)
	return nil
}

func (a *socketActor) pollRead() error {
	for {
		n, sa, err := unix.Recvfrom(a.fd, a.buffer, 0)
		if err != nil {
			if sock.WouldBlock(err) {
				return nil
			}
			if sock.Interrupted(err) {
				continue
			}
			return fmt.Errorf("recvfrom: %w", err)
		}

		data := make([]byte, n)
		copy(data, a.buffer[:n])
		event := RecvEvent{
			Peer:    sock.FromSockaddr(sa),
			Data:    data,
			Arrived: time.Now(),
		}
		if err := a.events.Send(event); err != nil {
			return fmt.Errorf("emit recv event: %w", err)
		}
	}
}

func (a *socketActor) pollWrite() error {
	for len(a.queue) > 0 {
		packet := a.queue[0]

		err := unix.Sendto(a.fd, packet.Data, 0, sock.ToSockaddr(packet.Peer))
		if err != nil {
			if sock.WouldBlock(err) {
				return nil
			}
			if sock.Interrupted(err) {
				continue
			}
			return fmt.Errorf("sendto %s: %w", packet.Peer, err)
		}
		a.queue = a.queue[1:]
	}

	// Queue drained; stop asking for write events.
	return a.source.Reregister(a.fd, poll.Readable)
}

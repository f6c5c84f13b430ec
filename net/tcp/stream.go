//go:build unix

package tcp

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/troupe-io/troupe"
	"github.com/troupe-io/troupe/net/sock"
	"github.com/troupe-io/troupe/poll"
)

const readChunk = 32 * 1024

// StreamEvent is emitted by a stream actor.
type StreamEvent interface{ isStreamEvent() }

// RecvEvent reports data received on the stream.
type RecvEvent struct {
	Data []byte
}

// ClosedEvent reports that the stream has closed.
type ClosedEvent struct{}

func (RecvEvent) isStreamEvent()   {}
func (ClosedEvent) isStreamEvent() {}

// StreamAction is a request to a stream actor.
type StreamAction interface{ isStreamAction() }

// SendAction queues outgoing data.
type SendAction struct {
	Data []byte
}

// CloseAction closes the stream and stops its actor.
type CloseAction struct{}

func (SendAction) isStreamAction()  {}
func (CloseAction) isStreamAction() {}

// openStream starts an actor for an established, nonblocking connection fd.
func openStream(
	w *troupe.World,
	registry *poll.Registry,
	parent troupe.ID,
	fd int,
	events troupe.Sender[StreamEvent],
) (troupe.Sender[StreamAction], error) {
	id, err := w.Create(parent, "tcp-stream")
	if err != nil {
		return troupe.Sender[StreamAction]{}, err
	}
	signal := w.Signal()
	signal.SetID(id)

	source, err := registry.Register(fd, poll.Readable, signal)
	if err != nil {
		unix.Close(fd)
		return troupe.Sender[StreamAction]{}, err
	}

	actor := &streamActor{
		fd:      fd,
		source:  source,
		actions: troupe.NewMailbox[StreamAction](signal),
		events:  events,
		buffer:  make([]byte, readChunk),
	}
	if err := w.Start(id, actor); err != nil {
		actor.Close()
		return troupe.Sender[StreamAction]{}, err
	}

	return actor.actions.Sender(), nil
}

type streamActor struct {
	fd     int
	source *poll.Source

	actions troupe.Mailbox[StreamAction]
	events  troupe.Sender[StreamEvent]

	queue      [][]byte
	buffer     []byte
	peerClosed bool
}

func (a *streamActor) Process(cx *troupe.Context) error {
	for {
		action, ok := a.actions.Recv()
		if !ok {
			break
		}
		switch action := action.(type) {
		case SendAction:
			if err := a.queueSend(action.Data); err != nil {
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

	if a.peerClosed {
		// Best effort: the receiving end may already be gone.
		_ = a.events.Send(ClosedEvent{})
		cx.Stop()
	}
	return nil
}

// Close releases the readiness registration and the connection.
func (a *streamActor) Close() error {
	if a.fd < 0 {
		return nil
	}
	a.source.Deregister(a.fd)
	err := unix.Close(a.fd)
	a.fd = -1
	a.actions.Close()
	if err != nil {
		return fmt.Errorf("close tcp stream: %w", err)
	}
	return nil
}

func (a *streamActor) queueSend(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if len(a.queue) == 0 {
		if err := a.source.Reregister(a.fd, poll.Readable|poll.Writable); err != nil {
			return err
		}
	}
	a.queue = append(a.queue, data)
	return nil
}

func (a *streamActor) pollRead() error {
	var received []byte

	for {
		n, err := unix.Read(a.fd, a.buffer)
		if err != nil {
			if sock.WouldBlock(err) {
				break
			}
			if sock.Interrupted(err) {
				continue
			}
			return fmt.Errorf("read stream: %w", err)
		}

		// A read of zero means the peer closed the stream.
		if n == 0 {
			a.peerClosed = true
			break
		}
		received = append(received, a.buffer[:n]...)
	}

	if len(received) != 0 {
		if err := a.events.Send(RecvEvent{Data: received}); err != nil {
			return fmt.Errorf("emit recv event: %w", err)
		}
	}
	return nil
}

func (a *streamActor) pollWrite() error {
	for len(a.queue) > 0 {
		data := a.queue[0]

		n, err := unix.Write(a.fd, data)
		if err != nil {
			if sock.WouldBlock(err) {
				return nil
			}
			if sock.Interrupted(err) {
				continue
			}
			return fmt.Errorf("write stream: %w", err)
		}

		if n < len(data) {
			a.queue[0] = data[n:]
			continue
		}
		a.queue = a.queue[1:]
	}

	return a.source.Reregister(a.fd, poll.Readable)
}

//go:build unix

// Package http serves HTTP/1.1 on top of the tcp actor package. It frames
// requests and responses; everything else about the protocol is left to the
// consumer. The core runtime is only ever touched through mailboxes, senders
// and signals.
package http

import (
	"bytes"
	"net/netip"
	"strconv"

	"github.com/troupe-io/troupe"
	"github.com/troupe-io/troupe/net/tcp"
	"github.com/troupe-io/troupe/poll"
)

// Event is emitted by an HTTP server.
type Event interface{ isEvent() }

// RequestEvent reports one parsed request. Send actions through Actions to
// answer it.
//
// HTTP/1.1 connections can't be multiplexed: responses are written to the
// connection in request order, so submit them in the order the requests
// arrived.
type RequestEvent struct {
	Header  Header
	Actions troupe.Sender[RequestAction]
}

func (RequestEvent) isEvent() {}

// RequestAction answers a pending request.
type RequestAction interface{ isRequestAction() }

// RespondAction sends a minimal 200 response with the given body.
type RespondAction struct {
	Body []byte
}

func (RespondAction) isRequestAction() {}

// Listen serves HTTP on addr, under parent. Parsed requests go out through
// events.
func Listen(
	w *troupe.World,
	registry *poll.Registry,
	parent troupe.ID,
	addr netip.AddrPort,
	events troupe.Sender[Event],
) (netip.AddrPort, error) {
	id, err := w.Create(parent, "http-server")
	if err != nil {
		return netip.AddrPort{}, err
	}
	signal := w.Signal()
	signal.SetID(id)

	listenerEvents := troupe.NewMailbox[tcp.ListenerEvent](signal)
	listenerActions, bound, err := tcp.Listen(w, registry, id, addr, listenerEvents.Sender())
	if err != nil {
		return netip.AddrPort{}, err
	}

	actor := &serverActor{
		listenerEvents:  listenerEvents,
		listenerActions: listenerActions,
		events:          events,
	}
	if err := w.Start(id, actor); err != nil {
		return netip.AddrPort{}, err
	}

	return bound, nil
}

type serverActor struct {
	listenerEvents  troupe.Mailbox[tcp.ListenerEvent]
	listenerActions troupe.Sender[tcp.ListenerAction]
	events          troupe.Sender[Event]
}

func (a *serverActor) Process(cx *troupe.Context) error {
	for {
		event, ok := a.listenerEvents.Recv()
		if !ok {
			return nil
		}

		switch event := event.(type) {
		case tcp.ConnectedEvent:
			if err := openConnection(cx.World(), cx.ID(), event, a.events); err != nil {
				return err
			}
		case tcp.ListenerClosedEvent:
			cx.Stop()
			return nil
		}
	}
}

// Close stops the listener; its own removal cascade closes the streams.
func (a *serverActor) Close() error {
	_ = a.listenerActions.Send(tcp.CloseListenerAction{})
	a.listenerEvents.Close()
	return nil
}

func responseBytes(body []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("HTTP/1.1 200 OK\r\n")
	buf.WriteString("Content-Type: text/html\r\nContent-Length: ")
	buf.WriteString(strconv.Itoa(len(body)))
	buf.WriteString("\r\n\r\n")
	buf.Write(body)
	return buf.Bytes()
}

//go:build unix

package http

import (
	"fmt"
	"log/slog"

	"github.com/troupe-io/troupe"
	"github.com/troupe-io/troupe/net/tcp"
)

// openConnection starts the actor bridging one TCP stream to HTTP events.
func openConnection(
	w *troupe.World,
	parent troupe.ID,
	connected tcp.ConnectedEvent,
	events troupe.Sender[Event],
) error {
	id, err := w.Create(parent, "http-connection")
	if err != nil {
		return err
	}
	signal := w.Signal()
	signal.SetID(id)

	// Adopt the stream's floating event mailbox.
	connected.Events.SetSignal(signal)

	actor := &connectionActor{
		tcpEvents:  connected.Events,
		tcpActions: connected.Actions,
		actions:    troupe.NewMailbox[RequestAction](signal),
		events:     events,
	}
	if err := w.Start(id, actor); err != nil {
		return err
	}

	slog.Debug("http connection opened", "peer", connected.Peer.String())
	return nil
}

type connectionActor struct {
	tcpEvents  troupe.Mailbox[tcp.StreamEvent]
	tcpActions troupe.Sender[tcp.StreamAction]
	actions    troupe.Mailbox[RequestAction]
	events     troupe.Sender[Event]

	parser parser
	// pending counts requests announced but not yet answered; responses are
	// applied to them in arrival order.
	pending   int
	tcpClosed bool
}

func (a *connectionActor) Process(cx *troupe.Context) error {
	for {
		event, ok := a.tcpEvents.Recv()
		if !ok {
			break
		}

		switch event := event.(type) {
		case tcp.RecvEvent:
			headers, err := a.parser.consume(event.Data)
			if err != nil {
				// A malformed request poisons the whole connection.
				slog.Debug("dropping http connection", "error", err)
				cx.Stop()
				return nil
			}
			for _, header := range headers {
				request := RequestEvent{
					Header:  header,
					Actions: a.actions.Sender(),
				}
				if err := a.events.Send(request); err != nil {
					return fmt.Errorf("emit request event: %w", err)
				}
				a.pending++
			}
		case tcp.ClosedEvent:
			a.tcpClosed = true
		}
	}

	for {
		action, ok := a.actions.Recv()
		if !ok {
			break
		}

		// Respond is the only request action.
		respond := action.(RespondAction)
		if a.pending == 0 {
			slog.Warn("response submitted with no pending request")
			continue
		}
		a.pending--

		if a.tcpClosed {
			continue
		}
		if err := a.tcpActions.Send(tcp.SendAction{Data: responseBytes(respond.Body)}); err != nil {
			return fmt.Errorf("send response: %w", err)
		}
	}

	if a.tcpClosed {
		cx.Stop()
	}
	return nil
}

// Close shuts the underlying stream down with the connection.
func (a *connectionActor) Close() error {
	if !a.tcpClosed {
		_ = a.tcpActions.Send(tcp.CloseAction{})
	}
	a.tcpEvents.Close()
	a.actions.Close()
	return nil
}

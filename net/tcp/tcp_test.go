//go:build unix

package tcp_test

import (
	"io"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/troupe-io/troupe"
	"github.com/troupe-io/troupe/net/tcp"
	"github.com/troupe-io/troupe/poll"
)

// serverConn is one accepted connection an echoServer is serving.
type serverConn struct {
	events  troupe.Mailbox[tcp.StreamEvent]
	actions troupe.Sender[tcp.StreamAction]
}

// echoServer accepts connections and echoes stream data back.
type echoServer struct {
	signal troupe.Signal

	listener troupe.Mailbox[tcp.ListenerEvent]
	conns    []*serverConn

	accepted int
	closed   int
}

func (a *echoServer) Process(cx *troupe.Context) error {
	for {
		event, ok := a.listener.Recv()
		if !ok {
			break
		}
		switch event := event.(type) {
		case tcp.ConnectedEvent:
			event.Events.SetSignal(a.signal)
			a.conns = append(a.conns, &serverConn{
				events:  event.Events,
				actions: event.Actions,
			})
			a.accepted++
		case tcp.ListenerClosedEvent:
			cx.Stop()
		}
	}

	live := a.conns[:0]
	for _, c := range a.conns {
		open, err := a.serve(c)
		if err != nil {
			return err
		}
		if open {
			live = append(live, c)
		}
	}
	a.conns = live
	return nil
}

func (a *echoServer) serve(c *serverConn) (open bool, err error) {
	for {
		event, ok := c.events.Recv()
		if !ok {
			return true, nil
		}
		switch event := event.(type) {
		case tcp.RecvEvent:
			if err := c.actions.Send(tcp.SendAction{Data: event.Data}); err != nil {
				return false, err
			}
		case tcp.ClosedEvent:
			a.closed++
			return false, nil
		}
	}
}

type harness struct {
	world    *troupe.World
	registry *poll.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	registry, err := poll.NewRegistry(poll.WithPollTimeout(time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { registry.Close() })
	return &harness{world: troupe.NewWorld(), registry: registry}
}

func (h *harness) startEcho(t *testing.T) (*echoServer, troupe.Sender[tcp.ListenerAction], netip.AddrPort) {
	t.Helper()

	id, err := h.world.Create(troupe.ID{}, "echo-server")
	require.NoError(t, err)
	signal := h.world.Signal()
	signal.SetID(id)

	server := &echoServer{
		signal:   signal,
		listener: troupe.NewMailbox[tcp.ListenerEvent](signal),
	}
	actions, bound, err := tcp.Listen(
		h.world, h.registry, id,
		netip.MustParseAddrPort("127.0.0.1:0"),
		server.listener.Sender(),
	)
	require.NoError(t, err)
	require.NoError(t, h.world.Start(id, server))
	return server, actions, bound
}

func (h *harness) drive(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		require.NoError(t, h.registry.PollOnce())
		require.NoError(t, h.world.RunUntilIdle())
		if time.Now().After(deadline) {
			t.Fatal("condition not reached before the deadline")
		}
	}
}

type clientResult struct {
	data []byte
	err  error
}

func TestStreamEcho(t *testing.T) {
	h := newHarness(t)
	_, _, bound := h.startEcho(t)

	payload := []byte("hello over tcp")
	result := make(chan clientResult, 1)
	go func() {
		conn, err := net.Dial("tcp", bound.String())
		if err != nil {
			result <- clientResult{err: err}
			return
		}
		defer conn.Close()

		if _, err := conn.Write(payload); err != nil {
			result <- clientResult{err: err}
			return
		}
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		buf := make([]byte, len(payload))
		_, err = io.ReadFull(conn, buf)
		result <- clientResult{data: buf, err: err}
	}()

	var got *clientResult
	h.drive(t, func() bool {
		select {
		case r := <-result:
			got = &r
			return true
		default:
			return false
		}
	})
	require.NoError(t, got.err)
	assert.Equal(t, payload, got.data)
}

func TestPeerCloseRemovesStream(t *testing.T) {
	h := newHarness(t)
	server, _, bound := h.startEcho(t)

	conn, err := net.Dial("tcp", bound.String())
	require.NoError(t, err)

	h.drive(t, func() bool { return server.accepted == 1 })
	require.NoError(t, conn.Close())
	h.drive(t, func() bool { return server.closed == 1 })

	// Server actor plus listener; the stream actor is gone.
	assert.Equal(t, 2, h.world.Len())
}

func TestListenerCloseCascades(t *testing.T) {
	h := newHarness(t)
	server, actions, bound := h.startEcho(t)

	conn, err := net.Dial("tcp", bound.String())
	require.NoError(t, err)
	defer conn.Close()
	h.drive(t, func() bool { return server.accepted == 1 })

	require.NoError(t, actions.Send(tcp.CloseListenerAction{}))
	h.drive(t, func() bool { return h.world.Len() == 0 })
}

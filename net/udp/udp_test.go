//go:build unix

package udp_test

import (
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/troupe-io/troupe"
	"github.com/troupe-io/troupe/net/udp"
	"github.com/troupe-io/troupe/poll"
)

// echoActor bounces every received datagram back to its sender.
type echoActor struct {
	events  troupe.Mailbox[udp.RecvEvent]
	actions troupe.Sender[udp.Action]
}

func (a *echoActor) Process(*troupe.Context) error {
	for {
		event, ok := a.events.Recv()
		if !ok {
			return nil
		}
		err := a.actions.Send(udp.SendAction{
			Packet: udp.Packet{Peer: event.Peer, Data: event.Data},
		})
		if err != nil {
			return err
		}
	}
}

type worldHarness struct {
	world    *troupe.World
	registry *poll.Registry
}

func newHarness(t *testing.T) *worldHarness {
	t.Helper()
	registry, err := poll.NewRegistry(poll.WithPollTimeout(time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { registry.Close() })
	return &worldHarness{world: troupe.NewWorld(), registry: registry}
}

// drive runs the event loop until done yields a value or the deadline hits.
func drive[T any](t *testing.T, h *worldHarness, done <-chan T) T {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		require.NoError(t, h.registry.PollOnce())
		require.NoError(t, h.world.RunUntilIdle())

		select {
		case v := <-done:
			return v
		default:
		}
		if time.Now().After(deadline) {
			t.Fatal("event loop made no progress before the deadline")
		}
	}
}

// driveUntil runs the event loop until cond holds or the deadline hits.
func driveUntil(t *testing.T, h *worldHarness, cond func() bool) {
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

func TestDatagramEcho(t *testing.T) {
	h := newHarness(t)

	id, err := h.world.Create(troupe.ID{}, "echo")
	require.NoError(t, err)
	signal := h.world.Signal()
	signal.SetID(id)

	events := troupe.NewMailbox[udp.RecvEvent](signal)
	actions, bound, err := udp.Bind(
		h.world, h.registry, id,
		netip.MustParseAddrPort("127.0.0.1:0"),
		events.Sender(),
	)
	require.NoError(t, err)
	require.NotZero(t, bound.Port())
	require.NoError(t, h.world.Start(id, &echoActor{events: events, actions: actions}))

	result := make(chan clientResult, 1)
	go func() {
		conn, err := net.Dial("udp", bound.String())
		if err != nil {
			result <- clientResult{err: err}
			return
		}
		defer conn.Close()

		if _, err := conn.Write([]byte("ping")); err != nil {
			result <- clientResult{err: err}
			return
		}
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		buf := make([]byte, 64)
		n, err := conn.Read(buf)
		result <- clientResult{data: buf[:n], err: err}
	}()

	got := drive(t, h, result)
	require.NoError(t, got.err)
	assert.Equal(t, []byte("ping"), got.data)
}

func TestCloseActionTearsDown(t *testing.T) {
	h := newHarness(t)

	id, err := h.world.Create(troupe.ID{}, "echo")
	require.NoError(t, err)
	signal := h.world.Signal()
	signal.SetID(id)

	events := troupe.NewMailbox[udp.RecvEvent](signal)
	actions, _, err := udp.Bind(
		h.world, h.registry, id,
		netip.MustParseAddrPort("127.0.0.1:0"),
		events.Sender(),
	)
	require.NoError(t, err)
	require.NoError(t, h.world.Start(id, &echoActor{events: events, actions: actions}))
	require.Equal(t, 2, h.world.Len())

	require.NoError(t, actions.Send(udp.CloseAction{}))
	driveUntil(t, h, func() bool { return h.world.Len() == 1 })

	// The socket actor is gone; its mailbox rejects further actions.
	assert.Error(t, actions.Send(udp.CloseAction{}))
}

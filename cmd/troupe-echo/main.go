// Command troupe-echo runs TCP and UDP echo services on one event loop.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"os/signal"
	"syscall"

	"github.com/troupe-io/troupe"
	"github.com/troupe-io/troupe/config"
	"github.com/troupe-io/troupe/net/tcp"
	"github.com/troupe-io/troupe/net/udp"
	"github.com/troupe-io/troupe/poll"
)

func main() {
	var (
		tcpAddr    string
		udpAddr    string
		configPath string
	)
	flag.StringVar(&tcpAddr, "tcp", "127.0.0.1:7000", "TCP echo listen address")
	flag.StringVar(&udpAddr, "udp", "127.0.0.1:7000", "UDP echo listen address")
	flag.StringVar(&configPath, "config", "", "optional YAML config file")
	flag.Parse()

	if err := run(tcpAddr, udpAddr, configPath); err != nil {
		fmt.Fprintln(os.Stderr, "troupe-echo:", err)
		os.Exit(1)
	}
}

func run(tcpAddr, udpAddr, configPath string) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	level, err := cfg.Log.SlogLevel()
	if err != nil {
		return err
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	tcpBind, err := netip.ParseAddrPort(tcpAddr)
	if err != nil {
		return fmt.Errorf("parse tcp address: %w", err)
	}
	udpBind, err := netip.ParseAddrPort(udpAddr)
	if err != nil {
		return fmt.Errorf("parse udp address: %w", err)
	}

	world := troupe.NewWorld(troupe.WithLogger(log))
	registry, err := poll.NewRegistry(
		poll.WithPollTimeout(cfg.Loop.PollTimeout.Std()),
		poll.WithEventCapacity(cfg.Loop.EventCapacity),
		poll.WithLogger(log),
	)
	if err != nil {
		return err
	}
	defer registry.Close()

	id, err := world.Create(troupe.ID{}, "echo")
	if err != nil {
		return err
	}
	wake := world.Signal()
	wake.SetID(id)

	actor := &echoActor{
		log:       log,
		signal:    wake,
		udpEvents: troupe.NewMailbox[udp.RecvEvent](wake),
		tcpEvents: troupe.NewMailbox[tcp.ListenerEvent](wake),
	}

	udpActions, udpBound, err := udp.Bind(world, registry, id, udpBind, actor.udpEvents.Sender())
	if err != nil {
		return err
	}
	actor.udpActions = udpActions

	_, tcpBound, err := tcp.Listen(world, registry, id, tcpBind, actor.tcpEvents.Sender())
	if err != nil {
		return err
	}

	if err := world.Start(id, actor); err != nil {
		return err
	}

	log.Info("echo ready", "tcp", tcpBound.String(), "udp", udpBound.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return poll.Run(ctx, world, registry)
}

// conn is one accepted TCP connection the echo actor is serving.
type conn struct {
	peer    netip.AddrPort
	events  troupe.Mailbox[tcp.StreamEvent]
	actions troupe.Sender[tcp.StreamAction]
}

type echoActor struct {
	log    *slog.Logger
	signal troupe.Signal

	udpEvents  troupe.Mailbox[udp.RecvEvent]
	udpActions troupe.Sender[udp.Action]

	tcpEvents troupe.Mailbox[tcp.ListenerEvent]
	conns     []*conn
}

func (a *echoActor) Process(cx *troupe.Context) error {
	for {
		event, ok := a.udpEvents.Recv()
		if !ok {
			break
		}
		a.log.Debug("udp echo", "peer", event.Peer.String(), "bytes", len(event.Data))
		err := a.udpActions.Send(udp.SendAction{
			Packet: udp.Packet{Peer: event.Peer, Data: event.Data},
		})
		if err != nil {
			return err
		}
	}

	for {
		event, ok := a.tcpEvents.Recv()
		if !ok {
			break
		}
		switch event := event.(type) {
		case tcp.ConnectedEvent:
			event.Events.SetSignal(a.signal)
			a.conns = append(a.conns, &conn{
				peer:    event.Peer,
				events:  event.Events,
				actions: event.Actions,
			})
			a.log.Info("connection accepted", "peer", event.Peer.String())
		case tcp.ListenerClosedEvent:
			cx.Stop()
		}
	}

	live := a.conns[:0]
	for _, c := range a.conns {
		closed, err := a.serve(c)
		if err != nil {
			return err
		}
		if !closed {
			live = append(live, c)
		}
	}
	a.conns = live
	return nil
}

func (a *echoActor) serve(c *conn) (closed bool, err error) {
	for {
		event, ok := c.events.Recv()
		if !ok {
			return false, nil
		}
		switch event := event.(type) {
		case tcp.RecvEvent:
			a.log.Debug("tcp echo", "peer", c.peer.String(), "bytes", len(event.Data))
			if err := c.actions.Send(tcp.SendAction{Data: event.Data}); err != nil {
				return false, err
			}
		case tcp.ClosedEvent:
			a.log.Info("connection closed", "peer", c.peer.String())
			return true, nil
		}
	}
}

// Command troupe-http serves a fixed HTML page over HTTP/1.1 on the actor
// event loop.
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
	"github.com/troupe-io/troupe/http"
	"github.com/troupe-io/troupe/poll"
)

const page = "<html><body><h1>Hello from troupe</h1></body></html>"

func main() {
	var (
		addr       string
		configPath string
	)
	flag.StringVar(&addr, "addr", "127.0.0.1:8080", "HTTP listen address")
	flag.StringVar(&configPath, "config", "", "optional YAML config file")
	flag.Parse()

	if err := run(addr, configPath); err != nil {
		fmt.Fprintln(os.Stderr, "troupe-http:", err)
		os.Exit(1)
	}
}

func run(addr, configPath string) error {
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

	bind, err := netip.ParseAddrPort(addr)
	if err != nil {
		return fmt.Errorf("parse address: %w", err)
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

	id, err := world.Create(troupe.ID{}, "hello")
	if err != nil {
		return err
	}
	wake := world.Signal()
	wake.SetID(id)

	actor := &helloActor{
		log:    log,
		events: troupe.NewMailbox[http.Event](wake),
	}

	bound, err := http.Listen(world, registry, id, bind, actor.events.Sender())
	if err != nil {
		return err
	}
	if err := world.Start(id, actor); err != nil {
		return err
	}

	log.Info("serving", "addr", fmt.Sprintf("http://%s/", bound))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return poll.Run(ctx, world, registry)
}

type helloActor struct {
	log    *slog.Logger
	events troupe.Mailbox[http.Event]
}

func (a *helloActor) Process(cx *troupe.Context) error {
	for {
		event, ok := a.events.Recv()
		if !ok {
			return nil
		}
		request, ok := event.(http.RequestEvent)
		if !ok {
			continue
		}
		a.log.Info("request", "method", request.Header.Method, "target", request.Header.Target)
		err := request.Actions.Send(http.RespondAction{Body: []byte(page)})
		if err != nil {
			a.log.Warn("response dropped", "error", err)
		}
	}
}

// Command troupe-h3 exposes a troupe HTTP/1.1 backend over HTTP/3. The
// backend runs on the single-threaded actor loop; the QUIC frontend runs on
// its own goroutines and forwards each request to the backend over loopback
// TCP.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quic-go/quic-go/http3"

	"github.com/troupe-io/troupe"
	"github.com/troupe-io/troupe/config"
	"github.com/troupe-io/troupe/poll"

	troupehttp "github.com/troupe-io/troupe/http"
)

const page = "<html><body><h1>Hello over HTTP/3</h1></body></html>"

func main() {
	var (
		h3Addr     string
		configPath string
	)
	flag.StringVar(&h3Addr, "addr", "127.0.0.1:8443", "HTTP/3 (UDP) listen address")
	flag.StringVar(&configPath, "config", "", "optional YAML config file")
	flag.Parse()

	if err := run(h3Addr, configPath); err != nil {
		fmt.Fprintln(os.Stderr, "troupe-h3:", err)
		os.Exit(1)
	}
}

func run(h3Addr, configPath string) error {
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

	// Backend actor on an ephemeral loopback port.
	id, err := world.Create(troupe.ID{}, "backend")
	if err != nil {
		return err
	}
	wake := world.Signal()
	wake.SetID(id)

	actor := &backendActor{
		log:    log,
		events: troupe.NewMailbox[troupehttp.Event](wake),
	}
	backendAddr, err := troupehttp.Listen(
		world, registry, id,
		netip.MustParseAddrPort("127.0.0.1:0"),
		actor.events.Sender(),
	)
	if err != nil {
		return err
	}
	if err := world.Start(id, actor); err != nil {
		return err
	}

	tlsConfig, err := selfSignedTLS([]string{"localhost", "127.0.0.1"}, 24*time.Hour)
	if err != nil {
		return fmt.Errorf("generate tls config: %w", err)
	}

	server := &http3.Server{
		Addr:      h3Addr,
		TLSConfig: tlsConfig,
		Handler:   newGateway(backendAddr, log),
	}
	go func() {
		if err := server.ListenAndServe(); err != nil {
			log.Error("http3 server stopped", "error", err)
		}
	}()
	defer server.Close()

	log.Info("gateway ready", "h3", h3Addr, "backend", backendAddr.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return poll.Run(ctx, world, registry)
}

// newGateway forwards every inbound HTTP/3 request to the backend over
// plain HTTP/1.1.
func newGateway(backend netip.AddrPort, log *slog.Logger) http.Handler {
	client := &http.Client{Timeout: 10 * time.Second}
	target := fmt.Sprintf("http://%s", backend)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		proxied, err := http.NewRequestWithContext(r.Context(), r.Method, target+r.URL.Path, nil)
		if err != nil {
			http.Error(w, "bad gateway", http.StatusBadGateway)
			return
		}
		resp, err := client.Do(proxied)
		if err != nil {
			log.Warn("backend request failed", "error", err)
			http.Error(w, "bad gateway", http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()

		w.Header().Set("Content-Type", resp.Header.Get("Content-Type"))
		w.WriteHeader(resp.StatusCode)
		if _, err := io.Copy(w, resp.Body); err != nil {
			log.Warn("proxy copy failed", "error", err)
		}
	})
}

type backendActor struct {
	log    *slog.Logger
	events troupe.Mailbox[troupehttp.Event]
}

func (a *backendActor) Process(cx *troupe.Context) error {
	for {
		event, ok := a.events.Recv()
		if !ok {
			return nil
		}
		request, ok := event.(troupehttp.RequestEvent)
		if !ok {
			continue
		}
		a.log.Debug("backend request", "method", request.Header.Method, "target", request.Header.Target)
		if err := request.Actions.Send(troupehttp.RespondAction{Body: []byte(page)}); err != nil {
			a.log.Warn("response dropped", "error", err)
		}
	}
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/nats-io/nats-server/v2/server"

	"github.com/c360studio/semstreams/natsclient"

	revuconfig "github.com/revuhq/revu/config"
)

// App owns the process-level transport: an embedded NATS server for
// single-binary setups, or a connection to an external cluster.
type App struct {
	cfg    *revuconfig.Config
	logger *slog.Logger

	embeddedServer *server.Server
	natsClient     *natsclient.Client
}

// NewApp creates the application shell around a validated config.
func NewApp(cfg *revuconfig.Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{cfg: cfg, logger: logger}
}

// StartNATS brings up the transport and returns a connected client.
// With no external URL configured an embedded JetStream-enabled server
// is started inside the process.
func (a *App) StartNATS(ctx context.Context) (*natsclient.Client, error) {
	url := natsURL(a.cfg)

	if url == "" {
		a.logger.Info("Starting embedded NATS server")
		opts := &server.Options{
			Port:      -1, // Random available port
			JetStream: true,
			NoLog:     true,
			NoSigs:    true,
		}

		ns, err := server.NewServer(opts)
		if err != nil {
			return nil, fmt.Errorf("create embedded NATS server: %w", err)
		}

		go ns.Start()

		if !ns.ReadyForConnections(5 * time.Second) {
			ns.Shutdown()
			return nil, fmt.Errorf("embedded NATS server failed to start")
		}

		a.embeddedServer = ns
		url = ns.ClientURL()
	}

	a.logger.Info("Connecting to NATS", "url", url, "embedded", a.embeddedServer != nil)

	client, err := natsclient.NewClient(url,
		natsclient.WithName(appName),
		natsclient.WithMaxReconnects(-1),
		natsclient.WithReconnectWait(time.Second),
		natsclient.WithCircuitBreakerThreshold(20), // Higher threshold for startup bursts
		natsclient.WithHealthInterval(30*time.Second),
	)
	if err != nil {
		a.shutdownEmbedded()
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	if err := client.Connect(ctx); err != nil {
		a.shutdownEmbedded()
		return nil, wrapNATSError(err, url)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := client.WaitForConnection(connCtx); err != nil {
		a.shutdownEmbedded()
		return nil, wrapNATSError(err, url)
	}

	a.natsClient = client
	a.logger.Info("Connected to NATS", "url", url)
	return client, nil
}

// ClientURL returns the URL the process is actually connected to.
func (a *App) ClientURL() string {
	if a.embeddedServer != nil {
		return a.embeddedServer.ClientURL()
	}
	return natsURL(a.cfg)
}

// Shutdown closes the client and stops the embedded server, if any.
func (a *App) Shutdown(ctx context.Context) {
	if a.natsClient != nil {
		a.natsClient.Close(ctx)
		a.natsClient = nil
	}
	a.shutdownEmbedded()
}

func (a *App) shutdownEmbedded() {
	if a.embeddedServer == nil {
		return
	}
	a.embeddedServer.Shutdown()
	a.embeddedServer.WaitForShutdown()
	a.embeddedServer = nil
}

// wrapNATSError provides helpful guidance when NATS connection fails.
func wrapNATSError(err error, url string) error {
	errStr := err.Error()

	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no servers available") ||
		strings.Contains(errStr, "timeout") {
		return fmt.Errorf(`NATS connection failed: %w

NATS is not running at %s.

Set NATS_URL to point at your server, or leave nats.url empty to run
the embedded broker.`, err, url)
	}

	return fmt.Errorf("NATS connection failed: %w", err)
}

// natsURL resolves the external NATS URL. Empty means embedded.
func natsURL(cfg *revuconfig.Config) string {
	if env := os.Getenv("NATS_URL"); env != "" {
		return env
	}
	if env := os.Getenv("REVU_NATS_URL"); env != "" {
		return env
	}
	if cfg.NATS.URL != "" && !cfg.NATS.Embedded {
		return cfg.NATS.URL
	}
	return ""
}

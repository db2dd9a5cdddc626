package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/haukened/rr-dns-proxy/internal/dns/common/clock"
	"github.com/haukened/rr-dns-proxy/internal/dns/common/log"
	"github.com/haukened/rr-dns-proxy/internal/dns/config"
	"github.com/haukened/rr-dns-proxy/internal/dns/gateways/transport"
	"github.com/haukened/rr-dns-proxy/internal/dns/gateways/upstream"
	"github.com/haukened/rr-dns-proxy/internal/dns/gateways/wire"
	"github.com/haukened/rr-dns-proxy/internal/dns/services/proxy"
)

const (
	version = "0.1.0-dev"
	appName = "rr-proxyd"

	// correlationCapacity bounds simultaneously in-flight queries.
	correlationCapacity = 4096
)

// Application holds all the components of the DNS proxy.
type Application struct {
	config    *config.AppConfig
	transport *transport.UDPTransport
	upstream  *upstream.Client
	service   *proxy.Proxy
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	if err := log.Configure(cfg.Env, cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"app":       appName,
		"version":   version,
		"env":       cfg.Env,
		"log_level": cfg.LogLevel,
		"port":      cfg.Port,
		"upstream":  cfg.Upstream,
		"timeout":   cfg.Timeout,
		"rewrite":   cfg.RewriteEnabled(),
	}, "Starting DNS proxy")

	app, err := buildApplication(cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err}, "Failed to build application")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info(map[string]any{"signal": sig.String()}, "Shutdown signal received")
		cancel()
	}()

	if err := app.Run(ctx); err != nil {
		log.Fatal(map[string]any{"error": err}, "Proxy failed")
	}

	log.Info(nil, "DNS proxy stopped gracefully")
}

// buildApplication constructs all components and wires them together.
func buildApplication(cfg *config.AppConfig) (*Application, error) {
	logger := log.GetLogger()
	codec := wire.NewUDPCodec(logger)

	upstreamClient, err := upstream.NewClient(upstream.Options{
		Address: cfg.Upstream,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream client: %w", err)
	}

	policy, err := buildPolicy(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build response policy: %w", err)
	}

	// Abandoned correlation entries are reaped after twice the query
	// timeout; live cycles release theirs long before that.
	correlator := proxy.NewCorrelator(correlationCapacity, 2*cfg.QueryTimeout(), clock.RealClock{})

	service := proxy.New(proxy.Options{
		Codec:      codec,
		Upstream:   upstreamClient,
		Correlator: correlator,
		Policy:     policy,
		Timeout:    cfg.QueryTimeout(),
		Clock:      clock.RealClock{},
		Logger:     logger,
	})

	udpTransport := transport.NewUDPTransport(cfg.ListenAddress(), logger)

	return &Application{
		config:    cfg,
		transport: udpTransport,
		upstream:  upstreamClient,
		service:   service,
	}, nil
}

// buildPolicy selects the configured response-transform policy.
func buildPolicy(cfg *config.AppConfig) (proxy.Policy, error) {
	if !cfg.RewriteEnabled() {
		return proxy.Noop(), nil
	}
	addr := net.ParseIP(cfg.RewriteAddress)
	if addr == nil {
		return nil, fmt.Errorf("invalid rewrite address: %q", cfg.RewriteAddress)
	}
	log.Info(map[string]any{
		"domain":  cfg.RewriteDomain,
		"address": cfg.RewriteAddress,
	}, "Answer rewrite policy enabled")
	return proxy.RewriteAnswers(cfg.RewriteDomain, addr)
}

// Run starts the proxy and blocks until the context is cancelled.
func (app *Application) Run(ctx context.Context) error {
	// Upstream replies flow to the correlator through the dispatcher.
	go app.upstream.Run(ctx, app.service.HandleReply)

	if err := app.transport.Start(ctx, app.service); err != nil {
		return fmt.Errorf("failed to start UDP transport: %w", err)
	}

	log.Info(map[string]any{
		"address":  app.transport.Address(),
		"upstream": app.upstream.Address(),
	}, "DNS proxy started")

	<-ctx.Done()

	log.Info(nil, "Shutdown initiated")

	if err := app.transport.Stop(); err != nil {
		log.Warn(map[string]any{"error": err}, "Error during transport shutdown")
	}
	if err := app.upstream.Close(); err != nil {
		log.Warn(map[string]any{"error": err}, "Error closing upstream connection")
	}

	return nil
}

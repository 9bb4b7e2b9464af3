// ABOUTME: Network orchestrator: wires registries, gateway, mods, and transports.
// ABOUTME: Run serves HTTP (API, WebSocket, metrics) until the context ends.

package network

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openagents/openagents/internal/agent"
	"github.com/openagents/openagents/internal/auth"
	"github.com/openagents/openagents/internal/channel"
	"github.com/openagents/openagents/internal/config"
	"github.com/openagents/openagents/internal/gateway"
	"github.com/openagents/openagents/internal/mods"
	"github.com/openagents/openagents/internal/mods/messaging"
	"github.com/openagents/openagents/internal/subscription"
	"github.com/openagents/openagents/internal/transport"
)

// shutdownTimeout bounds graceful HTTP drain and mod shutdown.
const shutdownTimeout = 10 * time.Second

// Network is one running openagents network instance.
type Network struct {
	cfg     *config.Config
	gw      *gateway.Gateway
	mods    *mods.Registry
	agents  *agent.Registry
	started time.Time

	httpServer *http.Server
	logger     *slog.Logger
}

// New builds a fully wired network from configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Network, error) {
	if logger == nil {
		logger = slog.Default()
	}

	networkID := cfg.Network.ID
	if networkID == "" {
		networkID = uuid.New().String()
		logger.Info("generated network id", "network_id", networkID)
	}

	var creds *auth.Credentials
	if cfg.Auth.JWTSecret != "" {
		creds = auth.NewCredentials([]byte(cfg.Auth.JWTSecret), networkID, cfg.Auth.CredentialTTL)
	} else {
		logger.Warn("auth.jwt_secret not set; agent identities are unauthenticated")
	}

	agents := agent.NewRegistry(cfg.Events.QueueSize, logger)
	channels := channel.NewRegistry(logger)
	subs := subscription.NewIndex()
	modRegistry := mods.NewRegistry(logger)

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	gw := gateway.New(gateway.Params{
		NetworkName:   cfg.Network.Name,
		NetworkID:     networkID,
		Agents:        agents,
		Channels:      channels,
		Subscriptions: subs,
		Mods:          modRegistry,
		Credentials:   creds,
		HistorySize:   cfg.Events.HistorySize,
		DedupeTTL:     cfg.Events.DedupeTTL,
		DedupeSize:    cfg.Events.DedupeSize,
		Metrics:       gateway.NewMetrics(promRegistry),
		Logger:        logger,
	})

	n := &Network{
		cfg:     cfg,
		gw:      gw,
		mods:    modRegistry,
		agents:  agents,
		started: time.Now(),
		logger:  logger.With("component", "network"),
	}

	if err := modRegistry.RegisterMod(context.Background(), messaging.New()); err != nil {
		return nil, fmt.Errorf("registering messaging mod: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", n.handleHealth)
	mux.HandleFunc("GET /health/ready", n.handleReady)
	if cfg.Metrics.Enabled {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
	}

	transport.NewAPI(gw, creds, cfg.Events.ResponseTimeout, logger).RegisterRoutes(mux)
	transport.NewWS(gw, creds, cfg.Events.ResponseTimeout, logger).RegisterRoutes(mux)

	n.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return n, nil
}

// Handler exposes the assembled HTTP handler, mainly for tests.
func (n *Network) Handler() http.Handler {
	return n.httpServer.Handler
}

// Gateway exposes the event gateway, mainly for in-process clients and tests.
func (n *Network) Gateway() *gateway.Gateway {
	return n.gw
}

// Mods exposes the mod registry for additional registrations before Run.
func (n *Network) Mods() *mods.Registry {
	return n.mods
}

// Run serves until the context is cancelled, then shuts down gracefully.
// Returns nil on graceful shutdown, or the first server error.
func (n *Network) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", n.cfg.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		n.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := n.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		n.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		n.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := n.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

func (n *Network) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := n.httpServer.Shutdown(ctx)
	n.mods.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}
	return nil
}

func (n *Network) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":         "ok",
		"network_name":   n.cfg.Network.Name,
		"uptime_seconds": int(time.Since(n.started).Seconds()),
	})
}

func (n *Network) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "ready",
		"agents": n.agents.Count(),
		"mods":   n.mods.List(),
	})
}

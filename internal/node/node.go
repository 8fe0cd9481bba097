// Package node assembles the inscribed daemon: logging, metrics, the
// upstream quote client and the create-commit proxy. It can be embedded in
// any binary.
package node

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/inscribe/config"
	"github.com/Klingon-tech/inscribe/internal/api"
	klog "github.com/Klingon-tech/inscribe/internal/log"
	"github.com/Klingon-tech/inscribe/internal/metrics"
	"github.com/Klingon-tech/inscribe/internal/quoteclient"
)

// ErrNoUpstream is returned when the proxy is enabled without an upstream.
var ErrNoUpstream = errors.New("api.upstream is required when the API is enabled")

// Node is a fully-initialized daemon.
type Node struct {
	cfg    *config.Config
	logger zerolog.Logger

	metrics   *metrics.Metrics
	upstream  *quoteclient.Client
	apiServer *api.Server
}

// New creates and initializes a Node. It does not bind any listener; call
// Start for that.
func New(cfg *config.Config) (*Node, error) {
	// ── 1. Init logger ──────────────────────────────────────────────
	logFile := expandHome(cfg.Log.File)
	if logFile == "" {
		logsDir := cfg.LogsDir()
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return nil, fmt.Errorf("creating logs dir: %w", err)
		}
		logFile = filepath.Join(logsDir, "inscribed.log")
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := klog.WithComponent("node")

	logger.Info().
		Str("network", string(cfg.Network)).
		Str("version", config.Version).
		Msg("Starting inscribed")

	n := &Node{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.New(metrics.DefaultNamespace),
	}

	// ── 2. Upstream + API ───────────────────────────────────────────
	if cfg.API.Enabled {
		if cfg.API.Upstream == "" {
			return nil, ErrNoUpstream
		}
		if cfg.API.AuthToken == "" {
			// Requests are still validated, but forwarding is refused.
			logger.Warn().Msgf("No auth token configured; set %s", config.EnvAuthToken)
		}
		n.upstream = quoteclient.New(cfg.API.Upstream,
			quoteclient.WithAuthToken(cfg.API.AuthToken),
			quoteclient.WithTimeout(cfg.Quote.Timeout),
		)
		n.apiServer = api.New(api.Config{
			Addr:        cfg.APIListenAddr(),
			Network:     cfg.Network,
			AuthToken:   cfg.API.AuthToken,
			AllowedIPs:  cfg.API.AllowedIPs,
			CORSOrigins: cfg.API.CORSOrigins,
		}, n.upstream, n.metrics)

		logger.Info().
			Str("upstream", cfg.API.Upstream).
			Strs("allowed", cfg.API.AllowedIPs).
			Msg("Create-commit proxy configured")
	}

	return n, nil
}

// Start binds the API listener.
func (n *Node) Start() error {
	if n.apiServer != nil {
		if err := n.apiServer.Start(); err != nil {
			return fmt.Errorf("start api: %w", err)
		}
	}
	n.logger.Info().Str("api", n.APIAddr()).Msg("Node started successfully")
	return nil
}

// Stop performs graceful shutdown.
func (n *Node) Stop() {
	if n.apiServer != nil {
		if err := n.apiServer.Stop(); err != nil {
			n.logger.Warn().Err(err).Msg("API shutdown")
		}
	}
	n.logger.Info().Msg("Goodbye!")
}

// APIAddr returns the address the API server is listening on.
func (n *Node) APIAddr() string {
	if n.apiServer == nil {
		return ""
	}
	return n.apiServer.Addr()
}

// Metrics returns the node's metrics.
func (n *Node) Metrics() *metrics.Metrics {
	return n.metrics
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// Package api serves the create-commit proxy: browsers and CLIs post the
// inscription form here and the server forwards it to the upstream pricing
// service with the operator's credentials.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	klog "github.com/Klingon-tech/inscribe/internal/log"
	"github.com/Klingon-tech/inscribe/internal/metrics"
	"github.com/Klingon-tech/inscribe/internal/quoteclient"
	"github.com/Klingon-tech/inscribe/pkg/address"
	"github.com/Klingon-tech/inscribe/pkg/inscription"
)

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20

// CommitPath is the create-commit route.
const CommitPath = "/api/inscriptions/create-commit"

// Upstream forwards a validated commit request to the pricing service.
type Upstream interface {
	FetchQuote(ctx context.Context, req quoteclient.Request) (*inscription.Quote, error)
}

// Config controls the server.
type Config struct {
	Addr        string
	Network     address.Network
	AuthToken   string   // Empty = refuse to forward.
	AllowedIPs  []string // Empty = allow all.
	CORSOrigins []string // Empty = no CORS headers.
}

// Server is the HTTP API server.
type Server struct {
	addr        string
	network     address.Network
	authToken   string
	upstream    Upstream
	metrics     *metrics.Metrics
	router      *chi.Mux
	server      *http.Server
	ln          net.Listener
	logger      zerolog.Logger
	allowedNets []*net.IPNet
	corsOrigins []string
}

// New creates a server. m may be nil to disable /metrics.
func New(cfg Config, upstream Upstream, m *metrics.Metrics) *Server {
	s := &Server{
		addr:        cfg.Addr,
		network:     cfg.Network,
		authToken:   cfg.AuthToken,
		upstream:    upstream,
		metrics:     m,
		logger:      klog.WithComponent("api"),
		allowedNets: parseAllowedIPs(cfg.AllowedIPs),
		corsOrigins: cfg.CORSOrigins,
	}
	if s.network == "" {
		s.network = address.Mainnet
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.filterIPs)
	r.Use(s.cors)

	r.Get("/healthz", s.handleHealth)
	r.Post(CommitPath, s.handleCreateCommit)
	if m != nil {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}
	s.router = r

	s.server = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
	}
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// parseAllowedIPs converts string IP/CIDR entries into net.IPNet.
func parseAllowedIPs(entries []string) []*net.IPNet {
	var nets []*net.IPNet
	for _, entry := range entries {
		_, ipNet, err := net.ParseCIDR(entry)
		if err == nil {
			nets = append(nets, ipNet)
			continue
		}
		// Try as a single IP (add /32 or /128).
		ip := net.ParseIP(entry)
		if ip == nil {
			continue
		}
		bits := 32
		if ip.To4() == nil {
			bits = 128
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return nets
}

// Start begins listening and serving in a background goroutine.
// It returns immediately after the listener is bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.ln = ln

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("API server error")
		}
	}()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("API server listening")
	return nil
}

// Addr returns the listener address (useful when bound to :0).
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) filterIPs(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.allowedNets) > 0 {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			ip := net.ParseIP(host)
			if ip == nil || !s.isIPAllowed(ip) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// isIPAllowed checks if the IP is in the allowed networks list.
func (s *Server) isIPAllowed(ip net.IP) bool {
	for _, n := range s.allowedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// cors sets CORS headers for configured origins and answers preflights.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			if s.wildcardCORS() {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, o := range s.corsOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

func (s *Server) wildcardCORS() bool {
	for _, o := range s.corsOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}

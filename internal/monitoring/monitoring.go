package monitoring

import (
	"context"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/merhawi-21/video-meeting/internal/logger"
)

// Config controls the debug HTTP surface of the relay.
type Config struct {
	Addr             string `fig:"addr" default:":9090"`
	MetricsEnabled   bool   `fig:"metrics_enabled" default:"true"`
	ProfilingEnabled bool   `fig:"profiling_enabled"`
}

// Server exposes prometheus metrics and optional pprof endpoints on a
// separate listener, away from the signaling path.
type Server struct {
	conf   Config
	log    *logger.Logger
	server *http.Server
}

func NewServer(conf Config, reg *prometheus.Registry, log *logger.Logger) *Server {
	mux := http.NewServeMux()

	if conf.MetricsEnabled {
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	if conf.ProfilingEnabled {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	return &Server{
		conf: conf,
		log:  log,
		server: &http.Server{
			Addr:              conf.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

func (s *Server) Run() {
	s.log.Info().Str("addr", s.conf.Addr).Msg("monitoring server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.log.Error().Err(err).Msg("monitoring server stopped")
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

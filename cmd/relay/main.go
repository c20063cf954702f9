package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/merhawi-21/video-meeting/internal/config"
	"github.com/merhawi-21/video-meeting/internal/logger"
	"github.com/merhawi-21/video-meeting/internal/monitoring"
	"github.com/merhawi-21/video-meeting/internal/relay"
)

var (
	flagConfig string
	flagAddr   string
	flagDebug  bool
)

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "WebRTC signaling relay for video meetings",
	Long: `relay accepts websocket connections from meeting clients, groups them
into rooms and forwards offer/answer/candidate envelopes between room
members. All state is in-memory and lost on restart by design.`,
	RunE: run,
}

func init() {
	rootCmd.Flags().StringVarP(&flagConfig, "config", "c", "", "path to YAML config file")
	rootCmd.Flags().StringVar(&flagAddr, "addr", "", "listen address (overrides config)")
	rootCmd.Flags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
}

func run(cmd *cobra.Command, _ []string) error {
	conf, err := config.LoadRelay(flagConfig)
	if err != nil {
		return err
	}
	if flagAddr != "" {
		conf.Addr = flagAddr
	}
	if flagDebug {
		conf.Debug = true
	}

	log := logger.NewConsole(conf.Debug, "relay")

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector())
	metrics := monitoring.NewMetrics(promReg)

	registry := relay.NewRegistry(log, metrics)
	r := relay.New(*conf, registry, metrics, log)

	server := &http.Server{
		Addr:              conf.Addr,
		Handler:           r.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	mon := monitoring.NewServer(conf.Monitoring, promReg, log)
	go mon.Run()

	errs := make(chan error, 1)
	go func() {
		log.Info().Str("addr", conf.Addr).Msg("signaling relay listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errs:
		return err
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	mon.Shutdown(ctx)
	return server.Shutdown(ctx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/merhawi-21/video-meeting/internal/config"
	"github.com/merhawi-21/video-meeting/internal/logger"
	"github.com/merhawi-21/video-meeting/internal/peer"
	"github.com/merhawi-21/video-meeting/internal/rtc"
)

var (
	flagConfig   string
	flagRelay    string
	flagRoom     string
	flagQuality  string
	flagRecvOnly bool
	flagDebug    bool
)

var rootCmd = &cobra.Command{
	Use:   "meet",
	Short: "Headless video-meeting client",
	Long: `meet joins a signaling room, negotiates a media session with every
other participant and stays connected until interrupted. Share the
printed room token to let others join the same meeting.`,
	RunE: run,
}

func init() {
	rootCmd.Flags().StringVarP(&flagConfig, "config", "c", "", "path to YAML config file")
	rootCmd.Flags().StringVar(&flagRelay, "relay", "", "relay websocket URL (overrides config)")
	rootCmd.Flags().StringVarP(&flagRoom, "room", "r", "", "room token; generated when empty")
	rootCmd.Flags().StringVarP(&flagQuality, "quality", "q", "", "capture quality preset (480p, 720p, 1080p)")
	rootCmd.Flags().BoolVar(&flagRecvOnly, "recv-only", false, "join without a local media source")
	rootCmd.Flags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
}

func run(cmd *cobra.Command, _ []string) error {
	conf, err := config.LoadClient(flagConfig)
	if err != nil {
		return err
	}
	if flagRelay != "" {
		conf.RelayURL = flagRelay
	}
	if flagRoom != "" {
		conf.Room = flagRoom
	}
	if flagQuality != "" {
		conf.Quality = flagQuality
	}
	if flagRecvOnly {
		conf.RecvOnly = true
	}
	if flagDebug {
		conf.Debug = true
	}

	log := logger.NewConsole(conf.Debug, "meet")

	engine, err := rtc.NewEngine(conf.ICEServers, log)
	if err != nil {
		return err
	}

	opts, err := peer.OptionsFromConfig(conf)
	if err != nil {
		return err
	}
	opts.OnRemoteTrack = func(id string, t rtc.RemoteTrack) {
		log.Info().Str("participant", id).Str("kind", t.Kind).Msg("remote media")
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	m, err := peer.Join(ctx, opts, engine, log)
	if err != nil {
		return err
	}
	defer m.Leave()

	fmt.Printf("room: %s\n", m.Room())

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

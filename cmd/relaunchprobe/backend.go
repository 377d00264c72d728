package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/studiowebux/relaunchprobe/internal/backend"
	"github.com/studiowebux/relaunchprobe/internal/logging"
)

var (
	backendHost  string
	backendPort  int
	backendDelay time.Duration
)

var backendCmd = &cobra.Command{
	Use:    "backend",
	Short:  "Run the echo backend (spawned by the harness)",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		cfg := backend.ConfigFromEnv(backend.Config{
			Host:  backendHost,
			Port:  backendPort,
			Delay: backendDelay,
		})
		logger := logging.Component(logging.New(os.Stderr, ""), "backend").With("port", backendPort)
		return backend.NewServer(cfg, logger).Run(ctx)
	},
}

func init() {
	backendCmd.Flags().StringVar(&backendHost, "host", "127.0.0.1", "Address to bind")
	backendCmd.Flags().IntVar(&backendPort, "port", 4567, "Port to listen on")
	backendCmd.Flags().DurationVar(&backendDelay, "delay", backend.DefaultDelay, "Delay before each echo response")
}

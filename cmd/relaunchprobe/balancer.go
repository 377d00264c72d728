package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/studiowebux/relaunchprobe/internal/balancer"
	"github.com/studiowebux/relaunchprobe/internal/logging"
)

var (
	balancerHost           string
	balancerListen         int
	balancerUpstreams      []string
	balancerHealthInterval time.Duration
)

var balancerCmd = &cobra.Command{
	Use:    "balancer",
	Short:  "Run the round-robin load balancer (spawned by the harness)",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		logger := logging.Component(logging.New(os.Stderr, ""), "balancer").With("port", balancerListen)
		b, err := balancer.New(balancer.Config{
			Host:           balancerHost,
			Port:           balancerListen,
			Upstreams:      balancerUpstreams,
			HealthInterval: balancerHealthInterval,
		}, logger)
		if err != nil {
			return err
		}
		return b.Run(ctx)
	},
}

func init() {
	balancerCmd.Flags().StringVar(&balancerHost, "host", "127.0.0.1", "Address to bind")
	balancerCmd.Flags().IntVar(&balancerListen, "listen", 4565, "Port to listen on")
	balancerCmd.Flags().StringArrayVar(&balancerUpstreams, "upstream", nil, "Upstream host:port, can be repeated")
	balancerCmd.Flags().DurationVar(&balancerHealthInterval, "health-interval", balancer.DefaultHealthInterval, "Interval between health checks")
	_ = balancerCmd.MarkFlagRequired("upstream")
}

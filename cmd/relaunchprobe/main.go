package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/studiowebux/relaunchprobe/internal/config"
	"github.com/studiowebux/relaunchprobe/internal/harness"
)

var (
	version = "0.1.0"
)

var (
	flagConfig             string
	flagLogFile            string
	flagMetricsAddr        string
	flagHeadless           bool
	flagExpectZeroDowntime bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "relaunchprobe <single|load-balanced>",
	Short: "Watch HTTP probes while backends are relaunched",
	Long: `relaunchprobe starts one or two echo backends, sends a timed series of slow
HTTP probes and relaunches the backends halfway through. A live table shows
every probe so dropped requests during the restart are easy to spot.

Modes:
  single          one backend, probes go straight to it
  load-balanced   two backends behind a round-robin balancer

Examples:
  relaunchprobe single
  relaunchprobe load-balanced --config harness.yaml
  relaunchprobe load-balanced --headless --expect-zero-downtime`,
	Version:       version,
	ValidArgs:     config.ModeNames,
	Args:          cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	SilenceErrors: true,
	RunE:          runHarness,
}

func init() {
	rootCmd.Flags().StringVarP(&flagConfig, "config", "c", "", "YAML configuration file")
	rootCmd.Flags().StringVar(&flagLogFile, "log-file", "", "Run log shared with child processes (default out.log)")
	rootCmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	rootCmd.Flags().BoolVar(&flagHeadless, "headless", false, "Print the final table instead of the live dashboard")
	rootCmd.Flags().BoolVar(&flagExpectZeroDowntime, "expect-zero-downtime", false, "Exit non-zero if any probe failed (headless only)")

	rootCmd.AddCommand(backendCmd)
	rootCmd.AddCommand(balancerCmd)
}

func runHarness(cmd *cobra.Command, args []string) error {
	// Arguments are valid past this point; later failures are not usage errors
	cmd.SilenceUsage = true

	mode, err := config.ParseMode(args[0])
	if err != nil {
		return err
	}

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-file") {
		cfg.LogFile = flagLogFile
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.MetricsAddr = flagMetricsAddr
	}

	ctx, stop := signalContext()
	defer stop()

	return harness.Run(ctx, cfg, mode, harness.Options{
		Headless:           flagHeadless,
		ExpectZeroDowntime: flagExpectZeroDowntime,
	})
}

// signalContext is cancelled on SIGTERM or interrupt
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt)
}

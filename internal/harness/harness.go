// Package harness wires the backend pool, the probe sequencer and the
// dashboard together for one run.
package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/studiowebux/relaunchprobe/internal/config"
	"github.com/studiowebux/relaunchprobe/internal/logging"
	"github.com/studiowebux/relaunchprobe/internal/metrics"
	"github.com/studiowebux/relaunchprobe/internal/pool"
	"github.com/studiowebux/relaunchprobe/internal/probe"
	"github.com/studiowebux/relaunchprobe/internal/tui"
)

// ErrOutage is returned by headless runs expecting zero downtime when a probe failed
var ErrOutage = errors.New("outage detected")

const metricsShutdownTimeout = 2 * time.Second

// Options controls how a run is presented
type Options struct {
	Headless           bool
	ExpectZeroDowntime bool

	// Executable runs the built-in backend and balancer. Empty uses os.Executable.
	Executable string

	// Stdout receives headless output. Nil uses os.Stdout.
	Stdout io.Writer

	// ProgramOptions are appended to the dashboard program options
	ProgramOptions []tea.ProgramOption
}

// run holds everything created for one invocation
type run struct {
	id        string
	cfg       *config.Config
	mode      config.Mode
	logger    *log.Logger
	metrics   *metrics.Collector
	pool      *pool.Pool
	seq       *probe.Sequence
	sequencer *probe.Sequencer
}

// Run starts the pool, issues the probes and shows them until the user quits,
// or until every probe is resolved in headless mode. The pool is always shut
// down before Run returns.
func Run(ctx context.Context, cfg *config.Config, mode config.Mode, opts Options) error {
	logFile, err := cfg.OpenLogFile()
	if err != nil {
		return err
	}
	defer logFile.Close()

	exe := opts.Executable
	if exe == "" {
		exe, err = os.Executable()
		if err != nil {
			return fmt.Errorf("failed to locate executable: %w", err)
		}
	}

	r := &run{
		id:      uuid.NewString(),
		cfg:     cfg,
		mode:    mode,
		metrics: metrics.New(),
		seq:     probe.NewSequence(),
	}
	r.logger = logging.New(logFile, r.id)
	r.logger.Info("run starting", "mode", mode, "probes", cfg.Probes.Total, "trigger", cfg.Probes.RelaunchTriggerIndex)

	r.pool = pool.New(cfg, logging.Component(r.logger, "pool"), r.metrics, logFile, exe)
	if err := r.pool.Start(ctx, mode); err != nil {
		r.logger.Error("startup failed", "err", err)
		return err
	}
	defer r.pool.Shutdown()

	if err := sleep(ctx, cfg.StartupSettle); err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		srv, err := r.metrics.Serve(cfg.MetricsAddr, logging.Component(r.logger, "metrics"))
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		r.logger.Info("metrics listening", "addr", srv.Addr())
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	fetcher := probe.NewHTTPFetcher(cfg.Backends.Host, r.pool.EffectivePort(), cfg.Probes, logging.Component(r.logger, "probe"))
	r.sequencer = probe.NewSequencer(cfg.Probes, r.seq, fetcher, r.pool, r.metrics, logging.Component(r.logger, "sequencer"))

	if opts.Headless {
		out := opts.Stdout
		if out == nil {
			out = os.Stdout
		}
		go r.runSequencer(runCtx)
		return r.headless(runCtx, out, opts.ExpectZeroDowntime)
	}
	return r.dashboard(runCtx, opts.ProgramOptions)
}

func (r *run) runSequencer(ctx context.Context) {
	if err := r.sequencer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Warn("sequencer stopped", "err", err)
	}
}

// dashboard runs the terminal UI in the calling goroutine. Probing starts
// once the program is rendering.
func (r *run) dashboard(ctx context.Context, extra []tea.ProgramOption) error {
	model := tui.New(r.seq, tui.Options{
		Title:   r.title(),
		Tick:    r.cfg.Dashboard.Tick,
		QuitKey: r.cfg.Dashboard.QuitKey,
		Report:  r.pool.Report,
		OnStart: func() { go r.runSequencer(ctx) },
		OnQuit:  r.pool.Shutdown,
	})

	programOpts := append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, extra...)
	if _, err := tea.NewProgram(model, programOpts...).Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("dashboard: %w", err)
	}

	summary := probe.Summarize(r.seq.Snapshot())
	r.logger.Info("run finished", "summary", summary.String(), "relaunch", r.pool.Report().String())
	return nil
}

// headless waits for every probe to resolve and prints the table
func (r *run) headless(ctx context.Context, out io.Writer, expectZeroDowntime bool) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.HeadlessTimeout)
	defer cancel()

	if err := waitFor(ctx, func() { <-r.sequencer.Done() }); err != nil {
		return fmt.Errorf("headless run did not issue every probe: %w", err)
	}
	if err := waitFor(ctx, r.sequencer.WaitFetches); err != nil {
		return fmt.Errorf("headless run did not resolve every probe: %w", err)
	}
	if err := waitFor(ctx, r.pool.Wait); err != nil {
		return fmt.Errorf("headless run did not finish relaunching: %w", err)
	}

	snaps := r.seq.Snapshot()
	summary := probe.Summarize(snaps)
	report := r.pool.Report()

	fmt.Fprintln(out, r.title())
	fmt.Fprintln(out)
	fmt.Fprintln(out, tui.PlainTable(snaps))
	fmt.Fprintln(out)
	fmt.Fprintln(out, summary.String())
	fmt.Fprintln(out, "relaunch: "+report.String())

	r.logger.Info("run finished", "summary", summary.String(), "relaunch", report.String())

	if expectZeroDowntime && summary.Errors > 0 {
		return fmt.Errorf("%w: %d of %d probes failed", ErrOutage, summary.Errors, summary.Total)
	}
	return nil
}

func (r *run) title() string {
	return fmt.Sprintf("relaunchprobe %s → %s:%d  run %s",
		r.mode, r.cfg.Backends.Host, r.pool.EffectivePort(), r.id[:8])
}

// waitFor runs fn and returns when it does or when ctx ends
func waitFor(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

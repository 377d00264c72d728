// Package pool owns the backend processes under test and the optional load
// balancer in front of them.
package pool

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/studiowebux/relaunchprobe/internal/config"
	"github.com/studiowebux/relaunchprobe/internal/metrics"
	"github.com/studiowebux/relaunchprobe/internal/process"
)

// Handle is the part of a process handle the pool relies on
type Handle interface {
	Port() int
	PID() int
	Updated() bool
	Relaunch(ctx context.Context) error
	Shutdown()
}

// Spawner starts the process described by spec
type Spawner func(ctx context.Context, spec process.Spec, logger *log.Logger) (Handle, error)

// SpawnProcess is the default spawner backed by the process package
func SpawnProcess(ctx context.Context, spec process.Spec, logger *log.Logger) (Handle, error) {
	h, err := process.Start(ctx, spec, logger)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Option customizes a pool
type Option func(*Pool)

// WithSpawner replaces the process spawner
func WithSpawner(s Spawner) Option {
	return func(p *Pool) {
		p.spawn = s
	}
}

// Pool owns the servers and the optional proxy
type Pool struct {
	cfg     *config.Config
	logger  *log.Logger
	metrics *metrics.Collector
	output  io.Writer
	exe     string
	spawn   Spawner

	ctx    context.Context // Cancelled on shutdown, bounds relaunches
	cancel context.CancelFunc

	mu            sync.Mutex
	servers       []Handle
	proxy         Handle
	effectivePort int
	closed        bool
	report        Report

	rounds       sync.WaitGroup
	shutdownOnce sync.Once
}

// New creates a pool. exe is the executable used for the built-in backend and
// balancer subcommands; output receives the children's stdout and stderr.
func New(cfg *config.Config, logger *log.Logger, m *metrics.Collector, output io.Writer, exe string, opts ...Option) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		output:  output,
		exe:     exe,
		spawn:   SpawnProcess,
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the servers for mode and, in load-balanced mode, the proxy.
// On failure everything already started is shut down.
func (p *Pool) Start(ctx context.Context, mode config.Mode) error {
	ports := p.cfg.Ports(mode)
	for _, port := range ports {
		h, err := p.spawn(ctx, p.backendSpec(port), p.logger)
		if err != nil {
			p.Shutdown()
			return fmt.Errorf("start backend on port %d: %w", port, err)
		}
		p.mu.Lock()
		p.servers = append(p.servers, h)
		p.mu.Unlock()
	}

	if mode != config.ModeLoadBalanced {
		p.setEffectivePort(ports[0])
		return nil
	}

	select {
	case <-ctx.Done():
		p.Shutdown()
		return ctx.Err()
	case <-time.After(p.cfg.Proxy.StartDelay):
	}

	h, err := p.spawn(ctx, p.proxySpec(ports), p.logger)
	if err != nil {
		p.Shutdown()
		return fmt.Errorf("start proxy on port %d: %w", p.cfg.Proxy.Port, err)
	}
	p.mu.Lock()
	p.proxy = h
	p.mu.Unlock()
	p.setEffectivePort(p.cfg.Proxy.Port)
	return nil
}

func (p *Pool) setEffectivePort(port int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.effectivePort = port
	p.logger.Info("pool started", "effective_port", port, "servers", len(p.servers), "proxy", p.proxy != nil)
}

// EffectivePort is the port probes target: the proxy when present, else the single server
func (p *Pool) EffectivePort() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.effectivePort
}

// Servers returns the server handles in port order
func (p *Pool) Servers() []Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Handle, len(p.servers))
	copy(out, p.servers)
	return out
}

// RelaunchAll starts a relaunch round in the background and returns at once.
// At most backends.max_unavailable servers are down at the same time. A failed
// relaunch is recorded and does not stop the others.
func (p *Pool) RelaunchAll() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	servers := make([]Handle, len(p.servers))
	copy(servers, p.servers)
	p.report.Rounds++
	p.report.State = RelaunchInProgress
	p.report.Total += len(servers)
	p.rounds.Add(1)
	p.mu.Unlock()

	p.logger.Info("relaunch round started", "servers", len(servers), "max_unavailable", p.cfg.Backends.MaxUnavailable)

	go func() {
		defer p.rounds.Done()

		g := new(errgroup.Group)
		g.SetLimit(p.cfg.Backends.MaxUnavailable)
		for _, h := range servers {
			h := h
			g.Go(func() error {
				err := h.Relaunch(p.ctx)
				p.metrics.RelaunchFinished(h.Port(), err)
				p.recordRelaunch(h.Port(), err)
				return nil
			})
		}
		_ = g.Wait()

		p.mu.Lock()
		if len(p.report.Failed) > 0 {
			p.report.State = RelaunchDegraded
		} else {
			p.report.State = RelaunchDone
		}
		state := p.report.State
		p.mu.Unlock()

		p.logger.Info("relaunch round finished", "state", state)
	}()
}

func (p *Pool) recordRelaunch(port int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.report.Finished++
	if err != nil {
		p.report.Failed = append(p.report.Failed, PortError{Port: port, Err: err})
		p.logger.Error("relaunch failed", "port", port, "err", err)
		return
	}
	p.logger.Info("relaunch succeeded", "port", port)
}

// Wait blocks until every relaunch round started so far has finished
func (p *Pool) Wait() {
	p.rounds.Wait()
}

// Report returns a snapshot of relaunch outcomes
func (p *Pool) Report() Report {
	p.mu.Lock()
	defer p.mu.Unlock()
	r := p.report
	r.Failed = append([]PortError(nil), p.report.Failed...)
	return r
}

// Shutdown cancels running relaunches and terminates the proxy and every
// server. Only the first call does anything.
func (p *Pool) Shutdown() {
	p.shutdownOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		p.cancel()
		p.rounds.Wait()

		p.mu.Lock()
		handles := make([]Handle, 0, len(p.servers)+1)
		if p.proxy != nil {
			handles = append(handles, p.proxy)
		}
		handles = append(handles, p.servers...)
		p.mu.Unlock()

		var g errgroup.Group
		for _, h := range handles {
			h := h
			g.Go(func() error {
				h.Shutdown()
				return nil
			})
		}
		_ = g.Wait()
		p.logger.Info("pool shut down", "processes", len(handles))
	})
}

func (p *Pool) backendSpec(port int) process.Spec {
	args := []string{
		p.exe, "backend",
		"--host", p.cfg.Backends.Host,
		"--port", strconv.Itoa(port),
		"--delay", p.cfg.Backends.ResponseDelay.String(),
	}
	if len(p.cfg.Backends.Command) > 0 {
		args = config.ExpandCommand(p.cfg.Backends.Command, port)
	}
	return process.Spec{
		Name:         "backend",
		Host:         p.cfg.Backends.Host,
		Port:         port,
		Args:         args,
		Output:       p.output,
		SettleDelay:  p.cfg.Backends.SettleDelay,
		ReadyTimeout: p.cfg.Backends.ReadyTimeout,
	}
}

func (p *Pool) proxySpec(upstreams []int) process.Spec {
	port := p.cfg.Proxy.Port
	addrs := make([]string, len(upstreams))
	for i, up := range upstreams {
		addrs[i] = net.JoinHostPort(p.cfg.Backends.Host, strconv.Itoa(up))
	}

	args := []string{
		p.exe, "balancer",
		"--host", p.cfg.Backends.Host,
		"--listen", strconv.Itoa(port),
		"--health-interval", p.cfg.Proxy.HealthInterval.String(),
	}
	for _, addr := range addrs {
		args = append(args, "--upstream", addr)
	}
	if len(p.cfg.Proxy.Command) > 0 {
		args = config.ExpandProxyCommand(p.cfg.Proxy.Command, port, addrs)
	}
	return process.Spec{
		Name:         "proxy",
		Host:         p.cfg.Backends.Host,
		Port:         port,
		Args:         args,
		Output:       p.output,
		ReadyTimeout: p.cfg.Backends.ReadyTimeout,
	}
}

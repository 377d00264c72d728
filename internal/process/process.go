// Package process manages one OS process bound to a fixed port: spawn, relaunch
// with an updated environment, and termination of its whole process group.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

const (
	// UpdatedEnv is added to the environment of relaunched processes
	UpdatedEnv = "UPDATED=Y"

	// DefaultStopTimeout is how long Shutdown waits after SIGTERM before SIGKILL
	DefaultStopTimeout = 3 * time.Second

	readyPollInterval = 50 * time.Millisecond
	readyDialTimeout  = 200 * time.Millisecond
)

// ErrNotRunning is returned when relaunching a handle that was shut down
var ErrNotRunning = errors.New("process is not running")

// Spec describes how to run the process behind a handle
type Spec struct {
	Name         string   // Used in logs, e.g. "backend" or "proxy"
	Host         string   // Host probed for readiness
	Port         int      // Fixed for the lifetime of the handle
	Args         []string // Args[0] is the executable
	Env          []string // Added to the parent's environment
	Output       io.Writer
	SettleDelay  time.Duration // Pause between stop and start on relaunch
	ReadyTimeout time.Duration // 0 skips the readiness wait
	StopTimeout  time.Duration // 0 uses DefaultStopTimeout
}

// running is one spawned incarnation of the process
type running struct {
	cmd  *exec.Cmd
	done chan struct{} // Closed once the process has been reaped
	err  error         // Exit error, valid after done is closed
}

// Handle controls the process listening on one port.
// Relaunch and Shutdown of the same handle are serialized.
type Handle struct {
	spec   Spec
	logger *log.Logger

	mu       sync.Mutex
	current  *running
	updated  bool
	stopped  bool
	launches int
}

// Start spawns the process and waits until its port accepts connections
func Start(ctx context.Context, spec Spec, logger *log.Logger) (*Handle, error) {
	if len(spec.Args) == 0 {
		return nil, fmt.Errorf("%s on port %d: empty command", spec.Name, spec.Port)
	}
	if spec.StopTimeout == 0 {
		spec.StopTimeout = DefaultStopTimeout
	}

	h := &Handle{
		spec:   spec,
		logger: logger.With("name", spec.Name, "port", spec.Port),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.spawn(false); err != nil {
		return nil, err
	}
	if err := h.waitReady(ctx); err != nil {
		h.stop()
		return nil, err
	}
	return h, nil
}

// Port returns the port this handle serves
func (h *Handle) Port() int {
	return h.spec.Port
}

// PID returns the process ID of the current incarnation, or 0 when stopped
func (h *Handle) PID() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil || h.stopped {
		return 0
	}
	return h.current.cmd.Process.Pid
}

// Updated reports whether the current incarnation runs with UPDATED=Y
func (h *Handle) Updated() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.updated
}

// Launches returns how many times the process has been spawned
func (h *Handle) Launches() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.launches
}

// Relaunch sends SIGTERM to the current process, waits the settle delay and
// starts a new process on the same port with UPDATED=Y. The old process keeps
// draining its in-flight requests on its own.
func (h *Handle) Relaunch(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return ErrNotRunning
	}

	old := h.current
	h.logger.Info("relaunching", "pid", old.cmd.Process.Pid)
	if err := terminate(old.cmd); err != nil && !isGone(err) {
		return fmt.Errorf("failed to signal %s on port %d: %w", h.spec.Name, h.spec.Port, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(h.spec.SettleDelay):
	}

	if err := h.spawn(true); err != nil {
		return err
	}
	return h.waitReady(ctx)
}

// Shutdown terminates the current process group and waits for it to exit,
// escalating to SIGKILL after the stop timeout. Calling it again is a no-op.
func (h *Handle) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stop()
}

// stop must be called with mu held
func (h *Handle) stop() {
	if h.stopped || h.current == nil {
		h.stopped = true
		return
	}
	h.stopped = true

	r := h.current
	select {
	case <-r.done:
		return
	default:
	}

	if err := terminate(r.cmd); err != nil && !isGone(err) {
		h.logger.Warn("failed to send SIGTERM", "pid", r.cmd.Process.Pid, "err", err)
	}

	select {
	case <-r.done:
		h.logger.Info("stopped", "pid", r.cmd.Process.Pid)
	case <-time.After(h.spec.StopTimeout):
		h.logger.Warn("process did not exit after SIGTERM, sending SIGKILL", "pid", r.cmd.Process.Pid)
		if err := kill(r.cmd); err != nil && !isGone(err) {
			h.logger.Warn("failed to send SIGKILL", "pid", r.cmd.Process.Pid, "err", err)
		}
		<-r.done
	}
}

// spawn must be called with mu held
func (h *Handle) spawn(updated bool) error {
	cmd := exec.Command(h.spec.Args[0], h.spec.Args[1:]...)
	cmd.Env = append(os.Environ(), h.spec.Env...)
	if updated {
		cmd.Env = append(cmd.Env, UpdatedEnv)
	}
	if h.spec.Output != nil {
		cmd.Stdout = h.spec.Output
		cmd.Stderr = h.spec.Output
	}
	configure(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s on port %d: %w", h.spec.Name, h.spec.Port, err)
	}

	r := &running{cmd: cmd, done: make(chan struct{})}
	go func() {
		r.err = cmd.Wait()
		h.logger.Debug("process exited", "pid", cmd.Process.Pid, "err", r.err)
		close(r.done)
	}()

	h.current = r
	h.updated = updated
	h.launches++
	h.logger.Info("started", "pid", cmd.Process.Pid, "updated", updated)
	return nil
}

// waitReady polls the port until it accepts a TCP connection
func (h *Handle) waitReady(ctx context.Context) error {
	if h.spec.ReadyTimeout <= 0 {
		return nil
	}

	addr := net.JoinHostPort(h.spec.Host, strconv.Itoa(h.spec.Port))
	deadline := time.NewTimer(h.spec.ReadyTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	for {
		conn, err := net.DialTimeout("tcp", addr, readyDialTimeout)
		if err == nil {
			conn.Close()
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.current.done:
			return fmt.Errorf("%s on port %d exited before accepting connections: %v", h.spec.Name, h.spec.Port, h.current.err)
		case <-deadline.C:
			return fmt.Errorf("%s on port %d not ready after %s: %w", h.spec.Name, h.spec.Port, h.spec.ReadyTimeout, err)
		case <-ticker.C:
		}
	}
}

func isGone(err error) bool {
	return errors.Is(err, os.ErrProcessDone) || errors.Is(err, errNoSuchProcess)
}

// Package balancer is a small round-robin reverse proxy placed in front of
// the backends in load-balanced mode.
package balancer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

const (
	DefaultHealthInterval = 250 * time.Millisecond
	DefaultHealthTimeout  = 500 * time.Millisecond
	DefaultDrainTimeout   = 10 * time.Second

	// HealthPath is probed on every upstream
	HealthPath = "/health"
)

// Hop-by-hop headers that must not be forwarded
var hopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Proxy-Connection":    true,
	"Te":                  true,
	"Trailers":            true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// ErrNoUpstream is returned when every upstream refused the request
var ErrNoUpstream = errors.New("no upstream available")

// Config describes the balancer
type Config struct {
	Host           string
	Port           int
	Upstreams      []string // host:port
	HealthInterval time.Duration
	HealthTimeout  time.Duration
	DrainTimeout   time.Duration
}

type upstream struct {
	addr    string
	healthy atomic.Bool
}

// Balancer forwards requests to healthy upstreams in turn
type Balancer struct {
	config    Config
	logger    *log.Logger
	upstreams []*upstream
	next      atomic.Uint64
	client    *http.Client
	health    *http.Client

	server   *http.Server
	listener net.Listener
	done     chan error
}

// New creates a balancer. Upstreams start healthy.
func New(cfg Config, logger *log.Logger) (*Balancer, error) {
	if len(cfg.Upstreams) == 0 {
		return nil, fmt.Errorf("at least one upstream is required")
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.HealthInterval == 0 {
		cfg.HealthInterval = DefaultHealthInterval
	}
	if cfg.HealthTimeout == 0 {
		cfg.HealthTimeout = DefaultHealthTimeout
	}
	if cfg.DrainTimeout == 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}

	b := &Balancer{
		config: cfg,
		logger: logger,
		client: &http.Client{
			Transport: &http.Transport{DisableKeepAlives: true},
		},
		health: &http.Client{
			Timeout:   cfg.HealthTimeout,
			Transport: &http.Transport{DisableKeepAlives: true},
		},
		done: make(chan error, 1),
	}
	for _, addr := range cfg.Upstreams {
		u := &upstream{addr: addr}
		u.healthy.Store(true)
		b.upstreams = append(b.upstreams, u)
	}
	return b, nil
}

// candidates returns every upstream in round-robin order, healthy ones first
func (b *Balancer) candidates() []*upstream {
	n := len(b.upstreams)
	start := int(b.next.Add(1)-1) % n

	healthy := make([]*upstream, 0, n)
	var unhealthy []*upstream
	for i := 0; i < n; i++ {
		u := b.upstreams[(start+i)%n]
		if u.healthy.Load() {
			healthy = append(healthy, u)
		} else {
			unhealthy = append(unhealthy, u)
		}
	}
	return append(healthy, unhealthy...)
}

// ServeHTTP forwards the request, retrying on the next upstream when a
// connection cannot be established
func (b *Balancer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, fmt.Sprintf("Error reading request: %v", err), http.StatusBadRequest)
			return
		}
	}

	for _, u := range b.candidates() {
		resp, err := b.forward(r, u, body)
		if err != nil {
			if isDialError(err) {
				b.markUnhealthy(u, err)
				continue
			}
			b.logger.Warn("upstream failed", "upstream", u.addr, "err", err)
			http.Error(w, fmt.Sprintf("Error forwarding request: %v", err), http.StatusBadGateway)
			return
		}
		b.copyResponse(w, resp)
		return
	}

	b.logger.Error("request dropped", "path", r.URL.Path, "err", ErrNoUpstream)
	http.Error(w, ErrNoUpstream.Error(), http.StatusBadGateway)
}

func (b *Balancer) forward(r *http.Request, u *upstream, body []byte) (*http.Response, error) {
	var bodyReader io.Reader
	if len(body) > 0 {
		bodyReader = bytes.NewReader(body)
	}
	target := "http://" + u.addr + r.URL.RequestURI()
	req, err := http.NewRequestWithContext(r.Context(), r.Method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream request: %w", err)
	}
	for name, values := range r.Header {
		if hopHeaders[name] {
			continue
		}
		for _, value := range values {
			req.Header.Add(name, value)
		}
	}
	return b.client.Do(req)
}

func (b *Balancer) copyResponse(w http.ResponseWriter, resp *http.Response) {
	defer resp.Body.Close()
	for name, values := range resp.Header {
		if hopHeaders[name] {
			continue
		}
		for _, value := range values {
			w.Header().Add(name, value)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		b.logger.Warn("failed to copy response", "err", err)
	}
}

func (b *Balancer) markUnhealthy(u *upstream, err error) {
	if u.healthy.Swap(false) {
		b.logger.Warn("upstream down", "upstream", u.addr, "err", err)
	}
}

// checkAll probes /health on every upstream once
func (b *Balancer) checkAll(ctx context.Context) {
	for _, u := range b.upstreams {
		ok := b.check(ctx, u)
		if was := u.healthy.Swap(ok); was != ok {
			b.logger.Info("upstream health changed", "upstream", u.addr, "healthy", ok)
		}
	}
}

func (b *Balancer) check(ctx context.Context, u *upstream) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+u.addr+HealthPath, nil)
	if err != nil {
		return false
	}
	resp, err := b.health.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}

func (b *Balancer) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(b.config.HealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.checkAll(ctx)
		}
	}
}

// Healthy returns the addresses currently considered healthy
func (b *Balancer) Healthy() []string {
	var out []string
	for _, u := range b.upstreams {
		if u.healthy.Load() {
			out = append(out, u.addr)
		}
	}
	return out
}

// Start binds the listen port and serves in the background
func (b *Balancer) Start() error {
	addr := net.JoinHostPort(b.config.Host, strconv.Itoa(b.config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	b.listener = ln
	b.server = &http.Server{
		Handler:           b,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		err := b.server.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		b.done <- err
	}()

	b.logger.Info("balancer listening", "addr", ln.Addr().String(), "upstreams", b.config.Upstreams)
	return nil
}

// Addr returns the bound address
func (b *Balancer) Addr() string {
	return b.listener.Addr().String()
}

// Run serves and health-checks until ctx is cancelled, then drains
func (b *Balancer) Run(ctx context.Context) error {
	if err := b.Start(); err != nil {
		return err
	}

	healthCtx, stopHealth := context.WithCancel(ctx)
	defer stopHealth()
	go b.healthLoop(healthCtx)

	select {
	case <-ctx.Done():
	case err := <-b.done:
		return err
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), b.config.DrainTimeout)
	defer cancel()
	if err := b.server.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("failed to drain balancer: %w", err)
	}
	return <-b.done
}

func isDialError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

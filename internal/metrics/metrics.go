// Package metrics exposes probe and relaunch counters on a private Prometheus registry.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "relaunchprobe"

// Probe states and reasons used as label values
const (
	StateSuccess = "success"
	StateError   = "error"

	ReasonNone    = "none"
	ReasonRefused = "refused"
	ReasonOther   = "other"

	ResultOK     = "ok"
	ResultFailed = "failed"
)

// Collector holds every metric of a run
type Collector struct {
	registry *prometheus.Registry

	probesTotal    *prometheus.CounterVec
	probeDuration  *prometheus.HistogramVec
	relaunches     *prometheus.CounterVec
	probesInFlight prometheus.Gauge
}

// New creates a collector registered on its own registry
func New() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		probesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "probes_total",
				Help:      "Probes that reached a terminal state, by state and failure reason",
			},
			[]string{"state", "reason"},
		),
		probeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "probe_duration_seconds",
				Help:      "Time from probe creation to its terminal state",
				Buckets:   []float64{0.005, 0.05, 0.25, 0.5, 1, 2, 2.5, 3, 5, 10, 30},
			},
			[]string{"state"},
		),
		relaunches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "relaunches_total",
				Help:      "Backend relaunch attempts by port and result",
			},
			[]string{"port", "result"},
		),
		probesInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "probes_in_flight",
			Help:      "Probes issued but still waiting for a response",
		}),
	}
}

// ProbeStarted marks a probe as in flight
func (c *Collector) ProbeStarted() {
	if c == nil {
		return
	}
	c.probesInFlight.Inc()
}

// ProbeFinished records a terminal probe
func (c *Collector) ProbeFinished(state, reason string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.probesInFlight.Dec()
	c.probesTotal.WithLabelValues(state, reason).Inc()
	c.probeDuration.WithLabelValues(state).Observe(elapsed.Seconds())
}

// RelaunchFinished records the outcome of one handle relaunch
func (c *Collector) RelaunchFinished(port int, err error) {
	if c == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultFailed
	}
	c.relaunches.WithLabelValues(strconv.Itoa(port), result).Inc()
}

// Registry returns the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Server is a running /metrics endpoint
type Server struct {
	server   *http.Server
	listener net.Listener
}

// Serve starts serving /metrics on addr in the background
func (c *Collector) Serve(addr string, logger *log.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	s := &Server{
		server: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: ln,
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "addr", addr, "err", err)
		}
	}()

	return s, nil
}

// Addr returns the address the server listens on
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Shutdown stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

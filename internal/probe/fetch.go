package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"syscall"

	"github.com/charmbracelet/log"

	"github.com/studiowebux/relaunchprobe/internal/config"
	"github.com/studiowebux/relaunchprobe/internal/metrics"
)

// EchoPath is the backend endpoint probes call
const EchoPath = "/wait-and-echo"

// Fetcher resolves a probe to Success or Error
type Fetcher interface {
	Fetch(ctx context.Context, p *Probe)
}

// HTTPFetcher calls the echo endpoint with one fresh connection per probe
type HTTPFetcher struct {
	client *http.Client
	base   string
	logger *log.Logger
}

// NewHTTPFetcher creates a fetcher targeting host:port
func NewHTTPFetcher(host string, port int, cfg config.ProbeConfig, logger *log.Logger) *HTTPFetcher {
	transport := &http.Transport{
		DisableKeepAlives: true,
		DialContext: (&net.Dialer{
			Timeout: cfg.DialTimeout,
		}).DialContext,
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		base:   "http://" + net.JoinHostPort(host, strconv.Itoa(port)),
		logger: logger,
	}
}

// URL returns the request URL for probe seq
func (f *HTTPFetcher) URL(seq int) string {
	return f.echoURL(fmt.Sprintf("Request %d", seq))
}

// echoURL form-encodes content into the echo query string
func (f *HTTPFetcher) echoURL(content string) string {
	return f.base + EchoPath + "?" + url.Values{"content": {content}}.Encode()
}

// Fetch issues the request. Any HTTP response, whatever its status, is a success.
func (f *HTTPFetcher) Fetch(ctx context.Context, p *Probe) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL(p.Seq), nil)
	if err != nil {
		p.Fail(fmt.Errorf("failed to create request: %w", err))
		return
	}

	resp, err := f.client.Do(req)
	if err != nil {
		p.Fail(err)
		f.logger.Debug("probe failed", "seq", p.Seq, "reason", Reason(err), "err", err)
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		p.Fail(fmt.Errorf("failed to read response body: %w", err))
		return
	}

	p.Succeed(string(body))
	f.logger.Debug("probe answered", "seq", p.Seq, "status", resp.StatusCode)
}

// Reason classifies a probe error for logs and metrics
func Reason(err error) string {
	switch {
	case err == nil:
		return metrics.ReasonNone
	case errors.Is(err, syscall.ECONNREFUSED):
		return metrics.ReasonRefused
	default:
		return metrics.ReasonOther
	}
}

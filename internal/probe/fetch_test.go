package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studiowebux/relaunchprobe/internal/config"
	"github.com/studiowebux/relaunchprobe/internal/logging"
	"github.com/studiowebux/relaunchprobe/internal/metrics"
)

func serverPort(t *testing.T, srv *httptest.Server) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

func TestHTTPFetcher_URL(t *testing.T) {
	f := NewHTTPFetcher("127.0.0.1", 4565, config.Default().Probes, logging.Discard())
	assert.Equal(t, "http://127.0.0.1:4565/wait-and-echo?content=Request+3", f.URL(3))
}

func TestHTTPFetcher_EchoURLFormEncodesContent(t *testing.T) {
	f := NewHTTPFetcher("127.0.0.1", 4565, config.Default().Probes, logging.Discard())

	tests := []string{"Request 3", "a+b", "x&y=z", "50% done", "日本"}
	for _, content := range tests {
		u, err := url.Parse(f.echoURL(content))
		require.NoError(t, err)
		assert.Equal(t, EchoPath, u.Path)
		assert.Equal(t, content, u.Query().Get("content"), "query %q", u.RawQuery)
		assert.Len(t, u.Query(), 1, "query %q", u.RawQuery)
	}
}

func TestHTTPFetcher_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, EchoPath, r.URL.Path)
		fmt.Fprintf(w, "ECHO from test: %s", r.URL.Query().Get("content"))
	}))
	defer srv.Close()

	host, port := serverPort(t, srv)
	f := NewHTTPFetcher(host, port, config.Default().Probes, logging.Discard())

	p := New(3)
	f.Fetch(context.Background(), p)

	snap := p.Snapshot()
	assert.Equal(t, StateSuccess, snap.State)
	assert.Equal(t, "ECHO from test: Request 3", snap.Response)
}

func TestHTTPFetcher_AnyStatusIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, "no upstream")
	}))
	defer srv.Close()

	host, port := serverPort(t, srv)
	f := NewHTTPFetcher(host, port, config.Default().Probes, logging.Discard())

	p := New(0)
	f.Fetch(context.Background(), p)

	assert.Equal(t, StateSuccess, p.Snapshot().State)
	assert.Equal(t, "no upstream", p.Snapshot().Response)
}

func TestHTTPFetcher_RefusedIsError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	f := NewHTTPFetcher("127.0.0.1", port, config.Default().Probes, logging.Discard())
	p := New(0)
	f.Fetch(context.Background(), p)

	snap := p.Snapshot()
	assert.Equal(t, StateError, snap.State)
	assert.Empty(t, snap.Response)
	assert.Equal(t, metrics.ReasonRefused, Reason(snap.Err))
}

func TestHTTPFetcher_TimeoutIsError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	cfg := config.Default().Probes
	cfg.Timeout = 50 * time.Millisecond
	host, port := serverPort(t, srv)
	f := NewHTTPFetcher(host, port, cfg, logging.Discard())

	p := New(0)
	f.Fetch(context.Background(), p)

	snap := p.Snapshot()
	assert.Equal(t, StateError, snap.State)
	assert.Equal(t, metrics.ReasonOther, Reason(snap.Err))
}

func TestReason(t *testing.T) {
	assert.Equal(t, metrics.ReasonNone, Reason(nil))
	assert.Equal(t, metrics.ReasonOther, Reason(errors.New("tls handshake")))
}

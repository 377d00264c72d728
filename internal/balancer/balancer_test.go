package balancer

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studiowebux/relaunchprobe/internal/logging"
)

func named(name string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == HealthPath {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		fmt.Fprintf(w, "%s %s", name, r.URL.Query().Get("content"))
	}))
}

func deadAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func hostOf(s *httptest.Server) string {
	return strings.TrimPrefix(s.URL, "http://")
}

func call(t *testing.T, b *Balancer, content string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	b.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/wait-and-echo?content="+content, nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return rec.Code, string(body)
}

func TestNew_RequiresUpstream(t *testing.T) {
	_, err := New(Config{}, logging.Discard())
	assert.Error(t, err)
}

func TestServeHTTP_RoundRobin(t *testing.T) {
	a, c := named("a"), named("b")
	defer a.Close()
	defer c.Close()

	b, err := New(Config{Upstreams: []string{hostOf(a), hostOf(c)}}, logging.Discard())
	require.NoError(t, err)

	var got []string
	for i := 0; i < 4; i++ {
		code, body := call(t, b, "x")
		assert.Equal(t, http.StatusOK, code)
		got = append(got, body)
	}
	assert.Equal(t, []string{"a x", "b x", "a x", "b x"}, got)
}

func TestServeHTTP_SkipsRefusingUpstream(t *testing.T) {
	live := named("live")
	defer live.Close()
	dead := deadAddr(t)

	b, err := New(Config{Upstreams: []string{dead, hostOf(live)}}, logging.Discard())
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		code, body := call(t, b, "x")
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "live x", body)
	}
	assert.Equal(t, []string{hostOf(live)}, b.Healthy())
}

func TestServeHTTP_AllUpstreamsDown(t *testing.T) {
	b, err := New(Config{Upstreams: []string{deadAddr(t), deadAddr(t)}}, logging.Discard())
	require.NoError(t, err)

	code, body := call(t, b, "x")
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Contains(t, body, ErrNoUpstream.Error())
}

func TestServeHTTP_DropsHopHeaders(t *testing.T) {
	var seen http.Header
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Clone()
		w.Header().Set("X-Backend", "1")
		w.WriteHeader(http.StatusTeapot)
	}))
	defer up.Close()

	b, err := New(Config{Upstreams: []string{hostOf(up)}}, logging.Discard())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Proxy-Authorization", "secret")
	req.Header.Set("X-Trace", "abc")
	rec := httptest.NewRecorder()
	b.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-Backend"))
	assert.Equal(t, "abc", seen.Get("X-Trace"))
	assert.Empty(t, seen.Get("Proxy-Authorization"))
}

func TestCheckAll_RestoresRecoveredUpstream(t *testing.T) {
	live := named("live")
	defer live.Close()

	b, err := New(Config{Upstreams: []string{hostOf(live)}}, logging.Discard())
	require.NoError(t, err)
	b.upstreams[0].healthy.Store(false)

	b.checkAll(context.Background())
	assert.Equal(t, []string{hostOf(live)}, b.Healthy())
}

func TestRun_ServesAndStops(t *testing.T) {
	live := named("live")
	defer live.Close()

	b, err := New(Config{Host: "127.0.0.1", Port: 0, Upstreams: []string{hostOf(live)}, HealthInterval: 10 * time.Millisecond}, logging.Discard())
	require.NoError(t, err)
	require.NoError(t, b.Start())

	resp, err := http.Get("http://" + b.Addr() + "/wait-and-echo?content=hi")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "live hi", string(body))

	require.NoError(t, b.server.Shutdown(context.Background()))
	assert.NoError(t, <-b.done)
}

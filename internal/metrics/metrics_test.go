package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studiowebux/relaunchprobe/internal/logging"
)

func TestCollector_ProbeLifecycle(t *testing.T) {
	c := New()

	c.ProbeStarted()
	c.ProbeStarted()
	assert.Equal(t, 2.0, testutil.ToFloat64(c.probesInFlight))

	c.ProbeFinished(StateSuccess, ReasonNone, 2*time.Second)
	c.ProbeFinished(StateError, ReasonRefused, 3*time.Millisecond)

	assert.Equal(t, 0.0, testutil.ToFloat64(c.probesInFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.probesTotal.WithLabelValues(StateSuccess, ReasonNone)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.probesTotal.WithLabelValues(StateError, ReasonRefused)))
	assert.Equal(t, 2, testutil.CollectAndCount(c.probeDuration))
}

func TestCollector_RelaunchFinished(t *testing.T) {
	c := New()

	c.RelaunchFinished(4567, nil)
	c.RelaunchFinished(4568, errors.New("spawn failed"))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.relaunches.WithLabelValues("4567", ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.relaunches.WithLabelValues("4568", ResultFailed)))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ProbeStarted()
		c.ProbeFinished(StateSuccess, ReasonNone, time.Second)
		c.RelaunchFinished(4567, nil)
	})
}

func TestServe_ExposesMetrics(t *testing.T) {
	c := New()
	c.RelaunchFinished(4567, nil)

	srv, err := c.Serve("127.0.0.1:0", logging.Discard())
	require.NoError(t, err)
	defer srv.Shutdown(context.Background())

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), `relaunchprobe_relaunches_total{port="4567",result="ok"} 1`))
}

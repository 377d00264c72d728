package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_WritesRunAndComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(New(&buf, "run-1234"), "pool")

	logger.Info("relaunch finished", "port", 4567)

	out := buf.String()
	assert.Contains(t, out, "run=run-1234")
	assert.Contains(t, out, "component=pool")
	assert.Contains(t, out, "port=4567")
	assert.Contains(t, out, "relaunch finished")
}

func TestNew_WithoutRunID(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "").Debug("hello")

	assert.NotContains(t, buf.String(), "run=")
	assert.Contains(t, buf.String(), "hello")
}

func TestDiscard(t *testing.T) {
	assert.NotPanics(t, func() {
		Discard().Error("dropped", "err", "boom")
	})
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 40, cfg.Probes.Total)
	assert.Equal(t, 200*time.Millisecond, cfg.Probes.Interval)
	assert.Equal(t, 19, cfg.Probes.RelaunchTriggerIndex)
	assert.Equal(t, 4565, cfg.Proxy.Port)
	assert.Equal(t, []int{4567}, cfg.Ports(ModeSingle))
	assert.Equal(t, []int{4567, 4568}, cfg.Ports(ModeLoadBalanced))
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Probes, cfg.Probes)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "harness.yaml")
	content := `
probes:
  total: 10
  interval: 50ms
  relaunch_trigger_index: 4
backends:
  balanced_ports: [5001, 5002, 5003]
  max_unavailable: 2
  command: ["ruby", "app.rb", "-p", "{port}"]
dashboard:
  quit_key: x
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Probes.Total)
	assert.Equal(t, 50*time.Millisecond, cfg.Probes.Interval)
	assert.Equal(t, 4, cfg.Probes.RelaunchTriggerIndex)
	assert.Equal(t, []int{5001, 5002, 5003}, cfg.Backends.BalancedPorts)
	assert.Equal(t, 2, cfg.Backends.MaxUnavailable)
	assert.Equal(t, "x", cfg.Dashboard.QuitKey)
	// Untouched fields keep their defaults
	assert.Equal(t, 4567, cfg.Backends.SinglePort)
	assert.Equal(t, 2*time.Second, cfg.Backends.SettleDelay)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	jsonPath := filepath.Join(dir, "harness.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{}`), 0644))
	_, err = Load(jsonPath)
	assert.ErrorContains(t, err, "unsupported config file format")

	badPath := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(badPath, []byte("probes:\n  total: 0\n"), 0644))
	_, err = Load(badPath)
	assert.ErrorContains(t, err, "probes.total")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"trigger beyond total", func(c *Config) { c.Probes.RelaunchTriggerIndex = 40 }, "relaunch_trigger_index"},
		{"negative interval", func(c *Config) { c.Probes.Interval = -time.Second }, "interval"},
		{"one balanced port", func(c *Config) { c.Backends.BalancedPorts = []int{4567} }, "at least 2"},
		{"duplicate port", func(c *Config) { c.Backends.BalancedPorts = []int{4567, 4567} }, "used twice"},
		{"proxy port reused", func(c *Config) { c.Backends.BalancedPorts = []int{4567, 4565} }, "used twice"},
		{"bad port", func(c *Config) { c.Backends.SinglePort = 70000 }, "invalid port"},
		{"zero max unavailable", func(c *Config) { c.Backends.MaxUnavailable = 0 }, "max_unavailable"},
		{"zero tick", func(c *Config) { c.Dashboard.Tick = 0 }, "tick"},
		{"long quit key", func(c *Config) { c.Dashboard.QuitKey = "qq" }, "quit_key"},
		{"empty host", func(c *Config) { c.Backends.Host = "" }, "host"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseMode(t *testing.T) {
	mode, err := ParseMode("single")
	require.NoError(t, err)
	assert.Equal(t, ModeSingle, mode)

	mode, err = ParseMode("load-balanced")
	require.NoError(t, err)
	assert.Equal(t, ModeLoadBalanced, mode)
	assert.Equal(t, "load-balanced", mode.String())

	_, err = ParseMode("round-robin")
	assert.True(t, errors.Is(err, ErrInvalidMode))
}

func TestExpandCommand(t *testing.T) {
	got := ExpandCommand([]string{"ruby", "app.rb", "-p", "{port}"}, 4568)
	assert.Equal(t, []string{"ruby", "app.rb", "-p", "4568"}, got)
}

func TestExpandProxyCommand(t *testing.T) {
	got := ExpandProxyCommand(
		[]string{"caddy", "reverse-proxy", "--from", ":{port}", "{upstreams}"},
		4565,
		[]string{"127.0.0.1:4567", "127.0.0.1:4568"},
	)
	assert.Equal(t, []string{"caddy", "reverse-proxy", "--from", ":4565", "127.0.0.1:4567", "127.0.0.1:4568"}, got)
}

func TestOpenLogFile_CreatesDirectory(t *testing.T) {
	cfg := Default()
	cfg.LogFile = filepath.Join(t.TempDir(), "logs", "out.log")

	f, err := cfg.OpenLogFile()
	require.NoError(t, err)
	defer f.Close()

	_, err = f.WriteString("hello\n")
	require.NoError(t, err)
	assert.FileExists(t, cfg.LogFile)
}

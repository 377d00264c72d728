package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// FilePermissions is the default permission mode for the run log file
	FilePermissions = 0644
	// DirPermissions is the default permission mode for directories (rwxr-xr-x)
	DirPermissions = 0755

	// PortPlaceholder is replaced by the handle's port in custom commands
	PortPlaceholder = "{port}"
	// UpstreamsPlaceholder expands to one argument per backend address in a custom proxy command
	UpstreamsPlaceholder = "{upstreams}"
)

// Config is the complete harness configuration
type Config struct {
	Probes    ProbeConfig     `yaml:"probes"`
	Backends  BackendConfig   `yaml:"backends"`
	Proxy     ProxyConfig     `yaml:"proxy"`
	Dashboard DashboardConfig `yaml:"dashboard"`

	LogFile         string        `yaml:"log_file"`         // Shared by the harness and every child process
	StartupSettle   time.Duration `yaml:"startup_settle"`   // Pause between pool start and the first probe
	MetricsAddr     string        `yaml:"metrics_addr"`     // Empty disables the /metrics endpoint
	HeadlessTimeout time.Duration `yaml:"headless_timeout"` // Upper bound for headless runs
}

// ProbeConfig controls the probe sequence
type ProbeConfig struct {
	Total                int           `yaml:"total"`
	Interval             time.Duration `yaml:"interval"`
	RelaunchTriggerIndex int           `yaml:"relaunch_trigger_index"`
	Timeout              time.Duration `yaml:"timeout"` // 0 waits forever
	DialTimeout          time.Duration `yaml:"dial_timeout"`
}

// BackendConfig describes the backend processes under test
type BackendConfig struct {
	Host           string        `yaml:"host"`
	SinglePort     int           `yaml:"single_port"`
	BalancedPorts  []int         `yaml:"balanced_ports"`
	Command        []string      `yaml:"command"` // Empty runs this binary's backend subcommand
	ResponseDelay  time.Duration `yaml:"response_delay"`
	SettleDelay    time.Duration `yaml:"settle_delay"`  // Between stop and start on relaunch
	ReadyTimeout   time.Duration `yaml:"ready_timeout"` // 0 skips the readiness wait
	MaxUnavailable int           `yaml:"max_unavailable"`
}

// ProxyConfig describes the load balancer used in load-balanced mode
type ProxyConfig struct {
	Port           int           `yaml:"port"`
	Command        []string      `yaml:"command"` // Empty runs this binary's balancer subcommand
	StartDelay     time.Duration `yaml:"start_delay"`
	HealthInterval time.Duration `yaml:"health_interval"`
}

// DashboardConfig controls the terminal table
type DashboardConfig struct {
	Tick    time.Duration `yaml:"tick"`
	QuitKey string        `yaml:"quit_key"`
}

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		Probes: ProbeConfig{
			Total:                40,
			Interval:             200 * time.Millisecond,
			RelaunchTriggerIndex: 19,
			Timeout:              30 * time.Second,
			DialTimeout:          2 * time.Second,
		},
		Backends: BackendConfig{
			Host:           "127.0.0.1",
			SinglePort:     4567,
			BalancedPorts:  []int{4567, 4568},
			ResponseDelay:  2 * time.Second,
			SettleDelay:    2 * time.Second,
			ReadyTimeout:   5 * time.Second,
			MaxUnavailable: 1,
		},
		Proxy: ProxyConfig{
			Port:           4565,
			StartDelay:     time.Second,
			HealthInterval: 250 * time.Millisecond,
		},
		Dashboard: DashboardConfig{
			Tick:    100 * time.Millisecond,
			QuitKey: "q",
		},
		LogFile:         "out.log",
		StartupSettle:   time.Second,
		HeadlessTimeout: 2 * time.Minute,
	}
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return &cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config file format: %s (use .yaml or .yml)", ext)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration for values the harness cannot run with
func (c *Config) Validate() error {
	if c.Probes.Total <= 0 {
		return fmt.Errorf("probes.total must be greater than 0")
	}
	if c.Probes.Interval < 0 {
		return fmt.Errorf("probes.interval cannot be negative")
	}
	if c.Probes.RelaunchTriggerIndex >= c.Probes.Total {
		return fmt.Errorf("probes.relaunch_trigger_index (%d) must be below probes.total (%d)",
			c.Probes.RelaunchTriggerIndex, c.Probes.Total)
	}
	if c.Probes.Timeout < 0 {
		return fmt.Errorf("probes.timeout cannot be negative")
	}
	if c.Backends.Host == "" {
		return fmt.Errorf("backends.host is required")
	}
	if err := validatePort("backends.single_port", c.Backends.SinglePort); err != nil {
		return err
	}
	if len(c.Backends.BalancedPorts) < 2 {
		return fmt.Errorf("backends.balanced_ports needs at least 2 ports, got %d", len(c.Backends.BalancedPorts))
	}
	seen := make(map[int]bool)
	for i, port := range c.Backends.BalancedPorts {
		if err := validatePort(fmt.Sprintf("backends.balanced_ports[%d]", i), port); err != nil {
			return err
		}
		if seen[port] || port == c.Proxy.Port {
			return fmt.Errorf("backends.balanced_ports[%d]: port %d is used twice", i, port)
		}
		seen[port] = true
	}
	if c.Backends.MaxUnavailable <= 0 {
		return fmt.Errorf("backends.max_unavailable must be greater than 0")
	}
	if c.Backends.SettleDelay < 0 || c.Backends.ReadyTimeout < 0 || c.Backends.ResponseDelay < 0 {
		return fmt.Errorf("backend delays cannot be negative")
	}
	if err := validatePort("proxy.port", c.Proxy.Port); err != nil {
		return err
	}
	if c.Dashboard.Tick <= 0 {
		return fmt.Errorf("dashboard.tick must be greater than 0")
	}
	if len([]rune(c.Dashboard.QuitKey)) != 1 {
		return fmt.Errorf("dashboard.quit_key must be a single character")
	}
	return nil
}

// Ports returns the backend ports for the given mode
func (c *Config) Ports(mode Mode) []int {
	if mode == ModeLoadBalanced {
		return c.Backends.BalancedPorts
	}
	return []int{c.Backends.SinglePort}
}

// OpenLogFile opens the shared run log in append mode, creating parent directories
func (c *Config) OpenLogFile() (*os.File, error) {
	if dir := filepath.Dir(c.LogFile); dir != "." {
		if err := os.MkdirAll(dir, DirPermissions); err != nil {
			return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, FilePermissions)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", c.LogFile, err)
	}
	return f, nil
}

// ExpandCommand replaces the port placeholder in a custom command
func ExpandCommand(command []string, port int) []string {
	out := make([]string, len(command))
	for i, arg := range command {
		out[i] = strings.ReplaceAll(arg, PortPlaceholder, fmt.Sprint(port))
	}
	return out
}

// ExpandProxyCommand is ExpandCommand plus expansion of the upstreams placeholder
func ExpandProxyCommand(command []string, port int, upstreams []string) []string {
	out := make([]string, 0, len(command)+len(upstreams))
	for _, arg := range ExpandCommand(command, port) {
		if arg == UpstreamsPlaceholder {
			out = append(out, upstreams...)
			continue
		}
		out = append(out, arg)
	}
	return out
}

func validatePort(field string, port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("%s: invalid port %d", field, port)
	}
	return nil
}

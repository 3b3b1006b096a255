// Package config loads the clsession configuration file.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cwbudde/clsession/internal/catalog"
	"github.com/cwbudde/clsession/internal/session"
)

// Config is the on-disk configuration. Command-line flags override it.
type Config struct {
	// Runtime selects the provider as "<name>[:<config>]", e.g. "sim:topology.yaml".
	// Empty defers to $CLSESSION_RUNTIME and then the first registered runtime.
	Runtime   string `yaml:"runtime"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// RequiredExtensions may be reported by either the device or its
	// platform; the tiered lists are checked strictly at their own tier.
	RequiredExtensions []string `yaml:"required_extensions"`
	PlatformExtensions []string `yaml:"platform_extensions"`
	DeviceExtensions   []string `yaml:"device_extensions"`

	Divisibility string `yaml:"divisibility"`
	BindPlatform bool   `yaml:"bind_platform"`
	// TraceDir enables dispatch tracing when set.
	TraceDir string `yaml:"trace_dir"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		LogLevel:     "info",
		LogFormat:    "auto",
		Divisibility: "fatal",
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel)
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text", "auto":
	default:
		return fmt.Errorf("log_format must be json, text or auto, got %q", c.LogFormat)
	}
	if _, err := ParseDivisibility(c.Divisibility); err != nil {
		return err
	}
	return nil
}

// ParseDivisibility converts "fatal" or "warn" into a policy.
func ParseDivisibility(s string) (session.DivisibilityPolicy, error) {
	switch strings.ToLower(s) {
	case "", "fatal":
		return session.DivisibilityFatal, nil
	case "warn":
		return session.DivisibilityWarn, nil
	default:
		return 0, fmt.Errorf("divisibility must be fatal or warn, got %q", s)
	}
}

// Requirements merges the tiered and untiered extension lists.
func (c Config) Requirements() catalog.Requirements {
	req := catalog.Require(c.RequiredExtensions...)
	req.Platform = append(req.Platform, c.PlatformExtensions...)
	req.Device = append(req.Device, c.DeviceExtensions...)
	return req
}

// SessionOptions translates the configuration into session options. Tracing
// is left to the caller, which owns the trace writer.
func (c Config) SessionOptions() ([]session.Option, error) {
	policy, err := ParseDivisibility(c.Divisibility)
	if err != nil {
		return nil, err
	}
	opts := []session.Option{
		session.WithRequirements(c.Requirements()),
		session.WithDivisibility(policy),
	}
	if c.BindPlatform {
		opts = append(opts, session.WithPlatformBinding())
	}
	return opts, nil
}

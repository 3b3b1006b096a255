package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/clsession/internal/cl/sim"
	"github.com/cwbudde/clsession/internal/session"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clsession.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
runtime: sim:topology.yaml
log_level: debug
required_extensions: [cl_khr_icd]
device_extensions: [cl_khr_fp64]
divisibility: warn
bind_platform: true
trace_dir: /tmp/traces
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sim:topology.yaml", cfg.Runtime)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "auto", cfg.LogFormat, "unset fields keep their defaults")
	assert.True(t, cfg.BindPlatform)
	assert.Equal(t, "/tmp/traces", cfg.TraceDir)

	req := cfg.Requirements()
	assert.Equal(t, []string{"cl_khr_icd"}, req.Any)
	assert.Empty(t, req.Platform)
	assert.Equal(t, []string{"cl_khr_fp64"}, req.Device)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "log_level: [nope"))
	assert.Error(t, err)

	for _, body := range []string{
		"log_level: loud",
		"log_format: xml",
		"divisibility: ignore",
	} {
		_, err := Load(writeConfig(t, body))
		assert.Error(t, err, body)
	}
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
	assert.True(t, Default().Requirements().IsZero())
}

func TestSessionOptions(t *testing.T) {
	cfg := Default()
	cfg.Divisibility = "warn"
	cfg.BindPlatform = true
	cfg.DeviceExtensions = []string{"cl_khr_byte_addressable_store"}

	opts, err := cfg.SessionOptions()
	require.NoError(t, err)

	s, err := session.New(sim.New(sim.DefaultTopology()), opts...)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, session.DivisibilityWarn, s.Divisibility())
	assert.Equal(t, cfg.Requirements(), s.Catalog().Requirements())

	// Untiered extensions resolve against the simulated device's own list.
	cfg.RequiredExtensions = []string{"cl_khr_global_int32_base_atomics"}
	opts, err = cfg.SessionOptions()
	require.NoError(t, err)
	s2, err := session.New(sim.New(sim.DefaultTopology()), opts...)
	require.NoError(t, err)
	require.NoError(t, s2.Close())

	cfg.Divisibility = "sometimes"
	_, err = cfg.SessionOptions()
	assert.Error(t, err)
}

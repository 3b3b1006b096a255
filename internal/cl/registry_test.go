package cl

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRuntime satisfies Runtime by embedding it; only Name is ever called.
type fakeRuntime struct {
	Runtime
	name   string
	config string
}

func (f *fakeRuntime) Name() string { return f.name }

// withRegistry swaps in an empty registry for the duration of the test.
func withRegistry(t *testing.T) {
	t.Helper()
	registryMu.Lock()
	savedCtors, savedFirst := constructors, firstRegistered
	constructors, firstRegistered = make(map[string]Constructor), ""
	registryMu.Unlock()

	t.Cleanup(func() {
		registryMu.Lock()
		constructors, firstRegistered = savedCtors, savedFirst
		registryMu.Unlock()
	})
}

func TestOpen(t *testing.T) {
	withRegistry(t)

	_, err := Open("")
	require.Error(t, err)

	Register("alpha", func(config string) (Runtime, error) {
		return &fakeRuntime{name: "alpha", config: config}, nil
	})
	Register("beta", func(config string) (Runtime, error) {
		return nil, errors.New("no hardware")
	})
	assert.Equal(t, []string{"alpha", "beta"}, Registered())

	rt, err := Open("")
	require.NoError(t, err)
	assert.Equal(t, "alpha", rt.Name())

	rt, err = Open("alpha:topology.yaml")
	require.NoError(t, err)
	assert.Equal(t, "topology.yaml", rt.(*fakeRuntime).config)

	_, err = Open("beta")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no hardware")

	_, err = Open("gamma")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "alpha, beta")
}

func TestOpenDefaultUsesEnvironment(t *testing.T) {
	withRegistry(t)
	Register("alpha", func(config string) (Runtime, error) { return &fakeRuntime{name: "alpha"}, nil })
	Register("beta", func(config string) (Runtime, error) { return &fakeRuntime{name: "beta", config: config}, nil })

	t.Setenv(EnvRuntime, "beta:x")
	rt, err := OpenDefault()
	require.NoError(t, err)
	assert.Equal(t, "beta", rt.Name())
	assert.Equal(t, "x", rt.(*fakeRuntime).config)

	t.Setenv(EnvRuntime, "")
	rt, err = OpenDefault()
	require.NoError(t, err)
	assert.Equal(t, "alpha", rt.Name())
}

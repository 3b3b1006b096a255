package catalog

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/clsession/internal/cl"
	"github.com/cwbudde/clsession/internal/cl/sim"
)

// twoVendorTopology hosts three devices on two platforms plus an empty one.
func twoVendorTopology() sim.Topology {
	return sim.Topology{Platforms: []sim.PlatformSpec{
		{
			Name:       "Vendor A",
			Extensions: []string{"cl_khr_icd", "cl_khr_fp64"},
			Devices: []sim.DeviceSpec{
				{Name: "A-CPU", Type: cl.DeviceTypeCPU, Extensions: []string{"cl_khr_fp64"}},
				{Name: "A-GPU", Type: cl.DeviceTypeGPU, Extensions: []string{"cl_khr_fp64", "cl_khr_gl_sharing"}},
			},
		},
		{Name: "Vendor Empty", Extensions: []string{"cl_khr_icd"}},
		{
			Name:       "Vendor B",
			Extensions: []string{"cl_khr_icd", "cl_khr_gl_sharing"},
			Devices: []sim.DeviceSpec{
				{Name: "B-GPU", Type: cl.DeviceTypeGPU, Extensions: []string{"cl_khr_gl_sharing", "cl_khr_int64_base_atomics"}},
			},
		},
	}}
}

func TestEnumerate(t *testing.T) {
	platforms, err := Enumerate(sim.New(twoVendorTopology()))
	require.NoError(t, err)
	require.Len(t, platforms, 3)

	assert.Equal(t, "Vendor A", platforms[0].Name())
	assert.Empty(t, platforms[1].Devices, "platform without devices is kept")
	require.Len(t, platforms[0].Devices, 2)

	gpu := platforms[0].Devices[1]
	assert.Equal(t, "A-GPU", gpu.Name())
	assert.Equal(t, cl.DeviceTypeGPU, gpu.Type())
	assert.Equal(t, uint64(256), gpu.MaxWorkGroupSize())

	units, ok := gpu.Attribute("compute_units")
	require.True(t, ok)
	assert.Equal(t, cl.KindUint, units.Kind)
	n, err := units.Uint()
	require.NoError(t, err)
	assert.Equal(t, uint64(8), n)
	assert.Equal(t, "8", units.String())

	_, err = units.Text()
	assert.ErrorIs(t, err, cl.ErrKindMismatch)
	name, _ := gpu.Attribute("name")
	_, err = name.Uint()
	assert.ErrorIs(t, err, cl.ErrKindMismatch)

	exts, err := gpu.Extensions()
	require.NoError(t, err)
	assert.Equal(t, []string{"cl_khr_fp64", "cl_khr_gl_sharing"}, exts)
}

func TestEnumerateNoPlatforms(t *testing.T) {
	_, err := Enumerate(sim.New(sim.Topology{}))
	require.Error(t, err)
	assert.ErrorIs(t, err, cl.ErrNoPlatforms)
	assert.Equal(t, cl.KindResolution, cl.KindOf(err))
}

func TestSelectMissingExtension(t *testing.T) {
	rt := sim.New(twoVendorTopology())

	tests := []struct {
		name    string
		req     Requirements
		missing string
	}{
		{"platform tier", Requirements{Platform: []string{"cl_khr_icd", "cl_intel_subgroups"}}, "cl_intel_subgroups"},
		{"device tier", Requirements{Device: []string{"cl_khr_fp64", "cl_khr_fp16"}}, "cl_khr_fp16"},
		{"either tier", Require("cl_amd_media_ops"), "cl_amd_media_ops"},
		{"tiers combined", Requirements{Platform: []string{"cl_khr_gl_sharing"}, Device: []string{"cl_khr_fp64"}}, "cl_khr_fp64"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(rt, tt.req, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, cl.ErrExtensionMissing)
			assert.Equal(t, cl.KindResolution, cl.KindOf(err))
			assert.Contains(t, err.Error(), tt.missing)
		})
	}
}

func TestSelectIsDeterministic(t *testing.T) {
	rt := sim.New(twoVendorTopology())
	req := Requirements{Device: []string{"cl_khr_gl_sharing"}}

	first, err := New(rt, req, nil)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := New(rt, req, nil)
		require.NoError(t, err)
		assert.Equal(t, first.DeviceID(), again.DeviceID())
	}
	assert.Equal(t, "A-GPU", first.Device().Name(), "first survivor in enumeration order")
	assert.Equal(t, "Vendor A", first.Platform().Name())
	assert.Equal(t, req, first.Requirements())
	assert.Len(t, first.Platforms(), 3)
}

func TestSelectDisjointRequirements(t *testing.T) {
	multi := sim.New(twoVendorTopology())
	fp64, err := New(multi, Requirements{Device: []string{"cl_khr_fp64"}}, nil)
	require.NoError(t, err)
	atomics, err := New(multi, Requirements{Device: []string{"cl_khr_int64_base_atomics"}}, nil)
	require.NoError(t, err)
	assert.NotEqual(t, fp64.DeviceID(), atomics.DeviceID())
	assert.Equal(t, "A-CPU", fp64.Device().Name())
	assert.Equal(t, "B-GPU", atomics.Device().Name())

	single := sim.New(sim.DefaultTopology())
	a, err := New(single, Requirements{Device: []string{"cl_khr_global_int32_base_atomics"}}, nil)
	require.NoError(t, err)
	b, err := New(single, Requirements{Device: []string{"cl_khr_byte_addressable_store"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, a.DeviceID(), b.DeviceID())
}

func TestSelectWithoutRequirements(t *testing.T) {
	c, err := New(sim.New(twoVendorTopology()), Requirements{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "A-CPU", c.Device().Name())
	assert.True(t, c.Requirements().IsZero())

	_, _, err = Select([]*Platform{{}}, Requirements{})
	assert.ErrorIs(t, err, cl.ErrNoDevices)
}

func TestRequire(t *testing.T) {
	exts := []string{"a", "b"}
	req := Require(exts...)
	assert.Equal(t, []string{"a", "b"}, req.Any)
	assert.Empty(t, req.Platform)
	assert.Empty(t, req.Device)
	assert.False(t, req.IsZero())
	exts[0] = "x"
	assert.Equal(t, "a", req.Any[0])
}

func TestSelectUntieredExtension(t *testing.T) {
	single := sim.New(sim.DefaultTopology())

	// Reported by the device only.
	c, err := New(single, Require("cl_khr_byte_addressable_store"), nil)
	require.NoError(t, err)
	assert.Equal(t, "Simulated GPU", c.Device().Name())

	// Reported by the platform only.
	_, err = New(single, Require("cl_khr_icd", "cl_khr_global_int32_base_atomics"), nil)
	require.NoError(t, err)

	// Explicit tiers stay strict.
	_, err = New(single, Requirements{Platform: []string{"cl_khr_byte_addressable_store"}}, nil)
	assert.ErrorIs(t, err, cl.ErrExtensionMissing)
	_, err = New(single, Requirements{Device: []string{"cl_khr_icd"}}, nil)
	assert.ErrorIs(t, err, cl.ErrExtensionMissing)

	multi := sim.New(twoVendorTopology())
	c, err = New(multi, Require("cl_khr_int64_base_atomics"), nil)
	require.NoError(t, err)
	assert.Equal(t, "B-GPU", c.Device().Name())

	// Vendor B reports gl_sharing at the platform, but A-GPU comes first.
	c, err = New(multi, Require("cl_khr_gl_sharing"), nil)
	require.NoError(t, err)
	assert.Equal(t, "A-GPU", c.Device().Name())
}

func TestNewLogsThroughGivenLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	_, err := New(sim.New(sim.DefaultTopology()), Requirements{}, logger)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Selected device")
	assert.Contains(t, buf.String(), "Found platform")
}

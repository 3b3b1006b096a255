package sim

import (
	"bytes"
	"encoding/binary"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/clsession/internal/cl"
)

const identitySource = `
__kernel void identity_copy(__global const int* in, __global int* out) {
	int i = get_global_id(0);
	out[i] = in[i];
}
`

func TestParseTopology(t *testing.T) {
	topo, err := ParseTopology([]byte(`
platforms:
  - name: Vendor A
    extensions: [cl_khr_icd]
    devices:
      - name: Small
        type: cpu
        max_work_group_size: 64
      - name: Big
        type: GPU
        extensions: [cl_khr_fp64]
  - name: Vendor B
`))
	require.NoError(t, err)
	require.Len(t, topo.Platforms, 2)

	small := topo.Platforms[0].Devices[0]
	assert.Equal(t, cl.DeviceTypeCPU, small.Type)
	assert.Equal(t, uint64(64), small.MaxWorkGroupSize)
	assert.Equal(t, uint32(defaultComputeUnits), small.ComputeUnits)
	assert.Equal(t, "FULL_PROFILE", small.Profile)
	assert.Equal(t, cl.DeviceTypeGPU, topo.Platforms[0].Devices[1].Type)
	assert.Empty(t, topo.Platforms[1].Devices)

	_, err = ParseTopology([]byte("platforms: []"))
	assert.Error(t, err)
	_, err = ParseTopology([]byte("platforms: {"))
	assert.Error(t, err)
}

func TestLoadTopology(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topology.yaml")
	require.NoError(t, os.WriteFile(path, []byte("platforms:\n  - name: P\n    devices:\n      - name: D\n"), 0644))

	rt, err := cl.Open(Name + ":" + path)
	require.NoError(t, err)
	assert.Equal(t, Name, rt.Name())

	_, err = LoadTopology(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestEnumeration(t *testing.T) {
	rt := New(Topology{Platforms: []PlatformSpec{
		{Name: "Empty"},
		{Name: "Full", Devices: []DeviceSpec{{Name: "D0", GlobalMemSize: 1024}}},
	}})

	platforms, err := rt.PlatformIDs()
	require.NoError(t, err)
	require.Len(t, platforms, 2)

	_, err = rt.DeviceIDs(platforms[0])
	status, ok := cl.StatusOf(err)
	require.True(t, ok)
	assert.Equal(t, cl.StatusDeviceNotFound, status)

	devices, err := rt.DeviceIDs(platforms[1])
	require.NoError(t, err)
	require.Len(t, devices, 1)

	raw, err := rt.DeviceProperty(devices[0], cl.DeviceName)
	require.NoError(t, err)
	assert.Equal(t, "D0", cl.DecodeString(raw))

	raw, err = rt.DeviceProperty(devices[0], cl.DeviceGlobalMemSize)
	require.NoError(t, err)
	v, err := cl.DecodeUint(cl.KindUlong, raw)
	require.NoError(t, err)
	assert.Equal(t, uint64(1024), v)

	raw, err = rt.DeviceProperty(devices[0], cl.DeviceMaxComputeUnits)
	require.NoError(t, err)
	assert.Len(t, raw, 4)

	raw, err = rt.PlatformProperty(platforms[1], cl.PlatformName)
	require.NoError(t, err)
	assert.Equal(t, "Full", cl.DecodeString(raw))

	empty := New(Topology{})
	_, err = empty.PlatformIDs()
	status, _ = cl.StatusOf(err)
	assert.Equal(t, cl.StatusPlatformNotFoundKHR, status)
}

// setup returns a runtime with a context and queue on the default device.
func setup(t *testing.T) (*Runtime, cl.DeviceID, cl.Context, cl.Queue) {
	t.Helper()
	rt := New(DefaultTopology())
	platforms, err := rt.PlatformIDs()
	require.NoError(t, err)
	devices, err := rt.DeviceIDs(platforms[0])
	require.NoError(t, err)

	ctx, err := rt.CreateContext(devices[0], []cl.ContextProperty{{Key: cl.ContextPlatform, Value: uintptr(platforms[0])}})
	require.NoError(t, err)
	q, err := rt.CreateQueue(ctx, devices[0])
	require.NoError(t, err)
	return rt, devices[0], ctx, q
}

func TestBuildLog(t *testing.T) {
	rt, dev, ctx, _ := setup(t)

	prog, err := rt.CreateProgramWithSource(ctx, "__kernel void broken(__global int* a {\n")
	require.NoError(t, err)

	err = rt.BuildProgram(prog, dev, "")
	status, _ := cl.StatusOf(err)
	assert.Equal(t, cl.StatusBuildProgramFailure, status)

	raw, err := rt.ProgramBuildLog(prog, dev)
	require.NoError(t, err)
	log := cl.DecodeString(raw)
	assert.Contains(t, log, "error:")
	assert.True(t, strings.HasSuffix(log, "error(s) generated.\n"), log)

	_, err = rt.CreateKernel(prog, "broken")
	status, _ = cl.StatusOf(err)
	assert.Equal(t, cl.StatusInvalidProgramExecutable, status)
}

func TestCompileDiagnostics(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"unknown type", "__kernel void k(__global widget* a) {}", "unknown type name 'widget'"},
		{"duplicate", "__kernel void k() {}\n__kernel void k() {}", "redefinition of kernel 'k'"},
		{"no body", "__kernel void k(int n);", "expected function body"},
		{"unterminated comment", "/* never closed\n__kernel void k() {}", "unterminated /* comment"},
		{"stray brace", "__kernel void k() {}}", "unexpected '}'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, log := compile(tt.source)
			assert.Contains(t, log, tt.want)
		})
	}

	kernels, log := compile("// helper\n__kernel void scale(__global float4* v, const float k, uint n) { }")
	require.Empty(t, log)
	params := kernels["scale"].params
	require.Len(t, params, 3)
	assert.Equal(t, Param{Name: "v", Type: "float4", Pointer: true, ElemSize: 16}, params[0])
	assert.Equal(t, Param{Name: "k", Type: "float", ElemSize: 4}, params[1])
	assert.Equal(t, 2, kernels["scale"].line)
}

func int32Bytes(values ...int32) []byte {
	out := make([]byte, 0, 4*len(values))
	for _, v := range values {
		out = binary.NativeEndian.AppendUint32(out, uint32(v))
	}
	return out
}

func TestIdentityRoundTrip(t *testing.T) {
	rt, dev, ctx, q := setup(t)

	prog, err := rt.CreateProgramWithSource(ctx, identitySource)
	require.NoError(t, err)
	require.NoError(t, rt.BuildProgram(prog, dev, ""))
	k, err := rt.CreateKernel(prog, "identity_copy")
	require.NoError(t, err)

	in, err := rt.CreateBuffer(ctx, cl.MemReadOnly, 16)
	require.NoError(t, err)
	out, err := rt.CreateBuffer(ctx, cl.MemReadOnly, 16)
	require.NoError(t, err)

	require.NoError(t, rt.WriteBuffer(q, in, int32Bytes(1, 2, 3, 4)))
	require.NoError(t, rt.SetKernelArgMem(k, 0, in))

	err = rt.EnqueueNDRange(q, k, 4, 2)
	status, _ := cl.StatusOf(err)
	assert.Equal(t, cl.StatusInvalidKernelArgs, status, "unbound argument must be rejected")

	require.NoError(t, rt.SetKernelArgMem(k, 1, out))
	require.NoError(t, rt.EnqueueNDRange(q, k, 4, 2))
	require.NoError(t, rt.Finish(q))

	got := make([]byte, 16)
	require.NoError(t, rt.ReadBuffer(q, out, got))
	assert.Equal(t, int32Bytes(1, 2, 3, 4), got)

	for _, m := range []cl.Mem{in, out} {
		require.NoError(t, rt.ReleaseMem(m))
	}
	require.NoError(t, rt.ReleaseKernel(k))
	require.NoError(t, rt.ReleaseProgram(prog))
	require.NoError(t, rt.ReleaseQueue(q))
	require.NoError(t, rt.ReleaseContext(ctx))
	assert.Zero(t, rt.LiveObjects())
}

func TestEnqueueValidation(t *testing.T) {
	rt, dev, ctx, q := setup(t)
	prog, err := rt.CreateProgramWithSource(ctx, "__kernel void fill(__global int* out, int value) {}")
	require.NoError(t, err)
	require.NoError(t, rt.BuildProgram(prog, dev, ""))
	k, err := rt.CreateKernel(prog, "fill")
	require.NoError(t, err)

	buf, err := rt.CreateBuffer(ctx, cl.MemReadOnly, 40)
	require.NoError(t, err)
	require.NoError(t, rt.SetKernelArgMem(k, 0, buf))

	err = rt.SetKernelArgBytes(k, 1, []byte{1, 2})
	status, _ := cl.StatusOf(err)
	assert.Equal(t, cl.StatusInvalidArgSize, status)
	err = rt.SetKernelArgMem(k, 1, buf)
	status, _ = cl.StatusOf(err)
	assert.Equal(t, cl.StatusInvalidArgValue, status)
	err = rt.SetKernelArgMem(k, 2, buf)
	status, _ = cl.StatusOf(err)
	assert.Equal(t, cl.StatusInvalidArgIndex, status)
	require.NoError(t, rt.SetKernelArgBytes(k, 1, int32Bytes(7)))

	rt.RegisterKernel("fill", func(item WorkItem, args []Arg) error {
		off := item.GlobalID * 4
		copy(args[0].Data[off:off+4], args[1].Data)
		return nil
	})

	tests := []struct {
		global, local int
		want          cl.Status
	}{
		{0, 1, cl.StatusInvalidGlobalWorkSize},
		{10, 0, cl.StatusInvalidWorkGroupSize},
		{10, 3, cl.StatusInvalidWorkGroupSize},
		{512, 512, cl.StatusInvalidWorkGroupSize},
		{10, 5, cl.StatusSuccess},
	}
	for _, tt := range tests {
		err := rt.EnqueueNDRange(q, k, tt.global, tt.local)
		if tt.want == cl.StatusSuccess {
			assert.NoError(t, err, "global=%d local=%d", tt.global, tt.local)
			continue
		}
		status, _ := cl.StatusOf(err)
		assert.Equal(t, tt.want, status, "global=%d local=%d", tt.global, tt.local)
	}

	got := make([]byte, 40)
	require.NoError(t, rt.ReadBuffer(q, buf, got))
	assert.Equal(t, int32Bytes(7, 7, 7, 7, 7, 7, 7, 7, 7, 7), got)
}

func TestKernelFailureSurfacesOnFinish(t *testing.T) {
	rt, dev, ctx, q := setup(t)
	prog, err := rt.CreateProgramWithSource(ctx, identitySource)
	require.NoError(t, err)
	require.NoError(t, rt.BuildProgram(prog, dev, ""))
	k, err := rt.CreateKernel(prog, "identity_copy")
	require.NoError(t, err)

	small, err := rt.CreateBuffer(ctx, cl.MemReadOnly, 4)
	require.NoError(t, err)
	require.NoError(t, rt.SetKernelArgMem(k, 0, small))
	require.NoError(t, rt.SetKernelArgMem(k, 1, small))
	require.NoError(t, rt.EnqueueNDRange(q, k, 8, 8))

	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	status, _ := cl.StatusOf(rt.Finish(q))
	assert.Equal(t, cl.StatusOutOfResources, status)
	assert.NoError(t, rt.Finish(q), "failed work is not retried")

	line := strings.TrimSuffix(logs.String(), "\n")
	assert.Contains(t, line, "past end of buffer")
	assert.NotContains(t, line, "\n", "kernel failure is logged on one line")
	assert.NotContains(t, line, ".go:", "no stack trace in the log")
}

func TestBuffers(t *testing.T) {
	rt := New(Topology{Platforms: []PlatformSpec{{Devices: []DeviceSpec{{GlobalMemSize: 64}}}}})
	platforms, _ := rt.PlatformIDs()
	devices, _ := rt.DeviceIDs(platforms[0])
	ctx, err := rt.CreateContext(devices[0], nil)
	require.NoError(t, err)
	q, err := rt.CreateQueue(ctx, devices[0])
	require.NoError(t, err)

	_, err = rt.CreateBuffer(ctx, cl.MemReadOnly, 0)
	status, _ := cl.StatusOf(err)
	assert.Equal(t, cl.StatusInvalidBufferSize, status)

	a, err := rt.CreateBuffer(ctx, cl.MemReadOnly, 48)
	require.NoError(t, err)
	_, err = rt.CreateBuffer(ctx, cl.MemReadOnly, 32)
	status, _ = cl.StatusOf(err)
	assert.Equal(t, cl.StatusMemObjectAllocationFailure, status)

	err = rt.WriteBuffer(q, a, make([]byte, 49))
	status, _ = cl.StatusOf(err)
	assert.Equal(t, cl.StatusInvalidValue, status)

	require.NoError(t, rt.ReleaseMem(a))
	_, err = rt.CreateBuffer(ctx, cl.MemReadOnly, 32)
	assert.NoError(t, err, "released memory is reusable")

	rt.FailNext("CreateBuffer", cl.StatusOutOfHostMemory)
	_, err = rt.CreateBuffer(ctx, cl.MemReadOnly, 1)
	status, _ = cl.StatusOf(err)
	assert.Equal(t, cl.StatusOutOfHostMemory, status)
	_, err = rt.CreateBuffer(ctx, cl.MemReadOnly, 1)
	assert.NoError(t, err, "injected failures fire once")
}

func TestContextPlatformBinding(t *testing.T) {
	rt := New(Topology{Platforms: []PlatformSpec{
		{Name: "A", Devices: []DeviceSpec{{Name: "A0"}}},
		{Name: "B", Devices: []DeviceSpec{{Name: "B0"}}},
	}})
	platforms, _ := rt.PlatformIDs()
	devices, _ := rt.DeviceIDs(platforms[0])

	_, err := rt.CreateContext(devices[0], []cl.ContextProperty{{Key: cl.ContextPlatform, Value: uintptr(platforms[1])}})
	status, _ := cl.StatusOf(err)
	assert.Equal(t, cl.StatusInvalidPlatform, status)

	_, err = rt.CreateContext(devices[0], []cl.ContextProperty{{Key: 0xdead, Value: 1}})
	status, _ = cl.StatusOf(err)
	assert.Equal(t, cl.StatusInvalidProperty, status)
}

//go:build gpu

package opencl

import (
	"testing"

	"github.com/cwbudde/clsession/internal/catalog"
	"github.com/cwbudde/clsession/internal/cl"
	"github.com/cwbudde/clsession/internal/hostbuf"
	"github.com/cwbudde/clsession/internal/session"
)

const identitySource = `
__kernel void identity_copy(__global const int* in, __global int* out) {
	int i = get_global_id(0);
	out[i] = in[i];
}
`

func newSessionOrSkip(t *testing.T) *session.Session {
	t.Helper()
	if _, err := catalog.Enumerate(New()); err != nil {
		t.Skipf("OpenCL not available: %v", err)
	}
	s, err := session.New(New())
	if err != nil {
		t.Skipf("No usable OpenCL device: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEnumerate(t *testing.T) {
	s := newSessionOrSkip(t)
	d := s.Device()
	if d.Name() == "" {
		t.Error("Expected a device name")
	}
	if d.MaxWorkGroupSize() == 0 {
		t.Error("Expected a non-zero max work-group size")
	}
	t.Logf("Selected %s (%s)", d.Name(), d.Type())
}

func TestBuildLogOnFailure(t *testing.T) {
	s := newSessionOrSkip(t)
	if err := s.CreateProgramFromSource("__kernel void broken(__global int* a { }"); err != nil {
		t.Fatalf("Failed to create program: %v", err)
	}
	err := s.BuildProgram()
	if err == nil {
		t.Fatal("Expected build failure")
	}
	if cl.BuildLog(err) == "" {
		t.Error("Expected the build error to carry the compiler log")
	}
}

func TestIdentityRoundTrip(t *testing.T) {
	s := newSessionOrSkip(t)
	if err := s.CreateProgramFromSource(identitySource); err != nil {
		t.Fatalf("Failed to create program: %v", err)
	}
	if err := s.BuildProgram(); err != nil {
		t.Fatalf("Failed to build program: %v", err)
	}
	if err := s.CreateKernel("identity_copy"); err != nil {
		t.Fatalf("Failed to create kernel: %v", err)
	}

	input := hostbuf.Bytes([]int32{1, 2, 3, 4})
	in, err := s.CreateAndWriteBuffer(len(input), input)
	if err != nil {
		t.Fatalf("Failed to create input: %v", err)
	}
	out, err := s.CreateBuffer(len(input))
	if err != nil {
		t.Fatalf("Failed to create output: %v", err)
	}
	for _, b := range []*session.Buffer{in, out} {
		if _, err := s.SetKernelArg(b); err != nil {
			t.Fatalf("Failed to bind: %v", err)
		}
	}
	if err := s.RunKernelWithSizes(4, 1); err != nil {
		t.Fatalf("Failed to run kernel: %v", err)
	}
	if err := s.FinishQueue(); err != nil {
		t.Fatalf("Failed to finish: %v", err)
	}

	got := make([]byte, len(input))
	if err := s.ReadFromBuffer(got, out); err != nil {
		t.Fatalf("Failed to read back: %v", err)
	}
	for i := range input {
		if got[i] != input[i] {
			t.Fatalf("Byte %d: expected %d, got %d", i, input[i], got[i])
		}
	}
}

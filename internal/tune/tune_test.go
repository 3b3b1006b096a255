package tune

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/cwbudde/clsession/internal/cl/sim"
	"github.com/cwbudde/clsession/internal/hostbuf"
	"github.com/cwbudde/clsession/internal/session"
)

// Sphere function: f(x) = sum(x_i^2), minimum at origin
func sphere(x []float64) float64 {
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return sum
}

func TestMayflyOnSphere(t *testing.T) {
	optimizer := NewMayfly(100, 20, 42)

	dim := 3
	lower := []float64{-10, -10, -10}
	upper := []float64{10, 10, 10}

	best, cost := optimizer.Run(sphere, lower, upper, dim)
	if len(best) != dim {
		t.Fatalf("Expected %d parameters, got %d", dim, len(best))
	}
	if cost > 0.1 {
		t.Errorf("Expected cost near 0, got %f", cost)
	}
	for i, v := range best {
		if math.Abs(v) > 1.0 {
			t.Errorf("Parameter %d = %f, expected near 0", i, v)
		}
	}
}

func TestMayflyDeterministic(t *testing.T) {
	lower := []float64{-5, -5}
	upper := []float64{5, 5}

	_, cost1 := NewMayfly(50, 20, 123).Run(sphere, lower, upper, 2)
	_, cost2 := NewMayfly(50, 20, 123).Run(sphere, lower, upper, 2)
	if cost1 != cost2 {
		t.Errorf("Non-deterministic: cost1=%f, cost2=%f", cost1, cost2)
	}
}

func TestCandidates(t *testing.T) {
	tests := []struct {
		global, maxLocal int
		want             []int
	}{
		{12, 256, []int{1, 2, 3, 4, 6, 12}},
		{12, 4, []int{1, 2, 3, 4}},
		{7, 256, []int{1, 7}},
		{64, 16, []int{1, 2, 4, 8, 16}},
		{0, 256, nil},
	}
	for _, tt := range tests {
		if got := Candidates(tt.global, tt.maxLocal); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Candidates(%d, %d) = %v, want %v", tt.global, tt.maxLocal, got, tt.want)
		}
	}
}

func TestTuneFindsSyntheticOptimum(t *testing.T) {
	// Cost grows with distance from local size 16.
	measure := func(local int) (time.Duration, error) {
		return time.Duration(10+abs(local-16)) * time.Microsecond, nil
	}

	res, err := New(20, 7).Tune(256, 128, measure)
	if err != nil {
		t.Fatalf("Tune failed: %v", err)
	}
	if res.Local != 16 {
		t.Errorf("Expected local size 16, got %d (measured %v)", res.Local, res.Measured)
	}
	if res.Cost != 10*time.Microsecond {
		t.Errorf("Expected cost 10µs, got %v", res.Cost)
	}
	for local := range res.Measured {
		if 256%local != 0 {
			t.Errorf("Measured non-divisor %d", local)
		}
	}
}

func TestTuneSingleCandidate(t *testing.T) {
	calls := 0
	res, err := (&Tuner{Optimizer: NewMayfly(5, 20, 1), Repeats: 3}).Tune(1, 256, func(local int) (time.Duration, error) {
		calls++
		return time.Duration(calls) * time.Millisecond, nil
	})
	if err != nil {
		t.Fatalf("Tune failed: %v", err)
	}
	if res.Local != 1 || calls != 3 {
		t.Errorf("Expected local 1 after 3 calls, got local %d after %d calls", res.Local, calls)
	}
	if res.Cost != time.Millisecond {
		t.Errorf("Expected fastest repeat to count, got %v", res.Cost)
	}
}

func TestTuneStopsOnError(t *testing.T) {
	boom := errors.New("device lost")
	_, err := New(10, 3).Tune(64, 64, func(local int) (time.Duration, error) {
		return 0, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected measurement error, got %v", err)
	}

	if _, err := New(10, 3).Tune(0, 64, nil); err == nil {
		t.Error("Expected error when no candidate exists")
	}
}

func TestDispatchOnSimulator(t *testing.T) {
	rt := sim.New(sim.DefaultTopology())
	s, err := session.New(rt)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	defer s.Close()

	src := `__kernel void identity_copy(__global const int* in, __global int* out) { }`
	if err := s.CreateProgramFromSource(src); err != nil {
		t.Fatalf("Failed to create program: %v", err)
	}
	if err := s.BuildProgram(); err != nil {
		t.Fatalf("Failed to build program: %v", err)
	}
	if err := s.CreateKernel("identity_copy"); err != nil {
		t.Fatalf("Failed to create kernel: %v", err)
	}

	const global = 64
	data := hostbuf.Bytes(make([]int32, global))
	for range 2 {
		buf, err := s.CreateAndWriteBuffer(len(data), data)
		if err != nil {
			t.Fatalf("Failed to create buffer: %v", err)
		}
		if _, err := s.SetKernelArg(buf); err != nil {
			t.Fatalf("Failed to bind buffer: %v", err)
		}
	}

	maxLocal := int(s.Device().MaxWorkGroupSize())
	res, err := New(5, 11).Tune(global, maxLocal, Dispatch(s, global))
	if err != nil {
		t.Fatalf("Tune failed: %v", err)
	}
	if global%res.Local != 0 {
		t.Errorf("Tuned local size %d does not divide %d", res.Local, global)
	}
	if len(res.Measured) == 0 {
		t.Error("Expected at least one measurement")
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

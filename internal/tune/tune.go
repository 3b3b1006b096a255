// Package tune searches for the local work size that dispatches a kernel
// fastest. Only divisors of the global size are tried, so every candidate is
// a valid partition.
package tune

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cwbudde/clsession/internal/session"
)

// Measure dispatches once with the given local size and reports how long it
// took.
type Measure func(local int) (time.Duration, error)

// Result is the outcome of a tuning run.
type Result struct {
	Local      int
	Cost       time.Duration
	Candidates []int
	// Measured maps each local size that was actually dispatched to its cost.
	Measured map[int]time.Duration
}

// Candidates lists the divisors of global that do not exceed maxLocal, in
// ascending order.
func Candidates(global, maxLocal int) []int {
	var out []int
	for l := 1; l <= global && l <= maxLocal; l++ {
		if global%l == 0 {
			out = append(out, l)
		}
	}
	return out
}

// Tuner drives an Optimizer over the candidate local sizes.
type Tuner struct {
	Optimizer Optimizer
	// Repeats is how many times each candidate is measured; the fastest run
	// counts. Zero means once.
	Repeats int
}

// New returns a Tuner backed by the mayfly optimizer.
func New(iterations int, seed int64) *Tuner {
	return &Tuner{Optimizer: NewMayfly(iterations, 20, seed), Repeats: 1}
}

// Tune finds the fastest local size for global. The first measurement error
// aborts the search.
func (t *Tuner) Tune(global, maxLocal int, measure Measure) (Result, error) {
	candidates := Candidates(global, maxLocal)
	if len(candidates) == 0 {
		return Result{}, fmt.Errorf("no local size divides global size %d within limit %d", global, maxLocal)
	}
	res := Result{Candidates: candidates, Measured: make(map[int]time.Duration)}

	var firstErr error
	eval := func(local int) float64 {
		if cost, ok := res.Measured[local]; ok {
			return float64(cost)
		}
		if firstErr != nil {
			return math.Inf(1)
		}
		cost, err := t.measure(local, measure)
		if err != nil {
			firstErr = fmt.Errorf("local size %d: %w", local, err)
			return math.Inf(1)
		}
		res.Measured[local] = cost
		slog.Debug("Measured local size", "local", local, "cost", cost)
		return float64(cost)
	}

	if len(candidates) == 1 {
		eval(candidates[0])
	} else {
		n := float64(len(candidates))
		t.Optimizer.Run(func(x []float64) float64 {
			return eval(candidates[index(x[0], len(candidates))])
		}, []float64{0}, []float64{n}, 1)
	}
	if firstErr != nil {
		return Result{}, firstErr
	}

	res.Cost = time.Duration(math.MaxInt64)
	for _, local := range candidates {
		if cost, ok := res.Measured[local]; ok && cost < res.Cost {
			res.Local, res.Cost = local, cost
		}
	}
	slog.Info("Tuned local work size",
		"global", global,
		"local", res.Local,
		"cost", res.Cost,
		"measured", len(res.Measured),
		"candidates", len(candidates))
	return res, nil
}

func (t *Tuner) measure(local int, measure Measure) (time.Duration, error) {
	repeats := max(t.Repeats, 1)
	best := time.Duration(math.MaxInt64)
	for i := 0; i < repeats; i++ {
		cost, err := measure(local)
		if err != nil {
			return 0, err
		}
		best = min(best, cost)
	}
	return best, nil
}

// index maps a continuous position onto a candidate slot.
func index(x float64, n int) int {
	i := int(math.Floor(x))
	return min(max(i, 0), n-1)
}

// Dispatch measures the kernel currently bound in s: one dispatch with the
// candidate local size followed by a queue finish. Arguments must already
// be bound.
func Dispatch(s *session.Session, global int) Measure {
	return func(local int) (time.Duration, error) {
		start := time.Now()
		if err := s.RunKernelWithSizes(global, local); err != nil {
			return 0, err
		}
		if err := s.FinishQueue(); err != nil {
			return 0, err
		}
		return time.Since(start), nil
	}
}

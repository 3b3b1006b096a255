package tune

import (
	"log/slog"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// Optimizer minimizes an objective over a box-bounded parameter space and
// returns the best position with its cost.
type Optimizer interface {
	Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64)
}

// minPopulation is the smallest swarm mayfly accepts.
const minPopulation = 20

// Mayfly searches with the mayfly algorithm. The same seed always visits the
// same positions, so tuning runs are reproducible.
type Mayfly struct {
	Iterations int
	Population int
	Seed       int64
}

// NewMayfly returns a mayfly optimizer. Populations below the library minimum
// are raised to it.
func NewMayfly(iterations, population int, seed int64) Optimizer {
	return &Mayfly{
		Iterations: iterations,
		Population: max(population, minPopulation),
		Seed:       seed,
	}
}

func (m *Mayfly) Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64) {
	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = eval
	config.ProblemSize = dim
	config.MaxIterations = m.Iterations
	config.NPop = m.Population
	// Bounds are scalar in mayfly; the tuner only ever searches one axis.
	config.LowerBound = lower[0]
	config.UpperBound = upper[0]
	config.Rand = rand.New(rand.NewSource(m.Seed))

	result, err := mayfly.Optimize(config)
	if err != nil {
		slog.Warn("Mayfly optimization failed, evaluating lower bound", "error", err)
		return append([]float64(nil), lower...), eval(lower)
	}
	return result.GlobalBest.Position, result.GlobalBest.Cost
}

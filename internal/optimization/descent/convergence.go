package descent

import (
	"math"

	"go.uber.org/zap"

	"github.com/copyleftdev/gdfit/internal/optimization"
	"github.com/copyleftdev/gdfit/internal/optimization/dataset"
	"github.com/copyleftdev/gdfit/internal/optimization/linear"
)

// Converged reports whether the last two recorded costs differ by less than
// tolerance. It is false until at least two costs have been recorded.
func Converged(history []float64, tolerance float64) bool {
	n := len(history)
	if n < 2 {
		return false
	}
	return math.Abs(history[n-1]-history[n-2]) < tolerance
}

// run is the private state of a single Fit call
type run struct {
	hp     optimization.Hyperparameters
	ds     *dataset.Dataset
	logger *zap.Logger

	params     linear.Params
	history    []float64
	iterations int
	hits       int
}

func newRun(hp optimization.Hyperparameters, ds *dataset.Dataset, logger *zap.Logger, capacity int) *run {
	return &run{
		hp:      hp,
		ds:      ds,
		logger:  logger,
		history: make([]float64, 0, capacity),
	}
}

// apply performs one update with g, records the global cost and reports
// whether the convergence policy fired.
func (r *run) apply(g linear.Gradient) bool {
	r.params = g.Step(r.params, r.hp.LearningRate)

	cost := linear.Cost(r.params, r.ds)
	r.history = append(r.history, cost)

	if !Converged(r.history, r.hp.Tolerance) {
		return false
	}
	r.hits++
	r.logger.Debug("convergence reached",
		zap.Int("iteration", r.iterations),
		zap.Int("step", len(r.history)),
		zap.Float64("cost", cost),
	)
	return true
}

func (r *run) result() *optimization.Result {
	status := optimization.StatusIterationLimitReached
	if r.hits > 0 {
		status = optimization.StatusConverged
	}

	res := &optimization.Result{
		Theta0:      r.params.Theta0,
		Theta1:      r.params.Theta1,
		CostHistory: r.history,
		Iterations:  r.iterations,
		Steps:       len(r.history),
		Status:      status,
	}
	if len(r.history) > 0 {
		res.FinalCost = r.history[len(r.history)-1]
	}

	r.logger.Debug("fit finished",
		zap.String("status", string(res.Status)),
		zap.Int("iterations", res.Iterations),
		zap.Int("steps", res.Steps),
		zap.Float64("theta0", res.Theta0),
		zap.Float64("theta1", res.Theta1),
		zap.Float64("final_cost", res.FinalCost),
	)
	return res
}

// historyCapacity bounds the up-front allocation for the cost history
func historyCapacity(iterations, stepsPerIteration int) int {
	const maxPrealloc = 1 << 16
	if iterations <= 0 || stepsPerIteration <= 0 {
		return 0
	}
	if iterations > maxPrealloc/stepsPerIteration {
		return maxPrealloc
	}
	return iterations * stepsPerIteration
}

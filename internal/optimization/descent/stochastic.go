package descent

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/copyleftdev/gdfit/internal/optimization"
	"github.com/copyleftdev/gdfit/internal/optimization/dataset"
	"github.com/copyleftdev/gdfit/internal/optimization/linear"
)

// StochasticOptimizer updates the parameters from one randomly drawn sample
// at a time. Each epoch makes m draws with replacement.
type StochasticOptimizer struct {
	hp     optimization.Hyperparameters
	logger *zap.Logger
	source IndexSource
}

// NewStochastic creates a stochastic gradient descent optimizer. Without
// WithRand every Fit call seeds a fresh generator from hp.RandomSeed, or from
// the clock when the seed is 0.
func NewStochastic(hp optimization.Hyperparameters, opts ...Option) *StochasticOptimizer {
	o := buildOptions(opts)
	return &StochasticOptimizer{
		hp:     hp,
		logger: o.logger.With(zap.String("method", string(MethodStochastic))),
		source: o.source,
	}
}

// Method returns MethodStochastic
func (s *StochasticOptimizer) Method() Method {
	return MethodStochastic
}

// Hyperparameters returns the optimizer configuration
func (s *StochasticOptimizer) Hyperparameters() optimization.Hyperparameters {
	return s.hp
}

// Fit runs stochastic gradient descent. A convergence hit ends the current
// epoch only, unless PropagateConvergence is set.
func (s *StochasticOptimizer) Fit(ctx context.Context, ds *dataset.Dataset) (*optimization.Result, error) {
	if err := validateInput(ds, s.hp, MethodStochastic); err != nil {
		return nil, err
	}

	source := s.source
	if source == nil {
		seed := s.hp.RandomSeed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		source = rand.New(rand.NewSource(seed))
	}

	m := ds.Len()
	s.logger.Debug("fit started",
		zap.Int("samples", m),
		zap.Float64("learning_rate", s.hp.LearningRate),
		zap.Int("max_iterations", s.hp.MaxIterations),
		zap.Float64("tolerance", s.hp.Tolerance),
	)

	r := newRun(s.hp, ds, s.logger, historyCapacity(s.hp.MaxIterations, m))

	for i := 0; i < s.hp.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.iterations++

		converged := false
		for j := 0; j < m; j++ {
			k := source.Intn(m)
			xs, ys := ds.Chunk(k, k+1)
			if r.apply(linear.Accumulate(r.params, xs, ys)) {
				converged = true
				break
			}
		}

		if converged && s.hp.PropagateConvergence {
			break
		}
	}

	return r.result(), nil
}

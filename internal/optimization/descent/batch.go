package descent

import (
	"context"

	"go.uber.org/zap"

	"github.com/copyleftdev/gdfit/internal/optimization"
	"github.com/copyleftdev/gdfit/internal/optimization/dataset"
	"github.com/copyleftdev/gdfit/internal/optimization/linear"
)

// BatchOptimizer computes the exact gradient over the whole dataset on every
// iteration. It is deterministic.
type BatchOptimizer struct {
	hp     optimization.Hyperparameters
	logger *zap.Logger
}

// NewBatch creates a batch gradient descent optimizer
func NewBatch(hp optimization.Hyperparameters, opts ...Option) *BatchOptimizer {
	o := buildOptions(opts)
	return &BatchOptimizer{
		hp:     hp,
		logger: o.logger.With(zap.String("method", string(MethodBatch))),
	}
}

// Method returns MethodBatch
func (b *BatchOptimizer) Method() Method {
	return MethodBatch
}

// Hyperparameters returns the optimizer configuration
func (b *BatchOptimizer) Hyperparameters() optimization.Hyperparameters {
	return b.hp
}

// Fit runs batch gradient descent. A convergence hit ends the run.
func (b *BatchOptimizer) Fit(ctx context.Context, ds *dataset.Dataset) (*optimization.Result, error) {
	if err := validateInput(ds, b.hp, MethodBatch); err != nil {
		return nil, err
	}

	b.logger.Debug("fit started",
		zap.Int("samples", ds.Len()),
		zap.Float64("learning_rate", b.hp.LearningRate),
		zap.Int("max_iterations", b.hp.MaxIterations),
		zap.Float64("tolerance", b.hp.Tolerance),
	)

	r := newRun(b.hp, ds, b.logger, historyCapacity(b.hp.MaxIterations, 1))
	xs, ys := ds.X(), ds.Y()

	for i := 0; i < b.hp.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.iterations++

		if r.apply(linear.Accumulate(r.params, xs, ys)) {
			break
		}
	}

	return r.result(), nil
}

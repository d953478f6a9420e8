package descent

import (
	"context"

	"go.uber.org/zap"

	"github.com/copyleftdev/gdfit/internal/optimization"
	"github.com/copyleftdev/gdfit/internal/optimization/dataset"
	"github.com/copyleftdev/gdfit/internal/optimization/linear"
)

// MiniBatchOptimizer walks the dataset in contiguous chunks of BatchSize,
// updating the parameters once per chunk. The last chunk of an epoch may be
// shorter.
type MiniBatchOptimizer struct {
	hp     optimization.Hyperparameters
	logger *zap.Logger
}

// NewMiniBatch creates a mini-batch gradient descent optimizer
func NewMiniBatch(hp optimization.Hyperparameters, opts ...Option) *MiniBatchOptimizer {
	o := buildOptions(opts)
	return &MiniBatchOptimizer{
		hp:     hp,
		logger: o.logger.With(zap.String("method", string(MethodMiniBatch))),
	}
}

// Method returns MethodMiniBatch
func (mb *MiniBatchOptimizer) Method() Method {
	return MethodMiniBatch
}

// Hyperparameters returns the optimizer configuration
func (mb *MiniBatchOptimizer) Hyperparameters() optimization.Hyperparameters {
	return mb.hp
}

// Fit runs mini-batch gradient descent. A convergence hit ends the current
// epoch only, unless PropagateConvergence is set.
func (mb *MiniBatchOptimizer) Fit(ctx context.Context, ds *dataset.Dataset) (*optimization.Result, error) {
	if err := validateInput(ds, mb.hp, MethodMiniBatch); err != nil {
		return nil, err
	}

	m := ds.Len()
	size := mb.hp.BatchSize
	chunks := (m + size - 1) / size

	mb.logger.Debug("fit started",
		zap.Int("samples", m),
		zap.Int("batch_size", size),
		zap.Int("chunks", chunks),
		zap.Float64("learning_rate", mb.hp.LearningRate),
		zap.Int("max_iterations", mb.hp.MaxIterations),
		zap.Float64("tolerance", mb.hp.Tolerance),
	)

	r := newRun(mb.hp, ds, mb.logger, historyCapacity(mb.hp.MaxIterations, chunks))

	for i := 0; i < mb.hp.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.iterations++

		converged := false
		for j := 0; j < m; j += size {
			end := j + size
			if end > m {
				end = m
			}
			xs, ys := ds.Chunk(j, end)
			if r.apply(linear.Accumulate(r.params, xs, ys)) {
				converged = true
				break
			}
		}

		if converged && mb.hp.PropagateConvergence {
			break
		}
	}

	return r.result(), nil
}

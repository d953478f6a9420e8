package optimization

import "math"

const (
	DefaultLearningRate  = 0.01
	DefaultMaxIterations = 1000
	DefaultTolerance     = 1e-5
	DefaultBatchSize     = 32
)

// Hyperparameters configures a gradient descent run. Fields are named so the
// three optimizers can be invoked interchangeably with the same value.
type Hyperparameters struct {
	// Step size applied to each gradient update
	LearningRate float64 `json:"learning_rate"`

	// Bound on outer iterations (epochs)
	MaxIterations int `json:"max_iterations"`

	// Minimum cost delta between consecutive steps to keep iterating
	Tolerance float64 `json:"tolerance"`

	// Chunk length for mini-batch descent; ignored by the other methods
	BatchSize int `json:"batch_size"`

	// Seed for stochastic sampling; 0 seeds from the clock
	RandomSeed int64 `json:"random_seed"`

	// When set, a convergence hit inside an epoch also stops the outer loop
	// for stochastic and mini-batch descent. Batch descent always stops.
	PropagateConvergence bool `json:"propagate_convergence"`
}

// DefaultHyperparameters returns the default configuration
func DefaultHyperparameters() Hyperparameters {
	return Hyperparameters{
		LearningRate:  DefaultLearningRate,
		MaxIterations: DefaultMaxIterations,
		Tolerance:     DefaultTolerance,
		BatchSize:     DefaultBatchSize,
	}
}

// Validate checks the hyperparameters against a dataset of m samples.
// The batch size is only checked when checkBatch is set.
func (hp Hyperparameters) Validate(m int, checkBatch bool) error {
	const op = "validate"

	if math.IsNaN(hp.LearningRate) || math.IsInf(hp.LearningRate, 0) || hp.LearningRate <= 0 {
		return invalidConfig(op, "learning_rate must be finite and > 0, got %v", hp.LearningRate)
	}
	if hp.MaxIterations <= 0 {
		return invalidConfig(op, "max_iterations must be > 0, got %d", hp.MaxIterations)
	}
	if math.IsNaN(hp.Tolerance) || hp.Tolerance < 0 {
		return invalidConfig(op, "tolerance must be >= 0, got %v", hp.Tolerance)
	}
	if checkBatch && (hp.BatchSize < 1 || hp.BatchSize > m) {
		return invalidConfig(op, "batch_size must be in [1, %d], got %d", m, hp.BatchSize)
	}
	return nil
}

func invalidConfig(op, format string, args ...interface{}) *Error {
	return WrapErrorf(ErrInvalidConfig, format, args...).
		WithOperation(op).
		WithComponent("hyperparameters")
}

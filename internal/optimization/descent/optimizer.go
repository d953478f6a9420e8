// Package descent implements batch, stochastic and mini-batch gradient descent
// for the univariate linear model.
package descent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/copyleftdev/gdfit/internal/optimization"
	"github.com/copyleftdev/gdfit/internal/optimization/dataset"
)

// Optimizer defines the interface shared by the descent strategies
type Optimizer interface {
	// Fit runs the optimization over ds starting from zero parameters
	Fit(ctx context.Context, ds *dataset.Dataset) (*optimization.Result, error)

	// Method names the traversal strategy
	Method() Method

	// Hyperparameters returns the configuration the optimizer runs with
	Hyperparameters() optimization.Hyperparameters
}

// Method identifies a descent strategy
type Method string

const (
	MethodBatch      Method = "batch"
	MethodStochastic Method = "stochastic"
	MethodMiniBatch  Method = "minibatch"
)

// Methods lists every supported strategy
func Methods() []Method {
	return []Method{MethodBatch, MethodStochastic, MethodMiniBatch}
}

// ParseMethod converts a user supplied name to a Method
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "batch", "gd":
		return MethodBatch, nil
	case "stochastic", "sgd":
		return MethodStochastic, nil
	case "minibatch", "mini-batch", "mini_batch":
		return MethodMiniBatch, nil
	default:
		return "", optimization.WrapErrorf(optimization.ErrInvalidConfig, "unknown method %q", s).
			WithOperation("parse_method").
			WithComponent("descent")
	}
}

// New creates the optimizer for method
func New(method Method, hp optimization.Hyperparameters, opts ...Option) (Optimizer, error) {
	switch method {
	case MethodBatch:
		return NewBatch(hp, opts...), nil
	case MethodStochastic:
		return NewStochastic(hp, opts...), nil
	case MethodMiniBatch:
		return NewMiniBatch(hp, opts...), nil
	default:
		return nil, optimization.NewErrorf("unknown method %q", string(method)).
			WithOperation("new").
			WithComponent("descent")
	}
}

// IndexSource draws sample indices in [0, n). *rand.Rand satisfies it.
type IndexSource interface {
	Intn(n int) int
}

type options struct {
	logger *zap.Logger
	source IndexSource
}

// Option configures an optimizer
type Option func(*options)

// WithLogger sets the logger used for debug tracing
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRand sets the random source used by stochastic descent. The source is
// consumed across Fit calls and must not be shared between concurrent runs.
func WithRand(source IndexSource) Option {
	return func(o *options) {
		o.source = source
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (m Method) String() string {
	return string(m)
}

func validateInput(ds *dataset.Dataset, hp optimization.Hyperparameters, method Method) error {
	if ds == nil || ds.Len() == 0 {
		return optimization.WrapError(optimization.ErrInvalidData, "dataset is empty").
			WithOperation("fit").
			WithComponent(string(method))
	}
	if err := hp.Validate(ds.Len(), method == MethodMiniBatch); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

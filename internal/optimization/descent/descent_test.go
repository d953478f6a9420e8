package descent

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/copyleftdev/gdfit/internal/optimization"
	"github.com/copyleftdev/gdfit/internal/optimization/dataset"
	"github.com/copyleftdev/gdfit/internal/optimization/linear"
)

func allOptimizers(hp optimization.Hyperparameters) []Optimizer {
	return []Optimizer{
		NewBatch(hp),
		NewStochastic(hp),
		NewMiniBatch(hp),
	}
}

func TestHistoryNonEmpty(t *testing.T) {
	ds, err := dataset.New([]float64{2}, []float64{3})
	require.NoError(t, err)

	for _, opt := range allOptimizers(hyperparameters(0.01, 1, 1e-5, 1)) {
		t.Run(opt.Method().String(), func(t *testing.T) {
			res, err := opt.Fit(context.Background(), ds)
			require.NoError(t, err)
			require.NotEmpty(t, res.CostHistory)
			assert.Equal(t, res.CostHistory[len(res.CostHistory)-1], res.FinalCost)
			assert.Equal(t, len(res.CostHistory), res.Steps)
			assert.Equal(t, 1, res.Iterations)
		})
	}
}

func TestBatchFitsPerfectLine(t *testing.T) {
	ds := perfectLine(t)

	res, err := NewBatch(hyperparameters(0.1, 5000, 1e-9, 32)).Fit(context.Background(), ds)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, res.Theta0, 0.05)
	assert.InDelta(t, 2.0, res.Theta1, 0.05)
	assert.InDelta(t, 0.0, res.FinalCost, 1e-6)
	assert.True(t, res.Converged())
	assert.Less(t, res.Iterations, 5000)
	assert.Equal(t, res.Iterations, len(res.CostHistory))
}

func TestBatchFirstStep(t *testing.T) {
	ds := perfectLine(t)

	res, err := NewBatch(hyperparameters(0.1, 1, 0, 32)).Fit(context.Background(), ds)
	require.NoError(t, err)

	// gradient at zero: Σerror = -24, Σerror·x = -70, m = 4
	assert.InDelta(t, 0.6, res.Theta0, 1e-12)
	assert.InDelta(t, 1.75, res.Theta1, 1e-12)
	assert.InDelta(t, linear.Cost(linear.Params{Theta0: 0.6, Theta1: 1.75}, ds), res.FinalCost, 1e-12)
	assert.Equal(t, optimization.StatusIterationLimitReached, res.Status)
}

func TestBatchDeterministic(t *testing.T) {
	ds := generateLinearDataset(t, rand.New(rand.NewSource(1)), 40, -0.5, 3, 0.1)
	opt := NewBatch(hyperparameters(0.3, 200, 1e-7, 32))

	first, err := opt.Fit(context.Background(), ds)
	require.NoError(t, err)
	second, err := opt.Fit(context.Background(), ds)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestBatchStopsEarlyWithLargeTolerance(t *testing.T) {
	ds := perfectLine(t)

	res, err := NewBatch(hyperparameters(0.01, 1000, 1e3, 32)).Fit(context.Background(), ds)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Iterations)
	assert.Len(t, res.CostHistory, 2)
	assert.Equal(t, optimization.StatusConverged, res.Status)
}

func TestBatchIterationLimit(t *testing.T) {
	ds := perfectLine(t)

	res, err := NewBatch(hyperparameters(0.001, 10, 0, 32)).Fit(context.Background(), ds)
	require.NoError(t, err)

	assert.Equal(t, 10, res.Iterations)
	assert.Len(t, res.CostHistory, 10)
	assert.Equal(t, optimization.StatusIterationLimitReached, res.Status)
	assert.False(t, res.Converged())
}

func TestStochasticSeededReproducibility(t *testing.T) {
	ds := generateLinearDataset(t, rand.New(rand.NewSource(2)), 25, 1, -2, 0.05)

	hp := hyperparameters(0.05, 20, 1e-6, 32)
	hp.RandomSeed = 99

	first, err := NewStochastic(hp).Fit(context.Background(), ds)
	require.NoError(t, err)
	second, err := NewStochastic(hp).Fit(context.Background(), ds)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	injectedA, err := NewStochastic(hp, WithRand(rand.New(rand.NewSource(7)))).Fit(context.Background(), ds)
	require.NoError(t, err)
	injectedB, err := NewStochastic(hp, WithRand(rand.New(rand.NewSource(7)))).Fit(context.Background(), ds)
	require.NoError(t, err)
	assert.Equal(t, injectedA, injectedB)

	hp.RandomSeed = 100
	other, err := NewStochastic(hp).Fit(context.Background(), ds)
	require.NoError(t, err)
	assert.NotEqual(t, first.CostHistory, other.CostHistory)
}

func TestStochasticStepsPerEpoch(t *testing.T) {
	ds := generateLinearDataset(t, rand.New(rand.NewSource(3)), 10, 0, 1, 0)
	hp := hyperparameters(0.01, 3, 0, 32)

	res, err := NewStochastic(hp, WithRand(rand.New(rand.NewSource(1)))).Fit(context.Background(), ds)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Iterations)
	assert.Len(t, res.CostHistory, 30)
}

func TestStochasticConvergenceBreaksEpochOnly(t *testing.T) {
	ds := perfectLine(t)
	hp := hyperparameters(0.01, 10, 1e6, 32)

	res, err := NewStochastic(hp, WithRand(&sequentialSource{})).Fit(context.Background(), ds)
	require.NoError(t, err)

	// epoch 0 converges on its second step, every later epoch on its first
	assert.Equal(t, 10, res.Iterations)
	assert.Len(t, res.CostHistory, 2+9)
	assert.True(t, res.Converged())

	hp.PropagateConvergence = true
	res, err = NewStochastic(hp, WithRand(&sequentialSource{})).Fit(context.Background(), ds)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Iterations)
	assert.Len(t, res.CostHistory, 2)
}

func TestMiniBatchChunking(t *testing.T) {
	ds := generateLinearDataset(t, rand.New(rand.NewSource(4)), 10, 0, 1, 0)

	tests := []struct {
		batchSize int
		chunks    int
	}{
		{batchSize: 1, chunks: 10},
		{batchSize: 3, chunks: 4},
		{batchSize: 5, chunks: 2},
		{batchSize: 10, chunks: 1},
	}

	for _, tt := range tests {
		res, err := NewMiniBatch(hyperparameters(0.01, 2, 0, tt.batchSize)).Fit(context.Background(), ds)
		require.NoError(t, err)
		assert.Len(t, res.CostHistory, 2*tt.chunks, "batch size %d", tt.batchSize)
	}
}

func TestMiniBatchShortLastChunk(t *testing.T) {
	ds, err := dataset.New([]float64{1, 2, 3}, []float64{2, 4, 9})
	require.NoError(t, err)

	res, err := NewMiniBatch(hyperparameters(0.1, 1, 0, 2)).Fit(context.Background(), ds)
	require.NoError(t, err)

	p := linear.Params{}
	x, y := ds.Chunk(0, 2)
	p = linear.Accumulate(p, x, y).Step(p, 0.1)
	x, y = ds.Chunk(2, 3)
	p = linear.Accumulate(p, x, y).Step(p, 0.1)

	assert.InDelta(t, p.Theta0, res.Theta0, 1e-15)
	assert.InDelta(t, p.Theta1, res.Theta1, 1e-15)
}

func TestMiniBatchFullBatchMatchesBatch(t *testing.T) {
	ds := generateLinearDataset(t, rand.New(rand.NewSource(5)), 17, 2, 0.5, 0.2)

	hp := hyperparameters(0.2, 60, 0, ds.Len())
	batch, err := NewBatch(hp).Fit(context.Background(), ds)
	require.NoError(t, err)
	mini, err := NewMiniBatch(hp).Fit(context.Background(), ds)
	require.NoError(t, err)

	assertFloat64SlicesEqual(t, mini.CostHistory, batch.CostHistory, 1e-12)
	assert.InDelta(t, batch.Theta0, mini.Theta0, 1e-12)
	assert.InDelta(t, batch.Theta1, mini.Theta1, 1e-12)

	// with a tolerance batch stops while mini-batch keeps going, but the
	// shared prefix is identical
	hp.MaxIterations = 2000
	hp.Tolerance = 1e-4
	batch, err = NewBatch(hp).Fit(context.Background(), ds)
	require.NoError(t, err)
	mini, err = NewMiniBatch(hp).Fit(context.Background(), ds)
	require.NoError(t, err)
	require.True(t, batch.Converged())
	require.GreaterOrEqual(t, len(mini.CostHistory), len(batch.CostHistory))
	assertFloat64SlicesEqual(t, mini.CostHistory[:len(batch.CostHistory)], batch.CostHistory, 1e-12)
}

func TestMiniBatchSingleSampleMatchesSequentialStochastic(t *testing.T) {
	ds := generateLinearDataset(t, rand.New(rand.NewSource(6)), 12, -1, 4, 0.1)

	hp := hyperparameters(0.05, 15, 0, 1)
	mini, err := NewMiniBatch(hp).Fit(context.Background(), ds)
	require.NoError(t, err)
	sgd, err := NewStochastic(hp, WithRand(&sequentialSource{})).Fit(context.Background(), ds)
	require.NoError(t, err)

	assertFloat64SlicesEqual(t, sgd.CostHistory, mini.CostHistory, 1e-12)
	assert.InDelta(t, mini.Theta0, sgd.Theta0, 1e-12)
	assert.InDelta(t, mini.Theta1, sgd.Theta1, 1e-12)
}

func TestInvalidConfigurationRejected(t *testing.T) {
	ds := perfectLine(t)

	tests := []struct {
		name string
		hp   optimization.Hyperparameters
	}{
		{name: "zero learning rate", hp: hyperparameters(0, 10, 1e-5, 2)},
		{name: "negative learning rate", hp: hyperparameters(-1, 10, 1e-5, 2)},
		{name: "zero iterations", hp: hyperparameters(0.1, 0, 1e-5, 2)},
		{name: "negative tolerance", hp: hyperparameters(0.1, 10, -1, 2)},
	}

	for _, tt := range tests {
		for _, opt := range allOptimizers(tt.hp) {
			t.Run(tt.name+"/"+opt.Method().String(), func(t *testing.T) {
				res, err := opt.Fit(context.Background(), ds)
				require.Error(t, err)
				assert.Nil(t, res)
				assert.True(t, optimization.IsConfigError(err))
			})
		}
	}
}

func TestMiniBatchBatchSizeValidation(t *testing.T) {
	ds := perfectLine(t)

	for _, size := range []int{0, -1, 5} {
		res, err := NewMiniBatch(hyperparameters(0.1, 10, 1e-5, size)).Fit(context.Background(), ds)
		require.Error(t, err, "batch size %d", size)
		assert.Nil(t, res)
		assert.True(t, optimization.IsConfigError(err))
	}

	// batch size does not apply to the other methods
	_, err := NewBatch(hyperparameters(0.1, 10, 1e-5, 5)).Fit(context.Background(), ds)
	assert.NoError(t, err)
}

func TestInvalidDataRejected(t *testing.T) {
	_, err := dataset.New([]float64{1, 2}, []float64{1})
	require.Error(t, err)
	assert.True(t, optimization.IsDataError(err))

	for _, opt := range allOptimizers(optimization.DefaultHyperparameters()) {
		for name, ds := range map[string]*dataset.Dataset{"nil": nil, "zero value": {}} {
			res, err := opt.Fit(context.Background(), ds)
			require.Error(t, err, "%s %s", opt.Method(), name)
			assert.Nil(t, res)
			assert.True(t, optimization.IsDataError(err), "%s %s: %v", opt.Method(), name, err)
		}
	}
}

func TestRejectedCallLeavesNextRunAtZero(t *testing.T) {
	ds := perfectLine(t)
	source := &sequentialSource{}
	opt := NewStochastic(hyperparameters(0, 1, 0, 1), WithRand(source))

	_, err := opt.Fit(context.Background(), ds)
	require.Error(t, err)
	assert.Equal(t, 0, source.next, "no sample may be drawn before validation")

	valid := NewStochastic(hyperparameters(0.1, 1, 0, 1), WithRand(source))
	res, err := valid.Fit(context.Background(), ds)
	require.NoError(t, err)

	// first draw is sample 0 (x=1, y=3) from zero parameters
	first := linear.Params{Theta0: 0.3, Theta1: 0.3}
	assert.InDelta(t, linear.Cost(first, ds), res.CostHistory[0], 1e-12)
}

func TestDivergenceIsNotAnError(t *testing.T) {
	ds := perfectLine(t)

	res, err := NewBatch(hyperparameters(5, 50, 1e-5, 32)).Fit(context.Background(), ds)
	require.NoError(t, err)

	assert.Equal(t, 50, res.Iterations)
	assert.True(t, res.FinalCost > res.CostHistory[0] || math.IsNaN(res.FinalCost) || math.IsInf(res.FinalCost, 1))
}

func TestFitCancelled(t *testing.T) {
	ds := perfectLine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, opt := range allOptimizers(hyperparameters(0.01, 10, 0, 2)) {
		res, err := opt.Fit(ctx, ds)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Nil(t, res)
	}
}

func TestDebugLogging(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ds := perfectLine(t)

	_, err := NewBatch(hyperparameters(0.01, 1000, 1e3, 32), WithLogger(zap.New(core))).Fit(context.Background(), ds)
	require.NoError(t, err)

	assert.Equal(t, 1, logs.FilterMessage("fit started").Len())
	assert.Equal(t, 1, logs.FilterMessage("convergence reached").Len())
	finished := logs.FilterMessage("fit finished").All()
	require.Len(t, finished, 1)
	assert.Equal(t, "batch", finished[0].ContextMap()["method"])
	assert.Equal(t, "converged", finished[0].ContextMap()["status"])
}

func TestParseMethod(t *testing.T) {
	tests := []struct {
		in      string
		want    Method
		wantErr bool
	}{
		{in: "batch", want: MethodBatch},
		{in: " Stochastic ", want: MethodStochastic},
		{in: "sgd", want: MethodStochastic},
		{in: "mini-batch", want: MethodMiniBatch},
		{in: "minibatch", want: MethodMiniBatch},
		{in: "adam", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMethod(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew(t *testing.T) {
	hp := optimization.DefaultHyperparameters()
	for _, m := range Methods() {
		opt, err := New(m, hp)
		require.NoError(t, err)
		assert.Equal(t, m, opt.Method())
		assert.Equal(t, hp, opt.Hyperparameters())
	}

	_, err := New(Method("newton"), hp)
	assert.Error(t, err)
}

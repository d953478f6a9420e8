package descent

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/gdfit/internal/optimization"
	"github.com/copyleftdev/gdfit/internal/optimization/dataset"
)

// assertFloat64SlicesEqual checks if two float64 slices are approximately equal
func assertFloat64SlicesEqual(t *testing.T, got, want []float64, tol float64) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}

	for i := range got {
		if math.Abs(got[i]-want[i]) > tol {
			t.Fatalf("at index %d: got %v, want %v (tolerance %v)", i, got[i], want[i], tol)
		}
	}
}

// generateLinearDataset samples y = theta0 + theta1*x + noise for x in [0, 1)
func generateLinearDataset(t *testing.T, rng *rand.Rand, n int, theta0, theta1, noise float64) *dataset.Dataset {
	t.Helper()

	x := make([]float64, n)
	y := make([]float64, n)
	for i := range x {
		x[i] = rng.Float64()
		y[i] = theta0 + theta1*x[i] + noise*rng.NormFloat64()
	}
	ds, err := dataset.New(x, y)
	require.NoError(t, err)
	return ds
}

// perfectLine is y = 1 + 2x on four points
func perfectLine(t *testing.T) *dataset.Dataset {
	t.Helper()

	ds, err := dataset.New([]float64{1, 2, 3, 4}, []float64{3, 5, 7, 9})
	require.NoError(t, err)
	return ds
}

// sequentialSource yields 0, 1, 2, ... modulo n
type sequentialSource struct {
	next int
}

func (s *sequentialSource) Intn(n int) int {
	i := s.next % n
	s.next++
	return i
}

func hyperparameters(lr float64, iterations int, tolerance float64, batchSize int) optimization.Hyperparameters {
	hp := optimization.DefaultHyperparameters()
	hp.LearningRate = lr
	hp.MaxIterations = iterations
	hp.Tolerance = tolerance
	hp.BatchSize = batchSize
	return hp
}

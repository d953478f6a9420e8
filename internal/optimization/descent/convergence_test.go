package descent

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConverged(t *testing.T) {
	tests := []struct {
		name      string
		history   []float64
		tolerance float64
		want      bool
	}{
		{name: "empty", history: nil, tolerance: 1, want: false},
		{name: "first step never converges", history: []float64{0}, tolerance: math.Inf(1), want: false},
		{name: "small delta", history: []float64{5, 1.0, 1.0 - 1e-7}, tolerance: 1e-5, want: true},
		{name: "large delta", history: []float64{1.0, 0.5}, tolerance: 1e-5, want: false},
		{name: "increasing cost", history: []float64{1.0, 1.0 + 1e-9}, tolerance: 1e-5, want: true},
		{name: "delta equal to tolerance", history: []float64{1.0, 0.5}, tolerance: 0.5, want: false},
		{name: "zero tolerance", history: []float64{1.0, 1.0}, tolerance: 0, want: false},
		{name: "NaN cost", history: []float64{1.0, math.NaN()}, tolerance: 1, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Converged(tt.history, tt.tolerance))
		})
	}
}

func TestHistoryCapacity(t *testing.T) {
	assert.Equal(t, 1000, historyCapacity(1000, 1))
	assert.Equal(t, 4000, historyCapacity(1000, 4))
	assert.Equal(t, 1<<16, historyCapacity(1000, 1000))
	assert.Equal(t, 1<<16, historyCapacity(1, 1<<20))
	assert.Equal(t, 0, historyCapacity(1000, 0))
	assert.Equal(t, 0, historyCapacity(0, 4))
}

// Package dataset holds the read-only numeric sequences the optimizers train on.
package dataset

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Series is a read-only sequence of float64 values. Slicing a Series yields a
// view over the same storage; no method mutates it.
type Series struct {
	values []float64
}

// NewSeries copies values into a new Series
func NewSeries(values []float64) Series {
	return Series{values: append([]float64(nil), values...)}
}

// Len returns the number of values
func (s Series) Len() int {
	return len(s.values)
}

// At returns the i-th value
func (s Series) At(i int) float64 {
	return s.values[i]
}

// Values returns a copy of the underlying values
func (s Series) Values() []float64 {
	return append([]float64(nil), s.values...)
}

// Slice returns the view [i, j)
func (s Series) Slice(i, j int) Series {
	return Series{values: s.values[i:j:j]}
}

// Map applies fn elementwise and returns the results in a new slice
func (s Series) Map(fn func(float64) float64) []float64 {
	out := make([]float64, len(s.values))
	for i, v := range s.values {
		out[i] = fn(v)
	}
	return out
}

// Reduce folds fn over the values in index order starting from init
func (s Series) Reduce(fn func(acc, v float64) float64, init float64) float64 {
	acc := init
	for _, v := range s.values {
		acc = fn(acc, v)
	}
	return acc
}

// Sum returns the sum of the values
func (s Series) Sum() float64 {
	return floats.Sum(s.values)
}

// Min returns the smallest value, or NaN for an empty series
func (s Series) Min() float64 {
	if len(s.values) == 0 {
		return math.NaN()
	}
	return floats.Min(s.values)
}

// Max returns the largest value, or NaN for an empty series
func (s Series) Max() float64 {
	if len(s.values) == 0 {
		return math.NaN()
	}
	return floats.Max(s.values)
}

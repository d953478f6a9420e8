package dataset

import (
	"github.com/copyleftdev/gdfit/internal/optimization"
)

// Dataset pairs inputs X with targets Y. Both series have the same length
// m > 0. A Dataset is never modified after construction, so it can be shared
// across concurrent optimizer runs.
type Dataset struct {
	x Series
	y Series
}

// New validates and copies x and y into a Dataset
func New(x, y []float64) (*Dataset, error) {
	if len(x) != len(y) {
		return nil, invalidData("x has %d values, y has %d", len(x), len(y))
	}
	if len(x) == 0 {
		return nil, invalidData("dataset is empty")
	}
	return &Dataset{
		x: NewSeries(x),
		y: NewSeries(y),
	}, nil
}

// Len returns m, the number of samples
func (d *Dataset) Len() int {
	return d.x.Len()
}

// X returns the inputs
func (d *Dataset) X() Series {
	return d.x
}

// Y returns the targets
func (d *Dataset) Y() Series {
	return d.y
}

// Sample returns the i-th (x, y) pair
func (d *Dataset) Sample(i int) (float64, float64) {
	return d.x.At(i), d.y.At(i)
}

// Chunk returns views of X and Y over [i, j)
func (d *Dataset) Chunk(i, j int) (Series, Series) {
	return d.x.Slice(i, j), d.y.Slice(i, j)
}

func invalidData(format string, args ...interface{}) *optimization.Error {
	return optimization.WrapErrorf(optimization.ErrInvalidData, format, args...).
		WithOperation("new").
		WithComponent("dataset")
}

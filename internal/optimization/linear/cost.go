package linear

import "github.com/copyleftdev/gdfit/internal/optimization/dataset"

// Cost returns the halved mean squared error of p over the whole dataset:
// (1/(2m)) Σ (h(xᵢ) − yᵢ)². Terms are summed in index order, so equal inputs
// always give bit-identical results.
func Cost(p Params, ds *dataset.Dataset) float64 {
	m := ds.Len()
	sum := 0.0
	for i := 0; i < m; i++ {
		x, y := ds.Sample(i)
		e := Hypothesis(p, x) - y
		sum += e * e
	}
	return sum / (2 * float64(m))
}

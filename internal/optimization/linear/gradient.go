package linear

import "github.com/copyleftdev/gdfit/internal/optimization/dataset"

// Gradient holds the summed error terms of a set of samples. Dividing by N
// gives the gradient of the cost restricted to those samples.
type Gradient struct {
	// Σ error
	Intercept float64
	// Σ error·x
	Slope float64
	// Number of samples summed
	N int
}

// Accumulate sums the per-sample error and error·x of p over xs and ys
func Accumulate(p Params, xs, ys dataset.Series) Gradient {
	g := Gradient{N: xs.Len()}
	for i := 0; i < xs.Len(); i++ {
		x := xs.At(i)
		e := Hypothesis(p, x) - ys.At(i)
		g.Intercept += e
		g.Slope += e * x
	}
	return g
}

// Step returns p moved against the averaged gradient by learningRate
func (g Gradient) Step(p Params, learningRate float64) Params {
	n := float64(g.N)
	return Params{
		Theta0: p.Theta0 - learningRate*(g.Intercept/n),
		Theta1: p.Theta1 - learningRate*(g.Slope/n),
	}
}

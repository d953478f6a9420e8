// Package linear implements the univariate linear model y = θ₀ + θ₁x, its
// cost function and the gradient shared by all descent strategies.
package linear

import (
	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/gdfit/internal/optimization/dataset"
)

// Params are the model's intercept and slope
type Params struct {
	Theta0 float64 `json:"theta0"`
	Theta1 float64 `json:"theta1"`
}

// Hypothesis returns θ₀ + θ₁x. The product is rounded before the sum so the
// result matches Predict on platforms with fused multiply-add.
func Hypothesis(p Params, x float64) float64 {
	return p.Theta0 + float64(p.Theta1*x)
}

// Predict evaluates the hypothesis elementwise over xs
func Predict(p Params, xs []float64) []float64 {
	out := make([]float64, len(xs))
	floats.ScaleTo(out, p.Theta1, xs)
	floats.AddConst(p.Theta0, out)
	return out
}

// PredictSeries evaluates the hypothesis elementwise over a Series
func PredictSeries(p Params, xs dataset.Series) []float64 {
	return xs.Map(func(x float64) float64 {
		return Hypothesis(p, x)
	})
}

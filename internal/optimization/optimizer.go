package optimization

// Status is the terminal state of an optimization run
type Status string

const (
	// StatusConverged means the convergence policy fired at least once
	StatusConverged Status = "converged"
	// StatusIterationLimitReached means the outer loop ran to MaxIterations
	// without the convergence policy firing
	StatusIterationLimitReached Status = "iteration_limit_reached"
)

// Result contains the result of an optimization run
type Result struct {
	// Fitted intercept
	Theta0 float64
	// Fitted slope
	Theta1 float64

	// FinalCost is the last value appended to CostHistory
	FinalCost float64

	// One global cost value per update step
	CostHistory []float64

	// Outer iterations (epochs) started
	Iterations int

	// Parameter updates applied
	Steps int

	Status Status
}

// Converged reports whether the run ended in StatusConverged
func (r *Result) Converged() bool {
	return r.Status == StatusConverged
}

package descent

import (
	"context"

	"github.com/sourcegraph/conc/pool"

	"github.com/copyleftdev/gdfit/internal/optimization"
	"github.com/copyleftdev/gdfit/internal/optimization/dataset"
)

// Run names one optimizer taking part in a comparison
type Run struct {
	Name      string
	Optimizer Optimizer
}

// Outcome is the result of one comparison run
type Outcome struct {
	Name   string
	Method Method
	Result *optimization.Result
	Err    error
}

// Compare fits every run against the same dataset with at most maxParallel
// runs in flight (all at once when maxParallel <= 0). Outcomes keep the order
// of runs. The dataset is only read, so sharing it is safe; optimizers given
// an explicit random source must not share it.
func Compare(ctx context.Context, ds *dataset.Dataset, runs []Run, maxParallel int) []Outcome {
	outcomes := make([]Outcome, len(runs))
	if len(runs) == 0 {
		return outcomes
	}
	if maxParallel <= 0 || maxParallel > len(runs) {
		maxParallel = len(runs)
	}

	p := pool.New().WithMaxGoroutines(maxParallel)
	for i, r := range runs {
		i, r := i, r
		p.Go(func() {
			res, err := r.Optimizer.Fit(ctx, ds)
			outcomes[i] = Outcome{
				Name:   r.Name,
				Method: r.Optimizer.Method(),
				Result: res,
				Err:    err,
			}
		})
	}
	p.Wait()

	return outcomes
}

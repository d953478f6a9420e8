package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/copyleftdev/gdfit/internal/config"
	"github.com/copyleftdev/gdfit/internal/logging"
	"github.com/copyleftdev/gdfit/internal/optimization"
	"github.com/copyleftdev/gdfit/internal/optimization/dataset"
	"github.com/copyleftdev/gdfit/internal/optimization/descent"
	"github.com/copyleftdev/gdfit/internal/report"
)

// costHead is the number of leading cost values exported per curve
const costHead = 50

// options are the command line settings
type options struct {
	xPath, yPath string
	header       bool
	lr, sgdLR    float64
	sweep        string
	outDir       string
	verbose      bool
	hp           optimization.Hyperparameters
}

// newFlagSet binds the command line flags. Fit settings default to the
// FIT_* environment read by config; the learning rates default to the
// values of the classic exercise.
func newFlagSet(cfg *config.Config) (*flag.FlagSet, *options) {
	defaults := cfg.Hyperparameters()
	o := &options{hp: defaults}

	fs := flag.NewFlagSet("gdfit", flag.ContinueOnError)
	fs.StringVar(&o.xPath, "x", config.GetEnv("GDFIT_X", "linearX.csv"), "CSV file with the inputs")
	fs.StringVar(&o.yPath, "y", config.GetEnv("GDFIT_Y", "linearY.csv"), "CSV file with the targets")
	fs.BoolVar(&o.header, "header", config.GetEnvAsBool("GDFIT_HEADER", true), "skip the first CSV record")
	fs.Float64Var(&o.lr, "lr", 0.5, "learning rate of the batch fit")
	fs.StringVar(&o.sweep, "sweep", config.GetEnv("GDFIT_SWEEP", "0.05,0.5,5"), "comma separated learning rates to compare")
	fs.Float64Var(&o.sgdLR, "sgd-lr", 0.05, "learning rate of the stochastic and mini-batch fits")
	fs.IntVar(&o.hp.MaxIterations, "iterations", defaults.MaxIterations, "maximum outer iterations (FIT_MAX_ITERATIONS)")
	fs.Float64Var(&o.hp.Tolerance, "tol", defaults.Tolerance, "convergence tolerance (FIT_TOLERANCE)")
	fs.IntVar(&o.hp.BatchSize, "batch", defaults.BatchSize, "mini-batch size (FIT_BATCH_SIZE)")
	fs.Int64Var(&o.hp.RandomSeed, "seed", defaults.RandomSeed, "random seed for stochastic sampling, 0 seeds from the clock (FIT_RANDOM_SEED)")
	fs.BoolVar(&o.hp.PropagateConvergence, "propagate", defaults.PropagateConvergence, "stop stochastic and mini-batch runs at the first convergence (FIT_PROPAGATE_CONVERGENCE)")
	fs.StringVar(&o.outDir, "out", config.GetEnv("GDFIT_OUT", ""), "directory for CSV exports, empty disables them")
	fs.BoolVar(&o.verbose, "v", config.GetEnvAsBool("GDFIT_VERBOSE", false), "log optimizer progress to stderr")
	return fs, o
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	fs, opts := newFlagSet(cfg)
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	level := "warn"
	if opts.verbose {
		level = "debug"
	}
	logger, err := logging.NewLogger(&logging.Config{
		Level:  level,
		Format: config.GetEnv("LOG_FORMAT", "text"),
		Output: "stderr",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(opts, os.Stdout, logger); err != nil {
		logger.Error("Run failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
}

// run loads the dataset and drives the fits until done or interrupted
func run(opts *options, out io.Writer, logger *logging.Logger) error {
	rates, err := parseRates(opts.sweep)
	if err != nil {
		return err
	}

	ds, err := dataset.LoadCSV(opts.xPath, opts.yPath, opts.header)
	if err != nil {
		return err
	}
	logger.Info("Dataset loaded", map[string]interface{}{
		"samples": ds.Len(),
		"x_min":   ds.X().Min(),
		"x_max":   ds.X().Max(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d := &driver{
		ctx:    ctx,
		ds:     ds,
		out:    out,
		outDir: opts.outDir,
		logger: logger,
		zap:    logging.NewZapLogger(logger),
	}
	return d.run(opts.hp, opts.lr, rates, opts.sgdLR)
}

// driver reproduces the classic exercise: one batch fit, a learning rate
// sweep, then stochastic and mini-batch fits compared against batch.
type driver struct {
	ctx    context.Context
	ds     *dataset.Dataset
	out    io.Writer
	outDir string
	logger *logging.Logger
	zap    *zap.Logger
}

func (d *driver) run(base optimization.Hyperparameters, lr float64, rates []float64, sgdLR float64) error {
	hp := base
	hp.LearningRate = lr
	batch, err := descent.NewBatch(hp, descent.WithLogger(d.zap)).Fit(d.ctx, d.ds)
	if err != nil {
		return err
	}
	if err := report.WriteSummary(d.out, report.Summarize(fmt.Sprintf("Batch Gradient Descent (lr=%v)", lr), batch, d.ds)); err != nil {
		return err
	}

	sweepRuns := make([]descent.Run, 0, len(rates))
	for _, rate := range rates {
		hp := base
		hp.LearningRate = rate
		r, err := d.newRun(descent.MethodBatch, hp)
		if err != nil {
			return err
		}
		sweepRuns = append(sweepRuns, r)
	}
	sweep, err := d.collect(sweepRuns, len(sweepRuns))
	if err != nil {
		return err
	}

	hp = base
	hp.LearningRate = sgdLR
	if hp.BatchSize > d.ds.Len() {
		hp.BatchSize = d.ds.Len()
	}
	var methodRuns []descent.Run
	for _, method := range []descent.Method{descent.MethodStochastic, descent.MethodMiniBatch} {
		r, err := d.newRun(method, hp)
		if err != nil {
			return err
		}
		methodRuns = append(methodRuns, r)
	}
	methods, err := d.collect(methodRuns, len(methodRuns))
	if err != nil {
		return err
	}

	if d.outDir == "" {
		return nil
	}
	return d.export(batch, sweep, methods)
}

type labelled struct {
	label  string
	result *optimization.Result
}

func (d *driver) newRun(method descent.Method, hp optimization.Hyperparameters) (descent.Run, error) {
	opt, err := descent.New(method, hp, descent.WithLogger(d.zap))
	if err != nil {
		return descent.Run{}, err
	}
	return descent.Run{
		Name:      fmt.Sprintf("%s (lr=%v)", method, hp.LearningRate),
		Optimizer: opt,
	}, nil
}

func (d *driver) collect(runs []descent.Run, parallel int) ([]labelled, error) {
	outcomes := descent.Compare(d.ctx, d.ds, runs, parallel)

	results := make([]labelled, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Err != nil {
			return nil, fmt.Errorf("%s: %w", o.Name, o.Err)
		}
		if err := report.WriteSummary(d.out, report.Summarize(o.Name, o.Result, d.ds)); err != nil {
			return nil, err
		}
		results = append(results, labelled{label: o.Name, result: o.Result})
	}
	return results, nil
}

func (d *driver) export(batch *optimization.Result, sweep, methods []labelled) error {
	if err := os.MkdirAll(d.outDir, 0o755); err != nil {
		return err
	}

	files := []struct {
		name  string
		write func(io.Writer) error
	}{
		{"batch_cost.csv", func(w io.Writer) error {
			return report.WriteCurves(w, report.Curve{Label: "batch", Costs: report.Head(batch.CostHistory, costHead)})
		}},
		{"sweep_cost.csv", func(w io.Writer) error {
			curves := make([]report.Curve, len(sweep))
			for i, s := range sweep {
				curves[i] = report.Curve{Label: s.label, Costs: report.Head(s.result.CostHistory, costHead)}
			}
			return report.WriteCurves(w, curves...)
		}},
		{"comparison_cost.csv", func(w io.Writer) error {
			curves := []report.Curve{{Label: "batch", Costs: batch.CostHistory}}
			for _, m := range methods {
				curves = append(curves, report.Curve{Label: m.label, Costs: m.result.CostHistory})
			}
			return report.WriteCurves(w, curves...)
		}},
		{"fitted_line.csv", func(w io.Writer) error {
			return report.WriteFittedLine(w, report.Params(batch), d.ds)
		}},
	}

	for _, f := range files {
		path := filepath.Join(d.outDir, f.name)
		if err := report.WriteFile(path, f.write); err != nil {
			return err
		}
		d.logger.Info("Exported", map[string]interface{}{"path": path})
	}
	return nil
}

func parseRates(s string) ([]float64, error) {
	var rates []float64
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, fmt.Errorf("learning rate %q: %w", field, err)
		}
		rates = append(rates, v)
	}
	return rates, nil
}

// Package report renders fit results for people and plotting tools: a
// console summary and CSV exports of cost curves and fitted lines.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"gonum.org/v1/gonum/stat"

	apperrors "github.com/copyleftdev/gdfit/internal/errors"
	"github.com/copyleftdev/gdfit/internal/optimization"
	"github.com/copyleftdev/gdfit/internal/optimization/dataset"
	"github.com/copyleftdev/gdfit/internal/optimization/linear"
)

// Summary describes a finished fit against its dataset
type Summary struct {
	Title    string
	Result   *optimization.Result
	MeanY    float64
	RSquared float64
}

// Summarize computes goodness of fit statistics for res over ds
func Summarize(title string, res *optimization.Result, ds *dataset.Dataset) Summary {
	y := ds.Y().Values()
	fitted := linear.PredictSeries(Params(res), ds.X())

	return Summary{
		Title:    title,
		Result:   res,
		MeanY:    stat.Mean(y, nil),
		RSquared: stat.RSquaredFrom(fitted, y, nil),
	}
}

// Params returns the fitted parameters of res
func Params(res *optimization.Result) linear.Params {
	return linear.Params{Theta0: res.Theta0, Theta1: res.Theta1}
}

// WriteSummary prints s in a fixed layout
func WriteSummary(w io.Writer, s Summary) error {
	res := s.Result
	_, err := fmt.Fprintf(w, "%s:\n"+
		"  theta_0:    %v\n"+
		"  theta_1:    %v\n"+
		"  final cost: %v\n"+
		"  iterations: %d (%d steps, %s)\n"+
		"  mean y:     %v\n"+
		"  r squared:  %v\n\n",
		s.Title, res.Theta0, res.Theta1, res.FinalCost,
		res.Iterations, res.Steps, res.Status, s.MeanY, s.RSquared)
	return err
}

// Head returns at most the first n values of history
func Head(history []float64, n int) []float64 {
	if n < len(history) {
		return history[:n]
	}
	return history
}

// Curve is a labelled cost history
type Curve struct {
	Label string
	Costs []float64
}

// WriteCurves writes one row per step and one column per curve. Curves
// shorter than the longest leave their cells empty.
func WriteCurves(w io.Writer, curves ...Curve) error {
	cw := csv.NewWriter(w)

	header := make([]string, 0, len(curves)+1)
	header = append(header, "step")
	rows := 0
	for _, c := range curves {
		header = append(header, c.Label)
		if len(c.Costs) > rows {
			rows = len(c.Costs)
		}
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	record := make([]string, len(header))
	for i := 0; i < rows; i++ {
		record[0] = strconv.Itoa(i)
		for j, c := range curves {
			record[j+1] = ""
			if i < len(c.Costs) {
				record[j+1] = formatFloat(c.Costs[i])
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteFittedLine writes x, the observed y and the fitted value per sample
func WriteFittedLine(w io.Writer, p linear.Params, ds *dataset.Dataset) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"x", "y", "fitted"}); err != nil {
		return err
	}

	fitted := linear.PredictSeries(p, ds.X())
	for i := 0; i < ds.Len(); i++ {
		x, y := ds.Sample(i)
		if err := cw.Write([]string{formatFloat(x), formatFloat(y), formatFloat(fitted[i])}); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteFile creates path and fills it with write
func WriteFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return apperrors.Wrapf(err, "failed to create %s", path).
			WithOperation("write_file").
			WithComponent("report")
	}

	if err := write(f); err != nil {
		f.Close()
		return apperrors.Wrapf(err, "failed to write %s", path).
			WithOperation("write_file").
			WithComponent("report")
	}
	return f.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

package dataset

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	apperrors "github.com/copyleftdev/gdfit/internal/errors"
)

// ReadColumn reads the first column of every CSV record in r as a float64.
// When header is set the first record is skipped.
func ReadColumn(r io.Reader, header bool) ([]float64, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var values []float64
	for line := 1; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperrors.Wrapf(err, "failed to read CSV record %d", line).
				WithOperation("read_column").
				WithComponent("dataset")
		}
		if header && line == 1 {
			continue
		}
		if len(record) == 0 {
			continue
		}

		v, err := strconv.ParseFloat(strings.TrimSpace(record[0]), 64)
		if err != nil {
			return nil, apperrors.Wrapf(err, "invalid number at line %d", line).
				WithOperation("read_column").
				WithComponent("dataset")
		}
		values = append(values, v)
	}

	return values, nil
}

// ReadColumnFile opens path and reads its first column
func ReadColumnFile(path string, header bool) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Wrapf(err, "failed to open %s", path).
			WithOperation("read_column").
			WithComponent("dataset")
	}
	defer f.Close()

	values, err := ReadColumn(f, header)
	if err != nil {
		return nil, apperrors.Wrapf(err, "%s", path)
	}
	return values, nil
}

// LoadCSV reads inputs from xPath and targets from yPath and returns the
// validated Dataset.
func LoadCSV(xPath, yPath string, header bool) (*Dataset, error) {
	x, err := ReadColumnFile(xPath, header)
	if err != nil {
		return nil, err
	}
	y, err := ReadColumnFile(yPath, header)
	if err != nil {
		return nil, err
	}
	return New(x, y)
}

// Package dataset loads the tabular housing dataset and derives the
// train/validation/test partitions consumed by the experiment harness.
package dataset

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/tabexp-labs/tabexp/pkg/errors"
)

// Table is an immutable table of rows: a fixed set of named numeric features
// plus one numeric label column.
type Table struct {
	X            *mat.Dense
	Y            *mat.VecDense
	FeatureNames []string
	LabelName    string
}

// NumRows returns the number of rows in the table.
func (t *Table) NumRows() int {
	r, _ := t.X.Dims()
	return r
}

// NumFeatures returns the number of feature columns in the table.
func (t *Table) NumFeatures() int {
	_, c := t.X.Dims()
	return c
}

// Subset returns a new table containing the given rows, in order.
func (t *Table) Subset(rows []int) *Table {
	nf := t.NumFeatures()
	x := mat.NewDense(len(rows), nf, nil)
	y := mat.NewVecDense(len(rows), nil)
	for i, row := range rows {
		for j := 0; j < nf; j++ {
			x.Set(i, j, t.X.At(row, j))
		}
		y.SetVec(i, t.Y.AtVec(row))
	}
	return &Table{X: x, Y: y, FeatureNames: t.FeatureNames, LabelName: t.LabelName}
}

// WithFeatures returns a copy of the table with X replaced. Used after
// feature scaling, which leaves labels untouched.
func (t *Table) WithFeatures(x *mat.Dense) *Table {
	return &Table{X: x, Y: t.Y, FeatureNames: t.FeatureNames, LabelName: t.LabelName}
}

// LoadCSV reads a headered CSV file into a Table. The column named
// labelColumn becomes the label; every other column must be numeric and
// becomes a feature. A missing label column is a configuration error.
func LoadCSV(path, labelColumn string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "dataset: failed to open %s", path)
	}
	defer f.Close()
	return ReadCSV(f, labelColumn)
}

// ReadCSV parses CSV content from r. See LoadCSV.
func ReadCSV(r io.Reader, labelColumn string) (*Table, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrap(err, "dataset: failed to read CSV header")
	}

	labelIdx := -1
	featureNames := make([]string, 0, len(header)-1)
	for i, name := range header {
		if name == labelColumn {
			labelIdx = i
			continue
		}
		featureNames = append(featureNames, name)
	}
	if labelIdx < 0 {
		return nil, errors.NewValidationError("label_column", "column not found in CSV header", labelColumn)
	}

	var features []float64
	var labels []float64
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "dataset: failed to read CSV record at line %d", line+1)
		}
		line++
		if len(record) != len(header) {
			return nil, errors.NewDimensionError("dataset.ReadCSV", len(header), len(record), 1)
		}
		for i, field := range record {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "dataset: non-numeric value %q in column %s at line %d", field, header[i], line)
			}
			if i == labelIdx {
				labels = append(labels, v)
			} else {
				features = append(features, v)
			}
		}
	}

	if len(labels) == 0 {
		return nil, errors.NewModelError("dataset.ReadCSV", "no data rows", errors.ErrEmptyData)
	}

	n := len(labels)
	return &Table{
		X:            mat.NewDense(n, len(featureNames), features),
		Y:            mat.NewVecDense(n, labels),
		FeatureNames: featureNames,
		LabelName:    labelColumn,
	}, nil
}

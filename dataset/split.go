package dataset

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/tabexp-labs/tabexp/pkg/errors"
	"github.com/tabexp-labs/tabexp/preprocessing"
)

// Partitions holds the three disjoint partitions produced by Prepare,
// plus the scaler fitted on the (outer) train partition.
type Partitions struct {
	Train *Table
	Val   *Table
	Test  *Table

	// Scaler was fit only on the outer train partition and applied
	// unchanged to all three partitions.
	Scaler *preprocessing.StandardScaler
}

// PrepareOptions controls partitioning and scaling.
type PrepareOptions struct {
	// TestFraction is the fraction of all rows held out as the test
	// partition. Default 0.2.
	TestFraction float64

	// ValFraction is the fraction of the remaining train rows held out as
	// the validation partition. Default 0.2.
	ValFraction float64

	// Seed drives the random shuffles so splits are reproducible.
	Seed int64
}

// Split shuffles the table rows with the given seed and divides them into
// two disjoint tables. testFraction gives the size of the second table.
func Split(t *Table, testFraction float64, seed int64) (train, test *Table, err error) {
	if testFraction <= 0 || testFraction >= 1 {
		return nil, nil, errors.NewValidationError("test_fraction", "must be in (0, 1)", testFraction)
	}
	n := t.NumRows()
	nTest := int(float64(n) * testFraction)
	if nTest == 0 || nTest == n {
		return nil, nil, errors.NewValueError("dataset.Split", "partition would be empty")
	}

	perm := rand.New(rand.NewSource(seed)).Perm(n)
	return t.Subset(perm[nTest:]), t.Subset(perm[:nTest]), nil
}

// Prepare derives train/validation/test partitions from the raw table.
//
// The test partition is held out first. The scaler is then fit on the outer
// train partition and applied to all rows before the train/validation split
// is taken. Validation therefore shares scaling statistics with the rows it
// was split from; only the test partition is scaled with statistics it did
// not contribute to.
func Prepare(t *Table, opts PrepareOptions) (*Partitions, error) {
	if opts.TestFraction == 0 {
		opts.TestFraction = 0.2
	}
	if opts.ValFraction == 0 {
		opts.ValFraction = 0.2
	}

	outerTrain, test, err := Split(t, opts.TestFraction, opts.Seed)
	if err != nil {
		return nil, err
	}

	scaler := preprocessing.NewStandardScaler()
	if err := scaler.Fit(outerTrain.X); err != nil {
		return nil, err
	}

	scaledTrain, err := scaler.Transform(outerTrain.X)
	if err != nil {
		return nil, err
	}
	scaledTest, err := scaler.Transform(test.X)
	if err != nil {
		return nil, err
	}

	outerTrain = outerTrain.WithFeatures(toDense(scaledTrain))
	test = test.WithFeatures(toDense(scaledTest))

	train, val, err := Split(outerTrain, opts.ValFraction, opts.Seed+1)
	if err != nil {
		return nil, err
	}

	return &Partitions{Train: train, Val: val, Test: test, Scaler: scaler}, nil
}

func toDense(m mat.Matrix) *mat.Dense {
	if d, ok := m.(*mat.Dense); ok {
		return d
	}
	return mat.DenseCopyOf(m)
}

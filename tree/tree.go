// Package tree implements a CART regression tree used as the base learner
// for the random-forest and gradient-boosting model families.
package tree

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/tabexp-labs/tabexp/core/model"
	"github.com/tabexp-labs/tabexp/pkg/errors"
)

// Node is one node of a fitted regression tree. Interior nodes route rows by
// comparing one feature against a threshold; leaves carry the predicted value.
type Node struct {
	Feature   int
	Threshold float64
	Left      int // index into Nodes, -1 for leaves
	Right     int
	Value     float64
	Leaf      bool
}

// RegressionTree is a variance-reduction CART regressor.
type RegressionTree struct {
	model.BaseEstimator

	// MaxDepth limits tree depth. 0 means no limit.
	MaxDepth int

	// MinSamplesLeaf is the minimum number of rows in a leaf. Default 1.
	MinSamplesLeaf int

	// MaxFeatures is the number of features considered per split.
	// 0 means all features.
	MaxFeatures int

	// Seed drives the per-split feature subsampling.
	Seed int64

	// Nodes holds the fitted tree in breadth-agnostic slice form; Nodes[0]
	// is the root. Exported for gob serialization.
	Nodes []Node

	// NFeatures is the feature count seen during Fit.
	NFeatures int
}

// NewRegressionTree creates an unfitted tree with the given limits.
func NewRegressionTree(maxDepth, minSamplesLeaf int) *RegressionTree {
	if minSamplesLeaf < 1 {
		minSamplesLeaf = 1
	}
	return &RegressionTree{
		MaxDepth:       maxDepth,
		MinSamplesLeaf: minSamplesLeaf,
	}
}

type builder struct {
	t    *RegressionTree
	x    *mat.Dense
	y    []float64
	rng  *rand.Rand
	cols int
}

// Fit grows the tree on X/y.
func (t *RegressionTree) Fit(X, y mat.Matrix) error {
	rows, cols := X.Dims()
	yRows, yCols := y.Dims()
	if rows == 0 || cols == 0 {
		return errors.NewModelError("RegressionTree.Fit", "empty data", errors.ErrEmptyData)
	}
	if yRows != rows {
		return errors.NewDimensionError("RegressionTree.Fit", rows, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewDimensionError("RegressionTree.Fit", 1, yCols, 1)
	}

	targets := make([]float64, rows)
	for i := 0; i < rows; i++ {
		targets[i] = y.At(i, 0)
	}

	b := &builder{
		t:    t,
		x:    toDense(X),
		y:    targets,
		rng:  rand.New(rand.NewSource(t.Seed)),
		cols: cols,
	}

	idx := make([]int, rows)
	for i := range idx {
		idx[i] = i
	}

	t.Nodes = t.Nodes[:0]
	t.NFeatures = cols
	b.grow(idx, 0)
	t.SetFitted()
	return nil
}

// grow appends the subtree for idx and returns its node index.
func (b *builder) grow(idx []int, depth int) int {
	nodeIdx := len(b.t.Nodes)
	b.t.Nodes = append(b.t.Nodes, Node{Left: -1, Right: -1})

	mean := meanOf(b.y, idx)
	if b.stop(idx, depth) {
		b.t.Nodes[nodeIdx] = Node{Left: -1, Right: -1, Value: mean, Leaf: true}
		return nodeIdx
	}

	feature, threshold, ok := b.bestSplit(idx)
	if !ok {
		b.t.Nodes[nodeIdx] = Node{Left: -1, Right: -1, Value: mean, Leaf: true}
		return nodeIdx
	}

	var left, right []int
	for _, i := range idx {
		if b.x.At(i, feature) <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) < b.t.MinSamplesLeaf || len(right) < b.t.MinSamplesLeaf {
		b.t.Nodes[nodeIdx] = Node{Left: -1, Right: -1, Value: mean, Leaf: true}
		return nodeIdx
	}

	leftIdx := b.grow(left, depth+1)
	rightIdx := b.grow(right, depth+1)
	b.t.Nodes[nodeIdx] = Node{
		Feature:   feature,
		Threshold: threshold,
		Left:      leftIdx,
		Right:     rightIdx,
	}
	return nodeIdx
}

func (b *builder) stop(idx []int, depth int) bool {
	if len(idx) < 2*b.t.MinSamplesLeaf {
		return true
	}
	if b.t.MaxDepth > 0 && depth >= b.t.MaxDepth {
		return true
	}
	first := b.y[idx[0]]
	for _, i := range idx[1:] {
		if b.y[i] != first {
			return false
		}
	}
	return true // constant target
}

// bestSplit scans candidate features for the threshold with the largest
// variance reduction, using sorted prefix sums.
func (b *builder) bestSplit(idx []int) (feature int, threshold float64, ok bool) {
	features := b.candidateFeatures()
	bestGain := 0.0

	var totalSum, totalSq float64
	for _, i := range idx {
		totalSum += b.y[i]
		totalSq += b.y[i] * b.y[i]
	}
	n := float64(len(idx))
	parentSSE := totalSq - totalSum*totalSum/n

	order := make([]int, len(idx))
	for _, f := range features {
		copy(order, idx)
		sort.Slice(order, func(a, c int) bool {
			return b.x.At(order[a], f) < b.x.At(order[c], f)
		})

		var leftSum, leftSq float64
		for k := 0; k < len(order)-1; k++ {
			i := order[k]
			leftSum += b.y[i]
			leftSq += b.y[i] * b.y[i]

			xi := b.x.At(i, f)
			xNext := b.x.At(order[k+1], f)
			if xi == xNext {
				continue
			}
			nl := float64(k + 1)
			nr := n - nl
			if int(nl) < b.t.MinSamplesLeaf || int(nr) < b.t.MinSamplesLeaf {
				continue
			}

			rightSum := totalSum - leftSum
			rightSq := totalSq - leftSq
			sse := (leftSq - leftSum*leftSum/nl) + (rightSq - rightSum*rightSum/nr)
			gain := parentSSE - sse
			if gain > bestGain+1e-12 {
				bestGain = gain
				feature = f
				threshold = (xi + xNext) / 2
				ok = true
			}
		}
	}
	return feature, threshold, ok
}

func (b *builder) candidateFeatures() []int {
	k := b.t.MaxFeatures
	if k <= 0 || k >= b.cols {
		all := make([]int, b.cols)
		for i := range all {
			all[i] = i
		}
		return all
	}
	return b.rng.Perm(b.cols)[:k]
}

// Predict returns an n×1 matrix of predictions.
func (t *RegressionTree) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !t.IsFitted() {
		return nil, errors.NewNotFittedError("RegressionTree", "Predict")
	}
	rows, cols := X.Dims()
	if cols != t.NFeatures {
		return nil, errors.NewDimensionError("RegressionTree.Predict", t.NFeatures, cols, 1)
	}

	out := mat.NewDense(rows, 1, nil)
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			row[j] = X.At(i, j)
		}
		out.Set(i, 0, t.PredictRow(row))
	}
	return out, nil
}

// PredictRow routes a single feature row to its leaf value.
func (t *RegressionTree) PredictRow(row []float64) float64 {
	if len(t.Nodes) == 0 {
		return math.NaN()
	}
	node := &t.Nodes[0]
	for !node.Leaf {
		if row[node.Feature] <= node.Threshold {
			node = &t.Nodes[node.Left]
		} else {
			node = &t.Nodes[node.Right]
		}
	}
	return node.Value
}

func meanOf(y []float64, idx []int) float64 {
	var sum float64
	for _, i := range idx {
		sum += y[i]
	}
	return sum / float64(len(idx))
}

func toDense(m mat.Matrix) *mat.Dense {
	if d, ok := m.(*mat.Dense); ok {
		return d
	}
	return mat.DenseCopyOf(m)
}

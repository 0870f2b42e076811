package neural

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/tabexp-labs/tabexp/core/model"
	"github.com/tabexp-labs/tabexp/pkg/errors"
)

// MLPRegressor is a fully connected network with ReLU hidden layers,
// inverted dropout, and a linear scalar output, trained by minibatch
// AdamW on mean squared error.
type MLPRegressor struct {
	model.BaseEstimator

	// HiddenLayers gives the width of each hidden layer. Default [64, 32].
	HiddenLayers []int

	// Dropout is the hidden-activation drop probability. 0 disables it.
	Dropout float64

	// LearningRate for AdamW. Default 1e-3.
	LearningRate float64

	// WeightDecay for AdamW. Default 0.
	WeightDecay float64

	// BatchSize for minibatch training. Default 32.
	BatchSize int

	// Seed drives weight init, shuffling, and dropout masks.
	Seed int64

	// Weights and Biases hold one Param per layer (hidden layers plus the
	// scalar output layer).
	Weights []*Param
	Biases  []*Param

	// NFeatures is the feature count seen at initialization.
	NFeatures int

	opt   *AdamW
	rng   *rand.Rand
	snapW []*mat.Dense
	snapB []*mat.Dense
}

// NewMLPRegressor creates an MLP with default parameters.
func NewMLPRegressor() *MLPRegressor {
	return &MLPRegressor{
		HiddenLayers: []int{64, 32},
		LearningRate: 1e-3,
		BatchSize:    32,
		Seed:         42,
	}
}

func (m *MLPRegressor) ensureInit(cols int) {
	if len(m.Weights) > 0 {
		return
	}
	if m.rng == nil {
		m.rng = rand.New(rand.NewSource(m.Seed))
	}

	sizes := append([]int{cols}, m.HiddenLayers...)
	sizes = append(sizes, 1)
	m.NFeatures = cols
	m.Weights = make([]*Param, len(sizes)-1)
	m.Biases = make([]*Param, len(sizes)-1)
	for l := 0; l < len(sizes)-1; l++ {
		std := math.Sqrt(2.0 / float64(sizes[l])) // He init for ReLU
		m.Weights[l] = NewParamInit(sizes[l], sizes[l+1], std, m.rng)
		m.Biases[l] = NewParam(1, sizes[l+1])
	}
}

func (m *MLPRegressor) params() []*Param {
	out := make([]*Param, 0, 2*len(m.Weights))
	out = append(out, m.Weights...)
	out = append(out, m.Biases...)
	return out
}

// Fit is the one-shot path: a single epoch per call is driven by the harness
// trainer instead, so Fit simply delegates to a default epoch budget.
func (m *MLPRegressor) Fit(X, y mat.Matrix) error {
	for epoch := 0; epoch < 100; epoch++ {
		if _, err := m.TrainEpoch(X, y); err != nil {
			return err
		}
	}
	return nil
}

// TrainEpoch runs one shuffled minibatch pass and returns the mean
// training loss over the epoch.
func (m *MLPRegressor) TrainEpoch(X, y mat.Matrix) (float64, error) {
	rows, cols := X.Dims()
	yRows, yCols := y.Dims()
	if rows == 0 || cols == 0 {
		return 0, errors.NewModelError("MLPRegressor.TrainEpoch", "empty data", errors.ErrEmptyData)
	}
	if yRows != rows {
		return 0, errors.NewDimensionError("MLPRegressor.TrainEpoch", rows, yRows, 0)
	}
	if yCols != 1 {
		return 0, errors.NewDimensionError("MLPRegressor.TrainEpoch", 1, yCols, 1)
	}

	m.ensureInit(cols)
	if m.NFeatures != cols {
		return 0, errors.NewDimensionError("MLPRegressor.TrainEpoch", m.NFeatures, cols, 1)
	}
	if m.rng == nil {
		m.rng = rand.New(rand.NewSource(m.Seed))
	}
	if m.opt == nil {
		m.opt = NewAdamW(m.LearningRate, m.WeightDecay)
	}

	batchSize := m.BatchSize
	if batchSize <= 0 {
		batchSize = 32
	}

	perm := m.rng.Perm(rows)
	var totalLoss float64
	var batches int
	for start := 0; start < rows; start += batchSize {
		end := start + batchSize
		if end > rows {
			end = rows
		}
		idx := perm[start:end]

		bx := mat.NewDense(len(idx), cols, nil)
		by := mat.NewVecDense(len(idx), nil)
		for i, r := range idx {
			for j := 0; j < cols; j++ {
				bx.Set(i, j, X.At(r, j))
			}
			by.SetVec(i, y.At(r, 0))
		}

		loss, err := m.trainBatch(bx, by)
		if err != nil {
			return 0, err
		}
		totalLoss += loss
		batches++
	}

	m.SetFitted()
	return totalLoss / float64(batches), nil
}

// trainBatch runs forward, MSE loss, backward, and one optimizer step.
func (m *MLPRegressor) trainBatch(bx *mat.Dense, by *mat.VecDense) (float64, error) {
	n, _ := bx.Dims()
	acts, zs, masks := m.forward(bx, true)
	pred := acts[len(acts)-1]

	// Mean squared error and its gradient w.r.t. the prediction.
	delta := mat.NewDense(n, 1, nil)
	var loss float64
	for i := 0; i < n; i++ {
		diff := pred.At(i, 0) - by.AtVec(i)
		loss += diff * diff
		delta.Set(i, 0, 2*diff/float64(n))
	}
	loss /= float64(n)
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return 0, errors.NewNumericalInstabilityError("loss_calculation", []float64{loss}, 0)
	}

	for _, p := range m.params() {
		p.ZeroGrad()
	}

	// Backward pass, output layer to input layer.
	for l := len(m.Weights) - 1; l >= 0; l-- {
		m.Weights[l].Grad().Mul(acts[l].T(), delta)
		colSumInto(m.Biases[l].Grad(), delta)

		if l == 0 {
			break
		}
		prev := &mat.Dense{}
		prev.Mul(delta, m.Weights[l].W.T())
		// Chain through ReLU and the dropout mask of the previous layer.
		r, c := prev.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				v := prev.At(i, j)
				if zs[l-1].At(i, j) <= 0 {
					v = 0
				} else if masks[l-1] != nil {
					v *= masks[l-1].At(i, j)
				}
				prev.Set(i, j, v)
			}
		}
		delta = prev
	}

	m.opt.Step(m.params())
	return loss, nil
}

// forward computes per-layer pre-activations and activations.
// acts[0] is the input; acts[len] is the prediction column.
func (m *MLPRegressor) forward(x *mat.Dense, train bool) (acts, zs []*mat.Dense, masks []*mat.Dense) {
	acts = make([]*mat.Dense, len(m.Weights)+1)
	zs = make([]*mat.Dense, len(m.Weights))
	masks = make([]*mat.Dense, len(m.Weights))
	acts[0] = x

	for l := range m.Weights {
		z := &mat.Dense{}
		z.Mul(acts[l], m.Weights[l].W)
		addRowVector(z, m.Biases[l].W)
		zs[l] = z

		if l == len(m.Weights)-1 {
			acts[l+1] = z // linear output
			continue
		}

		a := mat.DenseCopyOf(z)
		r, c := a.Dims()
		var mask *mat.Dense
		if train && m.Dropout > 0 {
			mask = mat.NewDense(r, c, nil)
		}
		keep := 1.0 - m.Dropout
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				v := a.At(i, j)
				if v < 0 {
					v = 0
				}
				if mask != nil {
					if m.rng.Float64() < m.Dropout {
						mask.Set(i, j, 0)
						v = 0
					} else {
						mask.Set(i, j, 1/keep)
						v /= keep
					}
				}
				a.Set(i, j, v)
			}
		}
		masks[l] = mask
		acts[l+1] = a
	}
	return acts, zs, masks
}

// Predict returns an n×1 matrix of predictions.
func (m *MLPRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !m.IsFitted() {
		return nil, errors.NewNotFittedError("MLPRegressor", "Predict")
	}
	rows, cols := X.Dims()
	if cols != m.NFeatures {
		return nil, errors.NewDimensionError("MLPRegressor.Predict", m.NFeatures, cols, 1)
	}

	acts, _, _ := m.forward(toDense(X), false)
	out := mat.NewDense(rows, 1, nil)
	out.Copy(acts[len(acts)-1])
	return out, nil
}

// Snapshot deep-copies the current weights.
func (m *MLPRegressor) Snapshot() {
	m.snapW = cloneAll(m.Weights)
	m.snapB = cloneAll(m.Biases)
}

// Restore reinstates the weights captured by the last Snapshot.
func (m *MLPRegressor) Restore() {
	if m.snapW == nil {
		return
	}
	for i := range m.Weights {
		m.Weights[i].W.Copy(m.snapW[i])
	}
	for i := range m.Biases {
		m.Biases[i].W.Copy(m.snapB[i])
	}
}

// GetParams returns the network's hyperparameters.
func (m *MLPRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"hidden_layers": m.HiddenLayers,
		"dropout":       m.Dropout,
		"learning_rate": m.LearningRate,
		"weight_decay":  m.WeightDecay,
		"batch_size":    m.BatchSize,
		"random_state":  m.Seed,
	}
}

func cloneAll(params []*Param) []*mat.Dense {
	out := make([]*mat.Dense, len(params))
	for i, p := range params {
		out[i] = p.Clone()
	}
	return out
}

// addRowVector adds a 1×c bias row to every row of z in place.
func addRowVector(z *mat.Dense, bias *mat.Dense) {
	r, c := z.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			z.Set(i, j, z.At(i, j)+bias.At(0, j))
		}
	}
}

// colSumInto writes the column sums of src into the 1×c destination.
func colSumInto(dst *mat.Dense, src *mat.Dense) {
	r, c := src.Dims()
	for j := 0; j < c; j++ {
		var sum float64
		for i := 0; i < r; i++ {
			sum += src.At(i, j)
		}
		dst.Set(0, j, sum)
	}
}

func toDense(m mat.Matrix) *mat.Dense {
	if d, ok := m.(*mat.Dense); ok {
		return d
	}
	return mat.DenseCopyOf(m)
}

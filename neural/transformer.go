package neural

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/tabexp-labs/tabexp/core/model"
	"github.com/tabexp-labs/tabexp/pkg/errors"
)

// TransformerBlock is a pre-norm encoder block: attention and the
// position-wise MLP each read a normalized copy of their input and add
// their output back through a residual connection.
type TransformerBlock struct {
	Norm1 *LayerNorm
	Attn  *MultiHeadAttention
	Norm2 *LayerNorm
	FFN   *FeedForward
}

// NewTransformerBlock builds one block for tokens of width dim.
func NewTransformerBlock(dim, heads, ffnHidden int, rng *rand.Rand) *TransformerBlock {
	return &TransformerBlock{
		Norm1: NewLayerNorm(dim),
		Attn:  NewMultiHeadAttention(dim, heads, rng),
		Norm2: NewLayerNorm(dim),
		FFN:   NewFeedForward(dim, ffnHidden, rng),
	}
}

// Params returns every trainable tensor in the block.
func (b *TransformerBlock) Params() []*Param {
	out := b.Norm1.Params()
	out = append(out, b.Attn.Params()...)
	out = append(out, b.Norm2.Params()...)
	out = append(out, b.FFN.Params()...)
	return out
}

type blockCache struct {
	ln1  *lnCache
	mha  *mhaCache
	ln2  *lnCache
	ffn  *ffnCache
}

// Forward runs one sample's token matrix through the block.
func (b *TransformerBlock) Forward(x *mat.Dense) (*mat.Dense, *blockCache) {
	cache := &blockCache{}

	normed, ln1 := b.Norm1.Forward(x)
	cache.ln1 = ln1
	attnOut, mha := b.Attn.Forward(normed)
	cache.mha = mha
	h := &mat.Dense{}
	h.Add(x, attnOut)

	normed2, ln2 := b.Norm2.Forward(h)
	cache.ln2 = ln2
	ffnOut, ffn := b.FFN.Forward(normed2)
	cache.ffn = ffn
	out := &mat.Dense{}
	out.Add(h, ffnOut)
	return out, cache
}

// Backward propagates through the residual structure in reverse.
func (b *TransformerBlock) Backward(dOut *mat.Dense, cache *blockCache) *mat.Dense {
	dFFN := b.FFN.Backward(dOut, cache.ffn)
	dH := b.Norm2.Backward(dFFN, cache.ln2)
	dH.Add(dH, dOut) // residual

	dAttn := b.Attn.Backward(dH, cache.mha)
	dX := b.Norm1.Backward(dAttn, cache.ln1)
	dX.Add(dX, dH) // residual
	return dX
}

// FTTransformerRegressor treats each numerical feature as a token,
// prepends a learned CLS token, runs the sequence through pre-norm
// encoder blocks, and regresses from the final CLS representation.
// Samples are processed one at a time.
type FTTransformerRegressor struct {
	model.BaseEstimator

	// Embedding selects the numerical tokenization. Default linear.
	Embedding EmbeddingKind

	// TokenDim is the token width d. Must be divisible by Heads.
	TokenDim int
	// Blocks is the encoder depth. Default 2.
	Blocks int
	// Heads per attention layer. Default 4.
	Heads int
	// FFNHidden is the block MLP width. Default 2*TokenDim.
	FFNHidden int

	// Frequencies and Sigma configure the periodic embedding.
	Frequencies int
	Sigma       float64
	// Bins configures the piecewise linear embeddings.
	Bins int

	LearningRate float64
	WeightDecay  float64
	BatchSize    int
	Seed         int64

	Emb       *NumericalEmbedding
	CLS       *Param // 1×d
	Layers    []*TransformerBlock
	FinalNorm *LayerNorm
	HeadW     *Param // d×1
	HeadB     *Param // 1×1

	NFeatures int

	opt  *AdamW
	rng  *rand.Rand
	snap []*mat.Dense
}

// NewFTTransformerRegressor creates a model with default parameters.
func NewFTTransformerRegressor(embedding EmbeddingKind) *FTTransformerRegressor {
	return &FTTransformerRegressor{
		Embedding:    embedding,
		TokenDim:     32,
		Blocks:       2,
		Heads:        4,
		Frequencies:  16,
		Sigma:        1.0,
		Bins:         8,
		LearningRate: 1e-3,
		BatchSize:    32,
		Seed:         42,
	}
}

func (m *FTTransformerRegressor) ensureInit(X mat.Matrix, y *mat.VecDense) error {
	if m.Emb != nil {
		return nil
	}
	if m.TokenDim <= 0 {
		m.TokenDim = 32
	}
	if m.Heads <= 0 {
		m.Heads = 4
	}
	if m.TokenDim%m.Heads != 0 {
		return errors.NewValidationError("token_dim",
			"token dimension must be divisible by the head count", m.TokenDim)
	}
	if m.Blocks <= 0 {
		m.Blocks = 2
	}
	if m.FFNHidden <= 0 {
		m.FFNHidden = 2 * m.TokenDim
	}
	if m.Embedding == "" {
		m.Embedding = EmbeddingLinear
	}

	m.rng = rand.New(rand.NewSource(m.Seed))
	emb, err := NewNumericalEmbedding(m.Embedding, m.TokenDim, m.Frequencies, m.Bins, m.Sigma, m.Seed, X, y, m.rng)
	if err != nil {
		return err
	}
	m.Emb = emb
	_, cols := X.Dims()
	m.NFeatures = cols

	m.CLS = NewParamInit(1, m.TokenDim, 1.0/math.Sqrt(float64(m.TokenDim)), m.rng)
	m.Layers = make([]*TransformerBlock, m.Blocks)
	for i := range m.Layers {
		m.Layers[i] = NewTransformerBlock(m.TokenDim, m.Heads, m.FFNHidden, m.rng)
	}
	m.FinalNorm = NewLayerNorm(m.TokenDim)
	m.HeadW = NewParamInit(m.TokenDim, 1, 1.0/math.Sqrt(float64(m.TokenDim)), m.rng)
	m.HeadB = NewParam(1, 1)
	return nil
}

func (m *FTTransformerRegressor) params() []*Param {
	out := m.Emb.Params()
	out = append(out, m.CLS)
	for _, b := range m.Layers {
		out = append(out, b.Params()...)
	}
	out = append(out, m.FinalNorm.Params()...)
	out = append(out, m.HeadW, m.HeadB)
	return out
}

// Fit trains with a default epoch budget. Epoch-level control lives in
// the harness trainer via TrainEpoch.
func (m *FTTransformerRegressor) Fit(X, y mat.Matrix) error {
	for epoch := 0; epoch < 30; epoch++ {
		if _, err := m.TrainEpoch(X, y); err != nil {
			return err
		}
	}
	return nil
}

// TrainEpoch runs one shuffled pass over the data. Gradients are
// accumulated per minibatch and applied with AdamW.
func (m *FTTransformerRegressor) TrainEpoch(X, y mat.Matrix) (float64, error) {
	rows, cols := X.Dims()
	yRows, yCols := y.Dims()
	if rows == 0 || cols == 0 {
		return 0, errors.NewModelError("FTTransformerRegressor.TrainEpoch", "empty data", errors.ErrEmptyData)
	}
	if yRows != rows || yCols != 1 {
		return 0, errors.NewDimensionError("FTTransformerRegressor.TrainEpoch", rows, yRows, 0)
	}

	yVec := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		yVec.SetVec(i, y.At(i, 0))
	}
	if err := m.ensureInit(X, yVec); err != nil {
		return 0, err
	}
	if m.NFeatures != cols {
		return 0, errors.NewDimensionError("FTTransformerRegressor.TrainEpoch", m.NFeatures, cols, 1)
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
	row := make([]float64, cols)
	var totalLoss float64
	var batches int
	for start := 0; start < rows; start += batchSize {
		end := start + batchSize
		if end > rows {
			end = rows
		}
		params := m.params()
		for _, p := range params {
			p.ZeroGrad()
		}

		var batchLoss float64
		n := float64(end - start)
		for _, r := range perm[start:end] {
			for j := 0; j < cols; j++ {
				row[j] = X.At(r, j)
			}
			pred, caches := m.forwardSample(row)
			diff := pred - yVec.AtVec(r)
			batchLoss += diff * diff
			m.backwardSample(row, 2*diff/n, caches)
		}
		batchLoss /= n
		if math.IsNaN(batchLoss) || math.IsInf(batchLoss, 0) {
			return 0, errors.NewNumericalInstabilityError("loss_calculation", []float64{batchLoss}, 0)
		}
		m.opt.Step(params)
		totalLoss += batchLoss
		batches++
	}

	m.SetFitted()
	return totalLoss / float64(batches), nil
}

type sampleCache struct {
	tokens *mat.Dense // (F+1)×d input to the first block
	blocks []*blockCache
	final  *lnCache
	cls    []float64 // final normalized CLS row
	seqLen int
}

// forwardSample runs one feature row through the full model.
func (m *FTTransformerRegressor) forwardSample(row []float64) (float64, *sampleCache) {
	featTokens := m.Emb.Tokens(row)
	seqLen := m.NFeatures + 1
	tokens := mat.NewDense(seqLen, m.TokenDim, nil)
	for d := 0; d < m.TokenDim; d++ {
		tokens.Set(0, d, m.CLS.W.At(0, d))
	}
	for j := 0; j < m.NFeatures; j++ {
		for d := 0; d < m.TokenDim; d++ {
			tokens.Set(j+1, d, featTokens.At(j, d))
		}
	}

	cache := &sampleCache{tokens: tokens, blocks: make([]*blockCache, len(m.Layers)), seqLen: seqLen}
	x := tokens
	for i, b := range m.Layers {
		x, cache.blocks[i] = b.Forward(x)
	}
	normed, final := m.FinalNorm.Forward(x)
	cache.final = final

	cache.cls = make([]float64, m.TokenDim)
	pred := m.HeadB.W.At(0, 0)
	for d := 0; d < m.TokenDim; d++ {
		cache.cls[d] = normed.At(0, d)
		pred += cache.cls[d] * m.HeadW.W.At(d, 0)
	}
	return pred, cache
}

// backwardSample accumulates gradients for one sample given dL/dpred.
func (m *FTTransformerRegressor) backwardSample(row []float64, dPred float64, cache *sampleCache) {
	hb := m.HeadB.Grad()
	hb.Set(0, 0, hb.At(0, 0)+dPred)
	hw := m.HeadW.Grad()
	dNormed := mat.NewDense(cache.seqLen, m.TokenDim, nil)
	for d := 0; d < m.TokenDim; d++ {
		hw.Set(d, 0, hw.At(d, 0)+dPred*cache.cls[d])
		dNormed.Set(0, d, dPred*m.HeadW.W.At(d, 0))
	}

	dx := m.FinalNorm.Backward(dNormed, cache.final)
	for i := len(m.Layers) - 1; i >= 0; i-- {
		dx = m.Layers[i].Backward(dx, cache.blocks[i])
	}

	cg := m.CLS.Grad()
	for d := 0; d < m.TokenDim; d++ {
		cg.Set(0, d, cg.At(0, d)+dx.At(0, d))
	}
	dTokens := dx.Slice(1, cache.seqLen, 0, m.TokenDim).(*mat.Dense)
	m.Emb.Backward(row, dTokens)
}

// Predict returns an n×1 matrix of predictions.
func (m *FTTransformerRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !m.IsFitted() {
		return nil, errors.NewNotFittedError("FTTransformerRegressor", "Predict")
	}
	rows, cols := X.Dims()
	if cols != m.NFeatures {
		return nil, errors.NewDimensionError("FTTransformerRegressor.Predict", m.NFeatures, cols, 1)
	}

	out := mat.NewDense(rows, 1, nil)
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			row[j] = X.At(i, j)
		}
		pred, _ := m.forwardSample(row)
		out.Set(i, 0, pred)
	}
	return out, nil
}

// Snapshot deep-copies every trainable tensor.
func (m *FTTransformerRegressor) Snapshot() {
	if m.Emb == nil {
		return
	}
	params := m.params()
	m.snap = make([]*mat.Dense, len(params))
	for i, p := range params {
		m.snap[i] = p.Clone()
	}
}

// Restore reinstates the tensors captured by the last Snapshot.
func (m *FTTransformerRegressor) Restore() {
	if m.snap == nil {
		return
	}
	for i, p := range m.params() {
		p.W.Copy(m.snap[i])
	}
}

// GetParams returns the model's hyperparameters.
func (m *FTTransformerRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"embedding":     string(m.Embedding),
		"token_dim":     m.TokenDim,
		"blocks":        m.Blocks,
		"heads":         m.Heads,
		"ffn_hidden":    m.FFNHidden,
		"frequencies":   m.Frequencies,
		"sigma":         m.Sigma,
		"bins":          m.Bins,
		"learning_rate": m.LearningRate,
		"weight_decay":  m.WeightDecay,
		"batch_size":    m.BatchSize,
		"random_state":  m.Seed,
	}
}

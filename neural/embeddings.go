package neural

import (
	"encoding/gob"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/tabexp-labs/tabexp/pkg/errors"
	"github.com/tabexp-labs/tabexp/tree"
)

// EmbeddingKind selects how numerical features are mapped to tokens.
type EmbeddingKind string

const (
	// EmbeddingLinear maps x to x*w + b with a learned w, b per feature.
	EmbeddingLinear EmbeddingKind = "linear"
	// EmbeddingPeriodic encodes x with frozen random sin/cos frequencies
	// before a learned per-feature projection.
	EmbeddingPeriodic EmbeddingKind = "periodic"
	// EmbeddingQuantile uses piecewise linear encoding with bin edges
	// placed at empirical quantiles of the training data.
	EmbeddingQuantile EmbeddingKind = "ple_quantile"
	// EmbeddingTarget uses piecewise linear encoding with bin edges taken
	// from a per-feature regression tree fit against the label.
	EmbeddingTarget EmbeddingKind = "ple_target"
)

// FeatureEncoder is the fixed (non-trainable) featurization applied to a
// scalar feature value before the learned projection. Its parameters are
// determined once from training data and frozen afterwards.
type FeatureEncoder interface {
	// Fit derives the frozen encoding parameters from training data.
	Fit(X mat.Matrix, y *mat.VecDense) error
	// Width is the encoded vector length per feature.
	Width() int
	// Encode writes the encoding of feature j's value x into dst,
	// which has length Width().
	Encode(j int, x float64, dst []float64)
}

// IdentityEncoder passes the raw value through. Width 1.
type IdentityEncoder struct{}

func (IdentityEncoder) Fit(X mat.Matrix, y *mat.VecDense) error { return nil }
func (IdentityEncoder) Width() int                              { return 1 }
func (IdentityEncoder) Encode(j int, x float64, dst []float64)  { dst[0] = x }

// PeriodicEncoder encodes x as [sin(2π c₁x), …, cos(2π cₖx)] with
// frequencies cᵢ drawn once from N(0, Sigma²) per feature and frozen.
type PeriodicEncoder struct {
	Frequencies int
	Sigma       float64
	Seed        int64

	// Coeffs[j] holds the frozen frequencies of feature j.
	Coeffs [][]float64
}

func (p *PeriodicEncoder) Fit(X mat.Matrix, y *mat.VecDense) error {
	if p.Frequencies <= 0 {
		p.Frequencies = 16
	}
	if p.Sigma <= 0 {
		p.Sigma = 1.0
	}
	_, cols := X.Dims()
	rng := rand.New(rand.NewSource(p.Seed))
	p.Coeffs = make([][]float64, cols)
	for j := 0; j < cols; j++ {
		freqs := make([]float64, p.Frequencies)
		for i := range freqs {
			freqs[i] = rng.NormFloat64() * p.Sigma
		}
		p.Coeffs[j] = freqs
	}
	return nil
}

func (p *PeriodicEncoder) Width() int { return 2 * p.Frequencies }

func (p *PeriodicEncoder) Encode(j int, x float64, dst []float64) {
	freqs := p.Coeffs[j]
	for i, c := range freqs {
		v := 2 * math.Pi * c * x
		dst[i] = math.Sin(v)
		dst[len(freqs)+i] = math.Cos(v)
	}
}

// PLEEncoder implements piecewise linear encoding over fixed bin edges.
// Component t ramps linearly from 0 to 1 across bin t and saturates at 1
// for values past it. The outermost bins are unbounded, so out-of-range
// values extrapolate instead of clipping.
type PLEEncoder struct {
	Bins int

	// Edges[j] has Bins+1 sorted boundaries for feature j.
	Edges [][]float64

	// FromTargets switches bin placement from quantiles to the split
	// thresholds of a per-feature regression tree on the label.
	FromTargets bool
}

func (p *PLEEncoder) Fit(X mat.Matrix, y *mat.VecDense) error {
	if p.Bins <= 0 {
		p.Bins = 8
	}
	rows, cols := X.Dims()
	if rows < 2 {
		return errors.NewModelError("PLEEncoder.Fit", "need at least 2 rows to place bins", errors.ErrEmptyData)
	}
	if p.FromTargets && y == nil {
		return errors.NewValidationError("labels", "target-binned encoding requires labels", nil)
	}

	p.Edges = make([][]float64, cols)
	for j := 0; j < cols; j++ {
		col := make([]float64, rows)
		for i := 0; i < rows; i++ {
			col[i] = X.At(i, j)
		}
		var edges []float64
		var err error
		if p.FromTargets {
			edges, err = targetEdges(col, y, p.Bins)
		} else {
			edges = quantileEdges(col, p.Bins)
		}
		if err != nil {
			return err
		}
		p.Edges[j] = edges
	}
	return nil
}

func (p *PLEEncoder) Width() int { return p.Bins }

func (p *PLEEncoder) Encode(j int, x float64, dst []float64) {
	edges := p.Edges[j]
	last := len(edges) - 2
	for t := 0; t <= last; t++ {
		lo, hi := edges[t], edges[t+1]
		w := hi - lo
		if w <= 0 {
			if x >= hi {
				dst[t] = 1
			} else {
				dst[t] = 0
			}
			continue
		}
		v := (x - lo) / w
		if t > 0 && v < 0 {
			v = 0
		}
		if t < last && v > 1 {
			v = 1
		}
		dst[t] = v
	}
}

// quantileEdges places bins+1 boundaries at evenly spaced empirical
// quantiles, deduplicated so ties in the data collapse into zero-width
// bins handled by Encode.
func quantileEdges(col []float64, bins int) []float64 {
	sorted := append([]float64(nil), col...)
	sort.Float64s(sorted)
	edges := make([]float64, bins+1)
	n := len(sorted)
	for t := 0; t <= bins; t++ {
		pos := float64(t) / float64(bins) * float64(n-1)
		lo := int(math.Floor(pos))
		frac := pos - float64(lo)
		if lo+1 < n {
			edges[t] = sorted[lo]*(1-frac) + sorted[lo+1]*frac
		} else {
			edges[t] = sorted[n-1]
		}
	}
	return edges
}

// targetEdges fits a depth-limited regression tree on a single feature
// against the label and uses its split thresholds as interior boundaries.
// When the tree yields fewer splits than requested, the remaining bins
// collapse onto the data range.
func targetEdges(col []float64, y *mat.VecDense, bins int) ([]float64, error) {
	depth := 1
	for (1 << depth) < bins {
		depth++
	}
	t := tree.NewRegressionTree(depth, 1)
	X := mat.NewDense(len(col), 1, append([]float64(nil), col...))
	if err := t.Fit(X, y); err != nil {
		return nil, err
	}

	var thresholds []float64
	for _, node := range t.Nodes {
		if !node.Leaf {
			thresholds = append(thresholds, node.Threshold)
		}
	}
	sort.Float64s(thresholds)
	if len(thresholds) > bins-1 {
		// Keep evenly spread thresholds when the tree over-delivers.
		kept := make([]float64, 0, bins-1)
		for t := 1; t < bins; t++ {
			kept = append(kept, thresholds[t*len(thresholds)/bins])
		}
		thresholds = kept
	}

	lo, hi := col[0], col[0]
	for _, v := range col {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	edges := make([]float64, 0, bins+1)
	edges = append(edges, lo)
	edges = append(edges, thresholds...)
	for len(edges) < bins {
		edges = append(edges, hi)
	}
	edges = append(edges, hi)
	return edges, nil
}

// NumericalEmbedding maps each scalar feature to a d-dimensional token:
// the frozen encoder output is multiplied by a learned per-feature
// projection and shifted by a learned per-feature bias.
type NumericalEmbedding struct {
	Encoder   FeatureEncoder
	NFeatures int
	Dim       int

	// Proj[j] is Width×Dim, Bias[j] is 1×Dim.
	Proj []*Param
	Bias []*Param

	buf []float64
}

// NewNumericalEmbedding builds and fits an embedding of the given kind.
func NewNumericalEmbedding(kind EmbeddingKind, dim, frequencies, bins int, sigma float64, seed int64, X mat.Matrix, y *mat.VecDense, rng *rand.Rand) (*NumericalEmbedding, error) {
	var enc FeatureEncoder
	switch kind {
	case EmbeddingLinear:
		enc = IdentityEncoder{}
	case EmbeddingPeriodic:
		enc = &PeriodicEncoder{Frequencies: frequencies, Sigma: sigma, Seed: seed}
	case EmbeddingQuantile:
		enc = &PLEEncoder{Bins: bins}
	case EmbeddingTarget:
		enc = &PLEEncoder{Bins: bins, FromTargets: true}
	default:
		return nil, errors.NewValidationError("embedding", "unknown embedding kind", string(kind))
	}
	if err := enc.Fit(X, y); err != nil {
		return nil, err
	}

	_, cols := X.Dims()
	e := &NumericalEmbedding{
		Encoder:   enc,
		NFeatures: cols,
		Dim:       dim,
	}
	width := enc.Width()
	std := 1.0 / math.Sqrt(float64(width))
	e.Proj = make([]*Param, cols)
	e.Bias = make([]*Param, cols)
	for j := 0; j < cols; j++ {
		e.Proj[j] = NewParamInit(width, dim, std, rng)
		e.Bias[j] = NewParam(1, dim)
	}
	e.buf = make([]float64, width)
	return e, nil
}

// Params returns the trainable projection and bias parameters.
func (e *NumericalEmbedding) Params() []*Param {
	out := make([]*Param, 0, 2*e.NFeatures)
	out = append(out, e.Proj...)
	out = append(out, e.Bias...)
	return out
}

// Tokens produces the F×Dim token matrix for one sample.
func (e *NumericalEmbedding) Tokens(row []float64) *mat.Dense {
	if e.buf == nil {
		e.buf = make([]float64, e.Encoder.Width())
	}
	out := mat.NewDense(e.NFeatures, e.Dim, nil)
	width := e.Encoder.Width()
	for j := 0; j < e.NFeatures; j++ {
		e.Encoder.Encode(j, row[j], e.buf)
		proj := e.Proj[j].W
		bias := e.Bias[j].W
		for d := 0; d < e.Dim; d++ {
			v := bias.At(0, d)
			for k := 0; k < width; k++ {
				v += e.buf[k] * proj.At(k, d)
			}
			out.Set(j, d, v)
		}
	}
	return out
}

// Backward accumulates parameter gradients for one sample given the
// gradient of the loss with respect to the feature tokens.
func (e *NumericalEmbedding) Backward(row []float64, dTokens *mat.Dense) {
	width := e.Encoder.Width()
	for j := 0; j < e.NFeatures; j++ {
		e.Encoder.Encode(j, row[j], e.buf)
		pg := e.Proj[j].Grad()
		bg := e.Bias[j].Grad()
		for d := 0; d < e.Dim; d++ {
			g := dTokens.At(j, d)
			bg.Set(0, d, bg.At(0, d)+g)
			for k := 0; k < width; k++ {
				pg.Set(k, d, pg.At(k, d)+e.buf[k]*g)
			}
		}
	}
}

func init() {
	gob.Register(IdentityEncoder{})
	gob.Register(&PeriodicEncoder{})
	gob.Register(&PLEEncoder{})
}

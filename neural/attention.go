package neural

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// LayerNorm normalizes each token row to zero mean and unit variance,
// then applies a learned per-dimension gain and bias.
type LayerNorm struct {
	Gain *Param // 1×d
	Bias *Param // 1×d
	Eps  float64
}

// NewLayerNorm creates a LayerNorm with gain 1 and bias 0.
func NewLayerNorm(d int) *LayerNorm {
	ln := &LayerNorm{
		Gain: NewParam(1, d),
		Bias: NewParam(1, d),
		Eps:  1e-5,
	}
	for j := 0; j < d; j++ {
		ln.Gain.W.Set(0, j, 1)
	}
	return ln
}

// Params returns the gain and bias.
func (ln *LayerNorm) Params() []*Param { return []*Param{ln.Gain, ln.Bias} }

type lnCache struct {
	xhat   *mat.Dense
	invStd []float64
}

// Forward normalizes x row by row.
func (ln *LayerNorm) Forward(x *mat.Dense) (*mat.Dense, *lnCache) {
	r, c := x.Dims()
	out := mat.NewDense(r, c, nil)
	cache := &lnCache{
		xhat:   mat.NewDense(r, c, nil),
		invStd: make([]float64, r),
	}
	for i := 0; i < r; i++ {
		var mean float64
		for j := 0; j < c; j++ {
			mean += x.At(i, j)
		}
		mean /= float64(c)
		var variance float64
		for j := 0; j < c; j++ {
			d := x.At(i, j) - mean
			variance += d * d
		}
		variance /= float64(c)
		inv := 1.0 / math.Sqrt(variance+ln.Eps)
		cache.invStd[i] = inv
		for j := 0; j < c; j++ {
			h := (x.At(i, j) - mean) * inv
			cache.xhat.Set(i, j, h)
			out.Set(i, j, h*ln.Gain.W.At(0, j)+ln.Bias.W.At(0, j))
		}
	}
	return out, cache
}

// Backward propagates the gradient through the normalization and
// accumulates gain and bias gradients.
func (ln *LayerNorm) Backward(dy *mat.Dense, cache *lnCache) *mat.Dense {
	r, c := dy.Dims()
	dx := mat.NewDense(r, c, nil)
	gg := ln.Gain.Grad()
	bg := ln.Bias.Grad()
	for i := 0; i < r; i++ {
		var sumG, sumGH float64
		for j := 0; j < c; j++ {
			g := dy.At(i, j) * ln.Gain.W.At(0, j)
			h := cache.xhat.At(i, j)
			sumG += g
			sumGH += g * h
			gg.Set(0, j, gg.At(0, j)+dy.At(i, j)*h)
			bg.Set(0, j, bg.At(0, j)+dy.At(i, j))
		}
		meanG := sumG / float64(c)
		meanGH := sumGH / float64(c)
		inv := cache.invStd[i]
		for j := 0; j < c; j++ {
			g := dy.At(i, j) * ln.Gain.W.At(0, j)
			h := cache.xhat.At(i, j)
			dx.Set(i, j, inv*(g-meanG-h*meanGH))
		}
	}
	return dx
}

// MultiHeadAttention is scaled dot-product self-attention over one
// sample's token matrix. Projections carry no bias.
type MultiHeadAttention struct {
	Heads int
	Dim   int
	Wq    *Param // d×d
	Wk    *Param
	Wv    *Param
	Wo    *Param
}

// NewMultiHeadAttention creates projections with Xavier-style init.
func NewMultiHeadAttention(dim, heads int, rng *rand.Rand) *MultiHeadAttention {
	std := 1.0 / math.Sqrt(float64(dim))
	return &MultiHeadAttention{
		Heads: heads,
		Dim:   dim,
		Wq:    NewParamInit(dim, dim, std, rng),
		Wk:    NewParamInit(dim, dim, std, rng),
		Wv:    NewParamInit(dim, dim, std, rng),
		Wo:    NewParamInit(dim, dim, std, rng),
	}
}

// Params returns all four projection matrices.
func (a *MultiHeadAttention) Params() []*Param {
	return []*Param{a.Wq, a.Wk, a.Wv, a.Wo}
}

type mhaCache struct {
	x, q, k, v *mat.Dense
	concat     *mat.Dense
	attn       []*mat.Dense // per head, T×T softmax rows
}

// Forward computes self-attention for a T×d token matrix.
func (a *MultiHeadAttention) Forward(x *mat.Dense) (*mat.Dense, *mhaCache) {
	t, _ := x.Dims()
	dh := a.Dim / a.Heads
	scale := 1.0 / math.Sqrt(float64(dh))

	q, k, v := &mat.Dense{}, &mat.Dense{}, &mat.Dense{}
	q.Mul(x, a.Wq.W)
	k.Mul(x, a.Wk.W)
	v.Mul(x, a.Wv.W)

	concat := mat.NewDense(t, a.Dim, nil)
	cache := &mhaCache{x: x, q: q, k: k, v: v, concat: concat, attn: make([]*mat.Dense, a.Heads)}

	for h := 0; h < a.Heads; h++ {
		qs := q.Slice(0, t, h*dh, (h+1)*dh).(*mat.Dense)
		ks := k.Slice(0, t, h*dh, (h+1)*dh).(*mat.Dense)
		vs := v.Slice(0, t, h*dh, (h+1)*dh).(*mat.Dense)

		scores := &mat.Dense{}
		scores.Mul(qs, ks.T())
		scores.Scale(scale, scores)
		softmaxRows(scores)
		cache.attn[h] = scores

		out := concat.Slice(0, t, h*dh, (h+1)*dh).(*mat.Dense)
		out.Mul(scores, vs)
	}

	result := &mat.Dense{}
	result.Mul(concat, a.Wo.W)
	return result, cache
}

// Backward returns the gradient with respect to the input tokens and
// accumulates projection gradients.
func (a *MultiHeadAttention) Backward(dOut *mat.Dense, cache *mhaCache) *mat.Dense {
	t, _ := dOut.Dims()
	dh := a.Dim / a.Heads
	scale := 1.0 / math.Sqrt(float64(dh))

	var woGrad mat.Dense
	woGrad.Mul(cache.concat.T(), dOut)
	a.Wo.Grad().Add(a.Wo.Grad(), &woGrad)

	dConcat := &mat.Dense{}
	dConcat.Mul(dOut, a.Wo.W.T())

	dq := mat.NewDense(t, a.Dim, nil)
	dk := mat.NewDense(t, a.Dim, nil)
	dv := mat.NewDense(t, a.Dim, nil)

	for h := 0; h < a.Heads; h++ {
		qs := cache.q.Slice(0, t, h*dh, (h+1)*dh).(*mat.Dense)
		ks := cache.k.Slice(0, t, h*dh, (h+1)*dh).(*mat.Dense)
		vs := cache.v.Slice(0, t, h*dh, (h+1)*dh).(*mat.Dense)
		attn := cache.attn[h]
		dHead := dConcat.Slice(0, t, h*dh, (h+1)*dh).(*mat.Dense)

		dvs := dv.Slice(0, t, h*dh, (h+1)*dh).(*mat.Dense)
		dvs.Mul(attn.T(), dHead)

		dAttn := &mat.Dense{}
		dAttn.Mul(dHead, vs.T())
		dScores := softmaxBackwardRows(dAttn, attn)
		dScores.Scale(scale, dScores)

		dqs := dq.Slice(0, t, h*dh, (h+1)*dh).(*mat.Dense)
		dqs.Mul(dScores, ks)
		dks := dk.Slice(0, t, h*dh, (h+1)*dh).(*mat.Dense)
		dks.Mul(dScores.T(), qs)
	}

	var g mat.Dense
	g.Mul(cache.x.T(), dq)
	a.Wq.Grad().Add(a.Wq.Grad(), &g)
	g.Reset()
	g.Mul(cache.x.T(), dk)
	a.Wk.Grad().Add(a.Wk.Grad(), &g)
	g.Reset()
	g.Mul(cache.x.T(), dv)
	a.Wv.Grad().Add(a.Wv.Grad(), &g)

	dx := &mat.Dense{}
	dx.Mul(dq, a.Wq.W.T())
	tmp := &mat.Dense{}
	tmp.Mul(dk, a.Wk.W.T())
	dx.Add(dx, tmp)
	tmp.Reset()
	tmp.Mul(dv, a.Wv.W.T())
	dx.Add(dx, tmp)
	return dx
}

// softmaxRows applies a numerically stable softmax to each row in place.
func softmaxRows(m *mat.Dense) {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		max := m.At(i, 0)
		for j := 1; j < c; j++ {
			if v := m.At(i, j); v > max {
				max = v
			}
		}
		var sum float64
		for j := 0; j < c; j++ {
			e := math.Exp(m.At(i, j) - max)
			m.Set(i, j, e)
			sum += e
		}
		for j := 0; j < c; j++ {
			m.Set(i, j, m.At(i, j)/sum)
		}
	}
}

// softmaxBackwardRows applies the softmax Jacobian row by row:
// dz = s ∘ (dy − ⟨dy, s⟩).
func softmaxBackwardRows(dy, s *mat.Dense) *mat.Dense {
	r, c := dy.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		var dot float64
		for j := 0; j < c; j++ {
			dot += dy.At(i, j) * s.At(i, j)
		}
		for j := 0; j < c; j++ {
			out.Set(i, j, s.At(i, j)*(dy.At(i, j)-dot))
		}
	}
	return out
}

// FeedForward is the position-wise two-layer MLP inside a transformer
// block, with a ReLU between the layers.
type FeedForward struct {
	W1 *Param // d×dff
	B1 *Param // 1×dff
	W2 *Param // dff×d
	B2 *Param // 1×d
}

// NewFeedForward creates the block MLP with He init on the first layer.
func NewFeedForward(dim, hidden int, rng *rand.Rand) *FeedForward {
	return &FeedForward{
		W1: NewParamInit(dim, hidden, math.Sqrt(2.0/float64(dim)), rng),
		B1: NewParam(1, hidden),
		W2: NewParamInit(hidden, dim, 1.0/math.Sqrt(float64(hidden)), rng),
		B2: NewParam(1, dim),
	}
}

// Params returns the four parameter tensors.
func (f *FeedForward) Params() []*Param {
	return []*Param{f.W1, f.B1, f.W2, f.B2}
}

type ffnCache struct {
	x      *mat.Dense
	hidden *mat.Dense // post-ReLU
}

// Forward applies the two layers to each token row.
func (f *FeedForward) Forward(x *mat.Dense) (*mat.Dense, *ffnCache) {
	hidden := &mat.Dense{}
	hidden.Mul(x, f.W1.W)
	addRowVector(hidden, f.B1.W)
	r, c := hidden.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if hidden.At(i, j) < 0 {
				hidden.Set(i, j, 0)
			}
		}
	}

	out := &mat.Dense{}
	out.Mul(hidden, f.W2.W)
	addRowVector(out, f.B2.W)
	return out, &ffnCache{x: x, hidden: hidden}
}

// Backward returns the input gradient and accumulates layer gradients.
func (f *FeedForward) Backward(dy *mat.Dense, cache *ffnCache) *mat.Dense {
	var g mat.Dense
	g.Mul(cache.hidden.T(), dy)
	f.W2.Grad().Add(f.W2.Grad(), &g)
	addColSums(f.B2.Grad(), dy)

	dHidden := &mat.Dense{}
	dHidden.Mul(dy, f.W2.W.T())
	r, c := dHidden.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if cache.hidden.At(i, j) <= 0 {
				dHidden.Set(i, j, 0)
			}
		}
	}

	g.Reset()
	g.Mul(cache.x.T(), dHidden)
	f.W1.Grad().Add(f.W1.Grad(), &g)
	addColSums(f.B1.Grad(), dHidden)

	dx := &mat.Dense{}
	dx.Mul(dHidden, f.W1.W.T())
	return dx
}

// addColSums adds the column sums of src into the 1×c destination.
func addColSums(dst *mat.Dense, src *mat.Dense) {
	r, c := src.Dims()
	for j := 0; j < c; j++ {
		var sum float64
		for i := 0; i < r; i++ {
			sum += src.At(i, j)
		}
		dst.Set(0, j, dst.At(0, j)+sum)
	}
}

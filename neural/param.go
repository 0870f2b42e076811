// Package neural implements the neural model families trained by the
// harness: a multi-layer perceptron and a feature-token transformer for
// tabular data. All math is dense gonum operations; training is plain
// minibatch backpropagation with AdamW.
package neural

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Param is one trainable tensor with its gradient accumulator.
// Only the weights survive serialization; gradients and optimizer state are
// rebuilt on the next training step.
type Param struct {
	W    *mat.Dense
	grad *mat.Dense
}

// NewParam allocates a zeroed r×c parameter.
func NewParam(r, c int) *Param {
	return &Param{
		W:    mat.NewDense(r, c, nil),
		grad: mat.NewDense(r, c, nil),
	}
}

// NewParamInit allocates an r×c parameter with N(0, std) entries.
func NewParamInit(r, c int, std float64, rng *rand.Rand) *Param {
	p := NewParam(r, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			p.W.Set(i, j, rng.NormFloat64()*std)
		}
	}
	return p
}

// Grad returns the gradient accumulator, allocating it after deserialization.
func (p *Param) Grad() *mat.Dense {
	if p.grad == nil {
		r, c := p.W.Dims()
		p.grad = mat.NewDense(r, c, nil)
	}
	return p.grad
}

// ZeroGrad clears the gradient accumulator.
func (p *Param) ZeroGrad() {
	p.Grad().Zero()
}

// Clone returns a deep copy of the weights only.
func (p *Param) Clone() *mat.Dense {
	return mat.DenseCopyOf(p.W)
}

// GobEncode serializes the weights via gonum's binary encoding.
func (p *Param) GobEncode() ([]byte, error) {
	return p.W.MarshalBinary()
}

// GobDecode restores the weights via gonum's binary encoding.
func (p *Param) GobDecode(data []byte) error {
	p.W = &mat.Dense{}
	return p.W.UnmarshalBinary(data)
}

// AdamW is the decoupled-weight-decay Adam optimizer.
type AdamW struct {
	LR          float64
	Beta1       float64
	Beta2       float64
	Eps         float64
	WeightDecay float64

	step int
	m    []*mat.Dense
	v    []*mat.Dense
}

// NewAdamW creates an optimizer with the usual Adam moment defaults.
func NewAdamW(lr, weightDecay float64) *AdamW {
	return &AdamW{
		LR:          lr,
		Beta1:       0.9,
		Beta2:       0.999,
		Eps:         1e-8,
		WeightDecay: weightDecay,
	}
}

// Step applies one update to every parameter from its accumulated gradient.
// The params slice must be identical (same order, same shapes) on every call.
func (o *AdamW) Step(params []*Param) {
	if o.m == nil {
		o.m = make([]*mat.Dense, len(params))
		o.v = make([]*mat.Dense, len(params))
		for i, p := range params {
			r, c := p.W.Dims()
			o.m[i] = mat.NewDense(r, c, nil)
			o.v[i] = mat.NewDense(r, c, nil)
		}
	}
	o.step++
	bc1 := 1 - math.Pow(o.Beta1, float64(o.step))
	bc2 := 1 - math.Pow(o.Beta2, float64(o.step))

	for i, p := range params {
		g := p.Grad()
		r, c := p.W.Dims()
		for a := 0; a < r; a++ {
			for b := 0; b < c; b++ {
				grad := g.At(a, b)
				m := o.Beta1*o.m[i].At(a, b) + (1-o.Beta1)*grad
				v := o.Beta2*o.v[i].At(a, b) + (1-o.Beta2)*grad*grad
				o.m[i].Set(a, b, m)
				o.v[i].Set(a, b, v)

				mHat := m / bc1
				vHat := v / bc2
				w := p.W.At(a, b)
				w -= o.LR * (mHat/(math.Sqrt(vHat)+o.Eps) + o.WeightDecay*w)
				p.W.Set(a, b, w)
			}
		}
	}
}

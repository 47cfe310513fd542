package agent

import (
	"math"

	"golang.org/x/exp/rand"

	"github.com/distrl/hertrain/core"
)

// LinearModel is an affine map with an optional scaled tanh squash on
// the output, implementing the Model contract with hand-derived
// gradients. It is the reference function approximator for tests and
// the demo command; anything satisfying core.Model can replace it.
type LinearModel struct {
	in  int
	out int

	// squash bounds outputs to [-scale, scale]
	squash bool
	scale  float64

	rows []*core.Param // one weight row per output
	bias *core.Param
}

var _ core.Model = &LinearModel{}

// NewLinearModel creates a model with small uniform random weights.
func NewLinearModel(in, out int, rng *rand.Rand) *LinearModel {
	m := &LinearModel{
		in:   in,
		out:  out,
		rows: make([]*core.Param, out),
		bias: core.NewParam(out),
	}
	bound := 1 / math.Sqrt(float64(in))
	for i := range m.rows {
		m.rows[i] = core.NewParam(in)
		for j := range m.rows[i].Data {
			m.rows[i].Data[j] = (rng.Float64()*2 - 1) * bound
		}
	}
	return m
}

// NewSquashedLinearModel creates a model whose outputs pass through
// scale*tanh, keeping them in [-scale, scale].
func NewSquashedLinearModel(in, out int, scale float64, rng *rand.Rand) *LinearModel {
	m := NewLinearModel(in, out, rng)
	m.squash = true
	m.scale = scale
	return m
}

func (m *LinearModel) Forward(input []float64) []float64 {
	out := make([]float64, m.out)
	for i := 0; i < m.out; i++ {
		z := m.bias.Data[i]
		row := m.rows[i].Data
		for j, x := range input {
			z += row[j] * x
		}
		if m.squash {
			z = m.scale * math.Tanh(z)
		}
		out[i] = z
	}
	return out
}

// Backward accumulates parameter gradients for the forward pass at input
// and returns the gradient with respect to the input.
func (m *LinearModel) Backward(input, outputGrad []float64) []float64 {
	inGrad := make([]float64, m.in)
	for i := 0; i < m.out; i++ {
		g := outputGrad[i]
		if m.squash {
			z := m.bias.Data[i]
			row := m.rows[i].Data
			for j, x := range input {
				z += row[j] * x
			}
			th := math.Tanh(z)
			g *= m.scale * (1 - th*th)
		}
		m.bias.Grad[i] += g
		row := m.rows[i]
		for j, x := range input {
			row.Grad[j] += g * x
			inGrad[j] += row.Data[j] * g
		}
	}
	return inGrad
}

// Parameters returns the weight rows followed by the bias, in a fixed
// order so replicas synchronize index-wise.
func (m *LinearModel) Parameters() []*core.Param {
	params := make([]*core.Param, 0, len(m.rows)+1)
	params = append(params, m.rows...)
	params = append(params, m.bias)
	return params
}

func (m *LinearModel) ZeroGrads() {
	for _, p := range m.Parameters() {
		for i := range p.Grad {
			p.Grad[i] = 0
		}
	}
}

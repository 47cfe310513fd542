package agent

import (
	"math"

	"github.com/distrl/hertrain/core"
)

// SGD applies plain gradient descent.
type SGD struct {
	LR float64
}

var _ core.Optimizer = &SGD{}

func (o *SGD) Step(net core.Network) {
	for _, p := range net.Parameters() {
		for i := range p.Data {
			p.Data[i] -= o.LR * p.Grad[i]
		}
	}
}

// Adam applies the Adam update rule. Moment state is allocated lazily on
// the first step and keyed by parameter index, so a given Adam instance
// must always step the same network.
type Adam struct {
	LR    float64
	Beta1 float64
	Beta2 float64
	Eps   float64

	t int
	m [][]float64
	v [][]float64
}

var _ core.Optimizer = &Adam{}

func NewAdam(lr float64) *Adam {
	return &Adam{
		LR:    lr,
		Beta1: 0.9,
		Beta2: 0.999,
		Eps:   1e-8,
	}
}

func (o *Adam) Step(net core.Network) {
	params := net.Parameters()
	if o.m == nil {
		o.m = make([][]float64, len(params))
		o.v = make([][]float64, len(params))
		for i, p := range params {
			o.m[i] = make([]float64, len(p.Data))
			o.v[i] = make([]float64, len(p.Data))
		}
	}
	o.t++
	c1 := 1 - math.Pow(o.Beta1, float64(o.t))
	c2 := 1 - math.Pow(o.Beta2, float64(o.t))
	for i, p := range params {
		for j := range p.Data {
			g := p.Grad[j]
			o.m[i][j] = o.Beta1*o.m[i][j] + (1-o.Beta1)*g
			o.v[i][j] = o.Beta2*o.v[i][j] + (1-o.Beta2)*g*g
			mHat := o.m[i][j] / c1
			vHat := o.v[i][j] / c2
			p.Data[j] -= o.LR * mHat / (math.Sqrt(vHat) + o.Eps)
		}
	}
}

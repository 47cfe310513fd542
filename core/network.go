package core

// Param is one parameter tensor of a network together with its
// accumulated gradient. Data and Grad always have the same length.
type Param struct {
	Data []float64
	Grad []float64
}

// NewParam allocates a zeroed parameter tensor of the given size.
func NewParam(size int) *Param {
	return &Param{
		Data: make([]float64, size),
		Grad: make([]float64, size),
	}
}

// Network is an opaque differentiable function. Parameters must return
// the same tensors in the same order on every call, and the order must
// be identical across worker replicas; index-wise parameter and gradient
// synchronization relies on it.
type Network interface {
	Forward(input []float64) []float64
	Parameters() []*Param
}

// Model extends Network with gradient accumulation. Backward takes the
// input a forward pass was evaluated at and the gradient of the loss with
// respect to the output, accumulates parameter gradients, and returns the
// gradient with respect to the input.
type Model interface {
	Network
	Backward(input, outputGrad []float64) []float64
	ZeroGrads()
}

// Optimizer applies one first-order update from accumulated gradients.
type Optimizer interface {
	Step(net Network)
}

package dist

import (
	"gonum.org/v1/gonum/floats"

	"github.com/distrl/hertrain/core"
)

// SyncNetwork overwrites the member's parameters with the coordinator's,
// so every replica starts from bit-identical weights. Call once per
// network at startup, on all members.
func (m *Member) SyncNetwork(net core.Network) error {
	params := net.Parameters()
	flat, dims := flatten(params, func(p *core.Param) []float64 { return p.Data })
	synced, err := m.broadcast(flat, dims)
	if err != nil {
		return err
	}
	scatter(params, synced, func(p *core.Param) []float64 { return p.Data })
	return nil
}

// SyncGrads replaces the member's parameter gradients with the average
// over the whole group, in place. Call after the local backward pass and
// before the optimizer step.
func (m *Member) SyncGrads(net core.Network) error {
	params := net.Parameters()
	flat, dims := flatten(params, func(p *core.Param) []float64 { return p.Grad })
	reduced, err := m.group.exchange(contribution{vec: flat, dims: dims, root: m.coordinator}, func(cs []contribution) ([]float64, error) {
		if err := checkShapes(cs); err != nil {
			return nil, err
		}
		sum := make([]float64, len(cs[0].vec))
		for _, c := range cs {
			floats.Add(sum, c.vec)
		}
		floats.Scale(1/float64(len(cs)), sum)
		return sum, nil
	})
	if err != nil {
		return err
	}
	scatter(params, reduced, func(p *core.Param) []float64 { return p.Grad })
	return nil
}

func flatten(params []*core.Param, tensor func(*core.Param) []float64) ([]float64, []int) {
	total := 0
	dims := make([]int, len(params))
	for i, p := range params {
		dims[i] = len(tensor(p))
		total += dims[i]
	}
	flat := make([]float64, 0, total)
	for _, p := range params {
		flat = append(flat, tensor(p)...)
	}
	return flat, dims
}

func scatter(params []*core.Param, flat []float64, tensor func(*core.Param) []float64) {
	offset := 0
	for _, p := range params {
		t := tensor(p)
		copy(t, flat[offset:offset+len(t)])
		offset += len(t)
	}
}

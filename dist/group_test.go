package dist

import (
	"errors"
	"sync"
	"testing"

	"github.com/distrl/hertrain/core"
)

// fakeNet is a minimal Network with a fixed parameter layout.
type fakeNet struct {
	params []*core.Param
}

func newFakeNet(sizes ...int) *fakeNet {
	n := &fakeNet{}
	for _, s := range sizes {
		n.params = append(n.params, core.NewParam(s))
	}
	return n
}

func (n *fakeNet) Forward(input []float64) []float64 { return input }
func (n *fakeNet) Parameters() []*core.Param         { return n.params }

func TestNewGroup(t *testing.T) {
	if _, err := NewGroup(0); !errors.Is(err, core.ErrInvalidConfiguration) {
		t.Errorf("size 0: err = %v, want ErrInvalidConfiguration", err)
	}
	g, err := NewGroup(3)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.Join(3); !errors.Is(err, core.ErrInvalidConfiguration) {
		t.Errorf("rank out of range: err = %v, want ErrInvalidConfiguration", err)
	}
	m, err := g.Join(0)
	if err != nil {
		t.Fatal(err)
	}
	if !m.Coordinator() {
		t.Error("rank 0 is not the coordinator")
	}
	m, err = g.Join(2)
	if err != nil {
		t.Fatal(err)
	}
	if m.Coordinator() {
		t.Error("rank 2 claims to be the coordinator")
	}
}

// runMembers runs fn once per rank concurrently and waits for all.
func runMembers(t *testing.T, size int, fn func(m *Member) error) {
	t.Helper()
	g, err := NewGroup(size)
	if err != nil {
		t.Fatal(err)
	}
	errs := make([]error, size)
	var wg sync.WaitGroup
	for rank := 0; rank < size; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			m, err := g.Join(rank)
			if err != nil {
				errs[rank] = err
				return
			}
			errs[rank] = fn(m)
		}(rank)
	}
	wg.Wait()
	for rank, err := range errs {
		if err != nil {
			t.Fatalf("rank %d: %v", rank, err)
		}
	}
}

func TestAllreduceScalar(t *testing.T) {
	var mu sync.Mutex
	sums := make(map[int]float64)
	means := make(map[int]float64)

	runMembers(t, 3, func(m *Member) error {
		v := float64(m.Rank() + 1)
		sum, err := m.AllreduceScalar(v, SUM)
		if err != nil {
			return err
		}
		mean, err := m.AllreduceScalar(v, MEAN)
		if err != nil {
			return err
		}
		mu.Lock()
		sums[m.Rank()] = sum
		means[m.Rank()] = mean
		mu.Unlock()
		return nil
	})

	for rank := 0; rank < 3; rank++ {
		if sums[rank] != 6 {
			t.Errorf("rank %d: sum = %f, want 6", rank, sums[rank])
		}
		if means[rank] != 2 {
			t.Errorf("rank %d: mean = %f, want 2", rank, means[rank])
		}
	}
}

func TestSyncNetworkBroadcastsCoordinatorParams(t *testing.T) {
	const size = 3
	nets := make([]*fakeNet, size)
	for i := range nets {
		nets[i] = newFakeNet(4, 2)
		for _, p := range nets[i].params {
			for j := range p.Data {
				p.Data[j] = float64(i*100 + j)
			}
		}
	}

	runMembers(t, size, func(m *Member) error {
		return m.SyncNetwork(nets[m.Rank()])
	})

	for i := 1; i < size; i++ {
		for pi, p := range nets[i].params {
			for j := range p.Data {
				if p.Data[j] != nets[0].params[pi].Data[j] {
					t.Fatalf("rank %d param %d[%d] = %f, want coordinator's %f",
						i, pi, j, p.Data[j], nets[0].params[pi].Data[j])
				}
			}
		}
	}
}

func TestSyncGradsAverages(t *testing.T) {
	const size = 2
	nets := make([]*fakeNet, size)
	for i := range nets {
		nets[i] = newFakeNet(3)
		for j := range nets[i].params[0].Grad {
			nets[i].params[0].Grad[j] = float64(1 + 2*i) // 1 and 3
		}
	}

	runMembers(t, size, func(m *Member) error {
		return m.SyncGrads(nets[m.Rank()])
	})

	for i := 0; i < size; i++ {
		for j, g := range nets[i].params[0].Grad {
			if g != 2 {
				t.Fatalf("rank %d grad[%d] = %f, want averaged 2", i, j, g)
			}
		}
	}
}

func TestWorkersStayIdenticalAfterStep(t *testing.T) {
	const size = 2
	const lr = 0.1
	nets := make([]*fakeNet, size)
	for i := range nets {
		nets[i] = newFakeNet(4)
	}

	runMembers(t, size, func(m *Member) error {
		net := nets[m.Rank()]
		if err := m.SyncNetwork(net); err != nil {
			return err
		}
		// worker-local gradients differ
		for j := range net.params[0].Grad {
			net.params[0].Grad[j] = float64(m.Rank()*10 + j)
		}
		if err := m.SyncGrads(net); err != nil {
			return err
		}
		// identical local optimizer step
		for _, p := range net.params {
			for j := range p.Data {
				p.Data[j] -= lr * p.Grad[j]
			}
		}
		return nil
	})

	for j := range nets[0].params[0].Data {
		if nets[0].params[0].Data[j] != nets[1].params[0].Data[j] {
			t.Fatalf("replicas diverged at [%d]: %v vs %v",
				j, nets[0].params[0].Data, nets[1].params[0].Data)
		}
	}
}

func TestTopologyMismatchFailsFast(t *testing.T) {
	const size = 2
	results := make([]error, size)

	g, err := NewGroup(size)
	if err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for rank := 0; rank < size; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			m, err := g.Join(rank)
			if err != nil {
				results[rank] = err
				return
			}
			// workers disagree on the tensor layout
			net := newFakeNet(3 + rank)
			results[rank] = m.SyncGrads(net)
		}(rank)
	}
	wg.Wait()

	for rank, err := range results {
		if !errors.Is(err, core.ErrTopologyMismatch) {
			t.Errorf("rank %d: err = %v, want ErrTopologyMismatch", rank, err)
		}
	}
}

func TestBarrier(t *testing.T) {
	runMembers(t, 4, func(m *Member) error {
		return m.Barrier()
	})
}

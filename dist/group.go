package dist

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/distrl/hertrain/core"
)

// Op selects how an all-reduce combines contributions.
type Op int

const (
	SUM Op = iota
	MEAN
)

// Group is a fixed cohort of workers coordinating through collective
// operations. Every collective is a synchronous barrier: a call blocks
// until all members of the group have entered the same round, then all
// calls return with consistent data. There are no timeouts; a stalled
// member stalls the cohort.
type Group struct {
	size int

	mu  sync.Mutex
	cur *round
}

// round is one in-flight collective. The member completing the round
// computes the result and releases the others by closing done.
type round struct {
	contribs []contribution
	done     chan struct{}
	result   []float64
	err      error
}

type contribution struct {
	vec  []float64
	dims []int
	root bool
}

func NewGroup(size int) (*Group, error) {
	if size < 1 {
		return nil, fmt.Errorf("group size %d: %w", size, core.ErrInvalidConfiguration)
	}
	return &Group{size: size}, nil
}

func (g *Group) Size() int {
	return g.size
}

// Join creates the member handle for the given rank. Rank 0 is the
// coordinator; the role is fixed at group formation.
func (g *Group) Join(rank int) (*Member, error) {
	if rank < 0 || rank >= g.size {
		return nil, fmt.Errorf("rank %d out of range for group of %d: %w", rank, g.size, core.ErrInvalidConfiguration)
	}
	return &Member{
		group:       g,
		rank:        rank,
		coordinator: rank == 0,
	}, nil
}

// exchange runs one collective round: the last arrival applies reduce to
// all contributions and everyone receives a private copy of the result.
func (g *Group) exchange(c contribution, reduce func([]contribution) ([]float64, error)) ([]float64, error) {
	g.mu.Lock()
	r := g.cur
	if r == nil {
		r = &round{
			contribs: make([]contribution, 0, g.size),
			done:     make(chan struct{}),
		}
		g.cur = r
	}
	r.contribs = append(r.contribs, c)
	last := len(r.contribs) == g.size
	if last {
		g.cur = nil
	}
	g.mu.Unlock()

	if last {
		r.result, r.err = reduce(r.contribs)
		close(r.done)
	} else {
		<-r.done
	}
	if r.err != nil {
		return nil, r.err
	}
	out := make([]float64, len(r.result))
	copy(out, r.result)
	return out, nil
}

// Member is one worker's handle on the group.
type Member struct {
	group       *Group
	rank        int
	coordinator bool
}

func (m *Member) Rank() int {
	return m.rank
}

func (m *Member) Coordinator() bool {
	return m.coordinator
}

func (m *Member) GroupSize() int {
	return m.group.size
}

// Barrier blocks until every member has entered it.
func (m *Member) Barrier() error {
	_, err := m.group.exchange(contribution{}, func([]contribution) ([]float64, error) {
		return nil, nil
	})
	return err
}

// Allreduce combines equally-shaped vectors from all members and returns
// the identical combined vector to each.
func (m *Member) Allreduce(vec []float64, op Op) ([]float64, error) {
	return m.group.exchange(contribution{vec: vec, root: m.coordinator}, func(cs []contribution) ([]float64, error) {
		if err := checkShapes(cs); err != nil {
			return nil, err
		}
		sum := make([]float64, len(cs[0].vec))
		for _, c := range cs {
			floats.Add(sum, c.vec)
		}
		if op == MEAN {
			floats.Scale(1/float64(len(cs)), sum)
		}
		return sum, nil
	})
}

// AllreduceScalar aggregates one value across the group.
func (m *Member) AllreduceScalar(v float64, op Op) (float64, error) {
	out, err := m.Allreduce([]float64{v}, op)
	if err != nil {
		return 0, err
	}
	return out[0], nil
}

// broadcast distributes the coordinator's vector to every member. All
// members contribute their local vector so shapes can be validated.
func (m *Member) broadcast(vec []float64, dims []int) ([]float64, error) {
	return m.group.exchange(contribution{vec: vec, dims: dims, root: m.coordinator}, func(cs []contribution) ([]float64, error) {
		if err := checkShapes(cs); err != nil {
			return nil, err
		}
		for _, c := range cs {
			if c.root {
				return c.vec, nil
			}
		}
		return nil, fmt.Errorf("broadcast round without a coordinator: %w", core.ErrInvalidConfiguration)
	})
}

// checkShapes fails the round if members disagree on tensor layout.
func checkShapes(cs []contribution) error {
	ref := cs[0]
	for _, c := range cs[1:] {
		if len(c.vec) != len(ref.vec) {
			return fmt.Errorf("gradient vector length %d vs %d: %w", len(c.vec), len(ref.vec), core.ErrTopologyMismatch)
		}
		if len(c.dims) != len(ref.dims) {
			return fmt.Errorf("%d tensors vs %d: %w", len(c.dims), len(ref.dims), core.ErrTopologyMismatch)
		}
		for i := range c.dims {
			if c.dims[i] != ref.dims[i] {
				return fmt.Errorf("tensor %d has size %d vs %d: %w", i, c.dims[i], ref.dims[i], core.ErrTopologyMismatch)
			}
		}
	}
	return nil
}

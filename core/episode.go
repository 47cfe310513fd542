package core

import "fmt"

// Episode is one rollout: T+1 observations and achieved goals, T actions
// and desired goals. The goal is fixed for the episode but stored per
// step so episodes batch uniformly.
type Episode struct {
	Obs          [][]float64
	AchievedGoal [][]float64
	DesiredGoal  [][]float64
	Actions      [][]float64
}

// Horizon returns the number of transitions T in the episode.
func (e *Episode) Horizon() int {
	return len(e.Actions)
}

// Validate checks the episode's sequence lengths against the horizon.
func (e *Episode) Validate(horizon int) error {
	if len(e.Actions) != horizon {
		return fmt.Errorf("%d actions, want %d: %w", len(e.Actions), horizon, ErrShapeMismatch)
	}
	if len(e.DesiredGoal) != horizon {
		return fmt.Errorf("%d desired goals, want %d: %w", len(e.DesiredGoal), horizon, ErrShapeMismatch)
	}
	if len(e.Obs) != horizon+1 {
		return fmt.Errorf("%d observations, want %d: %w", len(e.Obs), horizon+1, ErrShapeMismatch)
	}
	if len(e.AchievedGoal) != horizon+1 {
		return fmt.Errorf("%d achieved goals, want %d: %w", len(e.AchievedGoal), horizon+1, ErrShapeMismatch)
	}
	return nil
}

// Clone returns a deep copy of the episode.
func (e *Episode) Clone() Episode {
	return Episode{
		Obs:          cloneMatrix(e.Obs),
		AchievedGoal: cloneMatrix(e.AchievedGoal),
		DesiredGoal:  cloneMatrix(e.DesiredGoal),
		Actions:      cloneMatrix(e.Actions),
	}
}

func cloneMatrix(m [][]float64) [][]float64 {
	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = make([]float64, len(row))
		copy(out[i], row)
	}
	return out
}

// Batch is a minibatch of relabeled transitions. All fields have the
// same leading length.
type Batch struct {
	Obs     [][]float64
	ObsNext [][]float64
	AG      [][]float64
	AGNext  [][]float64
	G       [][]float64
	Actions [][]float64
	R       []float64
}

// NewBatch preallocates an empty batch with the given capacity.
func NewBatch(capacity int) *Batch {
	return &Batch{
		Obs:     make([][]float64, 0, capacity),
		ObsNext: make([][]float64, 0, capacity),
		AG:      make([][]float64, 0, capacity),
		AGNext:  make([][]float64, 0, capacity),
		G:       make([][]float64, 0, capacity),
		Actions: make([][]float64, 0, capacity),
		R:       make([]float64, 0, capacity),
	}
}

// Len returns the number of transitions in the batch.
func (b *Batch) Len() int {
	return len(b.R)
}

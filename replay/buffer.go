package replay

import (
	"fmt"
	"sync"

	"github.com/distrl/hertrain/core"
)

// SampleFunc turns stored episodes into a relabeled transition batch.
// Implementations must copy everything they return; the buffer owns the
// episode storage.
type SampleFunc func(episodes []core.Episode, batchSize int) (*core.Batch, error)

// Buffer is a fixed-capacity circular store of whole episodes. Capacity
// is given in transitions and converted to episode slots; once full, the
// oldest slot is overwritten first. Each worker owns a private Buffer;
// the mutex only guards against interleaved local calls.
type Buffer struct {
	mu sync.Mutex

	horizon  int
	capacity int
	current  int
	next     int

	episodes []core.Episode
	sample   SampleFunc
}

// NewBuffer creates a buffer holding bufferSize transitions of episodes
// with params.MaxTimesteps steps each.
func NewBuffer(params core.EnvParams, bufferSize int, sample SampleFunc) (*Buffer, error) {
	if params.MaxTimesteps <= 0 {
		return nil, fmt.Errorf("episode horizon %d: %w", params.MaxTimesteps, core.ErrInvalidConfiguration)
	}
	capacity := bufferSize / params.MaxTimesteps
	if capacity < 1 {
		return nil, fmt.Errorf("buffer size %d below one episode of %d transitions: %w",
			bufferSize, params.MaxTimesteps, core.ErrInvalidConfiguration)
	}
	if sample == nil {
		return nil, fmt.Errorf("nil sample function: %w", core.ErrInvalidConfiguration)
	}
	return &Buffer{
		horizon:  params.MaxTimesteps,
		capacity: capacity,
		episodes: make([]core.Episode, capacity),
		sample:   sample,
	}, nil
}

// Capacity returns the number of episode slots.
func (b *Buffer) Capacity() int {
	return b.capacity
}

// Size returns the number of currently valid episodes.
func (b *Buffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// StoreEpisodes writes each episode into the next circular slot,
// overwriting the oldest once at capacity. Every episode is validated
// before any write, so a shape mismatch stores nothing. The buffer keeps
// its own copies of all arrays.
func (b *Buffer) StoreEpisodes(eps []core.Episode) error {
	for i := range eps {
		if err := eps[i].Validate(b.horizon); err != nil {
			return fmt.Errorf("episode %d: %w", i, err)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range eps {
		b.episodes[b.next] = eps[i].Clone()
		b.next = (b.next + 1) % b.capacity
		if b.current < b.capacity {
			b.current++
		}
	}
	return nil
}

// Sample draws batchSize transitions uniformly with replacement from the
// valid episodes via the injected sample function.
func (b *Buffer) Sample(batchSize int) (*core.Batch, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == 0 {
		return nil, fmt.Errorf("sample of %d transitions: %w", batchSize, core.ErrEmptyBuffer)
	}
	return b.sample(b.episodes[:b.current], batchSize)
}

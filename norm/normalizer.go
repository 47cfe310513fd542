package norm

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/distrl/hertrain/dist"
	"github.com/distrl/hertrain/util"
)

const defaultEps = 1e-2

// Normalizer keeps running mean/std statistics of a vector signal and
// normalizes samples against them. Updates accumulate into local
// counters; RecomputeStats (or SyncStats, which first all-reduces the
// local counters across a worker group) folds them into the global
// accumulators and rederives mean and std. Instances are per worker and
// not safe for concurrent use.
type Normalizer struct {
	size      int
	eps       float64
	clipRange float64

	// local increments since the last recompute
	localCount float64
	localSum   []float64
	localSumSq []float64

	count float64
	sum   []float64
	sumSq []float64

	mean []float64
	std  []float64
}

func NewNormalizer(size int, clipRange float64) *Normalizer {
	n := &Normalizer{
		size:       size,
		eps:        defaultEps,
		clipRange:  clipRange,
		localSum:   make([]float64, size),
		localSumSq: make([]float64, size),
		sum:        make([]float64, size),
		sumSq:      make([]float64, size),
		mean:       make([]float64, size),
		std:        make([]float64, size),
	}
	for i := range n.std {
		n.std[i] = 1
	}
	return n
}

func (n *Normalizer) Size() int {
	return n.size
}

// Update accumulates a batch of samples. An empty batch changes nothing.
func (n *Normalizer) Update(samples [][]float64) {
	for _, v := range samples {
		n.localCount++
		floats.Add(n.localSum, v)
		for i, x := range v {
			n.localSumSq[i] += x * x
		}
	}
}

// RecomputeStats folds pending local increments into the global
// accumulators and rederives mean and std. Calling it twice without an
// intervening Update leaves mean and std unchanged.
func (n *Normalizer) RecomputeStats() {
	n.fold(n.localCount, n.localSum, n.localSumSq)
}

// SyncStats all-reduces the pending local increments across the group
// and folds the aggregate in, so every member derives identical
// statistics. All members must call it the same number of times.
func (n *Normalizer) SyncStats(m *dist.Member) error {
	flat := make([]float64, 0, 1+2*n.size)
	flat = append(flat, n.localCount)
	flat = append(flat, n.localSum...)
	flat = append(flat, n.localSumSq...)

	reduced, err := m.Allreduce(flat, dist.SUM)
	if err != nil {
		return err
	}
	n.fold(reduced[0], reduced[1:1+n.size], reduced[1+n.size:])
	return nil
}

func (n *Normalizer) fold(count float64, sum, sumSq []float64) {
	n.count += count
	floats.Add(n.sum, sum)
	floats.Add(n.sumSq, sumSq)

	n.localCount = 0
	for i := range n.localSum {
		n.localSum[i] = 0
		n.localSumSq[i] = 0
	}

	if n.count == 0 {
		return
	}
	for i := range n.mean {
		n.mean[i] = n.sum[i] / n.count
		// variance floored by eps^2 so std never reaches zero
		variance := n.sumSq[i]/n.count - n.mean[i]*n.mean[i]
		n.std[i] = math.Sqrt(math.Max(n.eps*n.eps, variance))
	}
}

// Normalize returns (x - mean) / std clipped per element to the
// configured range.
func (n *Normalizer) Normalize(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = util.Clip((v-n.mean[i])/n.std[i], n.clipRange)
	}
	return out
}

// Mean returns a copy of the current mean.
func (n *Normalizer) Mean() []float64 {
	return util.CopyFloats(n.mean)
}

// Std returns a copy of the current std.
func (n *Normalizer) Std() []float64 {
	return util.CopyFloats(n.std)
}

// Restore overwrites the derived statistics, for loading checkpoints.
func (n *Normalizer) Restore(mean, std []float64) {
	copy(n.mean, mean)
	copy(n.std, std)
}

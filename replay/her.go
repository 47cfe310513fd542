package replay

import (
	"fmt"
	"time"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/distrl/hertrain/core"
	"github.com/distrl/hertrain/util"
)

// Strategy selects how sampled transitions are relabeled.
type Strategy string

const (
	// StrategyFuture substitutes a goal achieved later in the same episode.
	StrategyFuture Strategy = "future"
	// StrategyFinal substitutes the episode's last achieved goal.
	StrategyFinal Strategy = "final"
	// StrategyNone never substitutes.
	StrategyNone Strategy = "none"
)

// Relabeler samples transitions from stored episodes and applies
// hindsight goal relabeling. Rewards are recomputed for every sampled
// transition, relabeled or not, so they always match the returned goal.
type Relabeler struct {
	strategy Strategy
	futureP  float64
	reward   core.RewardFunc

	rng  *rand.Rand
	coin distuv.Bernoulli
}

// NewRelabeler validates the strategy and replayK and derives the
// relabel probability 1 - 1/(1+replayK). StrategyNone forces it to zero.
func NewRelabeler(strategy Strategy, replayK float64, reward core.RewardFunc) (*Relabeler, error) {
	switch strategy {
	case StrategyFuture, StrategyFinal, StrategyNone:
	default:
		return nil, fmt.Errorf("replay strategy %q: %w", strategy, core.ErrInvalidConfiguration)
	}
	if replayK < 0 {
		return nil, fmt.Errorf("replay k %f is negative: %w", replayK, core.ErrInvalidConfiguration)
	}
	if reward == nil {
		return nil, fmt.Errorf("nil reward function: %w", core.ErrInvalidConfiguration)
	}

	futureP := 0.0
	if strategy != StrategyNone {
		futureP = 1 - 1/(1+replayK)
	}
	src := rand.NewSource(uint64(time.Now().UnixNano()))
	return &Relabeler{
		strategy: strategy,
		futureP:  futureP,
		reward:   reward,
		rng:      rand.New(src),
		coin:     distuv.Bernoulli{P: futureP, Src: src},
	}, nil
}

// FutureP returns the derived relabel probability.
func (s *Relabeler) FutureP() float64 {
	return s.futureP
}

// SampleTransitions draws batchSize (episode, timestep) pairs uniformly
// with replacement, relabels each with probability FutureP according to
// the strategy, and recomputes every reward from the next achieved goal
// and the (possibly substituted) goal. All returned rows are copies.
func (s *Relabeler) SampleTransitions(episodes []core.Episode, batchSize int) (*core.Batch, error) {
	if len(episodes) == 0 {
		return nil, fmt.Errorf("no episodes to sample: %w", core.ErrEmptyBuffer)
	}

	batch := core.NewBatch(batchSize)
	for i := 0; i < batchSize; i++ {
		ep := &episodes[s.rng.Intn(len(episodes))]
		horizon := ep.Horizon()
		t := s.rng.Intn(horizon)

		goal := util.CopyFloats(ep.DesiredGoal[t])
		if s.futureP > 0 && s.coin.Rand() == 1 {
			switch s.strategy {
			case StrategyFuture:
				// future timestep in [t+1, horizon]; at t == horizon-1
				// the window is just {horizon}
				future := t + 1 + s.rng.Intn(horizon-t)
				goal = util.CopyFloats(ep.AchievedGoal[future])
			case StrategyFinal:
				goal = util.CopyFloats(ep.AchievedGoal[horizon])
			}
		}

		agNext := util.CopyFloats(ep.AchievedGoal[t+1])
		batch.Obs = append(batch.Obs, util.CopyFloats(ep.Obs[t]))
		batch.ObsNext = append(batch.ObsNext, util.CopyFloats(ep.Obs[t+1]))
		batch.AG = append(batch.AG, util.CopyFloats(ep.AchievedGoal[t]))
		batch.AGNext = append(batch.AGNext, agNext)
		batch.G = append(batch.G, goal)
		batch.Actions = append(batch.Actions, util.CopyFloats(ep.Actions[t]))
		batch.R = append(batch.R, s.reward(agNext, goal, nil))
	}
	return batch, nil
}

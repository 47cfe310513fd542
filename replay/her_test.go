package replay

import (
	"errors"
	"math"
	"testing"

	"github.com/distrl/hertrain/core"
)

// spreadReward distinguishes every (agNext, g) pair so tests can verify
// rewards were recomputed against the returned goal.
func spreadReward(achieved, desired []float64, _ *core.StepInfo) float64 {
	return -math.Abs(achieved[0] - desired[0])
}

const nominalGoal = 1000.0

// herEpisode returns an episode whose achieved goal at step t equals t
// and whose desired goal is a value no achieved goal can take.
func herEpisode(horizon int) core.Episode {
	ep := core.Episode{}
	for t := 0; t <= horizon; t++ {
		ep.Obs = append(ep.Obs, []float64{float64(t)})
		ep.AchievedGoal = append(ep.AchievedGoal, []float64{float64(t)})
	}
	for t := 0; t < horizon; t++ {
		ep.DesiredGoal = append(ep.DesiredGoal, []float64{nominalGoal})
		ep.Actions = append(ep.Actions, []float64{0})
	}
	return ep
}

func TestNewRelabeler(t *testing.T) {
	if _, err := NewRelabeler("episode", 4, spreadReward); !errors.Is(err, core.ErrInvalidConfiguration) {
		t.Errorf("unknown strategy: err = %v, want ErrInvalidConfiguration", err)
	}
	if _, err := NewRelabeler(StrategyFuture, -1, spreadReward); !errors.Is(err, core.ErrInvalidConfiguration) {
		t.Errorf("negative replay k: err = %v, want ErrInvalidConfiguration", err)
	}
	if _, err := NewRelabeler(StrategyFuture, 4, nil); !errors.Is(err, core.ErrInvalidConfiguration) {
		t.Errorf("nil reward: err = %v, want ErrInvalidConfiguration", err)
	}

	s, err := NewRelabeler(StrategyFuture, 4, spreadReward)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(s.FutureP()-0.8) > 1e-12 {
		t.Errorf("FutureP = %f, want 0.8", s.FutureP())
	}

	// replayK = 0 and strategy none are equivalent
	zero, err := NewRelabeler(StrategyFuture, 0, spreadReward)
	if err != nil {
		t.Fatal(err)
	}
	none, err := NewRelabeler(StrategyNone, 4, spreadReward)
	if err != nil {
		t.Fatal(err)
	}
	if zero.FutureP() != 0 || none.FutureP() != 0 {
		t.Errorf("FutureP = %f (k=0) and %f (none), want 0 for both", zero.FutureP(), none.FutureP())
	}
}

func TestStrategyNoneNeverRelabels(t *testing.T) {
	s, err := NewRelabeler(StrategyNone, 4, spreadReward)
	if err != nil {
		t.Fatal(err)
	}
	episodes := []core.Episode{herEpisode(10), herEpisode(10)}
	batch, err := s.SampleTransitions(episodes, 500)
	if err != nil {
		t.Fatal(err)
	}
	for i, g := range batch.G {
		if g[0] != nominalGoal {
			t.Fatalf("transition %d: goal %f differs from stored desired goal", i, g[0])
		}
	}
}

func TestStrategyFinalUsesLastAchievedGoal(t *testing.T) {
	const horizon = 10
	s, err := NewRelabeler(StrategyFinal, 4, spreadReward)
	if err != nil {
		t.Fatal(err)
	}
	batch, err := s.SampleTransitions([]core.Episode{herEpisode(horizon)}, 2000)
	if err != nil {
		t.Fatal(err)
	}
	for i, g := range batch.G {
		// either untouched or the episode's final achieved goal
		if g[0] != nominalGoal && g[0] != horizon {
			t.Fatalf("transition %d: goal %f is neither the stored goal nor the final achieved goal", i, g[0])
		}
	}
}

func TestStrategyFutureWindow(t *testing.T) {
	const horizon = 10
	s, err := NewRelabeler(StrategyFuture, 1e9, spreadReward)
	if err != nil {
		t.Fatal(err)
	}
	batch, err := s.SampleTransitions([]core.Episode{herEpisode(horizon)}, 5000)
	if err != nil {
		t.Fatal(err)
	}
	for i := range batch.G {
		// achieved goals encode the timestep: AG[i] is t, G[i] the
		// substituted future step
		tStep := batch.AG[i][0]
		g := batch.G[i][0]
		if g == nominalGoal {
			continue
		}
		if g < tStep+1 || g > horizon {
			t.Fatalf("transition %d: future goal %.0f outside [%.0f, %d]", i, g, tStep+1, horizon)
		}
	}
}

func TestFutureWindowCollapsesAtLastStep(t *testing.T) {
	// horizon 1 puts every sample at t = T-1, leaving only step T
	s, err := NewRelabeler(StrategyFuture, 1e9, spreadReward)
	if err != nil {
		t.Fatal(err)
	}
	batch, err := s.SampleTransitions([]core.Episode{herEpisode(1)}, 200)
	if err != nil {
		t.Fatal(err)
	}
	relabeled := 0
	for i, g := range batch.G {
		if g[0] == nominalGoal {
			continue
		}
		relabeled++
		if g[0] != 1 {
			t.Fatalf("transition %d: goal %f, want achieved goal of step 1", i, g[0])
		}
	}
	if relabeled == 0 {
		t.Fatal("no transition was relabeled at p close to 1")
	}
}

func TestRewardsRecomputedAgainstReturnedGoal(t *testing.T) {
	s, err := NewRelabeler(StrategyFuture, 4, spreadReward)
	if err != nil {
		t.Fatal(err)
	}
	batch, err := s.SampleTransitions([]core.Episode{herEpisode(10)}, 1000)
	if err != nil {
		t.Fatal(err)
	}
	for i := range batch.R {
		want := spreadReward(batch.AGNext[i], batch.G[i], nil)
		if batch.R[i] != want {
			t.Fatalf("transition %d: r = %f, recomputed %f", i, batch.R[i], want)
		}
	}
}

func TestRelabelFraction(t *testing.T) {
	// replayK = 4 derives p = 0.8
	s, err := NewRelabeler(StrategyFuture, 4, spreadReward)
	if err != nil {
		t.Fatal(err)
	}
	const n = 100_000
	batch, err := s.SampleTransitions([]core.Episode{herEpisode(20)}, n)
	if err != nil {
		t.Fatal(err)
	}
	relabeled := 0
	for _, g := range batch.G {
		if g[0] != nominalGoal {
			relabeled++
		}
	}
	fraction := float64(relabeled) / n
	if math.Abs(fraction-0.8) > 0.01 {
		t.Fatalf("relabeled fraction = %f, want 0.8 +- 0.01", fraction)
	}
}

func TestSampleTransitionsEmpty(t *testing.T) {
	s, err := NewRelabeler(StrategyFuture, 4, spreadReward)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.SampleTransitions(nil, 10); !errors.Is(err, core.ErrEmptyBuffer) {
		t.Fatalf("err = %v, want ErrEmptyBuffer", err)
	}
}

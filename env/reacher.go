package env

import (
	"math"

	"golang.org/x/exp/rand"

	"github.com/distrl/hertrain/core"
	"github.com/distrl/hertrain/util"
)

const (
	tau           = 0.1
	damping       = 0.9
	worldBound    = 2.0
	goalBound     = 1.5
	actionMax     = 1.0
	distThreshold = 0.1
	maxTimesteps  = 50
)

// Reacher is a 2D point mass accelerated towards a goal position. The
// achieved goal is the current position and the reward is sparse:
// 0 within distThreshold of the goal, -1 otherwise.
type Reacher struct {
	pos   [2]float64
	vel   [2]float64
	goal  [2]float64
	steps int

	rng *rand.Rand
}

var _ core.Environment = &Reacher{}

func NewReacher(rng *rand.Rand) *Reacher {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Uint64()))
	}
	e := &Reacher{rng: rng}
	e.Reset()
	return e
}

// Params returns the tensor shapes of the environment.
func Params() core.EnvParams {
	return core.EnvParams{
		ObsDim:       4,
		GoalDim:      2,
		ActionDim:    2,
		ActionMax:    actionMax,
		MaxTimesteps: maxTimesteps,
	}
}

func (e *Reacher) Reset() core.Observation {
	for i := 0; i < 2; i++ {
		e.pos[i] = e.rng.Float64() - 0.5
		e.vel[i] = 0
		e.goal[i] = (e.rng.Float64()*2 - 1) * goalBound
	}
	e.steps = 0
	return e.observe()
}

func (e *Reacher) Step(action []float64) (core.Observation, float64, bool, core.StepInfo) {
	for i := 0; i < 2; i++ {
		a := util.Clip(action[i], actionMax)
		e.vel[i] = damping*e.vel[i] + tau*a
		e.pos[i] = util.Clip(e.pos[i]+tau*e.vel[i], worldBound)
	}
	e.steps++

	obs := e.observe()
	info := core.StepInfo{IsSuccess: distance(obs.AchievedGoal, obs.DesiredGoal) <= distThreshold}
	reward := e.ComputeReward(obs.AchievedGoal, obs.DesiredGoal, &info)
	done := e.steps >= maxTimesteps
	return obs, reward, done, info
}

func (e *Reacher) ComputeReward(achieved, desired []float64, _ *core.StepInfo) float64 {
	if distance(achieved, desired) <= distThreshold {
		return 0
	}
	return -1
}

func (e *Reacher) observe() core.Observation {
	return core.Observation{
		Observation:  []float64{e.pos[0], e.pos[1], e.vel[0], e.vel[1]},
		AchievedGoal: []float64{e.pos[0], e.pos[1]},
		DesiredGoal:  []float64{e.goal[0], e.goal[1]},
	}
}

func distance(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Constructor builds per-worker Reacher instances with distinct seeds.
type Constructor struct {
	Seed uint64
}

var _ core.EnvConstructor = &Constructor{}

func (c *Constructor) NewEnvironment(worker int) core.Environment {
	return NewReacher(rand.New(rand.NewSource(c.Seed + uint64(worker))))
}

func (c *Constructor) Params() core.EnvParams {
	return Params()
}

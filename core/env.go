package core

// Observation is one goal-conditioned environment observation.
type Observation struct {
	Observation  []float64
	AchievedGoal []float64
	DesiredGoal  []float64
}

// StepInfo carries side information about an environment step.
type StepInfo struct {
	IsSuccess bool
}

// RewardFunc computes the reward for an achieved/desired goal pair.
// Samplers call it with a nil info.
type RewardFunc func(achieved, desired []float64, info *StepInfo) float64

// Environment is a goal-conditioned simulator. The reward returned from
// Step is informational; training recomputes rewards at sample time via
// ComputeReward.
type Environment interface {
	Reset() Observation
	Step(action []float64) (Observation, float64, bool, StepInfo)
	ComputeReward(achieved, desired []float64, info *StepInfo) float64
}

// EnvParams describes the tensor shapes of one environment.
type EnvParams struct {
	ObsDim       int
	GoalDim      int
	ActionDim    int
	ActionMax    float64
	MaxTimesteps int
}

// EnvConstructor creates per-worker environment instances.
type EnvConstructor interface {
	// NewEnvironment creates an environment for the given worker number.
	NewEnvironment(worker int) Environment
	Params() EnvParams
}

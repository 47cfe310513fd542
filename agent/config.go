package agent

import (
	"github.com/distrl/hertrain/replay"
)

// Config holds the training hyperparameters.
type Config struct {
	Epochs            int
	Cycles            int
	RolloutsPerWorker int
	Batches           int
	BatchSize         int
	BufferSize        int
	TestRollouts      int

	ReplayStrategy replay.Strategy
	ReplayK        float64

	Gamma    float64
	Polyak   float64
	LRActor  float64
	LRCritic float64
	ActionL2 float64

	ClipObs   float64
	ClipRange float64
	NoiseEps  float64
	RandomEps float64

	SavePath string
	Seed     uint64
}

func DefaultConfig() Config {
	return Config{
		Epochs:            50,
		Cycles:            50,
		RolloutsPerWorker: 2,
		Batches:           40,
		BatchSize:         256,
		BufferSize:        1_000_000,
		TestRollouts:      10,

		ReplayStrategy: replay.StrategyFuture,
		ReplayK:        4,

		Gamma:    0.98,
		Polyak:   0.95,
		LRActor:  0.001,
		LRCritic: 0.001,
		ActionL2: 1,

		ClipObs:   200,
		ClipRange: 5,
		NoiseEps:  0.2,
		RandomEps: 0.3,

		SavePath: "results",
	}
}

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/distrl/hertrain/agent"
	"github.com/distrl/hertrain/replay"
)

var (
	flags = agent.DefaultConfig()

	workers     int
	monitorAddr string
	seed        uint64

	epochs            int
	cycles            int
	rolloutsPerWorker int
	batches           int
	batchSize         int
	bufferSize        int
	testRollouts      int

	replayStrategy string
	replayK        float64

	gamma    float64
	polyak   float64
	lrActor  float64
	lrCritic float64
	actionL2 float64

	clipObs   float64
	clipRange float64
	noiseEps  float64
	randomEps float64

	savePath string
)

func AddFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().IntVar(&workers, "workers", 4, "Number of workers")
	cmd.PersistentFlags().StringVar(&monitorAddr, "monitor-addr", "", "Address for the websocket metrics server (disabled when empty)")
	cmd.PersistentFlags().Uint64Var(&seed, "seed", 0, "Base random seed (0 picks one)")

	cmd.PersistentFlags().IntVar(&epochs, "epochs", flags.Epochs, "Number of epochs")
	cmd.PersistentFlags().IntVar(&cycles, "cycles", flags.Cycles, "Cycles per epoch")
	cmd.PersistentFlags().IntVar(&rolloutsPerWorker, "rollouts-per-worker", flags.RolloutsPerWorker, "Rollouts per worker per cycle")
	cmd.PersistentFlags().IntVar(&batches, "batches", flags.Batches, "Network updates per cycle")
	cmd.PersistentFlags().IntVar(&batchSize, "batch-size", flags.BatchSize, "Minibatch size")
	cmd.PersistentFlags().IntVar(&bufferSize, "buffer-size", flags.BufferSize, "Replay buffer size in transitions")
	cmd.PersistentFlags().IntVar(&testRollouts, "test-rollouts", flags.TestRollouts, "Evaluation rollouts per worker")

	cmd.PersistentFlags().StringVar(&replayStrategy, "replay-strategy", string(flags.ReplayStrategy), "Goal replay strategy (future, final, none)")
	cmd.PersistentFlags().Float64Var(&replayK, "replay-k", flags.ReplayK, "Ratio of hindsight goals per real goal")

	cmd.PersistentFlags().Float64Var(&gamma, "gamma", flags.Gamma, "Discount factor")
	cmd.PersistentFlags().Float64Var(&polyak, "polyak", flags.Polyak, "Target network averaging coefficient")
	cmd.PersistentFlags().Float64Var(&lrActor, "lr-actor", flags.LRActor, "Actor learning rate")
	cmd.PersistentFlags().Float64Var(&lrCritic, "lr-critic", flags.LRCritic, "Critic learning rate")
	cmd.PersistentFlags().Float64Var(&actionL2, "action-l2", flags.ActionL2, "Action L2 penalty coefficient")

	cmd.PersistentFlags().Float64Var(&clipObs, "clip-obs", flags.ClipObs, "Observation clipping bound")
	cmd.PersistentFlags().Float64Var(&clipRange, "clip-range", flags.ClipRange, "Normalized input clipping bound")
	cmd.PersistentFlags().Float64Var(&noiseEps, "noise-eps", flags.NoiseEps, "Gaussian exploration noise scale")
	cmd.PersistentFlags().Float64Var(&randomEps, "random-eps", flags.RandomEps, "Probability of a uniform random action")

	cmd.PersistentFlags().StringVar(&savePath, "save-path", flags.SavePath, "Path to save checkpoints and run config")
}

func UpdateFlags() {
	flags.Epochs = epochs
	flags.Cycles = cycles
	flags.RolloutsPerWorker = rolloutsPerWorker
	flags.Batches = batches
	flags.BatchSize = batchSize
	flags.BufferSize = bufferSize
	flags.TestRollouts = testRollouts

	flags.ReplayStrategy = replay.Strategy(replayStrategy)
	flags.ReplayK = replayK

	flags.Gamma = gamma
	flags.Polyak = polyak
	flags.LRActor = lrActor
	flags.LRCritic = lrCritic
	flags.ActionL2 = actionL2

	flags.ClipObs = clipObs
	flags.ClipRange = clipRange
	flags.NoiseEps = noiseEps
	flags.RandomEps = randomEps

	flags.SavePath = savePath
	flags.Seed = seed
}

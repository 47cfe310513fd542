package agent

import (
	"context"
	"path/filepath"
	"time"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/distrl/hertrain/core"
	"github.com/distrl/hertrain/dist"
	"github.com/distrl/hertrain/norm"
	"github.com/distrl/hertrain/replay"
	"github.com/distrl/hertrain/util"
)

// Networks bundles the function approximators and their optimizers. The
// online and target pairs must have identical parameter layouts.
type Networks struct {
	Actor        core.Model
	Critic       core.Model
	TargetActor  core.Model
	TargetCritic core.Model
	ActorOptim   core.Optimizer
	CriticOptim  core.Optimizer
}

// NewLinearNetworks builds linear actor/critic pairs sized for the
// environment, with Adam optimizers.
func NewLinearNetworks(params core.EnvParams, cfg Config, rng *rand.Rand) Networks {
	inDim := params.ObsDim + params.GoalDim
	return Networks{
		Actor:        NewSquashedLinearModel(inDim, params.ActionDim, params.ActionMax, rng),
		Critic:       NewLinearModel(inDim+params.ActionDim, 1, rng),
		TargetActor:  NewSquashedLinearModel(inDim, params.ActionDim, params.ActionMax, rng),
		TargetCritic: NewLinearModel(inDim+params.ActionDim, 1, rng),
		ActorOptim:   NewAdam(cfg.LRActor),
		CriticOptim:  NewAdam(cfg.LRCritic),
	}
}

// EpochStats is one epoch's summary, passed to the Report hook.
type EpochStats struct {
	Worker      int           `json:"worker"`
	Epoch       int           `json:"epoch"`
	SuccessRate float64       `json:"success_rate"`
	BufferSize  int           `json:"buffer_size"`
	Elapsed     time.Duration `json:"elapsed_ns"`
}

// DDPG runs off-policy actor-critic training with hindsight relabeling
// on one worker. All workers of a group run the same schedule; the only
// cross-worker coordination is parameter broadcast, gradient all-reduce
// and stat aggregation through the group member.
type DDPG struct {
	cfg    Config
	params core.EnvParams
	env    core.Environment
	member *dist.Member

	nets      Networks
	buffer    *replay.Buffer
	relabeler *replay.Relabeler
	oNorm     *norm.Normalizer
	gNorm     *norm.Normalizer

	rng   *rand.Rand
	gauss distuv.Normal

	// Report, when set, is called once per epoch.
	Report func(EpochStats)
}

// NewDDPG wires the trainer and broadcasts the coordinator's initial
// parameters so every replica starts identical. Target networks are then
// loaded from the synced online networks.
func NewDDPG(cfg Config, envc core.EnvConstructor, nets Networks, member *dist.Member) (*DDPG, error) {
	params := envc.Params()
	environment := envc.NewEnvironment(member.Rank())

	relabeler, err := replay.NewRelabeler(cfg.ReplayStrategy, cfg.ReplayK, environment.ComputeReward)
	if err != nil {
		return nil, err
	}
	buffer, err := replay.NewBuffer(params, cfg.BufferSize, relabeler.SampleTransitions)
	if err != nil {
		return nil, err
	}

	if err := member.SyncNetwork(nets.Actor); err != nil {
		return nil, err
	}
	if err := member.SyncNetwork(nets.Critic); err != nil {
		return nil, err
	}
	copyParams(nets.TargetActor, nets.Actor)
	copyParams(nets.TargetCritic, nets.Critic)

	src := rand.NewSource(cfg.Seed + uint64(member.Rank()))
	return &DDPG{
		cfg:       cfg,
		params:    params,
		env:       environment,
		member:    member,
		nets:      nets,
		buffer:    buffer,
		relabeler: relabeler,
		oNorm:     norm.NewNormalizer(params.ObsDim, cfg.ClipRange),
		gNorm:     norm.NewNormalizer(params.GoalDim, cfg.ClipRange),
		rng:       rand.New(src),
		gauss:     distuv.Normal{Mu: 0, Sigma: 1, Src: src},
	}, nil
}

// Buffer exposes the worker's replay buffer.
func (d *DDPG) Buffer() *replay.Buffer {
	return d.buffer
}

// Train runs the full schedule: per epoch, Cycles rounds of collect,
// store, normalizer refresh, Batches network updates and a soft target
// update, then a cohort-wide evaluation. The coordinator checkpoints
// after every epoch.
func (d *DDPG) Train(ctx context.Context) error {
	for epoch := 0; epoch < d.cfg.Epochs; epoch++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		start := time.Now()
		for cycle := 0; cycle < d.cfg.Cycles; cycle++ {
			episodes := d.collectRollouts()
			if err := d.buffer.StoreEpisodes(episodes); err != nil {
				return err
			}
			if err := d.updateNormalizers(episodes); err != nil {
				return err
			}
			for b := 0; b < d.cfg.Batches; b++ {
				if err := d.updateNetworks(); err != nil {
					return err
				}
			}
			d.softUpdate(d.nets.TargetActor, d.nets.Actor)
			d.softUpdate(d.nets.TargetCritic, d.nets.Critic)
		}

		rate, err := d.Evaluate()
		if err != nil {
			return err
		}
		if d.member.Coordinator() && d.cfg.SavePath != "" {
			if err := d.saveCheckpoint(); err != nil {
				return err
			}
		}
		if d.Report != nil {
			d.Report(EpochStats{
				Worker:      d.member.Rank(),
				Epoch:       epoch,
				SuccessRate: rate,
				BufferSize:  d.buffer.Size(),
				Elapsed:     time.Since(start),
			})
		}
	}
	return nil
}

// collectRollouts runs RolloutsPerWorker noisy episodes.
func (d *DDPG) collectRollouts() []core.Episode {
	horizon := d.params.MaxTimesteps
	episodes := make([]core.Episode, 0, d.cfg.RolloutsPerWorker)
	for r := 0; r < d.cfg.RolloutsPerWorker; r++ {
		obs := d.env.Reset()
		o, ag, g := obs.Observation, obs.AchievedGoal, obs.DesiredGoal

		ep := core.Episode{
			Obs:          make([][]float64, 0, horizon+1),
			AchievedGoal: make([][]float64, 0, horizon+1),
			DesiredGoal:  make([][]float64, 0, horizon),
			Actions:      make([][]float64, 0, horizon),
		}
		for t := 0; t < horizon; t++ {
			pi := d.nets.Actor.Forward(d.policyInput(o, g))
			action := d.explore(pi)
			next, _, _, _ := d.env.Step(action)

			ep.Obs = append(ep.Obs, util.CopyFloats(o))
			ep.AchievedGoal = append(ep.AchievedGoal, util.CopyFloats(ag))
			ep.DesiredGoal = append(ep.DesiredGoal, util.CopyFloats(g))
			ep.Actions = append(ep.Actions, action)

			o, ag = next.Observation, next.AchievedGoal
		}
		ep.Obs = append(ep.Obs, util.CopyFloats(o))
		ep.AchievedGoal = append(ep.AchievedGoal, util.CopyFloats(ag))
		episodes = append(episodes, ep)
	}
	return episodes
}

// policyInput clips, normalizes and concatenates observation and goal.
func (d *DDPG) policyInput(o, g []float64) []float64 {
	oN := d.oNorm.Normalize(util.ClipFloats(o, d.cfg.ClipObs))
	gN := d.gNorm.Normalize(util.ClipFloats(g, d.cfg.ClipObs))
	return util.Concat(oN, gN)
}

// explore perturbs the policy action with gaussian noise and, with
// probability RandomEps, replaces it with a uniform random action.
func (d *DDPG) explore(pi []float64) []float64 {
	max := d.params.ActionMax
	action := make([]float64, len(pi))
	for i, a := range pi {
		action[i] = util.Clip(a+d.cfg.NoiseEps*max*d.gauss.Rand(), max)
	}
	if d.rng.Float64() < d.cfg.RandomEps {
		for i := range action {
			action[i] = (d.rng.Float64()*2 - 1) * max
		}
	}
	return action
}

// updateNormalizers refreshes the input statistics from a hindsight
// resample of exactly the episodes just collected, then synchronizes the
// statistics across the group.
func (d *DDPG) updateNormalizers(episodes []core.Episode) error {
	n := len(episodes) * d.params.MaxTimesteps
	transitions, err := d.relabeler.SampleTransitions(episodes, n)
	if err != nil {
		return err
	}
	d.oNorm.Update(clipMatrix(transitions.Obs, d.cfg.ClipObs))
	d.gNorm.Update(clipMatrix(transitions.G, d.cfg.ClipObs))
	if err := d.oNorm.SyncStats(d.member); err != nil {
		return err
	}
	return d.gNorm.SyncStats(d.member)
}

// updateNetworks performs one minibatch update of actor and critic,
// all-reducing gradients before each optimizer step.
func (d *DDPG) updateNetworks() error {
	batch, err := d.buffer.Sample(d.cfg.BatchSize)
	if err != nil {
		return err
	}
	n := batch.Len()

	inputs := make([][]float64, n)
	inputsNext := make([][]float64, n)
	for i := 0; i < n; i++ {
		inputs[i] = util.Concat(
			d.oNorm.Normalize(util.ClipFloats(batch.Obs[i], d.cfg.ClipObs)),
			d.gNorm.Normalize(util.ClipFloats(batch.G[i], d.cfg.ClipObs)),
		)
		inputsNext[i] = util.Concat(
			d.oNorm.Normalize(util.ClipFloats(batch.ObsNext[i], d.cfg.ClipObs)),
			d.gNorm.Normalize(util.ClipFloats(batch.G[i], d.cfg.ClipObs)),
		)
	}

	// targets from the target networks, clamped to the range of returns
	// reachable with rewards in [-1, 0]
	clipReturn := 1 / (1 - d.cfg.Gamma)
	targets := make([]float64, n)
	for i := 0; i < n; i++ {
		aNext := d.nets.TargetActor.Forward(inputsNext[i])
		qNext := d.nets.TargetCritic.Forward(util.Concat(inputsNext[i], aNext))[0]
		t := batch.R[i] + d.cfg.Gamma*qNext
		if t < -clipReturn {
			t = -clipReturn
		}
		if t > 0 {
			t = 0
		}
		targets[i] = t
	}

	// actor: maximize Q(s, actor(s)) with an L2 penalty on the actions.
	// The critic accumulates gradients during this pass too; they are
	// zeroed before the critic update below.
	d.nets.Actor.ZeroGrads()
	d.nets.Critic.ZeroGrads()
	actionDim := float64(d.params.ActionDim)
	maxSq := d.params.ActionMax * d.params.ActionMax
	for i := 0; i < n; i++ {
		a := d.nets.Actor.Forward(inputs[i])
		inGrad := d.nets.Critic.Backward(util.Concat(inputs[i], a), []float64{-1 / float64(n)})
		aGrad := inGrad[len(inputs[i]):]
		for j := range a {
			aGrad[j] += d.cfg.ActionL2 * 2 * a[j] / maxSq / (float64(n) * actionDim)
		}
		d.nets.Actor.Backward(inputs[i], aGrad)
	}
	if err := d.member.SyncGrads(d.nets.Actor); err != nil {
		return err
	}
	d.nets.ActorOptim.Step(d.nets.Actor)

	// critic: mean squared TD error against the clamped targets
	d.nets.Critic.ZeroGrads()
	for i := 0; i < n; i++ {
		in := util.Concat(inputs[i], batch.Actions[i])
		q := d.nets.Critic.Forward(in)[0]
		d.nets.Critic.Backward(in, []float64{2 * (q - targets[i]) / float64(n)})
	}
	if err := d.member.SyncGrads(d.nets.Critic); err != nil {
		return err
	}
	d.nets.CriticOptim.Step(d.nets.Critic)
	return nil
}

// softUpdate blends target parameters towards the online network:
// target = polyak*target + (1-polyak)*online.
func (d *DDPG) softUpdate(target, online core.Model) {
	tp := target.Parameters()
	op := online.Parameters()
	for i := range tp {
		for j := range tp[i].Data {
			tp[i].Data[j] = d.cfg.Polyak*tp[i].Data[j] + (1-d.cfg.Polyak)*op[i].Data[j]
		}
	}
}

// Evaluate runs TestRollouts greedy episodes and returns the final-step
// success rate averaged over the whole group.
func (d *DDPG) Evaluate() (float64, error) {
	successes := make([]float64, d.cfg.TestRollouts)
	for r := 0; r < d.cfg.TestRollouts; r++ {
		obs := d.env.Reset()
		o, g := obs.Observation, obs.DesiredGoal
		var last core.StepInfo
		for t := 0; t < d.params.MaxTimesteps; t++ {
			pi := d.nets.Actor.Forward(d.policyInput(o, g))
			next, _, _, info := d.env.Step(pi)
			o, g = next.Observation, next.DesiredGoal
			last = info
		}
		if last.IsSuccess {
			successes[r] = 1
		}
	}
	local := stat.Mean(successes, nil)
	return d.member.AllreduceScalar(local, dist.MEAN)
}

// Checkpoint is the persisted artifact: input statistics plus the actor
// parameters, serialized as one unit.
type Checkpoint struct {
	ObsMean  []float64   `json:"obs_mean"`
	ObsStd   []float64   `json:"obs_std"`
	GoalMean []float64   `json:"goal_mean"`
	GoalStd  []float64   `json:"goal_std"`
	Actor    [][]float64 `json:"actor"`
}

func (d *DDPG) saveCheckpoint() error {
	params := d.nets.Actor.Parameters()
	actor := make([][]float64, len(params))
	for i, p := range params {
		actor[i] = util.CopyFloats(p.Data)
	}
	ckpt := Checkpoint{
		ObsMean:  d.oNorm.Mean(),
		ObsStd:   d.oNorm.Std(),
		GoalMean: d.gNorm.Mean(),
		GoalStd:  d.gNorm.Std(),
		Actor:    actor,
	}
	return util.SaveJSON(filepath.Join(d.cfg.SavePath, "model.json"), ckpt)
}

// LoadCheckpoint restores actor parameters and normalizer statistics
// from a saved checkpoint.
func LoadCheckpoint(path string, actor core.Network, oNorm, gNorm *norm.Normalizer) error {
	var ckpt Checkpoint
	if err := util.LoadJSON(path, &ckpt); err != nil {
		return err
	}
	params := actor.Parameters()
	for i, p := range params {
		if i < len(ckpt.Actor) {
			copy(p.Data, ckpt.Actor[i])
		}
	}
	oNorm.Restore(ckpt.ObsMean, ckpt.ObsStd)
	gNorm.Restore(ckpt.GoalMean, ckpt.GoalStd)
	return nil
}

func copyParams(dst, src core.Network) {
	dp := dst.Parameters()
	sp := src.Parameters()
	for i := range dp {
		copy(dp[i].Data, sp[i].Data)
	}
}

func clipMatrix(m [][]float64, bound float64) [][]float64 {
	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = util.ClipFloats(row, bound)
	}
	return out
}

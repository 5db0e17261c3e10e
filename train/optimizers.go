package train

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/hupe1980/symflow/core"
	"github.com/hupe1980/symflow/logging"
	"github.com/hupe1980/symflow/program"
)

// RandomFewShotOptions configure the few-shot sampling optimizer.
type RandomFewShotOptions struct {
	// K is how many examples each trainable variable keeps. Default 3.
	K int
	// Temperature shapes the reward-weighted sampling distribution: higher
	// values flatten it, values <= 0 pick the best K outright. Default 1.
	Temperature float64
	// Rand is the sampling source. Defaults to a freshly seeded source.
	Rand *rand.Rand
	// Logger is the logger to use. Defaults to NoOpLogger.
	Logger logging.Logger
}

// RandomFewShot promotes well-rewarded recorded predictions into the
// few-shot examples of every trainable variable. After each scored batch it
// samples up to K predictions per variable, weighted by reward, and installs
// them as the variable's new examples.
type RandomFewShot struct {
	k           int
	temperature float64
	rng         *rand.Rand
	logger      logging.Logger
}

// NewRandomFewShot creates the optimizer.
func NewRandomFewShot(optFns ...func(o *RandomFewShotOptions)) *RandomFewShot {
	opts := RandomFewShotOptions{
		K:           3,
		Temperature: 1.0,
		Logger:      logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}

	return &RandomFewShot{
		k:           opts.K,
		temperature: opts.Temperature,
		rng:         rng,
		logger:      opts.Logger,
	}
}

// Name returns the optimizer name used in logs and saved programs.
func (o *RandomFewShot) Name() string { return "random_few_shot" }

// Build validates the optimizer against the program's variable layout.
func (o *RandomFewShot) Build(p *program.Program) error {
	if o.k <= 0 {
		return fmt.Errorf("train: optimizer %s: k must be positive, got %d", o.Name(), o.k)
	}

	o.logger.Debug("optimizer.build",
		"optimizer", o.Name(),
		"program", p.Name(),
		"trainable_variables", len(p.TrainableVariables()),
	)

	return nil
}

// Apply installs a fresh reward-weighted sample of recorded predictions as
// the few-shot examples of every trainable variable. Variables without
// rewarded predictions keep their current examples.
func (o *RandomFewShot) Apply(_ context.Context, p *program.Program, batchReward float64) error {
	for _, variable := range p.TrainableVariables() {
		rewarded := rewardedPredictions(variable.Predictions())
		if len(rewarded) == 0 {
			continue
		}

		picked := o.sample(rewarded)

		examples := make([]core.Example, 0, len(picked))
		for _, prediction := range picked {
			examples = append(examples, core.Example{Inputs: prediction.Inputs, Outputs: prediction.Outputs})
		}
		variable.SetExamples(examples)

		o.logger.Debug("optimizer.apply",
			"optimizer", o.Name(),
			"variable", variable.Path(),
			"batch_reward", batchReward,
			"examples", len(examples),
		)
	}

	return nil
}

// GetConfig returns the serializable optimizer configuration.
func (o *RandomFewShot) GetConfig() map[string]any {
	return map[string]any{
		"name":        o.Name(),
		"k":           o.k,
		"temperature": o.temperature,
	}
}

// sample picks up to k predictions without replacement. Positive
// temperatures draw from a softmax over rewards; temperature <= 0 takes the
// best k directly.
func (o *RandomFewShot) sample(predictions []core.Prediction) []core.Prediction {
	pool := append([]core.Prediction(nil), predictions...)

	if o.temperature <= 0 {
		sort.SliceStable(pool, func(i, j int) bool { return *pool[i].Reward > *pool[j].Reward })
		if len(pool) > o.k {
			pool = pool[:o.k]
		}
		return pool
	}

	weights := make([]float64, len(pool))
	for i, p := range pool {
		weights[i] = math.Exp(*p.Reward / o.temperature)
	}

	picked := make([]core.Prediction, 0, o.k)
	for len(picked) < o.k && len(pool) > 0 {
		total := 0.0
		for _, w := range weights {
			total += w
		}

		target := o.rng.Float64() * total
		idx := len(pool) - 1
		for i, w := range weights {
			target -= w
			if target < 0 {
				idx = i
				break
			}
		}

		picked = append(picked, pool[idx])
		pool = append(pool[:idx], pool[idx+1:]...)
		weights = append(weights[:idx], weights[idx+1:]...)
	}

	return picked
}

func rewardedPredictions(predictions []core.Prediction) []core.Prediction {
	out := make([]core.Prediction, 0, len(predictions))
	for _, p := range predictions {
		if p.Reward != nil {
			out = append(out, p)
		}
	}
	return out
}

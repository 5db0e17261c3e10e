package program

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/google/uuid"

	"github.com/hupe1980/symflow/core"
)

// Reward scores how well a predicted document matches the expected one.
// Scores are conventionally in [0, 1], higher is better.
type Reward interface {
	Name() string
	Score(ctx context.Context, yTrue, yPred *core.JsonDataModel) (float64, error)
}

// Metric accumulates an observation-only statistic over scored samples.
// Metrics never influence training; that is the reward's job.
type Metric interface {
	Name() string
	Update(yTrue, yPred *core.JsonDataModel) error
	Result() float64
	Reset()
}

// Optimizer mutates the trainable variables of a program between batches.
type Optimizer interface {
	Name() string

	// Build prepares the optimizer for the program's variable layout. It runs
	// once, during Compile.
	Build(p *Program) error

	// Apply runs one optimization step after a batch was scored.
	Apply(ctx context.Context, p *Program, batchReward float64) error

	GetConfig() map[string]any
}

// Callback hooks into the training loop. OnEpochEnd may return an error to
// stop training early; Fit still returns the history accumulated so far.
type Callback interface {
	OnTrainBegin(p *Program)
	OnEpochEnd(epoch int, logs map[string]float64) error
	OnTrainEnd(p *Program)
}

// History records per-epoch training measurements: "reward", one key per
// compiled metric, and "val_"-prefixed counterparts when validation data is
// set.
type History struct {
	Epochs  int
	Records map[string][]float64
}

func newHistory() *History {
	return &History{Records: make(map[string][]float64)}
}

func (h *History) append(logs map[string]float64) {
	h.Epochs++
	for k, v := range logs {
		h.Records[k] = append(h.Records[k], v)
	}
}

type compileConfig struct {
	optimizer Optimizer
	reward    Reward
	metrics   []Metric
}

// CompileOptions configure the training setup of a program.
type CompileOptions struct {
	// Optimizer updates trainable state between batches. Optional when the
	// program is only evaluated.
	Optimizer Optimizer
	// Reward scores predictions; required.
	Reward  Reward
	Metrics []Metric
}

// Compile fixes the reward, optimizer and metrics used by Fit and Evaluate.
func (p *Program) Compile(optFns ...func(o *CompileOptions)) error {
	opts := CompileOptions{}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Reward == nil {
		return fmt.Errorf("program %s: compile requires a reward", p.name)
	}

	if opts.Optimizer != nil {
		if err := opts.Optimizer.Build(p); err != nil {
			return fmt.Errorf("program %s: build optimizer %s: %w", p.name, opts.Optimizer.Name(), err)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.compiled = &compileConfig{
		optimizer: opts.Optimizer,
		reward:    opts.Reward,
		metrics:   append([]Metric(nil), opts.Metrics...),
	}

	return nil
}

// CompiledWith reports the compiled optimizer, reward and metrics; all nil
// when the program is not compiled. Persistence uses it to record the
// compile section of a saved program.
func (p *Program) CompiledWith() (Optimizer, Reward, []Metric) {
	c := p.currentCompile()
	if c == nil {
		return nil, nil, nil
	}

	return c.optimizer, c.reward, append([]Metric(nil), c.metrics...)
}

func (p *Program) currentCompile() *compileConfig {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.compiled
}

// ValidationData is an optional held-out set scored at each epoch end.
type ValidationData struct {
	X []*core.JsonDataModel
	Y []*core.JsonDataModel
}

// FitOptions configure a training run.
type FitOptions struct {
	// Epochs is the number of passes over the training data. Default 1.
	Epochs int
	// BatchSize bounds how many samples run concurrently before the
	// optimizer applies one step. Default 32.
	BatchSize int
	// Shuffle reorders samples every epoch. Default true.
	Shuffle bool
	// ValidationData is scored under "val_" keys at every epoch end.
	ValidationData *ValidationData
	Callbacks      []Callback
}

// Fit trains the program on paired inputs and expected outputs.
//
// Per epoch the samples are batched; each batch runs concurrently in
// training mode so generators record their predictions, every sample is
// scored by the compiled reward, and the score is assigned back to the
// predictions of that sample before the optimizer applies one step.
func (p *Program) Fit(ctx context.Context, x, y []*core.JsonDataModel, optFns ...func(o *FitOptions)) (*History, error) {
	opts := FitOptions{
		Epochs:    1,
		BatchSize: 32,
		Shuffle:   true,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	compiled := p.currentCompile()
	if compiled == nil {
		return nil, fmt.Errorf("program %s: %w", p.name, ErrNotCompiled)
	}

	if compiled.optimizer == nil {
		return nil, fmt.Errorf("program %s: %w: Fit requires an optimizer", p.name, ErrNotCompiled)
	}

	if err := p.checkTrainingShape(); err != nil {
		return nil, err
	}

	if len(x) == 0 || len(x) != len(y) {
		return nil, fmt.Errorf("program %s: training requires matching x/y, got %d/%d", p.name, len(x), len(y))
	}

	if opts.Epochs < 1 || opts.BatchSize < 1 {
		return nil, fmt.Errorf("program %s: epochs and batch size must be positive", p.name)
	}

	history := newHistory()

	for _, cb := range opts.Callbacks {
		cb.OnTrainBegin(p)
	}
	defer func() {
		for _, cb := range opts.Callbacks {
			cb.OnTrainEnd(p)
		}
	}()

	indices := make([]int, len(x))
	for i := range indices {
		indices[i] = i
	}

	for epoch := 0; epoch < opts.Epochs; epoch++ {
		if opts.Shuffle {
			rand.Shuffle(len(indices), func(i, j int) {
				indices[i], indices[j] = indices[j], indices[i]
			})
		}

		for _, m := range compiled.metrics {
			m.Reset()
		}

		var epochScores []float64

		for start := 0; start < len(indices); start += opts.BatchSize {
			end := start + opts.BatchSize
			if end > len(indices) {
				end = len(indices)
			}
			batch := indices[start:end]

			scores, preds, err := p.runBatch(ctx, x, y, batch, compiled.reward, true)
			if err != nil {
				return nil, err
			}

			epochScores = append(epochScores, scores...)

			for i, idx := range batch {
				for _, m := range compiled.metrics {
					if err := m.Update(y[idx], preds[i]); err != nil {
						return nil, fmt.Errorf("program %s: metric %s: %w", p.name, m.Name(), err)
					}
				}
			}

			if err := compiled.optimizer.Apply(ctx, p, mean(scores)); err != nil {
				return nil, fmt.Errorf("program %s: optimizer %s: %w", p.name, compiled.optimizer.Name(), err)
			}
		}

		logs := map[string]float64{"reward": mean(epochScores)}
		for _, m := range compiled.metrics {
			logs[m.Name()] = m.Result()
		}

		if opts.ValidationData != nil {
			valLogs, err := p.Evaluate(ctx, opts.ValidationData.X, opts.ValidationData.Y)
			if err != nil {
				return nil, fmt.Errorf("program %s: validation: %w", p.name, err)
			}

			for k, v := range valLogs {
				logs["val_"+k] = v
			}
		}

		history.append(logs)
		p.logger.Info("program.epoch", "program", p.name, "epoch", epoch+1, "reward", logs["reward"])

		stopped := false
		for _, cb := range opts.Callbacks {
			if err := cb.OnEpochEnd(epoch, logs); err != nil {
				p.logger.Info("program.early_stop", "program", p.name, "epoch", epoch+1, "reason", err.Error())
				stopped = true
				break
			}
		}
		if stopped {
			break
		}
	}

	return history, nil
}

// EvaluateOptions configure an evaluation pass.
type EvaluateOptions struct {
	// BatchSize bounds how many samples run concurrently. Default 32.
	BatchSize int
}

// Evaluate scores the program on paired data without training, returning
// the mean reward plus every compiled metric result.
func (p *Program) Evaluate(ctx context.Context, x, y []*core.JsonDataModel, optFns ...func(o *EvaluateOptions)) (map[string]float64, error) {
	opts := EvaluateOptions{BatchSize: 32}

	for _, fn := range optFns {
		fn(&opts)
	}

	compiled := p.currentCompile()
	if compiled == nil {
		return nil, fmt.Errorf("program %s: %w", p.name, ErrNotCompiled)
	}

	if err := p.checkTrainingShape(); err != nil {
		return nil, err
	}

	if len(x) == 0 || len(x) != len(y) {
		return nil, fmt.Errorf("program %s: evaluation requires matching x/y, got %d/%d", p.name, len(x), len(y))
	}

	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}

	for _, m := range compiled.metrics {
		m.Reset()
	}

	indices := make([]int, len(x))
	for i := range indices {
		indices[i] = i
	}

	var scores []float64

	for start := 0; start < len(indices); start += opts.BatchSize {
		end := start + opts.BatchSize
		if end > len(indices) {
			end = len(indices)
		}
		batch := indices[start:end]

		batchScores, preds, err := p.runBatch(ctx, x, y, batch, compiled.reward, false)
		if err != nil {
			return nil, err
		}

		scores = append(scores, batchScores...)

		for i, idx := range batch {
			for _, m := range compiled.metrics {
				if err := m.Update(y[idx], preds[i]); err != nil {
					return nil, fmt.Errorf("program %s: metric %s: %w", p.name, m.Name(), err)
				}
			}
		}
	}

	results := map[string]float64{"reward": mean(scores)}
	for _, m := range compiled.metrics {
		results[m.Name()] = m.Result()
	}

	return results, nil
}

// PredictOptions configure a prediction pass.
type PredictOptions struct {
	// BatchSize bounds how many samples run concurrently. Default 32.
	BatchSize int
}

// Predict runs the program over every sample, preserving input order. No
// compile is required.
func (p *Program) Predict(ctx context.Context, x []*core.JsonDataModel, optFns ...func(o *PredictOptions)) ([]*core.JsonDataModel, error) {
	opts := PredictOptions{BatchSize: 32}

	for _, fn := range optFns {
		fn(&opts)
	}

	if err := p.checkTrainingShape(); err != nil {
		return nil, err
	}

	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}

	out := make([]*core.JsonDataModel, len(x))

	for start := 0; start < len(x); start += opts.BatchSize {
		end := start + opts.BatchSize
		if end > len(x) {
			end = len(x)
		}

		var wg sync.WaitGroup
		errCh := make(chan error, end-start)

		for i := start; i < end; i++ {
			wg.Add(1)
			go func(sample int) {
				defer wg.Done()

				outputs, err := p.Call(ctx, x[sample])
				if err != nil {
					errCh <- err
					return
				}

				out[sample] = outputs[0]
			}(i)
		}

		wg.Wait()
		close(errCh)

		if len(errCh) > 0 {
			return nil, <-errCh
		}
	}

	return out, nil
}

// runBatch executes the selected samples concurrently, scoring each with the
// reward. In training mode each sample runs under its own sample id so the
// predictions recorded by that run can receive the sample's reward.
func (p *Program) runBatch(ctx context.Context, x, y []*core.JsonDataModel, batch []int, reward Reward, training bool) ([]float64, []*core.JsonDataModel, error) {
	scores := make([]float64, len(batch))
	preds := make([]*core.JsonDataModel, len(batch))

	var wg sync.WaitGroup
	errCh := make(chan error, len(batch))

	for i, idx := range batch {
		wg.Add(1)
		go func(slot, sample int) {
			defer wg.Done()

			runCtx := ctx
			sampleID := ""
			if training {
				sampleID = uuid.NewString()
				runCtx = core.WithTraining(ctx, sampleID)
			}

			outputs, err := p.Call(runCtx, x[sample])
			if err != nil {
				errCh <- err
				return
			}

			score, err := reward.Score(ctx, y[sample], outputs[0])
			if err != nil {
				errCh <- fmt.Errorf("program %s: reward %s: %w", p.name, reward.Name(), err)
				return
			}

			if training {
				for _, v := range p.Variables() {
					v.AssignRewards(sampleID, score)
				}
			}

			scores[slot] = score
			preds[slot] = outputs[0]
		}(i, idx)
	}

	wg.Wait()
	close(errCh)

	if len(errCh) > 0 {
		return nil, nil, <-errCh
	}

	return scores, preds, nil
}

// checkTrainingShape enforces the one-input one-output shape the training
// data format assumes.
func (p *Program) checkTrainingShape() error {
	if len(p.inputs) != 1 || len(p.outputs) != 1 {
		return fmt.Errorf("program %s: training entry points require a single-input single-output program, got %d/%d", p.name, len(p.inputs), len(p.outputs))
	}
	return nil
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}

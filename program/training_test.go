package program

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/symflow/core"
)

// -------------------- Training Fixtures --------------------

// exactAnswerReward scores 1.0 when the predicted answer field matches.
type exactAnswerReward struct{}

func (exactAnswerReward) Name() string { return "exact_answer" }

func (exactAnswerReward) Score(_ context.Context, yTrue, yPred *core.JsonDataModel) (float64, error) {
	if yTrue.GetString("answer") == yPred.GetString("answer") {
		return 1, nil
	}
	return 0, nil
}

type brokenReward struct{}

func (brokenReward) Name() string { return "broken_reward" }

func (brokenReward) Score(_ context.Context, _, _ *core.JsonDataModel) (float64, error) {
	return 0, errors.New("cannot score")
}

// accuracyMetric tracks the fraction of exact answer matches.
type accuracyMetric struct {
	matches, total int
}

func (*accuracyMetric) Name() string { return "accuracy" }

func (m *accuracyMetric) Update(yTrue, yPred *core.JsonDataModel) error {
	m.total++
	if yTrue.GetString("answer") == yPred.GetString("answer") {
		m.matches++
	}
	return nil
}

func (m *accuracyMetric) Result() float64 {
	if m.total == 0 {
		return 0
	}
	return float64(m.matches) / float64(m.total)
}

func (m *accuracyMetric) Reset() { m.matches, m.total = 0, 0 }

// countingOptimizer records every Apply without touching any variables.
type countingOptimizer struct {
	built   bool
	applies int
	rewards []float64
}

func (*countingOptimizer) Name() string { return "counting" }

func (o *countingOptimizer) Build(_ *Program) error {
	o.built = true
	return nil
}

func (o *countingOptimizer) Apply(_ context.Context, _ *Program, batchReward float64) error {
	o.applies++
	o.rewards = append(o.rewards, batchReward)
	return nil
}

func (o *countingOptimizer) GetConfig() map[string]any {
	return map[string]any{"name": "counting"}
}

// recordingCallback captures the epoch log stream and can stop training.
type recordingCallback struct {
	begins, ends int
	epochLogs    []map[string]float64
	stopAfter    int
}

func (c *recordingCallback) OnTrainBegin(_ *Program) { c.begins++ }

func (c *recordingCallback) OnEpochEnd(epoch int, logs map[string]float64) error {
	snapshot := make(map[string]float64, len(logs))
	for k, v := range logs {
		snapshot[k] = v
	}
	c.epochLogs = append(c.epochLogs, snapshot)

	if c.stopAfter > 0 && epoch+1 >= c.stopAfter {
		return errors.New("good enough")
	}
	return nil
}

func (c *recordingCallback) OnTrainEnd(_ *Program) { c.ends++ }

func trainingData(t *testing.T, pairs ...[2]string) (x, y []*core.JsonDataModel) {
	t.Helper()

	for _, pair := range pairs {
		x = append(x, queryDoc(t, pair[0]))
		y = append(y, answerDoc(t, pair[1]))
	}

	return x, y
}

// -------------------- Compile Tests --------------------

func TestProgram_Compile(t *testing.T) {
	p, _, _ := linearProgram(t)

	optimizer, reward, metrics := p.CompiledWith()
	assert.Nil(t, optimizer)
	assert.Nil(t, reward)
	assert.Nil(t, metrics)

	err := p.Compile()
	assert.ErrorContains(t, err, "requires a reward")

	opt := &countingOptimizer{}

	err = p.Compile(func(o *CompileOptions) {
		o.Optimizer = opt
		o.Reward = exactAnswerReward{}
		o.Metrics = []Metric{&accuracyMetric{}}
	})
	require.NoError(t, err)
	assert.True(t, opt.built)

	optimizer, reward, metrics = p.CompiledWith()
	assert.Equal(t, "counting", optimizer.Name())
	assert.Equal(t, "exact_answer", reward.Name())
	require.Len(t, metrics, 1)
	assert.Equal(t, "accuracy", metrics[0].Name())
}

// -------------------- Fit Tests --------------------

func TestProgram_Fit(t *testing.T) {
	p, mock, g := linearProgram(t,
		`{"answer": "Paris"}`,
		`{"answer": "Lyon"}`,
	)

	opt := &countingOptimizer{}

	require.NoError(t, p.Compile(func(o *CompileOptions) {
		o.Optimizer = opt
		o.Reward = exactAnswerReward{}
		o.Metrics = []Metric{&accuracyMetric{}}
	}))

	x, y := trainingData(t,
		[2]string{"Capital of France?", "Paris"},
		[2]string{"Capital of Italy?", "Rome"},
	)

	history, err := p.Fit(context.Background(), x, y, func(o *FitOptions) {
		o.BatchSize = 1
		o.Shuffle = false
	})
	require.NoError(t, err)

	assert.Equal(t, 1, history.Epochs)
	assert.Equal(t, []float64{0.5}, history.Records["reward"])
	assert.Equal(t, []float64{0.5}, history.Records["accuracy"])

	assert.Equal(t, 2, opt.applies)
	assert.Equal(t, []float64{1, 0}, opt.rewards)
	assert.Equal(t, 2, mock.Calls())

	// Each sample's reward lands on the predictions it recorded.
	predictions := g.State().Predictions()
	require.Len(t, predictions, 2)

	require.NotNil(t, predictions[0].Reward)
	assert.Equal(t, "Paris", predictions[0].Outputs["answer"])
	assert.Equal(t, 1.0, *predictions[0].Reward)

	require.NotNil(t, predictions[1].Reward)
	assert.Equal(t, "Lyon", predictions[1].Outputs["answer"])
	assert.Equal(t, 0.0, *predictions[1].Reward)
}

func TestProgram_Fit_MultiEpoch(t *testing.T) {
	p, _, _ := linearProgram(t,
		`{"answer": "Paris"}`, `{"answer": "Paris"}`, `{"answer": "Paris"}`,
		`{"answer": "Paris"}`, `{"answer": "Paris"}`, `{"answer": "Paris"}`,
	)

	opt := &countingOptimizer{}
	cb := &recordingCallback{}

	require.NoError(t, p.Compile(func(o *CompileOptions) {
		o.Optimizer = opt
		o.Reward = exactAnswerReward{}
	}))

	x, y := trainingData(t,
		[2]string{"q1", "Paris"},
		[2]string{"q2", "Paris"},
		[2]string{"q3", "Paris"},
	)

	history, err := p.Fit(context.Background(), x, y, func(o *FitOptions) {
		o.Epochs = 2
		o.Callbacks = []Callback{cb}
	})
	require.NoError(t, err)

	assert.Equal(t, 2, history.Epochs)
	assert.Equal(t, []float64{1, 1}, history.Records["reward"])

	// One batch per epoch at the default batch size.
	assert.Equal(t, 2, opt.applies)

	assert.Equal(t, 1, cb.begins)
	assert.Equal(t, 1, cb.ends)
	require.Len(t, cb.epochLogs, 2)
	assert.Equal(t, 1.0, cb.epochLogs[0]["reward"])
}

func TestProgram_Fit_Validation(t *testing.T) {
	p, _, _ := linearProgram(t,
		`{"answer": "Paris"}`,
		`{"answer": "Rome"}`,
		`{"answer": "Berlin"}`,
	)

	require.NoError(t, p.Compile(func(o *CompileOptions) {
		o.Optimizer = &countingOptimizer{}
		o.Reward = exactAnswerReward{}
		o.Metrics = []Metric{&accuracyMetric{}}
	}))

	x, y := trainingData(t,
		[2]string{"Capital of France?", "Paris"},
		[2]string{"Capital of Italy?", "Rome"},
	)
	valX, valY := trainingData(t, [2]string{"Capital of Germany?", "Berlin"})

	history, err := p.Fit(context.Background(), x, y, func(o *FitOptions) {
		o.BatchSize = 1
		o.Shuffle = false
		o.ValidationData = &ValidationData{X: valX, Y: valY}
	})
	require.NoError(t, err)

	assert.Equal(t, []float64{1}, history.Records["reward"])
	assert.Equal(t, []float64{1}, history.Records["val_reward"])
	assert.Equal(t, []float64{1}, history.Records["val_accuracy"])
}

func TestProgram_Fit_EarlyStop(t *testing.T) {
	p, _, _ := linearProgram(t,
		`{"answer": "Paris"}`, `{"answer": "Paris"}`,
	)

	opt := &countingOptimizer{}
	cb := &recordingCallback{stopAfter: 1}

	require.NoError(t, p.Compile(func(o *CompileOptions) {
		o.Optimizer = opt
		o.Reward = exactAnswerReward{}
	}))

	x, y := trainingData(t,
		[2]string{"q1", "Paris"},
		[2]string{"q2", "Paris"},
	)

	history, err := p.Fit(context.Background(), x, y, func(o *FitOptions) {
		o.Epochs = 3
		o.Callbacks = []Callback{cb}
	})
	require.NoError(t, err)

	// Stopped after the first epoch, with the train-end hook still firing.
	assert.Equal(t, 1, history.Epochs)
	assert.Equal(t, 1, opt.applies)
	assert.Equal(t, 1, cb.begins)
	assert.Equal(t, 1, cb.ends)
}

func TestProgram_Fit_NotCompiled(t *testing.T) {
	p, _, _ := linearProgram(t)

	x, y := trainingData(t, [2]string{"q", "Paris"})

	_, err := p.Fit(context.Background(), x, y)
	require.ErrorIs(t, err, ErrNotCompiled)

	// A reward alone supports evaluation but not training.
	require.NoError(t, p.Compile(func(o *CompileOptions) {
		o.Reward = exactAnswerReward{}
	}))

	_, err = p.Fit(context.Background(), x, y)
	require.ErrorIs(t, err, ErrNotCompiled)
	assert.ErrorContains(t, err, "requires an optimizer")
}

func TestProgram_Fit_BadData(t *testing.T) {
	p, _, _ := linearProgram(t)

	require.NoError(t, p.Compile(func(o *CompileOptions) {
		o.Optimizer = &countingOptimizer{}
		o.Reward = exactAnswerReward{}
	}))

	x, y := trainingData(t, [2]string{"q", "Paris"})

	_, err := p.Fit(context.Background(), x, nil)
	assert.ErrorContains(t, err, "matching x/y")

	_, err = p.Fit(context.Background(), nil, nil)
	assert.ErrorContains(t, err, "matching x/y")

	_, err = p.Fit(context.Background(), x, y, func(o *FitOptions) {
		o.Epochs = 0
	})
	assert.ErrorContains(t, err, "must be positive")
}

func TestProgram_Fit_ShapeGuard(t *testing.T) {
	left := queryInput(t, "left")
	right := queryInput(t, "right")

	merged, err := left.Concat(right)
	require.NoError(t, err)

	g, _ := scriptedGenerator(t, "answer_generator", testAnswer{})

	out, err := merged.Apply(g)
	require.NoError(t, err)

	p, err := New(
		[]*core.SymbolicDataModel{left, right},
		[]*core.SymbolicDataModel{out},
	)
	require.NoError(t, err)

	require.NoError(t, p.Compile(func(o *CompileOptions) {
		o.Optimizer = &countingOptimizer{}
		o.Reward = exactAnswerReward{}
	}))

	x, y := trainingData(t, [2]string{"q", "Paris"})

	_, err = p.Fit(context.Background(), x, y)
	assert.ErrorContains(t, err, "single-input single-output")
}

func TestProgram_Fit_RewardError(t *testing.T) {
	p, _, _ := linearProgram(t, `{"answer": "Paris"}`)

	require.NoError(t, p.Compile(func(o *CompileOptions) {
		o.Optimizer = &countingOptimizer{}
		o.Reward = brokenReward{}
	}))

	x, y := trainingData(t, [2]string{"q", "Paris"})

	_, err := p.Fit(context.Background(), x, y)
	require.Error(t, err)
	assert.ErrorContains(t, err, "broken_reward")
}

// -------------------- Evaluate / Predict Tests --------------------

func TestProgram_Evaluate(t *testing.T) {
	p, _, g := linearProgram(t,
		`{"answer": "Paris"}`,
		`{"answer": "Lyon"}`,
	)

	require.NoError(t, p.Compile(func(o *CompileOptions) {
		o.Reward = exactAnswerReward{}
		o.Metrics = []Metric{&accuracyMetric{}}
	}))

	x, y := trainingData(t,
		[2]string{"Capital of France?", "Paris"},
		[2]string{"Capital of Italy?", "Rome"},
	)

	results, err := p.Evaluate(context.Background(), x, y, func(o *EvaluateOptions) {
		o.BatchSize = 1
	})
	require.NoError(t, err)

	assert.Equal(t, 0.5, results["reward"])
	assert.Equal(t, 0.5, results["accuracy"])

	// Evaluation never records predictions.
	assert.Empty(t, g.State().Predictions())
}

func TestProgram_Evaluate_NotCompiled(t *testing.T) {
	p, _, _ := linearProgram(t)

	x, y := trainingData(t, [2]string{"q", "Paris"})

	_, err := p.Evaluate(context.Background(), x, y)
	require.ErrorIs(t, err, ErrNotCompiled)
}

func TestProgram_Predict(t *testing.T) {
	p, _, _ := linearProgram(t,
		`{"answer": "Paris"}`,
		`{"answer": "Rome"}`,
		`{"answer": "Berlin"}`,
	)

	x := []*core.JsonDataModel{
		queryDoc(t, "Capital of France?"),
		queryDoc(t, "Capital of Italy?"),
		queryDoc(t, "Capital of Germany?"),
	}

	outputs, err := p.Predict(context.Background(), x, func(o *PredictOptions) {
		o.BatchSize = 1
	})
	require.NoError(t, err)
	require.Len(t, outputs, 3)

	assert.Equal(t, "Paris", outputs[0].GetString("answer"))
	assert.Equal(t, "Rome", outputs[1].GetString("answer"))
	assert.Equal(t, "Berlin", outputs[2].GetString("answer"))
}

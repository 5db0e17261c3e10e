package train

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/symflow/core"
	"github.com/hupe1980/symflow/model"
	"github.com/hupe1980/symflow/module"
	"github.com/hupe1980/symflow/program"
)

// Interface compliance (compile-time assertions)
var (
	_ program.Optimizer = (*RandomFewShot)(nil)
)

// -------------------- Test Fixtures --------------------

type testQuery struct {
	Query string `json:"query" description:"The user question"`
}

func queryDoc(t *testing.T, query string) *core.JsonDataModel {
	t.Helper()

	dm, err := core.NewDataModel(testQuery{Query: query})
	require.NoError(t, err)

	return dm.ToJson()
}

// fewShotProgram wires query -> answer_generator -> answer and returns the
// generator's trainable state variable.
func fewShotProgram(t *testing.T, responses ...string) (*program.Program, *core.Variable) {
	t.Helper()

	mock := model.NewMockChatModel()
	mock.Enqueue(responses...)

	g, err := module.NewGenerator(model.NewLanguageModel(mock), func(o *module.GeneratorOptions) {
		o.Name = "answer_generator"
		o.DataModel = testAnswer{}
	})
	require.NoError(t, err)

	input, err := module.NewInput(testQuery{}, func(o *module.InputOptions) { o.Name = "query" })
	require.NoError(t, err)

	output, err := input.Apply(g)
	require.NoError(t, err)

	p, err := program.New(
		[]*core.SymbolicDataModel{input},
		[]*core.SymbolicDataModel{output},
		func(o *program.Options) { o.Name = "qa" },
	)
	require.NoError(t, err)

	variables := p.TrainableVariables()
	require.Len(t, variables, 1)

	return p, variables[0]
}

func rewardedPrediction(query, answer string, reward float64) core.Prediction {
	return core.Prediction{
		Inputs:  map[string]any{"query": query},
		Outputs: map[string]any{"answer": answer},
		Reward:  &reward,
	}
}

// -------------------- RandomFewShot --------------------

func TestRandomFewShot_Apply(t *testing.T) {
	p, variable := fewShotProgram(t)

	variable.SetPredictions([]core.Prediction{
		rewardedPrediction("a", "A", 1.0),
		rewardedPrediction("b", "B", 0.9),
		rewardedPrediction("c", "C", 0.1),
		{Inputs: map[string]any{"query": "d"}, Outputs: map[string]any{"answer": "D"}},
	})

	opt := NewRandomFewShot(func(o *RandomFewShotOptions) {
		o.K = 2
		o.Rand = rand.New(rand.NewSource(7))
	})
	require.NoError(t, opt.Build(p))
	require.NoError(t, opt.Apply(context.Background(), p, 0.75))

	examples := variable.Examples()
	require.Len(t, examples, 2)
	for _, example := range examples {
		// The unscored prediction can never be promoted.
		assert.NotEqual(t, "D", example.Outputs["answer"])
	}
}

func TestRandomFewShot_GreedySelection(t *testing.T) {
	p, variable := fewShotProgram(t)

	variable.SetPredictions([]core.Prediction{
		rewardedPrediction("a", "worst", 0.1),
		rewardedPrediction("b", "best", 1.0),
		rewardedPrediction("c", "middle", 0.5),
	})

	// Temperature 0 keeps the best K outright.
	opt := NewRandomFewShot(func(o *RandomFewShotOptions) {
		o.K = 2
		o.Temperature = 0
	})
	require.NoError(t, opt.Apply(context.Background(), p, 0.5))

	examples := variable.Examples()
	require.Len(t, examples, 2)
	assert.Equal(t, "best", examples[0].Outputs["answer"])
	assert.Equal(t, "middle", examples[1].Outputs["answer"])
}

func TestRandomFewShot_FewerThanK(t *testing.T) {
	p, variable := fewShotProgram(t)
	variable.SetPredictions([]core.Prediction{rewardedPrediction("a", "A", 1.0)})

	opt := NewRandomFewShot()
	require.NoError(t, opt.Apply(context.Background(), p, 1.0))

	examples := variable.Examples()
	require.Len(t, examples, 1)
	assert.Equal(t, "A", examples[0].Outputs["answer"])
	assert.Equal(t, "a", examples[0].Inputs["query"])
}

func TestRandomFewShot_NoRewardedPredictions(t *testing.T) {
	p, variable := fewShotProgram(t)

	variable.SetExamples([]core.Example{{
		Inputs:  map[string]any{"query": "kept"},
		Outputs: map[string]any{"answer": "kept"},
	}})

	opt := NewRandomFewShot()
	require.NoError(t, opt.Apply(context.Background(), p, 0.0))

	// Without rewarded predictions the existing examples survive.
	examples := variable.Examples()
	require.Len(t, examples, 1)
	assert.Equal(t, "kept", examples[0].Outputs["answer"])
}

func TestRandomFewShot_BuildValidation(t *testing.T) {
	p, _ := fewShotProgram(t)

	opt := NewRandomFewShot(func(o *RandomFewShotOptions) { o.K = 0 })
	err := opt.Build(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "k must be positive")
}

func TestRandomFewShot_GetConfig(t *testing.T) {
	opt := NewRandomFewShot(func(o *RandomFewShotOptions) {
		o.K = 5
		o.Temperature = 0.5
	})

	assert.Equal(t, "random_few_shot", opt.Name())

	cfg := opt.GetConfig()
	assert.Equal(t, "random_few_shot", cfg["name"])
	assert.Equal(t, 5, cfg["k"])
	assert.Equal(t, 0.5, cfg["temperature"])
}

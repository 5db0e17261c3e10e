package train

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/symflow/core"
	"github.com/hupe1980/symflow/model"
	"github.com/hupe1980/symflow/program"
)

// Interface compliance (compile-time assertions)
var (
	_ program.Reward = (*ExactMatch)(nil)
	_ program.Reward = (*CosineSimilarity)(nil)
)

// -------------------- Test Fixtures --------------------

type testAnswer struct {
	Thinking string `json:"thinking" description:"The step by step reasoning"`
	Answer   string `json:"answer" description:"The final answer"`
}

func answerDoc(t *testing.T, thinking, answer string) *core.JsonDataModel {
	t.Helper()

	dm, err := core.NewDataModel(testAnswer{Thinking: thinking, Answer: answer})
	require.NoError(t, err)

	return dm.ToJson()
}

// -------------------- ExactMatch --------------------

func TestExactMatch(t *testing.T) {
	reward := NewExactMatch()
	assert.Equal(t, "exact_match", reward.Name())

	score, err := reward.Score(context.Background(), answerDoc(t, "a", "Paris"), answerDoc(t, "a", "Paris"))
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)

	score, err = reward.Score(context.Background(), answerDoc(t, "a", "Paris"), answerDoc(t, "a", "Lyon"))
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}

func TestExactMatch_InMask(t *testing.T) {
	reward := NewExactMatch(func(o *RewardOptions) {
		o.InMask = []string{"answer"}
	})

	// Different thinking, same answer: the mask hides the difference.
	score, err := reward.Score(context.Background(), answerDoc(t, "first", "Paris"), answerDoc(t, "second", "Paris"))
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)

	score, err = reward.Score(context.Background(), answerDoc(t, "first", "Paris"), answerDoc(t, "second", "Lyon"))
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}

func TestExactMatch_OutMask(t *testing.T) {
	reward := NewExactMatch(func(o *RewardOptions) {
		o.OutMask = []string{"thinking"}
	})

	score, err := reward.Score(context.Background(), answerDoc(t, "first", "Paris"), answerDoc(t, "second", "Paris"))
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)
}

func TestExactMatch_KeyOrder(t *testing.T) {
	dm, err := core.NewDataModel(testAnswer{Thinking: "a", Answer: "Paris"})
	require.NoError(t, err)

	// Same content with reordered keys still matches.
	shuffled := core.NewJsonDataModel(dm.Schema(), []byte(`{"answer":"Paris","thinking":"a"}`))

	reward := NewExactMatch()
	score, err := reward.Score(context.Background(), dm.ToJson(), shuffled)
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)
}

func TestExactMatch_NilDocuments(t *testing.T) {
	reward := NewExactMatch()

	score, err := reward.Score(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)

	score, err = reward.Score(context.Background(), answerDoc(t, "a", "Paris"), nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}

func TestExactMatch_NamedOption(t *testing.T) {
	reward := NewExactMatch(func(o *RewardOptions) { o.Name = "answer_match" })
	assert.Equal(t, "answer_match", reward.Name())
}

// -------------------- CosineSimilarity --------------------

func TestCosineSimilarity(t *testing.T) {
	reward := NewCosineSimilarity(func(o *CosineSimilarityOptions) {
		o.InMask = []string{"answer"}
	})
	assert.Equal(t, "cosine_similarity", reward.Name())

	score, err := reward.Score(context.Background(),
		answerDoc(t, "a", "the capital is Paris"),
		answerDoc(t, "b", "the capital is Paris"),
	)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-6)

	score, err = reward.Score(context.Background(), answerDoc(t, "a", "Paris"), answerDoc(t, "b", "Lyon"))
	require.NoError(t, err)
	assert.InDelta(t, 0.0, score, 1e-6)
}

func TestCosineSimilarity_PartialOverlap(t *testing.T) {
	reward := NewCosineSimilarity(func(o *CosineSimilarityOptions) {
		o.InMask = []string{"answer"}
	})

	// One shared token, one distinct token per side: cos = 1/2.
	score, err := reward.Score(context.Background(),
		answerDoc(t, "", "paris france"),
		answerDoc(t, "", "paris texas"),
	)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, score, 1e-6)
}

func TestCosineSimilarity_CaseAndPunctuation(t *testing.T) {
	reward := NewCosineSimilarity(func(o *CosineSimilarityOptions) {
		o.InMask = []string{"answer"}
	})

	score, err := reward.Score(context.Background(),
		answerDoc(t, "", "Paris, France."),
		answerDoc(t, "", "paris france"),
	)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-6)
}

func TestCosineSimilarity_EmptyDocuments(t *testing.T) {
	reward := NewCosineSimilarity(func(o *CosineSimilarityOptions) {
		o.InMask = []string{"answer"}
	})

	score, err := reward.Score(context.Background(), answerDoc(t, "a", ""), answerDoc(t, "b", ""))
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)

	score, err = reward.Score(context.Background(), answerDoc(t, "a", "Paris"), answerDoc(t, "b", ""))
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}

func TestCosineSimilarity_EmbeddingModel(t *testing.T) {
	embedder := model.NewMockEmbeddingModel(3)
	embedder.AddVector("Paris", []float64{1, 0, 0})
	embedder.AddVector("Lyon", []float64{0, 1, 0})

	reward := NewCosineSimilarity(func(o *CosineSimilarityOptions) {
		o.InMask = []string{"answer"}
		o.EmbeddingModel = embedder
	})

	// Orthogonal embeddings rescale to 0.5.
	score, err := reward.Score(context.Background(), answerDoc(t, "a", "Paris"), answerDoc(t, "b", "Lyon"))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, score, 1e-6)

	score, err = reward.Score(context.Background(), answerDoc(t, "a", "Paris"), answerDoc(t, "b", "Paris"))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-6)
}

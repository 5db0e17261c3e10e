package train

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/symflow/program"
)

// Interface compliance (compile-time assertions)
var (
	_ program.Metric = (*F1Score)(nil)
	_ program.Metric = (*RewardMetric)(nil)
)

// -------------------- F1Score --------------------

func TestF1Score(t *testing.T) {
	metric := NewF1Score(func(o *MetricOptions) {
		o.InMask = []string{"answer"}
	})
	assert.Equal(t, "f1_score", metric.Name())
	assert.Equal(t, 0.0, metric.Result())

	require.NoError(t, metric.Update(answerDoc(t, "a", "Paris"), answerDoc(t, "b", "Paris")))
	assert.InDelta(t, 1.0, metric.Result(), 1e-9)

	require.NoError(t, metric.Update(answerDoc(t, "a", "Paris"), answerDoc(t, "b", "Lyon")))
	assert.InDelta(t, 0.5, metric.Result(), 1e-9)
}

func TestF1Score_PartialOverlap(t *testing.T) {
	metric := NewF1Score(func(o *MetricOptions) {
		o.InMask = []string{"answer"}
	})

	// true {paris, france}, pred {paris}: precision 1, recall 1/2, F1 2/3.
	require.NoError(t, metric.Update(answerDoc(t, "", "paris france"), answerDoc(t, "", "paris")))
	assert.InDelta(t, 2.0/3.0, metric.Result(), 1e-9)
}

func TestF1Score_RepeatedTokens(t *testing.T) {
	metric := NewF1Score(func(o *MetricOptions) {
		o.InMask = []string{"answer"}
	})

	// Token counts matter: "paris paris" only matches one "paris".
	// Overlap 1, precision 1/2, recall 1, F1 2/3.
	require.NoError(t, metric.Update(answerDoc(t, "", "paris"), answerDoc(t, "", "paris paris")))
	assert.InDelta(t, 2.0/3.0, metric.Result(), 1e-9)
}

func TestF1Score_Reset(t *testing.T) {
	metric := NewF1Score()

	require.NoError(t, metric.Update(answerDoc(t, "a", "x"), answerDoc(t, "a", "x")))
	assert.Greater(t, metric.Result(), 0.0)

	metric.Reset()
	assert.Equal(t, 0.0, metric.Result())
}

func TestF1Score_NilDocuments(t *testing.T) {
	metric := NewF1Score()

	require.NoError(t, metric.Update(nil, nil))
	assert.Equal(t, 1.0, metric.Result())

	metric.Reset()
	require.NoError(t, metric.Update(answerDoc(t, "a", "Paris"), nil))
	assert.Equal(t, 0.0, metric.Result())
}

// -------------------- RewardMetric --------------------

func TestRewardMetric(t *testing.T) {
	metric := NewRewardMetric(NewExactMatch(func(o *RewardOptions) {
		o.InMask = []string{"answer"}
	}))
	assert.Equal(t, "exact_match", metric.Name())

	require.NoError(t, metric.Update(answerDoc(t, "a", "Paris"), answerDoc(t, "b", "Paris")))
	require.NoError(t, metric.Update(answerDoc(t, "a", "Paris"), answerDoc(t, "b", "Lyon")))
	assert.InDelta(t, 0.5, metric.Result(), 1e-9)

	metric.Reset()
	assert.Equal(t, 0.0, metric.Result())
}

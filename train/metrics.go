package train

import (
	"context"
	"sync"

	"github.com/hupe1980/symflow/core"
	"github.com/hupe1980/symflow/program"
)

// MetricOptions configure the built-in metrics.
type MetricOptions struct {
	// Name overrides the default metric name.
	Name string
	// InMask keeps only the listed top-level fields of both documents before
	// scoring.
	InMask []string
	// OutMask removes the listed top-level fields of both documents before
	// scoring.
	OutMask []string
}

// F1Score tracks the mean token-level F1 between expected and predicted
// documents: precision and recall over the multiset of word tokens found in
// the string fields.
type F1Score struct {
	name    string
	inMask  []string
	outMask []string

	mu    sync.Mutex
	sum   float64
	count int
}

// NewF1Score creates the token-level F1 metric.
func NewF1Score(optFns ...func(o *MetricOptions)) *F1Score {
	opts := MetricOptions{Name: "f1_score"}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &F1Score{name: opts.Name, inMask: opts.InMask, outMask: opts.OutMask}
}

// Name returns the metric name used in logs and history records.
func (m *F1Score) Name() string { return m.name }

// Update scores one sample and folds it into the running mean. Two absent
// documents score 1, a single absent document scores 0.
func (m *F1Score) Update(yTrue, yPred *core.JsonDataModel) error {
	m.observe(m.sample(yTrue, yPred))
	return nil
}

func (m *F1Score) sample(yTrue, yPred *core.JsonDataModel) float64 {
	if yTrue == nil || yPred == nil {
		if yTrue == nil && yPred == nil {
			return 1.0
		}
		return 0.0
	}

	trueTokens := tokenize(joinStrings(maskRaw(yTrue, m.inMask, m.outMask)))
	predTokens := tokenize(joinStrings(maskRaw(yPred, m.inMask, m.outMask)))

	if len(trueTokens) == 0 && len(predTokens) == 0 {
		return 1.0
	}
	if len(trueTokens) == 0 || len(predTokens) == 0 {
		return 0.0
	}

	overlap := 0
	trueCounts := tokenCounts(trueTokens)
	for token, predCount := range tokenCounts(predTokens) {
		trueCount := trueCounts[token]
		if predCount < trueCount {
			overlap += predCount
		} else {
			overlap += trueCount
		}
	}

	if overlap == 0 {
		return 0.0
	}

	precision := float64(overlap) / float64(len(predTokens))
	recall := float64(overlap) / float64(len(trueTokens))

	return 2 * precision * recall / (precision + recall)
}

func (m *F1Score) observe(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sum += v
	m.count++
}

// Result returns the mean F1 over the samples seen since the last Reset.
func (m *F1Score) Result() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.count == 0 {
		return 0
	}
	return m.sum / float64(m.count)
}

// Reset clears the accumulated state.
func (m *F1Score) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sum = 0
	m.count = 0
}

// RewardMetric adapts any reward into an observation-only metric tracking
// its running mean, so a reward can be monitored without driving training.
type RewardMetric struct {
	reward program.Reward

	mu    sync.Mutex
	sum   float64
	count int
}

// NewRewardMetric wraps the given reward as a metric.
func NewRewardMetric(reward program.Reward) *RewardMetric {
	return &RewardMetric{reward: reward}
}

// Name returns the wrapped reward's name.
func (m *RewardMetric) Name() string { return m.reward.Name() }

// Update scores one sample with the wrapped reward.
func (m *RewardMetric) Update(yTrue, yPred *core.JsonDataModel) error {
	score, err := m.reward.Score(context.Background(), yTrue, yPred)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sum += score
	m.count++

	return nil
}

// Result returns the mean score over the samples seen since the last Reset.
func (m *RewardMetric) Result() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.count == 0 {
		return 0
	}
	return m.sum / float64(m.count)
}

// Reset clears the accumulated state.
func (m *RewardMetric) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sum = 0
	m.count = 0
}

package train

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/tidwall/gjson"

	"github.com/hupe1980/symflow/config"
	"github.com/hupe1980/symflow/core"
	"github.com/hupe1980/symflow/knowledge"
	"github.com/hupe1980/symflow/model"
)

// RewardOptions configure the built-in rewards.
type RewardOptions struct {
	// Name overrides the default reward name.
	Name string
	// InMask keeps only the listed top-level fields of both documents before
	// scoring.
	InMask []string
	// OutMask removes the listed top-level fields of both documents before
	// scoring.
	OutMask []string
}

// ExactMatch scores 1.0 when both documents are equal after masking and
// canonical re-serialization, 0.0 otherwise.
type ExactMatch struct {
	name    string
	inMask  []string
	outMask []string
}

// NewExactMatch creates the all-or-nothing equality reward.
func NewExactMatch(optFns ...func(o *RewardOptions)) *ExactMatch {
	opts := RewardOptions{Name: "exact_match"}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &ExactMatch{name: opts.Name, inMask: opts.InMask, outMask: opts.OutMask}
}

// Name returns the reward name used in logs and saved programs.
func (r *ExactMatch) Name() string { return r.name }

// Score compares both masked documents ignoring key order and whitespace.
// Two absent documents match; a single absent document scores zero.
func (r *ExactMatch) Score(_ context.Context, yTrue, yPred *core.JsonDataModel) (float64, error) {
	if yTrue == nil || yPred == nil {
		if yTrue == nil && yPred == nil {
			return 1.0, nil
		}
		return 0.0, nil
	}

	a, err := canonicalJSON(maskRaw(yTrue, r.inMask, r.outMask))
	if err != nil {
		return 0, fmt.Errorf("train: reward %s: %w", r.name, err)
	}

	b, err := canonicalJSON(maskRaw(yPred, r.inMask, r.outMask))
	if err != nil {
		return 0, fmt.Errorf("train: reward %s: %w", r.name, err)
	}

	if bytes.Equal(a, b) {
		return 1.0, nil
	}

	return 0.0, nil
}

// CosineSimilarityOptions extend the common reward options for the cosine
// reward.
type CosineSimilarityOptions struct {
	RewardOptions
	// EmbeddingModel scores semantic similarity instead of the default
	// bag-of-words token overlap.
	EmbeddingModel model.EmbeddingModel
}

// CosineSimilarity scores how similar the string content of both documents
// is. By default it compares bag-of-words token counts; with an embedding
// model it compares embedding vectors, rescaled to [0, 1].
type CosineSimilarity struct {
	name     string
	inMask   []string
	outMask  []string
	embedder model.EmbeddingModel
}

// NewCosineSimilarity creates the similarity reward.
func NewCosineSimilarity(optFns ...func(o *CosineSimilarityOptions)) *CosineSimilarity {
	opts := CosineSimilarityOptions{
		RewardOptions: RewardOptions{Name: "cosine_similarity"},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &CosineSimilarity{
		name:     opts.Name,
		inMask:   opts.InMask,
		outMask:  opts.OutMask,
		embedder: opts.EmbeddingModel,
	}
}

// Name returns the reward name used in logs and saved programs.
func (r *CosineSimilarity) Name() string { return r.name }

// Score compares the concatenated string fields of both masked documents.
func (r *CosineSimilarity) Score(ctx context.Context, yTrue, yPred *core.JsonDataModel) (float64, error) {
	if yTrue == nil || yPred == nil {
		if yTrue == nil && yPred == nil {
			return 1.0, nil
		}
		return 0.0, nil
	}

	textTrue := joinStrings(maskRaw(yTrue, r.inMask, r.outMask))
	textPred := joinStrings(maskRaw(yPred, r.inMask, r.outMask))

	if r.embedder != nil {
		vectors, err := r.embedder.Embed(ctx, []string{textTrue, textPred})
		if err != nil {
			return 0, fmt.Errorf("train: reward %s: %w", r.name, err)
		}
		if len(vectors) != 2 {
			return 0, fmt.Errorf("train: reward %s: expected 2 embeddings, got %d", r.name, len(vectors))
		}
		// Embedding cosine lives in [-1, 1]; rescale so rewards stay in [0, 1].
		return (1.0 + knowledge.CosineSimilarity(vectors[0], vectors[1])) / 2.0, nil
	}

	return tokenCosine(tokenize(textTrue), tokenize(textPred)), nil
}

// maskRaw applies the in and out masks to a document's raw JSON.
func maskRaw(dm *core.JsonDataModel, inMask, outMask []string) []byte {
	raw := dm.Raw()
	if len(inMask) > 0 {
		raw = core.ApplyInMask(raw, inMask)
	}
	if len(outMask) > 0 {
		raw = core.ApplyOutMask(raw, outMask)
	}
	return raw
}

// canonicalJSON re-serializes a document so key order and whitespace do not
// affect comparison.
func canonicalJSON(raw []byte) ([]byte, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// joinStrings concatenates every string leaf of the document, in document
// order, separated by spaces.
func joinStrings(raw []byte) string {
	var parts []string

	var walk func(value gjson.Result)
	walk = func(value gjson.Result) {
		switch {
		case value.Type == gjson.String:
			parts = append(parts, value.String())
		case value.IsObject() || value.IsArray():
			value.ForEach(func(_, v gjson.Result) bool {
				walk(v)
				return true
			})
		}
	}
	walk(gjson.ParseBytes(raw))

	return strings.Join(parts, " ")
}

// tokenize lowercases and splits on any non-letter, non-digit rune.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// tokenCosine computes the cosine of two bag-of-words count vectors. Two
// empty documents count as identical.
func tokenCosine(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	countsA := tokenCounts(a)
	countsB := tokenCounts(b)

	var dot, normA, normB float64
	for token, ca := range countsA {
		dot += float64(ca) * float64(countsB[token])
		normA += float64(ca) * float64(ca)
	}
	for _, cb := range countsB {
		normB += float64(cb) * float64(cb)
	}

	return dot / (math.Sqrt(normA)*math.Sqrt(normB) + config.Epsilon())
}

func tokenCounts(tokens []string) map[string]int {
	counts := make(map[string]int, len(tokens))
	for _, t := range tokens {
		counts[t]++
	}
	return counts
}

package module

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/hupe1980/symflow/core"
	"github.com/hupe1980/symflow/logging"
	"github.com/hupe1980/symflow/model"
	"github.com/hupe1980/symflow/schema"
)

// Embedded is the document fragment an Embedding module appends to its
// input.
type Embedded struct {
	Embeddings []float64 `json:"embeddings" description:"The vector embeddings of the data model."`
}

// EmbeddingOptions configure an Embedding instance.
type EmbeddingOptions struct {
	// Name identifies the module in graphs; auto-generated when empty.
	Name        string
	Description string
	// InMask restricts which top-level fields feed the embedding text. Empty
	// means every string field.
	InMask []string
	Logger logging.Logger
}

// Embedding adds vector embeddings to flowing documents.
//
// The string fields of the input (optionally narrowed by InMask) are joined
// into one text, embedded, and the vector is appended under "embeddings".
// UpdateKnowledge and KnowledgeRetriever consume that field downstream.
type Embedding struct {
	BaseModule
	em     model.EmbeddingModel
	inMask []string
	logger logging.Logger
}

// NewEmbedding creates an embedding module around the given model.
func NewEmbedding(em model.EmbeddingModel, optFns ...func(o *EmbeddingOptions)) (*Embedding, error) {
	opts := EmbeddingOptions{
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if em == nil {
		return nil, fmt.Errorf("module: embedding requires an embedding model")
	}

	name := opts.Name
	if name == "" {
		name = core.AutoName("embedding")
	}

	e := &Embedding{
		BaseModule: NewBaseModule(name),
		em:         em,
		inMask:     append([]string(nil), opts.InMask...),
		logger:     opts.Logger,
	}

	if opts.Description != "" {
		e.SetDescription(opts.Description)
	}

	return e, nil
}

// Call embeds the single input document and appends the vector. A nil input
// flows through as nil.
func (e *Embedding) Call(ctx context.Context, inputs ...*core.JsonDataModel) ([]*core.JsonDataModel, error) {
	if len(inputs) != 1 {
		return nil, NewModuleError(e.Name(), fmt.Sprintf("expected 1 input, got %d", len(inputs)), "VALIDATION_ERROR")
	}

	input := inputs[0]
	if input == nil {
		return []*core.JsonDataModel{nil}, nil
	}

	text := embeddingText(input.Raw(), e.inMask)
	if text == "" {
		return nil, NewModuleError(e.Name(), "no string fields to embed", "VALIDATION_ERROR")
	}

	vectors, err := e.em.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embedding %s: %w", e.Name(), err)
	}

	e.logger.Debug("embedding.call", "module", e.Name(), "dimensions", len(vectors[0]))

	doc, err := core.NewDataModel(Embedded{Embeddings: vectors[0]})
	if err != nil {
		return nil, err
	}

	merged, err := core.Concat(input, doc.ToJson())
	if err != nil {
		return nil, fmt.Errorf("embedding %s: %w", e.Name(), err)
	}

	return []*core.JsonDataModel{merged}, nil
}

// ComputeOutputSpec reports the input schema extended with the embeddings
// field.
func (e *Embedding) ComputeOutputSpec(inputs ...*core.SymbolicDataModel) ([]*core.SymbolicDataModel, error) {
	if len(inputs) != 1 {
		return nil, NewModuleError(e.Name(), fmt.Sprintf("expected 1 input, got %d", len(inputs)), "VALIDATION_ERROR")
	}

	embedded, err := schema.FromStruct(Embedded{})
	if err != nil {
		return nil, err
	}

	return []*core.SymbolicDataModel{core.NewSymbolicDataModel(schema.Concat(inputs[0].Schema(), embedded))}, nil
}

// GetConfig returns the serializable configuration used by persistence.
func (e *Embedding) GetConfig() map[string]any {
	return map[string]any{
		"name":            e.Name(),
		"description":     e.Description(),
		"in_mask":         append([]string(nil), e.inMask...),
		"embedding_model": e.em.Info().Name,
	}
}

// embeddingText joins the string fields of a document, optionally narrowed
// to the masked keys, into one embedding input.
func embeddingText(raw []byte, inMask []string) string {
	masked := core.ApplyInMask(raw, inMask)

	var parts []string
	gjson.ParseBytes(masked).ForEach(func(_, v gjson.Result) bool {
		if v.Type == gjson.String {
			parts = append(parts, v.String())
		}
		return true
	})

	return strings.Join(parts, "\n")
}

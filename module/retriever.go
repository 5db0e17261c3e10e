package module

import (
	"context"
	"fmt"

	"github.com/tidwall/sjson"

	"github.com/hupe1980/symflow/core"
	"github.com/hupe1980/symflow/knowledge"
	"github.com/hupe1980/symflow/logging"
	"github.com/hupe1980/symflow/model"
	"github.com/hupe1980/symflow/schema"
)

// KnowledgeRetrieverOptions configure a KnowledgeRetriever instance.
type KnowledgeRetrieverOptions struct {
	// Name identifies the module in graphs; auto-generated when empty.
	Name        string
	Description string
	// K bounds the number of returned records.
	K int
	// InMask restricts which top-level fields feed the query text. Empty
	// means every string field.
	InMask []string
	// ReturnInputs concatenates the input document in front of the results.
	ReturnInputs bool
	Logger       logging.Logger
}

// KnowledgeRetriever searches a knowledge base with the flowing document as
// query.
//
// The input's string fields become the query text, the embedding model turns
// it into a vector, and the K most similar stored records land under
// "search_results", best match first, each with its similarity score.
type KnowledgeRetriever struct {
	BaseModule
	em           model.EmbeddingModel
	kb           knowledge.KnowledgeBase
	k            int
	inMask       []string
	returnInputs bool
	logger       logging.Logger
}

// NewKnowledgeRetriever creates a retriever around the given embedding model
// and knowledge base.
func NewKnowledgeRetriever(em model.EmbeddingModel, kb knowledge.KnowledgeBase, optFns ...func(o *KnowledgeRetrieverOptions)) (*KnowledgeRetriever, error) {
	opts := KnowledgeRetrieverOptions{
		K:      5,
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if em == nil {
		return nil, fmt.Errorf("module: knowledge retriever requires an embedding model")
	}

	if kb == nil {
		return nil, fmt.Errorf("module: knowledge retriever requires a knowledge base")
	}

	if opts.K < 1 {
		return nil, fmt.Errorf("module: knowledge retriever requires k >= 1, got %d", opts.K)
	}

	name := opts.Name
	if name == "" {
		name = core.AutoName("knowledge_retriever")
	}

	r := &KnowledgeRetriever{
		BaseModule:   NewBaseModule(name),
		em:           em,
		kb:           kb,
		k:            opts.K,
		inMask:       append([]string(nil), opts.InMask...),
		returnInputs: opts.ReturnInputs,
		logger:       opts.Logger,
	}

	if opts.Description != "" {
		r.SetDescription(opts.Description)
	}

	return r, nil
}

// Call retrieves the top-K records for the single input document. A nil
// input flows through as nil.
func (r *KnowledgeRetriever) Call(ctx context.Context, inputs ...*core.JsonDataModel) ([]*core.JsonDataModel, error) {
	if len(inputs) != 1 {
		return nil, NewModuleError(r.Name(), fmt.Sprintf("expected 1 input, got %d", len(inputs)), "VALIDATION_ERROR")
	}

	input := inputs[0]
	if input == nil {
		return []*core.JsonDataModel{nil}, nil
	}

	text := embeddingText(input.Raw(), r.inMask)
	if text == "" {
		return nil, NewModuleError(r.Name(), "no string fields to build a query from", "VALIDATION_ERROR")
	}

	vectors, err := r.em.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("knowledge retriever %s: %w", r.Name(), err)
	}

	results, err := r.kb.Search(ctx, vectors[0], r.k)
	if err != nil {
		return nil, fmt.Errorf("knowledge retriever %s: %w", r.Name(), err)
	}

	r.logger.Debug("knowledge.search", "module", r.Name(), "results", len(results))

	raw := []byte(`{"search_results":[]}`)
	for _, result := range results {
		item, err := sjson.SetBytes(result.Raw, "score", result.Score)
		if err != nil {
			return nil, fmt.Errorf("knowledge retriever %s: %w", r.Name(), err)
		}

		raw, err = sjson.SetRawBytes(raw, "search_results.-1", item)
		if err != nil {
			return nil, fmt.Errorf("knowledge retriever %s: %w", r.Name(), err)
		}
	}

	doc := core.NewJsonDataModel(searchResultsSchema(), raw)

	if r.returnInputs {
		merged, err := core.Concat(input, doc)
		if err != nil {
			return nil, fmt.Errorf("knowledge retriever %s: %w", r.Name(), err)
		}

		return []*core.JsonDataModel{merged}, nil
	}

	return []*core.JsonDataModel{doc}, nil
}

// ComputeOutputSpec reports the search results spec.
func (r *KnowledgeRetriever) ComputeOutputSpec(inputs ...*core.SymbolicDataModel) ([]*core.SymbolicDataModel, error) {
	if len(inputs) != 1 {
		return nil, NewModuleError(r.Name(), fmt.Sprintf("expected 1 input, got %d", len(inputs)), "VALIDATION_ERROR")
	}

	out := searchResultsSchema()
	if r.returnInputs {
		out = schema.Concat(inputs[0].Schema(), out)
	}

	return []*core.SymbolicDataModel{core.NewSymbolicDataModel(out)}, nil
}

// GetConfig returns the serializable configuration used by persistence.
func (r *KnowledgeRetriever) GetConfig() map[string]any {
	return map[string]any{
		"name":            r.Name(),
		"description":     r.Description(),
		"k":               r.k,
		"in_mask":         append([]string(nil), r.inMask...),
		"return_inputs":   r.returnInputs,
		"embedding_model": r.em.Info().Name,
	}
}

// searchResultsSchema is the retriever output shape: stored records carry no
// declared schema, so the items stay open objects.
func searchResultsSchema() *schema.Schema {
	s := schema.NewObject("SearchResults")
	s.Properties = append(s.Properties, schema.Property{
		Name: "search_results",
		Schema: &schema.Schema{
			Type:        "array",
			Title:       "Search Results",
			Description: "The retrieved documents, best match first.",
			Items:       &schema.Schema{Type: "object"},
		},
	})
	s.Required = append(s.Required, "search_results")

	return s
}

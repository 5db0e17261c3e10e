package module

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/hupe1980/symflow/core"
	"github.com/hupe1980/symflow/knowledge"
	"github.com/hupe1980/symflow/logging"
)

// UpdateKnowledgeOptions configure an UpdateKnowledge instance.
type UpdateKnowledgeOptions struct {
	// Name identifies the module in graphs; auto-generated when empty.
	Name        string
	Description string
	Logger      logging.Logger
}

// UpdateKnowledge upserts flowing documents into a knowledge base.
//
// The stored record keeps the full document, labeled with the document's
// "label" field (falling back to the schema title) and indexed under the
// "embeddings" vector when present. The input passes through unchanged, so
// ingestion pipelines can keep composing.
type UpdateKnowledge struct {
	BaseModule
	kb     knowledge.KnowledgeBase
	logger logging.Logger
}

// NewUpdateKnowledge creates an update module around the given knowledge
// base.
func NewUpdateKnowledge(kb knowledge.KnowledgeBase, optFns ...func(o *UpdateKnowledgeOptions)) (*UpdateKnowledge, error) {
	opts := UpdateKnowledgeOptions{
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if kb == nil {
		return nil, fmt.Errorf("module: update knowledge requires a knowledge base")
	}

	name := opts.Name
	if name == "" {
		name = core.AutoName("update_knowledge")
	}

	u := &UpdateKnowledge{
		BaseModule: NewBaseModule(name),
		kb:         kb,
		logger:     opts.Logger,
	}

	if opts.Description != "" {
		u.SetDescription(opts.Description)
	}

	return u, nil
}

// Call stores the single input document and passes it through. A nil input
// flows through as nil.
func (u *UpdateKnowledge) Call(ctx context.Context, inputs ...*core.JsonDataModel) ([]*core.JsonDataModel, error) {
	if len(inputs) != 1 {
		return nil, NewModuleError(u.Name(), fmt.Sprintf("expected 1 input, got %d", len(inputs)), "VALIDATION_ERROR")
	}

	input := inputs[0]
	if input == nil {
		return []*core.JsonDataModel{nil}, nil
	}

	record := knowledge.Record{
		Label:     input.GetString("label"),
		Raw:       input.Raw(),
		Embedding: embeddingVector(input.Raw()),
	}

	if record.Label == "" && input.Schema() != nil {
		record.Label = input.Schema().Title
	}

	ids, err := u.kb.Update(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("update knowledge %s: %w", u.Name(), err)
	}

	u.logger.Debug("knowledge.update", "module", u.Name(), "id", ids[0], "label", record.Label)

	return []*core.JsonDataModel{input.Clone()}, nil
}

// ComputeOutputSpec reports the input schema unchanged.
func (u *UpdateKnowledge) ComputeOutputSpec(inputs ...*core.SymbolicDataModel) ([]*core.SymbolicDataModel, error) {
	if len(inputs) != 1 {
		return nil, NewModuleError(u.Name(), fmt.Sprintf("expected 1 input, got %d", len(inputs)), "VALIDATION_ERROR")
	}

	return []*core.SymbolicDataModel{core.NewSymbolicDataModel(inputs[0].Schema().Clone())}, nil
}

// GetConfig returns the serializable configuration used by persistence.
func (u *UpdateKnowledge) GetConfig() map[string]any {
	return map[string]any{
		"name":        u.Name(),
		"description": u.Description(),
	}
}

// embeddingVector extracts the "embeddings" array of a document, nil when
// absent.
func embeddingVector(raw []byte) []float64 {
	value := gjson.GetBytes(raw, "embeddings")
	if !value.IsArray() {
		return nil
	}

	elems := value.Array()
	vector := make([]float64, 0, len(elems))
	for _, e := range elems {
		vector = append(vector, e.Float())
	}

	return vector
}

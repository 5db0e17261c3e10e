package program

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/symflow/core"
	"github.com/hupe1980/symflow/schema"
)

// fakeModule is a minimal core.Module used to drive executor edge cases the
// built-in modules never produce.
type fakeModule struct {
	name      string
	out       *schema.Schema
	callFn    func(ctx context.Context, inputs ...*core.JsonDataModel) ([]*core.JsonDataModel, error)
	specErr   error
	trainable bool
	calls     atomic.Int32
}

var _ core.Module = (*fakeModule)(nil)

func newFakeModule(t *testing.T, name string, callFn func(ctx context.Context, inputs ...*core.JsonDataModel) ([]*core.JsonDataModel, error)) *fakeModule {
	t.Helper()

	out, err := schema.FromStruct(testAnswer{})
	require.NoError(t, err)

	return &fakeModule{name: name, out: out, callFn: callFn}
}

func (f *fakeModule) Name() string        { return f.name }
func (f *fakeModule) Description() string { return "Fake module " + f.name }

func (f *fakeModule) Call(ctx context.Context, inputs ...*core.JsonDataModel) ([]*core.JsonDataModel, error) {
	f.calls.Add(1)
	return f.callFn(ctx, inputs...)
}

func (f *fakeModule) ComputeOutputSpec(_ ...*core.SymbolicDataModel) ([]*core.SymbolicDataModel, error) {
	if f.specErr != nil {
		return nil, f.specErr
	}
	return []*core.SymbolicDataModel{core.NewSymbolicDataModel(f.out.Clone())}, nil
}

func (f *fakeModule) Variables() []*core.Variable { return nil }
func (f *fakeModule) Trainable() bool             { return f.trainable }
func (f *fakeModule) SetTrainable(v bool)         { f.trainable = v }
func (f *fakeModule) GetConfig() map[string]any   { return map[string]any{"name": f.name} }

// -------------------- Execution Tests --------------------

func TestProgram_Call(t *testing.T) {
	p, mock, _ := linearProgram(t, `{"answer": "Paris"}`)

	outputs, err := p.Call(context.Background(), queryDoc(t, "What is the capital of France?"))
	require.NoError(t, err)
	require.Len(t, outputs, 1)

	assert.Equal(t, "Paris", outputs[0].GetString("answer"))
	assert.Equal(t, "testAnswer", outputs[0].Schema().Title)
	assert.Equal(t, 1, mock.Calls())
}

func TestProgram_CallArity(t *testing.T) {
	p, _, _ := linearProgram(t)

	_, err := p.Call(context.Background())
	assert.ErrorContains(t, err, "expected 1 inputs, got 0")
}

func TestProgram_CallNilInput(t *testing.T) {
	p, mock, _ := linearProgram(t)

	outputs, err := p.Call(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, outputs, 1)

	assert.Nil(t, outputs[0])
	assert.Equal(t, 0, mock.Calls())
}

func TestProgram_Diamond(t *testing.T) {
	p, mocks := diamondProgram(t)

	outputs, err := p.Call(context.Background(), queryDoc(t, "Capital of France?"))
	require.NoError(t, err)

	assert.Equal(t, "Paris", outputs[0].GetString("answer"))
	for _, mock := range mocks {
		assert.Equal(t, 1, mock.Calls())
	}

	// The join feeds the merged document to the final generator.
	final := mocks[2].LastRequest()
	require.NotNil(t, final)
	user := final.Messages[len(final.Messages)-1].Content
	assert.Contains(t, user, "Paris is the capital.")
	assert.Contains(t, user, "Looks right.")
}

func TestProgram_MultiOutput(t *testing.T) {
	input := queryInput(t, "query")

	draftGen, _ := scriptedGenerator(t, "draft_generator", testDraft{}, `{"draft": "A draft."}`)
	reviewGen, _ := scriptedGenerator(t, "review_generator", testReview{}, `{"review": "A review."}`)

	draft, err := input.Apply(draftGen)
	require.NoError(t, err)

	review, err := input.Apply(reviewGen)
	require.NoError(t, err)

	p, err := New(
		[]*core.SymbolicDataModel{input},
		[]*core.SymbolicDataModel{draft, review},
	)
	require.NoError(t, err)

	outputs, err := p.Call(context.Background(), queryDoc(t, "Anything"))
	require.NoError(t, err)
	require.Len(t, outputs, 2)

	assert.Equal(t, "A draft.", outputs[0].GetString("draft"))
	assert.Equal(t, "A review.", outputs[1].GetString("review"))
}

func TestProgram_IdentityOutput(t *testing.T) {
	input := queryInput(t, "query")

	p, err := New(
		[]*core.SymbolicDataModel{input},
		[]*core.SymbolicDataModel{input},
	)
	require.NoError(t, err)
	assert.Empty(t, p.Nodes())

	doc := queryDoc(t, "Echo")

	outputs, err := p.Call(context.Background(), doc)
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Same(t, doc, outputs[0])
}

func TestProgram_FirstErrorSkipsDependents(t *testing.T) {
	errBoom := errors.New("boom")

	failing := newFakeModule(t, "fail_step", func(_ context.Context, _ ...*core.JsonDataModel) ([]*core.JsonDataModel, error) {
		return nil, errBoom
	})
	downstream := newFakeModule(t, "after_step", func(_ context.Context, inputs ...*core.JsonDataModel) ([]*core.JsonDataModel, error) {
		return []*core.JsonDataModel{inputs[0]}, nil
	})

	input := queryInput(t, "query")

	mid, err := input.Apply(failing)
	require.NoError(t, err)

	out, err := mid.Apply(downstream)
	require.NoError(t, err)

	p, err := New([]*core.SymbolicDataModel{input}, []*core.SymbolicDataModel{out})
	require.NoError(t, err)

	_, err = p.Call(context.Background(), queryDoc(t, "Anything"))
	require.ErrorIs(t, err, errBoom)
	assert.ErrorContains(t, err, "fail_step")

	assert.Equal(t, int32(1), failing.calls.Load())
	assert.Equal(t, int32(0), downstream.calls.Load())
}

func TestProgram_OutputCountMismatch(t *testing.T) {
	broken := newFakeModule(t, "broken_step", func(_ context.Context, inputs ...*core.JsonDataModel) ([]*core.JsonDataModel, error) {
		return []*core.JsonDataModel{inputs[0], inputs[0]}, nil
	})

	input := queryInput(t, "query")

	out, err := input.Apply(broken)
	require.NoError(t, err)

	p, err := New([]*core.SymbolicDataModel{input}, []*core.SymbolicDataModel{out})
	require.NoError(t, err)

	_, err = p.Call(context.Background(), queryDoc(t, "Anything"))
	assert.ErrorContains(t, err, "returned 2 outputs, expected 1")
}

func TestProgram_NilFlowsThrough(t *testing.T) {
	dropping := newFakeModule(t, "drop_step", func(_ context.Context, _ ...*core.JsonDataModel) ([]*core.JsonDataModel, error) {
		return []*core.JsonDataModel{nil}, nil
	})

	input := queryInput(t, "query")

	dropped, err := input.Apply(dropping)
	require.NoError(t, err)

	g, mock := scriptedGenerator(t, "answer_generator", testAnswer{})

	out, err := dropped.Apply(g)
	require.NoError(t, err)

	p, err := New([]*core.SymbolicDataModel{input}, []*core.SymbolicDataModel{out})
	require.NoError(t, err)

	outputs, err := p.Call(context.Background(), queryDoc(t, "Anything"))
	require.NoError(t, err)

	assert.Nil(t, outputs[0])
	assert.Equal(t, 0, mock.Calls())
}

func TestProgram_ContextCancelled(t *testing.T) {
	p, mock, _ := linearProgram(t, `{"answer": "never"}`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Call(ctx, queryDoc(t, "Anything"))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, mock.Calls())
}

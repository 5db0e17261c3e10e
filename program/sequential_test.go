package program

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/symflow/core"
)

func TestNewSequential(t *testing.T) {
	input := queryInput(t, "query")

	draftGen, _ := scriptedGenerator(t, "draft_generator", testDraft{}, `{"draft": "Paris, probably."}`)
	answerGen, answerMock := scriptedGenerator(t, "answer_generator", testAnswer{}, `{"answer": "Paris"}`)

	p, err := NewSequential(input, []core.Module{draftGen, answerGen})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(p.Name(), "sequential"))
	assert.Len(t, p.Nodes(), 2)

	outputs, err := p.Call(context.Background(), queryDoc(t, "Capital of France?"))
	require.NoError(t, err)
	assert.Equal(t, "Paris", outputs[0].GetString("answer"))

	// The second module sees the first module's output, not the raw input.
	req := answerMock.LastRequest()
	require.NotNil(t, req)
	assert.Contains(t, req.Messages[len(req.Messages)-1].Content, "Paris, probably.")
}

func TestNewSequential_NamedOption(t *testing.T) {
	input := queryInput(t, "query")

	g, _ := scriptedGenerator(t, "answer_generator", testAnswer{})

	p, err := NewSequential(input, []core.Module{g}, func(o *Options) {
		o.Name = "pipeline"
	})
	require.NoError(t, err)
	assert.Equal(t, "pipeline", p.Name())
}

func TestNewSequential_Validation(t *testing.T) {
	input := queryInput(t, "query")

	g, _ := scriptedGenerator(t, "answer_generator", testAnswer{})

	_, err := NewSequential(nil, []core.Module{g})
	assert.ErrorContains(t, err, "requires an input symbol")

	_, err = NewSequential(input, nil)
	assert.ErrorContains(t, err, "at least one module")

	_, err = NewSequential(input, []core.Module{g, nil})
	assert.ErrorContains(t, err, "non-nil modules")
}

func TestNewSequential_ChainError(t *testing.T) {
	input := queryInput(t, "query")

	broken := newFakeModule(t, "broken_step", nil)
	broken.specErr = errors.New("no spec")

	_, err := NewSequential(input, []core.Module{broken})
	assert.ErrorContains(t, err, "sequential chaining failed at module broken_step")
}

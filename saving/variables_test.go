package saving

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/hupe1980/symflow/core"
	"github.com/hupe1980/symflow/module"
	"github.com/hupe1980/symflow/program"
)

func TestSaveLoadVariables(t *testing.T) {
	trained := qaProgram(t)
	trained.Modules()[0].Variables()[0].Set("instructions", "Answer tersely.")

	path := filepath.Join(t.TempDir(), "qa"+VariablesExt)
	require.NoError(t, SaveVariables(trained, path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "qa", gjson.GetBytes(raw, "name").String())
	assert.Equal(t, "Answer tersely.", gjson.GetBytes(raw, "variables.answer_generator/state.instructions").String())

	// A structurally identical program picks the state up by path.
	fresh := qaProgram(t)
	require.NoError(t, LoadVariables(fresh, path))

	tree := fresh.GetStateTree()
	assert.Equal(t, "Answer tersely.", tree["answer_generator/state"]["instructions"])
}

func TestLoadVariables_UnknownPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qa"+VariablesExt)
	require.NoError(t, SaveVariables(qaProgram(t), path))

	input, err := module.NewInput(testQuery{}, func(o *module.InputOptions) { o.Name = "query" })
	require.NoError(t, err)

	output, err := input.Apply(newGenerator(t, "other_generator", testAnswer{}))
	require.NoError(t, err)

	other, err := program.New(
		[]*core.SymbolicDataModel{input},
		[]*core.SymbolicDataModel{output},
	)
	require.NoError(t, err)

	err = LoadVariables(other, path)
	assert.ErrorContains(t, err, `unknown variable path "answer_generator/state"`)
}

func TestSaveVariables_PathValidation(t *testing.T) {
	err := SaveVariables(qaProgram(t), filepath.Join(t.TempDir(), "vars.yaml"))
	assert.ErrorContains(t, err, "must end in .json")
}

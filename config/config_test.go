package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withConfigDir points the package at a throwaway config dir for one test.
func withConfigDir(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	orig := userConfigDir
	userConfigDir = func() (string, error) { return dir, nil }
	reset()

	t.Cleanup(func() {
		userConfigDir = orig
		reset()
	})

	return dir
}

func writeConfigFile(t *testing.T, dir, content string) string {
	t.Helper()

	path := filepath.Join(dir, "symflow", "symflow.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

// -------------------- Defaults --------------------

func TestConfig_Defaults(t *testing.T) {
	dir := withConfigDir(t)

	assert.Equal(t, "openai", Backend())
	assert.Equal(t, "float32", FloatX())
	assert.InDelta(t, 1e-7, Epsilon(), 0)

	// First touch materializes the file with defaults.
	raw, err := os.ReadFile(filepath.Join(dir, "symflow", "symflow.json"))
	require.NoError(t, err)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(raw, &parsed))
	assert.Equal(t, "openai", parsed["backend"])
	assert.Equal(t, "float32", parsed["floatx"])
}

func TestConfig_Path(t *testing.T) {
	dir := withConfigDir(t)

	path, err := Path()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "symflow", "symflow.json"), path)
}

// -------------------- File handling --------------------

func TestConfig_ReadsFile(t *testing.T) {
	dir := withConfigDir(t)
	writeConfigFile(t, dir, `{"backend":"anthropic","floatx":"float16","epsilon":0.001}`)

	assert.Equal(t, "anthropic", Backend())
	assert.Equal(t, "float16", FloatX())
	assert.InDelta(t, 0.001, Epsilon(), 1e-12)
}

func TestConfig_PartialFile(t *testing.T) {
	dir := withConfigDir(t)
	writeConfigFile(t, dir, `{"backend":"anthropic"}`)

	assert.Equal(t, "anthropic", Backend())
	assert.Equal(t, "float32", FloatX())
	assert.InDelta(t, 1e-7, Epsilon(), 0)
}

func TestConfig_MalformedFile(t *testing.T) {
	dir := withConfigDir(t)
	path := writeConfigFile(t, dir, `{"backend": `)

	assert.Equal(t, "openai", Backend())
	assert.InDelta(t, 1e-7, Epsilon(), 0)

	// The broken file is left in place for the user to inspect.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"backend": `, string(raw))
}

// -------------------- Setters --------------------

func TestConfig_Setters(t *testing.T) {
	withConfigDir(t)

	SetBackend("anthropic")
	SetFloatX("float64")
	SetEpsilon(1e-9)

	assert.Equal(t, "anthropic", Backend())
	assert.Equal(t, "float64", FloatX())
	assert.InDelta(t, 1e-9, Epsilon(), 0)
}

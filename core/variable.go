package core

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Variable is a named piece of trainable module state. Optimizers mutate
// variables between program runs; runs themselves only append predictions.
// All access goes through the mutex so batched runs can record concurrently.
type Variable struct {
	mu        sync.RWMutex
	name      string
	path      string
	trainable bool
	data      map[string]any
}

// NewVariable creates a variable with an initial data payload.
func NewVariable(name string, data map[string]any, trainable bool) *Variable {
	if data == nil {
		data = map[string]any{}
	}
	return &Variable{name: name, data: data, trainable: trainable}
}

// Name returns the variable name, unique within its module.
func (v *Variable) Name() string { return v.name }

// Path returns the fully qualified variable path (module/variable), assigned
// when the owning module joins a program.
func (v *Variable) Path() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.path
}

// SetPath assigns the fully qualified variable path.
func (v *Variable) SetPath(path string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.path = path
}

// Trainable reports whether optimizers may mutate this variable.
func (v *Variable) Trainable() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.trainable
}

// SetTrainable toggles optimizer access.
func (v *Variable) SetTrainable(trainable bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.trainable = trainable
}

// Get returns the value stored under the given key, or nil.
func (v *Variable) Get(key string) any {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.data[key]
}

// Set stores a value under the given key.
func (v *Variable) Set(key string, value any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.data[key] = value
}

// Data returns a copy of the data payload.
func (v *Variable) Data() map[string]any {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make(map[string]any, len(v.data))
	for k, val := range v.data {
		out[k] = val
	}
	return out
}

// Assign replaces the whole data payload.
func (v *Variable) Assign(data map[string]any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if data == nil {
		data = map[string]any{}
	}
	v.data = data
}

// MarshalJSON serializes name, path, trainable flag and data.
func (v *Variable) MarshalJSON() ([]byte, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return json.Marshal(map[string]any{
		"name":      v.name,
		"path":      v.path,
		"trainable": v.trainable,
		"data":      v.data,
	})
}

// UnmarshalJSON restores a serialized variable.
func (v *Variable) UnmarshalJSON(raw []byte) error {
	var payload struct {
		Name      string         `json:"name"`
		Path      string         `json:"path"`
		Trainable bool           `json:"trainable"`
		Data      map[string]any `json:"data"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.name = payload.Name
	v.path = payload.Path
	v.trainable = payload.Trainable
	v.data = payload.Data
	if v.data == nil {
		v.data = map[string]any{}
	}
	return nil
}

// Example is one input/output pair presented to a generator as few-shot
// context.
type Example struct {
	Inputs  map[string]any `json:"inputs"`
	Outputs map[string]any `json:"outputs"`
}

// Prediction is one recorded generator exchange. During training, rewards
// are assigned after the sample is scored; the optimizer then promotes
// well-rewarded predictions into examples.
type Prediction struct {
	Inputs   map[string]any `json:"inputs"`
	Outputs  map[string]any `json:"outputs"`
	Reward   *float64       `json:"reward,omitempty"`
	SampleID string         `json:"sample_id,omitempty"`
}

// Examples decodes the "examples" entry of the data payload.
func (v *Variable) Examples() []Example {
	v.mu.RLock()
	defer v.mu.RUnlock()
	var out []Example
	if err := decodeKey(v.data, "examples", &out); err != nil {
		return nil
	}
	return out
}

// SetExamples replaces the "examples" entry of the data payload.
func (v *Variable) SetExamples(examples []Example) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.data["examples"] = toAnySlice(examples)
}

// Predictions decodes the "predictions" entry of the data payload.
func (v *Variable) Predictions() []Prediction {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.predictionsLocked()
}

// SetPredictions replaces the "predictions" entry of the data payload.
func (v *Variable) SetPredictions(predictions []Prediction) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.data["predictions"] = toAnySlice(predictions)
}

// AppendPrediction records a new exchange, trimming the buffer to the given
// capacity from the front. The whole read-modify-write holds the lock so
// concurrent batch samples never lose records.
func (v *Variable) AppendPrediction(p Prediction, capacity int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	predictions := append(v.predictionsLocked(), p)
	if capacity > 0 && len(predictions) > capacity {
		predictions = predictions[len(predictions)-capacity:]
	}
	v.data["predictions"] = toAnySlice(predictions)
}

// AssignRewards sets the reward on every recorded prediction matching the
// sample id and returns how many were updated.
func (v *Variable) AssignRewards(sampleID string, reward float64) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	predictions := v.predictionsLocked()
	updated := 0
	for i := range predictions {
		if predictions[i].SampleID == sampleID && predictions[i].Reward == nil {
			r := reward
			predictions[i].Reward = &r
			updated++
		}
	}
	if updated > 0 {
		v.data["predictions"] = toAnySlice(predictions)
	}
	return updated
}

func (v *Variable) predictionsLocked() []Prediction {
	var out []Prediction
	if err := decodeKey(v.data, "predictions", &out); err != nil {
		return nil
	}
	return out
}

func decodeKey(data map[string]any, key string, target any) error {
	raw, ok := data[key]
	if !ok || raw == nil {
		return nil
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("core: encode variable key %s: %w", key, err)
	}
	return json.Unmarshal(buf, target)
}

func toAnySlice[T any](items []T) []any {
	out := make([]any, 0, len(items))
	for _, item := range items {
		out = append(out, item)
	}
	return out
}

package module

import (
	"fmt"
	"sync"

	"github.com/hupe1980/symflow/core"
)

// BaseModule bundles the identity, trainable-state and build-once mechanics
// shared by every built-in module. Embed it in concrete implementations and
// supply Call / ComputeOutputSpec to satisfy core.Module. All exported
// methods are goroutine-safe unless otherwise documented.
type BaseModule struct {
	name        string // Unique name within a program graph
	description string // Detailed description of the module's purpose
	mu          sync.Mutex
	trainable   bool
	built       bool
	variables   []*core.Variable
}

// NewBaseModule constructs a BaseModule with a generated description
// (customizable via SetDescription).
func NewBaseModule(name string) BaseModule {
	return BaseModule{
		name:        name,
		description: fmt.Sprintf("Module %s", name),
		trainable:   true,
	}
}

// Name returns the unique name for this module.
func (b *BaseModule) Name() string { return b.name }

// Description returns a detailed description of this module's purpose.
func (b *BaseModule) Description() string { return b.description }

// SetDescription updates the module's description.
func (b *BaseModule) SetDescription(desc string) { b.description = desc }

// Trainable reports whether optimizers may mutate this module's variables.
func (b *BaseModule) Trainable() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.trainable
}

// SetTrainable toggles training for the module and all of its variables.
func (b *BaseModule) SetTrainable(trainable bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.trainable = trainable
	for _, v := range b.variables {
		v.SetTrainable(trainable)
	}
}

// Variables returns a copy of the module's variable list.
func (b *BaseModule) Variables() []*core.Variable {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*core.Variable, len(b.variables))
	copy(out, b.variables)

	return out
}

// AddVariable registers a variable under this module, assigning its path.
// Paths are what the variables-only persistence format maps state by.
func (b *BaseModule) AddVariable(v *core.Variable) {
	b.mu.Lock()
	defer b.mu.Unlock()

	v.SetPath(fmt.Sprintf("%s/%s", b.name, v.Name()))
	b.variables = append(b.variables, v)
}

// Built reports whether the module's schema-dependent initialization ran.
func (b *BaseModule) Built() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.built
}

// MarkBuilt records that schema-dependent initialization completed. Build
// implementations call it last so a failed build can run again.
func (b *BaseModule) MarkBuilt() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.built = true
}

// ModuleError represents failures raised by module execution, carrying the
// module name and a category code for uniform downstream handling.
type ModuleError struct {
	Module  string      `json:"module"`            // Name of the module that failed
	Message string      `json:"message"`           // Error message
	Code    string      `json:"code"`              // Error code for categorization
	Details interface{} `json:"details,omitempty"` // Additional error details
}

func (e *ModuleError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("module error [%s] in %s: %s", e.Code, e.Module, e.Message)
	}
	return fmt.Sprintf("module error in %s: %s", e.Module, e.Message)
}

// NewModuleError creates a new ModuleError with the specified details.
func NewModuleError(module, message, code string) *ModuleError {
	return &ModuleError{
		Module:  module,
		Message: message,
		Code:    code,
	}
}

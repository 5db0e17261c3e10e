// Package symflow provides a high-level façade over the framework's building
// blocks (data models, modules, programs, training & persistence) enabling
// rapid construction of language model pipelines. Most applications interact
// with the framework by:
//  1. Declaring inputs via Input() from plain Go structs
//  2. Applying modules (generators, decisions, branches, agents) to trace a graph
//  3. Building a Program via NewProgram() and calling, fitting or saving it
//
// The façade delegates to the module, program and saving packages while
// keeping setup ergonomics concise. Subpackages stay fully usable on their
// own; this package only shortcuts the common path.
package symflow

import (
	"github.com/hupe1980/symflow/core"
	"github.com/hupe1980/symflow/internal/version"
	"github.com/hupe1980/symflow/module"
	"github.com/hupe1980/symflow/program"
	"github.com/hupe1980/symflow/saving"
)

// Version is the release version of the symflow module.
const Version = version.Release

// ClearSession resets the process-wide auto-naming counters so rebuilt
// programs get identical module names. Call it between program
// constructions that must line up, typically at the top of tests or before
// reloading a saved program.
func ClearSession() {
	core.ClearSession()
}

// Input declares a program input carrying documents shaped like the given
// struct. It returns the symbolic value module calls are traced from.
func Input(structType any, optFns ...func(o *module.InputOptions)) (*core.SymbolicDataModel, error) {
	return module.NewInput(structType, optFns...)
}

// NewProgram builds a program from traced inputs and outputs.
func NewProgram(inputs, outputs []*core.SymbolicDataModel, optFns ...func(o *program.Options)) (*program.Program, error) {
	return program.New(inputs, outputs, optFns...)
}

// Sequential chains modules linearly from a single input.
func Sequential(input *core.SymbolicDataModel, modules []core.Module, optFns ...func(o *program.Options)) (*program.Program, error) {
	return program.NewSequential(input, modules, optFns...)
}

// SaveProgram writes a whole-program JSON document to the given path.
func SaveProgram(p *program.Program, path string) error {
	return saving.SaveProgram(p, path)
}

// LoadProgram reads a whole-program JSON document back into a runnable
// program. Modules are rebuilt through the saving registry; programs with
// model-backed modules need a model resolver option.
func LoadProgram(path string, optFns ...func(o *saving.LoadOptions)) (*program.Program, error) {
	return saving.LoadProgram(path, optFns...)
}

package saving

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hupe1980/symflow/core"
	"github.com/hupe1980/symflow/logging"
	"github.com/hupe1980/symflow/model"
	"github.com/hupe1980/symflow/module"
	"github.com/hupe1980/symflow/schema"
)

// LoadOptions configure program loading.
type LoadOptions struct {
	// ModelResolver rebuilds language model handles from the provider and
	// model name recorded in a module's configuration. Required when the
	// saved graph contains model-backed modules.
	ModelResolver func(provider, name string) (*model.LanguageModel, error)
	Logger        logging.Logger
}

// ModuleFactory reconstructs a module from its serialized configuration.
type ModuleFactory func(cfg map[string]any, opts *LoadOptions) (core.Module, error)

var registry = struct {
	sync.RWMutex
	factories map[string]ModuleFactory
}{factories: make(map[string]ModuleFactory)}

// RegisterModule installs a factory for a module type name, replacing any
// previous registration. Type names are the concrete Go type names recorded
// by SaveProgram, e.g. "Generator". Modules that close over live
// dependencies (tools, knowledge bases, backends) must be registered by the
// caller before loading.
func RegisterModule(typeName string, factory ModuleFactory) {
	registry.Lock()
	defer registry.Unlock()

	registry.factories[typeName] = factory
}

func moduleFactory(typeName string) (ModuleFactory, bool) {
	registry.RLock()
	defer registry.RUnlock()

	factory, ok := registry.factories[typeName]

	return factory, ok
}

func init() {
	RegisterModule("Generator", generatorFactory)
	RegisterModule("Decision", decisionFactory)
	RegisterModule("Program", programFactory)
	RegisterModule("ConcatOp", func(_ map[string]any, _ *LoadOptions) (core.Module, error) {
		return core.NewConcatOp(), nil
	})
	RegisterModule("AndOp", func(_ map[string]any, _ *LoadOptions) (core.Module, error) {
		return core.NewAndOp(), nil
	})
	RegisterModule("OrOp", func(_ map[string]any, _ *LoadOptions) (core.Module, error) {
		return core.NewOrOp(), nil
	})
}

// decodeConfig maps a configuration payload onto a typed struct through its
// JSON representation.
func decodeConfig(cfg map[string]any, target any) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("saving: encode module config: %w", err)
	}

	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("saving: decode module config: %w", err)
	}

	return nil
}

// modelConfig is the language model reference modules record in GetConfig.
type modelConfig struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

func resolveModel(opts *LoadOptions, ref modelConfig) (*model.LanguageModel, error) {
	if opts.ModelResolver == nil {
		return nil, fmt.Errorf("saving: loading model-backed modules requires a model resolver")
	}

	lm, err := opts.ModelResolver(ref.Provider, ref.Model)
	if err != nil {
		return nil, fmt.Errorf("saving: resolve model %s/%s: %w", ref.Provider, ref.Model, err)
	}

	if lm == nil {
		return nil, fmt.Errorf("saving: model resolver returned no model for %s/%s", ref.Provider, ref.Model)
	}

	return lm, nil
}

func generatorFactory(cfg map[string]any, opts *LoadOptions) (core.Module, error) {
	var c struct {
		Name             string         `json:"name"`
		Description      string         `json:"description"`
		Schema           *schema.Schema `json:"schema"`
		PromptTemplate   string         `json:"prompt_template"`
		UseInputsSchema  bool           `json:"use_inputs_schema"`
		UseOutputsSchema bool           `json:"use_outputs_schema"`
		ReturnInputs     bool           `json:"return_inputs"`
		LanguageModel    modelConfig    `json:"language_model"`
	}

	if err := decodeConfig(cfg, &c); err != nil {
		return nil, err
	}

	if c.Schema == nil {
		return nil, fmt.Errorf("saving: generator %q config carries no schema", c.Name)
	}

	lm, err := resolveModel(opts, c.LanguageModel)
	if err != nil {
		return nil, err
	}

	return module.NewGenerator(lm, func(o *module.GeneratorOptions) {
		o.Name = c.Name
		o.Description = c.Description
		o.Schema = c.Schema
		if c.PromptTemplate != "" {
			o.PromptTemplate = c.PromptTemplate
		}
		o.UseInputsSchema = c.UseInputsSchema
		o.UseOutputsSchema = c.UseOutputsSchema
		o.ReturnInputs = c.ReturnInputs
		o.Logger = opts.Logger
	})
}

func decisionFactory(cfg map[string]any, opts *LoadOptions) (core.Module, error) {
	var c struct {
		Name             string      `json:"name"`
		Description      string      `json:"description"`
		Question         string      `json:"question"`
		Labels           []string    `json:"labels"`
		PromptTemplate   string      `json:"prompt_template"`
		UseInputsSchema  bool        `json:"use_inputs_schema"`
		UseOutputsSchema bool        `json:"use_outputs_schema"`
		ReturnInputs     bool        `json:"return_inputs"`
		LanguageModel    modelConfig `json:"language_model"`
	}

	if err := decodeConfig(cfg, &c); err != nil {
		return nil, err
	}

	lm, err := resolveModel(opts, c.LanguageModel)
	if err != nil {
		return nil, err
	}

	return module.NewDecision(c.Question, c.Labels, lm, func(o *module.DecisionOptions) {
		o.Name = c.Name
		o.Description = c.Description
		if c.PromptTemplate != "" {
			o.PromptTemplate = c.PromptTemplate
		}
		o.UseInputsSchema = c.UseInputsSchema
		o.UseOutputsSchema = c.UseOutputsSchema
		o.ReturnInputs = c.ReturnInputs
		o.Logger = opts.Logger
	})
}

// programFactory rebuilds a nested program node from its recursive document.
func programFactory(cfg map[string]any, opts *LoadOptions) (core.Module, error) {
	var doc programDoc
	if err := decodeConfig(cfg, &doc); err != nil {
		return nil, err
	}

	return decodeProgram(&doc, opts)
}

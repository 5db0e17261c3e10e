// Package model defines the provider-agnostic abstractions and concrete
// helpers for interacting with language and embedding models inside Symflow.
//
// Core goals:
//   - Unify streaming + non-streaming generation behind a single interface
//   - Constrain model output to a JSON schema regardless of vendor mechanism
//   - Normalize tool / function call representation (ToolDefinition, core.ToolCall)
//   - Facilitate lightweight mocking for tests (MockChatModel, MockEmbeddingModel)
//
// Providers (e.g. OpenAI, Anthropic) implement the ChatModel interface from
// this package so higher layers (modules, programs) remain decoupled from
// vendor SDKs. LanguageModel wraps a ChatModel with the structured-output
// discipline the rest of the framework relies on: every completion is a JSON
// document validated against the requested schema, with bounded retries when
// a model returns malformed output.
package model

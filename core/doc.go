// Package core provides the foundational domain types used across symflow.
// It defines the core abstractions for:
//
//   - Data models (DataModel, SymbolicDataModel, JsonDataModel) pairing JSON
//     schemas with values
//   - Modules (named, optionally trainable JSON transformations) and the
//     symbolic tracing machinery (Node, Apply) that records them into graphs
//   - The logical operators Concat, And and Or at both the schema and the
//     value level
//   - Variables (trainable module state mutated by optimizers)
//   - Chat message data models shared by prompts and model backends
//
// The package intentionally keeps implementation concerns (module
// implementations, graph execution, model backends, training) out of scope,
// exposing small interfaces to enable custom backends and extensions.
package core

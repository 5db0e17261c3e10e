// Package module contains the built-in computation units that programs are
// assembled from. Each type implements core.Module: it can be traced over
// symbolic data models to build a graph, or called eagerly on JSON data
// models.
//
// The package provides:
//   - Input      – declares a program input from a struct-derived schema
//   - Generator  – produces schema-conforming JSON with a language model
//   - Decision   – single-label classification over a dynamic enum
//   - Branch     – decision plus routing; unselected branches yield nil
//   - Action     – argument generation + execution for a single tool
//   - FunctionCallingAgent – autonomous decide/act loop over a toolkit
//   - Embedding, UpdateKnowledge, KnowledgeRetriever – knowledge graph plumbing
//
// Modules embed BaseModule for identity, trainable state and build-once
// semantics, mirroring how agents share a base in hierarchical frameworks.
package module

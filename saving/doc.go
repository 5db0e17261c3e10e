// Package saving persists programs as JSON and restores them.
//
// Two formats are supported. The whole-program format (conventionally
// *.program.json) records the graph topology, per-module configuration and
// every variable payload; LoadProgram rebuilds the modules through a type
// registry and replays the recorded applications. The variables-only format
// (*.program.variables.json) carries just the trainable state, mapped by
// variable path, for checkpointing an already-constructed program.
//
// Modules whose configuration is self-contained (generators, decisions, the
// logical operators, nested programs) load out of the box; language model
// handles are rebuilt through the LoadOptions model resolver. Modules
// holding live dependencies such as tools or knowledge bases have no
// built-in factory: register one with RegisterModule, closing over the
// dependencies, before loading.
package saving

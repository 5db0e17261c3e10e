// Package knowledge contains the knowledge base contract and concrete
// implementations backing the knowledge graph modules. Programs store entity
// and relation documents together with their embedding vectors and retrieve
// them by cosine similarity.
//
// The in-memory base below is process-local and suited to tests, examples and
// small corpora; vector databases can be added as further KnowledgeBase
// implementations without touching the modules that consume them.
package knowledge

package knowledge

import (
	"context"
	"math"
)

// Entity is the base shape of a knowledge graph node. Domain entities embed
// richer fields; label and name are what retrieval surfaces.
type Entity struct {
	Label string `json:"label" description:"The entity type"`
	Name  string `json:"name" description:"The entity name"`
}

// Relation links a subject entity to an object entity with a labeled edge.
type Relation struct {
	Subj  Entity `json:"subj" description:"The subject entity"`
	Label string `json:"label" description:"The relation type"`
	Obj   Entity `json:"obj" description:"The object entity"`
}

// Record is what a knowledge base stores: a JSON document, the title of the
// schema it was produced under, and its embedding vector.
type Record struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Raw       []byte    `json:"raw"`
	Embedding []float64 `json:"embedding,omitempty"`
}

// SearchResult pairs a stored record with its similarity score.
type SearchResult struct {
	Record
	Score float64 `json:"score"`
}

// KnowledgeBase is the storage contract used by the knowledge modules.
type KnowledgeBase interface {
	// Update upserts records and returns their ids. Records without an id
	// are assigned one.
	Update(ctx context.Context, records ...Record) ([]string, error)

	// Search returns the k most similar embedded records, best first.
	Search(ctx context.Context, vector []float64, k int) ([]SearchResult, error)

	// Get returns a record by id, or nil if absent.
	Get(ctx context.Context, id string) (*Record, error)

	// Delete removes a record by id.
	Delete(ctx context.Context, id string) error

	// Count returns the number of stored records.
	Count() int
}

// CosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched lengths or zero vectors score 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

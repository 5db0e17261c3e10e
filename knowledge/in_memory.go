package knowledge

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// InMemoryKnowledgeBase is a naive process-local KnowledgeBase. It offers:
//  1. Upsert of embedded JSON records keyed by id
//  2. Brute-force cosine similarity search, best first
//
// Concurrency: protected by RWMutex.
// Search: linear scan over every embedded record. Suitable for tests, demos
// and small corpora; swap for a vector database for production retrieval.
type InMemoryKnowledgeBase struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewInMemoryKnowledgeBase creates a new in-memory knowledge base
func NewInMemoryKnowledgeBase() *InMemoryKnowledgeBase {
	return &InMemoryKnowledgeBase{
		records: make(map[string]Record),
	}
}

// Update upserts records, assigning ids where missing.
func (kb *InMemoryKnowledgeBase) Update(_ context.Context, records ...Record) ([]string, error) {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	ids := make([]string, 0, len(records))
	for _, record := range records {
		if record.ID == "" {
			record.ID = uuid.NewString()
		}

		kb.records[record.ID] = cloneRecord(record)
		ids = append(ids, record.ID)
	}

	return ids, nil
}

// Search performs a brute-force cosine similarity scan over embedded records.
// Records without an embedding are skipped. Results are ordered by descending
// score with id as the tie-break so runs are deterministic.
func (kb *InMemoryKnowledgeBase) Search(_ context.Context, vector []float64, k int) ([]SearchResult, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	results := make([]SearchResult, 0, len(kb.records))
	for _, record := range kb.records {
		if len(record.Embedding) == 0 {
			continue
		}

		results = append(results, SearchResult{
			Record: cloneRecord(record),
			Score:  CosineSimilarity(vector, record.Embedding),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if k > 0 && k < len(results) {
		results = results[:k]
	}

	return results, nil
}

// Get returns a copy of the record with the given id, or nil.
func (kb *InMemoryKnowledgeBase) Get(_ context.Context, id string) (*Record, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	record, exists := kb.records[id]
	if !exists {
		return nil, nil
	}

	clone := cloneRecord(record)

	return &clone, nil
}

// Delete removes a record by id.
func (kb *InMemoryKnowledgeBase) Delete(_ context.Context, id string) error {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	if _, exists := kb.records[id]; !exists {
		return fmt.Errorf("record not found: %s", id)
	}

	delete(kb.records, id)

	return nil
}

// Count returns the number of stored records.
func (kb *InMemoryKnowledgeBase) Count() int {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	return len(kb.records)
}

// cloneRecord copies a record so callers cannot mutate stored state.
func cloneRecord(r Record) Record {
	clone := r
	clone.Raw = append([]byte(nil), r.Raw...)
	clone.Embedding = append([]float64(nil), r.Embedding...)

	return clone
}

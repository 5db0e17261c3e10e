package core

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// NewID generates a unique identifier for runs, nodes and entities.
func NewID() string {
	return uuid.NewString()
}

var naming = struct {
	mu     sync.Mutex
	counts map[string]int
}{counts: map[string]int{}}

// AutoName returns a unique name for the given prefix: the bare prefix on
// first use, then prefix_1, prefix_2 and so on. Names stay deterministic
// within a session, which keeps saved programs reloadable.
func AutoName(prefix string) string {
	naming.mu.Lock()
	defer naming.mu.Unlock()
	n := naming.counts[prefix]
	naming.counts[prefix] = n + 1
	if n == 0 {
		return prefix
	}
	return fmt.Sprintf("%s_%d", prefix, n)
}

// ClearSession resets the auto-naming counters. Call it between program
// constructions that must produce identical names, typically at the top of
// tests or before reloading a saved program.
func ClearSession() {
	naming.mu.Lock()
	defer naming.mu.Unlock()
	naming.counts = map[string]int{}
}

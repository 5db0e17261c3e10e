package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrModelCallBudget is wrapped by limiter errors so callers can detect an
// exhausted call budget regardless of the configured maximum.
var ErrModelCallBudget = errors.New("model call budget exhausted")

// ModelLimiter enforces a maximum number of allowed language model calls per
// program run. Agent loops and retry logic make the worst case hard to bound
// statically; the limiter turns a runaway run into a clean error.
type ModelLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewModelLimiter creates a new limiter with a max number of calls.
// If max == 0, unlimited calls are allowed.
func NewModelLimiter(max int) *ModelLimiter {
	return &ModelLimiter{max: max}
}

// Increment increases the call counter and returns an error if the limit is exceeded.
func (ml *ModelLimiter) Increment() error {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	ml.count++
	if ml.max > 0 && ml.count > ml.max {
		return fmt.Errorf("%w: exceeded max model calls %d", ErrModelCallBudget, ml.max)
	}

	return nil
}

// Count returns the current number of calls made.
func (ml *ModelLimiter) Count() int {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	return ml.count
}

// Remaining returns how many calls are left before hitting the limit.
func (ml *ModelLimiter) Remaining() int {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	if ml.max == 0 {
		return -1 // unlimited
	}

	return ml.max - ml.count
}

// Reset clears the counter for a fresh run.
func (ml *ModelLimiter) Reset() {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	ml.count = 0
}

const limiterKey contextKey = "symflow.model_limiter"

// WithModelLimiter attaches a call budget to the run context. Language model
// wrappers increment it before every backend call.
func WithModelLimiter(ctx context.Context, limiter *ModelLimiter) context.Context {
	return context.WithValue(ctx, limiterKey, limiter)
}

// ModelLimiterFrom returns the limiter attached to the context, or nil.
func ModelLimiterFrom(ctx context.Context) *ModelLimiter {
	limiter, _ := ctx.Value(limiterKey).(*ModelLimiter)
	return limiter
}

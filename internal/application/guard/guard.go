// Package guard implements the single choke point for at-most-once
// effects. Every state-mutating write — answers, timeouts, achievement
// awards, queue claims — passes through GuardedCommit with its business
// key.
//
// Two layers enforce the guarantee. A key-scoped mutex serializes
// concurrent attempts inside the process, so rapid double-taps collapse
// into one storage round trip. The storage uniqueness constraint is the
// second layer and the only one that survives a process restart: the
// guarded operation must hit it, and the guard translates the resulting
// duplicate-key error into a clean "already committed" outcome.
package guard

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/sadmanHT/PoraKhela-sub000/internal/domain/shared"
)

// stripeCount is the size of the lock table. Locks are striped by key
// hash rather than held per live key, so the table never grows.
const stripeCount = 64

// Guard serializes commits per business key.
type Guard struct {
	stripes [stripeCount]sync.Mutex
}

// New creates a Guard.
func New() *Guard {
	return &Guard{}
}

// GuardedCommit executes op exactly once for the given business key.
//
// Returns (true, nil) when op committed, (false, nil) when the key was
// already committed — locally or by a previous process — and (false, err)
// on any other failure. A duplicate is a successful no-op, never an
// error: the learner's second tap must look identical to the first.
func (g *Guard) GuardedCommit(ctx context.Context, businessKey string, op func(ctx context.Context) error) (bool, error) {
	if businessKey == "" {
		return false, shared.NewDomainError("guard", "Commit", shared.ErrEmptyValue, "business key is required")
	}

	mu := g.stripe(businessKey)
	mu.Lock()
	defer mu.Unlock()

	if err := ctx.Err(); err != nil {
		return false, err
	}

	err := op(ctx)
	switch {
	case err == nil:
		return true, nil
	case shared.IsAlreadyExists(err):
		return false, nil
	default:
		return false, err
	}
}

func (g *Guard) stripe(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &g.stripes[h.Sum32()%stripeCount]
}

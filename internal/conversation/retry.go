package conversation

import (
	"context"
	"fmt"

	"consultbot/internal/models"
)

type retryEntry struct {
	op    string
	state models.ConversationState
	run   func(ctx context.Context)
}

// retryRegistry maps retry ids handed to renderers onto closures that re-issue
// the failed request with the arguments it was first called with.
type retryRegistry struct {
	seq     int
	entries map[string]retryEntry
}

func newRetryRegistry() *retryRegistry {
	return &retryRegistry{entries: make(map[string]retryEntry)}
}

func (r *retryRegistry) register(op string, state models.ConversationState, run func(ctx context.Context)) string {
	r.seq++
	id := fmt.Sprintf("r%d", r.seq)
	r.entries[id] = retryEntry{op: op, state: state, run: run}
	return id
}

func (r *retryRegistry) take(id string) (retryEntry, bool) {
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	return e, ok
}

func (r *retryRegistry) clear() {
	if len(r.entries) > 0 {
		r.entries = make(map[string]retryEntry)
	}
}

func (r *retryRegistry) len() int {
	return len(r.entries)
}

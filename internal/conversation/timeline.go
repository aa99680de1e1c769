package conversation

import (
	"sync"

	"consultbot/internal/models"
)

// Timeline is the append-only message log of one conversation. Only the
// orchestrator appends; any goroutine may read or subscribe.
type Timeline struct {
	mu        sync.RWMutex
	messages  []models.Message
	observers map[int]func(models.Message)
	nextObs   int
}

func NewTimeline() *Timeline {
	return &Timeline{observers: make(map[int]func(models.Message))}
}

func (t *Timeline) append(m models.Message) {
	t.mu.Lock()
	t.messages = append(t.messages, m)
	observers := make([]func(models.Message), 0, len(t.observers))
	for i := 0; i < t.nextObs; i++ {
		if fn, ok := t.observers[i]; ok {
			observers = append(observers, fn)
		}
	}
	t.mu.Unlock()

	for _, fn := range observers {
		fn(m)
	}
}

func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

func (t *Timeline) Messages() []models.Message {
	return t.Since(0)
}

// Range returns messages with from <= index < to.
func (t *Timeline) Range(from, to int) []models.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if from < 0 {
		from = 0
	}
	if to > len(t.messages) {
		to = len(t.messages)
	}
	if from >= to {
		return []models.Message{}
	}
	out := make([]models.Message, to-from)
	copy(out, t.messages[from:to])
	return out
}

// Since returns messages with index >= n.
func (t *Timeline) Since(n int) []models.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if n < 0 {
		n = 0
	}
	if n >= len(t.messages) {
		return []models.Message{}
	}
	out := make([]models.Message, len(t.messages)-n)
	copy(out, t.messages[n:])
	return out
}

// Subscribe registers fn for every future message and returns an unsubscribe func.
// Observers run on the event loop goroutine in append order.
func (t *Timeline) Subscribe(fn func(models.Message)) func() {
	t.mu.Lock()
	id := t.nextObs
	t.nextObs++
	t.observers[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.observers, id)
		t.mu.Unlock()
	}
}

package conversation

import (
	"context"
	"fmt"
	"sync"

	"consultbot/internal/models"

	"github.com/rs/zerolog"
)

// Manager keeps one orchestrator per conversation id and runs their loops.
type Manager struct {
	mu            sync.Mutex
	conversations map[string]*Orchestrator

	deps   Deps
	opts   Options
	logger *zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewManager(ctx context.Context, deps Deps, opts Options) *Manager {
	ctx, cancel := context.WithCancel(ctx)
	logger := deps.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Manager{
		conversations: make(map[string]*Orchestrator),
		deps:          deps,
		opts:          opts,
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Get returns the conversation for id, creating, restoring and starting it if
// needed. New conversations without a snapshot open with the greeting.
func (m *Manager) Get(ctx context.Context, id string) (*Orchestrator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if o, ok := m.conversations[id]; ok {
		return o, nil
	}
	if m.ctx.Err() != nil {
		return nil, ErrClosed
	}

	o := New(id, m.deps, m.opts)
	restored, err := o.Restore(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Str("conversation_id", id).Msg("Starting conversation without snapshot")
	}
	if !restored {
		// очередь новая и пустая, приветствие гарантированно первое
		o.queue <- envelope{kind: envGreet}
	}

	m.conversations[id] = o
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		_ = o.Run(m.ctx)
	}()

	m.logger.Debug().Str("conversation_id", id).Bool("restored", restored).Msg("Conversation started")
	return o, nil
}

// Lookup returns a running conversation without creating one.
func (m *Manager) Lookup(id string) (*Orchestrator, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.conversations[id]
	return o, ok
}

// Dispatch routes ev to the conversation id and waits for it to be processed.
func (m *Manager) Dispatch(ctx context.Context, id string, ev models.UserEvent) (*Orchestrator, error) {
	o, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := o.Dispatch(ctx, ev); err != nil {
		return o, fmt.Errorf("dispatch to %s: %w", id, err)
	}
	return o, nil
}

// Exchange routes ev to the conversation id and returns the messages it produced.
func (m *Manager) Exchange(ctx context.Context, id string, ev models.UserEvent) (*Orchestrator, []models.Message, error) {
	o, err := m.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := o.Exchange(ctx, ev)
	if err != nil {
		return o, nil, fmt.Errorf("dispatch to %s: %w", id, err)
	}
	return o, msgs, nil
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conversations)
}

// Shutdown stops every conversation loop and waits for them to exit.
func (m *Manager) Shutdown() {
	m.cancel()
	m.wg.Wait()
}

// ABOUTME: Registry of conversation states keyed by conversation identity
// ABOUTME: Lazily creates states and replaces them wholesale on reset

package conversation

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/2389/coven-relay/internal/session"
)

// Acquirer hands out session handles.
type Acquirer interface {
	Acquire() (session.Handle, error)
}

// Opener starts a new backend conversation on a session handle.
type Opener func(session.Handle) Conversation

// Registry maps conversation identities to their State. Safe for concurrent use.
type Registry struct {
	mu     sync.Mutex
	states map[string]*State
	pool   Acquirer
	open   Opener
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(pool Acquirer, open Opener, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		states: make(map[string]*State),
		pool:   pool,
		open:   open,
		logger: logger.With("component", "conversation"),
	}
}

// Get returns the state for identity, creating it if needed.
func (r *Registry) Get(identity string) (*State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if st, ok := r.states[identity]; ok {
		return st, nil
	}
	st, err := r.newStateLocked(identity)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("conversation created", "identity", identity, "account", st.Account)
	return st, nil
}

// Lookup returns the current state for identity without creating one.
func (r *Registry) Lookup(identity string) (*State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.states[identity]
	return st, ok
}

// Reset discards the state for identity and registers a fresh one.
// If no session is available the identity is left unregistered and the
// error is returned; the next Get tries again.
func (r *Registry) Reset(identity string) (*State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.resetLocked(identity)
}

// ResetIfCurrent resets identity only while old is still its registered
// state. It returns the state now registered and whether a reset happened.
func (r *Registry) ResetIfCurrent(identity string, old *State) (*State, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.states[identity]; !ok || cur != old {
		return cur, false, nil
	}
	st, err := r.resetLocked(identity)
	return st, err == nil, err
}

// Len returns the number of registered conversations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

func (r *Registry) resetLocked(identity string) (*State, error) {
	if old, ok := r.states[identity]; ok {
		dropped := old.close()
		delete(r.states, identity)
		r.logger.Info("conversation reset", "identity", identity, "dropped", len(dropped))
	}
	return r.newStateLocked(identity)
}

func (r *Registry) newStateLocked(identity string) (*State, error) {
	handle, err := r.pool.Acquire()
	if err != nil {
		return nil, fmt.Errorf("acquiring session for %s: %w", identity, err)
	}
	st := &State{
		Identity:     identity,
		Account:      handle.Account,
		Conversation: r.open(handle),
	}
	r.states[identity] = st
	return st, nil
}

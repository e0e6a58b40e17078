// ABOUTME: Pool of authenticated backend session handles with random selection
// ABOUTME: Acquire fails with ErrNoBackendAvailable when no account produced a token

package session

import (
	"errors"
	"math/rand/v2"
	"sync"
)

// ErrNoBackendAvailable is returned when the pool holds no session handles.
var ErrNoBackendAvailable = errors.New("no backend available")

// Handle is a credential-bound reference to the backend service.
type Handle struct {
	Account string
	Token   string
}

// Pool is an ordered set of session handles. Safe for concurrent use.
type Pool struct {
	mu      sync.RWMutex
	handles []Handle
}

// NewPool creates a pool from handles. Handles with an empty token are skipped.
func NewPool(handles ...Handle) *Pool {
	p := &Pool{}
	for _, h := range handles {
		if h.Token != "" {
			p.handles = append(p.handles, h)
		}
	}
	return p
}

// Acquire returns a uniformly random handle from the pool.
func (p *Pool) Acquire() (Handle, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	switch len(p.handles) {
	case 0:
		return Handle{}, ErrNoBackendAvailable
	case 1:
		return p.handles[0], nil
	}
	return p.handles[rand.IntN(len(p.handles))], nil
}

// Size returns the number of handles in the pool.
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.handles)
}

// Accounts returns the account identifiers backing the pool, in order.
func (p *Pool) Accounts() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	accounts := make([]string, len(p.handles))
	for i, h := range p.handles {
		accounts[i] = h.Account
	}
	return accounts
}

// ABOUTME: Tests for the conversation registry and per-conversation queue
// ABOUTME: Verifies lazy creation, reset semantics, FIFO order and stale-caller protection

package conversation

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-relay/internal/session"
)

type stubConversation struct {
	handle session.Handle
	n      int
}

func (c *stubConversation) SendMessage(ctx context.Context, text string) (string, error) {
	return "ok", nil
}

func newTestRegistry(t *testing.T, pool *session.Pool) (*Registry, *[]*stubConversation) {
	t.Helper()
	var mu sync.Mutex
	opened := []*stubConversation{}
	open := func(h session.Handle) Conversation {
		mu.Lock()
		defer mu.Unlock()
		c := &stubConversation{handle: h, n: len(opened)}
		opened = append(opened, c)
		return c
	}
	return NewRegistry(pool, open, nil), &opened
}

func testPool() *session.Pool {
	return session.NewPool(session.Handle{Account: "a@x", Token: "t"})
}

func TestRegistry_GetCreatesOnce(t *testing.T) {
	reg, opened := newTestRegistry(t, testPool())

	st1, err := reg.Get("u1")
	require.NoError(t, err)
	st2, err := reg.Get("u1")
	require.NoError(t, err)

	assert.Same(t, st1, st2)
	assert.Len(t, *opened, 1)
	assert.Equal(t, "u1", st1.Identity)
	assert.Equal(t, "a@x", st1.Account)
	assert.Equal(t, 0, st1.Len())
}

func TestRegistry_DistinctIdentities(t *testing.T) {
	reg, opened := newTestRegistry(t, testPool())

	a, err := reg.Get("u1")
	require.NoError(t, err)
	b, err := reg.Get("room1")
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.NotSame(t, a.Conversation, b.Conversation)
	assert.Len(t, *opened, 2)
	assert.Equal(t, 2, reg.Len())
}

func TestRegistry_EmptyPool(t *testing.T) {
	reg, _ := newTestRegistry(t, session.NewPool())

	_, err := reg.Get("u1")
	assert.ErrorIs(t, err, session.ErrNoBackendAvailable)
	assert.Equal(t, 0, reg.Len())

	_, err = reg.Reset("u1")
	assert.ErrorIs(t, err, session.ErrNoBackendAvailable)
}

func TestRegistry_ResetReplacesState(t *testing.T) {
	reg, _ := newTestRegistry(t, testPool())

	old, err := reg.Get("u1")
	require.NoError(t, err)
	item := NewItem("i1", "hello", nil, 2)
	_, ok := old.Push(item)
	require.True(t, ok)

	fresh, err := reg.Reset("u1")
	require.NoError(t, err)

	assert.NotSame(t, old, fresh)
	assert.NotSame(t, old.Conversation, fresh.Conversation)
	assert.True(t, old.Closed())
	assert.Equal(t, 0, old.Len())
	assert.Equal(t, 0, fresh.Len())

	cur, ok := reg.Lookup("u1")
	require.True(t, ok)
	assert.Same(t, fresh, cur)
}

func TestRegistry_ResetUnknownIdentityCreates(t *testing.T) {
	reg, _ := newTestRegistry(t, testPool())

	st, err := reg.Reset("new")
	require.NoError(t, err)
	assert.False(t, st.Closed())
}

func TestRegistry_ResetIfCurrent(t *testing.T) {
	reg, _ := newTestRegistry(t, testPool())

	first, err := reg.Get("u1")
	require.NoError(t, err)
	second, err := reg.Reset("u1")
	require.NoError(t, err)

	// A stale state must not reset the newer one.
	cur, reset, err := reg.ResetIfCurrent("u1", first)
	require.NoError(t, err)
	assert.False(t, reset)
	assert.Same(t, second, cur)

	cur, reset, err = reg.ResetIfCurrent("u1", second)
	require.NoError(t, err)
	assert.True(t, reset)
	assert.NotSame(t, second, cur)
}

func TestState_FIFO(t *testing.T) {
	st := &State{Identity: "u1"}
	items := make([]*Item, 3)
	for i := range items {
		items[i] = NewItem(fmt.Sprintf("i%d", i), fmt.Sprintf("q%d", i), nil, 2)
		n, ok := st.Push(items[i])
		require.True(t, ok)
		assert.Equal(t, i+1, n)
	}

	for i := range items {
		head, remaining, ok := st.Head()
		require.True(t, ok)
		assert.Same(t, items[i], head)
		assert.Equal(t, 2, remaining)

		left, ok := st.Remove(head)
		require.True(t, ok)
		assert.Equal(t, 2-i, left)
	}

	_, _, ok := st.Head()
	assert.False(t, ok)
}

func TestState_AttemptsAndStaleRemove(t *testing.T) {
	st := &State{Identity: "u1"}
	a := NewItem("a", "qa", nil, 2)
	b := NewItem("b", "qb", nil, 2)
	st.Push(a)
	st.Push(b)

	// Only the head may be attempted or removed.
	_, ok := st.BeginAttempt(b)
	assert.False(t, ok)
	_, ok = st.Remove(b)
	assert.False(t, ok)

	left, ok := st.BeginAttempt(a)
	require.True(t, ok)
	assert.Equal(t, 1, left)
	_, remaining, _ := st.Head()
	assert.Equal(t, 1, remaining)

	left, ok = st.BeginAttempt(a)
	require.True(t, ok)
	assert.Equal(t, 0, left)

	_, ok = st.Remove(a)
	require.True(t, ok)
	_, ok = st.Remove(a)
	assert.False(t, ok, "removing twice must fail")
}

func TestState_ClosedRefusesMutation(t *testing.T) {
	st := &State{Identity: "u1"}
	a := NewItem("a", "qa", nil, 2)
	st.Push(a)

	dropped := st.close()
	assert.Equal(t, []*Item{a}, dropped)

	_, ok := st.Push(NewItem("b", "qb", nil, 2))
	assert.False(t, ok)
	_, ok = st.BeginAttempt(a)
	assert.False(t, ok)
	_, ok = st.Remove(a)
	assert.False(t, ok)
	_, _, ok = st.Head()
	assert.False(t, ok)
}

func TestRegistry_ConcurrentGet(t *testing.T) {
	reg, opened := newTestRegistry(t, testPool())

	var wg sync.WaitGroup
	states := make([]*State, 50)
	for i := range states {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st, err := reg.Get("shared")
			if err == nil {
				states[i] = st
			}
		}(i)
	}
	wg.Wait()

	for _, st := range states {
		assert.Same(t, states[0], st)
	}
	assert.Len(t, *opened, 1)
}

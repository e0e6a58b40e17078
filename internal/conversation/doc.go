// Package conversation tracks per-conversation relay state.
//
// # Registry
//
// The Registry maps a conversation identity (a correspondent or a group
// channel) to its State. States are created lazily on first use:
//
//	reg := conversation.NewRegistry(pool, open, logger)
//	st, err := reg.Get("user:@alice:example.org")
//
// Creating a State acquires a session handle from the pool and opens a fresh
// backend conversation on it. When the pool is empty, Get and Reset fail with
// session.ErrNoBackendAvailable.
//
// # State
//
// A State owns one backend conversation and a FIFO queue of Items. Every
// queue operation takes the State's lock; only the head item is ever sent to
// the backend.
//
// # Reset
//
// Reset replaces a State wholesale: the old State is closed and its queue
// dropped, and a new State with a fresh backend conversation is registered.
// A call still in flight on the old State is not cancelled. Its result is
// discarded because every mutation on a closed State is refused.
package conversation

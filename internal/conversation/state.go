// ABOUTME: Per-conversation state: backend conversation plus a FIFO queue of items
// ABOUTME: All queue mutations are guarded and refused once the state is closed

package conversation

import (
	"context"
	"sync"
	"time"
)

// Conversation is the backend's stateful handle for one conversation.
type Conversation interface {
	SendMessage(ctx context.Context, text string) (string, error)
}

// Replier delivers text back to whoever sent an item.
type Replier interface {
	Reply(ctx context.Context, text string) error
}

// Item is one queued message.
type Item struct {
	ID string
	// Text is the canonical text, pinned when the item was enqueued.
	Text       string
	Reply      Replier
	EnqueuedAt time.Time

	// remaining is guarded by the owning State's lock.
	remaining int
}

// NewItem creates an item with the given attempt budget.
func NewItem(id, text string, reply Replier, attempts int) *Item {
	return &Item{
		ID:         id,
		Text:       text,
		Reply:      reply,
		EnqueuedAt: time.Now(),
		remaining:  attempts,
	}
}

// State is the relay's view of one conversation.
type State struct {
	Identity     string
	Account      string
	Conversation Conversation

	mu     sync.Mutex
	queue  []*Item
	closed bool
}

// Push appends item and returns the queue length after the push.
// ok is false if the state has been closed by a reset.
func (s *State) Push(item *Item) (length int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, false
	}
	s.queue = append(s.queue, item)
	return len(s.queue), true
}

// Head returns the item at the front of the queue and its remaining attempts.
func (s *State) Head() (item *Item, remaining int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || len(s.queue) == 0 {
		return nil, 0, false
	}
	return s.queue[0], s.queue[0].remaining, true
}

// BeginAttempt consumes one attempt of item, which must be the head.
// It returns the attempts left afterwards.
func (s *State) BeginAttempt(item *Item) (remaining int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isHeadLocked(item) {
		return 0, false
	}
	item.remaining--
	return item.remaining, true
}

// Remove takes item off the head of the queue and returns how many items are
// left. ok is false if item is no longer the head or the state is closed, so
// a stale caller can never remove someone else's item.
func (s *State) Remove(item *Item) (left int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isHeadLocked(item) {
		return 0, false
	}
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return len(s.queue), true
}

// IsHead reports whether item is still at the front of an open queue.
func (s *State) IsHead(item *Item) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isHeadLocked(item)
}

// Len returns the number of queued items, including the one in flight.
func (s *State) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Closed reports whether the state has been replaced by a reset.
func (s *State) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// close marks the state closed and drops its queue. Returns the dropped items.
func (s *State) close() []*Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	dropped := s.queue
	s.queue = nil
	s.closed = true
	return dropped
}

func (s *State) isHeadLocked(item *Item) bool {
	return !s.closed && len(s.queue) > 0 && s.queue[0] == item
}

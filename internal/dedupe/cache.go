// ABOUTME: Bounded, expiring set of recently seen keys
// ABOUTME: Lets the transport drop redelivered events within a time window

package dedupe

import (
	"sync"
	"time"
)

// Defaults used by New when ttl or capacity are not positive.
const (
	DefaultTTL      = 10 * time.Minute
	DefaultCapacity = 4096
)

type seenKey struct {
	key  string
	seen time.Time
}

// Window is a size-bounded set of keys that forgets entries after a TTL.
// When full, the oldest key is forgotten first. Safe for concurrent use.
type Window struct {
	mu       sync.Mutex
	index    map[string]time.Time
	ring     []seenKey // insertion order, oldest at head
	head     int
	ttl      time.Duration
	capacity int
	now      func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a Window and starts a sweeper that drops expired keys.
func New(ttl time.Duration, capacity int) *Window {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	w := &Window{
		index:    make(map[string]time.Time, capacity),
		ring:     make([]seenKey, 0, capacity),
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	go w.sweepLoop(sweepInterval(ttl))
	return w
}

// CheckAndMark reports whether key was already seen within the TTL. If it
// was not, it is recorded before returning false.
func (w *Window) CheckAndMark(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if at, ok := w.index[key]; ok && now.Sub(at) < w.ttl {
		return true
	}

	if len(w.ring)-w.head >= w.capacity {
		w.dropOldestLocked()
		w.compactLocked()
	}
	w.index[key] = now
	w.ring = append(w.ring, seenKey{key: key, seen: now})
	return false
}

// Len returns the number of keys currently remembered.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.index)
}

// Sweep forgets every key older than the TTL.
func (w *Window) Sweep() {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	for w.head < len(w.ring) && now.Sub(w.ring[w.head].seen) >= w.ttl {
		w.dropOldestLocked()
	}
	w.compactLocked()
}

// Close stops the sweeper. Safe to call more than once.
func (w *Window) Close() {
	w.stopOnce.Do(func() { close(w.stop) })
}

// dropOldestLocked removes the head of the ring. An index entry refreshed
// after the ring entry was written is left alone.
func (w *Window) dropOldestLocked() {
	old := w.ring[w.head]
	w.ring[w.head] = seenKey{}
	w.head++
	if at, ok := w.index[old.key]; ok && at.Equal(old.seen) {
		delete(w.index, old.key)
	}
}

func (w *Window) compactLocked() {
	if w.head == 0 || w.head < len(w.ring)/2 {
		return
	}
	n := copy(w.ring, w.ring[w.head:])
	clear(w.ring[n:])
	w.ring = w.ring[:n]
	w.head = 0
}

func (w *Window) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.Sweep()
		case <-w.stop:
			return
		}
	}
}

func sweepInterval(ttl time.Duration) time.Duration {
	if ttl < time.Minute {
		return ttl
	}
	return time.Minute
}

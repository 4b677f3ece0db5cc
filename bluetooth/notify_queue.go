package bluetooth

import (
	"sync"
)

// notifyQueue delivers observer notifications one at a time in the order
// they were pushed. Sessions push while holding their own lock so the queue
// order matches the order of state transitions. A notification pushed while
// another goroutine is draining is delivered by that goroutine.
type notifyQueue struct {
	mu       sync.Mutex
	pending  []func()
	draining bool
}

func (q *notifyQueue) push(n func()) {
	q.mu.Lock()
	q.pending = append(q.pending, n)
	q.mu.Unlock()
}

// drain delivers pending notifications without holding any lock, so
// observers may call back into the session.
func (q *notifyQueue) drain() {
	q.mu.Lock()
	if q.draining {
		q.mu.Unlock()
		return
	}
	q.draining = true
	for len(q.pending) > 0 {
		n := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()
		n()
		q.mu.Lock()
	}
	q.pending = nil
	q.draining = false
	q.mu.Unlock()
}

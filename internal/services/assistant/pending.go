package assistant

import "sync"

// pendingTracker records in-flight requests per (hostname, identity) as a
// FIFO queue. A single mutex covers the gate check and the enqueue so two
// concurrent turns from the same user cannot both pass the gate.
type pendingTracker struct {
	mu     sync.Mutex
	queues map[string]map[string][]*Request
}

func newPendingTracker() *pendingTracker {
	return &pendingTracker{queues: make(map[string]map[string][]*Request)}
}

// begin enqueues the request unless the identity already has an uncancelled
// request outstanding, in which case it reports false and enqueues nothing.
func (t *pendingTracker) begin(hostname, identity string, request *Request) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, pending := range t.queues[hostname][identity] {
		if !pending.Cancelled() {
			return false
		}
	}
	if t.queues[hostname] == nil {
		t.queues[hostname] = make(map[string][]*Request)
	}
	t.queues[hostname][identity] = append(t.queues[hostname][identity], request)
	return true
}

// done removes the request from the queue. It runs on every exit path of a
// conversational turn, whether the call succeeded, failed, or was cancelled.
func (t *pendingTracker) done(hostname, identity string, request *Request) {
	t.mu.Lock()
	defer t.mu.Unlock()

	queue := t.queues[hostname][identity]
	for i, pending := range queue {
		if pending.id == request.id {
			t.queues[hostname][identity] = append(queue[:i], queue[i+1:]...)
			return
		}
	}
}

// cancelOldest marks the oldest uncancelled request for the identity as
// cancelled. It reports false when no such request exists.
func (t *pendingTracker) cancelOldest(hostname, identity string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, pending := range t.queues[hostname][identity] {
		if !pending.Cancelled() {
			pending.Cancel()
			return true
		}
	}
	return false
}

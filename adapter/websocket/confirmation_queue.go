package websocket

// confirmationQueue correlates ID-less acknowledgments to requests.
// The server acknowledges requests in send order with one empty text frame each,
// so the oldest pending confirmation is always the one an acknowledgment belongs to.
// Only the supervisor goroutine touches it.
type confirmationQueue struct {
	items []chan struct{}
	head  int
}

func newConfirmationQueue() *confirmationQueue {
	return &confirmationQueue{}
}

// Push appends the confirmation of a request that was just written
func (q *confirmationQueue) Push(done chan struct{}) {
	q.items = append(q.items, done)
}

// Pop removes the oldest pending confirmation. ok is false when nothing is pending,
// which means the server acknowledged a request this connection never sent.
func (q *confirmationQueue) Pop() (done chan struct{}, ok bool) {
	if q.Len() == 0 {
		return nil, false
	}
	done = q.items[q.head]
	q.items[q.head] = nil
	q.head++

	// compact once the consumed prefix dominates
	if q.head > 32 && q.head*2 >= len(q.items) {
		q.items = append([]chan struct{}(nil), q.items[q.head:]...)
		q.head = 0
	}
	return done, true
}

// Len returns the number of unacknowledged requests
func (q *confirmationQueue) Len() int {
	return len(q.items) - q.head
}

// Drain empties the queue and returns the pending confirmations oldest first
func (q *confirmationQueue) Drain() []chan struct{} {
	pending := append([]chan struct{}(nil), q.items[q.head:]...)
	q.items = nil
	q.head = 0
	return pending
}

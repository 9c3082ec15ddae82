package workerpool

// fifoQueue implements a fixed-capacity first-in-first-out queue.
//
// Tasks are processed strictly in the order they are submitted.
// No priorities, no reordering.
type fifoQueue struct {
	buf        []*item // circular buffer
	head, tail int     // read/write indices
	size       int     // number of tasks currently buffered
}

// newFifoQueue creates a FIFO queue with the given capacity. The pool never
// pushes more than capacity items, so the ring does not grow.
func newFifoQueue(capacity int) *fifoQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &fifoQueue{buf: make([]*item, capacity)}
}

func (q *fifoQueue) Len() int { return q.size }

// Push inserts a task at the tail of the queue.
func (q *fifoQueue) Push(it *item) {
	if q.size == len(q.buf) {
		// the pool checks capacity first; grow rather than drop if it ever did not
		q.grow()
	}
	q.buf[q.tail] = it
	q.tail++
	if q.tail == len(q.buf) {
		q.tail = 0
	}
	q.size++
}

// Pop removes and returns the oldest task.
func (q *fifoQueue) Pop() (*item, bool) {
	if q.size == 0 {
		return nil, false
	}
	it := q.buf[q.head]
	q.buf[q.head] = nil
	q.head++
	if q.head == len(q.buf) {
		q.head = 0
	}
	q.size--
	return it, true
}

func (q *fifoQueue) grow() {
	buf := make([]*item, len(q.buf)*2)
	for i := 0; i < q.size; i++ {
		buf[i] = q.buf[(q.head+i)%len(q.buf)]
	}
	q.buf = buf
	q.head = 0
	q.tail = q.size
}

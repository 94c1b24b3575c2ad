package sim

import "sync"

// MessageQueue stages messages for the next tick in a fixed-size ring.
// It is safe for concurrent producers and a single consumer (the engine).
// Sequence numbers are assigned at enqueue and define the intra-tick order
// within a priority class.
type MessageQueue struct {
	mu    sync.Mutex
	data  []Message
	head  int
	tail  int
	count int
	seq   uint64
}

// NewMessageQueue constructs a ring with the given capacity.
func NewMessageQueue(capacity int) *MessageQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &MessageQueue{data: make([]Message, capacity)}
}

// Capacity reports the maximum number of staged messages.
func (q *MessageQueue) Capacity() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.data)
}

// Push stages a message, stamping its sequence number. Returns false when
// the ring is full; the caller decides whether that is backpressure or a
// dropped order.
func (q *MessageQueue) Push(msg Message) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == len(q.data) {
		return false
	}
	q.seq++
	msg.Seq = q.seq
	q.data[q.tail] = msg
	q.tail = (q.tail + 1) % len(q.data)
	q.count++
	return true
}

// Drain returns all staged messages in FIFO order and clears the ring.
func (q *MessageQueue) Drain() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == 0 {
		return nil
	}
	msgs := make([]Message, q.count)
	for i := 0; i < q.count; i++ {
		msgs[i] = q.data[(q.head+i)%len(q.data)]
	}
	q.head = 0
	q.tail = 0
	q.count = 0
	return msgs
}

// Len reports the number of staged messages.
func (q *MessageQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// NextSeq hands out the next sequence number for messages the engine
// synthesises internally, keeping one total order across both sources.
func (q *MessageQueue) NextSeq() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	return q.seq
}

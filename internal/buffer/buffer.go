package buffer

import "math"

// Queue is a FIFO of bytes. Data is appended at the tail and consumed from the head. The
// consumed prefix is reclaimed lazily, when appending would otherwise grow the memory.
type Queue struct {
	memory  []byte
	head    int
	maxSize int
}

// New returns a queue. Zero maxSize means the queue is unbounded.
func New(initialSize, maxSize int) Queue {
	return Queue{
		memory:  make([]byte, 0, initialSize),
		maxSize: maxSize,
	}
}

// Append writes data, checking whether the new amount of pending bytes doesn't exceed the
// limit, otherwise discarding the data and returning false.
func (q *Queue) Append(data []byte) (ok bool) {
	if q.maxSize > 0 && q.Len()+len(data) > q.maxSize {
		return false
	}

	if q.head > 0 && len(q.memory)+len(data) > cap(q.memory) {
		q.compact()
	}

	q.memory = append(q.memory, data...)
	return true
}

// Bytes returns pending data. The slice is valid until the next Append.
func (q *Queue) Bytes() []byte {
	return q.memory[q.head:]
}

// Consume drops n bytes from the head.
func (q *Queue) Consume(n int) {
	q.head += min(n, q.Len())
	if q.head == len(q.memory) {
		q.Clear()
	}
}

// Room returns how many bytes may be appended before hitting the limit.
func (q *Queue) Room() int {
	if q.maxSize == 0 {
		return math.MaxInt
	}

	return max(q.maxSize-q.Len(), 0)
}

func (q *Queue) Len() int {
	return len(q.memory) - q.head
}

func (q *Queue) Empty() bool {
	return q.Len() == 0
}

// Clear just resets the pointers, so old values may be overridden by new ones.
func (q *Queue) Clear() {
	q.head = 0
	q.memory = q.memory[:0]
}

// Release drops the underlying memory.
func (q *Queue) Release() {
	q.head = 0
	q.memory = nil
}

func (q *Queue) compact() {
	n := copy(q.memory, q.memory[q.head:])
	q.memory = q.memory[:n]
	q.head = 0
}

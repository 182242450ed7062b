package stream

import (
	"context"
	"sync"
)

// resultQueue releases records in Seq order regardless of the order in
// which workers complete them, and buffers released records in an
// unbounded FIFO for a single polling consumer. Seq values must be dense:
// every Seq from 0 upwards is completed exactly once.
type resultQueue struct {
	mu      sync.Mutex
	next    uint64
	waiting map[uint64]Record
	fifo    []Record
	head    int
	ready   chan struct{}
}

func newResultQueue() *resultQueue {
	return &resultQueue{
		waiting: make(map[uint64]Record),
		ready:   make(chan struct{}, 1),
	}
}

// Complete hands in a finished record and returns every record that became
// releasable, in Seq order.
func (q *resultQueue) Complete(r Record) []Record {
	q.mu.Lock()
	q.waiting[r.Seq] = r
	var released []Record
	for {
		next, ok := q.waiting[q.next]
		if !ok {
			break
		}
		delete(q.waiting, q.next)
		q.next++
		q.fifo = append(q.fifo, next)
		released = append(released, next)
	}
	q.mu.Unlock()

	if len(released) > 0 {
		select {
		case q.ready <- struct{}{}:
		default:
		}
	}
	return released
}

// Poll removes and returns the oldest released record.
func (q *resultQueue) Poll() (Record, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head == len(q.fifo) {
		return Record{}, false
	}
	r := q.fifo[q.head]
	q.fifo[q.head] = Record{}
	q.head++
	if q.head == len(q.fifo) {
		q.fifo = q.fifo[:0]
		q.head = 0
	} else if q.head >= 64 && q.head*2 >= len(q.fifo) {
		q.fifo = append(q.fifo[:0], q.fifo[q.head:]...)
		q.head = 0
	}
	return r, true
}

// Len is the number of records waiting to be polled.
func (q *resultQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.fifo) - q.head
}

// Held is the number of completed records waiting for an earlier Seq.
func (q *resultQueue) Held() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting)
}

// Ready is signalled after records are released. Several releases may
// collapse into one signal.
func (q *resultQueue) Ready() <-chan struct{} { return q.ready }

// utteranceQueue is the hand-off between the segmenter and the writer
// stage. Push never blocks and never drops; the writer drains it in order.
type utteranceQueue struct {
	mu     sync.Mutex
	jobs   []utteranceJob
	head   int
	closed bool
	signal chan struct{}
}

func newUtteranceQueue() *utteranceQueue {
	return &utteranceQueue{signal: make(chan struct{}, 1)}
}

// Push appends j and returns the queue length after the push.
func (q *utteranceQueue) Push(j utteranceJob) int {
	q.mu.Lock()
	q.jobs = append(q.jobs, j)
	n := len(q.jobs) - q.head
	q.mu.Unlock()
	q.wake()
	return n
}

// Close lets Next report the end of the queue once it is drained.
func (q *utteranceQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

// Next blocks until a job is available. It returns false once the queue is
// closed and empty, or when ctx ends.
func (q *utteranceQueue) Next(ctx context.Context) (utteranceJob, bool) {
	for {
		q.mu.Lock()
		if q.head < len(q.jobs) {
			j := q.jobs[q.head]
			q.jobs[q.head] = utteranceJob{}
			q.head++
			if q.head == len(q.jobs) {
				q.jobs = q.jobs[:0]
				q.head = 0
			}
			q.mu.Unlock()
			return j, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return utteranceJob{}, false
		}
		select {
		case <-q.signal:
		case <-ctx.Done():
			return utteranceJob{}, false
		}
	}
}

// Len is the number of jobs waiting for the writer.
func (q *utteranceQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs) - q.head
}

func (q *utteranceQueue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

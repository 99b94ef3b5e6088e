package transport

import (
	"sort"
	"sync"
	"time"

	"github.com/aidevmon/mcp-transport/internal/protocol"
)

// batchEntry owns an envelope between enqueue and flush.
type batchEntry struct {
	env      *protocol.Envelope
	priority Priority
	enqueued time.Time
}

// batchQueue coalesces medium/low priority envelopes. The first append
// arms a short flush timer; reaching maxBatch flushes immediately. High
// priority traffic never enters the queue — the client sends it directly.
type batchQueue struct {
	mu      sync.Mutex
	entries []batchEntry
	timer   *time.Timer

	delay     time.Duration
	maxBatch  int
	maxQueued int

	// flushFn receives entries already priority-sorted (stable, most
	// urgent first). Called without the queue lock held.
	flushFn func([]batchEntry)
}

func newBatchQueue(delay time.Duration, maxBatch, maxQueued int, flushFn func([]batchEntry)) *batchQueue {
	return &batchQueue{
		delay:     delay,
		maxBatch:  maxBatch,
		maxQueued: maxQueued,
		flushFn:   flushFn,
	}
}

func (q *batchQueue) enqueue(env *protocol.Envelope, p Priority) error {
	q.mu.Lock()
	if q.maxQueued > 0 && len(q.entries) >= q.maxQueued {
		q.mu.Unlock()
		return ErrQueueFull
	}
	q.entries = append(q.entries, batchEntry{env: env, priority: p, enqueued: time.Now()})
	if len(q.entries) >= q.maxBatch {
		taken := q.takeLocked()
		q.mu.Unlock()
		q.flushFn(taken)
		return nil
	}
	if len(q.entries) == 1 {
		q.timer = time.AfterFunc(q.delay, q.flush)
	}
	q.mu.Unlock()
	return nil
}

// flush drains the queue and hands the sorted entries to flushFn.
func (q *batchQueue) flush() {
	q.mu.Lock()
	taken := q.takeLocked()
	q.mu.Unlock()
	if len(taken) > 0 {
		q.flushFn(taken)
	}
}

// drain empties the queue without invoking flushFn, for the discard policy.
func (q *batchQueue) drain() []batchEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.takeLocked()
}

func (q *batchQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// takeLocked removes all entries, cancels the timer and returns the batch
// sorted by priority. Stable sort keeps insertion order inside a priority.
func (q *batchQueue) takeLocked() []batchEntry {
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	taken := q.entries
	q.entries = nil
	sort.SliceStable(taken, func(i, j int) bool {
		return taken[i].priority < taken[j].priority
	})
	return taken
}

// Package dsa holds small data structures used by the ledger engine.
package dsa

import (
	"time"

	"github.com/tutu-network/trail/internal/domain"
)

// ─── Expiry Queue (Min-Heap) ────────────────────────────────────────────────
// Binary min-heap of vote receipts ordered by expiration, earliest first.
// Cleanup drains it so the oldest lapsed receipts are reclaimed before newer
// ones when a worker caps the batch size.
//
// Operations:
//   Push:    O(log n), sift up
//   Pop:     O(log n), sift down (extract-min)
//   Peek:    O(1)
//   Len:     O(1)
//
// Not safe for concurrent use; each invocation builds its own queue.

// ExpiryQueue orders receipts by Expiration, then by ballot name.
type ExpiryQueue struct {
	heap []*domain.VoteReceipt
}

// NewExpiryQueue builds a queue from receipts in O(n).
func NewExpiryQueue(receipts []*domain.VoteReceipt) *ExpiryQueue {
	q := &ExpiryQueue{heap: append([]*domain.VoteReceipt(nil), receipts...)}
	for i := len(q.heap)/2 - 1; i >= 0; i-- {
		q.siftDown(i)
	}
	return q
}

// Push adds a receipt. O(log n).
func (q *ExpiryQueue) Push(v *domain.VoteReceipt) {
	q.heap = append(q.heap, v)
	q.siftUp(len(q.heap) - 1)
}

// Pop removes and returns the earliest-expiring receipt.
// Returns nil and false if empty.
func (q *ExpiryQueue) Pop() (*domain.VoteReceipt, bool) {
	if len(q.heap) == 0 {
		return nil, false
	}

	top := q.heap[0]
	last := len(q.heap) - 1
	q.heap[0] = q.heap[last]
	q.heap[last] = nil
	q.heap = q.heap[:last]
	if len(q.heap) > 0 {
		q.siftDown(0)
	}
	return top, true
}

// Peek returns the earliest-expiring receipt without removing it. O(1).
func (q *ExpiryQueue) Peek() (*domain.VoteReceipt, bool) {
	if len(q.heap) == 0 {
		return nil, false
	}
	return q.heap[0], true
}

// Len returns the number of queued receipts.
func (q *ExpiryQueue) Len() int { return len(q.heap) }

// ExpiredBefore reports whether the head of the queue lapsed before now.
func (q *ExpiryQueue) ExpiredBefore(now time.Time) bool {
	v, ok := q.Peek()
	return ok && now.After(v.Expiration)
}

// less returns true if receipt i should be dequeued before receipt j.
func (q *ExpiryQueue) less(i, j int) bool {
	a, b := q.heap[i], q.heap[j]
	if !a.Expiration.Equal(b.Expiration) {
		return a.Expiration.Before(b.Expiration)
	}
	// Tie-break on ballot name so the order is deterministic.
	return a.Ballot < b.Ballot
}

// siftUp restores heap property after insertion.
func (q *ExpiryQueue) siftUp(idx int) {
	for idx > 0 {
		parent := (idx - 1) / 2
		if !q.less(idx, parent) {
			break
		}
		q.heap[idx], q.heap[parent] = q.heap[parent], q.heap[idx]
		idx = parent
	}
}

// siftDown restores heap property after extraction.
func (q *ExpiryQueue) siftDown(idx int) {
	n := len(q.heap)
	for {
		smallest := idx
		left := 2*idx + 1
		right := 2*idx + 2

		if left < n && q.less(left, smallest) {
			smallest = left
		}
		if right < n && q.less(right, smallest) {
			smallest = right
		}
		if smallest == idx {
			break
		}
		q.heap[idx], q.heap[smallest] = q.heap[smallest], q.heap[idx]
		idx = smallest
	}
}

package engine

import (
	"cmp"
	"slices"
	"sync"

	"github.com/roach88/cellgram/internal/ir"
)

// Pending is a submitted move with its sequence number.
type Pending struct {
	Seq  int64
	Move ir.Move
}

// moveInbox buffers submitted moves until the board reaches their time.
// Concurrent submitters may enqueue out of seq order.
//
// Enqueue may be called from any goroutine; the runner takes due moves under
// the same lock.
type moveInbox struct {
	mu     sync.Mutex
	moves  []Pending
	closed bool
}

func newMoveInbox() *moveInbox {
	return &moveInbox{moves: make([]Pending, 0, 64)}
}

// Enqueue appends a move. It returns false once the inbox is closed.
func (q *moveInbox) Enqueue(p Pending) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.moves = append(q.moves, p)
	return true
}

// TakeDue removes and returns the moves stamped at or before t, in seq order.
// Later moves stay queued.
func (q *moveInbox) TakeDue(t int64) []Pending {
	q.mu.Lock()
	defer q.mu.Unlock()

	var due []Pending
	kept := q.moves[:0]
	for _, p := range q.moves {
		if p.Move.Time <= t {
			due = append(due, p)
		} else {
			kept = append(kept, p)
		}
	}
	// Clear the tail so dropped moves do not pin their cell writes.
	clear(q.moves[len(kept):])
	q.moves = kept
	slices.SortFunc(due, func(a, b Pending) int { return cmp.Compare(a.Seq, b.Seq) })
	return due
}

// Len returns the number of queued moves.
func (q *moveInbox) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.moves)
}

// Close rejects further moves. Queued moves can still be taken.
func (q *moveInbox) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

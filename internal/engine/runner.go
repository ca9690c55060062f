package engine

import (
	"sync"

	"github.com/roach88/cellgram/internal/ir"
)

// Runner drives one board for a host that receives moves concurrently.
// Submit stamps and buffers moves from any goroutine; Advance evolves the
// board, applying the moves that have come due.
type Runner struct {
	mu    sync.Mutex // guards board
	board *Board
	inbox *moveInbox
	clock *Clock
}

// NewRunner wraps b. Sequence numbers continue after lastSeq.
func NewRunner(b *Board, lastSeq int64) *Runner {
	return &Runner{
		board: b,
		inbox: newMoveInbox(),
		clock: NewClockAt(lastSeq),
	}
}

// Submit queues a move and returns its sequence number. It returns false
// after Close.
func (r *Runner) Submit(m ir.Move) (int64, bool) {
	p := Pending{Seq: r.clock.Next(), Move: m}
	if !r.inbox.Enqueue(p) {
		return 0, false
	}
	return p.Seq, true
}

// Advance evolves the board to t, applying every queued move stamped at or
// before t. Moves with equal times apply in seq order. The applied moves are
// returned for the caller to log; later moves stay queued.
func (r *Runner) Advance(t int64, hardStop bool) ([]Pending, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	due := r.inbox.TakeDue(t)
	moves := make([]ir.Move, len(due))
	for i, p := range due {
		moves[i] = p.Move
	}
	err := r.board.EvolveAndProcess(t, moves, hardStop)
	return due, err
}

// Queued returns the number of moves waiting for their time.
func (r *Runner) Queued() int { return r.inbox.Len() }

// LastSeq returns the last sequence number handed out.
func (r *Runner) LastSeq() int64 { return r.clock.Current() }

// Snapshot encodes the board between advances.
func (r *Runner) Snapshot() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.board.Snapshot()
}

// Close rejects further submissions.
func (r *Runner) Close() { r.inbox.Close() }

package engine

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/cellgram/internal/ir"
)

// Checkpoint is a recorded board snapshot taken after every move with
// Seq <= AfterSeq was applied and the board evolved to Time.
type Checkpoint struct {
	AfterSeq int64
	Time     int64
	Snapshot []byte
}

// ReplayMismatchError reports a checkpoint that a replay did not reproduce.
type ReplayMismatchError struct {
	AfterSeq int64
	Time     int64
	Want     string
	Got      string
}

func (e *ReplayMismatchError) Error() string {
	return fmt.Sprintf("replay diverged at checkpoint after seq %d (time %d): snapshot hash %s, recorded %s",
		e.AfterSeq, e.Time, e.Got, e.Want)
}

// Replay rebuilds a board from its initial snapshot and move log. The log is
// applied in seq order; at each checkpoint the board is evolved to the
// checkpoint time with a hard stop and its snapshot hash compared with the
// recorded one. Replay stops at the first mismatch.
//
// Replaying is the normal evolution path: given the same snapshot and the
// same log, EvolveAndProcess draws the same random numbers in the same order.
func Replay(initial []byte, log []Pending, checkpoints []Checkpoint, opts ...BoardOption) (*Board, error) {
	b, err := LoadBoard(initial, opts...)
	if err != nil {
		return nil, fmt.Errorf("replay: load initial snapshot: %w", err)
	}
	log = slices.Clone(log)
	slices.SortStableFunc(log, func(x, y Pending) int { return cmp.Compare(x.Seq, y.Seq) })

	var errs []error
	next := 0
	for _, cp := range checkpoints {
		var moves []ir.Move
		for next < len(log) && log[next].Seq <= cp.AfterSeq {
			moves = append(moves, log[next].Move)
			next++
		}
		if err := b.EvolveAndProcess(cp.Time, moves, true); err != nil {
			errs = append(errs, err)
		}
		got, err := b.SnapshotHash()
		if err != nil {
			return b, err
		}
		if want := ir.SnapshotHash(cp.Snapshot); got != want {
			errs = append(errs, &ReplayMismatchError{AfterSeq: cp.AfterSeq, Time: cp.Time, Want: want, Got: got})
			return b, errors.Join(errs...)
		}
	}
	return b, errors.Join(errs...)
}

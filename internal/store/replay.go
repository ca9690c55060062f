package store

import (
	"context"
	"fmt"

	"github.com/roach88/cellgram/internal/engine"
)

// ReplayReport summarizes a replay verification.
type ReplayReport struct {
	BoardID     string
	Moves       int
	Checkpoints int
	// FinalHash is the snapshot hash of the rebuilt board.
	FinalHash string
}

// VerifyReplay rebuilds a board from its initial snapshot and recorded moves
// and checks that every checkpoint is reproduced. The returned error wraps an
// *engine.ReplayMismatchError at the first checkpoint that differs.
func (s *Store) VerifyReplay(ctx context.Context, boardID string) (ReplayReport, error) {
	report := ReplayReport{BoardID: boardID}

	rec, err := s.ReadBoard(ctx, boardID)
	if err != nil {
		return report, fmt.Errorf("verify replay: %w", err)
	}
	moves, err := s.ReadMoves(ctx, boardID, 0)
	if err != nil {
		return report, fmt.Errorf("verify replay: %w", err)
	}
	checkpoints, err := s.ReadCheckpoints(ctx, boardID)
	if err != nil {
		return report, fmt.Errorf("verify replay: %w", err)
	}
	report.Moves = len(moves)
	report.Checkpoints = len(checkpoints)

	b, replayErr := engine.Replay(rec.Snapshot, moves, checkpoints,
		engine.WithCommandPolicy(rec.CommandPolicy),
		engine.WithLogger(s.logger))
	if b != nil {
		if h, err := b.SnapshotHash(); err == nil {
			report.FinalHash = h
		}
	}
	if replayErr != nil {
		return report, fmt.Errorf("verify replay %s: %w", boardID, replayErr)
	}

	s.logger.Debug("replay verified",
		"board", boardID,
		"moves", report.Moves,
		"checkpoints", report.Checkpoints)
	return report, nil
}

package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cellgram/internal/engine"
	"github.com/roach88/cellgram/internal/ir"
)

// recordBoard runs a board through a Runner the way a host would, storing
// the initial snapshot, applied moves and a checkpoint per advance.
func recordBoard(t *testing.T, s *Store) (BoardRecord, string) {
	t.Helper()
	ctx := context.Background()
	b := createTestBoard(t)
	b.SetCell(2, 2, engine.Cell{Type: b.Grammar().TypeIndex["a"], Meta: ir.IRObject{ir.MetaID: ir.IRString("hero")}})
	snap, err := b.Snapshot()
	require.NoError(t, err)
	rec, err := s.CreateBoard(ctx, snap, engine.CommandFirstSuccess)
	require.NoError(t, err)

	r := engine.NewRunner(b, 0)
	steps := []struct {
		at    int64
		moves []ir.Move
	}{
		{engine.TicksPerSecond, []ir.Move{
			{Type: ir.MoveCommand, Time: engine.TicksPerSecond / 3, ID: "hero", Command: "step", Dir: "W"},
			{Type: ir.MoveWrite, Time: engine.TicksPerSecond / 2, User: "root", Cells: []ir.CellWrite{{X: 7, Y: 7, Type: "b"}}},
		}},
		{2 * engine.TicksPerSecond, nil},
		{3 * engine.TicksPerSecond, []ir.Move{
			{Type: ir.MoveCommand, Time: 5 * engine.TicksPerSecond / 2, ID: "hero", Key: "s"},
		}},
	}
	var final string
	for _, step := range steps {
		for _, m := range step.moves {
			_, ok := r.Submit(m)
			require.True(t, ok)
		}
		applied, err := r.Advance(step.at, true)
		require.NoError(t, err)
		require.NoError(t, s.AppendMoves(ctx, rec.ID, applied))

		cp, err := r.Snapshot()
		require.NoError(t, err)
		require.NoError(t, s.WriteCheckpoint(ctx, rec.ID, engine.Checkpoint{AfterSeq: r.LastSeq(), Time: step.at, Snapshot: cp}))
		final = ir.SnapshotHash(cp)
	}
	return rec, final
}

func TestVerifyReplay(t *testing.T) {
	s := createTestStore(t)
	rec, final := recordBoard(t, s)

	report, err := s.VerifyReplay(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, report.BoardID)
	assert.Equal(t, 3, report.Moves)
	assert.Equal(t, 3, report.Checkpoints)
	assert.Equal(t, final, report.FinalHash)
}

func TestVerifyReplay_DetectsTamperedLog(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	rec, _ := recordBoard(t, s)

	// Rewrite the second move to target a different cell.
	body, _, err := marshalMove(ir.Move{Type: ir.MoveWrite, Time: engine.TicksPerSecond / 2, User: "root", Cells: []ir.CellWrite{{X: 0, Y: 7, Type: "b"}}})
	require.NoError(t, err)
	_, err = s.db.Exec(`UPDATE moves SET body = ? WHERE board_id = ? AND seq = 2`, body, rec.ID)
	require.NoError(t, err)

	_, err = s.VerifyReplay(ctx, rec.ID)
	require.Error(t, err)
	var mismatch *engine.ReplayMismatchError
	require.True(t, errors.As(err, &mismatch), "unexpected error: %v", err)
	assert.Equal(t, int64(2), mismatch.AfterSeq)
}

func TestVerifyReplay_UnknownBoard(t *testing.T) {
	s := createTestStore(t)
	_, err := s.VerifyReplay(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cellgram/internal/ir"
	"github.com/roach88/cellgram/internal/testutil"
)

// recordRun evolves a mover board through three advances with moves in
// between, returning its initial snapshot, move log and checkpoints.
func recordRun(t *testing.T) ([]byte, []Pending, []Checkpoint) {
	t.Helper()
	b := newTestBoard(t, 8, testutil.MoverGrammar, WithSeed(11), WithOwner("root"))
	for i := 0; i < 64; i += 7 {
		x, y := b.XY(i)
		put(t, b, x, y, "a", "", nil)
	}
	put(t, b, 4, 4, "a", "", owned("hero", "ann"))
	initial, err := b.Snapshot()
	require.NoError(t, err)

	r := NewRunner(b, 0)
	var log []Pending
	var checkpoints []Checkpoint
	schedule := []struct {
		at    int64
		moves []ir.Move
	}{
		{TicksPerSecond / 2, []ir.Move{
			{Type: ir.MoveCommand, Time: TicksPerSecond / 4, User: "ann", ID: "hero", Command: "step", Dir: "E"},
		}},
		{TicksPerSecond, []ir.Move{
			{Type: ir.MoveWrite, Time: TicksPerSecond * 3 / 4, User: "root", Cells: []ir.CellWrite{{X: 0, Y: 7, Type: "b"}}},
			{Type: ir.MoveCommand, Time: TicksPerSecond * 3 / 4, User: "bob", ID: "hero", Command: "step"},
		}},
		{2 * TicksPerSecond, nil},
	}
	for _, step := range schedule {
		for _, m := range step.moves {
			_, ok := r.Submit(m)
			require.True(t, ok)
		}
		applied, err := r.Advance(step.at, true)
		require.NoError(t, err)
		log = append(log, applied...)

		snap, err := r.Snapshot()
		require.NoError(t, err)
		checkpoints = append(checkpoints, Checkpoint{AfterSeq: r.LastSeq(), Time: step.at, Snapshot: snap})
	}
	return initial, log, checkpoints
}

func TestReplay_ReproducesCheckpoints(t *testing.T) {
	initial, log, checkpoints := recordRun(t)
	require.Len(t, log, 3)

	b, err := Replay(initial, log, checkpoints, WithLogger(quietLogger()))
	require.NoError(t, err)

	final, err := b.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, string(checkpoints[len(checkpoints)-1].Snapshot), string(final))
}

func TestReplay_DetectsDivergence(t *testing.T) {
	initial, log, checkpoints := recordRun(t)

	// Dropping the first move changes history from the first checkpoint on.
	_, err := Replay(initial, log[1:], checkpoints, WithLogger(quietLogger()))
	require.Error(t, err)

	var mismatch *ReplayMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, checkpoints[0].AfterSeq, mismatch.AfterSeq)
	assert.NotEqual(t, mismatch.Want, mismatch.Got)
}

func TestReplay_BadInitialSnapshot(t *testing.T) {
	_, err := Replay([]byte(`{"size":2,"cell":[0]}`), nil, nil, WithLogger(quietLogger()))
	require.Error(t, err)
	assert.True(t, IsSizeMismatch(err))
}

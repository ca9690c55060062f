package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cellgram/internal/engine"
)

func TestReadBoard_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.ReadBoard(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListBoards_CreationOrder(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	empty, err := s.ListBoards(ctx)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	for i, snap := range []string{`{"size":3}`, `{"size":1}`, `{"size":2,"owner":"ann"}`} {
		policy := engine.CommandFirstSuccess
		if i == 1 {
			policy = engine.CommandAll
		}
		_, err := s.CreateBoard(ctx, []byte(snap), policy)
		require.NoError(t, err)
	}

	boards, err := s.ListBoards(ctx)
	require.NoError(t, err)
	require.Len(t, boards, 3)
	assert.Equal(t, []int{3, 1, 2}, []int{boards[0].Size, boards[1].Size, boards[2].Size})
	assert.Equal(t, "ann", boards[2].Owner)
	assert.Equal(t, engine.CommandAll, boards[1].CommandPolicy)
	assert.Equal(t, engine.CommandFirstSuccess, boards[2].CommandPolicy)
}

func TestReadMoves_Empty(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	moves, err := s.ReadMoves(ctx, "missing", 0)
	require.NoError(t, err)
	assert.NotNil(t, moves)
	assert.Empty(t, moves)

	cps, err := s.ReadCheckpoints(ctx, "missing")
	require.NoError(t, err)
	assert.NotNil(t, cps)

	last, err := s.LastSeq(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, int64(0), last)
}

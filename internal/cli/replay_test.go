package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cellgram/internal/engine"
	"github.com/roach88/cellgram/internal/store"
)

// recordRun evolves the hero board into a fresh database with two
// checkpoints and returns the database path and board id.
func recordRun(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	db := filepath.Join(dir, "runs.db")
	moves := writeFile(t, dir, "moves.json", heroMoves)

	resp := evolveJSON(t, "--grammar", moverGrammar, "--size", "4", "--owner", "root",
		"--moves", moves, "--db", db, "--checkpoints", "2", "--policy", "all")
	require.NotEmpty(t, resp.BoardID)
	return db, resp.BoardID
}

func TestReplayMissingDatabaseFlag(t *testing.T) {
	_, err := execute(t, "replay")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestReplayEmptyDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "empty.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, err := execute(t, "replay", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "No boards found in database.")

	out, err = execute(t, "--format", "json", "replay", "--db", dbPath)
	require.NoError(t, err)
	var resp struct {
		Status string       `json:"status"`
		Data   ReplayResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, resp.Data.TotalBoards)
	assert.True(t, resp.Data.AllDeterministic)
}

func TestReplayRecordedBoard(t *testing.T) {
	db, id := recordRun(t)

	out, err := execute(t, "-v", "replay", "--db", db, id)
	require.NoError(t, err)
	assert.Contains(t, out, "Replay Summary: 1 board(s)")
	assert.Contains(t, out, "✓ Board: "+id)
	assert.Contains(t, out, "  2 move(s), 2 checkpoint(s)")
	assert.Contains(t, out, "  Final hash: ")
	assert.Contains(t, out, "✓ All boards replay deterministically")

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()
	rec, err := st.ReadBoard(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, engine.CommandAll, rec.CommandPolicy)
}

func TestReplayDetectsTamperedCheckpoint(t *testing.T) {
	db, id := recordRun(t)

	raw, err := sql.Open("sqlite3", db)
	require.NoError(t, err)
	_, err = raw.Exec(`
		UPDATE checkpoints
		SET snapshot = (SELECT snapshot FROM boards WHERE boards.id = checkpoints.board_id)
		WHERE time = ?`, engine.TicksPerSecond)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	out, err := execute(t, "replay", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Board: "+id)
	assert.Contains(t, out, "Diverged at checkpoint after seq 2")
	assert.Contains(t, out, "✗ Determinism verification failed")

	out, err = execute(t, "--format", "json", "replay", "--db", db)
	require.Error(t, err)
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeReplay, resp.Error.Code)
}

func TestReplayUnknownBoard(t *testing.T) {
	db, _ := recordRun(t)

	_, err := execute(t, "replay", "--db", db, "missing")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to replay board missing")
}

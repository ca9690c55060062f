package store

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/roach88/cellgram/internal/engine"
	"github.com/roach88/cellgram/internal/testutil"
)

// createTestStore creates a new store in a temporary directory with
// sequential board IDs.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path,
		WithIDGenerator(testutil.NewSequenceIDs("board")),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestBoard returns an 8x8 mover board with a few movers placed.
func createTestBoard(t *testing.T) *engine.Board {
	t.Helper()
	g := testutil.MustCompile(t, testutil.MoverGrammar)
	b, err := engine.NewBoard(8, g,
		engine.WithSeed(17),
		engine.WithOwner("root"),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatalf("NewBoard() failed: %v", err)
	}
	mover := g.TypeIndex["a"]
	for i := 0; i < 64; i += 9 {
		x, y := b.XY(i)
		b.SetCell(x, y, engine.Cell{Type: mover})
	}
	return b
}

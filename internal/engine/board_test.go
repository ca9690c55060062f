package engine

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cellgram/internal/compiler"
	"github.com/roach88/cellgram/internal/ir"
	"github.com/roach88/cellgram/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestBoard builds a board over grammar source with logging discarded.
func newTestBoard(t *testing.T, size int, source string, opts ...BoardOption) *Board {
	t.Helper()
	opts = append([]BoardOption{WithLogger(quietLogger())}, opts...)
	b, err := NewBoard(size, testutil.MustCompile(t, source), opts...)
	require.NoError(t, err)
	return b
}

// put writes a cell of the named type.
func put(t *testing.T, b *Board, x, y int, typeName, state string, meta ir.IRObject) {
	t.Helper()
	typ, ok := b.Grammar().TypeIndex[typeName]
	require.True(t, ok, "type %q not in grammar", typeName)
	b.SetCell(x, y, Cell{Type: typ, State: state, Meta: meta})
}

func typeAt(b *Board, x, y int) string {
	return b.TypeName(b.Cell(x, y))
}

func TestNewBoard_AllEmpty(t *testing.T) {
	b := newTestBoard(t, 4, testutil.DecayGrammar)

	assert.Equal(t, 4, b.Size())
	assert.Equal(t, int64(0), b.Time())
	assert.Equal(t, 16, b.CountByType(0))
	for _, c := range b.Cells() {
		assert.Equal(t, compiler.EmptyType, b.TypeName(c))
	}
}

func TestNewBoard_RejectsBadSize(t *testing.T) {
	_, err := NewBoard(0, nil)
	require.Error(t, err)
}

func TestNewBoard_NilGrammarIsEmpty(t *testing.T) {
	b, err := NewBoard(2, nil, WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, []string{compiler.EmptyType, compiler.UnknownType}, b.Grammar().Types)
}

func TestBoard_IndexWraps(t *testing.T) {
	b := newTestBoard(t, 4, testutil.DecayGrammar)

	assert.Equal(t, 3, b.Index(-1, 0))
	assert.Equal(t, b.Index(0, 1), b.Index(4, 5))
	assert.Equal(t, 15, b.Index(-1, -1))

	x, y := b.XY(6)
	assert.Equal(t, 2, x)
	assert.Equal(t, 1, y)
}

func TestBoard_SetCellMaintainsTypeIndex(t *testing.T) {
	b := newTestBoard(t, 4, testutil.DecayGrammar)
	a := b.Grammar().TypeIndex["a"]

	put(t, b, 1, 1, "a", "", nil)
	put(t, b, 3, 2, "a", "", nil)
	assert.Equal(t, 2, b.CountByType(a))
	assert.Equal(t, 14, b.CountByType(0))
	assert.Equal(t, []int{5, 11}, b.CellsOfType(a))

	put(t, b, 1, 1, "b", "", nil)
	assert.Equal(t, []int{11}, b.CellsOfType(a))
	assert.Equal(t, "b", typeAt(b, 1, 1))
}

func TestBoard_TruncatesLongState(t *testing.T) {
	b := newTestBoard(t, 2, testutil.DecayGrammar)
	put(t, b, 0, 0, "a", strings.Repeat("x", 100), nil)
	assert.Len(t, b.Cell(0, 0).State, MaxStateLen)
}

func TestBoard_IDIndex(t *testing.T) {
	b := newTestBoard(t, 4, testutil.DecayGrammar)

	put(t, b, 1, 1, "a", "", ir.IRObject{"id": ir.IRString("p")})
	i, ok := b.CellByID("p")
	require.True(t, ok)
	assert.Equal(t, b.Index(1, 1), i)

	t.Run("duplicate id moves to the new holder", func(t *testing.T) {
		put(t, b, 2, 2, "b", "", ir.IRObject{"id": ir.IRString("p")})
		i, ok := b.CellByID("p")
		require.True(t, ok)
		assert.Equal(t, b.Index(2, 2), i)
		assert.Equal(t, "", b.Cell(1, 1).ID())
		assert.Equal(t, "a", typeAt(b, 1, 1))
	})

	t.Run("overwriting the holder drops the id", func(t *testing.T) {
		put(t, b, 2, 2, "_", "", nil)
		_, ok := b.CellByID("p")
		assert.False(t, ok)
	})

	t.Run("rewriting the same id keeps it", func(t *testing.T) {
		put(t, b, 0, 0, "a", "", ir.IRObject{"id": ir.IRString("q")})
		put(t, b, 0, 0, "b", "z", ir.IRObject{"id": ir.IRString("q")})
		i, ok := b.CellByID("q")
		require.True(t, ok)
		assert.Equal(t, 0, i)
	})
}

func TestBoard_TypeCounts(t *testing.T) {
	b := newTestBoard(t, 2, testutil.DecayGrammar)
	put(t, b, 0, 0, "a", "", nil)
	put(t, b, 1, 0, "b", "", nil)
	put(t, b, 0, 1, "b", "", nil)

	assert.Equal(t, map[string]int{"_": 1, "a": 1, "b": 2}, b.TypeCounts())
}

func TestCommandPolicy_String(t *testing.T) {
	assert.Equal(t, "first", CommandFirstSuccess.String())
	assert.Equal(t, "all", CommandAll.String())
	assert.Equal(t, "CommandPolicy(7)", CommandPolicy(7).String())
}

func TestParseCommandPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    CommandPolicy
		wantErr bool
	}{
		{"", CommandFirstSuccess, false},
		{"first", CommandFirstSuccess, false},
		{"all", CommandAll, false},
		{"some", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCommandPolicy(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSetCellNamed(t *testing.T) {
	b := newTestBoard(t, 4, testutil.DecayGrammar)

	b.SetCellNamed(1, 2, "a", "s", ir.IRObject{ir.MetaType: ir.IRString("stale"), "k": ir.IRNull{}})
	c := b.Cell(1, 2)
	assert.Equal(t, "a", b.TypeName(c))
	assert.Equal(t, "s", c.State)
	assert.Nil(t, c.Meta, "known types drop the recorded name and nulls")

	b.SetCellNamed(5, 2, "wisp", "", nil)
	assert.Equal(t, "wisp", typeAt(b, 1, 2), "coordinates wrap")
	assert.Equal(t, b.Grammar().UnknownType(), b.Cell(1, 2).Type)

	b.SetCellNamed(1, 2, "", "", nil)
	assert.Equal(t, "_", typeAt(b, 1, 2))
}

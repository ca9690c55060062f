package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cellgram/internal/compiler"
	"github.com/roach88/cellgram/internal/ir"
	"github.com/roach88/cellgram/internal/symbol"
	"github.com/roach88/cellgram/internal/testutil"
)

// firstRule returns the first asynchronous rule of a type.
func firstRule(t *testing.T, b *Board, typeName string) *compiler.Rule {
	t.Helper()
	rules := b.Grammar().Transform[b.Grammar().TypeIndex[typeName]]
	require.NotEmpty(t, rules)
	return rules[0]
}

func TestApplyRule_MovesForward(t *testing.T) {
	tests := []struct {
		dir          string
		wantX, wantY int
	}{
		{"N", 1, 0},
		{"E", 2, 1},
		{"S", 1, 2},
		{"W", 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.dir, func(t *testing.T) {
			b := newTestBoard(t, 4, testutil.MoverGrammar)
			put(t, b, 1, 1, "a", "", ir.IRObject{"id": ir.IRString("p")})

			require.True(t, b.ApplyRule(1, 1, tt.dir, firstRule(t, b, "a")))
			assert.Equal(t, "_", typeAt(b, 1, 1))
			assert.Nil(t, b.Cell(1, 1).Meta)
			assert.Equal(t, "a", typeAt(b, tt.wantX, tt.wantY))
			assert.Equal(t, "p", b.Cell(tt.wantX, tt.wantY).ID())

			i, ok := b.CellByID("p")
			require.True(t, ok)
			assert.Equal(t, b.Index(tt.wantX, tt.wantY), i)
		})
	}
}

func TestApplyRule_WrapsAroundEdges(t *testing.T) {
	b := newTestBoard(t, 4, testutil.MoverGrammar)
	put(t, b, 0, 0, "a", "", nil)

	require.True(t, b.ApplyRule(0, 0, "W", firstRule(t, b, "a")))
	assert.Equal(t, "a", typeAt(b, 3, 0))
	assert.Equal(t, "_", typeAt(b, 0, 0))
}

func TestApplyRule_FailureLeavesBoardUnchanged(t *testing.T) {
	b := newTestBoard(t, 4, testutil.MoverGrammar)
	put(t, b, 1, 1, "a", "s", ir.IRObject{"id": ir.IRString("p")})
	put(t, b, 2, 1, "b", "", nil)
	before, err := b.Snapshot()
	require.NoError(t, err)

	assert.False(t, b.ApplyRule(1, 1, "E", firstRule(t, b, "a")))
	assert.False(t, b.ApplyRule(1, 1, "Q", firstRule(t, b, "a")), "unknown direction")

	after, err := b.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestApplyRule_SwapsWithGroup(t *testing.T) {
	b := newTestBoard(t, 4, testutil.MoverGrammar)
	push := b.Grammar().Command[b.Grammar().TypeIndex["a"]]["push"]
	require.Len(t, push, 1)

	put(t, b, 1, 1, "a", "", nil)
	put(t, b, 2, 1, "b", "", nil)
	require.True(t, b.ApplyRule(1, 1, "E", push[0]))
	assert.Equal(t, "b", typeAt(b, 1, 1))
	assert.Equal(t, "a", typeAt(b, 2, 1))
}

func TestApplyRule_StatePatterns(t *testing.T) {
	b := newTestBoard(t, 4, `[
		{"type": "transform", "lhs": [{"type": "t", "state": ["x", {"op": "any"}]}],
		 "rhs": [{"op": "prefix", "state": [{"op": "tail", "group": 1}, "q"]}]},
		{"type": "transform", "lhs": [{"type": "c", "state": [{"op": "class", "chars": "abc"}]}],
		 "rhs": [{"op": "prefix", "state": ["!"]}]},
		{"type": "transform", "lhs": [{"type": "n", "state": [{"op": "negated", "chars": "abc"}, {"op": "wild"}]}],
		 "rhs": [{"op": "prefix", "state": [{"op": "state", "group": 1, "char": 2}]}]}
	]`)

	tests := []struct {
		name     string
		typ      string
		state    string
		applies  bool
		newState string
	}{
		{"tail keeps the rest", "t", "xyz", true, "yzq"},
		{"empty tail", "t", "x", true, "q"},
		{"prefix mismatch", "t", "yx", false, "yx"},
		{"class member", "c", "b", true, "!"},
		{"class non-member", "c", "d", false, "d"},
		{"class needs a char", "c", "", false, ""},
		{"class length mismatch", "c", "ab", false, "ab"},
		{"negated class", "n", "dz", true, "z"},
		{"negated class member", "n", "az", false, "az"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			put(t, b, 0, 0, tt.typ, tt.state, nil)
			assert.Equal(t, tt.applies, b.ApplyRule(0, 0, "N", firstRule(t, b, tt.typ)))
			assert.Equal(t, tt.newState, b.Cell(0, 0).State)
			assert.Equal(t, tt.typ, typeAt(b, 0, 0))
		})
	}
}

func TestApplyRule_ComputedState(t *testing.T) {
	b := newTestBoard(t, 4, `[
		{"type": "transform", "lhs": [{"type": "a", "state": [{"op": "wild"}]}],
		 "rhs": [{"op": "prefix", "state": [
			{"op": "add", "left": {"op": "state", "group": 1, "char": 1}, "right": {"op": "integer", "n": 3}},
			{"op": "sub", "left": {"op": "state", "group": 1, "char": 1}, "right": {"op": "integer", "n": 1}},
			{"op": "clock", "arg": {"op": "vector", "x": 0, "y": -1}},
			{"op": "reldir", "dir": "R"},
			{"op": "location", "group": 1}
		 ]}]}
	]`)
	put(t, b, 2, 2, "a", "#", nil)

	require.True(t, b.ApplyRule(2, 2, "N", firstRule(t, b, "a")))
	north, _ := symbol.DirChar("N")
	want := string([]byte{
		symbol.IntAdd('#', symbol.IntChar(3)),
		symbol.IntSub('#', symbol.IntChar(1)),
		symbol.Clockwise(symbol.VecChar(0, -1)),
		symbol.RelativeDir("R", north),
		symbol.VecChar(0, 0),
	})
	assert.Equal(t, want, b.Cell(2, 2).State)
}

func TestApplyRule_Addresses(t *testing.T) {
	b := newTestBoard(t, 4, `[
		{"type": "transform", "lhs": [{"type": "s"}, {"type": "_", "addr": {"op": "absdir", "dir": "S"}}],
		 "rhs": [{"type": "_"}, {"op": "group"}]},
		{"type": "transform", "lhs": [{"type": "r"}, {"type": "_", "addr": {"op": "reldir", "dir": "R"}}],
		 "rhs": [{"type": "_"}, {"op": "group"}]},
		{"type": "transform", "lhs": [{"type": "v"}, {"type": "_", "addr": {"op": "neighbor", "arg": {"op": "vector", "x": 2, "y": 1}}}],
		 "rhs": [{"type": "_"}, {"op": "group"}]},
		{"type": "transform", "lhs": [{"type": "c"}, {"type": "_"}, {"type": "_", "addr": {"op": "cell", "arg": {"op": "vector", "x": -1, "y": 0}}}],
		 "rhs": [{"type": "_"}, {"op": "group", "group": 2}, {"op": "group"}]}
	]`)

	tests := []struct {
		name         string
		typ, dir     string
		wantX, wantY int
	}{
		{"absolute direction ignores anchor", "s", "E", 1, 2},
		{"relative direction turns with anchor", "r", "N", 2, 1},
		{"relative direction facing east", "r", "E", 1, 2},
		{"neighbor vector", "v", "W", 3, 2},
		{"cell address is anchor-relative", "c", "E", 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := range b.Cells() {
				x, y := b.XY(i)
				put(t, b, x, y, "_", "", nil)
			}
			put(t, b, 1, 1, tt.typ, "", nil)

			require.True(t, b.ApplyRule(1, 1, tt.dir, firstRule(t, b, tt.typ)))
			assert.Equal(t, tt.typ, typeAt(b, tt.wantX, tt.wantY))
			assert.Equal(t, 1, b.CountByType(b.Grammar().TypeIndex[tt.typ]))
		})
	}
}

func TestApplyRule_NegatedTerm(t *testing.T) {
	b := newTestBoard(t, 4, `[
		{"type": "transform", "lhs": [{"type": "a"}, {"op": "negterm", "term": {"type": "b"}}],
		 "rhs": [{"op": "prefix", "state": ["n"]}, {"op": "group", "group": 2}]},
		{"type": "transform", "lhs": [{"type": "b"}], "rhs": [{"type": "b"}], "rate": 0}
	]`)
	rule := firstRule(t, b, "a")

	put(t, b, 1, 1, "a", "", nil)
	put(t, b, 2, 1, "b", "", nil)
	assert.False(t, b.ApplyRule(1, 1, "E", rule))
	assert.True(t, b.ApplyRule(1, 1, "N", rule))
	assert.Equal(t, "n", b.Cell(1, 1).State)
}

func TestApplyRule_RewardAccumulatesScore(t *testing.T) {
	b := newTestBoard(t, 2, `[
		{"type": "transform", "lhs": [{"type": "a"}], "rhs": [{"op": "group"}], "reward": 5}
	]`)
	put(t, b, 0, 0, "a", "", ir.IRObject{"id": ir.IRString("p")})
	rule := firstRule(t, b, "a")

	require.True(t, b.ApplyRule(0, 0, "N", rule))
	require.True(t, b.ApplyRule(0, 0, "N", rule))
	assert.Equal(t, int64(10), b.Cell(0, 0).Meta.Int(ir.MetaScore))
	assert.Equal(t, "p", b.Cell(0, 0).ID())
}

func TestApplyRule_DoesNotDuplicateMetadata(t *testing.T) {
	b := newTestBoard(t, 4, `[
		{"type": "transform", "lhs": [{"type": "a"}, {"type": "_"}], "rhs": [{"op": "group"}, {"op": "group"}]},
		{"type": "transform",
		 "lhs": [{"type": "b"}, {"type": "_"}, {"type": "b", "addr": {"op": "cell", "arg": {"op": "vector", "x": 0, "y": 0}}}],
		 "rhs": [{"type": "_"}, {"type": "b", "id": 1}, {"type": "b", "id": 3}]}
	]`)

	t.Run("same source", func(t *testing.T) {
		put(t, b, 1, 1, "a", "", ir.IRObject{"id": ir.IRString("p"), "owner": ir.IRString("ann")})
		require.True(t, b.ApplyRule(1, 1, "E", firstRule(t, b, "a")))

		assert.Equal(t, "p", b.Cell(1, 1).ID())
		assert.Equal(t, "a", typeAt(b, 2, 1))
		assert.Nil(t, b.Cell(2, 1).Meta)
		i, ok := b.CellByID("p")
		require.True(t, ok)
		assert.Equal(t, b.Index(1, 1), i)
	})

	t.Run("equal ids from different sources", func(t *testing.T) {
		// Terms 1 and 3 both match the anchor, so both would carry its id.
		put(t, b, 0, 3, "b", "", ir.IRObject{"id": ir.IRString("q"), "owner": ir.IRString("bob")})
		require.True(t, b.ApplyRule(0, 3, "E", firstRule(t, b, "b")))

		assert.Equal(t, "q", b.Cell(1, 3).ID())
		assert.Equal(t, "b", typeAt(b, 0, 3))
		assert.Equal(t, "", b.Cell(0, 3).ID())
		owner, _ := b.Cell(0, 3).Meta.String(ir.MetaOwner)
		assert.Equal(t, "bob", owner)

		i, ok := b.CellByID("q")
		require.True(t, ok)
		assert.Equal(t, b.Index(1, 3), i)
	})
}

package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExprBareStringIsChar(t *testing.T) {
	var e Expr
	require.NoError(t, json.Unmarshal([]byte(`"x"`), &e))
	assert.Equal(t, Expr{Op: ExprChar, Char: "x"}, e)

	out, err := json.Marshal(&e)
	require.NoError(t, err)
	assert.Equal(t, `"x"`, string(out))
}

func TestExprRejectsMultiCharString(t *testing.T) {
	var e Expr
	assert.Error(t, json.Unmarshal([]byte(`"xy"`), &e))
}

func TestExprStateCharPosition(t *testing.T) {
	var e Expr
	require.NoError(t, json.Unmarshal([]byte(`{"op":"state","group":2,"char":3}`), &e))
	assert.Equal(t, ExprState, e.Op)
	assert.Equal(t, 2, e.Group)
	assert.Equal(t, 3, e.Index)

	out, err := json.Marshal(&e)
	require.NoError(t, err)
	assert.JSONEq(t, `{"op":"state","group":2,"char":3}`, string(out))
}

func TestExprClassForms(t *testing.T) {
	var a, b Expr
	require.NoError(t, json.Unmarshal([]byte(`{"op":"class","chars":"abc"}`), &a))
	require.NoError(t, json.Unmarshal([]byte(`{"op":"negated","chars":["a",{"op":"char","char":"b"}]}`), &b))
	assert.Equal(t, "abc", a.Chars)
	assert.Equal(t, ExprNegated, b.Op)
	assert.Equal(t, "ab", b.Chars)
}

func TestExprNestedTree(t *testing.T) {
	src := `{"op":"+","left":{"op":"vector","x":0,"y":-1},"right":{"op":"*","left":{"op":"matrix","matrix":"R"},"right":{"op":"reldir","dir":"F"}}}`
	var e Expr
	require.NoError(t, json.Unmarshal([]byte(src), &e))
	assert.Equal(t, ExprVecAdd, e.Op)
	assert.Equal(t, ExprVector, e.Left.Op)
	assert.Equal(t, -1, e.Left.Y)
	assert.Equal(t, "R", e.Right.Left.Matrix)
	assert.Equal(t, "F", e.Right.Right.Dir)

	out, err := json.Marshal(&e)
	require.NoError(t, err)
	assert.JSONEq(t, src, string(out))
}

func TestExprObjectWithoutOp(t *testing.T) {
	var e Expr
	assert.Error(t, json.Unmarshal([]byte(`{"char":"a"}`), &e))
}

func TestRuleJSON(t *testing.T) {
	src := `{"type":"transform","lhs":[{"type":"a","state":["x",{"op":"any"}]},{"type":"b","addr":{"op":"absdir","dir":"E"}}],"rhs":[{"op":"group","group":2},{"op":"prefix","group":1,"state":["y"]}],"rate":250000,"command":"go"}`
	var r Rule
	require.NoError(t, json.Unmarshal([]byte(src), &r))

	assert.Equal(t, RuleTransform, r.Kind)
	require.NotNil(t, r.Rate)
	assert.Equal(t, int64(250000), *r.Rate)
	assert.Equal(t, "a", r.Subject())
	assert.True(t, r.LHS[0].HasTailPattern())
	assert.False(t, r.LHS[1].HasTailPattern())
	assert.Equal(t, AddrAbsDir, r.LHS[1].Addr.Op)
	assert.Equal(t, TermGroup, r.RHS[0].Op)
	assert.Equal(t, "go", r.Command)

	out, err := json.Marshal(&r)
	require.NoError(t, err)
	assert.JSONEq(t, src, string(out))
}

func TestRuleCloneIsDeep(t *testing.T) {
	rate := int64(5)
	r := &Rule{
		Kind: RuleTransform,
		LHS:  []*Term{{Type: "a", State: []*Expr{{Op: ExprChar, Char: "x"}}}},
		RHS:  []*Term{{Type: "b"}},
		Rate: &rate,
	}
	c := r.Clone()
	c.LHS[0].Type = "z"
	c.LHS[0].State[0].Char = "q"
	*c.Rate = 9

	assert.Equal(t, "a", r.LHS[0].Type)
	assert.Equal(t, "x", r.LHS[0].State[0].Char)
	assert.Equal(t, int64(5), *r.Rate)
}

func TestTermKeyDistinguishesStructure(t *testing.T) {
	a := &Term{Type: "a"}
	b := &Term{Type: "b"}
	assert.NotEqual(t, a.Key(), b.Key())
	assert.Equal(t, a.Key(), (&Term{Type: "a", TypeIndex: 4}).Key())
}

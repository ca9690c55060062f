// Package testutil holds grammar fixtures and deterministic generators shared
// by tests.
package testutil

import (
	"testing"

	"github.com/roach88/cellgram/internal/compiler"
)

// DecayGrammar turns every a into b at one event per second.
const DecayGrammar = `[
	{"type": "transform", "lhs": [{"type": "a"}], "rhs": [{"type": "b"}], "rate": 1000000}
]`

// MoverGrammar moves a particles forward into empty cells. The rule also
// answers the "step" command and the "s" key; push only answers commands.
const MoverGrammar = `[
	{"type": "transform", "lhs": [{"type": "a"}, {"type": "_"}], "rhs": [{"type": "_"}, {"op": "group"}], "command": "step", "key": "s"},
	{"type": "transform", "lhs": [{"type": "a"}, {"type": "b"}], "rhs": [{"type": "b"}, {"op": "group"}], "command": "push", "rate": 0}
]`

// CounterGrammar increments the state of every a cell once per second in a
// sync sweep. The state is a cyclic integer character.
const CounterGrammar = `[
	{"type": "transform", "sync": 1000000,
	 "lhs": [{"type": "a", "state": [{"op": "wild"}]}],
	 "rhs": [{"op": "prefix", "state": [{"op": "add", "left": {"op": "state", "group": 1, "char": 1}, "right": {"op": "integer", "n": 1}}]}]}
]`

// CommandGrammar has two command rules for a, named "paint", that both apply
// to the same cell: the first writes state x, the second state y.
const CommandGrammar = `[
	{"type": "transform", "lhs": [{"type": "a"}], "rhs": [{"op": "prefix", "state": ["x"]}], "command": "paint", "rate": 0},
	{"type": "transform", "lhs": [{"type": "a"}], "rhs": [{"op": "prefix", "state": ["y"]}], "command": "paint", "rate": 0}
]`

// MustCompile compiles grammar source or fails the test.
func MustCompile(tb testing.TB, source string) *compiler.Grammar {
	tb.Helper()
	g, err := compiler.CompileSource(source)
	if err != nil {
		tb.Fatalf("compile grammar: %v", err)
	}
	return g
}

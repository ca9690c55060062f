package engine

import (
	"strings"

	"github.com/roach88/cellgram/internal/compiler"
	"github.com/roach88/cellgram/internal/ir"
	"github.com/roach88/cellgram/internal/symbol"
)

// matcher walks a rule's LHS from an anchor cell, recording where each term
// matched. Term addresses are vector characters relative to the anchor.
type matcher struct {
	b    *Board
	x, y int
	dir  byte // anchor direction as a vector character

	addr      []byte
	cells     []Cell
	tailStart []int
}

// update is one pending cell write.
type update struct {
	index int
	cell  Cell
}

// ApplyRule matches r with its subject at (x, y) facing dir (N, E, S or W)
// and, if every LHS term matches, writes every RHS cell. It reports whether
// the rule applied; on false the board is unchanged.
func (b *Board) ApplyRule(x, y int, dir string, r *compiler.Rule) bool {
	updates, ok := b.ruleUpdates(x, y, dir, r)
	if !ok {
		return false
	}
	for _, u := range updates {
		b.setCellByIndex(u.index, u.cell)
	}
	return true
}

// ruleUpdates computes the writes of r without applying them.
func (b *Board) ruleUpdates(x, y int, dir string, r *compiler.Rule) ([]update, bool) {
	d, ok := symbol.DirChar(dir)
	if !ok {
		return nil, false
	}
	m := &matcher{b: b, x: x, y: y, dir: d}
	for pos, t := range r.LHS {
		if !m.matchTerm(t, pos) {
			return nil, false
		}
	}

	updates := make([]update, len(r.RHS))
	for pos, t := range r.RHS {
		vx, vy, _ := symbol.Vec(m.addr[pos])
		updates[pos] = update{
			index: b.Index(x+vx, y+vy),
			cell:  m.newCell(t, r.Reward),
		}
	}

	// Metadata is never duplicated onto two written cells: a later cell from
	// the same source loses its metadata, and a repeated id is dropped.
	for i := 0; i < len(updates)-1; i++ {
		for j := i + 1; j < len(updates); j++ {
			if source(r.RHS[i]) == source(r.RHS[j]) {
				updates[j].cell.Meta = nil
			}
			if id := updates[j].cell.ID(); id != "" && updates[i].cell.ID() == id {
				updates[j].cell.Meta = updates[j].cell.Meta.Without(ir.MetaID)
			}
		}
	}
	return updates, true
}

// matchTerm locates LHS term pos and matches it.
func (m *matcher) matchTerm(t *ir.Term, pos int) bool {
	a := symbol.VecChar(0, 0)
	if pos > 0 {
		var ok bool
		a, ok = m.address(t.Addr, m.addr[pos-1])
		if !ok {
			return false
		}
	}
	vx, vy, _ := symbol.Vec(a)
	cell := m.b.Cell(m.x+vx, m.y+vy)

	m.addr = append(m.addr, a)
	m.cells = append(m.cells, cell)
	m.tailStart = append(m.tailStart, len(cell.State))
	if !m.matchLHS(t, cell) {
		return false
	}
	if t.HasTailPattern() {
		m.tailStart[pos] = len(t.State) - 1
	}
	return true
}

// address computes a term position from the previous term's position. A nil
// address steps forward relative to the anchor direction.
func (m *matcher) address(a *ir.Addr, base byte) (byte, bool) {
	var next byte
	switch {
	case a == nil:
		next = symbol.Add(symbol.RelativeDir("F", m.dir), base)
	case a.Op == ir.AddrAbsDir:
		d, ok := symbol.DirChar(a.Dir)
		if !ok {
			return 0, false
		}
		next = symbol.Add(d, base)
	case a.Op == ir.AddrRelDir:
		next = symbol.Add(symbol.RelativeDir(a.Dir, m.dir), base)
	case a.Op == ir.AddrNeighbor:
		c, ok := oneChar(m.compute(a.Arg))
		if !ok {
			return 0, false
		}
		next = symbol.Add(c, base)
	case a.Op == ir.AddrCell:
		c, ok := oneChar(m.compute(a.Arg))
		if !ok {
			return 0, false
		}
		next = c
	default:
		return 0, false
	}
	_, _, ok := symbol.Vec(next)
	return next, ok
}

func (m *matcher) matchLHS(t *ir.Term, cell Cell) bool {
	switch t.Op {
	case ir.TermAny:
		return true
	case ir.TermNegate:
		return !m.matchLHS(t.Term, cell)
	case ir.TermAlt:
		for _, alt := range t.Alt {
			if m.matchLHS(alt, cell) {
				return true
			}
		}
		return false
	case ir.TermLiteral:
		return t.TypeIndex == cell.Type && m.matchState(t.State, cell.State)
	default:
		return false
	}
}

// matchState compares a state pattern character by character. A trailing
// rest marker accepts whatever remains; otherwise lengths must agree. An empty
// pattern only matches an empty state.
func (m *matcher) matchState(pattern []*ir.Expr, state string) bool {
	for n, s := range pattern {
		if s.Op == ir.ExprAny {
			return true
		}
		if n >= len(state) {
			return false
		}
		c := state[n]
		switch s.Op {
		case ir.ExprChar, "":
			if s.Char != state[n:n+1] {
				return false
			}
		case ir.ExprWild:
		case ir.ExprClass:
			if strings.IndexByte(s.Chars, c) < 0 {
				return false
			}
		case ir.ExprNegated:
			if strings.IndexByte(s.Chars, c) >= 0 {
				return false
			}
		case ir.ExprNeighborhood:
			origin := symbol.VecChar(0, 0)
			if s.Origin != nil {
				var ok bool
				if origin, ok = oneChar(m.compute(s.Origin)); !ok {
					return false
				}
			}
			members, ok := symbol.Neighborhood(s.Neighborhood, origin)
			if !ok || strings.IndexByte(members, c) < 0 {
				return false
			}
		default:
			if m.compute(s) != state[n:n+1] {
				return false
			}
		}
	}
	return len(pattern) == len(state)
}

// compute evaluates a character expression. Most results are one character;
// a tail is the matched suffix of a state and may be any length. Expressions
// over missing characters yield "".
func (m *matcher) compute(e *ir.Expr) string {
	if e == nil {
		return ""
	}
	unary := func(arg *ir.Expr, f func(byte) byte) string {
		c, ok := oneChar(m.compute(arg))
		if !ok {
			return ""
		}
		return string(f(c))
	}
	binary := func(f func(a, b byte) byte) string {
		a, aok := oneChar(m.compute(e.Left))
		b, bok := oneChar(m.compute(e.Right))
		if !aok || !bok {
			return ""
		}
		return string(f(a, b))
	}

	switch e.Op {
	case ir.ExprChar, "":
		return e.Char
	case ir.ExprClock:
		return unary(e.Arg, symbol.Clockwise)
	case ir.ExprAnti:
		return unary(e.Arg, symbol.CounterClockwise)
	case ir.ExprIntAdd:
		return binary(symbol.IntAdd)
	case ir.ExprIntSub:
		return binary(symbol.IntSub)
	case ir.ExprVecAdd:
		return binary(symbol.Add)
	case ir.ExprVecSub:
		return binary(symbol.Sub)
	case ir.ExprMul:
		if e.Left == nil {
			return ""
		}
		return unary(e.Right, func(c byte) byte { return symbol.Mul(e.Left.Matrix, c) })
	case ir.ExprLocation:
		g := groupOf(e.Group)
		if g > len(m.addr) {
			return ""
		}
		return string(m.addr[g-1])
	case ir.ExprRelDir:
		return string(symbol.RelativeDir(e.Dir, m.dir))
	case ir.ExprAbsDir:
		d, ok := symbol.DirChar(e.Dir)
		if !ok {
			return ""
		}
		return string(d)
	case ir.ExprInteger:
		return string(symbol.IntChar(e.N))
	case ir.ExprVector:
		return string(symbol.VecChar(e.X, e.Y))
	case ir.ExprState:
		g := groupOf(e.Group)
		if g > len(m.cells) {
			return ""
		}
		state, i := m.cells[g-1].State, e.Index-1
		if i < 0 || i >= len(state) {
			return ""
		}
		return state[i : i+1]
	case ir.ExprTail:
		g := groupOf(e.Group)
		if g > len(m.cells) {
			return ""
		}
		state, start := m.cells[g-1].State, m.tailStart[g-1]
		if start >= len(state) {
			return ""
		}
		return state[start:]
	case ir.ExprNeighborhood:
		return string(symbol.Sentinel)
	default:
		return ""
	}
}

func (m *matcher) computeState(pattern []*ir.Expr) string {
	var sb strings.Builder
	for _, e := range pattern {
		sb.WriteString(m.compute(e))
	}
	return sb.String()
}

// newCell builds the replacement for an RHS term.
func (m *matcher) newCell(t *ir.Term, reward int64) Cell {
	meta := m.metaFor(t, reward)
	switch t.Op {
	case ir.TermGroup:
		src := m.cells[groupOf(t.Group)-1]
		return Cell{Type: src.Type, State: src.State, Meta: meta}
	case ir.TermPrefix:
		src := m.cells[groupOf(t.Group)-1]
		return Cell{Type: src.Type, State: m.computeState(t.State), Meta: meta}
	default:
		return Cell{Type: t.TypeIndex, State: m.computeState(t.State), Meta: meta}
	}
}

// metaFor copies the metadata of the term's source cell. The subject (group
// 1) also collects the rule's reward in its score.
func (m *matcher) metaFor(t *ir.Term, reward int64) ir.IRObject {
	g := source(t)
	if g == 0 {
		return nil
	}
	meta := m.cells[g-1].Meta
	if g == 1 && reward != 0 {
		return meta.With(ir.MetaScore, ir.IRInt(meta.Int(ir.MetaScore)+reward))
	}
	return meta.Clone()
}

// source returns the 1-based LHS term whose metadata an RHS term carries, or
// 0 for none.
func source(t *ir.Term) int {
	if t.ID != 0 {
		return t.ID
	}
	if t.Op == ir.TermGroup || t.Op == ir.TermPrefix {
		return groupOf(t.Group)
	}
	return 0
}

func groupOf(g int) int {
	if g <= 0 {
		return 1
	}
	return g
}

func oneChar(s string) (byte, bool) {
	if len(s) != 1 {
		return 0, false
	}
	return s[0], true
}

package engine

import (
	"github.com/roach88/cellgram/internal/compiler"
	"github.com/roach88/cellgram/internal/ir"
)

// DefaultCommandDir is the anchor direction of a command move without one.
const DefaultCommandDir = "N"

// ProcessMove applies one move at the current time. Moves that fail an
// ownership or precondition check are dropped without error. An unrecognized
// move type returns an UNKNOWN_MOVE RuntimeError and changes nothing.
func (b *Board) ProcessMove(m ir.Move) error {
	switch m.Type {
	case ir.MoveCommand:
		b.processCommand(m)
	case ir.MoveWrite:
		b.processWrite(m)
	case ir.MoveGrammar:
		b.processGrammar(m)
	default:
		err := NewUnknownMoveError(string(m.Type))
		b.log.Error("move ignored", "error", err, "time", m.Time, "user", m.User)
		return err
	}
	return nil
}

// mayEdit reports whether user may act on a cell: the cell is unowned, the
// user owns it, or the user owns the board.
func (b *Board) mayEdit(user string, c Cell) bool {
	owner := c.Owner()
	return owner == "" || user == owner || (b.owner != "" && user == b.owner)
}

func (b *Board) processCommand(m ir.Move) {
	index, ok := b.byID[m.ID]
	if !ok {
		b.log.Debug("command dropped: no cell with id", "id", m.ID)
		return
	}
	cell := b.cells[index]
	if !b.mayEdit(m.User, cell) {
		b.log.Debug("command dropped: not owner", "id", m.ID, "user", m.User, "owner", cell.Owner())
		return
	}

	var rules []*compiler.Rule
	if m.Command != "" {
		rules = b.grammar.Command[cell.Type][m.Command]
	} else {
		rules = b.grammar.Key[cell.Type][m.Key]
	}
	dir := m.Dir
	if dir == "" {
		dir = DefaultCommandDir
	}

	x, y := b.XY(index)
	applied := 0
	for _, r := range rules {
		if b.ApplyRule(x, y, dir, r) {
			applied++
			if b.policy == CommandFirstSuccess {
				break
			}
		}
	}
	b.log.Debug("command processed",
		"id", m.ID,
		"command", m.Command,
		"key", m.Key,
		"candidates", len(rules),
		"applied", applied,
	)
}

func (b *Board) processWrite(m ir.Move) {
	for _, w := range m.Cells {
		index := b.Index(w.X, w.Y)
		if w.ID != "" {
			var ok bool
			if index, ok = b.byID[w.ID]; !ok {
				b.log.Debug("write dropped: no cell with id", "id", w.ID)
				continue
			}
		}
		cell := b.cells[index]
		if !b.mayEdit(m.User, cell) {
			b.log.Debug("write dropped: not owner", "index", index, "user", m.User)
			continue
		}
		if owner, ok := w.Meta.String(ir.MetaOwner); ok && owner != m.User {
			b.log.Debug("write dropped: cannot assign ownership to another user", "user", m.User, "owner", owner)
			continue
		}
		if w.OldType != nil && b.TypeName(cell) != *w.OldType {
			b.log.Debug("write dropped: type precondition failed", "index", index, "want", *w.OldType)
			continue
		}
		if w.OldState != nil && cell.State != *w.OldState {
			b.log.Debug("write dropped: state precondition failed", "index", index, "want", *w.OldState)
			continue
		}

		b.setNamed(index, w.Type, w.State, w.Meta)
	}
}

// processGrammar replaces the grammar when the mover is the board owner. On a
// board without an owner only an anonymous move qualifies.
func (b *Board) processGrammar(m ir.Move) {
	if m.User != b.owner {
		b.log.Debug("grammar move dropped: not board owner", "user", m.User)
		return
	}
	if err := b.ReplaceGrammar(m.Grammar); err != nil {
		b.log.Warn("grammar move compiled with errors", "error", err)
	}
}

// ReplaceGrammar compiles source and switches the board to it. Cells keep
// their type names: names the new grammar lacks move to the unknown type, and
// unknown cells whose recorded name it defines get that type back.
//
// On a compile error the board runs the empty grammar and the error is
// returned and kept for GrammarError.
func (b *Board) ReplaceGrammar(source string) error {
	g, err := compiler.CompileSource(source)
	b.setGrammar(g, err)
	return err
}

func (b *Board) setGrammar(g *compiler.Grammar, compileErr error) {
	names := make([]string, len(b.cells))
	for i, c := range b.cells {
		names[i] = b.TypeName(c)
	}
	b.grammar = g
	b.grammarErr = compileErr
	for i, c := range b.cells {
		t, meta := b.resolveType(names[i], c.Meta)
		b.cells[i] = Cell{Type: t, State: c.State, Meta: meta}
	}
	// The rebuilt index cannot fail: the domain is already a power of two.
	if err := b.resetIndex(); err != nil {
		panic(err)
	}
}

package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RuleKind tags a grammar record.
type RuleKind string

const (
	RuleTransform RuleKind = "transform"
	RuleInherit   RuleKind = "inherit"
	RuleComment   RuleKind = "comment"
)

// Rule is one grammar record. Transform rules use LHS/RHS and the rate or sync
// attributes; inherit rules use Child/Parents; comments carry text only.
//
// Rate is in parts per million of one event per second per cell. A nil Rate on
// a transform rule means the default of one per second.
type Rule struct {
	Kind    RuleKind `json:"type"`
	LHS     []*Term  `json:"lhs,omitempty"`
	RHS     []*Term  `json:"rhs,omitempty"`
	Rate    *int64   `json:"rate,omitempty"`
	Sync    int64    `json:"sync,omitempty"`
	Command string   `json:"command,omitempty"`
	Key     string   `json:"key,omitempty"`
	Reward  int64    `json:"reward,omitempty"`
	Sound   string   `json:"sound,omitempty"`
	Caption string   `json:"caption,omitempty"`
	Child   string   `json:"child,omitempty"`
	Parents []string `json:"parents,omitempty"`
	Comment string   `json:"comment,omitempty"`
}

// Subject returns the type name of the rule's first LHS term.
func (r *Rule) Subject() string {
	if len(r.LHS) == 0 {
		return ""
	}
	return r.LHS[0].Type
}

// Clone returns a deep copy of the rule.
func (r *Rule) Clone() *Rule {
	c := *r
	if r.Rate != nil {
		rate := *r.Rate
		c.Rate = &rate
	}
	c.LHS = cloneTerms(r.LHS)
	c.RHS = cloneTerms(r.RHS)
	c.Parents = append([]string(nil), r.Parents...)
	return &c
}

// TermOp selects the Term variant. The empty op is a typed literal.
type TermOp string

const (
	TermLiteral TermOp = ""
	TermAny     TermOp = "any"
	TermNegate  TermOp = "negterm"
	TermAlt     TermOp = "alt"
	TermGroup   TermOp = "group"
	TermPrefix  TermOp = "prefix"
)

// Term is one cell pattern on either side of a rule.
//
//   - literal: Type plus optional State pattern
//   - any: matches every cell
//   - negterm: matches when Term does not
//   - alt: matches when any of Alt does
//   - group: (RHS) copy the cell matched by LHS term Group
//   - prefix: (RHS) keep type and metadata of term Group, recompute State
//
// Addr positions the term relative to the previous LHS term. ID names the LHS
// term whose metadata an RHS term inherits.
type Term struct {
	Op    TermOp  `json:"op,omitempty"`
	Type  string  `json:"type,omitempty"`
	State []*Expr `json:"state,omitempty"`
	Addr  *Addr   `json:"addr,omitempty"`
	Term  *Term   `json:"term,omitempty"`
	Alt   []*Term `json:"alt,omitempty"`
	Group int     `json:"group,omitempty"`
	ID    int     `json:"id,omitempty"`

	// TypeIndex is resolved by the compiler for literal terms.
	TypeIndex int `json:"-"`
}

// Clone returns a deep copy of the term.
func (t *Term) Clone() *Term {
	if t == nil {
		return nil
	}
	c := *t
	c.State = cloneExprs(t.State)
	c.Addr = t.Addr.Clone()
	c.Term = t.Term.Clone()
	c.Alt = cloneTerms(t.Alt)
	return &c
}

// HasTailPattern reports whether the state pattern ends with a rest marker.
func (t *Term) HasTailPattern() bool {
	return len(t.State) > 0 && t.State[len(t.State)-1].Op == ExprAny
}

// Key returns a string identifying the term's structure, used to de-duplicate
// alternatives.
func (t *Term) Key() string {
	b, err := json.Marshal(t)
	if err != nil {
		return fmt.Sprintf("%p", t)
	}
	return string(b)
}

func cloneTerms(ts []*Term) []*Term {
	if ts == nil {
		return nil
	}
	out := make([]*Term, len(ts))
	for i, t := range ts {
		out[i] = t.Clone()
	}
	return out
}

// AddrOp selects the Addr variant.
type AddrOp string

const (
	AddrAbsDir   AddrOp = "absdir"
	AddrRelDir   AddrOp = "reldir"
	AddrNeighbor AddrOp = "neighbor"
	AddrCell     AddrOp = "cell"
)

// Addr locates an LHS term relative to the previous term.
//
//   - absdir: step in compass direction Dir (N, E, S, W)
//   - reldir: step in direction Dir (F, R, B, L, H, V) relative to the anchor
//   - neighbor: step by the vector computed from Arg
//   - cell: the vector computed from Arg, relative to the anchor
type Addr struct {
	Op  AddrOp `json:"op"`
	Dir string `json:"dir,omitempty"`
	Arg *Expr  `json:"arg,omitempty"`
}

// Clone returns a deep copy of the address.
func (a *Addr) Clone() *Addr {
	if a == nil {
		return nil
	}
	c := *a
	c.Arg = a.Arg.Clone()
	return &c
}

// ExprOp selects the Expr variant.
type ExprOp string

// State pattern ops.
const (
	ExprChar         ExprOp = "char"
	ExprWild         ExprOp = "wild"
	ExprAny          ExprOp = "any"
	ExprClass        ExprOp = "class"
	ExprNegated      ExprOp = "negated"
	ExprNeighborhood ExprOp = "neighborhood"
)

// Computed character ops.
const (
	ExprClock    ExprOp = "clock"
	ExprAnti     ExprOp = "anti"
	ExprIntAdd   ExprOp = "add"
	ExprIntSub   ExprOp = "sub"
	ExprVecAdd   ExprOp = "+"
	ExprVecSub   ExprOp = "-"
	ExprMul      ExprOp = "*"
	ExprMatrix   ExprOp = "matrix"
	ExprLocation ExprOp = "location"
	ExprRelDir   ExprOp = "reldir"
	ExprAbsDir   ExprOp = "absdir"
	ExprInteger  ExprOp = "integer"
	ExprVector   ExprOp = "vector"
	ExprState    ExprOp = "state"
	ExprTail     ExprOp = "tail"
)

// Expr is one element of a state pattern, or a node of a character
// expression. In JSON a bare one-character string is a literal char.
type Expr struct {
	Op           ExprOp
	Char         string // char: the literal
	Chars        string // class, negated: the member set
	Left         *Expr  // add, sub, +, -, * (matrix operand)
	Right        *Expr  // add, sub, +, -, * (vector operand)
	Arg          *Expr  // clock, anti
	Origin       *Expr  // neighborhood
	Neighborhood string // neighborhood: moore or neumann
	Group        int    // location, state, tail: 1-based LHS term
	Index        int    // state: 1-based character position
	Dir          string // reldir (F R B L H V), absdir (N E S W)
	Matrix       string // matrix
	N            int    // integer
	X, Y         int    // vector
}

// Clone returns a deep copy of the expression.
func (e *Expr) Clone() *Expr {
	if e == nil {
		return nil
	}
	c := *e
	c.Left = e.Left.Clone()
	c.Right = e.Right.Clone()
	c.Arg = e.Arg.Clone()
	c.Origin = e.Origin.Clone()
	return &c
}

func cloneExprs(es []*Expr) []*Expr {
	if es == nil {
		return nil
	}
	out := make([]*Expr, len(es))
	for i, e := range es {
		out[i] = e.Clone()
	}
	return out
}

// exprJSON is the wire form of Expr. The "char" key is a string for literal
// chars and an integer position for state references.
type exprJSON struct {
	Op           ExprOp          `json:"op"`
	Char         json.RawMessage `json:"char,omitempty"`
	Chars        json.RawMessage `json:"chars,omitempty"`
	Left         *Expr           `json:"left,omitempty"`
	Right        *Expr           `json:"right,omitempty"`
	Arg          *Expr           `json:"arg,omitempty"`
	Origin       *Expr           `json:"origin,omitempty"`
	Neighborhood string          `json:"neighborhood,omitempty"`
	Group        int             `json:"group,omitempty"`
	Dir          string          `json:"dir,omitempty"`
	Matrix       string          `json:"matrix,omitempty"`
	N            *int            `json:"n,omitempty"`
	X            *int            `json:"x,omitempty"`
	Y            *int            `json:"y,omitempty"`
}

// MarshalJSON writes literal chars as bare strings and everything else as an
// op-tagged object.
func (e *Expr) MarshalJSON() ([]byte, error) {
	if e.Op == ExprChar || e.Op == "" {
		return json.Marshal(e.Char)
	}
	w := exprJSON{
		Op:           e.Op,
		Left:         e.Left,
		Right:        e.Right,
		Arg:          e.Arg,
		Origin:       e.Origin,
		Neighborhood: e.Neighborhood,
		Group:        e.Group,
		Dir:          e.Dir,
		Matrix:       e.Matrix,
	}
	switch e.Op {
	case ExprClass, ExprNegated:
		chars, err := json.Marshal(e.Chars)
		if err != nil {
			return nil, err
		}
		w.Chars = chars
	case ExprState:
		w.Char = json.RawMessage(fmt.Sprintf("%d", e.Index))
	case ExprInteger:
		w.N = &e.N
	case ExprVector:
		w.X, w.Y = &e.X, &e.Y
	}
	return json.Marshal(w)
}

// UnmarshalJSON accepts a bare string, or an op-tagged object.
func (e *Expr) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if len(s) != 1 {
			return fmt.Errorf("state char %q must be a single character", s)
		}
		*e = Expr{Op: ExprChar, Char: s}
		return nil
	}

	var w exprJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*e = Expr{
		Op:           w.Op,
		Left:         w.Left,
		Right:        w.Right,
		Arg:          w.Arg,
		Origin:       w.Origin,
		Neighborhood: w.Neighborhood,
		Group:        w.Group,
		Dir:          w.Dir,
		Matrix:       w.Matrix,
	}
	if w.N != nil {
		e.N = *w.N
	}
	if w.X != nil {
		e.X = *w.X
	}
	if w.Y != nil {
		e.Y = *w.Y
	}

	switch w.Op {
	case ExprChar:
		if err := json.Unmarshal(w.Char, &e.Char); err != nil {
			return fmt.Errorf("char op: %w", err)
		}
	case ExprState:
		if err := json.Unmarshal(w.Char, &e.Index); err != nil {
			return fmt.Errorf("state op: char position: %w", err)
		}
	case ExprClass, ExprNegated:
		chars, err := decodeChars(w.Chars)
		if err != nil {
			return fmt.Errorf("%s op: %w", w.Op, err)
		}
		e.Chars = chars
	case "":
		return fmt.Errorf("state char object has no op")
	}
	return nil
}

// decodeChars accepts a string or a list of one-character strings.
func decodeChars(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var list []*Expr
	if err := json.Unmarshal(raw, &list); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	for _, c := range list {
		if c.Op != ExprChar {
			return "", fmt.Errorf("class member must be a literal char, got %q", c.Op)
		}
		buf.WriteString(c.Char)
	}
	return buf.String(), nil
}

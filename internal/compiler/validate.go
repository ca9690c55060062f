package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/cellgram/internal/ir"
	"github.com/roach88/cellgram/internal/symbol"
)

// Validation error codes (E100-E199)
const (
	// General (E100)
	ErrUnknownRuleKind = "E100" // unrecognized rule type tag

	// Transform rules (E101-E119)
	ErrEmptyLHS         = "E101" // lhs must have at least one term
	ErrEmptyRHS         = "E102" // rhs must have at least one term
	ErrRHSTooLong       = "E103" // rhs has more terms than lhs
	ErrNegativeRate     = "E104" // rate or sync below zero
	ErrRateAndSync      = "E105" // both rate and sync set
	ErrSubjectNotTyped  = "E106" // first lhs term must be a typed literal
	ErrMissingType      = "E107" // literal term without a type
	ErrGroupOutOfRange  = "E108" // group reference outside 1..len(lhs)
	ErrInvalidTermOp    = "E109" // unknown term op, or op on the wrong side
	ErrInvalidAddr      = "E110" // bad address op or direction
	ErrInvalidExpr      = "E111" // unknown expression op or bad operand
	ErrInvalidStateChar = "E112" // literal outside the printable alphabet

	// Inherit rules (E120-E129)
	ErrInheritNoChild   = "E120" // inherit rule without child
	ErrInheritNoParents = "E121" // inherit rule without parents
)

// ValidationError is a rule that does not satisfy the grammar schema.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`

	// Rule is the 1-based index of the rule in its list, or 0 for Validate.
	Rule int `json:"rule,omitempty"`
}

func (e ValidationError) Error() string {
	if e.Rule > 0 {
		return fmt.Sprintf("[%s] rule %d: %s: %s", e.Code, e.Rule, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidateRules validates every rule and numbers the errors by rule.
func ValidateRules(rules []*ir.Rule) []ValidationError {
	var errs []ValidationError
	for i, r := range rules {
		for _, e := range Validate(r) {
			e.Rule = i + 1
			e.Field = fmt.Sprintf("rules[%d].%s", i, e.Field)
			errs = append(errs, e)
		}
	}
	return errs
}

// Validate checks a single rule. Returns all errors found (does not fail-fast).
func Validate(r *ir.Rule) []ValidationError {
	v := &validator{}
	switch r.Kind {
	case ir.RuleTransform:
		v.transform(r)
	case ir.RuleInherit:
		if strings.TrimSpace(r.Child) == "" {
			v.add("child", ErrInheritNoChild, "inherit rule requires a child type")
		}
		if len(r.Parents) == 0 {
			v.add("parents", ErrInheritNoParents, "inherit rule requires at least one parent")
		}
		for i, p := range r.Parents {
			if strings.TrimSpace(p) == "" {
				v.add(fmt.Sprintf("parents[%d]", i), ErrInheritNoParents, "parent type is empty")
			}
		}
	case ir.RuleComment:
	default:
		v.add("type", ErrUnknownRuleKind, fmt.Sprintf("unrecognized rule type %q", r.Kind))
	}
	return v.errs
}

type validator struct {
	errs []ValidationError
	lhs  int
}

func (v *validator) add(field, code, msg string) {
	v.errs = append(v.errs, ValidationError{Field: field, Message: msg, Code: code})
}

func (v *validator) transform(r *ir.Rule) {
	v.lhs = len(r.LHS)
	if len(r.LHS) == 0 {
		v.add("lhs", ErrEmptyLHS, "transform rule requires at least one lhs term")
	}
	if len(r.RHS) == 0 {
		v.add("rhs", ErrEmptyRHS, "transform rule requires at least one rhs term")
	}
	if len(r.RHS) > len(r.LHS) {
		v.add("rhs", ErrRHSTooLong, fmt.Sprintf("rhs has %d terms but lhs has %d", len(r.RHS), len(r.LHS)))
	}
	if r.Rate != nil && *r.Rate < 0 {
		v.add("rate", ErrNegativeRate, fmt.Sprintf("rate %d is negative", *r.Rate))
	}
	if r.Sync < 0 {
		v.add("sync", ErrNegativeRate, fmt.Sprintf("sync %d is negative", r.Sync))
	}
	if r.Rate != nil && r.Sync != 0 {
		v.add("sync", ErrRateAndSync, "a rule is either asynchronous (rate) or synchronous (sync), not both")
	}

	for i, t := range r.LHS {
		field := fmt.Sprintf("lhs[%d]", i)
		if i == 0 {
			if t.Op != ir.TermLiteral {
				v.add(field, ErrSubjectNotTyped, fmt.Sprintf("first lhs term must be a typed literal, got %q", t.Op))
				continue
			}
			if t.Addr != nil {
				v.add(field+".addr", ErrInvalidAddr, "first lhs term is the anchor and cannot have an address")
			}
		}
		v.lhsTerm(field, t, i)
	}
	for i, t := range r.RHS {
		v.rhsTerm(fmt.Sprintf("rhs[%d]", i), t)
	}
}

func (v *validator) lhsTerm(field string, t *ir.Term, pos int) {
	if t == nil {
		v.add(field, ErrInvalidTermOp, "term is null")
		return
	}
	if t.Addr != nil && pos > 0 {
		v.addr(field+".addr", t.Addr, pos)
	}
	switch t.Op {
	case ir.TermLiteral:
		v.literal(field, t, pos+1)
	case ir.TermAny:
	case ir.TermNegate:
		if t.Term == nil {
			v.add(field+".term", ErrInvalidTermOp, "negated term has no operand")
			return
		}
		v.lhsTerm(field+".term", t.Term, pos)
	case ir.TermAlt:
		if len(t.Alt) == 0 {
			v.add(field+".alt", ErrInvalidTermOp, "alternation has no members")
		}
		for i, a := range t.Alt {
			v.lhsTerm(fmt.Sprintf("%s.alt[%d]", field, i), a, pos)
		}
	default:
		v.add(field+".op", ErrInvalidTermOp, fmt.Sprintf("op %q is not valid on the lhs", t.Op))
	}
}

func (v *validator) rhsTerm(field string, t *ir.Term) {
	if t == nil {
		v.add(field, ErrInvalidTermOp, "term is null")
		return
	}
	if t.ID != 0 {
		v.group(field+".id", t.ID)
	}
	switch t.Op {
	case ir.TermLiteral:
		v.literal(field, t, v.lhs)
	case ir.TermGroup:
		v.group(field+".group", groupOf(t.Group))
	case ir.TermPrefix:
		v.group(field+".group", groupOf(t.Group))
		v.state(field, t.State, v.lhs)
	default:
		v.add(field+".op", ErrInvalidTermOp, fmt.Sprintf("op %q is not valid on the rhs", t.Op))
	}
}

func (v *validator) group(field string, g int) {
	if g < 1 || g > v.lhs {
		v.add(field, ErrGroupOutOfRange, fmt.Sprintf("group %d out of range 1..%d", g, v.lhs))
	}
}

// groupOf applies the default group of 1.
func groupOf(g int) int {
	if g == 0 {
		return 1
	}
	return g
}

func (v *validator) literal(field string, t *ir.Term, scope int) {
	if strings.TrimSpace(t.Type) == "" {
		v.add(field+".type", ErrMissingType, "term has no type")
	}
	v.state(field, t.State, scope)
}

// state checks a state pattern. Expressions may only reference terms up to
// scope (1-based, inclusive).
func (v *validator) state(field string, state []*ir.Expr, scope int) {
	for i, e := range state {
		f := fmt.Sprintf("%s.state[%d]", field, i)
		if e == nil {
			v.add(f, ErrInvalidExpr, "state char is null")
			continue
		}
		if e.Op == ir.ExprAny && i != len(state)-1 {
			v.add(f, ErrInvalidExpr, "rest marker must be the last state char")
		}
		v.expr(f, e, scope)
	}
}

func (v *validator) expr(field string, e *ir.Expr, scope int) {
	if e == nil {
		v.add(field, ErrInvalidExpr, "missing operand")
		return
	}
	ref := func(g int) {
		g = groupOf(g)
		if g < 1 || g > scope {
			v.add(field+".group", ErrGroupOutOfRange, fmt.Sprintf("group %d out of range 1..%d", g, scope))
		}
	}
	switch e.Op {
	case ir.ExprChar, "":
		if len(e.Char) != 1 || e.Char[0] < symbol.First || e.Char[0] > symbol.Last {
			v.add(field, ErrInvalidStateChar, fmt.Sprintf("char %q is outside the printable alphabet", e.Char))
		}
	case ir.ExprWild, ir.ExprAny:
	case ir.ExprClass, ir.ExprNegated:
		if e.Chars == "" {
			v.add(field+".chars", ErrInvalidExpr, "character class is empty")
		}
	case ir.ExprNeighborhood:
		if e.Neighborhood != "moore" && e.Neighborhood != "neumann" {
			v.add(field+".neighborhood", ErrInvalidExpr, fmt.Sprintf("unknown neighborhood %q", e.Neighborhood))
		}
		if e.Origin != nil {
			v.expr(field+".origin", e.Origin, scope)
		}
	case ir.ExprClock, ir.ExprAnti:
		v.expr(field+".arg", e.Arg, scope)
	case ir.ExprIntAdd, ir.ExprIntSub, ir.ExprVecAdd, ir.ExprVecSub:
		v.expr(field+".left", e.Left, scope)
		v.expr(field+".right", e.Right, scope)
	case ir.ExprMul:
		if e.Left == nil || e.Left.Op != ir.ExprMatrix {
			v.add(field+".left", ErrInvalidExpr, "left operand of * must be a matrix")
		} else {
			v.expr(field+".left", e.Left, scope)
		}
		v.expr(field+".right", e.Right, scope)
	case ir.ExprMatrix:
		if _, ok := symbol.MatrixIndex(e.Matrix); !ok {
			v.add(field+".matrix", ErrInvalidExpr, fmt.Sprintf("unknown matrix %q", e.Matrix))
		}
	case ir.ExprLocation, ir.ExprTail:
		ref(e.Group)
	case ir.ExprState:
		ref(e.Group)
		if e.Index < 1 {
			v.add(field+".char", ErrInvalidExpr, fmt.Sprintf("state position %d must be at least 1", e.Index))
		}
	case ir.ExprRelDir:
		if _, ok := symbol.MatrixIndex(e.Dir); !ok {
			v.add(field+".dir", ErrInvalidExpr, fmt.Sprintf("unknown relative direction %q", e.Dir))
		}
	case ir.ExprAbsDir:
		if _, ok := symbol.DirChar(e.Dir); !ok {
			v.add(field+".dir", ErrInvalidExpr, fmt.Sprintf("unknown direction %q", e.Dir))
		}
	case ir.ExprInteger, ir.ExprVector:
	default:
		v.add(field+".op", ErrInvalidExpr, fmt.Sprintf("unknown expression op %q", e.Op))
	}
}

// addr checks the address of the lhs term at 0-based position pos; its
// expressions may reference terms before it.
func (v *validator) addr(field string, a *ir.Addr, pos int) {
	switch a.Op {
	case ir.AddrAbsDir:
		if _, ok := symbol.DirChar(a.Dir); !ok {
			v.add(field+".dir", ErrInvalidAddr, fmt.Sprintf("unknown direction %q", a.Dir))
		}
	case ir.AddrRelDir:
		if _, ok := symbol.MatrixIndex(a.Dir); !ok {
			v.add(field+".dir", ErrInvalidAddr, fmt.Sprintf("unknown relative direction %q", a.Dir))
		}
	case ir.AddrNeighbor, ir.AddrCell:
		if a.Arg == nil {
			v.add(field+".arg", ErrInvalidAddr, fmt.Sprintf("%s address requires an arg", a.Op))
			return
		}
		v.expr(field+".arg", a.Arg, pos)
	default:
		v.add(field+".op", ErrInvalidAddr, fmt.Sprintf("unknown address op %q", a.Op))
	}
}

package compiler

import (
	"errors"
	"fmt"
	"math/bits"
	"slices"
	"strconv"

	"github.com/roach88/cellgram/internal/ir"
)

const (
	// EmptyType is the type at index 0; a fresh board is all empty.
	EmptyType = "_"
	// UnknownType is always the last type. Cells whose type the grammar does
	// not define land here.
	UnknownType = "?"

	// Million is the rate scale: a rate of Million is one event per second.
	Million = 1_000_000
	// DefaultRate applies to transform rules without a rate.
	DefaultRate = Million

	// AcceptBits is the precision of Rule.AcceptProb.
	AcceptBits = 30
	acceptMax  = 1<<AcceptBits - 1

	// TicksPerSecond is the board time scale.
	TicksPerSecond = int64(1) << 32
)

// Rule is a compiled rule: flattened onto its subject type, with alternation
// expanded and type names resolved.
//
// An asynchronous rule fires RateHz times per second per cell and each firing
// is accepted with probability AcceptProb/2^30, so the expected rate is the
// declared Rate/Million.
type Rule struct {
	*ir.Rule

	// Type is the subject type index.
	Type       int
	RateHz     int64
	AcceptProb int64
}

// Grammar is the compiled form of a rule list.
type Grammar struct {
	Source string
	Rules  []*ir.Rule

	Types     []string
	TypeIndex map[string]int

	// Transform holds the asynchronous rules of each type.
	Transform  [][]*Rule
	RateByType []int64

	// SyncRates are the distinct sync rates, ascending. Category m fires every
	// SyncPeriods[m] ticks and holds SyncTransform[m][type].
	SyncRates            []int64
	SyncPeriods          []int64
	SyncTransform        [][][]*Rule
	SyncCategories       []int
	TypesBySyncCategory  [][]int
	SyncCategoriesByType [][]int

	Command []map[string][]*Rule
	Key     []map[string][]*Rule

	Ancestors   map[string][]string
	Descendants map[string][]string
	Warnings    []InheritanceWarning
}

// UnknownType returns the index of the unknown-type bucket.
func (g *Grammar) UnknownType() int { return len(g.Types) - 1 }

// Empty returns the grammar with no rules: just the empty and unknown types.
func Empty() *Grammar {
	g, err := Compile(nil)
	if err != nil {
		panic(err)
	}
	return g
}

// CompileSource parses and compiles grammar source. It always returns a usable
// grammar: on failure that is the empty grammar, alongside the error.
func CompileSource(source string) (*Grammar, error) {
	rules, positions, err := Parse(source)
	if err != nil {
		g := Empty()
		g.Source = source
		return g, err
	}
	g, err := Compile(rules)
	if err != nil {
		var ce *CompileError
		if errors.As(err, &ce) && ce.Rule > 0 && ce.Rule <= len(positions) && !ce.Pos.IsValid() {
			ce.Pos = positions[ce.Rule-1]
		}
		g = Empty()
		g.Source = source
		return g, err
	}
	g.Source = source
	return g, nil
}

// Compile builds a grammar from rule records:
//  1. collect type names (empty first, unknown last)
//  2. derive ancestors and descendants from inherit rules
//  3. expand non-subject LHS terms over descendant types
//  4. flatten each type's rules: ancestors' rules root first, then its own
//  5. quantize rates
//  6. build rate totals, dispatch tables and sync categories
func Compile(rules []*ir.Rule) (*Grammar, error) {
	if errs := ValidateRules(rules); len(errs) > 0 {
		first := errs[0]
		return nil, &CompileError{Field: first.Field, Message: fmt.Sprintf("[%s] %s", first.Code, first.Message), Rule: first.Rule}
	}

	idx, err := indexRules(rules)
	if err != nil {
		return nil, err
	}

	g := &Grammar{
		Rules:       rules,
		Types:       idx.types,
		TypeIndex:   make(map[string]int, len(idx.types)),
		Ancestors:   idx.ancestors,
		Descendants: idx.descendants,
		Warnings:    AnalyzeInheritance(rules),
	}
	for i, t := range g.Types {
		g.TypeIndex[t] = i
	}

	explicit := expandAlts(idx.transform, idx.descendants)
	g.Transform = g.compileRules(appendInherited(g.Types, explicit, idx.ancestors))
	for _, rules := range g.Transform {
		for _, r := range rules {
			r.RateHz, r.AcceptProb = quantize(r.rate())
		}
	}

	g.RateByType = make([]int64, len(g.Types))
	for t, rules := range g.Transform {
		for _, r := range rules {
			g.RateByType[t] += r.RateHz
		}
	}

	g.SyncRates = idx.syncRates
	g.SyncPeriods = make([]int64, len(g.SyncRates))
	g.SyncTransform = make([][][]*Rule, len(g.SyncRates))
	g.SyncCategories = make([]int, len(g.SyncRates))
	g.TypesBySyncCategory = make([][]int, len(g.SyncRates))
	g.SyncCategoriesByType = make([][]int, len(g.Types))
	for m, rate := range g.SyncRates {
		// Rates ascend, so periods descend: category 0 has the longest period.
		g.SyncPeriods[m] = Million * TicksPerSecond / rate
		g.SyncCategories[m] = m
		sync := expandAlts(idx.syncTransform[rate], idx.descendants)
		g.SyncTransform[m] = g.compileRules(appendInherited(g.Types, sync, idx.ancestors))
		for t, rules := range g.SyncTransform[m] {
			if len(rules) > 0 {
				g.TypesBySyncCategory[m] = append(g.TypesBySyncCategory[m], t)
				g.SyncCategoriesByType[t] = append(g.SyncCategoriesByType[t], m)
			}
		}
	}

	g.Command = make([]map[string][]*Rule, len(g.Types))
	g.Key = make([]map[string][]*Rule, len(g.Types))
	for t := range g.Types {
		g.Command[t] = map[string][]*Rule{}
		g.Key[t] = map[string][]*Rule{}
	}
	g.collectDispatch(g.Transform)
	for _, cat := range g.SyncTransform {
		g.collectDispatch(cat)
	}

	return g, nil
}

// rate returns the declared rate, or the default.
func (r *Rule) rate() int64 {
	if r.Rate == nil {
		return DefaultRate
	}
	return *r.Rate
}

// quantize splits a rate in parts per million into a whole firing frequency
// and a 30-bit acceptance probability.
func quantize(rate int64) (hz, accept int64) {
	if rate <= 0 {
		return 0, 0
	}
	hz = (rate + Million - 1) / Million
	hi, lo := bits.Mul64(uint64(rate), acceptMax)
	q, _ := bits.Div64(hi, lo, uint64(hz*Million))
	return hz, int64(q)
}

type ruleIndex struct {
	types         []string
	transform     map[string][]*ir.Rule
	syncTransform map[int64]map[string][]*ir.Rule
	syncRates     []int64
	ancestors     map[string][]string
	descendants   map[string][]string
}

func indexRules(rules []*ir.Rule) (*ruleIndex, error) {
	idx := &ruleIndex{
		types:         []string{EmptyType},
		transform:     map[string][]*ir.Rule{},
		syncTransform: map[int64]map[string][]*ir.Rule{},
		ancestors:     map[string][]string{},
		descendants:   map[string][]string{},
	}
	seen := map[string]bool{EmptyType: true, UnknownType: true}
	markType := func(t string) {
		if !seen[t] {
			idx.types = append(idx.types, t)
			seen[t] = true
		}
	}
	var markTerm func(t *ir.Term, field string, rule int) error
	markTerm = func(t *ir.Term, field string, rule int) error {
		switch t.Op {
		case ir.TermNegate:
			if t.Term == nil {
				return ruleError(rule, field, "negated term has no operand")
			}
			return markTerm(t.Term, field+".term", rule)
		case ir.TermAlt:
			for i, alt := range t.Alt {
				if err := markTerm(alt, fmt.Sprintf("%s.alt[%d]", field, i), rule); err != nil {
					return err
				}
			}
			return nil
		case ir.TermAny, ir.TermGroup, ir.TermPrefix:
			return nil
		case ir.TermLiteral:
			if t.Type == "" {
				return ruleError(rule, field, "undefined type in term")
			}
			markType(t.Type)
			return nil
		default:
			return ruleError(rule, field, fmt.Sprintf("unknown term op %q", t.Op))
		}
	}

	parents := map[string][]string{}
	var children []string
	for i, r := range rules {
		field := fmt.Sprintf("rules[%d]", i)
		switch r.Kind {
		case ir.RuleTransform:
			subject := r.Subject()
			if r.Sync > 0 {
				cat := idx.syncTransform[r.Sync]
				if cat == nil {
					cat = map[string][]*ir.Rule{}
					idx.syncTransform[r.Sync] = cat
					idx.syncRates = append(idx.syncRates, r.Sync)
				}
				cat[subject] = append(cat[subject], r)
			} else {
				idx.transform[subject] = append(idx.transform[subject], r)
			}
			for j, t := range r.LHS {
				if err := markTerm(t, fmt.Sprintf("%s.lhs[%d]", field, j), i+1); err != nil {
					return nil, err
				}
			}
			for j, t := range r.RHS {
				if err := markTerm(t, fmt.Sprintf("%s.rhs[%d]", field, j), i+1); err != nil {
					return nil, err
				}
			}
		case ir.RuleInherit:
			if _, ok := parents[r.Child]; !ok {
				children = append(children, r.Child)
			}
			parents[r.Child] = append(parents[r.Child], r.Parents...)
			markType(r.Child)
			for _, p := range r.Parents {
				markType(p)
			}
		case ir.RuleComment:
		default:
			return nil, ruleError(i+1, field+".type", fmt.Sprintf("unrecognized rule type %q", r.Kind))
		}
	}
	idx.types = append(idx.types, UnknownType)
	slices.Sort(idx.syncRates)

	// Ancestors nearest first. A type reached twice stops the walk, so cycles
	// terminate; a type is never its own ancestor.
	isAncestor := map[string]map[string]bool{}
	for _, child := range children {
		visited := map[string]bool{child: true}
		var anc []string
		var walk func(t string)
		walk = func(t string) {
			var next []string
			for _, p := range parents[t] {
				if !visited[p] {
					visited[p] = true
					anc = append(anc, p)
					next = append(next, p)
				}
			}
			for _, p := range next {
				walk(p)
			}
		}
		walk(child)
		idx.ancestors[child] = anc
		for _, a := range anc {
			if isAncestor[a] == nil {
				isAncestor[a] = map[string]bool{}
			}
			isAncestor[a][child] = true
		}
	}
	for a, set := range isAncestor {
		var desc []string
		for d := range set {
			desc = append(desc, d)
		}
		slices.Sort(desc)
		idx.descendants[a] = desc
	}
	return idx, nil
}

func ruleError(rule int, field, msg string) *CompileError {
	return &CompileError{Field: field, Message: msg, Rule: rule}
}

// expandAlts rewrites every non-subject LHS term whose type has descendants
// into an alternation over the type and its descendants.
func expandAlts(bySubject map[string][]*ir.Rule, descendants map[string][]string) map[string][]*ir.Rule {
	out := make(map[string][]*ir.Rule, len(bySubject))
	for subject, rules := range bySubject {
		expanded := make([]*ir.Rule, len(rules))
		for i, r := range rules {
			c := r.Clone()
			for j := 1; j < len(c.LHS); j++ {
				c.LHS[j] = expandTerm(c.LHS[j], descendants)
			}
			expanded[i] = c
		}
		out[subject] = expanded
	}
	return out
}

func expandTerm(t *ir.Term, descendants map[string][]string) *ir.Term {
	switch t.Op {
	case ir.TermNegate:
		c := *t
		c.Term = expandTerm(t.Term, descendants)
		return &c
	case ir.TermAlt:
		var flat []*ir.Term
		seen := map[string]bool{}
		for _, alt := range t.Alt {
			e := expandTerm(alt, descendants)
			members := []*ir.Term{e}
			if e.Op == ir.TermAlt {
				members = e.Alt
			}
			for _, m := range members {
				if k := m.Key(); !seen[k] {
					seen[k] = true
					flat = append(flat, m)
				}
			}
		}
		return &ir.Term{Op: ir.TermAlt, Alt: flat}
	case ir.TermLiteral:
		desc := descendants[t.Type]
		if len(desc) == 0 {
			return t
		}
		alt := []*ir.Term{t}
		for _, d := range desc {
			v := t.Clone()
			v.Type = d
			alt = append(alt, v)
		}
		return &ir.Term{Op: ir.TermAlt, Alt: alt}
	default:
		return t
	}
}

// appendInherited builds each type's effective list: its ancestors' explicit
// rules, root-most ancestor first, retargeted onto the type, then its own.
func appendInherited(types []string, explicit map[string][]*ir.Rule, ancestors map[string][]string) map[string][]*ir.Rule {
	out := map[string][]*ir.Rule{}
	for _, t := range types {
		var list []*ir.Rule
		anc := ancestors[t]
		for i := len(anc) - 1; i >= 0; i-- {
			for _, r := range explicit[anc[i]] {
				c := r.Clone()
				c.LHS[0].Type = t
				list = append(list, c)
			}
		}
		list = append(list, explicit[t]...)
		if len(list) > 0 {
			out[t] = list
		}
	}
	return out
}

// compileRules resolves type names and returns per-type rule lists indexed
// like g.Types.
func (g *Grammar) compileRules(byName map[string][]*ir.Rule) [][]*Rule {
	out := make([][]*Rule, len(g.Types))
	for t, name := range g.Types {
		for _, r := range byName[name] {
			for _, term := range r.LHS {
				g.resolve(term)
			}
			for _, term := range r.RHS {
				g.resolve(term)
			}
			out[t] = append(out[t], &Rule{Rule: r, Type: t})
		}
	}
	return out
}

func (g *Grammar) resolve(t *ir.Term) {
	switch t.Op {
	case ir.TermNegate:
		g.resolve(t.Term)
	case ir.TermAlt:
		for _, a := range t.Alt {
			g.resolve(a)
		}
	case ir.TermLiteral:
		t.TypeIndex = g.TypeIndex[t.Type]
	}
}

func (g *Grammar) collectDispatch(byType [][]*Rule) {
	for t, rules := range byType {
		for _, r := range rules {
			if r.Command != "" {
				g.Command[t][r.Command] = append(g.Command[t][r.Command], r)
			}
			if r.Key != "" {
				g.Key[t][r.Key] = append(g.Key[t][r.Key], r)
			}
		}
	}
}

// RuleList exports the flattened rules, type by type: asynchronous rules,
// then sync rules by category. The list has no inherit records; compiling it
// again yields the same per-type rules.
func RuleList(g *Grammar) []*ir.Rule {
	var out []*ir.Rule
	for t := range g.Types {
		for _, r := range g.Transform[t] {
			out = append(out, r.Rule.Clone())
		}
		for _, m := range g.SyncCategoriesByType[t] {
			for _, r := range g.SyncTransform[m][t] {
				out = append(out, r.Rule.Clone())
			}
		}
	}
	return out
}

// RateString renders a parts-per-million rate as a decimal, e.g. 1500000 as
// "1.5".
func RateString(rate int64) string {
	whole, frac := rate/Million, rate%Million
	if frac == 0 {
		return strconv.FormatInt(whole, 10)
	}
	s := fmt.Sprintf("%d.%06d", whole, frac)
	for s[len(s)-1] == '0' {
		s = s[:len(s)-1]
	}
	return s
}

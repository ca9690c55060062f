package compiler

import (
	"encoding/json"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/cellgram/internal/ir"
)

// SourceFilename is the filename reported in positions for inline grammar
// source.
const SourceFilename = "grammar.cue"

// Parse evaluates grammar source into rule records. The source is CUE (plain
// JSON is valid CUE) whose value is either a list of rules or a struct with a
// "rules" list, e.g.
//
//	#fast: 4000000
//	rules: [
//		{type: "transform", lhs: [{type: "a"}], rhs: [{type: "b"}], rate: #fast},
//	]
//
// Blank source yields no rules. The returned positions hold the source
// position of each rule.
func Parse(source string) ([]*ir.Rule, []token.Pos, error) {
	if strings.TrimSpace(source) == "" {
		return nil, nil, nil
	}
	ctx := cuecontext.New()
	v := ctx.CompileString(source, cue.Filename(SourceFilename))
	if err := v.Err(); err != nil {
		return nil, nil, formatCUEError(err)
	}
	return ParseValue(v)
}

// ParseValue decodes rule records from an evaluated CUE value.
func ParseValue(v cue.Value) ([]*ir.Rule, []token.Pos, error) {
	if err := v.Err(); err != nil {
		return nil, nil, formatCUEError(err)
	}

	list := v
	if v.IncompleteKind() == cue.StructKind {
		list = v.LookupPath(cue.ParsePath("rules"))
		if !list.Exists() {
			return nil, nil, &CompileError{
				Field:   "rules",
				Message: "grammar must be a list of rules or a struct with a rules list",
				Pos:     v.Pos(),
			}
		}
	}
	if list.IncompleteKind() != cue.ListKind {
		return nil, nil, &CompileError{
			Field:   "rules",
			Message: fmt.Sprintf("rules must be a list, got %v", list.IncompleteKind()),
			Pos:     list.Pos(),
		}
	}

	iter, err := list.List()
	if err != nil {
		return nil, nil, formatCUEError(err)
	}

	var (
		rules     []*ir.Rule
		positions []token.Pos
	)
	for i := 0; iter.Next(); i++ {
		elem := iter.Value()
		field := fmt.Sprintf("rules[%d]", i)

		if err := elem.Validate(cue.Concrete(true)); err != nil {
			return nil, nil, formatCUEError(err)
		}
		data, err := elem.MarshalJSON()
		if err != nil {
			return nil, nil, formatCUEError(err)
		}
		rule := &ir.Rule{}
		if err := json.Unmarshal(data, rule); err != nil {
			return nil, nil, &CompileError{Field: field, Message: err.Error(), Pos: elem.Pos()}
		}
		rules = append(rules, rule)
		positions = append(positions, elem.Pos())
	}
	return rules, positions, nil
}

// CompileError is a grammar error, with a source position when one is known.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos

	// Rule is the 1-based index of the offending rule, or 0.
	Rule int
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}

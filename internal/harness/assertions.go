package harness

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/cellgram/internal/engine"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "%s: expected %s, got %s", e.Type, e.Expected, e.Actual)
	return buf.String()
}

func evaluate(b *engine.Board, initial []engine.Cell, a Assertion) error {
	switch a.Type {
	case AssertCell:
		return assertCell(b, a)
	case AssertTypeCount:
		return assertTypeCount(b, a)
	case AssertTime:
		return assertTime(b, a)
	case AssertUnchanged:
		return assertUnchanged(b, initial)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertCell(b *engine.Board, a Assertion) error {
	var index int
	if a.ID != "" {
		i, ok := b.CellByID(a.ID)
		if !ok {
			return &AssertionError{Type: AssertCell, Expected: fmt.Sprintf("a cell with id %q", a.ID), Actual: "none"}
		}
		index = i
		if a.X != nil && a.Y != nil {
			if want := b.Index(*a.X, *a.Y); want != index {
				x, y := b.XY(index)
				return &AssertionError{
					Type:     AssertCell,
					Expected: fmt.Sprintf("id %q at (%d,%d)", a.ID, *a.X, *a.Y),
					Actual:   fmt.Sprintf("(%d,%d)", x, y),
				}
			}
		}
	} else {
		index = b.Index(*a.X, *a.Y)
	}

	c := b.CellAt(index)
	x, y := b.XY(index)
	if a.CellType != "" {
		if got := b.TypeName(c); got != a.CellType {
			return &AssertionError{Type: AssertCell, Expected: fmt.Sprintf("type %q at (%d,%d)", a.CellType, x, y), Actual: fmt.Sprintf("%q", got)}
		}
	}
	if a.State != nil && c.State != *a.State {
		return &AssertionError{Type: AssertCell, Expected: fmt.Sprintf("state %q at (%d,%d)", *a.State, x, y), Actual: fmt.Sprintf("%q", c.State)}
	}
	if a.Owner != nil && c.Owner() != *a.Owner {
		return &AssertionError{Type: AssertCell, Expected: fmt.Sprintf("owner %q at (%d,%d)", *a.Owner, x, y), Actual: fmt.Sprintf("%q", c.Owner())}
	}
	return nil
}

func assertTypeCount(b *engine.Board, a Assertion) error {
	n := b.TypeCounts()[a.CellType]
	switch {
	case a.Count != nil && n != *a.Count:
		return &AssertionError{Type: AssertTypeCount, Expected: fmt.Sprintf("%d cells of type %q", *a.Count, a.CellType), Actual: fmt.Sprint(n)}
	case a.Min != nil && n < *a.Min:
		return &AssertionError{Type: AssertTypeCount, Expected: fmt.Sprintf("at least %d cells of type %q", *a.Min, a.CellType), Actual: fmt.Sprint(n)}
	case a.Max != nil && n > *a.Max:
		return &AssertionError{Type: AssertTypeCount, Expected: fmt.Sprintf("at most %d cells of type %q", *a.Max, a.CellType), Actual: fmt.Sprint(n)}
	}
	return nil
}

func assertTime(b *engine.Board, a Assertion) error {
	want := int64(0)
	if a.Ticks != nil {
		want = *a.Ticks
	} else {
		want = secondsToTicks(*a.Seconds)
	}
	if b.Time() != want {
		return &AssertionError{Type: AssertTime, Expected: fmt.Sprintf("time %d", want), Actual: fmt.Sprint(b.Time())}
	}
	return nil
}

// assertUnchanged compares cells only; time and random state are expected to
// move.
func assertUnchanged(b *engine.Board, initial []engine.Cell) error {
	cells := b.Cells()
	for i := range cells {
		if !reflect.DeepEqual(cells[i], initial[i]) {
			x, y := b.XY(i)
			return &AssertionError{
				Type:     AssertUnchanged,
				Expected: fmt.Sprintf("cell (%d,%d) as placed", x, y),
				Actual:   fmt.Sprintf("type %q state %q", b.TypeName(cells[i]), cells[i].State),
			}
		}
	}
	return nil
}

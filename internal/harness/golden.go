package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/cellgram/internal/compiler"
	"github.com/roach88/cellgram/internal/engine"
	"github.com/roach88/cellgram/internal/ir"
)

// Summary renders the outcome of a run as canonical JSON: name, times, type
// counts and every non-empty cell in index order. The random state is left
// out so summaries stay readable.
func Summary(name string, b *engine.Board) ([]byte, error) {
	counts := map[string]any{}
	for typeName, n := range b.TypeCounts() {
		counts[typeName] = n
	}

	cells := []any{}
	for i, c := range b.Cells() {
		typeName := b.TypeName(c)
		if typeName == compiler.EmptyType && c.State == "" && c.Meta == nil {
			continue
		}
		x, y := b.XY(i)
		cell := map[string]any{"x": x, "y": y, "type": typeName}
		if c.State != "" {
			cell["state"] = c.State
		}
		if c.Meta != nil {
			cell["meta"] = c.Meta
		}
		cells = append(cells, cell)
	}

	return ir.MarshalCanonical(map[string]any{
		"name":          name,
		"size":          b.Size(),
		"time":          b.Time(),
		"lastEventTime": b.LastEventTime(),
		"counts":        counts,
		"cells":         cells,
	})
}

// RunWithGolden executes a scenario and compares its summary against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check assertions; a summary that
// differs fails the test through goldie.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return result, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	summary, err := Summary(scenarioName, result.Board)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, summary)
	return nil
}

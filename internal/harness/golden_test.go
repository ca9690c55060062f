package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScenarios runs every scenario under testdata/scenarios and checks its
// assertions.
func TestScenarios(t *testing.T) {
	scenarios, err := LoadScenarioDir(scenarioDir)
	require.NoError(t, err)
	require.NotEmpty(t, scenarios)

	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			result, err := Run(s)
			require.NoError(t, err)
			assert.True(t, result.Passed, "errors: %v", result.Errors)
		})
	}
}

// TestGolden compares summaries of the scenarios whose outcome does not
// depend on random draws.
func TestGolden(t *testing.T) {
	for _, name := range []string{"sync_counter", "write_precondition", "command_ownership"} {
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario(filepath.Join(scenarioDir, name+".yaml"))
			require.NoError(t, err)

			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Passed, "errors: %v", result.Errors)
		})
	}
}

func TestSummary_SkipsEmptyCells(t *testing.T) {
	result, err := Run(mustParse(t, `
name: tiny
description: "One unknown cell"
size: 2
cells: [{x: 1, y: 1, type: zebra, state: z}]
assertions: [{type: unchanged}]
`))
	require.NoError(t, err)

	summary, err := Summary("tiny", result.Board)
	require.NoError(t, err)
	assert.Equal(t,
		`{"cells":[{"meta":{"type":"zebra"},"state":"z","type":"zebra","x":1,"y":1}],"counts":{"_":3,"zebra":1},"lastEventTime":0,"name":"tiny","size":2,"time":0}`,
		string(summary))
}

package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cellgram/internal/harness"
)

var scenariosDir = filepath.Join("..", "..", "testdata", "scenarios")

const syncScenario = `name: sync_flip
description: "A sync rule turns every a into b once per second"
grammar: '[{"type": "transform", "sync": 1000000, "lhs": [{"type": "a"}], "rhs": [{"type": "b"}]}]'
size: 2
cells:
  - {x: 0, y: 0, type: a}
  - {x: 1, y: 1, type: a}
evolve_seconds: 1
assertions:
  - {type: type_count, cell_type: b, count: 2}
`

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := execute(t, "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	_, err := execute(t, "test", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommandEmptyScenariosDir(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "test", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")

	out, err = execute(t, "--format", "json", "test", dir)
	require.NoError(t, err)
	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, resp.Data.Total)
}

func TestTestCommandRunsScenarios(t *testing.T) {
	out, err := execute(t, "test", scenariosDir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ command_ownership\n")
	assert.Contains(t, out, "✓ sync_counter\n")
	assert.Contains(t, out, "Test Summary: 4 passed, 0 failed, 4 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestCommandFilter(t *testing.T) {
	out, err := execute(t, "--format", "json", "test", scenariosDir, "--filter", "*_*")
	require.NoError(t, err)

	var resp struct {
		Data TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 3, resp.Data.Total)
	assert.Equal(t, 3, resp.Data.Passed)
	for _, s := range resp.Data.Scenarios {
		assert.NotEqual(t, "decay", s.Name)
	}
}

func TestTestCommandBadFilter(t *testing.T) {
	_, err := execute(t, "test", scenariosDir, "--filter", "[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandFailingScenario(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "wrong.yaml", `name: wrong
description: "Expects a cell that is not there"
size: 2
assertions:
  - {type: cell, x: 0, y: 0, cell_type: a}
`)
	writeFile(t, dir, "broken.yaml", "name: [")

	out, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ wrong\n")
	assert.Contains(t, out, `expected type "a" at (0,0)`)
	assert.Contains(t, out, "✗ broken.yaml\n  failed to load scenario")
	assert.Contains(t, out, "Test Summary: 0 passed, 2 failed, 2 total")
}

func TestTestCommandGoldenUpdateAndCompare(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "sync_flip.yaml", syncScenario)
	goldenPath := filepath.Join(dir, "golden", "sync_flip.golden")

	out, err := execute(t, "test", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ sync_flip (golden updated)")

	golden, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	s, err := harness.LoadScenario(filepath.Join(dir, "sync_flip.yaml"))
	require.NoError(t, err)
	result, err := harness.Run(s)
	require.NoError(t, err)
	want, err := harness.Summary("sync_flip", result.Board)
	require.NoError(t, err)
	assert.Equal(t, string(want), string(golden))

	// Scenarios under golden/ are never picked up.
	writeFile(t, filepath.Join(dir, "golden"), "ignored.yaml", "name: [")

	out, err = execute(t, "test", dir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")

	require.NoError(t, os.WriteFile(goldenPath, []byte(`{"name":"sync_flip"}`), 0644))
	out, err = execute(t, "test", dir)
	require.Error(t, err)
	assert.Contains(t, out, "board does not match golden file")
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("a", "b", "golden", "c.golden"), goldenFilePath(filepath.Join("a", "b", "c.yaml")))
}

package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cellgram/internal/compiler"
)

var moverGrammar = filepath.Join("..", "..", "testdata", "grammars", "mover.cue")

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestCompileGrammarFile(t *testing.T) {
	out, err := execute(t, "compile", moverGrammar)
	require.NoError(t, err)

	assert.Contains(t, out, "✓ Compiled 2 rule(s) over 2 type(s)")
	assert.Contains(t, out, "  a: 1 rule(s), rate 0/s, commands step, keys d\n")
	assert.Contains(t, out, "  b: 1 rule(s), rate 0/s, commands zap\n")
	assert.NotContains(t, out, "Sync:")
}

func TestCompileGrammarFileJSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "compile", moverGrammar)
	require.NoError(t, err)

	var resp struct {
		Status string            `json:"status"`
		Data   CompilationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, resp.Data.RuleCount)
	require.Len(t, resp.Data.Types, 2)
	assert.Equal(t, []string{"step"}, resp.Data.Types[0].Commands)
	assert.Len(t, resp.Data.GrammarHash, 64)
}

func TestCompileSyncAndWarnings(t *testing.T) {
	path := writeFile(t, t.TempDir(), "g.cue", `[
		{type: "transform", lhs: [{type: "a"}], rhs: [{type: "b"}], sync: 2000000},
		{type: "transform", lhs: [{type: "b"}], rhs: [{type: "a"}], rate: 1500000},
		{type: "inherit", child: "c", parents: ["d"]},
		{type: "inherit", child: "d", parents: ["c"]},
	]`)

	out, err := execute(t, "compile", path)
	require.NoError(t, err)
	assert.Contains(t, out, "  b: 1 rule(s), rate 1.5/s\n")
	assert.Contains(t, out, "Sync:\n  2/s every 2147483648 ticks: a\n")
	assert.Contains(t, out, "warning: ")
}

func TestCompileDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "rates.cue", "package grammar\n\n#fast: 2000000\n")
	writeFile(t, dir, "rules.cue", `package grammar

rules: [{type: "transform", lhs: [{type: "a"}], rhs: [{type: "b"}], rate: #fast}]
`)

	out, err := execute(t, "compile", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "  a: 1 rule(s), rate 2/s\n")
}

func TestCompileReportsEveryError(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.cue", `[
		{type: "transform", lhs: [{type: "a"}], rhs: [{type: "b"}], rate: -1},
		{type: "transform", lhs: [{type: "a"}], rhs: [{type: "b"}], sync: -2},
	]`)

	out, err := execute(t, "compile", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Compilation failed")
	assert.Contains(t, out, compiler.ErrNegativeRate+": rules[0].rate: rate -1 is negative")
	assert.Contains(t, out, compiler.ErrNegativeRate+": rules[1].sync: sync -2 is negative")
}

func TestCompileSyntaxErrorJSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "broken.cue", "[{")

	out, err := execute(t, "--format", "json", "compile", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeBuildFailed, resp.Error.Code)
}

func TestCompileMissingGrammar(t *testing.T) {
	out, err := execute(t, "compile", filepath.Join(t.TempDir(), "nope.cue"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E005]")
}

func TestCompileEmptyDirectory(t *testing.T) {
	out, err := execute(t, "compile", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E003]")
}

func TestCompileWritesRuleList(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "rules.json")

	out, err := execute(t, "compile", moverGrammar, "--output", output)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote rule list to "+output)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"command": "step"`)

	// The exported list compiles to the same types.
	again, err := execute(t, "compile", output)
	require.NoError(t, err)
	assert.Contains(t, again, "  a: 1 rule(s), rate 0/s, commands step, keys d\n")
}

func TestSplitCode(t *testing.T) {
	code, msg := splitCode("[E104] rate -1 is negative")
	assert.Equal(t, "E104", code)
	assert.Equal(t, "rate -1 is negative", msg)

	code, msg = splitCode("no code here")
	assert.Empty(t, code)
	assert.Equal(t, "no code here", msg)
}

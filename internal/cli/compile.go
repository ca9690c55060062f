package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/cellgram/internal/compiler"
	"github.com/roach88/cellgram/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // rule list output path
}

// TypeSummary describes the compiled rules of one type.
type TypeSummary struct {
	Name     string   `json:"name"`
	Rules    int      `json:"rules"`
	Rate     string   `json:"rate"` // declared asynchronous events per second per cell
	Commands []string `json:"commands,omitempty"`
	Keys     []string `json:"keys,omitempty"`
}

// SyncSummary describes one sync category.
type SyncSummary struct {
	Rate   string   `json:"rate"`
	Period int64    `json:"period_ticks"`
	Types  []string `json:"types"`
}

// CompilationResult is the report of a successful compile.
type CompilationResult struct {
	Path        string                        `json:"path"`
	GrammarHash string                        `json:"grammar_hash"`
	RuleCount   int                           `json:"rule_count"`
	Types       []TypeSummary                 `json:"types"`
	Sync        []SyncSummary                 `json:"sync"`
	Warnings    []compiler.InheritanceWarning `json:"warnings,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <grammar>",
		Short: "Compile a grammar and report its types",
		Long: `Compile a CUE grammar file, or a directory holding one CUE package.

Every schema error is reported, not just the first. A successful compile
lists each type with its rule count, declared rate, commands and keys, the
sync categories and any inheritance cycles. --output writes the flattened
rule list as JSON.

Exit codes:
  0 - Grammar compiled
  1 - Grammar has errors
  2 - Command error (grammar not found, output not writable)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the flattened rule list to this file")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(cmd, opts.RootOptions)

	src, err := LoadGrammar(path)
	if err != nil {
		return outputCommandError(formatter, err)
	}
	formatter.Progressf("Loaded %d CUE file(s) from %s", src.FileCount, path)

	g, errs := compileGrammar(src.Source)
	if len(errs) > 0 {
		return outputCompileErrors(formatter, errs)
	}

	result := summarizeGrammar(path, g)

	if opts.Output != "" {
		if err := writeRuleList(g, opts.Output); err != nil {
			return outputCommandError(formatter, &LoadError{Code: ErrCodeWriteFailed, Message: fmt.Sprintf("writing output file: %v", err)})
		}
	}

	return outputCompileSuccess(formatter, result, opts.Output)
}

// compileGrammar compiles source, collecting every validation error rather
// than stopping at the first.
func compileGrammar(source string) (*compiler.Grammar, []*LoadError) {
	rules, positions, err := compiler.Parse(source)
	if err != nil {
		return nil, []*LoadError{convertCompileError(err)}
	}

	if verrs := compiler.ValidateRules(rules); len(verrs) > 0 {
		errs := make([]*LoadError, len(verrs))
		for i, v := range verrs {
			errs[i] = &LoadError{Code: v.Code, Message: fmt.Sprintf("%s: %s", v.Field, v.Message)}
			if v.Rule > 0 && v.Rule <= len(positions) {
				errs[i].Pos = positions[v.Rule-1]
			}
		}
		return nil, errs
	}

	g, err := compiler.Compile(rules)
	if err != nil {
		return nil, []*LoadError{convertCompileError(err)}
	}
	g.Source = source
	return g, nil
}

// summarizeGrammar builds the compile report, skipping the empty and unknown
// types when they have no rules.
func summarizeGrammar(path string, g *compiler.Grammar) CompilationResult {
	result := CompilationResult{
		Path:        path,
		GrammarHash: ir.GrammarHash(g.Source),
		Types:       []TypeSummary{},
		Sync:        []SyncSummary{},
		Warnings:    g.Warnings,
	}

	for t, name := range g.Types {
		summary := TypeSummary{
			Name:     name,
			Commands: sortedKeys(g.Command[t]),
			Keys:     sortedKeys(g.Key[t]),
		}
		var rate int64
		for _, r := range g.Transform[t] {
			summary.Rules++
			if r.Rate == nil {
				rate += compiler.DefaultRate
			} else {
				rate += *r.Rate
			}
		}
		for _, m := range g.SyncCategoriesByType[t] {
			summary.Rules += len(g.SyncTransform[m][t])
		}
		summary.Rate = compiler.RateString(rate)

		if summary.Rules == 0 && (name == compiler.EmptyType || t == g.UnknownType()) {
			continue
		}
		result.RuleCount += summary.Rules
		result.Types = append(result.Types, summary)
	}

	for m, rate := range g.SyncRates {
		names := make([]string, len(g.TypesBySyncCategory[m]))
		for i, t := range g.TypesBySyncCategory[m] {
			names[i] = g.Types[t]
		}
		result.Sync = append(result.Sync, SyncSummary{
			Rate:   compiler.RateString(rate),
			Period: g.SyncPeriods[m],
			Types:  names,
		})
	}
	return result
}

func sortedKeys(m map[string][]*compiler.Rule) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result CompilationResult, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled %d rule(s) over %d type(s)\n\n", result.RuleCount, len(result.Types))

	if len(result.Types) > 0 {
		fmt.Fprintln(w, "Types:")
		for _, t := range result.Types {
			fmt.Fprintf(w, "  %s: %d rule(s), rate %s/s", t.Name, t.Rules, t.Rate)
			if len(t.Commands) > 0 {
				fmt.Fprintf(w, ", commands %s", strings.Join(t.Commands, " "))
			}
			if len(t.Keys) > 0 {
				fmt.Fprintf(w, ", keys %s", strings.Join(t.Keys, " "))
			}
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w)
	}

	if len(result.Sync) > 0 {
		fmt.Fprintln(w, "Sync:")
		for _, s := range result.Sync {
			fmt.Fprintf(w, "  %s/s every %d ticks: %s\n", s.Rate, s.Period, strings.Join(s.Types, " "))
		}
		fmt.Fprintln(w)
	}

	for _, warning := range result.Warnings {
		fmt.Fprintf(w, "%s: %s\n", warning.Level, warning.Message)
	}

	if outputFile != "" {
		fmt.Fprintf(w, "Wrote rule list to %s\n", outputFile)
	}
	return nil
}

// outputCompileErrors reports every grammar error. Bad grammars are
// failures (exit 1), not command errors.
func outputCompileErrors(formatter *OutputFormatter, errs []*LoadError) error {
	if formatter.Format == "json" {
		cliErrors := make([]CLIError, len(errs))
		for i, e := range errs {
			cliErrors[i] = CLIError{Code: e.Code, Message: e.Message}
			if e.Pos.IsValid() {
				cliErrors[i].Details = e.Pos.String()
			}
		}
		if err := writeJSON(formatter.Writer, CLIResponse{
			Status: "error",
			Error:  &cliErrors[0],
			Data:   cliErrors,
		}); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
	fmt.Fprintln(formatter.Writer)
	for _, e := range errs {
		if e.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column())
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", e.Code, e.Message)
	}
	return NewExitError(ExitFailure, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
}

// writeRuleList writes the flattened rules as indented JSON. Compiling the
// file again yields the same per-type rules.
func writeRuleList(g *compiler.Grammar, filename string) error {
	rules := compiler.RuleList(g)
	if rules == nil {
		rules = []*ir.Rule{}
	}
	data, err := json.MarshalIndent(rules, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling rules: %w", err)
	}
	return os.WriteFile(filename, append(data, '\n'), 0644)
}

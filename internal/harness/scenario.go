package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/cellgram/internal/engine"
	"github.com/roach88/cellgram/internal/ir"
)

// Scenario is a board conformance test: a grammar, an initial board, a list
// of moves, a horizon and assertions on the resulting board.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Grammar is inline grammar source (CUE; JSON is valid CUE).
	Grammar string `yaml:"grammar,omitempty"`

	// GrammarFile is a grammar file path, relative to the scenario file.
	// Mutually exclusive with Grammar.
	GrammarFile string `yaml:"grammar_file,omitempty"`

	Size  int     `yaml:"size"`
	Seed  *uint32 `yaml:"seed,omitempty"`
	Owner string  `yaml:"owner,omitempty"`

	// Policy is the command policy: "first" (default) or "all".
	Policy string `yaml:"policy,omitempty"`

	// Cells are placed on the empty board before anything runs.
	Cells []CellSpec `yaml:"cells,omitempty"`

	Moves []MoveSpec `yaml:"moves,omitempty"`

	// EvolveTo is the horizon in ticks; EvolveSeconds the same in seconds.
	// Without either the horizon is the time of the last move.
	EvolveTo      *int64   `yaml:"evolve_to,omitempty"`
	EvolveSeconds *float64 `yaml:"evolve_seconds,omitempty"`

	// HardStop commits the horizon as an event time.
	HardStop bool `yaml:"hard_stop,omitempty"`

	Assertions []Assertion `yaml:"assertions"`
}

// CellSpec places or writes one cell.
type CellSpec struct {
	X     int            `yaml:"x"`
	Y     int            `yaml:"y"`
	ID    string         `yaml:"id,omitempty"`
	Type  string         `yaml:"type"`
	State string         `yaml:"state,omitempty"`
	Meta  map[string]any `yaml:"meta,omitempty"`

	// Preconditions, only meaningful inside write moves.
	OldType  *string `yaml:"old_type,omitempty"`
	OldState *string `yaml:"old_state,omitempty"`
}

// MoveSpec is one move. Time is in ticks; Seconds is the same in seconds.
type MoveSpec struct {
	Type    string     `yaml:"type"`
	Time    int64      `yaml:"time,omitempty"`
	Seconds *float64   `yaml:"seconds,omitempty"`
	User    string     `yaml:"user,omitempty"`
	ID      string     `yaml:"id,omitempty"`
	Dir     string     `yaml:"dir,omitempty"`
	Command string     `yaml:"command,omitempty"`
	Key     string     `yaml:"key,omitempty"`
	Cells   []CellSpec `yaml:"cells,omitempty"`
	Grammar string     `yaml:"grammar,omitempty"`
}

// Assertion checks the board after the run.
type Assertion struct {
	// Type is one of cell, type_count, time, unchanged.
	Type string `yaml:"type"`

	// cell: the cell at (X, Y), or the cell holding ID. With both, the
	// cell holding ID must be at (X, Y).
	X        *int    `yaml:"x,omitempty"`
	Y        *int    `yaml:"y,omitempty"`
	ID       string  `yaml:"id,omitempty"`
	CellType string  `yaml:"cell_type,omitempty"`
	State    *string `yaml:"state,omitempty"`
	Owner    *string `yaml:"owner,omitempty"`

	// type_count: exact Count, or bounds Min and Max.
	Count *int `yaml:"count,omitempty"`
	Min   *int `yaml:"min,omitempty"`
	Max   *int `yaml:"max,omitempty"`

	// time: board time in ticks or seconds.
	Ticks   *int64   `yaml:"ticks,omitempty"`
	Seconds *float64 `yaml:"seconds,omitempty"`
}

// Assertion type constants.
const (
	AssertCell      = "cell"
	AssertTypeCount = "type_count"
	AssertTime      = "time"
	AssertUnchanged = "unchanged"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	s, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if s.GrammarFile != "" {
		grammarPath := s.GrammarFile
		if !filepath.IsAbs(grammarPath) {
			grammarPath = filepath.Join(filepath.Dir(path), grammarPath)
		}
		src, err := os.ReadFile(grammarPath)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to read grammar file: %w", path, err)
		}
		s.Grammar = string(src)
	}
	return s, nil
}

// ParseScenario parses and validates scenario YAML. A grammar_file is left
// unresolved.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

// LoadScenarioDir loads every *.yaml and *.yml file in dir, sorted by file
// name.
func LoadScenarioDir(dir string) ([]*Scenario, error) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}
	slices.Sort(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Grammar != "" && s.GrammarFile != "" {
		return fmt.Errorf("grammar and grammar_file are mutually exclusive")
	}
	if s.Size <= 0 {
		return fmt.Errorf("size must be positive")
	}
	if s.EvolveTo != nil && s.EvolveSeconds != nil {
		return fmt.Errorf("evolve_to and evolve_seconds are mutually exclusive")
	}
	if _, err := engine.ParseCommandPolicy(s.Policy); err != nil {
		return err
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, m := range s.Moves {
		switch ir.MoveType(m.Type) {
		case ir.MoveCommand:
			if m.ID == "" {
				return fmt.Errorf("moves[%d]: id is required for command", i)
			}
			if m.Command == "" && m.Key == "" {
				return fmt.Errorf("moves[%d]: command or key is required", i)
			}
		case ir.MoveWrite:
			if len(m.Cells) == 0 {
				return fmt.Errorf("moves[%d]: cells are required for write", i)
			}
		case ir.MoveGrammar:
		default:
			return fmt.Errorf("moves[%d]: unknown move type %q", i, m.Type)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertCell:
		if a.ID == "" && (a.X == nil || a.Y == nil) {
			return fmt.Errorf("assertions[%d]: cell needs id or x and y", index)
		}
		if a.CellType == "" && a.State == nil && a.Owner == nil && (a.ID == "" || a.X == nil) {
			return fmt.Errorf("assertions[%d]: cell asserts nothing", index)
		}
	case AssertTypeCount:
		if a.CellType == "" {
			return fmt.Errorf("assertions[%d]: cell_type is required for type_count", index)
		}
		if a.Count == nil && a.Min == nil && a.Max == nil {
			return fmt.Errorf("assertions[%d]: count, min or max is required for type_count", index)
		}
	case AssertTime:
		if (a.Ticks == nil) == (a.Seconds == nil) {
			return fmt.Errorf("assertions[%d]: time needs exactly one of ticks or seconds", index)
		}
	case AssertUnchanged:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

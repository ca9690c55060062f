package harness

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/roach88/cellgram/internal/compiler"
	"github.com/roach88/cellgram/internal/engine"
	"github.com/roach88/cellgram/internal/ir"
)

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Compile the grammar and create an empty board
//  2. Place the initial cells
//  3. Evolve to the horizon, applying moves at their times
//  4. Evaluate assertions
//
// An error means the scenario could not run; failed assertions are reported
// in the result.
func Run(scenario *Scenario) (*Result, error) {
	return RunWithLogger(scenario, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// RunWithLogger is Run with board logs sent to logger.
func RunWithLogger(scenario *Scenario, logger *slog.Logger) (*Result, error) {
	b, err := buildBoard(scenario, logger)
	if err != nil {
		return nil, err
	}
	initial := b.Cells()

	moves, err := convertMoves(scenario.Moves)
	if err != nil {
		return nil, err
	}

	result := NewResult(b)
	if err := b.EvolveAndProcess(horizon(scenario, moves), moves, scenario.HardStop); err != nil {
		result.AddError(err.Error())
	}

	for i, a := range scenario.Assertions {
		if err := evaluate(b, initial, a); err != nil {
			result.AddError(fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return result, nil
}

func buildBoard(s *Scenario, logger *slog.Logger) (*engine.Board, error) {
	g, err := compiler.CompileSource(s.Grammar)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: compile grammar: %w", s.Name, err)
	}
	policy, err := engine.ParseCommandPolicy(s.Policy)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}

	opts := []engine.BoardOption{
		engine.WithOwner(s.Owner),
		engine.WithCommandPolicy(policy),
		engine.WithLogger(logger),
	}
	if s.Seed != nil {
		opts = append(opts, engine.WithSeed(*s.Seed))
	}
	b, err := engine.NewBoard(s.Size, g, opts...)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}

	for i, c := range s.Cells {
		meta, err := cellMeta(c)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: cells[%d]: %w", s.Name, i, err)
		}
		b.SetCellNamed(c.X, c.Y, c.Type, c.State, meta)
	}
	return b, nil
}

// horizon is the evolve target: evolve_to, evolve_seconds, or the time of
// the last move.
func horizon(s *Scenario, moves []ir.Move) int64 {
	switch {
	case s.EvolveTo != nil:
		return *s.EvolveTo
	case s.EvolveSeconds != nil:
		return secondsToTicks(*s.EvolveSeconds)
	}
	var t int64
	for _, m := range moves {
		t = max(t, m.Time)
	}
	return t
}

func secondsToTicks(s float64) int64 {
	return int64(math.Round(s * float64(engine.TicksPerSecond)))
}

func convertMoves(specs []MoveSpec) ([]ir.Move, error) {
	moves := make([]ir.Move, 0, len(specs))
	for i, spec := range specs {
		m := ir.Move{
			Type:    ir.MoveType(spec.Type),
			Time:    spec.Time,
			User:    spec.User,
			ID:      spec.ID,
			Dir:     spec.Dir,
			Command: spec.Command,
			Key:     spec.Key,
			Grammar: spec.Grammar,
		}
		if spec.Seconds != nil {
			m.Time = secondsToTicks(*spec.Seconds)
		}
		for j, c := range spec.Cells {
			meta, err := cellMeta(c)
			if err != nil {
				return nil, fmt.Errorf("moves[%d].cells[%d]: %w", i, j, err)
			}
			m.Cells = append(m.Cells, ir.CellWrite{
				X:        c.X,
				Y:        c.Y,
				ID:       c.ID,
				OldType:  c.OldType,
				OldState: c.OldState,
				Type:     c.Type,
				State:    c.State,
				Meta:     meta,
			})
		}
		moves = append(moves, m)
	}
	return moves, nil
}

// cellMeta converts YAML metadata to IR. A cell placed with an id but no
// id in meta gets it added.
func cellMeta(c CellSpec) (ir.IRObject, error) {
	meta, err := toIRObject(c.Meta)
	if err != nil {
		return nil, err
	}
	if c.ID != "" && c.Type != "" {
		if _, ok := meta.String(ir.MetaID); !ok {
			meta = meta.With(ir.MetaID, ir.IRString(c.ID))
		}
	}
	return meta, nil
}

// toIRObject converts decoded YAML to IR values by way of JSON, which rejects
// what IR cannot hold (floats).
func toIRObject(m map[string]any) (ir.IRObject, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("meta: %w", err)
	}
	var obj ir.IRObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("meta: %w", err)
	}
	return obj, nil
}

// Package harness runs board conformance scenarios.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: sync_counter
//	description: "A sync rule fires once per cell per period"
//	grammar: |
//	  [{"type": "transform", "sync": 1000000, "lhs": [{"type": "a"}], "rhs": [{"type": "b"}]}]
//	size: 4
//	seed: 42
//	owner: root
//	cells:
//	  - {x: 0, y: 0, type: a, state: "!", id: hero}
//	moves:
//	  - {type: command, seconds: 0.5, id: hero, command: step, dir: E}
//	  - type: write
//	    seconds: 1
//	    user: root
//	    cells: [{x: 1, y: 1, type: b, old_type: _}]
//	evolve_seconds: 2
//	assertions:
//	  - {type: cell, x: 1, y: 0, cell_type: a}
//	  - {type: type_count, cell_type: b, count: 1}
//	  - {type: time, seconds: 2}
//
// grammar_file may replace grammar; its path is relative to the scenario.
//
// # Assertion Types
//
//   - cell: type, state or owner of the cell at (x, y) or holding id
//   - type_count: exact count, or min/max bounds, of cells of a type
//   - time: board time in ticks or seconds
//   - unchanged: every cell is as placed before the run
//
// # Deterministic Testing
//
// Boards evolve from an explicit seed (default 5489), so a scenario always
// produces the same board. RunWithGolden compares a canonical summary of it
// against testdata/golden/<name>.golden with goldie.
package harness

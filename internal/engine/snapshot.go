package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"

	"github.com/roach88/cellgram/internal/compiler"
	"github.com/roach88/cellgram/internal/ir"
	"github.com/roach88/cellgram/internal/rng"
)

// snapshotJSON is the decoded form of a board snapshot.
//
// Times are accepted as decimal strings or plain numbers. A snapshot without
// rng may carry a seed instead; one with neither uses the configured seed. A
// missing cell list means an all-empty board.
type snapshotJSON struct {
	Time          ticks             `json:"time"`
	LastEventTime ticks             `json:"lastEventTime"`
	RNG           string            `json:"rng"`
	Seed          *uint32           `json:"seed"`
	Owner         string            `json:"owner"`
	Grammar       string            `json:"grammar"`
	Types         []string          `json:"types"`
	Size          int               `json:"size"`
	Cell          []json.RawMessage `json:"cell"`
}

// ticks is an int64 that decodes from a JSON string or number. Snapshots
// write it as a string since tick counts exceed 2^53.
type ticks int64

func (t *ticks) UnmarshalJSON(data []byte) error {
	s := string(bytes.Trim(data, `"`))
	if s == "null" || s == "" {
		*t = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("time %s: %w", data, err)
	}
	*t = ticks(n)
	return nil
}

// Snapshot encodes the board as canonical JSON:
//
//	{"cell":[...],"grammar":"...","lastEventTime":"0","owner":"...","rng":"...","size":N,"time":"0","types":[...]}
//
// types lists only the type names some cell uses: grammar types in grammar
// order, then names of unknown types in sorted order. Each cell is a bare
// index into types, or [index, state] or [index, state, meta].
func (b *Board) Snapshot() ([]byte, error) {
	names := make([]string, len(b.cells))
	used := make([]bool, len(b.grammar.Types))
	unknown := map[string]bool{}
	for i, c := range b.cells {
		names[i] = b.TypeName(c)
		if c.Type == b.grammar.UnknownType() && names[i] != compiler.UnknownType {
			unknown[names[i]] = true
		} else {
			used[c.Type] = true
		}
	}

	var types []string
	for t, name := range b.grammar.Types {
		if used[t] {
			types = append(types, name)
		}
	}
	for _, name := range sortedKeys(unknown) {
		types = append(types, name)
	}
	position := make(map[string]int, len(types))
	for i, name := range types {
		if _, dup := position[name]; !dup {
			position[name] = i
		}
	}

	cells := make(ir.IRArray, len(b.cells))
	for i, c := range b.cells {
		t := ir.IRInt(position[names[i]])
		meta := c.Meta.Compact()
		if c.Type == b.grammar.UnknownType() {
			meta = meta.Without(ir.MetaType)
		}
		switch {
		case meta != nil:
			cells[i] = ir.IRArray{t, ir.IRString(c.State), meta}
		case c.State != "":
			cells[i] = ir.IRArray{t, ir.IRString(c.State)}
		default:
			cells[i] = t
		}
	}

	typeList := make(ir.IRArray, len(types))
	for i, name := range types {
		typeList[i] = ir.IRString(name)
	}
	obj := ir.IRObject{
		"time":          ir.IRString(strconv.FormatInt(b.time, 10)),
		"lastEventTime": ir.IRString(strconv.FormatInt(b.lastEventTime, 10)),
		"rng":           ir.IRString(b.rng.String()),
		"grammar":       ir.IRString(b.grammar.Source),
		"types":         typeList,
		"size":          ir.IRInt(b.size),
		"cell":          cells,
	}
	if b.owner != "" {
		obj["owner"] = ir.IRString(b.owner)
	}
	out, err := ir.MarshalCanonical(obj)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return out, nil
}

// SnapshotHash returns the content hash of the board's canonical snapshot.
func (b *Board) SnapshotHash() (string, error) {
	data, err := b.Snapshot()
	if err != nil {
		return "", err
	}
	return ir.SnapshotHash(data), nil
}

// LoadBoard decodes a snapshot. The size comes from the snapshot unless
// WithSize is given; a cell list of any other length than size² fails with
// SIZE_MISMATCH. The owner likewise comes from the snapshot unless WithOwner
// overrides it.
//
// A grammar that fails to compile does not fail the load: the board runs the
// empty grammar, every cell becomes unknown, and GrammarError reports why.
func LoadBoard(data []byte, opts ...BoardOption) (*Board, error) {
	var snap snapshotJSON
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, badSnapshot("decode: %v", err)
	}

	cfg := newConfig(append([]BoardOption{WithSize(snap.Size), WithOwner(snap.Owner)}, opts...))
	if cfg.Size <= 0 {
		return nil, badSnapshot("size must be positive, got %d", cfg.Size)
	}
	if snap.Cell != nil && len(snap.Cell) != cfg.Size*cfg.Size {
		return nil, NewSizeMismatchError(len(snap.Cell), cfg.Size)
	}

	g, grammarErr := compiler.CompileSource(snap.Grammar)
	b, err := newBoard(cfg, g)
	if err != nil {
		return nil, err
	}
	b.grammarErr = grammarErr
	if grammarErr != nil {
		b.log.Warn("snapshot grammar failed to compile", "error", grammarErr)
	}

	b.time = int64(snap.Time)
	b.lastEventTime = int64(snap.LastEventTime)
	switch {
	case snap.RNG != "":
		t, err := rng.Parse(snap.RNG)
		if err != nil {
			return nil, badSnapshot("rng: %v", err)
		}
		b.rng = t
	case snap.Seed != nil:
		b.rng.Seed(*snap.Seed)
	}

	for i, raw := range snap.Cell {
		typeIndex, state, meta, err := decodeCell(raw)
		if err != nil {
			return nil, badSnapshot("cell %d: %v", i, err)
		}
		if typeIndex < 0 || typeIndex >= len(snap.Types) {
			return nil, badSnapshot("cell %d: type index %d out of range", i, typeIndex)
		}
		t, meta := b.resolveType(snap.Types[typeIndex], meta)
		b.setCellByIndex(i, Cell{Type: t, State: state, Meta: meta})
	}
	return b, nil
}

// decodeCell reads n, [n], [n, state] or [n, state, meta].
func decodeCell(raw json.RawMessage) (int, string, ir.IRObject, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		var n int
		err := json.Unmarshal(raw, &n)
		return n, "", nil, err
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return 0, "", nil, err
	}
	if len(parts) == 0 || len(parts) > 3 {
		return 0, "", nil, fmt.Errorf("want 1 to 3 elements, got %d", len(parts))
	}
	var (
		n     int
		state string
		meta  ir.IRObject
	)
	if err := json.Unmarshal(parts[0], &n); err != nil {
		return 0, "", nil, fmt.Errorf("type index: %w", err)
	}
	if len(parts) > 1 {
		if err := json.Unmarshal(parts[1], &state); err != nil {
			return 0, "", nil, fmt.Errorf("state: %w", err)
		}
	}
	if len(parts) > 2 {
		if err := json.Unmarshal(parts[2], &meta); err != nil {
			return 0, "", nil, fmt.Errorf("meta: %w", err)
		}
	}
	return n, state, meta.Compact(), nil
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// TypeCounts returns the number of cells of each type name in use. Unknown
// cells count under their recorded names.
func (b *Board) TypeCounts() map[string]int {
	counts := map[string]int{}
	for _, c := range b.cells {
		counts[b.TypeName(c)]++
	}
	return counts
}

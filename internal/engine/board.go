package engine

import (
	"fmt"
	"log/slog"
	"math/bits"

	"github.com/roach88/cellgram/internal/compiler"
	"github.com/roach88/cellgram/internal/ir"
	"github.com/roach88/cellgram/internal/rankset"
	"github.com/roach88/cellgram/internal/rng"
)

// MaxStateLen is the longest cell state; longer writes are truncated.
const MaxStateLen = 64

// Cell is one grid position. Type indexes the board grammar's Types.
type Cell struct {
	Type  int
	State string
	Meta  ir.IRObject
}

// ID returns the cell's unique id, or "".
func (c Cell) ID() string {
	id, _ := c.Meta.String(ir.MetaID)
	return id
}

// Owner returns the user owning the cell, or "".
func (c Cell) Owner() string {
	owner, _ := c.Meta.String(ir.MetaOwner)
	return owner
}

// CommandPolicy selects how many rules a command move applies.
type CommandPolicy int

const (
	// CommandFirstSuccess tries the named rules in order and stops at the
	// first one that applies.
	CommandFirstSuccess CommandPolicy = iota
	// CommandAll attempts every named rule in order.
	CommandAll
)

func (p CommandPolicy) String() string {
	switch p {
	case CommandFirstSuccess:
		return "first"
	case CommandAll:
		return "all"
	default:
		return fmt.Sprintf("CommandPolicy(%d)", int(p))
	}
}

// ParseCommandPolicy parses "first" or "all".
func ParseCommandPolicy(s string) (CommandPolicy, error) {
	switch s {
	case "first", "":
		return CommandFirstSuccess, nil
	case "all":
		return CommandAll, nil
	default:
		return 0, fmt.Errorf("unknown command policy %q (want first or all)", s)
	}
}

// Config holds board construction parameters.
type Config struct {
	// Size is the grid side length. Zero means: take it from the snapshot.
	Size int

	// Owner is the board owner. Commands and writes by the owner bypass
	// cell ownership, and only the owner may replace the grammar.
	Owner string

	// Seed seeds the random source of a new board.
	Seed uint32

	CommandPolicy CommandPolicy
	Logger        *slog.Logger
}

// BoardOption configures a board.
type BoardOption func(*Config)

// WithSize sets the grid side length.
func WithSize(size int) BoardOption {
	return func(c *Config) { c.Size = size }
}

// WithOwner sets the board owner.
func WithOwner(owner string) BoardOption {
	return func(c *Config) { c.Owner = owner }
}

// WithSeed seeds the random source of a new board.
//
// Default: rng.DefaultSeed
func WithSeed(seed uint32) BoardOption {
	return func(c *Config) { c.Seed = seed }
}

// WithCommandPolicy sets how command moves apply their rules.
//
// Default: CommandFirstSuccess
func WithCommandPolicy(p CommandPolicy) BoardOption {
	return func(c *Config) { c.CommandPolicy = p }
}

// WithLogger sets the logger for dropped moves and index warnings.
//
// Default: slog.Default()
func WithLogger(l *slog.Logger) BoardOption {
	return func(c *Config) { c.Logger = l }
}

func newConfig(opts []BoardOption) Config {
	cfg := Config{Seed: rng.DefaultSeed}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg
}

// Board is a toroidal grid of cells evolving under a compiled grammar.
//
// INVARIANTS:
//   - every position is in exactly one byType set, the one for its type
//   - byID holds exactly the positions of cells with a unique meta id
//   - lastEventTime <= time
//
// A Board is not safe for concurrent use.
type Board struct {
	size          int
	cells         []Cell
	time          int64
	lastEventTime int64

	grammar    *compiler.Grammar
	grammarErr error
	rng        *rng.Twister
	owner      string

	byType []*rankset.Set
	byID   map[string]int

	policy CommandPolicy
	log    *slog.Logger
}

// NewBoard creates an all-empty board of the given size.
func NewBoard(size int, g *compiler.Grammar, opts ...BoardOption) (*Board, error) {
	opts = append([]BoardOption{WithSize(size)}, opts...)
	cfg := newConfig(opts)
	if g == nil {
		g = compiler.Empty()
	}
	return newBoard(cfg, g)
}

func newBoard(cfg Config, g *compiler.Grammar) (*Board, error) {
	if cfg.Size <= 0 {
		return nil, fmt.Errorf("board size must be positive, got %d", cfg.Size)
	}
	b := &Board{
		size:    cfg.Size,
		cells:   make([]Cell, cfg.Size*cfg.Size),
		grammar: g,
		rng:     rng.New(cfg.Seed),
		owner:   cfg.Owner,
		byID:    map[string]int{},
		policy:  cfg.CommandPolicy,
		log:     cfg.Logger,
	}
	if err := b.resetIndex(); err != nil {
		return nil, err
	}
	return b, nil
}

// indexDomain is the smallest power of two holding size² positions.
func (b *Board) indexDomain() int {
	n := len(b.cells)
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

// resetIndex rebuilds byType and byID from the cells.
func (b *Board) resetIndex() error {
	domain := b.indexDomain()
	b.byType = make([]*rankset.Set, len(b.grammar.Types))
	for t := range b.byType {
		s, err := rankset.New(domain, false)
		if err != nil {
			return fmt.Errorf("type index: %w", err)
		}
		b.byType[t] = s
	}
	b.byID = map[string]int{}
	for i, c := range b.cells {
		b.byType[c.Type].Add(i)
		if id := c.ID(); id != "" {
			b.byID[id] = i
		}
	}
	return nil
}

// Size returns the grid side length.
func (b *Board) Size() int { return b.size }

// Time returns the simulated time in ticks (2^32 per second).
func (b *Board) Time() int64 { return b.time }

// LastEventTime returns the time of the last committed event. Evolution
// resumes from here.
func (b *Board) LastEventTime() int64 { return b.lastEventTime }

// Owner returns the board owner.
func (b *Board) Owner() string { return b.owner }

// Grammar returns the compiled grammar.
func (b *Board) Grammar() *compiler.Grammar { return b.grammar }

// GrammarError returns the error from compiling the current grammar source,
// if any. A board with a broken grammar runs with the empty grammar.
func (b *Board) GrammarError() error { return b.grammarErr }

// RNG returns the board's random source.
func (b *Board) RNG() *rng.Twister { return b.rng }

// Index returns the cell index of (x, y), wrapping both coordinates.
func (b *Board) Index(x, y int) int {
	s := b.size
	return ((y%s+s)%s)*s + (x%s+s)%s
}

// XY returns the coordinates of a cell index.
func (b *Board) XY(index int) (x, y int) {
	return index % b.size, index / b.size
}

// Cell returns the cell at (x, y), wrapping both coordinates.
func (b *Board) Cell(x, y int) Cell { return b.cells[b.Index(x, y)] }

// CellAt returns the cell at an index.
func (b *Board) CellAt(index int) Cell { return b.cells[index] }

// Cells returns a copy of the grid in index order.
func (b *Board) Cells() []Cell {
	out := make([]Cell, len(b.cells))
	copy(out, b.cells)
	return out
}

// TypeName returns the name of a cell's type. Cells of the unknown type
// report the name recorded in their metadata.
func (b *Board) TypeName(c Cell) string {
	if c.Type == b.grammar.UnknownType() {
		if name, ok := c.Meta.String(ir.MetaType); ok {
			return name
		}
	}
	return b.grammar.Types[c.Type]
}

// CountByType returns the number of cells of a type.
func (b *Board) CountByType(t int) int { return b.byType[t].Total() }

// CellsOfType returns the indices of all cells of a type, ascending.
func (b *Board) CellsOfType(t int) []int { return b.byType[t].Elements() }

// CellByID returns the index of the cell holding id.
func (b *Board) CellByID(id string) (int, bool) {
	i, ok := b.byID[id]
	return i, ok
}

// SetCell writes a cell at (x, y), wrapping both coordinates.
func (b *Board) SetCell(x, y int, c Cell) {
	b.setCellByIndex(b.Index(x, y), c)
}

// SetCellNamed writes a cell at (x, y) by type name. An empty name is the
// empty type; names the grammar does not define keep their name in meta.
func (b *Board) SetCellNamed(x, y int, typeName, state string, meta ir.IRObject) {
	b.setNamed(b.Index(x, y), typeName, state, meta)
}

func (b *Board) setNamed(index int, name, state string, meta ir.IRObject) {
	if name == "" {
		name = compiler.EmptyType
	}
	t, meta := b.resolveType(name, meta.Compact())
	b.setCellByIndex(index, Cell{Type: t, State: state, Meta: meta})
}

// setCellByIndex is the only writer of b.cells after construction; it keeps
// byType and byID consistent.
func (b *Board) setCellByIndex(index int, c Cell) {
	if len(c.State) > MaxStateLen {
		c.State = c.State[:MaxStateLen]
	}
	old := b.cells[index]
	if c.Type != old.Type {
		b.byType[old.Type].Remove(index)
		b.byType[c.Type].Add(index)
	}

	oldID, newID := old.ID(), c.ID()
	if oldID != "" && oldID != newID && b.byID[oldID] == index {
		delete(b.byID, oldID)
	}
	if newID != "" && newID != oldID {
		if prev, ok := b.byID[newID]; ok && prev != index {
			b.clearID(prev, newID)
		}
		b.byID[newID] = index
	}
	b.cells[index] = c
}

// clearID removes id from the cell at index, which the id index says holds
// it. At most one cell can hold a given id.
func (b *Board) clearID(index int, id string) {
	prev := b.cells[index]
	held := prev.ID()
	if held == id {
		prev.Meta = prev.Meta.Without(ir.MetaID)
		b.cells[index] = prev
		return
	}
	x, y := b.XY(index)
	err := NewIDMismatchError(x, y, b.TypeName(prev), held, id)
	b.log.Error("id index mismatch", "error", err, "x", x, "y", y)
}

// resolveType maps a type name onto the grammar. Names the grammar does not
// define land in the unknown type with the name kept in meta.
func (b *Board) resolveType(name string, meta ir.IRObject) (int, ir.IRObject) {
	if t, ok := b.grammar.TypeIndex[name]; ok {
		if t != b.grammar.UnknownType() {
			meta = meta.Without(ir.MetaType)
		}
		return t, meta
	}
	return b.grammar.UnknownType(), meta.With(ir.MetaType, ir.IRString(name))
}

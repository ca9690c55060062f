package cli

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/cellgram/internal/engine"
	"github.com/roach88/cellgram/internal/ir"
	"github.com/roach88/cellgram/internal/store"
)

// EvolveOptions holds flags for the evolve command.
type EvolveOptions struct {
	*RootOptions
	Grammar     string
	Board       string
	Resume      string // stored board id
	Moves       string
	Database    string
	Output      string
	Owner       string
	Policy      string
	Size        int
	Seed        uint32
	Seconds     float64
	Checkpoints int
}

// EvolveResult is the report of an evolve run.
type EvolveResult struct {
	BoardID  string          `json:"board_id,omitempty"`
	Time     int64           `json:"time"`
	Hash     string          `json:"hash"`
	Applied  int             `json:"applied"`
	Queued   int             `json:"queued"`
	LastSeq  int64           `json:"last_seq"`
	Counts   map[string]int  `json:"counts"`
	Warnings []string        `json:"warnings,omitempty"`
	Snapshot json.RawMessage `json:"snapshot"`
}

// NewEvolveCommand creates the evolve command.
func NewEvolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EvolveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "evolve",
		Short: "Evolve a board and apply moves",
		Long: `Evolve a board for a number of seconds, applying moves as they come due.

The board is either new (--grammar, --size, --seed, --owner), loaded from a
snapshot file (--board, optionally with a replacement --grammar) or resumed
from a store (--db with --resume). --moves names a JSON list of moves whose
times are in ticks (2^32 per second).

With --db the run is recorded: the initial board, every applied move, and a
checkpoint snapshot after each of --checkpoints equal steps. Recorded boards
can be checked with "cellgram replay".

Exit codes:
  0 - Board evolved
  1 - Grammar has errors
  2 - Command error (bad flags, unreadable files, store errors)

Examples:
  cellgram evolve --grammar life.cue --size 64 --seed 7 --seconds 10
  cellgram evolve --board board.json --moves moves.json --output next.json
  cellgram evolve --grammar life.cue --db runs.db --checkpoints 10 --seconds 60
  cellgram evolve --db runs.db --resume 0190b6f2-... --seconds 60`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvolve(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Grammar, "grammar", "g", "", "grammar file or CUE package directory")
	cmd.Flags().StringVarP(&opts.Board, "board", "b", "", "board snapshot to start from")
	cmd.Flags().StringVar(&opts.Resume, "resume", "", "stored board id to continue (requires --db)")
	cmd.Flags().StringVarP(&opts.Moves, "moves", "m", "", "JSON file holding a list of moves")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the run in this SQLite database")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the final snapshot to this file")
	cmd.Flags().StringVar(&opts.Owner, "owner", "", "board owner")
	cmd.Flags().StringVar(&opts.Policy, "policy", "first", "command policy (first|all)")
	cmd.Flags().IntVar(&opts.Size, "size", 16, "grid side length of a new board")
	cmd.Flags().Uint32Var(&opts.Seed, "seed", 5489, "random seed of a new board")
	cmd.Flags().Float64Var(&opts.Seconds, "seconds", 1, "seconds to evolve")
	cmd.Flags().IntVar(&opts.Checkpoints, "checkpoints", 1, "number of equal steps, each ending in a checkpoint")

	return cmd
}

func runEvolve(ctx context.Context, opts *EvolveOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(cmd, opts.RootOptions)
	logger := opts.Logger(cmd.ErrOrStderr())

	if err := checkEvolveFlags(opts); err != nil {
		return outputCommandError(formatter, err)
	}
	policy, err := engine.ParseCommandPolicy(opts.Policy)
	if err != nil {
		return outputCommandError(formatter, &LoadError{Code: ErrCodeBoard, Message: err.Error()})
	}
	boardOpts := []engine.BoardOption{engine.WithCommandPolicy(policy), engine.WithLogger(logger)}
	if cmd.Flags().Changed("owner") {
		boardOpts = append(boardOpts, engine.WithOwner(opts.Owner))
	}

	moves, err := readMoves(opts.Moves)
	if err != nil {
		return outputCommandError(formatter, err)
	}

	var st *store.Store
	if opts.Database != "" {
		st, err = store.Open(opts.Database, store.WithLogger(logger))
		if err != nil {
			return outputCommandError(formatter, &LoadError{Code: ErrCodeStore, Message: fmt.Sprintf("opening database: %v", err)})
		}
		defer st.Close()
	}

	var (
		b       *engine.Board
		boardID string
		lastSeq int64
	)
	switch {
	case opts.Resume != "":
		b, lastSeq, err = resumeBoard(ctx, st, opts.Resume, boardOpts)
		boardID = opts.Resume
	case opts.Board != "":
		b, err = loadBoardFile(cmd, opts, boardOpts)
	default:
		b, err = newBoardFromGrammar(opts, boardOpts)
	}
	if err != nil {
		var errs grammarErrors
		if errors.As(err, &errs) {
			return outputCompileErrors(formatter, errs)
		}
		return outputCommandError(formatter, err)
	}

	if st != nil && boardID == "" {
		initial, err := b.Snapshot()
		if err != nil {
			return outputCommandError(formatter, err)
		}
		rec, err := st.CreateBoard(ctx, initial, policy)
		if err != nil {
			return outputCommandError(formatter, &LoadError{Code: ErrCodeStore, Message: err.Error()})
		}
		boardID = rec.ID
		formatter.Progressf("Recording board %s", boardID)
	}

	result, err := evolveBoard(ctx, st, boardID, b, lastSeq, moves, opts)
	if err != nil {
		return outputCommandError(formatter, err)
	}

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, result.Snapshot, 0644); err != nil {
			return outputCommandError(formatter, &LoadError{Code: ErrCodeWriteFailed, Message: fmt.Sprintf("writing snapshot: %v", err)})
		}
	}
	return outputEvolve(formatter, result, opts.Output)
}

func checkEvolveFlags(opts *EvolveOptions) error {
	switch {
	case opts.Resume != "" && opts.Database == "":
		return &LoadError{Code: ErrCodeBoard, Message: "--resume requires --db"}
	case opts.Resume != "" && (opts.Board != "" || opts.Grammar != ""):
		return &LoadError{Code: ErrCodeBoard, Message: "--resume cannot be combined with --board or --grammar"}
	case opts.Resume == "" && opts.Board == "" && opts.Grammar == "":
		return &LoadError{Code: ErrCodeBoard, Message: "one of --grammar, --board or --resume is required"}
	case opts.Checkpoints < 1:
		return &LoadError{Code: ErrCodeBoard, Message: "--checkpoints must be at least 1"}
	case opts.Seconds < 0 || math.IsNaN(opts.Seconds) || math.IsInf(opts.Seconds, 0):
		return &LoadError{Code: ErrCodeBoard, Message: "--seconds must be a non-negative number"}
	}
	return nil
}

// grammarErrors carries every error of a grammar that failed to compile.
type grammarErrors []*LoadError

func (e grammarErrors) Error() string {
	return fmt.Sprintf("grammar has %d error(s), first: %v", len(e), e[0])
}

func newBoardFromGrammar(opts *EvolveOptions, boardOpts []engine.BoardOption) (*engine.Board, error) {
	src, err := LoadGrammar(opts.Grammar)
	if err != nil {
		return nil, err
	}
	g, errs := compileGrammar(src.Source)
	if len(errs) > 0 {
		return nil, grammarErrors(errs)
	}
	b, err := engine.NewBoard(opts.Size, g, append(boardOpts, engine.WithSeed(opts.Seed))...)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeBoard, Message: err.Error()}
	}
	return b, nil
}

// loadBoardFile loads the --board snapshot. An explicit --size overrides the
// snapshot's; an explicit --grammar replaces its grammar.
func loadBoardFile(cmd *cobra.Command, opts *EvolveOptions, boardOpts []engine.BoardOption) (*engine.Board, error) {
	data, err := os.ReadFile(opts.Board)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("reading board: %v", err)}
	}
	if cmd.Flags().Changed("size") {
		boardOpts = append(boardOpts, engine.WithSize(opts.Size))
	}
	b, err := engine.LoadBoard(data, boardOpts...)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeBoard, Message: err.Error()}
	}
	if opts.Grammar == "" {
		return b, nil
	}

	src, err := LoadGrammar(opts.Grammar)
	if err != nil {
		return nil, err
	}
	if _, errs := compileGrammar(src.Source); len(errs) > 0 {
		return nil, grammarErrors(errs)
	}
	if err := b.ReplaceGrammar(src.Source); err != nil {
		return nil, grammarErrors{convertCompileError(err)}
	}
	return b, nil
}

// resumeBoard continues a stored board from its latest checkpoint.
func resumeBoard(ctx context.Context, st *store.Store, id string, boardOpts []engine.BoardOption) (*engine.Board, int64, error) {
	rec, err := st.ReadBoard(ctx, id)
	if err != nil {
		return nil, 0, &LoadError{Code: ErrCodeStore, Message: err.Error()}
	}
	checkpoints, err := st.ReadCheckpoints(ctx, id)
	if err != nil {
		return nil, 0, &LoadError{Code: ErrCodeStore, Message: err.Error()}
	}
	lastSeq, err := st.LastSeq(ctx, id)
	if err != nil {
		return nil, 0, &LoadError{Code: ErrCodeStore, Message: err.Error()}
	}

	snapshot := rec.Snapshot
	if n := len(checkpoints); n > 0 {
		latest := checkpoints[n-1]
		if latest.AfterSeq != lastSeq {
			return nil, 0, &LoadError{Code: ErrCodeStore, Message: fmt.Sprintf("board %s has moves after its last checkpoint (seq %d > %d)", id, lastSeq, latest.AfterSeq)}
		}
		snapshot = latest.Snapshot
	} else if lastSeq > 0 {
		return nil, 0, &LoadError{Code: ErrCodeStore, Message: fmt.Sprintf("board %s has moves but no checkpoint", id)}
	}

	// The recorded policy wins over --policy so the run stays replayable.
	b, err := engine.LoadBoard(snapshot, append(boardOpts, engine.WithCommandPolicy(rec.CommandPolicy))...)
	if err != nil {
		return nil, 0, &LoadError{Code: ErrCodeBoard, Message: err.Error()}
	}
	return b, lastSeq, nil
}

// readMoves reads a JSON list of moves and orders it by time. Submitting in
// time order keeps the applied moves a prefix of the sequence, which is what
// a checkpoint's AfterSeq describes.
func readMoves(path string) ([]ir.Move, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("reading moves: %v", err)}
	}
	var moves []ir.Move
	if err := json.Unmarshal(data, &moves); err != nil {
		return nil, &LoadError{Code: ErrCodeMoves, Message: fmt.Sprintf("decoding moves: %v", err)}
	}
	slices.SortStableFunc(moves, func(a, b ir.Move) int { return cmp.Compare(a.Time, b.Time) })
	return moves, nil
}

// evolveBoard runs the board for the requested seconds in equal steps. When a
// store is given, each step's applied moves and a checkpoint are recorded.
func evolveBoard(ctx context.Context, st *store.Store, boardID string, b *engine.Board, lastSeq int64, moves []ir.Move, opts *EvolveOptions) (*EvolveResult, error) {
	r := engine.NewRunner(b, lastSeq)
	defer r.Close()
	for _, m := range moves {
		r.Submit(m)
	}

	start := b.Time()
	duration := int64(math.Round(opts.Seconds * float64(engine.TicksPerSecond)))
	result := &EvolveResult{BoardID: boardID}
	appliedSeq := lastSeq

	for step := 1; step <= opts.Checkpoints; step++ {
		t := start + duration/int64(opts.Checkpoints)*int64(step)
		if step == opts.Checkpoints {
			t = start + duration
		}
		due, err := r.Advance(t, true)
		if err != nil {
			result.Warnings = append(result.Warnings, err.Error())
		}
		result.Applied += len(due)
		for _, p := range due {
			appliedSeq = max(appliedSeq, p.Seq)
		}
		if st == nil {
			continue
		}

		if err := st.AppendMoves(ctx, boardID, due); err != nil {
			return nil, &LoadError{Code: ErrCodeStore, Message: err.Error()}
		}
		snap, err := r.Snapshot()
		if err != nil {
			return nil, err
		}
		if err := st.WriteCheckpoint(ctx, boardID, engine.Checkpoint{AfterSeq: appliedSeq, Time: t, Snapshot: snap}); err != nil {
			return nil, &LoadError{Code: ErrCodeStore, Message: err.Error()}
		}
	}

	snap, err := r.Snapshot()
	if err != nil {
		return nil, err
	}
	result.Snapshot = snap
	result.Hash = ir.SnapshotHash(snap)
	result.Time = b.Time()
	result.Queued = r.Queued()
	result.LastSeq = appliedSeq
	result.Counts = b.TypeCounts()
	return result, nil
}

// outputEvolve reports the run. Text output prints the snapshot itself
// unless it was written to a file.
func outputEvolve(formatter *OutputFormatter, result *EvolveResult, outputFile string) error {
	if formatter.Format == "json" {
		return writeJSON(formatter.Writer, CLIResponse{Status: "ok", Data: result, BoardID: result.BoardID})
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Evolved to %.6gs (%d ticks): %d move(s) applied, %d queued\n",
		float64(result.Time)/float64(engine.TicksPerSecond), result.Time, result.Applied, result.Queued)
	if result.BoardID != "" {
		fmt.Fprintf(w, "Board: %s\n", result.BoardID)
	}
	fmt.Fprintf(w, "Hash: %s\n", result.Hash)

	names := make([]string, 0, len(result.Counts))
	for name := range result.Counts {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %s: %d\n", name, result.Counts[name])
	}
	for _, warning := range result.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}

	if outputFile != "" {
		fmt.Fprintf(w, "Wrote snapshot to %s\n", outputFile)
		return nil
	}
	fmt.Fprintln(w, string(result.Snapshot))
	return nil
}

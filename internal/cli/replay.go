package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/cellgram/internal/engine"
	"github.com/roach88/cellgram/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
}

// ReplayBoardResult holds the replay result for a single board.
type ReplayBoardResult struct {
	BoardID       string `json:"board_id"`
	Moves         int    `json:"moves"`
	Checkpoints   int    `json:"checkpoints"`
	FinalHash     string `json:"final_hash,omitempty"`
	Deterministic bool   `json:"deterministic"`
	// DivergedAfterSeq is the checkpoint that was not reproduced.
	DivergedAfterSeq int64  `json:"diverged_after_seq,omitempty"`
	Error            string `json:"error,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Boards           []ReplayBoardResult `json:"boards"`
	TotalBoards      int                 `json:"total_boards"`
	AllDeterministic bool                `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay [board-id...]",
		Short: "Replay recorded boards and verify determinism",
		Long: `Rebuild recorded boards from their initial snapshot and move log, and
check that every checkpoint snapshot is reproduced exactly.

Without board ids every board in the database is replayed.

Exit codes:
  0 - All boards replay deterministically
  1 - A replay diverged from a checkpoint
  2 - Command error (database not found, unknown board, etc.)

Examples:
  cellgram replay --db ./runs.db
  cellgram replay --db ./runs.db 0190b6f2-...
  cellgram replay --db ./runs.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runReplay(ctx context.Context, opts *ReplayOptions, boardIDs []string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.Open(opts.Database, store.WithLogger(opts.Logger(cmd.ErrOrStderr())))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if len(boardIDs) == 0 {
		boards, err := st.ListBoards(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list boards", err)
		}
		for _, rec := range boards {
			boardIDs = append(boardIDs, rec.ID)
		}
	}

	result := ReplayResult{
		Boards:           make([]ReplayBoardResult, 0, len(boardIDs)),
		TotalBoards:      len(boardIDs),
		AllDeterministic: true,
	}

	for _, id := range boardIDs {
		boardResult, err := replayBoard(ctx, st, id)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay board %s", id), err)
		}
		result.Boards = append(result.Boards, boardResult)
		if !boardResult.Deterministic {
			result.AllDeterministic = false
		}
	}

	if opts.Format == "json" {
		return outputReplayJSON(cmd, result)
	}
	if len(result.Boards) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No boards found in database.")
		return nil
	}
	return outputReplayText(cmd, result, opts.Verbose)
}

// replayBoard verifies one board. A divergence is a result, not an error;
// errors are reserved for boards that cannot be read or loaded at all.
func replayBoard(ctx context.Context, st *store.Store, id string) (ReplayBoardResult, error) {
	report, err := st.VerifyReplay(ctx, id)
	result := ReplayBoardResult{
		BoardID:       id,
		Moves:         report.Moves,
		Checkpoints:   report.Checkpoints,
		FinalHash:     report.FinalHash,
		Deterministic: err == nil,
	}
	if err == nil {
		return result, nil
	}

	var mismatch *engine.ReplayMismatchError
	if errors.As(err, &mismatch) {
		result.DivergedAfterSeq = mismatch.AfterSeq
		result.Error = err.Error()
		return result, nil
	}
	if errors.Is(err, store.ErrNotFound) || engine.IsBadSnapshot(err) || engine.IsSizeMismatch(err) {
		return result, err
	}
	// Move errors during replay are recorded but do not make a replay
	// nondeterministic on their own.
	result.Deterministic = true
	result.Error = err.Error()
	return result, nil
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(cmd *cobra.Command, result ReplayResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}
	if !result.AllDeterministic {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    ErrCodeReplay,
			Message: "determinism verification failed",
		}
	}

	if err := writeJSON(cmd.OutOrStdout(), response); err != nil {
		return err
	}
	if !result.AllDeterministic {
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(cmd *cobra.Command, result ReplayResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Replay Summary: %d board(s)\n", result.TotalBoards)
	fmt.Fprintln(w)

	for _, board := range result.Boards {
		status := "✓"
		if !board.Deterministic {
			status = "✗"
		}
		fmt.Fprintf(w, "%s Board: %s\n", status, board.BoardID)
		fmt.Fprintf(w, "  %d move(s), %d checkpoint(s)\n", board.Moves, board.Checkpoints)
		if verbose && board.FinalHash != "" {
			fmt.Fprintf(w, "  Final hash: %s\n", board.FinalHash)
		}
		if !board.Deterministic {
			fmt.Fprintf(w, "  Diverged at checkpoint after seq %d\n", board.DivergedAfterSeq)
		} else if board.Error != "" {
			fmt.Fprintf(w, "  Warning: %s\n", board.Error)
		}
		fmt.Fprintln(w)
	}

	if result.AllDeterministic {
		fmt.Fprintln(w, "✓ All boards replay deterministically")
		return nil
	}

	fmt.Fprintln(w, "✗ Determinism verification failed")
	return NewExitError(ExitFailure, "determinism verification failed")
}

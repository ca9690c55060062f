package store

import (
	"context"
	"fmt"

	"github.com/roach88/cellgram/internal/engine"
	"github.com/roach88/cellgram/internal/ir"
)

// BoardRecord is a stored board header and its initial snapshot.
type BoardRecord struct {
	ID              string
	CreatedSeq      int64
	Size            int
	Owner           string
	// CommandPolicy is not part of the snapshot; replays need it to apply
	// command moves the way the recorded run did.
	CommandPolicy   engine.CommandPolicy
	GrammarHash     string
	Snapshot        []byte
	SnapshotHash    string
	SnapshotVersion string
	EngineVersion   string
}

// CreateBoard records a new board whose history starts at snapshot and whose
// command moves run under policy. The snapshot must load; it is stored in
// canonical form.
func (s *Store) CreateBoard(ctx context.Context, snapshot []byte, policy engine.CommandPolicy) (BoardRecord, error) {
	canonical, err := canonicalSnapshot(snapshot)
	if err != nil {
		return BoardRecord{}, fmt.Errorf("create board: %w", err)
	}
	b, err := engine.LoadBoard(canonical, engine.WithLogger(s.logger))
	if err != nil {
		return BoardRecord{}, fmt.Errorf("create board: %w", err)
	}

	rec := BoardRecord{
		ID:              s.ids.Generate(),
		Size:            b.Size(),
		Owner:           b.Owner(),
		CommandPolicy:   policy,
		GrammarHash:     ir.GrammarHash(b.Grammar().Source),
		Snapshot:        canonical,
		SnapshotHash:    ir.SnapshotHash(canonical),
		SnapshotVersion: ir.SnapshotVersion,
		EngineVersion:   ir.EngineVersion,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return BoardRecord{}, fmt.Errorf("create board: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(created_seq), 0) + 1 FROM boards`).Scan(&rec.CreatedSeq); err != nil {
		return BoardRecord{}, fmt.Errorf("create board: next seq: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO boards
		(id, created_seq, size, owner, command_policy, grammar_hash, snapshot, snapshot_hash, snapshot_version, engine_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		rec.CreatedSeq,
		rec.Size,
		rec.Owner,
		rec.CommandPolicy.String(),
		rec.GrammarHash,
		string(rec.Snapshot),
		rec.SnapshotHash,
		rec.SnapshotVersion,
		rec.EngineVersion,
	)
	if err != nil {
		return BoardRecord{}, fmt.Errorf("create board: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return BoardRecord{}, fmt.Errorf("create board: commit: %w", err)
	}
	return rec, nil
}

// AppendMoves records applied moves in one transaction.
//
// Writing the same move at the same seq again is a no-op, so a host may
// retry after a crash. A different move at an existing seq is an error and
// nothing from the batch is written.
func (s *Store) AppendMoves(ctx context.Context, boardID string, moves []engine.Pending) error {
	if len(moves) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append moves: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	for _, p := range moves {
		body, id, err := marshalMove(p.Move)
		if err != nil {
			return fmt.Errorf("append moves: seq %d: %w", p.Seq, err)
		}

		result, err := tx.ExecContext(ctx, `
			INSERT INTO moves
			(board_id, seq, time, kind, user, body, move_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(board_id, seq) DO NOTHING
		`,
			boardID,
			p.Seq,
			p.Move.Time,
			string(p.Move.Type),
			p.Move.User,
			body,
			id,
		)
		if err != nil {
			return fmt.Errorf("append moves: seq %d: %w", p.Seq, err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("append moves: rows affected: %w", err)
		}
		if rows > 0 {
			continue
		}

		var existing string
		err = tx.QueryRowContext(ctx, `
			SELECT move_id FROM moves WHERE board_id = ? AND seq = ?
		`, boardID, p.Seq).Scan(&existing)
		if err != nil {
			return fmt.Errorf("append moves: seq %d: %w", p.Seq, err)
		}
		if existing != id {
			return &SeqConflictError{BoardID: boardID, Seq: p.Seq, Existing: existing, MoveID: id}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append moves: commit: %w", err)
	}
	return nil
}

// SeqConflictError reports a different move already recorded at a seq.
type SeqConflictError struct {
	BoardID  string
	Seq      int64
	Existing string
	MoveID   string
}

func (e *SeqConflictError) Error() string {
	return fmt.Sprintf("board %s seq %d already holds move %s, not %s", e.BoardID, e.Seq, e.Existing, e.MoveID)
}

// WriteCheckpoint records a snapshot taken after cp.AfterSeq at cp.Time.
// Uses ON CONFLICT DO NOTHING for idempotency; the first checkpoint written
// for a (seq, time) pair wins.
func (s *Store) WriteCheckpoint(ctx context.Context, boardID string, cp engine.Checkpoint) error {
	canonical, err := canonicalSnapshot(cp.Snapshot)
	if err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints
		(board_id, seq, time, snapshot, snapshot_hash)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(board_id, seq, time) DO NOTHING
	`,
		boardID,
		cp.AfterSeq,
		cp.Time,
		string(canonical),
		ir.SnapshotHash(canonical),
	)
	if err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}

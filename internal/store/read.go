package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/cellgram/internal/engine"
)

const boardColumns = `id, created_seq, size, owner, command_policy, grammar_hash, snapshot, snapshot_hash, snapshot_version, engine_version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBoard(row rowScanner) (BoardRecord, error) {
	var rec BoardRecord
	var snapshot, policy string
	err := row.Scan(
		&rec.ID,
		&rec.CreatedSeq,
		&rec.Size,
		&rec.Owner,
		&policy,
		&rec.GrammarHash,
		&snapshot,
		&rec.SnapshotHash,
		&rec.SnapshotVersion,
		&rec.EngineVersion,
	)
	if err != nil {
		return BoardRecord{}, err
	}
	rec.Snapshot = []byte(snapshot)
	if rec.CommandPolicy, err = engine.ParseCommandPolicy(policy); err != nil {
		return BoardRecord{}, err
	}
	return rec, nil
}

// ReadBoard returns a board record. Returns ErrNotFound if id is unknown.
func (s *Store) ReadBoard(ctx context.Context, id string) (BoardRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+boardColumns+` FROM boards WHERE id = ?`, id)
	rec, err := scanBoard(row)
	if errors.Is(err, sql.ErrNoRows) {
		return BoardRecord{}, fmt.Errorf("read board %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return BoardRecord{}, fmt.Errorf("read board %s: %w", id, err)
	}
	return rec, nil
}

// ListBoards returns every board in creation order.
// Returns an empty slice (not nil) when the store is empty.
func (s *Store) ListBoards(ctx context.Context) ([]BoardRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+boardColumns+` FROM boards ORDER BY created_seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("query boards: %w", err)
	}
	defer rows.Close()

	boards := []BoardRecord{}
	for rows.Next() {
		rec, err := scanBoard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan board: %w", err)
		}
		boards = append(boards, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate boards: %w", err)
	}
	return boards, nil
}

// ReadMoves returns the moves of a board with seq > afterSeq, ordered by seq.
// Returns an empty slice (not nil) if there are none.
func (s *Store) ReadMoves(ctx context.Context, boardID string, afterSeq int64) ([]engine.Pending, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, body
		FROM moves
		WHERE board_id = ? AND seq > ?
		ORDER BY seq ASC
	`, boardID, afterSeq)
	if err != nil {
		return nil, fmt.Errorf("query moves: %w", err)
	}
	defer rows.Close()

	moves := []engine.Pending{}
	for rows.Next() {
		var seq int64
		var body string
		if err := rows.Scan(&seq, &body); err != nil {
			return nil, fmt.Errorf("scan move: %w", err)
		}
		m, err := unmarshalMove(body)
		if err != nil {
			return nil, fmt.Errorf("move seq %d: %w", seq, err)
		}
		moves = append(moves, engine.Pending{Seq: seq, Move: m})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate moves: %w", err)
	}
	return moves, nil
}

// ReadCheckpoints returns the checkpoints of a board ordered by seq, then time.
// Returns an empty slice (not nil) if there are none.
func (s *Store) ReadCheckpoints(ctx context.Context, boardID string) ([]engine.Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, time, snapshot
		FROM checkpoints
		WHERE board_id = ?
		ORDER BY seq ASC, time ASC
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("query checkpoints: %w", err)
	}
	defer rows.Close()

	checkpoints := []engine.Checkpoint{}
	for rows.Next() {
		var cp engine.Checkpoint
		var snapshot string
		if err := rows.Scan(&cp.AfterSeq, &cp.Time, &snapshot); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		cp.Snapshot = []byte(snapshot)
		checkpoints = append(checkpoints, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoints: %w", err)
	}
	return checkpoints, nil
}

// LastSeq returns the highest recorded move seq of a board, or 0.
// A host resumes a board with engine.NewRunner(b, lastSeq).
func (s *Store) LastSeq(ctx context.Context, boardID string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM moves WHERE board_id = ?
	`, boardID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq, nil
}

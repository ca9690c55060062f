package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/cellgram/internal/ir"
)

// marshalMove converts a move to canonical JSON TEXT and its content ID.
func marshalMove(m ir.Move) (body, id string, err error) {
	data, err := ir.CanonicalMove(m)
	if err != nil {
		return "", "", fmt.Errorf("marshal move: %w", err)
	}
	id, err = ir.MoveID(m)
	if err != nil {
		return "", "", fmt.Errorf("marshal move: %w", err)
	}
	return string(data), id, nil
}

// unmarshalMove parses a stored move body. Meta values decode through
// ir.IRObject so large integers keep their precision.
func unmarshalMove(body string) (ir.Move, error) {
	var m ir.Move
	if err := json.Unmarshal([]byte(body), &m); err != nil {
		return ir.Move{}, fmt.Errorf("unmarshal move: %w", err)
	}
	return m, nil
}

// canonicalSnapshot re-encodes a snapshot as canonical JSON so that stored
// hashes do not depend on how the caller formatted it.
func canonicalSnapshot(data []byte) ([]byte, error) {
	v, err := ir.UnmarshalIRValue(data)
	if err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	out, err := ir.MarshalCanonical(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize snapshot: %w", err)
	}
	return out, nil
}

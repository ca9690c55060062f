package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Domain prefixes for content hashes. The version suffix allows the hashed
// form to change without colliding with old hashes.
const (
	DomainBoard   = "cellgram/board/v1"
	DomainMove    = "cellgram/move/v1"
	DomainGrammar = "cellgram/grammar/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data) as lowercase hex.
// The null separator keeps the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SnapshotHash hashes the canonical JSON of a board snapshot.
func SnapshotHash(canonical []byte) string {
	return hashWithDomain(DomainBoard, canonical)
}

// GrammarHash hashes grammar source text.
func GrammarHash(source string) string {
	return hashWithDomain(DomainGrammar, []byte(source))
}

// MoveID computes the content-addressed identity of a move from its canonical
// JSON. Two moves with identical fields share an ID.
func MoveID(m Move) (string, error) {
	canonical, err := CanonicalMove(m)
	if err != nil {
		return "", fmt.Errorf("MoveID: %w", err)
	}
	return hashWithDomain(DomainMove, canonical), nil
}

// CanonicalMove returns the canonical JSON encoding of a move. Null metadata
// entries are dropped first since canonical JSON has no null.
func CanonicalMove(m Move) ([]byte, error) {
	if len(m.Cells) > 0 {
		cells := make([]CellWrite, len(m.Cells))
		for i, c := range m.Cells {
			c.Meta = c.Meta.Compact()
			cells[i] = c
		}
		m.Cells = cells
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal move: %w", err)
	}
	v, err := UnmarshalIRValue(raw)
	if err != nil {
		return nil, fmt.Errorf("move to IR: %w", err)
	}
	return MarshalCanonical(v)
}

// MustMoveID is like MoveID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustMoveID(m Move) string {
	id, err := MoveID(m)
	if err != nil {
		panic(err)
	}
	return id
}

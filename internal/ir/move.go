package ir

// MoveType tags an externally supplied board event.
type MoveType string

const (
	MoveCommand MoveType = "command"
	MoveWrite   MoveType = "write"
	MoveGrammar MoveType = "grammar"
)

// Move is a user event applied to a board at a given time.
//
// Time is in board ticks (2^32 per second). Command moves target the cell
// holding ID and name either Command or Key; Dir defaults to "N". Write moves
// carry Cells. Grammar moves replace the grammar source.
type Move struct {
	Type    MoveType    `json:"type"`
	Time    int64       `json:"time"`
	User    string      `json:"user,omitempty"`
	ID      string      `json:"id,omitempty"`
	Dir     string      `json:"dir,omitempty"`
	Command string      `json:"command,omitempty"`
	Key     string      `json:"key,omitempty"`
	Cells   []CellWrite `json:"cells,omitempty"`
	Grammar string      `json:"grammar,omitempty"`
}

// CellWrite is one cell of a write move. The target is the cell holding ID
// when ID is set, otherwise (X, Y). OldType and OldState, when set, must match
// the target's current value for the write to happen.
type CellWrite struct {
	X        int      `json:"x"`
	Y        int      `json:"y"`
	ID       string   `json:"id,omitempty"`
	OldType  *string  `json:"oldType,omitempty"`
	OldState *string  `json:"oldState,omitempty"`
	Type     string   `json:"type"`
	State    string   `json:"state,omitempty"`
	Meta     IRObject `json:"meta,omitempty"`
}

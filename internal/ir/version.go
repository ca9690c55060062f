package ir

const (
	// SnapshotVersion is the board snapshot format version.
	SnapshotVersion = "1"

	// EngineVersion is the cellgram engine version.
	EngineVersion = "0.1.0"
)

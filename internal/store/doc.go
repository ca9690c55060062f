// Package store provides SQLite-backed durable storage for cellgram boards.
//
// A board is recorded as an append-only log:
//   - Boards: the initial snapshot, its hash and the grammar hash
//   - Moves: every applied move with its sequence number and content ID
//   - Checkpoints: snapshots taken after a known sequence number and time
//
// # Ordering
//
// All reads order by seq, the logical clock handed out by engine.Runner.
// Together with the seeded random source this makes a board's history
// reproducible: VerifyReplay rebuilds it from the initial snapshot and checks
// every checkpoint hash.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
//
// Snapshot and move hashes come from internal/ir and use canonical JSON with
// SHA-256 domain separation.
package store

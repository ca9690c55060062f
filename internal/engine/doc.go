// Package engine runs boards: toroidal grids of typed cells rewritten by a
// compiled grammar in continuous, stochastic time.
//
// A Board owns its grid, its grammar, and an MT19937 random source. All
// randomness is drawn from that source in a fixed order, so a board snapshot
// plus a move log reproduces the same history on every replay.
//
// Evolution:
//
//   - Asynchronous rules fire as a Poisson process. Each event draws a wait,
//     a (type, cell, rule) triple weighted by rate, a direction, and an
//     acceptance test. An event that would land past the horizon is rolled
//     back unless the horizon is a hard stop.
//   - Sync rules fire in sweeps at multiples of their period. A sweep visits
//     every cell of each subscribed type once per rule.
//   - Moves (commands, writes, grammar changes) apply at their timestamps;
//     EvolveAndProcess interleaves them with evolution.
//
// A Board is single-writer. Callers serialize access.
package engine

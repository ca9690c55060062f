// Package ir defines the intermediate representation shared by the compiler,
// the engine and the store: grammar rules and their term trees, moves, and the
// integer-only value types used for cell metadata.
//
// This package imports nothing internal.
//
// Key constraints:
//   - No float types; metadata numbers are int64
//   - Persisted forms are RFC 8785 canonical JSON (MarshalCanonical)
//   - Term, Expr and Addr are closed unions selected by their Op field
package ir

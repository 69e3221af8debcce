// Package state defines the persistence contract for settings snapshots and a
// small resolver on top of it.
//
// A Store loads and saves exactly one snapshot for one Ref. The Resolver
// loads several scopes for a domain and layers them through the layering
// package, and Mutate performs a load-modify-save cycle guarded by an
// optional ETag so multi-field snapshots are written as one unit.
//
// Data flow:
//
//	Store -> Resolver -> layering.NewStack(...).Merge() -> *layering.Merged[T]
//
// Deterministic keys:
//
//	Ref.Identifier() renders "system/<domain>", "user/<user_id>/<domain>" or
//	"device/<device_id>/<domain>". Host adapters backed by a flat key-value
//	settings provider can use it directly as the row key.
package state

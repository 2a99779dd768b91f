// Package engine hosts the live instance graph.
//
// The engine owns the instance map, the current schema, and the undo/redo
// history. Every mutation is a blueprint passed to Commit (or Apply for
// history-free loading); the builder package validates blueprints before
// they arrive here, so applying one never fails.
//
// ARCHITECTURE:
//
// Single-Writer Graph:
// All writes happen synchronously on the caller's goroutine through apply.
// Within one apply the changes run in a fixed order:
//  1. schema change (lock and specialization edits)
//  2. added records (fields only)
//  3. deleted records
//  4. added outgoing, then added incoming edges
//  5. removed outgoing, then removed incoming edges
//  6. field updates
//
// Observers registered with Subscribe see one Event per commit, undo or redo,
// after the whole blueprint has applied, so they never observe a partial
// state.
//
// Ordering:
// Outgoing target lists and incoming edge lists are kept sorted by UID.
// Applying a blueprint and then its reverse restores records that are equal
// field for field and edge for edge.
//
// Logical Clock:
// Each commit, undo and redo is stamped with a strictly increasing sequence
// number from Clock. Sequence numbers order journal entries; wall-clock time
// is never used.
package engine

// Package store provides SQLite-backed durable storage for graph sessions.
//
// A session is one graph: the schema it started from plus an append-only
// journal of every blueprint the engine applied to it.
//   - Schemas: content-addressed by version hash, stored as JSON
//   - Journal: one row per engine event (commit, undo, redo, apply)
//   - Snapshots: standalone exports at a journal position
//
// # Ordering
//
// All ordering uses seq INTEGER (the engine's logical clock), never
// timestamps, and every query orders by seq ASC. Restoring a session
// replays the journal in that order and reaches the state the recording
// engine had.
//
// # Idempotency
//
// Journal rows are keyed by (session_id, seq) and written with
// ON CONFLICT DO NOTHING, so re-recording an event is harmless.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store

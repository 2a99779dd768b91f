package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/reedwoodruff/molecule-schema-sub000/internal/engine"
	"github.com/reedwoodruff/molecule-schema-sub000/internal/ir"
)

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PutSchema stores a schema under its version and returns the version.
// Uses ON CONFLICT(version) DO NOTHING - storing the same schema twice is a no-op.
func (s *Store) PutSchema(ctx context.Context, schema *ir.Schema) (string, error) {
	return putSchema(ctx, s.db, schema)
}

func putSchema(ctx context.Context, db execer, schema *ir.Schema) (string, error) {
	body, err := marshalSchema(schema)
	if err != nil {
		return "", fmt.Errorf("put schema: %w", err)
	}
	version := schema.Version()
	_, err = db.ExecContext(ctx, `
		INSERT INTO schemas (version, body)
		VALUES (?, ?)
		ON CONFLICT(version) DO NOTHING
	`, version, body)
	if err != nil {
		return "", fmt.Errorf("put schema: %w", err)
	}
	return version, nil
}

// CreateSession registers a session over a base schema.
//
// Creating a session that already exists over the same schema is a no-op.
// Reusing a session id with a different base schema is an error, since its
// journal would no longer replay.
func (s *Store) CreateSession(ctx context.Context, id string, base *ir.Schema) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create session: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	version, err := putSchema(ctx, tx, base)
	if err != nil {
		return fmt.Errorf("create session %q: %w", id, err)
	}

	var existing string
	err = tx.QueryRowContext(ctx, `SELECT base_schema FROM sessions WHERE id = ?`, id).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (id, base_schema) VALUES (?, ?)
		`, id, version); err != nil {
			return fmt.Errorf("create session %q: %w", id, err)
		}
	case err != nil:
		return fmt.Errorf("create session %q: %w", id, err)
	case existing != version:
		return fmt.Errorf("create session %q: exists over schema %s", id, existing)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("create session %q: commit: %w", id, err)
	}
	return nil
}

// AppendEvent records one engine event in a session's journal.
// Uses ON CONFLICT(session_id, seq) DO NOTHING for idempotency - recording
// the same event twice is silently ignored.
//
// Note: The session must exist (foreign key constraint).
func (s *Store) AppendEvent(ctx context.Context, sessionID string, ev engine.Event) error {
	text, hash, err := marshalBlueprint(ev.Blueprint)
	if err != nil {
		return fmt.Errorf("append event %d: %w", ev.Seq, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO journal
		(session_id, seq, kind, blueprint, blueprint_hash)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id, seq) DO NOTHING
	`,
		sessionID,
		ev.Seq,
		ev.Kind.String(),
		text,
		hash,
	)
	if err != nil {
		return fmt.Errorf("append event %d: %w", ev.Seq, err)
	}
	return nil
}

// SaveSnapshot stores the engine's graph at its current clock position and
// returns that position. The engine's current schema is stored with it.
func (s *Store) SaveSnapshot(ctx context.Context, sessionID string, e *engine.Engine) (int64, error) {
	instances, err := marshalInstances(e.Standalone())
	if err != nil {
		return 0, fmt.Errorf("save snapshot: %w", err)
	}
	seq := e.Clock().Current()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("save snapshot: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	version, err := putSchema(ctx, tx, e.Schema())
	if err != nil {
		return 0, fmt.Errorf("save snapshot: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshots (session_id, seq, schema_version, instances)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id, seq) DO UPDATE SET
			schema_version = excluded.schema_version,
			instances = excluded.instances
	`, sessionID, seq, version, instances)
	if err != nil {
		return 0, fmt.Errorf("save snapshot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("save snapshot: commit: %w", err)
	}
	return seq, nil
}

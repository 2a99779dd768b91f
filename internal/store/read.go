package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/reedwoodruff/molecule-schema-sub000/internal/engine"
	"github.com/reedwoodruff/molecule-schema-sub000/internal/ir"
)

// Session is a stored graph: its id and the version of its base schema.
type Session struct {
	ID         string
	BaseSchema string
}

// JournalEntry is one recorded engine event.
type JournalEntry struct {
	Seq       int64
	Kind      engine.EventKind
	Blueprint *ir.Blueprint
	Hash      string
}

// Snapshot is a standalone export of a session's graph at a journal position.
type Snapshot struct {
	Seq           int64
	SchemaVersion string
	Instances     []ir.StandaloneInstance
}

// GetSchema retrieves a stored schema by version.
// Returns sql.ErrNoRows if not found.
func (s *Store) GetSchema(ctx context.Context, version string) (*ir.Schema, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM schemas WHERE version = ?`, version).Scan(&body)
	if err != nil {
		return nil, fmt.Errorf("get schema %s: %w", version, err)
	}
	schema, err := unmarshalSchema(body)
	if err != nil {
		return nil, fmt.Errorf("get schema %s: %w", version, err)
	}
	return schema, nil
}

// GetSession retrieves a session by id.
// Returns sql.ErrNoRows if not found.
func (s *Store) GetSession(ctx context.Context, id string) (Session, error) {
	sess := Session{ID: id}
	err := s.db.QueryRowContext(ctx, `SELECT base_schema FROM sessions WHERE id = ?`, id).Scan(&sess.BaseSchema)
	if err != nil {
		return Session{}, fmt.Errorf("get session %q: %w", id, err)
	}
	return sess, nil
}

// ListSessions returns every session ordered by id.
// Returns an empty slice (not nil) if there are none.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, base_schema FROM sessions
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.BaseSchema); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// ReadJournal returns a session's journal entries with seq > afterSeq,
// ordered by seq ASC.
//
// Returns an empty slice (not nil) if there are none.
func (s *Store) ReadJournal(ctx context.Context, sessionID string, afterSeq int64) ([]JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, kind, blueprint, blueprint_hash
		FROM journal
		WHERE session_id = ? AND seq > ?
		ORDER BY seq ASC
	`, sessionID, afterSeq)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	entries := []JournalEntry{}
	for rows.Next() {
		entry, err := scanJournalEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal: %w", err)
	}
	return entries, nil
}

func scanJournalEntry(rows *sql.Rows) (JournalEntry, error) {
	var (
		entry JournalEntry
		kind  string
		text  string
	)
	if err := rows.Scan(&entry.Seq, &kind, &text, &entry.Hash); err != nil {
		return JournalEntry{}, fmt.Errorf("scan journal entry: %w", err)
	}
	k, ok := engine.ParseEventKind(kind)
	if !ok {
		return JournalEntry{}, fmt.Errorf("journal entry %d: unknown kind %q", entry.Seq, kind)
	}
	entry.Kind = k
	bp, err := unmarshalBlueprint(text)
	if err != nil {
		return JournalEntry{}, fmt.Errorf("journal entry %d: %w", entry.Seq, err)
	}
	entry.Blueprint = bp
	return entry, nil
}

// LastSeq returns the highest journal seq of a session, or 0 when its
// journal is empty.
func (s *Store) LastSeq(ctx context.Context, sessionID string) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM journal WHERE session_id = ?`, sessionID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq.Int64, nil
}

// LatestSnapshot retrieves a session's most recent snapshot.
// Returns sql.ErrNoRows if the session has none.
func (s *Store) LatestSnapshot(ctx context.Context, sessionID string) (Snapshot, error) {
	var (
		snap Snapshot
		text string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT seq, schema_version, instances
		FROM snapshots
		WHERE session_id = ?
		ORDER BY seq DESC
		LIMIT 1
	`, sessionID).Scan(&snap.Seq, &snap.SchemaVersion, &text)
	if err != nil {
		return Snapshot{}, fmt.Errorf("latest snapshot: %w", err)
	}
	snap.Instances, err = unmarshalInstances(text)
	if err != nil {
		return Snapshot{}, fmt.Errorf("latest snapshot: %w", err)
	}
	return snap, nil
}

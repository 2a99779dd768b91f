package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/reedwoodruff/molecule-schema-sub000/internal/builder"
	"github.com/reedwoodruff/molecule-schema-sub000/internal/engine"
	"github.com/reedwoodruff/molecule-schema-sub000/internal/ir"
)

func TestGetSchema_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	schema := testSchema()

	version, err := s.PutSchema(ctx, schema)
	if err != nil {
		t.Fatalf("PutSchema() failed: %v", err)
	}
	got, err := s.GetSchema(ctx, version)
	if err != nil {
		t.Fatalf("GetSchema() failed: %v", err)
	}
	if got.Version() != version {
		t.Errorf("GetSchema().Version() = %s, want %s", got.Version(), version)
	}
	if len(got.Operatives) != len(schema.Operatives) {
		t.Errorf("got %d operatives, want %d", len(got.Operatives), len(schema.Operatives))
	}
}

func TestGetSchema_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.GetSchema(context.Background(), "nope")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("GetSchema() error = %v, want sql.ErrNoRows", err)
	}
}

func TestGetSession(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedSession(t, s, "s1")

	sess, err := s.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession() failed: %v", err)
	}
	if sess.BaseSchema != testSchema().Version() {
		t.Errorf("BaseSchema = %s, want %s", sess.BaseSchema, testSchema().Version())
	}

	if _, err := s.GetSession(ctx, "missing"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("GetSession(missing) error = %v, want sql.ErrNoRows", err)
	}
}

func TestListSessions(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	sessions, err := s.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions() failed: %v", err)
	}
	if sessions == nil || len(sessions) != 0 {
		t.Errorf("ListSessions() = %v, want empty non-nil slice", sessions)
	}

	for _, id := range []string{"b", "a", "c"} {
		seedSession(t, s, id)
	}
	sessions, err = s.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions() failed: %v", err)
	}
	var ids []string
	for _, sess := range sessions {
		ids = append(ids, sess.ID)
	}
	if len(ids) != 3 || ids[0] != "a" || ids[1] != "b" || ids[2] != "c" {
		t.Errorf("ListSessions() ids = %v, want [a b c]", ids)
	}
}

func TestReadJournal_OrderAndKinds(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedSession(t, s, "s1")

	e := newTestEngine(1)
	rec := s.Record(ctx, "s1", e)
	shelf := buildShelf(t, e, "inbox", "a")
	if _, err := builder.Edit(e, shelf).SetField(labelID, ir.String("outbox")).Execute(); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	e.Undo()
	e.Redo()
	if err := rec.Close(); err != nil {
		t.Fatalf("Recorder error: %v", err)
	}

	entries, err := s.ReadJournal(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("ReadJournal() failed: %v", err)
	}
	want := []engine.EventKind{engine.EventCommit, engine.EventCommit, engine.EventUndo, engine.EventRedo}
	if len(entries) != len(want) {
		t.Fatalf("got %d entries, want %d", len(entries), len(want))
	}
	for i, entry := range entries {
		if entry.Seq != int64(i+1) {
			t.Errorf("entry %d: seq = %d, want %d", i, entry.Seq, i+1)
		}
		if entry.Kind != want[i] {
			t.Errorf("entry %d: kind = %s, want %s", i, entry.Kind, want[i])
		}
		hash, _ := ir.BlueprintHash(entry.Blueprint)
		if hash != entry.Hash {
			t.Errorf("entry %d: stored hash does not match blueprint", i)
		}
	}

	tail, err := s.ReadJournal(ctx, "s1", 2)
	if err != nil {
		t.Fatalf("ReadJournal() failed: %v", err)
	}
	if len(tail) != 2 || tail[0].Seq != 3 {
		t.Errorf("ReadJournal(after 2) returned %d entries starting at %v", len(tail), tail)
	}
}

func TestReadJournal_Empty(t *testing.T) {
	s := createTestStore(t)
	seedSession(t, s, "s1")

	entries, err := s.ReadJournal(context.Background(), "s1", 0)
	if err != nil {
		t.Fatalf("ReadJournal() failed: %v", err)
	}
	if entries == nil || len(entries) != 0 {
		t.Errorf("ReadJournal() = %v, want empty non-nil slice", entries)
	}
}

func TestLastSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedSession(t, s, "s1")

	seq, err := s.LastSeq(ctx, "s1")
	if err != nil {
		t.Fatalf("LastSeq() failed: %v", err)
	}
	if seq != 0 {
		t.Errorf("LastSeq() on empty journal = %d, want 0", seq)
	}

	e := newTestEngine(1)
	rec := s.Record(ctx, "s1", e)
	buildShelf(t, e, "inbox")
	buildShelf(t, e, "archive")
	rec.Close()

	if seq, _ = s.LastSeq(ctx, "s1"); seq != 2 {
		t.Errorf("LastSeq() = %d, want 2", seq)
	}
}

func TestLatestSnapshot(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedSession(t, s, "s1")

	if _, err := s.LatestSnapshot(ctx, "s1"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("LatestSnapshot() error = %v, want sql.ErrNoRows", err)
	}

	e := newTestEngine(1)
	buildShelf(t, e, "inbox", "a")
	if _, err := s.SaveSnapshot(ctx, "s1", e); err != nil {
		t.Fatalf("SaveSnapshot() failed: %v", err)
	}
	buildShelf(t, e, "archive", "b")
	if _, err := s.SaveSnapshot(ctx, "s1", e); err != nil {
		t.Fatalf("SaveSnapshot() failed: %v", err)
	}

	snap, err := s.LatestSnapshot(ctx, "s1")
	if err != nil {
		t.Fatalf("LatestSnapshot() failed: %v", err)
	}
	if snap.Seq != 2 {
		t.Errorf("Seq = %d, want 2", snap.Seq)
	}
	if len(snap.Instances) != e.Len() {
		t.Errorf("snapshot has %d instances, want %d", len(snap.Instances), e.Len())
	}
	if snap.SchemaVersion != e.Schema().Version() {
		t.Errorf("SchemaVersion = %s, want %s", snap.SchemaVersion, e.Schema().Version())
	}
}

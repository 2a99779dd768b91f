package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/reedwoodruff/molecule-schema-sub000/internal/builder"
	"github.com/reedwoodruff/molecule-schema-sub000/internal/engine"
	"github.com/reedwoodruff/molecule-schema-sub000/internal/ir"
	tu "github.com/reedwoodruff/molecule-schema-sub000/internal/testutil"
)

// createTestStore creates a new on-disk store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testSchema: shelves hold up to three notes.
func testSchema() *ir.Schema {
	return tu.NewSchema().
		Template("note", tu.Field("body", ir.TypeString)).
		Template("shelf",
			tu.Field("label", ir.TypeString),
			tu.Slot("notes", ir.UpperBound(3), "note")).
		Operative("note", "note").
		Operative("shelf", "shelf").
		Build()
}

var (
	bodyID  = tu.FieldID("note", "body")
	labelID = tu.FieldID("shelf", "label")
	notesID = tu.SlotID("shelf", "notes")
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEngine creates an engine over testSchema whose ids start at prefix.
func newTestEngine(prefix uint64, opts ...engine.Option) *engine.Engine {
	base := []engine.Option{
		engine.WithLogger(quietLogger()),
		engine.WithIDGenerator(tu.NewDeterministicUIDs(prefix)),
	}
	return engine.New(testSchema(), append(base, opts...)...)
}

// seedSession creates a session over testSchema.
func seedSession(t *testing.T, s *Store, id string) {
	t.Helper()
	if err := s.CreateSession(context.Background(), id, testSchema()); err != nil {
		t.Fatalf("CreateSession() failed: %v", err)
	}
}

// buildShelf commits a shelf holding one note per body and returns the
// shelf's id.
func buildShelf(t *testing.T, e *engine.Engine, label string, bodies ...string) ir.UID {
	t.Helper()
	b := builder.New(e, tu.OperativeID("shelf")).SetField(labelID, ir.String(label))
	for _, body := range bodies {
		b.AddNew(notesID, tu.OperativeID("note"), func(n *builder.Builder) {
			n.SetField(bodyID, ir.String(body))
		})
	}
	if _, err := b.Execute(); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	return b.ID()
}

// sameGraph reports whether two engines hold equal records.
func sameGraph(t *testing.T, want, got *engine.Engine) {
	t.Helper()
	if want.Len() != got.Len() {
		t.Fatalf("graph has %d instances, want %d", got.Len(), want.Len())
	}
	for _, id := range want.IDs() {
		w, _ := want.Get(id)
		g, ok := got.Get(id)
		if !ok {
			t.Fatalf("instance %s missing", id)
		}
		if !w.Equal(g) {
			t.Errorf("instance %s differs", id)
		}
	}
}

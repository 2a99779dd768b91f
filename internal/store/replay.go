package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/reedwoodruff/molecule-schema-sub000/internal/engine"
	"github.com/reedwoodruff/molecule-schema-sub000/internal/ir"
)

// Restore rebuilds a session's graph.
//
// Starts from the latest snapshot when there is one, otherwise from the base
// schema, then replays the journal entries recorded after that point. The
// engine's clock continues after the last journal seq, so a Recorder
// attached to it appends without collisions. The restored engine has empty
// history: undo does not reach back past a restore.
func (s *Store) Restore(ctx context.Context, sessionID string, opts ...engine.Option) (*engine.Engine, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	last, err := s.LastSeq(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("restore %q: %w", sessionID, err)
	}

	var (
		schema *ir.Schema
		after  int64
		start  []*ir.Blueprint
	)
	snap, err := s.LatestSnapshot(ctx, sessionID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if schema, err = s.GetSchema(ctx, sess.BaseSchema); err != nil {
			return nil, fmt.Errorf("restore %q: %w", sessionID, err)
		}
	case err != nil:
		return nil, fmt.Errorf("restore %q: %w", sessionID, err)
	default:
		if schema, err = s.GetSchema(ctx, snap.SchemaVersion); err != nil {
			return nil, fmt.Errorf("restore %q: %w", sessionID, err)
		}
		bp, err := engine.LoadBlueprint(snap.Instances)
		if err != nil {
			return nil, fmt.Errorf("restore %q: snapshot %d: %w", sessionID, snap.Seq, err)
		}
		start = append(start, bp)
		after = snap.Seq
	}

	entries, err := s.ReadJournal(ctx, sessionID, after)
	if err != nil {
		return nil, fmt.Errorf("restore %q: %w", sessionID, err)
	}
	bps := start
	for _, entry := range entries {
		bps = append(bps, entry.Blueprint)
	}

	opts = append(opts, engine.WithClock(engine.NewClockAt(max(last, after))))
	e, err := engine.Replay(schema, bps, opts...)
	if err != nil {
		return nil, fmt.Errorf("restore %q: %w", sessionID, err)
	}
	return e, nil
}

// Recorder journals an engine's events into a session as they happen.
//
// Engine observers cannot fail, so a write error is logged through the
// engine's logger and kept; later events are still attempted. Check Err
// after a batch of edits.
type Recorder struct {
	store   *Store
	session string
	ctx     context.Context
	engine  *engine.Engine
	stop    func()

	mu  sync.Mutex
	err error
}

// Record subscribes to e and appends each event to the session's journal.
func (s *Store) Record(ctx context.Context, sessionID string, e *engine.Engine) *Recorder {
	r := &Recorder{store: s, session: sessionID, ctx: ctx, engine: e}
	r.stop = e.Subscribe(r.observe)
	return r
}

func (r *Recorder) observe(ev engine.Event) {
	if err := r.store.AppendEvent(r.ctx, r.session, ev); err != nil {
		r.engine.Logger().Error("journal write failed",
			"session", r.session,
			"seq", ev.Seq,
			"kind", ev.Kind.String(),
			"error", err,
		)
		r.mu.Lock()
		if r.err == nil {
			r.err = err
		}
		r.mu.Unlock()
	}
}

// Err returns the first write error, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close stops recording. Returns the first write error, if any.
func (r *Recorder) Close() error {
	r.stop()
	return r.Err()
}

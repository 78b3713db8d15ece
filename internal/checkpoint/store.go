// Package checkpoint persists ingestion progress: the durable cursor plus a
// bounded recent-report-ID window that tolerates feed re-delivery with ties
// and mild reordering.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/couchcryptid/spotter-report-loader/internal/domain"
)

// ErrCursorConflict is returned by Commit when the stored cursor no longer
// matches the caller's view.
var ErrCursorConflict = domain.ErrCursorConflict

const checkpointKey = "checkpoint"

var seenPrefix = []byte("seen/")

// Store is a BadgerDB-backed checkpoint tracker. The cursor lives under a
// fixed key; recently committed report IDs live under a prefix with a TTL
// matching the dedupe window. Writes are fsync'd so an acked commit survives
// a crash.
//
// Store implements pipeline.Tracker.
type Store struct {
	db        *badger.DB
	windowTTL time.Duration
	logger    *slog.Logger

	mu     sync.Mutex
	cur    domain.Checkpoint
	window *idWindow
}

// Open opens (or creates) the checkpoint database at dir and rebuilds the
// in-memory recent-ID window from the persisted entries.
func Open(dir string, windowSize int, windowTTL time.Duration, logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(dir).
		WithSyncWrites(true).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint db: %w", err)
	}

	s := &Store{
		db:        db,
		windowTTL: windowTTL,
		logger:    logger,
		window:    newIDWindow(windowSize),
	}
	if err := s.recover(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// recover loads the persisted checkpoint and recent-ID window. Badger expires
// the TTL'd window entries on its own; whatever is still live gets mirrored
// into memory.
func (s *Store) recover() error {
	err := s.db.View(func(txn *badger.Txn) error {
		cur, err := readCheckpoint(txn)
		if err != nil {
			return err
		}
		s.cur = cur

		it := txn.NewIterator(badger.IteratorOptions{Prefix: seenPrefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			s.window.add(string(key[len(seenPrefix):]))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("recover checkpoint: %w", err)
	}
	s.logger.Info("checkpoint recovered",
		"cursor", s.cur.Cursor,
		"window_ids", s.window.len(),
	)
	return nil
}

// Load returns the current checkpoint. Zero value on first run.
func (s *Store) Load() (domain.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur, nil
}

// Admit reports whether a report should enter the pipeline: its ID must not
// be in the recent window and its report time must not predate the cursor by
// more than the window TTL. Reports without a parseable time (unrecognized
// lines) are admitted once so they reach quarantine.
func (s *Store) Admit(r domain.RawReport) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.window.contains(r.ID) {
		return false
	}
	if s.cur.Cursor.IsZero() || r.ReportedAt.IsZero() {
		return true
	}
	return r.ReportedAt.After(s.cur.Cursor.Add(-s.windowTTL))
}

// Commit atomically advances the checkpoint and records the batch's report
// IDs, but only if the stored cursor still equals expected (compare-and-set
// against concurrent restarts). The cursor never decreases: a next cursor
// older than expected is clamped. Call this only after the sink has
// acknowledged durable persistence of the batch.
func (s *Store) Commit(expected, next domain.Checkpoint, ids []string) error {
	if next.Cursor.Before(expected.Cursor) {
		next.Cursor = expected.Cursor
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(txn *badger.Txn) error {
		stored, err := readCheckpoint(txn)
		if err != nil {
			return err
		}
		if !stored.Cursor.Equal(expected.Cursor) {
			return ErrCursorConflict
		}

		buf, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal checkpoint: %w", err)
		}
		if err := txn.Set([]byte(checkpointKey), buf); err != nil {
			return err
		}
		for _, id := range ids {
			entry := badger.NewEntry(append(seenPrefix, id...), []byte{1}).WithTTL(s.windowTTL)
			if err := txn.SetEntry(entry); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrCursorConflict) {
			return err
		}
		return fmt.Errorf("persist checkpoint: %w", err)
	}

	s.cur = next
	for _, id := range ids {
		s.window.add(id)
	}
	return nil
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func readCheckpoint(txn *badger.Txn) (domain.Checkpoint, error) {
	var cur domain.Checkpoint

	item, err := txn.Get([]byte(checkpointKey))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return cur, nil
	}
	if err != nil {
		return cur, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &cur)
	})
	return cur, err
}

// idWindow is a bounded insertion-ordered set of report IDs. When full, the
// oldest ID falls out; the idempotent sink makes an occasional false
// re-admission harmless.
type idWindow struct {
	max     int
	order   []string
	present map[string]struct{}
}

func newIDWindow(max int) *idWindow {
	return &idWindow{
		max:     max,
		present: make(map[string]struct{}, max),
	}
}

func (w *idWindow) contains(id string) bool {
	_, ok := w.present[id]
	return ok
}

func (w *idWindow) add(id string) {
	if w.contains(id) {
		return
	}
	w.order = append(w.order, id)
	w.present[id] = struct{}{}
	for len(w.order) > w.max {
		delete(w.present, w.order[0])
		w.order = w.order[1:]
	}
}

func (w *idWindow) len() int {
	return len(w.order)
}

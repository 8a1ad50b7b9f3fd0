// Package checkpoint implements the supplemental MergeCheckpoint record:
// an operator-visible marker of how far a merge run has progressed,
// written defensively per term as the merger finalizes it. It plays no
// role in correctness — a merge run that never writes a checkpoint still
// produces a correct inverted index — it only lets an operator inspect
// an in-flight or aborted run.
package checkpoint

import (
	"context"
	"time"

	"github.com/wizenheimer/harvest/internal/store"
)

// CollectionName holds one document per term touched by the current (or
// most recent) merge run.
const CollectionName = "merge_checkpoints"

// MergeCheckpoint records the last bucket flushed for a term during a
// merge run.
type MergeCheckpoint struct {
	Term       string    `bson:"_id"`
	LastBucket int       `bson:"last_merged_bucket"`
	UpdatedAt  time.Time `bson:"updated_at"`
	Completed  bool      `bson:"completed"`
}

// Store wraps the merge_checkpoints collection.
type Store struct {
	coll store.Collection
	st   store.Store
}

// New wraps a Store's merge_checkpoints collection.
func New(st store.Store) *Store {
	return &Store{coll: st.Collection(CollectionName), st: st}
}

// Record upserts the checkpoint for cp.Term. Since the underlying store
// contract offers no native upsert, this does an update-then-insert
// fallback, which is safe because checkpoints are advisory and never
// read back by the merger itself.
func (s *Store) Record(ctx context.Context, cp MergeCheckpoint) error {
	cp.UpdatedAt = nowFunc()
	err := s.coll.UpdateByID(ctx, cp.Term, store.Update{Set: map[string]any{
		"last_merged_bucket": cp.LastBucket,
		"updated_at":         cp.UpdatedAt,
		"completed":          cp.Completed,
	}})
	if err == store.ErrNotFound {
		return s.coll.InsertOne(ctx, cp)
	}
	return err
}

// DropAll removes every checkpoint document, called once a merge run
// commits (drops its spimi_block_* collections); an orphaned checkpoint
// from an aborted run is harmless and overwritten by the next run.
func (s *Store) DropAll(ctx context.Context) error {
	return s.st.DropCollection(ctx, CollectionName)
}

// nowFunc is a seam so tests can freeze time if they ever need to; kept
// as a plain function value rather than a field since checkpoints are
// best-effort and not part of any invariant under test.
var nowFunc = time.Now

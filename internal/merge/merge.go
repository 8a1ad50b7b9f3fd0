// Package merge implements the k-way merger (component D): it heap-merges
// every spimi_block_* collection by (term, bucket), partitions merged
// postings+positions into fixed-size buckets, and appends them into the
// authoritative inverted_index collection with resumable, idempotent
// semantics before dropping the block collections.
package merge

import (
	"container/heap"
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/wizenheimer/harvest/internal/checkpoint"
	"github.com/wizenheimer/harvest/internal/docid"
	"github.com/wizenheimer/harvest/internal/spimi"
	"github.com/wizenheimer/harvest/internal/store"
)

// IndexCollectionName is the authoritative, persistent inverted index.
const IndexCollectionName = "inverted_index"

// Entry is one document of the inverted_index collection; same shape as
// spimi.BlockEntry plus the store-addressable ID the merger needs to
// extend an existing partial bucket in place.
type Entry struct {
	ID                string           `bson:"_id"`
	Term              string           `bson:"term"`
	Bucket            int              `bson:"bucket"`
	DocumentFrequency int64            `bson:"document_frequency"`
	Postings          []docid.ID       `bson:"postings"`
	Positions         map[string][]int `bson:"positions"`
}

// entryID is the deterministic primary key for a (term, bucket) pair.
func entryID(term string, bucket int) string {
	return term + "#" + strconv.Itoa(bucket)
}

// Merger drives one merge run.
type Merger struct {
	st          store.Store
	log         zerolog.Logger
	checkpoints *checkpoint.Store
}

// New constructs a Merger. checkpoints may be nil to skip the
// supplemental progress-visibility writes entirely.
func New(st store.Store, log zerolog.Logger, checkpoints *checkpoint.Store) *Merger {
	return &Merger{st: st, log: log, checkpoints: checkpoints}
}

// cursorState tracks one block collection's sorted (term, bucket) scan.
type cursorState struct {
	sourceIndex int
	cur         store.Cursor
	current     spimi.BlockEntry
	exhausted   bool
}

func (c *cursorState) advance(ctx context.Context) error {
	if !c.cur.Next(ctx) {
		c.exhausted = true
		return c.cur.Err()
	}
	var e spimi.BlockEntry
	if err := c.cur.Decode(&e); err != nil {
		return err
	}
	c.current = e
	return nil
}

// heapItem is what the min-heap orders: by (term, source_index)
// ascending, per the merger's deterministic-drain contract.
type heapItem struct {
	term   string
	bucket int
	src    int
}

type itemHeap []heapItem

func (h itemHeap) Len() int { return len(h) }
func (h itemHeap) Less(i, j int) bool {
	if h[i].term != h[j].term {
		return h[i].term < h[j].term
	}
	return h[i].src < h[j].src
}
func (h itemHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *itemHeap) Push(x any)         { *h = append(*h, x.(heapItem)) }
func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// termAccumulator is the merger's per-active-term state.
type termAccumulator struct {
	postings          []docid.ID
	positions         map[docid.ID][]int
	nextBucket        int
	existingBucketID  string
	existingHasRoom   bool
}

// Run performs one full merge pass over every present spimi_block_*
// collection. With zero block collections present it is a no-op.
func (m *Merger) Run(ctx context.Context) error {
	names, err := m.st.ListCollections(ctx, spimi.BlockCollectionPrefix)
	if err != nil {
		return fmt.Errorf("merge: list block collections: %w", err)
	}
	if len(names) == 0 {
		return nil
	}

	cursors := make([]*cursorState, len(names))
	h := &itemHeap{}
	for i, name := range names {
		cur, err := m.st.Collection(name).Find(ctx, store.Filter{}, store.FindOptions{
			Sort: []store.SortKey{{Field: "term", Ascending: true}, {Field: "bucket", Ascending: true}},
		})
		if err != nil {
			return fmt.Errorf("merge: open cursor on %s: %w", name, err)
		}
		cs := &cursorState{sourceIndex: i, cur: cur}
		cursors[i] = cs
		if err := cs.advance(ctx); err != nil {
			return fmt.Errorf("merge: initial advance on %s: %w", name, err)
		}
		if !cs.exhausted {
			heap.Push(h, heapItem{term: cs.current.Term, bucket: cs.current.Bucket, src: i})
		}
	}
	heap.Init(h)

	var acc *termAccumulator
	var activeTerm string

	for h.Len() > 0 {
		item := heap.Pop(h).(heapItem)
		cs := cursors[item.src]
		entry := cs.current

		if acc == nil || entry.Term != activeTerm {
			if acc != nil {
				if err := m.finalize(ctx, activeTerm, acc); err != nil {
					return err
				}
			}
			activeTerm = entry.Term
			var err error
			acc, err = m.initAccumulator(ctx, activeTerm)
			if err != nil {
				return err
			}
		}

		m.mergeEntry(acc, entry)
		if err := m.chunkFlushWhileOver(ctx, activeTerm, acc); err != nil {
			return err
		}

		if err := cs.advance(ctx); err != nil {
			return fmt.Errorf("merge: advance cursor %d: %w", item.src, err)
		}
		if !cs.exhausted {
			heap.Push(h, heapItem{term: cs.current.Term, bucket: cs.current.Bucket, src: item.src})
		}
	}

	if acc != nil {
		if err := m.finalize(ctx, activeTerm, acc); err != nil {
			return err
		}
	}

	for _, name := range names {
		if err := m.st.DropCollection(ctx, name); err != nil {
			return fmt.Errorf("merge: drop %s: %w", name, err)
		}
	}
	if m.checkpoints != nil {
		if err := m.checkpoints.DropAll(ctx); err != nil {
			m.log.Warn().Err(err).Msg("failed to drop merge checkpoints after commit; harmless, will be overwritten next run")
		}
	}
	m.log.Info().Int("blocks_merged", len(names)).Msg("merge run committed")
	return nil
}

// initAccumulator looks up the last bucket currently persisted for term
// and seeds nextBucket/existingBucketID so the first finalize for this
// term extends that bucket in place if it has room, rather than starting
// a new one — this is what makes indexing incremental.
func (m *Merger) initAccumulator(ctx context.Context, term string) (*termAccumulator, error) {
	coll := m.st.Collection(IndexCollectionName)
	cur, err := coll.Find(ctx, store.Filter{"term": term}, store.FindOptions{
		Sort:  []store.SortKey{{Field: "bucket", Ascending: false}},
		Limit: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("merge: lookup last bucket for %q: %w", term, err)
	}
	defer cur.Close(ctx)

	acc := &termAccumulator{positions: make(map[docid.ID][]int)}
	if cur.Next(ctx) {
		var last Entry
		if err := cur.Decode(&last); err != nil {
			return nil, err
		}
		acc.nextBucket = last.Bucket + 1
		if last.DocumentFrequency < spimi.Chunk {
			acc.existingBucketID = last.ID
			acc.existingHasRoom = true
			acc.nextBucket = last.Bucket + 1
			// Pull the existing partial bucket's contents into the
			// accumulator so chunk-flush sees the true combined size
			// before deciding whether this bucket is still partial.
			for _, d := range last.Postings {
				acc.postings = append(acc.postings, d)
				acc.positions[d] = append([]int(nil), last.Positions[d.Hex()]...)
			}
		}
	}
	return acc, nil
}

// mergeEntry folds one block entry into the active term's accumulator:
// sorted-union with dedup on postings, append-with-merge on positions.
func (m *Merger) mergeEntry(acc *termAccumulator, e spimi.BlockEntry) {
	merged := make([]docid.ID, 0, len(acc.postings)+len(e.Postings))
	i, j := 0, 0
	for i < len(acc.postings) && j < len(e.Postings) {
		a, b := acc.postings[i], e.Postings[j]
		switch {
		case docid.Less(a, b):
			merged = append(merged, a)
			i++
		case docid.Less(b, a):
			merged = append(merged, b)
			j++
		default:
			merged = append(merged, a)
			i++
			j++
		}
	}
	merged = append(merged, acc.postings[i:]...)
	merged = append(merged, e.Postings[j:]...)
	acc.postings = merged

	for _, d := range e.Postings {
		newPositions := e.Positions[d.Hex()]
		if len(newPositions) == 0 {
			continue
		}
		existing := acc.positions[d]
		acc.positions[d] = mergeSortedUnique(existing, newPositions)
	}
}

// mergeSortedUnique merges two ascending position sequences into one
// ascending, deduplicated sequence. Positions within a single block
// contribution arrive ascending already; across blocks (a page re-indexed
// in two different runs) the two inputs may overlap, which dedup
// tolerates per the merger's idempotence requirement.
func mergeSortedUnique(a, b []int) []int {
	if len(a) == 0 {
		return append([]int(nil), b...)
	}
	out := make([]int, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			out = append(out, a[i])
			i++
		case b[j] < a[i]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}

// chunkFlushWhileOver emits full Chunk-sized buckets while the
// accumulator holds at least Chunk postings, leaving any remainder
// accumulating for the next merge or the term's finalize.
func (m *Merger) chunkFlushWhileOver(ctx context.Context, term string, acc *termAccumulator) error {
	for len(acc.postings) >= spimi.Chunk {
		chunk := acc.postings[:spimi.Chunk]
		if err := m.emit(ctx, term, acc, chunk); err != nil {
			return err
		}
		acc.postings = acc.postings[spimi.Chunk:]
	}
	return nil
}

// finalize flushes whatever remains in acc as the (possibly partial)
// last bucket for term.
func (m *Merger) finalize(ctx context.Context, term string, acc *termAccumulator) error {
	if len(acc.postings) == 0 {
		return nil
	}
	if err := m.emit(ctx, term, acc, acc.postings); err != nil {
		return err
	}
	acc.postings = nil
	if m.checkpoints != nil {
		if err := m.checkpoints.Record(ctx, checkpoint.MergeCheckpoint{
			Term:      term,
			LastBucket: acc.nextBucket - 1,
			Completed: true,
		}); err != nil {
			m.log.Warn().Err(err).Str("term", term).Msg("failed to record merge checkpoint")
		}
	}
	return nil
}

// emit writes chunk as either an update to the existing partial bucket
// (first flush for this term, if one existed) or a brand-new bucket.
func (m *Merger) emit(ctx context.Context, term string, acc *termAccumulator, chunk []docid.ID) error {
	positions := make(map[string][]int, len(chunk))
	for _, d := range chunk {
		positions[d.Hex()] = acc.positions[d]
	}

	coll := m.st.Collection(IndexCollectionName)
	if acc.existingHasRoom {
		id := acc.existingBucketID
		acc.existingHasRoom = false
		return coll.UpdateByID(ctx, id, store.Update{
			Set: map[string]any{
				"postings":           chunk,
				"positions":          positions,
				"document_frequency": int64(len(chunk)),
			},
		})
	}

	bucket := acc.nextBucket
	acc.nextBucket++
	entry := Entry{
		ID:                entryID(term, bucket),
		Term:              term,
		Bucket:            bucket,
		DocumentFrequency: int64(len(chunk)),
		Postings:          chunk,
		Positions:         positions,
	}
	m.log.Info().Str("term", term).Int("bucket", bucket).Int("df", len(chunk)).Msg("inverted index bucket written")
	return coll.InsertOne(ctx, entry)
}

// EnsureIndexes creates the compound (term, bucket) index the query
// engine's fetch and the merger's "find last bucket" lookup both rely
// on.
func EnsureIndexes(ctx context.Context, st store.Store) error {
	return st.Collection(IndexCollectionName).CreateIndex(ctx, store.IndexSpec{
		Keys: []store.SortKey{{Field: "term", Ascending: true}, {Field: "bucket", Ascending: true}},
	})
}

package merge

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/wizenheimer/harvest/internal/docid"
	"github.com/wizenheimer/harvest/internal/spimi"
	"github.com/wizenheimer/harvest/internal/store"
)

func writeBlock(t *testing.T, ctx context.Context, st store.Store, name string, entries []spimi.BlockEntry) {
	t.Helper()
	coll := st.Collection(name)
	for _, e := range entries {
		if err := coll.InsertOne(ctx, e); err != nil {
			t.Fatalf("insert block entry: %v", err)
		}
	}
}

func fetchAllEntries(t *testing.T, ctx context.Context, st store.Store, term string) []Entry {
	t.Helper()
	cur, err := st.Collection(IndexCollectionName).Find(ctx, store.Filter{"term": term}, store.FindOptions{
		Sort: []store.SortKey{{Field: "bucket", Ascending: true}},
	})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	var out []Entry
	for cur.Next(ctx) {
		var e Entry
		if err := cur.Decode(&e); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		out = append(out, e)
	}
	return out
}

func TestMergeNoOpOnZeroBlocks(t *testing.T) {
	st := store.NewMemStore()
	m := New(st, zerolog.Nop(), nil)
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	entries := fetchAllEntries(t, context.Background(), st, "anything")
	if len(entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(entries))
	}
}

func TestMergeSingleBlockOneTermOneDoc(t *testing.T) {
	st := store.NewMemStore()
	ctx := context.Background()
	d := docid.New()
	writeBlock(t, ctx, st, "spimi_block_0001", []spimi.BlockEntry{
		{Term: "fox", Bucket: 0, DocumentFrequency: 1, Postings: []docid.ID{d}, Positions: map[string][]int{d.Hex(): {0}}},
	})

	m := New(st, zerolog.Nop(), nil)
	if err := m.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	entries := fetchAllEntries(t, ctx, st, "fox")
	if len(entries) != 1 {
		t.Fatalf("expected 1 bucket, got %d", len(entries))
	}
	if len(entries[0].Postings) != 1 || entries[0].Postings[0] != d {
		t.Fatalf("unexpected postings: %+v", entries[0].Postings)
	}

	names, _ := st.ListCollections(ctx, spimi.BlockCollectionPrefix)
	if len(names) != 0 {
		t.Fatalf("expected block collections to be dropped, got %v", names)
	}
}

func TestMergeChunkBoundaryExactlyChunk(t *testing.T) {
	st := store.NewMemStore()
	ctx := context.Background()

	ids := make([]docid.ID, spimi.Chunk)
	positions := make(map[string][]int, spimi.Chunk)
	for i := range ids {
		ids[i] = docid.New()
		positions[ids[i].Hex()] = []int{0}
	}
	docid.SortSlice(ids)
	writeBlock(t, ctx, st, "spimi_block_a", []spimi.BlockEntry{
		{Term: "t", Bucket: 0, DocumentFrequency: int64(spimi.Chunk), Postings: ids, Positions: positions},
	})

	m := New(st, zerolog.Nop(), nil)
	if err := m.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	entries := fetchAllEntries(t, ctx, st, "t")
	if len(entries) != 1 {
		t.Fatalf("expected exactly 1 bucket at the Chunk boundary, got %d", len(entries))
	}
	if entries[0].DocumentFrequency != int64(spimi.Chunk) {
		t.Fatalf("expected df == Chunk, got %d", entries[0].DocumentFrequency)
	}
}

func TestMergeChunkBoundaryChunkPlusOneProducesTwoBuckets(t *testing.T) {
	st := store.NewMemStore()
	ctx := context.Background()

	ids := make([]docid.ID, spimi.Chunk+1)
	positions := make(map[string][]int, spimi.Chunk+1)
	for i := range ids {
		ids[i] = docid.New()
		positions[ids[i].Hex()] = []int{0}
	}
	docid.SortSlice(ids)
	writeBlock(t, ctx, st, "spimi_block_a", []spimi.BlockEntry{
		{Term: "t", Bucket: 0, DocumentFrequency: int64(len(ids)), Postings: ids, Positions: positions},
	})

	m := New(st, zerolog.Nop(), nil)
	if err := m.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	entries := fetchAllEntries(t, ctx, st, "t")
	if len(entries) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(entries))
	}
	if entries[0].DocumentFrequency != int64(spimi.Chunk) {
		t.Fatalf("expected first bucket df == Chunk, got %d", entries[0].DocumentFrequency)
	}
	if entries[1].DocumentFrequency != 1 {
		t.Fatalf("expected second bucket df == 1, got %d", entries[1].DocumentFrequency)
	}
	if docid.Compare(entries[0].Postings[len(entries[0].Postings)-1], entries[1].Postings[0]) >= 0 {
		t.Fatalf("expected strictly ascending postings across buckets")
	}
}

func TestMergeIncrementalExtendsExistingPartialBucket(t *testing.T) {
	st := store.NewMemStore()
	ctx := context.Background()

	firstIDs := make([]docid.ID, 40_000)
	firstPositions := make(map[string][]int, 40_000)
	for i := range firstIDs {
		firstIDs[i] = docid.New()
		firstPositions[firstIDs[i].Hex()] = []int{0}
	}
	docid.SortSlice(firstIDs)
	writeBlock(t, ctx, st, "spimi_block_a", []spimi.BlockEntry{
		{Term: "t", Bucket: 0, DocumentFrequency: 40_000, Postings: firstIDs, Positions: firstPositions},
	})

	m := New(st, zerolog.Nop(), nil)
	if err := m.Run(ctx); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	entries := fetchAllEntries(t, ctx, st, "t")
	if len(entries) != 1 || entries[0].DocumentFrequency != 40_000 {
		t.Fatalf("expected one partial bucket df=40000 after first run, got %+v", entries)
	}

	secondIDs := make([]docid.ID, 40_000)
	secondPositions := make(map[string][]int, 40_000)
	for i := range secondIDs {
		secondIDs[i] = docid.New()
		secondPositions[secondIDs[i].Hex()] = []int{0}
	}
	docid.SortSlice(secondIDs)
	writeBlock(t, ctx, st, "spimi_block_b", []spimi.BlockEntry{
		{Term: "t", Bucket: 0, DocumentFrequency: 40_000, Postings: secondIDs, Positions: secondPositions},
	})

	if err := m.Run(ctx); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	entries = fetchAllEntries(t, ctx, st, "t")
	if len(entries) != 1 {
		t.Fatalf("expected existing bucket to be extended in place (still 1 bucket), got %d", len(entries))
	}
	if entries[0].DocumentFrequency != 80_000 {
		t.Fatalf("expected df=80000 after incremental extend, got %d", entries[0].DocumentFrequency)
	}
}

func TestMergeDedupsDuplicatePostingsAcrossBlocks(t *testing.T) {
	st := store.NewMemStore()
	ctx := context.Background()
	d := docid.New()

	writeBlock(t, ctx, st, "spimi_block_a", []spimi.BlockEntry{
		{Term: "t", Bucket: 0, DocumentFrequency: 1, Postings: []docid.ID{d}, Positions: map[string][]int{d.Hex(): {0}}},
	})
	writeBlock(t, ctx, st, "spimi_block_b", []spimi.BlockEntry{
		{Term: "t", Bucket: 0, DocumentFrequency: 1, Postings: []docid.ID{d}, Positions: map[string][]int{d.Hex(): {5}}},
	})

	m := New(st, zerolog.Nop(), nil)
	if err := m.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	entries := fetchAllEntries(t, ctx, st, "t")
	if len(entries) != 1 || len(entries[0].Postings) != 1 {
		t.Fatalf("expected postings to be deduplicated to a single DocId, got %+v", entries)
	}
	positions := entries[0].Positions[d.Hex()]
	if len(positions) != 2 || positions[0] != 0 || positions[1] != 5 {
		t.Fatalf("expected merged, ascending positions [0 5], got %v", positions)
	}
}

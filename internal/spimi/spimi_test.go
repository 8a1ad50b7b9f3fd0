package spimi

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/wizenheimer/harvest/internal/docid"
	"github.com/wizenheimer/harvest/internal/store"
)

func TestBuilderFlushesOnBudgetAndAtEndOfStream(t *testing.T) {
	st := store.NewMemStore()
	b := NewBuilder(st, 200, zerolog.Nop())

	ch := make(chan TokenMsg, 16)
	d1, d2 := docid.New(), docid.New()
	go func() {
		ch <- TokenMsg{Token: Token{Term: "fox", Doc: d1, Pos: 0}}
		ch <- TokenMsg{Token: Token{Term: "fox", Doc: d2, Pos: 1}}
		ch <- TokenMsg{Token: Token{Term: "dog", Doc: d1, Pos: 2}}
		ch <- TokenMsg{End: true}
		close(ch)
	}()

	if err := b.Consume(context.Background(), ch); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if len(b.BlocksWritten) == 0 {
		t.Fatalf("expected at least one block to be flushed")
	}

	names, err := st.ListCollections(context.Background(), BlockCollectionPrefix)
	if err != nil {
		t.Fatalf("ListCollections: %v", err)
	}
	if len(names) == 0 {
		t.Fatalf("expected block collections to exist in store")
	}

	var total int
	for _, name := range names {
		cur, err := st.Collection(name).Find(context.Background(), store.Filter{}, store.FindOptions{})
		if err != nil {
			t.Fatalf("Find: %v", err)
		}
		for cur.Next(context.Background()) {
			var e BlockEntry
			if err := cur.Decode(&e); err != nil {
				t.Fatalf("Decode: %v", err)
			}
			total++
			if int64(len(e.Postings)) != e.DocumentFrequency {
				t.Fatalf("df mismatch: len(postings)=%d df=%d", len(e.Postings), e.DocumentFrequency)
			}
			if len(e.Postings) > Chunk {
				t.Fatalf("chunk too large: %d > %d", len(e.Postings), Chunk)
			}
		}
	}
	if total != 2 {
		t.Fatalf("expected 2 block entries (fox, dog), got %d", total)
	}
}

func TestBuilderChunksAtExactlyChunkBoundary(t *testing.T) {
	st := store.NewMemStore()
	b := NewBuilder(st, 1<<30, zerolog.Nop())

	for i := 0; i < Chunk+1; i++ {
		b.ingest(Token{Term: "t", Doc: docid.New(), Pos: 0})
	}
	if err := b.finalFlush(context.Background()); err != nil {
		t.Fatalf("finalFlush: %v", err)
	}

	names, _ := st.ListCollections(context.Background(), BlockCollectionPrefix)
	if len(names) != 1 {
		t.Fatalf("expected 1 block collection, got %d", len(names))
	}
	cur, err := st.Collection(names[0]).Find(context.Background(), store.Filter{}, store.FindOptions{
		Sort: []store.SortKey{{Field: "bucket", Ascending: true}},
	})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	var entries []BlockEntry
	for cur.Next(context.Background()) {
		var e BlockEntry
		if err := cur.Decode(&e); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		entries = append(entries, e)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 buckets for Chunk+1 docs, got %d", len(entries))
	}
	if len(entries[0].Postings) != Chunk {
		t.Fatalf("expected first bucket to have exactly Chunk postings, got %d", len(entries[0].Postings))
	}
	if len(entries[1].Postings) != 1 {
		t.Fatalf("expected second bucket to have exactly 1 posting, got %d", len(entries[1].Postings))
	}
}

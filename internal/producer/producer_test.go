package producer

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/wizenheimer/harvest/internal/analyzer"
	"github.com/wizenheimer/harvest/internal/page"
	"github.com/wizenheimer/harvest/internal/spimi"
	"github.com/wizenheimer/harvest/internal/store"
)

func TestProducerEmitsTokensAndMarksIndexed(t *testing.T) {
	st := store.NewMemStore()
	repo := page.NewRepository(st)
	ctx := context.Background()

	pages := []page.Page{
		{ID: mustID(1), URL: "http://a", CleanedContent: "quick brown fox"},
		{ID: mustID(2), URL: "http://b", CleanedContent: "quick brown cat"},
	}
	for _, pg := range pages {
		if err := repo.Insert(ctx, pg); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	p := New(repo, analyzer.Default(), 10, zerolog.Nop())
	ch := make(chan spimi.TokenMsg, 64)

	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(ctx, ch) }()

	var msgs []spimi.TokenMsg
	for msg := range ch {
		msgs = append(msgs, msg)
		if msg.End {
			break
		}
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(msgs) == 0 || !msgs[len(msgs)-1].End {
		t.Fatalf("expected stream to terminate with an End marker, got %+v", msgs)
	}
	var termCount int
	for _, m := range msgs {
		if !m.End {
			termCount++
		}
	}
	if termCount == 0 {
		t.Fatalf("expected some tokens to be emitted")
	}

	for _, pg := range pages {
		batch, err := repo.PendingBatch(ctx, pg.ID, 1)
		if err != nil {
			t.Fatalf("PendingBatch: %v", err)
		}
		_ = batch // presence check below covers indexed flag directly
	}

	remaining, err := repo.PendingBatch(ctx, [12]byte{}, 10)
	if err != nil {
		t.Fatalf("PendingBatch: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected no pending pages after Run, got %d", len(remaining))
	}
}

func mustID(n byte) [12]byte {
	var id [12]byte
	id[11] = n
	return id
}

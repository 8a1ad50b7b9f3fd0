// Package producer implements the token stream producer (component B):
// it drives pending pages through an analyzer and emits tokens onto a
// channel consumed by the SPIMI block builder.
package producer

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/wizenheimer/harvest/internal/analyzer"
	"github.com/wizenheimer/harvest/internal/docid"
	"github.com/wizenheimer/harvest/internal/page"
	"github.com/wizenheimer/harvest/internal/spimi"
)

// Producer reads pending pages in DocId order and emits their analyzed
// tokens onto a TokenMsg channel.
type Producer struct {
	repo      *page.Repository
	analyzer  *analyzer.Analyzer
	batchSize int
	log       zerolog.Logger
}

// New constructs a Producer. batchSize is the page_fetch_limit of the
// index subcommand.
func New(repo *page.Repository, a *analyzer.Analyzer, batchSize int, log zerolog.Logger) *Producer {
	if batchSize <= 0 {
		batchSize = 10_000
	}
	return &Producer{repo: repo, analyzer: a, batchSize: batchSize, log: log}
}

// Run fetches pending pages batch by batch, emits their tokens on ch,
// marks each batch indexed after it is fully emitted, and closes ch with
// an End marker when no pages remain. It blocks (applying backpressure)
// rather than dropping tokens if the consumer is slow to drain ch.
func (p *Producer) Run(ctx context.Context, ch chan<- spimi.TokenMsg) error {
	defer func() {
		select {
		case ch <- spimi.TokenMsg{End: true}:
		case <-ctx.Done():
		}
		close(ch)
	}()

	var cursor docid.ID
	for {
		pages, err := p.repo.PendingBatch(ctx, cursor, p.batchSize)
		if err != nil {
			return fmt.Errorf("producer: fetch pending batch: %w", err)
		}
		if len(pages) == 0 {
			return nil
		}

		var indexedIDs []docid.ID
		for _, pg := range pages {
			tokens := p.analyzer.Analyze(pg.CleanedContent)
			if tokens == nil {
				p.log.Warn().Str("page_id", pg.ID.Hex()).Msg("page produced no tokens; it is still marked indexed")
			}
			if err := p.emitPage(ctx, ch, pg.ID, tokens); err != nil {
				p.log.Warn().Err(err).Str("page_id", pg.ID.Hex()).Msg("failed to analyze page; skipping")
				continue
			}
			indexedIDs = append(indexedIDs, pg.ID)
		}

		for _, id := range indexedIDs {
			if err := p.repo.MarkIndexed(ctx, id); err != nil {
				// Logged and left for the next run to retry; the merger's
				// dedup-on-union makes re-admission of this page's tokens
				// safe.
				p.log.Warn().Err(err).Str("page_id", id.Hex()).Msg("failed to mark page indexed; will retry next run")
			}
		}

		cursor = pages[len(pages)-1].ID
		if len(pages) < p.batchSize {
			return nil
		}
	}
}

func (p *Producer) emitPage(ctx context.Context, ch chan<- spimi.TokenMsg, id docid.ID, tokens []analyzer.Token) error {
	for _, tok := range tokens {
		select {
		case ch <- spimi.TokenMsg{Token: spimi.Token{Term: tok.Term, Doc: id, Pos: tok.Pos}}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

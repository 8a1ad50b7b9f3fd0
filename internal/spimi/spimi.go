// Package spimi implements the in-memory dictionary accumulator
// (component C) that consumes the token stream produced from pages and
// flushes sorted, chunked blocks to the document store whenever its byte
// budget estimate is exceeded.
package spimi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/wizenheimer/harvest/internal/docid"
	"github.com/wizenheimer/harvest/internal/store"
)

// Chunk is the maximum number of DocIds an inverted-index (and therefore
// a block) entry may carry, fixed by the document store's per-record
// size cap.
const Chunk = 100_000

// BlockCollectionPrefix names every transient collection a flush writes
// to; the merger discovers them with a prefix scan.
const BlockCollectionPrefix = "spimi_block_"

// approxOverheadPerTerm and approxOverheadPerPosting are rough per-entry
// byte costs (map/slice header + term interning) folded into the
// builder's byte-usage estimate; the estimate only needs to be in the
// right ballpark since it controls flush cadence, not a hard cap.
const (
	approxOverheadPerTerm    = 48
	approxOverheadPerDoc     = 24
	approxOverheadPerPosting = 4
)

// Token is one (term, document, position) triple emitted by the token
// stream producer.
type Token struct {
	Term string
	Doc  docid.ID
	Pos  int
}

// TokenMsg is the channel payload: either a Token, or the End-of-stream
// marker (End == true, Token is the zero value).
type TokenMsg struct {
	Token Token
	End   bool
}

// BlockEntry is one persisted row of a spimi_block_* collection.
type BlockEntry struct {
	Term              string           `bson:"term"`
	Bucket            int              `bson:"bucket"`
	DocumentFrequency int64            `bson:"document_frequency"`
	Postings          []docid.ID       `bson:"postings"`
	Positions         map[string][]int `bson:"positions"`
}

type termEntry struct {
	postings  []docid.ID
	positions map[docid.ID][]int
}

// Builder owns the in-memory SPIMI dictionary. It is not safe for
// concurrent use: per the concurrency model, the accumulator belongs
// exclusively to the single goroutine driving the token channel.
type Builder struct {
	st     store.Store
	budget int64
	log    zerolog.Logger

	dict      map[string]*termEntry
	byteUsage int64

	// BlocksWritten records the names of every spimi_block_* collection
	// this builder has flushed, in flush order. Exposed for tests and for
	// a caller that wants to hand the list straight to the merger without
	// a ListCollections round trip.
	BlocksWritten []string
}

// NewBuilder constructs a Builder with the given byte budget B.
func NewBuilder(st store.Store, budgetBytes int64, log zerolog.Logger) *Builder {
	return &Builder{
		st:     st,
		budget: budgetBytes,
		log:    log,
		dict:   make(map[string]*termEntry),
	}
}

// Consume drains tok from ch until an End marker arrives or ctx is
// canceled, flushing whenever the byte budget is exceeded and performing
// one final flush at end-of-stream if the dictionary is non-empty.
func (b *Builder) Consume(ctx context.Context, ch <-chan TokenMsg) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok || msg.End {
				return b.finalFlush(ctx)
			}
			b.ingest(msg.Token)
			if b.byteUsage >= b.budget {
				if err := b.flush(ctx); err != nil {
					return err
				}
			}
		}
	}
}

func (b *Builder) ingest(tok Token) {
	te, ok := b.dict[tok.Term]
	if !ok {
		te = &termEntry{positions: make(map[docid.ID][]int)}
		b.dict[tok.Term] = te
		b.byteUsage += int64(len(tok.Term)) + approxOverheadPerTerm
	}
	if _, exists := te.positions[tok.Doc]; exists {
		te.positions[tok.Doc] = append(te.positions[tok.Doc], tok.Pos)
		b.byteUsage += approxOverheadPerPosting
		return
	}
	te.postings = append(te.postings, tok.Doc)
	te.positions[tok.Doc] = []int{tok.Pos}
	b.byteUsage += 12 + approxOverheadPerDoc + approxOverheadPerPosting
}

func (b *Builder) finalFlush(ctx context.Context) error {
	if len(b.dict) == 0 {
		return nil
	}
	return b.flush(ctx)
}

// flush sorts the dictionary's terms, chunks each term's postings into
// at most Chunk-sized groups, writes them to a freshly named block
// collection, indexes it by term, and clears the in-memory dictionary.
func (b *Builder) flush(ctx context.Context) error {
	terms := make([]string, 0, len(b.dict))
	for t := range b.dict {
		terms = append(terms, t)
	}
	sort.Strings(terms)

	name, err := newBlockCollectionName()
	if err != nil {
		return fmt.Errorf("spimi: generate block name: %w", err)
	}

	var docs []any
	for _, term := range terms {
		te := b.dict[term]
		docid.SortSlice(te.postings)
		for start := 0; start < len(te.postings); start += Chunk {
			end := start + Chunk
			if end > len(te.postings) {
				end = len(te.postings)
			}
			chunk := te.postings[start:end]
			positions := make(map[string][]int, len(chunk))
			for _, d := range chunk {
				positions[d.Hex()] = te.positions[d]
			}
			docs = append(docs, BlockEntry{
				Term:              term,
				Bucket:            start / Chunk,
				DocumentFrequency: int64(len(chunk)),
				Postings:          chunk,
				Positions:         positions,
			})
		}
	}

	coll := b.st.Collection(name)
	if err := coll.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("spimi: flush %s: %w", name, err)
	}
	if err := coll.CreateIndex(ctx, store.IndexSpec{
		Keys: []store.SortKey{{Field: "term", Ascending: true}, {Field: "bucket", Ascending: true}},
	}); err != nil {
		return fmt.Errorf("spimi: index %s: %w", name, err)
	}

	b.log.Info().Str("collection", name).Int("terms", len(terms)).Int64("bytes", b.byteUsage).Msg("spimi block flushed")

	b.BlocksWritten = append(b.BlocksWritten, name)
	b.dict = make(map[string]*termEntry)
	b.byteUsage = 0
	return nil
}

func newBlockCollectionName() (string, error) {
	var tag [4]byte
	if _, err := rand.Read(tag[:]); err != nil {
		return "", err
	}
	return BlockCollectionPrefix + hex.EncodeToString(tag[:]), nil
}

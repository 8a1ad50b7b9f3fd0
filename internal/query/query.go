// Package query implements the query engine (component E): it analyzes
// a query string with the same pipeline used at index time, fetches and
// concatenates the matching per-term buckets from the inverted index,
// and resolves the query via positional conjunctive intersection.
package query

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring"
	"github.com/rs/zerolog"

	"github.com/wizenheimer/harvest/internal/analyzer"
	"github.com/wizenheimer/harvest/internal/docid"
	"github.com/wizenheimer/harvest/internal/merge"
	"github.com/wizenheimer/harvest/internal/store"
)

// Window is the fixed proximity window between adjacent query terms.
const Window = 1

// ErrQueryEmpty is returned when the query string analyzes to zero
// surviving terms (e.g. it was empty, or consisted only of stop words).
var ErrQueryEmpty = errors.New("query: empty query")

// Engine answers search queries against the inverted_index collection.
type Engine struct {
	st       store.Store
	analyzer *analyzer.Analyzer
	log      zerolog.Logger
}

// New constructs an Engine. analyzer MUST be the exact pipeline used by
// the token stream producer at index time.
func New(st store.Store, a *analyzer.Analyzer, log zerolog.Logger) *Engine {
	return &Engine{st: st, analyzer: a, log: log}
}

// termPostings is one query term's concatenated, bucket-ordered postings
// and positions, after fetching from the inverted index.
type termPostings struct {
	term      string
	docs      []docid.ID
	positions map[docid.ID][]int
}

// Search runs the full pipeline and returns matching DocIds in ascending
// order. An empty or all-stop-word query returns ErrQueryEmpty (the API
// layer maps this to HTTP 400); a query term with no postings at all
// returns a nil slice with no error, per the TermMissing error kind.
func (e *Engine) Search(ctx context.Context, query string) ([]docid.ID, error) {
	tokens := e.analyzer.Analyze(query)
	if len(tokens) == 0 {
		return nil, ErrQueryEmpty
	}

	terms := make([]string, len(tokens))
	for i, t := range tokens {
		terms[i] = t.Term
	}

	postingsByTerm, err := e.fetchTermPostings(ctx, terms)
	if err != nil {
		return nil, fmt.Errorf("query: fetch postings: %w", err)
	}
	for _, tp := range postingsByTerm {
		if len(tp.docs) == 0 {
			// TermMissing: at least one term has no postings at all.
			return nil, nil
		}
	}

	if !bitmapsMayIntersect(postingsByTerm) {
		return nil, nil
	}

	return cascade(postingsByTerm, Window), nil
}

// bitmapsMayIntersect builds a roaring bitmap per term over a 32-bit
// surrogate of each posting's DocId and ANDs them together as a cheap
// pre-filter ahead of the authoritative positional cascade. A surrogate
// collision can only produce a false positive (two distinct DocIds
// sharing a bitmap slot), never a false negative — any pair of postings
// for the same real DocId always collides on their own surrogate — so an
// empty intersection here proves the cascade would find nothing, and the
// cascade remains the source of truth whenever this returns true.
func bitmapsMayIntersect(postingsByTerm []termPostings) bool {
	if len(postingsByTerm) == 0 {
		return true
	}
	acc := surrogateBitmap(postingsByTerm[0].docs)
	for i := 1; i < len(postingsByTerm); i++ {
		acc.And(surrogateBitmap(postingsByTerm[i].docs))
		if acc.IsEmpty() {
			return false
		}
	}
	return true
}

func surrogateBitmap(docs []docid.ID) *roaring.Bitmap {
	bm := roaring.New()
	for _, d := range docs {
		bm.Add(binary.BigEndian.Uint32(d[8:12]))
	}
	return bm
}

// AnalyzedTerms runs only the analyzer half of the pipeline, exposing the
// stemmed terms a query resolved to — used by the serve API to report
// highlighted_terms without re-running the full search.
func (e *Engine) AnalyzedTerms(query string) []string {
	tokens := e.analyzer.Analyze(query)
	terms := make([]string, len(tokens))
	for i, t := range tokens {
		terms[i] = t.Term
	}
	return terms
}

// fetchTermPostings fetches every inverted_index entry whose term is one
// of terms, sorted by bucket ascending, then concatenates each term's
// buckets (already strictly ascending across buckets) and merges their
// positions maps, preserving query order in the returned slice.
func (e *Engine) fetchTermPostings(ctx context.Context, terms []string) ([]termPostings, error) {
	unique := make([]string, 0, len(terms))
	seen := make(map[string]bool, len(terms))
	for _, t := range terms {
		if !seen[t] {
			seen[t] = true
			unique = append(unique, t)
		}
	}

	inAny := make([]any, len(unique))
	for i, t := range unique {
		inAny[i] = t
	}

	coll := e.st.Collection(merge.IndexCollectionName)
	cur, err := coll.Find(ctx, store.Filter{"term": store.Filter{"$in": inAny}}, store.FindOptions{
		Sort: []store.SortKey{{Field: "term", Ascending: true}, {Field: "bucket", Ascending: true}},
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	byTerm := make(map[string]*termPostings, len(unique))
	for _, t := range unique {
		byTerm[t] = &termPostings{term: t, positions: make(map[docid.ID][]int)}
	}
	for cur.Next(ctx) {
		var entry merge.Entry
		if err := cur.Decode(&entry); err != nil {
			return nil, err
		}
		tp := byTerm[entry.Term]
		tp.docs = append(tp.docs, entry.Postings...)
		for _, d := range entry.Postings {
			tp.positions[d] = entry.Positions[d.Hex()]
		}
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}

	// Preserve query order, including repeated terms (e.g. "quick quick").
	out := make([]termPostings, len(terms))
	for i, t := range terms {
		out[i] = *byTerm[t]
	}
	return out, nil
}

// cascade folds the positional intersection left to right across terms,
// in query order, with the fixed proximity window. See matchPositions
// for the pairwise position-window rule.
func cascade(postingsByTerm []termPostings, window int) []docid.ID {
	if len(postingsByTerm) == 0 {
		return nil
	}

	currentDocs := append([]docid.ID(nil), postingsByTerm[0].docs...)
	docid.SortSlice(currentDocs)
	current := make(map[docid.ID][]int, len(currentDocs))
	for _, d := range currentDocs {
		current[d] = postingsByTerm[0].positions[d]
	}

	for i := 1; i < len(postingsByTerm); i++ {
		rightDocs := append([]docid.ID(nil), postingsByTerm[i].docs...)
		docid.SortSlice(rightDocs)
		rightPositions := postingsByTerm[i].positions

		next := make(map[docid.ID][]int)
		var nextDocs []docid.ID

		li, ri := 0, 0
		for li < len(currentDocs) && ri < len(rightDocs) {
			l, r := currentDocs[li], rightDocs[ri]
			switch {
			case docid.Less(l, r):
				li++
			case docid.Less(r, l):
				ri++
			default:
				matched := matchPositions(current[l], rightPositions[r], window)
				if len(matched) > 0 {
					next[l] = matched
					nextDocs = append(nextDocs, l)
				}
				li++
				ri++
			}
		}

		current = next
		currentDocs = nextDocs
		if len(currentDocs) == 0 {
			return nil
		}
	}

	result := append([]docid.ID(nil), currentDocs...)
	sort.Slice(result, func(i, j int) bool { return docid.Less(result[i], result[j]) })
	return result
}

// matchPositions returns the sorted, deduplicated subset of right whose
// absolute difference from some position in left is at most window. Both
// inputs are ascending; the inner loop advances a low-water mark (j0)
// past positions that can no longer satisfy any later, larger p1, which
// is the early-termination rule from the component design.
func matchPositions(left, right []int, window int) []int {
	if len(left) == 0 || len(right) == 0 {
		return nil
	}
	var matched []int
	seen := make(map[int]bool)
	j0 := 0
	for _, p1 := range left {
		for j := j0; j < len(right); j++ {
			p2 := right[j]
			if p2 < p1-window {
				j0 = j + 1
				continue
			}
			if p2 > p1+window {
				break
			}
			if !seen[p2] {
				seen[p2] = true
				matched = append(matched, p2)
			}
		}
	}
	sort.Ints(matched)
	return matched
}

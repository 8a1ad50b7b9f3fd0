// Package ranking implements an optional, non-default scoring mode on top
// of the positional conjunctive intersection the query engine returns by
// default. Ranking beyond positional filtering is explicitly out of the
// core's required scope, but the BM25 formula already present in this
// codebase's search stack is retained here as a secondary ordering; the
// serve API does not call it. The inverted index already carries
// everything BM25 needs (document frequency, term frequency via position
// count) without any extra bookkeeping.
package ranking

import (
	"math"
	"sort"

	"github.com/wizenheimer/harvest/internal/docid"
)

// Params are the standard Okapi BM25 tuning constants.
type Params struct {
	K1 float64
	B  float64
}

// DefaultParams matches the values this codebase has always used for
// BM25 scoring.
var DefaultParams = Params{K1: 1.5, B: 0.75}

// Scorer computes a BM25 score for a single term's contribution to a
// document's relevance.
type Scorer struct {
	params Params
}

// NewScorer builds a Scorer with the given tuning parameters.
func NewScorer(p Params) *Scorer {
	return &Scorer{params: p}
}

// IDF computes the inverse document frequency component: docFreq is the
// number of documents containing the term, totalDocs is the corpus size.
func (s *Scorer) IDF(docFreq, totalDocs int) float64 {
	if totalDocs == 0 || docFreq == 0 {
		return 0
	}
	return math.Log(1 + (float64(totalDocs)-float64(docFreq)+0.5)/(float64(docFreq)+0.5))
}

// TermScore computes one term's BM25 contribution for a document of the
// given length, against the corpus average document length.
func (s *Scorer) TermScore(termFreq int, docLength, avgDocLength float64, docFreq, totalDocs int) float64 {
	if termFreq <= 0 || avgDocLength <= 0 {
		return 0
	}
	idf := s.IDF(docFreq, totalDocs)
	tf := float64(termFreq)
	norm := s.params.K1 * (1 - s.params.B + s.params.B*docLength/avgDocLength)
	return idf * (tf * (s.params.K1 + 1)) / (tf + norm)
}

// DocStats carries the per-document length and per-term frequency data
// the caller has already assembled from the fetched posting lists (term
// frequency is simply len(positions) for that (term, doc) pair).
type DocStats struct {
	Length     float64
	TermFreqs  map[string]int
}

// RankBM25 scores every candidate doc against the given query terms and
// returns docs sorted by descending score (stable, so ties preserve the
// caller's input order — typically ascending DocId, matching the
// engine's default ordering).
func RankBM25(scorer *Scorer, candidates []docid.ID, stats map[docid.ID]DocStats, docFreq map[string]int, totalDocs int, avgDocLength float64, terms []string) []docid.ID {
	scores := make(map[docid.ID]float64, len(candidates))
	for _, d := range candidates {
		st, ok := stats[d]
		if !ok {
			continue
		}
		var total float64
		for _, term := range terms {
			tf := st.TermFreqs[term]
			total += scorer.TermScore(tf, st.Length, avgDocLength, docFreq[term], totalDocs)
		}
		scores[d] = total
	}

	ranked := append([]docid.ID(nil), candidates...)
	sort.SliceStable(ranked, func(i, j int) bool { return scores[ranked[i]] > scores[ranked[j]] })
	return ranked
}

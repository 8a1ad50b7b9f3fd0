package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/wizenheimer/harvest/internal/analyzer"
	"github.com/wizenheimer/harvest/internal/docid"
	"github.com/wizenheimer/harvest/internal/merge"
	"github.com/wizenheimer/harvest/internal/page"
	"github.com/wizenheimer/harvest/internal/query"
	"github.com/wizenheimer/harvest/internal/store"
)

func seedOneDoc(t *testing.T, ctx context.Context, st store.Store, a *analyzer.Analyzer, url, content string) docid.ID {
	t.Helper()
	repo := page.NewRepository(st)
	id := docid.New()
	if err := repo.Insert(ctx, page.Page{ID: id, URL: url, Title: "A Title", CleanedContent: content}); err != nil {
		t.Fatalf("insert page: %v", err)
	}

	byTerm := make(map[string][]int)
	for _, tok := range a.Analyze(content) {
		byTerm[tok.Term] = append(byTerm[tok.Term], tok.Pos)
	}
	coll := st.Collection(merge.IndexCollectionName)
	for term, positions := range byTerm {
		entry := merge.Entry{
			ID:                term + "#0",
			Term:              term,
			Bucket:            0,
			DocumentFrequency: 1,
			Postings:          []docid.ID{id},
			Positions:         map[string][]int{id.Hex(): positions},
		}
		if err := coll.InsertOne(ctx, entry); err != nil {
			t.Fatalf("seed index: %v", err)
		}
	}
	return id
}

func TestHandleSearchReturnsResults(t *testing.T) {
	st := store.NewMemStore()
	ctx := context.Background()
	a := analyzer.Default()
	id := seedOneDoc(t, ctx, st, a, "http://example.com/fox", "quick brown fox")

	eng := query.New(st, a, zerolog.Nop())
	repo := page.NewRepository(st)
	srv := NewServer(eng, repo, zerolog.Nop())

	body, _ := json.Marshal(SearchRequest{Query: "quick brown"})
	req := httptest.NewRequest(http.MethodPost, "/api/search", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp SearchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.TotalResults != 1 {
		t.Fatalf("expected 1 result, got %d: %+v", resp.TotalResults, resp)
	}
	if resp.Results[0].ID != id.Hex() {
		t.Fatalf("expected result id %s, got %s", id.Hex(), resp.Results[0].ID)
	}
}

func TestHandleSearchEmptyQueryReturns400(t *testing.T) {
	st := store.NewMemStore()
	eng := query.New(st, analyzer.Default(), zerolog.Nop())
	repo := page.NewRepository(st)
	srv := NewServer(eng, repo, zerolog.Nop())

	body, _ := json.Marshal(SearchRequest{Query: ""})
	req := httptest.NewRequest(http.MethodPost, "/api/search", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty query, got %d", w.Code)
	}
}

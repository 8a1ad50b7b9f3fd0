// Package api exposes the search core over HTTP: POST /api/search, per
// the serve subcommand's external interface. It is a thin translation
// layer — request/response shaping and error-to-status-code mapping —
// and holds none of the query logic itself.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/wizenheimer/harvest/internal/docid"
	"github.com/wizenheimer/harvest/internal/page"
	"github.com/wizenheimer/harvest/internal/query"
	"github.com/wizenheimer/harvest/internal/store"
)

const snippetLength = 200

// SearchRequest is the POST /api/search request body.
type SearchRequest struct {
	Query string `json:"query"`
}

// ResultItem is one entry of the results array.
type ResultItem struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Depth   int    `json:"depth"`
}

// SearchResponse is the full POST /api/search response body.
type SearchResponse struct {
	Query             string       `json:"query"`
	Results           []ResultItem `json:"results"`
	TotalResults      int          `json:"total_results"`
	ProcessingTimeMs  int64        `json:"processing_time_ms"`
	HighlightedTerms  []string     `json:"highlighted_terms"`
}

// Server wires the query engine and the page repository (for result
// titling/snippets) into a gin.Engine.
type Server struct {
	engine *query.Engine
	pages  *page.Repository
	log    zerolog.Logger
}

// NewServer constructs a Server.
func NewServer(engine *query.Engine, pages *page.Repository, log zerolog.Logger) *Server {
	return &Server{engine: engine, pages: pages, log: log}
}

// Router builds the gin.Engine exposing POST /api/search.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.POST("/api/search", s.handleSearch)
	return r
}

func (s *Server) handleSearch(c *gin.Context) {
	start := time.Now()

	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if len(req.Query) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query must not be empty"})
		return
	}

	ctx := c.Request.Context()
	ids, err := s.engine.Search(ctx, req.Query)
	if errors.Is(err, query.ErrQueryEmpty) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query analyzed to zero terms"})
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("query", req.Query).Msg("search failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	results, err := s.buildResults(ctx, ids)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to build result snippets")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, SearchResponse{
		Query:            req.Query,
		Results:          results,
		TotalResults:     len(results),
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		HighlightedTerms: highlightTerms(req.Query, s.engine),
	})
}

func (s *Server) buildResults(ctx context.Context, ids []docid.ID) ([]ResultItem, error) {
	results := make([]ResultItem, 0, len(ids))
	for _, id := range ids {
		item, ok, err := s.lookupResult(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			results = append(results, item)
		}
	}
	return results, nil
}

func (s *Server) lookupResult(ctx context.Context, id docid.ID) (ResultItem, bool, error) {
	coll := s.pagesCollection()
	cur, err := coll.Find(ctx, store.Filter{"_id": id}, store.FindOptions{Limit: 1})
	if err != nil {
		return ResultItem{}, false, err
	}
	defer cur.Close(ctx)
	if !cur.Next(ctx) {
		return ResultItem{}, false, nil
	}
	var p page.Page
	if err := cur.Decode(&p); err != nil {
		return ResultItem{}, false, err
	}
	return ResultItem{
		ID:      p.ID.Hex(),
		Title:   p.Title,
		URL:     p.URL,
		Snippet: snippet(p.CleanedContent),
		Depth:   p.Depth,
	}, true, nil
}

func snippet(content string) string {
	if len(content) <= snippetLength {
		return content
	}
	return content[:snippetLength]
}

// highlightTerms re-derives the analyzed term list so the response can
// tell the caller which stemmed terms actually drove the match.
func highlightTerms(q string, engine *query.Engine) []string {
	return engine.AnalyzedTerms(q)
}

func (s *Server) pagesCollection() store.Collection {
	return s.pages.Collection()
}

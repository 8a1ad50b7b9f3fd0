// Package page defines the Page record owned by the crawler and the
// repository the indexing pipeline uses to read pending pages and mark
// them indexed. The indexer never writes any field of Page other than
// Indexed.
package page

import (
	"context"
	"time"

	"github.com/wizenheimer/harvest/internal/docid"
	"github.com/wizenheimer/harvest/internal/store"
)

// CollectionName is the document-store collection holding pages.
const CollectionName = "pages"

// Page is a single crawled document. URL is unique across the corpus.
type Page struct {
	ID              docid.ID  `bson:"_id"`
	URL             string    `bson:"url"`
	Title           string    `bson:"title"`
	HTMLBody        string    `bson:"html_body"`
	CleanedContent  string    `bson:"cleaned_content"`
	OutgoingLinks   []string  `bson:"outgoing_links"`
	Depth           int       `bson:"depth"`
	IsSeed          bool      `bson:"is_seed"`
	CrawledAt       time.Time `bson:"crawled_at"`
	Indexed         bool      `bson:"indexed"`
}

// Repository is the narrow page-store surface the token stream producer
// depends on.
type Repository struct {
	coll store.Collection
}

// NewRepository wraps a Store's pages collection.
func NewRepository(s store.Store) *Repository {
	return &Repository{coll: s.Collection(CollectionName)}
}

// EnsureIndexes creates the secondary indexes the producer's queries rely
// on: a unique index on url, and a compound index on (indexed, _id) for
// the cursor-paginated pending-page scan.
func (r *Repository) EnsureIndexes(ctx context.Context) error {
	if err := r.coll.CreateIndex(ctx, store.IndexSpec{
		Keys:   []store.SortKey{{Field: "url", Ascending: true}},
		Unique: true,
	}); err != nil {
		return err
	}
	return r.coll.CreateIndex(ctx, store.IndexSpec{
		Keys: []store.SortKey{
			{Field: "indexed", Ascending: true},
			{Field: "_id", Ascending: true},
		},
	})
}

// PendingBatch fetches up to limit pages with indexed == false and
// _id > after, ordered ascending by _id. Passing the zero ID for after
// starts from the beginning.
func (r *Repository) PendingBatch(ctx context.Context, after docid.ID, limit int) ([]Page, error) {
	filter := store.Filter{"indexed": false}
	if !after.IsZero() {
		filter["_id"] = store.Filter{"$gt": after}
	}
	cur, err := r.coll.Find(ctx, filter, store.FindOptions{
		Sort:  []store.SortKey{{Field: "_id", Ascending: true}},
		Limit: int64(limit),
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var pages []Page
	for cur.Next(ctx) {
		var p Page
		if err := cur.Decode(&p); err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, cur.Err()
}

// MarkIndexed sets indexed = true for a single page. Called once per page
// after its tokens have been fully emitted onto the SPIMI stream.
func (r *Repository) MarkIndexed(ctx context.Context, id docid.ID) error {
	return r.coll.UpdateByID(ctx, id, store.Update{Set: map[string]any{"indexed": true}})
}

// Collection exposes the underlying store.Collection for callers (the
// search API's result lookup) that need a direct by-id Find the
// Repository's own pending-page-oriented methods don't cover.
func (r *Repository) Collection() store.Collection {
	return r.coll
}

// Insert persists a new page. Exposed primarily for tests and tooling;
// the crawler is the production writer of this collection.
func (r *Repository) Insert(ctx context.Context, p Page) error {
	return r.coll.InsertOne(ctx, p)
}

package store

import (
	"context"
	"fmt"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoStore adapts a *mongo.Database to the Store contract. It is the
// concrete backend used by cmd/harvest; every other package in this
// module depends only on the Store/Collection interfaces above.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials uri, pings the admin database to fail fast on a bad
// connection string, and binds to dbName.
func Connect(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %v", ErrTransient, err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("%w: ping: %v", ErrTransient, err)
	}
	return &MongoStore{client: client, db: client.Database(dbName)}, nil
}

// Close disconnects the underlying client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) Collection(name string) Collection {
	return &mongoCollection{coll: s.db.Collection(name)}
}

func (s *MongoStore) ListCollections(ctx context.Context, namePattern string) ([]string, error) {
	filter := bson.M{}
	if namePattern != "" {
		filter = bson.M{"name": bson.M{"$regex": namePattern}}
	}
	names, err := s.db.ListCollectionNames(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: list collections: %v", ErrTransient, err)
	}
	return names, nil
}

func (s *MongoStore) DropCollection(ctx context.Context, name string) error {
	if err := requireValidName(name); err != nil {
		return err
	}
	if err := s.db.Collection(name).Drop(ctx); err != nil {
		return fmt.Errorf("%w: drop %s: %v", ErrTransient, name, err)
	}
	return nil
}

type mongoCollection struct {
	coll *mongo.Collection
}

func (c *mongoCollection) InsertOne(ctx context.Context, doc any) error {
	_, err := c.coll.InsertOne(ctx, doc)
	if err != nil {
		return fmt.Errorf("%w: insert one: %v", ErrTransient, err)
	}
	return nil
}

func (c *mongoCollection) InsertMany(ctx context.Context, docs []any) error {
	if len(docs) == 0 {
		return nil
	}
	_, err := c.coll.InsertMany(ctx, docs)
	if err != nil {
		return fmt.Errorf("%w: insert many: %v", ErrTransient, err)
	}
	return nil
}

func (c *mongoCollection) UpdateByID(ctx context.Context, id any, upd Update) error {
	body := bson.M{}
	if len(upd.Set) > 0 {
		body["$set"] = upd.Set
	}
	if len(upd.Push) > 0 {
		each := bson.M{}
		for field, vals := range upd.Push {
			each[field] = bson.M{"$each": vals}
		}
		body["$push"] = each
	}
	if len(upd.Inc) > 0 {
		body["$inc"] = upd.Inc
	}
	if len(body) == 0 {
		return nil
	}
	res, err := c.coll.UpdateByID(ctx, id, body)
	if err != nil {
		return fmt.Errorf("%w: update by id: %v", ErrTransient, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *mongoCollection) Find(ctx context.Context, filter Filter, opts FindOptions) (Cursor, error) {
	findOpts := options.Find()
	if opts.Limit > 0 {
		findOpts.SetLimit(opts.Limit)
	}
	if len(opts.Sort) > 0 {
		sortDoc := bson.D{}
		for _, k := range opts.Sort {
			dir := 1
			if !k.Ascending {
				dir = -1
			}
			sortDoc = append(sortDoc, bson.E{Key: k.Field, Value: dir})
		}
		findOpts.SetSort(sortDoc)
	}
	if len(opts.Projection) > 0 {
		proj := bson.M{}
		for _, f := range opts.Projection {
			proj[f] = 1
		}
		findOpts.SetProjection(proj)
	}
	cur, err := c.coll.Find(ctx, bson.M(filter), findOpts)
	if err != nil {
		return nil, fmt.Errorf("%w: find: %v", ErrTransient, err)
	}
	return &mongoCursor{cur: cur}, nil
}

func (c *mongoCollection) CreateIndex(ctx context.Context, spec IndexSpec) error {
	keys := bson.D{}
	for _, k := range spec.Keys {
		dir := 1
		if !k.Ascending {
			dir = -1
		}
		keys = append(keys, bson.E{Key: k.Field, Value: dir})
	}
	idxOpts := options.Index()
	if spec.Unique {
		idxOpts.SetUnique(true)
	}
	_, err := c.coll.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: keys, Options: idxOpts})
	if err != nil {
		return fmt.Errorf("%w: create index: %v", ErrTransient, err)
	}
	return nil
}

type mongoCursor struct {
	cur *mongo.Cursor
}

func (c *mongoCursor) Next(ctx context.Context) bool      { return c.cur.Next(ctx) }
func (c *mongoCursor) Decode(v any) error                 { return c.cur.Decode(v) }
func (c *mongoCursor) Err() error                          { return c.cur.Err() }
func (c *mongoCursor) Close(ctx context.Context) error     { return c.cur.Close(ctx) }

// validCollectionName guards dynamically generated spimi_block_<random>
// names before they are handed to DropCollection.
var validCollectionName = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

func requireValidName(name string) error {
	if !validCollectionName.MatchString(name) {
		return fmt.Errorf("store: invalid collection name %q", name)
	}
	return nil
}

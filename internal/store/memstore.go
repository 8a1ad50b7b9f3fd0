package store

import (
	"context"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
)

// MemStore is an in-memory Store used by the test suites for the indexing
// pipeline so they never need a live MongoDB instance to exercise the
// SPIMI builder, merger and query engine. Documents round-trip through
// bson marshal/unmarshal so the same struct tags that drive the real
// mongo-driver adapter are exercised here too.
type MemStore struct {
	mu    sync.Mutex
	colls map[string]*memCollection
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{colls: make(map[string]*memCollection)}
}

func (s *MemStore) Collection(name string) Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.colls[name]
	if !ok {
		c = &memCollection{}
		s.colls[name] = c
	}
	return c
}

func (s *MemStore) ListCollections(ctx context.Context, namePattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for name := range s.colls {
		if namePattern == "" || regexpLikeContains(name, namePattern) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemStore) DropCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.colls, name)
	return nil
}

// regexpLikeContains treats namePattern as a plain substring match, which
// is sufficient for the "spimi_block_" prefix scans the merger performs;
// the real adapter uses a full Mongo $regex.
func regexpLikeContains(name, pattern string) bool {
	return len(pattern) == 0 || (len(name) >= len(pattern) && indexOf(name, pattern) >= 0)
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

type memDoc struct {
	bytes []byte
	id    any
}

type memCollection struct {
	mu   sync.Mutex
	docs []memDoc
}

func toBSON(v any) (bson.M, []byte, error) {
	b, err := bson.Marshal(v)
	if err != nil {
		return nil, nil, err
	}
	var m bson.M
	if err := bson.Unmarshal(b, &m); err != nil {
		return nil, nil, err
	}
	return m, b, nil
}

func (c *memCollection) InsertOne(ctx context.Context, doc any) error {
	m, _, err := toBSON(doc)
	if err != nil {
		return err
	}
	b, err := bson.Marshal(m)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs = append(c.docs, memDoc{bytes: b, id: m["_id"]})
	return nil
}

func (c *memCollection) InsertMany(ctx context.Context, docs []any) error {
	for _, d := range docs {
		if err := c.InsertOne(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

func (c *memCollection) UpdateByID(ctx context.Context, id any, upd Update) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, d := range c.docs {
		if !bsonEqual(d.id, id) {
			continue
		}
		var m bson.M
		if err := bson.Unmarshal(d.bytes, &m); err != nil {
			return err
		}
		for k, v := range upd.Set {
			m[k] = v
		}
		for k, v := range upd.Push {
			existing, _ := m[k].(bson.A)
			if vs, ok := v.(bson.A); ok {
				existing = append(existing, vs...)
			} else {
				existing = append(existing, v)
			}
			m[k] = existing
		}
		for k, v := range upd.Inc {
			cur, _ := toInt64(m[k])
			delta, _ := toInt64(v)
			m[k] = cur + delta
		}
		b, err := bson.Marshal(m)
		if err != nil {
			return err
		}
		c.docs[i] = memDoc{bytes: b, id: id}
		return nil
	}
	return ErrNotFound
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}

func bsonEqual(a, b any) bool {
	ab, err1 := bson.Marshal(bson.M{"v": a})
	bb, err2 := bson.Marshal(bson.M{"v": b})
	if err1 != nil || err2 != nil {
		return false
	}
	return string(ab) == string(bb)
}

func (c *memCollection) Find(ctx context.Context, filter Filter, opts FindOptions) (Cursor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var matched []bson.M
	for _, d := range c.docs {
		var m bson.M
		if err := bson.Unmarshal(d.bytes, &m); err != nil {
			return nil, err
		}
		if matchesFilter(m, filter) {
			matched = append(matched, m)
		}
	}
	if len(opts.Sort) > 0 {
		sort.SliceStable(matched, func(i, j int) bool {
			for _, k := range opts.Sort {
				cmp := compareBSONValues(matched[i][k.Field], matched[j][k.Field])
				if cmp == 0 {
					continue
				}
				if k.Ascending {
					return cmp < 0
				}
				return cmp > 0
			}
			return false
		})
	}
	if opts.Limit > 0 && int64(len(matched)) > opts.Limit {
		matched = matched[:opts.Limit]
	}
	return &memCursor{docs: matched, idx: -1}, nil
}

func (c *memCollection) CreateIndex(ctx context.Context, spec IndexSpec) error {
	// the in-memory store has no query planner to benefit from an index;
	// this is a deliberate no-op so tests exercise the same call sequence
	// as production without needing to model index metadata.
	return nil
}

func matchesFilter(doc bson.M, filter Filter) bool {
	for k, v := range filter {
		cond, isMap := asCondMap(v)
		if !isMap {
			if !compareEqual(doc[k], v) {
				return false
			}
			continue
		}
		if in, ok := cond["$in"]; ok {
			if !containsValue(in, doc[k]) {
				return false
			}
		}
		if gt, ok := cond["$gt"]; ok {
			if compareAny(doc[k], gt) <= 0 {
				return false
			}
		}
		if gte, ok := cond["$gte"]; ok {
			if compareAny(doc[k], gte) < 0 {
				return false
			}
		}
		if lt, ok := cond["$lt"]; ok {
			if compareAny(doc[k], lt) >= 0 {
				return false
			}
		}
	}
	return true
}

// asCondMap normalizes the two shapes a nested operator condition can
// arrive in (Filter or plain map[string]any) into one map.
func asCondMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case Filter:
		return map[string]any(m), true
	case map[string]any:
		return m, true
	default:
		return nil, false
	}
}

// compareAny compares two values that are either docid.ID-like (12-byte
// arrays round-tripped through bson as binary) or plain comparable
// scalars, by marshalling both through bson and comparing bytes; this is
// sufficient for the ascending-_id cursor comparisons the producer needs.
func compareAny(a, b any) int {
	ab, err1 := bson.Marshal(bson.M{"v": a})
	bb, err2 := bson.Marshal(bson.M{"v": b})
	if err1 != nil || err2 != nil {
		return 0
	}
	if string(ab) == string(bb) {
		return 0
	}
	if string(ab) < string(bb) {
		return -1
	}
	return 1
}

func containsValue(set any, v any) bool {
	switch s := set.(type) {
	case []any:
		for _, item := range s {
			if compareEqual(v, item) {
				return true
			}
		}
	case bson.A:
		for _, item := range s {
			if compareEqual(v, item) {
				return true
			}
		}
	}
	return false
}

func compareEqual(a, b any) bool {
	ab, err1 := bson.Marshal(bson.M{"v": a})
	bb, err2 := bson.Marshal(bson.M{"v": b})
	if err1 != nil || err2 != nil {
		return false
	}
	return string(ab) == string(bb)
}

func compareBSONValues(a, b any) int {
	ai, aok := toInt64(a)
	bi, bok := toInt64(b)
	if aok && bok {
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		default:
			return 0
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		switch {
		case as < bs:
			return -1
		case as > bs:
			return 1
		default:
			return 0
		}
	}
	return 0
}

type memCursor struct {
	docs []bson.M
	idx  int
}

func (c *memCursor) Next(ctx context.Context) bool {
	c.idx++
	return c.idx < len(c.docs)
}

func (c *memCursor) Decode(v any) error {
	b, err := bson.Marshal(c.docs[c.idx])
	if err != nil {
		return err
	}
	return bson.Unmarshal(b, v)
}

func (c *memCursor) Err() error                      { return nil }
func (c *memCursor) Close(ctx context.Context) error { return nil }
